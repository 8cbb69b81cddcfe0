// Basic Example
// Inserts and reads rows of a todos table, then signs a user in and shows
// that the same client now acts on the user's behalf.

package main

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/birbparty/roost/sdk"
)

type Todo struct {
	ID        string    `json:"id,omitempty"`
	Title     string    `json:"title"`
	Done      bool      `json:"done"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

func main() {
	config := sdk.DefaultConfig().
		WithBaseURL(envOr("ROOST_BASE_URL", "http://localhost:7130")).
		WithAPIKey(envOr("ROOST_API_KEY", "ik_dev")).
		WithTimeout(10 * time.Second)

	client, err := sdk.NewClient(config)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	ctx := context.Background()

	todos := sdk.NewTable[Todo](client.Database(), "todos")

	created, err := todos.Insert(ctx, Todo{Title: "buy milk"}, Todo{Title: "write report"})
	if err != nil {
		log.Fatalf("Insert failed: %v", err)
	}
	log.Printf("Inserted %d todos, first id %s", len(created), created[0].ID)

	open, err := todos.Select(ctx, func(q sdk.Query) sdk.Query {
		return q.Eq("done", false).Order("created_at", false).Limit(10)
	})
	if err != nil {
		log.Fatalf("Select failed: %v", err)
	}
	for _, t := range open {
		log.Printf("- %s (%s)", t.Title, t.CreatedAt.Format(time.RFC822))
	}

	if email := os.Getenv("ROOST_EMAIL"); email != "" {
		session, err := client.Auth().SignInWithPassword(ctx, email, os.Getenv("ROOST_PASSWORD"))
		var httpErr *sdk.HTTPError
		switch {
		case errors.As(err, &httpErr):
			log.Fatalf("Sign in rejected (%d): %s", httpErr.StatusCode, httpErr.Message)
		case err != nil:
			log.Fatalf("Sign in failed: %v", err)
		}
		log.Printf("Signed in as %s", session.User.Email)

		if err := client.Auth().SignOut(ctx); err != nil {
			log.Printf("Sign out failed: %v", err)
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
