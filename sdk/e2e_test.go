package sdk_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/birbparty/roost/internal/mockbase"
	"github.com/birbparty/roost/sdk"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type task struct {
	ID        string    `json:"id,omitempty"`
	Title     string    `json:"title"`
	Priority  int       `json:"priority"`
	Tag       string    `json:"tag,omitempty"`
	Done      bool      `json:"done"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// startBackend serves a fresh mockbase on a loopback port
func startBackend(t *testing.T) (*mockbase.Server, string) {
	t.Helper()
	srv, err := mockbase.New(mockbase.DefaultConfig(), quietLogger())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		_ = srv.Serve(ln)
	}()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv, "http://" + ln.Addr().String()
}

func connect(t *testing.T, baseURL string, configure ...func(*sdk.Config)) *sdk.Client {
	t.Helper()
	cfg := sdk.DefaultConfig().
		WithBaseURL(baseURL).
		WithAPIKey(mockbase.DefaultConfig().APIKey).
		WithLogger(quietLogger())
	for _, fn := range configure {
		fn(cfg)
	}
	client, err := sdk.NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestEndToEnd_Records(t *testing.T) {
	_, baseURL := startBackend(t)
	client := connect(t, baseURL)
	ctx := context.Background()
	tasks := sdk.NewTable[task](client.Database(), "tasks")

	created, err := tasks.Insert(ctx,
		task{Title: "write docs", Priority: 2, Tag: "docs"},
		task{Title: "fix bug", Priority: 5, Tag: "bug fix"},
		task{Title: "ship", Priority: 9, Tag: "release, final"},
		task{Title: "rest", Priority: 1, Done: true},
	)
	require.NoError(t, err)
	require.Len(t, created, 4)
	for _, c := range created {
		assert.NotEmpty(t, c.ID)
		assert.False(t, c.CreatedAt.IsZero())
	}

	t.Run("filters order and range", func(t *testing.T) {
		open, err := tasks.Select(ctx, func(q sdk.Query) sdk.Query {
			return q.Eq("done", false).Gte("priority", 2).Order("priority", false).Range(0, 1)
		})
		require.NoError(t, err)
		require.Len(t, open, 2)
		assert.Equal(t, "ship", open[0].Title)
		assert.Equal(t, "fix bug", open[1].Title)
	})

	t.Run("in with quoted values", func(t *testing.T) {
		rows, err := sdk.Select[task](ctx, client.From("tasks").
			In("tag", "bug fix", "release, final").
			Order("title", true))
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "fix bug", rows[0].Title)
		assert.Equal(t, "ship", rows[1].Title)
	})

	t.Run("like and is", func(t *testing.T) {
		rows, err := sdk.Select[task](ctx, client.From("tasks").ILike("title", "WRITE%"))
		require.NoError(t, err)
		require.Len(t, rows, 1)

		rows, err = sdk.Select[task](ctx, client.From("tasks").Is("done", sdk.IsTrue))
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "rest", rows[0].Title)
	})

	t.Run("created_at filter", func(t *testing.T) {
		rows, err := sdk.Select[task](ctx, client.From("tasks").
			Lte("created_at", created[0].CreatedAt.Add(time.Minute)))
		require.NoError(t, err)
		assert.Len(t, rows, 4)
	})

	t.Run("update", func(t *testing.T) {
		updated, err := tasks.Update(ctx, map[string]interface{}{"done": true}, func(q sdk.Query) sdk.Query {
			return q.Eq("id", created[0].ID)
		})
		require.NoError(t, err)
		require.Len(t, updated, 1)
		assert.True(t, updated[0].Done)
		assert.Equal(t, created[0].ID, updated[0].ID)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, tasks.Delete(ctx, func(q sdk.Query) sdk.Query {
			return q.Eq("done", true)
		}))
		remaining, err := tasks.Select(ctx, nil)
		require.NoError(t, err)
		assert.Len(t, remaining, 2)
	})

	t.Run("unknown table", func(t *testing.T) {
		_, err := sdk.Select[task](ctx, client.From("ghosts"))
		require.Error(t, err)
		var httpErr *sdk.HTTPError
		require.True(t, errors.As(err, &httpErr))
		assert.Equal(t, 404, httpErr.StatusCode)
		assert.Equal(t, "TABLE_NOT_FOUND", httpErr.Code)
		assert.NotEmpty(t, httpErr.NextActions)
		assert.NotEmpty(t, httpErr.RequestID)
		assert.True(t, sdk.IsNotFound(err))
	})

	t.Run("builder error sends nothing", func(t *testing.T) {
		_, err := sdk.Select[task](ctx, client.From("tasks").Range(5, 1))
		assert.ErrorIs(t, err, sdk.ErrInvalidRange)
	})
}

func TestEndToEnd_Sessions(t *testing.T) {
	srv, baseURL := startBackend(t)
	_, err := srv.CreateUser("ada@example.com", "s3cret", "Ada")
	require.NoError(t, err)
	srv.CreateTable("notes")

	store := sdk.NewMemorySessionStore()
	client := connect(t, baseURL, func(c *sdk.Config) { c.WithSessionStore(store) })
	ctx := context.Background()
	apiKey := client.Headers()["Authorization"]

	_, err = client.Auth().CurrentUser(ctx)
	assert.ErrorIs(t, err, sdk.ErrNotSignedIn)

	_, err = client.Auth().SignInWithPassword(ctx, "ada@example.com", "wrong")
	assert.True(t, sdk.IsUnauthorized(err))
	assert.Equal(t, apiKey, client.Headers()["Authorization"])

	session, err := client.Auth().SignInWithPassword(ctx, "ada@example.com", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "Bearer "+session.AccessToken, client.Headers()["Authorization"])
	assert.False(t, session.ExpiresAt.IsZero())

	user, err := client.Auth().CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Ada", user.Name)

	// every service now carries the user token
	_, err = sdk.Select[map[string]interface{}](ctx, client.From("notes"))
	require.NoError(t, err)

	t.Run("restored by a second client", func(t *testing.T) {
		other := connect(t, baseURL, func(c *sdk.Config) { c.WithSessionStore(store) })
		assert.Equal(t, client.Headers()["Authorization"], other.Headers()["Authorization"])
		u, err := other.Auth().CurrentUser(ctx)
		require.NoError(t, err)
		assert.Equal(t, user.ID, u.ID)
	})

	t.Run("refresh", func(t *testing.T) {
		refreshed, err := client.Auth().Refresh(ctx)
		require.NoError(t, err)
		assert.NotEqual(t, session.RefreshToken, refreshed.RefreshToken)
		assert.Equal(t, "Bearer "+refreshed.AccessToken, client.Headers()["Authorization"])
	})

	t.Run("sign out", func(t *testing.T) {
		require.NoError(t, client.Auth().SignOut(ctx))
		assert.Equal(t, apiKey, client.Headers()["Authorization"])
		stored, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Nil(t, stored)

		_, err = sdk.Select[map[string]interface{}](ctx, client.From("notes"))
		assert.NoError(t, err)
	})
}

func TestEndToEnd_Services(t *testing.T) {
	srv, baseURL := startBackend(t)
	client := connect(t, baseURL)
	ctx := context.Background()

	t.Run("storage", func(t *testing.T) {
		bucket := client.Storage().From("avatars")
		obj, err := bucket.Upload(ctx, "u1/me.png", bytes.NewReader([]byte("PNG")), &sdk.UploadOptions{ContentType: "image/png"})
		require.NoError(t, err)
		assert.Equal(t, "u1/me.png", obj.Key)
		assert.Equal(t, int64(3), obj.Size)

		auto, err := bucket.UploadAuto(ctx, "notes.txt", bytes.NewReader([]byte("hi")), nil)
		require.NoError(t, err)
		assert.Equal(t, "notes.txt", auto.Key)
		assert.Equal(t, "application/octet-stream", auto.MimeType)

		data, err := bucket.Download(ctx, "u1/me.png")
		require.NoError(t, err)
		assert.Equal(t, "PNG", string(data))

		list, err := bucket.List(ctx, &sdk.ListOptions{Prefix: "u1/"})
		require.NoError(t, err)
		assert.Equal(t, 1, list.Total)

		require.NoError(t, bucket.Remove(ctx, "u1/me.png"))
		_, err = bucket.Download(ctx, "u1/me.png")
		assert.True(t, sdk.IsNotFound(err))
	})

	t.Run("functions", func(t *testing.T) {
		srv.RegisterFunction("greet", func(_ context.Context, req mockbase.FunctionRequest) (mockbase.FunctionReply, error) {
			return mockbase.FunctionReply{Body: map[string]string{"greeting": "hello " + string(req.Body)}}, nil
		})

		var out struct {
			Greeting string `json:"greeting"`
		}
		require.NoError(t, client.Functions().Invoke(ctx, "greet", "ada", &out))
		assert.Equal(t, `hello "ada"`, out.Greeting)

		echoed, err := client.Functions().InvokeValue(ctx, "echo", sdk.Object(map[string]sdk.Value{
			"big": sdk.Number("12345678901234567890"),
		}))
		require.NoError(t, err)
		n, ok := echoed.Get("big").AsNumber()
		require.True(t, ok)
		assert.Equal(t, "12345678901234567890", n.String())

		err = client.Functions().Invoke(ctx, "missing", nil, nil)
		assert.True(t, sdk.IsNotFound(err))
	})

	t.Run("ai", func(t *testing.T) {
		resp, err := client.AI().ChatCompletion(ctx, sdk.ChatRequest{
			Model:    "mock/echo-chat",
			Messages: []sdk.ChatMessage{{Role: "user", Content: "ping"}},
		})
		require.NoError(t, err)
		assert.Equal(t, "echo: ping", resp.Text())

		models, err := client.AI().ListModels(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, models)
	})

	t.Run("realtime", func(t *testing.T) {
		srv.CreateChannel("room:1", "lobby", true)
		channels, err := client.Realtime().ListChannels(ctx)
		require.NoError(t, err)
		require.Len(t, channels, 1)

		_, err = client.Realtime().Publish(ctx, "room:1", "typing", sdk.Object(map[string]sdk.Value{"user": sdk.String("ada")}))
		require.NoError(t, err)
		_, err = client.Realtime().Publish(ctx, "room:1", "message", sdk.String("hi"))
		require.NoError(t, err)

		messages, err := client.Realtime().Messages(ctx, "room:1", &sdk.MessageQuery{Event: "typing"})
		require.NoError(t, err)
		require.Len(t, messages, 1)
		user, _ := messages[0].Payload.Get("user").AsString()
		assert.Equal(t, "ada", user)

		_, err = client.Realtime().Publish(ctx, "nowhere", "x", sdk.Null())
		assert.True(t, sdk.IsNotFound(err))
	})
}
