package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/birbparty/roost/internal/mockbase"
	"github.com/birbparty/roost/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Init(ctx, telemetry.NewConfigFromEnv("roost-mockbase"), os.Stderr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize telemetry")
	}
	log := tel.Logger

	cfg, err := mockbase.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	srv, err := mockbase.New(cfg, log, mockbase.WithMiddleware(telemetry.FiberTracingMiddleware()))
	if err != nil {
		log.WithError(err).Fatal("Failed to create server")
	}
	if err := seed(srv, log); err != nil {
		log.WithError(err).Fatal("Failed to seed data")
	}

	go func() {
		<-ctx.Done()
		log.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("Server forced to shutdown")
		}
		if err := tel.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("Failed to flush telemetry")
		}
	}()

	log.WithFields(logrus.Fields{
		"address": cfg.Address(),
		"version": mockbase.Version,
	}).Info("roost mockbase starting")

	if err := srv.Listen(); err != nil {
		log.WithError(err).Fatal("Failed to start server")
	}
}

// seed creates the general channel, the tables named in MOCKBASE_TABLES
// (comma separated) and the account in MOCKBASE_SEED_USER (email:password)
func seed(srv *mockbase.Server, log logrus.FieldLogger) error {
	srv.CreateChannel("general", "Default channel", true)

	for _, table := range strings.Split(os.Getenv("MOCKBASE_TABLES"), ",") {
		if table = strings.TrimSpace(table); table != "" {
			srv.CreateTable(table)
		}
	}

	if account := os.Getenv("MOCKBASE_SEED_USER"); account != "" {
		email, password, ok := strings.Cut(account, ":")
		if !ok || email == "" || password == "" {
			return errors.New("MOCKBASE_SEED_USER must be email:password")
		}
		user, err := srv.CreateUser(email, password, "")
		if err != nil {
			return err
		}
		log.WithField("user_id", user.ID).Info("Seeded user")
	}
	return nil
}
