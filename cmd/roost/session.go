package main

import (
	"context"
	"fmt"

	"github.com/birbparty/roost/sdk"
	"github.com/birbparty/roost/sessionstore"
)

// openSessionStore returns the configured session backend and a func that
// releases its connections
func openSessionStore(ctx context.Context, cfg cliConfig) (sdk.SessionStore, func(), error) {
	switch cfg.SessionStore {
	case "", "file":
		return sessionstore.NewFileStore(cfg.SessionFile), func() {}, nil

	case "redis":
		rcfg, err := sessionstore.RedisConfigFromEnv()
		if err != nil {
			return nil, nil, err
		}
		store, err := sessionstore.NewRedisStore(rcfg)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil

	case "postgres":
		pcfg, err := sessionstore.PostgresConfigFromEnv()
		if err != nil {
			return nil, nil, err
		}
		store, err := sessionstore.NewPostgresStore(ctx, pcfg)
		if err != nil {
			return nil, nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, store.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown session store %q: want file, redis or postgres", cfg.SessionStore)
}
