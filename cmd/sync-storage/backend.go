package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wahidkadwaikar/sync-storage/config"
	"github.com/wahidkadwaikar/sync-storage/natsclient"
	"github.com/wahidkadwaikar/sync-storage/storage"
	"github.com/wahidkadwaikar/sync-storage/storage/httpsqlstore"
	"github.com/wahidkadwaikar/sync-storage/storage/natskvstore"
	"github.com/wahidkadwaikar/sync-storage/storage/pgstore"
	"github.com/wahidkadwaikar/sync-storage/storage/sqlitestore"
)

// openStore builds the storage adapter selected by the configuration,
// wrapped with per-operation metrics when a recorder is supplied.
func openStore(ctx context.Context, cfg *config.Config, rec storage.OpRecorder, logger *slog.Logger) (storage.Store, error) {
	store, err := selectStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return storage.Instrument(store, cfg.Storage.Backend, rec), nil
}

func selectStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		return sqlitestore.Open(cfg.Storage.SQLite.Path, logger)

	case config.BackendHTTPSQL:
		return httpsqlstore.Open(ctx, cfg.Storage.HTTPSQL.BaseURL, cfg.Storage.HTTPSQL.AuthToken, logger)

	case config.BackendPostgres:
		return pgstore.Open(ctx, cfg.Storage.Postgres.DSN, logger)

	case config.BackendNATSKV:
		return openNATSKV(ctx, cfg, logger)

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func openNATSKV(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	opts := []natsclient.Option{
		natsclient.WithName(appName),
		natsclient.WithLogger(logger),
	}
	if cfg.Storage.NATSKV.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.Storage.NATSKV.Username, cfg.Storage.NATSKV.Password))
	}
	if cfg.Storage.NATSKV.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.Storage.NATSKV.Token))
	}

	client, err := natsclient.New(cfg.Storage.NATSKV.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	kv, err := client.EnsureKeyValue(ctx, cfg.Storage.NATSKV.Bucket)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("open KV bucket %q: %w", cfg.Storage.NATSKV.Bucket, err)
	}

	return natskvstore.New(kv, logger, natskvstore.WithCloser(client.Close)), nil
}
