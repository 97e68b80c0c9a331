package database

import (
	"context"
	"fmt"
	"log/slog"
)

type Settings struct {
	Type             string
	ConnectionString string
	BackendURL       string
	BackendKey       string
}

func NewDatabase(ctx context.Context, settings Settings) (database DatabaseService, err error) {
	switch settings.Type {
	case "sqlite":
		database, err = NewSQLiteDatabase(settings.ConnectionString)
		if err != nil {
			return nil, err
		}
	case "supabase":
		database = NewSupabaseDatabase(settings.BackendURL, settings.BackendKey)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", settings.Type)
	}

	// idempotent, required for in-memory SQLite
	slog.Debug("initializing database schema", "type", settings.Type)
	if err = database.CreateDatabase(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	return database, nil
}
