package db

import "embed"

// MigrationFS embeds SQL migration files from internal/db/migrations.
// Applied by cmd/migrate.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
