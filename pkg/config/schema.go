package config

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/chrissnell/vbet/pkg/migrate"
)

//go:embed migrations/*.sql
var migrations embed.FS

// MigrationTable records the applied scoring schema version.
const MigrationTable = "schema_migrations"

// Migrations returns a migration provider for the scoring schema shipped
// with this package.
func Migrations() *migrate.FileProvider {
	return migrate.NewFSProvider(migrations, "migrations", MigrationTable)
}

// CreateSQLiteDatabase creates (or upgrades) a scoring configuration
// database at dbPath.
func CreateSQLiteDatabase(dbPath string, logger *zap.SugaredLogger) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	migrator := migrate.NewMigrator(db, Migrations())
	migrator.SetLogger(logger)
	return migrator.Up(context.Background())
}
