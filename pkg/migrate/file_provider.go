package migrate

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Format: 001_migration_name.up.sql or 001_migration_name.down.sql
var migrationFile = regexp.MustCompile(`^(\d+)_(.+)\.(up|down)\.sql$`)

// FileProvider loads migrations from a filesystem, either a directory on
// disk or one embedded in the binary.
type FileProvider struct {
	fsys           fs.FS
	dir            string
	migrationTable string
	dbDriver       string // "sqlite" or "postgres"
}

// NewFileProvider creates a new file-based migration provider reading dir
// on disk.
func NewFileProvider(dir string, migrationTable string) *FileProvider {
	return NewFSProvider(os.DirFS(dir), ".", migrationTable)
}

// NewFileProviderWithDriver creates a new file-based migration provider with specific driver
func NewFileProviderWithDriver(dir string, migrationTable string, dbDriver string) *FileProvider {
	fp := NewFileProvider(dir, migrationTable)
	fp.dbDriver = dbDriver
	return fp
}

// NewFSProvider creates a migration provider reading dir inside fsys, for
// migrations shipped with go:embed.
func NewFSProvider(fsys fs.FS, dir string, migrationTable string) *FileProvider {
	if migrationTable == "" {
		migrationTable = "schema_migrations"
	}
	return &FileProvider{
		fsys:           fsys,
		dir:            dir,
		migrationTable: migrationTable,
		dbDriver:       "sqlite",
	}
}

// GetMigrations loads all migrations from the filesystem
func (fp *FileProvider) GetMigrations() ([]Migration, error) {
	migrationFiles := make(map[int]*Migration)

	err := fs.WalkDir(fp.fsys, fp.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		matches := migrationFile.FindStringSubmatch(d.Name())
		if matches == nil {
			return nil
		}
		version, err := strconv.Atoi(matches[1])
		if err != nil {
			return fmt.Errorf("invalid version number in file %s: %w", d.Name(), err)
		}

		content, err := fs.ReadFile(fp.fsys, path)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", path, err)
		}

		m := migrationFiles[version]
		if m == nil {
			m = &Migration{Version: version, Name: strings.ReplaceAll(matches[2], "_", " ")}
			migrationFiles[version] = m
		}
		if matches[3] == "up" {
			m.Up = string(content)
		} else {
			m.Down = string(content)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read migration directory %s: %w", fp.dir, err)
	}

	migrations := make([]Migration, 0, len(migrationFiles))
	for _, migration := range migrationFiles {
		migrations = append(migrations, *migration)
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// CreateMigrationTable creates the migration tracking table
func (fp *FileProvider) CreateMigrationTable(ctx context.Context, db DB) error {
	stamp := "DATETIME"
	if fp.dbDriver == "postgres" {
		stamp = "TIMESTAMP"
	}
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			applied_at %s DEFAULT CURRENT_TIMESTAMP
		)
	`, fp.migrationTable, stamp)

	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}
	return nil
}

// GetCurrentVersion returns the highest applied migration version
func (fp *FileProvider) GetCurrentVersion(ctx context.Context, db DB) (int, error) {
	query := fmt.Sprintf("SELECT COALESCE(MAX(version), 0) FROM %s", fp.migrationTable)

	var version int
	if err := db.QueryRowContext(ctx, query).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}

// SetVersion records version as the current schema version. Rolling back
// removes the records above it.
func (fp *FileProvider) SetVersion(ctx context.Context, db DB, version int) error {
	placeholder := "?"
	if fp.dbDriver == "postgres" {
		placeholder = "$1"
	}

	del := fmt.Sprintf("DELETE FROM %s WHERE version > %s", fp.migrationTable, placeholder)
	if _, err := db.ExecContext(ctx, del, version); err != nil {
		return fmt.Errorf("failed to set version: %w", err)
	}
	if version == 0 {
		return nil
	}

	var query string
	if fp.dbDriver == "postgres" {
		query = fmt.Sprintf(`
			INSERT INTO %s (version, applied_at)
			VALUES ($1, CURRENT_TIMESTAMP)
			ON CONFLICT (version) DO UPDATE SET applied_at = CURRENT_TIMESTAMP
		`, fp.migrationTable)
	} else {
		query = fmt.Sprintf(`
			INSERT OR REPLACE INTO %s (version, applied_at)
			VALUES (?, CURRENT_TIMESTAMP)
		`, fp.migrationTable)
	}
	if _, err := db.ExecContext(ctx, query, version); err != nil {
		return fmt.Errorf("failed to set version: %w", err)
	}
	return nil
}
