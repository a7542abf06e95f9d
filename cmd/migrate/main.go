package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver, registered as "pgx"
	_ "modernc.org/sqlite"             // SQLite driver

	"github.com/chrissnell/vbet/internal/log"
	"github.com/chrissnell/vbet/pkg/config"
	"github.com/chrissnell/vbet/pkg/migrate"
)

func main() {
	var (
		dbDriver       = flag.String("driver", "sqlite", "Database driver (sqlite, pgx)")
		dbDSN          = flag.String("dsn", "", "Database connection string")
		migrationDir   = flag.String("dir", "", "Migration directory (default: the built-in scoring schema)")
		migrationTable = flag.String("table", config.MigrationTable, "Migration table name")
		command        = flag.String("command", "up", "Migration command: up, down, to, version, status")
		targetVersion  = flag.Int("target", migrate.Latest, "Target version for down/to/status commands")
		debug          = flag.Bool("debug", false, "Turn on debugging output")
		helpFlag       = flag.Bool("help", false, "Show help")
	)

	flag.Parse()

	if *helpFlag {
		showHelp()
		return
	}

	if *dbDSN == "" {
		fmt.Fprintf(os.Stderr, "Error: -dsn flag is required\n")
		showHelp()
		os.Exit(1)
	}

	if err := log.Init(*debug); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	provider, err := newProvider(*dbDriver, *migrationDir, *migrationTable)
	if err != nil {
		log.Fatalf("%v", err)
	}

	db, err := sql.Open(*dbDriver, *dbDSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	migrator := migrate.NewMigrator(db, provider)
	migrator.SetLogger(log.Named("migrate"))
	ctx := context.Background()

	switch *command {
	case "up":
		err = migrator.Up(ctx)
	case "down", "to":
		if *targetVersion < 0 {
			fmt.Fprintf(os.Stderr, "Error: -target flag is required for %s command\n", *command)
			os.Exit(1)
		}
		if *command == "down" {
			err = migrator.Down(ctx, *targetVersion)
		} else {
			err = migrator.To(ctx, *targetVersion)
		}
	case "version":
		version, err := migrator.Version(ctx)
		if err != nil {
			log.Fatalf("Failed to get current version: %v", err)
		}
		fmt.Printf("Current version: %d\n", version)
		return
	case "status":
		err = showStatus(ctx, migrator, *targetVersion)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", *command)
		showHelp()
		os.Exit(1)
	}

	if err != nil {
		log.Fatalf("Migration command failed: %v", err)
	}

	fmt.Println("Migration completed successfully")
}

// newProvider picks the migration source. The built-in scoring schema is
// SQLite only; other databases need an explicit -dir.
func newProvider(driver, dir, table string) (*migrate.FileProvider, error) {
	switch driver {
	case "sqlite":
		if dir == "" {
			return config.Migrations(), nil
		}
		return migrate.NewFileProvider(dir, table), nil
	case "pgx":
		if dir == "" {
			return nil, fmt.Errorf("the pgx driver needs a -dir of PostgreSQL migrations")
		}
		return migrate.NewFileProviderWithDriver(dir, table, "postgres"), nil
	}
	return nil, fmt.Errorf("unsupported driver %q: use sqlite or pgx", driver)
}

// showStatus prints the current version and the steps that would take the
// database to target (the newest version by default) without running them.
func showStatus(ctx context.Context, migrator *migrate.Migrator, target int) error {
	currentVersion, err := migrator.Version(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	steps, err := migrator.Plan(ctx, target)
	if err != nil {
		return fmt.Errorf("failed to plan migrations: %w", err)
	}

	fmt.Printf("Current version: %d\n", currentVersion)
	fmt.Printf("Planned steps: %d\n", len(steps))

	if len(steps) > 0 {
		fmt.Println("\nPlan:")
		for _, s := range steps {
			fmt.Printf("  %-4s %d: %s\n", s.Direction(), s.Version, s.Name)
		}
	}

	return nil
}

func showHelp() {
	fmt.Println("Database Migration Tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  migrate [flags]")
	fmt.Println()
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  up                 Apply all pending migrations")
	fmt.Println("  down               Roll back to target version")
	fmt.Println("  to                 Migrate to specific version (up or down)")
	fmt.Println("  version            Show current migration version")
	fmt.Println("  status             Show the steps up to -target (default: newest)")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  migrate -dsn vbet.db -command up")
	fmt.Println("  migrate -dsn vbet.db -command down -target 0")
	fmt.Println("  migrate -dsn vbet.db -command status")
	fmt.Println("  migrate -driver pgx -dsn postgres://localhost/vbet -dir migrations/results")
}
