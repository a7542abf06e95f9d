package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	_ "modernc.org/sqlite"

	"github.com/chrissnell/vbet/internal/log"
	"github.com/chrissnell/vbet/pkg/config"
)

func main() {
	var (
		yamlFile   = flag.String("yaml", "", "Path to YAML scoring configuration file (required)")
		sqliteFile = flag.String("sqlite", "", "Path to SQLite database file (required)")
		force      = flag.Bool("force", false, "Overwrite existing SQLite database")
		dryRun     = flag.Bool("dry-run", false, "Validate and summarize without writing the database")
		debug      = flag.Bool("debug", false, "Turn on debugging output")
	)
	flag.Parse()

	if *yamlFile == "" || *sqliteFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -yaml <vbet.yaml> -sqlite <vbet.db>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := log.Init(*debug); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Check if SQLite file already exists
	if _, err := os.Stat(*sqliteFile); err == nil && !*force {
		fmt.Fprintf(os.Stderr, "Error: SQLite file already exists: %s\n", *sqliteFile)
		fmt.Fprintf(os.Stderr, "Use -force to overwrite or choose a different filename\n")
		os.Exit(1)
	}

	fmt.Printf("Converting YAML scoring configuration to SQLite...\n")
	fmt.Printf("  Source: %s\n", *yamlFile)
	fmt.Printf("  Target: %s\n", *sqliteFile)

	configData, err := config.NewYAMLProvider(*yamlFile).LoadConfig()
	if err != nil {
		log.Fatalf("Error loading YAML configuration: %v", err)
	}

	// Refuse to store a configuration that would fail at run time.
	lib, err := config.Build(configData)
	if err != nil {
		log.Fatalf("Invalid scoring configuration: %v", err)
	}

	printConfigSummary(configData, lib.ScenarioNames())

	if *dryRun {
		fmt.Println("DRY RUN complete - no database created")
		return
	}

	if *force {
		if err := os.Remove(*sqliteFile); err != nil && !os.IsNotExist(err) {
			log.Fatalf("Error removing existing SQLite file: %v", err)
		}
	}

	fmt.Printf("Creating SQLite database...\n")
	if err := config.CreateSQLiteDatabase(*sqliteFile, log.Named("migrate")); err != nil {
		log.Fatalf("Error creating SQLite database: %v", err)
	}

	fmt.Printf("Loading configuration into SQLite database...\n")
	if err := loadConfigIntoSQLite(*sqliteFile, configData); err != nil {
		log.Fatalf("Error loading configuration into SQLite: %v", err)
	}

	fmt.Printf("Conversion completed successfully!\n")
	fmt.Printf("You can now use the SQLite backend with: --config-backend sqlite --config %s\n", *sqliteFile)
}

func loadConfigIntoSQLite(dbPath string, configData *config.ConfigData) error {
	sqliteProvider, err := config.NewSQLiteProvider(dbPath)
	if err != nil {
		return fmt.Errorf("failed to create SQLite provider: %w", err)
	}
	defer sqliteProvider.Close()

	if err := sqliteProvider.SaveConfig(configData); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}
	return nil
}

func printConfigSummary(configData *config.ConfigData, scenarios []string) {
	fmt.Println("\nConfiguration Summary:")
	fmt.Printf("Inputs (%d):\n", len(configData.Inputs))
	for _, in := range configData.Inputs {
		fmt.Printf("  - %s (weight %g)\n", in.Name, in.DefaultWeight)
	}

	types := make(map[string]int)
	for _, t := range configData.Transforms {
		types[t.Type]++
	}
	kinds := make([]string, 0, len(types))
	for k := range types {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	fmt.Printf("\nTransforms (%d):\n", len(configData.Transforms))
	for _, k := range kinds {
		fmt.Printf("  - %s: %d\n", k, types[k])
	}

	fmt.Printf("\nZones: %d, fixed functions: %d\n", len(configData.Zones), len(configData.Functions))

	fmt.Printf("\nScenarios (%d):\n", len(scenarios))
	for _, name := range scenarios {
		fmt.Printf("  - %s\n", name)
	}
	fmt.Println()
}
