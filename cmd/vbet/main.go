package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/chrissnell/vbet/internal/app"
	"github.com/chrissnell/vbet/internal/log"
	"github.com/chrissnell/vbet/pkg/config"
)

const version = "1.0-" + runtime.GOOS + "/" + runtime.GOARCH

var (
	// Global flags
	cfgFile    string
	cfgBackend string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "vbet",
	Short: "Valley-bottom evidence scoring and floodplain connectivity",
	Long: `vbet scores raster evidence layers into a valley-bottom likelihood grid,
classifies how each valley cell drains to the active channel, and summarizes
both per stream segment.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := log.Init(debug); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.Sync()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version and exit",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "vbet %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "vbet.yaml",
		"Scoring configuration source: a YAML file or, with --config-backend sqlite, a SQLite database")
	rootCmd.PersistentFlags().StringVar(&cfgBackend, "config-backend", "yaml",
		"Configuration backend type: 'yaml' or 'sqlite'")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Turn on debugging output")

	rootCmd.AddCommand(runCmd, validateCmd, serveCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp opens the configured scoring configuration and wraps it in an App.
func newApp() (*app.App, func(), error) {
	filename, _ := filepath.Abs(cfgFile)
	provider, err := config.NewProvider(cfgBackend, filename)
	if err != nil {
		return nil, nil, fmt.Errorf("error opening configuration: %w", err)
	}
	return app.New(provider, log.GetSugaredLogger()), func() { provider.Close() }, nil
}
