package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chrissnell/vbet/internal/app"
	"github.com/chrissnell/vbet/internal/log"
	"github.com/chrissnell/vbet/pkg/config"
)

var (
	runJob      string
	validateJob string
	serveJob    string
	listenAddr  string
	serveDir    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Score, classify and summarize the grids named in a job file",
	Long: `Runs one job. Products are written to a new directory named after the
run id below the job's output-dir:

  composite, input_<name>, threshold_<cutoff>   score grids and masks
  valley_bottom, classes, blockers               connectivity grids
  score.csv, class.csv, *_window.csv             per-segment summaries
  summary.json                                   the run manifest`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := config.LoadJob(runJob)
		if err != nil {
			log.Errorf("Failed to load job: %v", err)
			return err
		}
		a, closeConfig, err := newApp()
		if err != nil {
			log.Errorf("Failed to load configuration: %v", err)
			return err
		}
		defer closeConfig()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		m, err := a.Run(ctx, job)
		if err != nil {
			log.Errorf("Run failed: %v", err)
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), m.ID)
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the scoring configuration and, optionally, a job file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, closeConfig, err := newApp()
		if err != nil {
			return err
		}
		defer closeConfig()

		lib, err := a.Library()
		if err != nil {
			log.Errorf("Invalid configuration: %v", err)
			return err
		}
		out := cmd.OutOrStdout()
		for _, name := range lib.ScenarioNames() {
			fmt.Fprintf(out, "scenario %s: ok\n", name)
		}

		if validateJob == "" {
			return nil
		}
		job, err := config.LoadJob(validateJob)
		if err != nil {
			log.Errorf("Invalid job: %v", err)
			return err
		}
		if _, err := lib.Scenario(job.Scenario); err != nil {
			log.Errorf("Invalid job: %v", err)
			return err
		}
		for name, path := range job.Inputs {
			if _, err := os.Stat(path); err != nil {
				log.Errorf("Invalid job: input %s: %v", name, err)
				return err
			}
		}
		fmt.Fprintf(out, "job %s: ok\n", validateJob)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve completed runs over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, addr := serveDir, listenAddr
		if serveJob != "" {
			job, err := config.LoadJob(serveJob)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("dir") {
				dir = job.OutputDir
			}
			if job.Report != nil && job.Report.ListenAddr != "" && !cmd.Flags().Changed("listen") {
				addr = job.Report.ListenAddr
			}
		}

		return app.New(nil, log.GetSugaredLogger()).Serve(context.Background(), dir, addr)
	},
}

func init() {
	runCmd.Flags().StringVar(&runJob, "job", "job.yaml", "Path to the job file")
	validateCmd.Flags().StringVar(&validateJob, "job", "", "Path to a job file to check as well")
	serveCmd.Flags().StringVar(&serveJob, "job", "", "Take the run directory and listen address from a job file")
	serveCmd.Flags().StringVar(&listenAddr, "listen", ":8080", "Address to listen on")
	serveCmd.Flags().StringVar(&serveDir, "dir", config.DefaultOutputDir, "Directory holding run directories")
}
