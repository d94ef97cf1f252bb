package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"gasnotifier/internal/delivery"
	"gasnotifier/internal/logging"
	"gasnotifier/internal/mangle"
	"gasnotifier/internal/recorder"
	"gasnotifier/internal/supervisor"
)

// ignoreInterrupt keeps a terminal interrupt aimed at the launching command
// from cutting a delivery short. Workers stop through their stop file or
// SIGTERM.
var ignoreInterrupt = func() { signal.Ignore(os.Interrupt) }

// newWorkerCmd is the entry point of the processes spawned by the supervisor.
func newWorkerCmd(c *cli) *cobra.Command {
	var jobDir string
	cmd := &cobra.Command{
		Use:    "worker",
		Short:  "Run one delivery job (spawned by the supervisor)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ignoreInterrupt()

			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			// stderr is the job's worker.log
			cfg.Server.LogFile = ""
			logger, err := logging.New(cfg.Server)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			rec, err := recorder.NewRecorder(cfg.Supervisor.TraceDir, cfg.Supervisor.GetMaxTraces())
			if err != nil {
				return fmt.Errorf("trace recorder: %w", err)
			}
			if err := rec.Start(filepath.Base(jobDir)); err != nil {
				return fmt.Errorf("trace recorder: %w", err)
			}
			defer rec.Close()

			journal, err := mangle.NewEngine(cfg.Mangle)
			if err != nil {
				return fmt.Errorf("delivery journal: %w", err)
			}

			seq := delivery.NewFromConfig(cfg, logger,
				delivery.WithTracer(rec),
				delivery.WithJournal(journal),
			)
			return supervisor.RunWorker(cmd.Context(), jobDir, seq, logger)
		},
	}
	cmd.Flags().StringVar(&jobDir, "job-dir", "", "Job directory holding request.json")
	_ = cmd.MarkFlagRequired("job-dir")
	return cmd
}
