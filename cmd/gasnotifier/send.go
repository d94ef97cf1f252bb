package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gasnotifier/internal/delivery"
	"gasnotifier/internal/report"
)

func newSendCmd(c *cli) *cobra.Command {
	var (
		in      batchFlags
		phone   string
		message string
		mode    string
		detach  bool
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Deliver a message or a rendered report and wait for the outcome",
		Long: `Deliver --message, or the report rendered from --xlsx/--json, to --phone.

The delivery runs in a worker process like the ones started by the HTTP API.
Interrupting the command asks the worker to stop and waits for it to exit.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := c.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			m, err := delivery.ParseMode(mode)
			if err != nil {
				return err
			}
			if phone == "" {
				phone = cfg.Delivery.DefaultRecipient
			}
			if message == "" {
				batch, err := in.load(cfg, logger)
				if err != nil {
					return err
				}
				if message, err = report.Render(batch.Data, batch.TargetDate); err != nil {
					return err
				}
			}
			req, err := delivery.NewRequest(phone, message, m)
			if err != nil {
				return err
			}

			sup := c.newSupervisor(cfg, logger, nil)
			job, err := sup.Launch(cmd.Context(), req)
			if err != nil {
				return err
			}
			logger.Info("delivery launched", zap.String("job_id", job.ID), zap.Int("pid", job.PID))
			if detach {
				return printJSON(cmd, job)
			}

			st, err := sup.Wait(cmd.Context(), job.ID)
			if errors.Is(err, context.Canceled) {
				_ = sup.RequestStop(job.ID)
				st, err = sup.Wait(context.Background(), job.ID)
			}
			if err != nil {
				return err
			}
			if err := printJSON(cmd, st); err != nil {
				return err
			}
			if st.Outcome == nil || !st.Outcome.Delivered() {
				return fmt.Errorf("job %s was not delivered", job.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&phone, "phone", "", "Recipient with country code (default delivery.default_recipient)")
	cmd.Flags().StringVar(&message, "message", "", "Message body; when empty the report is rendered")
	cmd.Flags().StringVar(&mode, "mode", string(delivery.ModeGreeting), "Delivery script: greeting or test")
	cmd.Flags().BoolVar(&detach, "detach", false, "Print the job and return without waiting")
	in.register(cmd)
	return cmd
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
