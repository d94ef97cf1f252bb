package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gasnotifier/internal/config"
	"gasnotifier/internal/gasdata"
	"gasnotifier/internal/report"
)

// batchFlags select where readings come from.
type batchFlags struct {
	xlsx  string
	json  string
	sheet string
	month string
}

func (b *batchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&b.xlsx, "xlsx", "", "Read readings from this .xlsx workbook")
	cmd.Flags().StringVar(&b.json, "json", "", "Read a {target_date, data} batch file (default report.json_path)")
	cmd.Flags().StringVar(&b.sheet, "sheet", "", "Workbook sheet (default report.sheet)")
	cmd.Flags().StringVar(&b.month, "month", "", "Only readings of this month: MM/YYYY or M")
}

func (b *batchFlags) load(cfg config.Config, logger *zap.Logger) (gasdata.Batch, error) {
	if b.xlsx != "" {
		if !strings.EqualFold(filepath.Ext(b.xlsx), ".xlsx") {
			return gasdata.Batch{}, fmt.Errorf("%s: only .xlsx workbooks are supported", b.xlsx)
		}
		f, err := os.Open(b.xlsx)
		if err != nil {
			return gasdata.Batch{}, err
		}
		defer f.Close()
		sheet := b.sheet
		if sheet == "" {
			sheet = cfg.Report.Sheet
		}
		return gasdata.LoadWorkbook(f, gasdata.LoadOptions{
			Sheet:       sheet,
			Month:       b.month,
			DefaultYear: cfg.Report.Year(time.Now()),
			Logger:      logger,
		})
	}

	path := b.json
	if path == "" {
		path = cfg.Report.JSONPath
	}
	if path == "" {
		return gasdata.Batch{}, errors.New("no input: pass --xlsx or --json, or set report.json_path")
	}
	batch, err := gasdata.LoadBatchFile(path)
	if err != nil {
		return batch, err
	}
	if b.month != "" {
		batch.Data, err = gasdata.FilterMonth(batch.Data, b.month, cfg.Report.Year(time.Now()))
		if err != nil {
			return batch, err
		}
		if len(batch.Data) == 0 {
			return batch, gasdata.ErrNoData
		}
	}
	return batch, nil
}

func newRenderCmd(c *cli) *cobra.Command {
	var in batchFlags
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print the report message for a batch of readings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := c.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			batch, err := in.load(cfg, logger)
			if err != nil {
				return err
			}
			msg, err := report.Render(batch.Data, batch.TargetDate)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
	in.register(cmd)
	return cmd
}

func newMonthsCmd(c *cli) *cobra.Command {
	var in batchFlags
	cmd := &cobra.Command{
		Use:   "months",
		Short: "List the months that have readings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := c.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			in.month = ""
			batch, err := in.load(cfg, logger)
			if err != nil {
				return err
			}
			for _, m := range gasdata.AvailableMonths(batch.Data) {
				fmt.Fprintln(cmd.OutOrStdout(), m)
			}
			return nil
		},
	}
	in.register(cmd)
	return cmd
}
