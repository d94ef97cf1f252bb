package mcp

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"gasnotifier/internal/config"
	"gasnotifier/internal/gasdata"
	"gasnotifier/internal/report"
)

type RenderReportTool struct {
	report config.ReportConfig
}

func (t *RenderReportTool) Name() string { return "render-report" }
func (t *RenderReportTool) Description() string {
	return `Render the consumption report message without sending it.

Pass data (rows with data_leitura, apartamento, leitura_atual, consumo_m3,
calculo, valor_final_rs) and target_date, or json_path to a saved
{target_date, data} file. With neither, the configured report file is used.`
}
func (t *RenderReportTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"target_date": map[string]interface{}{
				"type":        "string",
				"description": "Label shown in the header and footer",
			},
			"data": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "object"},
				"description": "Reading rows",
			},
			"json_path": map[string]interface{}{
				"type":        "string",
				"description": "Path to a {target_date, data} JSON file",
			},
		},
	}
}
func (t *RenderReportTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	records, err := getRecordsArg(args, "data")
	if err != nil {
		return nil, err
	}

	label := getStringArg(args, "target_date")
	var rows []gasdata.Reading
	if records != nil {
		rows = gasdata.FromRecords(records)
	} else {
		path := getStringArg(args, "json_path")
		if path == "" {
			path = t.report.JSONPath
		}
		batch, err := gasdata.LoadBatchFile(path)
		if err != nil {
			return nil, err
		}
		rows = batch.Data
		if label == "" {
			label = batch.TargetDate
		}
	}
	if len(rows) == 0 {
		return nil, gasdata.ErrNoData
	}

	msg, err := report.Render(rows, label)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"message":        msg,
		"data_count":     len(rows),
		"message_length": len(msg),
	}, nil
}

type LoadSpreadsheetTool struct {
	report config.ReportConfig
	logger *zap.Logger
}

func (t *LoadSpreadsheetTool) Name() string { return "load-spreadsheet" }
func (t *LoadSpreadsheetTool) Description() string {
	return `Read gas readings from a local .xlsx workbook, optionally for one month
("03/2025" or "3" for the configured year). Returns {target_date, data}.`
}
func (t *LoadSpreadsheetTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Workbook path",
			},
			"month": map[string]interface{}{
				"type":        "string",
				"description": "Month filter, MM/YYYY or M",
			},
			"sheet": map[string]interface{}{
				"type":        "string",
				"description": "Sheet name (defaults to report.sheet)",
			},
		},
		"required": []string{"path"},
	}
}
func (t *LoadSpreadsheetTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	return loadWorkbookArg(args, t.report, getStringArg(args, "month"), t.logger)
}

type AvailableMonthsTool struct {
	report config.ReportConfig
	logger *zap.Logger
}

func (t *AvailableMonthsTool) Name() string { return "available-months" }
func (t *AvailableMonthsTool) Description() string {
	return "List the months (MM/YYYY, oldest first) that have readings in a local .xlsx workbook."
}
func (t *AvailableMonthsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Workbook path",
			},
			"sheet": map[string]interface{}{
				"type":        "string",
				"description": "Sheet name (defaults to report.sheet)",
			},
		},
		"required": []string{"path"},
	}
}
func (t *AvailableMonthsTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	batch, err := loadWorkbookArg(args, t.report, "", t.logger)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"available_months": gasdata.AvailableMonths(batch.Data),
		"total_records":    len(batch.Data),
	}, nil
}

func loadWorkbookArg(args map[string]interface{}, rc config.ReportConfig, month string, logger *zap.Logger) (gasdata.Batch, error) {
	path, err := requireString(args, "path")
	if err != nil {
		return gasdata.Batch{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return gasdata.Batch{}, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := getStringArg(args, "sheet")
	if sheet == "" {
		sheet = rc.Sheet
	}
	return gasdata.LoadWorkbook(f, gasdata.LoadOptions{
		Sheet:       sheet,
		Month:       month,
		DefaultYear: rc.Year(time.Now()),
		Logger:      logger,
	})
}
