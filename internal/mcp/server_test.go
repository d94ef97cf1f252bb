package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/xuri/excelize/v2"

	"gasnotifier/internal/config"
	"gasnotifier/internal/delivery"
	"gasnotifier/internal/gasdata"
	"gasnotifier/internal/recorder"
	"gasnotifier/internal/supervisor"
)

type fakeJobs struct {
	launched []delivery.Request
	stopped  []string
}

func (f *fakeJobs) Launch(_ context.Context, req delivery.Request) (supervisor.Job, error) {
	f.launched = append(f.launched, req)
	return supervisor.Job{ID: fmt.Sprintf("job-%d", len(f.launched)), PID: 77, Mode: req.Mode}, nil
}

func (f *fakeJobs) RequestStop(id string) error {
	if id != "job-1" {
		return fmt.Errorf("%w: %s", supervisor.ErrUnknownJob, id)
	}
	f.stopped = append(f.stopped, id)
	return nil
}

func (f *fakeJobs) Status(id string) (supervisor.Status, error) {
	if id != "job-1" {
		return supervisor.Status{}, fmt.Errorf("%w: %s", supervisor.ErrUnknownJob, id)
	}
	return supervisor.Status{Job: supervisor.Job{ID: id}}, nil
}

func (f *fakeJobs) List() []supervisor.Status {
	out := make([]supervisor.Status, 30)
	for i := range out {
		out[i].ID = fmt.Sprintf("job-%d", i)
	}
	return out
}

func setupTestServerConfig(t *testing.T) config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.Name = "test-server"
	cfg.Delivery.DefaultRecipient = "+55 31 98829-2853"
	cfg.Report.DefaultYear = 2025
	cfg.Supervisor.TraceDir = t.TempDir()
	return cfg
}

func newTestServer(t *testing.T) (*Server, *fakeJobs) {
	t.Helper()
	jobs := &fakeJobs{}
	server, err := NewServer(setupTestServerConfig(t), jobs, nil)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return server, jobs
}

func TestNewServerRequiresJobs(t *testing.T) {
	if _, err := NewServer(config.DefaultConfig(), nil, nil); err == nil {
		t.Fatal("expected error without a supervisor")
	}
}

func TestServerToolRegistration(t *testing.T) {
	server, _ := newTestServer(t)

	expectedTools := []string{
		"start-delivery",
		"start-test-delivery",
		"delivery-status",
		"stop-delivery",
		"list-deliveries",
		"render-report",
		"load-spreadsheet",
		"available-months",
	}
	if len(server.tools) != len(expectedTools) {
		t.Errorf("expected %d tools, got %d", len(expectedTools), len(server.tools))
	}
	for _, toolName := range expectedTools {
		t.Run("tool_"+toolName, func(t *testing.T) {
			if _, exists := server.tools[toolName]; !exists {
				t.Errorf("expected tool %q to be registered", toolName)
			}
		})
	}
}

func TestToolInterface(t *testing.T) {
	server, _ := newTestServer(t)

	for name, tool := range server.tools {
		if tool.Name() != name {
			t.Errorf("tool registered as %q but Name() returns %q", name, tool.Name())
		}
		if tool.Description() == "" {
			t.Errorf("tool %q has empty description", name)
		}
		schema := tool.InputSchema()
		if schema["type"] != "object" {
			t.Errorf("tool %q schema type is not 'object': %v", name, schema["type"])
		}
		if _, err := json.Marshal(schema); err != nil {
			t.Errorf("tool %q schema does not marshal: %v", name, err)
		}
	}
}

func TestExecuteToolUnknown(t *testing.T) {
	server, _ := newTestServer(t)
	if _, err := server.ExecuteTool(context.Background(), "non-existent-tool", nil); err == nil {
		t.Error("expected error for non-existent tool")
	}
}

func TestStartDelivery(t *testing.T) {
	server, jobs := newTestServer(t)
	ctx := context.Background()

	result, err := server.ExecuteTool(ctx, "start-delivery", map[string]interface{}{
		"phone_number": "+55 31 90000-1111",
		"message":      "Relatório\nlinha 2",
	})
	if err != nil {
		t.Fatalf("start-delivery failed: %v", err)
	}
	payload := result.(map[string]interface{})
	if payload["status"] != "accepted" || payload["job_id"] != "job-1" {
		t.Errorf("unexpected payload: %v", payload)
	}
	if len(jobs.launched) != 1 {
		t.Fatalf("expected one launch, got %d", len(jobs.launched))
	}
	got := jobs.launched[0]
	if got.Mode != delivery.ModeGreeting || got.Body != "Relatorio\nlinha 2" || got.Recipient != "5531900001111" {
		t.Errorf("unexpected request: %+v", got)
	}

	if _, err := server.ExecuteTool(ctx, "start-delivery", map[string]interface{}{"message": "x"}); err == nil {
		t.Error("expected error without phone_number")
	}
	if _, err := server.ExecuteTool(ctx, "start-delivery", map[string]interface{}{"phone_number": "1", "message": "😀"}); err == nil {
		t.Error("expected error for a message that is empty after cleaning")
	}
}

func TestStartTestDeliveryDefaults(t *testing.T) {
	server, jobs := newTestServer(t)

	if _, err := server.ExecuteTool(context.Background(), "start-test-delivery", map[string]interface{}{}); err != nil {
		t.Fatalf("start-test-delivery failed: %v", err)
	}
	got := jobs.launched[0]
	if got.Mode != delivery.ModeTest {
		t.Errorf("expected test mode, got %s", got.Mode)
	}
	if got.Recipient != "5531988292853" {
		t.Errorf("expected default recipient, got %s", got.Recipient)
	}
	if got.Body != config.DefaultConfig().Delivery.TestMessage {
		t.Errorf("expected default test message, got %q", got.Body)
	}
}

func TestDeliveryStatusAndStop(t *testing.T) {
	server, jobs := newTestServer(t)
	ctx := context.Background()

	if _, err := server.ExecuteTool(ctx, "delivery-status", map[string]interface{}{"job_id": "job-1"}); err != nil {
		t.Fatalf("delivery-status failed: %v", err)
	}
	if _, err := server.ExecuteTool(ctx, "delivery-status", map[string]interface{}{"job_id": "nope"}); err == nil {
		t.Error("expected error for unknown job")
	}
	if _, err := server.ExecuteTool(ctx, "delivery-status", map[string]interface{}{}); err == nil {
		t.Error("expected error without job_id")
	}

	if _, err := server.ExecuteTool(ctx, "stop-delivery", map[string]interface{}{"job_id": "job-1"}); err != nil {
		t.Fatalf("stop-delivery failed: %v", err)
	}
	if len(jobs.stopped) != 1 {
		t.Errorf("expected one stop request, got %v", jobs.stopped)
	}
}

func TestListDeliveriesLimit(t *testing.T) {
	server, _ := newTestServer(t)

	result, err := server.ExecuteTool(context.Background(), "list-deliveries", map[string]interface{}{"limit": float64(5)})
	if err != nil {
		t.Fatalf("list-deliveries failed: %v", err)
	}
	if count := result.(map[string]interface{})["count"]; count != 5 {
		t.Errorf("expected 5 jobs, got %v", count)
	}
}

func TestRenderReport(t *testing.T) {
	server, _ := newTestServer(t)

	result, err := server.ExecuteTool(context.Background(), "render-report", map[string]interface{}{
		"target_date": "03/2025",
		"data": []interface{}{
			map[string]interface{}{"apartamento": "101", "leitura_atual": 10.5, "consumo_m3": 2.0, "valor_final_rs": "R$ 1.234,50"},
		},
	})
	if err != nil {
		t.Fatalf("render-report failed: %v", err)
	}
	msg := result.(map[string]interface{})["message"].(string)
	if !strings.Contains(msg, "Valor final: *R$ 1.234,50*") {
		t.Errorf("unexpected message:\n%s", msg)
	}
	if !strings.Contains(msg, "_Total de apartamentos: 1_") {
		t.Errorf("missing footer:\n%s", msg)
	}
}

func TestRenderReportFromFile(t *testing.T) {
	server, _ := newTestServer(t)
	path := filepath.Join(t.TempDir(), "output.json")
	doc := `{"target_date":"10/03/2025","data":[{"apartamento":"202","valor_final_rs":10}]}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := server.ExecuteTool(context.Background(), "render-report", map[string]interface{}{"json_path": path})
	if err != nil {
		t.Fatalf("render-report failed: %v", err)
	}
	msg := result.(map[string]interface{})["message"].(string)
	if !strings.Contains(msg, "valor a pagar 10/03/2025") {
		t.Errorf("expected label from file:\n%s", msg)
	}
}

func TestRenderReportRejectsMissingApartment(t *testing.T) {
	server, _ := newTestServer(t)

	_, err := server.ExecuteTool(context.Background(), "render-report", map[string]interface{}{
		"target_date": "x",
		"data":        []interface{}{map[string]interface{}{"leitura_atual": 1}},
	})
	if err == nil || !strings.Contains(err.Error(), "missing apartamento") {
		t.Errorf("expected validation error, got %v", err)
	}

	_, err = server.ExecuteTool(context.Background(), "render-report", map[string]interface{}{"data": "nope"})
	if err == nil {
		t.Error("expected error for non-array data")
	}
}

func writeWorkbook(t *testing.T) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	if _, err := f.NewSheet("Gas_2025"); err != nil {
		t.Fatal(err)
	}
	rows := [][]interface{}{
		{"Data Leitura", "Apartamento", "Leitura atual", "Consumo(m3)", "Calculo", "Valor final(R$)"},
		{"05/01/2025", "101", 10, 1, 1, 10},
		{"05/02/2025", "101", 12, 2, 1, 20},
		{"05/02/2025", "102", 7, 1, 1, 10},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Gas_2025", cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	path := filepath.Join(t.TempDir(), "consumo.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSpreadsheetTools(t *testing.T) {
	server, _ := newTestServer(t)
	path := writeWorkbook(t)
	ctx := context.Background()

	result, err := server.ExecuteTool(ctx, "available-months", map[string]interface{}{"path": path})
	if err != nil {
		t.Fatalf("available-months failed: %v", err)
	}
	months := result.(map[string]interface{})["available_months"].([]string)
	if strings.Join(months, ",") != "01/2025,02/2025" {
		t.Errorf("unexpected months: %v", months)
	}

	result, err = server.ExecuteTool(ctx, "load-spreadsheet", map[string]interface{}{"path": path, "month": "2"})
	if err != nil {
		t.Fatalf("load-spreadsheet failed: %v", err)
	}
	batch := result.(gasdata.Batch)
	if len(batch.Data) != 2 || batch.TargetDate != "05/02/2025" {
		t.Errorf("unexpected batch: %+v", batch)
	}
}

func TestWrapToolReportsErrors(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.wrapTool(server.tools["delivery-status"])

	res, err := handler(context.Background(), mcp.CallToolRequest{})
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if !res.IsError {
		t.Error("expected IsError for missing job_id")
	}
}

func TestJobTraceResource(t *testing.T) {
	server, _ := newTestServer(t)
	rec, err := recorder.NewRecorder(server.cfg.Supervisor.TraceDir, 5)
	if err != nil {
		t.Fatal(err)
	}
	if err := rec.Start("job-9"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		rec.Log("state", "job-9", map[string]interface{}{"seq": i})
	}
	if err := rec.Close(); err != nil {
		t.Fatal(err)
	}

	req := mcp.ReadResourceRequest{}
	req.Params.URI = "gasnotifier://job/job-9/trace?limit=2"
	req.Params.Arguments = map[string]any{"jobId": "job-9", "limit": "2"}
	contents, err := server.handleJobTraceResource(context.Background(), req)
	if err != nil {
		t.Fatalf("trace resource failed: %v", err)
	}
	text := contents[0].(mcp.TextResourceContents).Text
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		t.Fatal(err)
	}
	if payload["count"].(float64) != 2 {
		t.Errorf("expected 2 events, got %v", payload["count"])
	}

	req.Params.Arguments = map[string]any{"jobId": "missing"}
	if _, err := server.handleJobTraceResource(context.Background(), req); err == nil {
		t.Error("expected error for a job without trace")
	}
}

func TestMarshalToolPayloadFallback(t *testing.T) {
	payload := marshalToolPayload("test-tool", map[string]interface{}{
		"bad": math.NaN(),
	})

	var decoded map[string]interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("payload should always be valid JSON: %v", err)
	}
	if success, _ := decoded["success"].(bool); success {
		t.Fatalf("expected success=false fallback payload, got %v", decoded)
	}
	if decoded["error"] == nil {
		t.Fatalf("expected fallback payload to include error, got %v", decoded)
	}
}
