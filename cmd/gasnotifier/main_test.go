package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gasnotifier/internal/config"
	"gasnotifier/internal/delivery"
	"gasnotifier/internal/supervisor"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--no-workspace"}, args...))
	err := root.Execute()
	return out.String(), err
}

func writeBatch(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "output.json")
	doc := `{"target_date":"10/03/2025","data":[
		{"data_leitura":"10/02/2025","apartamento":"101","valor_final_rs":"45,00"},
		{"data_leitura":"10/03/2025","apartamento":"102","valor_final_rs":1234.5}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func TestRenderCommand(t *testing.T) {
	out, err := runCLI(t, "render", "--json", writeBatch(t))
	require.NoError(t, err)
	assert.Contains(t, out, "*Consumo de gas e valor a pagar 10/03/2025*")
	assert.Contains(t, out, "Valor final: *R$ 1.234,50*")
	assert.Contains(t, out, "_Total de apartamentos: 2_")
}

func TestRenderCommandMonthFilter(t *testing.T) {
	out, err := runCLI(t, "render", "--json", writeBatch(t), "--month", "02/2025")
	require.NoError(t, err)
	assert.Contains(t, out, "_Total de apartamentos: 1_")
	assert.NotContains(t, out, "*102*")
}

func TestRenderCommandRejectsXLS(t *testing.T) {
	_, err := runCLI(t, "render", "--xlsx", "old.xls")
	assert.ErrorContains(t, err, "only .xlsx")
}

func TestMonthsCommand(t *testing.T) {
	out, err := runCLI(t, "months", "--json", writeBatch(t))
	require.NoError(t, err)
	assert.Equal(t, "02/2025\n03/2025\n", out)
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()
	out, err := runCLI(t, "init", dir)
	require.NoError(t, err)
	assert.Contains(t, out, config.WorkspaceDirName)
	assert.FileExists(t, filepath.Join(dir, config.WorkspaceDirName, config.WorkspaceConfigFile))

	_, err = runCLI(t, "init", dir)
	assert.Error(t, err)
}

func TestWorkerArgsForwardLayering(t *testing.T) {
	c := &cli{noWorkspace: true, workspaceDir: "/srv/ws", envFile: "prod.env"}
	assert.Equal(t, []string{"--no-workspace", "--workspace-dir", "/srv/ws", "--env-file", "prod.env"}, c.workerArgs())
	assert.Empty(t, (&cli{}).workerArgs())
}

func TestWorkerCommandWritesFailedOutcomeForBadRequest(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.yaml")
	cfgYAML := "supervisor:\n  jobs_dir: " + filepath.Join(tmp, "jobs") + "\n  trace_dir: " + filepath.Join(tmp, "traces") + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgYAML), 0o644))

	jobDir := filepath.Join(tmp, "jobs", "job-1")
	require.NoError(t, os.MkdirAll(jobDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(jobDir, supervisor.RequestFile), []byte(`{"recipient":"","body":"x","mode":"test"}`), 0o644))

	ignored := 0
	restore := ignoreInterrupt
	ignoreInterrupt = func() { ignored++ }
	t.Cleanup(func() { ignoreInterrupt = restore })

	_, err := runCLI(t, "--config", cfgPath, "worker", "--job-dir", jobDir)
	require.Error(t, err)
	assert.Equal(t, 1, ignored, "worker must not react to SIGINT")

	raw, err := os.ReadFile(filepath.Join(jobDir, supervisor.OutcomeFile))
	require.NoError(t, err)
	var out delivery.Outcome
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, delivery.StatusFailed, out.Status)
	assert.Equal(t, delivery.CodeInternal, out.Code)

	traces, _ := filepath.Glob(filepath.Join(tmp, "traces", "trace_job-1_*.jsonl"))
	assert.Len(t, traces, 1)
}

func TestWorkerCommandRequiresJobDir(t *testing.T) {
	_, err := runCLI(t, "worker")
	assert.ErrorContains(t, err, "job-dir")
}
