package recorder

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderRotation(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRecorder(dir, 3)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, r.Start("job"))
		r.Log("state", "job", map[string]string{"state": "launching"})
		time.Sleep(10 * time.Millisecond) // distinct mod times
	}
	require.NoError(t, r.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestRecorderRoundTrip(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRecorder(dir, 0)
	require.NoError(t, err)

	r.Log("ignored", "job-1", nil) // before Start
	require.NoError(t, r.Start("job-1"))
	r.Log("state", "job-1", map[string]interface{}{"state": "launching"})
	r.Log("state", "job-1", map[string]interface{}{"state": "closed"})
	path := r.Path()
	require.NoError(t, r.Close())
	r.Log("ignored", "job-1", nil) // after Close

	found, ok := FindTrace(dir, "job-1")
	require.True(t, ok)
	assert.Equal(t, path, found)

	events, err := ReadTrace(found)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "state", events[0].Type)
	assert.Equal(t, "job-1", events[0].JobID)
	assert.Equal(t, "closed", events[1].Data.(map[string]interface{})["state"])
}

func TestReadTraceSkipsTruncatedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace_x_1.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"type":"state","job_id":"x","data":null}`+"\n"+`{"type":"sta`), 0644))

	events, err := ReadTrace(path)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestFindTraceMissing(t *testing.T) {
	_, ok := FindTrace(t.TempDir(), "nope")
	assert.False(t, ok)
}
