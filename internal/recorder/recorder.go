// Package recorder writes one JSONL trace per delivery job, keeping only the
// newest traces on disk.
package recorder

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	DefaultMaxTraces = 20
	DefaultTraceDir  = "data/traces"
)

// Event is a single trace record.
type Event struct {
	Timestamp time.Time   `json:"ts"`
	Type      string      `json:"type"`
	JobID     string      `json:"job_id,omitempty"`
	Data      interface{} `json:"data"`
}

// Recorder manages the trace file of the running job.
type Recorder struct {
	mu        sync.Mutex
	file      *os.File
	encoder   *json.Encoder
	path      string
	basePath  string
	maxTraces int
}

// NewRecorder creates the trace directory if needed.
func NewRecorder(basePath string, maxTraces int) (*Recorder, error) {
	if basePath == "" {
		basePath = DefaultTraceDir
	}
	if maxTraces <= 0 {
		maxTraces = DefaultMaxTraces
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, err
	}
	return &Recorder{basePath: basePath, maxTraces: maxTraces}, nil
}

// Start opens a fresh trace for jobID, rotating old ones out first.
func (r *Recorder) Start(jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		_ = r.file.Close()
		r.file = nil
	}

	if err := r.rotate(); err != nil {
		return fmt.Errorf("rotate traces: %w", err)
	}

	filename := fmt.Sprintf("trace_%s_%d.jsonl", jobID, time.Now().UnixMilli())
	path := filepath.Join(r.basePath, filename)
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	r.file = f
	r.path = path
	r.encoder = json.NewEncoder(f)
	return nil
}

// Path is the current trace file, empty before Start.
func (r *Recorder) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

// Log appends an event. It is a no-op before Start or after Close.
func (r *Recorder) Log(eventType, jobID string, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.encoder == nil {
		return
	}
	_ = r.encoder.Encode(Event{
		Timestamp: time.Now(),
		Type:      eventType,
		JobID:     jobID,
		Data:      data,
	})
}

// rotate keeps the newest maxTraces-1 files to leave room for the new one.
func (r *Recorder) rotate() error {
	entries, err := os.ReadDir(r.basePath)
	if err != nil {
		return err
	}

	type trace struct {
		name string
		mod  time.Time
	}
	var traces []trace
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".jsonl" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		traces = append(traces, trace{e.Name(), info.ModTime()})
	}

	sort.Slice(traces, func(i, j int) bool {
		return traces[i].mod.After(traces[j].mod)
	})

	keep := r.maxTraces - 1
	for i := keep; i < len(traces); i++ {
		_ = os.Remove(filepath.Join(r.basePath, traces[i].name))
	}
	return nil
}

// Close finishes the current trace.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	r.encoder = nil
	return err
}

// FindTrace returns the newest trace of jobID under basePath.
func FindTrace(basePath, jobID string) (string, bool) {
	matches, err := filepath.Glob(filepath.Join(basePath, "trace_"+jobID+"_*.jsonl"))
	if err != nil || len(matches) == 0 {
		return "", false
	}
	sort.Strings(matches)
	return matches[len(matches)-1], true
}

// ReadTrace decodes a trace file. Truncated trailing lines are ignored.
func ReadTrace(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, sc.Err()
}
