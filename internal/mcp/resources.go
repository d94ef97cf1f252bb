package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"gasnotifier/internal/recorder"
)

const (
	resourceMIMEJSON = "application/json"
)

func (s *Server) registerAllResources() {
	if s == nil || s.mcpServer == nil {
		return
	}

	s.mcpServer.AddResource(
		mcp.NewResource(
			"gasnotifier://about",
			"Gas notifier About",
			mcp.WithMIMEType(resourceMIMEJSON),
			mcp.WithResourceDescription("Server info and usage notes."),
		),
		s.handleAboutResource,
	)

	s.mcpServer.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"gasnotifier://job/{jobId}/trace{?limit}",
			"Delivery Trace",
			mcp.WithTemplateMIMEType(resourceMIMEJSON),
			mcp.WithTemplateDescription("The last trace events (state changes, commits, failures) recorded by a delivery worker."),
		),
		s.handleJobTraceResource,
	)
}

func (s *Server) handleAboutResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	payload := map[string]interface{}{
		"name":    s.cfg.Server.Name,
		"version": s.cfg.Server.Version,
		"notes": []string{
			"Deliveries run in worker processes; tools return a job_id at once.",
			"Use delivery-status to read the outcome and gasnotifier://job/{jobId}/trace for the step history.",
			"Message bodies are reduced to ASCII before sending.",
		},
		"timestamp_ms": time.Now().UnixMilli(),
	}
	return jsonContents(request.Params.URI, payload)
}

func (s *Server) handleJobTraceResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	jobID := argString(request.Params.Arguments["jobId"])
	if jobID == "" {
		return nil, fmt.Errorf("missing jobId")
	}
	limit := argInt(request.Params.Arguments["limit"])
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	path, ok := recorder.FindTrace(s.cfg.Supervisor.TraceDir, jobID)
	if !ok {
		return nil, fmt.Errorf("no trace for job %s", jobID)
	}
	events, err := recorder.ReadTrace(path)
	if err != nil {
		return nil, err
	}
	if len(events) > limit {
		events = events[len(events)-limit:]
	}

	return jsonContents(request.Params.URI, map[string]interface{}{
		"job_id": jobID,
		"limit":  limit,
		"count":  len(events),
		"events": events,
	})
}

func jsonContents(uri string, payload interface{}) ([]mcp.ResourceContents, error) {
	text, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: resourceMIMEJSON,
			Text:     string(text),
		},
	}, nil
}

func argString(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case []string:
		if len(value) == 0 {
			return ""
		}
		return value[0]
	default:
		return fmt.Sprintf("%v", value)
	}
}

func argInt(v any) int {
	var n int
	if _, err := fmt.Sscanf(argString(v), "%d", &n); err != nil {
		return 0
	}
	return n
}
