package mcp

import (
	"context"
	"strings"

	"gasnotifier/internal/config"
	"gasnotifier/internal/delivery"
	"gasnotifier/internal/supervisor"
	"gasnotifier/internal/textnorm"
)

func accepted(job supervisor.Job) map[string]interface{} {
	return map[string]interface{}{
		"status":    "accepted",
		"job_id":    job.ID,
		"pid":       job.PID,
		"mode":      job.Mode,
		"recipient": job.Recipient,
	}
}

type StartDeliveryTool struct {
	jobs Jobs
}

func (t *StartDeliveryTool) Name() string { return "start-delivery" }
func (t *StartDeliveryTool) Description() string {
	return `Deliver a message with the greeting script: greet, answer the bot menu, then send the message.

Runs in a separate worker process and returns at once with a job_id.
Poll delivery-status with that id to learn the outcome.

Non-ASCII characters are removed before sending; a message that is empty
afterwards is rejected.`
}
func (t *StartDeliveryTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"phone_number": map[string]interface{}{
				"type":        "string",
				"description": "Recipient phone number with country code; punctuation is ignored",
			},
			"message": map[string]interface{}{
				"type":        "string",
				"description": "Multi-line message body",
			},
		},
		"required": []string{"phone_number", "message"},
	}
}
func (t *StartDeliveryTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	phone, err := requireString(args, "phone_number")
	if err != nil {
		return nil, err
	}
	req, err := delivery.NewRequest(phone, getStringArg(args, "message"), delivery.ModeGreeting)
	if err != nil {
		return nil, err
	}
	job, err := t.jobs.Launch(ctx, req)
	if err != nil {
		return nil, err
	}
	return accepted(job), nil
}

type StartTestDeliveryTool struct {
	jobs     Jobs
	delivery config.DeliveryConfig
}

func (t *StartTestDeliveryTool) Name() string { return "start-test-delivery" }
func (t *StartTestDeliveryTool) Description() string {
	return `Send a plain test message without the greeting script.

Both arguments are optional: the configured default recipient and test
message are used when missing.`
}
func (t *StartTestDeliveryTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"phone_number": map[string]interface{}{
				"type":        "string",
				"description": "Recipient phone number (defaults to delivery.default_recipient)",
			},
			"message": map[string]interface{}{
				"type":        "string",
				"description": "Message body (defaults to delivery.test_message)",
			},
		},
	}
}
func (t *StartTestDeliveryTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	phone := getStringArg(args, "phone_number")
	if phone == "" {
		phone = t.delivery.DefaultRecipient
	}
	message := getStringArg(args, "message")
	if strings.TrimSpace(textnorm.ASCII(message)) == "" {
		message = t.delivery.TestMessage
	}
	req, err := delivery.NewRequest(phone, message, delivery.ModeTest)
	if err != nil {
		return nil, err
	}
	job, err := t.jobs.Launch(ctx, req)
	if err != nil {
		return nil, err
	}
	return accepted(job), nil
}

type DeliveryStatusTool struct {
	jobs Jobs
}

func (t *DeliveryStatusTool) Name() string { return "delivery-status" }
func (t *DeliveryStatusTool) Description() string {
	return `Report a delivery job: whether the worker still runs, its exit code, the
states it went through and, once finished, the outcome (delivered or the
failure kind and the state it failed in).`
}
func (t *DeliveryStatusTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"job_id": map[string]interface{}{
				"type":        "string",
				"description": "Job id returned by start-delivery or start-test-delivery",
			},
		},
		"required": []string{"job_id"},
	}
}
func (t *DeliveryStatusTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	id, err := requireString(args, "job_id")
	if err != nil {
		return nil, err
	}
	st, err := t.jobs.Status(id)
	if err != nil {
		return nil, err
	}
	return st, nil
}

type StopDeliveryTool struct {
	jobs Jobs
}

func (t *StopDeliveryTool) Name() string { return "stop-delivery" }
func (t *StopDeliveryTool) Description() string {
	return `Ask a running delivery to finish early. Only the final linger after the
last message is cut short; steps already under way complete normally.`
}
func (t *StopDeliveryTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"job_id": map[string]interface{}{
				"type":        "string",
				"description": "Job to stop",
			},
		},
		"required": []string{"job_id"},
	}
}
func (t *StopDeliveryTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	id, err := requireString(args, "job_id")
	if err != nil {
		return nil, err
	}
	if err := t.jobs.RequestStop(id); err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "stop_requested", "job_id": id}, nil
}

type ListDeliveriesTool struct {
	jobs Jobs
}

func (t *ListDeliveriesTool) Name() string { return "list-deliveries" }
func (t *ListDeliveriesTool) Description() string {
	return "List delivery jobs launched by this server, newest first."
}
func (t *ListDeliveriesTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum number of jobs to return (default 20)",
			},
		},
	}
}
func (t *ListDeliveriesTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	all := t.jobs.List()
	limit := getIntArg(args, "limit", 20)
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return map[string]interface{}{"deliveries": all, "count": len(all)}, nil
}
