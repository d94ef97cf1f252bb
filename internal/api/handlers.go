package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"gasnotifier/internal/delivery"
	"gasnotifier/internal/gasdata"
	"gasnotifier/internal/logging"
	"gasnotifier/internal/report"
	"gasnotifier/internal/supervisor"
	"gasnotifier/internal/textnorm"
)

var errNotXLSX = errors.New("only Excel files (.xlsx) are allowed")

type sendRequest struct {
	PhoneNumber string `json:"phone_number"`
	Message     string `json:"message"`
}

type sendReportRequest struct {
	PhoneNumber string `json:"phone_number"`
}

// accepted is the 202 body of every delivery endpoint.
type accepted struct {
	Status        string        `json:"status"`
	JobID         string        `json:"job_id"`
	PID           int           `json:"pid"`
	Mode          delivery.Mode `json:"mode"`
	TargetDate    string        `json:"target_date,omitempty"`
	DataCount     int           `json:"data_count,omitempty"`
	MessageLength int           `json:"message_length,omitempty"`
}

func (s *Server) loadUpload(c echo.Context, month string) (gasdata.Batch, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return gasdata.Batch{}, fmt.Errorf("missing file: %w", err)
	}
	if !strings.EqualFold(filepath.Ext(fh.Filename), ".xlsx") {
		return gasdata.Batch{}, errNotXLSX
	}
	f, err := fh.Open()
	if err != nil {
		return gasdata.Batch{}, err
	}
	defer f.Close()

	return gasdata.LoadWorkbook(f, gasdata.LoadOptions{
		Sheet:       s.cfg.Report.Sheet,
		Month:       month,
		DefaultYear: s.cfg.Report.Year(s.now()),
		Logger:      s.logger,
	})
}

func (s *Server) uploadExcel(c echo.Context) error {
	batch, err := s.loadUpload(c, c.QueryParam("target_month"))
	if err != nil {
		return fail(c, http.StatusBadRequest, err)
	}
	return c.JSON(http.StatusOK, batch)
}

func (s *Server) availableMonths(c echo.Context) error {
	batch, err := s.loadUpload(c, "")
	if err != nil {
		return fail(c, http.StatusBadRequest, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":           "success",
		"available_months": gasdata.AvailableMonths(batch.Data),
		"total_records":    len(batch.Data),
	})
}

func (s *Server) formatMessage(c echo.Context) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return fail(c, http.StatusBadRequest, err)
	}
	label, rows, err := report.DecodePayload(raw)
	if err != nil {
		return fail(c, http.StatusBadRequest, err)
	}
	msg, err := report.Render(rows, label)
	if err != nil {
		return fail(c, http.StatusBadRequest, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":            "success",
		"formatted_message": msg,
		"data_count":        len(rows),
	})
}

func (s *Server) sendWhatsApp(c echo.Context) error {
	var body sendRequest
	if err := c.Bind(&body); err != nil {
		return fail(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
	}
	req, err := delivery.NewRequest(body.PhoneNumber, body.Message, delivery.ModeGreeting)
	if err != nil {
		if errors.Is(err, delivery.ErrEmptyBody) {
			err = errors.New("message is empty after cleaning")
		}
		return fail(c, http.StatusBadRequest, err)
	}
	return s.launch(c, req, accepted{})
}

func (s *Server) testWhatsAppSimple(c echo.Context) error {
	phone := c.QueryParam("phone_number")
	if phone == "" {
		phone = s.cfg.Delivery.DefaultRecipient
	}
	message := c.QueryParam("message")
	if strings.TrimSpace(textnorm.ASCII(message)) == "" {
		message = s.cfg.Delivery.TestMessage
	}
	req, err := delivery.NewRequest(phone, message, delivery.ModeTest)
	if err != nil {
		return fail(c, http.StatusBadRequest, err)
	}
	return s.launch(c, req, accepted{})
}

func (s *Server) sendReport(c echo.Context) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return fail(c, http.StatusBadRequest, err)
	}
	var target sendReportRequest
	if err := decodeJSON(raw, &target); err != nil {
		return fail(c, http.StatusBadRequest, err)
	}
	label, rows, err := report.DecodePayload(raw)
	if err != nil {
		return fail(c, http.StatusBadRequest, err)
	}
	return s.renderAndLaunch(c, target.PhoneNumber, label, rows)
}

func (s *Server) sendReportFile(c echo.Context) error {
	phone := c.QueryParam("phone_number")
	if phone == "" {
		phone = s.cfg.Delivery.DefaultRecipient
	}
	batch, err := gasdata.LoadBatchFile(s.cfg.Report.JSONPath)
	if err != nil {
		if errors.Is(err, gasdata.ErrNoData) {
			return fail(c, http.StatusBadRequest, err)
		}
		return fail(c, http.StatusNotFound, err)
	}
	return s.renderAndLaunch(c, phone, batch.TargetDate, batch.Data)
}

func (s *Server) renderAndLaunch(c echo.Context, phone, label string, rows []gasdata.Reading) error {
	msg, err := report.Render(rows, label)
	if err != nil {
		return fail(c, http.StatusBadRequest, err)
	}
	req, err := delivery.NewRequest(phone, msg, delivery.ModeGreeting)
	if err != nil {
		return fail(c, http.StatusBadRequest, err)
	}
	return s.launch(c, req, accepted{
		TargetDate:    label,
		DataCount:     len(rows),
		MessageLength: len(msg),
	})
}

func (s *Server) launch(c echo.Context, req delivery.Request, body accepted) error {
	job, err := s.jobs.Launch(c.Request().Context(), req)
	if err != nil {
		s.logger.Error("delivery launch failed",
			zap.String(logging.Recipient, logging.MaskRecipient(req.Recipient)),
			zap.Error(err),
		)
		return fail(c, http.StatusInternalServerError, err)
	}
	body.Status = "accepted"
	body.JobID = job.ID
	body.PID = job.PID
	body.Mode = job.Mode
	return c.JSON(http.StatusAccepted, body)
}

func (s *Server) listDeliveries(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"deliveries": s.jobs.List()})
}

func (s *Server) deliveryStatus(c echo.Context) error {
	st, err := s.jobs.Status(c.Param("id"))
	if err != nil {
		return jobError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) stopDelivery(c echo.Context) error {
	id := c.Param("id")
	if err := s.jobs.RequestStop(id); err != nil {
		return jobError(c, err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "stop_requested", "job_id": id})
}

func jobError(c echo.Context, err error) error {
	if errors.Is(err, supervisor.ErrUnknownJob) {
		return fail(c, http.StatusNotFound, err)
	}
	return fail(c, http.StatusInternalServerError, err)
}

func decodeJSON(raw []byte, v interface{}) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
