// Package api exposes loader, renderer and delivery jobs over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gasnotifier/internal/config"
	"gasnotifier/internal/delivery"
	"gasnotifier/internal/logging"
	"gasnotifier/internal/supervisor"
)

// Jobs is the slice of the supervisor the API needs.
type Jobs interface {
	Launch(ctx context.Context, req delivery.Request) (supervisor.Job, error)
	RequestStop(id string) error
	Status(id string) (supervisor.Status, error)
	List() []supervisor.Status
}

// Server is the HTTP transport.
type Server struct {
	cfg    config.Config
	jobs   Jobs
	logger *zap.Logger
	echo   *echo.Echo
	now    func() time.Time
}

// New builds the echo router. gatherer backs /metrics; nil uses the default registry.
func New(cfg config.Config, jobs Jobs, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		cfg:    cfg,
		jobs:   jobs,
		logger: logger.With(zap.String(logging.Layer, "api")),
		now:    time.Now,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURIPath: true,
		LogStatus:  true,
		LogLatency: true,
		// The query string carries phone numbers and message text; only the
		// path is logged.
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Info("request",
				zap.String("method", v.Method),
				zap.String(logging.Path, v.URIPath),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			)
			return nil
		},
	}))

	e.GET("/", s.root)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := e.Group("/api/v1")
	v1.GET("/health", s.health)
	v1.POST("/upload-excel", s.uploadExcel)
	v1.POST("/get-available-months", s.availableMonths)
	v1.POST("/format-message", s.formatMessage)
	v1.POST("/send-whatsapp", s.sendWhatsApp)
	v1.POST("/test-whatsapp-simple", s.testWhatsAppSimple)
	v1.POST("/send-report", s.sendReport)
	v1.POST("/send-report-file", s.sendReportFile)
	v1.POST("/test-main-json-from-existing", s.sendReportFile)
	v1.GET("/deliveries", s.listDeliveries)
	v1.GET("/deliveries/:id", s.deliveryStatus)
	v1.POST("/deliveries/:id/stop", s.stopDelivery)

	s.echo = e
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errCh <- s.echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"message": "Gas consumption notifier API is running!"})
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy", "service": s.cfg.Server.Name})
}

func fail(c echo.Context, code int, err error) error {
	return c.JSON(code, map[string]string{"error": err.Error()})
}
