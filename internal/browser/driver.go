// Package browser drives the messaging web client through Chrome via Rod.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"go.uber.org/zap"

	"gasnotifier/internal/config"
)

// Driver launches Chrome against the persistent profile that holds the
// messaging login.
type Driver struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
}

func NewDriver(cfg config.BrowserConfig, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{cfg: cfg, logger: logger.With(zap.String("layer", "driver"))}
}

// Open launches Chrome, connects, and opens one page. Failures are
// SessionLaunchFailure and leave no process behind.
func (d *Driver) Open(ctx context.Context) (*Session, error) {
	if err := checkProfileDir(d.cfg.ProfileDir); err != nil {
		return nil, stepErr(SessionLaunchFailure, StepLaunch, err)
	}

	bin := d.cfg.Bin
	if bin == "" {
		path, found := launcher.LookPath()
		if !found {
			return nil, stepErr(SessionLaunchFailure, StepLaunch, errors.New("browser executable path not found"))
		}
		bin = path
	}

	l := d.launcher(bin).Context(ctx)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, stepErr(SessionLaunchFailure, StepLaunch, fmt.Errorf("launch chrome: %w", err))
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, stepErr(SessionLaunchFailure, StepLaunch, fmt.Errorf("connect to chrome: %w", err))
	}

	page, err := d.newPage(b)
	if err != nil {
		_ = b.Close()
		l.Kill()
		return nil, stepErr(SessionLaunchFailure, StepLaunch, fmt.Errorf("create page: %w", err))
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             d.cfg.GetViewportWidth(),
		Height:            d.cfg.GetViewportHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		d.logger.Warn("failed to set viewport", zap.Error(err))
	}

	d.logger.Info("browser connected", zap.String("control_url", controlURL), zap.Bool("headless", d.cfg.IsHeadless()))

	closeFn := func() error {
		// The profile directory is never cleaned up: it carries the login.
		if err := page.Close(); err != nil {
			d.logger.Debug("page close", zap.Error(err))
		}
		if err := b.Close(); err != nil {
			d.logger.Debug("browser close", zap.Error(err))
		}
		l.Kill()
		d.logger.Info("browser shutdown complete")
		return nil
	}
	return NewSession(NewRodPage(page), closeFn), nil
}

func (d *Driver) launcher(bin string) *launcher.Launcher {
	l := launcher.New().
		Bin(bin).
		UserDataDir(d.cfg.ProfileDir).
		Headless(d.cfg.IsHeadless()).
		Leakless(true).
		Set("disable-blink-features", "AutomationControlled").
		Set("no-first-run").
		Set("no-sandbox").
		Set("disable-dev-shm-usage").
		Delete("enable-automation")

	for _, rawFlag := range d.cfg.LaunchFlags {
		flagStr := strings.TrimLeft(rawFlag, "-")
		name, val, hasVal := strings.Cut(flagStr, "=")
		if hasVal {
			l = l.Set(flags.Flag(name), val)
		} else {
			l = l.Set(flags.Flag(name))
		}
	}
	return l
}

func (d *Driver) newPage(b *rod.Browser) (*rod.Page, error) {
	if d.cfg.UseStealth() {
		return stealth.Page(b)
	}
	return b.Page(proto.TargetCreateTarget{})
}

func checkProfileDir(dir string) error {
	if dir == "" {
		return errors.New("browser.profile_dir is not set")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("profile directory unreachable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("profile directory %s is not a directory", dir)
	}
	return nil
}
