package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// WorkspaceDirName is the directory name for project-level gasnotifier config.
	WorkspaceDirName = ".gasnotifier"
	// WorkspaceConfigFile is the config file name inside the workspace directory.
	WorkspaceConfigFile = "config.yaml"
	// MaxSearchDepth limits how many parent directories to walk when discovering a workspace.
	MaxSearchDepth = 10
)

// Environment overrides applied after the YAML layers.
const (
	EnvProfileDir = "GASNOTIFIER_PROFILE_DIR"
	EnvChromeBin  = "GASNOTIFIER_CHROME_BIN"
	EnvHTTPAddr   = "GASNOTIFIER_HTTP_ADDR"
	EnvHeadless   = "GASNOTIFIER_HEADLESS"
)

// WorkspaceOptions controls workspace discovery behavior.
type WorkspaceOptions struct {
	// Disable skips workspace discovery entirely (--no-workspace flag).
	Disable bool
	// ExplicitDir uses this directory as workspace root instead of walking up (--workspace-dir flag).
	ExplicitDir string
	// EnvFile is an optional dotenv file loaded before environment overrides are read.
	EnvFile string
}

// Config captures all tunable settings for gasnotifier.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Browser    BrowserConfig    `yaml:"browser"`
	Delivery   DeliveryConfig   `yaml:"delivery"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Report     ReportConfig     `yaml:"report"`
	MCP        MCPConfig        `yaml:"mcp"`
	Mangle     MangleConfig     `yaml:"mangle"`
}

type ServerConfig struct {
	Name     string `yaml:"name"`
	Version  string `yaml:"version"`
	LogFile  string `yaml:"log_file"`
	LogLevel string `yaml:"log_level"`
	// HTTPAddr is the listen address of the REST transport (e.g. ":8000").
	HTTPAddr string `yaml:"http_addr"`
}

// BrowserConfig configures how the delivery worker launches Chrome for Rod.
type BrowserConfig struct {
	// Bin is the Chrome/Chromium binary. Empty means launcher.LookPath.
	Bin string `yaml:"bin"`
	// ProfileDir is the persistent user-data-dir that carries the WhatsApp Web login.
	ProfileDir string `yaml:"profile_dir"`
	// LaunchFlags are extra Chrome flags ("--flag" or "--flag=value").
	LaunchFlags []string `yaml:"launch_flags"`
	// Headless defaults to false: a first login needs a visible QR code.
	Headless *bool `yaml:"headless"`
	// Stealth masks automation tells (navigator.webdriver and friends). Default: true.
	Stealth *bool `yaml:"stealth"`
	// PrintQR renders the login QR code on the worker's stderr when a login is required.
	PrintQR *bool `yaml:"print_qr"`
	// BaseURL of the messaging web client.
	BaseURL string `yaml:"base_url"`
	// Viewport width for the delivery page (default: 1366).
	ViewportWidth int `yaml:"viewport_width"`
	// Viewport height for the delivery page (default: 900).
	ViewportHeight int            `yaml:"viewport_height"`
	Selectors      SelectorConfig `yaml:"selectors"`
}

// SelectorConfig holds the DOM conditions the readiness waiter polls for.
type SelectorConfig struct {
	ChatInput string `yaml:"chat_input"`
	LoginQR   string `yaml:"login_qr"`
	// QRPayload is the element whose data-ref attribute carries the login QR payload.
	QRPayload string `yaml:"qr_payload"`
}

// DeliveryConfig holds the sequencer's timing policy and scripted texts.
// Durations are Go duration strings ("10s", "200ms").
type DeliveryConfig struct {
	PollInterval        string `yaml:"poll_interval"`
	LoadTimeout         string `yaml:"load_timeout"`
	LoginTimeout        string `yaml:"login_timeout"`
	ConversationTimeout string `yaml:"conversation_timeout"`
	FocusTimeout        string `yaml:"focus_timeout"`
	FocusSettle         string `yaml:"focus_settle"`
	InterLineDelay      string `yaml:"inter_line_delay"`
	CommitDelay         string `yaml:"commit_delay"`
	GreetingCommitDelay string `yaml:"greeting_commit_delay"`
	MenuWait            string `yaml:"menu_wait"`
	PreSendWait         string `yaml:"pre_send_wait"`
	TestLinger          string `yaml:"test_linger"`
	GreetingLinger      string `yaml:"greeting_linger"`
	StopPoll            string `yaml:"stop_poll"`

	MenuOption        string `yaml:"menu_option"`
	MorningGreeting   string `yaml:"morning_greeting"`
	AfternoonGreeting string `yaml:"afternoon_greeting"`
	// DefaultRecipient is used by endpoints that accept an optional phone number.
	DefaultRecipient string `yaml:"default_recipient"`
	// TestMessage is sent by the plain test endpoint when the caller's text is empty.
	TestMessage string `yaml:"test_message"`
}

// SupervisorConfig configures worker processes and their side channels.
type SupervisorConfig struct {
	// JobsDir holds one directory per delivery job (request, stop flag, outcome, log).
	JobsDir string `yaml:"jobs_dir"`
	// TraceDir receives per-job JSONL traces.
	TraceDir string `yaml:"trace_dir"`
	// MaxTraces caps how many trace files are kept.
	MaxTraces int `yaml:"max_traces"`
	// CrashProbe optionally waits this long after spawning to catch workers that die at once.
	CrashProbe string `yaml:"crash_probe"`
}

// ReportConfig configures the spreadsheet loader and report inputs.
type ReportConfig struct {
	Sheet string `yaml:"sheet"`
	// JSONPath is the batch file used by the send-report-file endpoint.
	JSONPath string `yaml:"json_path"`
	// DefaultYear completes month filters given without a year ("3"). Zero means current year.
	DefaultYear int `yaml:"default_year"`
}

type MCPConfig struct {
	// When set, starts an SSE server on this port instead of stdio-only.
	SSEPort int `yaml:"sse_port"`
}

// MangleConfig controls the embedded delivery journal.
type MangleConfig struct {
	// SchemaPath optionally replaces the embedded delivery rules.
	SchemaPath      string `yaml:"schema_path"`
	FactBufferLimit int    `yaml:"fact_buffer_limit"`
}

// DefaultConfig provides reasonable defaults for a single-operator install.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Name:     "gasnotifier",
			Version:  "1.0.0",
			LogLevel: "info",
			HTTPAddr: ":8000",
		},
		Browser: BrowserConfig{
			BaseURL:        "https://web.whatsapp.com",
			ViewportWidth:  1366,
			ViewportHeight: 900,
			Selectors: SelectorConfig{
				ChatInput: `div[contenteditable="true"][data-tab="10"]`,
				LoginQR:   `canvas[aria-label="Scan me!"]`,
				QRPayload: `div[data-ref]`,
			},
		},
		Delivery: DeliveryConfig{
			PollInterval:        "500ms",
			LoadTimeout:         "60s",
			LoginTimeout:        "120s",
			ConversationTimeout: "30s",
			FocusTimeout:        "10s",
			FocusSettle:         "500ms",
			InterLineDelay:      "200ms",
			CommitDelay:         "1s",
			GreetingCommitDelay: "2s",
			MenuWait:            "10s",
			PreSendWait:         "5s",
			TestLinger:          "20s",
			GreetingLinger:      "20s",
			StopPoll:            "1s",
			MenuOption:          "1",
			MorningGreeting:     "Bom dia!",
			AfternoonGreeting:   "Boa tarde!",
			TestMessage:         "Mensagem de teste do sistema de consumo de gas",
		},
		Supervisor: SupervisorConfig{
			JobsDir:   "data/jobs",
			TraceDir:  "data/traces",
			MaxTraces: 20,
		},
		Report: ReportConfig{
			Sheet:    "Gas_2025",
			JSONPath: "output.json",
		},
		Mangle: MangleConfig{
			FactBufferLimit: 1024,
		},
	}
}

// Load reads YAML config from disk and overlays defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, errors.New("config path is required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// DiscoverWorkspace walks up from startDir looking for a .gasnotifier/config.yaml file.
// Returns the workspace root directory (parent of .gasnotifier/) or empty string if not found.
func DiscoverWorkspace(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving start directory: %w", err)
	}

	for i := 0; i < MaxSearchDepth; i++ {
		candidate := filepath.Join(dir, WorkspaceDirName, WorkspaceConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", nil
}

// LoadWithWorkspace implements multi-layer config merge:
//
//	DefaultConfig() <- .gasnotifier/config.yaml <- explicit --config <- .env / environment
//
// Returns the merged config and the workspace directory (empty if none found).
func LoadWithWorkspace(explicitConfig string, opts WorkspaceOptions) (Config, string, error) {
	cfg := DefaultConfig()
	wsDir := ""

	if !opts.Disable {
		var err error
		if opts.ExplicitDir != "" {
			candidate := filepath.Join(opts.ExplicitDir, WorkspaceDirName, WorkspaceConfigFile)
			if _, statErr := os.Stat(candidate); statErr == nil {
				wsDir = opts.ExplicitDir
			}
		} else {
			cwd, cwdErr := os.Getwd()
			if cwdErr != nil {
				return cfg, "", fmt.Errorf("getting working directory: %w", cwdErr)
			}
			wsDir, err = DiscoverWorkspace(cwd)
			if err != nil {
				return cfg, "", fmt.Errorf("discovering workspace: %w", err)
			}
		}

		if wsDir != "" {
			wsConfigPath := filepath.Join(wsDir, WorkspaceDirName, WorkspaceConfigFile)
			raw, err := os.ReadFile(wsConfigPath)
			if err != nil {
				return cfg, "", fmt.Errorf("reading workspace config %s: %w", wsConfigPath, err)
			}
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, "", fmt.Errorf("parsing workspace config %s: %w", wsConfigPath, err)
			}
			cfg = resolveWorkspacePaths(cfg, wsDir)
		}
	}

	if explicitConfig != "" {
		raw, err := os.ReadFile(explicitConfig)
		if err != nil {
			return cfg, wsDir, fmt.Errorf("reading explicit config %s: %w", explicitConfig, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, wsDir, fmt.Errorf("parsing explicit config %s: %w", explicitConfig, err)
		}
	}

	if err := loadEnvFile(opts.EnvFile); err != nil {
		return cfg, wsDir, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, wsDir, err
	}

	return cfg, wsDir, cfg.Validate()
}

// loadEnvFile loads a dotenv file without overriding variables already set.
// A missing default ".env" is not an error; a missing explicit file is.
func loadEnvFile(path string) error {
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays GASNOTIFIER_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvProfileDir); v != "" {
		c.Browser.ProfileDir = v
	}
	if v := os.Getenv(EnvChromeBin); v != "" {
		c.Browser.Bin = v
	}
	if v := os.Getenv(EnvHTTPAddr); v != "" {
		c.Server.HTTPAddr = v
	}
	if v := os.Getenv(EnvHeadless); v != "" {
		headless, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvHeadless, err)
		}
		c.Browser.Headless = &headless
	}
	return nil
}

// InitWorkspace creates a .gasnotifier/ directory with template files at root.
func InitWorkspace(root string) error {
	wsDir := filepath.Join(root, WorkspaceDirName)

	if _, err := os.Stat(wsDir); err == nil {
		return fmt.Errorf("workspace directory already exists: %s", wsDir)
	}

	dirs := []string{
		wsDir,
		filepath.Join(wsDir, "data"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	templateConfig := `# gasnotifier project-level configuration
# Values here override defaults but are overridden by --config, .env and the environment.

# browser:
#   profile_dir: "/home/me/.config/google-chrome"
#   headless: false

# delivery:
#   default_recipient: "+5511999990000"
#   menu_wait: "10s"
#   greeting_linger: "20s"

# report:
#   sheet: "Gas_2025"
#   json_path: "data/output.json"
`
	configPath := filepath.Join(wsDir, WorkspaceConfigFile)
	if err := os.WriteFile(configPath, []byte(templateConfig), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	gitignoreContent := "# Runtime data (jobs, traces, logs) - do not version control\ndata/\n"
	gitignorePath := filepath.Join(wsDir, ".gitignore")
	if err := os.WriteFile(gitignorePath, []byte(gitignoreContent), 0644); err != nil {
		return fmt.Errorf("writing .gitignore: %w", err)
	}

	return nil
}

// resolveWorkspacePaths resolves relative paths in the config against the workspace directory.
func resolveWorkspacePaths(cfg Config, wsDir string) Config {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(wsDir, p)
	}

	cfg.Server.LogFile = resolve(cfg.Server.LogFile)
	cfg.Supervisor.JobsDir = resolve(cfg.Supervisor.JobsDir)
	cfg.Supervisor.TraceDir = resolve(cfg.Supervisor.TraceDir)
	cfg.Report.JSONPath = resolve(cfg.Report.JSONPath)
	cfg.Mangle.SchemaPath = resolve(cfg.Mangle.SchemaPath)
	return cfg
}

// Validate ensures required fields exist so the tool can start deterministically.
// The browser profile is deliberately not checked here: it is a precondition of a
// delivery attempt, not of rendering or serving.
func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return errors.New("server.name is required")
	}
	if c.Browser.BaseURL == "" {
		return errors.New("browser.base_url is required")
	}
	if c.Browser.Selectors.ChatInput == "" || c.Browser.Selectors.LoginQR == "" {
		return errors.New("browser.selectors.chat_input and browser.selectors.login_qr are required")
	}
	if c.Supervisor.JobsDir == "" {
		return errors.New("supervisor.jobs_dir is required")
	}
	if c.Delivery.MenuOption == "" {
		return errors.New("delivery.menu_option is required")
	}
	for name, raw := range c.Delivery.durations() {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("delivery.%s: %w", name, err)
		}
	}
	return nil
}

func (d DeliveryConfig) durations() map[string]string {
	return map[string]string{
		"poll_interval":         d.PollInterval,
		"load_timeout":          d.LoadTimeout,
		"login_timeout":         d.LoginTimeout,
		"conversation_timeout":  d.ConversationTimeout,
		"focus_timeout":         d.FocusTimeout,
		"focus_settle":          d.FocusSettle,
		"inter_line_delay":      d.InterLineDelay,
		"commit_delay":          d.CommitDelay,
		"greeting_commit_delay": d.GreetingCommitDelay,
		"menu_wait":             d.MenuWait,
		"pre_send_wait":         d.PreSendWait,
		"test_linger":           d.TestLinger,
		"greeting_linger":       d.GreetingLinger,
		"stop_poll":             d.StopPoll,
	}
}

// Duration parses a duration string, falling back to def when empty or malformed.
func Duration(raw string, def time.Duration) time.Duration {
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

// IsHeadless returns whether Chrome should run in headless mode (default: false).
func (b BrowserConfig) IsHeadless() bool {
	if b.Headless == nil {
		return false
	}
	return *b.Headless
}

// UseStealth returns whether automation tells are masked (default: true).
func (b BrowserConfig) UseStealth() bool {
	if b.Stealth == nil {
		return true
	}
	return *b.Stealth
}

// ShouldPrintQR returns whether a login QR is rendered to stderr (default: true).
func (b BrowserConfig) ShouldPrintQR() bool {
	if b.PrintQR == nil {
		return true
	}
	return *b.PrintQR
}

// GetViewportWidth returns the viewport width with a sane default.
func (b BrowserConfig) GetViewportWidth() int {
	if b.ViewportWidth <= 0 {
		return 1366
	}
	return b.ViewportWidth
}

// GetViewportHeight returns the viewport height with a sane default.
func (b BrowserConfig) GetViewportHeight() int {
	if b.ViewportHeight <= 0 {
		return 900
	}
	return b.ViewportHeight
}

// GetCrashProbe returns the post-spawn liveness window (zero disables the probe).
func (s SupervisorConfig) GetCrashProbe() time.Duration {
	return Duration(s.CrashProbe, 0)
}

// GetMaxTraces returns the trace retention count with a sane default.
func (s SupervisorConfig) GetMaxTraces() int {
	if s.MaxTraces <= 0 {
		return 20
	}
	return s.MaxTraces
}

// Year returns the year used to complete month-only filters.
func (r ReportConfig) Year(now time.Time) int {
	if r.DefaultYear > 0 {
		return r.DefaultYear
	}
	return now.Year()
}
