package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gasnotifier/internal/config"
	"gasnotifier/internal/logging"
	"gasnotifier/internal/supervisor"
)

// cli carries the persistent flags shared by every subcommand.
type cli struct {
	configPath   string
	workspaceDir string
	noWorkspace  bool
	envFile      string
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "gasnotifier",
		Short:         "Gas consumption reports delivered over WhatsApp Web",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "Path to a config file layered over the workspace config")
	flags.StringVar(&c.workspaceDir, "workspace-dir", "", "Use this directory as workspace root instead of discovering it")
	flags.BoolVar(&c.noWorkspace, "no-workspace", false, "Skip .gasnotifier/ workspace discovery")
	flags.StringVar(&c.envFile, "env-file", "", "Dotenv file read before environment overrides (default .env when present)")

	root.AddCommand(
		newServeCmd(c),
		newMCPCmd(c),
		newWorkerCmd(c),
		newSendCmd(c),
		newRenderCmd(c),
		newMonthsCmd(c),
		newInitCmd(),
	)
	return root
}

func (c *cli) loadConfig() (config.Config, error) {
	cfg, _, err := config.LoadWithWorkspace(c.configPath, config.WorkspaceOptions{
		Disable:     c.noWorkspace,
		ExplicitDir: c.workspaceDir,
		EnvFile:     c.envFile,
	})
	return cfg, err
}

func (c *cli) load() (config.Config, *zap.Logger, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return cfg, nil, err
	}
	logger, err := logging.New(cfg.Server)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, logger, nil
}

// workerArgs forwards the config layering flags to worker processes.
func (c *cli) workerArgs() []string {
	var args []string
	if c.noWorkspace {
		args = append(args, "--no-workspace")
	}
	if c.workspaceDir != "" {
		args = append(args, "--workspace-dir", c.workspaceDir)
	}
	if c.envFile != "" {
		args = append(args, "--env-file", c.envFile)
	}
	return args
}

// newSupervisor spawns workers by re-executing this binary. reg may be nil.
func (c *cli) newSupervisor(cfg config.Config, logger *zap.Logger, reg prometheus.Registerer) *supervisor.Supervisor {
	var metrics *supervisor.Metrics
	if reg != nil {
		metrics = supervisor.MustNewMetrics(reg)
	}
	spawner := supervisor.ExecSpawner{
		ConfigPath: c.configPath,
		Args:       c.workerArgs(),
	}
	return supervisor.New(cfg.Supervisor, spawner, logger, metrics)
}
