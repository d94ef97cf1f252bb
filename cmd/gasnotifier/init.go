package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"gasnotifier/internal/config"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [dir]",
		Short: "Create a .gasnotifier/ workspace with a config template",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			abs, err := filepath.Abs(root)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(abs, 0o755); err != nil {
				return err
			}
			if err := config.InitWorkspace(abs); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized workspace in %s\n",
				filepath.Join(abs, config.WorkspaceDirName))
			return nil
		},
	}
}
