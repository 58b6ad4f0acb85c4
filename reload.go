package main

import (
	"github.com/spf13/cobra"
)

func newReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Ask the running server to re-read its config",
		Long: `Send SIGHUP to the server recorded in server.pid_file. The server
re-reads the config file and applies the new log level.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd)

			if err := sendSIGHUP(cc.Cfg.Server.PIDFile); err != nil {
				return err
			}

			cc.Statusf("Reload signal sent.\n")

			return nil
		},
	}
}
