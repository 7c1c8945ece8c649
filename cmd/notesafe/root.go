package main

import (
	"github.com/spf13/cobra"

	"notesafe/internal/config"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var jsonOutput bool
	var logLevel string

	cmd := &cobra.Command{
		Use:   "notesafe",
		Short: "Notesafe is an encrypted, content-addressed attachment store for notes",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warning, err := configureLoggerForCLI(logLevel, cfg.LogLevel)
			if err != nil {
				return err
			}
			if warning != "" {
				cmd.PrintErrln(warning)
			}
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newInitCmd(cfg),
		newAttachCmd(cfg, &jsonOutput),
		newCatCmd(cfg),
		newDownloadCmd(cfg, &jsonOutput),
		newPushCmd(cfg, &jsonOutput),
		newGCCmd(cfg, &jsonOutput),
		newSyncCmd(cfg, &jsonOutput),
		newStatusCmd(cfg, &jsonOutput),
	)

	return cmd
}
