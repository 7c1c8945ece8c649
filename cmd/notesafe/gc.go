package main

import (
	"github.com/spf13/cobra"

	"notesafe/internal/config"
)

func newGCCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Purge tombstoned attachments past the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, func(a *app) error {
				result, err := a.registry.Cleanup(cmd.Context())
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(result)
				}
				return writePlain("purged %d of %d eligible tombstones (%d retained, %d failed)\n",
					result.Purged, result.Candidates, result.Retained, result.Failed)
			})
		},
	}
}
