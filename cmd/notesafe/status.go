package main

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"notesafe/internal/config"
	"notesafe/internal/models"
)

type statusReport struct {
	Total          int    `json:"total"`
	Active         int    `json:"active"`
	PendingUpload  int    `json:"pending_upload"`
	Tombstoned     int    `json:"tombstoned"`
	PlaintextBytes uint64 `json:"plaintext_bytes"`
	MigrationsAt   int    `json:"migrations_at"`
}

func newStatusCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Summarize the attachment store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, func(a *app) error {
				records, err := a.registry.All(cmd.Context())
				if err != nil {
					return err
				}

				var report statusReport
				report.Total = len(records)
				for i := range records {
					rec := &records[i]
					switch rec.State() {
					case models.StateActive:
						report.Active++
					case models.StatePendingUpload:
						report.PendingUpload++
					case models.StateTombstoned:
						report.Tombstoned++
					}
					report.PlaintextBytes += uint64(rec.CipherParams.PlaintextLength)
				}

				plan, err := a.store.MigrationPlan()
				if err != nil {
					return err
				}
				report.MigrationsAt = plan.CurrentVersion

				if *jsonOutput {
					return writeJSON(report)
				}
				return writePlain("attachments: %d (%d active, %d pending upload, %d tombstoned), %s plaintext, schema v%d\n",
					report.Total, report.Active, report.PendingUpload, report.Tombstoned,
					humanize.Bytes(report.PlaintextBytes), plan.CurrentVersion)
			})
		},
	}
}
