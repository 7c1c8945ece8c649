package main

import (
	"github.com/spf13/cobra"

	"notesafe/internal/config"
)

func newPushCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Upload pending attachment ciphertext to the remote blob store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, func(a *app) error {
				ctx := cmd.Context()
				pending, err := a.registry.Pending(ctx)
				if err != nil {
					return err
				}

				uploaded := 0
				for i := range pending {
					rec := &pending[i]
					if err := a.blobs.Upload(ctx, rec.Metadata.Hash); err != nil {
						_ = writePlain("skip %s: %v\n", shortHash(rec.Metadata.Hash), err)
						continue
					}
					if err := a.registry.MarkAsUploaded(ctx, rec.ID); err != nil {
						return err
					}
					uploaded++
				}

				if *jsonOutput {
					return writeJSON(map[string]int{"pending": len(pending), "uploaded": uploaded})
				}
				return writePlain("uploaded %d of %d pending attachments\n", uploaded, len(pending))
			})
		},
	}
}
