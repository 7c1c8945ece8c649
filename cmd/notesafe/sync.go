package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"notesafe/internal/config"
	"notesafe/internal/models"
)

// syncFile is the cross-device record transfer format. It carries
// attachment records only; ciphertext travels through the blob remote.
type syncFile struct {
	Version int                       `yaml:"version"`
	Records []models.AttachmentRecord `yaml:"records"`
}

const syncFileVersion = 1

func newSyncCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{Use: "sync", Short: "Exchange attachment records with other devices"}
	cmd.AddCommand(
		newSyncExportCmd(cfg),
		newSyncImportCmd(cfg, jsonOutput),
	)
	return cmd
}

func newSyncExportCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Export all attachment records to a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, func(a *app) error {
				records, err := a.registry.All(cmd.Context())
				if err != nil {
					return err
				}
				out, err := yaml.Marshal(syncFile{Version: syncFileVersion, Records: records})
				if err != nil {
					return err
				}
				if err := os.WriteFile(args[0], out, 0o600); err != nil {
					return err
				}
				return writePlain("exported %d records to %s\n", len(records), args[0])
			})
		},
	}
}

func newSyncImportCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Merge attachment records exported by another device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var in syncFile
			if err := yaml.Unmarshal(raw, &in); err != nil {
				return fmt.Errorf("parse sync file: %w", err)
			}
			if in.Version != syncFileVersion {
				return fmt.Errorf("unsupported sync file version %d", in.Version)
			}

			return withApp(cfg, func(a *app) error {
				ctx := cmd.Context()
				for i := range in.Records {
					if err := a.registry.Merge(ctx, &in.Records[i]); err != nil {
						return fmt.Errorf("merge record %s: %w", in.Records[i].ID, err)
					}
				}
				if *jsonOutput {
					return writeJSON(map[string]int{"merged": len(in.Records)})
				}
				return writePlain("merged %d records from %s\n", len(in.Records), args[0])
			})
		},
	}
}
