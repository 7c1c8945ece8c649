package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"notesafe/internal/config"
	"notesafe/internal/models"
	"notesafe/internal/registry"
)

func newAttachCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{Use: "attach", Short: "Manage attachments"}
	cmd.AddCommand(
		newAttachAddCmd(cfg, jsonOutput),
		newAttachListCmd(cfg, jsonOutput),
		newAttachShowCmd(cfg, jsonOutput),
		newAttachRmCmd(cfg),
		newAttachPurgeCmd(cfg),
	)
	return cmd
}

func newAttachAddCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var mimeType string
	var filename string

	cmd := &cobra.Command{
		Use:   "add <note-id> <path>",
		Short: "Encrypt and attach a file to a note",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			noteID, path := args[0], args[1]
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}

			name := strings.TrimSpace(filename)
			if name == "" {
				name = filepath.Base(path)
			}
			mt := strings.TrimSpace(mimeType)
			if mt == "" {
				mt = mime.TypeByExtension(filepath.Ext(path))
			}

			return withApp(cfg, func(a *app) error {
				ctx := cmd.Context()
				key, desc, err := a.registry.Save(ctx, data, mt)
				if err != nil {
					return err
				}
				rec, err := a.registry.Add(ctx, registry.AddInputFromDescriptor(desc, name, key), noteID)
				if err != nil {
					return err
				}
				return writeRecord(rec, *jsonOutput)
			})
		},
	}

	cmd.Flags().StringVar(&mimeType, "mime-type", "", "override the detected mime type")
	cmd.Flags().StringVar(&filename, "filename", "", "override the stored filename")
	return cmd
}

func newAttachListCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "list [note-id]",
		Short: "List attachments, optionally scoped to a note",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsedKind, err := models.ParseAttachmentKind(kind)
			if err != nil {
				return err
			}
			return withApp(cfg, func(a *app) error {
				ctx := cmd.Context()
				var records []models.AttachmentRecord
				if len(args) == 1 {
					records, err = a.registry.OfNote(ctx, args[0], parsedKind)
				} else {
					switch parsedKind {
					case models.AttachmentKindImages:
						records, err = a.registry.Images(ctx)
					case models.AttachmentKindFiles:
						records, err = a.registry.Files(ctx)
					default:
						records, err = a.registry.All(ctx)
					}
				}
				if err != nil {
					return err
				}
				return writeRecordList(records, *jsonOutput)
			})
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "all", "attachment kind: files, images, or all")
	return cmd
}

func newAttachShowCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "show <hash-or-id>",
		Short: "Show one attachment record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, func(a *app) error {
				rec, err := a.registry.Attachment(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if rec == nil {
					return fmt.Errorf("attachment %s not found", args[0])
				}
				return writeRecord(rec, *jsonOutput)
			})
		},
	}
}

func newAttachRmCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <note-id> <hash>",
		Short: "Detach a file from a note, tombstoning the last reference",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, func(a *app) error {
				return a.registry.Delete(cmd.Context(), args[1], args[0])
			})
		},
	}
}

func newAttachPurgeCmd(cfg *config.Config) *cobra.Command {
	var localOnly bool

	cmd := &cobra.Command{
		Use:   "purge <hash>",
		Short: "Hard-delete an attachment and its ciphertext",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, func(a *app) error {
				purged, err := a.registry.Remove(cmd.Context(), args[0], localOnly)
				if err != nil {
					return err
				}
				if !purged {
					return fmt.Errorf("attachment %s was not purged (blob deletion deferred or record missing)", args[0])
				}
				return writePlain("purged %s\n", args[0])
			})
		},
	}

	cmd.Flags().BoolVar(&localOnly, "local-only", false, "delete only the local ciphertext copy")
	return cmd
}
