package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"notesafe/internal/config"
)

func newCatCmd(cfg *config.Config) *cobra.Command {
	var outPath string
	var dataURI bool

	cmd := &cobra.Command{
		Use:   "cat <hash>",
		Short: "Decrypt an attachment and write its plaintext",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, func(a *app) error {
				payload, err := a.registry.Read(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if payload == nil {
					return fmt.Errorf("attachment %s not found or not local", args[0])
				}
				if dataURI {
					return writePlain("%s\n", payload.DataURI())
				}
				if outPath != "" {
					return os.WriteFile(outPath, payload.Data, 0o644)
				}
				_, err = os.Stdout.Write(payload.Data)
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&outPath, "output", "o", "", "write plaintext to a file instead of stdout")
	cmd.Flags().BoolVar(&dataURI, "data-uri", false, "print a data URI instead of raw bytes")
	return cmd
}
