package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"notesafe/internal/config"
	"notesafe/internal/crypto"
)

func newInitCmd(cfg *config.Config) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Provision the local data directory and master key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(filepath.Dir(cfg.KeyFile), 0o755); err != nil {
				return err
			}

			if _, err := os.Stat(cfg.SaltFile); os.IsNotExist(err) || force {
				salt, err := crypto.GenerateSalt()
				if err != nil {
					return err
				}
				if err := writeKeyFile(cfg.SaltFile, salt); err != nil {
					return err
				}
			}

			// Passphrase mode derives the master key on every run; only
			// the salt is persisted.
			if config.Passphrase() != "" {
				return writePlain("initialized %s (passphrase mode)\n", filepath.Dir(cfg.KeyFile))
			}

			if _, err := os.Stat(cfg.KeyFile); err == nil && !force {
				return fmt.Errorf("master key already exists at %s (use --force to replace it and orphan existing attachments)", cfg.KeyFile)
			}
			vault := crypto.NewVault()
			key, err := vault.GenerateRandomKey()
			if err != nil {
				return err
			}
			if err := writeKeyFile(cfg.KeyFile, key); err != nil {
				return err
			}
			return writePlain("initialized %s\n", filepath.Dir(cfg.KeyFile))
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "replace an existing master key")
	return cmd
}
