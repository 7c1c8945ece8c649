package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"notesafe/internal/blob"
	"notesafe/internal/config"
	"notesafe/internal/crypto"
	"notesafe/internal/events"
	"notesafe/internal/models"
	"notesafe/internal/registry"
	"notesafe/internal/store"
)

// app wires the store, vault, blob transport, and registry together
// for one CLI invocation.
type app struct {
	cfg      *config.Config
	store    *store.Store
	vault    *crypto.Vault
	blobs    *blob.Store
	bus      *events.Bus
	registry *registry.Registry
}

func openApp(cfg *config.Config) (*app, error) {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	vault, err := openVault(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	alg, err := models.ParseHashAlgorithm(cfg.HashAlgorithm)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	blobOpts := []blob.Option{
		blob.WithHashAlgorithm(alg),
		blob.WithChunkSize(cfg.ChunkSize),
	}
	if cfg.RemoteRoot != "" {
		remote, err := blob.NewDirRemote(cfg.RemoteRoot)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		blobOpts = append(blobOpts, blob.WithRemote(remote))
	}
	blobs, err := blob.NewStore(cfg.BlobRoot, blobOpts...)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	bus := events.NewBus()
	return &app{
		cfg:      cfg,
		store:    st,
		vault:    vault,
		blobs:    blobs,
		bus:      bus,
		registry: registry.New(st, vault, blobs, bus),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func withApp(cfg *config.Config, fn func(a *app) error) error {
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	return fn(a)
}

// openVault builds the master-key provider. A passphrase in the
// environment wins over the key file; without either the vault stays
// unprovisioned and key-dependent operations fail cleanly.
func openVault(cfg *config.Config) (*crypto.Vault, error) {
	vault := crypto.NewVault()

	if pass := config.Passphrase(); pass != "" {
		salt, err := readKeyFile(cfg.SaltFile)
		if err != nil {
			return nil, fmt.Errorf("read salt file: %w (run 'notesafe init' first)", err)
		}
		if err := vault.Provision(pass, salt); err != nil {
			return nil, err
		}
		return vault, nil
	}

	key, err := readKeyFile(cfg.KeyFile)
	if err != nil {
		if os.IsNotExist(err) {
			return vault, nil
		}
		return nil, err
	}
	if err := vault.SetMasterKey(key); err != nil {
		return nil, fmt.Errorf("invalid master key file %s: %w", cfg.KeyFile, err)
	}
	return vault, nil
}

func readKeyFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return decoded, nil
}

func writeKeyFile(path string, key []byte) error {
	encoded := base64.StdEncoding.EncodeToString(key) + "\n"
	return os.WriteFile(path, []byte(encoded), 0o600)
}
