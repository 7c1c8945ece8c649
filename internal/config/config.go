package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	// DefaultHashAlgorithm is the content hash used for new writes.
	DefaultHashAlgorithm = "sha256"

	// DefaultChunkSize is the plaintext chunk size for encrypted writes.
	DefaultChunkSize = 512 * 1024

	// DefaultLogLevel applies when neither flag, env, nor config
	// select a level.
	DefaultLogLevel = "warn"

	configFileName = ".notesafe.toml"

	configDirEnvKey   = "NOTESAFE_CONFIG_DIR"
	dataDirEnvKey     = "NOTESAFE_DATA_DIR"
	passphraseEnvKey  = "NOTESAFE_PASSPHRASE"
	remoteRootEnvKey  = "NOTESAFE_REMOTE_ROOT"
	defaultDataSubdir = "notesafe"
)

// Config defines runtime configuration for notesafe.
type Config struct {
	DBPath        string `toml:"db_path"`
	BlobRoot      string `toml:"blob_root"`
	RemoteRoot    string `toml:"remote_root"`
	KeyFile       string `toml:"key_file"`
	SaltFile      string `toml:"salt_file"`
	HashAlgorithm string `toml:"hash_algorithm"`
	ChunkSize     int    `toml:"chunk_size"`
	LogLevel      string `toml:"log_level"`
}

// Default returns default configuration values. Paths are resolved
// lazily in Load so tests can point the data dir elsewhere.
func Default() Config {
	return Config{
		HashAlgorithm: DefaultHashAlgorithm,
		ChunkSize:     DefaultChunkSize,
		LogLevel:      "",
	}
}

// Load reads config from the config file (if present) and applies env
// overrides and default paths.
func Load() (*Config, error) {
	cfg := Default()

	path, err := FilePath()
	if err != nil {
		return nil, err
	}
	if err := loadFileIfExists(path, &cfg); err != nil {
		return nil, err
	}

	dataDir, err := dataDir()
	if err != nil {
		return nil, err
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(dataDir, "notesafe.db")
	}
	if cfg.BlobRoot == "" {
		cfg.BlobRoot = filepath.Join(dataDir, "blobs")
	}
	if cfg.KeyFile == "" {
		cfg.KeyFile = filepath.Join(dataDir, "master.key")
	}
	if cfg.SaltFile == "" {
		cfg.SaltFile = filepath.Join(dataDir, "master.salt")
	}
	if remote := strings.TrimSpace(os.Getenv(remoteRootEnvKey)); remote != "" {
		cfg.RemoteRoot = remote
	}
	if cfg.HashAlgorithm == "" {
		cfg.HashAlgorithm = DefaultHashAlgorithm
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}

	return &cfg, nil
}

// Passphrase returns the master-key passphrase from the environment,
// if set.
func Passphrase() string {
	return os.Getenv(passphraseEnvKey)
}

// FilePath returns the path of the config file.
func FilePath() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(configDirEnvKey)); dir != "" {
		return filepath.Join(dir, configFileName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// Save writes the config to its file path.
func (c *Config) Save() error {
	path, err := FilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(c)
}

func loadFileIfExists(path string, cfg *Config) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.IsDir() {
		return nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

func dataDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(dataDirEnvKey)); dir != "" {
		return dir, nil
	}
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, defaultDataSubdir), nil
}
