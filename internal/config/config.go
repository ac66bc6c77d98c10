package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// DefaultMaxChainDepth bounds how many incremental links are followed when
// resolving a backup.
const DefaultMaxChainDepth = 64

// Config represents the main configuration for chatbak.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Vault      VaultConfig      `toml:"vault"`
	Store      StoreConfig      `toml:"store"`
	Encryption EncryptionConfig `toml:"encryption"`
	Database   DatabaseConfig   `toml:"database"`
	Retention  RetentionConfig  `toml:"retention"`
}

// EncryptionConfig holds paths to the age key pair used for encryption.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// VaultConfig describes where backup payloads and the index are stored.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "filesystem", "memory", or "s3"

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3Prefix    string `toml:"s3_prefix,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3Endpoint  string `toml:"s3_endpoint,omitempty"`
	S3AccessKey string `toml:"s3_access_key,omitempty"`
	S3SecretKey string `toml:"s3_secret_key,omitempty"`
	S3PathStyle bool   `toml:"s3_path_style,omitempty"`
}

// StoreConfig describes where the live application data lives.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StoreConfig struct {
	Type    string `toml:"type"`               // "filesystem" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=filesystem
}

// DatabaseConfig represents configuration for the operation journal.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// RetentionConfig controls automatic cleanup and chain resolution limits.
type RetentionConfig struct {
	// KeepDays is applied after every full backup when positive.
	KeepDays      int `toml:"keep_days"`
	MaxChainDepth int `toml:"max_chain_depth"`
}

// NewConfig creates a new Config rooted at baseDir with default backends and key paths.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Vault: VaultConfig{
			Type:   "filesystem",
			FSRoot: filepath.Join(baseDir, "backups"),
		},
		Store: StoreConfig{
			Type:    "filesystem",
			DataDir: filepath.Join(baseDir, "data"),
		},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "chatbak.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "chatbak.key"),
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Retention: RetentionConfig{
			MaxChainDepth: DefaultMaxChainDepth,
		},
	}
}

// Validate checks values that cannot be caught by the backend factories.
func (c *Config) Validate() error {
	if c.Retention.KeepDays < 0 {
		return fmt.Errorf("retention.keep_days must not be negative, got %d", c.Retention.KeepDays)
	}
	if c.Retention.MaxChainDepth < 0 {
		return fmt.Errorf("retention.max_chain_depth must not be negative, got %d", c.Retention.MaxChainDepth)
	}
	return nil
}

// ChainDepth returns the configured chain depth limit, or the default when unset.
func (c *Config) ChainDepth() int {
	if c.Retention.MaxChainDepth <= 0 {
		return DefaultMaxChainDepth
	}
	return c.Retention.MaxChainDepth
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
