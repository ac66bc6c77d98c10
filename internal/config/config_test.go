package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		BaseDir: "/home/user/.local/share/chatbak",
		LogDir:  "/home/user/.local/share/chatbak/log",
		Vault: VaultConfig{
			Type:        "s3",
			S3Bucket:    "chat-backups",
			S3Prefix:    "laptop/",
			S3Region:    "eu-west-1",
			S3Endpoint:  "http://localhost:9000",
			S3PathStyle: true,
		},
		Store: StoreConfig{Type: "filesystem", DataDir: "/home/user/.local/share/chatbak/data"},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  "/home/user/.local/share/chatbak/keys/chatbak.pub",
			PrivateKeyPath: "/home/user/.local/share/chatbak/keys/chatbak.key",
		},
		Database:  DatabaseConfig{Type: "sqlite", DataDir: "/home/user/.local/share/chatbak/db"},
		Retention: RetentionConfig{KeepDays: 30, MaxChainDepth: 16},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.BaseDir != original.BaseDir {
		t.Errorf("BaseDir = %q, want %q", got.BaseDir, original.BaseDir)
	}
	if got.LogDir != original.LogDir {
		t.Errorf("LogDir = %q, want %q", got.LogDir, original.LogDir)
	}
	if got.Vault != original.Vault {
		t.Errorf("Vault = %+v, want %+v", got.Vault, original.Vault)
	}
	if got.Store != original.Store {
		t.Errorf("Store = %+v, want %+v", got.Store, original.Store)
	}
	if got.Encryption != original.Encryption {
		t.Errorf("Encryption = %+v, want %+v", got.Encryption, original.Encryption)
	}
	if got.Database.Type != "sqlite" {
		t.Errorf("Database.Type = %q, want %q", got.Database.Type, "sqlite")
	}
	if got.Retention != original.Retention {
		t.Errorf("Retention = %+v, want %+v", got.Retention, original.Retention)
	}
}

func TestManager_Read_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "malformed toml", input: "[vault\ntype = "},
		{name: "negative keep days", input: "[retention]\nkeep_days = -1\n"},
		{name: "negative chain depth", input: "[retention]\nmax_chain_depth = -5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Manager{}
			if _, err := m.Read(strings.NewReader(tt.input)); err == nil {
				t.Error("Read() expected error")
			}
		})
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/chatbak")

	checks := []struct {
		field, got, want string
	}{
		{"BaseDir", cfg.BaseDir, "/data/chatbak"},
		{"LogDir", cfg.LogDir, "/data/chatbak/log"},
		{"Vault.Type", cfg.Vault.Type, "filesystem"},
		{"Vault.FSRoot", cfg.Vault.FSRoot, "/data/chatbak/backups"},
		{"Store.DataDir", cfg.Store.DataDir, "/data/chatbak/data"},
		{"Encryption.PublicKeyPath", cfg.Encryption.PublicKeyPath, "/data/chatbak/keys/chatbak.pub"},
		{"Encryption.PrivateKeyPath", cfg.Encryption.PrivateKeyPath, "/data/chatbak/keys/chatbak.key"},
		{"Database.DataDir", cfg.Database.DataDir, "/data/chatbak/db"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.field, c.got, c.want)
		}
	}
	if cfg.Retention.MaxChainDepth != DefaultMaxChainDepth {
		t.Errorf("Retention.MaxChainDepth = %d, want %d", cfg.Retention.MaxChainDepth, DefaultMaxChainDepth)
	}
}

func TestConfig_ChainDepth(t *testing.T) {
	tests := []struct {
		depth int
		want  int
	}{
		{depth: 0, want: DefaultMaxChainDepth},
		{depth: 3, want: 3},
	}
	for _, tt := range tests {
		cfg := &Config{Retention: RetentionConfig{MaxChainDepth: tt.depth}}
		if got := cfg.ChainDepth(); got != tt.want {
			t.Errorf("ChainDepth() with %d = %d, want %d", tt.depth, got, tt.want)
		}
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "nested", "chatbak.toml")

		if err := Init(path, NewConfig(dir)); err != nil {
			t.Fatalf("Init() error = %v", err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "chatbak.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}
		if err := Init(path, cfg); err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "chatbak.toml")
		cfg := NewConfig(dir)
		cfg.Database = DatabaseConfig{Type: "memory"}
		cfg.Retention.KeepDays = 14

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.Database.Type != "memory" {
			t.Errorf("Database.Type = %q, want %q", got.Database.Type, "memory")
		}
		if got.Retention.KeepDays != 14 {
			t.Errorf("Retention.KeepDays = %d, want 14", got.Retention.KeepDays)
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		if _, err := ReadFromFile("/nonexistent/path/chatbak.toml"); err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
