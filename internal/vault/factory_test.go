package vault

import (
	"context"
	"path/filepath"
	"testing"

	"chatbak/internal/config"
)

func TestNewVaultFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.VaultConfig
		wantErr bool
	}{
		{
			name: "memory vault",
			cfg:  config.VaultConfig{Type: "memory"},
		},
		{
			name: "filesystem vault",
			cfg:  config.VaultConfig{Type: "filesystem", FSRoot: filepath.Join(t.TempDir(), "vault")},
		},
		{
			name:    "filesystem vault without root",
			cfg:     config.VaultConfig{Type: "filesystem"},
			wantErr: true,
		},
		{
			name:    "s3 vault without bucket",
			cfg:     config.VaultConfig{Type: "s3", S3Region: "us-east-1"},
			wantErr: true,
		},
		{
			name:    "unknown vault type",
			cfg:     config.VaultConfig{Type: "ftp"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			got, err := NewVaultFromConfig(ctx, tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewVaultFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if err := got.ValidateSetup(ctx); err != nil {
				t.Errorf("ValidateSetup() error = %v", err)
			}
		})
	}
}

func TestNewS3Vault(t *testing.T) {
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "none"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "none"))

	v, err := NewS3Vault(context.Background(), config.VaultConfig{
		Type:        "s3",
		S3Bucket:    "chat-backups",
		S3Prefix:    "laptop",
		S3Region:    "us-east-1",
		S3Endpoint:  "http://127.0.0.1:9000",
		S3AccessKey: "access",
		S3SecretKey: "secret",
		S3PathStyle: true,
	})
	if err != nil {
		t.Fatalf("NewS3Vault() error = %v", err)
	}
	if v.bucket != "chat-backups" {
		t.Errorf("bucket = %q, want %q", v.bucket, "chat-backups")
	}
	if got := v.key("index.json"); got != "laptop/index.json" {
		t.Errorf("key() = %q, want %q", got, "laptop/index.json")
	}

	v.prefix = ""
	if got := v.key("index.json"); got != "index.json" {
		t.Errorf("key() without prefix = %q, want %q", got, "index.json")
	}
}
