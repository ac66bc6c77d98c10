package app

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// Environment variables that override the XDG defaults.
const (
	EnvConfigPath = "CHATBAK_CONFIG_PATH"
	EnvHome       = "CHATBAK_HOME"
	EnvPassphrase = "CHATBAK_PASSPHRASE"
)

// Defaults holds the paths used when no config file says otherwise.
type Defaults struct {
	ConfigPath string
	BaseDir    string
	LogDir     string
}

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - CHATBAK_CONFIG_PATH: config file location (default: $XDG_CONFIG_HOME/chatbak.toml)
//   - CHATBAK_HOME: base directory for chatbak data (default: $XDG_DATA_HOME/chatbak)
func GetDefaults() Defaults {
	configPath := os.Getenv(EnvConfigPath)
	if configPath == "" {
		configPath = filepath.Join(xdg.ConfigHome, "chatbak.toml")
	}

	baseDir := os.Getenv(EnvHome)
	if baseDir == "" {
		baseDir = filepath.Join(xdg.DataHome, "chatbak")
	}

	return Defaults{
		ConfigPath: configPath,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
	}
}
