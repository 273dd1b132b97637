package config

import (
	"bytes"
	"path/filepath"

	cmtconfig "github.com/cometbft/cometbft/config"
	cmtos "github.com/cometbft/cometbft/libs/os"
	"github.com/pelletier/go-toml/v2"
)

// DefaultDirPerm is the default permissions used when creating directories.
const DefaultDirPerm = 0o700

const appConfigHeader = `# HAC application configuration.
# Phasing limits must agree across every validator of a chain.

`

// WriteConfigFile writes config.toml for the consensus engine and app.toml
// for the application into the config directory under the home dir.
func WriteConfigFile(cfg *Config) error {
	dir := filepath.Join(cfg.RootDir, "config")
	if err := cmtos.EnsureDir(dir, DefaultDirPerm); err != nil {
		return err
	}
	cmtconfig.WriteConfigFile(filepath.Join(dir, CometConfigFile), cfg.Config)
	return WriteAppConfigFile(filepath.Join(dir, AppConfigFile), cfg.App)
}

func WriteAppConfigFile(path string, cfg *HACAppConfig) error {
	var buffer bytes.Buffer
	buffer.WriteString(appConfigHeader)
	enc := toml.NewEncoder(&buffer)
	enc.SetIndentTables(true)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return cmtos.WriteFile(path, buffer.Bytes(), 0o644)
}
