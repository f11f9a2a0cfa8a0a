package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - MEDIADEX_CONFIG_PATH: config file location (default: ~/.config/mediadex.toml)
//   - MEDIADEX_HOME: base directory for mediadex data (default: ~/.local/share/mediadex)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// getConfigPath returns the config file path, checking MEDIADEX_CONFIG_PATH
// first, then falling back to ~/.config/mediadex.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("MEDIADEX_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "mediadex.toml"), nil
}

// getBaseDir returns the base directory for mediadex data, checking
// MEDIADEX_HOME first, then falling back to the XDG default
// ~/.local/share/mediadex.
func getBaseDir() (string, error) {
	if path := os.Getenv("MEDIADEX_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "mediadex"), nil
}
