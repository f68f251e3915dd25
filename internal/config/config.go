// Package config holds client-side configuration for the moatctl CLI:
// where cached credentials live and how the login password is obtained.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/term"
)

// Config holds the CLI configuration
type Config struct {
	DataDir   string
	TokenPath string
}

// Default returns the default configuration
func Default() (*Config, error) {
	// Use XDG_DATA_HOME or ~/.local/share as base directory
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		dataHome = filepath.Join(home, ".local", "share")
	}

	dataDir := filepath.Join(dataHome, "moat")

	// Ensure data directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return &Config{
		DataDir:   dataDir,
		TokenPath: filepath.Join(dataDir, "token"),
	}, nil
}

// SaveToken caches the JWT issued at login for later commands.
func (c *Config) SaveToken(token string) error {
	return os.WriteFile(c.TokenPath, []byte(token+"\n"), 0600)
}

// LoadToken returns the cached JWT, or "" when none is stored.
func (c *Config) LoadToken() string {
	data, err := os.ReadFile(c.TokenPath)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// GetPassword retrieves the login password from environment or prompts
// the user. Environment variable takes precedence: MOAT_PASSWORD
func GetPassword() (string, error) {
	// Check environment variable first
	if password := os.Getenv("MOAT_PASSWORD"); password != "" {
		return password, nil
	}

	// Prompt user for password (hidden input)
	fmt.Print("Password: ")
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println() // Print newline after password input
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	password := string(passwordBytes)
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}

	return password, nil
}
