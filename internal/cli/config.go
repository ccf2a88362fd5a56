package cli

import (
	"os"
	"time"
)

// Config holds CLI configuration
type Config struct {
	ServerURL string
	PlayerID  string
	Name      string
	Output    string
	Verbose   bool
	Timeout   time.Duration
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		ServerURL: getEnvOrDefault("MMCTL_SERVER", "http://localhost:8080"),
		PlayerID:  os.Getenv("MMCTL_PLAYER_ID"),
		Name:      os.Getenv("MMCTL_NAME"),
		Output:    "text",
		Verbose:   false,
		Timeout:   30 * time.Second,
	}
}

// RequirePlayer returns the configured player id or an error naming the flag
func (c *Config) RequirePlayer() (string, error) {
	if c.PlayerID == "" {
		return "", errMissing("--player", "MMCTL_PLAYER_ID")
	}
	return c.PlayerID, nil
}

// RequireName returns the configured display name or an error naming the flag
func (c *Config) RequireName() (string, error) {
	if c.Name == "" {
		return "", errMissing("--name", "MMCTL_NAME")
	}
	return c.Name, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
