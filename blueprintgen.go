package blueprintgen

import "github.com/jward/blueprintgen/internal/config"

// Version is reported by the CLI and the MCP server.
const Version = "0.3.0"

// LoadConfig reads the settings of the project at root: built-in defaults,
// then blueprintgen.yaml, then .env, then BLUEPRINTGEN_* variables.
func LoadConfig(root string) (*Config, error) {
	return config.Load(root)
}

// DefaultConfig returns the built-in settings for the project at root.
func DefaultConfig(root string) *Config {
	return config.Default(root)
}
