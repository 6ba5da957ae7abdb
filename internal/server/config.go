package server

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Config represents the complete server configuration
type Config struct {
	Server ServerSettings `hcl:"server,block"`
	Game   GameSettings   `hcl:"game,block"`
}

// ServerSettings contains server-level configuration
type ServerSettings struct {
	Address  string `hcl:"address,optional"`
	Port     int    `hcl:"port,optional"`
	LogLevel string `hcl:"log_level,optional"`
}

// GameSettings contains the table rules and pacing knobs
type GameSettings struct {
	MaxSeats         int `hcl:"max_seats,optional"`
	StartingChips    int `hcl:"starting_chips,optional"`
	AutoStandSeconds int `hcl:"auto_stand_seconds,optional"`
	GraceSeconds     int `hcl:"grace_seconds,optional"`
	DealPauseMs      int `hcl:"deal_pause_ms,optional"`
	DealerPauseMs    int `hcl:"dealer_pause_ms,optional"`
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerSettings{
			Address:  "localhost",
			Port:     8080,
			LogLevel: "info",
		},
		Game: GameSettings{
			MaxSeats:         7,
			StartingChips:    1000,
			AutoStandSeconds: 5,
			GraceSeconds:     45,
			DealPauseMs:      300,
			DealerPauseMs:    600,
		},
	}
}

// LoadConfig loads server configuration from an HCL file, falling back to
// defaults when the file does not exist.
func LoadConfig(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config Config
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	// Apply defaults for missing values
	defaults := DefaultConfig()
	if config.Server.Address == "" {
		config.Server.Address = defaults.Server.Address
	}
	if config.Server.Port == 0 {
		config.Server.Port = defaults.Server.Port
	}
	if config.Server.LogLevel == "" {
		config.Server.LogLevel = defaults.Server.LogLevel
	}
	if config.Game.MaxSeats == 0 {
		config.Game.MaxSeats = defaults.Game.MaxSeats
	}
	if config.Game.StartingChips == 0 {
		config.Game.StartingChips = defaults.Game.StartingChips
	}
	if config.Game.AutoStandSeconds == 0 {
		config.Game.AutoStandSeconds = defaults.Game.AutoStandSeconds
	}
	if config.Game.GraceSeconds == 0 {
		config.Game.GraceSeconds = defaults.Game.GraceSeconds
	}
	if config.Game.DealPauseMs == 0 {
		config.Game.DealPauseMs = defaults.Game.DealPauseMs
	}
	if config.Game.DealerPauseMs == 0 {
		config.Game.DealerPauseMs = defaults.Game.DealerPauseMs
	}

	return &config, nil
}

// Validate validates the server configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Game.MaxSeats < 1 || c.Game.MaxSeats > 7 {
		return fmt.Errorf("max seats must be between 1 and 7, got %d", c.Game.MaxSeats)
	}
	if c.Game.StartingChips <= 0 {
		return fmt.Errorf("starting chips must be positive, got %d", c.Game.StartingChips)
	}
	if c.Game.AutoStandSeconds <= 0 {
		return fmt.Errorf("auto-stand delay must be positive, got %d", c.Game.AutoStandSeconds)
	}
	if c.Game.GraceSeconds <= c.Game.AutoStandSeconds {
		return fmt.Errorf("grace period (%ds) must exceed the auto-stand delay (%ds)",
			c.Game.GraceSeconds, c.Game.AutoStandSeconds)
	}
	return nil
}

// ListenAddr returns the full listen address
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// Settings converts the game block into room service settings.
func (g GameSettings) Settings() Settings {
	return Settings{
		MaxSeats:       g.MaxSeats,
		StartingChips:  g.StartingChips,
		AutoStandDelay: time.Duration(g.AutoStandSeconds) * time.Second,
		GracePeriod:    time.Duration(g.GraceSeconds) * time.Second,
		DealPause:      time.Duration(g.DealPauseMs) * time.Millisecond,
		DealerPause:    time.Duration(g.DealerPauseMs) * time.Millisecond,
	}
}
