// Package config loads the bot configuration from TOML files via koanf.
package config

import (
	"errors"
	"fmt"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ErrConfigFileNotFound indicates no config file exists in any search path.
var ErrConfigFileNotFound = errors.New("could not find config file in any config path")

// Config represents the entire application configuration.
type Config struct {
	Discord Discord `koanf:"discord"`
	Engine  Engine  `koanf:"engine"`
	Limits  Limits  `koanf:"limits"`
	Verify  Verify  `koanf:"verify"`
	Logging Logging `koanf:"logging"`
}

// Discord contains gateway connection configuration.
type Discord struct {
	Token string `koanf:"token"` // Bot token for authentication
}

// Engine contains rule engine tunables and snapshot locations.
type Engine struct {
	MatchDeadline int    `koanf:"match_deadline"` // Per-match deadline in milliseconds
	RulesFile     string `koanf:"rules_file"`     // Rule configuration snapshot path
	StatsFile     string `koanf:"stats_file"`     // Violation statistics snapshot path
}

// Limits contains the sliding-window rate limiter pairs.
type Limits struct {
	Commands Limit `koanf:"commands"` // Administrative command throttling
	Verify   Limit `koanf:"verify"`   // Verification request throttling
}

// Limit is one (max, window) pair plus its warning cooldown.
type Limit struct {
	MaxRequests  int `koanf:"max_requests"`  // Requests allowed per window
	Window       int `koanf:"window"`        // Window length in seconds
	WarnCooldown int `koanf:"warn_cooldown"` // Seconds between rate-limit warnings
}

// Verify contains the member verification flow configuration.
type Verify struct {
	RoleID      uint64 `koanf:"role_id"`      // Role granted on successful verification
	CodeLength  int    `koanf:"code_length"`  // CAPTCHA digit count
	MaxAttempts int    `koanf:"max_attempts"` // Lifetime verify attempts per member
	SessionTTL  int    `koanf:"session_ttl"`  // Seconds a pending challenge stays valid
}

// Logging contains log output configuration.
type Logging struct {
	Level         string `koanf:"level"`            // Log level (debug, info, warn, error)
	Dir           string `koanf:"dir"`              // Log session directory
	MaxLogsToKeep int    `koanf:"max_logs_to_keep"` // Maximum log sessions to keep
}

// LoadConfig loads the configuration from the first sentra.toml found in the
// search paths, applying defaults for anything unset.
func LoadConfig() (*Config, error) {
	k := koanf.New(".")

	configPaths := []string{
		".sentra",
		"/etc/sentra",
		".",
	}

	loaded := false
	for _, path := range configPaths {
		configPath := fmt.Sprintf("%s/sentra.toml", path)
		if err := k.Load(file.Provider(configPath), toml.Parser()); err == nil {
			loaded = true
			break
		}
	}
	if !loaded {
		return nil, fmt.Errorf("%w: sentra.toml", ErrConfigFileNotFound)
	}

	cfg := defaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Engine: Engine{
			MatchDeadline: 1000,
			RulesFile:     "data/rules.json",
			StatsFile:     "data/violation_stats.json",
		},
		Limits: Limits{
			Commands: Limit{MaxRequests: 5, Window: 60, WarnCooldown: 30},
			Verify:   Limit{MaxRequests: 3, Window: 60, WarnCooldown: 60},
		},
		Verify: Verify{
			CodeLength:  6,
			MaxAttempts: 10,
			SessionTTL:  300,
		},
		Logging: Logging{
			Level:         "info",
			Dir:           "logs",
			MaxLogsToKeep: 10,
		},
	}
}
