// Package config loads the server configuration from an HCL file. A missing
// file is not an error: the engine starts on defaults so a bare binary is
// usable immediately.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/aceystream/cardtable/internal/game"
)

// Config represents the complete engine configuration
type Config struct {
	Server ServerSettings `hcl:"server,block"`
	Tables []TableConfig  `hcl:"table,block"`
}

// ServerSettings contains server-level configuration
type ServerSettings struct {
	Address        string `hcl:"address,optional"`
	Port           int    `hcl:"port,optional"`
	AdminPort      int    `hcl:"admin_port,optional"`
	LogLevel       string `hcl:"log_level,optional"`
	LogFile        string `hcl:"log_file,optional"`
	RedisURL       string `hcl:"redis_url,optional"`
	StartingChips  int64  `hcl:"starting_chips,optional"`
	QueueDepth     int    `hcl:"queue_depth,optional"`
	IdleTTLMinutes int    `hcl:"idle_ttl_minutes,optional"`
}

// TableConfig defines per-mode table rules. The label selects the game mode
// the block applies to ("blackjack" or "poker").
type TableConfig struct {
	Mode            string `hcl:"mode,label"`
	MinBet          int64  `hcl:"min_bet,optional"`
	MaxBet          int64  `hcl:"max_bet,optional"`
	SmallBlind      int64  `hcl:"small_blind,optional"`
	BigBlind        int64  `hcl:"big_blind,optional"`
	TurnSeconds     int    `hcl:"turn_seconds,optional"`
	BettingSeconds  int    `hcl:"betting_seconds,optional"`
	TimeoutPolicy   string `hcl:"timeout_policy,optional"`
	PersistAttempts int    `hcl:"persist_attempts,optional"`
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		Server: ServerSettings{
			Address:        "localhost",
			Port:           8080,
			AdminPort:      8081,
			LogLevel:       "info",
			StartingChips:  1000,
			QueueDepth:     64,
			IdleTTLMinutes: 30,
		},
		Tables: []TableConfig{
			{Mode: "blackjack", MinBet: 1, MaxBet: 500, TurnSeconds: 30, BettingSeconds: 30},
			{Mode: "poker", SmallBlind: 5, BigBlind: 10, TurnSeconds: 30},
		},
	}
}

// Load reads configuration from an HCL file, falling back to defaults when
// the file does not exist.
func Load(filename string) (*Config, error) {
	if filename == "" {
		return Default(), nil
	}
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return Default(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var cfg Config
	diags = gohcl.DecodeBody(file.Body, nil, &cfg)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()

	if c.Server.Address == "" {
		c.Server.Address = def.Server.Address
	}
	if c.Server.Port == 0 {
		c.Server.Port = def.Server.Port
	}
	if c.Server.AdminPort == 0 {
		c.Server.AdminPort = def.Server.AdminPort
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = def.Server.LogLevel
	}
	if c.Server.StartingChips == 0 {
		c.Server.StartingChips = def.Server.StartingChips
	}
	if c.Server.QueueDepth == 0 {
		c.Server.QueueDepth = def.Server.QueueDepth
	}
	if c.Server.IdleTTLMinutes == 0 {
		c.Server.IdleTTLMinutes = def.Server.IdleTTLMinutes
	}

	seen := make(map[string]bool)
	for i := range c.Tables {
		t := &c.Tables[i]
		seen[t.Mode] = true
		switch t.Mode {
		case "blackjack":
			if t.MinBet == 0 {
				t.MinBet = 1
			}
			if t.MaxBet == 0 {
				t.MaxBet = 500
			}
			if t.BettingSeconds == 0 {
				t.BettingSeconds = 30
			}
		case "poker":
			if t.SmallBlind == 0 {
				t.SmallBlind = 5
			}
			if t.BigBlind == 0 {
				t.BigBlind = t.SmallBlind * 2
			}
		}
		if t.TurnSeconds == 0 {
			t.TurnSeconds = 30
		}
	}

	// Missing table blocks fall back to their mode defaults.
	for _, t := range def.Tables {
		if !seen[t.Mode] {
			c.Tables = append(c.Tables, t)
		}
	}
	for i := range c.Tables {
		if c.Tables[i].PersistAttempts == 0 {
			c.Tables[i].PersistAttempts = 4
		}
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.AdminPort < 1 || c.Server.AdminPort > 65535 {
		return fmt.Errorf("invalid admin port: %d", c.Server.AdminPort)
	}
	if c.Server.Port == c.Server.AdminPort {
		return fmt.Errorf("admin port must differ from the main port")
	}
	if c.Server.QueueDepth < 1 {
		return fmt.Errorf("queue depth must be positive, got %d", c.Server.QueueDepth)
	}

	for _, t := range c.Tables {
		switch t.Mode {
		case "blackjack":
			if t.MinBet <= 0 {
				return fmt.Errorf("table %s: min bet must be positive", t.Mode)
			}
			if t.MaxBet < t.MinBet {
				return fmt.Errorf("table %s: max bet below min bet", t.Mode)
			}
		case "poker":
			if t.SmallBlind <= 0 {
				return fmt.Errorf("table %s: small blind must be positive", t.Mode)
			}
			if t.BigBlind <= t.SmallBlind {
				return fmt.Errorf("table %s: big blind must be greater than small blind", t.Mode)
			}
		default:
			return fmt.Errorf("unknown table mode %q", t.Mode)
		}
		if t.TurnSeconds <= 0 {
			return fmt.Errorf("table %s: turn_seconds must be positive", t.Mode)
		}
		switch t.TimeoutPolicy {
		case "", "fold", "stand":
		default:
			return fmt.Errorf("table %s: unknown timeout_policy %q", t.Mode, t.TimeoutPolicy)
		}
	}
	return nil
}

// ListenAddress returns the main listen address.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// AdminAddress returns the admin/metrics listen address.
func (c *Config) AdminAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.AdminPort)
}

// TableFor returns the table rules for a mode, nil when not configured.
func (c *Config) TableFor(mode string) *TableConfig {
	for i := range c.Tables {
		if c.Tables[i].Mode == mode {
			return &c.Tables[i]
		}
	}
	return nil
}

// IdleTTL returns the reaper eviction threshold.
func (c *Config) IdleTTL() time.Duration {
	return time.Duration(c.Server.IdleTTLMinutes) * time.Minute
}

// Rules converts a table block into engine rules.
func (t *TableConfig) Rules() game.Rules {
	r := game.DefaultRules()
	if t.MinBet > 0 {
		r.MinBet = t.MinBet
	}
	if t.MaxBet > 0 {
		r.MaxBet = t.MaxBet
	}
	if t.SmallBlind > 0 {
		r.SmallBlind = t.SmallBlind
	}
	if t.BigBlind > 0 {
		r.BigBlind = t.BigBlind
	}
	if t.TurnSeconds > 0 {
		r.TurnTimeout = time.Duration(t.TurnSeconds) * time.Second
	}
	if t.BettingSeconds > 0 {
		r.BettingWindow = time.Duration(t.BettingSeconds) * time.Second
	}
	if t.TimeoutPolicy != "" {
		r.TimeoutPolicy = game.TimeoutPolicy(t.TimeoutPolicy)
	}
	if t.PersistAttempts > 0 {
		r.PersistAttempts = t.PersistAttempts
	}
	return r
}

// RulesByMode returns the per-mode rules map the registry consumes.
func (c *Config) RulesByMode() (map[game.Mode]game.Rules, error) {
	rules := make(map[game.Mode]game.Rules, len(c.Tables))
	for i := range c.Tables {
		mode, err := game.ParseMode(c.Tables[i].Mode)
		if err != nil {
			return nil, err
		}
		rules[mode] = c.Tables[i].Rules()
	}
	return rules, nil
}
