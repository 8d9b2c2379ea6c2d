package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aceystream/cardtable/internal/game"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cardtable.hcl")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.hcl"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Equal(t, "localhost:8080", cfg.ListenAddress())
	require.NotNil(t, cfg.TableFor("blackjack"))
	require.NotNil(t, cfg.TableFor("poker"))
}

func TestLoadParsesServerAndTables(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
server {
  address   = "0.0.0.0"
  port      = 9000
  log_level = "debug"
  redis_url = "redis://localhost:6379/2"
}

table "poker" {
  small_blind  = 25
  big_blind    = 50
  turn_seconds = 15
}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, "0.0.0.0:9000", cfg.ListenAddress())
	require.Equal(t, "redis://localhost:6379/2", cfg.Server.RedisURL)

	poker := cfg.TableFor("poker")
	require.NotNil(t, poker)
	require.Equal(t, int64(25), poker.SmallBlind)
	require.Equal(t, int64(50), poker.BigBlind)
	require.Equal(t, 15, poker.TurnSeconds)

	// The blackjack block was omitted and must fall back to defaults.
	bj := cfg.TableFor("blackjack")
	require.NotNil(t, bj)
	require.Equal(t, int64(500), bj.MaxBet)
}

func TestLoadRejectsMalformedHCL(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `server { port = `)
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateCatchesBadTables(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"blind inversion", func(c *Config) {
			c.TableFor("poker").BigBlind = 1
		}},
		{"zero min bet", func(c *Config) {
			c.TableFor("blackjack").MinBet = -1
		}},
		{"unknown policy", func(c *Config) {
			c.TableFor("poker").TimeoutPolicy = "mash"
		}},
		{"port collision", func(c *Config) {
			c.Server.AdminPort = c.Server.Port
		}},
		{"unknown mode", func(c *Config) {
			c.Tables = append(c.Tables, TableConfig{Mode: "war", TurnSeconds: 10})
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestRulesByMode(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
table "poker" {
  small_blind      = 25
  big_blind        = 50
  turn_seconds     = 15
  timeout_policy   = "stand"
  persist_attempts = 2
}
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	rules, err := cfg.RulesByMode()
	require.NoError(t, err)

	pr, ok := rules[game.ModePoker]
	require.True(t, ok)
	require.Equal(t, int64(25), pr.SmallBlind)
	require.Equal(t, int64(50), pr.BigBlind)
	require.Equal(t, 15*time.Second, pr.TurnTimeout)
	require.Equal(t, game.TimeoutPolicyStand, pr.TimeoutPolicy)
	require.Equal(t, 2, pr.PersistAttempts)

	// The blackjack defaults block converts too.
	bj, ok := rules[game.ModeBlackjack]
	require.True(t, ok)
	require.Greater(t, bj.MaxBet, bj.MinBet)
}
