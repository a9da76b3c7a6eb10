package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DatabaseConfig selects and tunes the shared task store.
// Driver is "sqlite" or "postgres"; URL, when set, overrides both.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	URL             string        `mapstructure:"url"`
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	BusyTimeoutMs   int           `mapstructure:"busy_timeout_ms"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// applyURL folds a DATABASE_URL style value into the driver fields.
// Accepted forms: postgres://..., postgresql://..., sqlite:///path, sqlite://path.
func (c *DatabaseConfig) applyURL() error {
	if c.URL == "" {
		return nil
	}
	switch {
	case strings.HasPrefix(c.URL, "postgres://"), strings.HasPrefix(c.URL, "postgresql://"):
		c.Driver = "postgres"
	case strings.HasPrefix(c.URL, "sqlite://"):
		c.Driver = "sqlite"
		// sqlite:///rel/path is relative, sqlite:////abs/path is absolute
		path := strings.TrimPrefix(c.URL, "sqlite:///")
		if path == c.URL {
			path = strings.TrimPrefix(c.URL, "sqlite://")
		}
		c.Path = path
		c.URL = ""
	default:
		return fmt.Errorf("unsupported database url scheme: %q", c.URL)
	}
	return nil
}

// DSN returns the driver-specific connection string.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		if c.URL != "" {
			return c.URL
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}

	busy := c.BusyTimeoutMs
	if busy <= 0 {
		busy = 5000
	}
	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	params.Set("_busy_timeout", fmt.Sprint(busy))
	params.Set("_foreign_keys", "1")
	// BEGIN IMMEDIATE takes the write lock up front so the claim
	// transaction never has to upgrade a read lock
	params.Set("_txlock", "immediate")
	return c.Path + "?" + params.Encode()
}
