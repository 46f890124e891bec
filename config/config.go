package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// The backing collection is named "entries", optionally namespaced by a
// caller-supplied prefix. Pure configuration, no runtime state.
const defaultCollection = "entries"

// Config describes one bucketset node.
type Config struct {
	// Backend selects the document store: memory, bolt, badger or postgres.
	Backend string `toml:"backend"`
	// DBPath is the bolt file or badger directory.
	DBPath string `toml:"db_path"`
	// DSN is the postgres connection string. The BUCKETSET_DSN
	// environment variable takes precedence, so credentials can stay
	// out of the config file.
	DSN string `toml:"dsn"`
	// Prefix namespaces the backing collection.
	Prefix string `toml:"prefix"`

	HTTPAddr string `toml:"http_addr"`
	LogLevel string `toml:"log_level"`
}

// ParseFile parses and validates the TOML config at path.
func ParseFile(path string) (Config, error) {
	var c Config
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return Config{}, fmt.Errorf("decoding config %q: %w", path, err)
	}

	if dsn := os.Getenv("BUCKETSET_DSN"); dsn != "" {
		c.DSN = dsn
	}
	if level := os.Getenv("BUCKETSET_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}

	if c.Backend == "" {
		c.Backend = "memory"
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = "127.0.0.1:8080"
	}

	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) validate() error {
	switch c.Backend {
	case "memory":
	case "bolt", "badger":
		if c.DBPath == "" {
			return fmt.Errorf("backend %q requires db_path", c.Backend)
		}
	case "postgres":
		if c.DSN == "" {
			return fmt.Errorf("backend %q requires dsn (or BUCKETSET_DSN)", c.Backend)
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	return nil
}

// Collection returns the backing collection's identifier, prefixed by
// the configured namespace when one is set.
func (c Config) Collection() string {
	if c.Prefix == "" {
		return defaultCollection
	}
	return c.Prefix + "_" + defaultCollection
}
