package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (LLM_API_KEY, NOTION_TOKEN, ...)
//  2. YAML config file (~/.config/mailtriage/config.yaml by default)
//  3. Hardcoded defaults
//
// A .env file in the working directory is loaded first when present, so that
// credentials can live next to the checkout during development.
//
// Environment variables map onto config keys by lowercasing and splitting on
// the first underscore:
//
//	LLM_API_KEY      -> llm.api_key
//	NOTIFY_QUIET_HOURS -> notify.quiet_hours
//	WATCH_INTERVAL   -> watch.interval
func LoadWithFile(configPath string) (*Config, error) {
	// Best-effort: absence of a .env file is the normal case.
	_ = godotenv.Load()

	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "mailtriage", "config.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// configSections are the top-level keys env vars may target. Anything else
// (PATH, HOME, ...) is dropped instead of polluting the koanf tree.
var configSections = map[string]bool{
	"llm":      true,
	"pipeline": true,
	"ledger":   true,
	"notion":   true,
	"notify":   true,
	"watch":    true,
	"log":      true,
}

// envTransform maps LLM_API_KEY -> llm.api_key. Splits on the first
// underscore only: the section name never contains one, field names may.
func envTransform(s string) string {
	lower := strings.ToLower(s)
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) != 2 || !configSections[parts[0]] {
		return ""
	}
	return parts[0] + "." + parts[1]
}

// DefaultLedgerPath returns the ledger location used when ledger.path is not
// configured.
func DefaultLedgerPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	dir := filepath.Join(home, ".config", "mailtriage")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}
	return filepath.Join(dir, "ledger.db"), nil
}
