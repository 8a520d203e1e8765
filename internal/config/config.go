// Package config provides configuration loading for mailtriage.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for all mailtriage commands.
type Config struct {
	Accounts []AccountConfig `koanf:"accounts"`
	LLM      LLMConfig       `koanf:"llm"`
	Pipeline PipelineConfig  `koanf:"pipeline"`
	Ledger   LedgerConfig    `koanf:"ledger"`
	Notion   NotionConfig    `koanf:"notion"`
	Notify   NotifyConfig    `koanf:"notify"`
	Watch    WatchConfig     `koanf:"watch"`
	Log      LogConfig       `koanf:"log"`
}

// AccountConfig describes one IMAP mailbox to poll.
type AccountConfig struct {
	// Name is the short label used in logs, the ledger and destinations.
	Name     string `koanf:"name"`
	Address  string `koanf:"address"`
	Password Secret `koanf:"password"`
	IMAPHost string `koanf:"imap_host"`
	IMAPPort int    `koanf:"imap_port"`
}

// LLMConfig configures the OpenAI-compatible chat-completions endpoint used
// by both classification stages.
type LLMConfig struct {
	BaseURL string `koanf:"base_url"`
	APIKey  Secret `koanf:"api_key"`
	Model   string `koanf:"model"`
	// Timeout bounds a single chat request including retrieval of the body.
	Timeout Duration `koanf:"timeout"`
	// MaxRetries counts attempts after the first for transient failures.
	MaxRetries int `koanf:"max_retries"`
	// RequestsPerMinute throttles outbound calls. 0 disables throttling.
	RequestsPerMinute int `koanf:"requests_per_minute"`
}

// PipelineConfig tunes the triage pipeline itself.
type PipelineConfig struct {
	// CoarseBatchSize is the number of (subject, sender) pairs per stage-1
	// request.
	CoarseBatchSize int `koanf:"coarse_batch_size"`
	// FetchLimit caps unread messages pulled per account per tick.
	FetchLimit int `koanf:"fetch_limit"`
	// MaxBodyBytes caps the body text handed to deep analysis.
	MaxBodyBytes int `koanf:"max_body_bytes"`
	// SummaryLimit bounds the model-produced summary in runes.
	SummaryLimit int `koanf:"summary_limit"`
	// RetryCap is the consecutive-failure count after which a message is
	// permanently skipped.
	RetryCap int `koanf:"retry_cap"`
	// DropSpam discards published-spam records instead of recording them as
	// low-priority noise.
	DropSpam bool `koanf:"drop_spam"`
	// MarkRead controls whether committed messages are flagged Seen on the
	// server.
	MarkRead bool `koanf:"mark_read"`
}

// LedgerConfig locates the processed-message ledger.
type LedgerConfig struct {
	// Path is the SQLite database file. Empty selects the default under the
	// user config directory.
	Path string `koanf:"path"`
	// RetentionDays is the default window for the purge command.
	RetentionDays int `koanf:"retention_days"`
}

// NotionConfig configures the Notion destination. When Token is unset the
// pipeline runs with a no-op destination.
type NotionConfig struct {
	Token Secret `koanf:"token"`
	// Database IDs, one per destination kind.
	PapersDB  string `koanf:"papers_db"`
	ReviewsDB string `koanf:"reviews_db"`
	MailLogDB string `koanf:"mail_log_db"`
	BillingDB string `koanf:"billing_db"`
}

// NotifyConfig configures end-of-tick notifications.
type NotifyConfig struct {
	Enabled bool `koanf:"enabled"`
	// Level is one of "all", "important", "summary".
	Level string `koanf:"level"`
	// QuietHours is a "HH:MM-HH:MM" window (may wrap midnight) during which
	// nothing is sent.
	QuietHours string `koanf:"quiet_hours"`
}

// WatchConfig configures the watch command.
type WatchConfig struct {
	Interval Duration `koanf:"interval"`
	// Listen is the optional address for /healthz, /metrics and /stats.
	// Empty disables the HTTP server.
	Listen string `koanf:"listen"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is "console" or "json".
	Format string `koanf:"format"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = Duration(60 * time.Second)
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 3
	}

	if cfg.Pipeline.CoarseBatchSize == 0 {
		cfg.Pipeline.CoarseBatchSize = 20
	}
	if cfg.Pipeline.FetchLimit == 0 {
		cfg.Pipeline.FetchLimit = 100
	}
	if cfg.Pipeline.MaxBodyBytes == 0 {
		cfg.Pipeline.MaxBodyBytes = 8 * 1024
	}
	if cfg.Pipeline.SummaryLimit == 0 {
		cfg.Pipeline.SummaryLimit = 200
	}
	if cfg.Pipeline.RetryCap == 0 {
		cfg.Pipeline.RetryCap = 3
	}

	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 90
	}

	if cfg.Notify.Level == "" {
		cfg.Notify.Level = "summary"
	}

	if cfg.Watch.Interval == 0 {
		cfg.Watch.Interval = Duration(10 * time.Minute)
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}

	for i := range cfg.Accounts {
		if cfg.Accounts[i].IMAPPort == 0 {
			cfg.Accounts[i].IMAPPort = 993
		}
	}
}

// Validate checks configuration consistency. It does not require accounts or
// LLM credentials; commands that need them check separately so that stats and
// purge work from a bare config.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Accounts))
	for _, a := range c.Accounts {
		if a.Name == "" {
			return fmt.Errorf("account with address %q has no name", a.Address)
		}
		if seen[a.Name] {
			return fmt.Errorf("duplicate account name %q", a.Name)
		}
		seen[a.Name] = true
		if a.Address == "" {
			return fmt.Errorf("account %q has no address", a.Name)
		}
		if a.IMAPHost == "" {
			return fmt.Errorf("account %q has no imap_host", a.Name)
		}
		if a.IMAPPort <= 0 || a.IMAPPort > 65535 {
			return fmt.Errorf("account %q has invalid imap_port %d", a.Name, a.IMAPPort)
		}
	}

	if c.Pipeline.CoarseBatchSize < 1 || c.Pipeline.CoarseBatchSize > 100 {
		return fmt.Errorf("pipeline.coarse_batch_size must be in [1,100], got %d", c.Pipeline.CoarseBatchSize)
	}
	if c.Pipeline.FetchLimit < 1 {
		return fmt.Errorf("pipeline.fetch_limit must be positive, got %d", c.Pipeline.FetchLimit)
	}
	if c.Pipeline.RetryCap < 1 {
		return fmt.Errorf("pipeline.retry_cap must be positive, got %d", c.Pipeline.RetryCap)
	}

	switch c.Notify.Level {
	case "all", "important", "summary":
	default:
		return fmt.Errorf("notify.level must be one of all|important|summary, got %q", c.Notify.Level)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug|info|warn|error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}

	if c.Watch.Interval.Duration() < time.Second {
		return fmt.Errorf("watch.interval must be at least 1s, got %s", c.Watch.Interval.Duration())
	}

	return nil
}

// RequireAccounts returns an error when no mailbox accounts are configured.
// Used by the run and watch commands.
func (c *Config) RequireAccounts() error {
	if len(c.Accounts) == 0 {
		return fmt.Errorf("no accounts configured")
	}
	return nil
}

// RequireLLM returns an error when the LLM endpoint is not usable.
func (c *Config) RequireLLM() error {
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url is required")
	}
	if !c.LLM.APIKey.IsSet() {
		return fmt.Errorf("llm.api_key is required")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	return nil
}
