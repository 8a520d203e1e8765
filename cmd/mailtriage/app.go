package main

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/yuqing-ac/mailtriage/internal/billing"
	"github.com/yuqing-ac/mailtriage/internal/classify"
	"github.com/yuqing-ac/mailtriage/internal/config"
	"github.com/yuqing-ac/mailtriage/internal/destination"
	"github.com/yuqing-ac/mailtriage/internal/ledger"
	"github.com/yuqing-ac/mailtriage/internal/logging"
	"github.com/yuqing-ac/mailtriage/internal/mail"
	"github.com/yuqing-ac/mailtriage/internal/metrics"
	"github.com/yuqing-ac/mailtriage/internal/notify"
	"github.com/yuqing-ac/mailtriage/internal/pipeline"
	"github.com/yuqing-ac/mailtriage/internal/route"
)

// env is the part of the application every command needs: config, logger
// and the ledger.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	store  ledger.Store
}

func (e *env) close() {
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			e.logger.Warn("ledger close failed", zap.Error(err))
		}
	}
	_ = logging.Sync(e.logger)
}

// newEnv loads configuration and opens the ledger. Used directly by stats
// and purge, which need no mailbox or LLM access.
func newEnv() (*env, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	path, err := ledgerPath(cfg)
	if err != nil {
		return nil, err
	}
	store, err := ledger.OpenSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	return &env{cfg: cfg, logger: logger, store: store}, nil
}

func ledgerPath(cfg *config.Config) (string, error) {
	if cfg.Ledger.Path != "" {
		return cfg.Ledger.Path, nil
	}
	return config.DefaultLedgerPath()
}

// app is the fully wired pipeline used by run and watch.
type app struct {
	*env
	source  *mail.IMAPSource
	billing *billing.Store
	orch    *pipeline.Orchestrator
}

func (a *app) close() {
	if a.source != nil {
		_ = a.source.Close()
	}
	if a.billing != nil {
		if err := a.billing.Close(); err != nil {
			a.logger.Warn("billing store close failed", zap.Error(err))
		}
	}
	a.env.close()
}

func newApp() (*app, error) {
	e, err := newEnv()
	if err != nil {
		return nil, err
	}
	cfg, logger := e.cfg, e.logger

	if err := cfg.RequireAccounts(); err != nil {
		return nil, err
	}
	if err := cfg.RequireLLM(); err != nil {
		return nil, err
	}

	client, err := classify.NewChatClient(classify.ClientConfig{
		BaseURL:           cfg.LLM.BaseURL,
		APIKey:            cfg.LLM.APIKey.Value(),
		Model:             cfg.LLM.Model,
		Timeout:           cfg.LLM.Timeout.Duration(),
		MaxRetries:        cfg.LLM.MaxRetries,
		RequestsPerMinute: cfg.LLM.RequestsPerMinute,
	})
	if err != nil {
		return nil, fmt.Errorf("llm client: %w", err)
	}

	accounts := make([]mail.Account, len(cfg.Accounts))
	names := make([]string, len(cfg.Accounts))
	for i, a := range cfg.Accounts {
		accounts[i] = mail.Account{
			Name:     a.Name,
			Address:  a.Address,
			Password: a.Password.Value(),
			Host:     a.IMAPHost,
			Port:     a.IMAPPort,
		}
		names[i] = a.Name
	}
	source := mail.NewIMAPSource(accounts, cfg.Pipeline.FetchLimit, cfg.Pipeline.MaxBodyBytes, logger)

	var dest destination.Destination = &destination.NoOp{Logger: logger}
	if cfg.Notion.Token.IsSet() {
		dest, err = destination.NewNotion(destination.NotionConfig{
			Token:     cfg.Notion.Token.Value(),
			PapersDB:  cfg.Notion.PapersDB,
			ReviewsDB: cfg.Notion.ReviewsDB,
			MailLogDB: cfg.Notion.MailLogDB,
			BillingDB: cfg.Notion.BillingDB,
		}, logger)
		if err != nil {
			return nil, err
		}
	} else {
		logger.Warn("no notion token configured, destination sync disabled")
	}

	lpath, err := ledgerPath(cfg)
	if err != nil {
		return nil, err
	}
	billingStore, err := billing.Open(filepath.Join(filepath.Dir(lpath), "billing.db"))
	if err != nil {
		return nil, fmt.Errorf("open billing store: %w", err)
	}

	router := route.NewRouter(
		route.NewAcademicHandler(dest, logger),
		route.NewBillingHandler(billingStore, dest, logger),
		route.NewGeneralHandler(dest, cfg.Pipeline.DropSpam, logger),
	)

	var sink notify.Sink
	if cfg.Notify.Enabled {
		sink = notify.DesktopSink{}
	}
	level, err := notify.ParseLevel(cfg.Notify.Level)
	if err != nil {
		return nil, err
	}
	quiet, err := notify.ParseQuietHours(cfg.Notify.QuietHours)
	if err != nil {
		return nil, err
	}

	orch := pipeline.NewOrchestrator(pipeline.Deps{
		Source:   source,
		Accounts: names,
		Coarse:   classify.NewCoarseFilter(client, cfg.Pipeline.CoarseBatchSize, logger),
		Deep:     classify.NewDeepAnalyzer(client, cfg.Pipeline.SummaryLimit, cfg.Pipeline.MaxBodyBytes, logger),
		Router:   router,
		Ledger:   e.store,
		Notifier: notify.NewNotifier(sink, level, quiet, logger),
		Metrics:  metrics.New(),
		Config:   cfg.Pipeline,
		Logger:   logger,
	})

	return &app{env: e, source: source, billing: billingStore, orch: orch}, nil
}
