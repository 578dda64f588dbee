package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/formfill/config"
	"github.com/hazyhaar/formfill/connectivity"
	"github.com/hazyhaar/formfill/dbopen"
	"github.com/hazyhaar/formfill/dom/rodpage"
	"github.com/hazyhaar/formfill/engine"
	"github.com/hazyhaar/formfill/fuzzy"
	"github.com/hazyhaar/formfill/kvstore"
	"github.com/hazyhaar/formfill/memory"
	"github.com/hazyhaar/formfill/memory/remote"
	"github.com/hazyhaar/formfill/observability"
	"github.com/hazyhaar/formfill/oracle"
	"github.com/hazyhaar/formfill/strategy"
)

// app holds the wired components and their closers.
type app struct {
	db      *sql.DB
	store   kvstore.Store
	served  memory.RemoteStore // backs /remote
	oracle  oracle.Oracle      // guarded, nil when disabled
	engine  *engine.Engine
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.db, err = dbopen.Open(cfg.Store.Path, dbopen.WithMkdirAll())
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	a.closers = append(a.closers, func() { a.db.Close() })

	store, err := kvstore.NewSQLite(a.db)
	if err != nil {
		return nil, err
	}
	a.store = store

	if err := observability.Init(a.db); err != nil {
		return nil, fmt.Errorf("init run history: %w", err)
	}
	if cfg.Store.RetentionDays > 0 {
		n, err := observability.Cleanup(ctx, a.db, observability.RetentionConfig{RunsDays: cfg.Store.RetentionDays})
		if err != nil {
			logger.Warn("formfill: run history cleanup", "error", err)
		} else if n > 0 {
			logger.Info("formfill: run history cleaned", "deleted", n)
		}
	}

	if cfg.Server.ServeRemote {
		served, err := remote.NewSQLite(a.db)
		if err != nil {
			return nil, err
		}
		a.served = served
	}

	matcher := fuzzy.Default()
	if cfg.Dictionary != "" {
		d, err := fuzzy.LoadDictionary(cfg.Dictionary)
		if err != nil {
			return nil, err
		}
		matcher = fuzzy.New(d)
	}

	rs, err := buildRemote(ctx, cfg.Remote, logger, a)
	if err != nil {
		return nil, err
	}
	mem := memory.New(memory.Config{Store: store, Remote: rs, Matcher: matcher, Logger: logger})

	orc, err := buildOracle(ctx, cfg.Oracle, logger, a)
	if err != nil {
		return nil, err
	}
	var deps oracle.Oracle
	if orc != nil {
		a.oracle = orc
		deps = orc
	}

	manager := strategy.NewManager(strategy.Deps{
		Memory:  mem,
		Oracle:  deps,
		Matcher: matcher,
		Logger:  logger,
		Timing: strategy.Timing{
			FieldTimeout:   cfg.Fill.FieldTimeout,
			ComboboxSettle: cfg.Fill.ComboboxSettle,
			ResumeSettle:   cfg.Fill.ResumeSettle,
			SectionWait:    cfg.Fill.SectionWait,
		},
		Text: strategy.TextOptions{
			MaxChars:  cfg.Text.MaxChars,
			MinRegion: cfg.Text.MinRegion,
			Format:    cfg.Text.Format,
		},
	})

	browser := rodpage.New(rodpage.Config{
		RemoteURL:         cfg.Browser.Remote,
		Bin:               cfg.Browser.Bin,
		Headless:          cfg.Browser.Display != "headful",
		Stealth:           cfg.Browser.Stealth,
		ResourceBlocking:  cfg.Browser.ResourceBlocking,
		NavigationTimeout: cfg.Browser.NavigationTimeout,
		Logger:            logger,
	})
	a.closers = append(a.closers, func() {
		if err := browser.Close(); err != nil {
			logger.Warn("formfill: close browser", "error", err)
		}
	})

	a.engine = engine.New(engine.Config{
		Manager:          manager,
		Memory:           mem,
		Store:            store,
		RunLog:           observability.NewRunLog(a.db, observability.WithLogger(logger)),
		Navigator:        browser,
		AllowPrivateURLs: cfg.Browser.AllowPrivate,
		Poll:             cfg.Fill.PausePoll,
		Logger:           logger,
	})
	return a, nil
}

// buildRemote returns the remote answer store, or nil when none is
// configured.
func buildRemote(ctx context.Context, cfg config.RemoteConfig, logger *slog.Logger, a *app) (memory.RemoteStore, error) {
	switch cfg.Backend {
	case "http":
		rc, err := routeConfig(cfg.Token)
		if err != nil {
			return nil, err
		}
		call, closeFn, err := connectivity.HTTPFactory(connectivity.WithAllowPrivate(cfg.AllowPrivate))(cfg.URL, rc)
		if err != nil {
			return nil, fmt.Errorf("remote: %w", err)
		}
		if closeFn != nil {
			a.closers = append(a.closers, closeFn)
		}
		call = connectivity.WithRetry(2, 200*time.Millisecond, logger)(call)
		logger.Info("formfill: remote answers over http", "url", cfg.URL)
		return remote.NewHTTP(call), nil
	case "firestore":
		fs, err := remote.NewFirestore(ctx, cfg.Project, cfg.Database, cfg.Collection)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { fs.Close() })
		logger.Info("formfill: remote answers in firestore", "project", cfg.Project, "collection", cfg.Collection)
		return fs, nil
	}
	return nil, nil
}

// buildOracle returns the guarded Oracle, or nil when none is configured.
func buildOracle(ctx context.Context, cfg config.OracleConfig, logger *slog.Logger, a *app) (*oracle.Guarded, error) {
	var next oracle.Oracle
	switch cfg.Backend {
	case "http":
		h, err := oracle.NewHTTP(oracle.HTTPConfig{
			BaseURL: cfg.URL,
			Mode:    cfg.Mode,
			Token:   cfg.Token,
			Factory: connectivity.HTTPFactory(connectivity.WithAllowPrivate(cfg.AllowPrivate)),
			Retries: cfg.Retries,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, h.Close)
		next = h
	case "gemini":
		g, err := oracle.NewGemini(ctx, oracle.GeminiConfig{
			APIKey:   cfg.Gemini.APIKey,
			Project:  cfg.Gemini.Project,
			Location: cfg.Gemini.Location,
			Model:    cfg.Gemini.Model,
		})
		if err != nil {
			return nil, err
		}
		next = g
	default:
		return nil, nil
	}
	logger.Info("formfill: oracle enabled", "backend", cfg.Backend)
	return oracle.NewGuarded(next, oracle.GuardConfig{
		DropdownTimeout: cfg.DropdownTimeout,
		AnswerTimeout:   cfg.AnswerTimeout,
		Breaker: connectivity.NewCircuitBreaker(
			connectivity.WithBreakerThreshold(cfg.BreakerThreshold),
			connectivity.WithBreakerResetTimeout(cfg.BreakerReset),
		),
		Logger: logger,
	}), nil
}

func routeConfig(token string) (json.RawMessage, error) {
	rc := map[string]any{}
	if token != "" {
		rc["headers"] = map[string]string{"Authorization": "Bearer " + token}
	}
	return json.Marshal(rc)
}
