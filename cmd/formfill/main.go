// CLAUDE:SUMMARY CLI entry point for formfill: one-shot fill of an application URL, HTTP API, MCP over stdio.
// Command formfill fills job application forms from a stored profile and
// remembered answers.
//
// Usage:
//
//	formfill -config formfill.yaml -profile me.yaml   # store the default profile
//	formfill -config formfill.yaml -url https://...   # open, fill, print the report
//	formfill -config formfill.yaml -serve             # HTTP API
//	formfill -config formfill.yaml -mcp               # MCP over stdio
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/m-mizutani/clog"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/formfill/config"
	"github.com/hazyhaar/formfill/engine"
	"github.com/hazyhaar/formfill/memory/remote"
	"github.com/hazyhaar/formfill/oracle"
	"github.com/hazyhaar/formfill/profile"
)

var version = "dev"

type options struct {
	pageURL     string
	profilePath string
	serve       bool
	mcp         bool
}

func main() {
	configPath := flag.String("config", "", "path to formfill.yaml config file")
	dbPath := flag.String("db", "", "path to SQLite database (overrides store.path)")
	pageURL := flag.String("url", "", "open this application page, fill it and print the report")
	profilePath := flag.String("profile", "", "profile file (JSON or YAML) to store as the default profile")
	serve := flag.Bool("serve", false, "serve the HTTP API")
	mcpStdio := flag.Bool("mcp", false, "serve MCP over stdio")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "", "log format: json, console")
	flag.Parse()

	cfg, err := resolveConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "formfill:", err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.Store.Path = *dbPath
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}

	// stdout carries MCP frames and reports; logs go to stderr.
	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	if *pageURL == "" && *profilePath == "" && !*serve && !*mcpStdio {
		fmt.Fprintln(os.Stderr, "usage: formfill [-config <file>] [-profile <file>] [-url <page>] [-serve] [-mcp]")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := options{pageURL: *pageURL, profilePath: *profilePath, serve: *serve, mcp: *mcpStdio}
	if err := run(ctx, logger, cfg, opts); err != nil {
		logger.Error("formfill: fatal", "error", err)
		os.Exit(1)
	}
}

func resolveConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadFile(path)
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	level := parseLevel(cfg.Level)
	if cfg.Format == "console" {
		return slog.New(clog.New(
			clog.WithWriter(w),
			clog.WithLevel(level),
			clog.WithTimeFmt("15:04:05"),
			clog.WithSource(false),
		))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg *config.Config, opts options) error {
	app, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	if opts.profilePath != "" {
		p, err := profile.Load(opts.profilePath)
		if err != nil {
			return err
		}
		if err := profile.Save(ctx, app.store, p); err != nil {
			return err
		}
		logger.Info("formfill: profile stored", "path", opts.profilePath, "fields", len(p.UserProfile))
	}

	if opts.pageURL != "" {
		if err := fillOnce(ctx, app.engine, opts.pageURL, os.Stdout); err != nil {
			return err
		}
	}

	if !opts.serve && !opts.mcp {
		return nil
	}

	errc := make(chan error, 2)
	if opts.serve {
		go func() { errc <- serveHTTP(ctx, app, cfg.Server, logger) }()
	}
	if opts.mcp {
		go func() { errc <- serveMCP(ctx, app.engine) }()
	}
	select {
	case <-ctx.Done():
		logger.Info("formfill: shutting down")
		return nil
	case err := <-errc:
		return err
	}
}

// fillOnce navigates, fills with the stored profile and writes the report.
func fillOnce(ctx context.Context, eng *engine.Engine, pageURL string, w io.Writer) error {
	scan, err := eng.Navigate(ctx, pageURL)
	if err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	slog.Info("formfill: page scanned", "url", pageURL, "strategy", scan.Strategy, "fields", scan.Count)

	report, err := eng.Fill(ctx, nil)
	if err != nil {
		return fmt.Errorf("fill: %w", err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func serveHTTP(ctx context.Context, app *app, cfg config.ServerConfig, logger *slog.Logger) error {
	r := app.engine.Handler()
	if cfg.ServeRemote {
		r.Mount("/remote", remote.NewHandler(app.served, logger))
	}
	if cfg.ServeOracle && app.oracle != nil {
		r.Mount("/oracle", oracle.NewHandler(app.oracle, logger))
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("formfill: http listening", "addr", cfg.Listen, "remote", cfg.ServeRemote, "oracle", cfg.ServeOracle)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, eng *engine.Engine) error {
	srv := mcp.NewServer(&mcp.Implementation{Name: "formfill", Version: version}, nil)
	eng.RegisterMCP(srv)
	if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp: %w", err)
	}
	return nil
}
