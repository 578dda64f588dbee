// CLAUDE:SUMMARY Chrome lifecycle for formfill: launch or connect via Rod, stealth pages, resource blocking, one live application page at a time.
// Package rodpage implements the dom page accessor on a live Chrome page
// driven by Rod.
package rodpage

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/formfill/dom"
)

//go:embed formfill.js
var helperJS string

const bindingName = "__formfill_mutation"

// Config configures the browser.
type Config struct {
	// RemoteURL is the DevTools URL of a running Chrome. Empty launches a
	// local one.
	RemoteURL string

	// Bin overrides the Chrome binary used by the launcher.
	Bin string

	Headless bool
	Stealth  bool

	// ResourceBlocking lists resource types to block (image, font, media,
	// stylesheet). Plural forms are accepted.
	ResourceBlocking []string

	// NavigationTimeout bounds Navigate plus WaitLoad. Default: 30s.
	NavigationTimeout time.Duration

	Logger *slog.Logger
}

// Browser opens application pages in Chrome. It keeps a single live page:
// opening a new URL closes the previous one.
type Browser struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	current *Document
}

// New creates a Browser. Chrome starts on the first Open.
func New(cfg Config) *Browser {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Browser{cfg: cfg, logger: cfg.Logger}
}

// Open navigates a fresh page to pageURL and returns it as a dom.Document.
func (b *Browser) Open(ctx context.Context, pageURL string) (dom.Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rb, err := b.startLocked()
	if err != nil {
		return nil, err
	}

	var page *rod.Page
	if b.cfg.Stealth {
		page, err = stealth.Page(rb)
	} else {
		page, err = rb.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("rodpage: create page: %w", err)
	}

	if len(b.cfg.ResourceBlocking) > 0 {
		blockResources(page, b.cfg.ResourceBlocking)
	}

	if _, err := page.EvalOnNewDocument(helperJS); err != nil {
		page.Close()
		return nil, fmt.Errorf("rodpage: install helpers: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, b.cfg.NavigationTimeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("rodpage: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		b.logger.Warn("rodpage: wait load", "url", pageURL, "error", err)
	}

	doc, err := newDocument(page, b.logger)
	if err != nil {
		page.Close()
		return nil, err
	}

	if b.current != nil {
		b.current.close()
	}
	b.current = doc
	b.logger.Info("rodpage: page opened", "url", doc.URL(), "stealth", b.cfg.Stealth)
	return doc, nil
}

// Close shuts the page and Chrome down.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current != nil {
		b.current.close()
		b.current = nil
	}
	var err error
	if b.browser != nil {
		err = b.browser.Close()
		b.browser = nil
	}
	if b.lnch != nil {
		b.lnch.Cleanup()
		b.lnch = nil
	}
	return err
}

func (b *Browser) startLocked() (*rod.Browser, error) {
	if b.browser != nil {
		return b.browser, nil
	}

	wsURL := b.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().Headless(b.cfg.Headless)
		if b.cfg.Bin != "" {
			l = l.Bin(b.cfg.Bin)
		}
		l = l.Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("rodpage: launch: %w", err)
		}
		wsURL = u
		b.lnch = l
		b.logger.Info("rodpage: launched local chrome", "headless", b.cfg.Headless)
	} else {
		b.logger.Info("rodpage: connecting to remote chrome", "url", wsURL)
	}

	rb := rod.New().ControlURL(wsURL)
	if err := rb.Connect(); err != nil {
		if b.lnch != nil {
			b.lnch.Cleanup()
			b.lnch = nil
		}
		return nil, fmt.Errorf("rodpage: connect: %w", err)
	}
	b.browser = rb
	return rb, nil
}

// blockResources fails requests of the listed resource types.
func blockResources(page *rod.Page, types []string) {
	block := make(map[string]bool, len(types))
	for _, t := range types {
		block[strings.TrimSuffix(strings.ToLower(t), "s")] = true
	}
	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if block[strings.ToLower(string(h.Request.Type()))] {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
}
