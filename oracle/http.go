package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/formfill/connectivity"
)

// HTTP modes.
const (
	// ModeREST posts to <base>/api/match-dropdown and <base>/api/answer-question.
	ModeREST = "rest"
	// ModeAction posts {"action": "match-dropdown" | "answer-question", ...}
	// to the base URL itself.
	ModeAction = "action"
)

// HTTPConfig configures an HTTP Oracle.
type HTTPConfig struct {
	BaseURL string
	Mode    string // rest (default) or action
	// Token is sent as a bearer token.
	Token   string
	Factory connectivity.TransportFactory // nil: connectivity.HTTPFactory()
	Retries int
}

// HTTP calls a remote Oracle service.
type HTTP struct {
	mode     string
	dropdown connectivity.Handler
	answer   connectivity.Handler
	closers  []func()
}

// NewHTTP builds the routes of cfg.
func NewHTTP(cfg HTTPConfig) (*HTTP, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("oracle/http: base url required")
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeREST
	}
	if cfg.Factory == nil {
		cfg.Factory = connectivity.HTTPFactory()
	}
	routeCfg := map[string]any{}
	if cfg.Token != "" {
		routeCfg["headers"] = map[string]string{"Authorization": "Bearer " + cfg.Token}
	}
	rc, err := json.Marshal(routeCfg)
	if err != nil {
		return nil, err
	}

	h := &HTTP{mode: cfg.Mode}
	build := func(endpoint string) (connectivity.Handler, error) {
		handler, closeFn, err := cfg.Factory(endpoint, rc)
		if err != nil {
			return nil, fmt.Errorf("oracle/http: %w", err)
		}
		if closeFn != nil {
			h.closers = append(h.closers, closeFn)
		}
		if cfg.Retries > 0 {
			handler = connectivity.WithRetry(cfg.Retries, 200*time.Millisecond, nil)(handler)
		}
		return handler, nil
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	switch cfg.Mode {
	case ModeREST:
		if h.dropdown, err = build(base + "/api/match-dropdown"); err != nil {
			return nil, err
		}
		if h.answer, err = build(base + "/api/answer-question"); err != nil {
			return nil, err
		}
	case ModeAction:
		if h.dropdown, err = build(cfg.BaseURL); err != nil {
			return nil, err
		}
		h.answer = h.dropdown
	default:
		return nil, fmt.Errorf("oracle/http: unknown mode %q", cfg.Mode)
	}
	return h, nil
}

// Close releases idle connections.
func (h *HTTP) Close() {
	for _, c := range h.closers {
		c()
	}
}

func (h *HTTP) MatchDropdown(ctx context.Context, req DropdownRequest) (DropdownResult, error) {
	var res DropdownResult
	err := h.call(ctx, h.dropdown, "match-dropdown", req, &res)
	return res, err
}

func (h *HTTP) AnswerQuestion(ctx context.Context, req QuestionRequest) (AnswerResult, error) {
	var res AnswerResult
	err := h.call(ctx, h.answer, "answer-question", req, &res)
	return res, err
}

func (h *HTTP) call(ctx context.Context, handler connectivity.Handler, action string, req, out any) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("oracle/http: %s: %w", action, err)
	}
	if h.mode == ModeAction {
		payload, err = withAction(payload, action)
		if err != nil {
			return fmt.Errorf("oracle/http: %s: %w", action, err)
		}
	}
	body, err := handler(ctx, payload)
	if err != nil {
		return fmt.Errorf("oracle/http: %s: %w", action, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("oracle/http: %s: decode: %w", action, err)
	}
	return nil
}

func withAction(payload []byte, action string) ([]byte, error) {
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, err
	}
	m["action"] = action
	return json.Marshal(m)
}
