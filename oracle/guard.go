package oracle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hazyhaar/formfill/connectivity"
)

const (
	DefaultDropdownTimeout = 8 * time.Second
	DefaultAnswerTimeout   = 15 * time.Second
)

// GuardConfig configures Guarded.
type GuardConfig struct {
	DropdownTimeout time.Duration
	AnswerTimeout   time.Duration
	Breaker         *connectivity.CircuitBreaker // nil: a default breaker
	Logger          *slog.Logger
}

// Guarded wraps an Oracle so that callers never see an error: every call
// is bounded by a timeout, failures are logged and read as an empty
// result, and a circuit breaker stops calling a service that keeps
// failing. Dropdown matches are forced onto the requested options.
type Guarded struct {
	next            Oracle
	dropdownTimeout time.Duration
	answerTimeout   time.Duration
	breaker         *connectivity.CircuitBreaker
	logger          *slog.Logger
}

// NewGuarded wraps next.
func NewGuarded(next Oracle, cfg GuardConfig) *Guarded {
	g := &Guarded{
		next:            next,
		dropdownTimeout: cfg.DropdownTimeout,
		answerTimeout:   cfg.AnswerTimeout,
		breaker:         cfg.Breaker,
		logger:          cfg.Logger,
	}
	if g.dropdownTimeout <= 0 {
		g.dropdownTimeout = DefaultDropdownTimeout
	}
	if g.answerTimeout <= 0 {
		g.answerTimeout = DefaultAnswerTimeout
	}
	if g.breaker == nil {
		g.breaker = connectivity.NewCircuitBreaker()
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g
}

// Unavailable reports whether the breaker currently refuses calls.
func (g *Guarded) Unavailable() bool {
	return g.breaker.State() == connectivity.BreakerOpen
}

// MatchDropdown never returns an error.
func (g *Guarded) MatchDropdown(ctx context.Context, req DropdownRequest) (DropdownResult, error) {
	if len(req.Options) == 0 {
		return DropdownResult{}, nil
	}
	var res DropdownResult
	err := g.do(ctx, "match_dropdown", g.dropdownTimeout, func(ctx context.Context) error {
		var err error
		res, err = g.next.MatchDropdown(ctx, req)
		return err
	})
	if err != nil {
		return DropdownResult{}, nil
	}
	res.Match = FixMatch(res.Match, req.Options)
	return res, nil
}

// AnswerQuestion never returns an error.
func (g *Guarded) AnswerQuestion(ctx context.Context, req QuestionRequest) (AnswerResult, error) {
	if req.Question == "" {
		return AnswerResult{}, nil
	}
	var res AnswerResult
	err := g.do(ctx, "answer_question", g.answerTimeout, func(ctx context.Context) error {
		var err error
		res, err = g.next.AnswerQuestion(ctx, req)
		return err
	})
	if err != nil {
		return AnswerResult{}, nil
	}
	return res, nil
}

func (g *Guarded) do(ctx context.Context, op string, timeout time.Duration, fn func(context.Context) error) error {
	if !g.breaker.Allow() {
		g.logger.DebugContext(ctx, "oracle: circuit open", "op", op)
		return &connectivity.ErrCircuitOpen{Service: "oracle"}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	switch {
	case err == nil:
		g.breaker.RecordSuccess()
	case errors.Is(err, context.Canceled):
	default:
		g.breaker.RecordFailure()
		g.logger.WarnContext(ctx, "oracle: call failed", "op", op, "error", err)
	}
	return err
}
