// CLAUDE:SUMMARY Fill orchestrator: holds the attached page, its scanned fields and the run control; drives scan, fill, pause, stop, answer capture and run history.
// Package engine coordinates fill runs over one attached page. It selects
// the strategy for the page host, keeps the scanned fields and the run
// control between calls, and records every finished fill.
//
// One Engine drives at most one fill at a time. Pause and Stop may be
// called from any goroutine while a fill runs.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/formfill/classify"
	"github.com/hazyhaar/formfill/dom"
	"github.com/hazyhaar/formfill/horosafe"
	"github.com/hazyhaar/formfill/idgen"
	"github.com/hazyhaar/formfill/kit"
	"github.com/hazyhaar/formfill/kvstore"
	"github.com/hazyhaar/formfill/memory"
	"github.com/hazyhaar/formfill/observability"
	"github.com/hazyhaar/formfill/profile"
	"github.com/hazyhaar/formfill/run"
	"github.com/hazyhaar/formfill/strategy"
)

var (
	ErrNoFields       = errors.New("engine: no fillable fields found")
	ErrFillInProgress = errors.New("engine: a fill is already running")
	ErrNoDocument     = errors.New("engine: no page attached")
	ErrNoMemory       = errors.New("engine: answer memory disabled")
	ErrNoNavigator    = errors.New("engine: no browser to navigate")
)

// Navigator opens a page and returns its accessor.
type Navigator interface {
	Open(ctx context.Context, url string) (dom.Document, error)
}

// Config wires an Engine.
type Config struct {
	Manager *strategy.Manager // required

	Memory    *memory.Memory        // nil disables learning
	Store     kvstore.Store         // profile source when FILL carries none
	RunLog    *observability.RunLog // nil disables run history
	Navigator Navigator             // nil disables Navigate

	// AllowPrivateURLs lets Navigate open loopback and private addresses.
	AllowPrivateURLs bool

	Sink     run.ProgressSink
	Poll     time.Duration
	Logger   *slog.Logger
	NewRunID idgen.Generator
	Now      func() time.Time
}

// ScanResult describes the fields found on the attached page.
type ScanResult struct {
	RunID    string           `json:"run_id"`
	Strategy string           `json:"strategy"`
	URL      string           `json:"url,omitempty"`
	Count    int              `json:"count"`
	Fields   []strategy.Field `json:"fields"`
}

// Engine is the fill orchestrator.
type Engine struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	doc    dom.Document
	strat  strategy.Strategy
	fields []strategy.Field // nil until scanned
	ctl    *run.Control

	filling atomic.Bool
}

// New creates an Engine. It panics when cfg.Manager is nil.
func New(cfg Config) *Engine {
	if cfg.Manager == nil {
		panic("engine: nil strategy manager")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.NewRunID == nil {
		cfg.NewRunID = idgen.RunID
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{cfg: cfg, logger: cfg.Logger}
}

// Attach makes doc the current page. Handles from a previous scan are
// dropped and a fresh run control starts.
func (e *Engine) Attach(doc dom.Document) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.doc, e.strat, e.fields = doc, nil, nil
	e.ctl = e.newControl()
	if doc != nil {
		e.logger.Info("engine: page attached", "url", doc.URL(), "run_id", e.ctl.ID())
	}
}

// Document returns the attached page, or nil.
func (e *Engine) Document() dom.Document {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doc
}

func (e *Engine) newControl() *run.Control {
	id := e.cfg.NewRunID()
	return run.NewControl(id, run.Multi(e.cfg.Sink, run.LogSink(e.logger, id)), e.cfg.Poll)
}

// Navigate validates url, opens it through the Navigator and attaches it.
func (e *Engine) Navigate(ctx context.Context, url string) (*ScanResult, error) {
	if e.cfg.Navigator == nil {
		return nil, ErrNoNavigator
	}
	if e.filling.Load() {
		return nil, ErrFillInProgress
	}
	if err := horosafe.ValidateURL(url, horosafe.AllowPrivate(e.cfg.AllowPrivateURLs)); err != nil {
		return nil, fmt.Errorf("engine: navigate: %w", err)
	}
	doc, err := e.cfg.Navigator.Open(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("engine: navigate: %w", err)
	}
	e.Attach(doc)
	return e.Scan(ctx)
}

// Scan selects the strategy for the page host and scans the page. Each
// Scan starts a new run control, which clears a previous stop. A page
// without fields returns the empty result with ErrNoFields.
func (e *Engine) Scan(ctx context.Context) (*ScanResult, error) {
	if e.filling.Load() {
		return nil, ErrFillInProgress
	}
	return e.scan(ctx, true)
}

func (e *Engine) scan(ctx context.Context, fresh bool) (*ScanResult, error) {
	e.mu.Lock()
	doc := e.doc
	e.mu.Unlock()
	if doc == nil {
		return nil, ErrNoDocument
	}

	s := e.cfg.Manager.SelectFor(doc.Host())
	if err := dom.ClearMarks(doc); err != nil {
		e.logger.Warn("engine: clear marks failed", "error", err)
	}
	fields, err := s.Scan(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("engine: scan: %w", err)
	}
	if fields == nil {
		fields = []strategy.Field{}
	}

	e.mu.Lock()
	if fresh || e.ctl == nil {
		e.ctl = e.newControl()
	}
	ctl := e.ctl
	e.strat, e.fields = s, fields
	e.mu.Unlock()
	ctl.MarkScanned()

	e.logger.InfoContext(ctx, "engine: scanned",
		"strategy", s.Name(), "fields", len(fields), "run_id", ctl.ID(),
		"transport", kit.GetTransport(ctx))
	res := &ScanResult{RunID: ctl.ID(), Strategy: s.Name(), URL: doc.URL(), Count: len(fields), Fields: fields}
	if len(fields) == 0 {
		return res, ErrNoFields
	}
	return res, nil
}

// Fill runs the strategy's passes over the scanned fields. The page is
// scanned first when no scan happened since Attach. A nil p reads the
// profile from the store. A second concurrent Fill returns
// ErrFillInProgress.
func (e *Engine) Fill(ctx context.Context, p *profile.Profile) (*strategy.Report, error) {
	if !e.filling.CompareAndSwap(false, true) {
		return nil, ErrFillInProgress
	}
	defer e.filling.Store(false)

	e.mu.Lock()
	doc, scanned := e.doc, e.fields != nil
	e.mu.Unlock()
	if doc == nil {
		return nil, ErrNoDocument
	}
	if !scanned {
		if _, err := e.scan(ctx, false); err != nil {
			return nil, err
		}
	}

	e.mu.Lock()
	s, fields := e.strat, e.fields
	// A stop sent after the last run completed holds for the next one.
	if e.ctl.State() == run.Completed && !e.ctl.Stopped() {
		e.ctl = e.newControl()
		e.ctl.MarkScanned()
	}
	ctl := e.ctl
	e.mu.Unlock()
	if len(fields) == 0 {
		return nil, ErrNoFields
	}

	if p == nil {
		var err error
		if p, err = e.loadProfile(ctx); err != nil {
			return nil, err
		}
	}

	ctx = kit.WithRunID(ctx, ctl.ID())
	started := e.cfg.Now()
	rep, err := s.Fill(ctx, &strategy.FillContext{Doc: doc, Fields: fields, Profile: p, Control: ctl})
	if err != nil {
		return nil, fmt.Errorf("engine: fill: %w", err)
	}
	e.record(ctx, ctl.ID(), doc, rep, started)
	return rep, nil
}

func (e *Engine) loadProfile(ctx context.Context) (*profile.Profile, error) {
	if e.cfg.Store == nil {
		return &profile.Profile{UserProfile: map[string]string{}}, nil
	}
	p, err := profile.FromStore(ctx, e.cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("engine: load profile: %w", err)
	}
	return p, nil
}

func (e *Engine) record(ctx context.Context, runID string, doc dom.Document, rep *strategy.Report, started time.Time) {
	if e.cfg.RunLog == nil {
		return
	}
	rec := &observability.RunRecord{
		RunID:             runID,
		URL:               doc.URL(),
		Host:              doc.Host(),
		Strategy:          rep.Strategy,
		Filled:            rep.Filled,
		Total:             rep.Total,
		Status:            rep.Status,
		OracleUnavailable: rep.OracleUnavailable,
		StartedAt:         started,
		FinishedAt:        e.cfg.Now(),
	}
	for _, o := range rep.Outcomes {
		rec.Outcomes = append(rec.Outcomes, observability.OutcomeRecord{
			Label:  o.Label,
			Kind:   string(o.Kind),
			Pass:   string(o.Pass),
			Status: string(o.Status),
			Error:  o.Error,
		})
	}
	e.cfg.RunLog.Record(context.WithoutCancel(ctx), rec)
}

// VisibleText returns the bounded main-content snapshot of the page.
func (e *Engine) VisibleText(ctx context.Context) (string, error) {
	doc := e.Document()
	if doc == nil {
		return "", ErrNoDocument
	}
	text, err := e.cfg.Manager.SelectFor(doc.Host()).VisibleText(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("engine: visible text: %w", err)
	}
	return text, nil
}

// Pause suspends or resumes the current run between fields.
func (e *Engine) Pause(paused bool) (run.Snapshot, error) {
	ctl, err := e.control()
	if err != nil {
		return run.Snapshot{}, err
	}
	ctl.Pause(paused)
	e.logger.Info("engine: pause", "paused", paused, "run_id", ctl.ID())
	return ctl.Snapshot(), nil
}

// Stop ends the current run at its next check. The stop holds until the
// next Scan or Attach.
func (e *Engine) Stop() (run.Snapshot, error) {
	ctl, err := e.control()
	if err != nil {
		return run.Snapshot{}, err
	}
	ctl.Stop()
	e.logger.Info("engine: stop requested", "run_id", ctl.ID())
	return ctl.Snapshot(), nil
}

// Status returns the current run snapshot.
func (e *Engine) Status() (run.Snapshot, error) {
	ctl, err := e.control()
	if err != nil {
		return run.Snapshot{}, err
	}
	return ctl.Snapshot(), nil
}

func (e *Engine) control() (*run.Control, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctl == nil {
		return nil, ErrNoDocument
	}
	return e.ctl, nil
}

// CaptureAnswers reads the answers the user typed into labelled fields
// the classifier could not map to a profile key.
func (e *Engine) CaptureAnswers(ctx context.Context) ([]memory.Learned, error) {
	e.mu.Lock()
	doc, fields := e.doc, e.fields
	e.mu.Unlock()
	if doc == nil {
		return nil, ErrNoDocument
	}
	if fields == nil {
		res, err := e.scan(ctx, false)
		if err != nil {
			return nil, err
		}
		fields = res.Fields
	}

	var out []memory.Learned
	for _, f := range fields {
		if f.Kind != classify.Unknown || !f.Labelled() {
			continue
		}
		if answer := strategy.Answer(doc, f); answer != "" {
			out = append(out, memory.Learned{Question: f.Label, Answer: answer, FieldTag: f.Tag})
		}
	}
	return out, nil
}

// SaveLearnedAnswers stores entries in the answer memory. Without entries
// the answers are captured from the page first.
func (e *Engine) SaveLearnedAnswers(ctx context.Context, entries []memory.Learned) (memory.LearnResult, error) {
	if e.cfg.Memory == nil {
		return memory.LearnResult{}, ErrNoMemory
	}
	if len(entries) == 0 {
		var err error
		if entries, err = e.CaptureAnswers(ctx); err != nil {
			return memory.LearnResult{}, err
		}
	}
	res, err := e.cfg.Memory.Learn(ctx, entries)
	if err != nil {
		return res, fmt.Errorf("engine: save answers: %w", err)
	}
	e.logger.InfoContext(ctx, "engine: answers learned", "saved", res.Saved, "total", res.TotalStored)
	return res, nil
}

// Answers lists the remembered answers.
func (e *Engine) Answers(ctx context.Context) ([]memory.Entry, error) {
	if e.cfg.Memory == nil {
		return nil, ErrNoMemory
	}
	return e.cfg.Memory.List(ctx)
}

// UpdateAnswer replaces the answer stored under key.
func (e *Engine) UpdateAnswer(ctx context.Context, key, answer string) error {
	if e.cfg.Memory == nil {
		return ErrNoMemory
	}
	return e.cfg.Memory.Update(ctx, key, answer)
}

// DeleteAnswer forgets the answer stored under key.
func (e *Engine) DeleteAnswer(ctx context.Context, key string) error {
	if e.cfg.Memory == nil {
		return ErrNoMemory
	}
	return e.cfg.Memory.Delete(ctx, key)
}

// SyncAnswers merges the remote answer store into the local memory and
// pushes the result back.
func (e *Engine) SyncAnswers(ctx context.Context) (memory.SyncResult, error) {
	if e.cfg.Memory == nil {
		return memory.SyncResult{}, ErrNoMemory
	}
	return e.cfg.Memory.Sync(ctx)
}

// History lists recorded fill runs, newest first.
func (e *Engine) History(ctx context.Context, f observability.RunFilter) ([]observability.RunRecord, error) {
	if e.cfg.RunLog == nil {
		return []observability.RunRecord{}, nil
	}
	runs, err := e.cfg.RunLog.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if runs == nil {
		runs = []observability.RunRecord{}
	}
	return runs, nil
}

// Run returns one recorded fill run with its field outcomes.
func (e *Engine) Run(ctx context.Context, runID string) (*observability.RunRecord, error) {
	if e.cfg.RunLog == nil {
		return nil, observability.ErrRunNotFound
	}
	return e.cfg.RunLog.Get(ctx, runID)
}
