// CLAUDE:SUMMARY Strategy contract (scan, fill, visible text), field descriptors, shared dependencies and the fill report.
// Package strategy scans a page for form controls and fills them. A
// Strategy is chosen per host by Manager; the Generic strategy handles any
// page, and site strategies compose it to handle repeating sections,
// component-based question blocks and shadow-isolated subtrees.
package strategy

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/formfill/classify"
	"github.com/hazyhaar/formfill/dom"
	"github.com/hazyhaar/formfill/fuzzy"
	"github.com/hazyhaar/formfill/memory"
	"github.com/hazyhaar/formfill/oracle"
	"github.com/hazyhaar/formfill/profile"
	"github.com/hazyhaar/formfill/run"
)

var (
	// ErrNoMatch means no option qualified; the field is left blank.
	ErrNoMatch = errors.New("strategy: no matching option")
	// ErrWriteTimeout means the control did not react in time.
	ErrWriteTimeout = errors.New("strategy: write timed out")
)

// ControlType selects the write technique.
type ControlType string

const (
	ControlText     ControlType = "text"
	ControlTextarea ControlType = "textarea"
	ControlSelect   ControlType = "select"
	ControlCheckbox ControlType = "checkbox"
	ControlRadio    ControlType = "radio"
	ControlCombobox ControlType = "combobox"
	ControlFile     ControlType = "file"
)

// Field is one scanned control. Element and Choices are borrowed handles
// valid until the next scan.
type Field struct {
	Element      dom.Element   `json:"-"`
	Choices      []dom.Element `json:"-"` // radio group members, Element first
	Kind         classify.Kind `json:"kind"`
	Label        string        `json:"label"`
	CurrentValue string        `json:"currentValue"`
	Control      ControlType   `json:"control"`
	Tag          string        `json:"tagName"`
	Name         string        `json:"name,omitempty"`
}

// Labelled reports whether the field can be looked up by its question.
func (f Field) Labelled() bool { return f.Label != "" }

// Pass names the fill pass that wrote a field.
type Pass string

const (
	PassProfile   Pass = "profile"
	PassMemory    Pass = "memory"
	PassGenerated Pass = "generated"
	PassSection   Pass = "section"
)

// Outcome is the result of one field write.
type Outcome struct {
	Label  string        `json:"label"`
	Kind   classify.Kind `json:"kind"`
	Pass   Pass          `json:"pass"`
	Status dom.Status    `json:"status"`
	Error  string        `json:"error,omitempty"`
}

// Report summarizes a fill run.
type Report struct {
	Strategy          string    `json:"strategy"`
	Filled            int       `json:"filled"`
	Total             int       `json:"total"`
	Status            string    `json:"status"`
	Outcomes          []Outcome `json:"outcomes,omitempty"`
	OracleUnavailable bool      `json:"oracle_unavailable,omitempty"`
}

// FillContext is the input of one Fill.
type FillContext struct {
	Doc     dom.Document
	Fields  []Field
	Profile *profile.Profile
	Control *run.Control
}

// Strategy is the per-site scan/fill contract.
type Strategy interface {
	Name() string
	Matches(host string) bool
	Scan(ctx context.Context, doc dom.Document) ([]Field, error)
	Fill(ctx context.Context, fc *FillContext) (*Report, error)
	VisibleText(ctx context.Context, doc dom.Document) (string, error)
}

// Timing bounds the waits of a fill.
type Timing struct {
	FieldTimeout   time.Duration // per write, default 3s
	ComboboxSettle time.Duration // candidates render, default 800ms
	ResumeSettle   time.Duration // after a resume upload, default 2s
	SectionWait    time.Duration // appended repeating section, default 8s
}

// TextOptions shape VisibleText.
type TextOptions struct {
	MaxChars  int    // default 15000
	MinRegion int    // default 200
	Format    string // "text" (default) or "markdown"
}

// Deps are the collaborators shared by every strategy.
type Deps struct {
	Memory  *memory.Memory // nil disables the memory pass
	Oracle  oracle.Oracle  // nil disables Oracle calls
	Matcher *fuzzy.Matcher
	Logger  *slog.Logger
	Timing  Timing
	Text    TextOptions
}

func (d *Deps) applyDefaults() {
	if d.Oracle == nil {
		d.Oracle = oracle.Nop{}
	}
	if d.Matcher == nil {
		d.Matcher = fuzzy.Default()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Timing.FieldTimeout <= 0 {
		d.Timing.FieldTimeout = 3 * time.Second
	}
	if d.Timing.ComboboxSettle <= 0 {
		d.Timing.ComboboxSettle = 800 * time.Millisecond
	}
	if d.Timing.ResumeSettle <= 0 {
		d.Timing.ResumeSettle = 2 * time.Second
	}
	if d.Timing.SectionWait <= 0 {
		d.Timing.SectionWait = 8 * time.Second
	}
	if d.Text.MaxChars <= 0 {
		d.Text.MaxChars = 15000
	}
	if d.Text.MinRegion <= 0 {
		d.Text.MinRegion = 200
	}
	if d.Text.Format == "" {
		d.Text.Format = "text"
	}
}

// oracleUnavailable reports whether the Oracle's breaker is open.
func (d *Deps) oracleUnavailable() bool {
	u, ok := d.Oracle.(interface{ Unavailable() bool })
	return ok && u.Unavailable()
}

var strictPolicy = bluemonday.StrictPolicy()

// sleep waits d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
