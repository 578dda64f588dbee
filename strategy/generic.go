package strategy

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"

	"github.com/hazyhaar/formfill/classify"
	"github.com/hazyhaar/formfill/dom"
	"github.com/hazyhaar/formfill/fuzzy"
	"github.com/hazyhaar/formfill/oracle"
	"github.com/hazyhaar/formfill/run"
)

// Generic fills any page: profile values first, then remembered answers,
// then Oracle drafts for the labelled questions that remain.
type Generic struct {
	deps Deps
	scan scanOptions
}

// NewGeneric returns the fallback strategy.
func NewGeneric(deps Deps) *Generic {
	deps.applyDefaults()
	return &Generic{deps: deps, scan: scanOptions{deep: true}}
}

func (g *Generic) Name() string             { return "Generic" }
func (g *Generic) Matches(host string) bool { return true }

func (g *Generic) Scan(ctx context.Context, doc dom.Document) ([]Field, error) {
	return scanControls(doc, g.scan)
}

func (g *Generic) VisibleText(ctx context.Context, doc dom.Document) (string, error) {
	return visibleText(doc, g.deps.Text)
}

func (g *Generic) Fill(ctx context.Context, fc *FillContext) (*Report, error) {
	fl, ok := g.begin(ctx, fc, g.Name(), g.VisibleText)
	if !ok {
		return fl.rep, nil
	}
	fl.passes(ctx)
	return fl.finish(), nil
}

// begin starts a fill run. It returns false, with a Stopped report, when
// the run was stopped before its first field.
func (g *Generic) begin(ctx context.Context, fc *FillContext, name string, text func(context.Context, dom.Document) (string, error)) (*filler, bool) {
	if fc.Control == nil {
		fc.Control = run.NewControl("", nil, 0)
	}
	fl := &filler{
		deps: &g.deps,
		fc:   fc,
		rep:  &Report{Strategy: name, Total: len(fc.Fields)},
		done: make(map[any]bool),
	}
	fl.w = &writer{deps: &g.deps, doc: fc.Doc, context: fl.pageText}
	fl.text = func(ctx context.Context) (string, error) { return text(ctx, fc.Doc) }
	if !fc.Control.Begin(len(fc.Fields)) {
		fl.rep.Status = run.StatusStopped
		return fl, false
	}
	g.deps.Logger.InfoContext(ctx, "strategy: fill started",
		"strategy", name, "run_id", fc.Control.ID(), "fields", len(fc.Fields))
	return fl, true
}

// filler is the state of one fill run.
type filler struct {
	deps *Deps
	fc   *FillContext
	rep  *Report
	w    *writer
	done map[any]bool // by dom.Key
	text func(context.Context) (string, error)

	textOnce sync.Once
	page     string
}

// pageText is the visible text of the page, computed once per run.
func (fl *filler) pageText(ctx context.Context) string {
	fl.textOnce.Do(func() {
		t, err := fl.text(ctx)
		if err != nil {
			fl.deps.Logger.WarnContext(ctx, "strategy: page text failed", "error", err)
		}
		fl.page = t
	})
	return fl.page
}

// passes runs the profile, memory and generated passes in order. It
// returns false once the run is stopped.
func (fl *filler) passes(ctx context.Context) bool {
	return fl.each(ctx, fl.profilePass) && fl.guessPasses(ctx)
}

// guessPasses runs the passes that may only fill what the profile left
// open: remembered answers, then Oracle drafts.
func (fl *filler) guessPasses(ctx context.Context) bool {
	return fl.each(ctx, fl.memoryPass) && fl.each(ctx, fl.generatedPass)
}

// each applies pass to every field not yet filled, checking pause and stop
// before each one. A field the pass leaves untouched still reports
// progress.
func (fl *filler) each(ctx context.Context, pass func(context.Context, Field) bool) bool {
	for _, f := range fl.fc.Fields {
		if !fl.fc.Control.Continue(ctx) {
			return false
		}
		if fl.done[dom.Key(f.Element)] {
			continue
		}
		before := len(fl.rep.Outcomes)
		pass(ctx, f)
		if len(fl.rep.Outcomes) == before {
			fl.fc.Control.Report(fmt.Sprintf("Skipped %s", displayName(f)))
		}
	}
	return fl.fc.Control.Continue(ctx)
}

func (fl *filler) finish() *Report {
	st := fl.fc.Control.Finish()
	fl.rep.Status = run.StatusCompleted
	if st == run.Stopped {
		fl.rep.Status = run.StatusStopped
	}
	fl.rep.OracleUnavailable = fl.deps.oracleUnavailable()
	fl.deps.Logger.Info("strategy: fill finished",
		"strategy", fl.rep.Strategy, "run_id", fl.fc.Control.ID(),
		"filled", fl.rep.Filled, "total", fl.rep.Total, "status", fl.rep.Status)
	return fl.rep
}

// profilePass writes the profile value of known kinds and uploads the
// resume.
func (fl *filler) profilePass(ctx context.Context, f Field) bool {
	p := fl.fc.Profile
	if f.Kind == classify.Unknown || p == nil {
		return false
	}
	if f.Control == ControlFile {
		if f.Kind != classify.Resume || p.Resume == nil {
			return false
		}
		st, err := fl.w.upload(ctx, f, p.Resume)
		return fl.record(ctx, f, PassProfile, st, err, "resume "+p.Resume.Name)
	}
	v := p.Value(string(f.Kind))
	if v == "" {
		return false
	}
	st, err := fl.w.write(ctx, f, v)
	return fl.record(ctx, f, PassProfile, st, err, "from profile")
}

// memoryPass reuses a remembered answer for an empty labelled question.
func (fl *filler) memoryPass(ctx context.Context, f Field) bool {
	if fl.deps.Memory == nil || f.Kind != classify.Unknown || !f.Labelled() || f.Control == ControlFile || !empty(f) {
		return false
	}
	rec := fl.deps.Memory.Recall(ctx, f.Label)
	if rec == nil {
		return false
	}
	st, err := fl.w.write(ctx, f, rec.Answer)
	if err == nil && rec.Confidence == fuzzy.Medium {
		st = dom.StatusMedium
	}
	ok := fl.record(ctx, f, PassMemory, st, err, "remembered answer")
	if ok {
		if err := fl.deps.Memory.MarkUsed(ctx, rec.Key); err != nil {
			fl.deps.Logger.WarnContext(ctx, "strategy: mark used failed", "key", rec.Key, "error", err)
		}
	}
	return ok
}

// generatedPass asks the Oracle to draft an answer for an empty labelled
// free-text question.
func (fl *filler) generatedPass(ctx context.Context, f Field) bool {
	if f.Kind != classify.Unknown || !f.Labelled() || !empty(f) {
		return false
	}
	if f.Control != ControlText && f.Control != ControlTextarea {
		return false
	}
	answer := fl.draft(ctx, f)
	if answer == "" {
		return false
	}
	st, err := fl.w.write(ctx, f, answer)
	if err == nil {
		st = dom.StatusMedium
	}
	return fl.record(ctx, f, PassGenerated, st, err, "generated answer, please review")
}

// draft returns a sanitized Oracle answer for f, or "".
func (fl *filler) draft(ctx context.Context, f Field) string {
	req := oracle.QuestionRequest{
		Question:       f.Label,
		FieldType:      string(f.Control),
		JobDescription: fl.pageText(ctx),
	}
	if fl.fc.Profile != nil {
		req.UserProfile = fl.fc.Profile.Public()
	}
	if n, err := strconv.Atoi(f.Element.Attr("maxlength")); err == nil && n > 0 {
		req.MaxLength = n
	}
	res, err := fl.deps.Oracle.AnswerQuestion(ctx, req)
	if err != nil {
		fl.deps.Logger.DebugContext(ctx, "strategy: oracle answer failed", "label", f.Label, "error", err)
		return ""
	}
	return sanitize(res.Answer)
}

// sanitize strips markup from an Oracle answer.
func sanitize(s string) string {
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(s)))
}

// record books the outcome of one write: the field is marked, counted and
// reported. It returns whether the write succeeded.
func (fl *filler) record(ctx context.Context, f Field, pass Pass, st dom.Status, err error, tooltip string) bool {
	out := Outcome{Label: f.Label, Kind: f.Kind, Pass: pass, Status: st}
	target := f.Element
	if err != nil {
		out.Status = dom.StatusFailed
		out.Error = err.Error()
		fl.rep.Outcomes = append(fl.rep.Outcomes, out)
		if !errors.Is(err, ErrNoMatch) {
			fl.deps.Logger.WarnContext(ctx, "strategy: field failed",
				"label", f.Label, "kind", f.Kind, "pass", pass, "error", err)
		}
		dom.Mark(target, dom.StatusFailed, err.Error())
		fl.fc.Control.Report(fmt.Sprintf("Failed %s", displayName(f)))
		return false
	}
	if st == "" {
		st = dom.StatusHigh
		out.Status = st
	}
	fl.done[dom.Key(f.Element)] = true
	fl.rep.Filled++
	fl.rep.Outcomes = append(fl.rep.Outcomes, out)
	dom.Mark(target, st, tooltip)
	fl.fc.Control.Filled(fmt.Sprintf("Filled %s", displayName(f)))
	return true
}

func displayName(f Field) string {
	if f.Label != "" {
		return f.Label
	}
	return string(f.Kind)
}
