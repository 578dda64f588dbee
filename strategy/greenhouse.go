package strategy

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/hazyhaar/formfill/classify"
	"github.com/hazyhaar/formfill/dom"
	"github.com/hazyhaar/formfill/oracle"
	"github.com/hazyhaar/formfill/profile"
	"github.com/hazyhaar/formfill/waiter"
)

// DeclineAnswer is the answer proposed for voluntary self-identification
// questions the profile and the memory leave open.
const DeclineAnswer = "I decline to self-identify"

// Greenhouse adds repeating education and employment sections and a
// fallback chain for demographic questions to the generic fill.
type Greenhouse struct {
	generic *Generic
}

func NewGreenhouse(g *Generic) *Greenhouse { return &Greenhouse{generic: g} }

func (s *Greenhouse) Name() string { return "Greenhouse" }

func (s *Greenhouse) Matches(host string) bool {
	return strings.Contains(host, "greenhouse.io")
}

func (s *Greenhouse) Scan(ctx context.Context, doc dom.Document) ([]Field, error) {
	return s.generic.Scan(ctx, doc)
}

func (s *Greenhouse) VisibleText(ctx context.Context, doc dom.Document) (string, error) {
	return s.generic.VisibleText(ctx, doc)
}

func (s *Greenhouse) Fill(ctx context.Context, fc *FillContext) (*Report, error) {
	fl, ok := s.generic.begin(ctx, fc, s.Name(), s.VisibleText)
	if !ok {
		return fl.rep, nil
	}
	// Section rows come from the profile, so they are written before any
	// remembered or generated answer can claim their controls.
	if !fl.each(ctx, fl.profilePass) || !fl.settleAfterResume(ctx) {
		return fl.finish(), nil
	}
	if fc.Profile != nil {
		sc := newSectionFiller(fl)
		if !sc.fill(ctx, educationSection, educationRows(fc.Profile.Education)) ||
			!sc.fill(ctx, employmentSection, employmentRows(fc.Profile.Experience)) {
			return fl.finish(), nil
		}
	}
	if fl.guessPasses(ctx) {
		fl.each(ctx, fl.demographicPass)
	}
	return fl.finish(), nil
}

// demographicPass fills an open self-identification question from the
// memory, then through the Oracle.
func (fl *filler) demographicPass(ctx context.Context, f Field) bool {
	if !f.Kind.IsDemographic() || !empty(f) {
		return false
	}
	if fl.deps.Memory != nil && f.Labelled() {
		if rec := fl.deps.Memory.Recall(ctx, f.Label); rec != nil {
			st, err := fl.w.write(ctx, f, rec.Answer)
			if err == nil {
				if err := fl.deps.Memory.MarkUsed(ctx, rec.Key); err != nil {
					fl.deps.Logger.WarnContext(ctx, "strategy: mark used failed", "key", rec.Key, "error", err)
				}
				return fl.record(ctx, f, PassMemory, st, nil, "remembered answer")
			}
		}
	}
	opts := fl.choices(f)
	if len(opts) == 0 {
		return false
	}
	res, err := fl.deps.Oracle.MatchDropdown(ctx, oracle.DropdownRequest{
		Question:  f.Label,
		Options:   opts,
		UserValue: DeclineAnswer,
		Context:   fl.pageText(ctx),
	})
	if err != nil {
		fl.deps.Logger.DebugContext(ctx, "strategy: oracle match failed", "label", f.Label, "error", err)
		return false
	}
	m := oracle.FixMatch(res.Match, opts)
	if m == "" {
		return false
	}
	st, err := fl.w.write(ctx, f, m)
	if err == nil {
		st = dom.StatusMedium
	}
	return fl.record(ctx, f, PassGenerated, st, err, "suggested answer, please review")
}

// choices lists the visible answers of a select or radio group.
func (fl *filler) choices(f Field) []string {
	var out []string
	switch f.Control {
	case ControlSelect:
		opts, err := f.Element.Options()
		if err != nil {
			return nil
		}
		for _, o := range opts {
			if strings.TrimSpace(o.Value) != "" {
				out = append(out, strings.TrimSpace(o.Text))
			}
		}
	case ControlRadio:
		for _, c := range f.Choices {
			out = append(out, choiceLabel(fl.fc.Doc, c))
		}
	}
	return out
}

// settleAfterResume waits for the page to settle after a resume upload,
// which often triggers a parsing overlay.
func (fl *filler) settleAfterResume(ctx context.Context) bool {
	for _, o := range fl.rep.Outcomes {
		if o.Kind == classify.Resume && o.Status != dom.StatusFailed {
			fl.deps.Logger.DebugContext(ctx, "strategy: waiting after resume upload", "wait", fl.deps.Timing.ResumeSettle)
			if sleep(ctx, fl.deps.Timing.ResumeSettle) != nil {
				return false
			}
			break
		}
	}
	return fl.fc.Control.Continue(ctx)
}

// target is a field role inside a repeating section.
type target string

const (
	targetSchool     target = "school"
	targetDegree     target = "degree"
	targetCompany    target = "company_name"
	targetTitle      target = "title"
	targetStartYear  target = "start_date_year"
	targetEndYear    target = "end_date_year"
	targetStartMonth target = "start_date_month"
	targetEndMonth   target = "end_date_month"
)

// Strict targets need every token in one attribute.
var strictTokens = map[target][]string{
	targetStartYear:  {"start", "year"},
	targetEndYear:    {"end", "year"},
	targetStartMonth: {"start", "month"},
	targetEndMonth:   {"end", "month"},
}

var targetKeywords = map[target][]string{
	targetSchool:  {"school", "university", "institution"},
	targetDegree:  {"degree", "qualification"},
	targetCompany: {"company", "organization"},
	targetTitle:   {"title", "role", "position"},
}

func (t target) year() bool  { return strings.HasSuffix(string(t), "_year") }
func (t target) month() bool { return strings.HasSuffix(string(t), "_month") }

// matches reports whether a control with the given lower-cased attributes
// plays role t. Year targets never match experience questions such as
// "Years of experience".
func (t target) matches(attrs []string) bool {
	if t.year() {
		for _, a := range attrs {
			if strings.Contains(a, "exper") {
				return false
			}
		}
	}
	if toks, ok := strictTokens[t]; ok {
		for _, a := range attrs {
			all := true
			for _, tok := range toks {
				if !strings.Contains(a, tok) {
					all = false
					break
				}
			}
			if all {
				return true
			}
		}
		return false
	}
	kws, ok := targetKeywords[t]
	if !ok {
		kws = []string{strings.ReplaceAll(string(t), "_", " ")}
	}
	for _, kw := range kws {
		for _, a := range attrs {
			if strings.Contains(a, kw) {
				return true
			}
		}
	}
	return false
}

// section describes one repeating block.
type section struct {
	name      string // as written on its add link
	signature target // one per row; counts the rows present
}

var (
	educationSection  = section{name: "education", signature: targetSchool}
	employmentSection = section{name: "employment", signature: targetCompany}
)

// cell is one value to write in a row.
type cell struct {
	target target
	value  string
}

func educationRows(items []profile.Education) [][]cell {
	rows := make([][]cell, 0, len(items))
	for _, e := range items {
		start, _ := parseDate(e.Start)
		end, _ := parseDate(e.End)
		rows = append(rows, []cell{
			{targetSchool, e.School},
			{targetDegree, e.Degree},
			{targetStartYear, start},
			{targetEndYear, end},
		})
	}
	return rows
}

func employmentRows(items []profile.Experience) [][]cell {
	rows := make([][]cell, 0, len(items))
	for _, e := range items {
		sy, sm := parseDate(e.Start)
		ey, em := parseDate(e.End)
		rows = append(rows, []cell{
			{targetCompany, e.Company},
			{targetTitle, e.Title},
			{targetStartMonth, sm},
			{targetStartYear, sy},
			{targetEndMonth, em},
			{targetEndYear, ey},
		})
	}
	return rows
}

// parseDate splits "YYYY-MM" into year and month. A bare year has no
// month.
func parseDate(s string) (year, month string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ""
	}
	parts := strings.SplitN(s, "-", 3)
	year = parts[0]
	if len(parts) > 1 {
		month = parts[1]
	}
	return year, month
}

// monthValues lists the spellings a month control may expect.
func monthValues(m string) []string {
	n, err := strconv.Atoi(m)
	if err != nil || n < 1 || n > 12 {
		return []string{m}
	}
	name := time.Month(n).String()
	return []string{m, strconv.Itoa(n), name, name[:3]}
}

// sectionFiller writes profile rows into repeating sections.
type sectionFiller struct {
	fl      *filler
	scanned map[any]bool // by dom.Key
}

func newSectionFiller(fl *filler) *sectionFiller {
	sc := &sectionFiller{fl: fl, scanned: make(map[any]bool)}
	for _, f := range fl.fc.Fields {
		sc.scanned[dom.Key(f.Element)] = true
	}
	return sc
}

// fill writes rows into sec, appending a row through its add link when the
// page has fewer rows than the profile. It returns false once the run is
// stopped.
func (sc *sectionFiller) fill(ctx context.Context, sec section, rows [][]cell) bool {
	log := sc.fl.deps.Logger
	for i, row := range rows {
		if !sc.fl.fc.Control.Continue(ctx) {
			return false
		}
		present := sc.controls(sec.signature)
		if len(present) <= i {
			if !sc.addRow(ctx, sec, present) {
				log.WarnContext(ctx, "strategy: cannot add section row", "section", sec.name, "index", i)
				return sc.fl.fc.Control.Continue(ctx)
			}
		}
		for _, c := range row {
			if !sc.fl.fc.Control.Continue(ctx) {
				return false
			}
			sc.fillAt(ctx, i, c)
		}
	}
	return sc.fl.fc.Control.Continue(ctx)
}

// addRow clicks the section's add link and waits for the new controls.
// The link is searched from the rows outwards.
func (sc *sectionFiller) addRow(ctx context.Context, sec section, present []dom.Element) bool {
	var container, link dom.Element
	for c := sc.container(sec, present); c != nil; c = c.Parent() {
		if link = findAddLink(c, sec.name); link != nil {
			container = c
			break
		}
	}
	if link == nil {
		return false
	}
	baseline := waiter.Count(container, controlSelector)
	if err := link.Click(); err != nil {
		return false
	}
	els, err := waiter.WaitForGrowth(ctx, container, controlSelector, baseline, waiter.Options{Timeout: sc.fl.deps.Timing.SectionWait})
	if err != nil {
		return false
	}
	return len(els) > baseline
}

// container is the block holding the section's rows: the nearest
// fieldset or section around the existing rows, else the body.
func (sc *sectionFiller) container(sec section, present []dom.Element) dom.Element {
	if len(present) > 0 {
		sel := `fieldset, section, [id*="` + sec.name + `"], [class*="` + sec.name + `"]`
		if c, err := present[len(present)-1].Closest(sel); err == nil && c != nil {
			return c
		}
	}
	return sc.fl.fc.Doc.Body()
}

// findAddLink returns the first link or button reading "add another
// <name>" or "add <name>".
func findAddLink(scope dom.Element, name string) dom.Element {
	if scope == nil {
		return nil
	}
	els, err := scope.QueryAll("a, button")
	if err != nil {
		return nil
	}
	for _, el := range els {
		t := strings.ToLower(el.Text())
		if strings.Contains(t, "add another "+name) || strings.Contains(t, "add "+name) {
			return el
		}
	}
	return nil
}

// controls lists the visible light-DOM controls playing role t, in
// document order.
func (sc *sectionFiller) controls(t target) []dom.Element {
	doc := sc.fl.fc.Doc
	els, err := doc.QueryAll(controlSelector)
	if err != nil {
		return nil
	}
	var out []dom.Element
	for _, el := range els {
		if skipControl(el) || controlType(el) == ControlFile {
			continue
		}
		attrs := []string{
			strings.ToLower(classify.Label(doc, el)),
			strings.ToLower(el.Attr("id")),
			strings.ToLower(el.Attr("name")),
			strings.ToLower(el.Attr("aria-label")),
		}
		if t.matches(attrs) {
			out = append(out, el)
		}
	}
	return out
}

// fillAt writes c into the index-th control of its role.
func (sc *sectionFiller) fillAt(ctx context.Context, index int, c cell) {
	if c.value == "" {
		return
	}
	fl := sc.fl
	els := sc.controls(c.target)
	if index >= len(els) {
		fl.deps.Logger.DebugContext(ctx, "strategy: section field not found",
			"target", c.target, "index", index, "found", len(els))
		return
	}
	el := els[index]
	key := dom.Key(el)
	if fl.done[key] {
		return
	}
	res := classify.Classify(fl.fc.Doc, el)
	f := Field{
		Element:      el,
		Kind:         res.Kind,
		Label:        res.Label,
		CurrentValue: el.Value(),
		Control:      controlType(el),
		Tag:          el.Tag(),
		Name:         el.Attr("name"),
	}
	if f.Control == ControlRadio {
		f.Choices = []dom.Element{el}
	}
	if !sc.scanned[key] {
		sc.scanned[key] = true
		fl.rep.Total++
		fl.fc.Control.AddTotal(1)
	}

	values := []string{c.value}
	if c.target.month() {
		values = monthValues(c.value)
	}
	var (
		st  dom.Status
		err error
	)
	for _, v := range values {
		if st, err = fl.w.write(ctx, f, v); !errors.Is(err, ErrNoMatch) {
			break
		}
	}
	fl.record(ctx, f, PassSection, st, err, "from profile")
}
