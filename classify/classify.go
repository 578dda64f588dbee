// Package classify maps a form control to a semantic Kind and a human
// label. Classification is a pure function of the control's current
// attributes and surrounding text; missing information yields Unknown and
// an empty label, never an error.
package classify

import (
	"strings"

	"github.com/hazyhaar/formfill/dom"
)

// Result is the outcome of classifying one control.
type Result struct {
	Kind  Kind   `json:"kind"`
	Label string `json:"label"`
}

// LabelSource extracts label text for a control from a site-specific place.
type LabelSource func(el dom.Element) string

type options struct {
	sources  []LabelSource
	fallback []LabelSource
	table    []Synonyms
}

// Option widens or replaces parts of the classification.
type Option func(*options)

// WithLabelSource adds a label source tried after the standard label
// associations and before the container search.
func WithLabelSource(fn LabelSource) Option {
	return func(o *options) { o.sources = append(o.sources, fn) }
}

// WithFallbackLabel adds a label source tried when everything else found
// nothing.
func WithFallbackLabel(fn LabelSource) Option {
	return func(o *options) { o.fallback = append(o.fallback, fn) }
}

// WithTable replaces the synonym table.
func WithTable(t []Synonyms) Option {
	return func(o *options) { o.table = t }
}

// Classify resolves the label and kind of el. scope is where label[for]
// and aria-labelledby targets are looked up, usually the document or the
// shadow root holding el.
func Classify(scope dom.Queryer, el dom.Element, opts ...Option) Result {
	o := options{table: Table}
	for _, fn := range opts {
		fn(&o)
	}
	label := findLabel(scope, el, &o)
	return Result{Kind: KindOf(Attributes(el, label), o.table), Label: label}
}

// Label returns only the label of el.
func Label(scope dom.Queryer, el dom.Element, opts ...Option) string {
	o := options{table: Table}
	for _, fn := range opts {
		fn(&o)
	}
	return findLabel(scope, el, &o)
}

// Attributes returns the lower-cased candidate strings kinds are matched
// against. Identifier-like values also appear with '_' and '-' replaced by
// spaces so that "first_name" matches "first name".
func Attributes(el dom.Element, label string) []string {
	raw := []string{
		el.Attr("id"),
		el.Attr("name"),
		el.Attr("aria-label"),
		el.Attr("placeholder"),
		el.Attr("autocomplete"),
		label,
	}
	var out []string
	for _, s := range raw {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		out = append(out, s)
		if spaced := strings.NewReplacer("_", " ", "-", " ").Replace(s); spaced != s {
			out = append(out, spaced)
		}
	}
	return out
}

// KindOf returns the first kind of table with a keyword contained in any
// attribute.
func KindOf(attrs []string, table []Synonyms) Kind {
	for _, row := range table {
		for _, kw := range row.Keywords {
			for _, a := range attrs {
				if strings.Contains(a, kw) {
					return row.Kind
				}
			}
		}
	}
	return Unknown
}

func findLabel(scope dom.Queryer, el dom.Element, o *options) string {
	steps := []LabelSource{
		func(el dom.Element) string { return labelFor(scope, el) },
		func(el dom.Element) string { return labelledBy(scope, el) },
		ancestorLabel,
	}
	if strings.EqualFold(el.Attr("type"), "radio") {
		// A radio's own label names the choice, not the question.
		steps = []LabelSource{GroupLabel}
	}
	steps = append(steps, o.sources...)
	steps = append(steps, containerLabel)
	steps = append(steps, o.fallback...)
	steps = append(steps,
		func(el dom.Element) string { return el.Attr("aria-label") },
		func(el dom.Element) string { return el.Attr("placeholder") },
	)
	for _, fn := range steps {
		if l := CleanLabel(fn(el)); l != "" {
			return l
		}
	}
	return ""
}

// CleanLabel collapses whitespace and drops required-field markers.
func CleanLabel(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimRight(s, " *:")
	return strings.TrimSpace(s)
}

func labelFor(scope dom.Queryer, el dom.Element) string {
	id := el.Attr("id")
	if id == "" || scope == nil || strings.ContainsAny(id, `"\`) {
		return ""
	}
	labels, err := scope.QueryAll(`label[for="` + id + `"]`)
	if err != nil {
		return ""
	}
	for _, l := range labels {
		if t := labelText(l); t != "" {
			return t
		}
	}
	return ""
}

func labelledBy(scope dom.Queryer, el dom.Element) string {
	ids := strings.Fields(el.Attr("aria-labelledby"))
	if len(ids) == 0 || scope == nil {
		return ""
	}
	var parts []string
	for _, id := range ids {
		if strings.ContainsAny(id, `"\`) {
			continue
		}
		targets, err := scope.QueryAll(`[id="` + id + `"]`)
		if err != nil || len(targets) == 0 {
			continue
		}
		if t := targets[0].Text(); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

func ancestorLabel(el dom.Element) string {
	l, err := el.Closest("label")
	if err != nil || l == nil {
		return ""
	}
	return labelText(l)
}

// labelText is the label's text without the text of controls nested in it.
func labelText(l dom.Element) string {
	return l.TextExcluding([]string{"select", "option", "textarea", "ul[role=listbox]"})
}

// containerLabel looks for a fieldset legend, then for a label or legend in
// the nearest ancestors that hold no other control.
func containerLabel(el dom.Element) string {
	if isGroupControl(el) {
		if fs, err := el.Closest("fieldset"); err == nil && fs != nil {
			if t := firstText(fs, "legend"); t != "" {
				return t
			}
		}
	}
	p := el.Parent()
	for depth := 0; p != nil && depth < 3; depth++ {
		if !singleControl(p, el) {
			return ""
		}
		if t := firstText(p, "label, legend"); t != "" {
			return t
		}
		p = p.Parent()
	}
	return ""
}

func firstText(scope dom.Element, selector string) string {
	els, err := scope.QueryAll(selector)
	if err != nil {
		return ""
	}
	for _, e := range els {
		if t := labelText(e); t != "" {
			return t
		}
	}
	return ""
}

// singleControl reports whether container holds no control other than el
// and members of el's radio or checkbox group.
func singleControl(container, el dom.Element) bool {
	controls, err := container.QueryAll("input, select, textarea")
	if err != nil {
		return false
	}
	group := el.Attr("name")
	n := 0
	for _, c := range controls {
		if c.Hidden() && !strings.EqualFold(c.Attr("type"), "file") {
			continue
		}
		if group != "" && isGroupControl(el) && c.Attr("name") == group {
			continue
		}
		n++
	}
	if group != "" && isGroupControl(el) {
		return n == 0
	}
	return n <= 1
}

func isGroupControl(el dom.Element) bool {
	if el.Tag() != "input" {
		return false
	}
	t := strings.ToLower(el.Attr("type"))
	return t == "radio" || t == "checkbox"
}

// GroupLabel returns the question label of a radio group: the fieldset
// legend, the radiogroup's accessible name, or the first label-like
// element above the group that wraps no control.
func GroupLabel(el dom.Element) string {
	if fs, err := el.Closest("fieldset"); err == nil && fs != nil {
		if t := firstText(fs, "legend"); t != "" {
			return t
		}
	}
	if g, err := el.Closest(`[role="radiogroup"], [role="group"]`); err == nil && g != nil {
		if t := g.Attr("aria-label"); t != "" {
			return t
		}
	}
	p := el.Parent()
	for depth := 0; p != nil && depth < 4; depth++ {
		labels, err := p.QueryAll("label, legend, [role=heading]")
		if err == nil {
			for _, l := range labels {
				inner, _ := l.QueryAll("input")
				if len(inner) > 0 {
					continue
				}
				if t := labelText(l); t != "" {
					return t
				}
			}
		}
		p = p.Parent()
	}
	return ""
}
