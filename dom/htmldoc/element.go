package htmldoc

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/formfill/dom"
)

// Element wraps one node of a Document. Wrappers are stable: the same node
// always yields the same *Element.
type Element struct {
	d *Document
	n *html.Node
}

var _ dom.Element = (*Element)(nil)

func (e *Element) Tag() string { return e.n.Data }

func (e *Element) Attr(name string) string {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	return getAttr(e.n, strings.ToLower(name))
}

func (e *Element) HasAttr(name string) bool {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	_, ok := lookupAttr(e.n, strings.ToLower(name))
	return ok
}

func (e *Element) SetAttr(name, value string) error {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	setAttr(e.n, strings.ToLower(name), value)
	return nil
}

func (e *Element) RemoveAttr(name string) error {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	removeAttr(e.n, strings.ToLower(name))
	return nil
}

func (e *Element) Text() string {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	return collectText(e.n, e.isShadowRoot(), nil)
}

func (e *Element) TextExcluding(selectors []string) string {
	var skip []selector
	for _, s := range selectors {
		sels, err := parseSelectorList(s)
		if err != nil {
			continue
		}
		skip = append(skip, sels...)
	}
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	return collectText(e.n, e.isShadowRoot(), skip)
}

func (e *Element) isShadowRoot() bool {
	return e.n.DataAtom == atom.Template && e.n.Parent != nil && shadowTemplate(e.n.Parent) == e.n
}

func (e *Element) Value() string {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	return e.valueLocked()
}

func (e *Element) valueLocked() string {
	switch e.n.DataAtom {
	case atom.Select:
		if opt := e.selectedOption(); opt != nil {
			return optionValue(opt)
		}
		return ""
	case atom.Textarea:
		if v, ok := e.d.values[e.n]; ok {
			return v
		}
		return textContent(e.n)
	default:
		if v, ok := e.d.values[e.n]; ok {
			return v
		}
		if strings.EqualFold(getAttr(e.n, "contenteditable"), "true") {
			return collectText(e.n, false, nil)
		}
		return getAttr(e.n, "value")
	}
}

func (e *Element) SetValue(v string) error {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	if e.n.DataAtom == atom.Select {
		if v == "" {
			delete(e.d.selected, e.n)
			return nil
		}
		for _, opt := range options(e.n) {
			if optionValue(opt) == v {
				e.d.selected[e.n] = opt
				return nil
			}
		}
		return fmt.Errorf("htmldoc: select has no option with value %q", v)
	}
	if e.isFileInput() && v == "" {
		delete(e.d.files, e.n)
	}
	e.d.values[e.n] = v
	return nil
}

func (e *Element) Checked() bool {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	return e.checkedLocked()
}

func (e *Element) checkedLocked() bool {
	if v, ok := e.d.checked[e.n]; ok {
		return v
	}
	_, ok := lookupAttr(e.n, "checked")
	return ok
}

// Hidden reports whether the element is not rendered: type=hidden, or a
// hidden attribute or display:none style on it or an ancestor.
func (e *Element) Hidden() bool {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	if e.n.DataAtom == atom.Input && strings.EqualFold(getAttr(e.n, "type"), "hidden") {
		return true
	}
	for n := e.n; n != nil; n = parentElement(n) {
		if hiddenSelf(n) {
			return true
		}
	}
	return false
}

// Click fires a click. Checkboxes toggle and radios select, each followed
// by input and change events.
func (e *Element) Click() error {
	e.d.mu.Lock()
	toggled := false
	if e.n.DataAtom == atom.Input {
		switch strings.ToLower(getAttr(e.n, "type")) {
		case "checkbox":
			e.d.checked[e.n] = !e.checkedLocked()
			toggled = true
		case "radio":
			if !e.checkedLocked() {
				e.uncheckGroupLocked()
				e.d.checked[e.n] = true
				toggled = true
			}
		}
	}
	e.d.mu.Unlock()

	e.d.dispatch(e, "click")
	if toggled {
		e.d.dispatch(e, "input")
		e.d.dispatch(e, "change")
	}
	return nil
}

func (e *Element) uncheckGroupLocked() {
	name := getAttr(e.n, "name")
	if name == "" {
		return
	}
	walk(e.d.root, true, func(n *html.Node) bool {
		if n.DataAtom == atom.Input && strings.EqualFold(getAttr(n, "type"), "radio") && getAttr(n, "name") == name {
			e.d.checked[n] = false
		}
		return true
	})
}

func (e *Element) Focus() error {
	e.d.mu.Lock()
	e.d.focused = e.n
	e.d.mu.Unlock()
	e.d.dispatch(e, "focus")
	return nil
}

func (e *Element) Dispatch(event string) error {
	e.d.dispatch(e, event)
	return nil
}

func (e *Element) QueryAll(selector string) ([]dom.Element, error) {
	return e.d.queryAll(e.n, selector)
}

func (e *Element) Closest(selector string) (dom.Element, error) {
	sels, err := parseSelectorList(selector)
	if err != nil {
		return nil, err
	}
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	for n := e.n; n != nil; n = parentElement(n) {
		if matchesAny(sels, n) {
			return e.d.wrap(n), nil
		}
	}
	return nil, nil
}

func (e *Element) Parent() dom.Element {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	p := parentElement(e.n)
	if p == nil {
		return nil
	}
	return e.d.wrap(p)
}

func (e *Element) ShadowRoot() dom.Element {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	t := shadowTemplate(e.n)
	if t == nil {
		return nil
	}
	return e.d.wrap(t)
}

func (e *Element) Options() ([]dom.Option, error) {
	if e.n.DataAtom != atom.Select {
		return nil, fmt.Errorf("htmldoc: options on <%s>", e.n.Data)
	}
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	sel := e.selectedOption()
	var out []dom.Option
	for _, opt := range options(e.n) {
		out = append(out, dom.Option{
			Value:    optionValue(opt),
			Text:     collectText(opt, false, nil),
			Selected: opt == sel,
		})
	}
	return out, nil
}

func (e *Element) SetFiles(files []dom.File) error {
	if !e.isFileInput() {
		return fmt.Errorf("htmldoc: set files on non-file <%s>", e.n.Data)
	}
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	e.d.files[e.n] = append([]dom.File(nil), files...)
	if len(files) > 0 {
		e.d.values[e.n] = `C:\fakepath\` + files[0].Name
	}
	return nil
}

// Files returns the files attached to a file input.
func (e *Element) Files() []dom.File {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	return append([]dom.File(nil), e.d.files[e.n]...)
}

func (e *Element) OuterHTML() (string, error) {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	var b strings.Builder
	if err := html.Render(&b, e.n); err != nil {
		return "", fmt.Errorf("htmldoc: render: %w", err)
	}
	return b.String(), nil
}

// Focused reports whether the element holds focus.
func (e *Element) Focused() bool {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	return e.d.focused == e.n
}

func (e *Element) isFileInput() bool {
	return e.n.DataAtom == atom.Input && strings.EqualFold(getAttr(e.n, "type"), "file")
}

// selectedOption must be called with mu held.
func (e *Element) selectedOption() *html.Node {
	if opt, ok := e.d.selected[e.n]; ok {
		return opt
	}
	opts := options(e.n)
	for _, opt := range opts {
		if _, ok := lookupAttr(opt, "selected"); ok {
			return opt
		}
	}
	if len(opts) > 0 && !hasMultiple(e.n) {
		return opts[0]
	}
	return nil
}

func hasMultiple(n *html.Node) bool {
	_, ok := lookupAttr(n, "multiple")
	return ok
}

func options(sel *html.Node) []*html.Node {
	var out []*html.Node
	walk(sel, false, func(n *html.Node) bool {
		if n.DataAtom == atom.Option {
			out = append(out, n)
		}
		return true
	})
	return out
}

func optionValue(opt *html.Node) string {
	if v, ok := lookupAttr(opt, "value"); ok {
		return v
	}
	return collectText(opt, false, nil)
}

func textContent(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}
