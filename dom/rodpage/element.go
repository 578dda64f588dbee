package rodpage

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/formfill/dom"
)

// Element is a handle to a node of a live page. Getters return zero values
// when the node is gone. Every query allocates fresh handles; NodeKey
// identifies the node behind them.
type Element struct {
	d  *Document
	el *rod.Element

	keyOnce sync.Once
	key     any
}

var (
	_ dom.Element = (*Element)(nil)
	_ dom.Keyed   = (*Element)(nil)
)

// NodeKey is the backend node id, stable across queries for the page's
// lifetime. The remote object id stands in when the node cannot be
// described.
func (e *Element) NodeKey() any {
	e.keyOnce.Do(func() {
		node, err := e.el.Describe(0, false)
		if err != nil {
			e.d.logger.Debug("rodpage: describe", "error", err)
			e.key = e.el.Object.ObjectID
			return
		}
		e.key = node.BackendNodeID
	})
	return e.key
}

func (e *Element) str(js string, args ...any) string {
	res, err := e.el.Eval(js, args...)
	if err != nil {
		e.d.logger.Debug("rodpage: eval", "js", js, "error", err)
		return ""
	}
	return res.Value.Str()
}

func (e *Element) boolean(js string, args ...any) bool {
	res, err := e.el.Eval(js, args...)
	if err != nil {
		e.d.logger.Debug("rodpage: eval", "js", js, "error", err)
		return false
	}
	return res.Value.Bool()
}

func (e *Element) run(op, js string, args ...any) error {
	if _, err := e.el.Eval(js, args...); err != nil {
		return fmt.Errorf("rodpage: %s: %w", op, err)
	}
	return nil
}

// evalElement returns the element js evaluates to, or nil for null.
func (e *Element) evalElement(js string, args ...any) (*Element, error) {
	obj, err := e.el.Evaluate(rod.Eval(js, args...).ByObject())
	if err != nil {
		return nil, err
	}
	if obj.ObjectID == "" {
		return nil, nil
	}
	el, err := e.d.page.ElementFromObject(obj)
	if err != nil {
		return nil, err
	}
	return e.d.wrap(el), nil
}

func (e *Element) evalElements(js string, args ...any) ([]dom.Element, error) {
	els, err := e.d.page.ElementsByJS(rod.Eval(js, args...).This(e.el.Object))
	if err != nil {
		return nil, fmt.Errorf("rodpage: query: %w", err)
	}
	out := make([]dom.Element, len(els))
	for i, el := range els {
		out[i] = e.d.wrap(el)
	}
	return out, nil
}

func (e *Element) QueryAll(selector string) ([]dom.Element, error) {
	return e.evalElements(`(s) => Array.from(this.querySelectorAll(s))`, selector)
}

func (e *Element) Tag() string {
	return e.str(`() => this.nodeType === 1 ? this.tagName.toLowerCase() : '#shadow-root'`)
}

func (e *Element) Attr(name string) string {
	return e.str(`(n) => (this.getAttribute && this.getAttribute(n)) || ''`, name)
}

func (e *Element) HasAttr(name string) bool {
	return e.boolean(`(n) => !!(this.hasAttribute && this.hasAttribute(n))`, name)
}

func (e *Element) SetAttr(name, value string) error {
	return e.run("set attribute", `(n, v) => this.setAttribute(n, v)`, name, value)
}

func (e *Element) RemoveAttr(name string) error {
	return e.run("remove attribute", `(n) => this.removeAttribute(n)`, name)
}

func (e *Element) Text() string {
	return e.str(`() => window.__formfill.text(this, this.nodeType === 11)`)
}

func (e *Element) TextExcluding(selectors []string) string {
	if selectors == nil {
		selectors = []string{}
	}
	return e.str(`(skip) => window.__formfill.text(this, this.nodeType === 11, skip)`, selectors)
}

func (e *Element) Value() string {
	return e.str(`() => window.__formfill.value(this)`)
}

func (e *Element) SetValue(v string) error {
	return e.run("set value", `(v) => window.__formfill.setValue(this, v)`, v)
}

func (e *Element) Checked() bool {
	return e.boolean(`() => !!this.checked`)
}

func (e *Element) Hidden() bool {
	res, err := e.el.Eval(`() => window.__formfill.hidden(this)`)
	if err != nil {
		return true
	}
	return res.Value.Bool()
}

// Click runs the element's click activation, which toggles checkboxes and
// selects radios the way a user click does.
func (e *Element) Click() error {
	return e.run("click", `() => this.click()`)
}

func (e *Element) Focus() error {
	return e.run("focus", `() => this.focus()`)
}

func (e *Element) Dispatch(event string) error {
	return e.run("dispatch "+event, `(t) => window.__formfill.dispatch(this, t)`, event)
}

func (e *Element) Closest(selector string) (dom.Element, error) {
	el, err := e.evalElement(`(s) => this.closest ? this.closest(s) : null`, selector)
	if err != nil {
		return nil, fmt.Errorf("rodpage: closest: %w", err)
	}
	if el == nil {
		return nil, nil
	}
	return el, nil
}

func (e *Element) Parent() dom.Element {
	el, err := e.evalElement(`() => this.parentElement || (this.parentNode && this.parentNode.nodeType === 11 ? this.parentNode : null)`)
	if err != nil || el == nil {
		return nil
	}
	return el
}

func (e *Element) ShadowRoot() dom.Element {
	el, err := e.evalElement(`() => this.shadowRoot`)
	if err != nil || el == nil {
		return nil
	}
	return el
}

func (e *Element) Options() ([]dom.Option, error) {
	raw := e.str(`() => window.__formfill.options(this)`)
	if raw == "" {
		return nil, fmt.Errorf("rodpage: options: element gone")
	}
	var opts []dom.Option
	if err := json.Unmarshal([]byte(raw), &opts); err != nil {
		return nil, fmt.Errorf("rodpage: options: %w", err)
	}
	return opts, nil
}

type filePayload struct {
	Name string `json:"name"`
	MIME string `json:"mime"`
	Data string `json:"data"`
}

// SetFiles builds File objects in the page and assigns them to the input.
func (e *Element) SetFiles(files []dom.File) error {
	payload := make([]filePayload, len(files))
	for i, f := range files {
		payload[i] = filePayload{Name: f.Name, MIME: f.MIME, Data: base64.StdEncoding.EncodeToString(f.Data)}
	}
	return e.run("set files", `(files) => window.__formfill.setFiles(this, files)`, payload)
}

func (e *Element) OuterHTML() (string, error) {
	html, err := e.el.HTML()
	if err != nil {
		return "", fmt.Errorf("rodpage: outer html: %w", err)
	}
	return html, nil
}

func (e *Element) Observe() (dom.Subscription, error) {
	s, err := e.d.subscribe(e)
	if err != nil {
		return nil, err
	}
	return s, nil
}
