// CLAUDE:SUMMARY In-memory DOM over x/net/html implementing dom.Document: form state, events, declarative shadow roots, mutation subscriptions.
// Package htmldoc implements the dom accessor over a parsed HTML tree. It
// keeps form state (values, checked, selected option, files) as properties
// separate from attributes, records dispatched events, lets callers attach
// listeners that emulate page scripts, and notifies subtree observers on
// child-list mutations.
//
// Open shadow roots are written as declarative shadow DOM:
//
//	<my-widget><template shadowrootmode="open">...</template></my-widget>
//
// Light-DOM queries do not enter templates; ShadowRoot and ShadowHosts do.
package htmldoc

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/formfill/dom"
)

// Event is one dispatched DOM event.
type Event struct {
	Type   string
	Target *Element
}

// Listener reacts to dispatched events. It runs outside the document lock
// and may mutate the document.
type Listener func(ev Event)

// Document is an in-memory page. All methods are safe for concurrent use.
type Document struct {
	mu   sync.Mutex
	root *html.Node
	url  string
	host string

	wrappers map[*html.Node]*Element
	values   map[*html.Node]string
	checked  map[*html.Node]bool
	selected map[*html.Node]*html.Node
	files    map[*html.Node][]dom.File
	focused  *html.Node

	events    []Event
	listeners map[string][]Listener

	nextObs   int
	observers map[int]*subscription
}

var _ dom.Document = (*Document)(nil)

// Parse reads an HTML document. pageURL provides URL and Host.
func Parse(r io.Reader, pageURL string) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("htmldoc: parse: %w", err)
	}
	d := &Document{
		root:      root,
		url:       pageURL,
		wrappers:  make(map[*html.Node]*Element),
		values:    make(map[*html.Node]string),
		checked:   make(map[*html.Node]bool),
		selected:  make(map[*html.Node]*html.Node),
		files:     make(map[*html.Node][]dom.File),
		listeners: make(map[string][]Listener),
		observers: make(map[int]*subscription),
	}
	if pageURL != "" {
		u, err := url.Parse(pageURL)
		if err != nil {
			return nil, fmt.Errorf("htmldoc: page url: %w", err)
		}
		d.host = u.Hostname()
	}
	return d, nil
}

// ParseString is Parse over a string.
func ParseString(s, pageURL string) (*Document, error) {
	return Parse(strings.NewReader(s), pageURL)
}

func (d *Document) URL() string  { return d.url }
func (d *Document) Host() string { return d.host }

func (d *Document) Root() dom.Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	for c := d.root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return d.wrap(c)
		}
	}
	return nil
}

func (d *Document) Body() dom.Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	var body *html.Node
	walk(d.root, false, func(n *html.Node) bool {
		if n.DataAtom == atom.Body {
			body = n
			return false
		}
		return true
	})
	if body == nil {
		return nil
	}
	return d.wrap(body)
}

func (d *Document) QueryAll(selector string) ([]dom.Element, error) {
	return d.queryAll(d.root, selector)
}

func (d *Document) ShadowHosts() ([]dom.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []dom.Element
	walk(d.root, true, func(n *html.Node) bool {
		if shadowTemplate(n) != nil {
			out = append(out, d.wrap(n))
		}
		return true
	})
	return out, nil
}

func (d *Document) DeepText() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return collectText(d.root, true, nil)
}

// Element returns the first element matching selector, or nil.
func (d *Document) Element(selector string) *Element {
	els, err := d.QueryAll(selector)
	if err != nil || len(els) == 0 {
		return nil
	}
	return els[0].(*Element)
}

// On registers a listener for one event type.
func (d *Document) On(eventType string, fn Listener) {
	d.mu.Lock()
	d.listeners[eventType] = append(d.listeners[eventType], fn)
	d.mu.Unlock()
}

// Events returns a copy of every event dispatched so far.
func (d *Document) Events() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Event, len(d.events))
	copy(out, d.events)
	return out
}

// HTML renders the whole document.
func (d *Document) HTML() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var b strings.Builder
	html.Render(&b, d.root)
	return b.String()
}

func (d *Document) queryAll(scope *html.Node, selector string) ([]dom.Element, error) {
	sels, err := parseSelectorList(selector)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []dom.Element
	for c := scope.FirstChild; c != nil; c = c.NextSibling {
		walk(c, false, func(n *html.Node) bool {
			if matchesAny(sels, n) {
				out = append(out, d.wrap(n))
			}
			return true
		})
	}
	return out, nil
}

// wrap returns the stable wrapper for n. Must be called with mu held.
func (d *Document) wrap(n *html.Node) *Element {
	if e, ok := d.wrappers[n]; ok {
		return e
	}
	e := &Element{d: d, n: n}
	d.wrappers[n] = e
	return e
}

// dispatch records an event and runs listeners. Must be called without mu.
func (d *Document) dispatch(e *Element, eventType string) {
	d.mu.Lock()
	ev := Event{Type: eventType, Target: e}
	d.events = append(d.events, ev)
	ls := append([]Listener(nil), d.listeners[eventType]...)
	d.mu.Unlock()
	for _, fn := range ls {
		fn(ev)
	}
}

// walk visits n and its descendants in document order. Templates are
// entered only when deep is set. fn returning false stops the walk.
func walk(n *html.Node, deep bool, fn func(*html.Node) bool) bool {
	if n.Type == html.ElementNode {
		if n.DataAtom == atom.Template && !deep {
			return true
		}
		if !fn(n) {
			return false
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, deep, fn) {
			return false
		}
	}
	return true
}

// parentElement returns the parent element of n, stopping at document and
// shadow root boundaries.
func parentElement(n *html.Node) *html.Node {
	p := n.Parent
	if p == nil || p.Type != html.ElementNode || p.DataAtom == atom.Template {
		return nil
	}
	return p
}

func shadowTemplate(n *html.Node) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Template {
			mode := strings.ToLower(getAttr(c, "shadowrootmode"))
			if mode == "" {
				mode = strings.ToLower(getAttr(c, "shadowroot"))
			}
			if mode == "open" {
				return c
			}
		}
	}
	return nil
}

var skipTextTags = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Head:     true,
	atom.Template: true,
}

var blockTags = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Br: true, atom.Dd: true, atom.Div: true, atom.Dl: true, atom.Dt: true,
	atom.Fieldset: true, atom.Footer: true, atom.Form: true, atom.H1: true,
	atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Header: true, atom.Hr: true, atom.Label: true, atom.Legend: true,
	atom.Li: true, atom.Main: true, atom.Nav: true, atom.Ol: true, atom.Option: true,
	atom.P: true, atom.Pre: true, atom.Section: true, atom.Table: true,
	atom.Td: true, atom.Th: true, atom.Tr: true, atom.Ul: true,
}

// collectText gathers rendered text below n with whitespace collapsed.
// Shadow templates are entered when deep is set; nodes matching skip are
// left out.
func collectText(n *html.Node, deep bool, skip []selector) string {
	var b strings.Builder
	var rec func(*html.Node)
	rec = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if n.DataAtom == atom.Template {
				if !deep || getAttr(n, "shadowrootmode") == "" && getAttr(n, "shadowroot") == "" {
					return
				}
			} else if skipTextTags[n.DataAtom] || hiddenSelf(n) {
				return
			}
			if len(skip) > 0 && matchesAny(skip, n) {
				return
			}
			if blockTags[n.DataAtom] {
				b.WriteByte(' ')
				defer b.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			rec(c)
		}
	}
	rec(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// hiddenSelf reports whether n itself is hidden by attribute or inline style.
func hiddenSelf(n *html.Node) bool {
	if _, ok := lookupAttr(n, "hidden"); ok {
		return true
	}
	style := strings.ReplaceAll(strings.ToLower(getAttr(n, "style")), " ", "")
	return strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden")
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Namespace == "" && n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			continue
		}
		out = append(out, a)
	}
	n.Attr = out
}
