package htmldoc

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/formfill/dom"
)

type subscription struct {
	d    *Document
	id   int
	node *html.Node
	ch   chan struct{}
}

func (s *subscription) C() <-chan struct{} { return s.ch }

func (s *subscription) Close() {
	s.d.mu.Lock()
	delete(s.d.observers, s.id)
	s.d.mu.Unlock()
}

// Observe subscribes to child-list mutations below the element.
func (e *Element) Observe() (dom.Subscription, error) {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	e.d.nextObs++
	s := &subscription{d: e.d, id: e.d.nextObs, node: e.n, ch: make(chan struct{}, 1)}
	e.d.observers[s.id] = s
	return s, nil
}

// Observers returns the number of live subscriptions.
func (d *Document) Observers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.observers)
}

// AppendHTML parses fragment in the context of the element and appends the
// resulting nodes as its last children.
func (e *Element) AppendHTML(fragment string) error {
	ctxNode := e.n
	if ctxNode.DataAtom == atom.Template {
		ctxNode = &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), ctxNode)
	if err != nil {
		return fmt.Errorf("htmldoc: parse fragment: %w", err)
	}
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	for _, n := range nodes {
		e.n.AppendChild(n)
	}
	e.d.notifyLocked(e.n)
	return nil
}

// SetInnerHTML replaces the element's children with fragment.
func (e *Element) SetInnerHTML(fragment string) error {
	e.d.mu.Lock()
	for c := e.n.FirstChild; c != nil; {
		next := c.NextSibling
		e.n.RemoveChild(c)
		c = next
	}
	e.d.mu.Unlock()
	return e.AppendHTML(fragment)
}

// Remove detaches the element from its parent.
func (e *Element) Remove() error {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	p := e.n.Parent
	if p == nil {
		return nil
	}
	p.RemoveChild(e.n)
	e.d.notifyLocked(p)
	return nil
}

// notifyLocked signals every observer whose subtree contains changed.
func (d *Document) notifyLocked(changed *html.Node) {
	for _, s := range d.observers {
		if !isAncestor(s.node, changed) {
			continue
		}
		select {
		case s.ch <- struct{}{}:
		default:
		}
	}
}

func isAncestor(anc, n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == anc {
			return true
		}
	}
	return false
}
