package rodpage

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/formfill/dom"
)

// Document is a live Chrome page.
type Document struct {
	page   *rod.Page
	logger *slog.Logger
	url    string
	host   string
	root   *Element

	mu       sync.Mutex
	subs     map[string]*subscription
	nextSub  int
	listenOn bool
	ctx      context.Context
	cancel   context.CancelFunc
}

func newDocument(page *rod.Page, logger *slog.Logger) (*Document, error) {
	if _, err := page.Eval(helperJS); err != nil {
		return nil, fmt.Errorf("rodpage: install helpers: %w", err)
	}
	info, err := page.Info()
	if err != nil {
		return nil, fmt.Errorf("rodpage: page info: %w", err)
	}
	rootEl, err := page.ElementByJS(rod.Eval(`() => document.documentElement`))
	if err != nil {
		return nil, fmt.Errorf("rodpage: document element: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Document{
		page:   page,
		logger: logger,
		url:    info.URL,
		subs:   make(map[string]*subscription),
		ctx:    ctx,
		cancel: cancel,
	}
	if u, err := url.Parse(info.URL); err == nil {
		d.host = strings.ToLower(u.Hostname())
	}
	d.root = d.wrap(rootEl)
	return d, nil
}

func (d *Document) URL() string  { return d.url }
func (d *Document) Host() string { return d.host }

func (d *Document) Root() dom.Element { return d.root }

func (d *Document) Body() dom.Element {
	el, err := d.root.evalElement(`() => document.body`)
	if err != nil || el == nil {
		return nil
	}
	return el
}

func (d *Document) QueryAll(selector string) ([]dom.Element, error) {
	return d.root.evalElements(`(s) => Array.from(document.querySelectorAll(s))`, selector)
}

func (d *Document) ShadowHosts() ([]dom.Element, error) {
	return d.root.evalElements(`() => window.__formfill.hosts()`)
}

func (d *Document) DeepText() string {
	res, err := d.page.Eval(`() => window.__formfill.text(document.body || document.documentElement, true)`)
	if err != nil {
		d.logger.Debug("rodpage: deep text", "error", err)
		return ""
	}
	return res.Value.Str()
}

// Page exposes the underlying Rod page.
func (d *Document) Page() *rod.Page { return d.page }

func (d *Document) wrap(el *rod.Element) *Element {
	return &Element{d: d, el: el}
}

func (d *Document) close() {
	d.cancel()
	d.mu.Lock()
	for id, s := range d.subs {
		s.closeLocked()
		delete(d.subs, id)
	}
	d.mu.Unlock()
	if err := d.page.Close(); err != nil {
		d.logger.Debug("rodpage: close page", "error", err)
	}
}

// listenLocked starts the binding listener that routes MutationObserver
// callbacks to subscriptions.
func (d *Document) listenLocked() error {
	if d.listenOn {
		return nil
	}
	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(d.page); err != nil {
		return fmt.Errorf("rodpage: add binding: %w", err)
	}
	wait := d.page.Context(d.ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}
		d.mu.Lock()
		s := d.subs[e.Payload]
		d.mu.Unlock()
		if s != nil {
			s.notify()
		}
	})
	go wait()
	d.listenOn = true
	return nil
}

func (d *Document) subscribe(el *Element) (*subscription, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.listenLocked(); err != nil {
		return nil, err
	}
	d.nextSub++
	id := strconv.Itoa(d.nextSub)
	if _, err := el.el.Eval(`(id) => window.__formfill.observe(this, id)`, id); err != nil {
		return nil, fmt.Errorf("rodpage: observe: %w", err)
	}
	s := &subscription{d: d, id: id, ch: make(chan struct{}, 1)}
	d.subs[id] = s
	return s, nil
}

type subscription struct {
	d      *Document
	id     string
	ch     chan struct{}
	closed bool
}

func (s *subscription) C() <-chan struct{} { return s.ch }

func (s *subscription) notify() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

func (s *subscription) Close() {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.closeLocked()
	delete(s.d.subs, s.id)
}

func (s *subscription) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	if _, err := s.d.page.Eval(`(id) => window.__formfill && window.__formfill.unobserve(id)`, s.id); err != nil {
		s.d.logger.Debug("rodpage: unobserve", "id", s.id, "error", err)
	}
}
