// CLAUDE:SUMMARY Named-service router: message handlers registered locally, remote services built from transport factories, all called as bytes in / bytes out.
// Package connectivity is the call layer between formfill components.
// Every service is a Handler (bytes in, bytes out); the Router resolves a
// service name to a local handler or to a remote handler built by a
// transport factory, so the engine's message handlers and the remote
// Oracle or answer store are invoked the same way.
//
//	r := connectivity.New()
//	r.RegisterTransport("http", connectivity.HTTPFactory())
//	r.RegisterLocal("formfill.scan", scanHandler)
//	r.Route("oracle.answer", "http", "https://oracle.example.com/api/answer-question", nil)
//	resp, err := r.Call(ctx, "formfill.scan", nil)
package connectivity

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
)

// Handler is a transport-agnostic service function.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// TransportFactory builds a Handler for a remote endpoint. config is the
// per-route JSON; close may be nil.
type TransportFactory func(endpoint string, config json.RawMessage) (handler Handler, close func(), err error)

type remoteEntry struct {
	strategy string
	endpoint string
	handler  Handler
	close    func()
}

// Router dispatches service calls. Safe for concurrent use.
type Router struct {
	mu        sync.RWMutex
	local     map[string]Handler
	remote    map[string]remoteEntry
	noop      map[string]bool
	factories map[string]TransportFactory
	logger    *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// New creates an empty Router.
func New(opts ...Option) *Router {
	r := &Router{
		local:     make(map[string]Handler),
		remote:    make(map[string]remoteEntry),
		noop:      make(map[string]bool),
		factories: make(map[string]TransportFactory),
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RegisterLocal registers an in-process handler for service.
func (r *Router) RegisterLocal(service string, h Handler) {
	r.mu.Lock()
	r.local[service] = h
	r.mu.Unlock()
}

// RegisterTransport registers the factory used by routes of strategy.
func (r *Router) RegisterTransport(strategy string, f TransportFactory) {
	r.mu.Lock()
	r.factories[strategy] = f
	r.mu.Unlock()
}

// Route points service at a transport. Strategy "local" drops any remote
// route so calls reach the local handler; "noop" makes calls succeed with
// an empty response. Any other strategy needs a registered factory.
func (r *Router) Route(service, strategy, endpoint string, config json.RawMessage) error {
	var entry remoteEntry
	switch strategy {
	case "local", "noop":
	default:
		r.mu.RLock()
		f, ok := r.factories[strategy]
		r.mu.RUnlock()
		if !ok {
			return &ErrNoFactory{Service: service, Strategy: strategy}
		}
		h, closeFn, err := f(endpoint, config)
		if err != nil {
			return &ErrFactoryFailed{Service: service, Strategy: strategy, Endpoint: endpoint, Cause: err}
		}
		entry = remoteEntry{strategy: strategy, endpoint: endpoint, handler: h, close: closeFn}
	}

	r.mu.Lock()
	old, hadOld := r.remote[service]
	delete(r.remote, service)
	delete(r.noop, service)
	switch strategy {
	case "local":
	case "noop":
		r.noop[service] = true
	default:
		r.remote[service] = entry
	}
	r.mu.Unlock()

	if hadOld && old.close != nil {
		old.close()
	}
	r.logger.Info("connectivity: route set", "service", service, "strategy", strategy, "endpoint", endpoint)
	return nil
}

// Call dispatches to the noop route, the remote route or the local
// handler, in that order.
func (r *Router) Call(ctx context.Context, service string, payload []byte) ([]byte, error) {
	r.mu.RLock()
	noop := r.noop[service]
	entry, hasRemote := r.remote[service]
	h := r.local[service]
	r.mu.RUnlock()

	switch {
	case noop:
		return nil, nil
	case hasRemote:
		r.logger.DebugContext(ctx, "connectivity: remote call", "service", service, "endpoint", entry.endpoint)
		return entry.handler(ctx, payload)
	case h != nil:
		return h(ctx, payload)
	}
	return nil, &ErrServiceNotFound{Service: service}
}

// Services lists every callable service name, sorted.
func (r *Router) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	for s := range r.local {
		seen[s] = true
	}
	for s := range r.remote {
		seen[s] = true
	}
	for s := range r.noop {
		seen[s] = true
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Close releases every remote handler.
func (r *Router) Close() error {
	r.mu.Lock()
	entries := r.remote
	r.remote = make(map[string]remoteEntry)
	r.mu.Unlock()
	for _, e := range entries {
		if e.close != nil {
			e.close()
		}
	}
	return nil
}
