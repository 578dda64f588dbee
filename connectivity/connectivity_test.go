package connectivity

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func echo(_ context.Context, p []byte) ([]byte, error) { return p, nil }

func TestRouter_LocalRemoteNoop(t *testing.T) {
	r := New(WithLogger(quiet))
	r.RegisterLocal("formfill.scan", func(context.Context, []byte) ([]byte, error) {
		return []byte("local"), nil
	})
	r.RegisterTransport("fake", func(endpoint string, _ json.RawMessage) (Handler, func(), error) {
		return func(context.Context, []byte) ([]byte, error) { return []byte(endpoint), nil }, nil, nil
	})

	ctx := context.Background()
	if got, _ := r.Call(ctx, "formfill.scan", nil); string(got) != "local" {
		t.Fatalf("local = %q", got)
	}
	if err := r.Route("formfill.scan", "fake", "remote-1", nil); err != nil {
		t.Fatal(err)
	}
	if got, _ := r.Call(ctx, "formfill.scan", nil); string(got) != "remote-1" {
		t.Fatalf("remote = %q", got)
	}
	if err := r.Route("formfill.scan", "noop", "", nil); err != nil {
		t.Fatal(err)
	}
	if got, err := r.Call(ctx, "formfill.scan", nil); got != nil || err != nil {
		t.Fatalf("noop = %q, %v", got, err)
	}
	if err := r.Route("formfill.scan", "local", "", nil); err != nil {
		t.Fatal(err)
	}
	if got, _ := r.Call(ctx, "formfill.scan", nil); string(got) != "local" {
		t.Fatalf("back to local = %q", got)
	}

	var nf *ErrServiceNotFound
	if _, err := r.Call(ctx, "nope", nil); !errors.As(err, &nf) {
		t.Fatalf("err = %v", err)
	}
	var nofac *ErrNoFactory
	if err := r.Route("x", "quic", "q://", nil); !errors.As(err, &nofac) {
		t.Fatalf("err = %v", err)
	}
	if got := r.Services(); len(got) != 1 || got[0] != "formfill.scan" {
		t.Fatalf("services = %v", got)
	}
}

func TestRouter_RouteClosesReplacedHandler(t *testing.T) {
	r := New(WithLogger(quiet))
	var closed int32
	r.RegisterTransport("fake", func(string, json.RawMessage) (Handler, func(), error) {
		return echo, func() { atomic.AddInt32(&closed, 1) }, nil
	})
	r.Route("s", "fake", "a", nil)
	r.Route("s", "fake", "b", nil)
	if atomic.LoadInt32(&closed) != 1 {
		t.Fatalf("closed = %d", closed)
	}
	r.Close()
	if atomic.LoadInt32(&closed) != 2 {
		t.Fatalf("closed after Close = %d", closed)
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) HandlerMiddleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, p []byte) ([]byte, error) {
				order = append(order, name)
				return next(ctx, p)
			}
		}
	}
	Chain(mw("a"), mw("b"))(echo)(context.Background(), nil)
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("order = %v", order)
	}
}

func TestTimeout(t *testing.T) {
	slow := func(ctx context.Context, _ []byte) ([]byte, error) {
		time.Sleep(200 * time.Millisecond)
		return []byte("late"), nil
	}
	start := time.Now()
	_, err := Timeout(20*time.Millisecond)(slow)(context.Background(), nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	if time.Since(start) > 150*time.Millisecond {
		t.Fatal("timeout did not return early")
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(quiet)(func(context.Context, []byte) ([]byte, error) { panic("boom") })
	_, err := h(context.Background(), nil)
	var p *ErrPanic
	if !errors.As(err, &p) || p.Value != "boom" {
		t.Fatalf("err = %v", err)
	}
}

func TestWithRetry(t *testing.T) {
	var calls int32
	flaky := func(context.Context, []byte) ([]byte, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, errors.New("transient")
		}
		return []byte("ok"), nil
	}
	got, err := WithRetry(3, time.Millisecond, quiet)(flaky)(context.Background(), nil)
	if err != nil || string(got) != "ok" || calls != 3 {
		t.Fatalf("got %q %v after %d calls", got, err, calls)
	}

	calls = 0
	bad := func(context.Context, []byte) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return nil, &StatusError{Code: 400, Body: "bad"}
	}
	if _, err := WithRetry(3, time.Millisecond, nil)(bad)(context.Background(), nil); err == nil || calls != 1 {
		t.Fatalf("4xx must not be retried: %v after %d calls", err, calls)
	}
}

func TestCircuitBreaker(t *testing.T) {
	now := time.Unix(0, 0)
	cb := NewCircuitBreaker(WithBreakerThreshold(2), WithBreakerResetTimeout(time.Minute),
		WithBreakerClock(func() time.Time { return now }))
	failing := WithCircuitBreaker(cb, "oracle")(func(context.Context, []byte) ([]byte, error) {
		return nil, errors.New("down")
	})
	ctx := context.Background()
	failing(ctx, nil)
	failing(ctx, nil)
	if cb.State() != BreakerOpen {
		t.Fatalf("state = %s", cb.State())
	}
	var open *ErrCircuitOpen
	if _, err := failing(ctx, nil); !errors.As(err, &open) || open.Service != "oracle" {
		t.Fatalf("err = %v", err)
	}

	now = now.Add(time.Minute)
	if cb.State() != BreakerHalfOpen {
		t.Fatalf("state = %s", cb.State())
	}
	WithCircuitBreaker(cb, "oracle")(echo)(ctx, nil)
	if cb.State() != BreakerClosed {
		t.Fatalf("state after probe = %s", cb.State())
	}
}

func TestHTTPFactory(t *testing.T) {
	var gotAuth, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		if r.URL.Path == "/fail" {
			http.Error(w, "nope", http.StatusBadGateway)
			return
		}
		io.Copy(w, r.Body)
	}))
	defer srv.Close()

	f := HTTPFactory(WithAllowPrivate(true))
	h, closeFn, err := f(srv.URL+"/echo", json.RawMessage(`{"headers":{"Authorization":"Bearer t"}}`))
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()
	got, err := h(context.Background(), []byte(`{"a":1}`))
	if err != nil || string(got) != `{"a":1}` {
		t.Fatalf("got %q, %v", got, err)
	}
	if gotAuth != "Bearer t" || gotType != "application/json" {
		t.Fatalf("headers: %q %q", gotAuth, gotType)
	}

	fail, _, _ := f(srv.URL+"/fail", nil)
	var se *StatusError
	if _, err := fail(context.Background(), nil); !errors.As(err, &se) || se.Code != http.StatusBadGateway || !se.Temporary() {
		t.Fatalf("err = %v", err)
	}

	if _, _, err := HTTPFactory()(srv.URL, nil); err == nil {
		t.Fatal("loopback endpoint must be rejected by default")
	}
}
