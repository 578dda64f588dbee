// CLAUDE:SUMMARY Remote copies of the answer memory: an HTTP op-protocol client and server, a SQLite table backend and a Firestore collection.
// Package remote implements memory.RemoteStore backends.
//
// The HTTP backend speaks a single-endpoint protocol: every call is a POST
// of {"op": "pull" | "upsert" | "delete", ...} answered with
// {"entries": [...], "count": n}. NewHandler serves the same protocol over
// any other backend, so one formfill instance can host the shared copy for
// the others.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/formfill/connectivity"
	"github.com/hazyhaar/formfill/horosafe"
	"github.com/hazyhaar/formfill/memory"
)

// Operations of the HTTP protocol.
const (
	OpPull   = "pull"
	OpUpsert = "upsert"
	OpDelete = "delete"
)

// Request is the body of one protocol call.
type Request struct {
	Op      string         `json:"op"`
	Entries []memory.Entry `json:"entries,omitempty"`
	Key     string         `json:"key,omitempty"`
}

// Response is the body of a successful call.
type Response struct {
	Entries []memory.Entry `json:"entries,omitempty"`
	Count   int            `json:"count"`
}

// HTTP is a memory.RemoteStore calling a connectivity handler, typically
// one built by connectivity.HTTPFactory and wrapped in WithRetry.
type HTTP struct {
	call connectivity.Handler
}

// NewHTTP wraps call.
func NewHTTP(call connectivity.Handler) *HTTP {
	return &HTTP{call: call}
}

func (h *HTTP) PullAll(ctx context.Context) ([]memory.Entry, error) {
	resp, err := h.do(ctx, Request{Op: OpPull})
	if err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

func (h *HTTP) UpsertMany(ctx context.Context, entries []memory.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := h.do(ctx, Request{Op: OpUpsert, Entries: entries})
	return err
}

func (h *HTTP) DeleteOne(ctx context.Context, key string) error {
	_, err := h.do(ctx, Request{Op: OpDelete, Key: key})
	return err
}

func (h *HTTP) do(ctx context.Context, req Request) (*Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("remote: %s: %w", req.Op, err)
	}
	body, err := h.call(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("remote: %s: %w", req.Op, err)
	}
	var resp Response
	if len(body) > 0 {
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("remote: %s: decode: %w", req.Op, err)
		}
	}
	return &resp, nil
}

var errUnknownOp = errors.New("unknown op")

// NewHandler serves the protocol over store.
func NewHandler(store memory.RemoteStore, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST only"})
			return
		}
		data, err := horosafe.LimitedReadAll(r.Body, horosafe.MaxResponseBody)
		if err != nil {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": err.Error()})
			return
		}
		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
			return
		}
		resp, err := serve(r.Context(), store, req)
		switch {
		case errors.Is(err, errUnknownOp):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		case err != nil:
			logger.Error("remote: serve failed", "op", req.Op, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		default:
			writeJSON(w, http.StatusOK, resp)
		}
	})
}

func serve(ctx context.Context, store memory.RemoteStore, req Request) (*Response, error) {
	switch req.Op {
	case OpPull:
		entries, err := store.PullAll(ctx)
		if err != nil {
			return nil, err
		}
		return &Response{Entries: entries, Count: len(entries)}, nil
	case OpUpsert:
		if err := store.UpsertMany(ctx, req.Entries); err != nil {
			return nil, err
		}
		return &Response{Count: len(req.Entries)}, nil
	case OpDelete:
		if req.Key == "" {
			return nil, fmt.Errorf("%w: delete without key", errUnknownOp)
		}
		if err := store.DeleteOne(ctx, req.Key); err != nil {
			return nil, err
		}
		return &Response{Count: 1}, nil
	}
	return nil, fmt.Errorf("%w: %q", errUnknownOp, req.Op)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
