package engine

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/formfill/horosafe"
	"github.com/hazyhaar/formfill/memory"
	"github.com/hazyhaar/formfill/observability"
	"github.com/hazyhaar/formfill/profile"
	"github.com/hazyhaar/formfill/shield"
)

// Handler serves the message contract and the answer and history
// management routes under /api. Callers may mount more routes on the
// returned router.
func (e *Engine) Handler() chi.Router {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(e.logger) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/message", e.serveMessage)
		r.Post("/scan", e.serveScan)
		r.Post("/fill", e.serveFill)
		r.Get("/text", e.serveText)
		r.Post("/pause", e.servePause)
		r.Post("/stop", e.serveStop)
		r.Get("/status", e.serveStatus)
		r.Post("/navigate", e.serveNavigate)

		r.Route("/answers", func(r chi.Router) {
			r.Get("/", e.serveListAnswers)
			r.Post("/", e.serveSaveAnswers)
			r.Get("/capture", e.serveCapture)
			r.Post("/sync", e.serveSync)
			r.Put("/{key}", e.serveUpdateAnswer)
			r.Delete("/{key}", e.serveDeleteAnswer)
		})

		r.Get("/history", e.serveHistory)
		r.Get("/history/{runID}", e.serveRun)
	})
	return r
}

func (e *Engine) serveMessage(w http.ResponseWriter, r *http.Request) {
	var msg Message
	if !decode(w, r, &msg, false) {
		return
	}
	writeJSON(w, http.StatusOK, e.Handle(r.Context(), msg))
}

func (e *Engine) serveScan(w http.ResponseWriter, r *http.Request) {
	res, err := e.Scan(r.Context())
	if errors.Is(err, ErrNoFields) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": err.Error(), "scan": res})
		return
	}
	if err != nil {
		writeFailure(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (e *Engine) serveFill(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Profile *profile.Profile `json:"profile"`
	}
	if !decode(w, r, &req, true) {
		return
	}
	rep, err := e.Fill(r.Context(), req.Profile)
	if err != nil {
		writeFailure(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (e *Engine) serveText(w http.ResponseWriter, r *http.Request) {
	text, err := e.VisibleText(r.Context())
	if err != nil {
		writeFailure(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (e *Engine) servePause(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Paused *bool `json:"paused"`
	}
	if !decode(w, r, &req, true) {
		return
	}
	paused := true
	if req.Paused != nil {
		paused = *req.Paused
	}
	snap, err := e.Pause(paused)
	if err != nil {
		writeFailure(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (e *Engine) serveStop(w http.ResponseWriter, r *http.Request) {
	snap, err := e.Stop()
	if err != nil {
		writeFailure(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (e *Engine) serveStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := e.Status()
	if err != nil {
		writeFailure(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (e *Engine) serveNavigate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if !decode(w, r, &req, false) {
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	res, err := e.Navigate(r.Context(), req.URL)
	if errors.Is(err, ErrNoFields) {
		writeJSON(w, http.StatusOK, res)
		return
	}
	if err != nil {
		writeFailure(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (e *Engine) serveListAnswers(w http.ResponseWriter, r *http.Request) {
	entries, err := e.Answers(r.Context())
	if err != nil {
		writeFailure(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (e *Engine) serveSaveAnswers(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Entries []memory.Learned `json:"entries"`
	}
	if !decode(w, r, &req, true) {
		return
	}
	res, err := e.SaveLearnedAnswers(r.Context(), req.Entries)
	if err != nil {
		writeFailure(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (e *Engine) serveCapture(w http.ResponseWriter, r *http.Request) {
	entries, err := e.CaptureAnswers(r.Context())
	if err != nil {
		writeFailure(r, w, err)
		return
	}
	if entries == nil {
		entries = []memory.Learned{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (e *Engine) serveSync(w http.ResponseWriter, r *http.Request) {
	res, err := e.SyncAnswers(r.Context())
	if err != nil {
		writeFailure(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (e *Engine) serveUpdateAnswer(w http.ResponseWriter, r *http.Request) {
	key, ok := pathKey(w, r)
	if !ok {
		return
	}
	var req struct {
		Answer string `json:"answer"`
	}
	if !decode(w, r, &req, false) {
		return
	}
	if req.Answer == "" {
		writeError(w, http.StatusBadRequest, "answer is required")
		return
	}
	if err := e.UpdateAnswer(r.Context(), key, req.Answer); err != nil {
		writeFailure(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "status": "updated"})
}

func (e *Engine) serveDeleteAnswer(w http.ResponseWriter, r *http.Request) {
	key, ok := pathKey(w, r)
	if !ok {
		return
	}
	if err := e.DeleteAnswer(r.Context(), key); err != nil {
		writeFailure(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "status": "deleted"})
}

func (e *Engine) serveHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := observability.RunFilter{Host: q.Get("host")}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			f.Limit = n
		}
	}
	if v := q.Get("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.Since = t
		}
	}
	runs, err := e.History(r.Context(), f)
	if err != nil {
		writeFailure(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (e *Engine) serveRun(w http.ResponseWriter, r *http.Request) {
	rec, err := e.Run(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeFailure(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func pathKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil || key == "" {
		writeError(w, http.StatusBadRequest, "invalid key")
		return "", false
	}
	return key, true
}

// decode reads a JSON body into v. An empty body is accepted when
// optional is set.
func decode(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	if len(body) == 0 && optional {
		return true
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

// statusOf maps engine errors to HTTP statuses.
func statusOf(err error) int {
	switch {
	case errors.Is(err, ErrNoDocument), errors.Is(err, ErrFillInProgress):
		return http.StatusConflict
	case errors.Is(err, ErrNoFields):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrNoMemory), errors.Is(err, ErrNoNavigator), errors.Is(err, memory.ErrNoRemote):
		return http.StatusNotImplemented
	case errors.Is(err, memory.ErrNotFound), errors.Is(err, observability.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, horosafe.ErrSSRF), errors.Is(err, horosafe.ErrUnsafeScheme), errors.Is(err, ErrUnknownMessage):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeFailure(r *http.Request, w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		shield.GetLogger(r.Context()).Error("engine: request failed", "error", err)
	} else {
		shield.GetLogger(r.Context()).Debug("engine: request rejected", "status", status, "error", err)
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("engine: encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
