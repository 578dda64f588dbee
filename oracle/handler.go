package oracle

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/formfill/horosafe"
)

// NewHandler serves o over both HTTP modes: the REST routes and the
// single action endpoint at "/".
func NewHandler(o Oracle, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &server{oracle: o, logger: logger}
	r := chi.NewRouter()
	r.Post("/api/match-dropdown", s.matchDropdown)
	r.Post("/api/answer-question", s.answerQuestion)
	r.Post("/", s.action)
	return r
}

type server struct {
	oracle Oracle
	logger *slog.Logger
}

func (s *server) matchDropdown(w http.ResponseWriter, r *http.Request) {
	var req DropdownRequest
	if !decode(w, r, &req) {
		return
	}
	s.serveDropdown(w, r, req)
}

func (s *server) answerQuestion(w http.ResponseWriter, r *http.Request) {
	var req QuestionRequest
	if !decode(w, r, &req) {
		return
	}
	s.serveQuestion(w, r, req)
}

func (s *server) action(w http.ResponseWriter, r *http.Request) {
	body, err := horosafe.LimitedReadAll(r.Body, horosafe.MaxResponseBody)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	var head struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	switch head.Action {
	case "match-dropdown":
		var req DropdownRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		s.serveDropdown(w, r, req)
	case "answer-question":
		var req QuestionRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		s.serveQuestion(w, r, req)
	default:
		writeError(w, http.StatusBadRequest, "unknown action: "+head.Action)
	}
}

func (s *server) serveDropdown(w http.ResponseWriter, r *http.Request, req DropdownRequest) {
	if len(req.Options) == 0 {
		writeError(w, http.StatusBadRequest, "options array is required")
		return
	}
	res, err := s.oracle.MatchDropdown(r.Context(), req)
	if err != nil {
		s.logger.Error("oracle: match dropdown failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to match dropdown")
		return
	}
	res.Match = FixMatch(res.Match, req.Options)
	writeJSON(w, http.StatusOK, res)
}

func (s *server) serveQuestion(w http.ResponseWriter, r *http.Request, req QuestionRequest) {
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	res, err := s.oracle.AnswerQuestion(r.Context(), req)
	if err != nil {
		s.logger.Error("oracle: answer question failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to generate answer")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := horosafe.LimitedReadAll(r.Body, horosafe.MaxResponseBody)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
