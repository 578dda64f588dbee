package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/formfill/connectivity"
	"github.com/hazyhaar/formfill/observability"
)

// Service names registered on a connectivity Router.
const (
	ServiceMessage  = "formfill.message"
	ServiceScan     = "formfill.scan"
	ServiceFill     = "formfill.fill"
	ServiceText     = "formfill.text"
	ServiceLearn    = "formfill.save_answers"
	ServicePause    = "formfill.pause"
	ServiceStop     = "formfill.stop"
	ServiceHistory  = "formfill.history"
	ServiceNavigate = "formfill.navigate"
)

// RegisterConnectivity registers the engine's services on a connectivity
// Router.
//
// Registered services:
//
//	formfill.message      any contract Message, answered with a Response
//	formfill.scan         SCAN
//	formfill.fill         FILL with an optional profile
//	formfill.text         GET_VISIBLE_TEXT
//	formfill.save_answers SAVE_LEARNED_ANSWERS
//	formfill.pause        PAUSE
//	formfill.stop         STOP
//	formfill.history      recorded fill runs
//	formfill.navigate     open a URL and scan it
func (e *Engine) RegisterConnectivity(router *connectivity.Router) {
	services := map[string]connectivity.Handler{
		ServiceMessage:  e.handleMessage,
		ServiceScan:     e.typed(MsgScan),
		ServiceFill:     e.typed(MsgFill),
		ServiceText:     e.typed(MsgGetVisibleText),
		ServiceLearn:    e.typed(MsgSaveLearnedAnswers),
		ServicePause:    e.typed(MsgPause),
		ServiceStop:     e.typed(MsgStop),
		ServiceHistory:  e.handleHistory,
		ServiceNavigate: e.handleNavigate,
	}
	for name, h := range services {
		mw := connectivity.Chain(
			connectivity.Recovery(e.logger),
			connectivity.Logging(e.logger, name),
		)
		router.RegisterLocal(name, mw(h))
	}
}

func (e *Engine) handleMessage(ctx context.Context, payload []byte) ([]byte, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return json.Marshal(e.Handle(ctx, msg))
}

// typed serves a message whose type is fixed by the service name. The
// payload carries the remaining fields and may be empty.
func (e *Engine) typed(t MessageType) connectivity.Handler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var msg Message
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &msg); err != nil {
				return nil, fmt.Errorf("decode: %w", err)
			}
		}
		msg.Type = t
		return json.Marshal(e.Handle(ctx, msg))
	}
}

func (e *Engine) handleHistory(ctx context.Context, payload []byte) ([]byte, error) {
	var req struct {
		Host  string `json:"host"`
		Limit int    `json:"limit"`
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
	}
	runs, err := e.History(ctx, observability.RunFilter{Host: req.Host, Limit: req.Limit})
	if err != nil {
		return nil, err
	}
	return json.Marshal(runs)
}

func (e *Engine) handleNavigate(ctx context.Context, payload []byte) ([]byte, error) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	res, err := e.Navigate(ctx, req.URL)
	if err != nil && res == nil {
		return nil, err
	}
	return json.Marshal(res)
}
