package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/hazyhaar/formfill/memory"
	"github.com/hazyhaar/formfill/profile"
	"github.com/hazyhaar/formfill/run"
	"github.com/hazyhaar/formfill/strategy"
)

// MessageType names one exchange of the UI/engine contract.
type MessageType string

const (
	MsgScan               MessageType = "SCAN"
	MsgFill               MessageType = "FILL"
	MsgGetVisibleText     MessageType = "GET_VISIBLE_TEXT"
	MsgSaveLearnedAnswers MessageType = "SAVE_LEARNED_ANSWERS"
	MsgPause              MessageType = "PAUSE"
	MsgStop               MessageType = "STOP"
)

// Message is one request of the contract. Only the fields of its type are
// read.
type Message struct {
	Type    MessageType      `json:"type"`
	Profile *profile.Profile `json:"profile,omitempty"` // FILL
	Entries []memory.Learned `json:"entries,omitempty"` // SAVE_LEARNED_ANSWERS
	Paused  bool             `json:"paused,omitempty"`  // PAUSE
}

// Response answers a Message. Error carries the failure text; the result
// field matching the message type is set on success, and Scan also on an
// empty scan.
type Response struct {
	Success bool                `json:"success"`
	Error   string              `json:"error,omitempty"`
	Scan    *ScanResult         `json:"scan,omitempty"`
	Report  *strategy.Report    `json:"report,omitempty"`
	Text    string              `json:"text,omitempty"`
	Learned *memory.LearnResult `json:"learned,omitempty"`
	Run     *run.Snapshot       `json:"run,omitempty"`
}

// ErrUnknownMessage is returned for a message type outside the contract.
var ErrUnknownMessage = errors.New("engine: unknown message type")

// Handle serves one message.
func (e *Engine) Handle(ctx context.Context, msg Message) Response {
	resp, err := e.handle(ctx, msg)
	if err != nil {
		resp.Success = false
		resp.Error = err.Error()
		if !errors.Is(err, ErrNoFields) {
			e.logger.WarnContext(ctx, "engine: message failed", "type", msg.Type, "error", err)
		}
		return resp
	}
	resp.Success = true
	return resp
}

func (e *Engine) handle(ctx context.Context, msg Message) (Response, error) {
	switch msg.Type {
	case MsgScan:
		res, err := e.Scan(ctx)
		return Response{Scan: res}, err
	case MsgFill:
		rep, err := e.Fill(ctx, msg.Profile)
		return Response{Report: rep}, err
	case MsgGetVisibleText:
		text, err := e.VisibleText(ctx)
		return Response{Text: text}, err
	case MsgSaveLearnedAnswers:
		res, err := e.SaveLearnedAnswers(ctx, msg.Entries)
		if err != nil {
			return Response{}, err
		}
		return Response{Learned: &res}, nil
	case MsgPause:
		snap, err := e.Pause(msg.Paused)
		if err != nil {
			return Response{}, err
		}
		return Response{Run: &snap}, nil
	case MsgStop:
		snap, err := e.Stop()
		if err != nil {
			return Response{}, err
		}
		return Response{Run: &snap}, nil
	}
	return Response{}, fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
}
