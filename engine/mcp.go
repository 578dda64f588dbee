// CLAUDE:SUMMARY Registers the formfill MCP tools: navigate, scan, fill, visible text, pause/stop, learned answers and run history.
package engine

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/formfill/kit"
	"github.com/hazyhaar/formfill/memory"
	"github.com/hazyhaar/formfill/observability"
	"github.com/hazyhaar/formfill/profile"
)

// RegisterMCP registers the engine tools on an MCP server.
func (e *Engine) RegisterMCP(srv *mcp.Server) {
	e.registerNavigateTool(srv)
	e.registerScanTool(srv)
	e.registerFillTool(srv)
	e.registerTextTool(srv)
	e.registerPauseTool(srv)
	e.registerStopTool(srv)
	e.registerSaveAnswersTool(srv)
	e.registerListAnswersTool(srv)
	e.registerUpdateAnswerTool(srv)
	e.registerDeleteAnswerTool(srv)
	e.registerSyncAnswersTool(srv)
	e.registerHistoryTool(srv)
}

type empty struct{}

// --- page ---

type navigateRequest struct {
	URL string `json:"url"`
}

func (e *Engine) registerNavigateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "formfill_navigate",
		Description: "Open a job application page in the browser and scan its form fields.",
		InputSchema: kit.InputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "http(s) URL of the application form"},
		}, []string{"url"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		return e.Navigate(ctx, req.(*navigateRequest).URL)
	}
	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeArgs[navigateRequest]())
}

func (e *Engine) registerScanTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "formfill_scan",
		Description: "Scan the attached page. Returns the strategy chosen for the host and the classified form fields.",
		InputSchema: kit.InputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		return e.Scan(ctx)
	}
	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeArgs[empty]())
}

type fillRequest struct {
	Profile *profile.Profile `json:"profile,omitempty"`
}

func (e *Engine) registerFillTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "formfill_fill",
		Description: "Fill the scanned form from the user profile, then remembered answers, then generated answers. Returns the fill report.",
		InputSchema: kit.InputSchema(map[string]any{
			"profile": map[string]any{
				"type":        "object",
				"description": "Profile {userProfile, education, experience, resume}. Omit to use the stored profile.",
			},
		}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		return e.Fill(ctx, req.(*fillRequest).Profile)
	}
	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeArgs[fillRequest]())
}

func (e *Engine) registerTextTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "formfill_visible_text",
		Description: "Return a bounded snapshot of the main content of the attached page (the job description).",
		InputSchema: kit.InputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		text, err := e.VisibleText(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]string{"text": text}, nil
	}
	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeArgs[empty]())
}

// --- run control ---

type pauseRequest struct {
	Paused bool `json:"paused"`
}

func (e *Engine) registerPauseTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "formfill_pause",
		Description: "Pause (paused=true) or resume (paused=false) the running fill between fields.",
		InputSchema: kit.InputSchema(map[string]any{
			"paused": map[string]any{"type": "boolean"},
		}, []string{"paused"}),
	}
	endpoint := func(_ context.Context, req any) (any, error) {
		return e.Pause(req.(*pauseRequest).Paused)
	}
	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeArgs[pauseRequest]())
}

func (e *Engine) registerStopTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "formfill_stop",
		Description: "Stop the current run at its next field boundary.",
		InputSchema: kit.InputSchema(map[string]any{}, nil),
	}
	endpoint := func(context.Context, any) (any, error) {
		return e.Stop()
	}
	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeArgs[empty]())
}

// --- answers ---

type saveAnswersRequest struct {
	Entries []memory.Learned `json:"entries,omitempty"`
}

func (e *Engine) registerSaveAnswersTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "formfill_save_answers",
		Description: "Remember question/answer pairs. Without entries, the answers typed into unrecognized fields of the page are captured.",
		InputSchema: kit.InputSchema(map[string]any{
			"entries": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"question": map[string]any{"type": "string"},
						"answer":   map[string]any{"type": "string"},
						"fieldTag": map[string]any{"type": "string"},
					},
					"required": []string{"question", "answer"},
				},
			},
		}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		return e.SaveLearnedAnswers(ctx, req.(*saveAnswersRequest).Entries)
	}
	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeArgs[saveAnswersRequest]())
}

func (e *Engine) registerListAnswersTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "formfill_list_answers",
		Description: "List remembered answers, most recently used first.",
		InputSchema: kit.InputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		return e.Answers(ctx)
	}
	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeArgs[empty]())
}

type updateAnswerRequest struct {
	Key    string `json:"key"`
	Answer string `json:"answer"`
}

func (e *Engine) registerUpdateAnswerTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "formfill_update_answer",
		Description: "Replace a remembered answer.",
		InputSchema: kit.InputSchema(map[string]any{
			"key":    map[string]any{"type": "string", "description": "Normalized question key"},
			"answer": map[string]any{"type": "string"},
		}, []string{"key", "answer"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*updateAnswerRequest)
		if err := e.UpdateAnswer(ctx, r.Key, r.Answer); err != nil {
			return nil, err
		}
		return map[string]string{"key": r.Key, "status": "updated"}, nil
	}
	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeArgs[updateAnswerRequest]())
}

type deleteAnswerRequest struct {
	Key string `json:"key"`
}

func (e *Engine) registerDeleteAnswerTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "formfill_delete_answer",
		Description: "Forget a remembered answer, locally and in the remote store.",
		InputSchema: kit.InputSchema(map[string]any{
			"key": map[string]any{"type": "string", "description": "Normalized question key"},
		}, []string{"key"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		key := req.(*deleteAnswerRequest).Key
		if err := e.DeleteAnswer(ctx, key); err != nil {
			return nil, err
		}
		return map[string]string{"key": key, "status": "deleted"}, nil
	}
	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeArgs[deleteAnswerRequest]())
}

func (e *Engine) registerSyncAnswersTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "formfill_sync_answers",
		Description: "Merge remembered answers with the remote answer store.",
		InputSchema: kit.InputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		return e.SyncAnswers(ctx)
	}
	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeArgs[empty]())
}

// --- history ---

type historyRequest struct {
	Host  string `json:"host,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

func (e *Engine) registerHistoryTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "formfill_history",
		Description: "List recorded fill runs, newest first.",
		InputSchema: kit.InputSchema(map[string]any{
			"host":  map[string]any{"type": "string", "description": "Only runs on this host"},
			"limit": map[string]any{"type": "integer", "description": "Max runs (default 50)"},
		}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*historyRequest)
		return e.History(ctx, observability.RunFilter{Host: r.Host, Limit: r.Limit})
	}
	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeArgs[historyRequest]())
}
