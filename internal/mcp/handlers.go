package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/synapse/internal/capture"
	"github.com/hpungsan/synapse/internal/errors"
	"github.com/hpungsan/synapse/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	rt *ops.Runtime
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(rt *ops.Runtime) *Handlers {
	return &Handlers{rt: rt}
}

// Request types for each tool

// CaptureSaveRequest represents the arguments for capture_save.
type CaptureSaveRequest struct {
	Kind     string           `json:"kind"`
	Content  string           `json:"content"`
	URL      string           `json:"url,omitempty"`
	Title    string           `json:"title,omitempty"`
	Metadata capture.Metadata `json:"metadata,omitempty"`
	Sync     *bool            `json:"sync,omitempty"`
}

// CaptureListRequest represents the arguments for capture_list.
type CaptureListRequest struct {
	Kind   string `json:"kind,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// CaptureExportRequest represents the arguments for capture_export.
type CaptureExportRequest struct {
	Path  string `json:"path,omitempty"`
	Clear bool   `json:"clear,omitempty"`
}

// CaptureClearRequest represents the arguments for capture_clear.
type CaptureClearRequest struct {
	All bool `json:"all,omitempty"`
}

// QueueStatusRequest represents the arguments for queue_status.
type QueueStatusRequest struct {
	IncludeEntries bool `json:"include_entries,omitempty"`
	Limit          int  `json:"limit,omitempty"`
}

// QueueRequeueRequest represents the arguments for queue_requeue.
type QueueRequeueRequest struct {
	IDs []int64 `json:"ids,omitempty"`
}

// ConfigSetRequest represents the arguments for config_set.
type ConfigSetRequest struct {
	APIBase string `json:"api_base,omitempty"`
	Reset   bool   `json:"reset,omitempty"`
}

// Handler implementations

// HandleCaptureSave handles the capture_save tool call.
func (h *Handlers) HandleCaptureSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CaptureSaveRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Capture(ctx, h.rt, ops.CaptureInput{
		Kind:     input.Kind,
		Content:  input.Content,
		URL:      input.URL,
		Title:    input.Title,
		Metadata: input.Metadata,
		Sync:     input.Sync,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleCaptureList handles the capture_list tool call.
func (h *Handlers) HandleCaptureList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CaptureListRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.List(ctx, h.rt, ops.ListInput{
		Kind:   input.Kind,
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleCaptureCount handles the capture_count tool call.
func (h *Handlers) HandleCaptureCount(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.Count(ctx, h.rt)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleCaptureExport handles the capture_export tool call.
func (h *Handlers) HandleCaptureExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CaptureExportRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Export(ctx, h.rt, ops.ExportInput{
		Path:  input.Path,
		Clear: input.Clear,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleCaptureClear handles the capture_clear tool call.
func (h *Handlers) HandleCaptureClear(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CaptureClearRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	var result *ops.ClearOutput
	if input.All {
		result, err = ops.ClearAll(ctx, h.rt)
	} else {
		result, err = ops.ClearCaptures(ctx, h.rt)
	}
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleQueueStatus handles the queue_status tool call.
func (h *Handlers) HandleQueueStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[QueueStatusRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.QueueStatus(ctx, h.rt, ops.QueueStatusInput{
		IncludeEntries: input.IncludeEntries,
		Limit:          input.Limit,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleQueueSync handles the queue_sync tool call.
func (h *Handlers) HandleQueueSync(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.Sync(ctx, h.rt)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleQueueRequeue handles the queue_requeue tool call.
func (h *Handlers) HandleQueueRequeue(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[QueueRequeueRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Requeue(ctx, h.rt, ops.RequeueInput{IDs: input.IDs})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleConfigGet handles the config_get tool call.
func (h *Handlers) HandleConfigGet(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.GetConfig(ctx, h.rt)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleConfigSet handles the config_set tool call.
func (h *Handlers) HandleConfigSet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ConfigSetRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.UpdateConfig(ctx, h.rt, ops.UpdateConfigInput{
		APIBase: input.APIBase,
		Reset:   input.Reset,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// INTERNAL errors never carry details or their raw message.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if sErr, ok := errors.As(err); ok && sErr.Code != errors.ErrInternal {
		errorObj := map[string]any{
			"code":    sErr.Code,
			"message": sErr.Message,
			"status":  sErr.Status,
		}
		if sErr.Details != nil {
			errorObj["details"] = sErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
