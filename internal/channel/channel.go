// Package channel is the typed request/response message channel the browser
// extension and other local clients talk to. Each Action maps to one handler
// in a dispatch table; there are no string comparisons scattered in callers.
package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/hpungsan/synapse/internal/errors"
	"github.com/hpungsan/synapse/internal/ops"
)

// Action names one request kind.
type Action string

const (
	ActionSaveCapture     Action = "save_capture"
	ActionExportCSV       Action = "export_csv"
	ActionGetCaptureCount Action = "get_capture_count"
	ActionGetAllCaptures  Action = "get_all_captures"
	ActionClearCaptures   Action = "clear_captures"
	ActionGetAuthToken    Action = "get_auth_token"
	ActionGetUserID       Action = "get_user_id"
	ActionUpdateConfig    Action = "update_config"
	ActionSyncNow         Action = "sync_now"
	ActionQueueStatus     Action = "queue_status"
)

// Request is one inbound message.
type Request struct {
	Action Action          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Response is the reply to a Request. Exactly one of Error or Result is set.
type Response struct {
	Success bool           `json:"success"`
	Error   *ops.ErrorInfo `json:"error,omitempty"`
	Result  any            `json:"result,omitempty"`
}

// Handler serves one action. data is the raw request payload, possibly empty.
type Handler func(ctx context.Context, data json.RawMessage) (any, error)

// Dispatcher routes requests to handlers by action.
type Dispatcher struct {
	handlers map[Action]Handler
	logger   *slog.Logger
}

// NewDispatcher returns a Dispatcher with every action bound to rt.
func NewDispatcher(rt *ops.Runtime) *Dispatcher {
	d := &Dispatcher{handlers: map[Action]Handler{}, logger: rt.Logger}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	registerHandlers(d, rt)
	return d
}

// Handle binds h to action, replacing any previous handler.
func (d *Dispatcher) Handle(action Action, h Handler) {
	d.handlers[action] = h
}

// Actions lists the registered actions, sorted.
func (d *Dispatcher) Actions() []Action {
	out := make([]Action, 0, len(d.handlers))
	for a := range d.handlers {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Dispatch runs the handler for req.Action. Failures come back in the Response;
// internal details are logged, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Response {
	h, ok := d.handlers[req.Action]
	if !ok {
		return errorResponse(errors.NewInvalidRequest(fmt.Sprintf("unknown action %q", req.Action)))
	}

	result, err := h(ctx, req.Data)
	if err != nil {
		if sErr, ok := errors.As(err); !ok || sErr.Code == errors.ErrInternal || sErr.Code == errors.ErrPersistence {
			d.logger.Error("message handler failed", "action", req.Action, "error", err)
		}
		return errorResponse(err)
	}
	return Response{Success: true, Result: result}
}

func errorResponse(err error) Response {
	return Response{Success: false, Error: ops.NewErrorInfo(err)}
}

// decode unmarshals data into v. Empty data leaves v at its zero value.
func decode(data json.RawMessage, v any) error {
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid data: %v", err))
	}
	return nil
}
