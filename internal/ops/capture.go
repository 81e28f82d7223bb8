package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/synapse/internal/capture"
	"github.com/hpungsan/synapse/internal/errors"
)

// CaptureInput contains parameters for the Capture operation.
type CaptureInput struct {
	Kind     string           // required: page or selected_text
	Content  string           // required
	URL      string           // optional
	Title    string           // optional, falls back to metadata["title"]
	Metadata capture.Metadata // optional

	// Sync overrides sync_on_capture for this call.
	Sync *bool
}

// CaptureOutput contains the result of the Capture operation.
type CaptureOutput struct {
	Record  *capture.Record `json:"record"`
	QueueID int64           `json:"queue_id,omitempty"`
	Queued  bool            `json:"queued"`

	// Sync is set when a sync pass ran after the capture.
	Sync *SyncOutput `json:"sync,omitempty"`

	// SyncError describes why the sync pass did not complete. It never fails the capture.
	SyncError *ErrorInfo `json:"sync_error,omitempty"`
}

// ErrorInfo is the wire form of a SynapseError.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorInfo converts err. INTERNAL and unstructured errors get a generic
// message so paths and SQL never reach clients.
func NewErrorInfo(err error) *ErrorInfo {
	if sErr, ok := errors.As(err); ok && sErr.Code != errors.ErrInternal {
		return &ErrorInfo{Code: string(sErr.Code), Message: sErr.Message}
	}
	return &ErrorInfo{Code: string(errors.ErrInternal), Message: "an internal error occurred"}
}

// Capture records content locally and queues it for remote sync.
//
// The snapshot append and, when remote sync is enabled, the queue append
// commit in one transaction: either both land or neither does. An optional
// sync pass then drains due entries, and any failure there is reported in the
// output without failing the capture.
func Capture(ctx context.Context, rt *Runtime, input CaptureInput) (*CaptureOutput, error) {
	kind, err := capture.ParseKind(input.Kind)
	if err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}
	if strings.TrimSpace(input.Content) == "" {
		return nil, errors.NewInvalidRequest("content is required")
	}
	if maxChars := rt.Config.ContentMaxChars; maxChars > 0 {
		if n := capture.CountChars(input.Content); n > maxChars {
			return nil, errors.NewContentTooLarge(maxChars, n)
		}
	}

	enqueue := rt.remoteEnabled()
	var queueID int64
	rec, err := rt.Snapshots.AddWith(ctx, capture.Input{
		Kind:     kind,
		Content:  input.Content,
		URL:      input.URL,
		Title:    input.Title,
		Metadata: input.Metadata,
	}, func(tx *sql.Tx, rec *capture.Record) error {
		if !enqueue {
			return nil
		}
		var err error
		queueID, err = rt.Queue.EnqueueTx(ctx, tx, rec)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := &CaptureOutput{Record: rec}
	if !enqueue {
		return out, nil
	}
	out.QueueID = queueID
	out.Queued = true

	shouldSync := rt.Config.ShouldSyncOnCapture()
	if input.Sync != nil {
		shouldSync = *input.Sync
	}
	if !shouldSync {
		return out, nil
	}

	syncOut, err := Sync(ctx, rt)
	if err != nil {
		rt.Logger.Debug("sync after capture skipped", "error", err)
		out.SyncError = NewErrorInfo(err)
		return out, nil
	}
	out.Sync = syncOut
	return out, nil
}
