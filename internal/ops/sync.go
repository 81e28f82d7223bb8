package ops

import (
	"context"

	"github.com/hpungsan/synapse/internal/errors"
	"github.com/hpungsan/synapse/internal/queue"
	"github.com/hpungsan/synapse/internal/remote"
)

// SyncOutput contains the result of one sync pass.
type SyncOutput struct {
	Succeeded []int64              `json:"succeeded"`
	Failed    []remote.SyncFailure `json:"failed"`
	Remaining queue.Stats          `json:"remaining"`
}

// Sync runs one pass over the due queue entries.
// Missing credentials or an unresolvable identity abort before any request.
func Sync(ctx context.Context, rt *Runtime) (*SyncOutput, error) {
	if !rt.remoteEnabled() {
		return nil, errors.NewInvalidRequest("remote sync is disabled (disable_remote=true)")
	}

	summary, err := rt.Syncer.SyncDue(ctx)
	if err != nil {
		return nil, err
	}

	stats, err := rt.Queue.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &SyncOutput{
		Succeeded: summary.Succeeded,
		Failed:    summary.Failed,
		Remaining: stats,
	}, nil
}

// QueueStatusInput contains parameters for the QueueStatus operation.
type QueueStatusInput struct {
	IncludeEntries bool // list pending and parked entries
	Limit          int  // per list; default: 20, max: 100
}

// QueueEntry is a queue entry without the full record content.
type QueueEntry struct {
	QueueID       int64  `json:"queue_id"`
	CaptureID     string `json:"capture_id"`
	Title         string `json:"title"`
	EnqueuedAt    int64  `json:"enqueued_at"`
	Attempts      int    `json:"attempts"`
	NextAttemptAt *int64 `json:"next_attempt_at,omitempty"`
	LastError     string `json:"last_error,omitempty"`
	Parked        bool   `json:"parked"`
}

// QueueStatusOutput contains the result of the QueueStatus operation.
type QueueStatusOutput struct {
	Stats       queue.Stats  `json:"stats"`
	Pending     []QueueEntry `json:"pending,omitempty"`
	Parked      []QueueEntry `json:"parked,omitempty"`
	RetryPolicy RetryInfo    `json:"retry_policy"`
}

// RetryInfo describes the retry policy in milliseconds.
type RetryInfo struct {
	BaseBackoffMs int64 `json:"base_backoff_ms"`
	MaxBackoffMs  int64 `json:"max_backoff_ms"`
	MaxAttempts   int   `json:"max_attempts"`
}

// QueueStatus reports queue counts and, optionally, the entries themselves.
func QueueStatus(ctx context.Context, rt *Runtime, input QueueStatusInput) (*QueueStatusOutput, error) {
	stats, err := rt.Queue.Stats(ctx)
	if err != nil {
		return nil, err
	}

	policy := rt.Queue.Policy()
	out := &QueueStatusOutput{
		Stats: stats,
		RetryPolicy: RetryInfo{
			BaseBackoffMs: policy.BaseBackoff.Milliseconds(),
			MaxBackoffMs:  policy.MaxBackoff.Milliseconds(),
			MaxAttempts:   policy.MaxAttempts,
		},
	}
	if !input.IncludeEntries {
		return out, nil
	}

	limit := input.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	pending, err := rt.Queue.Pending(ctx)
	if err != nil {
		return nil, err
	}
	parked, err := rt.Queue.Parked(ctx)
	if err != nil {
		return nil, err
	}
	out.Pending = toQueueEntries(pending, limit)
	out.Parked = toQueueEntries(parked, limit)
	return out, nil
}

func toQueueEntries(entries []queue.Entry, limit int) []QueueEntry {
	if len(entries) > limit {
		entries = entries[:limit]
	}
	result := make([]QueueEntry, len(entries))
	for i, e := range entries {
		qe := QueueEntry{
			QueueID:    e.QueueID,
			CaptureID:  e.Record.ID,
			Title:      e.Record.DisplayTitle(),
			EnqueuedAt: e.EnqueuedAt.Unix(),
			Attempts:   e.Attempts,
			LastError:  e.LastError,
			Parked:     e.Parked,
		}
		if e.NextAttemptAt != nil {
			next := e.NextAttemptAt.Unix()
			qe.NextAttemptAt = &next
		}
		result[i] = qe
	}
	return result
}

// RequeueInput contains parameters for the Requeue operation.
type RequeueInput struct {
	IDs []int64 // optional; empty requeues every parked entry
}

// RequeueOutput contains the result of the Requeue operation.
type RequeueOutput struct {
	Requeued int `json:"requeued"`
}

// Requeue resets parked (or specific) entries so the next pass retries them.
func Requeue(ctx context.Context, rt *Runtime, input RequeueInput) (*RequeueOutput, error) {
	for _, id := range input.IDs {
		if id <= 0 {
			return nil, errors.NewInvalidRequest("queue ids must be positive")
		}
	}
	n, err := rt.Queue.Requeue(ctx, input.IDs)
	if err != nil {
		return nil, err
	}
	return &RequeueOutput{Requeued: n}, nil
}

// ClearQueueOutput contains the result of the ClearQueue operation.
type ClearQueueOutput struct {
	Removed int `json:"removed"`
}

// ClearQueue drops every queue entry, synced or not. Snapshots are untouched.
func ClearQueue(ctx context.Context, rt *Runtime) (*ClearQueueOutput, error) {
	n, err := rt.Queue.Clear(ctx)
	if err != nil {
		return nil, err
	}
	return &ClearQueueOutput{Removed: n}, nil
}
