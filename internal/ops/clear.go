package ops

import "context"

// ClearOutput contains the result of the clear operations.
type ClearOutput struct {
	CapturesCleared bool `json:"captures_cleared"`
	QueueRemoved    int  `json:"queue_removed"`
}

// ClearCaptures empties the snapshot store. Queued entries still sync.
func ClearCaptures(ctx context.Context, rt *Runtime) (*ClearOutput, error) {
	if err := rt.Snapshots.Clear(ctx); err != nil {
		return nil, err
	}
	return &ClearOutput{CapturesCleared: true}, nil
}

// ClearAll empties the snapshot store and drops every queue entry,
// including entries never synced. Irreversible.
func ClearAll(ctx context.Context, rt *Runtime) (*ClearOutput, error) {
	out, err := ClearCaptures(ctx, rt)
	if err != nil {
		return nil, err
	}
	n, err := rt.Queue.Clear(ctx)
	if err != nil {
		return nil, err
	}
	out.QueueRemoved = n
	return out, nil
}
