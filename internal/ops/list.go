package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/synapse/internal/capture"
	"github.com/hpungsan/synapse/internal/errors"
)

// ListInput contains parameters for the List operation.
type ListInput struct {
	Kind   string // optional filter: page or selected_text
	Limit  int    // default: 20, max: 100
	Offset int    // default: 0
}

// ListOutput contains the result of the List operation.
type ListOutput struct {
	Items      []capture.Summary `json:"items"`
	Pagination Pagination        `json:"pagination"`
	Sort       string            `json:"sort"`
}

// List returns capture summaries, newest first, with pagination.
func List(ctx context.Context, rt *Runtime, input ListInput) (*ListOutput, error) {
	var kind capture.Kind
	if k := strings.TrimSpace(input.Kind); k != "" {
		parsed, err := capture.ParseKind(k)
		if err != nil {
			return nil, errors.NewInvalidRequest(err.Error())
		}
		kind = parsed
	}

	limit := input.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := max(input.Offset, 0)

	records, err := rt.Snapshots.List(ctx)
	if err != nil {
		return nil, err
	}
	if kind != "" {
		filtered := records[:0]
		for _, r := range records {
			if r.Kind == kind {
				filtered = append(filtered, r)
			}
		}
		records = filtered
	}

	total := len(records)
	items := []capture.Summary{}
	for i := offset; i < total && len(items) < limit; i++ {
		items = append(items, records[i].ToSummary(MaxPreviewChars))
	}

	return &ListOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(items) < total,
			Total:   total,
		},
		Sort: "created_at_desc",
	}, nil
}

// GetInput contains parameters for the Get operation.
type GetInput struct {
	ID string // required
}

// Get returns one full capture record.
func Get(ctx context.Context, rt *Runtime, input GetInput) (*capture.Record, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}
	return rt.Snapshots.Get(ctx, id)
}

// CountOutput contains the result of the Count operation.
type CountOutput struct {
	Count   int `json:"count"`
	Pending int `json:"pending"`
}

// Count reports the number of stored captures and unsynced queue entries.
func Count(ctx context.Context, rt *Runtime) (*CountOutput, error) {
	n, err := rt.Snapshots.Count(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := rt.Queue.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &CountOutput{Count: n, Pending: stats.Pending}, nil
}

// AllOutput contains every stored capture, newest first.
type AllOutput struct {
	Captures []capture.Record `json:"captures"`
}

// All returns every stored capture in full.
func All(ctx context.Context, rt *Runtime) (*AllOutput, error) {
	records, err := rt.Snapshots.List(ctx)
	if err != nil {
		return nil, err
	}
	return &AllOutput{Captures: records}, nil
}
