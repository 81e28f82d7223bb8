package channel

import (
	"context"
	"encoding/json"

	"github.com/hpungsan/synapse/internal/capture"
	"github.com/hpungsan/synapse/internal/ops"
)

// saveCaptureData mirrors the extension's capture message.
type saveCaptureData struct {
	Type     string           `json:"type"`
	Content  string           `json:"content"`
	URL      string           `json:"url"`
	Title    string           `json:"title"`
	Metadata capture.Metadata `json:"metadata"`
	Sync     *bool            `json:"sync"`
}

type updateConfigData struct {
	APIBase string `json:"api_base"`
	Reset   bool   `json:"reset"`
}

type queueStatusData struct {
	IncludeEntries bool `json:"include_entries"`
	Limit          int  `json:"limit"`
}

type exportData struct {
	Clear bool `json:"clear"`
}

// exportResult carries the CSV inline; the client decides where it goes.
type exportResult struct {
	Filename string `json:"filename"`
	Count    int    `json:"count"`
	CSV      string `json:"csv"`
	Cleared  bool   `json:"cleared"`
}

type countResult struct {
	Count int `json:"count"`
}

type userIDResult struct {
	UserID string `json:"user_id"`
}

func registerHandlers(d *Dispatcher, rt *ops.Runtime) {
	d.Handle(ActionSaveCapture, func(ctx context.Context, data json.RawMessage) (any, error) {
		var in saveCaptureData
		if err := decode(data, &in); err != nil {
			return nil, err
		}
		return ops.Capture(ctx, rt, ops.CaptureInput{
			Kind:     in.Type,
			Content:  in.Content,
			URL:      in.URL,
			Title:    in.Title,
			Metadata: in.Metadata,
			Sync:     in.Sync,
		})
	})

	d.Handle(ActionExportCSV, func(ctx context.Context, data json.RawMessage) (any, error) {
		var in exportData
		if err := decode(data, &in); err != nil {
			return nil, err
		}
		export := ops.ExportCSV
		if in.Clear {
			export = ops.TakeCSV
		}
		exp, err := export(ctx, rt)
		if err != nil {
			return nil, err
		}
		return exportResult{Filename: exp.Filename, Count: exp.Count, CSV: string(exp.Data), Cleared: in.Clear}, nil
	})

	d.Handle(ActionGetCaptureCount, func(ctx context.Context, _ json.RawMessage) (any, error) {
		out, err := ops.Count(ctx, rt)
		if err != nil {
			return nil, err
		}
		return countResult{Count: out.Count}, nil
	})

	d.Handle(ActionGetAllCaptures, func(ctx context.Context, _ json.RawMessage) (any, error) {
		return ops.All(ctx, rt)
	})

	d.Handle(ActionClearCaptures, func(ctx context.Context, _ json.RawMessage) (any, error) {
		return ops.ClearCaptures(ctx, rt)
	})

	d.Handle(ActionGetAuthToken, func(ctx context.Context, _ json.RawMessage) (any, error) {
		return ops.AuthToken(ctx, rt)
	})

	d.Handle(ActionGetUserID, func(ctx context.Context, _ json.RawMessage) (any, error) {
		who, err := ops.Whoami(ctx, rt)
		if err != nil {
			return nil, err
		}
		return userIDResult{UserID: who.UserID}, nil
	})

	d.Handle(ActionUpdateConfig, func(ctx context.Context, data json.RawMessage) (any, error) {
		var in updateConfigData
		if err := decode(data, &in); err != nil {
			return nil, err
		}
		return ops.UpdateConfig(ctx, rt, ops.UpdateConfigInput{APIBase: in.APIBase, Reset: in.Reset})
	})

	d.Handle(ActionSyncNow, func(ctx context.Context, _ json.RawMessage) (any, error) {
		return ops.Sync(ctx, rt)
	})

	d.Handle(ActionQueueStatus, func(ctx context.Context, data json.RawMessage) (any, error) {
		var in queueStatusData
		if err := decode(data, &in); err != nil {
			return nil, err
		}
		return ops.QueueStatus(ctx, rt, ops.QueueStatusInput{IncludeEntries: in.IncludeEntries, Limit: in.Limit})
	})
}
