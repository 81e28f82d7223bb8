package mcp

import "github.com/mark3labs/mcp-go/mcp"

var captureSaveToolDef = mcp.NewTool("capture_save",
	mcp.WithDescription("Save a capture locally and queue it for sync to the remote memory API. "+
		"Local saving never depends on the network; sync failures are reported, not raised."),
	mcp.WithString("kind",
		mcp.Required(),
		mcp.Enum("page", "selected_text"),
		mcp.Description("page for a whole page, selected_text for a highlighted fragment"),
	),
	mcp.WithString("content", mcp.Required(), mcp.Description("The captured text or Markdown")),
	mcp.WithString("url", mcp.Description("Source page URL")),
	mcp.WithString("title", mcp.Description("Title; defaults to metadata.title")),
	mcp.WithObject("metadata", mcp.Description("Flat map of string, number, boolean, or string-list values")),
	mcp.WithBoolean("sync", mcp.Description("Run a sync pass after saving (default: sync_on_capture)")),
)

var captureListToolDef = mcp.NewTool("capture_list",
	mcp.WithDescription("List stored captures, newest first, without full content."),
	mcp.WithString("kind", mcp.Enum("page", "selected_text"), mcp.Description("Filter by kind")),
	mcp.WithNumber("limit", mcp.Description("Max items (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip")),
)

var captureCountToolDef = mcp.NewTool("capture_count",
	mcp.WithDescription("Count stored captures and unsynced queue entries."),
)

var captureExportToolDef = mcp.NewTool("capture_export",
	mcp.WithDescription("Export all stored captures to a CSV file. Fails with EMPTY_STORE when there is nothing to export."),
	mcp.WithString("path", mcp.Description("Destination .csv file; default <base>/exports/synapse-captures-<date>.csv")),
	mcp.WithBoolean("clear", mcp.Description("Clear stored captures after the file is written")),
)

var captureClearToolDef = mcp.NewTool("capture_clear",
	mcp.WithDescription("Clear stored captures. With all=true, also drop every queue entry, including unsynced ones."),
	mcp.WithBoolean("all", mcp.Description("Also clear the sync queue")),
)

var queueStatusToolDef = mcp.NewTool("queue_status",
	mcp.WithDescription("Show pending, due, and parked queue counts and the retry policy."),
	mcp.WithBoolean("include_entries", mcp.Description("List pending and parked entries")),
	mcp.WithNumber("limit", mcp.Description("Max entries per list (default 20, max 100)")),
)

var queueSyncToolDef = mcp.NewTool("queue_sync",
	mcp.WithDescription("Run one sync pass over due queue entries. Successes are removed; failures are retried later."),
)

var queueRequeueToolDef = mcp.NewTool("queue_requeue",
	mcp.WithDescription("Reset parked entries so the next sync pass retries them."),
	mcp.WithArray("ids",
		mcp.Description("Queue ids to requeue; omit for every parked entry"),
		mcp.Items(map[string]any{"type": "integer"}),
	),
)

var configGetToolDef = mcp.NewTool("config_get",
	mcp.WithDescription("Show the effective remote API base and sync settings."),
)

var configSetToolDef = mcp.NewTool("config_set",
	mcp.WithDescription("Persist the remote API base URL. Takes effect on the next request."),
	mcp.WithString("api_base", mcp.Description("Absolute http(s) URL")),
	mcp.WithBoolean("reset", mcp.Description("Drop the stored URL and use the configured default")),
)
