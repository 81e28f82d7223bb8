package mcp

import (
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/synapse/internal/ops"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"capture_save": {
		def:     captureSaveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCaptureSave },
	},
	"capture_list": {
		def:     captureListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCaptureList },
	},
	"capture_count": {
		def:     captureCountToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCaptureCount },
	},
	"capture_export": {
		def:     captureExportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCaptureExport },
	},
	"capture_clear": {
		def:     captureClearToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCaptureClear },
	},
	"queue_status": {
		def:     queueStatusToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleQueueStatus },
	},
	"queue_sync": {
		def:     queueSyncToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleQueueSync },
	},
	"queue_requeue": {
		def:     queueRequeueToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleQueueRequeue },
	},
	"config_get": {
		def:     configGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleConfigGet },
	},
	"config_set": {
		def:     configSetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleConfigSet },
	},
}

// AllToolNames returns every tool name, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates an MCP server with the synapse tools registered.
// Tools listed in disabled_tools are skipped.
func NewServer(rt *ops.Runtime, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"synapse",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(rt)

	disabled := make(map[string]bool)
	for _, name := range rt.Config.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run serves MCP over stdio until stdin closes.
func Run(rt *ops.Runtime, version string) error {
	return server.ServeStdio(NewServer(rt, version))
}
