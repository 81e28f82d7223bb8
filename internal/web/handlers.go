package web

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/hpungsan/synapse/internal/capture"
	"github.com/hpungsan/synapse/internal/channel"
	"github.com/hpungsan/synapse/internal/errors"
	"github.com/hpungsan/synapse/internal/ops"
)

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	rt         *ops.Runtime
	dispatcher *channel.Dispatcher
	renderer   *Renderer
	logger     *slog.Logger
}

// HandleList handles GET /captures: list captures, newest first.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")

	result, err := ops.List(r.Context(), h.rt, ops.ListInput{
		Kind:   kind,
		Limit:  parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	count, err := ops.Count(r.Context(), h.rt)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, r, "list", ListPageData{
		PageData: PageData{
			Title:   "Captures",
			Version: h.renderer.version,
			Nav:     "captures",
		},
		Items:      result.Items,
		Pagination: result.Pagination,
		Kind:       kind,
		Kinds:      capture.Kinds,
		Pending:    count.Pending,
	})
}

// HandleDetail handles GET /captures/{id}: view a single capture.
func (h *Handlers) HandleDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("capture ID is required"))
		return
	}

	rec, err := ops.Get(r.Context(), h.rt, ops.GetInput{ID: id})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	keys := make([]string, 0, len(rec.Metadata))
	for k := range rec.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h.renderer.renderPage(w, r, "detail", DetailPageData{
		PageData: PageData{
			Title:   rec.DisplayTitle(),
			Version: h.renderer.version,
			Nav:     "captures",
		},
		Record:       rec,
		RenderedHTML: renderMarkdown(rec.Content),
		MetadataKeys: keys,
	})
}

// HandleQueue handles GET /queue: sync queue status and parked entries.
func (h *Handlers) HandleQueue(w http.ResponseWriter, r *http.Request) {
	h.renderQueue(w, r, r.URL.Query().Get("flash"))
}

func (h *Handlers) renderQueue(w http.ResponseWriter, r *http.Request, flash string) {
	status, err := ops.QueueStatus(r.Context(), h.rt, ops.QueueStatusInput{
		IncludeEntries: true,
		Limit:          parseIntParam(r, "limit", ops.DefaultListLimit),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	apiBase, err := h.rt.APIBase(r.Context())
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, r, "queue", QueuePageData{
		PageData: PageData{
			Title:   "Sync queue",
			Version: h.renderer.version,
			Nav:     "queue",
		},
		Status:  status,
		APIBase: apiBase,
		Remote:  !h.rt.Config.DisableRemote,
		Flash:   flash,
	})
}

// HandleSync handles POST /queue/sync: run one sync pass.
func (h *Handlers) HandleSync(w http.ResponseWriter, r *http.Request) {
	result, err := ops.Sync(r.Context(), h.rt)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		renderJSON(w, http.StatusOK, result)
		return
	}

	if r.Header.Get("HX-Request") == "true" {
		h.renderQueue(w, r, syncFlash(result))
		return
	}

	http.Redirect(w, r, "/queue?flash="+url.QueryEscape(syncFlash(result)), http.StatusSeeOther)
}

// HandleExport handles GET /export.csv: download the snapshot as CSV.
// The store is left untouched; clearing goes through the message channel.
func (h *Handlers) HandleExport(w http.ResponseWriter, r *http.Request) {
	export, err := ops.ExportCSV(r.Context(), h.rt)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": export.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(export.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(export.Data)
}

// HandleMessage handles POST /api/messages: the extension message channel.
// Handler failures are reported in the body with HTTP 200; only malformed
// requests get a non-2xx status.
func (h *Handlers) HandleMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageBytes+1))
	if err != nil {
		renderJSON(w, http.StatusBadRequest, channel.Response{Error: ops.NewErrorInfo(errors.NewInvalidRequest("unreadable body"))})
		return
	}
	if len(body) > maxMessageBytes {
		renderJSON(w, http.StatusRequestEntityTooLarge, channel.Response{
			Error: ops.NewErrorInfo(errors.NewInvalidRequest(fmt.Sprintf("message exceeds %d bytes", maxMessageBytes))),
		})
		return
	}

	var req channel.Request
	if err := json.Unmarshal(body, &req); err != nil {
		renderJSON(w, http.StatusBadRequest, channel.Response{Error: ops.NewErrorInfo(errors.NewInvalidRequest("invalid JSON message"))})
		return
	}
	if req.Action == "" {
		renderJSON(w, http.StatusBadRequest, channel.Response{Error: ops.NewErrorInfo(errors.NewInvalidRequest("action is required"))})
		return
	}

	h.logger.Debug("message received", "action", req.Action)
	renderJSON(w, http.StatusOK, h.dispatcher.Dispatch(r.Context(), req))
}

func syncFlash(out *ops.SyncOutput) string {
	return fmt.Sprintf("Synced %d, failed %d, %d still pending", len(out.Succeeded), len(out.Failed), out.Remaining.Pending)
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
