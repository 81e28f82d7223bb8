package web

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hpungsan/synapse/internal/channel"
	"github.com/hpungsan/synapse/internal/errors"
	"github.com/hpungsan/synapse/internal/ops"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// maxMessageBytes bounds a POST /api/messages body.
const maxMessageBytes = 8 << 20

// NewServer creates and configures the HTTP server for the Synapse web UI
// and the local message endpoint.
func NewServer(rt *ops.Runtime, version, bind string, port int) (*http.Server, error) {
	h, err := newHandlers(rt, version)
	if err != nil {
		return nil, err
	}

	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("static sub-FS: %w", err)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/captures", http.StatusFound)
	})
	mux.HandleFunc("GET /captures", h.HandleList)
	mux.HandleFunc("GET /captures/{id}", h.HandleDetail)
	mux.HandleFunc("GET /queue", h.HandleQueue)
	mux.HandleFunc("POST /queue/sync", h.sameOrigin(h.HandleSync))
	mux.HandleFunc("GET /export.csv", h.HandleExport)
	mux.HandleFunc("POST /api/messages", h.sameOrigin(requireJSON(h.HandleMessage)))

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticSub)))

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           securityHeaders(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

func newHandlers(rt *ops.Runtime, version string) (*Handlers, error) {
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("template sub-FS: %w", err)
	}
	logger := rt.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		rt:         rt,
		dispatcher: channel.NewDispatcher(rt),
		renderer:   NewRenderer(templateSub, version, logger),
		logger:     logger,
	}, nil
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// extensionScheme is the Origin scheme browsers send for extension pages.
const extensionScheme = "chrome-extension"

// sameOrigin rejects state-changing requests sent by other sites. Requests
// without an Origin (CLI tools, curl) pass, as do the UI's own pages and the
// browser extension.
func (h *Handlers) sameOrigin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowedOrigin(r) {
			h.logger.Warn("cross-origin request rejected", "path", r.URL.Path, "origin", r.Header.Get("Origin"))
			h.renderer.renderError(w, r, errors.NewForbidden("cross-origin requests are not allowed"))
			return
		}
		next(w, r)
	}
}

func allowedOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme == extensionScheme {
		return true
	}
	return (u.Scheme == "http" || u.Scheme == "https") && strings.EqualFold(u.Host, r.Host)
}

// requireJSON only admits application/json bodies. Browsers cannot send that
// cross-site without a CORS preflight, which this server never answers.
func requireJSON(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "application/json" {
			renderJSON(w, http.StatusUnsupportedMediaType, channel.Response{
				Error: ops.NewErrorInfo(errors.NewInvalidRequest("Content-Type must be application/json")),
			})
			return
		}
		next(w, r)
	}
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
func Run(srv *http.Server, logger *slog.Logger) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("synapse UI running", "url", "http://"+srv.Addr)

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		logger.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
