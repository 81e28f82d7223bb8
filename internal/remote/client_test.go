package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/hpungsan/synapse/internal/capture"
	"github.com/hpungsan/synapse/internal/errors"
)

func testPayload() capture.RemotePayload {
	return capture.NewRemotePayload(&capture.Record{
		ID:      "01HZX0000000000000000000AA",
		Kind:    capture.KindSelectedText,
		Content: "hello world",
		URL:     "http://x.test",
		Title:   "X",
	}, "user-1")
}

func TestClient_SaveMemory(t *testing.T) {
	var (
		gotPath    string
		gotAuth    string
		gotKey     string
		gotPayload map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("Idempotency-Key")
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"mem-1"}`))
	}))
	defer srv.Close()

	c := NewClient(StaticBaseURL(srv.URL+"/api/"), nil)
	key := IdempotencyKey("01HZX0000000000000000000AA")
	if err := c.SaveMemory(context.Background(), "tok", SaveRequest{IdempotencyKey: key, Payload: testPayload()}); err != nil {
		t.Fatalf("SaveMemory() error = %v", err)
	}

	if gotPath != "/api/save-memory" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotKey != key {
		t.Errorf("Idempotency-Key = %q, want %q", gotKey, key)
	}
	if gotPayload["type"] != "note" || gotPayload["userId"] != "user-1" || gotPayload["title"] != "X" {
		t.Errorf("payload = %v", gotPayload)
	}
	if _, ok := gotPayload["metadata"].(map[string]any); !ok {
		t.Errorf("metadata should be an object: %v", gotPayload["metadata"])
	}
}

func TestClient_Failures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantReason string
	}{
		{"server error", http.StatusInternalServerError, `{"error":"db down"}`, "HTTP 500"},
		{"unauthorized", http.StatusUnauthorized, `nope`, "HTTP 401: nope"},
		{"malformed body", http.StatusOK, `<html>ok</html>`, "malformed response"},
		{"array body", http.StatusOK, `[1,2]`, "malformed response"},
		{"empty body", http.StatusOK, ``, "malformed response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			err := NewClient(StaticBaseURL(srv.URL), nil).SaveMemory(context.Background(), "tok", SaveRequest{Payload: testPayload()})
			if !errors.Is(err, errors.ErrSyncFailure) {
				t.Fatalf("error = %v, want SYNC_FAILURE", err)
			}
			if !strings.Contains(err.Error(), tt.wantReason) {
				t.Errorf("error = %q, want to contain %q", err.Error(), tt.wantReason)
			}
		})
	}
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := NewClient(StaticBaseURL(srv.URL), nil).SaveMemory(ctx, "tok", SaveRequest{Payload: testPayload()})
	if !errors.Is(err, errors.ErrNetworkTimeout) {
		t.Fatalf("error = %v, want NETWORK_TIMEOUT", err)
	}
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewClient(StaticBaseURL(url), nil).SaveMemory(context.Background(), "tok", SaveRequest{Payload: testPayload()})
	if !errors.Is(err, errors.ErrSyncFailure) {
		t.Fatalf("error = %v, want SYNC_FAILURE", err)
	}
}

func TestIdempotencyKey_Stable(t *testing.T) {
	a := IdempotencyKey("01ABC")
	if a != IdempotencyKey("01ABC") {
		t.Error("same capture ID must yield the same key")
	}
	if a == IdempotencyKey("01ABD") {
		t.Error("different capture IDs must yield different keys")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"  short  ", 10, "short"},
		{"abcdef", 3, "abc..."},
		{"ééééé", 5, "éé..."},
		{"日本語テキスト", 4, "日..."},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.n)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncate(%q, %d) split a rune: %q", tt.in, tt.n, got)
		}
	}
}
