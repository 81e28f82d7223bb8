package remote

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hpungsan/synapse/internal/capture"
	"github.com/hpungsan/synapse/internal/errors"
)

// SaveMemoryPath is appended to the API base URL.
const SaveMemoryPath = "/save-memory"

// maxErrorBody caps how much of an error response is kept in a failure reason.
const maxErrorBody = 512

// idempotencyNamespace scopes v5 UUIDs derived from capture IDs.
var idempotencyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("synapse:capture"))

// IdempotencyKey derives a stable request key from a capture ID, so a resend
// after a lost acknowledgement carries the same key.
func IdempotencyKey(captureID string) string {
	return uuid.NewSHA1(idempotencyNamespace, []byte(captureID)).String()
}

// SaveRequest is one remote write.
type SaveRequest struct {
	IdempotencyKey string
	Payload        capture.RemotePayload
}

// BaseURLFunc resolves the API base URL at call time.
type BaseURLFunc func(ctx context.Context) (string, error)

// StaticBaseURL returns a BaseURLFunc that always yields base.
func StaticBaseURL(base string) BaseURLFunc {
	return func(context.Context) (string, error) { return base, nil }
}

// Client posts captures to the remote memory API.
type Client struct {
	baseURL BaseURLFunc
	http    *http.Client
}

// NewClient builds a Client. A nil httpClient uses a default with no overall
// timeout; deadlines come from the caller's context.
func NewClient(baseURL BaseURLFunc, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{baseURL: baseURL, http: httpClient}
}

// SaveMemory sends one record. Any non-2xx status, transport error, or body
// that is not a JSON object is returned as SYNC_FAILURE; an expired deadline
// as NETWORK_TIMEOUT.
func (c *Client) SaveMemory(ctx context.Context, token string, req SaveRequest) error {
	base, err := c.baseURL(ctx)
	if err != nil {
		return err
	}
	endpoint := strings.TrimRight(base, "/") + SaveMemoryPath

	body, err := json.Marshal(req.Payload)
	if err != nil {
		return errors.NewInternal(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.NewSyncFailure(fmt.Sprintf("build request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if isTimeout(ctx, err) {
			return errors.NewNetworkTimeout(err)
		}
		return errors.NewSyncFailure(fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		if isTimeout(ctx, err) {
			return errors.NewNetworkTimeout(err)
		}
		return errors.NewSyncFailure(fmt.Sprintf("read response: %v", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.NewSyncFailure(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(string(respBody), maxErrorBody)))
	}

	var ack map[string]json.RawMessage
	if err := json.Unmarshal(respBody, &ack); err != nil || ack == nil {
		return errors.NewSyncFailure(fmt.Sprintf("malformed response: %s", truncate(string(respBody), maxErrorBody)))
	}
	return nil
}

func isTimeout(ctx context.Context, err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr) && netErr.Timeout()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

// withTimeout applies d to ctx when positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return ctx, func() {}
}
