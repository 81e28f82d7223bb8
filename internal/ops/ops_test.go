package ops

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/synapse/internal/config"
	"github.com/hpungsan/synapse/internal/errors"
	"github.com/hpungsan/synapse/internal/remote"
)

// fakeWriter records remote writes and fails the contents listed in failOn.
type fakeWriter struct {
	mu     sync.Mutex
	saved  []remote.SaveRequest
	failOn map[string]bool
}

func (w *fakeWriter) SaveMemory(_ context.Context, _ string, req remote.SaveRequest) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failOn[req.Payload.Content] {
		return errors.NewSyncFailure("HTTP 503: unavailable")
	}
	w.saved = append(w.saved, req)
	return nil
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.saved)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRuntime(t *testing.T, cfg *config.Config, w remote.Writer) (*Runtime, *testClock) {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	clock := &testClock{now: time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)}
	rt, err := Open(t.TempDir(), cfg, Options{Writer: w, Now: clock.Now})
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })
	return rt, clock
}

// noSyncConfig disables the sync pass that normally follows each capture.
func noSyncConfig() *config.Config {
	cfg := config.DefaultConfig()
	off := false
	cfg.SyncOnCapture = &off
	return cfg
}

func signToken(t *testing.T, sub string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func login(t *testing.T, rt *Runtime, sub string) {
	t.Helper()
	_, err := SetToken(context.Background(), rt, SetTokenInput{Token: signToken(t, sub)})
	require.NoError(t, err)
}

func boolPtr(b bool) *bool { return &b }

func TestOpen_APIBaseFallsBackToConfig(t *testing.T) {
	cfg := noSyncConfig()
	cfg.DefaultAPIBase = "https://fallback.test/api"
	rt, _ := newTestRuntime(t, cfg, nil)

	base, err := rt.APIBase(context.Background())
	require.NoError(t, err)
	require.Equal(t, "https://fallback.test/api", base)
}
