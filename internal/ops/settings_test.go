package ops

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/synapse/internal/config"
	"github.com/hpungsan/synapse/internal/errors"
)

func TestUpdateConfig_APIBase(t *testing.T) {
	rt, _ := newTestRuntime(t, noSyncConfig(), nil)
	ctx := context.Background()

	out, err := GetConfig(ctx, rt)
	require.NoError(t, err)
	require.Equal(t, config.DefaultAPIBase, out.APIBase)
	require.Equal(t, "default", out.APIBaseSource)

	out, err = UpdateConfig(ctx, rt, UpdateConfigInput{APIBase: " https://api.example.com/v1/ "})
	require.NoError(t, err)
	require.Equal(t, "https://api.example.com/v1", out.APIBase)
	require.Equal(t, "stored", out.APIBaseSource)

	out, err = UpdateConfig(ctx, rt, UpdateConfigInput{Reset: true})
	require.NoError(t, err)
	require.Equal(t, "default", out.APIBaseSource)
}

func TestUpdateConfig_Invalid(t *testing.T) {
	rt, _ := newTestRuntime(t, noSyncConfig(), nil)

	for _, raw := range []string{"", "ftp://x.test", "/relative/api", "http://"} {
		_, err := UpdateConfig(context.Background(), rt, UpdateConfigInput{APIBase: raw})
		require.True(t, errors.Is(err, errors.ErrInvalidRequest), "api_base %q: %v", raw, err)
	}
}

// The stored API base is read at request time, so an update takes effect
// on the next sync without restarting.
func TestUpdateConfig_UsedByNextSync(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/save-memory", r.URL.Path)
		hits.Add(1)
		_, _ = w.Write([]byte(`{"id":"m1"}`))
	}))
	defer srv.Close()

	rt, _ := newTestRuntime(t, noSyncConfig(), nil)
	ctx := context.Background()
	login(t, rt, "u")
	seedCaptures(t, rt, "hello")

	_, err := UpdateConfig(ctx, rt, UpdateConfigInput{APIBase: srv.URL + "/api"})
	require.NoError(t, err)

	out, err := Sync(ctx, rt)
	require.NoError(t, err)
	require.Len(t, out.Succeeded, 1)
	require.Equal(t, int32(1), hits.Load())
}

func TestTokenLifecycle(t *testing.T) {
	rt, _ := newTestRuntime(t, noSyncConfig(), nil)
	ctx := context.Background()

	who, err := Whoami(ctx, rt)
	require.NoError(t, err)
	require.False(t, who.Authenticated)

	token := signToken(t, "user-7")
	who, err = SetToken(ctx, rt, SetTokenInput{Token: token})
	require.NoError(t, err)
	require.True(t, who.Authenticated)
	require.Equal(t, "user-7", who.UserID)

	tok, err := AuthToken(ctx, rt)
	require.NoError(t, err)
	require.Equal(t, token, tok.Token)

	_, err = ClearToken(ctx, rt)
	require.NoError(t, err)
	tok, err = AuthToken(ctx, rt)
	require.NoError(t, err)
	require.Empty(t, tok.Token)
}

func TestSetToken_RejectsUnreadableToken(t *testing.T) {
	rt, _ := newTestRuntime(t, noSyncConfig(), nil)
	ctx := context.Background()

	_, err := SetToken(ctx, rt, SetTokenInput{Token: "not-a-jwt"})
	require.True(t, errors.Is(err, errors.ErrIdentityResolution), "got %v", err)

	tok, err := AuthToken(ctx, rt)
	require.NoError(t, err)
	require.Empty(t, tok.Token, "rejected token must not be kept")

	_, err = SetToken(ctx, rt, SetTokenInput{Token: "  "})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}
