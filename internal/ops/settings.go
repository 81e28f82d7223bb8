package ops

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/hpungsan/synapse/internal/db"
	"github.com/hpungsan/synapse/internal/errors"
)

// ConfigOutput describes the effective remote settings.
type ConfigOutput struct {
	APIBase          string `json:"api_base"`
	APIBaseSource    string `json:"api_base_source"` // "stored" or "default"
	SyncOnCapture    bool   `json:"sync_on_capture"`
	DisableRemote    bool   `json:"disable_remote"`
	RequestTimeoutMs int    `json:"request_timeout_ms"`
	RetryMaxAttempts int    `json:"retry_max_attempts"`
}

// GetConfig returns the effective remote settings.
func GetConfig(ctx context.Context, rt *Runtime) (*ConfigOutput, error) {
	base, stored, err := rt.apiBase(ctx)
	if err != nil {
		return nil, err
	}
	source := "default"
	if stored {
		source = "stored"
	}
	return &ConfigOutput{
		APIBase:          base,
		APIBaseSource:    source,
		SyncOnCapture:    rt.Config.ShouldSyncOnCapture(),
		DisableRemote:    rt.Config.DisableRemote,
		RequestTimeoutMs: rt.Config.RequestTimeoutMs,
		RetryMaxAttempts: rt.Config.RetryMaxAttempts,
	}, nil
}

// UpdateConfigInput contains parameters for the UpdateConfig operation.
type UpdateConfigInput struct {
	APIBase string // absolute http(s) URL
	Reset   bool   // drop the stored value and fall back to the default
}

// UpdateConfig persists the remote API base URL. The next request uses it.
func UpdateConfig(ctx context.Context, rt *Runtime, input UpdateConfigInput) (*ConfigOutput, error) {
	if input.Reset {
		if err := db.DeleteValue(ctx, rt.DB, KeyAPIBase); err != nil {
			return nil, err
		}
		return GetConfig(ctx, rt)
	}

	base, err := normalizeAPIBase(input.APIBase)
	if err != nil {
		return nil, err
	}
	if err := db.PutValue(ctx, rt.DB, KeyAPIBase, base); err != nil {
		return nil, err
	}
	rt.Logger.Info("api base updated", "api_base", base)
	return GetConfig(ctx, rt)
}

func normalizeAPIBase(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.NewInvalidRequest("api_base is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.NewInvalidRequest(fmt.Sprintf("invalid api_base: %v", err))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errors.NewInvalidRequest("api_base must use http or https")
	}
	if u.Host == "" {
		return "", errors.NewInvalidRequest("api_base must include a host")
	}
	return strings.TrimRight(u.String(), "/"), nil
}

// WhoamiOutput describes the stored credential.
type WhoamiOutput struct {
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"user_id,omitempty"`
}

// Whoami resolves the caller identity from the stored credential.
// No credential is not an error; an unreadable one is IDENTITY_RESOLUTION.
func Whoami(ctx context.Context, rt *Runtime) (*WhoamiOutput, error) {
	token, err := rt.Credentials.Token(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return &WhoamiOutput{}, nil
	}
	userID, err := rt.Credentials.ResolveIdentity(ctx, token)
	if err != nil || userID == "" {
		return nil, errors.NewIdentityResolution(err)
	}
	return &WhoamiOutput{Authenticated: true, UserID: userID}, nil
}

// SetTokenInput contains parameters for the SetToken operation.
type SetTokenInput struct {
	Token string // raw JWT or a stored session JSON blob
}

// SetToken stores the bearer credential and reports the identity it resolves to.
// An unreadable token is rejected and nothing is stored.
func SetToken(ctx context.Context, rt *Runtime, input SetTokenInput) (*WhoamiOutput, error) {
	if strings.TrimSpace(input.Token) == "" {
		return nil, errors.NewInvalidRequest("token is required")
	}
	if err := rt.Credentials.SetToken(ctx, input.Token); err != nil {
		return nil, err
	}
	out, err := Whoami(ctx, rt)
	if err != nil {
		if clearErr := rt.Credentials.ClearToken(ctx); clearErr != nil {
			rt.Logger.Warn("failed to drop rejected token", "error", clearErr)
		}
		return nil, err
	}
	return out, nil
}

// ClearToken removes the stored credential. Sync passes fail NOT_AUTHENTICATED afterwards.
func ClearToken(ctx context.Context, rt *Runtime) (*WhoamiOutput, error) {
	if err := rt.Credentials.ClearToken(ctx); err != nil {
		return nil, err
	}
	return &WhoamiOutput{}, nil
}

// TokenOutput carries the stored bearer credential.
type TokenOutput struct {
	Token string `json:"token"`
}

// AuthToken returns the stored credential, "" when absent.
func AuthToken(ctx context.Context, rt *Runtime) (*TokenOutput, error) {
	token, err := rt.Credentials.Token(ctx)
	if err != nil {
		return nil, err
	}
	return &TokenOutput{Token: token}, nil
}
