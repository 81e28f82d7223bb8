// Package auth supplies the bearer credential and caller identity used by
// remote sync. It never acquires or refreshes credentials; it only reads what
// the host application (or the user, via the CLI) stored.
package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/hpungsan/synapse/internal/db"
)

// Key-value entries checked for a credential, in priority order.
const (
	KeySupabaseToken = "supabase_token"
	KeyAuthToken     = "auth_token"
)

var tokenKeys = []string{KeySupabaseToken, KeyAuthToken}

// StoredCredentials reads the bearer token from the key-value table.
type StoredCredentials struct {
	db *sql.DB
}

// NewStoredCredentials binds a credential source to database.
func NewStoredCredentials(database *sql.DB) *StoredCredentials {
	return &StoredCredentials{db: database}
}

// Token returns the stored access token, or "" when none is stored.
// Values may be a raw JWT or a session JSON document carrying access_token.
func (c *StoredCredentials) Token(ctx context.Context) (string, error) {
	for _, key := range tokenKeys {
		raw, ok, err := db.GetValue(ctx, c.db, key)
		if err != nil {
			return "", err
		}
		if !ok {
			continue
		}
		if token := unwrapToken(raw); token != "" {
			return token, nil
		}
	}
	return "", nil
}

// ResolveIdentity returns the user id carried by token.
func (c *StoredCredentials) ResolveIdentity(_ context.Context, token string) (string, error) {
	return SubjectFromToken(token)
}

// SetToken stores token under both credential keys.
func (c *StoredCredentials) SetToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	return db.WithTx(ctx, c.db, func(tx *sql.Tx) error {
		for _, key := range tokenKeys {
			if err := db.PutValue(ctx, tx, key, token); err != nil {
				return err
			}
		}
		return nil
	})
}

// ClearToken removes any stored credential.
func (c *StoredCredentials) ClearToken(ctx context.Context) error {
	return db.WithTx(ctx, c.db, func(tx *sql.Tx) error {
		for _, key := range tokenKeys {
			if err := db.DeleteValue(ctx, tx, key); err != nil {
				return err
			}
		}
		return nil
	})
}

type session struct {
	AccessToken string `json:"access_token"`
	Session     *struct {
		AccessToken string `json:"access_token"`
	} `json:"session"`
}

// unwrapToken extracts access_token from a stored session document.
// Anything that is not a JSON object is returned trimmed as-is.
func unwrapToken(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "{") {
		return strings.Trim(raw, `"`)
	}
	var s session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return ""
	}
	if s.AccessToken != "" {
		return s.AccessToken
	}
	if s.Session != nil {
		return s.Session.AccessToken
	}
	return ""
}
