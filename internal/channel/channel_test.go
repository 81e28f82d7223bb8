package channel

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/synapse/internal/config"
	"github.com/hpungsan/synapse/internal/errors"
	"github.com/hpungsan/synapse/internal/ops"
)

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	cfg := config.DefaultConfig()
	off := false
	cfg.SyncOnCapture = &off
	rt, err := ops.Open(t.TempDir(), cfg, ops.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })
	return NewDispatcher(rt)
}

// roundTrip dispatches a raw JSON message and decodes the reply generically,
// the way a client on the other end of the channel sees it.
func roundTrip(t *testing.T, d *Dispatcher, raw string) map[string]any {
	t.Helper()
	var req Request
	require.NoError(t, json.Unmarshal([]byte(raw), &req))
	resp := d.Dispatch(context.Background(), req)
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestDispatch_SaveCountExport(t *testing.T) {
	d := newTestDispatcher(t)

	resp := roundTrip(t, d, `{"action":"save_capture","data":{"type":"selected_text","content":"hello, world","url":"http://x.test","metadata":{"title":"X"}}}`)
	require.Equal(t, true, resp["success"], "resp = %v", resp)
	result := resp["result"].(map[string]any)
	require.Equal(t, true, result["queued"])
	record := result["record"].(map[string]any)
	require.Equal(t, "X", record["title"])

	resp = roundTrip(t, d, `{"action":"get_capture_count"}`)
	require.Equal(t, float64(1), resp["result"].(map[string]any)["count"])

	resp = roundTrip(t, d, `{"action":"export_csv"}`)
	require.Equal(t, true, resp["success"])
	csv := resp["result"].(map[string]any)["csv"].(string)
	require.True(t, strings.HasPrefix(csv, "Timestamp,URL,Selected Text,Page Content,Type,Title\n"))
	require.Contains(t, csv, `"hello, world"`)

	resp = roundTrip(t, d, `{"action":"get_all_captures"}`)
	require.Len(t, resp["result"].(map[string]any)["captures"], 1)

	resp = roundTrip(t, d, `{"action":"queue_status","data":{"include_entries":true}}`)
	status := resp["result"].(map[string]any)
	require.Equal(t, float64(1), status["stats"].(map[string]any)["pending"])
	require.Len(t, status["pending"], 1)

	resp = roundTrip(t, d, `{"action":"clear_captures"}`)
	require.Equal(t, true, resp["success"])

	resp = roundTrip(t, d, `{"action":"export_csv"}`)
	require.Equal(t, false, resp["success"])
	require.Equal(t, string(errors.ErrEmptyStore), resp["error"].(map[string]any)["code"])
}

func TestDispatch_ExportAndClear(t *testing.T) {
	d := newTestDispatcher(t)

	roundTrip(t, d, `{"action":"save_capture","data":{"type":"page","content":"first"}}`)
	roundTrip(t, d, `{"action":"save_capture","data":{"type":"page","content":"second"}}`)

	resp := roundTrip(t, d, `{"action":"export_csv","data":{"clear":true}}`)
	require.Equal(t, true, resp["success"], "resp = %v", resp)
	result := resp["result"].(map[string]any)
	require.Equal(t, float64(2), result["count"])
	require.Equal(t, true, result["cleared"])
	require.Contains(t, result["csv"], "second")

	resp = roundTrip(t, d, `{"action":"get_capture_count"}`)
	require.Equal(t, float64(0), resp["result"].(map[string]any)["count"])

	resp = roundTrip(t, d, `{"action":"queue_status"}`)
	require.Equal(t, float64(2), resp["result"].(map[string]any)["stats"].(map[string]any)["pending"],
		"clearing exported captures keeps them queued")
}

func TestDispatch_Errors(t *testing.T) {
	d := newTestDispatcher(t)

	tests := []struct {
		name string
		raw  string
		code errors.ErrorCode
	}{
		{"unknown action", `{"action":"launch_rockets"}`, errors.ErrInvalidRequest},
		{"malformed data", `{"action":"save_capture","data":"nope"}`, errors.ErrInvalidRequest},
		{"nested metadata", `{"action":"save_capture","data":{"type":"page","content":"x","metadata":{"a":{"b":1}}}}`, errors.ErrInvalidRequest},
		{"missing content", `{"action":"save_capture","data":{"type":"page"}}`, errors.ErrInvalidRequest},
		{"sync without token", `{"action":"sync_now"}`, errors.ErrNotAuthenticated},
		{"bad api base", `{"action":"update_config","data":{"api_base":"not a url"}}`, errors.ErrInvalidRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := roundTrip(t, d, tc.raw)
			require.Equal(t, false, resp["success"])
			require.Nil(t, resp["result"])
			require.Equal(t, string(tc.code), resp["error"].(map[string]any)["code"])
		})
	}
}

func TestDispatch_AuthActions(t *testing.T) {
	d := newTestDispatcher(t)

	resp := roundTrip(t, d, `{"action":"get_auth_token"}`)
	require.Equal(t, true, resp["success"])
	require.Equal(t, "", resp["result"].(map[string]any)["token"])

	resp = roundTrip(t, d, `{"action":"get_user_id"}`)
	require.Equal(t, true, resp["success"])
	require.Equal(t, "", resp["result"].(map[string]any)["user_id"])

	resp = roundTrip(t, d, `{"action":"update_config","data":{"api_base":"https://api.example.com"}}`)
	require.Equal(t, true, resp["success"])
	require.Equal(t, "https://api.example.com", resp["result"].(map[string]any)["api_base"])
}

func TestDispatcher_ActionsAndOverride(t *testing.T) {
	d := newTestDispatcher(t)
	require.Len(t, d.Actions(), 10)

	d.Handle(ActionSyncNow, func(context.Context, json.RawMessage) (any, error) {
		return map[string]int{"succeeded": 0}, nil
	})
	resp := d.Dispatch(context.Background(), Request{Action: ActionSyncNow})
	require.True(t, resp.Success)
	require.Nil(t, resp.Error)
}
