package ops

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/synapse/internal/errors"
)

func seedCaptures(t *testing.T, rt *Runtime, contents ...string) {
	t.Helper()
	for _, c := range contents {
		_, err := Capture(context.Background(), rt, CaptureInput{Kind: "selected_text", Content: c, URL: "https://x.test"})
		require.NoError(t, err)
	}
}

func TestExport_DefaultPath(t *testing.T) {
	rt, _ := newTestRuntime(t, noSyncConfig(), nil)
	ctx := context.Background()
	seedCaptures(t, rt, "first", `second, with "quotes"`)

	out, err := Export(ctx, rt, ExportInput{})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(rt.ExportsDir(), "synapse-captures-2026-05-04.csv"), out.Path)
	require.Equal(t, 2, out.Count)
	require.False(t, out.Cleared)

	data, err := os.ReadFile(out.Path)
	require.NoError(t, err)
	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, "Timestamp", rows[0][0])
	require.Equal(t, `second, with "quotes"`, rows[1][2], "newest first")

	info, err := os.Stat(out.Path)
	require.NoError(t, err)
	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	// No temp files left behind.
	entries, err := os.ReadDir(rt.ExportsDir())
	require.NoError(t, err)
	require.Len(t, entries, 1)

	count, err := Count(ctx, rt)
	require.NoError(t, err)
	require.Equal(t, 2, count.Count, "export without clear keeps the store")
}

func TestExport_Clear(t *testing.T) {
	rt, _ := newTestRuntime(t, noSyncConfig(), nil)
	ctx := context.Background()
	seedCaptures(t, rt, "only")

	out, err := Export(ctx, rt, ExportInput{Clear: true})
	require.NoError(t, err)
	require.True(t, out.Cleared)

	count, err := Count(ctx, rt)
	require.NoError(t, err)
	require.Zero(t, count.Count)
	require.Equal(t, 1, count.Pending, "clearing snapshots keeps queued entries")
}

func TestExport_ClearKeepsCapturesSavedDuringExport(t *testing.T) {
	var (
		rt    *Runtime
		armed bool
	)
	base := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
	// The clock is read after the export has loaded the store, so a capture
	// taken here lands between the read and the clear.
	now := func() time.Time {
		if armed {
			armed = false
			_, err := Capture(context.Background(), rt, CaptureInput{Kind: "selected_text", Content: "late capture"})
			require.NoError(t, err)
		}
		return base
	}
	var err error
	rt, err = Open(t.TempDir(), noSyncConfig(), Options{Writer: &fakeWriter{}, Now: now})
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })
	ctx := context.Background()
	seedCaptures(t, rt, "early capture")

	armed = true
	out, err := Export(ctx, rt, ExportInput{Clear: true})
	require.NoError(t, err)
	require.False(t, armed, "late capture was not injected")
	require.Equal(t, 1, out.Count)
	require.True(t, out.Cleared)

	records, err := rt.Snapshots.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "late capture", records[0].Content)
}

func TestTakeCSV_RemovesExported(t *testing.T) {
	rt, _ := newTestRuntime(t, noSyncConfig(), nil)
	ctx := context.Background()
	seedCaptures(t, rt, "one", "two")

	exp, err := TakeCSV(ctx, rt)
	require.NoError(t, err)
	require.Equal(t, 2, exp.Count)
	require.Contains(t, string(exp.Data), "two")

	count, err := Count(ctx, rt)
	require.NoError(t, err)
	require.Zero(t, count.Count)

	_, err = TakeCSV(ctx, rt)
	require.True(t, errors.Is(err, errors.ErrEmptyStore))
}

func TestExport_EmptyStore(t *testing.T) {
	rt, _ := newTestRuntime(t, noSyncConfig(), nil)

	_, err := Export(context.Background(), rt, ExportInput{})
	require.True(t, errors.Is(err, errors.ErrEmptyStore))

	_, statErr := os.Stat(rt.ExportsDir())
	require.True(t, os.IsNotExist(statErr), "nothing written for an empty store")
}

func TestExport_PathRejectedKeepsStore(t *testing.T) {
	rt, _ := newTestRuntime(t, noSyncConfig(), nil)
	ctx := context.Background()
	seedCaptures(t, rt, "keep me")

	_, err := Export(ctx, rt, ExportInput{Path: filepath.Join(t.TempDir(), "out.csv"), Clear: true})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	count, err := Count(ctx, rt)
	require.NoError(t, err)
	require.Equal(t, 1, count.Count)
}

func TestExport_AllowedPath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("rename over an existing file is refused on Windows")
	}
	dir := t.TempDir()
	cfg := noSyncConfig()
	cfg.AllowedPaths = []string{dir}
	rt, _ := newTestRuntime(t, cfg, nil)
	seedCaptures(t, rt, "x")

	target := filepath.Join(dir, "mine.csv")
	require.NoError(t, os.WriteFile(target, []byte("old"), 0600))

	out, err := Export(context.Background(), rt, ExportInput{Path: target})
	require.NoError(t, err)
	require.Equal(t, target, out.Path)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(data), "Timestamp,URL"), "existing file replaced")
}

func TestExportCSV_InMemory(t *testing.T) {
	rt, _ := newTestRuntime(t, noSyncConfig(), nil)
	seedCaptures(t, rt, "a")

	exp, err := ExportCSV(context.Background(), rt)
	require.NoError(t, err)
	require.Equal(t, 1, exp.Count)
	require.Equal(t, "synapse-captures-2026-05-04.csv", exp.Filename)
	require.Contains(t, string(exp.Data), "selected_text")
}
