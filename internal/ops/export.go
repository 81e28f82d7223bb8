package ops

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/hpungsan/synapse/internal/errors"
	"github.com/hpungsan/synapse/internal/snapshot"
)

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Path  string // optional, default: <base>/exports/<key>-<YYYY-MM-DD>.csv
	Clear bool   // clear the snapshot store once the file is in place
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Count      int    `json:"count"`
	ExportedAt int64  `json:"exported_at"`
	Cleared    bool   `json:"cleared"`
}

// Export writes the snapshot store as CSV to a file.
// An empty store yields EMPTY_STORE and writes nothing. With Clear, the
// exported records are removed only after the file has been renamed into
// place; captures saved in the meantime are kept for the next export.
func Export(ctx context.Context, rt *Runtime, input ExportInput) (*ExportOutput, error) {
	exported, err := rt.Snapshots.ExportFlat(ctx, snapshot.FormatCSV)
	if err != nil {
		return nil, err
	}

	exportPath := input.Path
	if exportPath == "" {
		exportPath = filepath.Join(rt.ExportsDir(), SanitizeForFilename(exported.Filename))
	}

	// Default paths go through the same checks as user paths.
	if err := ValidateExportPath(exportPath, rt.ExportsDir(), rt.Config); err != nil {
		return nil, err
	}

	if err := writeFileAtomic(ctx, exportPath, exported.Data); err != nil {
		return nil, err
	}

	out := &ExportOutput{
		Path:       exportPath,
		Count:      exported.Count,
		ExportedAt: rt.Now().Unix(),
	}
	rt.Logger.Info("captures exported", "path", exportPath, "count", exported.Count)

	if input.Clear {
		if _, err := rt.Snapshots.Remove(ctx, exported.IDs); err != nil {
			return nil, err
		}
		out.Cleared = true
	}
	return out, nil
}

// ExportCSV returns the CSV export in memory, for download surfaces.
func ExportCSV(ctx context.Context, rt *Runtime) (*snapshot.Export, error) {
	return rt.Snapshots.ExportFlat(ctx, snapshot.FormatCSV)
}

// TakeCSV returns the CSV export in memory and removes exactly the exported
// records. Captures saved while the export was built stay in the store.
func TakeCSV(ctx context.Context, rt *Runtime) (*snapshot.Export, error) {
	exported, err := rt.Snapshots.ExportFlat(ctx, snapshot.FormatCSV)
	if err != nil {
		return nil, err
	}
	if _, err := rt.Snapshots.Remove(ctx, exported.IDs); err != nil {
		return nil, err
	}
	return exported, nil
}

// writeFileAtomic writes data to a temp file beside path, syncs it, and renames
// it over path. An existing file survives any failure.
func writeFileAtomic(ctx context.Context, path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return err
		}
		return errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := file.Write(data); err != nil {
		return errors.NewInternal(err)
	}

	select {
	case <-ctx.Done():
		return errors.NewCancelled("export")
	default:
	}

	if err := file.Sync(); err != nil {
		return errors.NewInternal(err)
	}

	// Close before rename (required on Windows).
	if err := file.Close(); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlink planted at the destination.
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("export path is a symlink")
	}

	// Windows refuses to rename over an existing file; keep the original rather
	// than doing a non-atomic delete+rename.
	if err := os.Rename(tempPath, path); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(path); statErr == nil {
				return errors.NewInvalidRequest("export destination already exists; overwriting is not supported on Windows (choose a new path or delete the existing file)")
			}
		}
		return errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return nil
}
