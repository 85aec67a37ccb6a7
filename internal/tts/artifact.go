package tts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const dirPermissions = 0o750

// Artifact is the per-request pair of audio files in the workspace, keyed by
// a fresh request identifier.
type Artifact struct {
	ID      string
	WAVPath string
	OGGPath string
}

// Filename is the suggested download name of the delivered file.
func (a *Artifact) Filename() string {
	return "speech_" + a.ID + ".ogg"
}

// RemoveWAV deletes the intermediate file.
func (a *Artifact) RemoveWAV() error {
	return removeIfExists(a.WAVPath)
}

// Remove deletes both files. Missing files are not an error.
func (a *Artifact) Remove() error {
	return errors.Join(removeIfExists(a.WAVPath), removeIfExists(a.OGGPath))
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	return nil
}

// Workspace is the shared temporary directory that stages artifacts.
type Workspace struct {
	dir string
}

// NewWorkspace creates dir if needed.
func NewWorkspace(dir string) (*Workspace, error) {
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating workspace %s: %w", dir, err)
	}
	return &Workspace{dir: dir}, nil
}

// Dir returns the workspace directory.
func (w *Workspace) Dir() string { return w.dir }

// New allocates an artifact with a fresh UUIDv4. No files are created.
func (w *Workspace) New() *Artifact {
	id := uuid.NewString()
	return &Artifact{
		ID:      id,
		WAVPath: filepath.Join(w.dir, id+".wav"),
		OGGPath: filepath.Join(w.dir, id+".ogg"),
	}
}

// Sweep deletes regular files last modified more than maxAge ago and returns
// how many were removed.
func (w *Workspace) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0, fmt.Errorf("reading workspace: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	var errs []error
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Deleted by a concurrent request between ReadDir and Info.
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := removeIfExists(filepath.Join(w.dir, entry.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// RunJanitor sweeps once immediately and then every interval until ctx is
// cancelled.
func (w *Workspace) RunJanitor(ctx context.Context, interval, maxAge time.Duration) {
	sweep := func() {
		n, err := w.Sweep(maxAge)
		if err != nil {
			slog.Warn("workspace sweep failed", "dir", w.dir, "error", err)
		}
		if n > 0 {
			slog.Info("removed stale audio files", "dir", w.dir, "count", n)
		}
	}

	sweep()
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
