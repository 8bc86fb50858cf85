// Package storage provides durable JSON snapshot files for engine state.
// Snapshots are written to a temporary file and renamed over the target so
// a crash mid-write never leaves a corrupt document behind.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
)

// ErrCorruptSnapshot indicates the snapshot file exists but cannot be decoded.
var ErrCorruptSnapshot = errors.New("snapshot file is corrupt")

// SaveSnapshot marshals v and atomically replaces the file at path.
func SaveSnapshot(path string, v any) error {
	data, err := sonic.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create snapshot directory: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temporary snapshot: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		// Leave nothing half-written behind.
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	return nil
}

// LoadSnapshot decodes the file at path into v.
// A missing file returns os.ErrNotExist; an undecodable file returns
// ErrCorruptSnapshot. Callers are expected to fall back to empty state
// on either.
func LoadSnapshot(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return os.ErrNotExist
		}
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	if err := sonic.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}

	return nil
}
