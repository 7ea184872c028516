package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/deusflow/aidigest/internal/logger"
)

// FileHistory persists topic history as a flat JSON object
// {"topic": "YYYY-MM-DD"}.
type FileHistory struct {
	*History
	filePath string
}

// NewFileHistory creates a file-backed history. Call Load before use.
func NewFileHistory(filePath string, retentionDays int) *FileHistory {
	return &FileHistory{
		History:  NewHistory(retentionDays),
		filePath: filePath,
	}
}

// Path returns the backing file.
func (fh *FileHistory) Path() string {
	return fh.filePath
}

// Load reads the history file. A missing, empty or corrupt file yields an
// empty history; it is never fatal.
func (fh *FileHistory) Load() {
	data, err := os.ReadFile(fh.filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("history file unreadable, starting empty", "path", fh.filePath, "error", err)
		}
		fh.replace(nil)
		return
	}

	if len(bytes.TrimSpace(data)) == 0 {
		fh.replace(nil)
		return
	}

	var entries map[string]string
	if err := json.Unmarshal(data, &entries); err != nil {
		logger.Warn("history file corrupt, starting empty", "path", fh.filePath, "error", err)
		fh.replace(nil)
		return
	}

	fh.replace(entries)
	logger.Debug("history loaded", "path", fh.filePath, "entries", len(entries))
}

// Save applies retention cleanup and writes the authoritative state. The
// file is written to a temp sibling and renamed into place.
func (fh *FileHistory) Save() error {
	entries, removed := fh.snapshotForSave()
	if removed > 0 {
		logger.Debug("history entries expired", "removed", removed)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	dir := filepath.Dir(fh.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create history dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".history-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp history file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write history file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write history file: %w", err)
	}
	if err := os.Rename(tmpName, fh.filePath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace history file: %w", err)
	}

	return nil
}
