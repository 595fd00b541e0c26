// Package kvfile persists values as JSON files with atomic replace semantics.
//
// Writes go to a sibling temp file which is round-trip validated and then
// renamed into place, so a reader never observes a partial file. Reads treat
// a missing or malformed file as "no value": callers fall back to their
// zero state rather than failing at boot.
package kvfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads the JSON file at path into v.
// Returns false if the file is missing or does not parse; v is left
// untouched in that case. Load never returns an error: a damaged state
// file degrades to defaults instead of blocking startup.
func Load(path string, v any) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false
	}
	return true
}

// Save atomically writes v as indented JSON to path.
// The value is written to a temp sibling, re-read and validated, then
// renamed over the destination.
func Save(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	// Round-trip validation: re-read and verify valid JSON before the rename.
	check, err := os.ReadFile(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("read-back temp file: %w", err)
	}
	var verify json.RawMessage
	if err := json.Unmarshal(check, &verify); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("round-trip validation failed: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}

	return nil
}
