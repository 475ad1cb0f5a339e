package patch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// SetKind distinguishes a fix from the patch set that undoes it.
type SetKind string

const (
	SetForward SetKind = "forward"
	SetRevert  SetKind = "revert"
)

// Set is a patch set persisted to disk, keyed by the fix fingerprint.
type Set struct {
	FixHash   string      `json:"fixHash"`
	Kind      SetKind     `json:"kind"`
	Platform  string      `json:"platform,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	Patches   []CodePatch `json:"patches"`
}

// Writer persists patch sets as JSON files under a directory.
type Writer struct {
	patchDir string
}

// NewWriter creates a new patch writer
func NewWriter(patchDir string) *Writer {
	return &Writer{
		patchDir: patchDir,
	}
}

// WriteSet writes a patch set to disk and returns its path.
func (w *Writer) WriteSet(set *Set) (string, error) {
	if set.FixHash == "" {
		return "", fmt.Errorf("patch set has no fix hash")
	}
	if err := os.MkdirAll(w.patchDir, 0750); err != nil {
		return "", fmt.Errorf("failed to create patch directory: %w", err)
	}

	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize patch set: %w", err)
	}

	path := w.SetPath(set.FixHash, set.Kind)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write patch file: %w", err)
	}
	return path, nil
}

// ReadSet reads a patch set from disk.
func (w *Writer) ReadSet(fixHash string, kind SetKind) (*Set, error) {
	data, err := os.ReadFile(w.SetPath(fixHash, kind))
	if err != nil {
		return nil, fmt.Errorf("failed to read patch file: %w", err)
	}

	var set Set
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse patch set: %w", err)
	}
	return &set, nil
}

// ListSets returns every readable set of the given kind, newest first.
func (w *Writer) ListSets(kind SetKind) ([]*Set, error) {
	pattern := filepath.Join(w.patchDir, fmt.Sprintf("*.%s.patch.json", kind))
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to glob patches: %w", err)
	}

	var sets []*Set
	for _, file := range files {
		hash := strings.TrimSuffix(filepath.Base(file), fmt.Sprintf(".%s.patch.json", kind))
		set, err := w.ReadSet(hash, kind)
		if err != nil {
			continue // Skip unreadable files
		}
		sets = append(sets, set)
	}

	sort.SliceStable(sets, func(i, j int) bool {
		return sets[i].CreatedAt.After(sets[j].CreatedAt)
	})
	return sets, nil
}

// Resolve expands a fix hash prefix, as printed in short form, to the full
// hash of the one stored set of kind it matches.
func (w *Writer) Resolve(prefix string, kind SetKind) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("empty fix hash")
	}
	if w.SetExists(prefix, kind) {
		return prefix, nil
	}
	sets, err := w.ListSets(kind)
	if err != nil {
		return "", err
	}
	var match string
	for _, set := range sets {
		if !strings.HasPrefix(set.FixHash, prefix) {
			continue
		}
		if match != "" {
			return "", fmt.Errorf("fix hash %q is ambiguous", prefix)
		}
		match = set.FixHash
	}
	if match == "" {
		return "", fmt.Errorf("no %s patch set for %q", kind, prefix)
	}
	return match, nil
}

// SetPath returns the file path for a patch set
func (w *Writer) SetPath(fixHash string, kind SetKind) string {
	return filepath.Join(w.patchDir, fmt.Sprintf("%s.%s.patch.json", fixHash, kind))
}

// SetExists checks if a patch set file exists
func (w *Writer) SetExists(fixHash string, kind SetKind) bool {
	_, err := os.Stat(w.SetPath(fixHash, kind))
	return err == nil
}
