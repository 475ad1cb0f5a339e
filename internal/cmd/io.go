package cmd

import (
	"encoding/json"
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/felixgeelhaar/autoheal/internal/errors"
	"github.com/felixgeelhaar/autoheal/internal/fixgen"
	"github.com/felixgeelhaar/autoheal/internal/patch"
)

// maxSourceFile skips generated bundles and binaries when loading a tree.
const maxSourceFile = 1 << 20

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.NewFileNotFoundError(path)
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "failed to read "+path, err)
	}
	return data, nil
}

func readJSON(path string, v any) error {
	data, err := readFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.NewFileUnmarshalError(path, "JSON", err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileMarshal, "failed to encode "+path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to write "+path, err)
	}
	return nil
}

// readFix loads a fix with the same strict rules applied to oracle output.
func readFix(path string) (*fixgen.FixResponse, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	fix, err := fixgen.ParseResponse(string(data))
	if err != nil {
		return nil, codedError(err)
	}
	return fix, nil
}

// loadTree reads every source file under dir keyed by slash-separated
// relative path. Hidden directories and node_modules are skipped.
func loadTree(dir string) (patch.Files, error) {
	files := make(patch.Files)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != dir && (strings.HasPrefix(name, ".") || name == "node_modules") {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.Mode().IsRegular() || info.Size() > maxSourceFile {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "failed to load source tree "+dir, err)
	}
	return files, nil
}

// writeTree writes the paths in changed back under dir.
func writeTree(dir string, files patch.Files, changed []string) error {
	for _, rel := range changed {
		full := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.WriteFile(full, []byte(files[rel]), 0o644); err != nil {
			return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to write "+full, err)
		}
	}
	return nil
}

func patchedPaths(patches []patch.CodePatch) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range patches {
		if !seen[p.FilePath] {
			seen[p.FilePath] = true
			out = append(out, p.FilePath)
		}
	}
	return out
}
