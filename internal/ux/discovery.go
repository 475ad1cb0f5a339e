package ux

import (
	"os"
	"path/filepath"
)

// DiscoverConfigFile searches for filename in the working directory, then
// in parent directories up to the repository root, then in ~/.autoheal.
// It returns "" when no file exists.
func DiscoverConfigFile(filename string) (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	dir := cwd
	for {
		path := filepath.Join(dir, filename)
		if fileExists(path) {
			return path, nil
		}

		// Stop at git root
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(homeDir, ".autoheal", filename)
		if fileExists(path) {
			return path, nil
		}
	}
	return "", nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
