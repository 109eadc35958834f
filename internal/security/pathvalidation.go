// Package security validates user supplied file paths before they are opened.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// RecordExtensions are the file extensions accepted for pose recordings.
var RecordExtensions = []string{".db", ".sqlite", ".sqlite3"}

// ValidateRecordPath checks that path names a sqlite file in an existing
// directory. When allowedDirs is non-empty the resolved path must also sit
// inside one of them.
func ValidateRecordPath(path string, allowedDirs ...string) error {
	if path == "" {
		return fmt.Errorf("record path is empty")
	}
	ext := strings.ToLower(filepath.Ext(path))
	if !slices.Contains(RecordExtensions, ext) {
		return fmt.Errorf("record path must end in one of %v, got %q", RecordExtensions, ext)
	}

	resolved, err := resolve(path)
	if err != nil {
		return err
	}
	if info, err := os.Stat(filepath.Dir(resolved)); err != nil {
		return fmt.Errorf("record directory: %w", err)
	} else if !info.IsDir() {
		return fmt.Errorf("record directory %s is not a directory", filepath.Dir(resolved))
	}
	if info, err := os.Stat(resolved); err == nil && info.IsDir() {
		return fmt.Errorf("record path %s is a directory", path)
	}

	if len(allowedDirs) == 0 {
		return nil
	}
	for _, dir := range allowedDirs {
		if within(resolved, dir) {
			return nil
		}
	}
	return fmt.Errorf("record path %s must be within one of %v", path, allowedDirs)
}

// resolve returns the absolute path with symlinks in its directory resolved.
// The file itself need not exist yet.
func resolve(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	dir, err := filepath.EvalSymlinks(filepath.Dir(abs))
	if err != nil {
		return "", fmt.Errorf("record directory: %w", err)
	}
	return filepath.Join(dir, filepath.Base(abs)), nil
}

func within(path, dir string) bool {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	if canon, err := filepath.EvalSymlinks(abs); err == nil {
		abs = canon
	}
	rel, err := filepath.Rel(abs, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
