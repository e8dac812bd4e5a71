// Package security guards file discovery against paths that resolve outside
// the directory an operator pointed the tools at.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned when a path resolves outside its root.
var ErrOutsideRoot = errors.New("security: path escapes root directory")

// ValidatePathWithinDirectory checks that filePath, after cleaning and
// symlink resolution, stays inside root. Both paths must exist.
func ValidatePathWithinDirectory(filePath, root string) error {
	canonicalPath, err := canonical(filePath)
	if err != nil {
		return err
	}
	canonicalRoot, err := canonical(root)
	if err != nil {
		return err
	}

	rel, err := filepath.Rel(canonicalRoot, canonicalPath)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrOutsideRoot, filePath, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s resolves outside %s", ErrOutsideRoot, filePath, root)
	}
	return nil
}

func canonical(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("failed to resolve symlinks: %w", err)
	}
	return resolved, nil
}
