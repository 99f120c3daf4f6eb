package pathutil

import (
	"path/filepath"
	"strings"
)

// Normalize returns the absolute, symlink-resolved form of path used as the
// identity of a watched root. Paths that don't exist yet fall back to the
// cleaned absolute path.
func Normalize(path string) (string, error) {
	expanded, err := Expand(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(expanded)
	if err != nil {
		return filepath.Clean(expanded), nil
	}
	return resolved, nil
}

// ComparePaths checks if two paths refer to the same location.
func ComparePaths(path1, path2 string) (bool, error) {
	norm1, err := Normalize(path1)
	if err != nil {
		return false, err
	}
	norm2, err := Normalize(path2)
	if err != nil {
		return false, err
	}
	return norm1 == norm2, nil
}

// IsWithin reports whether path equals root or lies beneath it.
// Both arguments must already be absolute and clean.
func IsWithin(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
