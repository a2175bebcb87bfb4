package ingest

import (
	"path/filepath"
	"strings"

	coreerrors "github.com/ragsmith/ragsmith/internal/errors"
)

// isRemoteSource reports whether path names a URL rather than a local file,
// matching the scheme prefixes chunk.DetectFamily recognises.
func isRemoteSource(path string) bool {
	for _, prefix := range []string{"http://", "https://", "ssh://", "git://"} {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// validatePath confines local filesystem paths to root, rejecting any path
// that escapes it (via "..", symlink-free lexical traversal, or an absolute
// path outside root). Remote sources (URLs) are left to their chunker's own
// scheme and host validation and are not confined here.
func validatePath(path, root string) (string, error) {
	if isRemoteSource(path) {
		return path, nil
	}
	return ConfinePath(path, root)
}

// ConfinePath resolves path against root and rejects anything that would
// escape it, returning the cleaned absolute path. It is the path-traversal
// guard shared by ingest's own source-path validation and by the generation
// driver's output-path validation.
func ConfinePath(path, root string) (string, error) {
	if root == "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", coreerrors.IOError("failed to resolve path", err)
		}
		return abs, nil
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", coreerrors.IOError("failed to resolve project root", err)
	}

	candidate := path
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(absRoot, candidate)
	}
	candidate = filepath.Clean(candidate)

	rel, err := filepath.Rel(absRoot, candidate)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", coreerrors.PathTraversalError(path, absRoot)
	}

	return candidate, nil
}
