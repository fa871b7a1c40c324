// Package security validates untrusted filesystem paths supplied by API
// clients.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidatePathWithinDirectory rejects paths that escape safeDir, including
// escapes through .. components and through symlinked ancestors. The path
// itself need not exist yet.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	absSafe, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(absSafe); err == nil {
		absSafe = resolved
	}

	// Resolve symlinks through the deepest existing ancestor so a link
	// inside safeDir cannot point elsewhere.
	canonical := absPath
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		canonical = resolved
	} else {
		dir, rest := filepath.Dir(absPath), filepath.Base(absPath)
		for dir != filepath.Dir(dir) {
			if resolved, err := filepath.EvalSymlinks(dir); err == nil {
				canonical = filepath.Join(resolved, rest)
				break
			}
			rest = filepath.Join(filepath.Base(dir), rest)
			dir = filepath.Dir(dir)
		}
	}

	rel, err := filepath.Rel(absSafe, canonical)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path %q is outside directory %q", filePath, safeDir)
	}
	return nil
}
