package scope

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Result is the outcome of a single path validation
type Result struct {
	Allowed bool
	// Reason explains a rejection; empty when allowed
	Reason string
	// Resolved is the canonical absolute form that was checked
	Resolved string
}

// Validator checks whether filesystem paths fall inside a configured set
// of allowed roots. This is a security boundary: it must have zero false
// negatives. Over-rejection is acceptable and preferred over leniency.
type Validator struct {
	roots []string
}

// NewValidator builds a validator from allowed root directories.
// Roots are canonicalized once at construction; a root that cannot be
// resolved is an error rather than a silently narrower scope.
func NewValidator(roots []string) (*Validator, error) {
	if len(roots) == 0 {
		return nil, fmt.Errorf("at least one allowed root is required")
	}
	normalized := make([]string, 0, len(roots))
	for _, root := range roots {
		resolved, err := canonicalize(root)
		if err != nil {
			return nil, fmt.Errorf("resolve allowed root %s: %w", root, err)
		}
		normalized = append(normalized, resolved)
	}
	return &Validator{roots: normalized}, nil
}

// Roots returns the canonical allowed roots
func (v *Validator) Roots() []string {
	out := make([]string, len(v.roots))
	copy(out, v.roots)
	return out
}

// Validate resolves the candidate path to its canonical absolute form and
// checks containment against the allowed roots. Paths that do not exist
// yet validate through their deepest existing ancestor, so file-creation
// targets are handled correctly.
func (v *Validator) Validate(path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Reason: "empty path"}
	}
	if hasTraversal(path) {
		// Rejected before any resolution. Lexical cleaning of ".."
		// around symlinked ancestors does not match kernel semantics,
		// so traversal sequences are refused wholesale.
		return Result{Reason: "path contains a traversal sequence"}
	}

	resolved, err := canonicalize(path)
	if err != nil {
		// Unresolvable input is rejected, never waved through
		return Result{Reason: fmt.Sprintf("cannot resolve path: %v", err)}
	}

	for _, root := range v.roots {
		if contains(root, resolved) {
			return Result{Allowed: true, Resolved: resolved}
		}
	}
	return Result{
		Reason:   fmt.Sprintf("path %s is outside all allowed roots", resolved),
		Resolved: resolved,
	}
}

// canonicalize expands home-directory shorthand, makes the path absolute,
// and resolves symlinks. For non-existent paths the deepest existing
// ancestor is resolved and the remaining segments are re-joined, so the
// result reflects where the path would actually land on disk.
func canonicalize(path string) (string, error) {
	expanded, err := expandHome(path)
	if err != nil {
		return "", err
	}

	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", err
	}
	abs = filepath.Clean(abs)

	// Walk up until an existing ancestor is found, then resolve its
	// symlinks and re-attach the non-existent remainder.
	current := abs
	var remainder []string
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			for i := len(remainder) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, remainder[i])
			}
			return filepath.Clean(resolved), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}

		parent := filepath.Dir(current)
		if parent == current {
			// Reached the filesystem root without finding anything
			return "", fmt.Errorf("no existing ancestor for %s", abs)
		}
		remainder = append(remainder, filepath.Base(current))
		current = parent
	}
}

// hasTraversal reports whether any segment of the path is ".."
func hasTraversal(path string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

// expandHome rewrites ~ and ~/... to the user's home directory
func expandHome(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}

// contains reports whether candidate equals root or descends from it
func contains(root, candidate string) bool {
	if candidate == root {
		return true
	}
	return strings.HasPrefix(candidate, root+string(filepath.Separator))
}
