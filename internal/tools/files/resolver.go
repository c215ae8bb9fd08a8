package files

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/coreagent/runtime/internal/model"
)

// Resolver resolves workspace-relative paths against a session's working
// directory (model.Session.WorkDir, spec.md §3's Session{id, work_dir,
// history_file_path}) and rejects anything that would escape it.
type Resolver struct {
	Session model.Session
}

// NewResolver binds a Resolver to session. An empty WorkDir resolves
// relative to the process's current directory.
func NewResolver(session model.Session) Resolver {
	return Resolver{Session: session}
}

// Resolve returns an absolute, cleaned path within the session's workspace.
func (r Resolver) Resolve(path string) (string, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return "", fmt.Errorf("path is required")
	}
	root := strings.TrimSpace(r.Session.WorkDir)
	if root == "" {
		root = "."
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}
	var target string
	if filepath.IsAbs(clean) {
		target = filepath.Clean(clean)
	} else {
		target = filepath.Join(rootAbs, clean)
	}
	targetAbs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	rel, err := filepath.Rel(rootAbs, targetAbs)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("path %q escapes workspace %q", path, r.Session.WorkDir)
	}
	return targetAbs, nil
}

// ResolveOrReject resolves path and, on failure, returns an ERROR
// ToolResultPart ready to return from a tool's Execute — folding path-safety
// directly into the same tri-state (OK/ERROR/REJECTED) result flow every
// tool body in this package already produces, instead of a bare error a
// caller has to wrap itself.
func (r Resolver) ResolveOrReject(path string) (string, *model.ToolResultPart) {
	resolved, err := r.Resolve(path)
	if err != nil {
		return "", &model.ToolResultPart{Status: model.ToolResultError, Message: model.TruncateMessage(err.Error())}
	}
	return resolved, nil
}
