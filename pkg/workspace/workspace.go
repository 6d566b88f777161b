// Package workspace manages the per-run scratch directory.
//
// Every pipeline run owns exactly one workspace; it is created at process
// start and removed on every exit path, normal or fatal. Partial state inside
// the workspace is acceptable because the whole directory is discarded as a
// unit. Nothing outside the toolchain, build, and download caches survives
// a run.
package workspace

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Workspace is a scratch directory owned by a single pipeline run.
type Workspace struct {
	Dir string
	ID  string
}

// New creates a scratch workspace under parent (os.TempDir when empty).
func New(parent string) (*Workspace, error) {
	if parent == "" {
		parent = os.TempDir()
	}

	id := uuid.NewString()[:8]
	dir := filepath.Join(parent, "elrepack-"+id)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	return &Workspace{Dir: dir, ID: id}, nil
}

// Path returns a path inside the workspace.
func (w *Workspace) Path(elem ...string) string {
	return filepath.Join(append([]string{w.Dir}, elem...)...)
}

// Mkdir creates a subdirectory inside the workspace and returns its path.
func (w *Workspace) Mkdir(elem ...string) (string, error) {
	p := w.Path(elem...)
	if err := os.MkdirAll(p, 0755); err != nil {
		return "", err
	}
	return p, nil
}

// Close removes the workspace and everything inside it.
func (w *Workspace) Close() error {
	return os.RemoveAll(w.Dir)
}
