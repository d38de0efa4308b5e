package service

import (
	"fmt"
	"os"
	"path/filepath"
)

// Workspace is the private scratch directory for one processing request. The
// uploaded PDF, rendered page images, and the processed output all live inside
// it, and Close removes the whole tree. Callers defer Close immediately after
// creation so cleanup runs on every exit path.
type Workspace struct {
	dir string
}

// NewWorkspace creates a fresh request-scoped temp directory.
func NewWorkspace() (*Workspace, error) {
	dir, err := os.MkdirTemp("", "ocrserve-*")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

// Dir is the workspace root.
func (w *Workspace) Dir() string { return w.dir }

// InputPath is where the uploaded PDF is persisted.
func (w *Workspace) InputPath() string { return filepath.Join(w.dir, "input.pdf") }

// OutputPath is where the text-layer-embedded PDF is written.
func (w *Workspace) OutputPath() string { return filepath.Join(w.dir, "output.pdf") }

// WriteInput persists the uploaded bytes as input.pdf.
func (w *Workspace) WriteInput(content []byte) error {
	if err := os.WriteFile(w.InputPath(), content, 0600); err != nil {
		return fmt.Errorf("persist upload: %w", err)
	}
	return nil
}

// Close removes the workspace and everything in it.
func (w *Workspace) Close() error {
	return os.RemoveAll(w.dir)
}
