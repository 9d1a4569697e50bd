package resolver

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"instafetch/internal"
	"instafetch/utils"
)

// DirWorkspaceManager allocates a uniquely named scratch directory per
// resolution attempt under the storage root. The engine never deletes a
// workspace; the caller owns cleanup once the files have been consumed.
type DirWorkspaceManager struct {
	root    string
	fileOps *utils.FileOperations
}

// NewWorkspaceManager creates a workspace manager rooted at root.
func NewWorkspaceManager(root string) *DirWorkspaceManager {
	return &DirWorkspaceManager{
		root:    root,
		fileOps: utils.NewFileOperations(),
	}
}

// Create allocates a fresh workspace directory.
func (m *DirWorkspaceManager) Create() (*internal.Workspace, error) {
	id := uuid.New().String()
	path, err := filepath.Abs(filepath.Join(m.root, id))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace path: %w", err)
	}
	if err := m.fileOps.EnsureDir(path); err != nil {
		return nil, fmt.Errorf("failed to create workspace directory: %w", err)
	}
	return &internal.Workspace{ID: id, Path: path}, nil
}
