package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// FileOperations provides file system utilities
type FileOperations struct{}

// NewFileOperations creates a new FileOperations instance
func NewFileOperations() *FileOperations {
	return &FileOperations{}
}

// EnsureDir creates the directory (and parents) if it doesn't exist
func (f *FileOperations) EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}

// FileExists checks if a file exists
func (f *FileOperations) FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// NonEmptyFile reports whether path is a regular file with non-zero size.
// Strategies must never report success with phantom or empty files.
func (f *FileOperations) NonEmptyFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// GetFileSize returns the size of a file
func (f *FileOperations) GetFileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// WriteTextFile writes a UTF-8 text file, creating parent directories as needed.
func (f *FileOperations) WriteTextFile(path, content string) error {
	if err := f.EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ListFiles returns the absolute paths of regular files directly inside
// dir, ordered by modification time (oldest first).
func (f *FileOperations) ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	type fileInfo struct {
		path    string
		modTime int64
	}

	files := make([]fileInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{
			path:    filepath.Join(dir, entry.Name()),
			modTime: info.ModTime().UnixNano(),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].modTime < files[j].modTime })

	paths := make([]string, len(files))
	for i, fi := range files {
		paths[i] = fi.path
	}
	return paths, nil
}
