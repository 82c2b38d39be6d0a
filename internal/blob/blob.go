// Package blob abstracts attachment byte storage. The sync core treats
// upload and download as opaque calls keyed by a path string; the default
// implementation is a local directory, with remote object stores plugged in
// behind the same interface.
package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Storage stores and retrieves attachment bytes by opaque path.
type Storage interface {
	Upload(ctx context.Context, path string, r io.Reader) error
	Download(ctx context.Context, path string, w io.Writer) error
	Remove(ctx context.Context, path string) error
}

// FS is a Storage backed by a local directory tree.
type FS struct {
	root string
}

// NewFS creates directory-backed blob storage rooted at root.
func NewFS(root string) (*FS, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob root: %w", err)
	}
	return &FS{root: root}, nil
}

// resolve maps an opaque blob path onto the root, rejecting escapes.
func (f *FS) resolve(path string) (string, error) {
	clean := filepath.Clean("/" + path)
	if strings.Contains(clean, "..") {
		return "", fmt.Errorf("invalid blob path %q", path)
	}
	return filepath.Join(f.root, clean), nil
}

func (f *FS) Upload(ctx context.Context, path string, r io.Reader) error {
	dst, err := f.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create blob directory: %w", err)
	}
	file, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create blob file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, r); err != nil {
		return fmt.Errorf("failed to write blob %s: %w", path, err)
	}
	return nil
}

func (f *FS) Download(ctx context.Context, path string, w io.Writer) error {
	src, err := f.resolve(path)
	if err != nil {
		return err
	}
	file, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open blob %s: %w", path, err)
	}
	defer file.Close()

	if _, err := io.Copy(w, file); err != nil {
		return fmt.Errorf("failed to read blob %s: %w", path, err)
	}
	return nil
}

func (f *FS) Remove(ctx context.Context, path string) error {
	target, err := f.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove blob %s: %w", path, err)
	}
	return nil
}
