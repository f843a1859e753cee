package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Local stores images on the filesystem under <root>/images.
type Local struct {
	dir string
}

// NewLocal creates the image directory under root if needed.
func NewLocal(root string) (*Local, error) {
	dir := filepath.Join(root, "images")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image directory: %w", err)
	}
	return &Local{dir: dir}, nil
}

func (l *Local) path(ref string) (string, error) {
	cleaned, err := CleanRef(ref)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.dir, filepath.FromSlash(cleaned)), nil
}

// Save writes data to a new file and returns its reference.
func (l *Local) Save(ctx context.Context, data []byte, contentType string) (string, error) {
	ref, err := NewRef(contentType)
	if err != nil {
		return "", err
	}
	p, err := l.path(ref)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("create image directory: %w", err)
	}

	// Write to a temp file first so a crash never leaves a truncated image.
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("write image: %w", err)
	}
	return ref, nil
}

// Open returns the stored image.
func (l *Local) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	p, err := l.path(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrImageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	return f, nil
}

// Delete removes the stored image.
func (l *Local) Delete(ctx context.Context, ref string) error {
	p, err := l.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete image: %w", err)
	}
	return nil
}
