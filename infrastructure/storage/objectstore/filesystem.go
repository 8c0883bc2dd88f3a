package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ahrav/go-verity/internal/ports"
)

// Filesystem implements ports.ObjectStore over a local directory. Paths
// cannot escape the directory.
type Filesystem struct {
	root    *os.Root
	maxSize int64
}

// NewFilesystem opens dir as the store root.
func NewFilesystem(dir string) (*Filesystem, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("open storage root: %w", err)
	}
	return &Filesystem{root: root, maxSize: DefaultMaxObjectSize}, nil
}

// Download implements ports.ObjectStore.
func (f *Filesystem) Download(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, ports.NewObjectStoreError("filesystem", path, err)
	}

	name := filepath.FromSlash(strings.TrimPrefix(path, "/"))
	file, err := f.root.Open(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ports.NewObjectStoreError("filesystem", path, ports.ErrObjectNotFound)
	}
	if err != nil {
		return nil, ports.NewObjectStoreError("filesystem", path, err)
	}
	defer file.Close()

	return readLimited(file, f.maxSize, "filesystem", path)
}

// Close releases the root directory handle.
func (f *Filesystem) Close() error {
	return f.root.Close()
}

var _ ports.ObjectStore = (*Filesystem)(nil)
