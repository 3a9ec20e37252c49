package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DirDestination writes objects below a local directory.
type DirDestination struct {
	root string
}

func NewDirDestination(root string) *DirDestination {
	return &DirDestination{root: root}
}

func (d *DirDestination) Put(_ context.Context, key string, body io.Reader, _ int64) error {
	target := filepath.Join(d.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}
	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", target, err)
	}
	return f.Close()
}
