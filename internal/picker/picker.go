// Package picker stands in for the desktop "open file" dialog: it offers the
// EPUB files found under a configured import directory.
package picker

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Picker returns candidate book paths for the user to choose from.
type Picker interface {
	Pick(ctx context.Context) ([]string, error)
}

// DirPicker lists .epub files beneath Root.
type DirPicker struct {
	Root string
}

// NewDirPicker returns a picker rooted at root.
func NewDirPicker(root string) *DirPicker {
	return &DirPicker{Root: root}
}

// Pick walks Root recursively and returns absolute .epub paths in lexical
// order. A missing root yields an empty result; unreadable subdirectories are
// skipped.
func (p *DirPicker) Pick(ctx context.Context) ([]string, error) {
	root := strings.TrimSpace(p.Root)
	if root == "" {
		return []string{}, nil
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}

	paths := []string{}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return walkErr
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && strings.EqualFold(filepath.Ext(d.Name()), ".epub") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}
