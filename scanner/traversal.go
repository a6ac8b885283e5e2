package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"unravel/logger"
	"unravel/utils"
)

type walker interface {
	Walk(ctx context.Context, startPath string, fn fs.WalkDirFunc) error
}

// fastWalker walks a directory tree with an explicit stack instead of
// recursion.
type fastWalker struct{}

func (w fastWalker) Walk(ctx context.Context, startPath string, fn fs.WalkDirFunc) error {
	info, err := os.Stat(startPath)
	if err != nil {
		return fn(startPath, nil, err)
	}
	root := fs.FileInfoToDirEntry(info)
	type item struct {
		path  string
		entry fs.DirEntry
	}
	stack := []item{{path: startPath, entry: root}}
	for len(stack) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if err := fn(current.path, current.entry, nil); err != nil {
			if err == fs.SkipDir {
				continue
			}
			return err
		}
		if !current.entry.IsDir() {
			continue
		}

		entries, err := os.ReadDir(current.path)
		if err != nil {
			if ferr := fn(current.path, current.entry, err); ferr != nil && ferr != fs.SkipDir {
				return ferr
			}
			continue
		}
		for i := range entries {
			child := entries[i]
			stack = append(stack, item{
				path:  filepath.Join(current.path, child.Name()),
				entry: child,
			})
		}
	}
	return nil
}

// rootInput is one top-level file of a session.
type rootInput struct {
	path string // tree path
	file string // location on disk
	size int64
}

// collectInputs expands the configured inputs into top-level files. Files
// inside directory inputs are filtered by the include and exclude patterns
// and keep their path relative to the directory. Tree paths are made unique
// in input order.
func collectInputs(ctx context.Context, inputs []string, matcher *utils.PatternMatcher) ([]rootInput, error) {
	var w walker = fastWalker{}
	namer := utils.NewNamer(unpackSuffix)
	var roots []rootInput
	for _, input := range inputs {
		info, err := os.Stat(input)
		if err != nil {
			logger.Warnf("Failed to access %s: %v", input, err)
			continue
		}
		if !info.IsDir() {
			if !info.Mode().IsRegular() {
				logger.Warnf("Skipping %s: not a regular file", input)
				continue
			}
			roots = append(roots, rootInput{path: namer.Unique(filepath.Base(input)), file: input, size: info.Size()})
			continue
		}

		base := filepath.Base(filepath.Clean(input))
		var found []rootInput
		err = w.Walk(ctx, input, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				logger.Warnf("Failed to access %s: %v", path, err)
				return nil
			}
			if d == nil || d.IsDir() || !d.Type().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(input, path)
			if err != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)
			if !matcher.ShouldInclude(rel) {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				logger.Warnf("Failed to stat %s: %v", path, err)
				return nil
			}
			found = append(found, rootInput{path: base + "/" + rel, file: path, size: info.Size()})
			return nil
		})
		if err != nil {
			return nil, err
		}
		sort.Slice(found, func(i, j int) bool { return found[i].path < found[j].path })
		for _, f := range found {
			f.path = namer.Unique(f.path)
			roots = append(roots, f)
		}
	}
	return roots, nil
}
