package registry

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch invalidates cached entries when their files change. It returns once
// the watches are in place; events are handled in a goroutine until ctx is
// done, after which the returned channel is closed.
//
// The schemas directory tree and the directory of the OpenAPI document are
// watched. Directories that do not exist are skipped.
func (r *Registry) Watch(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("registry: create watcher: %w", err)
	}

	dirs, err := r.watchDirs()
	if err != nil {
		watcher.Close()
		return nil, err
	}

	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("registry: watch %s: %w", dir, err)
		}
	}

	r.logger.Info("watching schemas", "dirs", dirs)

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				r.handleEvent(watcher, event)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.logger.Warn("schema watcher error", "error", err)
			}
		}
	}()

	return done, nil
}

func (r *Registry) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	// New subdirectories of the schemas tree are watched too.
	if event.Has(fsnotify.Create) && isDir(event.Name) {
		if err := watcher.Add(event.Name); err != nil {
			r.logger.Warn("schema watcher add", "dir", event.Name, "error", err)
		}
		return
	}

	if n := r.Invalidate(event.Name); n > 0 {
		r.logger.Info("schema cache invalidated", "file", event.Name, "op", event.Op.String(), "entries", n)
	}
}

func (r *Registry) watchDirs() ([]string, error) {
	seen := make(map[string]bool)
	var dirs []string

	add := func(dir string) {
		dir = absPath(dir)
		if !seen[dir] && isDir(dir) {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}

	if r.cfg.SchemasDir != "" && isDir(r.cfg.SchemasDir) {
		err := filepath.WalkDir(r.cfg.SchemasDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("registry: walk %s: %w", r.cfg.SchemasDir, err)
		}
	}

	if r.cfg.OpenAPIFile != "" {
		add(filepath.Dir(r.cfg.OpenAPIFile))
	}

	return dirs, nil
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
