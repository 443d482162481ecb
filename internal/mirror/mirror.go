// Package mirror keeps a plain directory in sync with the source tree so
// the files can be inspected and edited with ordinary tools. Tree
// mutations flow out to disk; disk edits flow back in through the
// supervisor's write path, which triggers the usual recompile.
package mirror

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"ouro/internal/logging"
	"ouro/internal/vfs"
)

// Options wires a Mirror to the live system. Write and Delete route disk
// edits through the supervisor so persistence and recompile happen
// exactly as for any other mutation.
type Options struct {
	Directory string
	Tree      *vfs.Tree
	Write     func(path, content string) error
	Delete    func(path string)
}

type Mirror struct {
	dir    string
	tree   *vfs.Tree
	write  func(path, content string) error
	remove func(path string)

	watcher *fsnotify.Watcher
	mu      sync.Mutex
	closed  bool
}

func New(opts Options) (*Mirror, error) {
	if opts.Directory == "" || opts.Tree == nil || opts.Write == nil {
		return nil, fmt.Errorf("mirror requires directory, tree and write callback")
	}
	remove := opts.Delete
	if remove == nil {
		remove = func(string) {}
	}
	return &Mirror{
		dir:    opts.Directory,
		tree:   opts.Tree,
		write:  opts.Write,
		remove: remove,
	}, nil
}

// Start exports the current tree, begins watching the directory, and
// subscribes to tree mutations. It returns once the initial export is on
// disk; the watch loop runs until ctx is cancelled.
func (m *Mirror) Start(ctx context.Context) error {
	if err := m.exportAll(); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	m.watcher = w
	if err := m.watchDirs(); err != nil {
		w.Close()
		return err
	}

	m.tree.Subscribe(func(path string) {
		if err := m.exportPath(path); err != nil {
			logging.MirrorWarn("export of %s failed: %v", path, err)
		}
	})

	go m.loop(ctx)
	logging.Mirror("mirroring tree to %s", m.dir)
	return nil
}

// Close stops the watcher. Safe to call more than once.
func (m *Mirror) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.watcher == nil {
		return nil
	}
	m.closed = true
	return m.watcher.Close()
}

// exportAll writes every tree file to disk concurrently.
func (m *Mirror) exportAll() error {
	snap := m.tree.Snapshot()
	g := new(errgroup.Group)
	g.SetLimit(8)
	for p, c := range snap {
		p, c := p, c
		g.Go(func() error {
			return m.writeDisk(p, c)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to export tree: %w", err)
	}
	logging.MirrorDebug("exported %d files", len(snap))
	return nil
}

func (m *Mirror) exportPath(path string) error {
	content, ok := m.tree.Read(path)
	if !ok {
		disk := m.diskPath(path)
		if err := os.Remove(disk); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	return m.writeDisk(path, content)
}

func (m *Mirror) writeDisk(path, content string) error {
	disk := m.diskPath(path)
	if existing, err := os.ReadFile(disk); err == nil && string(existing) == content {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(disk), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(disk, []byte(content), 0o644); err != nil {
		return err
	}
	// New subdirectories need their own watch.
	if m.watcher != nil {
		_ = m.watcher.Add(filepath.Dir(disk))
	}
	return nil
}

// watchDirs registers the mirror root and every subdirectory. fsnotify
// does not recurse on its own.
func (m *Mirror) watchDirs() error {
	return filepath.WalkDir(m.dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := m.watcher.Add(p); err != nil {
				return fmt.Errorf("failed to watch %s: %w", p, err)
			}
		}
		return nil
	})
}

func (m *Mirror) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.Close()
			return
		case ev, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			m.handleEvent(ev)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			logging.MirrorWarn("watcher error: %v", err)
		}
	}
}

func (m *Mirror) handleEvent(ev fsnotify.Event) {
	name := filepath.Base(ev.Name)
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") {
		return
	}

	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = m.watcher.Add(ev.Name)
			return
		}
	}

	treePath, ok := m.treePath(ev.Name)
	if !ok {
		return
	}

	switch {
	case ev.Op&(fsnotify.Write|fsnotify.Create) != 0:
		data, err := os.ReadFile(ev.Name)
		if err != nil {
			return
		}
		content := string(data)
		if current, exists := m.tree.Read(treePath); exists && current == content {
			return
		}
		logging.MirrorDebug("importing disk edit: %s", treePath)
		if err := m.write(treePath, content); err != nil {
			logging.MirrorWarn("rejected disk edit %s: %v", treePath, err)
		}
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		if vfs.IsBootCritical(treePath) {
			// Boot entries must survive; restore the file on disk.
			logging.MirrorWarn("refusing to delete boot-critical %s, restoring", treePath)
			if content, exists := m.tree.Read(treePath); exists {
				_ = m.writeDisk(treePath, content)
			}
			return
		}
		if m.tree.Has(treePath) {
			logging.MirrorDebug("importing disk delete: %s", treePath)
			m.remove(treePath)
		}
	}
}

func (m *Mirror) diskPath(treePath string) string {
	return filepath.Join(m.dir, filepath.FromSlash(strings.TrimPrefix(treePath, "/")))
}

func (m *Mirror) treePath(diskPath string) (string, bool) {
	rel, err := filepath.Rel(m.dir, diskPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return "/" + filepath.ToSlash(rel), true
}
