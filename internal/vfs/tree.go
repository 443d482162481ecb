// Package vfs implements the editable source tree that ouro executes and
// regenerates. The tree maps absolute paths to script source text. It is
// owned jointly by the bootstrap supervisor (load/persist lifecycle) and the
// evolution engine (mutation lifecycle); CLI collaborators may issue direct
// single-path overwrites.
package vfs

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"ouro/internal/logging"
)

// BootPrefix marks boot-critical paths. Evolution may rewrite them but
// never delete them; losing a stage entry would brick the bootstrap chain.
const BootPrefix = "/boot/"

// Tree is the in-memory source tree. Insertion order is irrelevant; paths
// are unique and always begin with "/".
type Tree struct {
	mu        sync.RWMutex
	files     map[string]string
	observers []func(path string)
}

// New builds a tree from an initial path→content map. The map is copied.
func New(files map[string]string) *Tree {
	t := &Tree{files: make(map[string]string, len(files))}
	for p, c := range files {
		t.files[p] = c
	}
	return t
}

// Subscribe registers a mutation observer. Observers are invoked after each
// successful Write or Delete with the affected path. Registration may
// happen at any time, including while mutations are in flight.
func (t *Tree) Subscribe(fn func(path string)) {
	t.mu.Lock()
	t.observers = append(t.observers, fn)
	t.mu.Unlock()
}

// Read returns the content stored at path.
func (t *Tree) Read(path string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.files[path]
	return c, ok
}

// Has reports whether path exists in the tree.
func (t *Tree) Has(path string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.files[path]
	return ok
}

// Write stores content at path, creating or overwriting it. Writing
// content identical to what is already stored is a no-op and does not
// notify observers; a stage that rewrites its own inputs on every pass
// would otherwise recompile forever.
func (t *Tree) Write(path, content string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	t.mu.Lock()
	if existing, ok := t.files[path]; ok && existing == content {
		t.mu.Unlock()
		return nil
	}
	t.files[path] = content
	t.mu.Unlock()
	logging.VFSDebug("write %s (%d bytes)", path, len(content))
	t.notify(path)
	return nil
}

// Delete removes path from the tree. Deleting an absent path is a no-op.
func (t *Tree) Delete(path string) {
	t.mu.Lock()
	_, existed := t.files[path]
	delete(t.files, path)
	t.mu.Unlock()
	if existed {
		logging.VFSDebug("delete %s", path)
		t.notify(path)
	}
}

// Paths returns every path in the tree, sorted.
func (t *Tree) Paths() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	paths := make([]string, 0, len(t.files))
	for p := range t.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Snapshot returns a copy of the full path→content map.
func (t *Tree) Snapshot() map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snap := make(map[string]string, len(t.files))
	for p, c := range t.files {
		snap[p] = c
	}
	return snap
}

// Len returns the number of files in the tree.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.files)
}

// ReplaceAll swaps the entire tree content. Used when loading a persisted
// snapshot or performing a factory reset. Observers are not notified; the
// caller owns the follow-up recompile.
func (t *Tree) ReplaceAll(files map[string]string) {
	t.mu.Lock()
	t.files = make(map[string]string, len(files))
	for p, c := range files {
		t.files[p] = c
	}
	t.mu.Unlock()
	logging.VFS("tree replaced: %d files", len(files))
}

func (t *Tree) notify(path string) {
	t.mu.RLock()
	observers := make([]func(string), len(t.observers))
	copy(observers, t.observers)
	t.mu.RUnlock()
	for _, fn := range observers {
		fn(path)
	}
}

// IsBootCritical reports whether path carries the reserved boot prefix.
func IsBootCritical(path string) bool {
	return strings.HasPrefix(path, BootPrefix)
}

// ValidatePath checks that a path is absolute and non-empty.
func ValidatePath(path string) error {
	if path == "" || !strings.HasPrefix(path, "/") {
		return fmt.Errorf("invalid path %q: must be absolute", path)
	}
	return nil
}
