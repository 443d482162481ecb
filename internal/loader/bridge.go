package loader

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Bridge is the capability table: externally-provided bindings exposed to
// executed module bodies by name. Modules reach capabilities only through
// require's short-circuit and the caps argument, never through ambient
// globals.
type Bridge struct {
	mu       sync.Mutex
	bindings map[string]Exports
	changed  chan struct{}
}

// NewBridge returns an empty capability bridge.
func NewBridge() *Bridge {
	return &Bridge{
		bindings: make(map[string]Exports),
		changed:  make(chan struct{}),
	}
}

// Register installs or replaces a named binding and wakes any waiter.
func (b *Bridge) Register(name string, binding Exports) {
	b.mu.Lock()
	b.bindings[name] = binding
	close(b.changed)
	b.changed = make(chan struct{})
	b.mu.Unlock()
}

// Lookup returns the binding for name, if registered.
func (b *Bridge) Lookup(name string) (Exports, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	binding, ok := b.bindings[name]
	return binding, ok
}

// Names returns all registered capability names, sorted.
func (b *Bridge) Names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.bindings))
	for name := range b.bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bindings returns a copy of the name→binding table for injection into a
// module body. The Exports values themselves are shared live references.
func (b *Bridge) Bindings() map[string]Exports {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]Exports, len(b.bindings))
	for name, binding := range b.bindings {
		out[name] = binding
	}
	return out
}

// Wait blocks until every named capability is registered or the context
// ends. Stages in the Loading state use this before compiling.
func (b *Bridge) Wait(ctx context.Context, names ...string) error {
	for {
		b.mu.Lock()
		var missing []string
		for _, name := range names {
			if _, ok := b.bindings[name]; !ok {
				missing = append(missing, name)
			}
		}
		ch := b.changed
		b.mu.Unlock()

		if len(missing) == 0 {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return fmt.Errorf("waiting for capabilities %v: %w", missing, ctx.Err())
		}
	}
}
