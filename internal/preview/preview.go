// Package preview runs a candidate tree to completion without letting it
// touch the live system. Unlike the live loader, which compiles lazily and
// cannot be preempted, the preview bundles the whole tree eagerly into one
// program and runs it under a time budget with panic containment.
package preview

import (
	"context"
	"fmt"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"ouro/internal/loader"
	"ouro/internal/logging"
	"ouro/internal/vfs"
)

// Options configures one preview run.
type Options struct {
	// Entry is the module whose exported main drives the run.
	Entry string

	// Timeout bounds the whole run, bundle evaluation included.
	Timeout time.Duration

	// Capabilities names the bridge bindings the bundle may see. Anything
	// not listed is withheld.
	Capabilities []string
}

// Result reports what a completed run did.
type Result struct {
	Modules int
	Elapsed time.Duration
}

type runBundleFunc = func(map[string]map[string]interface{})

// Run bundles the tree and executes it in an isolated interpreter. The
// tree is snapshotted up front; nothing the bundle does can mutate it.
func Run(ctx context.Context, tree *vfs.Tree, bridge *loader.Bridge, opts Options) (Result, error) {
	if opts.Entry == "" {
		opts.Entry = "/boot/app.go"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}

	files := tree.Snapshot()
	bundle, err := buildBundle(files, opts.Entry, AllowedImports())
	if err != nil {
		return Result{}, err
	}
	logging.PreviewDebug("bundled %d modules for %s", len(files), opts.Entry)

	caps := filterCaps(bridge, opts.Capabilities)

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- evalBundle(bundle, caps)
	}()

	select {
	case err := <-done:
		elapsed := time.Since(start)
		if err != nil {
			return Result{}, err
		}
		logging.Preview("run completed in %s (%d modules)", elapsed, len(files))
		return Result{Modules: len(files), Elapsed: elapsed}, nil
	case <-ctx.Done():
		// The interpreter goroutine is abandoned; yaegi offers no
		// preemption. The bundle holds no live references, so it can
		// do nothing but burn cycles until it returns.
		return Result{}, fmt.Errorf("preview timed out after %s: %w", opts.Timeout, ctx.Err())
	}
}

func evalBundle(bundle string, caps map[string]loader.Exports) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("preview panicked: %v", r)
		}
	}()

	i := interp.New(interp.Options{})
	if uerr := i.Use(stdlib.Symbols); uerr != nil {
		return fmt.Errorf("failed to load stdlib symbols: %w", uerr)
	}
	if _, eerr := i.Eval(bundle); eerr != nil {
		return fmt.Errorf("failed to compile bundle: %w", eerr)
	}
	v, eerr := i.Eval("main.RunBundle")
	if eerr != nil {
		return fmt.Errorf("bundle runner not found: %w", eerr)
	}
	run, ok := v.Interface().(runBundleFunc)
	if !ok {
		return fmt.Errorf("bundle runner has unexpected signature")
	}
	run(caps)
	return nil
}

// filterCaps passes through only the named bridge bindings.
func filterCaps(bridge *loader.Bridge, names []string) map[string]loader.Exports {
	caps := make(map[string]loader.Exports, len(names))
	if bridge == nil {
		return caps
	}
	for _, name := range names {
		if binding, ok := bridge.Lookup(name); ok {
			caps[name] = binding
		}
	}
	return caps
}
