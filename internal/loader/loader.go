package loader

import (
	"fmt"

	"ouro/internal/logging"
	"ouro/internal/vfs"
)

// DialectScript names the only module dialect the transpiler accepts.
const DialectScript = "ouro-script"

// CellStatus tracks a module cell's lifecycle within one pass.
type CellStatus int

const (
	CellPending CellStatus = iota
	CellReady
)

func (s CellStatus) String() string {
	if s == CellReady {
		return "ready"
	}
	return "pending"
}

// Cell is the per-pass cache entry for one resolved module path. The
// exports map is created before execution so re-entrant requires during a
// circular import observe the same, partially-populated reference.
type Cell struct {
	Path    string
	Status  CellStatus
	Exports Exports
}

// CompileError reports a transpile or evaluation failure for one module.
type CompileError struct {
	Path string
	Err  error
}

func (e *CompileError) Error() string { return fmt.Sprintf("compile %s: %v", e.Path, e.Err) }
func (e *CompileError) Unwrap() error { return e.Err }

// ExecError reports a runtime failure inside an executing module body.
type ExecError struct {
	Path string
	Err  error
}

func (e *ExecError) Error() string { return fmt.Sprintf("execute %s: %v", e.Path, e.Err) }
func (e *ExecError) Unwrap() error { return e.Err }

// Loader compiles and runs modules out of the source tree. Its cell
// registry is session-scoped: one registry per bootstrap pass, discarded
// wholesale on recompilation, never a process-wide singleton.
type Loader struct {
	tree       *vfs.Tree
	transpiler Transpiler
	executor   Executor
	bridge     *Bridge
	cells      map[string]*Cell
}

// New creates a loader over the given tree with a fresh cell registry.
func New(tree *vfs.Tree, transpiler Transpiler, executor Executor, bridge *Bridge) *Loader {
	return &Loader{
		tree:       tree,
		transpiler: transpiler,
		executor:   executor,
		bridge:     bridge,
		cells:      make(map[string]*Cell),
	}
}

// Load returns the exports of the module at the resolved path, compiling
// and executing it on first use within this pass. A cell that already
// exists is returned immediately, even while pending, which is what lets
// circular imports terminate with a shared exports reference instead of
// re-executing or deadlocking.
func (l *Loader) Load(path string) (Exports, error) {
	if cell, ok := l.cells[path]; ok {
		return cell.Exports, nil
	}

	content, ok := l.tree.Read(path)
	if !ok {
		return nil, &ModuleNotFoundError{Importer: path, Specifier: path, ResolvedBase: path}
	}

	timer := logging.StartTimer(logging.CategoryLoader, "load "+path)
	defer timer.Stop()

	cell := &Cell{Path: path, Status: CellPending, Exports: Exports{}}
	l.cells[path] = cell

	opts := TransformOptions{Filename: path, Dialect: DialectScript}
	compiled, err := l.transpiler.Transform(content, opts)
	if err != nil {
		logging.LoaderError("transform failed: %v", err)
		return nil, &CompileError{Path: path, Err: err}
	}

	if err := l.executor.Execute(compiled, opts, l.requireFrom(path), cell.Exports, l.bridge.Bindings()); err != nil {
		logging.LoaderError("execute failed: %v", err)
		return nil, err
	}

	cell.Status = CellReady
	logging.LoaderDebug("cell ready: %s (%d exports)", path, len(cell.Exports))
	return cell.Exports, nil
}

// requireFrom builds the require function injected into the module at
// importer. Capability names short-circuit to the bridge without touching
// the tree. Resolution or load failures panic; the executor converts the
// panic into the single diagnostic that aborts the pass.
func (l *Loader) requireFrom(importer string) func(string) Exports {
	return func(specifier string) Exports {
		if binding, ok := l.bridge.Lookup(specifier); ok {
			return binding
		}
		resolved, err := Resolve(l.tree, importer, specifier)
		if err != nil {
			panic(err)
		}
		exports, err := l.Load(resolved)
		if err != nil {
			panic(err)
		}
		return exports
	}
}

// CellCount returns the number of cells in the current registry.
func (l *Loader) CellCount() int {
	return len(l.cells)
}

// Cell returns the registry entry for path, if one exists.
func (l *Loader) Cell(path string) (*Cell, bool) {
	c, ok := l.cells[path]
	return c, ok
}
