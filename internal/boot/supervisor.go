// Package boot runs the staged bootstrap chain. The native binary seeds or
// restores the tree, then each stage entry is compiled with a fresh cell
// registry and handed control. Any tree mutation schedules a debounced
// recompile of the whole chain, which is how the system picks up its own
// edits.
package boot

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"ouro/internal/evolve"
	"ouro/internal/loader"
	"ouro/internal/logging"
	"ouro/internal/store"
	"ouro/internal/vfs"
)

// ErrEvolutionBusy is returned when an evolution is requested while a
// previous one is still in flight. The engine itself is not reentrant-safe;
// the supervisor is the gatekeeper.
var ErrEvolutionBusy = fmt.Errorf("evolution already in progress")

// entryFunc is the shape every stage entry must export under "main".
type entryFunc = func(map[string]interface{})

// Options configures a Supervisor. Tree, Transpiler and Executor are
// required. Store and Engine may be nil: without a store nothing persists,
// without an engine the evolve callbacks report the service as unavailable.
type Options struct {
	Tree       *vfs.Tree
	Store      *store.SnapshotStore
	Transpiler loader.Transpiler
	Executor   loader.Executor
	Engine     *evolve.Engine

	OSEntry        string
	AppEntry       string
	RecompileDelay time.Duration

	// Requires lists capability names each stage waits for before
	// compiling. Defaults to the log capability.
	Requires []string

	// OnDiagnostic receives stage failures. Defaults to the boot log.
	OnDiagnostic func(stage string, err error)
}

// Supervisor owns the bootstrap chain lifecycle: restore-or-seed, staged
// compile/execute passes, persistence on mutation, and the debounced
// recompile loop.
type Supervisor struct {
	tree   *vfs.Tree
	snaps  *store.SnapshotStore
	bridge *loader.Bridge
	trans  loader.Transpiler
	exec   loader.Executor
	engine *evolve.Engine

	stages   []*Stage
	delay    time.Duration
	diagnose func(stage string, err error)

	mu        sync.Mutex // guards stage state and chain passes
	timerMu   sync.Mutex
	recompile *time.Timer
	passes    atomic.Int64
	busy      atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewSupervisor(opts Options) (*Supervisor, error) {
	if opts.Tree == nil || opts.Transpiler == nil || opts.Executor == nil {
		return nil, fmt.Errorf("supervisor requires tree, transpiler and executor")
	}
	if opts.OSEntry == "" {
		opts.OSEntry = "/boot/os.go"
	}
	if opts.AppEntry == "" {
		opts.AppEntry = "/boot/app.go"
	}
	if opts.RecompileDelay <= 0 {
		opts.RecompileDelay = 50 * time.Millisecond
	}
	requires := opts.Requires
	if requires == nil {
		requires = []string{"log"}
	}
	diagnose := opts.OnDiagnostic
	if diagnose == nil {
		diagnose = func(stage string, err error) {
			logging.BootError("stage %s failed: %v", stage, err)
		}
	}
	s := &Supervisor{
		tree:     opts.Tree,
		snaps:    opts.Store,
		bridge:   loader.NewBridge(),
		trans:    opts.Transpiler,
		exec:     opts.Executor,
		engine:   opts.Engine,
		delay:    opts.RecompileDelay,
		diagnose: diagnose,
		stages: []*Stage{
			{Name: "os", Entry: opts.OSEntry, Requires: requires},
			{Name: "app", Entry: opts.AppEntry, Requires: requires},
		},
	}
	return s, nil
}

// Bridge exposes the capability bridge so the host can register native
// bindings before Start.
func (s *Supervisor) Bridge() *loader.Bridge { return s.bridge }

// Tree returns the live source tree.
func (s *Supervisor) Tree() *vfs.Tree { return s.tree }

// Start restores the persisted tree (or seeds a fresh one), subscribes to
// mutations, and runs the first chain pass. It returns after the pass
// completes; stage entries are expected to register callbacks and return
// rather than block.
func (s *Supervisor) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if err := s.restore(); err != nil {
		return err
	}
	s.tree.Subscribe(s.afterMutation)
	s.runChain()
	return nil
}

// Stop cancels pending recompiles. In-flight passes finish on their own.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.timerMu.Lock()
	if s.recompile != nil {
		s.recompile.Stop()
	}
	s.timerMu.Unlock()
}

func (s *Supervisor) restore() error {
	if s.snaps != nil {
		files, ok, err := s.snaps.Load()
		if err != nil {
			return fmt.Errorf("failed to load snapshot: %w", err)
		}
		if ok {
			s.tree.ReplaceAll(files)
			logging.Boot("restored tree from snapshot: %d files", len(files))
			return nil
		}
	}
	s.tree.ReplaceAll(vfs.Seed())
	logging.Boot("seeded fresh tree: %d files", s.tree.Len())
	return nil
}

// runChain compiles and runs every stage in order with a fresh cell
// registry. A stage failure stops the chain; earlier stages keep running.
func (s *Supervisor) runChain() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.passes.Add(1)
	timer := logging.StartTimer(logging.CategoryBoot, "chain pass")
	defer timer.Stop()

	ld := loader.New(s.tree, s.trans, s.exec, s.bridge)
	for _, st := range s.stages {
		if err := s.runStage(ld, st); err != nil {
			st.state = StageFailed
			st.err = err
			s.diagnose(st.Name, err)
			return
		}
		st.state = StageRunning
		st.err = nil
		logging.Boot("stage %s running (%s)", st.Name, st.Entry)
	}
}

func (s *Supervisor) runStage(ld *loader.Loader, st *Stage) (err error) {
	st.state = StageLoading
	st.err = nil
	if len(st.Requires) > 0 {
		if err := s.bridge.Wait(s.ctx, st.Requires...); err != nil {
			return fmt.Errorf("failed to acquire capabilities %v: %w", st.Requires, err)
		}
	}

	st.state = StageCompiling
	exports, err := ld.Load(st.Entry)
	if err != nil {
		return err
	}
	main, ok := exports["main"].(entryFunc)
	if !ok {
		return fmt.Errorf("entry %s does not export main as func(map[string]interface{})", st.Entry)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage %s panicked: %v", st.Name, r)
		}
	}()
	main(s.handoff(st))
	return nil
}

// handoff builds the capability map passed to a stage entry. Scripts hold
// live references into the supervisor, so every callback is safe to call
// from inside a chain pass.
func (s *Supervisor) handoff(st *Stage) map[string]interface{} {
	return map[string]interface{}{
		"stage": st.Name,
		"paths": func() []string { return s.tree.Paths() },
		"read": func(path string) (string, bool) {
			return s.tree.Read(path)
		},
		"write": func(path, content string) error {
			return s.tree.Write(path, content)
		},
		"evolve": func(goal, path string) error {
			_, err := s.EvolveSingle(context.Background(), goal, path)
			return err
		},
	}
}

// afterMutation persists the tree and schedules a debounced recompile. A
// failed save degrades to a warning; the in-memory tree stays authoritative.
func (s *Supervisor) afterMutation(path string) {
	if s.snaps != nil {
		if err := s.snaps.Save(s.tree.Snapshot()); err != nil {
			logging.StoreWarn("snapshot save failed after %s: %v", path, err)
		}
	}
	s.scheduleRecompile()
}

func (s *Supervisor) scheduleRecompile() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.recompile != nil {
		s.recompile.Stop()
	}
	s.recompile = time.AfterFunc(s.delay, func() {
		if s.ctx != nil && s.ctx.Err() != nil {
			return
		}
		logging.BootDebug("recompiling chain after mutation")
		s.runChain()
	})
}

// EvolveSingle runs one single-target evolution through the engine. Only
// one evolution may be in flight at a time.
func (s *Supervisor) EvolveSingle(ctx context.Context, goal, targetPath string) (vfs.EditAction, error) {
	if s.engine == nil {
		return vfs.EditAction{}, fmt.Errorf("code service not configured")
	}
	if !s.busy.CompareAndSwap(false, true) {
		return vfs.EditAction{}, ErrEvolutionBusy
	}
	defer s.busy.Store(false)
	return s.engine.EvolveSingle(ctx, goal, targetPath)
}

// EvolveMulti runs one multi-target evolution through the engine.
func (s *Supervisor) EvolveMulti(ctx context.Context, goal, contextPath string) ([]vfs.Replacement, error) {
	if s.engine == nil {
		return nil, fmt.Errorf("code service not configured")
	}
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrEvolutionBusy
	}
	defer s.busy.Store(false)
	return s.engine.EvolveMulti(ctx, goal, contextPath)
}

// FactoryReset wipes persisted state, reinstalls the seed tree and reboots
// the chain. This is the only recovery action for a bricked boot stage.
func (s *Supervisor) FactoryReset() error {
	if s.snaps != nil {
		if err := s.snaps.Reset(); err != nil {
			return fmt.Errorf("failed to reset snapshot store: %w", err)
		}
	}
	s.tree.ReplaceAll(vfs.Seed())
	logging.Boot("factory reset: seed tree reinstalled")
	s.runChain()
	return nil
}

// Stages returns a snapshot of each stage's state in chain order.
func (s *Supervisor) Stages() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Status, len(s.stages))
	for i, st := range s.stages {
		out[i] = st.status()
	}
	return out
}

// Passes reports how many chain passes have run. Useful for callers that
// need to observe the debounced recompile.
func (s *Supervisor) Passes() int64 { return s.passes.Load() }
