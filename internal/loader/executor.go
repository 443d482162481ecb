package loader

// Module bodies run in a yaegi interpreter instead of being compiled with
// `go build`. This keeps execution of the mutable tree in-process, free of
// dependency resolution, and able to share live Go values (the capability
// bridge, the exports maps) with the host.

import (
	"fmt"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// moduleFunc is the calling convention every transpiled body satisfies.
type moduleFunc = func(func(string) map[string]interface{}, map[string]interface{}, map[string]map[string]interface{})

// Executor runs a compiled module body with its injected environment.
type Executor interface {
	Execute(compiled string, opts TransformOptions, require func(string) Exports, exports Exports, caps map[string]Exports) error
}

// YaegiExecutor evaluates compiled bodies in a fresh interpreter per
// module. There is no preemption: a non-terminating body blocks the whole
// pass. The preview boundary is the hardened path with a time budget.
type YaegiExecutor struct{}

// NewYaegiExecutor creates a yaegi-backed module executor.
func NewYaegiExecutor() *YaegiExecutor {
	return &YaegiExecutor{}
}

// Execute evaluates the compiled source, extracts ModuleBody, and invokes
// it. Evaluation errors are compile failures; a panic during the body is a
// runtime failure. Both abort the in-progress pass.
func (e *YaegiExecutor) Execute(compiled string, opts TransformOptions, require func(string) Exports, exports Exports, caps map[string]Exports) (err error) {
	i := interp.New(interp.Options{})
	if uerr := i.Use(stdlib.Symbols); uerr != nil {
		return fmt.Errorf("failed to load stdlib symbols: %w", uerr)
	}

	if _, eerr := i.Eval(compiled); eerr != nil {
		return &CompileError{Path: opts.Filename, Err: eerr}
	}

	v, eerr := i.Eval("main.ModuleBody")
	if eerr != nil {
		return &CompileError{Path: opts.Filename, Err: fmt.Errorf("module body not found: %w", eerr)}
	}
	fn, ok := v.Interface().(moduleFunc)
	if !ok {
		return &CompileError{Path: opts.Filename, Err: fmt.Errorf("module body has unexpected signature")}
	}

	defer func() {
		if r := recover(); r != nil {
			if perr, isErr := r.(error); isErr {
				err = &ExecError{Path: opts.Filename, Err: perr}
			} else {
				err = &ExecError{Path: opts.Filename, Err: fmt.Errorf("%v", r)}
			}
		}
	}()
	fn(require, exports, caps)
	return nil
}
