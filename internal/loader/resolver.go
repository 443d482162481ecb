// Package loader implements ouro's self-hosted module loader/executor: it
// resolves import specifiers against the source tree, compiles module
// bodies through a transpiler, and executes them in a yaegi interpreter
// with injected capability bindings.
package loader

import (
	"fmt"
	"path"

	"ouro/internal/vfs"
)

// Exports is the value surface a module exposes. It is an alias so script
// code declared as map[string]interface{} type-asserts cleanly across the
// interpreter boundary.
type Exports = map[string]interface{}

// moduleExts is the probe order for extensionless specifiers.
var moduleExts = [...]string{".go", ".gos"}

// ModuleNotFoundError reports a specifier that matched none of the five
// candidate paths.
type ModuleNotFoundError struct {
	Importer     string
	Specifier    string
	ResolvedBase string
}

func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("module not found: %q imported from %s (resolved base %s)",
		e.Specifier, e.Importer, e.ResolvedBase)
}

// Resolve maps a specifier to a tree path relative to the importing module.
// "." is a no-op segment and ".." pops one; the resolved base is then
// probed in order: exact, base+.go, base+.gos, base/index.go, base/index.gos.
// Capability names never reach Resolve; the loader short-circuits them.
func Resolve(tree *vfs.Tree, importer, specifier string) (string, error) {
	base := specifier
	if !path.IsAbs(specifier) {
		base = path.Join(path.Dir(importer), specifier)
	}
	base = path.Clean(base)

	for _, candidate := range candidates(base) {
		if tree.Has(candidate) {
			return candidate, nil
		}
	}
	return "", &ModuleNotFoundError{Importer: importer, Specifier: specifier, ResolvedBase: base}
}

func candidates(base string) []string {
	out := make([]string, 0, 1+2*len(moduleExts))
	out = append(out, base)
	for _, ext := range moduleExts {
		out = append(out, base+ext)
	}
	for _, ext := range moduleExts {
		out = append(out, base+"/index"+ext)
	}
	return out
}
