package loader

import (
	"fmt"
	"sort"
	"strings"
)

// TransformOptions carries per-file transpile context. Filename is used
// for diagnostics only.
type TransformOptions struct {
	Filename string
	Dialect  string
}

// Transpiler turns module source text into an executable body. It is a
// pure, synchronous collaborator: same input, same output.
type Transpiler interface {
	Transform(source string, opts TransformOptions) (string, error)
}

// ScriptTranspiler compiles the ouro script dialect: a file holds Go
// statements plus optional import lines. Imports are hoisted above a
// generated ModuleBody wrapper and validated against an allow-list.
type ScriptTranspiler struct {
	allowed map[string]bool
}

// NewScriptTranspiler creates a transpiler with the default import
// allow-list.
func NewScriptTranspiler() *ScriptTranspiler {
	return &ScriptTranspiler{allowed: DefaultAllowedImports()}
}

// NewScriptTranspilerWithImports creates a transpiler with a custom
// allow-list. Used by the preview executor's stricter boundary.
func NewScriptTranspilerWithImports(allowed map[string]bool) *ScriptTranspiler {
	return &ScriptTranspiler{allowed: allowed}
}

// DefaultAllowedImports returns the stdlib packages module bodies may use.
func DefaultAllowedImports() map[string]bool {
	return map[string]bool{
		"strings":         true,
		"strconv":         true,
		"fmt":             true,
		"math":            true,
		"regexp":          true,
		"encoding/json":   true,
		"encoding/base64": true,
		"time":            true,
		"sort":            true,
		"bytes":           true,
		"path":            true,

		// EXPLICITLY BLOCKED (unsafe packages):
		// "os" - filesystem access
		// "os/exec" - command execution
		// "net", "net/http" - network access
		// "syscall", "unsafe" - escape hatches
	}
}

// Transform splits the source into import lines and a statement body,
// validates the imports, and wraps the body in the commonjs-style
// ModuleBody function the executor expects.
func (t *ScriptTranspiler) Transform(source string, opts TransformOptions) (string, error) {
	imports, body, err := splitImports(source)
	if err != nil {
		return "", err
	}

	var forbidden []string
	for _, pkg := range imports {
		if !t.allowed[pkg] {
			forbidden = append(forbidden, pkg)
		}
	}
	if len(forbidden) > 0 {
		return "", fmt.Errorf("forbidden imports detected: %v", forbidden)
	}

	var sb strings.Builder
	sb.WriteString("package main\n\n")
	if len(imports) > 0 {
		sb.WriteString("import (\n")
		for _, pkg := range imports {
			fmt.Fprintf(&sb, "\t%q\n", pkg)
		}
		sb.WriteString(")\n\n")
	}
	sb.WriteString("func ModuleBody(require func(string) map[string]interface{}, exports map[string]interface{}, caps map[string]map[string]interface{}) {\n")
	sb.WriteString("\t_, _, _ = require, exports, caps\n")
	sb.WriteString(body)
	sb.WriteString("\n}\n")
	return sb.String(), nil
}

// SplitImports extracts import declarations from module source. The rest
// of the file, order preserved, forms the body. The preview bundler uses
// this directly to hoist a shared import block for the whole bundle.
func SplitImports(source string) (imports []string, body string, err error) {
	return splitImports(source)
}

func splitImports(source string) (imports []string, body string, err error) {
	seen := make(map[string]bool)
	var bodyLines []string

	inImportBlock := false
	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)

		if inImportBlock {
			if strings.HasPrefix(trimmed, ")") {
				inImportBlock = false
				continue
			}
			pkg := strings.Trim(trimmed, `"`)
			if pkg != "" {
				seen[pkg] = true
			}
			continue
		}

		if strings.HasPrefix(trimmed, "import (") {
			inImportBlock = true
			continue
		}
		if strings.HasPrefix(trimmed, "import ") {
			pkg := strings.Trim(strings.TrimPrefix(trimmed, "import "), `"`)
			if pkg != "" {
				seen[pkg] = true
			}
			continue
		}

		bodyLines = append(bodyLines, line)
	}
	if inImportBlock {
		return nil, "", fmt.Errorf("unterminated import block")
	}

	for pkg := range seen {
		imports = append(imports, pkg)
	}
	sort.Strings(imports)
	return imports, strings.Join(bodyLines, "\n"), nil
}
