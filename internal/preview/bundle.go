package preview

import (
	"fmt"
	"sort"
	"strings"

	"ouro/internal/loader"
)

// AllowedImports returns the stdlib packages preview bundles may use. The
// list is stricter than the live loader's: previews run untrusted candidate
// trees, so time and regexp stay out too.
func AllowedImports() map[string]bool {
	return map[string]bool{
		"strings":       true,
		"strconv":       true,
		"fmt":           true,
		"math":          true,
		"sort":          true,
		"bytes":         true,
		"path":          true,
		"encoding/json": true,
	}
}

// buildBundle compiles the entire tree into one self-contained yaegi
// program. Every file becomes an entry in a modules map; resolution and
// cycle handling happen inside the bundle so nothing reaches back into the
// live tree.
func buildBundle(files map[string]string, entry string, allowed map[string]bool) (string, error) {
	if _, ok := files[entry]; !ok {
		return "", fmt.Errorf("preview entry %s not present in tree", entry)
	}

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	importSet := map[string]bool{"path": true} // resolver dependency
	bodies := make(map[string]string, len(files))
	for _, p := range paths {
		imports, body, err := loader.SplitImports(files[p])
		if err != nil {
			return "", fmt.Errorf("failed to bundle %s: %w", p, err)
		}
		var forbidden []string
		for _, pkg := range imports {
			if !allowed[pkg] {
				forbidden = append(forbidden, pkg)
				continue
			}
			importSet[pkg] = true
		}
		if len(forbidden) > 0 {
			return "", fmt.Errorf("failed to bundle %s: forbidden imports %v", p, forbidden)
		}
		bodies[p] = body
	}

	imports := make([]string, 0, len(importSet))
	for pkg := range importSet {
		imports = append(imports, pkg)
	}
	sort.Strings(imports)

	var sb strings.Builder
	sb.WriteString("package main\n\n")
	sb.WriteString("import (\n")
	for _, pkg := range imports {
		fmt.Fprintf(&sb, "\t%q\n", pkg)
	}
	sb.WriteString(")\n\n")

	sb.WriteString("var bundleCaps map[string]map[string]interface{}\n\n")
	fmt.Fprintf(&sb, "var bundlePaths = %#v\n\n", paths)

	sb.WriteString("var modules = map[string]func(require func(string) map[string]interface{}, exports map[string]interface{}, caps map[string]map[string]interface{}){\n")
	for _, p := range paths {
		fmt.Fprintf(&sb, "\t%q: func(require func(string) map[string]interface{}, exports map[string]interface{}, caps map[string]map[string]interface{}) {\n", p)
		sb.WriteString("\t\t_, _, _ = require, exports, caps\n")
		sb.WriteString(bodies[p])
		sb.WriteString("\n\t},\n")
	}
	sb.WriteString("}\n\n")

	sb.WriteString(bundleRuntime)
	fmt.Fprintf(&sb, "\nfunc RunBundle(caps map[string]map[string]interface{}) {\n"+
		"\tbundleCaps = caps\n"+
		"\texports := loadModule(%q)\n"+
		"\tentry, ok := exports[\"main\"].(func(map[string]interface{}))\n"+
		"\tif !ok {\n"+
		"\t\tpanic(\"entry does not export main as func(map[string]interface{})\")\n"+
		"\t}\n"+
		"\tentry(map[string]interface{}{\n"+
		"\t\t\"stage\": \"preview\",\n"+
		"\t\t\"paths\": func() []string { return bundlePaths },\n"+
		"\t})\n"+
		"}\n", entry)

	return sb.String(), nil
}

// bundleRuntime is the in-bundle module system: the same cell map and
// candidate probing the live loader uses, reimplemented over the static
// modules map.
const bundleRuntime = `var cells = map[string]map[string]interface{}{}

func loadModule(p string) map[string]interface{} {
	if ex, ok := cells[p]; ok {
		return ex
	}
	body, ok := modules[p]
	if !ok {
		panic("module not in bundle: " + p)
	}
	exports := map[string]interface{}{}
	cells[p] = exports
	body(requireFrom(p), exports, bundleCaps)
	return exports
}

func requireFrom(importer string) func(string) map[string]interface{} {
	return func(spec string) map[string]interface{} {
		if ex, ok := bundleCaps[spec]; ok {
			return ex
		}
		base := spec
		if !path.IsAbs(spec) {
			base = path.Join(path.Dir(importer), spec)
		}
		base = path.Clean(base)
		for _, cand := range []string{base, base + ".go", base + ".gos", base + "/index.go", base + "/index.gos"} {
			if _, ok := modules[cand]; ok {
				return loadModule(cand)
			}
		}
		panic("cannot resolve " + spec + " from " + importer)
	}
}
`
