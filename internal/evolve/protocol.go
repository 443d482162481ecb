package evolve

import (
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// The two evolution protocols are deliberately distinct: the single-target
// protocol yields exactly one tagged EditAction (and is the only one that
// can delete), while the multi-target protocol yields an ordered list of
// whole-file replacements with no delete primitive.

// singleActionSchema is the structured-output contract for the
// single-target protocol.
var singleActionSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"action": {
			Type:        genai.TypeString,
			Enum:        []string{"UPDATE", "CREATE", "DELETE"},
			Description: "The kind of edit to perform on the target path.",
		},
		"path": {
			Type:        genai.TypeString,
			Description: "Absolute tree path beginning with /.",
		},
		"content": {
			Type:        genai.TypeString,
			Description: "The complete new file content. Empty for DELETE.",
		},
	},
	Required: []string{"action", "path", "content"},
}

// multiReplaceSchema is the structured-output contract for the
// multi-target protocol.
var multiReplaceSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"files": {
			Type:        genai.TypeArray,
			Description: "Whole-file replacements to apply, in order.",
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"path":    {Type: genai.TypeString},
					"content": {Type: genai.TypeString},
				},
				Required: []string{"path", "content"},
			},
		},
	},
	Required: []string{"files"},
}

const dialectRules = `Each file is an ouro script: a sequence of Go statements executed as a
module body. The body receives three bindings:
  require(spec string) map[string]interface{}  - load another module or a capability
  exports map[string]interface{}               - this module's export surface
  caps map[string]map[string]interface{}       - all capability bindings by name
Optional import lines at the top of a file may name only safe stdlib
packages (fmt, strings, strconv, sort, bytes, math, regexp, time, path,
encoding/json, encoding/base64). Stage entry files must set
exports["main"] to a func(map[string]interface{}).`

const singleSystemPrompt = `You are the code evolution service for ouro, a self-hosted runtime that
executes and rewrites its own source tree.
` + dialectRules + `
You will be given the full path list, one target file, and a goal.
Respond with exactly one edit action on a single path.`

const multiSystemPrompt = `You are the code evolution service for ouro, a self-hosted runtime that
executes and rewrites its own source tree.
` + dialectRules + `
You will be given the full path list and a goal. Respond with whole-file
replacements for every file that must change. There is no delete: only
create or overwrite.`

func buildSinglePrompt(req Request) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Files in the tree:\n%s\n\n", strings.Join(req.AllPaths, "\n"))
	fmt.Fprintf(&sb, "Target file: %s\n", req.TargetPath)
	if req.ContextContent != "" {
		fmt.Fprintf(&sb, "Current content of %s:\n---\n%s\n---\n\n", req.TargetPath, req.ContextContent)
	} else {
		sb.WriteString("The target file does not exist yet.\n\n")
	}
	fmt.Fprintf(&sb, "Goal: %s\n", req.Goal)
	return sb.String()
}

func buildMultiPrompt(req Request) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Files in the tree:\n%s\n\n", strings.Join(req.AllPaths, "\n"))
	if req.TargetPath != "" && req.ContextContent != "" {
		fmt.Fprintf(&sb, "Context file %s:\n---\n%s\n---\n\n", req.TargetPath, req.ContextContent)
	}
	fmt.Fprintf(&sb, "Goal: %s\n", req.Goal)
	return sb.String()
}
