// Package evolve turns a free-text intent into validated, atomically
// applied edits to the source tree by delegating to the external
// generative code service under a strict output schema.
package evolve

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"ouro/internal/gencode"
	"ouro/internal/logging"
	"ouro/internal/vfs"
)

// Request captures one evolution call: the goal, an optional contextual
// path, and a snapshot of all current paths.
type Request struct {
	ID             string
	Goal           string
	TargetPath     string
	AllPaths       []string
	ContextContent string
}

// Engine drives both evolution protocols against one tree.
//
// The engine is not reentrant-safe: only one evolution call may be
// outstanding at a time. That invariant is enforced by caller discipline
// (the supervisor's busy flag), not by the engine itself.
type Engine struct {
	client gencode.Client
	tree   *vfs.Tree
}

// New creates an evolution engine over the given tree and service client.
func New(client gencode.Client, tree *vfs.Tree) *Engine {
	return &Engine{client: client, tree: tree}
}

func (e *Engine) buildRequest(goal, targetPath string) Request {
	req := Request{
		ID:         uuid.NewString(),
		Goal:       goal,
		TargetPath: targetPath,
		AllPaths:   e.tree.Paths(),
	}
	if targetPath != "" {
		req.ContextContent, _ = e.tree.Read(targetPath)
	}
	return req
}

// EvolveSingle runs the single-target protocol: the goal is bound to one
// contextual path and the response must be exactly one edit action. On
// success the action has already been applied to the tree.
func (e *Engine) EvolveSingle(ctx context.Context, goal, targetPath string) (vfs.EditAction, error) {
	var zero vfs.EditAction
	if strings.TrimSpace(goal) == "" {
		return zero, fmt.Errorf("evolution goal is empty")
	}
	if err := vfs.ValidatePath(targetPath); err != nil {
		return zero, err
	}

	req := e.buildRequest(goal, targetPath)
	logging.Evolve("[%s] single-target evolution: path=%s goal=%q", req.ID, targetPath, goal)

	raw, err := e.client.CompleteWithSchema(ctx, singleSystemPrompt, buildSinglePrompt(req), singleActionSchema)
	if err != nil {
		return zero, fmt.Errorf("code service call failed: %w", err)
	}

	action, err := decodeSingle(raw)
	if err != nil {
		logging.EvolveError("[%s] rejected response: %v", req.ID, err)
		return zero, err
	}

	if err := action.Apply(e.tree); err != nil {
		logging.EvolveError("[%s] apply failed: %v", req.ID, err)
		return zero, err
	}
	logging.Evolve("[%s] applied %s %s", req.ID, action.Kind, action.Path)
	return action, nil
}

// EvolveMulti runs the multi-target protocol: the goal alone drives an
// ordered list of whole-file replacements. On success every replacement
// has been upserted into the tree.
func (e *Engine) EvolveMulti(ctx context.Context, goal, contextPath string) ([]vfs.Replacement, error) {
	if strings.TrimSpace(goal) == "" {
		return nil, fmt.Errorf("evolution goal is empty")
	}

	req := e.buildRequest(goal, contextPath)
	logging.Evolve("[%s] multi-target evolution: goal=%q", req.ID, goal)

	raw, err := e.client.CompleteWithSchema(ctx, multiSystemPrompt, buildMultiPrompt(req), multiReplaceSchema)
	if err != nil {
		return nil, fmt.Errorf("code service call failed: %w", err)
	}

	batch, err := decodeMulti(raw)
	if err != nil {
		logging.EvolveError("[%s] rejected response: %v", req.ID, err)
		return nil, err
	}

	if err := vfs.ApplyReplacements(e.tree, batch); err != nil {
		logging.EvolveError("[%s] apply failed: %v", req.ID, err)
		return nil, err
	}
	logging.Evolve("[%s] applied %d replacements", req.ID, len(batch))
	return batch, nil
}

// decodeSingle validates a raw single-target response against the
// protocol shape. Invalid or unrecognized shapes are rejected before any
// tree mutation; a Delete's content is normalized to empty on receipt.
func decodeSingle(raw string) (vfs.EditAction, error) {
	var zero vfs.EditAction
	var resp struct {
		Action  string `json:"action"`
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&resp); err != nil {
		return zero, fmt.Errorf("response does not match single-action schema: %w", err)
	}

	action := vfs.EditAction{
		Kind:    vfs.ActionKind(resp.Action),
		Path:    resp.Path,
		Content: resp.Content,
	}
	action.Normalize()
	if err := action.Validate(); err != nil {
		return zero, fmt.Errorf("invalid edit action: %w", err)
	}
	return action, nil
}

// decodeMulti validates a raw multi-target response. An empty file list is
// a hard failure, not a silent no-op.
func decodeMulti(raw string) ([]vfs.Replacement, error) {
	var resp struct {
		Files []vfs.Replacement `json:"files"`
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("response does not match multi-replacement schema: %w", err)
	}
	if len(resp.Files) == 0 {
		return nil, fmt.Errorf("empty replacement list")
	}
	for _, r := range resp.Files {
		if err := vfs.ValidatePath(r.Path); err != nil {
			return nil, fmt.Errorf("invalid replacement: %w", err)
		}
	}
	return resp.Files, nil
}
