package vfs

import "fmt"

// ActionKind tags a single-target edit instruction.
type ActionKind string

const (
	ActionUpdate ActionKind = "UPDATE"
	ActionCreate ActionKind = "CREATE"
	ActionDelete ActionKind = "DELETE"
)

// EditAction is one validated instruction against the tree. Update and
// Create are both pure overwrites; Delete removes the path and always
// carries empty content.
type EditAction struct {
	Kind    ActionKind `json:"action"`
	Path    string     `json:"path"`
	Content string     `json:"content"`
}

// Replacement is one entry of the multi-target protocol: a whole-file
// create-or-update. The multi-target protocol has no delete primitive.
type Replacement struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Normalize enforces the receipt-time invariants: a Delete's content is
// always empty regardless of what the service returned.
func (a *EditAction) Normalize() {
	if a.Kind == ActionDelete {
		a.Content = ""
	}
}

// Validate rejects malformed actions before any tree mutation.
func (a EditAction) Validate() error {
	switch a.Kind {
	case ActionUpdate, ActionCreate, ActionDelete:
	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
	if err := ValidatePath(a.Path); err != nil {
		return err
	}
	if a.Kind == ActionDelete && IsBootCritical(a.Path) {
		return fmt.Errorf("cannot delete boot-critical path %s", a.Path)
	}
	return nil
}

// Apply executes the action against the tree. Re-applying an unchanged
// action to an unchanged tree is a no-op with respect to content.
func (a EditAction) Apply(t *Tree) error {
	if err := a.Validate(); err != nil {
		return err
	}
	switch a.Kind {
	case ActionDelete:
		t.Delete(a.Path)
		return nil
	default:
		return t.Write(a.Path, a.Content)
	}
}

// ApplyReplacements upserts every replacement. All entries are pure
// overwrites, so application order across paths does not matter. The
// in-memory update is atomic per path; validation of the whole batch runs
// before the first write.
func ApplyReplacements(t *Tree, batch []Replacement) error {
	for _, r := range batch {
		if err := ValidatePath(r.Path); err != nil {
			return err
		}
	}
	for _, r := range batch {
		if err := t.Write(r.Path, r.Content); err != nil {
			return err
		}
	}
	return nil
}
