package vfs

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEditAction_Validate(t *testing.T) {
	cases := []struct {
		name    string
		action  EditAction
		wantErr bool
	}{
		{"update", EditAction{Kind: ActionUpdate, Path: "/a.go", Content: "x"}, false},
		{"create", EditAction{Kind: ActionCreate, Path: "/new/dir/b.go"}, false},
		{"delete", EditAction{Kind: ActionDelete, Path: "/lib/c.go"}, false},
		{"unknown kind", EditAction{Kind: "PATCH", Path: "/a.go"}, true},
		{"lowercase kind", EditAction{Kind: "update", Path: "/a.go"}, true},
		{"relative path", EditAction{Kind: ActionUpdate, Path: "a.go"}, true},
		{"empty path", EditAction{Kind: ActionUpdate, Path: ""}, true},
		{"delete boot-critical", EditAction{Kind: ActionDelete, Path: "/boot/os.go"}, true},
		{"update boot-critical ok", EditAction{Kind: ActionUpdate, Path: "/boot/os.go", Content: "x"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.action.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEditAction_NormalizeClearsDeleteContent(t *testing.T) {
	a := EditAction{Kind: ActionDelete, Path: "/a.go", Content: "leftover"}
	a.Normalize()
	assert.Empty(t, a.Content)

	b := EditAction{Kind: ActionUpdate, Path: "/a.go", Content: "keep"}
	b.Normalize()
	assert.Equal(t, "keep", b.Content)
}

func TestEditAction_Apply(t *testing.T) {
	tree := New(map[string]string{"/a.go": "old"})

	require.NoError(t, EditAction{Kind: ActionUpdate, Path: "/a.go", Content: "new"}.Apply(tree))
	content, _ := tree.Read("/a.go")
	assert.Equal(t, "new", content)

	require.NoError(t, EditAction{Kind: ActionCreate, Path: "/b.go", Content: "fresh"}.Apply(tree))
	assert.True(t, tree.Has("/b.go"))

	require.NoError(t, EditAction{Kind: ActionDelete, Path: "/b.go"}.Apply(tree))
	assert.False(t, tree.Has("/b.go"))

	// Invalid actions leave the tree untouched.
	before := tree.Snapshot()
	require.Error(t, EditAction{Kind: "NOPE", Path: "/a.go"}.Apply(tree))
	require.Error(t, EditAction{Kind: ActionDelete, Path: "/boot/os.go"}.Apply(tree))
	if diff := cmp.Diff(before, tree.Snapshot()); diff != "" {
		t.Errorf("tree changed after rejected actions (-want +got):\n%s", diff)
	}
}

func TestEditAction_ApplyIsIdempotent(t *testing.T) {
	tree := New(nil)
	a := EditAction{Kind: ActionCreate, Path: "/x.go", Content: "same"}
	require.NoError(t, a.Apply(tree))
	first := tree.Snapshot()
	require.NoError(t, a.Apply(tree))
	assert.Empty(t, cmp.Diff(first, tree.Snapshot()))

	d := EditAction{Kind: ActionDelete, Path: "/x.go"}
	require.NoError(t, d.Apply(tree))
	require.NoError(t, d.Apply(tree))
	assert.False(t, tree.Has("/x.go"))
}

func TestApplyReplacements(t *testing.T) {
	tree := New(map[string]string{
		"/keep.go": "untouched",
		"/a.go":    "old",
	})

	batch := []Replacement{
		{Path: "/a.go", Content: "updated"},
		{Path: "/b.go", Content: "created"},
	}
	require.NoError(t, ApplyReplacements(tree, batch))

	a, _ := tree.Read("/a.go")
	b, _ := tree.Read("/b.go")
	keep, _ := tree.Read("/keep.go")
	assert.Equal(t, "updated", a)
	assert.Equal(t, "created", b)
	assert.Equal(t, "untouched", keep)
}

func TestApplyReplacements_ValidatesBeforeWriting(t *testing.T) {
	tree := New(map[string]string{"/a.go": "old"})
	batch := []Replacement{
		{Path: "/a.go", Content: "new"},
		{Path: "relative.go", Content: "bad"},
	}
	require.Error(t, ApplyReplacements(tree, batch))

	content, _ := tree.Read("/a.go")
	assert.Equal(t, "old", content, "no writes may land when any path is invalid")
}
