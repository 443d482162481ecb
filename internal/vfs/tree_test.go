package vfs

import (
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTree_ReadWrite(t *testing.T) {
	tree := New(map[string]string{"/a.go": "one"})

	content, ok := tree.Read("/a.go")
	require.True(t, ok)
	assert.Equal(t, "one", content)

	require.NoError(t, tree.Write("/a.go", "two"))
	content, _ = tree.Read("/a.go")
	assert.Equal(t, "two", content)

	_, ok = tree.Read("/missing.go")
	assert.False(t, ok)
}

func TestTree_WriteRejectsRelativePath(t *testing.T) {
	tree := New(nil)
	assert.Error(t, tree.Write("a.go", "x"))
	assert.Error(t, tree.Write("", "x"))
	assert.Equal(t, 0, tree.Len())
}

func TestTree_UnchangedWriteDoesNotNotify(t *testing.T) {
	tree := New(map[string]string{"/a.go": "same"})
	var fired int
	tree.Subscribe(func(string) { fired++ })

	require.NoError(t, tree.Write("/a.go", "same"))
	assert.Equal(t, 0, fired)

	require.NoError(t, tree.Write("/a.go", "different"))
	assert.Equal(t, 1, fired)
}

func TestTree_SubscribeDuringMutations(t *testing.T) {
	tree := New(map[string]string{"/a.go": "0"})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			_ = tree.Write("/a.go", strconv.Itoa(i))
		}
	}()

	for i := 0; i < 100; i++ {
		tree.Subscribe(func(string) {})
	}
	<-done

	// A late subscriber still sees subsequent mutations.
	var fired int
	tree.Subscribe(func(string) { fired++ })
	require.NoError(t, tree.Write("/a.go", "final"))
	assert.Equal(t, 1, fired)
}

func TestTree_DeleteAbsentIsNoop(t *testing.T) {
	tree := New(map[string]string{"/a.go": "one"})

	var notified []string
	tree.Subscribe(func(path string) { notified = append(notified, path) })

	tree.Delete("/missing.go")
	assert.Empty(t, notified, "deleting an absent path must not notify")

	tree.Delete("/a.go")
	assert.Equal(t, []string{"/a.go"}, notified)
	assert.False(t, tree.Has("/a.go"))
}

func TestTree_PathsSorted(t *testing.T) {
	tree := New(map[string]string{
		"/z.go":      "",
		"/a.go":      "",
		"/lib/m.gos": "",
	})
	assert.Equal(t, []string{"/a.go", "/lib/m.gos", "/z.go"}, tree.Paths())
}

func TestTree_SnapshotIsCopy(t *testing.T) {
	tree := New(map[string]string{"/a.go": "one"})
	snap := tree.Snapshot()
	snap["/a.go"] = "mutated"
	snap["/b.go"] = "new"

	content, _ := tree.Read("/a.go")
	assert.Equal(t, "one", content)
	assert.False(t, tree.Has("/b.go"))
}

func TestTree_ReplaceAllSkipsObservers(t *testing.T) {
	tree := New(map[string]string{"/old.go": ""})
	var fired int
	tree.Subscribe(func(string) { fired++ })

	next := map[string]string{"/new.go": "x", "/other.go": "y"}
	tree.ReplaceAll(next)

	assert.Equal(t, 0, fired)
	if diff := cmp.Diff(next, tree.Snapshot()); diff != "" {
		t.Errorf("tree content mismatch (-want +got):\n%s", diff)
	}
}

func TestIsBootCritical(t *testing.T) {
	assert.True(t, IsBootCritical("/boot/os.go"))
	assert.True(t, IsBootCritical("/boot/deep/x.go"))
	assert.False(t, IsBootCritical("/lib/boot.go"))
	assert.False(t, IsBootCritical("/bootstrap.go"))
}

func TestSeed_ContainsStageEntries(t *testing.T) {
	seed := Seed()
	require.Contains(t, seed, "/boot/os.go")
	require.Contains(t, seed, "/boot/app.go")
	for p := range seed {
		assert.NoError(t, ValidatePath(p))
	}
}
