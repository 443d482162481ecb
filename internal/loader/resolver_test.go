package loader

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ouro/internal/vfs"
)

func TestResolve_CandidateOrder(t *testing.T) {
	t.Run("exact path wins over extension", func(t *testing.T) {
		tree := vfs.New(map[string]string{
			"/lib/a":    "",
			"/lib/a.go": "",
		})
		got, err := Resolve(tree, "/main.go", "./lib/a")
		require.NoError(t, err)
		assert.Equal(t, "/lib/a", got)
	})

	t.Run("go extension before gos", func(t *testing.T) {
		tree := vfs.New(map[string]string{
			"/lib/a.go":  "",
			"/lib/a.gos": "",
		})
		got, err := Resolve(tree, "/main.go", "./lib/a")
		require.NoError(t, err)
		assert.Equal(t, "/lib/a.go", got)
	})

	t.Run("gos when go absent", func(t *testing.T) {
		tree := vfs.New(map[string]string{"/lib/a.gos": ""})
		got, err := Resolve(tree, "/main.go", "./lib/a")
		require.NoError(t, err)
		assert.Equal(t, "/lib/a.gos", got)
	})

	t.Run("directory index", func(t *testing.T) {
		tree := vfs.New(map[string]string{"/lib/index.go": ""})
		got, err := Resolve(tree, "/main.go", "./lib")
		require.NoError(t, err)
		assert.Equal(t, "/lib/index.go", got)
	})

	t.Run("gos directory index", func(t *testing.T) {
		tree := vfs.New(map[string]string{"/lib/index.gos": ""})
		got, err := Resolve(tree, "/main.go", "./lib")
		require.NoError(t, err)
		assert.Equal(t, "/lib/index.gos", got)
	})
}

func TestResolve_RelativeToImporter(t *testing.T) {
	tree := vfs.New(map[string]string{
		"/lib/text.go":  "",
		"/boot/os.go":   "",
		"/boot/deep.go": "",
	})

	got, err := Resolve(tree, "/boot/os.go", "../lib/text")
	require.NoError(t, err)
	assert.Equal(t, "/lib/text.go", got)

	got, err = Resolve(tree, "/boot/os.go", "./deep")
	require.NoError(t, err)
	assert.Equal(t, "/boot/deep.go", got)
}

func TestResolve_AbsoluteSpecifier(t *testing.T) {
	tree := vfs.New(map[string]string{"/lib/text.go": ""})
	got, err := Resolve(tree, "/boot/os.go", "/lib/text")
	require.NoError(t, err)
	assert.Equal(t, "/lib/text.go", got)
}

func TestResolve_NotFound(t *testing.T) {
	tree := vfs.New(map[string]string{"/lib/other.go": ""})
	_, err := Resolve(tree, "/boot/os.go", "./missing")
	require.Error(t, err)

	var nf *ModuleNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "/boot/os.go", nf.Importer)
	assert.Equal(t, "./missing", nf.Specifier)
	assert.Equal(t, "/boot/missing", nf.ResolvedBase)
}
