package preview

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ouro/internal/loader"
	"ouro/internal/vfs"
)

func TestRun_SeedTree(t *testing.T) {
	tree := vfs.New(vfs.Seed())
	bridge := loader.NewBridge()

	var logged []string
	bridge.Register("log", loader.Exports{
		"info": func(msg string) { logged = append(logged, msg) },
	})

	res, err := Run(context.Background(), tree, bridge, Options{
		Entry:        "/boot/app.go",
		Timeout:      10 * time.Second,
		Capabilities: []string{"log"},
	})
	require.NoError(t, err)
	assert.Equal(t, len(vfs.Seed()), res.Modules)
	require.NotEmpty(t, logged, "the app layer reports through the log capability")
	assert.Contains(t, logged[0], "APP LAYER")
}

func TestRun_MissingEntryIsHardFailure(t *testing.T) {
	tree := vfs.New(map[string]string{"/lib/a.go": `exports["n"] = 1`})

	_, err := Run(context.Background(), tree, loader.NewBridge(), Options{Entry: "/boot/app.go"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/boot/app.go")
}

func TestRun_PanicIsContained(t *testing.T) {
	tree := vfs.New(map[string]string{
		"/boot/app.go": `exports["main"] = func(handoff map[string]interface{}) { panic("preview crash") }`,
	})

	_, err := Run(context.Background(), tree, loader.NewBridge(), Options{Entry: "/boot/app.go"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "preview crash")

	// The live tree is untouched.
	assert.Equal(t, 1, tree.Len())
}

func TestRun_CannotMutateTree(t *testing.T) {
	tree := vfs.New(map[string]string{
		"/boot/app.go": `
exports["main"] = func(handoff map[string]interface{}) {
	if _, ok := handoff["write"]; ok {
		panic("write capability must not exist in preview")
	}
}
`,
	})

	_, err := Run(context.Background(), tree, loader.NewBridge(), Options{Entry: "/boot/app.go"})
	require.NoError(t, err)
}

func TestRun_EntryWithoutMain(t *testing.T) {
	tree := vfs.New(map[string]string{
		"/boot/app.go": `exports["other"] = 1`,
	})

	_, err := Run(context.Background(), tree, loader.NewBridge(), Options{Entry: "/boot/app.go"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "main")
}

func TestRun_ForbiddenImportRejectedAtBundleTime(t *testing.T) {
	tree := vfs.New(map[string]string{
		"/boot/app.go": `exports["main"] = func(handoff map[string]interface{}) {}`,
		"/lib/bad.go":  "import \"time\"\nexports[\"x\"] = 1\n",
	})

	_, err := Run(context.Background(), tree, loader.NewBridge(), Options{Entry: "/boot/app.go"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/lib/bad.go")
	assert.Contains(t, err.Error(), "forbidden")
}

func TestRun_WithheldCapability(t *testing.T) {
	tree := vfs.New(map[string]string{
		"/boot/app.go": `
exports["main"] = func(handoff map[string]interface{}) {
	if _, ok := caps["secrets"]; ok {
		panic("secrets capability leaked into preview")
	}
}
`,
	})
	bridge := loader.NewBridge()
	bridge.Register("secrets", loader.Exports{"token": "hunter2"})
	bridge.Register("log", loader.Exports{"info": func(string) {}})

	_, err := Run(context.Background(), tree, bridge, Options{
		Entry:        "/boot/app.go",
		Capabilities: []string{"log"},
	})
	require.NoError(t, err)
}

func TestRun_Timeout(t *testing.T) {
	tree := vfs.New(map[string]string{
		"/boot/app.go": `
exports["main"] = func(handoff map[string]interface{}) {
	n := 0
	for i := 0; i < 100000000; i++ {
		n += i
	}
	_ = n
}
`,
	})

	_, err := Run(context.Background(), tree, loader.NewBridge(), Options{
		Entry:   "/boot/app.go",
		Timeout: 100 * time.Millisecond,
	})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "timed out"))
}

func TestBuildBundle_HoistsSharedImports(t *testing.T) {
	files := map[string]string{
		"/a.go": "import \"strings\"\nexports[\"x\"] = strings.ToUpper(\"a\")\n",
		"/b.go": "import \"strings\"\nimport \"sort\"\nexports[\"y\"] = 1\n",
	}
	bundle, err := buildBundle(files, "/a.go", AllowedImports())
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(bundle, "\"strings\""))
	assert.Contains(t, bundle, "\"sort\"")
	assert.Contains(t, bundle, "\"path\"")
	assert.Contains(t, bundle, "func RunBundle(")
	assert.NotContains(t, strings.SplitN(bundle, "var modules", 2)[1], "import \"")
}

func TestRun_AbsoluteRequireInsideBundle(t *testing.T) {
	// An absolute specifier must resolve the same from any importer, not
	// relative to the importer's directory.
	tree := vfs.New(map[string]string{
		"/boot/app.go": `
lib := require("/lib/text")
exports["main"] = func(handoff map[string]interface{}) {
	if lib["word"] != "ok" {
		panic("absolute require resolved the wrong module")
	}
}
`,
		"/lib/text.go":      `exports["word"] = "ok"`,
		"/boot/lib/text.go": `exports["word"] = "wrong"`,
	})

	_, err := Run(context.Background(), tree, loader.NewBridge(), Options{Entry: "/boot/app.go"})
	require.NoError(t, err)
}

func TestRun_CyclesInsideBundle(t *testing.T) {
	tree := vfs.New(map[string]string{
		"/boot/app.go": `
a := require("../a")
exports["main"] = func(handoff map[string]interface{}) {
	if a["fromB"] != "a" {
		panic("cycle semantics broken in bundle")
	}
}
`,
		"/a.go": `
exports["tag"] = "a"
b := require("./b")
exports["fromB"] = b["seen"]
`,
		"/b.go": `
a := require("./a")
exports["seen"] = a["tag"]
`,
	})

	_, err := Run(context.Background(), tree, loader.NewBridge(), Options{Entry: "/boot/app.go"})
	require.NoError(t, err)
}
