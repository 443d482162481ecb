package vfs

// Seed returns the built-in source tree used on first boot and after a
// factory reset. The two stage entries live under the reserved /boot/
// prefix so evolution can rewrite but never delete them.
func Seed() map[string]string {
	return map[string]string{
		"/boot/os.go": `// os layer: owns shared helpers and reports readiness.
lib := require("../lib/text")

exports["main"] = func(handoff map[string]interface{}) {
	info := caps["log"]["info"].(func(string))
	banner := lib["banner"].(func() string)
	info(banner())
}
`,
		"/boot/app.go": `// application layer: the user-facing surface of the tree.
import "fmt"

up := require("../lib/strings")

exports["main"] = func(handoff map[string]interface{}) {
	info := caps["log"]["info"].(func(string))
	paths := handoff["paths"].(func() []string)
	shout := up["shout"].(func(string) string)
	info(shout(fmt.Sprintf("app layer running over %d files", len(paths()))))
}
`,
		"/lib/text.go": `exports["banner"] = func() string {
	return "ouro os layer ready"
}
`,
		"/lib/strings.gos": `import "strings"

exports["shout"] = func(s string) string {
	return strings.ToUpper(s)
}
`,
	}
}
