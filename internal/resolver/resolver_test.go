package resolver

import (
	"path/filepath"
	"testing"
)

func fakeExists(known map[string]bool) func(string) bool {
	return func(path string) bool {
		return known[filepath.ToSlash(path)]
	}
}

func TestResolveRelativeSpecifierWithExtensionProbe(t *testing.T) {
	root := "/proj"
	known := map[string]bool{"/proj/src/util.ts": true}
	r := New(root, PathMapping{}, fakeExists(known))

	got, ok := r.Resolve("./util", "/proj/src/index.ts")
	if !ok {
		t.Fatal("expected resolution to succeed")
	}
	if got != "/proj/src/util.ts" {
		t.Errorf("got %q, want /proj/src/util.ts", got)
	}
}

func TestResolveRelativeSpecifierAsIndexFile(t *testing.T) {
	root := "/proj"
	known := map[string]bool{"/proj/src/widget/index.ts": true}
	r := New(root, PathMapping{}, fakeExists(known))

	got, ok := r.Resolve("./widget", "/proj/src/app.ts")
	if !ok {
		t.Fatal("expected resolution to succeed")
	}
	if got != "/proj/src/widget/index.ts" {
		t.Errorf("got %q, want /proj/src/widget/index.ts", got)
	}
}

func TestResolveBareSpecifierWithoutAliasIsNodeModulesSkip(t *testing.T) {
	root := "/proj"
	known := map[string]bool{"/proj/node_modules/react/index.js": true}
	r := New(root, PathMapping{}, fakeExists(known))

	_, ok := r.Resolve("react", "/proj/src/app.ts")
	if ok {
		t.Error("expected bare specifier with no alias to be a soft miss")
	}
}

func TestResolveBuiltinModuleIsSoftMiss(t *testing.T) {
	r := New("/proj", PathMapping{}, fakeExists(nil))
	for _, spec := range []string{"fs", "node:fs", "path", "crypto"} {
		if _, ok := r.Resolve(spec, "/proj/src/app.ts"); ok {
			t.Errorf("expected %q to be a soft miss", spec)
		}
	}
}

func TestResolveWildcardAliasLongestPrefixWins(t *testing.T) {
	mapping := PathMapping{
		BaseDir: "/proj/src",
		Paths: map[string][]string{
			"@app/*":         {"app/*"},
			"@app/widgets/*": {"widgets/*"},
		},
	}
	known := map[string]bool{"/proj/src/widgets/button.ts": true}
	r := New("/proj", mapping, fakeExists(known))

	got, ok := r.Resolve("@app/widgets/button", "/proj/src/page.ts")
	if !ok {
		t.Fatal("expected resolution to succeed")
	}
	if got != "/proj/src/widgets/button.ts" {
		t.Errorf("got %q, want the longest-prefix match's target", got)
	}
}

func TestResolveExactAliasMatch(t *testing.T) {
	mapping := PathMapping{
		BaseDir: "/proj/src",
		Paths:   map[string][]string{"config": {"shared/config.ts"}},
	}
	known := map[string]bool{"/proj/src/shared/config.ts": true}
	r := New("/proj", mapping, fakeExists(known))

	got, ok := r.Resolve("config", "/proj/src/app.ts")
	if !ok {
		t.Fatal("expected resolution to succeed")
	}
	if got != "/proj/src/shared/config.ts" {
		t.Errorf("got %q, want /proj/src/shared/config.ts", got)
	}
}

func TestResolvePathBoundaryGuardRejectsEscape(t *testing.T) {
	root := "/proj"
	// A sibling directory sharing "/proj" as a string prefix without a
	// path separator must not be treated as inside the root.
	known := map[string]bool{"/proj-other/secret.ts": true}
	r := New(root, PathMapping{}, fakeExists(known))

	_, ok := r.Resolve("../../../proj-other/secret", "/proj/src/deep/file.ts")
	if ok {
		t.Error("expected path-boundary guard to reject an escape outside rootDir")
	}
}

func TestResolveUnresolvableSpecifierIsSoftMiss(t *testing.T) {
	r := New("/proj", PathMapping{}, fakeExists(nil))
	_, ok := r.Resolve("./does-not-exist", "/proj/src/app.ts")
	if ok {
		t.Error("expected a nonexistent relative specifier to be a soft miss")
	}
}

func TestIsBinaryAsset(t *testing.T) {
	cases := map[string]bool{
		"./logo.png":      true,
		"./font.woff2":    true,
		"./styles.css":    false,
		"./component.tsx": false,
		"./data.json":     false,
	}
	for spec, want := range cases {
		if got := IsBinaryAsset(spec); got != want {
			t.Errorf("IsBinaryAsset(%q) = %v, want %v", spec, got, want)
		}
	}
}
