package deltaparse

import (
	"reflect"
	"sort"
	"testing"

	"github.com/craigvandotcom/vitest-affected-go/internal/diagnostic"
	"github.com/craigvandotcom/vitest-affected-go/internal/resolver"
	"github.com/craigvandotcom/vitest-affected-go/internal/tsimport"
)

type fakeExtractor struct {
	byFile map[string][]tsimport.Specifier
	errs   map[string]error
}

func (f *fakeExtractor) Extract(path string) ([]tsimport.Specifier, error) {
	if err, ok := f.errs[path]; ok {
		return nil, err
	}
	return f.byFile[path], nil
}

func sorted(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}

func TestNewImportsSkipsTypeOnlyAndKnownEdges(t *testing.T) {
	extractor := &fakeExtractor{byFile: map[string][]tsimport.Specifier{
		"/proj/src/a.ts": {
			{Text: "./known", TypeOnly: false},
			{Text: "./typeonly", TypeOnly: true},
		},
	}}
	known := map[string]bool{
		"/proj/src/known.ts":    true,
		"/proj/src/typeonly.ts": true,
	}
	res := resolver.New("/proj", resolver.PathMapping{}, func(p string) bool { return known[p] })
	reverseMap := map[string]map[string]struct{}{"/proj/src/known.ts": {}}

	got := NewImports([]string{"/proj/src/a.ts"}, reverseMap, res, extractor, diagnostic.NewCollector(false))

	if len(got) != 0 {
		t.Errorf("expected no new seeds (known edge + type-only), got %v", got)
	}
}

func TestNewImportsReturnsUnknownResolvedEdge(t *testing.T) {
	extractor := &fakeExtractor{byFile: map[string][]tsimport.Specifier{
		"/proj/src/a.ts": {{Text: "./fresh"}},
	}}
	known := map[string]bool{"/proj/src/fresh.ts": true}
	res := resolver.New("/proj", resolver.PathMapping{}, func(p string) bool { return known[p] })
	reverseMap := map[string]map[string]struct{}{}

	got := NewImports([]string{"/proj/src/a.ts"}, reverseMap, res, extractor, diagnostic.NewCollector(false))

	want := []string{"/proj/src/fresh.ts"}
	if !reflect.DeepEqual(sorted(got), want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestNewImportsSkipsBinaryAssetExtension(t *testing.T) {
	extractor := &fakeExtractor{byFile: map[string][]tsimport.Specifier{
		"/proj/src/a.ts": {{Text: "./logo.png"}},
	}}
	known := map[string]bool{"/proj/src/logo.png": true}
	res := resolver.New("/proj", resolver.PathMapping{}, func(p string) bool { return known[p] })

	got := NewImports([]string{"/proj/src/a.ts"}, nil, res, extractor, diagnostic.NewCollector(false))
	if len(got) != 0 {
		t.Errorf("expected binary asset specifier to be rejected, got %v", got)
	}
}

func TestNewImportsSkipsTemplateWithSubstitution(t *testing.T) {
	extractor := &fakeExtractor{byFile: map[string][]tsimport.Specifier{
		"/proj/src/a.ts": {{Text: "./mod-${name}", Dynamic: true}},
	}}
	res := resolver.New("/proj", resolver.PathMapping{}, func(string) bool { return true })

	got := NewImports([]string{"/proj/src/a.ts"}, nil, res, extractor, diagnostic.NewCollector(false))
	if len(got) != 0 {
		t.Errorf("expected computed dynamic import to be skipped, got %v", got)
	}
}

func TestNewImportsSkipsUnresolvedSpecifier(t *testing.T) {
	extractor := &fakeExtractor{byFile: map[string][]tsimport.Specifier{
		"/proj/src/a.ts": {{Text: "some-package"}},
	}}
	res := resolver.New("/proj", resolver.PathMapping{}, func(string) bool { return false })

	got := NewImports([]string{"/proj/src/a.ts"}, nil, res, extractor, diagnostic.NewCollector(false))
	if len(got) != 0 {
		t.Errorf("expected bare unresolvable specifier to be skipped, got %v", got)
	}
}

func TestNewImportsSkipsReadError(t *testing.T) {
	extractor := &fakeExtractor{errs: map[string]error{"/proj/src/broken.ts": errReadFailed{}}}
	res := resolver.New("/proj", resolver.PathMapping{}, func(string) bool { return true })

	got := NewImports([]string{"/proj/src/broken.ts"}, nil, res, extractor, diagnostic.NewCollector(true))
	if len(got) != 0 {
		t.Errorf("expected read-error file to be skipped entirely, got %v", got)
	}
}

type errReadFailed struct{}

func (errReadFailed) Error() string { return "read failed" }

func TestNewImportsSkipsNodeModulesResolution(t *testing.T) {
	known := map[string]bool{"/proj/node_modules/vendored.ts": true}
	res := resolver.New("/proj", resolver.PathMapping{}, func(p string) bool { return known[p] })

	extractor := &fakeExtractor{byFile: map[string][]tsimport.Specifier{
		"/proj/node_modules/caller.ts": {{Text: "./vendored"}},
	}}

	got := NewImports([]string{"/proj/node_modules/caller.ts"}, nil, res, extractor, diagnostic.NewCollector(false))
	if len(got) != 0 {
		t.Errorf("expected a resolution landing inside node_modules to be skipped, got %v", got)
	}
}
