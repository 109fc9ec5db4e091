// Package deltaparse finds module specifiers newly introduced by a set of
// changed files and resolves them to absolute paths that are not yet
// known to the reverse-dependency map, per §4.4 of the selection
// algorithm: these are exactly the edges the cache cannot know about
// yet, since they were never observed by a prior run.
package deltaparse

import (
	"path/filepath"
	"strings"

	"github.com/craigvandotcom/vitest-affected-go/internal/diagnostic"
	"github.com/craigvandotcom/vitest-affected-go/internal/normalize"
	"github.com/craigvandotcom/vitest-affected-go/internal/resolver"
	"github.com/craigvandotcom/vitest-affected-go/internal/tsimport"
)

// Extractor is the subset of tsimport's API this package depends on, so
// tests can substitute a fake without constructing a real compiler
// program.
type Extractor interface {
	Extract(path string) ([]tsimport.Specifier, error)
}

// NewImports returns every specifier resolved from changedFiles that is
// not already a key of reverseMap, deduplicated, in no particular order
// beyond deduplication. changedFiles and the keys of reverseMap must
// already be canonical absolute paths.
func NewImports(
	changedFiles []string,
	reverseMap map[string]map[string]struct{},
	res *resolver.Resolver,
	extractor Extractor,
	diag *diagnostic.Collector,
) []string {
	seeds := make(map[string]struct{})

	for _, file := range changedFiles {
		specs, err := extractor.Extract(file)
		if err != nil {
			diag.Info("skipping %s: %v", file, err)
			continue
		}

		for _, spec := range specs {
			if spec.TypeOnly {
				continue
			}
			if resolver.IsBinaryAsset(spec.Text) {
				continue
			}
			if spec.Dynamic && !isPlainStringSpecifier(spec.Text) {
				continue
			}

			resolved, ok := res.Resolve(spec.Text, file)
			if !ok {
				continue
			}
			resolved = normalize.Normalize(resolved)

			if isInNodeModules(resolved) {
				continue
			}
			if _, known := reverseMap[resolved]; known {
				continue
			}
			seeds[resolved] = struct{}{}
		}
	}

	out := make([]string, 0, len(seeds))
	for s := range seeds {
		out = append(out, s)
	}
	return out
}

// isPlainStringSpecifier is a defensive second check alongside
// tsimport's own extraction filter: a specifier text containing "${" was
// captured from a template literal with substitutions and must not be
// treated as a static import target.
func isPlainStringSpecifier(text string) bool {
	return !strings.Contains(text, "${")
}

func isInNodeModules(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == "node_modules" {
			return true
		}
	}
	return false
}

// NewTSImportExtractor builds an Extractor backed by a real compiler
// program over rootDir's on-disk files.
func NewTSImportExtractor(rootDir string) Extractor {
	return &fsExtractor{rootDir: rootDir}
}

type fsExtractor struct {
	rootDir string
}

func (e *fsExtractor) Extract(path string) ([]tsimport.Specifier, error) {
	return tsimport.Extract(tsimport.DefaultFS(), e.rootDir, path)
}
