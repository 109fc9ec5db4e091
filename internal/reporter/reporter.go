// Package reporter implements the runtime-edge reporter of §4.5: a
// passive host-runner reporter that observes each test module's
// self-reported import timings and accumulates a reverse-dependency map
// of "imported module -> tests that imported it", emitting it to a sink
// once per completed run.
//
// The accumulator's mutex discipline is grounded on the teacher's own
// managed-process runner; see DESIGN.md.
package reporter

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/craigvandotcom/vitest-affected-go/internal/normalize"
)

// Sink receives a defensive copy of the accumulated reverse map at the
// end of a non-interrupted run.
type Sink func(reverse map[string]map[string]struct{})

// Reporter accumulates runtime import edges across a single test run. It
// is instantiated before the host resolves the project root, so rootDir
// is injected later via SetRootDir; edges are only recorded once set.
type Reporter struct {
	sink Sink

	mu      sync.Mutex
	rootDir string
	edges   map[string]map[string]struct{}
}

// New creates a Reporter that emits to sink at the end of every
// non-interrupted run.
func New(sink Sink) *Reporter {
	return &Reporter{
		sink:  sink,
		edges: make(map[string]map[string]struct{}),
	}
}

// SetRootDir injects the project root directory once the host has
// resolved it. Edges recorded before this call is made are not possible:
// OnTestModuleEnd is a no-op until rootDir is non-empty.
func (r *Reporter) SetRootDir(dir string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rootDir = dir
}

// OnTestModuleEnd records a reverse edge from every importedModuleID key
// of imports that resolves to a real project file back to testPath, per
// §4.5. Only the keys of imports are consulted; durations are ignored.
func (r *Reporter) OnTestModuleEnd(testPath string, imports map[string]float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rootDir == "" {
		return
	}

	testPath = normalize.Normalize(testPath)

	for rawID := range imports {
		if normalize.IsPreBundledID(rawID) {
			continue
		}
		m := normalize.Normalize(rawID)
		if m == "" || m == testPath {
			continue
		}
		if !r.isProjectFile(m) {
			continue
		}
		if r.isInNodeModules(m) {
			continue
		}

		set, ok := r.edges[m]
		if !ok {
			set = make(map[string]struct{})
			r.edges[m] = set
		}
		set[testPath] = struct{}{}
	}
}

// OnTestRunEnd emits a defensive copy of the accumulated edges to the
// sink and clears the accumulator, unless reason is "interrupted" — in
// which case the partial accumulation is discarded without emitting, per
// §4.5 and the cancellation semantics of §5.
func (r *Reporter) OnTestRunEnd(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if reason == "interrupted" {
		r.edges = make(map[string]map[string]struct{})
		return
	}

	if r.sink != nil {
		r.sink(copyEdges(r.edges))
	}
	r.edges = make(map[string]map[string]struct{})
}

// isProjectFile reports whether m is an absolute path lying under the
// configured root directory. Relative or protocol-prefixed ids (a
// virtual module that survived normalization untouched) are rejected.
func (r *Reporter) isProjectFile(m string) bool {
	if !filepath.IsAbs(m) {
		return false
	}
	rel, err := filepath.Rel(r.rootDir, m)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (r *Reporter) isInNodeModules(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == "node_modules" {
			return true
		}
	}
	return false
}

func copyEdges(edges map[string]map[string]struct{}) map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{}, len(edges))
	for k, v := range edges {
		set := make(map[string]struct{}, len(v))
		for t := range v {
			set[t] = struct{}{}
		}
		out[k] = set
	}
	return out
}
