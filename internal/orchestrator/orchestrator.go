// Package orchestrator implements the 19-step selection pipeline of
// §4.7: a single configure-time decision that narrows a host test
// runner's include list to the tests affected by the pending change set,
// or leaves it untouched whenever confidence in that narrowing is
// degraded.
//
// The step numbering in comments throughout this file matches spec §4.7
// exactly so the pipeline can be audited step-by-step against it.
package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/craigvandotcom/vitest-affected-go/internal/bfs"
	"github.com/craigvandotcom/vitest-affected-go/internal/cache"
	"github.com/craigvandotcom/vitest-affected-go/internal/config"
	"github.com/craigvandotcom/vitest-affected-go/internal/deltaparse"
	"github.com/craigvandotcom/vitest-affected-go/internal/diagnostic"
	"github.com/craigvandotcom/vitest-affected-go/internal/host"
	"github.com/craigvandotcom/vitest-affected-go/internal/normalize"
	"github.com/craigvandotcom/vitest-affected-go/internal/reporter"
	"github.com/craigvandotcom/vitest-affected-go/internal/resolver"
	"github.com/craigvandotcom/vitest-affected-go/internal/statsjournal"
	"github.com/craigvandotcom/vitest-affected-go/internal/tsimport"
	"github.com/craigvandotcom/vitest-affected-go/internal/vcsdiff"

	"github.com/microsoft/typescript-go/shim/bundled"
	shimcompiler "github.com/microsoft/typescript-go/shim/compiler"
)

// configFileBasenames names the fixed set of configuration-file
// basenames whose change forces a full-suite fallback per §4.7 step 10:
// package manifests and lockfiles for the common Node package managers,
// the TypeScript project config, and the usual host-runner/bundler
// config variants.
var configFileBasenames = map[string]struct{}{
	"package.json":        {},
	"package-lock.json":   {},
	"yarn.lock":           {},
	"pnpm-lock.yaml":      {},
	"bun.lockb":           {},
	"bun.lock":            {},
	"tsconfig.json":       {},
	"tsconfig.base.json":  {},
	"vitest.config.ts":    {},
	"vitest.config.js":    {},
	"vitest.config.mts":   {},
	"vitest.workspace.ts": {},
	"vite.config.ts":      {},
	"vite.config.js":      {},
	"vite.config.mts":     {},
	"webpack.config.js":   {},
	"rollup.config.js":    {},
	"esbuild.config.js":   {},
}

// Deps collects the orchestrator's external effectful dependencies so
// tests can substitute fakes for the VCS, the path resolver, the test
// universe glob, the filesystem, and wall-clock time without touching a
// real repository or compiler.
type Deps struct {
	DetectChanges func(ctx context.Context, rootDir, ref string, diag *diagnostic.Collector) (vcsdiff.ChangeSet, error)
	NewExtractor  func(rootDir string) deltaparse.Extractor
	NewResolver   func(rootDir string) *resolver.Resolver
	Glob          func(root string, include, exclude []string) ([]string, error)
	Exists        func(path string) bool
	Now           func() time.Time
}

// DefaultDeps wires the real vcsdiff detector, a real compiler-backed
// tsimport extractor and path resolver, and doublestar globbing.
func DefaultDeps() Deps {
	return Deps{
		DetectChanges: vcsdiff.Detect,
		NewExtractor:  deltaparse.NewTSImportExtractor,
		NewResolver:   newDefaultResolver,
		Glob:          globTestUniverse,
		Exists:        defaultExists,
		Now:           time.Now,
	}
}

func newDefaultResolver(rootDir string) *resolver.Resolver {
	fsys := tsimport.DefaultFS()
	compilerHost := shimcompiler.NewCompilerHost(rootDir, fsys, bundled.LibPath(), nil, nil)
	mapping := resolver.LoadPathMapping(compilerHost, rootDir)
	return resolver.New(rootDir, mapping, nil)
}

// Decision is the orchestrator's outcome for one run: either the host's
// include list is left untouched (a fallback), or it is replaced with
// Include.
type Decision struct {
	Selective bool
	Include   []string
	Reason    string
	CacheHit  bool
	Graph     cache.ReverseMap
}

// Orchestrator runs the pipeline once per configure invocation, owning
// the reverse map for the duration of a run (§5, "Shared-resource
// policy").
type Orchestrator struct {
	cfg      config.Config
	cacheDir string
	deps     Deps
	diag     *diagnostic.Collector
	stats    *statsjournal.Journal
}

// New constructs an Orchestrator. cacheDir is the resolved
// ".vitest-affected" directory under the project root.
func New(cfg config.Config, cacheDir string, deps Deps) *Orchestrator {
	diag := diagnostic.NewCollector(cfg.Verbose)
	var stats *statsjournal.Journal
	if cfg.StatsFile != "" {
		stats = statsjournal.New(cfg.StatsFile)
	}
	return &Orchestrator{cfg: cfg, cacheDir: cacheDir, deps: deps, diag: diag, stats: stats}
}

// Diagnostics returns the collector accumulated during the last Run.
func (o *Orchestrator) Diagnostics() *diagnostic.Collector { return o.diag }

// Run executes the full pipeline against m, per §4.7. On any fallback
// path it leaves m's current project's include list untouched; on the
// narrowing path it calls project.SetInclude with the affected tests.
// Once the config-shape guard (step 4) passes, the runtime-edge reporter
// (step 6) is installed whatever this run's outcome, since it governs the
// *next* run's cache; the exits of steps 1-4 return before installing it.
func (o *Orchestrator) Run(ctx context.Context, m host.Master) (Decision, error) {
	start := o.deps.Now()

	// Step 1-2: environment override / disabled short-circuit.
	if config.EnvDisabled() || o.cfg.Disabled {
		return o.record(Decision{Reason: "disabled"}, start, vcsdiff.ChangeSet{}, 0, 0), nil
	}

	// Step 3: workspace guard.
	projects := m.Projects()
	if len(projects) != 1 {
		o.diag.Warn("multiple test projects detected; falling back to full suite")
		return o.record(Decision{Reason: "multi-project-workspace"}, start, vcsdiff.ChangeSet{}, 0, 0), nil
	}
	project := projects[0]

	// Step 4: config-shape guard.
	pcfg := project.Config()
	if pcfg.RootDir == "" || len(pcfg.IncludePattern) == 0 {
		o.diag.Warn("host project config missing root directory or include patterns")
		return o.record(Decision{Reason: "invalid-host-config"}, start, vcsdiff.ChangeSet{}, 0, 0), nil
	}
	rootDir := pcfg.RootDir

	// Step 5: load cache.
	loadResult := cache.Load(o.cacheDir)
	reverse := loadResult.Reverse
	if reverse == nil {
		reverse = cache.ReverseMap{}
	}

	// Step 6: install reporter, wiring its sink to merge+persist.
	rep := reporter.New(func(edges map[string]map[string]struct{}) {
		cache.MergeRunEdges(reverse, edges)
		if err := cache.Save(o.cacheDir, reverse); err != nil {
			o.diag.Info("cache save failed: %v", err)
		}
	})
	rep.SetRootDir(rootDir)
	m.Reporters().Install(rep)

	// Step 7: watch-mode filter.
	if pcfg.Watch {
		m.RegisterWatchFilter(func(string) bool { return true })
	}

	// Step 8: determine change set.
	var changeSet vcsdiff.ChangeSet
	if len(o.cfg.ChangedFiles) > 0 {
		changeSet = partitionByExistence(o.cfg.ChangedFiles, rootDir, o.deps.Exists)
	} else {
		cs, err := o.deps.DetectChanges(ctx, rootDir, o.cfg.Ref, o.diag)
		if err != nil {
			return o.handleDetectError(err, start)
		}
		changeSet = cs
	}

	// Step 9: no-change short-circuit.
	if len(changeSet.Changed) == 0 && len(changeSet.Deleted) == 0 {
		return o.record(Decision{Reason: "no-changes", CacheHit: loadResult.Hit, Graph: reverse}, start, changeSet, 0, 0), nil
	}

	// Step 10: full-suite triggers.
	touched := append(append([]string{}, changeSet.Changed...), changeSet.Deleted...)
	if reason := o.fullSuiteTrigger(touched, pcfg.SetupFiles, rootDir); reason != "" {
		o.diag.Warn("full-suite fallback: %s", reason)
		return o.record(Decision{Reason: reason, CacheHit: loadResult.Hit, Graph: reverse}, start, changeSet, 0, 0), nil
	}

	// Step 11: cold-cache full suite.
	if !loadResult.Hit {
		o.diag.Warn("no usable dependency cache; falling back to full suite")
		return o.record(Decision{Reason: "cache-miss", Graph: reverse}, start, changeSet, 0, 0), nil
	}

	// Step 12: delta parse; seed BFS with changed + deleted + new imports.
	extractor := o.deps.NewExtractor(rootDir)
	res := o.deps.NewResolver(rootDir)
	newSeeds := deltaparse.NewImports(changeSet.Changed, reverse, res, extractor, o.diag)

	seeds := make(map[string]struct{})
	for _, s := range changeSet.Changed {
		seeds[normalize.Normalize(s)] = struct{}{}
	}
	for _, s := range changeSet.Deleted {
		seeds[normalize.Normalize(s)] = struct{}{}
	}
	for _, s := range newSeeds {
		seeds[s] = struct{}{}
	}
	seedList := make([]string, 0, len(seeds))
	for s := range seeds {
		seedList = append(seedList, s)
	}

	// Step 13: resolve test universe.
	universe, err := o.deps.Glob(rootDir, pcfg.IncludePattern, pcfg.ExcludePattern)
	if err != nil {
		o.diag.Warn("failed to resolve test universe: %v", err)
		return o.record(Decision{Reason: "glob-failure", CacheHit: loadResult.Hit, Graph: reverse}, start, changeSet, 0, 0), nil
	}
	if len(universe) == 0 {
		o.diag.Warn("globbed test universe is empty")
		return o.record(Decision{Reason: "empty-test-universe", CacheHit: loadResult.Hit, Graph: reverse}, start, changeSet, 0, 0), nil
	}
	universeSet := make(map[string]struct{}, len(universe))
	for _, u := range universe {
		universeSet[normalize.Normalize(u)] = struct{}{}
	}
	isTestFile := func(path string) bool {
		_, ok := universeSet[path]
		return ok
	}

	// Step 14: BFS.
	affected := bfs.AffectedTests(seedList, reverse, isTestFile)

	// Step 15: zero-affected policy.
	if len(affected) == 0 {
		if o.cfg.AllowNoTests {
			project.SetInclude([]string{})
			return o.record(Decision{Selective: true, Include: []string{}, Reason: "no-tests-affected", CacheHit: loadResult.Hit, Graph: reverse},
				start, changeSet, 0, len(universe)), nil
		}
		o.diag.Warn("no tests affected and allowNoTests is false; falling back to full suite")
		return o.record(Decision{Reason: "no-tests-affected", CacheHit: loadResult.Hit, Graph: reverse}, start, changeSet, 0, len(universe)), nil
	}

	// Step 16: threshold gate.
	threshold := o.cfg.Threshold
	if threshold <= 0 {
		threshold = 1.0
	}
	if ratio := float64(len(affected)) / float64(len(universe)); ratio > threshold {
		o.diag.Warn("affected/universe ratio %.3f exceeds threshold %.3f", ratio, threshold)
		return o.record(Decision{Reason: "threshold-exceeded", CacheHit: loadResult.Hit, Graph: reverse}, start, changeSet, len(affected), len(universe)), nil
	}

	// Step 17: disk existence filter.
	surviving := make([]string, 0, len(affected))
	for _, t := range affected {
		if o.deps.Exists(t) {
			surviving = append(surviving, t)
		} else {
			o.diag.Warn("affected test no longer exists on disk: %s", t)
		}
	}
	sort.Strings(surviving)
	if len(surviving) == 0 {
		o.diag.Warn("no affected test still exists on disk; falling back to full suite")
		return o.record(Decision{Reason: "no-tests-affected", CacheHit: loadResult.Hit, Graph: reverse}, start, changeSet, 0, len(universe)), nil
	}

	// Step 18: apply.
	project.SetInclude(surviving)

	return o.record(Decision{Selective: true, Include: surviving, CacheHit: loadResult.Hit, Graph: reverse},
		start, changeSet, len(surviving), len(universe)), nil
}

// handleDetectError implements step 19's catch-all for the one error the
// change detector can surface synchronously: a Hard kind (shallow
// history + ref) escapes per §7's propagation policy; anything else is
// folded into the generic uncaught-error SafeFallback.
func (o *Orchestrator) handleDetectError(err error, start time.Time) (Decision, error) {
	var fb *diagnostic.FallbackError
	if errors.As(err, &fb) && fb.Kind == diagnostic.Hard {
		return Decision{}, err
	}
	o.diag.Warn("change detection failed: %v", err)
	return o.record(Decision{Reason: "change-detection-error"}, start, vcsdiff.ChangeSet{}, 0, 0), nil
}

// fullSuiteTrigger returns a non-empty reason string ("config-change" or
// "setup-file-change") if any touched path matches a configuration-file
// basename or a configured setup file, per §4.7 step 10.
func (o *Orchestrator) fullSuiteTrigger(touched []string, setupFiles []string, rootDir string) string {
	setupSet := make(map[string]struct{}, len(setupFiles))
	for _, s := range setupFiles {
		abs := s
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(rootDir, abs)
		}
		setupSet[normalize.Normalize(abs)] = struct{}{}
	}

	for _, path := range touched {
		if _, ok := configFileBasenames[filepath.Base(path)]; ok {
			return "config-change"
		}
		if _, ok := setupSet[normalize.Normalize(path)]; ok {
			return "setup-file-change"
		}
	}
	return ""
}

func (o *Orchestrator) record(d Decision, start time.Time, cs vcsdiff.ChangeSet, affected, total int) Decision {
	if o.stats != nil {
		action := statsjournal.ActionFullSuite
		if d.Selective {
			action = statsjournal.ActionSelective
		}
		o.stats.Append(statsjournal.Entry{
			Action:        action,
			Reason:        d.Reason,
			ChangedFiles:  len(cs.Changed),
			DeletedFiles:  len(cs.Deleted),
			AffectedTests: affected,
			TotalTests:    total,
			GraphSize:     len(d.Graph),
			CacheHit:      d.CacheHit,
			DurationMs:    float64(o.deps.Now().Sub(start).Milliseconds()),
		})
	}
	return d
}

func partitionByExistence(paths []string, rootDir string, exists func(string) bool) vcsdiff.ChangeSet {
	var cs vcsdiff.ChangeSet
	for _, p := range paths {
		abs := p
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(rootDir, abs)
		}
		abs = normalize.Normalize(abs)
		if exists(abs) {
			cs.Changed = append(cs.Changed, abs)
		} else {
			cs.Deleted = append(cs.Deleted, abs)
		}
	}
	return cs
}

// globTestUniverse resolves include against rootDir with doublestar,
// dropping anything matched by exclude or lying under node_modules, per
// §4.7 step 13.
func globTestUniverse(root string, include, exclude []string) ([]string, error) {
	excludeAll := append(append([]string{}, exclude...), "**/node_modules/**")

	fsys := os.DirFS(root)
	seen := make(map[string]struct{})
	var out []string

	for _, pattern := range include {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if excludedBy(m, excludeAll) {
				continue
			}
			abs := normalize.Normalize(filepath.Join(root, m))
			if _, ok := seen[abs]; ok {
				continue
			}
			seen[abs] = struct{}{}
			out = append(out, abs)
		}
	}

	sort.Strings(out)
	return out, nil
}

func excludedBy(relPath string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, relPath); ok {
			return true
		}
	}
	return false
}

func defaultExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
