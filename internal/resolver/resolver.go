// Package resolver maps an import specifier found in a source file to the
// absolute path of the file it refers to: relative and absolute
// specifiers are resolved directly; bare specifiers are checked against
// the project's tsconfig path mappings using the same longest-prefix
// wildcard algorithm the teacher uses to rewrite emitted imports, run in
// the opposite direction — resolving a specifier down to a source file
// rather than rewriting an already-resolved path back into a specifier.
//
// The wildcard-matching algorithm is adapted from esbuild's resolver
// (MIT licensed), exactly as the teacher's own path-alias rewriter
// states; see DESIGN.md.
package resolver

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/microsoft/typescript-go/shim/compiler"
	"github.com/microsoft/typescript-go/shim/core"
	"github.com/microsoft/typescript-go/shim/tsoptions"
)

// recognizedExtensions are probed, in order, against an extension-less
// specifier and against the specifier's own directory-as-index form.
var recognizedExtensions = []string{".ts", ".tsx", ".mts", ".cts", ".js", ".jsx", ".mjs", ".cjs"}

// binaryAssetExtensions are rejected outright in §4.4 step 2 — a
// specifier naming one of these can never be a module.
var binaryAssetExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".webp": {}, ".avif": {}, ".svg": {},
	".ico": {}, ".bmp": {},
	".woff": {}, ".woff2": {}, ".ttf": {}, ".otf": {}, ".eot": {},
	".mp3": {}, ".mp4": {}, ".wav": {}, ".ogg": {}, ".webm": {},
	".pdf": {}, ".zip": {},
}

// IsBinaryAsset reports whether specifier's extension names a binary
// asset type that can never resolve to a module.
func IsBinaryAsset(specifier string) bool {
	_, ok := binaryAssetExtensions[strings.ToLower(filepath.Ext(specifier))]
	return ok
}

// PathMapping holds the subset of tsconfig compiler options this
// resolver needs: the base directory path targets are resolved against,
// and the alias-pattern-to-target-list table.
type PathMapping struct {
	BaseDir string
	Paths   map[string][]string
}

// LoadPathMapping parses rootDir's tsconfig.json (if any) through the
// real TypeScript config parser, the same call the teacher's own
// ParseTSConfig makes, and extracts baseUrl/paths. A missing or
// unparseable tsconfig yields a zero-value PathMapping — bare specifiers
// then simply fail to resolve via aliasing and fall through to the
// node_modules skip, which is the correct behavior for a project with no
// path mapping configured.
func LoadPathMapping(host compiler.CompilerHost, rootDir string) PathMapping {
	configParseResult, diags := tsoptions.GetParsedCommandLineOfConfigFile(
		"tsconfig.json", &core.CompilerOptions{}, nil, host, nil,
	)
	if len(diags) > 0 || configParseResult == nil {
		return PathMapping{}
	}

	opts := configParseResult.CompilerOptions()
	if opts == nil || opts.Paths == nil || opts.Paths.Size() == 0 {
		return PathMapping{}
	}

	paths := make(map[string][]string, opts.Paths.Size())
	for k, v := range opts.Paths.Entries() {
		paths[k] = v
	}

	return PathMapping{
		BaseDir: opts.GetPathsBasePath(rootDir),
		Paths:   paths,
	}
}

// Resolver resolves specifiers against a fixed project root and path
// mapping, probing the real filesystem for a matching file.
type Resolver struct {
	rootDir string
	mapping PathMapping
	exists  func(string) bool
}

// New constructs a Resolver rooted at rootDir. exists overrides the
// default os.Stat-based existence check, for tests that resolve against
// a virtual file set.
func New(rootDir string, mapping PathMapping, exists func(string) bool) *Resolver {
	if exists == nil {
		exists = defaultExists
	}
	return &Resolver{rootDir: rootDir, mapping: mapping, exists: exists}
}

func defaultExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Resolve maps specifier, referenced from fromFile, to an absolute path
// under rootDir. It returns ok=false (a soft miss, per §4.4 step 3) for
// built-in modules, bare specifiers with no matching alias (treated as
// external packages living in node_modules), and any specifier that
// cannot be probed to an existing file.
func (r *Resolver) Resolve(specifier string, fromFile string) (path string, ok bool) {
	if isBuiltin(specifier) {
		return "", false
	}

	if strings.HasPrefix(specifier, ".") {
		base := filepath.Join(filepath.Dir(fromFile), specifier)
		return r.probe(base)
	}
	if strings.HasPrefix(specifier, "/") {
		return r.probe(specifier)
	}

	if target, matched := r.matchAlias(specifier); matched {
		return r.probe(target)
	}

	// A bare specifier with no alias match names an external package;
	// those resolve inside node_modules and are skipped per §4.4 step 3.
	return "", false
}

// probe tries base as a literal file, then with each recognized
// extension appended, then as a directory containing an index file with
// each recognized extension. It applies the path-boundary guard of
// §4.4 step 4: a resolved path that does not lie under r.rootDir is
// rejected even if it exists on disk.
func (r *Resolver) probe(base string) (string, bool) {
	base = filepath.Clean(base)

	candidates := make([]string, 0, 2*len(recognizedExtensions)+1)
	candidates = append(candidates, base)
	for _, ext := range recognizedExtensions {
		candidates = append(candidates, base+ext)
	}
	for _, ext := range recognizedExtensions {
		candidates = append(candidates, filepath.Join(base, "index"+ext))
	}

	for _, c := range candidates {
		if !r.withinRoot(c) {
			continue
		}
		if r.exists(c) {
			return filepath.ToSlash(c), true
		}
	}
	return "", false
}

// withinRoot guards against a resolved path escaping rootDir — e.g. a
// sibling directory sharing rootDir as a string prefix without a path
// separator between them ("/proj" vs "/project-other").
func (r *Resolver) withinRoot(path string) bool {
	rel, err := filepath.Rel(r.rootDir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// matchAlias applies the longest-prefix wildcard match of the teacher's
// pathalias.go, direction-flipped: instead of substituting a matched
// wildcard into an output-relative path, it substitutes into the
// configured source target and returns an absolute candidate path (still
// subject to extension/index probing by the caller).
func (r *Resolver) matchAlias(specifier string) (string, bool) {
	if len(r.mapping.Paths) == 0 {
		return "", false
	}

	// Phase 1: exact (non-wildcard) match.
	for key, targets := range r.mapping.Paths {
		if !strings.Contains(key, "*") && key == specifier && len(targets) > 0 {
			return filepath.Join(r.mapping.BaseDir, strings.TrimPrefix(targets[0], "./")), true
		}
	}

	// Phase 2: wildcard match, longest prefix wins, ties broken by
	// longest suffix.
	longestPrefixLen, longestSuffixLen := -1, -1
	var bestPrefix, bestSuffix string
	var bestTargets []string

	for key, targets := range r.mapping.Paths {
		starIdx := strings.IndexByte(key, '*')
		if starIdx < 0 {
			continue
		}
		prefix, suffix := key[:starIdx], key[starIdx+1:]
		if !strings.HasPrefix(specifier, prefix) || !strings.HasSuffix(specifier, suffix) {
			continue
		}
		if len(specifier) < len(prefix)+len(suffix) {
			continue
		}
		if len(prefix) > longestPrefixLen || (len(prefix) == longestPrefixLen && len(suffix) > longestSuffixLen) {
			longestPrefixLen, longestSuffixLen = len(prefix), len(suffix)
			bestPrefix, bestSuffix, bestTargets = prefix, suffix, targets
		}
	}

	if longestPrefixLen < 0 || len(bestTargets) == 0 {
		return "", false
	}

	matched := specifier[len(bestPrefix) : len(specifier)-len(bestSuffix)]
	target := strings.Replace(strings.TrimPrefix(bestTargets[0], "./"), "*", matched, 1)
	return filepath.Join(r.mapping.BaseDir, target), true
}

// isBuiltin reports whether specifier names a Node.js built-in module,
// which never resolves to a project file.
func isBuiltin(specifier string) bool {
	name := strings.TrimPrefix(specifier, "node:")
	_, ok := nodeBuiltins[name]
	return ok
}

var nodeBuiltins = map[string]struct{}{
	"assert": {}, "buffer": {}, "child_process": {}, "cluster": {}, "crypto": {},
	"dgram": {}, "dns": {}, "events": {}, "fs": {}, "http": {}, "http2": {},
	"https": {}, "net": {}, "os": {}, "path": {}, "perf_hooks": {}, "process": {},
	"punycode": {}, "querystring": {}, "readline": {}, "stream": {}, "string_decoder": {},
	"timers": {}, "tls": {}, "tty": {}, "url": {}, "util": {}, "v8": {}, "vm": {},
	"worker_threads": {}, "zlib": {},
}
