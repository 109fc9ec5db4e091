// Package cache persists the reverse-dependency map (source file -> set of
// tests that imported it) as a versioned JSON document, with atomic
// write-then-rename semantics, prototype-pollution-safe parsing, and
// self-healing prune/merge operations.
//
// The on-disk shape and the atomic-write discipline are grounded directly
// on the teacher's own incremental build cache; see DESIGN.md.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/craigvandotcom/vitest-affected-go/internal/bfs"
)

// SchemaVersion is the current cache document schema. Readers accept
// {1, 2}; writers always produce SchemaVersion.
const SchemaVersion = 2

// CacheFileName is the cache document's file name inside the state
// directory (conventionally ".vitest-affected/").
const CacheFileName = "graph.json"

// tempFilePrefix marks transient atomic-write files. Orphans left behind
// by a crashed writer are swept on every Load.
const tempFilePrefix = ".tmp-"

// prohibited prototype-pollution key names. A document containing any of
// these as an object key, at any nesting level, is discarded as invalid.
var prohibitedKeys = map[string]struct{}{
	"__proto__":   {},
	"constructor": {},
	"prototype":   {},
}

// ReverseMap maps a canonical source path to the set of canonical test
// paths known to have imported it.
type ReverseMap = bfs.ReverseMap

// document is the on-disk v2 cache shape.
type document struct {
	Version      int                 `json:"version"`
	BuiltAt      int64               `json:"builtAt"`
	RuntimeEdges map[string][]string `json:"runtimeEdges"`
}

// documentV1 is the legacy shape: the same envelope, plus a v1-only
// inlined-edges field that v2 readers parse for its envelope fields only
// and otherwise discard. See SPEC_FULL.md §4 ("Supplemented features").
type documentV1 struct {
	Version      int                 `json:"version"`
	BuiltAt      int64               `json:"builtAt"`
	RuntimeEdges map[string][]string `json:"runtimeEdges"`
	InlinedEdges []inlinedEdgeV1     `json:"inlinedEdges"`
}

type inlinedEdgeV1 struct {
	Source string `json:"source"`
	Test   string `json:"test"`
}

// LoadResult is the outcome of loading the cache from disk.
type LoadResult struct {
	Reverse ReverseMap
	Hit     bool
}

// Load reads the cache document from cacheDir, pruning every stored
// source and test path against the current state of disk. Orphaned ".tmp-*" files from a prior crashed writer are
// removed first. On ENOENT, parse failure, or validation failure, Load
// returns an empty map with Hit=false; it never returns an error, since a
// cold or corrupt cache is always a safe "miss" to the orchestrator.
func Load(cacheDir string) LoadResult {
	cleanOrphans(cacheDir)

	path := filepath.Join(cacheDir, CacheFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return LoadResult{Reverse: ReverseMap{}, Hit: false}
	}

	reverse, ok := parseDocument(data)
	if !ok {
		return LoadResult{Reverse: ReverseMap{}, Hit: false}
	}

	Prune(reverse)
	return LoadResult{Reverse: reverse, Hit: true}
}

// parseDocument validates and decodes raw JSON bytes into a ReverseMap.
// It rejects documents containing a prohibited prototype key at any
// nesting level, an unrecognized schema version, or a shape mismatch.
func parseDocument(data []byte) (ReverseMap, bool) {
	if containsProhibitedKey(data) {
		return nil, false
	}

	var envelope struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, false
	}

	switch envelope.Version {
	case 2:
		var doc document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, false
		}
		return toReverseMap(doc.RuntimeEdges), true
	case 1:
		var doc documentV1
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, false
		}
		// Migrate 1 -> 2: discard InlinedEdges, keep runtimeEdges only.
		return toReverseMap(doc.RuntimeEdges), true
	default:
		return nil, false
	}
}

func toReverseMap(edges map[string][]string) ReverseMap {
	reverse := make(ReverseMap, len(edges))
	for source, tests := range edges {
		set := make(map[string]struct{}, len(tests))
		for _, test := range tests {
			set[test] = struct{}{}
		}
		reverse[source] = set
	}
	return reverse
}

// containsProhibitedKey walks the raw JSON looking for any object key
// named __proto__, constructor, or prototype, at any nesting depth. A
// json.Decoder token stream is used rather than unmarshaling into
// map[string]any first, so a malicious document can't pollute anything
// before it is rejected.
func containsProhibitedKey(data []byte) bool {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()

	// expectKey tracks, per open container, whether the next string token
	// is a key (true) or a value (false); isObject tells objects from
	// arrays, whose elements are never keys.
	var expectKey, isObject []bool
	// valueDone records that a complete value was consumed: inside an
	// object, the next string token is a key again.
	valueDone := func() {
		if n := len(isObject); n > 0 && isObject[n-1] {
			expectKey[n-1] = true
		}
	}

	for {
		tok, err := dec.Token()
		if err != nil {
			// EOF or malformed JSON; malformed is handled by the real
			// unmarshal pass that follows, so just stop scanning here.
			return false
		}
		switch t := tok.(type) {
		case json.Delim:
			switch t {
			case '{':
				expectKey, isObject = append(expectKey, true), append(isObject, true)
			case '[':
				expectKey, isObject = append(expectKey, false), append(isObject, false)
			case '}', ']':
				if n := len(expectKey); n > 0 {
					expectKey, isObject = expectKey[:n-1], isObject[:n-1]
				}
				valueDone()
			}
		case string:
			if len(expectKey) > 0 && expectKey[len(expectKey)-1] {
				if _, bad := prohibitedKeys[t]; bad {
					return true
				}
				// The key has been consumed; the following value is not a key.
				expectKey[len(expectKey)-1] = false
			} else {
				valueDone()
			}
		default:
			valueDone()
		}
	}
}

// Prune removes, in place:
//   - any key (source path) that is no longer present on disk
//   - any test reference in a value set whose test path is no longer on disk
//   - any key whose value set becomes empty after the above
func Prune(reverse ReverseMap) {
	for source, tests := range reverse {
		if !fileExists(source) {
			delete(reverse, source)
			continue
		}
		for test := range tests {
			if !fileExists(test) {
				delete(tests, test)
			}
		}
		if len(tests) == 0 {
			delete(reverse, source)
		}
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// MergeRunEdges applies per-test overwrite semantics (§4.3): every test
// that appears anywhere in newEdges' value sets is first stripped from
// every value set in reverse (so imports it no longer makes are
// forgotten), and keys that become empty are deleted; then every
// (source, test) pair in newEdges is added back.
//
// This lets a selective (partial) run refresh exactly its own edges
// without discarding data for tests that did not run this cycle, while
// still reflecting imports a test stopped making since the prior run.
func MergeRunEdges(reverse ReverseMap, newEdges ReverseMap) {
	ranTests := make(map[string]struct{})
	for _, tests := range newEdges {
		for test := range tests {
			ranTests[test] = struct{}{}
		}
	}

	for source, tests := range reverse {
		for test := range ranTests {
			delete(tests, test)
		}
		if len(tests) == 0 {
			delete(reverse, source)
		}
	}

	for source, tests := range newEdges {
		dst, ok := reverse[source]
		if !ok {
			dst = make(map[string]struct{}, len(tests))
			reverse[source] = dst
		}
		for test := range tests {
			dst[test] = struct{}{}
		}
	}
}

// Save serializes reverse into the v2 document and writes it to cacheDir
// atomically: a uniquely named temp file is written in the same
// directory and renamed over CacheFileName, so any concurrent reader
// observes either the fully previous or fully new content, never a
// torn write.
func Save(cacheDir string, reverse ReverseMap) error {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory %s: %w", cacheDir, err)
	}

	doc := document{
		Version:      SchemaVersion,
		BuiltAt:      time.Now().UnixMilli(),
		RuntimeEdges: toEdgesJSON(reverse),
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling cache: %w", err)
	}

	path := filepath.Join(cacheDir, CacheFileName)
	tmp := filepath.Join(cacheDir, tempFilePrefix+randomSuffix()+".json")

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing cache temp file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming cache file: %w", err)
	}

	return nil
}

func toEdgesJSON(reverse ReverseMap) map[string][]string {
	out := make(map[string][]string, len(reverse))
	for source, tests := range reverse {
		list := make([]string, 0, len(tests))
		for test := range tests {
			list = append(list, test)
		}
		sort.Strings(list)
		out[source] = list
	}
	return out
}

// randomSuffix produces a short unique-enough suffix for temp file names
// without pulling in a UUID dependency: pid + nanosecond wall-clock time
// is unique per writer per process, and collisions across processes are
// vanishingly unlikely within the same nanosecond.
func randomSuffix() string {
	return strconv.FormatInt(time.Now().UnixNano(), 36) + "-" + strconv.Itoa(os.Getpid())
}

// cleanOrphans removes ".tmp-*" files left behind by a writer that
// crashed between WriteFile and Rename.
func cleanOrphans(cacheDir string) {
	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), tempFilePrefix) {
			os.Remove(filepath.Join(cacheDir, e.Name()))
		}
	}
}

// Delete removes the entire cache state directory. A directory that does
// not exist is not an error; any other removal error is returned.
func Delete(cacheDir string) error {
	err := os.RemoveAll(cacheDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
