// Package normalize strips host-runner-specific decoration from module
// identifiers, producing the canonical absolute paths used as graph keys
// throughout the cache, the BFS selector, and the delta parser.
package normalize

import "strings"

const (
	virtualModuleSentinel = '\x00'
	fsPrefix              = "/@fs/"
	bundledIDPrefix        = "/@id/"
)

// Normalize reduces a module identifier to its canonical form:
//   - strips a leading virtual-module sentinel byte
//   - strips a leading "/@fs/" dev-server prefix (and any doubled slash
//     it would leave behind), so the result starts with the absolute path
//     that followed it
//   - leaves a leading "/@id/" prefix untouched — such identifiers name
//     pre-bundled dependencies and are deliberately kept out of the
//     reverse map; callers treat them conservatively
//   - strips the query suffix starting at the first '?'
//   - converts backslashes to forward slashes
//
// Normalize is pure, total, and idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(id string) string {
	if id == "" {
		return id
	}

	if id[0] == virtualModuleSentinel {
		id = id[1:]
	}

	if strings.HasPrefix(id, bundledIDPrefix) {
		return stripQuery(toSlash(id))
	}

	if strings.HasPrefix(id, fsPrefix) {
		rest := id[len(fsPrefix):]
		// A doubled separator (e.g. "/@fs//home/x") would otherwise survive
		// the prefix strip and produce a non-canonical "//home/x".
		for strings.HasPrefix(rest, "/") {
			rest = rest[1:]
		}
		id = "/" + rest
	}

	return stripQuery(toSlash(id))
}

func stripQuery(id string) string {
	if i := strings.IndexByte(id, '?'); i >= 0 {
		return id[:i]
	}
	return id
}

func toSlash(id string) string {
	if !strings.ContainsRune(id, '\\') {
		return id
	}
	return strings.ReplaceAll(id, "\\", "/")
}

// IsPreBundledID reports whether id names a pre-bundled dependency
// ("/@id/..."), which callers must treat conservatively since it never
// appears as a key in the reverse map.
func IsPreBundledID(id string) bool {
	return strings.HasPrefix(id, bundledIDPrefix)
}
