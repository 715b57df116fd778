package sdk

import (
	"strings"
)

// DefaultStripPrefixes are the redundant prefixes callers tend to include by
// mistake. "/api/v1" precedes "/api" so "/api/v1/x" loses the whole
// version prefix rather than just "/api".
var DefaultStripPrefixes = []string{
	"/api/v1",
	"/api",
	"/.netlify/functions/api",
}

// PathNormalizer rewrites logical paths into their canonical form.
// It performs no I/O and never fails.
type PathNormalizer struct {
	prefixes []string
}

// NewPathNormalizer creates a normalizer that strips the given prefixes.
// Prefixes are cleaned the same way paths are, empty ones are ignored.
func NewPathNormalizer(prefixes []string) *PathNormalizer {
	cleaned := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		p = collapseSlashes("/" + strings.Trim(p, "/"))
		if p == "/" {
			continue
		}
		cleaned = append(cleaned, p)
	}
	return &PathNormalizer{prefixes: cleaned}
}

// Normalize returns the canonical form of p: no recognized prefix, exactly
// one leading separator, no repeated separators. The query string, if any, is
// kept as-is. Normalize(Normalize(p)) == Normalize(p).
//
// Example:
//
//	n := sdk.NewPathNormalizer(sdk.DefaultStripPrefixes)
//	n.Normalize("api//forum/discussions") // "/forum/discussions"
//	n.Normalize("")                       // "/"
func (n *PathNormalizer) Normalize(p string) string {
	path, query := p, ""
	if i := strings.IndexByte(p, '?'); i >= 0 {
		path, query = p[:i], p[i:]
	}

	path = collapseSlashes("/" + path)

	// Strip until nothing matches, otherwise "/api/api/x" would need two passes
	for stripped := true; stripped; {
		stripped = false
		for _, prefix := range n.prefixes {
			if rest, ok := cutSegmentPrefix(path, prefix); ok {
				path = rest
				stripped = true
				break
			}
		}
	}

	if path == "" {
		path = "/"
	}
	return path + query
}

// cutSegmentPrefix removes prefix from path only on a segment boundary, so
// "/apiary" is not treated as "/api" + "ary".
func cutSegmentPrefix(path, prefix string) (string, bool) {
	if !strings.HasPrefix(path, prefix) {
		return path, false
	}
	rest := path[len(prefix):]
	if rest == "" {
		return "/", true
	}
	if rest[0] != '/' {
		return path, false
	}
	return rest, true
}

func collapseSlashes(p string) string {
	if !strings.Contains(p, "//") {
		return p
	}
	var b strings.Builder
	b.Grow(len(p))
	prevSlash := false
	for i := 0; i < len(p); i++ {
		c := p[i]
		if c == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteByte(c)
	}
	return b.String()
}

// JoinBase appends a canonical path to a transport base address, which may
// carry its own path (e.g. "https://site/.netlify/functions/api").
func JoinBase(base, canonical string) string {
	return strings.TrimRight(base, "/") + canonical
}
