package scope

import (
	"regexp"
	"strings"
)

// CompileGlob translates a glob pattern into an anchored regexp.
// `*` matches any run of non-separator characters, `**` matches any run
// including separators, and `?` matches a single non-separator character.
// All other regexp metacharacters are matched literally.
func CompileGlob(pattern string) (*regexp.Regexp, error) {
	escaped := regexp.QuoteMeta(pattern)
	escaped = strings.ReplaceAll(escaped, `\*\*`, `.*`)
	escaped = strings.ReplaceAll(escaped, `\*`, `[^/]*`)
	escaped = strings.ReplaceAll(escaped, `\?`, `[^/]`)
	return regexp.Compile("^" + escaped + "$")
}

// hasGlobMeta reports whether a pattern contains glob metacharacters.
// Patterns without them are treated as literal path prefixes.
func hasGlobMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?")
}

// pathPattern matches either as a compiled glob or as a literal prefix.
type pathPattern struct {
	raw    string
	prefix string
	glob   *regexp.Regexp
}

// compilePathPattern builds a pathPattern. Home-relative patterns are
// expanded so they compare against normalized absolute paths. A pattern
// that fails to compile matches nothing rather than erroring, so a bad
// entry cannot open or crash the guard.
func compilePathPattern(raw string) pathPattern {
	expanded := expandHome(raw)
	p := pathPattern{raw: raw}
	if hasGlobMeta(expanded) {
		if re, err := CompileGlob(expanded); err == nil {
			p.glob = re
		}
		return p
	}
	p.prefix = strings.TrimSuffix(expanded, "/")
	return p
}

// match reports whether the normalized path is covered by the pattern:
// glob match for glob patterns, exact-or-prefix containment otherwise.
func (p pathPattern) match(path string) bool {
	if p.glob != nil {
		return p.glob.MatchString(path)
	}
	if p.prefix == "" {
		return false
	}
	return path == p.prefix || strings.HasPrefix(path, p.prefix+"/")
}

func compilePathPatterns(raw []string) []pathPattern {
	out := make([]pathPattern, 0, len(raw))
	for _, r := range raw {
		out = append(out, compilePathPattern(r))
	}
	return out
}
