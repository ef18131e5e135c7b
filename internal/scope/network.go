package scope

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// NetworkDefault is the fallback behavior when no list matches a URL.
type NetworkDefault string

const (
	NetworkAllow NetworkDefault = "allow"
	NetworkDeny  NetworkDefault = "deny"
)

// NetworkScope declares the network boundary. Denied domains always win;
// then allowed URL patterns, then allowed domains, then Default.
// Domain entries support a `*.` prefix which matches the bare domain and
// any dot-separated subdomain.
type NetworkScope struct {
	Default            NetworkDefault `yaml:"default"`
	AllowedDomains     []string       `yaml:"allowed_domains"`
	AllowedURLPatterns []string       `yaml:"allowed_url_patterns"`
	DeniedDomains      []string       `yaml:"denied_domains"`
}

// NetworkGuard enforces a NetworkScope. Safe for concurrent use after
// construction.
type NetworkGuard struct {
	scope    NetworkScope
	urlGlobs []*regexp.Regexp
	urlRaw   []string
}

// NewNetworkGuard precompiles the URL glob patterns. Patterns that fail
// to compile are dropped so a bad entry cannot crash evaluation.
func NewNetworkGuard(s NetworkScope) *NetworkGuard {
	g := &NetworkGuard{scope: s}
	for _, p := range s.AllowedURLPatterns {
		re, err := CompileGlob(p)
		if err != nil {
			continue
		}
		g.urlGlobs = append(g.urlGlobs, re)
		g.urlRaw = append(g.urlRaw, p)
	}
	return g
}

// Check decides whether rawURL may be requested. Invalid URLs are denied.
func (g *NetworkGuard) Check(rawURL string) Verdict {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Hostname() == "" {
		return denied(fmt.Sprintf("invalid URL %q", rawURL))
	}
	host := strings.ToLower(u.Hostname())

	for _, d := range g.scope.DeniedDomains {
		if matchDomain(d, host) {
			return denied(fmt.Sprintf("domain %s is denied by %q", host, d))
		}
	}

	for i, re := range g.urlGlobs {
		if re.MatchString(rawURL) {
			return allowed(fmt.Sprintf("URL matched allow pattern %q", g.urlRaw[i]))
		}
	}

	for _, d := range g.scope.AllowedDomains {
		if matchDomain(d, host) {
			return allowed(fmt.Sprintf("domain %s allowed by %q", host, d))
		}
	}

	if g.scope.Default == NetworkAllow {
		return allowed("default allow")
	}
	return denied(fmt.Sprintf("domain %s matches no allow list and default is deny", host))
}

// matchDomain matches host against pattern. `*.example.com` matches
// example.com itself and any dot-separated subdomain, never
// notexample.com or example.com.evil.com.
func matchDomain(pattern, host string) bool {
	pattern = strings.ToLower(pattern)
	if base, ok := strings.CutPrefix(pattern, "*."); ok {
		return host == base || strings.HasSuffix(host, "."+base)
	}
	return host == pattern
}
