// Package policy answers membership queries against the reserved and
// blacklisted name lists maintained outside the write path.
package policy

import (
	"context"
	"net/url"
	"strings"
)

// Lookup is safe for concurrent use. Results are eventually consistent with
// the list source and carry no transactional guarantee.
type Lookup interface {
	IsReservedKey(ctx context.Context, key string) bool
	IsBlacklistedKey(ctx context.Context, key string) bool
	IsReservedUsername(ctx context.Context, key string) bool
	IsBlacklistedDomain(ctx context.Context, rawURL string) bool
}

// Host extracts the lower-cased host of rawURL without the "www." prefix.
func Host(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// candidates returns host and each of its parent domains, e.g.
// a.b.example.com -> [a.b.example.com b.example.com example.com].
func candidates(host string) []string {
	var out []string
	for host != "" {
		out = append(out, host)
		i := strings.IndexByte(host, '.')
		if i < 0 {
			break
		}
		host = host[i+1:]
		if !strings.Contains(host, ".") {
			break
		}
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
