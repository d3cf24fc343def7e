package policy

import (
	"SLINK-Backend/internal/config"
	"context"
	"strings"
)

type set map[string]struct{}

func newSet(items []string) set {
	s := make(set, len(items))
	for _, it := range items {
		if it = normalize(it); it != "" {
			s[it] = struct{}{}
		}
	}
	return s
}

func (s set) has(v string) bool {
	_, ok := s[normalize(v)]
	return ok
}

// Static serves lookups from lists loaded once from configuration.
type Static struct {
	reservedKeys       set
	blacklistedKeys    set
	reservedUsernames  set
	blacklistedDomains set
	blacklistedTerms   []string
}

func NewStatic(cfg config.Policy) *Static {
	terms := make([]string, 0, len(cfg.BlacklistedTerms))
	for _, t := range cfg.BlacklistedTerms {
		if t = normalize(t); t != "" {
			terms = append(terms, t)
		}
	}
	return &Static{
		reservedKeys:       newSet(cfg.ReservedKeys),
		blacklistedKeys:    newSet(cfg.BlacklistedKeys),
		reservedUsernames:  newSet(cfg.ReservedUsernames),
		blacklistedDomains: newSet(cfg.BlacklistedDomains),
		blacklistedTerms:   terms,
	}
}

func (s *Static) IsReservedKey(_ context.Context, key string) bool {
	return s.reservedKeys.has(key)
}

func (s *Static) IsBlacklistedKey(_ context.Context, key string) bool {
	return s.blacklistedKeys.has(key)
}

func (s *Static) IsReservedUsername(_ context.Context, key string) bool {
	return s.reservedUsernames.has(key)
}

func (s *Static) IsBlacklistedDomain(_ context.Context, rawURL string) bool {
	host := Host(rawURL)
	if host == "" {
		return false
	}
	for _, c := range candidates(host) {
		if s.blacklistedDomains.has(c) {
			return true
		}
	}
	for _, term := range s.blacklistedTerms {
		if strings.Contains(host, term) {
			return true
		}
	}
	return false
}
