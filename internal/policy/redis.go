package policy

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis set names under the configured prefix.
const (
	setReservedKeys       = "reserved_keys"
	setBlacklistedKeys    = "blacklisted_keys"
	setReservedUsernames  = "reserved_usernames"
	setBlacklistedDomains = "blacklisted_domains"
	setBlacklistedTerms   = "blacklisted_terms"
)

// Redis serves lookups from Redis sets maintained by an external process.
// Errors are logged and answered with false.
type Redis struct {
	rdb    redis.UniversalClient
	prefix string
	log    *zap.Logger
}

func NewRedis(rdb redis.UniversalClient, prefix string, log *zap.Logger) *Redis {
	if prefix != "" {
		prefix += ":"
	}
	return &Redis{rdb: rdb, prefix: prefix, log: log}
}

func (r *Redis) member(ctx context.Context, name, value string) bool {
	ok, err := r.rdb.SIsMember(ctx, r.prefix+name, normalize(value)).Result()
	if err != nil {
		r.log.Warn("policy lookup failed", zap.String("set", name), zap.Error(err))
		return false
	}
	return ok
}

func (r *Redis) IsReservedKey(ctx context.Context, key string) bool {
	return r.member(ctx, setReservedKeys, key)
}

func (r *Redis) IsBlacklistedKey(ctx context.Context, key string) bool {
	return r.member(ctx, setBlacklistedKeys, key)
}

func (r *Redis) IsReservedUsername(ctx context.Context, key string) bool {
	return r.member(ctx, setReservedUsernames, key)
}

func (r *Redis) IsBlacklistedDomain(ctx context.Context, rawURL string) bool {
	host := Host(rawURL)
	if host == "" {
		return false
	}

	hosts := candidates(host)
	members := make([]interface{}, len(hosts))
	for i, h := range hosts {
		members[i] = h
	}
	hits, err := r.rdb.SMIsMember(ctx, r.prefix+setBlacklistedDomains, members...).Result()
	if err != nil {
		r.log.Warn("policy lookup failed", zap.String("set", setBlacklistedDomains), zap.Error(err))
		return false
	}
	for _, hit := range hits {
		if hit {
			return true
		}
	}

	terms, err := r.rdb.SMembers(ctx, r.prefix+setBlacklistedTerms).Result()
	if err != nil {
		r.log.Warn("policy lookup failed", zap.String("set", setBlacklistedTerms), zap.Error(err))
		return false
	}
	for _, term := range terms {
		if t := normalize(term); t != "" && strings.Contains(host, t) {
			return true
		}
	}
	return false
}
