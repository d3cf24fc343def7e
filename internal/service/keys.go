package service

import (
	"SLINK-Backend/internal/config"
	"SLINK-Backend/internal/domain"
	"SLINK-Backend/internal/policy"
	"SLINK-Backend/internal/repository"
	"SLINK-Backend/pkg/random"
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

const (
	defaultKeyLength      = 7
	defaultMaxKeyAttempts = 10
	// Keys of this many runes or fewer on platform domains need a paid plan
	shortKeyMaxRunes = 3
)

var (
	keyPattern      = regexp.MustCompile(`^[0-9A-Za-z\x{0080}-\x{FFFF}/_-]+$`)
	repeatedSlashes = regexp.MustCompile(`/{2,}`)
)

// ProcessKey normalizes a requested key: repeated slashes are collapsed and
// leading/trailing slashes stripped. ok is false when the result is empty or
// contains characters outside the key alphabet.
func ProcessKey(raw string) (key string, ok bool) {
	key = repeatedSlashes.ReplaceAllString(strings.TrimSpace(raw), "/")
	key = strings.Trim(key, "/")
	if key == "" || !keyPattern.MatchString(key) {
		return "", false
	}
	return key, true
}

// KeyAllocator generates random keys and decides whether a (domain, key)
// pair may be claimed.
type KeyAllocator struct {
	storage repository.Storage
	policy  policy.Lookup
	cfg     *config.Links
	log     *zap.Logger
}

func NewKeyAllocator(storage repository.Storage, lookup policy.Lookup, cfg *config.Links, log *zap.Logger) *KeyAllocator {
	return &KeyAllocator{
		storage: storage,
		policy:  lookup,
		cfg:     cfg,
		log:     log,
	}
}

// RandomKey returns an unused key on linkDomain, namespaced under prefix
// when one is given. It gives up after the configured number of attempts.
func (a *KeyAllocator) RandomKey(ctx context.Context, linkDomain, prefix string) (string, error) {
	if prefix != "" {
		p, ok := ProcessKey(prefix)
		if !ok {
			return "", newLinkError(CodeUnprocessableEntity, "Invalid key prefix.", nil)
		}
		prefix = p + "/"
	}

	length := a.cfg.KeyLength
	if length <= 0 {
		length = defaultKeyLength
	}
	attempts := a.cfg.MaxKeyAttempts
	if attempts <= 0 {
		attempts = defaultMaxKeyAttempts
	}

	for i := 1; i <= attempts; i++ {
		suffix, err := random.NewRandomString(length)
		if err != nil {
			return "", fmt.Errorf("failed to generate key: %w", err)
		}
		key := prefix + suffix

		exists, err := a.storage.KeyExists(ctx, linkDomain, key)
		if err != nil {
			return "", fmt.Errorf("failed to check key existence: %w", err)
		}
		if !exists {
			randomKeyAttempts.Observe(float64(i))
			return key, nil
		}
		a.log.Debug("random key collision", zap.String("domain", linkDomain), zap.String("key", key), zap.Int("attempt", i))
	}

	a.log.Error("random key allocation exhausted",
		zap.String("domain", linkDomain),
		zap.Int("attempts", attempts))
	return "", &LinkError{
		Code:    CodeConflict,
		Message: "Unable to generate a unique key. Please try again.",
		Err:     ErrKeyspaceExhausted,
	}
}

// CheckKey is the uniqueness and policy gate for claiming key on
// linkDomain. It is a pre-check only: the canonical store's unique index
// decides concurrent races.
func (a *KeyAllocator) CheckKey(ctx context.Context, linkDomain, key string, project *domain.Project) error {
	exists, err := a.storage.KeyExists(ctx, linkDomain, key)
	if err != nil {
		return fmt.Errorf("failed to check key existence: %w", err)
	}
	if exists {
		return newLinkError(CodeConflict, msgDuplicateKey, nil)
	}

	if !a.cfg.IsPlatformDomain(linkDomain) {
		return nil
	}

	if strings.EqualFold(linkDomain, a.cfg.DefaultDomain) &&
		(a.isDefaultRedirect(key) || a.policy.IsReservedKey(ctx, key)) {
		return newLinkError(CodeConflict, msgDuplicateKey, nil)
	}

	if project.IsFree() {
		if utf8.RuneCountInString(key) <= shortKeyMaxRunes {
			return newLinkError(CodeForbidden,
				"You can only use keys that are 3 characters or less on a Pro plan and above. Upgrade to Pro to register a 3-character key.", nil)
		}
		if a.policy.IsReservedUsername(ctx, key) {
			return newLinkError(CodeForbidden,
				"This is a premium key. You can only use this key on a Pro plan and above. Upgrade to Pro to register this key.", nil)
		}
	}

	return nil
}

func (a *KeyAllocator) isDefaultRedirect(key string) bool {
	for _, r := range a.cfg.DefaultRedirects {
		if strings.EqualFold(strings.TrimSpace(r), key) {
			return true
		}
	}
	return false
}
