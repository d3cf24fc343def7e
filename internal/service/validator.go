package service

import (
	"SLINK-Backend/internal/config"
	"SLINK-Backend/internal/domain"
	"SLINK-Backend/internal/images"
	"SLINK-Backend/internal/policy"
	"SLINK-Backend/internal/repository"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// LinkPayload is a link as submitted by a client.
type LinkPayload struct {
	URL         string            `json:"url"`
	Domain      string            `json:"domain,omitempty"`
	Key         string            `json:"key,omitempty"`
	Prefix      string            `json:"prefix,omitempty"`
	Archived    bool              `json:"archived,omitempty"`
	ExpiresAt   *string           `json:"expiresAt,omitempty"`
	Password    *string           `json:"password,omitempty"`
	Proxy       bool              `json:"proxy,omitempty"`
	Title       *string           `json:"title,omitempty"`
	Description *string           `json:"description,omitempty"`
	Image       *string           `json:"image,omitempty"`
	Rewrite     bool              `json:"rewrite,omitempty"`
	IOS         *string           `json:"ios,omitempty"`
	Android     *string           `json:"android,omitempty"`
	Geo         domain.GeoTargets `json:"geo,omitempty"`
	TagID       *string           `json:"tagId,omitempty"` // legacy single tag
	TagIDs      []string          `json:"tagIds,omitempty"`

	// Display-only fields echoed back by clients. Never persisted.
	ShortLink string `json:"shortLink,omitempty"`
	QRCode    string `json:"qrCode,omitempty"`
}

// tagIDs merges the legacy tagId with tagIds, without duplicates.
func (p *LinkPayload) tagIDs() []string {
	var ids []string
	seen := make(map[string]struct{})
	add := func(id string) {
		id = strings.TrimSpace(id)
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if p.TagID != nil {
		add(*p.TagID)
	}
	for _, id := range p.TagIDs {
		add(id)
	}
	return ids
}

func (p *LinkPayload) usesPremiumFeatures() bool {
	return p.Proxy || nonEmpty(p.Password) || p.Rewrite || nonEmpty(p.ExpiresAt) ||
		nonEmpty(p.IOS) || nonEmpty(p.Android) || len(p.Geo) > 0
}

// ProcessOptions tune ProcessLink for the calling operation.
type ProcessOptions struct {
	Bulk          bool
	SkipKeyChecks bool // editing without changing the key
}

// ProcessedLink is an accepted payload: a canonical link without an id yet,
// plus the tags it should be associated with. Password is still plain text.
type ProcessedLink struct {
	Link   *domain.Link
	TagIDs []string
}

var expiryLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// LinkValidator runs the gate chain that turns a payload into a link.
type LinkValidator struct {
	storage  repository.Storage
	policy   policy.Lookup
	keys     *KeyAllocator
	images   images.Uploader
	cfg      *config.Links
	validate *validator.Validate
	log      *zap.Logger
	now      func() time.Time
}

func NewLinkValidator(storage repository.Storage, lookup policy.Lookup, keys *KeyAllocator, uploader images.Uploader, cfg *config.Links, log *zap.Logger) *LinkValidator {
	return &LinkValidator{
		storage:  storage,
		policy:   lookup,
		keys:     keys,
		images:   uploader,
		cfg:      cfg,
		validate: validator.New(),
		log:      log,
		now:      time.Now,
	}
}

// ProcessLink validates payload for project (nil for links without a
// project) and returns the sanitized link. Rejections are *LinkError values
// carrying payload; other errors come from the canonical store.
func (v *LinkValidator) ProcessLink(ctx context.Context, payload *LinkPayload, project *domain.Project, userID string, opts ProcessOptions) (*ProcessedLink, error) {
	processed, err := v.process(ctx, payload, project, userID, opts)
	if le, ok := AsLinkError(err); ok {
		le.Payload = payload
	}
	return processed, err
}

func (v *LinkValidator) process(ctx context.Context, payload *LinkPayload, project *domain.Project, userID string, opts ProcessOptions) (*ProcessedLink, error) {
	// 1. Destination
	if strings.TrimSpace(payload.URL) == "" {
		return nil, newLinkError(CodeBadRequest, "Missing destination url.", nil)
	}
	destination, ok := v.normalizeURL(payload.URL)
	if !ok {
		return nil, newLinkError(CodeUnprocessableEntity, "Invalid destination url.", nil)
	}

	// 2. Plan gate
	if project.IsFree() && payload.usesPremiumFeatures() {
		return nil, newLinkError(CodeForbidden,
			"You can only use custom social media cards, password-protection, link cloaking, link expiration, device and geo targeting on a Pro plan and above. Upgrade to Pro to use these features.", nil)
	}

	// 3. Domain
	linkDomain := strings.ToLower(strings.TrimSpace(payload.Domain))
	if linkDomain == "" {
		if primary, ok := project.PrimaryDomain(); ok {
			linkDomain = primary
		} else {
			linkDomain = strings.ToLower(v.cfg.DefaultDomain)
		}
	}

	// 4. Domain specific checks
	platform, isPlatform := v.cfg.PlatformDomain(linkDomain)
	switch {
	case strings.EqualFold(linkDomain, v.cfg.DefaultDomain):
		if payload.Key != "" && v.policy.IsBlacklistedKey(ctx, payload.Key) {
			return nil, newLinkError(CodeUnprocessableEntity, msgInvalidKey, nil)
		}
		if v.policy.IsBlacklistedDomain(ctx, destination) {
			return nil, newLinkError(CodeUnprocessableEntity, "Invalid url.", nil)
		}
	case isPlatform:
		if len(platform.AllowedHosts) > 0 && !hostAllowed(policy.Host(destination), platform.AllowedHosts) {
			return nil, newLinkError(CodeUnprocessableEntity,
				fmt.Sprintf("Invalid destination url. You can only create %s short links for URLs with the domain(s) %s.",
					linkDomain, strings.Join(platform.AllowedHosts, ", ")), nil)
		}
	default:
		if !project.OwnsDomain(linkDomain) {
			return nil, newLinkError(CodeForbidden, "Domain does not belong to project.", nil)
		}
	}

	// 5. Key
	var key string
	if strings.TrimSpace(payload.Key) == "" {
		k, err := v.keys.RandomKey(ctx, linkDomain, payload.Prefix)
		if err != nil {
			return nil, err
		}
		key = k
	} else {
		k, ok := ProcessKey(payload.Key)
		if !ok {
			return nil, newLinkError(CodeUnprocessableEntity, msgInvalidKey, nil)
		}
		key = k
		if !opts.SkipKeyChecks {
			if err := v.keys.CheckKey(ctx, linkDomain, key, project); err != nil {
				return nil, err
			}
		}
	}

	// 6. Bulk restrictions
	if opts.Bulk {
		if payload.Proxy && nonEmpty(payload.Image) {
			return nil, newLinkError(CodeUnprocessableEntity, "You cannot set custom social cards with bulk link creation.", nil)
		}
		if payload.Rewrite {
			return nil, newLinkError(CodeUnprocessableEntity, "You cannot use link cloaking with bulk link creation.", nil)
		}
	}

	// 7. Tags
	tagIDs := payload.tagIDs()
	if !opts.Bulk && len(tagIDs) > 0 {
		if err := v.checkTags(ctx, project, tagIDs); err != nil {
			return nil, err
		}
	}

	// 8. Embedded image needs an image host
	if nonEmpty(payload.Image) && images.IsEmbedded(*payload.Image) && !v.images.Configured() {
		return nil, newLinkError(CodeBadRequest, "Missing image host configuration: embedded images cannot be stored.", nil)
	}

	// 9. Expiry
	var expiresAt *time.Time
	if nonEmpty(payload.ExpiresAt) {
		t, ok := parseExpiry(*payload.ExpiresAt)
		if !ok {
			return nil, newLinkError(CodeUnprocessableEntity, "Invalid expiration date.", nil)
		}
		if !t.After(v.now()) {
			return nil, newLinkError(CodeUnprocessableEntity, "Expiration date must be in the future.", nil)
		}
		expiresAt = &t
	}

	// 10. Canonical record from recognized fields only
	link := &domain.Link{
		Domain:      linkDomain,
		Key:         key,
		URL:         destination,
		Archived:    payload.Archived,
		ExpiresAt:   expiresAt,
		Password:    optional(payload.Password),
		Proxy:       payload.Proxy,
		Title:       truncate(trimmed(payload.Title), domain.MaxTitleLength),
		Description: truncate(trimmed(payload.Description), domain.MaxDescriptionLength),
		Image:       trimmed(payload.Image),
		Rewrite:     payload.Rewrite,
		IOS:         trimmed(payload.IOS),
		Android:     trimmed(payload.Android),
		Geo:         payload.Geo,
	}
	if project != nil {
		pid := project.ID
		link.ProjectID = &pid
	}
	if userID != "" {
		uid := userID
		link.UserID = &uid
	}

	return &ProcessedLink{Link: link, TagIDs: tagIDs}, nil
}

// normalizeURL accepts absolute URLs and bare hostnames ("example.com/x"),
// which are upgraded to https.
func (v *LinkValidator) normalizeURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if v.isAbsoluteURL(raw) {
		return raw, true
	}
	if strings.Contains(raw, ".") && !strings.ContainsAny(raw, " \t") && !strings.Contains(raw, "://") {
		withScheme := "https://" + raw
		if v.isAbsoluteURL(withScheme) {
			return withScheme, true
		}
	}
	return "", false
}

func (v *LinkValidator) isAbsoluteURL(raw string) bool {
	if err := v.validate.Var(raw, "required,url"); err != nil {
		return false
	}
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func (v *LinkValidator) checkTags(ctx context.Context, project *domain.Project, tagIDs []string) error {
	valid := make(map[string]struct{})
	if project != nil {
		tags, err := v.storage.FindProjectTags(ctx, project.ID, tagIDs)
		if err != nil {
			return fmt.Errorf("failed to load project tags: %w", err)
		}
		for _, t := range tags {
			valid[t.ID] = struct{}{}
		}
	}

	var invalid []string
	for _, id := range tagIDs {
		if _, ok := valid[id]; !ok {
			invalid = append(invalid, id)
		}
	}
	if len(invalid) > 0 {
		return newLinkError(CodeUnprocessableEntity, "Invalid tagIds detected: "+strings.Join(invalid, ", "), nil)
	}
	return nil
}

func parseExpiry(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func hostAllowed(host string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(host, strings.TrimPrefix(strings.ToLower(a), "www.")) {
			return true
		}
	}
	return false
}

func nonEmpty(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}

func trimmed(s *string) *string {
	if !nonEmpty(s) {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func optional(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	v := *s
	return &v
}

func truncate(s *string, max int) *string {
	if s == nil {
		return nil
	}
	r := []rune(*s)
	if len(r) <= max {
		return s
	}
	v := string(r[:max])
	return &v
}
