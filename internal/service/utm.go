package service

import (
	"SLINK-Backend/internal/domain"
	"net/url"
)

// applyUTM copies the utm_* query parameters of the destination URL onto
// the link. Missing parameters clear the field.
func applyUTM(link *domain.Link) {
	var q url.Values
	if u, err := url.Parse(link.URL); err == nil {
		q = u.Query()
	}
	get := func(name string) *string {
		if v := q.Get(name); v != "" {
			return &v
		}
		return nil
	}
	link.UTMSource = get("utm_source")
	link.UTMMedium = get("utm_medium")
	link.UTMCampaign = get("utm_campaign")
	link.UTMTerm = get("utm_term")
	link.UTMContent = get("utm_content")
}
