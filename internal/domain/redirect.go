package domain

import "time"

// RedirectRecord is the compact, denormalized form of a Link that the
// redirect edge reads from the projection store.
type RedirectRecord struct {
	ID        string     `json:"id"`
	URL       string     `json:"url"`
	Password  string     `json:"password,omitempty"`
	Proxy     bool       `json:"proxy,omitempty"`
	Rewrite   bool       `json:"rewrite,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	IOS       string     `json:"ios,omitempty"`
	Android   string     `json:"android,omitempty"`
	Geo       GeoTargets `json:"geo,omitempty"`
	ProjectID string     `json:"projectId,omitempty"`
}

// NewRedirectRecord builds the projection record for l.
func NewRedirectRecord(l *Link) RedirectRecord {
	rec := RedirectRecord{
		ID:        l.ID,
		URL:       l.URL,
		Proxy:     l.Proxy,
		Rewrite:   l.Rewrite,
		ExpiresAt: l.ExpiresAt,
		Geo:       l.Geo,
	}
	if l.HasPassword() {
		rec.Password = *l.Password
	}
	if l.IOS != nil {
		rec.IOS = *l.IOS
	}
	if l.Android != nil {
		rec.Android = *l.Android
	}
	if l.ProjectID != nil {
		rec.ProjectID = *l.ProjectID
	}
	return rec
}
