package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	// MaxTitleLength максимальная длина заголовка, длинные заголовки обрезаются
	MaxTitleLength = 120
	// MaxDescriptionLength максимальная длина описания
	MaxDescriptionLength = 240
)

// Link представляет короткую ссылку - каноническая запись в PostgreSQL.
// Пара (domain, lower(key)) уникальна.
type Link struct {
	ID          string     `gorm:"primaryKey;column:id;size:36" json:"id"`
	Domain      string     `gorm:"column:domain;size:190;not null;index:idx_links_domain" json:"domain"`
	Key         string     `gorm:"column:key;size:190;not null" json:"key"`
	URL         string     `gorm:"column:url;type:text;not null" json:"url"`
	Archived    bool       `gorm:"column:archived;not null;default:false;index:idx_links_archived" json:"archived"`
	ExpiresAt   *time.Time `gorm:"column:expires_at" json:"expiresAt,omitempty"`
	Password    *string    `gorm:"column:password;size:100" json:"-"` // bcrypt hash
	Proxy       bool       `gorm:"column:proxy;not null;default:false" json:"proxy"`
	Title       *string    `gorm:"column:title;size:120" json:"title,omitempty"`
	Description *string    `gorm:"column:description;size:240" json:"description,omitempty"`
	Image       *string    `gorm:"column:image;type:text" json:"image,omitempty"`
	Rewrite     bool       `gorm:"column:rewrite;not null;default:false" json:"rewrite"`
	IOS         *string    `gorm:"column:ios;type:text" json:"ios,omitempty"`
	Android     *string    `gorm:"column:android;type:text" json:"android,omitempty"`
	Geo         GeoTargets `gorm:"column:geo;type:jsonb" json:"geo,omitempty"`

	UTMSource   *string `gorm:"column:utm_source;size:190" json:"utm_source,omitempty"`
	UTMMedium   *string `gorm:"column:utm_medium;size:190" json:"utm_medium,omitempty"`
	UTMCampaign *string `gorm:"column:utm_campaign;size:190" json:"utm_campaign,omitempty"`
	UTMTerm     *string `gorm:"column:utm_term;size:190" json:"utm_term,omitempty"`
	UTMContent  *string `gorm:"column:utm_content;size:190" json:"utm_content,omitempty"`

	UserID    *string `gorm:"column:user_id;size:64;index:idx_links_user_id" json:"userId,omitempty"`
	ProjectID *string `gorm:"column:project_id;size:36;index:idx_links_project_id" json:"projectId,omitempty"`

	// Счетчики кликов обновляются внешним event pipeline
	Clicks      int64      `gorm:"column:clicks;not null;default:0" json:"clicks"`
	LastClicked *time.Time `gorm:"column:last_clicked" json:"lastClicked,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index:idx_links_created_at" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`

	// Relationships
	Project  *Project  `gorm:"foreignKey:ProjectID;constraint:OnDelete:SET NULL" json:"-"`
	LinkTags []LinkTag `gorm:"foreignKey:LinkID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName возвращает название таблицы для GORM
func (Link) TableName() string {
	return "links"
}

// HasPassword reports whether the link is password protected.
func (l *Link) HasPassword() bool {
	return l.Password != nil && *l.Password != ""
}

// TagIDs returns the ids of the loaded tag associations.
func (l *Link) TagIDs() []string {
	ids := make([]string, 0, len(l.LinkTags))
	for _, lt := range l.LinkTags {
		ids = append(ids, lt.TagID)
	}
	return ids
}

// SlotKey is the projection field for the link: its key, lower-cased.
func (l *Link) SlotKey() string {
	return strings.ToLower(l.Key)
}

// GeoTargets maps an ISO country code to a destination URL.
type GeoTargets map[string]string

// Value implements driver.Valuer.
func (g GeoTargets) Value() (driver.Value, error) {
	if len(g) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(g)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (g *GeoTargets) Scan(src any) error {
	if src == nil {
		*g = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported geo value type %T", src)
	}
	if len(raw) == 0 {
		*g = nil
		return nil
	}
	return json.Unmarshal(raw, g)
}

// LinkSort is the column a listing is sorted by (always descending).
type LinkSort string

const (
	SortCreatedAt   LinkSort = "createdAt"
	SortClicks      LinkSort = "clicks"
	SortLastClicked LinkSort = "lastClicked"
)

// LinkGroupBy selects the dimension for grouped link counts.
type LinkGroupBy string

const (
	GroupByDomain LinkGroupBy = "domain"
	GroupByTag    LinkGroupBy = "tagId"
)

// LinksPageSize is the fixed listing page size.
const LinksPageSize = 100

// LinkFilter критерии выборки ссылок
type LinkFilter struct {
	ProjectID    *string
	Domain       *string
	TagIDs       []string
	Search       *string
	UserID       *string
	ShowArchived bool
	Sort         LinkSort
	Page         int // 1-based
}
