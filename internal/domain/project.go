package domain

import "time"

// Plan tiers.
const (
	PlanFree       = "free"
	PlanPro        = "pro"
	PlanBusiness   = "business"
	PlanEnterprise = "enterprise"
)

// Project представляет проект (workspace) - владельца ссылок, тегов и доменов
type Project struct {
	ID         string    `gorm:"primaryKey;column:id;size:36" json:"id"`
	Name       string    `gorm:"column:name;size:190;not null" json:"name"`
	Slug       string    `gorm:"column:slug;size:190;uniqueIndex;not null" json:"slug"`
	Plan       string    `gorm:"column:plan;size:20;not null;default:free" json:"plan"`
	LinksUsage int64     `gorm:"column:links_usage;not null;default:0" json:"linksUsage"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`

	// Relationships
	Domains []Domain `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"domains,omitempty"`
	Tags    []Tag    `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName возвращает название таблицы для GORM
func (Project) TableName() string {
	return "projects"
}

// IsFree reports whether the project is on the free tier. A nil project is
// treated as free.
func (p *Project) IsFree() bool {
	return p == nil || p.Plan == "" || p.Plan == PlanFree
}

// PrimaryDomain returns the slug of the project's primary domain, if any.
func (p *Project) PrimaryDomain() (string, bool) {
	if p == nil {
		return "", false
	}
	for _, d := range p.Domains {
		if d.Primary {
			return d.Slug, true
		}
	}
	return "", false
}

// OwnsDomain reports whether slug is one of the project's domains.
func (p *Project) OwnsDomain(slug string) bool {
	if p == nil {
		return false
	}
	for _, d := range p.Domains {
		if d.Slug == slug {
			return true
		}
	}
	return false
}

// Domain кастомный домен проекта
type Domain struct {
	ID        string    `gorm:"primaryKey;column:id;size:36" json:"id"`
	Slug      string    `gorm:"column:slug;size:190;uniqueIndex;not null" json:"slug"`
	Primary   bool      `gorm:"column:is_primary;not null;default:false" json:"primary"`
	ProjectID string    `gorm:"column:project_id;size:36;not null;index" json:"projectId"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

// TableName возвращает название таблицы для GORM
func (Domain) TableName() string {
	return "domains"
}
