package domain

import "time"

// Tag принадлежит проекту
type Tag struct {
	ID        string    `gorm:"primaryKey;column:id;size:36" json:"id"`
	Name      string    `gorm:"column:name;size:190;not null;uniqueIndex:uk_tags_name_project" json:"name"`
	Color     string    `gorm:"column:color;size:20;not null;default:blue" json:"color"`
	ProjectID string    `gorm:"column:project_id;size:36;not null;uniqueIndex:uk_tags_name_project;index" json:"projectId"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`

	LinkTags []LinkTag `gorm:"foreignKey:TagID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName возвращает название таблицы для GORM
func (Tag) TableName() string {
	return "tags"
}

// LinkTag связь many-to-many между ссылкой и тегом
type LinkTag struct {
	LinkID    string    `gorm:"primaryKey;column:link_id;size:36" json:"linkId"`
	TagID     string    `gorm:"primaryKey;column:tag_id;size:36;index" json:"tagId"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

// TableName возвращает название таблицы для GORM
func (LinkTag) TableName() string {
	return "link_tags"
}
