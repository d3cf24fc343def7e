package postgres

import (
	"SLINK-Backend/internal/domain"
	"SLINK-Backend/internal/repository"
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const batchSize = 100

// PostgresStorage реализует интерфейс Storage для PostgreSQL
type PostgresStorage struct {
	db  *gorm.DB
	log *zap.Logger
}

// New создает новый экземпляр PostgreSQL storage
func New(db *gorm.DB, log *zap.Logger) *PostgresStorage {
	return &PostgresStorage{
		db:  db,
		log: log,
	}
}

// --- Project Methods ---

// GetProject получает проект вместе с доменами
func (s *PostgresStorage) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	var project domain.Project

	err := s.db.WithContext(ctx).Preload("Domains").Where("id = ?", id).First(&project).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrProjectNotFound
	}
	if err != nil {
		s.log.Error("failed to get project", zap.String("project_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return &project, nil
}

// IncrementLinksUsage атомарно изменяет счетчик ссылок проекта (delta может быть отрицательным)
func (s *PostgresStorage) IncrementLinksUsage(ctx context.Context, projectID string, delta int64) error {
	result := s.db.WithContext(ctx).Model(&domain.Project{}).
		Where("id = ?", projectID).
		Update("links_usage", gorm.Expr("GREATEST(links_usage + ?, 0)", delta))
	if result.Error != nil {
		s.log.Error("failed to update links usage",
			zap.String("project_id", projectID), zap.Int64("delta", delta), zap.Error(result.Error))
		return fmt.Errorf("failed to update links usage: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrProjectNotFound
	}
	return nil
}

// --- Tag Methods ---

// FindProjectTags возвращает теги из tagIDs, которые принадлежат проекту
func (s *PostgresStorage) FindProjectTags(ctx context.Context, projectID string, tagIDs []string) ([]domain.Tag, error) {
	if len(tagIDs) == 0 {
		return nil, nil
	}

	var tags []domain.Tag
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND id IN ?", projectID, tagIDs).
		Find(&tags).Error
	if err != nil {
		s.log.Error("failed to find project tags", zap.String("project_id", projectID), zap.Error(err))
		return nil, fmt.Errorf("failed to find tags: %w", err)
	}

	return tags, nil
}

// --- Link Methods ---

// KeyExists проверяет, занят ли ключ на домене (без учета регистра)
func (s *PostgresStorage) KeyExists(ctx context.Context, linkDomain, key string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&domain.Link{}).
		Where("domain = ? AND lower(key) = lower(?)", linkDomain, key).
		Count(&count).Error
	if err != nil {
		s.log.Error("failed to check key existence",
			zap.String("domain", linkDomain), zap.String("key", key), zap.Error(err))
		return false, fmt.Errorf("failed to check key: %w", err)
	}

	return count > 0, nil
}

// GetLink получает ссылку по ID вместе с тегами
func (s *PostgresStorage) GetLink(ctx context.Context, id string) (*domain.Link, error) {
	var link domain.Link

	err := s.db.WithContext(ctx).Preload("LinkTags").Where("id = ?", id).First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrLinkNotFound
	}
	if err != nil {
		s.log.Error("failed to get link", zap.String("link_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get link: %w", err)
	}

	return &link, nil
}

// GetLinkByKey получает ссылку по домену и ключу
func (s *PostgresStorage) GetLinkByKey(ctx context.Context, linkDomain, key string) (*domain.Link, error) {
	var link domain.Link

	err := s.db.WithContext(ctx).Preload("LinkTags").
		Where("domain = ? AND lower(key) = lower(?)", linkDomain, key).
		First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrLinkNotFound
	}
	if err != nil {
		s.log.Error("failed to get link by key",
			zap.String("domain", linkDomain), zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("failed to get link: %w", err)
	}

	return &link, nil
}

// CreateLink сохраняет ссылку и ее теги в одной транзакции.
// Нарушение уникальности (domain, key) возвращается как ErrKeyExists.
func (s *PostgresStorage) CreateLink(ctx context.Context, link *domain.Link, tagIDs []string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(link).Error; err != nil {
			return err
		}

		rows := linkTagRows(link.ID, tagIDs)
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}
		link.LinkTags = rows
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return repository.ErrKeyExists
		}
		s.log.Error("failed to save link",
			zap.String("domain", link.Domain), zap.String("key", link.Key), zap.Error(err))
		return fmt.Errorf("failed to save link: %w", err)
	}

	s.log.Info("saved new link", zap.String("link_id", link.ID), zap.String("domain", link.Domain), zap.String("key", link.Key))
	return nil
}

// CreateLinks вставляет пачку ссылок, пропуская дубликаты (domain, key).
// Возвращает только реально сохраненные ссылки в исходном порядке.
func (s *PostgresStorage) CreateLinks(ctx context.Context, links []*domain.Link) ([]*domain.Link, error) {
	if len(links) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.ID)
	}

	var persistedIDs []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Omit(clause.Associations).
			Clauses(clause.OnConflict{DoNothing: true}).
			CreateInBatches(links, batchSize).Error
		if err != nil {
			return err
		}
		return tx.Model(&domain.Link{}).Where("id IN ?", ids).Pluck("id", &persistedIDs).Error
	})
	if err != nil {
		s.log.Error("failed to save links batch", zap.Int("batch_size", len(links)), zap.Error(err))
		return nil, fmt.Errorf("failed to save links: %w", err)
	}

	persisted := make(map[string]struct{}, len(persistedIDs))
	for _, id := range persistedIDs {
		persisted[id] = struct{}{}
	}

	created := make([]*domain.Link, 0, len(persistedIDs))
	for _, l := range links {
		if _, ok := persisted[l.ID]; ok {
			created = append(created, l)
		}
	}

	s.log.Info("saved links batch", zap.Int("requested", len(links)), zap.Int("created", len(created)))
	return created, nil
}

// CreateLinkTags создает связи ссылок с тегами, игнорируя существующие
func (s *PostgresStorage) CreateLinkTags(ctx context.Context, rows []domain.LinkTag) error {
	if len(rows) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&rows, batchSize).Error
	if err != nil {
		s.log.Error("failed to create link tags", zap.Int("rows", len(rows)), zap.Error(err))
		return fmt.Errorf("failed to create link tags: %w", err)
	}
	return nil
}

// UpdateLink обновляет поля ссылки и полностью заменяет набор тегов в одной транзакции
func (s *PostgresStorage) UpdateLink(ctx context.Context, link *domain.Link, tagIDs []string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&domain.Link{}).Where("id = ?", link.ID).Updates(updatableColumns(link))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return repository.ErrLinkNotFound
		}

		del := tx.Where("link_id = ?", link.ID)
		if len(tagIDs) > 0 {
			del = del.Where("tag_id NOT IN ?", tagIDs)
		}
		if err := del.Delete(&domain.LinkTag{}).Error; err != nil {
			return err
		}

		rows := linkTagRows(link.ID, tagIDs)
		if len(rows) > 0 {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
				return err
			}
		}

		return tx.Preload("LinkTags").Where("id = ?", link.ID).First(link).Error
	})
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return err
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return repository.ErrKeyExists
		}
		s.log.Error("failed to update link", zap.String("link_id", link.ID), zap.Error(err))
		return fmt.Errorf("failed to update link: %w", err)
	}

	s.log.Info("updated link", zap.String("link_id", link.ID))
	return nil
}

// DeleteLink удаляет ссылку; связи с тегами удаляются каскадно
func (s *PostgresStorage) DeleteLink(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Link{})
	if result.Error != nil {
		s.log.Error("failed to delete link", zap.String("link_id", id), zap.Error(result.Error))
		return fmt.Errorf("failed to delete link: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return repository.ErrLinkNotFound
	}

	s.log.Info("deleted link", zap.String("link_id", id))
	return nil
}

// SetArchived меняет только флаг archived
func (s *PostgresStorage) SetArchived(ctx context.Context, id string, archived bool) (*domain.Link, error) {
	result := s.db.WithContext(ctx).Model(&domain.Link{}).Where("id = ?", id).Update("archived", archived)
	if result.Error != nil {
		s.log.Error("failed to archive link", zap.String("link_id", id), zap.Error(result.Error))
		return nil, fmt.Errorf("failed to archive link: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, repository.ErrLinkNotFound
	}

	return s.GetLink(ctx, id)
}

// TransferLink переносит ссылку в другой проект и удаляет все ее теги
func (s *PostgresStorage) TransferLink(ctx context.Context, id, projectID string) (*domain.Link, error) {
	var link domain.Link

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&domain.Link{}).Where("id = ?", id).Update("project_id", projectID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return repository.ErrLinkNotFound
		}

		if err := tx.Where("link_id = ?", id).Delete(&domain.LinkTag{}).Error; err != nil {
			return err
		}

		return tx.Preload("LinkTags").Where("id = ?", id).First(&link).Error
	})
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return nil, err
		}
		s.log.Error("failed to transfer link",
			zap.String("link_id", id), zap.String("project_id", projectID), zap.Error(err))
		return nil, fmt.Errorf("failed to transfer link: %w", err)
	}

	s.log.Info("transferred link", zap.String("link_id", id), zap.String("project_id", projectID))
	return &link, nil
}

// --- Listing Methods ---

// ListLinks возвращает страницу ссылок (по 100) отсортированную по убыванию
func (s *PostgresStorage) ListLinks(ctx context.Context, filter domain.LinkFilter) ([]*domain.Link, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}

	var links []*domain.Link
	err := applyFilter(s.db.WithContext(ctx).Model(&domain.Link{}), filter).
		Preload("LinkTags").
		Order(orderBy(filter.Sort)).
		Limit(domain.LinksPageSize).
		Offset((page - 1) * domain.LinksPageSize).
		Find(&links).Error
	if err != nil {
		s.log.Error("failed to list links", zap.Error(err))
		return nil, fmt.Errorf("failed to list links: %w", err)
	}

	return links, nil
}

// CountLinks возвращает количество ссылок по фильтру
func (s *PostgresStorage) CountLinks(ctx context.Context, filter domain.LinkFilter) (int64, error) {
	var count int64
	err := applyFilter(s.db.WithContext(ctx).Model(&domain.Link{}), filter).Count(&count).Error
	if err != nil {
		s.log.Error("failed to count links", zap.Error(err))
		return 0, fmt.Errorf("failed to count links: %w", err)
	}
	return count, nil
}

// CountLinksGrouped возвращает количество ссылок сгруппированное по домену или тегу
func (s *PostgresStorage) CountLinksGrouped(ctx context.Context, filter domain.LinkFilter, groupBy domain.LinkGroupBy) (map[string]int64, error) {
	var results []struct {
		GroupKey string `gorm:"column:group_key"`
		Count    int64  `gorm:"column:count"`
	}

	query := applyFilter(s.db.WithContext(ctx).Model(&domain.Link{}), filter)
	switch groupBy {
	case domain.GroupByDomain:
		query = query.Select("links.domain AS group_key, count(*) AS count").Group("links.domain")
	case domain.GroupByTag:
		query = query.Select("link_tags.tag_id AS group_key, count(*) AS count").
			Joins("JOIN link_tags ON link_tags.link_id = links.id").
			Group("link_tags.tag_id")
	default:
		return nil, fmt.Errorf("unsupported group by %q", groupBy)
	}

	if err := query.Find(&results).Error; err != nil {
		s.log.Error("failed to count grouped links", zap.String("group_by", string(groupBy)), zap.Error(err))
		return nil, fmt.Errorf("failed to count links: %w", err)
	}

	counts := make(map[string]int64, len(results))
	for _, r := range results {
		counts[r.GroupKey] = r.Count
	}
	return counts, nil
}

// --- Helper Methods ---

// applyFilter применяет критерии фильтра к запросу
func applyFilter(query *gorm.DB, filter domain.LinkFilter) *gorm.DB {
	if filter.ProjectID != nil {
		query = query.Where("links.project_id = ?", *filter.ProjectID)
	}
	if filter.Domain != nil {
		query = query.Where("links.domain = ?", *filter.Domain)
	}
	if len(filter.TagIDs) > 0 {
		query = query.Where("links.id IN (SELECT link_id FROM link_tags WHERE tag_id IN ?)", filter.TagIDs)
	}
	if filter.Search != nil && *filter.Search != "" {
		pattern := "%" + *filter.Search + "%"
		query = query.Where("(links.key ILIKE ? OR links.url ILIKE ?)", pattern, pattern)
	}
	if filter.UserID != nil {
		query = query.Where("links.user_id = ?", *filter.UserID)
	}
	if !filter.ShowArchived {
		query = query.Where("links.archived = ?", false)
	}
	return query
}

func orderBy(sort domain.LinkSort) string {
	switch sort {
	case domain.SortClicks:
		return "links.clicks DESC"
	case domain.SortLastClicked:
		return "links.last_clicked DESC NULLS LAST"
	default:
		return "links.created_at DESC"
	}
}

// updatableColumns все изменяемые при редактировании колонки, включая NULL
func updatableColumns(link *domain.Link) map[string]any {
	return map[string]any{
		"domain":       link.Domain,
		"key":          link.Key,
		"url":          link.URL,
		"archived":     link.Archived,
		"expires_at":   link.ExpiresAt,
		"password":     link.Password,
		"proxy":        link.Proxy,
		"title":        link.Title,
		"description":  link.Description,
		"image":        link.Image,
		"rewrite":      link.Rewrite,
		"ios":          link.IOS,
		"android":      link.Android,
		"geo":          link.Geo,
		"utm_source":   link.UTMSource,
		"utm_medium":   link.UTMMedium,
		"utm_campaign": link.UTMCampaign,
		"utm_term":     link.UTMTerm,
		"utm_content":  link.UTMContent,
		"project_id":   link.ProjectID,
		"user_id":      link.UserID,
	}
}

func linkTagRows(linkID string, tagIDs []string) []domain.LinkTag {
	rows := make([]domain.LinkTag, 0, len(tagIDs))
	for _, tagID := range tagIDs {
		rows = append(rows, domain.LinkTag{LinkID: linkID, TagID: tagID})
	}
	return rows
}
