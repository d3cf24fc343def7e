package database

import (
	"SLINK-Backend/internal/domain"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// linkSlotIndex гарантирует уникальность пары (domain, lower(key)).
// GORM не умеет описывать индексы по выражениям через теги, поэтому создаем вручную.
const linkSlotIndex = `CREATE UNIQUE INDEX IF NOT EXISTS uk_links_domain_key_lower ON links (domain, lower(key))`

// AutoMigrate выполняет автоматические миграции для всех доменных моделей
func AutoMigrate(db *gorm.DB, log *zap.Logger) error {
	log.Info("starting database auto-migration")

	// Порядок миграций важен из-за внешних ключей
	models := []interface{}{
		&domain.Project{}, // Сначала проекты
		&domain.Domain{},  // Домены проектов
		&domain.Tag{},     // Теги (зависят от проектов)
		&domain.Link{},    // Ссылки (зависят от проектов)
		&domain.LinkTag{}, // Связи ссылок и тегов
	}

	log.Info("migrating database models", zap.Int("total_models", len(models)))

	for i, model := range models {
		modelName := fmt.Sprintf("%T", model)
		log.Info("migrating model",
			zap.String("model", modelName),
			zap.Int("step", i+1),
			zap.Int("total", len(models)))

		if err := db.AutoMigrate(model); err != nil {
			log.Error("failed to migrate model",
				zap.String("model", modelName),
				zap.Error(err))
			return fmt.Errorf("failed to migrate model %s: %w", modelName, err)
		}
	}

	if err := db.Exec(linkSlotIndex).Error; err != nil {
		log.Error("failed to create link slot index", zap.Error(err))
		return fmt.Errorf("failed to create link slot index: %w", err)
	}

	log.Info("database auto-migration completed successfully", zap.Int("migrated_models", len(models)))
	return nil
}

// DemoProject возвращает демонстрационный проект с основным доменом и тегами
func DemoProject() (*domain.Project, []domain.Tag) {
	project := &domain.Project{
		ID:   "prj_demo",
		Name: "Demo",
		Slug: "demo",
		Plan: domain.PlanPro,
		Domains: []domain.Domain{
			{ID: "dom_demo", Slug: "demo.link", Primary: true, ProjectID: "prj_demo"},
		},
	}
	tags := []domain.Tag{
		{ID: "tag_marketing", Name: "marketing", Color: "blue", ProjectID: project.ID},
		{ID: "tag_docs", Name: "docs", Color: "green", ProjectID: project.ID},
	}
	return project, tags
}

// SeedData заполняет базу данных начальными данными
func SeedData(db *gorm.DB, log *zap.Logger) error {
	log.Info("starting database seeding")

	project, tags := DemoProject()

	// Проверяем, есть ли уже данные
	var existing domain.Project
	err := db.Where("id = ?", project.ID).First(&existing).Error
	if err == nil {
		log.Info("demo project already exists, skipping seeding", zap.String("project_id", project.ID))
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check demo project: %w", err)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(project).Error; err != nil {
			return fmt.Errorf("failed to seed project: %w", err)
		}
		if err := tx.Create(&tags).Error; err != nil {
			return fmt.Errorf("failed to seed tags: %w", err)
		}
		return nil
	})
	if err != nil {
		log.Error("database seeding failed", zap.Error(err))
		return err
	}

	log.Info("database seeding completed successfully",
		zap.String("project_id", project.ID),
		zap.Int("tags_created", len(tags)))
	return nil
}
