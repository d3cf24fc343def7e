package repository

import (
	"SLINK-Backend/internal/domain"
	"context"
	"errors"
)

var (
	ErrLinkNotFound    = errors.New("link not found")
	ErrKeyExists       = errors.New("key already exists on domain")
	ErrProjectNotFound = errors.New("project not found")
)

// Storage is the canonical (relational) store for links, tags and projects.
// The (domain, lower(key)) uniqueness constraint is enforced by the store
// itself and reported as ErrKeyExists.
type Storage interface {
	// Project methods
	GetProject(ctx context.Context, id string) (*domain.Project, error)
	IncrementLinksUsage(ctx context.Context, projectID string, delta int64) error

	// Tag methods
	FindProjectTags(ctx context.Context, projectID string, tagIDs []string) ([]domain.Tag, error)

	// Link methods
	KeyExists(ctx context.Context, domain, key string) (bool, error)
	GetLink(ctx context.Context, id string) (*domain.Link, error)
	GetLinkByKey(ctx context.Context, domain, key string) (*domain.Link, error)
	CreateLink(ctx context.Context, link *domain.Link, tagIDs []string) error
	CreateLinks(ctx context.Context, links []*domain.Link) ([]*domain.Link, error)
	CreateLinkTags(ctx context.Context, rows []domain.LinkTag) error
	UpdateLink(ctx context.Context, link *domain.Link, tagIDs []string) error
	DeleteLink(ctx context.Context, id string) error
	SetArchived(ctx context.Context, id string, archived bool) (*domain.Link, error)
	TransferLink(ctx context.Context, id, projectID string) (*domain.Link, error)

	// Listing methods
	ListLinks(ctx context.Context, filter domain.LinkFilter) ([]*domain.Link, error)
	CountLinks(ctx context.Context, filter domain.LinkFilter) (int64, error)
	CountLinksGrouped(ctx context.Context, filter domain.LinkFilter, groupBy domain.LinkGroupBy) (map[string]int64, error)
}
