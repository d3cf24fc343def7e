package memory

import (
	"SLINK-Backend/internal/domain"
	"SLINK-Backend/internal/repository"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemStorage is an in-process canonical store. It enforces the same
// (domain, lower(key)) uniqueness constraint as the PostgreSQL schema.
type MemStorage struct {
	mu       sync.RWMutex
	links    map[string]*domain.Link        // by id
	slots    map[string]string              // slot -> link id
	linkTags map[string]map[string]struct{} // link id -> tag ids
	tags     map[string]domain.Tag
	projects map[string]*domain.Project
}

func New() *MemStorage {
	return &MemStorage{
		links:    make(map[string]*domain.Link),
		slots:    make(map[string]string),
		linkTags: make(map[string]map[string]struct{}),
		tags:     make(map[string]domain.Tag),
		projects: make(map[string]*domain.Project),
	}
}

// AddProject registers a project. Used for seeding and tests.
func (s *MemStorage) AddProject(p *domain.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	cp.Domains = append([]domain.Domain(nil), p.Domains...)
	s.projects[p.ID] = &cp
}

// AddTag registers a tag. Used for seeding and tests.
func (s *MemStorage) AddTag(t domain.Tag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags[t.ID] = t
}

func slot(linkDomain, key string) string {
	return strings.ToLower(linkDomain) + "\x00" + strings.ToLower(key)
}

// --- Project Methods ---

func (s *MemStorage) GetProject(_ context.Context, id string) (*domain.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, repository.ErrProjectNotFound
	}
	cp := *p
	cp.Domains = append([]domain.Domain(nil), p.Domains...)
	return &cp, nil
}

func (s *MemStorage) IncrementLinksUsage(_ context.Context, projectID string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok {
		return repository.ErrProjectNotFound
	}
	p.LinksUsage += delta
	if p.LinksUsage < 0 {
		p.LinksUsage = 0
	}
	return nil
}

// --- Tag Methods ---

func (s *MemStorage) FindProjectTags(_ context.Context, projectID string, tagIDs []string) ([]domain.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found []domain.Tag
	for _, id := range tagIDs {
		if t, ok := s.tags[id]; ok && t.ProjectID == projectID {
			found = append(found, t)
		}
	}
	return found, nil
}

// --- Link Methods ---

func (s *MemStorage) KeyExists(_ context.Context, linkDomain, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.slots[slot(linkDomain, key)]
	return ok, nil
}

func (s *MemStorage) GetLink(_ context.Context, id string) (*domain.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.links[id]
	if !ok {
		return nil, repository.ErrLinkNotFound
	}
	return s.snapshot(l), nil
}

func (s *MemStorage) GetLinkByKey(_ context.Context, linkDomain, key string) (*domain.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.slots[slot(linkDomain, key)]
	if !ok {
		return nil, repository.ErrLinkNotFound
	}
	return s.snapshot(s.links[id]), nil
}

func (s *MemStorage) CreateLink(_ context.Context, link *domain.Link, tagIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.insert(link); err != nil {
		return err
	}
	s.replaceTags(link.ID, tagIDs)
	link.LinkTags = s.tagRows(link.ID)
	return nil
}

func (s *MemStorage) CreateLinks(_ context.Context, links []*domain.Link) ([]*domain.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	created := make([]*domain.Link, 0, len(links))
	for _, l := range links {
		if err := s.insert(l); err != nil {
			continue // skip duplicates
		}
		created = append(created, l)
	}
	return created, nil
}

func (s *MemStorage) CreateLinkTags(_ context.Context, rows []domain.LinkTag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		if _, ok := s.links[r.LinkID]; !ok {
			return fmt.Errorf("failed to create link tags: %w", repository.ErrLinkNotFound)
		}
		if s.linkTags[r.LinkID] == nil {
			s.linkTags[r.LinkID] = make(map[string]struct{})
		}
		s.linkTags[r.LinkID][r.TagID] = struct{}{}
	}
	return nil
}

func (s *MemStorage) UpdateLink(_ context.Context, link *domain.Link, tagIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.links[link.ID]
	if !ok {
		return repository.ErrLinkNotFound
	}

	oldSlot, newSlot := slot(old.Domain, old.Key), slot(link.Domain, link.Key)
	if oldSlot != newSlot {
		if _, taken := s.slots[newSlot]; taken {
			return repository.ErrKeyExists
		}
		delete(s.slots, oldSlot)
		s.slots[newSlot] = link.ID
	}

	cp := *link
	cp.LinkTags = nil
	cp.CreatedAt = old.CreatedAt
	cp.Clicks = old.Clicks
	cp.LastClicked = old.LastClicked
	cp.UpdatedAt = time.Now()
	s.links[link.ID] = &cp

	s.replaceTags(link.ID, tagIDs)
	*link = *s.snapshot(&cp)
	return nil
}

func (s *MemStorage) DeleteLink(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[id]
	if !ok {
		return repository.ErrLinkNotFound
	}
	delete(s.slots, slot(l.Domain, l.Key))
	delete(s.links, id)
	delete(s.linkTags, id)
	return nil
}

func (s *MemStorage) SetArchived(_ context.Context, id string, archived bool) (*domain.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[id]
	if !ok {
		return nil, repository.ErrLinkNotFound
	}
	l.Archived = archived
	return s.snapshot(l), nil
}

func (s *MemStorage) TransferLink(_ context.Context, id, projectID string) (*domain.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[id]
	if !ok {
		return nil, repository.ErrLinkNotFound
	}
	pid := projectID
	l.ProjectID = &pid
	l.UpdatedAt = time.Now()
	delete(s.linkTags, id)
	return s.snapshot(l), nil
}

// --- Listing Methods ---

func (s *MemStorage) ListLinks(_ context.Context, filter domain.LinkFilter) ([]*domain.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.filter(filter)
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		switch filter.Sort {
		case domain.SortClicks:
			return a.Clicks > b.Clicks
		case domain.SortLastClicked:
			if a.LastClicked == nil {
				return false
			}
			if b.LastClicked == nil {
				return true
			}
			return a.LastClicked.After(*b.LastClicked)
		default:
			return a.CreatedAt.After(b.CreatedAt)
		}
	})

	page := filter.Page
	if page < 1 {
		page = 1
	}
	start := (page - 1) * domain.LinksPageSize
	if start >= len(matched) {
		return []*domain.Link{}, nil
	}
	end := start + domain.LinksPageSize
	if end > len(matched) {
		end = len(matched)
	}

	out := make([]*domain.Link, 0, end-start)
	for _, l := range matched[start:end] {
		out = append(out, s.snapshot(l))
	}
	return out, nil
}

func (s *MemStorage) CountLinks(_ context.Context, filter domain.LinkFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.filter(filter))), nil
}

func (s *MemStorage) CountLinksGrouped(_ context.Context, filter domain.LinkFilter, groupBy domain.LinkGroupBy) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int64)
	for _, l := range s.filter(filter) {
		switch groupBy {
		case domain.GroupByDomain:
			counts[l.Domain]++
		case domain.GroupByTag:
			for tagID := range s.linkTags[l.ID] {
				counts[tagID]++
			}
		default:
			return nil, fmt.Errorf("unsupported group by %q", groupBy)
		}
	}
	return counts, nil
}

// --- Helpers (caller holds the lock) ---

func (s *MemStorage) insert(link *domain.Link) error {
	k := slot(link.Domain, link.Key)
	if _, taken := s.slots[k]; taken {
		return repository.ErrKeyExists
	}
	if _, taken := s.links[link.ID]; taken {
		return repository.ErrKeyExists
	}
	now := time.Now()
	if link.CreatedAt.IsZero() {
		link.CreatedAt = now
	}
	link.UpdatedAt = now

	cp := *link
	cp.LinkTags = nil
	s.links[link.ID] = &cp
	s.slots[k] = link.ID
	return nil
}

func (s *MemStorage) replaceTags(linkID string, tagIDs []string) {
	set := make(map[string]struct{}, len(tagIDs))
	for _, id := range tagIDs {
		set[id] = struct{}{}
	}
	s.linkTags[linkID] = set
}

func (s *MemStorage) tagRows(linkID string) []domain.LinkTag {
	ids := make([]string, 0, len(s.linkTags[linkID]))
	for id := range s.linkTags[linkID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	rows := make([]domain.LinkTag, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, domain.LinkTag{LinkID: linkID, TagID: id})
	}
	return rows
}

func (s *MemStorage) snapshot(l *domain.Link) *domain.Link {
	cp := *l
	cp.LinkTags = s.tagRows(l.ID)
	return &cp
}

func (s *MemStorage) filter(filter domain.LinkFilter) []*domain.Link {
	var out []*domain.Link
	for _, l := range s.links {
		if filter.ProjectID != nil && (l.ProjectID == nil || *l.ProjectID != *filter.ProjectID) {
			continue
		}
		if filter.Domain != nil && l.Domain != *filter.Domain {
			continue
		}
		if filter.UserID != nil && (l.UserID == nil || *l.UserID != *filter.UserID) {
			continue
		}
		if !filter.ShowArchived && l.Archived {
			continue
		}
		if filter.Search != nil && *filter.Search != "" {
			q := strings.ToLower(*filter.Search)
			if !strings.Contains(strings.ToLower(l.Key), q) && !strings.Contains(strings.ToLower(l.URL), q) {
				continue
			}
		}
		if len(filter.TagIDs) > 0 && !s.hasAnyTag(l.ID, filter.TagIDs) {
			continue
		}
		out = append(out, l)
	}
	return out
}

func (s *MemStorage) hasAnyTag(linkID string, tagIDs []string) bool {
	for _, id := range tagIDs {
		if _, ok := s.linkTags[linkID][id]; ok {
			return true
		}
	}
	return false
}
