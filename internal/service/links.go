package service

import (
	"SLINK-Backend/internal/analytics"
	"SLINK-Backend/internal/config"
	"SLINK-Backend/internal/domain"
	"SLINK-Backend/internal/images"
	"SLINK-Backend/internal/policy"
	"SLINK-Backend/internal/projection"
	"SLINK-Backend/internal/repository"
	"SLINK-Backend/pkg/password"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LinkService coordinates the link lifecycle across the canonical store,
// the projection store and the image and event side-channels. The canonical
// write always happens first; the projection follows it.
type LinkService struct {
	storage    repository.Storage
	projection projection.Store
	images     images.Uploader
	events     analytics.Recorder
	keys       *KeyAllocator
	validator  *LinkValidator
	cfg        *config.Links
	log        *zap.Logger
	passwords  *password.Hasher
}

func NewLinkService(
	storage repository.Storage,
	store projection.Store,
	uploader images.Uploader,
	events analytics.Recorder,
	lookup policy.Lookup,
	cfg *config.Links,
	log *zap.Logger,
) *LinkService {
	keys := NewKeyAllocator(storage, lookup, cfg, log)
	return &LinkService{
		storage:    storage,
		projection: store,
		images:     uploader,
		events:     events,
		keys:       keys,
		validator:  NewLinkValidator(storage, lookup, keys, uploader, cfg, log),
		cfg:        cfg,
		log:        log,
		passwords:  password.New(),
	}
}

// Validator exposes the gate chain used by the service.
func (s *LinkService) Validator() *LinkValidator {
	return s.validator
}

// BulkResult is one entry of a bulk creation response: either a created
// link or the rejection of a payload. Index is the position of the payload
// in the request. TagID holds only the first tag of the link.
type BulkResult struct {
	Index int          `json:"index"`
	Link  *domain.Link `json:"link,omitempty"`
	TagID *string      `json:"tagId,omitempty"`
	Error *LinkError   `json:"error,omitempty"`
}

// CreateLink validates payload and creates the link.
func (s *LinkService) CreateLink(ctx context.Context, payload *LinkPayload, project *domain.Project, userID string) (*domain.Link, error) {
	processed, err := s.validator.ProcessLink(ctx, payload, project, userID, ProcessOptions{})
	if err == nil {
		var link *domain.Link
		link, err = s.AddLink(ctx, processed)
		if le, ok := AsLinkError(err); ok && le.Payload == nil {
			le.Payload = payload
		}
		observeOperation("create", err)
		return link, err
	}
	observeOperation("create", err)
	return nil, err
}

// AddLink persists an already validated link. A non-nil link with
// ErrProjectionSync means the link exists but SyncLink should be retried.
func (s *LinkService) AddLink(ctx context.Context, p *ProcessedLink) (*domain.Link, error) {
	link := p.Link
	applyUTM(link)

	uploaded := false
	if link.Image != nil && images.IsEmbedded(*link.Image) {
		if link.Proxy {
			secureURL, err := s.images.Upload(ctx, *link.Image, images.AssetID(link.Domain, link.Key))
			if err != nil {
				return nil, fmt.Errorf("failed to upload link image: %w", err)
			}
			link.Image = &secureURL
			uploaded = true
		} else {
			link.Image = nil
		}
	}

	if err := s.hashPassword(link); err != nil {
		return nil, err
	}
	link.ID = uuid.NewString()

	if err := s.storage.CreateLink(ctx, link, p.TagIDs); err != nil {
		// при ErrKeyExists ассет по этому слоту принадлежит победившей ссылке
		if uploaded && !errors.Is(err, repository.ErrKeyExists) {
			if derr := s.images.Destroy(ctx, images.AssetID(link.Domain, link.Key)); derr != nil {
				s.log.Warn("failed to clean up uploaded image", zap.Error(derr))
			}
		}
		if errors.Is(err, repository.ErrKeyExists) {
			return nil, &LinkError{Code: CodeConflict, Message: msgDuplicateKey, Err: err}
		}
		return nil, fmt.Errorf("failed to create link: %w", err)
	}

	log := s.log.With(zap.String("link_id", link.ID))
	tasks := newTaskGroup(log)
	tasks.Require("projection", func() error {
		return s.writeProjection(ctx, link)
	})
	if link.ProjectID != nil {
		tasks.Try("usage", func() error {
			return s.storage.IncrementLinksUsage(ctx, *link.ProjectID, 1)
		})
	}
	tasks.Try("event", func() error {
		return s.events.Record(ctx, link, false)
	})
	if err := tasks.Wait(); err != nil {
		return link, fmt.Errorf("%w: %w", ErrProjectionSync, err)
	}

	log.Info("link created", zap.String("domain", link.Domain), zap.String("key", link.Key))
	return link, nil
}

// BulkCreateLinks creates many links for project. Payloads that fail
// validation are reported in the results; duplicates within the batch or
// against stored links are dropped.
func (s *LinkService) BulkCreateLinks(ctx context.Context, payloads []*LinkPayload, project *domain.Project, userID string) ([]BulkResult, error) {
	results, err := s.bulkCreateLinks(ctx, payloads, project, userID)
	observeOperation("bulk_create", err)
	return results, err
}

func (s *LinkService) bulkCreateLinks(ctx context.Context, payloads []*LinkPayload, project *domain.Project, userID string) ([]BulkResult, error) {
	if project == nil {
		return nil, newLinkError(CodeBadRequest, "Bulk link creation requires a project.", nil)
	}

	results := make([]BulkResult, 0, len(payloads))
	pending := make([]*domain.Link, 0, len(payloads))
	requestedTags := make(map[string][]string)
	positions := make(map[string]int)
	seen := make(map[string]struct{})

	for i, payload := range payloads {
		processed, err := s.validator.ProcessLink(ctx, payload, project, userID, ProcessOptions{Bulk: true})
		if err != nil {
			le, ok := AsLinkError(err)
			if !ok {
				return nil, err
			}
			results = append(results, BulkResult{Index: i, Error: le})
			continue
		}

		link := processed.Link
		slot := strings.ToLower(link.Domain) + "/" + strings.ToLower(link.Key)
		if _, dup := seen[slot]; dup {
			continue
		}
		seen[slot] = struct{}{}

		applyUTM(link)
		if link.Image != nil && images.IsEmbedded(*link.Image) {
			link.Image = nil
		}
		if err := s.hashPassword(link); err != nil {
			le, ok := AsLinkError(err)
			if !ok {
				return nil, err
			}
			le.Payload = payload
			results = append(results, BulkResult{Index: i, Error: le})
			continue
		}
		link.ID = uuid.NewString()
		requestedTags[link.ID] = processed.TagIDs
		positions[link.ID] = i
		pending = append(pending, link)
	}

	if len(pending) == 0 {
		return results, nil
	}

	created, err := s.storage.CreateLinks(ctx, pending)
	if err != nil {
		return nil, fmt.Errorf("failed to create links: %w", err)
	}
	if len(created) == 0 {
		return results, nil
	}

	rows, err := s.validTagRows(ctx, project.ID, created, requestedTags)
	if err != nil {
		return nil, err
	}
	if err := s.storage.CreateLinkTags(ctx, rows); err != nil {
		return nil, fmt.Errorf("failed to create link tags: %w", err)
	}

	batch := projection.NewBatch()
	for _, l := range created {
		batch.SetLink(l)
	}

	tasks := newTaskGroup(s.log.With(zap.String("project_id", project.ID)))
	tasks.Require("projection", func() error {
		return s.projection.Apply(ctx, batch)
	})
	tasks.Try("usage", func() error {
		return s.storage.IncrementLinksUsage(ctx, project.ID, int64(len(created)))
	})
	for _, l := range created {
		l := l
		tasks.Try("event", func() error {
			return s.events.Record(ctx, l, false)
		})
	}
	syncErr := tasks.Wait()

	for _, l := range created {
		r := BulkResult{Index: positions[l.ID], Link: l}
		if ids := l.TagIDs(); len(ids) > 0 {
			r.TagID = &ids[0]
		}
		results = append(results, r)
	}
	// порядок ответа совпадает с порядком запроса
	sort.SliceStable(results, func(i, j int) bool { return results[i].Index < results[j].Index })

	s.log.Info("bulk links created",
		zap.String("project_id", project.ID),
		zap.Int("requested", len(payloads)),
		zap.Int("created", len(created)))

	if syncErr != nil {
		return results, fmt.Errorf("%w: %w", ErrProjectionSync, syncErr)
	}
	return results, nil
}

// validTagRows builds the association rows for persisted links, keeping only
// tags that belong to the project. LinkTags of each link are set to its rows.
func (s *LinkService) validTagRows(ctx context.Context, projectID string, created []*domain.Link, requested map[string][]string) ([]domain.LinkTag, error) {
	var all []string
	seen := make(map[string]struct{})
	for _, l := range created {
		for _, id := range requested[l.ID] {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				all = append(all, id)
			}
		}
	}
	if len(all) == 0 {
		return nil, nil
	}

	tags, err := s.storage.FindProjectTags(ctx, projectID, all)
	if err != nil {
		return nil, fmt.Errorf("failed to load project tags: %w", err)
	}
	valid := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		valid[t.ID] = struct{}{}
	}

	var rows []domain.LinkTag
	for _, l := range created {
		l.LinkTags = nil
		for _, id := range requested[l.ID] {
			if _, ok := valid[id]; ok {
				row := domain.LinkTag{LinkID: l.ID, TagID: id}
				rows = append(rows, row)
				l.LinkTags = append(l.LinkTags, row)
			}
		}
	}
	return rows, nil
}

// EditLink replaces the link's fields and tag set with payload. Key checks
// run only when the domain or key changes.
func (s *LinkService) EditLink(ctx context.Context, id string, payload *LinkPayload, project *domain.Project, userID string) (*domain.Link, error) {
	link, err := s.editLink(ctx, id, payload, project, userID)
	if le, ok := AsLinkError(err); ok {
		le.Payload = payload
	}
	observeOperation("edit", err)
	return link, err
}

func (s *LinkService) editLink(ctx context.Context, id string, payload *LinkPayload, project *domain.Project, userID string) (*domain.Link, error) {
	old, err := s.ownedLink(ctx, id, project)
	if err != nil {
		return nil, err
	}

	req := *payload
	if strings.TrimSpace(req.Domain) == "" {
		req.Domain = old.Domain
	}
	if strings.TrimSpace(req.Key) == "" {
		req.Key = old.Key
	}
	newKey, _ := ProcessKey(req.Key)
	slotChanged := !strings.EqualFold(strings.TrimSpace(req.Domain), old.Domain) || !strings.EqualFold(newKey, old.Key)

	processed, err := s.validator.ProcessLink(ctx, &req, project, userID, ProcessOptions{SkipKeyChecks: !slotChanged})
	if err != nil {
		return nil, err
	}

	link := processed.Link
	link.ID = old.ID
	link.CreatedAt = old.CreatedAt
	applyUTM(link)
	if payload.Password == nil {
		// пароль не передан: защита остаётся прежней
		link.Password = old.Password
	} else if err := s.hashPassword(link); err != nil {
		return nil, err
	}

	log := s.log.With(zap.String("link_id", link.ID))
	oldAsset := images.AssetID(old.Domain, old.Key)
	newAsset := images.AssetID(link.Domain, link.Key)
	assetMoved := oldAsset != newAsset
	destroyOld := false

	switch {
	case link.Image != nil && images.IsEmbedded(*link.Image) && link.Proxy:
		secureURL, err := s.images.Upload(ctx, *link.Image, newAsset)
		if err != nil {
			return nil, fmt.Errorf("failed to upload link image: %w", err)
		}
		link.Image = &secureURL
		destroyOld = assetMoved && s.images.Configured()
	case link.Image != nil && images.IsEmbedded(*link.Image):
		link.Image = nil
		destroyOld = s.images.Configured()
	case link.Proxy && link.Image != nil:
		if assetMoved && s.images.Configured() && old.Image != nil && *old.Image == *link.Image {
			if err := s.images.Rename(ctx, oldAsset, newAsset); err != nil {
				sideEffectFailuresTotal.WithLabelValues("image_rename").Inc()
				log.Warn("failed to relocate link image", zap.String("from", oldAsset), zap.String("to", newAsset), zap.Error(err))
			} else {
				relocated := strings.Replace(*link.Image, oldAsset, newAsset, 1)
				link.Image = &relocated
			}
		}
	default:
		destroyOld = s.images.Configured()
	}

	tasks := newTaskGroup(log)
	tasks.Require("canonical_update", func() error {
		return s.storage.UpdateLink(ctx, link, processed.TagIDs)
	})
	if destroyOld {
		tasks.Try("image_destroy", func() error {
			return s.images.Destroy(ctx, oldAsset)
		})
	}
	if err := tasks.Wait(); err != nil {
		switch {
		case errors.Is(err, repository.ErrKeyExists):
			return nil, &LinkError{Code: CodeConflict, Message: msgDuplicateKey, Err: err}
		case errors.Is(err, repository.ErrLinkNotFound):
			return nil, newLinkError(CodeNotFound, msgLinkNotFound, nil)
		default:
			return nil, fmt.Errorf("failed to update link: %w", err)
		}
	}

	batch := projection.NewBatch()
	batch.SetLink(link)
	if !strings.EqualFold(old.Domain, link.Domain) || !strings.EqualFold(old.Key, link.Key) {
		batch.Delete(old.Domain, old.Key)
	}

	tasks = newTaskGroup(log)
	tasks.Require("projection", func() error {
		return s.projection.Apply(ctx, batch)
	})
	tasks.Try("event", func() error {
		return s.events.Record(ctx, link, false)
	})
	if err := tasks.Wait(); err != nil {
		return link, fmt.Errorf("%w: %w", ErrProjectionSync, err)
	}

	log.Info("link updated", zap.String("domain", link.Domain), zap.String("key", link.Key), zap.Bool("slot_changed", slotChanged))
	return link, nil
}

// DeleteLink removes the link everywhere. Image, event and usage updates
// are best-effort and never undo the canonical deletion.
func (s *LinkService) DeleteLink(ctx context.Context, id string, project *domain.Project) (*domain.Link, error) {
	link, err := s.deleteLink(ctx, id, project)
	observeOperation("delete", err)
	return link, err
}

func (s *LinkService) deleteLink(ctx context.Context, id string, project *domain.Project) (*domain.Link, error) {
	old, err := s.ownedLink(ctx, id, project)
	if err != nil {
		return nil, err
	}

	batch := projection.NewBatch()
	batch.Delete(old.Domain, old.Key)

	var canonicalErr, projectionErr error
	tasks := newTaskGroup(s.log.With(zap.String("link_id", old.ID)))
	tasks.Require("canonical_delete", func() error {
		canonicalErr = s.storage.DeleteLink(ctx, old.ID)
		return canonicalErr
	})
	tasks.Require("projection_delete", func() error {
		projectionErr = s.projection.Apply(ctx, batch)
		return projectionErr
	})
	if s.images.Configured() {
		tasks.Try("image_destroy", func() error {
			return s.images.Destroy(ctx, images.AssetID(old.Domain, old.Key))
		})
	}
	tasks.Try("event", func() error {
		return s.events.Record(ctx, old, true)
	})
	if old.ProjectID != nil {
		tasks.Try("usage", func() error {
			return s.storage.IncrementLinksUsage(ctx, *old.ProjectID, -1)
		})
	}
	_ = tasks.Wait()

	if canonicalErr != nil {
		if errors.Is(canonicalErr, repository.ErrLinkNotFound) {
			return nil, newLinkError(CodeNotFound, msgLinkNotFound, nil)
		}
		return nil, fmt.Errorf("failed to delete link: %w", canonicalErr)
	}
	if projectionErr != nil {
		return old, fmt.Errorf("%w: %w", ErrProjectionSync, projectionErr)
	}

	s.log.Info("link deleted", zap.String("link_id", old.ID), zap.String("domain", old.Domain), zap.String("key", old.Key))
	return old, nil
}

// ArchiveLink sets the archived flag. It has no projection or side-channel
// effects, so repeating it is harmless.
func (s *LinkService) ArchiveLink(ctx context.Context, id string, project *domain.Project, archived bool) (*domain.Link, error) {
	link, err := s.archiveLink(ctx, id, project, archived)
	observeOperation("archive", err)
	return link, err
}

func (s *LinkService) archiveLink(ctx context.Context, id string, project *domain.Project, archived bool) (*domain.Link, error) {
	if _, err := s.ownedLink(ctx, id, project); err != nil {
		return nil, err
	}
	link, err := s.storage.SetArchived(ctx, id, archived)
	if errors.Is(err, repository.ErrLinkNotFound) {
		return nil, newLinkError(CodeNotFound, msgLinkNotFound, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to archive link: %w", err)
	}
	return link, nil
}

// TransferLink moves a platform-domain link to another project. Tags are
// project scoped, so all associations are cleared.
func (s *LinkService) TransferLink(ctx context.Context, id string, project *domain.Project, newProjectID string) (*domain.Link, error) {
	link, err := s.transferLink(ctx, id, project, newProjectID)
	observeOperation("transfer", err)
	return link, err
}

func (s *LinkService) transferLink(ctx context.Context, id string, project *domain.Project, newProjectID string) (*domain.Link, error) {
	old, err := s.ownedLink(ctx, id, project)
	if err != nil {
		return nil, err
	}
	if !s.cfg.IsPlatformDomain(old.Domain) {
		return nil, newLinkError(CodeBadRequest, "Only links on platform domains can be transferred.", nil)
	}
	if newProjectID == "" || (old.ProjectID != nil && *old.ProjectID == newProjectID) {
		return nil, newLinkError(CodeBadRequest, "Link is already in this project.", nil)
	}
	if _, err := s.storage.GetProject(ctx, newProjectID); err != nil {
		if errors.Is(err, repository.ErrProjectNotFound) {
			return nil, newLinkError(CodeNotFound, "Project not found.", nil)
		}
		return nil, fmt.Errorf("failed to load target project: %w", err)
	}

	link, err := s.storage.TransferLink(ctx, id, newProjectID)
	if errors.Is(err, repository.ErrLinkNotFound) {
		return nil, newLinkError(CodeNotFound, msgLinkNotFound, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to transfer link: %w", err)
	}

	tasks := newTaskGroup(s.log.With(zap.String("link_id", link.ID)))
	tasks.Require("projection", func() error {
		return s.writeProjection(ctx, link)
	})
	if old.ProjectID != nil {
		tasks.Try("usage", func() error {
			return s.storage.IncrementLinksUsage(ctx, *old.ProjectID, -1)
		})
	}
	tasks.Try("usage", func() error {
		return s.storage.IncrementLinksUsage(ctx, newProjectID, 1)
	})
	tasks.Try("event", func() error {
		return s.events.Record(ctx, link, false)
	})
	if err := tasks.Wait(); err != nil {
		return link, fmt.Errorf("%w: %w", ErrProjectionSync, err)
	}

	s.log.Info("link transferred", zap.String("link_id", link.ID), zap.String("project_id", newProjectID))
	return link, nil
}

// SyncLink rewrites the projection entry from the canonical record.
func (s *LinkService) SyncLink(ctx context.Context, id string, project *domain.Project) (*domain.Link, error) {
	link, err := s.ownedLink(ctx, id, project)
	if err == nil {
		err = s.writeProjection(ctx, link)
	}
	observeOperation("sync", err)
	if err != nil {
		return nil, err
	}
	return link, nil
}

// GetLink returns a link of project by id.
func (s *LinkService) GetLink(ctx context.Context, id string, project *domain.Project) (*domain.Link, error) {
	return s.ownedLink(ctx, id, project)
}

// ListLinks returns one page of links matching filter.
func (s *LinkService) ListLinks(ctx context.Context, filter domain.LinkFilter) ([]*domain.Link, error) {
	links, err := s.storage.ListLinks(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	return links, nil
}

// CountLinks counts links matching filter.
func (s *LinkService) CountLinks(ctx context.Context, filter domain.LinkFilter) (int64, error) {
	n, err := s.storage.CountLinks(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count links: %w", err)
	}
	return n, nil
}

// CountLinksGrouped counts links matching filter per domain or per tag.
func (s *LinkService) CountLinksGrouped(ctx context.Context, filter domain.LinkFilter, groupBy domain.LinkGroupBy) (map[string]int64, error) {
	if groupBy != domain.GroupByDomain && groupBy != domain.GroupByTag {
		return nil, newLinkError(CodeBadRequest, "Invalid groupBy.", nil)
	}
	counts, err := s.storage.CountLinksGrouped(ctx, filter, groupBy)
	if err != nil {
		return nil, fmt.Errorf("failed to count links: %w", err)
	}
	return counts, nil
}

func (s *LinkService) ownedLink(ctx context.Context, id string, project *domain.Project) (*domain.Link, error) {
	link, err := s.storage.GetLink(ctx, id)
	if errors.Is(err, repository.ErrLinkNotFound) {
		return nil, newLinkError(CodeNotFound, msgLinkNotFound, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get link: %w", err)
	}

	switch {
	case project == nil && link.ProjectID != nil,
		project != nil && (link.ProjectID == nil || *link.ProjectID != project.ID):
		return nil, newLinkError(CodeNotFound, msgLinkNotFound, nil)
	}
	return link, nil
}

func (s *LinkService) writeProjection(ctx context.Context, link *domain.Link) error {
	batch := projection.NewBatch()
	batch.SetLink(link)
	return s.projection.Apply(ctx, batch)
}

// hashPassword replaces the plain text password with its bcrypt hash. An
// empty password removes protection.
func (s *LinkService) hashPassword(link *domain.Link) error {
	if !link.HasPassword() {
		link.Password = nil
		return nil
	}
	hash, err := s.passwords.Hash(*link.Password)
	if err != nil {
		return &LinkError{Code: CodeUnprocessableEntity, Message: "Invalid password.", Err: err}
	}
	link.Password = &hash
	return nil
}
