package service

import (
	"SLINK-Backend/internal/config"
	"SLINK-Backend/internal/domain"
	"SLINK-Backend/internal/projection"
	"SLINK-Backend/internal/repository"
	"SLINK-Backend/internal/repository/memory"
	"SLINK-Backend/pkg/password"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// mockUploader is a mock implementation of images.Uploader
type mockUploader struct {
	mock.Mock
}

func (m *mockUploader) Configured() bool {
	return m.Called().Bool(0)
}

func (m *mockUploader) Upload(ctx context.Context, data, id string) (string, error) {
	args := m.Called(ctx, data, id)
	return args.String(0), args.Error(1)
}

func (m *mockUploader) Destroy(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockUploader) Rename(ctx context.Context, fromID, toID string) error {
	return m.Called(ctx, fromID, toID).Error(0)
}

type recordedEvent struct {
	LinkID  string
	Deleted bool
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *fakeRecorder) Record(_ context.Context, link *domain.Link, deleted bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{LinkID: link.ID, Deleted: deleted})
	return nil
}

func (r *fakeRecorder) all() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedEvent(nil), r.events...)
}

// switchableProjection fails every Apply while fail is set
type switchableProjection struct {
	*projection.MemoryStore
	mu   sync.Mutex
	fail bool
}

func (p *switchableProjection) setFail(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = fail
}

func (p *switchableProjection) Apply(ctx context.Context, b *projection.Batch) error {
	p.mu.Lock()
	fail := p.fail
	p.mu.Unlock()
	if fail {
		return errors.New("projection unavailable")
	}
	return p.MemoryStore.Apply(ctx, b)
}

// racingStorage pretends every key is free so that only the store's
// uniqueness constraint can reject a duplicate
type racingStorage struct {
	repository.Storage
}

func (racingStorage) KeyExists(context.Context, string, string) (bool, error) {
	return false, nil
}

// takenStorage reports every key as taken
type takenStorage struct {
	repository.Storage
}

func (takenStorage) KeyExists(context.Context, string, string) (bool, error) {
	return true, nil
}

type testEnv struct {
	svc      *LinkService
	store    *memory.MemStorage
	proj     *switchableProjection
	uploader *mockUploader
	events   *fakeRecorder
	free     *domain.Project
	pro      *domain.Project
	other    *domain.Project
}

func testLinksConfig() *config.Links {
	return &config.Links{
		DefaultDomain: "slk.sh",
		PlatformDomains: []config.PlatformDomain{
			{Slug: "git.new", AllowedHosts: []string{"github.com"}},
		},
		DefaultRedirects: []string{"pricing", "blog"},
		KeyLength:        7,
		MaxKeyAttempts:   3,
	}
}

func testPolicy() config.Policy {
	return config.Policy{
		ReservedKeys:       []string{"admin"},
		BlacklistedKeys:    []string{"phish"},
		ReservedUsernames:  []string{"google"},
		BlacklistedDomains: []string{"evil.com"},
	}
}

type envOption func(*envSettings)

type envSettings struct {
	imagesConfigured bool
	wrap             func(repository.Storage) repository.Storage
}

func withImages() envOption {
	return func(s *envSettings) { s.imagesConfigured = true }
}

func withStorage(wrap func(repository.Storage) repository.Storage) envOption {
	return func(s *envSettings) { s.wrap = wrap }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	var settings envSettings
	for _, opt := range opts {
		opt(&settings)
	}

	store := memory.New()
	free := &domain.Project{ID: "prj_free", Name: "Free", Slug: "free", Plan: domain.PlanFree}
	pro := &domain.Project{
		ID: "prj_pro", Name: "Acme", Slug: "acme", Plan: domain.PlanPro,
		Domains: []domain.Domain{
			{ID: "dom_1", Slug: "acme.com", Primary: true, ProjectID: "prj_pro"},
			{ID: "dom_2", Slug: "links.acme.com", ProjectID: "prj_pro"},
		},
	}
	other := &domain.Project{ID: "prj_other", Name: "Other", Slug: "other", Plan: domain.PlanBusiness}
	store.AddProject(free)
	store.AddProject(pro)
	store.AddProject(other)
	store.AddTag(domain.Tag{ID: "tag_a", Name: "a", ProjectID: "prj_pro"})
	store.AddTag(domain.Tag{ID: "tag_b", Name: "b", ProjectID: "prj_pro"})
	store.AddTag(domain.Tag{ID: "tag_x", Name: "x", ProjectID: "prj_other"})

	var storage repository.Storage = store
	if settings.wrap != nil {
		storage = settings.wrap(store)
	}

	uploader := &mockUploader{}
	uploader.On("Configured").Return(settings.imagesConfigured).Maybe()

	proj := &switchableProjection{MemoryStore: projection.NewMemoryStore()}
	events := &fakeRecorder{}

	svc := NewLinkService(storage, proj, uploader, events, newStaticPolicy(), testLinksConfig(), zap.NewNop())
	svc.passwords = password.NewWithCost(bcrypt.MinCost)
	svc.validator.now = func() time.Time { return testNow }

	return &testEnv{
		svc:      svc,
		store:    store,
		proj:     proj,
		uploader: uploader,
		events:   events,
		free:     free,
		pro:      pro,
		other:    other,
	}
}

func (e *testEnv) usage(t *testing.T, projectID string) int64 {
	t.Helper()
	p, err := e.store.GetProject(context.Background(), projectID)
	require.NoError(t, err)
	return p.LinksUsage
}

func (e *testEnv) mustCreate(t *testing.T, payload *LinkPayload, project *domain.Project) *domain.Link {
	t.Helper()
	link, err := e.svc.CreateLink(context.Background(), payload, project, "usr_1")
	require.NoError(t, err)
	require.NotNil(t, link)
	return link
}

func strPtr(s string) *string {
	return &s
}
