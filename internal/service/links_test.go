package service

import (
	"SLINK-Backend/internal/domain"
	"SLINK-Backend/internal/projection"
	"SLINK-Backend/internal/repository"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestCreateLinkWritesProjection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	link := env.mustCreate(t, &LinkPayload{
		URL:    "https://example.com/landing?utm_source=newsletter&utm_campaign=spring",
		Key:    "Docs",
		TagIDs: []string{"tag_a"},
	}, env.pro)

	assert.NotEmpty(t, link.ID)
	assert.Equal(t, "acme.com", link.Domain)
	assert.Equal(t, "Docs", link.Key)
	assert.Equal(t, []string{"tag_a"}, link.TagIDs())
	require.NotNil(t, link.UTMSource)
	assert.Equal(t, "newsletter", *link.UTMSource)
	assert.Equal(t, "spring", *link.UTMCampaign)
	assert.Nil(t, link.UTMMedium)

	rec, err := env.proj.Get(ctx, link.Domain, "docs")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/landing?utm_source=newsletter&utm_campaign=spring", rec.URL)
	assert.Equal(t, link.ID, rec.ID)
	assert.Equal(t, "prj_pro", rec.ProjectID)

	assert.Equal(t, int64(1), env.usage(t, "prj_pro"))
	assert.Equal(t, []recordedEvent{{LinkID: link.ID}}, env.events.all())
}

func TestCreateLinkHashesPassword(t *testing.T) {
	env := newTestEnv(t)

	link := env.mustCreate(t, &LinkPayload{URL: "https://example.com", Key: "secret", Password: strPtr("hunter2")}, env.pro)
	require.NotNil(t, link.Password)
	assert.NotEqual(t, "hunter2", *link.Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(*link.Password), []byte("hunter2")))

	rec, err := env.proj.Get(context.Background(), "acme.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, *link.Password, rec.Password)
}

func TestCreateLinkRejectsOverlongPassword(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.CreateLink(context.Background(),
		&LinkPayload{URL: "https://example.com", Key: "vault", Password: strPtr(strings.Repeat("x", 73))}, env.pro, "usr_1")
	assert.True(t, IsCode(err, CodeUnprocessableEntity))

	exists, err := env.store.KeyExists(context.Background(), "acme.com", "vault")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCreateLinkDuplicateKey(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreate(t, &LinkPayload{URL: "https://example.com", Key: "launch"}, env.pro)

	payload := &LinkPayload{URL: "https://example.org", Key: "LAUNCH"}
	_, err := env.svc.CreateLink(context.Background(), payload, env.pro, "usr_1")
	require.Error(t, err)
	le, ok := AsLinkError(err)
	require.True(t, ok)
	assert.Equal(t, CodeConflict, le.Code)
	assert.Same(t, payload, le.Payload)
	assert.Equal(t, int64(1), env.usage(t, "prj_pro"))
}

func TestConcurrentCreateIsArbitratedByStore(t *testing.T) {
	env := newTestEnv(t, withStorage(func(s repository.Storage) repository.Storage {
		return racingStorage{Storage: s}
	}))
	ctx := context.Background()

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.CreateLink(ctx, &LinkPayload{URL: "https://example.com", Key: "race"}, env.pro, "usr_1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case IsCode(err, CodeConflict):
				assert.ErrorIs(t, err, repository.ErrKeyExists)
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, workers-1, conflicts)

	n, err := env.store.CountLinks(ctx, domain.LinkFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCreateLinkUploadsEmbeddedImage(t *testing.T) {
	env := newTestEnv(t, withImages())
	env.uploader.On("Upload", mock.Anything, "data:image/png;base64,AAAA", "acme.com/card").
		Return("https://res.example.com/acme.com/card.png", nil).Once()

	link := env.mustCreate(t, &LinkPayload{
		URL:   "https://example.com",
		Key:   "card",
		Proxy: true,
		Image: strPtr("data:image/png;base64,AAAA"),
	}, env.pro)

	require.NotNil(t, link.Image)
	assert.Equal(t, "https://res.example.com/acme.com/card.png", *link.Image)
	env.uploader.AssertExpectations(t)
}

func TestCreateLinkLosingRaceKeepsWinnerImage(t *testing.T) {
	env := newTestEnv(t, withImages(), withStorage(func(s repository.Storage) repository.Storage {
		return racingStorage{Storage: s}
	}))
	env.mustCreate(t, &LinkPayload{URL: "https://example.com", Key: "card"}, env.pro)
	env.uploader.On("Upload", mock.Anything, "data:image/png;base64,AAAA", "acme.com/card").
		Return("https://res.example.com/acme.com/card.png", nil).Once()

	_, err := env.svc.CreateLink(context.Background(), &LinkPayload{
		URL:   "https://example.org",
		Key:   "card",
		Proxy: true,
		Image: strPtr("data:image/png;base64,AAAA"),
	}, env.pro, "usr_1")
	le, ok := AsLinkError(err)
	require.True(t, ok)
	assert.Equal(t, CodeConflict, le.Code)
	env.uploader.AssertNotCalled(t, "Destroy", mock.Anything, mock.Anything)
}

func TestCreateLinkDropsEmbeddedImageWithoutProxy(t *testing.T) {
	env := newTestEnv(t, withImages())

	link := env.mustCreate(t, &LinkPayload{
		URL:   "https://example.com",
		Key:   "plain",
		Image: strPtr("data:image/png;base64,AAAA"),
	}, env.pro)

	assert.Nil(t, link.Image)
	env.uploader.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateLinkProjectionFailureCanBeSynced(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.proj.setFail(true)

	link, err := env.svc.CreateLink(ctx, &LinkPayload{URL: "https://example.com", Key: "later"}, env.pro, "usr_1")
	require.ErrorIs(t, err, ErrProjectionSync)
	require.NotNil(t, link)

	stored, err := env.store.GetLink(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, "later", stored.Key)
	_, err = env.proj.Get(ctx, "acme.com", "later")
	assert.ErrorIs(t, err, projection.ErrNotFound)

	env.proj.setFail(false)
	_, err = env.svc.SyncLink(ctx, link.ID, env.pro)
	require.NoError(t, err)
	rec, err := env.proj.Get(ctx, "acme.com", "later")
	require.NoError(t, err)
	assert.Equal(t, link.ID, rec.ID)
}

func TestBulkCreateLinks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.mustCreate(t, &LinkPayload{URL: "https://example.com", Key: "exists"}, env.pro)

	results, err := env.svc.BulkCreateLinks(ctx, []*LinkPayload{
		{URL: "https://a.example.com", Key: "same", TagIDs: []string{"tag_b", "tag_x", "tag_a"}},
		{URL: "https://b.example.com", Key: "SAME"},
		{URL: "https://c.example.com", Key: "exists"},
		{URL: "https://d.example.com", Rewrite: true},
		{URL: "https://e.example.com"},
	}, env.pro, "usr_1")
	require.NoError(t, err)

	var links []*domain.Link
	var rejected []*LinkError
	for _, r := range results {
		if r.Error != nil {
			rejected = append(rejected, r.Error)
			continue
		}
		links = append(links, r.Link)
	}

	indexes := make([]int, 0, len(results))
	for _, r := range results {
		indexes = append(indexes, r.Index)
	}
	assert.Equal(t, []int{0, 2, 3, 4}, indexes)

	require.Len(t, rejected, 2)
	assert.Equal(t, CodeConflict, rejected[0].Code)
	assert.Equal(t, CodeUnprocessableEntity, rejected[1].Code)

	require.Len(t, links, 2)
	assert.Equal(t, "same", links[0].Key)
	assert.Equal(t, []string{"tag_b", "tag_a"}, links[0].TagIDs())
	assert.Equal(t, int64(3), env.usage(t, "prj_pro"))

	for _, r := range results {
		if r.Link != nil && r.Link.Key == "same" {
			require.NotNil(t, r.TagID)
			assert.Equal(t, "tag_b", *r.TagID)
		}
	}

	for _, l := range links {
		rec, err := env.proj.Get(ctx, l.Domain, l.Key)
		require.NoError(t, err)
		assert.Equal(t, l.URL, rec.URL)
	}
	assert.Len(t, env.events.all(), 3)
}

func TestBulkCreateDuplicatePairCountsOnce(t *testing.T) {
	env := newTestEnv(t)

	results, err := env.svc.BulkCreateLinks(context.Background(), []*LinkPayload{
		{URL: "https://a.example.com", Key: "twin"},
		{URL: "https://b.example.com", Key: "twin"},
	}, env.pro, "usr_1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "https://a.example.com", results[0].Link.URL)
	assert.Equal(t, int64(1), env.usage(t, "prj_pro"))
}

func TestBulkCreateSkipsRowsRejectedByStore(t *testing.T) {
	env := newTestEnv(t, withStorage(func(s repository.Storage) repository.Storage {
		return racingStorage{Storage: s}
	}))
	env.mustCreate(t, &LinkPayload{URL: "https://example.com", Key: "taken"}, env.pro)

	results, err := env.svc.BulkCreateLinks(context.Background(), []*LinkPayload{
		{URL: "https://a.example.com", Key: "taken"},
		{URL: "https://b.example.com", Key: "fresh"},
	}, env.pro, "usr_1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "fresh", results[0].Link.Key)
	assert.Equal(t, 1, results[0].Index)
	assert.Equal(t, int64(2), env.usage(t, "prj_pro"))
}

func TestBulkCreateRequiresProject(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.BulkCreateLinks(context.Background(), []*LinkPayload{{URL: "https://example.com"}}, nil, "")
	assert.True(t, IsCode(err, CodeBadRequest))
}

func TestEditLinkMovesProjectionSlot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	link := env.mustCreate(t, &LinkPayload{URL: "https://example.com", Key: "abc", TagIDs: []string{"tag_a"}}, env.pro)

	edited, err := env.svc.EditLink(ctx, link.ID, &LinkPayload{
		URL:    "https://example.com/new",
		Domain: "links.acme.com",
		Key:    "xyz",
		TagIDs: []string{"tag_b"},
	}, env.pro, "usr_1")
	require.NoError(t, err)
	assert.Equal(t, link.ID, edited.ID)
	assert.Equal(t, "links.acme.com", edited.Domain)
	assert.Equal(t, []string{"tag_b"}, edited.TagIDs())

	_, err = env.proj.Get(ctx, "acme.com", "abc")
	assert.ErrorIs(t, err, projection.ErrNotFound)
	rec, err := env.proj.Get(ctx, "links.acme.com", "xyz")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/new", rec.URL)
}

func TestEditLinkOldSlotDeletedCaseInsensitively(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	link := env.mustCreate(t, &LinkPayload{URL: "https://example.com", Key: "MixedCase"}, env.pro)

	_, err := env.svc.EditLink(ctx, link.ID, &LinkPayload{URL: "https://example.com", Key: "renamed"}, env.pro, "usr_1")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"renamed"}, env.proj.Keys("acme.com"))
}

func TestEditLinkCaseOnlyChangeSkipsKeyChecks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	link := env.mustCreate(t, &LinkPayload{URL: "https://example.com", Key: "promo"}, env.pro)

	edited, err := env.svc.EditLink(ctx, link.ID, &LinkPayload{URL: "https://example.com/v2", Key: "PROMO"}, env.pro, "usr_1")
	require.NoError(t, err)
	assert.Equal(t, "PROMO", edited.Key)

	rec, err := env.proj.Get(ctx, "acme.com", "promo")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/v2", rec.URL)
}

func TestEditLinkKeepsKeyWhenOmitted(t *testing.T) {
	env := newTestEnv(t)
	link := env.mustCreate(t, &LinkPayload{URL: "https://example.com", Key: "steady"}, env.pro)

	edited, err := env.svc.EditLink(context.Background(), link.ID, &LinkPayload{URL: "https://example.org"}, env.pro, "usr_1")
	require.NoError(t, err)
	assert.Equal(t, "steady", edited.Key)
	assert.Equal(t, "acme.com", edited.Domain)
}

func TestEditLinkToTakenKeyConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.mustCreate(t, &LinkPayload{URL: "https://example.com", Key: "first"}, env.pro)
	second := env.mustCreate(t, &LinkPayload{URL: "https://example.com", Key: "second"}, env.pro)

	payload := &LinkPayload{URL: "https://example.com", Key: "first"}
	_, err := env.svc.EditLink(ctx, second.ID, payload, env.pro, "usr_1")
	require.Error(t, err)
	le, ok := AsLinkError(err)
	require.True(t, ok)
	assert.Equal(t, CodeConflict, le.Code)
	assert.Same(t, payload, le.Payload)
}

func TestEditLinkPasswordHandling(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	link := env.mustCreate(t, &LinkPayload{URL: "https://example.com", Key: "locked", Password: strPtr("hunter2")}, env.pro)
	hash := *link.Password

	// без пароля в запросе защита сохраняется
	edited, err := env.svc.EditLink(ctx, link.ID, &LinkPayload{URL: "https://example.org", Key: "locked", Title: strPtr("Locked")}, env.pro, "usr_1")
	require.NoError(t, err)
	require.NotNil(t, edited.Password)
	assert.Equal(t, hash, *edited.Password)
	rec, err := env.proj.Get(ctx, "acme.com", "locked")
	require.NoError(t, err)
	assert.Equal(t, hash, rec.Password)

	edited, err = env.svc.EditLink(ctx, link.ID, &LinkPayload{URL: "https://example.org", Key: "locked", Password: strPtr("swordfish")}, env.pro, "usr_1")
	require.NoError(t, err)
	require.NotNil(t, edited.Password)
	assert.NotEqual(t, hash, *edited.Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(*edited.Password), []byte("swordfish")))

	edited, err = env.svc.EditLink(ctx, link.ID, &LinkPayload{URL: "https://example.org", Key: "locked", Password: strPtr("")}, env.pro, "usr_1")
	require.NoError(t, err)
	assert.Nil(t, edited.Password)
	rec, err = env.proj.Get(ctx, "acme.com", "locked")
	require.NoError(t, err)
	assert.Empty(t, rec.Password)
}

func TestEditLinkRelocatesImage(t *testing.T) {
	env := newTestEnv(t, withImages())
	ctx := context.Background()
	image := "https://res.example.com/image/upload/acme.com/card"
	link := env.mustCreate(t, &LinkPayload{URL: "https://example.com", Key: "card", Proxy: true, Image: &image}, env.pro)

	env.uploader.On("Rename", mock.Anything, "acme.com/card", "acme.com/card-2").Return(nil).Once()

	edited, err := env.svc.EditLink(ctx, link.ID, &LinkPayload{URL: "https://example.com", Key: "card-2", Proxy: true, Image: &image}, env.pro, "usr_1")
	require.NoError(t, err)
	assert.Equal(t, "https://res.example.com/image/upload/acme.com/card-2", *edited.Image)
	env.uploader.AssertExpectations(t)
	env.uploader.AssertNotCalled(t, "Destroy", mock.Anything, mock.Anything)
}

func TestEditLinkImageRelocationFailureIsSwallowed(t *testing.T) {
	env := newTestEnv(t, withImages())
	ctx := context.Background()
	image := "https://res.example.com/image/upload/acme.com/card"
	link := env.mustCreate(t, &LinkPayload{URL: "https://example.com", Key: "card", Proxy: true, Image: &image}, env.pro)

	env.uploader.On("Rename", mock.Anything, "acme.com/card", "acme.com/moved").Return(errors.New("rate limited")).Once()

	edited, err := env.svc.EditLink(ctx, link.ID, &LinkPayload{URL: "https://example.com", Key: "moved", Proxy: true, Image: &image}, env.pro, "usr_1")
	require.NoError(t, err)
	assert.Equal(t, "moved", edited.Key)
	assert.Equal(t, image, *edited.Image)
}

func TestEditLinkDestroysAssetWhenProxyDisabled(t *testing.T) {
	env := newTestEnv(t, withImages())
	ctx := context.Background()
	image := "https://res.example.com/image/upload/acme.com/card"
	link := env.mustCreate(t, &LinkPayload{URL: "https://example.com", Key: "card", Proxy: true, Image: &image}, env.pro)

	env.uploader.On("Destroy", mock.Anything, "acme.com/card").Return(nil).Once()

	_, err := env.svc.EditLink(ctx, link.ID, &LinkPayload{URL: "https://example.com", Key: "card"}, env.pro, "usr_1")
	require.NoError(t, err)
	env.uploader.AssertExpectations(t)
}

func TestEditLinkReuploadsEmbeddedImage(t *testing.T) {
	env := newTestEnv(t, withImages())
	ctx := context.Background()
	link := env.mustCreate(t, &LinkPayload{URL: "https://example.com", Key: "card"}, env.pro)

	env.uploader.On("Destroy", mock.Anything, mock.Anything).Return(nil).Maybe()
	env.uploader.On("Upload", mock.Anything, "data:image/png;base64,BBBB", "acme.com/card").
		Return("https://res.example.com/acme.com/card.png", nil).Once()

	edited, err := env.svc.EditLink(ctx, link.ID, &LinkPayload{
		URL:   "https://example.com",
		Key:   "card",
		Proxy: true,
		Image: strPtr("data:image/png;base64,BBBB"),
	}, env.pro, "usr_1")
	require.NoError(t, err)
	assert.Equal(t, "https://res.example.com/acme.com/card.png", *edited.Image)
	env.uploader.AssertNotCalled(t, "Destroy", mock.Anything, "acme.com/card")
}

func TestEditLinkOfOtherProjectIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	link := env.mustCreate(t, &LinkPayload{URL: "https://example.com", Key: "mine"}, env.pro)

	_, err := env.svc.EditLink(context.Background(), link.ID, &LinkPayload{URL: "https://example.com"}, env.other, "usr_2")
	assert.True(t, IsCode(err, CodeNotFound))
}

func TestDeleteLink(t *testing.T) {
	env := newTestEnv(t, withImages())
	ctx := context.Background()
	link := env.mustCreate(t, &LinkPayload{URL: "https://example.com", Key: "gone"}, env.pro)
	env.uploader.On("Destroy", mock.Anything, "acme.com/gone").Return(errors.New("image host down")).Once()

	deleted, err := env.svc.DeleteLink(ctx, link.ID, env.pro)
	require.NoError(t, err)
	assert.Equal(t, link.ID, deleted.ID)

	_, err = env.store.GetLink(ctx, link.ID)
	assert.ErrorIs(t, err, repository.ErrLinkNotFound)
	_, err = env.proj.Get(ctx, "acme.com", "gone")
	assert.ErrorIs(t, err, projection.ErrNotFound)
	assert.Equal(t, int64(0), env.usage(t, "prj_pro"))
	assert.Contains(t, env.events.all(), recordedEvent{LinkID: link.ID, Deleted: true})
	env.uploader.AssertExpectations(t)

	_, err = env.svc.DeleteLink(ctx, link.ID, env.pro)
	assert.True(t, IsCode(err, CodeNotFound))
}

func TestArchiveLinkIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	link := env.mustCreate(t, &LinkPayload{URL: "https://example.com", Key: "old-news"}, env.pro)
	before := env.events.all()

	for i := 0; i < 2; i++ {
		archived, err := env.svc.ArchiveLink(ctx, link.ID, env.pro, true)
		require.NoError(t, err)
		assert.True(t, archived.Archived)
	}

	assert.Equal(t, before, env.events.all())
	rec, err := env.proj.Get(ctx, "acme.com", "old-news")
	require.NoError(t, err)
	assert.Equal(t, link.URL, rec.URL)

	listed, err := env.svc.ListLinks(ctx, domain.LinkFilter{ProjectID: &env.pro.ID})
	require.NoError(t, err)
	assert.Empty(t, listed)

	listed, err = env.svc.ListLinks(ctx, domain.LinkFilter{ProjectID: &env.pro.ID, ShowArchived: true})
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestTransferLinkClearsTags(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	link := env.mustCreate(t, &LinkPayload{URL: "https://example.com", Domain: "slk.sh", Key: "moving", TagIDs: []string{"tag_a", "tag_b"}}, env.pro)
	require.Len(t, link.TagIDs(), 2)

	moved, err := env.svc.TransferLink(ctx, link.ID, env.pro, env.other.ID)
	require.NoError(t, err)
	assert.Empty(t, moved.TagIDs())
	require.NotNil(t, moved.ProjectID)
	assert.Equal(t, "prj_other", *moved.ProjectID)

	rec, err := env.proj.Get(ctx, "slk.sh", "moving")
	require.NoError(t, err)
	assert.Equal(t, "prj_other", rec.ProjectID)

	assert.Equal(t, int64(0), env.usage(t, "prj_pro"))
	assert.Equal(t, int64(1), env.usage(t, "prj_other"))
}

func TestTransferLinkRejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	custom := env.mustCreate(t, &LinkPayload{URL: "https://example.com", Key: "custom"}, env.pro)
	platform := env.mustCreate(t, &LinkPayload{URL: "https://example.com", Domain: "slk.sh", Key: "platform"}, env.pro)

	_, err := env.svc.TransferLink(ctx, custom.ID, env.pro, env.other.ID)
	assert.True(t, IsCode(err, CodeBadRequest))

	_, err = env.svc.TransferLink(ctx, platform.ID, env.pro, env.pro.ID)
	assert.True(t, IsCode(err, CodeBadRequest))

	_, err = env.svc.TransferLink(ctx, platform.ID, env.pro, "prj_missing")
	assert.True(t, IsCode(err, CodeNotFound))
}

func TestCountLinksGrouped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.mustCreate(t, &LinkPayload{URL: "https://example.com", Key: "one", TagIDs: []string{"tag_a"}}, env.pro)
	env.mustCreate(t, &LinkPayload{URL: "https://example.com", Key: "two", TagIDs: []string{"tag_a", "tag_b"}}, env.pro)
	env.mustCreate(t, &LinkPayload{URL: "https://example.com", Domain: "links.acme.com", Key: "three"}, env.pro)

	filter := domain.LinkFilter{ProjectID: &env.pro.ID}
	byDomain, err := env.svc.CountLinksGrouped(ctx, filter, domain.GroupByDomain)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"acme.com": 2, "links.acme.com": 1}, byDomain)

	byTag, err := env.svc.CountLinksGrouped(ctx, filter, domain.GroupByTag)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"tag_a": 2, "tag_b": 1}, byTag)

	_, err = env.svc.CountLinksGrouped(ctx, filter, "color")
	assert.True(t, IsCode(err, CodeBadRequest))
}
