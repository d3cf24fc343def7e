package projection

import (
	"SLINK-Backend/internal/domain"
	"SLINK-Backend/internal/testutil"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRedisStore(t *testing.T) {
	rdb := testutil.StartRedis(t)
	ctx := context.Background()
	s := NewRedisStore(rdb, zap.NewNop(), WithKeyPrefix("test:"))

	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	b := NewBatch()
	b.Set("demo.link", "Docs", domain.RedirectRecord{
		ID:        "1",
		URL:       "https://docs.example.com",
		ExpiresAt: &expires,
		Geo:       domain.GeoTargets{"DE": "https://de.example.com"},
	})
	b.Set("other.link", "x", domain.RedirectRecord{ID: "2", URL: "https://x.example.com"})
	require.NoError(t, s.Apply(ctx, b))

	fields, err := rdb.HKeys(ctx, "test:demo.link").Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"docs"}, fields)

	rec, err := s.Get(ctx, "demo.link", "DOCS")
	require.NoError(t, err)
	assert.Equal(t, "https://docs.example.com", rec.URL)
	assert.True(t, expires.Equal(*rec.ExpiresAt))
	assert.Equal(t, "https://de.example.com", rec.Geo["DE"])

	del := NewBatch()
	del.Delete("demo.link", "DOCS")
	require.NoError(t, s.Apply(ctx, del))

	_, err = s.Get(ctx, "demo.link", "docs")
	assert.ErrorIs(t, err, ErrNotFound)

	rec, err = s.Get(ctx, "other.link", "x")
	require.NoError(t, err)
	assert.Equal(t, "2", rec.ID)
}

func TestRedisStoreEmptyBatch(t *testing.T) {
	s := NewRedisStore(nil, zap.NewNop())
	assert.NoError(t, s.Apply(context.Background(), NewBatch()))
	assert.NoError(t, s.Apply(context.Background(), nil))
}
