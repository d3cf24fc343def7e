// Package projection maintains the redirect-time key-value projection of
// links: one hash per domain, one field per lower-cased key.
package projection

import (
	"SLINK-Backend/internal/domain"
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned by Get when no record exists for the slot.
var ErrNotFound = errors.New("projection record not found")

// Store is the projection store. Apply commits every operation of a batch
// in a single round trip.
type Store interface {
	Apply(ctx context.Context, b *Batch) error
	Get(ctx context.Context, linkDomain, key string) (*domain.RedirectRecord, error)
}

// Batch collects set and delete operations grouped by domain.
// Domains and keys are lower-cased on insertion.
type Batch struct {
	sets map[string]map[string]domain.RedirectRecord
	dels map[string][]string
}

func NewBatch() *Batch {
	return &Batch{
		sets: make(map[string]map[string]domain.RedirectRecord),
		dels: make(map[string][]string),
	}
}

// Set upserts the record for (linkDomain, key).
func (b *Batch) Set(linkDomain, key string, rec domain.RedirectRecord) {
	d, k := strings.ToLower(linkDomain), strings.ToLower(key)
	if b.sets[d] == nil {
		b.sets[d] = make(map[string]domain.RedirectRecord)
	}
	b.sets[d][k] = rec
}

// SetLink upserts the redirect record built from l.
func (b *Batch) SetLink(l *domain.Link) {
	b.Set(l.Domain, l.Key, domain.NewRedirectRecord(l))
}

// Delete removes the slot (linkDomain, key).
func (b *Batch) Delete(linkDomain, key string) {
	d, k := strings.ToLower(linkDomain), strings.ToLower(key)
	b.dels[d] = append(b.dels[d], k)
}

// Len returns the number of queued operations.
func (b *Batch) Len() int {
	n := 0
	for _, fields := range b.sets {
		n += len(fields)
	}
	for _, keys := range b.dels {
		n += len(keys)
	}
	return n
}

// Sets returns the queued upserts grouped by domain.
func (b *Batch) Sets() map[string]map[string]domain.RedirectRecord {
	return b.sets
}

// Deletes returns the queued deletions grouped by domain.
func (b *Batch) Deletes() map[string][]string {
	return b.dels
}
