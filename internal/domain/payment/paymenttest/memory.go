// Package paymenttest provides an in-memory payment.Repository for tests.
package paymenttest

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xenking/storefront/internal/domain/payment"
)

var _ payment.Repository = (*Memory)(nil)

type key struct {
	ch  payment.Channel
	ext string
}

// Memory is a goroutine-safe in-memory payment.Repository that mirrors the
// uniqueness and compare-and-set behaviour of the PostgreSQL implementation.
type Memory struct {
	mu      sync.Mutex
	byID    map[string]*payment.Record
	byExt   map[key]string
	Now     func() time.Time
	Updates int
}

// New returns an empty repository.
func New() *Memory {
	return &Memory{
		byID:  make(map[string]*payment.Record),
		byExt: make(map[key]string),
		Now:   time.Now,
	}
}

func (m *Memory) Create(_ context.Context, r *payment.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{r.Channel, r.ExternalID}
	if _, ok := m.byExt[k]; ok {
		return payment.ErrConflict
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	now := m.Now()
	r.CreatedAt, r.UpdatedAt = now, now

	cp := *r
	m.byID[r.ID] = &cp
	m.byExt[k] = r.ID
	return nil
}

func (m *Memory) GetByID(_ context.Context, id string) (*payment.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.byID[id]
	if !ok {
		return nil, payment.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *Memory) GetByExternalID(_ context.Context, ch payment.Channel, externalID string) (*payment.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.lookup(ch, externalID)
	if !ok {
		return nil, payment.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *Memory) List(_ context.Context, f payment.Filter) ([]payment.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]payment.Record, 0, len(m.byID))
	for _, r := range m.byID {
		if f.Channel != "" && r.Channel != f.Channel {
			continue
		}
		if f.OrderID != "" && r.OrderID != f.OrderID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, *r)
	}
	slices.SortFunc(out, func(a, b payment.Record) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func (m *Memory) CompareAndSetStatus(
	_ context.Context,
	ch payment.Channel,
	externalID string,
	from, to payment.Status,
	detail payment.Detail,
) (*payment.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.lookup(ch, externalID)
	if !ok {
		return nil, payment.ErrNotFound
	}
	if r.Status != from {
		return nil, payment.ErrStatusChanged
	}
	r.Status = to
	if detail != nil {
		r.Detail = detail
	}
	r.UpdatedAt = m.Now()
	m.Updates++
	cp := *r
	return &cp, nil
}

func (m *Memory) UpdateDetail(_ context.Context, ch payment.Channel, externalID string, detail payment.Detail) (*payment.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.lookup(ch, externalID)
	if !ok {
		return nil, payment.ErrNotFound
	}
	r.Detail = detail
	r.UpdatedAt = m.Now()
	m.Updates++
	cp := *r
	return &cp, nil
}

func (m *Memory) Delete(_ context.Context, id string) (*payment.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.byID[id]
	if !ok {
		return nil, payment.ErrNotFound
	}
	delete(m.byID, id)
	delete(m.byExt, key{r.Channel, r.ExternalID})
	return r, nil
}

// Put stores r as-is, bypassing uniqueness checks. It is meant for fixtures.
func (m *Memory) Put(r payment.Record) *payment.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	m.byID[r.ID] = &r
	m.byExt[key{r.Channel, r.ExternalID}] = r.ID
	cp := r
	return &cp
}

func (m *Memory) lookup(ch payment.Channel, externalID string) (*payment.Record, bool) {
	id, ok := m.byExt[key{ch, externalID}]
	if !ok {
		return nil, false
	}
	r, ok := m.byID[id]
	return r, ok
}
