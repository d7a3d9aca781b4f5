package availability

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by tests and local tooling.
type MemoryStore struct {
	mu        sync.RWMutex
	providers map[uuid.UUID]*Provider
	windows   map[uuid.UUID][]Window
	blocked   map[uuid.UUID]map[string]BlockedDate // provider -> YYYY-MM-DD -> entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		providers: make(map[uuid.UUID]*Provider),
		windows:   make(map[uuid.UUID][]Window),
		blocked:   make(map[uuid.UUID]map[string]BlockedDate),
	}
}

// PutProvider adds or replaces a provider.
func (m *MemoryStore) PutProvider(p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	m.providers[p.ID] = &p
}

func (m *MemoryStore) GetProvider(_ context.Context, id uuid.UUID) (*Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) UpdateProviderSettings(_ context.Context, id uuid.UUID, s ProviderSettings) (*Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	p.SlotDuration = s.SlotDuration
	p.BufferMinutes = s.BufferMinutes
	p.MaxDailyAppointments = s.MaxDailyAppointments
	p.UpdatedAt = time.Now()
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) ListWindows(_ context.Context, providerID uuid.UUID) ([]Window, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Window, len(m.windows[providerID]))
	copy(out, m.windows[providerID])
	return out, nil
}

func (m *MemoryStore) ReplaceWindows(_ context.Context, providerID uuid.UUID, windows []Window) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.providers[providerID]; !ok {
		return ErrProviderNotFound
	}
	out := make([]Window, 0, len(windows))
	for _, w := range windows {
		if w.ID == uuid.Nil {
			w.ID = uuid.New()
		}
		w.ProviderID = providerID
		out = append(out, w)
	}
	m.windows[providerID] = out
	return nil
}

func (m *MemoryStore) BlockedOn(_ context.Context, providerID uuid.UUID, date time.Time) (*BlockedDate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blocked[providerID][dateKey(date)]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (m *MemoryStore) BlockDate(_ context.Context, b BlockedDate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.providers[b.ProviderID]; !ok {
		return ErrProviderNotFound
	}
	if m.blocked[b.ProviderID] == nil {
		m.blocked[b.ProviderID] = make(map[string]BlockedDate)
	}
	m.blocked[b.ProviderID][dateKey(b.Date)] = b
	return nil
}

func (m *MemoryStore) UnblockDate(_ context.Context, providerID uuid.UUID, date time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blocked[providerID], dateKey(date))
	return nil
}

func (m *MemoryStore) ListBlockedDates(_ context.Context, providerID uuid.UUID, from, to time.Time) ([]BlockedDate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lo, hi := dateKey(from), dateKey(to)
	var out []BlockedDate
	for k, b := range m.blocked[providerID] {
		if k >= lo && k < hi {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return dateKey(out[i].Date) < dateKey(out[j].Date) })
	return out, nil
}
