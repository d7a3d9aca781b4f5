package appointment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryDirectory struct {
	mu      sync.RWMutex
	links   map[uuid.UUID]Link
	records map[uuid.UUID]ClinicalRecord
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		links:   make(map[uuid.UUID]Link),
		records: make(map[uuid.UUID]ClinicalRecord),
	}
}

// PutLink stores l, assigning an id when it has none, and returns it.
func (d *MemoryDirectory) PutLink(l Link) Link {
	d.mu.Lock()
	defer d.mu.Unlock()
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	d.links[l.ID] = l
	return l
}

func (d *MemoryDirectory) PutClinicalRecord(c ClinicalRecord) ClinicalRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	d.records[c.ID] = c
	return c
}

func (d *MemoryDirectory) GetLink(_ context.Context, id uuid.UUID) (*Link, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	l, ok := d.links[id]
	if !ok {
		return nil, ErrLinkNotFound
	}
	return &l, nil
}

func (d *MemoryDirectory) GetClinicalRecord(_ context.Context, id uuid.UUID) (*ClinicalRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.records[id]
	if !ok {
		return nil, ErrClinicalRecordNotFound
	}
	return &c, nil
}
