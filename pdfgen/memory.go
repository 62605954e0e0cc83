package pdfgen

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// MemoryStore stores artifacts in memory (test/dev only).
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data []byte
	meta ArtifactMeta
}

// NewMemoryStore creates an in-memory artifact store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

// Put stores an artifact.
func (s *MemoryStore) Put(ctx context.Context, key string, r io.Reader, meta ArtifactMeta) (ArtifactRef, error) {
	_ = ctx
	if key == "" {
		return ArtifactRef{}, NewError(KindValidation, "artifact key is required", nil)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return ArtifactRef{}, err
	}
	meta.Size = int64(len(data))
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now()
	}

	s.mu.Lock()
	s.objects[key] = memoryObject{data: data, meta: meta}
	s.mu.Unlock()

	return ArtifactRef{Key: key, Meta: meta}, nil
}

// Open reads an artifact.
func (s *MemoryStore) Open(ctx context.Context, key string) (io.ReadCloser, ArtifactMeta, error) {
	_ = ctx
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ArtifactMeta{}, NewError(KindNotFound, fmt.Sprintf("artifact %q not found", key), nil)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), obj.meta, nil
}

// Delete removes an artifact.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

// List returns all stored artifacts ordered by key.
func (s *MemoryStore) List(ctx context.Context) ([]ArtifactRef, error) {
	_ = ctx
	s.mu.RLock()
	refs := make([]ArtifactRef, 0, len(s.objects))
	for key, obj := range s.objects {
		refs = append(refs, ArtifactRef{Key: key, Meta: obj.meta})
	}
	s.mu.RUnlock()
	sort.Slice(refs, func(i, j int) bool { return refs[i].Key < refs[j].Key })
	return refs, nil
}

// MemoryLedger keeps generation records in memory (test/dev only).
type MemoryLedger struct {
	mu      sync.RWMutex
	records map[string]GenerationRecord
}

// NewMemoryLedger creates an in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: make(map[string]GenerationRecord)}
}

// Record stores a generation record.
func (l *MemoryLedger) Record(ctx context.Context, record GenerationRecord) error {
	_ = ctx
	if record.ID == "" {
		return NewError(KindValidation, "record ID is required", nil)
	}
	l.mu.Lock()
	l.records[record.ID] = record
	l.mu.Unlock()
	return nil
}

// Expired returns records whose artifacts expired at or before now.
func (l *MemoryLedger) Expired(ctx context.Context, now time.Time) ([]GenerationRecord, error) {
	_ = ctx
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]GenerationRecord, 0)
	for _, record := range l.records {
		if record.ExpiresAt.IsZero() || record.ExpiresAt.After(now) {
			continue
		}
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// HasArtifact reports whether a record references key.
func (l *MemoryLedger) HasArtifact(ctx context.Context, key string) (bool, error) {
	_ = ctx
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, record := range l.records {
		if record.ArtifactKey == key {
			return true, nil
		}
	}
	return false, nil
}

// Delete removes a record.
func (l *MemoryLedger) Delete(ctx context.Context, id string) error {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.records[id]; !ok {
		return NewError(KindNotFound, fmt.Sprintf("record %q not found", id), nil)
	}
	delete(l.records, id)
	return nil
}

// Get returns a record by ID.
func (l *MemoryLedger) Get(id string) (GenerationRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	record, ok := l.records[id]
	return record, ok
}

// Len returns the number of records.
func (l *MemoryLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}
