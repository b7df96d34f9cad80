package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/solatis/intervalq/internal/mapping"
	"github.com/solatis/intervalq/internal/types"
)

// IndexMapping is one stored index mapping.
type IndexMapping struct {
	ID        types.IndexID `db:"index_id"`
	Name      string        `db:"index_name"`
	Mapping   string        `db:"mapping"`
	CreatedAt string        `db:"created_at"`
	UpdatedAt string        `db:"updated_at"`
}

// MappingStore persists index mappings and caches their resolvers.
// Safe for concurrent use.
type MappingStore struct {
	queries         *Queries
	defaultAnalyzer string

	mu    sync.RWMutex
	cache map[string]*mapping.Resolver
}

// NewMappingStore creates a store over loaded queries. Text fields without
// an analyzer use defaultAnalyzer.
func NewMappingStore(queries *Queries, defaultAnalyzer string) *MappingStore {
	return &MappingStore{
		queries:         queries,
		defaultAnalyzer: defaultAnalyzer,
		cache:           make(map[string]*mapping.Resolver),
	}
}

// Put validates and stores the mapping for index, replacing any previous
// one. The index keeps its ID across replacements.
func (s *MappingStore) Put(ctx context.Context, index string, raw []byte) (*IndexMapping, error) {
	if index == "" {
		return nil, fmt.Errorf("index name cannot be empty")
	}
	resolver, err := s.build(raw)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	existing, err := s.Get(ctx, index)
	switch {
	case errors.Is(err, types.ErrUnknownIndex):
		m := &IndexMapping{
			ID:        types.NewIndexID(),
			Name:      index,
			Mapping:   string(raw),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if _, err := s.queries.Exec(ctx, "insert-mapping", m.ID, m.Name, m.Mapping, m.CreatedAt, m.UpdatedAt); err != nil {
			return nil, storeError("insert mapping", err)
		}
		s.remember(index, resolver)
		return m, nil
	case err != nil:
		return nil, err
	}

	if _, err := s.queries.Exec(ctx, "update-mapping", string(raw), now, index); err != nil {
		return nil, storeError("update mapping", err)
	}
	existing.Mapping = string(raw)
	existing.UpdatedAt = now
	s.remember(index, resolver)
	return existing, nil
}

// Get returns the stored mapping for index, or an error wrapping
// types.ErrUnknownIndex.
func (s *MappingStore) Get(ctx context.Context, index string) (*IndexMapping, error) {
	var m IndexMapping
	err := s.queries.Get(ctx, "get-mapping", &m, index)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w [%s]", types.ErrUnknownIndex, index)
	}
	if err != nil {
		return nil, storeError("get mapping", err)
	}
	return &m, nil
}

// List returns all stored mappings ordered by index name.
func (s *MappingStore) List(ctx context.Context) ([]IndexMapping, error) {
	var out []IndexMapping
	if err := s.queries.Select(ctx, "list-mappings", &out); err != nil {
		return nil, storeError("list mappings", err)
	}
	return out, nil
}

// Delete removes the mapping for index.
func (s *MappingStore) Delete(ctx context.Context, index string) error {
	res, err := s.queries.Exec(ctx, "delete-mapping", index)
	if err != nil {
		return storeError("delete mapping", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w [%s]", types.ErrUnknownIndex, index)
	}

	s.mu.Lock()
	delete(s.cache, index)
	s.mu.Unlock()
	return nil
}

// Resolver returns the field resolver for index, loading and caching the
// mapping on first use.
func (s *MappingStore) Resolver(ctx context.Context, index string) (*mapping.Resolver, error) {
	s.mu.RLock()
	r, ok := s.cache[index]
	s.mu.RUnlock()
	if ok {
		return r, nil
	}

	m, err := s.Get(ctx, index)
	if err != nil {
		return nil, err
	}
	r, err = s.build([]byte(m.Mapping))
	if err != nil {
		return nil, fmt.Errorf("stored mapping for [%s] is invalid: %w", index, err)
	}
	s.remember(index, r)
	return r, nil
}

func (s *MappingStore) build(raw []byte) (*mapping.Resolver, error) {
	m, err := mapping.Parse(raw, s.defaultAnalyzer)
	if err != nil {
		return nil, err
	}
	r, err := mapping.NewResolver(m)
	if err != nil {
		return nil, err
	}
	for _, f := range m.Fields() {
		if f.Type != mapping.TypeText {
			continue
		}
		for _, name := range []string{f.Analyzer, f.QueryAnalyzer()} {
			if _, err := r.Analyzer(name); err != nil {
				return nil, fmt.Errorf("field [%s]: %w", f.Path, err)
			}
		}
	}
	return r, nil
}

func (s *MappingStore) remember(index string, r *mapping.Resolver) {
	s.mu.Lock()
	s.cache[index] = r
	s.mu.Unlock()
}

func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", types.ErrStore, op, err)
}
