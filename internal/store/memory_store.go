package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process DocumentStore. It backs local development
// (STORE_DRIVER=memory) and the package tests.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]map[string]any
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: map[string]map[string]any{}}
}

// Seed replaces a document outright.
func (s *MemoryStore) Seed(path string, data map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[strings.Trim(path, "/")] = MergeFields(nil, data)
}

func (s *MemoryStore) Get(ctx context.Context, path string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, id, err := SplitPath(path)
	if err != nil {
		return nil, err
	}
	key := strings.Trim(path, "/")

	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.docs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &Document{ID: id, Path: key, Data: MergeFields(nil, data)}, nil
}

func (s *MemoryStore) GetAll(ctx context.Context, paths []string) ([]*Document, error) {
	out := make([]*Document, len(paths))
	for i, path := range paths {
		doc, err := s.Get(ctx, path)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[i] = doc
	}
	return out, nil
}

func (s *MemoryStore) SetMerge(ctx context.Context, path string, fields map[string]any) error {
	return s.Commit(ctx, []Write{{Path: path, Fields: fields, Merge: true}})
}

func (s *MemoryStore) Commit(ctx context.Context, writes []Write) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, w := range writes {
		if _, _, err := SplitPath(w.Path); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range writes {
		key := strings.Trim(w.Path, "/")
		if w.Merge {
			s.docs[key] = MergeFields(s.docs[key], w.Fields)
		} else {
			s.docs[key] = MergeFields(nil, w.Fields)
		}
	}
	return nil
}

func (s *MemoryStore) List(ctx context.Context, collection string, opts ListOptions) ([]*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := strings.Trim(collection, "/") + "/"

	s.mu.RLock()
	var out []*Document
	for key, data := range s.docs {
		if !strings.HasPrefix(key, prefix) || strings.Contains(key[len(prefix):], "/") {
			continue
		}
		if opts.WhereField != "" && !reflect.DeepEqual(data[opts.WhereField], opts.WhereValue) {
			continue
		}
		if opts.OrderBy != "" {
			if _, ok := data[opts.OrderBy]; !ok {
				continue
			}
		}
		out = append(out, &Document{ID: key[len(prefix):], Path: key, Data: MergeFields(nil, data)})
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if opts.OrderBy == "" {
			return out[i].ID < out[j].ID
		}
		less := compareValues(out[i].Data[opts.OrderBy], out[j].Data[opts.OrderBy])
		if opts.Descending {
			return less > 0
		}
		return less < 0
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

func compareValues(a, b any) int {
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			default:
				return 1
			}
		}
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
