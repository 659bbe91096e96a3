package projection

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/platinummonkey/warden/pkg/serviceaccount"
)

// MemoryStore keeps views in a map. It backs tests and single-process runs.
type MemoryStore struct {
	mu    sync.RWMutex
	views map[string]View
}

// NewMemoryStore creates an empty in-memory view store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{views: make(map[string]View)}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (View, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.views[id]
	if !ok {
		return View{}, ErrNotFound
	}
	return clone(v), nil
}

func (s *MemoryStore) Upsert(ctx context.Context, v View) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.views[v.ID]; ok && existing.Version >= v.Version {
		return false, nil
	}
	s.views[v.ID] = clone(v)
	return true, nil
}

func (s *MemoryStore) FindByClientID(ctx context.Context, tenantID, clientID string) (View, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, v := range s.views {
		if v.TenantID == tenantID && v.ClientID == clientID {
			return clone(v), nil
		}
	}
	return View{}, ErrNotFound
}

func (s *MemoryStore) ClientIDExists(ctx context.Context, tenantID, clientID string) (bool, error) {
	_, err := s.FindByClientID(ctx, tenantID, clientID)
	if err == ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (s *MemoryStore) List(ctx context.Context, tenantID string, filter Filter) ([]View, error) {
	s.mu.RLock()
	var out []View
	for _, v := range s.views {
		if v.TenantID != tenantID {
			continue
		}
		if filter.Status != nil && v.Status != *filter.Status {
			continue
		}
		if filter.Role != "" && !v.hasRole(filter.Role) {
			continue
		}
		out = append(out, clone(v))
	}
	s.mu.RUnlock()

	sortViews(out)
	return page(out, filter.Offset, filter.Limit), nil
}

func (s *MemoryStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]View, error) {
	s.mu.RLock()
	var out []View
	for _, v := range s.views {
		if v.Status == serviceaccount.StatusActive && v.Expired(now) {
			out = append(out, clone(v))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiresAt.Equal(*out[j].ExpiresAt) {
			return out[i].ExpiresAt.Before(*out[j].ExpiresAt)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, 0, limit), nil
}

func (s *MemoryStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views = make(map[string]View)
	return nil
}

func sortViews(views []View) {
	sort.Slice(views, func(i, j int) bool {
		if !views[i].CreatedAt.Equal(views[j].CreatedAt) {
			return views[i].CreatedAt.Before(views[j].CreatedAt)
		}
		return views[i].ID < views[j].ID
	})
}

func page(views []View, offset, limit int) []View {
	if offset >= len(views) {
		return []View{}
	}
	views = views[offset:]
	if limit > 0 && limit < len(views) {
		views = views[:limit]
	}
	return views
}
