// Package memory keeps sessions in process, for single-replica deployments
// and local development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/Rrens/bi-genie/internal/domain"
)

// SessionStore is an in-process domain.SessionStore. No janitor runs;
// expiry is evaluated against the caller's clock on every access.
type SessionStore struct {
	mu    sync.Mutex
	items *cache.Cache
	ttl   time.Duration
}

// NewSessionStore creates an in-process session store
func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = domain.DefaultSessionTTL
	}
	return &SessionStore{
		items: cache.New(cache.NoExpiration, 0),
		ttl:   ttl,
	}
}

// live returns the stored record for id, evicting it when expired.
// Callers hold mu.
func (s *SessionStore) live(id string, now time.Time) *domain.SessionRecord {
	v, ok := s.items.Get(id)
	if !ok {
		return nil
	}
	record := v.(*domain.SessionRecord)
	if record.Expired(now, s.ttl) {
		s.items.Delete(id)
		return nil
	}
	return record
}

// Get returns a copy of the live record and refreshes its last activity
func (s *SessionStore) Get(ctx context.Context, id string, now time.Time) (*domain.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.live(id, now)
	if record == nil {
		return nil, domain.ErrSessionNotFound
	}
	record.LastActivity = now
	return clone(record), nil
}

// Append adds a turn, starting a fresh record when id is missing or expired
func (s *SessionStore) Append(ctx context.Context, id string, turn domain.Turn, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.live(id, now)
	if record == nil {
		record = domain.NewSessionRecord(id, now)
	}
	record.Turns = append(record.Turns, turn)
	record.LastActivity = now
	s.items.Set(id, record, cache.NoExpiration)
	return nil
}

// Delete removes a session
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	s.items.Delete(id)
	return nil
}

// Len returns the number of stored records, expired ones included
func (s *SessionStore) Len() int {
	return s.items.ItemCount()
}

func clone(r *domain.SessionRecord) *domain.SessionRecord {
	out := *r
	out.Turns = append([]domain.Turn(nil), r.Turns...)
	return &out
}
