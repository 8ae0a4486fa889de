package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Rrens/bi-genie/internal/domain"
	"github.com/Rrens/bi-genie/internal/security"
)

const (
	sessionPrefix     = "session:"
	maxAppendAttempts = 3
)

// SessionStore keeps session records in Redis. Visibility is decided by
// the record's last-activity timestamp; the key TTL only reclaims memory.
type SessionStore struct {
	client    *Client
	ttl       time.Duration
	encryptor *security.Encryptor
}

// NewSessionStore creates a Redis session store. encryptor may be nil.
func NewSessionStore(client *Client, ttl time.Duration, encryptor *security.Encryptor) *SessionStore {
	if ttl <= 0 {
		ttl = domain.DefaultSessionTTL
	}
	return &SessionStore{client: client, ttl: ttl, encryptor: encryptor}
}

func sessionKey(id string) string {
	return sessionPrefix + id
}

// Get returns the live record for id and refreshes its last activity
func (s *SessionStore) Get(ctx context.Context, id string, now time.Time) (*domain.SessionRecord, error) {
	key := sessionKey(id)

	var record *domain.SessionRecord
	err := s.update(ctx, key, func(tx *redis.Tx) error {
		current, err := s.load(ctx, tx, key)
		if err != nil {
			return err
		}
		if current == nil || current.Expired(now, s.ttl) {
			_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err != nil {
				return err
			}
			return domain.ErrSessionNotFound
		}

		current.LastActivity = now
		record = current
		return s.store(ctx, tx, key, current)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Append adds a turn, starting a fresh record when id is missing or expired
func (s *SessionStore) Append(ctx context.Context, id string, turn domain.Turn, now time.Time) error {
	key := sessionKey(id)

	return s.update(ctx, key, func(tx *redis.Tx) error {
		record, err := s.load(ctx, tx, key)
		if err != nil {
			return err
		}
		if record == nil || record.Expired(now, s.ttl) {
			record = domain.NewSessionRecord(id, now)
		}
		record.Turns = append(record.Turns, turn)
		record.LastActivity = now
		return s.store(ctx, tx, key, record)
	})
}

// Delete removes a session
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.rdb.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// update runs fn in an optimistic transaction on key, retrying on conflict
func (s *SessionStore) update(ctx context.Context, key string, fn func(tx *redis.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		err = s.client.rdb.Watch(ctx, fn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return err
}

func (s *SessionStore) load(ctx context.Context, tx *redis.Tx, key string) (*domain.SessionRecord, error) {
	data, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeRecord(data, s.encryptor)
}

func (s *SessionStore) store(ctx context.Context, tx *redis.Tx, key string, record *domain.SessionRecord) error {
	data, err := encodeRecord(record, s.encryptor)
	if err != nil {
		return err
	}
	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, 2*s.ttl)
		return nil
	})
	return err
}

func encodeRecord(record *domain.SessionRecord, encryptor *security.Encryptor) ([]byte, error) {
	if encryptor != nil {
		return encryptor.EncryptJSON(record)
	}
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}
	return data, nil
}

func decodeRecord(data []byte, encryptor *security.Encryptor) (*domain.SessionRecord, error) {
	var record domain.SessionRecord
	if encryptor != nil {
		if err := encryptor.DecryptJSON(data, &record); err != nil {
			return nil, fmt.Errorf("failed to decrypt session: %w", err)
		}
		return &record, nil
	}
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &record, nil
}
