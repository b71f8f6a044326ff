package bolt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.etcd.io/bbolt"

	"github.com/goodtune/rollcall/internal/storage"
)

type sessionStore struct {
	db     *bbolt.DB
	logger zerolog.Logger
}

func (s *sessionStore) Save(ctx context.Context, session storage.Session) error {
	if session.ID == "" {
		return fmt.Errorf("session id is required")
	}
	return putBucketValue(ctx, s.db, bucketSessions, session.ID, session)
}

func (s *sessionStore) Load(ctx context.Context, id string) (*storage.Session, error) {
	var session *storage.Session
	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		value := tx.Bucket([]byte(bucketSessions)).Get([]byte(id))
		if value == nil {
			return storage.ErrNotFound
		}
		var err error
		session, err = storage.DecodeSession(id, value)
		return err
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (s *sessionStore) List(ctx context.Context) ([]storage.Session, error) {
	sessions := make([]storage.Session, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketSessions)).ForEach(func(k, v []byte) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			session, err := storage.DecodeSession(string(k), v)
			if err != nil {
				s.logger.Warn().Err(err).Str("session_id", string(k)).Msg("Skipping malformed session")
				return nil
			}
			sessions = append(sessions, *session)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	storage.SortNewestFirst(sessions)
	return sessions, nil
}

func (s *sessionStore) Delete(ctx context.Context, id string) error {
	if err := deleteBucketValue(ctx, s.db, bucketSessions, id); err != nil {
		return err
	}
	current, err := s.Current(ctx)
	if err == nil && current == id {
		err = deleteBucketValue(ctx, s.db, bucketMeta, keyCurrentSession)
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return nil
}

func (s *sessionStore) Clear(ctx context.Context) (int, error) {
	deleted := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		deleted = tx.Bucket([]byte(bucketSessions)).Stats().KeyN
		if err := tx.DeleteBucket([]byte(bucketSessions)); err != nil {
			return fmt.Errorf("drop sessions: %w", err)
		}
		if _, err := tx.CreateBucket([]byte(bucketSessions)); err != nil {
			return fmt.Errorf("create bucket %s: %w", bucketSessions, err)
		}
		return tx.Bucket([]byte(bucketMeta)).Delete([]byte(keyCurrentSession))
	})
	return deleted, err
}

// DeleteBefore removes sessions that started before cutoff. Records that
// cannot be decoded are aged by the timestamp in their key and removed once
// that is past the cutoff too.
func (s *sessionStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var expired [][]byte
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketSessions))
		err := b.ForEach(func(k, v []byte) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var started time.Time
			if session, err := storage.DecodeSession(string(k), v); err == nil {
				started = session.Started()
			} else if t, ok := storage.StartTimeFromID(string(k)); ok {
				started = t
			} else {
				s.logger.Warn().Str("session_id", string(k)).Msg("Cannot determine session age, keeping")
				return nil
			}
			if started.Before(cutoff) {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("delete session %s: %w", k, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(expired), nil
}

func (s *sessionStore) SetCurrent(ctx context.Context, id string) error {
	if id == "" {
		err := deleteBucketValue(ctx, s.db, bucketMeta, keyCurrentSession)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	return putBucketValue(ctx, s.db, bucketMeta, keyCurrentSession, id)
}

func (s *sessionStore) Current(ctx context.Context) (string, error) {
	id, err := getBucketValue[string](ctx, s.db, bucketMeta, keyCurrentSession)
	if err != nil {
		return "", err
	}
	return *id, nil
}

type preferenceStore struct {
	db *bbolt.DB
}

func (s *preferenceStore) Get(ctx context.Context) (*storage.Preference, error) {
	return getBucketValue[storage.Preference](ctx, s.db, bucketMeta, keyPreference)
}

func (s *preferenceStore) Set(ctx context.Context, pref storage.Preference) error {
	return putBucketValue(ctx, s.db, bucketMeta, keyPreference, pref)
}

func (s *preferenceStore) Clear(ctx context.Context) error {
	err := deleteBucketValue(ctx, s.db, bucketMeta, keyPreference)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}
