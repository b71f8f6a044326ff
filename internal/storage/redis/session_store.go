package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/goodtune/rollcall/internal/storage"
)

var (
	saveSession   = redis.NewScript(saveSessionScript)
	deleteSession = redis.NewScript(deleteSessionScript)
	deleteBefore  = redis.NewScript(deleteBeforeScript)
	clearSessions = redis.NewScript(clearSessionsScript)
)

type sessionStore struct {
	client *redis.Client
	keys   keys
	logger zerolog.Logger
}

// Save writes a session record and indexes it by start time
func (s *sessionStore) Save(ctx context.Context, session storage.Session) error {
	if session.ID == "" {
		return fmt.Errorf("session id is required")
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	keys := []string{s.keys.session(session.ID), s.keys.index()}
	args := []interface{}{
		session.ID,
		payload,
		session.Started().UnixMilli(),
	}

	return saveSession.Run(ctx, s.client, keys, args...).Err()
}

// Load retrieves a session by ID
func (s *sessionStore) Load(ctx context.Context, id string) (*storage.Session, error) {
	data, err := s.client.Get(ctx, s.keys.session(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return storage.DecodeSession(id, data)
}

// List returns every readable session, newest first
func (s *sessionStore) List(ctx context.Context) ([]storage.Session, error) {
	ids, err := s.client.ZRevRange(ctx, s.keys.index(), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	sessions := make([]storage.Session, 0, len(ids))
	if len(ids) == 0 {
		return sessions, nil
	}

	sessionKeys := make([]string, len(ids))
	for i, id := range ids {
		sessionKeys[i] = s.keys.session(id)
	}

	values, err := s.client.MGet(ctx, sessionKeys...).Result()
	if err != nil {
		return nil, err
	}

	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			// Index entry without a record
			continue
		}
		session, err := storage.DecodeSession(ids[i], []byte(raw))
		if err != nil {
			s.logger.Warn().Err(err).Str("session_id", ids[i]).Msg("Skipping malformed session")
			continue
		}
		sessions = append(sessions, *session)
	}

	storage.SortNewestFirst(sessions)
	return sessions, nil
}

// Delete removes a session by ID
func (s *sessionStore) Delete(ctx context.Context, id string) error {
	keys := []string{s.keys.session(id), s.keys.index(), s.keys.current()}
	existed, err := deleteSession.Run(ctx, s.client, keys, id).Int()
	if err != nil {
		return err
	}
	if existed == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Clear removes every session and the current pointer
func (s *sessionStore) Clear(ctx context.Context) (int, error) {
	keys := []string{s.keys.index(), s.keys.current()}
	return clearSessions.Run(ctx, s.client, keys, s.keys.sessionPrefix()).Int()
}

// DeleteBefore removes sessions that started before cutoff
func (s *sessionStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	keys := []string{s.keys.index()}
	return deleteBefore.Run(ctx, s.client, keys, cutoff.UnixMilli(), s.keys.sessionPrefix()).Int()
}

// SetCurrent records the active session; an empty id clears it
func (s *sessionStore) SetCurrent(ctx context.Context, id string) error {
	if id == "" {
		return s.client.Del(ctx, s.keys.current()).Err()
	}
	return s.client.Set(ctx, s.keys.current(), id, 0).Err()
}

// Current returns the active session id
func (s *sessionStore) Current(ctx context.Context) (string, error) {
	id, err := s.client.Get(ctx, s.keys.current()).Result()
	if errors.Is(err, redis.Nil) {
		return "", storage.ErrNotFound
	}
	return id, err
}

type preferenceStore struct {
	client *redis.Client
	keys   keys
}

// Get retrieves the remembered consent preference
func (s *preferenceStore) Get(ctx context.Context) (*storage.Preference, error) {
	data, err := s.client.HGetAll(ctx, s.keys.preference()).Result()
	if err != nil {
		return nil, err
	}
	return parsePreference(data)
}

// Set stores the consent preference
func (s *preferenceStore) Set(ctx context.Context, pref storage.Preference) error {
	return s.client.HSet(ctx, s.keys.preference(),
		"consent", string(pref.Consent),
		"set_at", pref.SetAt.Format(time.RFC3339Nano),
	).Err()
}

// Clear forgets the consent preference
func (s *preferenceStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.keys.preference()).Err()
}
