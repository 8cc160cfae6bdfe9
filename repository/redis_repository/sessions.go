package redis_repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/lessonplanner/session/session_models"
	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "session:"
	userKeyPrefix    = "session:user:"
)

// Optimistic transactions give up after this many conflicting writers.
const maxTxRetries = 8

// redisSessionRepository implements session_models.Store. Sessions are JSON
// values; a per-user sorted set scored by update time answers FindByUser.
type redisSessionRepository struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisSessionRepository(client *redis.Client, ttl time.Duration) *redisSessionRepository {
	return &redisSessionRepository{client: client, ttl: ttl, now: time.Now}
}

func sessionKey(id string) string  { return sessionKeyPrefix + id }
func userKey(userID string) string { return userKeyPrefix + userID }

func (r *redisSessionRepository) Get(ctx context.Context, id string) (session_models.Session, error) {
	val, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return session_models.Session{}, session_models.ErrNotFound
		}
		return session_models.Session{}, err
	}
	var s session_models.Session
	if err := json.Unmarshal(val, &s); err != nil {
		return session_models.Session{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	return s, nil
}

func (r *redisSessionRepository) FindByUser(ctx context.Context, userID string) (session_models.Session, error) {
	ids, err := r.client.ZRevRange(ctx, userKey(userID), 0, 4).Result()
	if err != nil {
		return session_models.Session{}, err
	}
	// Index entries can outlive expired sessions; take the newest live one.
	for _, id := range ids {
		s, err := r.Get(ctx, id)
		if errors.Is(err, session_models.ErrNotFound) {
			_ = r.client.ZRem(ctx, userKey(userID), id).Err()
			continue
		}
		return s, err
	}
	return session_models.Session{}, session_models.ErrNotFound
}

func (r *redisSessionRepository) Create(ctx context.Context, s session_models.Session) (string, error) {
	if strings.TrimSpace(s.ID) == "" {
		s.ID = uuid.NewString()
	}
	if s.Step < 1 {
		s.Step = 1
	}
	now := r.now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	ok, err := r.client.SetNX(ctx, sessionKey(s.ID), data, r.ttl).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("session %s already exists", s.ID)
	}
	if err := r.client.ZAdd(ctx, userKey(s.UserID), redis.Z{Score: float64(now.UnixMilli()), Member: s.ID}).Err(); err != nil {
		return "", err
	}
	return s.ID, nil
}

// Update applies patch under WATCH so concurrent appends are never lost.
func (r *redisSessionRepository) Update(ctx context.Context, id string, patch session_models.SessionPatch) (session_models.Session, error) {
	if err := patch.Validate(); err != nil {
		return session_models.Session{}, err
	}
	key := sessionKey(id)
	var out session_models.Session
	txf := func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return session_models.ErrNotFound
			}
			return err
		}
		var s session_models.Session
		if err := json.Unmarshal(val, &s); err != nil {
			return fmt.Errorf("decode session %s: %w", id, err)
		}
		now := r.now().UTC()
		session_models.Apply(&s, patch, now)
		data, err := json.Marshal(s)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.ttl)
			pipe.ZAdd(ctx, userKey(s.UserID), redis.Z{Score: float64(now.UnixMilli()), Member: s.ID})
			return nil
		})
		if err == nil {
			out = s
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return session_models.Session{}, err
	}
	return session_models.Session{}, fmt.Errorf("%w: %s", session_models.ErrConflict, id)
}
