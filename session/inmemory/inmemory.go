package inmemory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/lessonplanner/session/session_models"
)

type Store struct {
	sessions map[string]*session_models.Session
	mu       sync.RWMutex
	now      func() time.Time
}

func NewInMemorySessionStore() *Store {
	return &Store{sessions: make(map[string]*session_models.Session), now: time.Now}
}

func (store *Store) Get(_ context.Context, id string) (session_models.Session, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	sess, ok := store.sessions[id]
	if !ok {
		return session_models.Session{}, session_models.ErrNotFound
	}
	return sess.Clone(), nil
}

func (store *Store) FindByUser(_ context.Context, userID string) (session_models.Session, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	var latest *session_models.Session
	for _, s := range store.sessions {
		if s.UserID != userID {
			continue
		}
		if latest == nil || s.UpdatedAt.After(latest.UpdatedAt) ||
			(s.UpdatedAt.Equal(latest.UpdatedAt) && s.ID > latest.ID) {
			latest = s
		}
	}
	if latest == nil {
		return session_models.Session{}, session_models.ErrNotFound
	}
	return latest.Clone(), nil
}

func (store *Store) Create(_ context.Context, s session_models.Session) (string, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	sess := s.Clone()
	if strings.TrimSpace(sess.ID) == "" {
		sess.ID = uuid.NewString()
	}
	if sess.Step < 1 {
		sess.Step = 1
	}
	now := store.now()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now
	store.sessions[sess.ID] = &sess
	return sess.ID, nil
}

func (store *Store) Update(_ context.Context, id string, patch session_models.SessionPatch) (session_models.Session, error) {
	if err := patch.Validate(); err != nil {
		return session_models.Session{}, err
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	sess, ok := store.sessions[id]
	if !ok {
		return session_models.Session{}, session_models.ErrNotFound
	}
	session_models.Apply(sess, patch, store.now())
	return sess.Clone(), nil
}
