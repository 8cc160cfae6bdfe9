package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/lessonplanner/session/session_models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("lessonplanner/store")

const sessionColumns = `id, user_id, step, artifacts, responses, conversation, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (session_models.Session, error) {
	var (
		s                                  session_models.Session
		artifacts, responses, conversation []byte
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.Step, &artifacts, &responses, &conversation, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return session_models.Session{}, session_models.ErrNotFound
		}
		return session_models.Session{}, err
	}
	if len(artifacts) > 0 {
		if err := json.Unmarshal(artifacts, &s.Artifacts); err != nil {
			return session_models.Session{}, fmt.Errorf("decode artifacts: %w", err)
		}
	}
	if len(responses) > 0 {
		if err := json.Unmarshal(responses, &s.Responses); err != nil {
			return session_models.Session{}, fmt.Errorf("decode responses: %w", err)
		}
	}
	if len(conversation) > 0 {
		if err := json.Unmarshal(conversation, &s.Conversation); err != nil {
			return session_models.Session{}, fmt.Errorf("decode conversation: %w", err)
		}
	}
	return s, nil
}

func encodeSession(s session_models.Session) (artifacts, responses, conversation []byte, err error) {
	if s.Artifacts == nil {
		s.Artifacts = map[session_models.Field]json.RawMessage{}
	}
	if s.Responses == nil {
		s.Responses = map[string]string{}
	}
	if s.Conversation == nil {
		s.Conversation = []session_models.ConversationTurn{}
	}
	if artifacts, err = json.Marshal(s.Artifacts); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal artifacts: %w", err)
	}
	if responses, err = json.Marshal(s.Responses); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal responses: %w", err)
	}
	if conversation, err = json.Marshal(s.Conversation); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal conversation: %w", err)
	}
	return artifacts, responses, conversation, nil
}

func (s *Store) Get(ctx context.Context, id string) (session_models.Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return session_models.Session{}, session_models.ErrNotFound
	}
	row := s.DB.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id=$1`, id)
	return scanSession(row)
}

func (s *Store) FindByUser(ctx context.Context, userID string) (session_models.Session, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE user_id=$1 ORDER BY updated_at DESC LIMIT 1`, userID)
	return scanSession(row)
}

func (s *Store) Create(ctx context.Context, sess session_models.Session) (string, error) {
	if strings.TrimSpace(sess.ID) == "" {
		sess.ID = uuid.NewString()
	}
	if sess.Step < 1 {
		sess.Step = 1
	}
	now := s.now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	artifacts, responses, conversation, err := encodeSession(sess)
	if err != nil {
		return "", err
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO sessions (id, user_id, step, artifacts, responses, conversation, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		sess.ID, sess.UserID, sess.Step, artifacts, responses, conversation, sess.CreatedAt, now)
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return sess.ID, nil
}

// Update locks the row, merges patch and writes the result back in one
// transaction.
func (s *Store) Update(ctx context.Context, id string, patch session_models.SessionPatch) (out session_models.Session, err error) {
	if err := patch.Validate(); err != nil {
		return session_models.Session{}, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return session_models.Session{}, session_models.ErrNotFound
	}
	ctx, span := tracer.Start(ctx, "store.UpdateSession")
	defer span.End()
	span.SetAttributes(attribute.Int("patch.turns", len(patch.AppendConversation)))

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return session_models.Session{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	sess, err := scanSession(tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return session_models.Session{}, err
	}
	session_models.Apply(&sess, patch, s.now().UTC())
	artifacts, responses, conversation, err := encodeSession(sess)
	if err != nil {
		return session_models.Session{}, err
	}
	_, err = tx.ExecContext(ctx, `
UPDATE sessions SET step=$2, artifacts=$3, responses=$4, conversation=$5, updated_at=$6
WHERE id=$1`,
		id, sess.Step, artifacts, responses, conversation, sess.UpdatedAt)
	if err != nil {
		return session_models.Session{}, fmt.Errorf("update session: %w", err)
	}
	return sess, nil
}
