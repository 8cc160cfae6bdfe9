package store

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/mohammad-safakhou/lessonplanner/session/session_models"
)

const testID = "7f1c1c4e-8a43-4f3e-9a57-2f0c5b0d8e11"

var sessionCols = []string{"id", "user_id", "step", "artifacts", "responses", "conversation", "created_at", "updated_at"}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock, time.Time) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	st := NewWithDB(db)
	st.now = func() time.Time { return now }
	return st, mock, now
}

func TestCreateSession(t *testing.T) {
	st, mock, now := newMockStore(t)
	query := regexp.QuoteMeta(`
INSERT INTO sessions (id, user_id, step, artifacts, responses, conversation, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`)
	mock.ExpectExec(query).
		WithArgs(testID, "teacher-1", 1, []byte(`{}`), []byte(`{}`), []byte(`[]`), now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := st.Create(context.Background(), session_models.Session{ID: testID, UserID: "teacher-1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id != testID {
		t.Fatalf("id = %s", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetSession(t *testing.T) {
	st, mock, now := newMockStore(t)
	query := regexp.QuoteMeta(`SELECT id, user_id, step, artifacts, responses, conversation, created_at, updated_at FROM sessions WHERE id=$1`)
	mock.ExpectQuery(query).
		WithArgs(testID).
		WillReturnRows(sqlmock.NewRows(sessionCols).
			AddRow(testID, "teacher-1", 3, []byte(`{"objectives":{"0":{"objective":"compare"}}}`), []byte(`{"1":"went well"}`),
				[]byte(`[{"question":"q","userMessage":"m","response":"r","createdAt":"2026-03-01T00:00:00Z"}]`), now, now))

	got, err := st.Get(context.Background(), testID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Step != 3 || got.Responses["1"] != "went well" || len(got.Conversation) != 1 {
		t.Fatalf("unexpected session %+v", got)
	}
	if string(got.Artifacts[session_models.FieldObjectives]) != `{"0":{"objective":"compare"}}` {
		t.Fatalf("artifact = %s", got.Artifacts[session_models.FieldObjectives])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	st, mock, _ := newMockStore(t)
	query := regexp.QuoteMeta(`SELECT id, user_id, step, artifacts, responses, conversation, created_at, updated_at FROM sessions WHERE id=$1`)
	mock.ExpectQuery(query).WithArgs(testID).WillReturnRows(sqlmock.NewRows(sessionCols))

	if _, err := st.Get(context.Background(), testID); !errors.Is(err, session_models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	// Malformed ids never reach the database.
	if _, err := st.Get(context.Background(), "not-a-uuid"); !errors.Is(err, session_models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFindByUser(t *testing.T) {
	st, mock, now := newMockStore(t)
	query := regexp.QuoteMeta(`SELECT id, user_id, step, artifacts, responses, conversation, created_at, updated_at FROM sessions WHERE user_id=$1 ORDER BY updated_at DESC LIMIT 1`)
	mock.ExpectQuery(query).WithArgs("teacher-1").
		WillReturnRows(sqlmock.NewRows(sessionCols).AddRow(testID, "teacher-1", 1, []byte(`{}`), []byte(`{}`), []byte(`[]`), now, now))

	got, err := st.FindByUser(context.Background(), "teacher-1")
	if err != nil || got.ID != testID {
		t.Fatalf("FindByUser: %+v %v", got, err)
	}
}

func TestUpdateSessionMergesUnderLock(t *testing.T) {
	st, mock, now := newMockStore(t)
	created := now.Add(-time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, user_id, step, artifacts, responses, conversation, created_at, updated_at FROM sessions WHERE id=$1 FOR UPDATE`)).
		WithArgs(testID).
		WillReturnRows(sqlmock.NewRows(sessionCols).
			AddRow(testID, "teacher-1", 1, []byte(`{"objectives":{"0":"a"}}`), []byte(`{}`), []byte(`[]`), created, created))

	turn := session_models.ConversationTurn{Step: "2", Question: "content", UserMessage: "m", Response: "r", CreatedAt: now}
	turnJSON, _ := json.Marshal([]session_models.ConversationTurn{turn})
	mock.ExpectExec(regexp.QuoteMeta(`
UPDATE sessions SET step=$2, artifacts=$3, responses=$4, conversation=$5, updated_at=$6
WHERE id=$1`)).
		WithArgs(testID, 3, []byte(`{"content":{"topics":["fractions"]},"objectives":{"0":"a"}}`), []byte(`{}`), turnJSON, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	step := 3
	got, err := st.Update(context.Background(), testID, session_models.SessionPatch{
		Step:               &step,
		Artifacts:          map[session_models.Field]json.RawMessage{session_models.FieldContent: json.RawMessage(`{"topics":["fractions"]}`)},
		AppendConversation: []session_models.ConversationTurn{turn},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Step != 3 || len(got.Artifacts) != 2 || len(got.Conversation) != 1 {
		t.Fatalf("unexpected session %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateSessionNotFoundRollsBack(t *testing.T) {
	st, mock, _ := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).WithArgs(testID).WillReturnRows(sqlmock.NewRows(sessionCols))
	mock.ExpectRollback()

	_, err := st.Update(context.Background(), testID, session_models.SessionPatch{Responses: map[string]string{"1": "x"}})
	if !errors.Is(err, session_models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateRejectsUnknownField(t *testing.T) {
	st, _, _ := newMockStore(t)
	_, err := st.Update(context.Background(), testID, session_models.SessionPatch{
		Artifacts: map[session_models.Field]json.RawMessage{"notes": json.RawMessage(`1`)},
	})
	if err == nil {
		t.Fatalf("expected validation error")
	}
}
