package session_models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("session not found")

// ErrConflict is returned when a concurrent writer changed the session between
// read and write and retries were exhausted.
var ErrConflict = errors.New("session update conflict")

// Field names a session artifact. The set is closed.
type Field string

const (
	FieldLessonPlan        Field = "lessonPlan"
	FieldObjectives        Field = "objectives"
	FieldContent           Field = "content"
	FieldStandard          Field = "standard"
	FieldInterimIndicators Field = "interimIndicators"
	FieldFinalIndicators   Field = "finalIndicators"
	FieldKeyCompetencies   Field = "keyCompetencies"
	FieldTeachingMaterials Field = "teachingMaterials"
	FieldEvaluation        Field = "evaluation"
)

var fields = []Field{
	FieldObjectives, FieldContent, FieldStandard, FieldInterimIndicators, FieldFinalIndicators,
	FieldKeyCompetencies, FieldTeachingMaterials, FieldEvaluation, FieldLessonPlan,
}

// Fields lists every artifact field in wizard order.
func Fields() []Field { return append([]Field(nil), fields...) }

func (f Field) Valid() bool {
	for _, x := range fields {
		if x == f {
			return true
		}
	}
	return false
}

func ParseField(raw string) (Field, error) {
	f := Field(raw)
	if !f.Valid() {
		return "", fmt.Errorf("unknown session field %q", raw)
	}
	return f, nil
}

// ConversationTurn is one exchange with the assistant.
type ConversationTurn struct {
	Step        string    `json:"step,omitempty"`
	Question    string    `json:"question"`
	UserMessage string    `json:"userMessage"`
	Response    string    `json:"response"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Session is the per-user wizard record.
type Session struct {
	ID           string                    `json:"id"`
	UserID       string                    `json:"userId"`
	Step         int                       `json:"step"`
	Artifacts    map[Field]json.RawMessage `json:"artifacts"`
	Responses    map[string]string         `json:"responses"`
	Conversation []ConversationTurn        `json:"conversation"`
	CreatedAt    time.Time                 `json:"createdAt"`
	UpdatedAt    time.Time                 `json:"updatedAt"`
}

// SessionPatch is a partial update. Maps merge key by key and conversation
// turns are appended; there is no way to remove data.
type SessionPatch struct {
	Step               *int
	Artifacts          map[Field]json.RawMessage
	Responses          map[string]string
	AppendConversation []ConversationTurn
}

// Empty reports whether the patch changes nothing.
func (p SessionPatch) Empty() bool {
	return p.Step == nil && len(p.Artifacts) == 0 && len(p.Responses) == 0 && len(p.AppendConversation) == 0
}

// Apply merges p into s and stamps UpdatedAt.
func Apply(s *Session, p SessionPatch, now time.Time) {
	if p.Step != nil {
		s.Step = *p.Step
	}
	if len(p.Artifacts) > 0 && s.Artifacts == nil {
		s.Artifacts = make(map[Field]json.RawMessage, len(p.Artifacts))
	}
	for k, v := range p.Artifacts {
		s.Artifacts[k] = append(json.RawMessage(nil), v...)
	}
	if len(p.Responses) > 0 && s.Responses == nil {
		s.Responses = make(map[string]string, len(p.Responses))
	}
	for k, v := range p.Responses {
		s.Responses[k] = v
	}
	s.Conversation = append(s.Conversation, p.AppendConversation...)
	s.UpdatedAt = now
}

// Clone returns a deep copy so callers cannot alias a store's state.
func (s Session) Clone() Session {
	out := s
	if s.Artifacts != nil {
		out.Artifacts = make(map[Field]json.RawMessage, len(s.Artifacts))
		for k, v := range s.Artifacts {
			out.Artifacts[k] = append(json.RawMessage(nil), v...)
		}
	}
	if s.Responses != nil {
		out.Responses = make(map[string]string, len(s.Responses))
		for k, v := range s.Responses {
			out.Responses[k] = v
		}
	}
	out.Conversation = append([]ConversationTurn(nil), s.Conversation...)
	return out
}

// Validate checks the invariants every store enforces on write.
func (p SessionPatch) Validate() error {
	if p.Step != nil && *p.Step < 1 {
		return fmt.Errorf("invalid step %d", *p.Step)
	}
	for k := range p.Artifacts {
		if !k.Valid() {
			return fmt.Errorf("unknown session field %q", k)
		}
	}
	return nil
}

// Store persists sessions.
type Store interface {
	Get(ctx context.Context, id string) (Session, error)
	// FindByUser returns the user's most recently updated session.
	FindByUser(ctx context.Context, userID string) (Session, error)
	Create(ctx context.Context, s Session) (string, error)
	Update(ctx context.Context, id string, patch SessionPatch) (Session, error)
}
