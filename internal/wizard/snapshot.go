package wizard

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/lessonplanner/internal/logger"
	"github.com/mohammad-safakhou/lessonplanner/session/session_models"
)

// Snapshot is the session context handed to a workflow run.
type Snapshot struct {
	// Data holds the artifacts of earlier steps and the teacher's reflective
	// answers, keyed by session field.
	Data map[string]any
	// History is the recent conversation rendered as text.
	History string
}

// BuildSnapshot collects the session state a step needs. Artifacts that are
// not valid JSON are passed on as strings and logged; they are never
// rejected here.
func BuildSnapshot(s session_models.Session, historyTurns int, log *logger.Logger) Snapshot {
	if log == nil {
		log = logger.Nop()
	}
	data := make(map[string]any, len(s.Artifacts)+1)
	for _, f := range session_models.Fields() {
		raw, ok := s.Artifacts[f]
		if !ok || len(raw) == 0 {
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			log.Warn("session artifact is not valid JSON", "session_id", s.ID, "field", f, "error", err)
			data[string(f)] = string(raw)
			continue
		}
		data[string(f)] = v
	}
	if len(s.Responses) > 0 {
		responses := make(map[string]any, len(s.Responses))
		for k, v := range s.Responses {
			responses[k] = v
		}
		data["responses"] = responses
	}
	return Snapshot{Data: data, History: formatHistory(s.Conversation, historyTurns)}
}

func formatHistory(turns []session_models.ConversationTurn, n int) string {
	if n > 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	var b strings.Builder
	for _, t := range turns {
		if t.Step != "" {
			fmt.Fprintf(&b, "[step %s] ", t.Step)
		}
		if t.Question != "" {
			fmt.Fprintf(&b, "Assistant asked: %s\n", t.Question)
		}
		fmt.Fprintf(&b, "Teacher: %s\nAssistant: %s\n", t.UserMessage, t.Response)
	}
	return strings.TrimSpace(b.String())
}
