package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mohammad-safakhou/lessonplanner/internal/agent/core"
	"github.com/mohammad-safakhou/lessonplanner/internal/agent/telemetry"
	"github.com/mohammad-safakhou/lessonplanner/internal/helpers"
	"github.com/mohammad-safakhou/lessonplanner/internal/logger"
	"github.com/mohammad-safakhou/lessonplanner/internal/prompts"
	"github.com/mohammad-safakhou/lessonplanner/session/session_models"
)

var ErrEmptyTask = errors.New("task must not be empty")

// persistTimeout bounds the write of a finished step. The write outlives the
// request context so a step that used its whole budget is still saved.
const persistTimeout = 5 * time.Second

// Runner executes one workflow. *core.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, in core.WorkflowInput) core.WorkflowResult
}

// Handler maps a wizard step onto a workflow run. It holds no state.
type Handler struct {
	runner Runner
}

func NewHandler(r Runner) *Handler {
	return &Handler{runner: r}
}

// HandleStep runs the workflow for one step with the given session context.
func (h *Handler) HandleStep(ctx context.Context, step prompts.StepType, task string, snap Snapshot) core.WorkflowResult {
	return h.runner.Run(ctx, core.WorkflowInput{
		Task:        task,
		StepType:    string(step),
		SessionData: snap.Data,
		Context:     snap.History,
	})
}

// Service drives the wizard against a session store.
type Service struct {
	store        session_models.Store
	handler      *Handler
	historyTurns int
	metrics      *telemetry.Metrics
	log          *logger.Logger
	now          func() time.Time
}

func NewService(store session_models.Store, handler *Handler, historyTurns int, metrics *telemetry.Metrics, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store:        store,
		handler:      handler,
		historyTurns: historyTurns,
		metrics:      metrics,
		log:          log,
		now:          time.Now,
	}
}

// Advance runs one wizard step for the session. A successful run stores the
// answer in the step's field and moves the session forward; a failed run
// only records the conversation turn so the step can be resubmitted.
func (s *Service) Advance(ctx context.Context, sessionID, stepType, task string) (session_models.Session, core.WorkflowResult, error) {
	step, err := prompts.ParseStepType(stepType)
	if err != nil {
		return session_models.Session{}, core.WorkflowResult{}, err
	}
	spec, err := prompts.Spec(step)
	if err != nil {
		return session_models.Session{}, core.WorkflowResult{}, err
	}
	field, err := session_models.ParseField(spec.Field)
	if err != nil {
		return session_models.Session{}, core.WorkflowResult{}, err
	}
	if strings.TrimSpace(task) == "" {
		return session_models.Session{}, core.WorkflowResult{}, ErrEmptyTask
	}

	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return session_models.Session{}, core.WorkflowResult{}, fmt.Errorf("load session: %w", err)
	}

	res := s.handler.HandleStep(ctx, step, task, BuildSnapshot(sess, s.historyTurns, s.log))

	patch := session_models.SessionPatch{
		AppendConversation: []session_models.ConversationTurn{{
			Step:        string(step),
			Question:    spec.Title,
			UserMessage: task,
			Response:    res.Result,
			CreatedAt:   s.now().UTC(),
		}},
	}
	outcome := "error"
	if res.State != core.StateError {
		outcome = "done"
		blob, err := artifactFor(spec, res.Result)
		if err != nil {
			return session_models.Session{}, res, err
		}
		patch.Artifacts = map[session_models.Field]json.RawMessage{field: blob}
		next := max(sess.Step, step.Number()+1)
		patch.Step = &next
	}
	s.metrics.RecordWizardStep(string(step), outcome)

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	updated, err := s.store.Update(wctx, sessionID, patch)
	if err != nil {
		return session_models.Session{}, res, fmt.Errorf("save step %s: %w", step, err)
	}
	s.log.Info("wizard step processed", "session_id", sessionID, "step", step, "outcome", outcome, "confidence", res.Confidence)
	return updated, res, nil
}

// SaveResponse stores the teacher's reflective answer for a step.
func (s *Service) SaveResponse(ctx context.Context, sessionID, stepKey, text string) (session_models.Session, error) {
	stepKey = strings.TrimSpace(stepKey)
	if stepKey == "" {
		return session_models.Session{}, errors.New("step key must not be empty")
	}
	updated, err := s.store.Update(ctx, sessionID, session_models.SessionPatch{
		Responses: map[string]string{stepKey: helpers.PlainText(text)},
	})
	if err != nil {
		return session_models.Session{}, fmt.Errorf("save response: %w", err)
	}
	return updated, nil
}

// artifactFor stores structured steps as the JSON found in the answer and
// everything else as a JSON string.
func artifactFor(spec prompts.StepSpec, result string) (json.RawMessage, error) {
	if spec.Structured {
		if v := helpers.ExtractJSON(result); v != nil {
			b, err := json.Marshal(v)
			if err == nil {
				return b, nil
			}
		}
	}
	b, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode step result: %w", err)
	}
	return b, nil
}
