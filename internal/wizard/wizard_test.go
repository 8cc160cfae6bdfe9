package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/lessonplanner/internal/agent/core"
	"github.com/mohammad-safakhou/lessonplanner/internal/prompts"
	"github.com/mohammad-safakhou/lessonplanner/session/inmemory"
	"github.com/mohammad-safakhou/lessonplanner/session/session_models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	result core.WorkflowResult
	inputs []core.WorkflowInput
}

func (r *recordingRunner) Run(_ context.Context, in core.WorkflowInput) core.WorkflowResult {
	r.inputs = append(r.inputs, in)
	return r.result
}

func newService(t *testing.T, res core.WorkflowResult) (*Service, *recordingRunner, session_models.Store, string) {
	t.Helper()
	store := inmemory.NewInMemorySessionStore()
	id, err := store.Create(context.Background(), session_models.Session{
		UserID: "teacher-1",
		Artifacts: map[session_models.Field]json.RawMessage{
			session_models.FieldContent: json.RawMessage(`{"topics":["seasons"]}`),
			session_models.FieldStandard: json.RawMessage(`not json`),
		},
	})
	require.NoError(t, err)
	runner := &recordingRunner{result: res}
	return NewService(store, NewHandler(runner), 2, nil, nil), runner, store, id
}

func TestAdvanceStoresStructuredResult(t *testing.T) {
	svc, runner, _, id := newService(t, core.WorkflowResult{
		Result:          "Sure! ```json\n[{\"objective\":\"Name the seasons\"}]\n```",
		Confidence:      0.8,
		SourcesUsed:     []string{"curriculum"},
		ProcessingSteps: []string{"task_analysis", "synthesis"},
		State:           core.StateDone,
	})

	sess, res, err := svc.Advance(context.Background(), id, "1", "design objectives")
	require.NoError(t, err)
	assert.Equal(t, 0.8, res.Confidence)
	assert.Equal(t, 2, sess.Step)
	assert.JSONEq(t, `{"0":{"objective":"Name the seasons"}}`, string(sess.Artifacts[session_models.FieldObjectives]))
	require.Len(t, sess.Conversation, 1)
	assert.Equal(t, "1", sess.Conversation[0].Step)
	assert.Equal(t, "design objectives", sess.Conversation[0].UserMessage)

	require.Len(t, runner.inputs, 1)
	in := runner.inputs[0]
	assert.Equal(t, "1", in.StepType)
	assert.Equal(t, map[string]any{"topics": []any{"seasons"}}, in.SessionData["content"])
	assert.Equal(t, "not json", in.SessionData["standard"])
}

func TestAdvanceStoresTextAsJSONString(t *testing.T) {
	svc, _, _, id := newService(t, core.WorkflowResult{Result: "Use picture cards.", Confidence: 0.5, State: core.StateDone})

	sess, _, err := svc.Advance(context.Background(), id, "7", "materials")
	require.NoError(t, err)
	assert.Equal(t, `"Use picture cards."`, string(sess.Artifacts[session_models.FieldTeachingMaterials]))
	assert.Equal(t, 8, sess.Step)
}

func TestAdvanceNeverMovesBackwards(t *testing.T) {
	svc, _, store, id := newService(t, core.WorkflowResult{Result: "{}", State: core.StateDone})
	step := 6
	_, err := store.Update(context.Background(), id, session_models.SessionPatch{Step: &step})
	require.NoError(t, err)

	sess, _, err := svc.Advance(context.Background(), id, "2", "revise content")
	require.NoError(t, err)
	assert.Equal(t, 6, sess.Step)
}

func TestAdvanceErrorOnlyRecordsConversation(t *testing.T) {
	svc, _, _, id := newService(t, core.WorkflowResult{
		Result:          core.Apology("en"),
		Confidence:      0.1,
		SourcesUsed:     []string{},
		ProcessingSteps: []string{"error:task_analysis"},
		State:           core.StateError,
	})

	sess, res, err := svc.Advance(context.Background(), id, "1", "design objectives")
	require.NoError(t, err)
	assert.Equal(t, core.StateError, res.State)
	assert.Equal(t, 1, sess.Step)
	_, stored := sess.Artifacts[session_models.FieldObjectives]
	assert.False(t, stored)
	require.Len(t, sess.Conversation, 1)
	assert.Equal(t, core.Apology("en"), sess.Conversation[0].Response)
}

// deadlineRunner returns only after the step context has expired.
type deadlineRunner struct{ result core.WorkflowResult }

func (r deadlineRunner) Run(ctx context.Context, _ core.WorkflowInput) core.WorkflowResult {
	<-ctx.Done()
	return r.result
}

// ctxStore fails writes on a finished context like a network-backed store.
type ctxStore struct{ session_models.Store }

func (s ctxStore) Update(ctx context.Context, id string, patch session_models.SessionPatch) (session_models.Session, error) {
	if err := ctx.Err(); err != nil {
		return session_models.Session{}, err
	}
	return s.Store.Update(ctx, id, patch)
}

func TestAdvancePersistsAfterStepDeadline(t *testing.T) {
	store := inmemory.NewInMemorySessionStore()
	id, err := store.Create(context.Background(), session_models.Session{UserID: "teacher-1"})
	require.NoError(t, err)
	runner := deadlineRunner{result: core.WorkflowResult{
		Result:          "Observe the sky each morning.",
		Confidence:      0.6,
		ProcessingSteps: []string{"task_analysis", "synthesis"},
		State:           core.StateDone,
	}}
	svc := NewService(ctxStore{store}, NewHandler(runner), 2, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	sess, res, err := svc.Advance(ctx, id, "2", "plan the activity")
	require.NoError(t, err)
	assert.Equal(t, "Observe the sky each morning.", res.Result)
	require.Len(t, sess.Conversation, 1)
	assert.Equal(t, "plan the activity", sess.Conversation[0].UserMessage)

	stored, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, stored.Conversation, 1)
	assert.Equal(t, 3, stored.Step)
}

func TestAdvanceRejectsBadInput(t *testing.T) {
	svc, _, _, id := newService(t, core.WorkflowResult{State: core.StateDone})

	_, _, err := svc.Advance(context.Background(), id, "10", "x")
	assert.ErrorIs(t, err, prompts.ErrUnknownStep)

	_, _, err = svc.Advance(context.Background(), id, "1", "  ")
	assert.ErrorIs(t, err, ErrEmptyTask)

	_, _, err = svc.Advance(context.Background(), "missing", "1", "x")
	assert.True(t, errors.Is(err, session_models.ErrNotFound))
}

func TestSaveResponse(t *testing.T) {
	svc, _, _, id := newService(t, core.WorkflowResult{State: core.StateDone})

	sess, err := svc.SaveResponse(context.Background(), id, "step1", "Students liked the cards.")
	require.NoError(t, err)
	assert.Equal(t, "Students liked the cards.", sess.Responses["step1"])

	sess, err = svc.SaveResponse(context.Background(), id, "step2", "<p>Group work &amp; <b>peer</b> tutoring</p><script>x()</script>")
	require.NoError(t, err)
	assert.Equal(t, "Group work & peer tutoring", sess.Responses["step2"])

	_, err = svc.SaveResponse(context.Background(), id, "", "x")
	assert.Error(t, err)
}

func TestSnapshotKeepsRecentHistory(t *testing.T) {
	sess := session_models.Session{
		Responses: map[string]string{"step1": "ok"},
		Conversation: []session_models.ConversationTurn{
			{Step: "1", UserMessage: "first", Response: "a"},
			{Step: "2", UserMessage: "second", Response: "b"},
			{Step: "3", UserMessage: "third", Response: "c"},
		},
	}
	snap := BuildSnapshot(sess, 2, nil)
	assert.NotContains(t, snap.History, "first")
	assert.True(t, strings.Contains(snap.History, "second") && strings.Contains(snap.History, "third"))
	assert.Equal(t, map[string]any{"step1": "ok"}, snap.Data["responses"])
}
