package prompts

import (
	"errors"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/lessonplanner/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullVars() Vars {
	return Vars{
		"task":               "Write objectives for a fractions lesson",
		"context":            "Grade 4, two students with dyslexia",
		"session_data":       `{"subject":"math"}`,
		"category":           "curriculum",
		"passages":           "[1] Fractions compare parts of a whole.",
		"search_type":        "educational",
		"query":              "fractions grade 4 inclusive activities",
		"results":            "1. Fraction strips - example.org",
		"processed_task":     "Objectives for grade 4 fractions",
		"document_evidence":  "none",
		"search_evidence":    "none",
		"format_instruction": FormatInstructionJSON,
	}
}

func TestRenderEveryStageAndStep(t *testing.T) {
	r := NewRegistry()
	stages := []Stage{StageTaskAnalysis, StageDocumentAnswer, StageSearchQuery, StageSearchSummary, StageFinalSynthesis}
	for _, stage := range stages {
		for _, spec := range Steps() {
			msgs, err := r.Render(stage, spec.Type, fullVars())
			require.NoError(t, err, "stage %s step %s", stage, spec.Type)
			require.Len(t, msgs, 2)
			assert.Equal(t, provider.RoleSystem, msgs[0].Role)
			assert.Equal(t, provider.RoleUser, msgs[1].Role)
			assert.NotContains(t, msgs[1].Content, "<no value>")
		}
	}
}

func TestRenderInjectsStepGuidance(t *testing.T) {
	r := NewRegistry()
	msgs, err := r.Render(StageFinalSynthesis, StepLessonPlan, fullVars())
	require.NoError(t, err)
	spec, _ := Spec(StepLessonPlan)
	assert.Contains(t, msgs[1].Content, spec.Title)
	assert.Contains(t, msgs[1].Content, spec.Guidance)
	assert.True(t, strings.HasSuffix(msgs[0].Content, FormatInstructionJSON))
}

func TestRenderMissingVariable(t *testing.T) {
	r := NewRegistry()
	vars := fullVars()
	delete(vars, "passages")
	_, err := r.Render(StageDocumentAnswer, "", vars)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingVariable))
	assert.Contains(t, err.Error(), "passages")
}

func TestRenderUnknownStepAndStage(t *testing.T) {
	r := NewRegistry()
	_, err := r.Render(StageTaskAnalysis, StepType("42"), fullVars())
	assert.ErrorIs(t, err, ErrUnknownStep)

	_, err = r.Render(Stage("poetry"), StepObjectives, fullVars())
	assert.ErrorIs(t, err, ErrUnknownStage)

	// Stages that are not step scoped do not look at the step.
	_, err = r.Render(StageSearchQuery, StepType("42"), fullVars())
	assert.NoError(t, err)
}

func TestVariablesIncludesStepValues(t *testing.T) {
	r := NewRegistry()
	vars, err := r.Variables(StageTaskAnalysis)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"context", "session_data", "step_guidance", "step_title", "step_type", "task"}, vars)

	_, err = r.Variables(Stage("nope"))
	assert.ErrorIs(t, err, ErrUnknownStage)
}

func TestParseStepType(t *testing.T) {
	st, err := ParseStepType(" 3 ")
	require.NoError(t, err)
	assert.Equal(t, StepStandard, st)
	assert.Equal(t, 3, st.Number())

	_, err = ParseStepType("10")
	assert.ErrorIs(t, err, ErrUnknownStep)

	steps := Steps()
	require.Len(t, steps, 9)
	assert.Equal(t, "objectives", steps[0].Field)
	assert.Equal(t, StepLessonPlan, steps[8].Type)
}
