package prompts

import (
	"errors"
	"fmt"
	"strings"
)

// StepType identifies a wizard stage. The set is closed; ParseStepType rejects
// anything not listed in stepSpecs.
type StepType string

const (
	StepObjectives        StepType = "1"
	StepContent           StepType = "2"
	StepStandard          StepType = "3"
	StepInterimIndicators StepType = "4"
	StepFinalIndicators   StepType = "5"
	StepKeyCompetencies   StepType = "6"
	StepTeachingMaterials StepType = "7"
	StepEvaluation        StepType = "8"
	StepLessonPlan        StepType = "9"
)

var ErrUnknownStep = errors.New("unknown step type")

// StepSpec binds a step to the session field it fills and the guidance the
// synthesis prompt gives for it.
type StepSpec struct {
	Type     StepType
	Field    string
	Title    string
	Guidance string
	// Structured steps are stored as JSON in the session.
	Structured bool
}

var stepOrder = []StepType{
	StepObjectives, StepContent, StepStandard, StepInterimIndicators, StepFinalIndicators,
	StepKeyCompetencies, StepTeachingMaterials, StepEvaluation, StepLessonPlan,
}

var stepSpecs = map[StepType]StepSpec{
	StepObjectives: {
		Field: "objectives", Title: "Learning objectives", Structured: true,
		Guidance: `A JSON object keyed "0", "1", ... where each value has "objective" (observable behaviour) and "support" (how the objective is adapted for learners who need more help).`,
	},
	StepContent: {
		Field: "content", Title: "Learning content", Structured: true,
		Guidance: `A JSON object with "topics" (list of content elements in teaching order) and "accommodations" (adjustments for diverse learners).`,
	},
	StepStandard: {
		Field: "standard", Title: "Achievement standard", Structured: true,
		Guidance: `A JSON object with "code", "statement" and "rationale" linking the lesson to the curriculum achievement standard.`,
	},
	StepInterimIndicators: {
		Field: "interimIndicators", Title: "Interim indicators", Structured: true,
		Guidance: `A JSON object keyed "0", "1", ... where each value has "indicator" and "evidence" the teacher observes during the lesson.`,
	},
	StepFinalIndicators: {
		Field: "finalIndicators", Title: "Final indicators", Structured: true,
		Guidance: `A JSON object keyed "0", "1", ... where each value has "indicator" and "level" describing achievement at the end of the unit.`,
	},
	StepKeyCompetencies: {
		Field: "keyCompetencies", Title: "Key competencies", Structured: true,
		Guidance: `A JSON object keyed by competency name with a short description of how the lesson develops it.`,
	},
	StepTeachingMaterials: {
		Field: "teachingMaterials", Title: "Teaching materials", Structured: true,
		Guidance: `A JSON object with "materials" (list of items with "name", "purpose" and "accessibility") and "technology" (assistive or digital tools).`,
	},
	StepEvaluation: {
		Field: "evaluation", Title: "Evaluation plan", Structured: true,
		Guidance: `A JSON object with "methods", "criteria" and "feedback" describing how learning is assessed and reported.`,
	},
	StepLessonPlan: {
		Field: "lessonPlan", Title: "Lesson plan", Structured: true,
		Guidance: `A JSON object with "overview", "activities" (introduction, development, wrap-up each with teacher and student actions) and "accommodations", consistent with every earlier step in the session.`,
	},
}

func init() {
	for _, st := range stepOrder {
		spec, ok := stepSpecs[st]
		if !ok {
			panic(fmt.Sprintf("prompts: step %s has no spec", st))
		}
		spec.Type = st
		stepSpecs[st] = spec
	}
	if len(stepSpecs) != len(stepOrder) {
		panic("prompts: step specs and step order disagree")
	}
}

// ParseStepType validates a raw step identifier.
func ParseStepType(raw string) (StepType, error) {
	st := StepType(strings.TrimSpace(raw))
	if _, ok := stepSpecs[st]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStep, raw)
	}
	return st, nil
}

// Spec returns the definition of a step.
func Spec(st StepType) (StepSpec, error) {
	spec, ok := stepSpecs[st]
	if !ok {
		return StepSpec{}, fmt.Errorf("%w: %q", ErrUnknownStep, string(st))
	}
	return spec, nil
}

// Steps lists all steps in wizard order.
func Steps() []StepSpec {
	out := make([]StepSpec, 0, len(stepOrder))
	for _, st := range stepOrder {
		out = append(out, stepSpecs[st])
	}
	return out
}

// Number is the 1-based wizard position of the step.
func (s StepType) Number() int {
	for i, st := range stepOrder {
		if st == s {
			return i + 1
		}
	}
	return 0
}
