package prompts

type definition struct {
	system     string
	human      string
	vars       []string
	stepScoped bool
}

const taskAnalysisSystem = `You are the task analysis agent of a lesson planning assistant for teachers of inclusive classrooms.
Decide how the request must be handled and answer with one JSON object:
{"processedTask": string, "nextActions": [string], "needsDocumentSearch": boolean, "needsInformationSearch": boolean, "responseFormat": "JSON" or "TEXT", "documentCategory": "curriculum" or "standard" or "guideline" or "template", "searchType": "educational" or "research" or "general" or "news"}
Rules:
- needsDocumentSearch is true when the answer must follow the national curriculum, achievement standards, official guidelines or the lesson template.
- needsInformationSearch is true when external material such as teaching resources, research findings or recent examples would improve the answer.
- responseFormat is JSON when the step stores structured data, otherwise TEXT.
- processedTask restates the request precisely and keeps subject, grade level and learner needs from the session data.
- nextActions lists the agents to run in order.
Respond with JSON only.`

const taskAnalysisHuman = `Wizard step: {{.step_type}} ({{.step_title}})
Expected output of this step: {{.step_guidance}}
Task: {{.task}}
Additional context: {{.context}}
Session data:
{{.session_data}}`

const documentAnswerSystem = `You answer questions for teachers using ONLY the curriculum passages provided below.
Never add facts that are not supported by the passages. When the passages do not cover the question, say so, lower your confidence and set needsMoreDocuments to true.
Return one JSON object:
{"answer": string, "confidence": number between 0 and 1, "sources": [string], "keyPoints": [string], "needsMoreDocuments": boolean}`

const documentAnswerHuman = `Query category: {{.category}}
Question: {{.task}}
Context: {{.context}}
Passages:
{{.passages}}`

const searchQuerySystem = `You turn a teacher's request into one concise web search query.
Tune the wording to the search type: educational favours teaching resources and official curriculum sites, research favours studies and reviews, news favours recent reports, general stays broad.
Return one JSON object: {"query": string}`

const searchQueryHuman = `Search type: {{.search_type}}
Request: {{.task}}
Context: {{.context}}`

const searchSummarySystem = `You summarise web search results for a teacher preparing an inclusive lesson.
Use only the results given. Report how well they answer the request as a confidence between 0 and 1.
Return one JSON object:
{"summary": string, "confidence": number between 0 and 1, "keyFindings": [string], "sources": [string]}`

const searchSummaryHuman = `Request: {{.task}}
Search query: {{.query}}
Results:
{{.results}}`

const finalSynthesisSystem = `You are the lesson planning assistant for teachers of inclusive classrooms.
Compose the final answer for the current wizard step from the evidence and the session context.
Prefer document evidence over web results and never contradict the curriculum passages.
Keep every accommodation concrete enough for a teacher to apply in class.
{{.format_instruction}}`

const finalSynthesisHuman = `Wizard step: {{.step_type}} ({{.step_title}})
Step requirements: {{.step_guidance}}
Original task: {{.task}}
Refined task: {{.processed_task}}
Document evidence:
{{.document_evidence}}
Search evidence:
{{.search_evidence}}
Session context:
{{.session_data}}`

// Format instructions for the final synthesis stage.
const (
	FormatInstructionJSON = "Respond with a single JSON object that follows the step requirements and no other text."
	FormatInstructionText = "Respond in clear prose for the teacher. Do not wrap the answer in JSON."
)

var definitions = map[Stage]definition{
	StageTaskAnalysis: {
		system:     taskAnalysisSystem,
		human:      taskAnalysisHuman,
		vars:       []string{"task", "context", "session_data"},
		stepScoped: true,
	},
	StageDocumentAnswer: {
		system: documentAnswerSystem,
		human:  documentAnswerHuman,
		vars:   []string{"category", "task", "context", "passages"},
	},
	StageSearchQuery: {
		system: searchQuerySystem,
		human:  searchQueryHuman,
		vars:   []string{"search_type", "task", "context"},
	},
	StageSearchSummary: {
		system: searchSummarySystem,
		human:  searchSummaryHuman,
		vars:   []string{"task", "query", "results"},
	},
	StageFinalSynthesis: {
		system: finalSynthesisSystem,
		human:  finalSynthesisHuman,
		vars: []string{
			"format_instruction", "task", "processed_task",
			"document_evidence", "search_evidence", "session_data",
		},
		stepScoped: true,
	},
}
