package semantic

import (
	"strings"
	"text/template"
)

// The judge sees the declared behaviors verbatim and must answer with the
// strict verdict schema; anything else is treated as malformed output.

var stepPromptTmpl = template.Must(template.New("step").Parse(`You are judging one exchange from a conversation with an appointment-scheduling assistant.

## User message
{{.UserMessage}}

## Assistant response
{{.Response}}
{{if .ExpectedBehaviors}}
## Expected behaviors
{{range .ExpectedBehaviors}}- {{.}}
{{end}}{{end}}{{if .ForbiddenBehaviors}}
## Forbidden behaviors
{{range .ForbiddenBehaviors}}- {{.}}
{{end}}{{end}}
Decide whether the response satisfies every expected behavior and avoids every forbidden behavior. Classify the user's intent and the conversation flow state (greeting, collecting_info, booking, confirmed, transferring, ended, error).

Reply with exactly one JSON object and nothing else:
{"passed": bool, "quality": "good"|"acceptable"|"poor", "intent": string, "flow_state": string, "matched": [string], "unmatched": [string], "unexpected": [string], "confidence": number, "reasoning": string}

"matched" lists the expected behaviors the response satisfied, "unmatched" the expected behaviors it missed, and "unexpected" the forbidden behaviors it exhibited.`))

var batchPromptHeader = `You are judging several independent exchanges from conversations with an appointment-scheduling assistant.

Judge each step on its own. Reply with exactly one JSON array containing one verdict object per step, in the same order, and nothing else. Each verdict object has the shape:
{"passed": bool, "quality": "good"|"acceptable"|"poor", "intent": string, "flow_state": string, "matched": [string], "unmatched": [string], "unexpected": [string], "confidence": number, "reasoning": string}
`

var batchStepTmpl = template.Must(template.New("batchStep").Parse(`
## Step {{.Index}}

### User message
{{.Step.UserMessage}}

### Assistant response
{{.Step.Response}}
{{if .Step.ExpectedBehaviors}}
### Expected behaviors
{{range .Step.ExpectedBehaviors}}- {{.}}
{{end}}{{end}}{{if .Step.ForbiddenBehaviors}}
### Forbidden behaviors
{{range .Step.ForbiddenBehaviors}}- {{.}}
{{end}}{{end}}`))

func buildStepPrompt(sc StepContext) string {
	var sb strings.Builder
	if err := stepPromptTmpl.Execute(&sb, sc); err != nil {
		// The template has no failure modes over StepContext; keep the
		// contract total anyway.
		return sc.UserMessage
	}
	return sb.String()
}

func buildBatchPrompt(steps []StepContext) string {
	var sb strings.Builder
	sb.WriteString(batchPromptHeader)

	for i, step := range steps {
		data := struct {
			Index int
			Step  StepContext
		}{Index: i + 1, Step: step}

		if err := batchStepTmpl.Execute(&sb, data); err != nil {
			continue
		}
	}

	return sb.String()
}
