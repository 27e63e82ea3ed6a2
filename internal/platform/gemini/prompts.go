package gemini

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/phrazzld/audiopaper-api/internal/generation"
)

const summarySystem = `You are an expert research assistant. Write clear, faithful summaries of academic papers for a general technical audience.`

const scriptSystem = `You write engaging two-person podcast scripts. Every line starts with "HOST:" or "EXPERT:" followed by what that speaker says. Do not include stage directions.`

var summaryTemplate = template.Must(template.New("summary").Parse(
	`Summarize the following paper. Cover the problem, the approach, the key results and the limitations.

Paper: {{.Filename}}

{{.Text}}`))

var scriptTemplate = template.Must(template.New("script").Parse(
	`Write a podcast conversation about the paper below between a curious HOST and a knowledgeable EXPERT.
Length: {{.LengthGuide}}

Summary:
{{.Summary}}

Paper text:
{{.Text}}`))

// lengthGuides maps script length values to the instruction given to the model.
var lengthGuides = map[string]string{
	generation.LengthShort:  "about 2-3 minutes of speech, roughly 10 exchanges",
	generation.LengthMedium: "about 5-7 minutes of speech, roughly 20 exchanges",
	generation.LengthLong:   "about 10-15 minutes of speech, roughly 40 exchanges",
}

type promptData struct {
	Filename    string
	Text        string
	Summary     string
	LengthGuide string
}

func renderPrompt(tmpl *template.Template, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute %s prompt template: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
