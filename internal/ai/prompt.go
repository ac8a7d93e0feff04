package ai

import (
	"fmt"
	"strings"
	"text/template"
	"unicode"

	"github.com/nyashahama/lab-diagnostic-assistant/internal/labs"
	"github.com/nyashahama/lab-diagnostic-assistant/internal/scoring"
)

// promptTemplate lays out one value per line so user-supplied text cannot
// break out of its slot. Free text goes through clean before it is rendered.
var promptTemplate = template.Must(template.New("prompt").Funcs(template.FuncMap{
	"clean": clean,
}).Parse(`A patient has submitted lab results:

{{range .Values}}- {{.Field.Label}}{{with .Field.Unit}} ({{.}}){{end}}: {{if .Present}}{{clean .Display}}{{else}}not provided{{end}}
{{end}}
Based on system-detected risk flags:
{{range .Flags}}- {{clean .Message}}
{{else}}- none
{{end}}
Please include:
1. Abnormal Test Values – explain in plain language.
2. Risk Assessment – what conditions may arise.
3. Probable Diagnoses.
4. Likely Symptoms.
5. Next Steps for the patient.

Use clear medical tone. Structure it professionally.
`))

type promptData struct {
	Values []labs.Value
	Flags  []scoring.Flag
}

// BuildPrompt renders the user message sent to the model.
func BuildPrompt(report labs.Report, flags []scoring.Flag) (string, error) {
	var sb strings.Builder
	err := promptTemplate.Execute(&sb, promptData{
		Values: report.Values(),
		Flags:  flags,
	})
	if err != nil {
		return "", fmt.Errorf("ai: render prompt: %w", err)
	}
	return sb.String(), nil
}

// clean collapses control characters and runs of whitespace into single
// spaces and caps the length of a free-text value.
func clean(s string) string {
	const maxLen = 200

	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	s = strings.Join(strings.Fields(s), " ")

	if r := []rune(s); len(r) > maxLen {
		s = string(r[:maxLen])
	}
	return s
}
