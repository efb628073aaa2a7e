package chat

import (
	"strings"
	"text/template"

	"github.com/oncoderma/oncoderma-go/internal/datastore"
)

var promptTemplate = template.Must(template.New("prompt").Parse(
	`You are OncoDerma AI, an advanced medical assistant for skin disease analysis.
The user is viewing a scan result for a patient named '{{.PatientName}}'.
The scan diagnosis is '{{.Result}}' with a risk level of '{{.RiskLevel}}'.

Your role is to:
1. Answer the user's question specifically about this disease/condition.
2. Provide helpful medical context, symptoms, and general treatment advice.
3. Be empathetic but professional.
4. CRITICAL: Always include a disclaimer that you are an AI and this is not a substitute for professional medical advice.

User Question: {{.Question}}
`))

// BuildPrompt returns the prompt sent for a question about prediction p.
// The output depends only on its inputs.
func BuildPrompt(p *datastore.Prediction, question string) string {
	var sb strings.Builder
	// Executing a parsed template into a strings.Builder cannot fail for these field types.
	_ = promptTemplate.Execute(&sb, struct {
		PatientName string
		Result      string
		RiskLevel   string
		Question    string
	}{
		PatientName: p.PatientName,
		Result:      p.Result,
		RiskLevel:   p.RiskLevel,
		Question:    strings.TrimSpace(question),
	})
	return sb.String()
}
