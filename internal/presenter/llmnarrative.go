// internal/presenter/llmnarrative.go
package presenter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"insight-engine/internal/llm"
	"insight-engine/internal/models"
)

const narrativeSchema = `{
	"type": "object",
	"required": ["conclusion", "summary"],
	"properties": {
		"conclusion": {"type": "string", "minLength": 1},
		"summary": {"type": "string", "minLength": 1},
		"insights": {"type": "array", "items": {"type": "string"}},
		"recommendation": {"type": "string"}
	}
}`

const narrativeSystemPrompt = `Eres un analista de negocio para un e-commerce.
Recibes un resumen de datos y generas insights accionables en espanol.

Responde SOLO con JSON valido:
{"conclusion": "respuesta directa a la pregunta (1-2 oraciones)",
 "summary": "resumen ejecutivo (2-3 oraciones)",
 "insights": ["insight accionable", "..."],
 "recommendation": "recomendacion accionable (1 oracion)"}`

type narrativeOutput struct {
	Conclusion     string   `json:"conclusion"`
	Summary        string   `json:"summary"`
	Insights       []string `json:"insights"`
	Recommendation string   `json:"recommendation"`
}

// narrativeWithLLM delegates the narrative to the model with one repair
// pass. Callers fall back to the rule-based path on error.
func (b *Builder) narrativeWithLLM(ctx context.Context, question string, payload *models.DataPayload) ([]models.Narrative, string, error) {
	summary := summarizePayload(payload)
	prompt := fmt.Sprintf("Pregunta del usuario: %q\n\nDatos disponibles:\n%s\n\nGenera insights basados en estos datos.",
		question, summary)

	out, err := b.askNarrative(ctx, prompt)
	if err != nil {
		b.logger.Warn("llm narrative invalid, repairing", map[string]interface{}{"error": err.Error()})
		out, err = b.askNarrative(ctx, prompt+"\n\nTu respuesta anterior fue invalida: "+err.Error()+
			"\nResponde nuevamente SOLO con el JSON pedido.")
	}
	if err != nil {
		return nil, "", err
	}

	blocks := []models.Narrative{
		{Kind: models.NarrativeHeadline, Text: out.Conclusion},
		{Kind: models.NarrativeSummary, Text: out.Summary},
	}
	for _, insight := range out.Insights {
		blocks = append(blocks, models.Narrative{Kind: models.NarrativeInsight, Text: insight})
	}
	if out.Recommendation != "" {
		blocks = append(blocks, models.Narrative{Kind: models.NarrativeCallout, Text: out.Recommendation})
	}
	if len(blocks) > maxNarrativeBlocks {
		blocks = blocks[:maxNarrativeBlocks]
	}
	return blocks, out.Conclusion, nil
}

func (b *Builder) askNarrative(ctx context.Context, prompt string) (*narrativeOutput, error) {
	text, err := b.llm.Complete(ctx, "narrative", llm.Request{
		System:      narrativeSystemPrompt,
		Prompt:      prompt,
		Temperature: 0.7,
		JSONOnly:    true,
	})
	if err != nil {
		return nil, err
	}

	doc := llm.ExtractJSON(text)
	if err := llm.ValidateAgainstSchema(narrativeSchema, doc); err != nil {
		return nil, err
	}
	var out narrativeOutput
	if err := json.Unmarshal([]byte(doc), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// summarizePayload compresses the payload into the few lines the model
// needs; raw tables never reach the prompt.
func summarizePayload(payload *models.DataPayload) string {
	var lines []string

	if len(payload.KPIs) > 0 {
		var parts []string
		for _, def := range kpiCardDefs {
			if v, ok := payload.KPIs[def.metric]; ok {
				parts = append(parts, fmt.Sprintf("%s=%.2f", def.metric, v))
			}
		}
		if len(parts) > 0 {
			lines = append(lines, "KPIs: "+strings.Join(parts, ", "))
		}
	}

	for _, ts := range payload.TimeSeries {
		if change, ok := seriesChangePct(ts); ok {
			lines = append(lines, fmt.Sprintf("Serie %s: %d puntos, cambio %+.1f%%",
				ts.SeriesName, len(ts.Points), change))
		}
	}

	for _, top := range payload.TopItems {
		if len(top.Items) > 0 {
			lines = append(lines, fmt.Sprintf("Top %s: #1 es '%s' con %.2f",
				top.RankingName, top.Items[0].Title, top.Items[0].Value))
		}
	}

	if payload.Comparison != nil {
		lines = append(lines, fmt.Sprintf("Comparacion: actual %s vs anterior %s, delta ventas %+.1f%%",
			payload.Comparison.CurrentPeriod.Label,
			payload.Comparison.PreviousPeriod.Label,
			payload.Comparison.DeltaPct["total_sales"]))
	}

	if len(lines) == 0 {
		return "Sin datos numericos disponibles."
	}
	return strings.Join(lines, "\n")
}
