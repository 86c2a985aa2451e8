// internal/classifier/llm.go
package classifier

import (
	"context"
	"encoding/json"

	"insight-engine/internal/llm"
	"insight-engine/internal/models"
)

const decisionSchema = `{
	"type": "object",
	"required": ["kind", "domain"],
	"properties": {
		"kind": {"type": "string", "enum": ["conversational", "data_only", "dashboard", "clarification"]},
		"domain": {"type": "string", "enum": ["sales", "inventory", "conversations", "unknown"]},
		"rationale": {"type": "string"}
	}
}`

const classifySystemPrompt = `Eres un clasificador de intenciones para un sistema de analytics de e-commerce.
Analiza la pregunta del usuario y determina:
1. kind: "dashboard" (necesita visualizacion/analisis), "data_only" (solo numeros), "conversational" (saludo/ayuda), "clarification" (demasiado ambigua)
2. domain: "sales" (ventas/ordenes), "inventory" (productos/stock), "conversations" (agente AI/escalados), "unknown"

Responde SOLO con JSON valido:
{"kind": "dashboard|data_only|conversational|clarification", "domain": "sales|inventory|conversations|unknown", "rationale": "explicacion breve"}`

type llmDecision struct {
	Kind      string `json:"kind"`
	Domain    string `json:"domain"`
	Rationale string `json:"rationale"`
}

// classifyWithLLM asks the model for a structured decision. Malformed output
// gets one repair pass with the validation error quoted back; a second
// failure falls back to a low-confidence data_only decision.
func (c *Classifier) classifyWithLLM(ctx context.Context, in Input) models.RoutingDecision {
	prompt := "Pregunta: " + in.Question
	if in.ChatContext != "" {
		prompt += "\n\nContexto de conversacion:\n" + in.ChatContext
	}

	decision, err := c.askModel(ctx, prompt)
	if err != nil {
		c.logger.Warn("llm classification invalid, repairing", map[string]interface{}{"error": err.Error()})
		decision, err = c.askModel(ctx, prompt+"\n\nTu respuesta anterior fue invalida: "+err.Error()+
			"\nResponde nuevamente SOLO con el JSON pedido.")
	}
	if err != nil {
		c.logger.Warn("llm classification failed twice, defaulting", map[string]interface{}{"error": err.Error()})
		return models.RoutingDecision{
			Kind:       models.KindDataOnly,
			Domain:     models.DomainSales,
			Confidence: 0.3,
			Rationale:  "llm fallback failed, default decision",
			NeedsData:  true,
		}
	}

	out := models.RoutingDecision{
		Kind:       models.ResponseKind(decision.Kind),
		Domain:     models.Domain(decision.Domain),
		Confidence: 0.8,
		Rationale:  "llm: " + decision.Rationale,
	}
	switch out.Kind {
	case models.KindConversational:
		out.DirectAnswer = directResponses["help"]
	case models.KindClarification:
		out.DirectAnswer = clarificationPrompt
	case models.KindDashboard:
		out.NeedsData = true
		out.NeedsDashboard = true
	case models.KindDataOnly:
		out.NeedsData = true
	}
	return out
}

func (c *Classifier) askModel(ctx context.Context, prompt string) (*llmDecision, error) {
	text, err := c.llm.Complete(ctx, "classifier", llm.Request{
		System:      classifySystemPrompt,
		Prompt:      prompt,
		Temperature: 0.1,
		JSONOnly:    true,
	})
	if err != nil {
		return nil, err
	}

	doc := llm.ExtractJSON(text)
	if err := llm.ValidateAgainstSchema(decisionSchema, doc); err != nil {
		return nil, err
	}
	var decision llmDecision
	if err := json.Unmarshal([]byte(doc), &decision); err != nil {
		return nil, err
	}
	return &decision, nil
}
