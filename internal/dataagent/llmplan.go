// internal/dataagent/llmplan.go
package dataagent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"insight-engine/internal/llm"
	"insight-engine/internal/models"
)

const planSchema = `{
	"type": "object",
	"required": ["query_ids"],
	"properties": {
		"query_ids": {
			"type": "array",
			"items": {"type": "string"},
			"minItems": 1,
			"maxItems": 3
		},
		"params": {"type": "object"}
	}
}`

const planSystemPrompt = `Eres un experto en analisis de datos de e-commerce.
Tu unica tarea es elegir que queries ejecutar para responder la pregunta del usuario.

REGLAS:
1. SOLO responde con JSON valido (sin markdown)
2. SOLO usa query_ids de la lista de abajo
3. Elige las queries MAS RELEVANTES (maximo 3)
4. Para ventas incluye siempre kpi_sales_summary

FORMATO:
{"query_ids": ["id1", "id2"], "params": {"limit": 10}}`

// selectWithLLM asks the model for a query plan constrained to the catalog.
// Malformed or out-of-catalog output gets one repair pass; a second failure
// falls back to the heuristic map for the decision's domain.
func (a *Agent) selectWithLLM(ctx context.Context, question string, decision models.RoutingDecision) Plan {
	descriptions := a.cat.Descriptions()
	ids := make([]string, 0, len(descriptions))
	for id := range descriptions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var list strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&list, "- %s: %s\n", id, descriptions[id])
	}

	prompt := fmt.Sprintf("QUERIES DISPONIBLES:\n%s\nPregunta del usuario: %q\n\nResponde SOLO con el JSON del plan.",
		list.String(), question)

	plan, err := a.askPlan(ctx, prompt)
	if err != nil {
		a.logger.Warn("llm plan invalid, repairing", map[string]interface{}{"error": err.Error()})
		plan, err = a.askPlan(ctx, prompt+"\n\nTu respuesta anterior fue invalida: "+err.Error()+
			"\nResponde nuevamente SOLO con el JSON pedido.")
	}
	if err != nil {
		a.logger.Warn("llm plan failed twice, using heuristics", map[string]interface{}{"error": err.Error()})
		return Plan{QueryIDs: capPlan(selectHeuristic(question, decision.Domain))}
	}
	return *plan
}

func (a *Agent) askPlan(ctx context.Context, prompt string) (*Plan, error) {
	text, err := a.llm.Complete(ctx, "selector", llm.Request{
		System:      planSystemPrompt,
		Prompt:      prompt,
		Temperature: 0.1,
		JSONOnly:    true,
	})
	if err != nil {
		return nil, err
	}

	doc := llm.ExtractJSON(text)
	if err := llm.ValidateAgainstSchema(planSchema, doc); err != nil {
		return nil, err
	}
	var plan Plan
	if err := json.Unmarshal([]byte(doc), &plan); err != nil {
		return nil, err
	}

	// Every id must exist in the catalog, and params must satisfy each
	// chosen entry's schema before the plan is accepted.
	for _, id := range plan.QueryIDs {
		entry, ok := a.cat.Lookup(id)
		if !ok {
			return nil, fmt.Errorf("query id %q is not in the catalog", id)
		}
		if len(plan.Params) > 0 {
			scoped := make(map[string]interface{})
			for k, v := range plan.Params {
				if entry.Param(k) != nil {
					scoped[k] = v
				}
			}
			if _, _, err := a.canonicalize(entry, scoped); err != nil {
				return nil, fmt.Errorf("params for %q: %v", id, err)
			}
		}
	}
	return &plan, nil
}
