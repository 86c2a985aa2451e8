// internal/dataagent/selector.go
package dataagent

import (
	"insight-engine/internal/classifier"
	"insight-engine/internal/models"
)

// MaxQueriesPerRequest caps how many catalog queries one request may run.
const MaxQueriesPerRequest = 3

// Plan is the set of queries to execute plus caller-supplied params.
type Plan struct {
	QueryIDs []string               `json:"query_ids"`
	Params   map[string]interface{} `json:"params"`
}

// selectHeuristic picks query ids deterministically. Rules run in order and
// the first hit wins; more specific vocabularies (escalations, top
// products, comparisons) come before the broad sales and inventory rules,
// and keyword matching is token-prefix based so "inventario" never trips
// the "venta" rule.
func selectHeuristic(question string, domain models.Domain) []string {
	q := classifier.Normalize(question)

	match := func(keywords ...string) bool {
		return classifier.MatchAny(q, keywords)
	}

	switch {
	case match("agente", "bot", "interaccion", "asistente"):
		ids := []string{"ai_interactions_summary", "recent_ai_interactions"}
		if match("escalado", "escalacion") {
			ids = append(ids, "escalated_cases")
		}
		return ids

	case match("escalado", "escalacion", "escalamiento"):
		return []string{"escalated_cases", "ai_interactions_summary", "interactions_by_case_type"}

	case match("comparar", "comparame", "comparacion", "versus", "vs"):
		return []string{"sales_period_comparison", "kpi_sales_summary", "ts_sales_by_day"}

	case match("mas vendido", "mas vendidos", "top producto", "top productos", "mejores productos"):
		return []string{"kpi_sales_summary", "top_products_by_revenue"}

	case match("venta", "ventas", "vendido", "vendimos", "factura", "facturado", "ingreso", "revenue"):
		return []string{"kpi_sales_summary", "ts_sales_by_day", "top_products_by_revenue"}

	case match("inventario", "stock", "existencia"):
		if match("bajo", "alerta", "reponer", "falta", "critico") {
			return []string{"products_low_stock", "stock_reorder_analysis", "kpi_inventory_summary"}
		}
		return []string{"kpi_inventory_summary", "products_inventory", "stock_reorder_analysis"}

	case match("producto", "productos"):
		return []string{"products_inventory", "products_low_stock"}
	}

	// No specific vocabulary hit; the classifier's domain decides.
	switch domain {
	case models.DomainInventory:
		return []string{"kpi_inventory_summary", "products_inventory", "stock_reorder_analysis"}
	case models.DomainConversations:
		return []string{"ai_interactions_summary", "recent_ai_interactions"}
	default:
		return []string{"kpi_sales_summary", "recent_orders"}
	}
}

// hasBackReference reports an ambiguous pronoun that makes the heuristic
// map unreliable; such questions go to the LLM selector when enabled.
func hasBackReference(question string) bool {
	return classifier.MatchAny(classifier.Normalize(question),
		[]string{"eso", "esto", "aquello", "lo mismo", "el mismo", "la misma"})
}

func capPlan(ids []string) []string {
	if len(ids) > MaxQueriesPerRequest {
		return ids[:MaxQueriesPerRequest]
	}
	return ids
}
