// internal/presenter/narrative.go
//
// The rule-based "smart narrative" path. This is the default narrative
// engine, not a degraded mode: thresholds and phrasing live here and the
// LLM path only replaces it behind a feature flag.
package presenter

import (
	"fmt"
	"strings"

	"insight-engine/internal/models"
)

// Trend thresholds: below -10% reads bearish, above +10% bullish.
const (
	trendBearishPct = -10.0
	trendBullishPct = 10.0
	steepDropPct    = -25.0
)

// outlierSharePct: a single ranked item above this share of the ranking
// total gets its own insight.
const outlierSharePct = 40.0

// escalationCalloutPct: escalation rates above this trigger a callout.
const escalationCalloutPct = 30.0

const maxNarrativeBlocks = 5

// smartNarrative synthesizes up to five narrative blocks, headline first,
// and the conclusion from the payload alone. When none of the trend,
// ranking, callout or comparison rules fires, the headline is the only block.
func (b *Builder) smartNarrative(question string, payload *models.DataPayload) ([]models.Narrative, string) {
	var blocks []models.Narrative

	headline, conclusion := headlineFor(payload)
	blocks = append(blocks, models.Narrative{Kind: models.NarrativeHeadline, Text: headline})

	// Trend direction from the first time series.
	if len(payload.TimeSeries) > 0 {
		if change, ok := seriesChangePct(payload.TimeSeries[0]); ok {
			var text string
			switch {
			case change < trendBearishPct:
				text = fmt.Sprintf("La serie %s muestra una tendencia bajista (%.1f%% en el periodo).",
					prettify(payload.TimeSeries[0].SeriesName), change)
			case change > trendBullishPct:
				text = fmt.Sprintf("La serie %s muestra una tendencia alcista (+%.1f%% en el periodo).",
					prettify(payload.TimeSeries[0].SeriesName), change)
			default:
				text = fmt.Sprintf("La serie %s se mantiene estable (%.1f%% en el periodo).",
					prettify(payload.TimeSeries[0].SeriesName), change)
			}
			blocks = append(blocks, models.Narrative{Kind: models.NarrativeInsight, Text: text})

			if change <= steepDropPct {
				blocks = append(blocks, models.Narrative{
					Kind: models.NarrativeCallout,
					Text: fmt.Sprintf("Atencion: caida pronunciada de %.1f%% en %s.",
						change, prettify(payload.TimeSeries[0].SeriesName)),
				})
			}
		}
	}

	// Top performer and outlier detection per ranking.
	for _, top := range payload.TopItems {
		if len(top.Items) == 0 {
			continue
		}
		first := top.Items[0]
		blocks = append(blocks, models.Narrative{
			Kind: models.NarrativeInsight,
			Text: fmt.Sprintf("Lider en %s: '%s' con %s.",
				prettify(top.RankingName), first.Title, formatMoney(first.Value)),
		})

		var total float64
		for _, item := range top.Items {
			total += item.Value
		}
		if total > 0 && first.Value/total*100 > outlierSharePct {
			blocks = append(blocks, models.Narrative{
				Kind: models.NarrativeInsight,
				Text: fmt.Sprintf("'%s' concentra %.0f%% del total de %s.",
					first.Title, first.Value/total*100, prettify(top.RankingName)),
			})
		}
	}

	// Threshold callouts.
	if critical, ok := payload.KPIs["critical_count"]; ok && critical > 0 {
		blocks = append(blocks, models.Narrative{
			Kind: models.NarrativeCallout,
			Text: fmt.Sprintf("Hay %.0f productos con stock critico que requieren reposicion.", critical),
		})
	}
	if rate, ok := payload.KPIs["escalation_rate"]; ok && rate > escalationCalloutPct {
		blocks = append(blocks, models.Narrative{
			Kind: models.NarrativeCallout,
			Text: fmt.Sprintf("La tasa de escalamiento (%.1f%%) supera el umbral esperado.", rate),
		})
	}

	// Period comparison summary.
	if payload.Comparison != nil {
		if pct, ok := payload.Comparison.DeltaPct["total_sales"]; ok {
			direction := "crecieron"
			if pct < 0 {
				direction = "cayeron"
			}
			blocks = append(blocks, models.Narrative{
				Kind: models.NarrativeInsight,
				Text: fmt.Sprintf("Las ventas %s %.1f%% respecto al periodo anterior.", direction, abs(pct)),
			})
		}
	}

	if len(blocks) > maxNarrativeBlocks {
		blocks = blocks[:maxNarrativeBlocks]
	}
	return blocks, conclusion
}

// SmartConclusion derives the one-sentence conclusion for payload-only
// responses that never reach the dashboard builder.
func SmartConclusion(payload *models.DataPayload) string {
	_, conclusion := headlineFor(payload)
	return conclusion
}

// headlineFor derives the headline and the one-sentence conclusion from the
// principal KPIs. The conclusion follows the same rules as the headline.
func headlineFor(payload *models.DataPayload) (string, string) {
	kpis := payload.KPIs

	if payload.Comparison != nil {
		cur := payload.Comparison.CurrentPeriod.KPIs["total_sales"]
		pct := payload.Comparison.DeltaPct["total_sales"]
		text := fmt.Sprintf("Ventas del periodo actual: %s (%+.1f%% vs periodo anterior).",
			formatMoney(cur), pct)
		return text, text
	}

	if total, ok := kpis["total_sales"]; ok {
		orders := kpis["total_orders"]
		text := fmt.Sprintf("Ventas totales de %s con %.0f ordenes en el periodo.",
			formatMoney(total), orders)
		return text, text
	}

	if interactions, ok := kpis["total_interactions"]; ok {
		rate := kpis["escalation_rate"]
		text := fmt.Sprintf("El agente AI proceso %.0f interacciones con %.1f%% de escalamiento.",
			interactions, rate)
		return text, text
	}

	if totalProducts, ok := kpis["total_products"]; ok {
		critical := kpis["critical_count"]
		text := fmt.Sprintf("Inventario de %.0f productos, %.0f en estado critico.",
			totalProducts, critical)
		return text, text
	}

	if len(payload.TopItems) > 0 && len(payload.TopItems[0].Items) > 0 {
		first := payload.TopItems[0].Items[0]
		text := fmt.Sprintf("'%s' encabeza el ranking con %s.", first.Title, formatMoney(first.Value))
		return text, text
	}

	return "Datos procesados correctamente.", "Datos procesados correctamente."
}

func seriesChangePct(ts models.TimeSeries) (float64, bool) {
	if len(ts.Points) < 2 {
		return 0, false
	}
	first := ts.Points[0].Value
	last := ts.Points[len(ts.Points)-1].Value
	if first == 0 {
		return 0, false
	}
	return (last - first) / first * 100, true
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// formatMoney renders a currency amount with thousands separators.
func formatMoney(v float64) string {
	return "$" + formatThousands(v)
}

func formatThousands(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	s := fmt.Sprintf("%.0f", v)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

func prettify(name string) string {
	name = strings.ReplaceAll(name, "_", " ")
	name = strings.ReplaceAll(name, ".", " ")
	words := strings.Fields(name)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func normalizeQuestion(question string) string {
	replacer := strings.NewReplacer("á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ñ", "n")
	return replacer.Replace(strings.ToLower(question))
}

func contains(s, substr string) bool {
	return strings.Contains(s, substr)
}
