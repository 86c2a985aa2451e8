// Package presenter turns a data payload into the dashboard specification.
// Structure is always deterministic; only the narrative text may come from a
// model, and the rule-based narrative is the default path, not a fallback.
package presenter

import (
	"context"
	"fmt"
	"sort"
	"time"

	inerrors "insight-engine/internal/common/errors"
	"insight-engine/internal/common/logger"
	"insight-engine/internal/dates"
	"insight-engine/internal/llm"
	"insight-engine/internal/models"
)

const maxKPICards = 4

// kpiCardDef fixes label, format and priority for the known metrics. The
// slice order is the display priority.
type kpiCardDef struct {
	metric string
	label  string
	format string
}

var kpiCardDefs = []kpiCardDef{
	{"total_sales", "Ventas Totales", models.FormatCurrency},
	{"total_orders", "Ordenes", models.FormatNumber},
	{"avg_order_value", "Ticket Promedio", models.FormatCurrency},
	{"total_units", "Unidades", models.FormatNumber},
	{"total_interactions", "Total Interacciones", models.FormatNumber},
	{"escalated_count", "Casos Escalados", models.FormatNumber},
	{"escalation_rate", "Tasa Escalamiento", models.FormatPercent},
	{"auto_responded", "Auto-Respondidas", models.FormatNumber},
	{"auto_response_rate", "Tasa Auto-Respuesta", models.FormatPercent},
	{"critical_count", "Productos Criticos", models.FormatNumber},
	{"warning_count", "Productos en Alerta", models.FormatNumber},
	{"ok_count", "Stock OK", models.FormatNumber},
	{"total_products", "Total Productos", models.FormatNumber},
	{"avg_days_cover", "Dias de Cobertura", models.FormatNumber},
}

// comparisonMetricOrder fixes which metrics a comparison chart spans.
var comparisonMetricOrder = []string{"total_sales", "total_orders", "avg_order_value", "total_units"}

// Builder is the presentation stage.
type Builder struct {
	llm    *llm.Client // nil keeps narrative fully rule-based
	logger logger.Logger
	clock  func() time.Time
}

func New(llmClient *llm.Client, log logger.Logger) *Builder {
	return &Builder{
		llm:    llmClient,
		logger: log.With(map[string]interface{}{"component": "presenter"}),
		clock:  time.Now,
	}
}

// WithClock overrides the timestamp clock. Tests only.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// Build produces the dashboard spec for a payload. Reduced drops the charts
// and keeps KPI cards, filters and narrative; the orchestrator sets it on the
// retry after a presentation failure.
func (b *Builder) Build(ctx context.Context, question string, payload *models.DataPayload, dateRange dates.Range, reduced bool) (*models.DashboardSpec, error) {
	slots := models.Slots{
		Series:    b.buildKPICards(payload),
		Filters:   buildFilters(dateRange),
		Narrative: []models.Narrative{},
		Charts:    []models.Chart{},
	}
	if !reduced {
		slots.Charts = b.buildCharts(payload)
	}

	var conclusion string
	if b.llm != nil {
		narrative, conc, err := b.narrativeWithLLM(ctx, question, payload)
		if err != nil {
			b.logger.Warn("llm narrative failed, using rule-based path", map[string]interface{}{
				"error": err.Error(),
			})
			narrative, conc = b.smartNarrative(question, payload)
			slots.Narrative = narrative
			conclusion = conc
		} else {
			slots.Narrative = narrative
			conclusion = conc
		}
	} else {
		slots.Narrative, conclusion = b.smartNarrative(question, payload)
	}

	spec := &models.DashboardSpec{
		Title:       titleFor(question),
		Subtitle:    periodSubtitle(dateRange),
		Conclusion:  conclusion,
		Slots:       slots,
		GeneratedAt: b.clock().UTC().Format(time.RFC3339),
	}

	if err := validateRefs(spec, payload); err != nil {
		// A ref outside available_refs is a programmer error, not a data
		// condition; surface it loudly.
		return nil, inerrors.NewPresentationError(err)
	}
	return spec, nil
}

// buildKPICards emits up to four cards, fixed priority order first, then
// any remaining metrics alphabetically.
func (b *Builder) buildKPICards(payload *models.DataPayload) []models.KPICard {
	cards := []models.KPICard{}
	if len(payload.KPIs) == 0 {
		return cards
	}

	seen := make(map[string]bool)
	for _, def := range kpiCardDefs {
		if len(cards) >= maxKPICards {
			return cards
		}
		ref := "kpi." + def.metric
		if _, ok := payload.KPIs[def.metric]; ok && payload.HasRef(ref) {
			cards = append(cards, models.KPICard{Label: def.label, ValueRef: ref, Format: def.format})
			seen[def.metric] = true
		}
	}

	rest := make([]string, 0, len(payload.KPIs))
	for metric := range payload.KPIs {
		if !seen[metric] {
			rest = append(rest, metric)
		}
	}
	sort.Strings(rest)
	for _, metric := range rest {
		if len(cards) >= maxKPICards {
			break
		}
		ref := "kpi." + metric
		if payload.HasRef(ref) {
			cards = append(cards, models.KPICard{Label: prettify(metric), ValueRef: ref, Format: models.FormatNumber})
		}
	}
	return cards
}

// buildCharts emits at least two charts when the payload allows it: one
// from the time-series family and one from the rankings; when only one
// family exists, a complementary chart of a second type is drawn from it.
func (b *Builder) buildCharts(payload *models.DataPayload) []models.Chart {
	charts := []models.Chart{}

	for i, ts := range payload.TimeSeries {
		ref := "ts." + ts.SeriesName
		if !payload.HasRef(ref) {
			continue
		}
		chartType := models.ChartLine
		if i > 0 {
			chartType = models.ChartArea
		}
		charts = append(charts, models.Chart{
			Type:       chartType,
			Title:      prettify(ts.SeriesName),
			DatasetRef: ref,
			XAxis:      "date",
			YAxis:      "value",
		})
	}

	for _, top := range payload.TopItems {
		ref := "top." + top.RankingName
		if !payload.HasRef(ref) {
			continue
		}
		charts = append(charts, models.Chart{
			Type:       models.ChartBar,
			Title:      prettify(top.RankingName),
			DatasetRef: ref,
			XAxis:      "title",
			YAxis:      "value",
		})
	}

	// Complementary chart when a single family produced a single chart.
	if len(charts) == 1 {
		switch {
		case len(payload.TimeSeries) > 0 && charts[0].Type != models.ChartBar:
			ts := payload.TimeSeries[0]
			charts = append(charts, models.Chart{
				Type:       models.ChartArea,
				Title:      "Tendencia: " + prettify(ts.SeriesName),
				DatasetRef: "ts." + ts.SeriesName,
				XAxis:      "date",
				YAxis:      "value",
			})
		case len(payload.TopItems) > 0:
			top := payload.TopItems[0]
			charts = append(charts, models.Chart{
				Type:       models.ChartPie,
				Title:      "Distribucion: " + prettify(top.RankingName),
				DatasetRef: "top." + top.RankingName,
				XAxis:      "title",
				YAxis:      "value",
			})
		}
	}

	if payload.Comparison != nil && payload.HasRef("comparison.sales_periods") {
		metrics := []string{}
		for _, m := range comparisonMetricOrder {
			if _, ok := payload.Comparison.CurrentPeriod.KPIs[m]; ok {
				metrics = append(metrics, m)
			}
		}
		charts = append(charts, models.Chart{
			Type:          models.ChartComparisonBar,
			Title:         "Comparacion de Periodos",
			DatasetRef:    "comparison.sales_periods",
			CurrentLabel:  payload.Comparison.CurrentPeriod.Label,
			PreviousLabel: payload.Comparison.PreviousPeriod.Label,
			Metrics:       metrics,
		})
	}

	for _, table := range payload.Tables {
		ref := "table." + table.Name
		if !payload.HasRef(ref) || len(table.Rows) == 0 {
			continue
		}
		columns := make([]string, 0, len(table.Rows[0]))
		for col := range table.Rows[0] {
			columns = append(columns, col)
		}
		sort.Strings(columns)
		if len(columns) > 5 {
			columns = columns[:5]
		}
		charts = append(charts, models.Chart{
			Type:       models.ChartTable,
			Title:      prettify(table.Name),
			DatasetRef: ref,
			Columns:    columns,
			MaxRows:    10,
		})
	}

	return charts
}

func buildFilters(dateRange dates.Range) []models.Filter {
	if dateRange.IsZero() {
		return []models.Filter{}
	}
	return []models.Filter{{Type: "date_range", From: dateRange.From, To: dateRange.To}}
}

// validateRefs checks the spec only binds refs the payload actually has.
func validateRefs(spec *models.DashboardSpec, payload *models.DataPayload) error {
	for _, card := range spec.Slots.Series {
		if !payload.HasRef(card.ValueRef) {
			return fmt.Errorf("kpi card %q binds unknown ref %q", card.Label, card.ValueRef)
		}
		if card.DeltaRef != "" && !payload.HasRef(card.DeltaRef) {
			return fmt.Errorf("kpi card %q binds unknown delta ref %q", card.Label, card.DeltaRef)
		}
	}
	for _, chart := range spec.Slots.Charts {
		if !payload.HasRef(chart.DatasetRef) {
			return fmt.Errorf("chart %q binds unknown ref %q", chart.Title, chart.DatasetRef)
		}
	}
	return nil
}

func titleFor(question string) string {
	q := normalizeQuestion(question)
	switch {
	case contains(q, "compar"):
		return "Comparacion de Periodos"
	// "inventario" contains "venta"; test it first.
	case contains(q, "inventario"), contains(q, "stock"):
		return "Estado de Inventario"
	case contains(q, "venta"):
		return "Dashboard de Ventas"
	case contains(q, "agente"), contains(q, "escalad"):
		return "Rendimiento del Agente AI"
	case contains(q, "producto"):
		return "Analisis de Productos"
	case contains(q, "orden"), contains(q, "pedido"):
		return "Resumen de Ordenes"
	default:
		return "Dashboard de Insights"
	}
}

func periodSubtitle(dateRange dates.Range) string {
	if dateRange.IsZero() {
		return "Ultimos 30 dias"
	}
	return fmt.Sprintf("Periodo %s a %s", dateRange.From, dateRange.To)
}
