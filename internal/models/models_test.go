package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Serializing then parsing a spec or payload reproduces an equal value; the
// wire format is lossless for everything the client binds to.
func TestDashboardSpecRoundTrip(t *testing.T) {
	spec := DashboardSpec{
		Title:      "Dashboard de Ventas",
		Subtitle:   "Ultimos 30 dias",
		Conclusion: "Ventas totales de $90.000.",
		Slots: Slots{
			Series: []KPICard{{Label: "Ventas Totales", ValueRef: "kpi.total_sales", Format: FormatCurrency}},
			Charts: []Chart{
				{Type: ChartLine, Title: "Ventas por Dia", DatasetRef: "ts.sales_by_day", XAxis: "date", YAxis: "value"},
				{Type: ChartComparisonBar, Title: "Comparacion", DatasetRef: "comparison.sales_periods",
					CurrentLabel: "nov", PreviousLabel: "oct", Metrics: []string{"total_sales"}},
			},
			Narrative: []Narrative{{Kind: NarrativeHeadline, Text: "Ventas estables."}},
			Filters:   []Filter{{Type: "date_range", From: "2025-11-01", To: "2025-12-01"}},
		},
		GeneratedAt: "2025-12-23T12:00:00Z",
	}

	data, err := json.Marshal(spec)
	require.NoError(t, err)

	var decoded DashboardSpec
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, spec, decoded)
}

func TestDataPayloadRoundTrip(t *testing.T) {
	payload := DataPayload{
		KPIs: map[string]float64{"total_sales": 90000, "total_orders": 30},
		TimeSeries: []TimeSeries{{
			SeriesName: "sales_by_day",
			Points:     []TimeSeriesPoint{{Date: "2025-12-01", Value: 1000}},
		}},
		TopItems: []TopItems{{
			RankingName: "products_by_revenue",
			Metric:      "revenue",
			Items:       []TopItem{{Rank: 1, ID: "MLA1", Title: "Teclado", Value: 5000}},
		}},
		Comparison: &Comparison{
			CurrentPeriod:  ComparisonPeriod{Label: "nov", DateFrom: "2025-11-01", DateTo: "2025-12-01", KPIs: map[string]float64{"total_sales": 2000}},
			PreviousPeriod: ComparisonPeriod{Label: "oct", DateFrom: "2025-10-01", DateTo: "2025-11-01", KPIs: map[string]float64{"total_sales": 1000}},
			Deltas:         map[string]float64{"total_sales": 1000},
			DeltaPct:       map[string]float64{"total_sales": 100},
		},
		AvailableRefs: []string{"kpi.total_sales", "ts.sales_by_day", "top.products_by_revenue", "comparison.sales_periods"},
	}

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	var decoded DataPayload
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, payload, decoded)
}

func TestHasRefAndAddRef(t *testing.T) {
	p := &DataPayload{}
	assert.False(t, p.HasRef("kpi.total_sales"))
	p.AddRef("kpi.total_sales")
	p.AddRef("kpi.total_sales")
	assert.True(t, p.HasRef("kpi.total_sales"))
	assert.Len(t, p.AvailableRefs, 1)
}
