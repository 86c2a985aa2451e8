package dataagent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insight-engine/internal/cache"
	"insight-engine/internal/catalog"
	inerrors "insight-engine/internal/common/errors"
	"insight-engine/internal/common/logger"
	"insight-engine/internal/dates"
	"insight-engine/internal/executor"
	"insight-engine/internal/models"
)

var testNow = time.Date(2025, 12, 23, 12, 0, 0, 0, time.UTC)

func newTestAgent(t *testing.T) (*Agent, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(false))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	mock.MatchExpectationsInOrder(false)

	cat, err := catalog.Default()
	require.NoError(t, err)

	log := logger.NewTestLogger(t)
	exec := executor.New(db, cat, 2*time.Second, log).
		WithClock(func() time.Time { return testNow })
	agent := New(cat, exec, cache.New(time.Minute), nil, 3, log).
		WithClock(func() time.Time { return testNow })
	return agent, mock
}

func salesRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"total_sales", "total_orders", "avg_order_value", "total_units"}).
		AddRow(90000.0, 30, 3000.0, 75)
}

func seriesRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"date", "value", "order_count"}).
		AddRow("2025-12-01", 1000.0, 2).
		AddRow("2025-12-02", 1500.0, 3)
}

func topRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"rank", "id", "title", "value", "units_sold"}).
		AddRow(1, "MLA1", "Teclado", 5000.0, 12)
}

func salesDecision() models.RoutingDecision {
	return models.RoutingDecision{
		Kind: models.KindDashboard, Domain: models.DomainSales,
		NeedsData: true, NeedsDashboard: true,
	}
}

// ==========================
// Selection
// ==========================

func TestHeuristicSelectionSales(t *testing.T) {
	ids := selectHeuristic("como van las ventas", models.DomainSales)
	assert.Equal(t, []string{"kpi_sales_summary", "ts_sales_by_day", "top_products_by_revenue"}, ids)
}

func TestHeuristicSelectionInventorySubstringTrap(t *testing.T) {
	ids := selectHeuristic("como esta el inventario", models.DomainInventory)
	assert.Contains(t, ids, "kpi_inventory_summary")
	assert.Contains(t, ids, "stock_reorder_analysis")
	assert.NotContains(t, ids, "kpi_sales_summary")
}

func TestHeuristicSelectionLowStock(t *testing.T) {
	ids := selectHeuristic("productos con stock bajo", models.DomainInventory)
	assert.Contains(t, ids, "products_low_stock")
	assert.Contains(t, ids, "stock_reorder_analysis")
}

func TestHeuristicSelectionComparison(t *testing.T) {
	ids := selectHeuristic("comparame noviembre vs octubre", models.DomainSales)
	assert.Contains(t, ids, "sales_period_comparison")
}

func TestHeuristicSelectionAgent(t *testing.T) {
	ids := selectHeuristic("como va el agente", models.DomainConversations)
	assert.Contains(t, ids, "ai_interactions_summary")
}

func TestHeuristicSelectionTopProducts(t *testing.T) {
	ids := selectHeuristic("cual fue el producto mas vendido", models.DomainSales)
	assert.Equal(t, []string{"kpi_sales_summary", "top_products_by_revenue"}, ids)
}

func TestHeuristicSelectionDefault(t *testing.T) {
	ids := selectHeuristic("dame un resumen general", models.DomainUnknown)
	assert.Equal(t, []string{"kpi_sales_summary", "recent_orders"}, ids)
}

func TestPlanNeverExceedsCap(t *testing.T) {
	assert.LessOrEqual(t, len(capPlan([]string{"a", "b", "c", "d", "e"})), MaxQueriesPerRequest)
}

// ==========================
// Execution
// ==========================

func TestFetchAssemblesSalesPayload(t *testing.T) {
	agent, mock := newTestAgent(t)

	mock.ExpectQuery("COALESCE\\(SUM\\(total_amount\\), 0\\) AS total_sales").WillReturnRows(salesRows())
	mock.ExpectQuery("GROUP BY DATE").WillReturnRows(seriesRows())
	mock.ExpectQuery("LEFT JOIN ml_items").WillReturnRows(topRows())

	payload, outcomes, err := agent.Fetch(context.Background(), FetchInput{
		Question: "como van las ventas",
		Decision: salesDecision(),
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		assert.Equal(t, "success", o.Status)
	}

	assert.InDelta(t, 90000.0, payload.KPIs["total_sales"], 0.001)
	assert.Contains(t, payload.AvailableRefs, "kpi.total_sales")
	assert.Contains(t, payload.AvailableRefs, "ts.sales_by_day")
	assert.Contains(t, payload.AvailableRefs, "top.products_by_revenue")
	require.Len(t, payload.TimeSeries, 1)
	require.Len(t, payload.TopItems, 1)
}

// Partial failure: the surviving queries still produce a payload and the
// stage succeeds.
func TestFetchPartialFailure(t *testing.T) {
	agent, mock := newTestAgent(t)

	mock.ExpectQuery("COALESCE\\(SUM\\(total_amount\\), 0\\) AS total_sales").WillReturnRows(salesRows())
	mock.ExpectQuery("GROUP BY DATE").WillReturnError(errors.New("relation missing"))
	mock.ExpectQuery("LEFT JOIN ml_items").WillReturnRows(topRows())

	payload, outcomes, err := agent.Fetch(context.Background(), FetchInput{
		Question: "como van las ventas",
		Decision: salesDecision(),
	})
	require.NoError(t, err)

	statuses := map[string]string{}
	for _, o := range outcomes {
		statuses[o.QueryID] = o.Status
	}
	assert.Equal(t, "error", statuses["ts_sales_by_day"])
	assert.Equal(t, "success", statuses["kpi_sales_summary"])

	assert.NotContains(t, payload.AvailableRefs, "ts.sales_by_day")
	assert.Contains(t, payload.AvailableRefs, "kpi.total_sales")
}

func TestFetchAllFailedIsDataUnavailable(t *testing.T) {
	agent, mock := newTestAgent(t)

	dbErr := errors.New("relation missing")
	mock.ExpectQuery("COALESCE\\(SUM\\(total_amount\\), 0\\) AS total_sales").WillReturnError(dbErr)
	mock.ExpectQuery("GROUP BY DATE").WillReturnError(dbErr)
	mock.ExpectQuery("LEFT JOIN ml_items").WillReturnError(dbErr)

	_, outcomes, err := agent.Fetch(context.Background(), FetchInput{
		Question: "como van las ventas",
		Decision: salesDecision(),
	})
	require.Error(t, err)
	assert.Equal(t, inerrors.ErrCodeDataUnavailable, inerrors.CodeOf(err))
	require.Len(t, outcomes, 3)
}

func TestFetchUsesCacheOnSecondCall(t *testing.T) {
	agent, mock := newTestAgent(t)

	// The database sees each query exactly once.
	mock.ExpectQuery("COALESCE\\(SUM\\(total_amount\\), 0\\) AS total_sales").WillReturnRows(salesRows())
	mock.ExpectQuery("GROUP BY DATE").WillReturnRows(seriesRows())
	mock.ExpectQuery("LEFT JOIN ml_items").WillReturnRows(topRows())

	in := FetchInput{Question: "como van las ventas", Decision: salesDecision()}

	_, _, err := agent.Fetch(context.Background(), in)
	require.NoError(t, err)

	_, outcomes, err := agent.Fetch(context.Background(), in)
	require.NoError(t, err)
	for _, o := range outcomes {
		assert.True(t, o.FromCache, "query %s should come from cache", o.QueryID)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchExcludesReflectedQueries(t *testing.T) {
	agent, mock := newTestAgent(t)

	mock.ExpectQuery("COALESCE\\(SUM\\(total_amount\\), 0\\) AS total_sales").WillReturnRows(salesRows())
	mock.ExpectQuery("LEFT JOIN ml_items").WillReturnRows(topRows())

	payload, outcomes, err := agent.Fetch(context.Background(), FetchInput{
		Question: "como van las ventas",
		Decision: salesDecision(),
		Exclude:  []string{"ts_sales_by_day"},
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.NotContains(t, payload.AvailableRefs, "ts.sales_by_day")
}

func TestFetchComparisonComputesDeltas(t *testing.T) {
	agent, mock := newTestAgent(t)

	cmpRows := sqlmock.NewRows([]string{"period", "total_sales", "total_orders", "avg_order_value", "total_units"}).
		AddRow("current", 2000.0, 10, 200.0, 25).
		AddRow("previous", 1000.0, 8, 125.0, 0)
	mock.ExpectQuery("UNION ALL").WillReturnRows(cmpRows)
	mock.ExpectQuery("COALESCE\\(SUM\\(total_amount\\), 0\\) AS total_sales").WillReturnRows(salesRows())
	mock.ExpectQuery("GROUP BY DATE").WillReturnRows(seriesRows())

	payload, _, err := agent.Fetch(context.Background(), FetchInput{
		Question:  "comparame noviembre vs octubre",
		Decision:  salesDecision(),
		DateRange: dates.Range{From: "2025-11-01", To: "2025-12-01"},
		PrevRange: dates.Range{From: "2025-10-01", To: "2025-11-01"},
	})
	require.NoError(t, err)
	require.NotNil(t, payload.Comparison)

	assert.InDelta(t, 1000.0, payload.Comparison.Deltas["total_sales"], 0.001)
	assert.InDelta(t, 100.0, payload.Comparison.DeltaPct["total_sales"], 0.001)
	// previous = 0 means the delta percentage is defined as 0.
	assert.InDelta(t, 0.0, payload.Comparison.DeltaPct["total_units"], 0.001)
	assert.Equal(t, "2025-11-01", payload.Comparison.CurrentPeriod.DateFrom)
	assert.Contains(t, payload.AvailableRefs, "comparison.sales_periods")
}
