package dataagent

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insight-engine/internal/cache"
	"insight-engine/internal/catalog"
	inerrors "insight-engine/internal/common/errors"
	"insight-engine/internal/common/logger"
	"insight-engine/internal/executor"
	"insight-engine/internal/llm"
	"insight-engine/internal/models"
)

type scriptedProvider struct {
	answers []string
	calls   int
}

func (s *scriptedProvider) Name() string { return "scripted" }

func (s *scriptedProvider) Complete(context.Context, llm.Request) (string, error) {
	i := s.calls
	s.calls++
	if i < len(s.answers) {
		return s.answers[i], nil
	}
	return "", inerrors.NewLLMUnavailableError("scripted", assert.AnError)
}

func newLLMAgent(t *testing.T, answers ...string) (*Agent, sqlmock.Sqlmock, *scriptedProvider) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	mock.MatchExpectationsInOrder(false)

	cat, err := catalog.Default()
	require.NoError(t, err)

	log := logger.NewTestLogger(t)
	provider := &scriptedProvider{answers: answers}
	client := llm.NewClient(provider, nil, time.Second, log)

	exec := executor.New(db, cat, 2*time.Second, log).
		WithClock(func() time.Time { return testNow })
	agent := New(cat, exec, cache.New(time.Minute), client, 3, log).
		WithClock(func() time.Time { return testNow })
	return agent, mock, provider
}

// "dame lo de siempre" carries no domain keywords, so the model decides.
const ambiguousQuestion = "dame lo de siempre"

func TestLLMPlanSelectsQueries(t *testing.T) {
	agent, mock, provider := newLLMAgent(t,
		`{"query_ids":["kpi_sales_summary"]}`)

	mock.ExpectQuery("COALESCE\\(SUM\\(total_amount\\), 0\\) AS total_sales").WillReturnRows(salesRows())

	payload, outcomes, err := agent.Fetch(context.Background(), FetchInput{
		Question: ambiguousQuestion,
		Decision: models.RoutingDecision{Kind: models.KindDashboard, Domain: models.DomainUnknown},
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "kpi_sales_summary", outcomes[0].QueryID)
	assert.Contains(t, payload.AvailableRefs, "kpi.total_sales")
	assert.Equal(t, 1, provider.calls)
}

// Malformed output: one repair pass, then the heuristic map.
func TestLLMPlanRepairsThenFallsBack(t *testing.T) {
	agent, mock, provider := newLLMAgent(t,
		`I would run some queries for you`,
		`{"query_ids":["drop_all_tables"]}`)

	// Heuristic fallback for an unknown domain: sales KPIs + recent orders.
	mock.ExpectQuery("COALESCE\\(SUM\\(total_amount\\), 0\\) AS total_sales").WillReturnRows(salesRows())
	mock.ExpectQuery("ORDER BY date_created DESC").
		WillReturnRows(sqlmock.NewRows([]string{"id", "buyer_nickname", "item_title", "total_amount", "quantity", "status", "shipping_status", "date_created"}).
			AddRow("ORD1", "buyer", "Teclado", 3000.0, 1, "paid", "delivered", "2025-12-20"))

	payload, outcomes, err := agent.Fetch(context.Background(), FetchInput{
		Question: ambiguousQuestion,
		Decision: models.RoutingDecision{Kind: models.KindDashboard, Domain: models.DomainUnknown},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, provider.calls, "exactly one repair attempt")
	require.Len(t, outcomes, 2)
	assert.Contains(t, payload.AvailableRefs, "table.recent_orders")
}

// The repair prompt fixes the plan on the second attempt.
func TestLLMPlanRepairSucceeds(t *testing.T) {
	agent, mock, provider := newLLMAgent(t,
		"```json\nnot even close\n```",
		`{"query_ids":["ts_sales_by_day"],"params":{"limit":5}}`)

	mock.ExpectQuery("GROUP BY DATE").WillReturnRows(seriesRows())

	payload, _, err := agent.Fetch(context.Background(), FetchInput{
		Question: ambiguousQuestion,
		Decision: models.RoutingDecision{Kind: models.KindDashboard, Domain: models.DomainUnknown},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, provider.calls)
	assert.Contains(t, payload.AvailableRefs, "ts.sales_by_day")
}

// Clear keyword questions never pay for a model call even with the flag on.
func TestClearQuestionsBypassModel(t *testing.T) {
	agent, mock, provider := newLLMAgent(t)

	mock.ExpectQuery("COALESCE\\(SUM\\(total_amount\\), 0\\) AS total_sales").WillReturnRows(salesRows())
	mock.ExpectQuery("GROUP BY DATE").WillReturnRows(seriesRows())
	mock.ExpectQuery("LEFT JOIN ml_items").WillReturnRows(topRows())

	_, _, err := agent.Fetch(context.Background(), FetchInput{
		Question: "como van las ventas",
		Decision: salesDecision(),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, provider.calls)
}
