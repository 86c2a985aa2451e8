package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insight-engine/internal/classifier"
	inerrors "insight-engine/internal/common/errors"
	"insight-engine/internal/common/logger"
	"insight-engine/internal/common/observability"
	"insight-engine/internal/dataagent"
	"insight-engine/internal/dates"
	"insight-engine/internal/models"
	"insight-engine/internal/stream"
)

// ==========================
// Stage fakes
// ==========================

type fakeClassifier struct {
	decision models.RoutingDecision
}

func (f *fakeClassifier) Classify(context.Context, classifier.Input) models.RoutingDecision {
	return f.decision
}

type fakeFetcher struct {
	calls    int
	failures int // fail this many calls before succeeding
	payload  *models.DataPayload
	inputs   []dataagent.FetchInput
}

func (f *fakeFetcher) Fetch(_ context.Context, in dataagent.FetchInput) (*models.DataPayload, []dataagent.QueryOutcome, error) {
	f.calls++
	f.inputs = append(f.inputs, in)
	outcomes := []dataagent.QueryOutcome{{QueryID: "kpi_sales_summary", Status: "success"}}
	if f.calls <= f.failures {
		outcomes[0].Status = "error"
		outcomes[0].Error = "boom"
		return nil, outcomes, inerrors.NewDataUnavailableError("boom")
	}
	return f.payload, outcomes, nil
}

type fakeBuilder struct {
	failFirst bool
	failAll   bool
	calls     int
}

func (f *fakeBuilder) Build(_ context.Context, _ string, payload *models.DataPayload, _ dates.Range, reduced bool) (*models.DashboardSpec, error) {
	f.calls++
	if f.failAll || (f.failFirst && f.calls == 1) {
		return nil, inerrors.NewPresentationError(assertAnError)
	}
	title := "Dashboard de Ventas"
	if reduced {
		title = "Dashboard Reducido"
	}
	return &models.DashboardSpec{
		Title:      title,
		Conclusion: "Ventas totales de $90.000 con 30 ordenes en el periodo.",
		Slots:      models.Slots{Series: []models.KPICard{}, Charts: []models.Chart{}, Narrative: []models.Narrative{}, Filters: []models.Filter{}},
	}, nil
}

var assertAnError = assert.AnError

func testPayload() *models.DataPayload {
	p := &models.DataPayload{KPIs: map[string]float64{"total_sales": 90000}}
	p.AddRef("kpi.total_sales")
	return p
}

func newTestOrchestrator(t *testing.T, c Classifier, f DataFetcher, b SpecBuilder) *Orchestrator {
	return New(c, f, b, nil, observability.New("test"), logger.NewTestLogger(t))
}

func run(t *testing.T, o *Orchestrator, state *State) *stream.Collector {
	collector := stream.NewCollector()
	o.Run(context.Background(), state, collector)
	return collector
}

func eventTypes(c *stream.Collector) []string {
	events := c.Events()
	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}

func indexOf(types []string, target string) int {
	for i, tp := range types {
		if tp == target {
			return i
		}
	}
	return -1
}

func countOf(types []string, target string) int {
	n := 0
	for _, tp := range types {
		if tp == target {
			n++
		}
	}
	return n
}

// ==========================
// Scenarios
// ==========================

func TestConversationalShortCircuits(t *testing.T) {
	o := newTestOrchestrator(t,
		&fakeClassifier{decision: models.RoutingDecision{
			Kind: models.KindConversational, DirectAnswer: "Hola! Soy tu asistente.",
		}},
		&fakeFetcher{payload: testPayload()},
		&fakeBuilder{},
	)
	state := NewState("hola", "thread-1", "", "trace1", 3)
	c := run(t, o, state)

	types := eventTypes(c)
	assert.Equal(t, 1, countOf(types, "start"))
	assert.Equal(t, 1, countOf(types, "finish"))
	assert.Equal(t, 1, countOf(types, "done"))
	assert.Equal(t, -1, indexOf(types, "data-dashboard"))
	assert.Equal(t, -1, indexOf(types, "data-payload"))
	assert.Equal(t, "complete", c.FinishReason())

	delta := c.Find("text-delta")
	require.NotNil(t, delta)
	assert.Equal(t, "Hola! Soy tu asistente.", delta.Data)
}

func TestDashboardHappyPathOrdering(t *testing.T) {
	o := newTestOrchestrator(t,
		&fakeClassifier{decision: models.RoutingDecision{
			Kind: models.KindDashboard, Domain: models.DomainSales,
			NeedsData: true, NeedsDashboard: true,
		}},
		&fakeFetcher{payload: testPayload()},
		&fakeBuilder{},
	)
	state := NewState("como van las ventas", "thread-1", "", "trace2", 3)
	c := run(t, o, state)

	types := eventTypes(c)
	assert.Equal(t, 0, indexOf(types, "start"))
	assert.Equal(t, 1, countOf(types, "start"))
	assert.Equal(t, 1, countOf(types, "finish"))
	assert.Equal(t, 1, countOf(types, "done"))

	dash := indexOf(types, "data-dashboard")
	payload := indexOf(types, "data-payload")
	finish := indexOf(types, "finish")
	done := indexOf(types, "done")
	require.GreaterOrEqual(t, dash, 0)
	require.GreaterOrEqual(t, payload, 0)
	// The client mounts the dashboard before the data binds into it.
	assert.Less(t, dash, payload)
	assert.Less(t, payload, finish)
	assert.Equal(t, len(types)-1, done)

	assert.NotNil(t, state.Spec)
	assert.NotNil(t, state.Payload)
	assert.Equal(t, "complete", c.FinishReason())
}

func TestDataOnlySkipsDashboard(t *testing.T) {
	o := newTestOrchestrator(t,
		&fakeClassifier{decision: models.RoutingDecision{
			Kind: models.KindDataOnly, Domain: models.DomainSales, NeedsData: true,
		}},
		&fakeFetcher{payload: testPayload()},
		&fakeBuilder{},
	)
	state := NewState("cuantas ordenes", "thread-1", "", "trace3", 3)
	c := run(t, o, state)

	types := eventTypes(c)
	assert.Equal(t, -1, indexOf(types, "data-dashboard"))
	assert.GreaterOrEqual(t, indexOf(types, "data-payload"), 0)
	assert.Equal(t, "complete", c.FinishReason())
}

func TestFetchRetriesThroughReflection(t *testing.T) {
	fetcher := &fakeFetcher{failures: 2, payload: testPayload()}
	o := newTestOrchestrator(t,
		&fakeClassifier{decision: models.RoutingDecision{
			Kind: models.KindDashboard, NeedsData: true, NeedsDashboard: true,
		}},
		fetcher,
		&fakeBuilder{},
	)
	state := NewState("ventas", "thread-1", "", "trace4", 3)
	state.DateRange = dates.Range{From: "2025-12-01", To: "2025-12-23"}
	c := run(t, o, state)

	assert.Equal(t, 3, fetcher.calls)
	assert.Equal(t, "complete", c.FinishReason())
	assert.LessOrEqual(t, state.RetryCount, state.MaxRetries)

	// Reflection adjusted the inputs: the failing id is excluded and the
	// date range widened by one day per retry.
	last := fetcher.inputs[len(fetcher.inputs)-1]
	assert.Contains(t, last.Exclude, "kpi_sales_summary")
	assert.Equal(t, "2025-11-29", last.DateRange.From)
}

func TestFetchExhaustionFinishesWithError(t *testing.T) {
	fetcher := &fakeFetcher{failures: 10, payload: testPayload()}
	o := newTestOrchestrator(t,
		&fakeClassifier{decision: models.RoutingDecision{
			Kind: models.KindDashboard, NeedsData: true, NeedsDashboard: true,
		}},
		fetcher,
		&fakeBuilder{},
	)
	state := NewState("ventas", "thread-1", "", "trace5", 3)
	c := run(t, o, state)

	assert.Equal(t, "error", c.FinishReason())
	assert.Equal(t, 4, fetcher.calls) // first try + max_retries
	assert.LessOrEqual(t, state.RetryCount, state.MaxRetries)

	// At least one agent step reports the failure, and nothing structural
	// was emitted.
	types := eventTypes(c)
	assert.Equal(t, -1, indexOf(types, "data-dashboard"))
	assert.Equal(t, -1, indexOf(types, "data-payload"))

	var sawError bool
	for _, e := range c.Events() {
		if e.Type == "data-agent_step" {
			if step, ok := e.Data.(AgentStep); ok && step.Status == StepError {
				sawError = true
			}
		}
	}
	assert.True(t, sawError)
	assert.Equal(t, 1, countOf(types, "done"))
}

func TestPresentFailureRetriesReduced(t *testing.T) {
	builder := &fakeBuilder{failFirst: true}
	o := newTestOrchestrator(t,
		&fakeClassifier{decision: models.RoutingDecision{
			Kind: models.KindDashboard, NeedsData: true, NeedsDashboard: true,
		}},
		&fakeFetcher{payload: testPayload()},
		builder,
	)
	state := NewState("ventas", "thread-1", "", "trace6", 3)
	c := run(t, o, state)

	assert.Equal(t, 2, builder.calls)
	assert.Equal(t, "complete", c.FinishReason())
	require.NotNil(t, state.Spec)
	assert.Equal(t, "Dashboard Reducido", state.Spec.Title)
}

func TestPresentTotalFailureEmitsPayloadOnly(t *testing.T) {
	o := newTestOrchestrator(t,
		&fakeClassifier{decision: models.RoutingDecision{
			Kind: models.KindDashboard, NeedsData: true, NeedsDashboard: true,
		}},
		&fakeFetcher{payload: testPayload()},
		&fakeBuilder{failAll: true},
	)
	state := NewState("ventas", "thread-1", "", "trace7", 3)
	c := run(t, o, state)

	types := eventTypes(c)
	assert.Equal(t, -1, indexOf(types, "data-dashboard"))
	assert.GreaterOrEqual(t, indexOf(types, "data-payload"), 0)
	assert.Equal(t, "complete", c.FinishReason())
	assert.Nil(t, state.Spec)
}

func TestCancelledContextFinishesCancelled(t *testing.T) {
	o := newTestOrchestrator(t,
		&fakeClassifier{decision: models.RoutingDecision{
			Kind: models.KindDashboard, NeedsData: true, NeedsDashboard: true,
		}},
		&fakeFetcher{payload: testPayload()},
		&fakeBuilder{},
	)
	state := NewState("ventas", "thread-1", "", "trace8", 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	collector := stream.NewCollector()
	o.Run(ctx, state, collector)

	assert.Equal(t, "cancelled", collector.FinishReason())
	types := eventTypes(collector)
	assert.Equal(t, -1, indexOf(types, "data-dashboard"))
	assert.Equal(t, 1, countOf(types, "done"))
}

func TestDeadlineFinishesWithError(t *testing.T) {
	o := newTestOrchestrator(t,
		&fakeClassifier{decision: models.RoutingDecision{
			Kind: models.KindDashboard, NeedsData: true, NeedsDashboard: true,
		}},
		&fakeFetcher{payload: testPayload()},
		&fakeBuilder{},
	)
	state := NewState("ventas", "thread-1", "", "trace9", 3)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	collector := stream.NewCollector()
	o.Run(ctx, state, collector)

	assert.Equal(t, "error", collector.FinishReason())

	// Nothing structural may appear after finish.
	types := eventTypes(collector)
	finish := indexOf(types, "finish")
	for i, tp := range types {
		if tp == "data-dashboard" || tp == "data-payload" {
			assert.Less(t, i, finish)
		}
	}
}
