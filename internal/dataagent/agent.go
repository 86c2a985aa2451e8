// Package dataagent selects a bounded set of catalog queries for a
// question, executes them through the cache and executor, and assembles the
// typed data payload. Selection is heuristic first; the LLM selector only
// runs for ambiguous questions and only when the feature flag enables it.
package dataagent

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"insight-engine/internal/cache"
	"insight-engine/internal/catalog"
	"insight-engine/internal/classifier"
	inerrors "insight-engine/internal/common/errors"
	"insight-engine/internal/common/logger"
	"insight-engine/internal/dates"
	"insight-engine/internal/executor"
	"insight-engine/internal/llm"
	"insight-engine/internal/models"
)

// Agent is the data-fetching stage.
type Agent struct {
	cat         *catalog.Catalog
	exec        *executor.Executor
	cache       *cache.ResultCache
	llm         *llm.Client // nil disables LLM query selection
	concurrency int
	logger      logger.Logger
	clock       func() time.Time
}

func New(cat *catalog.Catalog, exec *executor.Executor, resultCache *cache.ResultCache, llmClient *llm.Client, concurrency int, log logger.Logger) *Agent {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Agent{
		cat:         cat,
		exec:        exec,
		cache:       resultCache,
		llm:         llmClient,
		concurrency: concurrency,
		logger:      log.With(map[string]interface{}{"component": "dataagent"}),
		clock:       time.Now,
	}
}

// WithClock overrides the clock used for defaults. Tests only.
func (a *Agent) WithClock(clock func() time.Time) *Agent {
	a.clock = clock
	return a
}

// FetchInput is everything the stage needs from the conversation state.
type FetchInput struct {
	Question  string
	Decision  models.RoutingDecision
	DateRange dates.Range
	PrevRange dates.Range
	// Exclude lists query ids dropped by the reflection step after they
	// failed on a previous attempt.
	Exclude []string
}

// QueryOutcome records one query's fate for the agent step trace.
type QueryOutcome struct {
	QueryID    string `json:"query_id"`
	Status     string `json:"status"` // success, empty, error
	Error      string `json:"error,omitempty"`
	FromCache  bool   `json:"from_cache,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// Fetch runs the stage. Partial success is fine; the stage only fails when
// every selected query failed (DATA_UNAVAILABLE) or the request was
// cancelled.
func (a *Agent) Fetch(ctx context.Context, in FetchInput) (*models.DataPayload, []QueryOutcome, error) {
	plan := a.plan(ctx, in)
	if len(plan.QueryIDs) == 0 {
		return nil, nil, inerrors.NewDataUnavailableError("no queries left to execute")
	}

	baseParams := a.baseParams(in, plan)

	type slot struct {
		frag    *executor.Fragment
		outcome QueryOutcome
	}
	slots := make([]slot, len(plan.QueryIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	var mu sync.Mutex

	for i, id := range plan.QueryIDs {
		i, id := i, id
		g.Go(func() error {
			start := time.Now()
			frag, fromCache, err := a.runOne(gctx, id, baseParams)
			outcome := QueryOutcome{
				QueryID:    id,
				FromCache:  fromCache,
				DurationMS: time.Since(start).Milliseconds(),
			}
			switch {
			case err == nil:
				outcome.Status = "success"
			case inerrors.CodeOf(err) == inerrors.ErrCodeEmptyResult:
				outcome.Status = "empty"
				outcome.Error = err.Error()
			default:
				outcome.Status = "error"
				outcome.Error = err.Error()
				a.logger.Warn("query failed", map[string]interface{}{
					"queryId": id,
					"error":   err.Error(),
				})
			}
			mu.Lock()
			slots[i] = slot{frag: frag, outcome: outcome}
			mu.Unlock()
			// Errors are collected per query, never propagated through the
			// group: one failing query must not cancel its siblings.
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return nil, nil, inerrors.NewRequestCancelledError("data fetch aborted")
	}

	outcomes := make([]QueryOutcome, len(slots))
	var fragments []*executor.Fragment
	for i, s := range slots {
		outcomes[i] = s.outcome
		if s.frag != nil && !s.frag.Empty() {
			fragments = append(fragments, s.frag)
		}
	}

	if len(fragments) == 0 {
		var failed []string
		for _, o := range outcomes {
			failed = append(failed, fmt.Sprintf("%s(%s)", o.QueryID, o.Status))
		}
		return nil, outcomes, inerrors.NewDataUnavailableError(strings.Join(failed, ", "))
	}

	payload := a.assemble(fragments, in)
	return payload, outcomes, nil
}

// plan picks the query set. Clear domain keywords without back-references
// take the deterministic path; otherwise the LLM selector runs when
// enabled, falling back to heuristics when it fails or is off.
func (a *Agent) plan(ctx context.Context, in FetchInput) Plan {
	normalized := classifier.Normalize(in.Question)
	clearDomain := classifier.DetectDomain(normalized) != models.DomainUnknown

	var plan Plan
	if clearDomain && !hasBackReference(in.Question) {
		plan = Plan{QueryIDs: selectHeuristic(in.Question, in.Decision.Domain)}
	} else if a.llm != nil {
		plan = a.selectWithLLM(ctx, in.Question, in.Decision)
	} else {
		plan = Plan{QueryIDs: selectHeuristic(in.Question, in.Decision.Domain)}
	}

	plan.QueryIDs = capPlan(filterExcluded(plan.QueryIDs, in.Exclude))
	a.logger.Info("query plan", map[string]interface{}{
		"queryIds": plan.QueryIDs,
		"excluded": in.Exclude,
	})
	return plan
}

func filterExcluded(ids, exclude []string) []string {
	if len(exclude) == 0 {
		return ids
	}
	out := ids[:0:0]
	for _, id := range ids {
		skip := false
		for _, ex := range exclude {
			if id == ex {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, id)
		}
	}
	return out
}

// baseParams merges the extracted date range and any plan params.
func (a *Agent) baseParams(in FetchInput, plan Plan) map[string]interface{} {
	params := make(map[string]interface{})
	if !in.DateRange.IsZero() {
		params["date_from"] = in.DateRange.From
		params["date_to"] = in.DateRange.To
	}
	if !in.PrevRange.IsZero() {
		params["prev_date_from"] = in.PrevRange.From
		params["prev_date_to"] = in.PrevRange.To
	}
	for k, v := range plan.Params {
		if v != nil {
			params[k] = v
		}
	}
	return params
}

// runOne executes a single query through the cache. Invalid params drop the
// query (the rest of the batch continues).
func (a *Agent) runOne(ctx context.Context, id string, baseParams map[string]interface{}) (*executor.Fragment, bool, error) {
	key, err := a.exec.Key(id, baseParams)
	if err != nil {
		return nil, false, err
	}
	return a.cache.GetOrLoad(ctx, key, func(loadCtx context.Context) (*executor.Fragment, error) {
		return a.exec.Execute(loadCtx, id, baseParams)
	})
}

func (a *Agent) canonicalize(entry *catalog.Entry, params map[string]interface{}) (map[string]interface{}, []string, error) {
	return executor.Canonicalize(entry, params, a.clock())
}

// assemble folds fragments into the payload and computes available refs.
// KPI fragments additionally expand one ref per metric so the dashboard can
// bind individual cards (kpi.total_sales, ...).
func (a *Agent) assemble(fragments []*executor.Fragment, in FetchInput) *models.DataPayload {
	payload := &models.DataPayload{}

	for _, frag := range fragments {
		payload.DatasetsMeta = append(payload.DatasetsMeta, frag.Meta)

		switch frag.Kind {
		case catalog.KindKPI:
			if payload.KPIs == nil {
				payload.KPIs = make(map[string]float64)
			}
			for k, v := range frag.KPIs {
				payload.KPIs[k] = v
				payload.AddRef("kpi." + k)
			}
			payload.AddRef(frag.Ref)

		case catalog.KindTimeSeries:
			payload.TimeSeries = append(payload.TimeSeries, *frag.Series)
			payload.AddRef(frag.Ref)

		case catalog.KindTopItems:
			payload.TopItems = append(payload.TopItems, *frag.Top)
			payload.AddRef(frag.Ref)

		case catalog.KindTable:
			payload.Tables = append(payload.Tables, *frag.Table)
			payload.AddRef(frag.Ref)

		case catalog.KindComparison:
			payload.Comparison = a.buildComparison(frag, in)
			payload.AddRef(frag.Ref)
		}
	}
	return payload
}

func (a *Agent) buildComparison(frag *executor.Fragment, in FetchInput) *models.Comparison {
	cur := in.DateRange
	prev := in.PrevRange

	cmp := &models.Comparison{
		CurrentPeriod: models.ComparisonPeriod{
			Label:    periodLabel("actual", cur),
			DateFrom: cur.From,
			DateTo:   cur.To,
			KPIs:     frag.Comparison.Current,
		},
		PreviousPeriod: models.ComparisonPeriod{
			Label:    periodLabel("anterior", prev),
			DateFrom: prev.From,
			DateTo:   prev.To,
			KPIs:     frag.Comparison.Previous,
		},
		Deltas:   make(map[string]float64),
		DeltaPct: make(map[string]float64),
	}

	for metric, current := range frag.Comparison.Current {
		previous, ok := frag.Comparison.Previous[metric]
		if !ok {
			continue
		}
		cmp.Deltas[metric] = current - previous
		if previous == 0 {
			cmp.DeltaPct[metric] = 0
			continue
		}
		cmp.DeltaPct[metric] = round1((current - previous) / previous * 100)
	}
	return cmp
}

func periodLabel(fallback string, r dates.Range) string {
	if r.IsZero() {
		return fallback
	}
	return fmt.Sprintf("%s a %s", r.From, r.To)
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
