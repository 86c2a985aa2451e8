// Package pipeline is the per-request state machine linking classifier,
// data agent and presentation builder, with a reflection step between a
// failing stage and its retry. Every terminal path, including panics and
// deadline hits, ends the stream with exactly one finish event.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"insight-engine/internal/classifier"
	inerrors "insight-engine/internal/common/errors"
	"insight-engine/internal/common/logger"
	"insight-engine/internal/common/metrics"
	"insight-engine/internal/common/observability"
	"insight-engine/internal/dataagent"
	"insight-engine/internal/dates"
	"insight-engine/internal/memory"
	"insight-engine/internal/models"
	"insight-engine/internal/presenter"
	"insight-engine/internal/stream"
)

// Classifier is what the orchestrator needs from the intent stage.
type Classifier interface {
	Classify(ctx context.Context, in classifier.Input) models.RoutingDecision
}

// DataFetcher is what the orchestrator needs from the data stage.
type DataFetcher interface {
	Fetch(ctx context.Context, in dataagent.FetchInput) (*models.DataPayload, []dataagent.QueryOutcome, error)
}

// SpecBuilder is what the orchestrator needs from the presentation stage.
type SpecBuilder interface {
	Build(ctx context.Context, question string, payload *models.DataPayload, dateRange dates.Range, reduced bool) (*models.DashboardSpec, error)
}

// Orchestrator drives one request through the stages.
type Orchestrator struct {
	classifier Classifier
	agent      DataFetcher
	builder    SpecBuilder
	memory     *memory.Store
	obs        *observability.Observability
	logger     logger.Logger
}

func New(c Classifier, a DataFetcher, b SpecBuilder, mem *memory.Store, obs *observability.Observability, log logger.Logger) *Orchestrator {
	return &Orchestrator{
		classifier: c,
		agent:      a,
		builder:    b,
		memory:     mem,
		obs:        obs,
		logger:     log.With(map[string]interface{}{"component": "pipeline"}),
	}
}

// Run executes the pipeline, emitting events to sink as it goes. The
// context carries the whole-request deadline; cancellation is observed at
// stage boundaries and stops further work.
func (o *Orchestrator) Run(ctx context.Context, state *State, sink stream.Sink) {
	log := o.logger.With(map[string]interface{}{"traceId": state.TraceID})

	defer func() {
		if r := recover(); r != nil {
			log.Error("pipeline panic", map[string]interface{}{"panic": fmt.Sprintf("%v", r)})
			sink.TextEnd(state.TextID)
			sink.Finish(stream.FinishError, state.MessageID)
			sink.Done()
		}
	}()

	sink.Start(state.MessageID)
	sink.Data("trace", map[string]interface{}{
		"trace_id":   state.TraceID,
		"request_id": state.ThreadID,
		"ts":         time.Now().UTC().Format(time.RFC3339),
	})
	sink.TextStart(state.TextID)

	o.emitStep(state, sink, newStep("date_extraction", StepProgress,
		"Periodo detectado: "+dates.FormatContext(state.DateRange),
		map[string]interface{}{"date_from": state.DateRange.From, "date_to": state.DateRange.To}))

	// ---- classify ----
	decision, ok := o.classify(ctx, state, sink)
	if !ok {
		return
	}
	state.Decision = &decision

	if decision.Kind == models.KindConversational || decision.Kind == models.KindClarification {
		o.finishWithText(state, sink, decision.DirectAnswer, stream.FinishComplete)
		return
	}

	// ---- fetch_data (with reflection retries) ----
	if !o.fetchData(ctx, state, sink) {
		return
	}

	// ---- present ----
	if decision.Kind == models.KindDashboard {
		o.present(ctx, state, sink)
		return
	}

	// data_only: payload plus a short conclusion, no dashboard.
	conclusion := presenter.SmartConclusion(state.Payload)
	sink.TextDelta(state.TextID, conclusion)
	o.rememberAssistant(state, conclusion)
	sink.Data("payload", state.Payload)
	sink.Data("meta", o.meta(state))
	sink.TextEnd(state.TextID)
	sink.Finish(stream.FinishComplete, state.MessageID)
	sink.Done()
}

func (o *Orchestrator) classify(ctx context.Context, state *State, sink stream.Sink) (models.RoutingDecision, bool) {
	start := time.Now()
	o.emitStep(state, sink, newStep("classify", StepStart, "Clasificando consulta...", nil))

	decision := o.classifier.Classify(ctx, classifier.Input{
		Question:             state.Question,
		ChatContext:          state.ChatContext,
		PrevWasClarification: state.PrevWasClarification,
	})

	if aborted, reason := o.checkDeadline(ctx); aborted {
		o.abort(state, sink, reason)
		return decision, false
	}

	o.obs.RecordStageDuration(ctx, "classify", time.Since(start))
	o.obs.RecordStage(ctx, "classify", StepDone)
	metrics.PipelineStageTotal.WithLabelValues("classify", StepDone).Inc()
	o.emitStep(state, sink, newStep("classify", StepDone,
		fmt.Sprintf("Intencion: %s (%s)", decision.Kind, decision.Domain),
		map[string]interface{}{
			"kind":       string(decision.Kind),
			"domain":     string(decision.Domain),
			"confidence": decision.Confidence,
			"rationale":  decision.Rationale,
		}))
	return decision, true
}

// fetchData runs the data stage with the reflect/retry loop. Returns false
// when the pipeline terminated (stream already finished).
func (o *Orchestrator) fetchData(ctx context.Context, state *State, sink stream.Sink) bool {
	state.RetryCount = 0

	for {
		if aborted, reason := o.checkDeadline(ctx); aborted {
			o.abort(state, sink, reason)
			return false
		}

		start := time.Now()
		o.emitStep(state, sink, newStep("fetch_data", StepStart, "Ejecutando consultas...", nil))

		payload, outcomes, err := o.agent.Fetch(ctx, dataagent.FetchInput{
			Question:  state.Question,
			Decision:  *state.Decision,
			DateRange: state.DateRange,
			PrevRange: state.PrevRange,
			Exclude:   state.ExcludedQueries,
		})
		o.obs.RecordStageDuration(ctx, "fetch_data", time.Since(start))

		if err == nil {
			state.Payload = payload
			state.Err = nil
			o.obs.RecordStage(ctx, "fetch_data", StepDone)
			metrics.PipelineStageTotal.WithLabelValues("fetch_data", StepDone).Inc()
			o.emitStep(state, sink, newStep("fetch_data", StepDone,
				fmt.Sprintf("%d refs disponibles", len(payload.AvailableRefs)),
				map[string]interface{}{"outcomes": outcomes, "refs": payload.AvailableRefs}))
			return true
		}

		state.Err = err
		o.obs.RecordStage(ctx, "fetch_data", StepError)
		metrics.PipelineStageTotal.WithLabelValues("fetch_data", StepError).Inc()
		o.emitStep(state, sink, newStep("fetch_data", StepError, err.Error(),
			map[string]interface{}{"outcomes": outcomes}))

		if inerrors.CodeOf(err) == inerrors.ErrCodeRequestCancelled {
			o.abort(state, sink, stream.FinishCancelled)
			return false
		}

		if state.RetryCount >= state.MaxRetries {
			o.finishWithText(state, sink,
				"No pude obtener los datos en este momento. Intenta nuevamente en unos minutos.",
				stream.FinishError)
			return false
		}

		o.reflect(state, sink, outcomes)
	}
}

// reflect records the failure and adjusts the next attempt: failing query
// ids are dropped and the date range widens by one day.
func (o *Orchestrator) reflect(state *State, sink stream.Sink, outcomes []dataagent.QueryOutcome) {
	state.RetryCount++

	for _, outcome := range outcomes {
		if outcome.Status == "error" {
			state.ExcludedQueries = append(state.ExcludedQueries, outcome.QueryID)
		}
	}

	if !state.DateRange.IsZero() {
		if from, err := time.Parse("2006-01-02", state.DateRange.From); err == nil {
			state.DateRange.From = from.AddDate(0, 0, -1).Format("2006-01-02")
		}
	}

	detail := map[string]interface{}{
		"retry":    state.RetryCount,
		"excluded": state.ExcludedQueries,
	}
	if state.Err != nil {
		detail["error"] = state.Err.Error()
	}
	metrics.PipelineStageTotal.WithLabelValues("reflect", StepDone).Inc()
	o.emitStep(state, sink, newStep("reflect", StepProgress,
		fmt.Sprintf("Reintento %d/%d con estrategia ajustada", state.RetryCount, state.MaxRetries),
		detail))
}

func (o *Orchestrator) present(ctx context.Context, state *State, sink stream.Sink) {
	if aborted, reason := o.checkDeadline(ctx); aborted {
		o.abort(state, sink, reason)
		return
	}

	start := time.Now()
	o.emitStep(state, sink, newStep("present", StepStart, "Generando dashboard...", nil))

	spec, err := o.builder.Build(ctx, state.Question, state.Payload, state.DateRange, false)
	if err != nil {
		// One retry with a reduced slot set.
		o.obs.RecordStage(ctx, "present", StepError)
		metrics.PipelineStageTotal.WithLabelValues("present", StepError).Inc()
		o.emitStep(state, sink, newStep("present", StepError, err.Error(), nil))
		o.emitStep(state, sink, newStep("reflect", StepProgress, "Reintentando con slots reducidos", nil))
		spec, err = o.builder.Build(ctx, state.Question, state.Payload, state.DateRange, true)
	}
	o.obs.RecordStageDuration(ctx, "present", time.Since(start))

	if aborted, reason := o.checkDeadline(ctx); aborted {
		o.abort(state, sink, reason)
		return
	}

	if err != nil {
		// Partial result: the payload is still worth emitting.
		metrics.PipelineStageTotal.WithLabelValues("present", StepError).Inc()
		o.emitStep(state, sink, newStep("present", StepError, err.Error(), nil))
		conclusion := presenter.SmartConclusion(state.Payload)
		sink.TextDelta(state.TextID, conclusion)
		o.rememberAssistant(state, conclusion)
		sink.Data("payload", state.Payload)
		sink.Data("meta", o.meta(state))
		sink.TextEnd(state.TextID)
		sink.Finish(stream.FinishComplete, state.MessageID)
		sink.Done()
		return
	}

	state.Spec = spec
	o.obs.RecordStage(ctx, "present", StepDone)
	metrics.PipelineStageTotal.WithLabelValues("present", StepDone).Inc()
	o.emitStep(state, sink, newStep("present", StepDone, spec.Title, nil))

	// Wire order contract: dashboard first so the client can mount its
	// view, then the conclusion text, then the payload that binds into it.
	sink.Data("dashboard", spec)
	if spec.Conclusion != "" {
		sink.TextDelta(state.TextID, spec.Conclusion)
		o.rememberAssistant(state, spec.Conclusion)
	}
	sink.Data("payload", state.Payload)
	sink.Data("meta", o.meta(state))
	sink.TextEnd(state.TextID)
	sink.Finish(stream.FinishComplete, state.MessageID)
	sink.Done()
}

func (o *Orchestrator) meta(state *State) map[string]interface{} {
	payload := state.Payload
	return map[string]interface{}{
		"available_refs":  payload.AvailableRefs,
		"datasets_count":  len(payload.DatasetsMeta),
		"has_kpis":        len(payload.KPIs) > 0,
		"has_time_series": len(payload.TimeSeries) > 0,
		"has_top_items":   len(payload.TopItems) > 0,
		"agent_steps":     len(state.Steps),
	}
}

func (o *Orchestrator) emitStep(state *State, sink stream.Sink, step AgentStep) {
	state.addStep(step)
	sink.Data("agent_step", step)
}

func (o *Orchestrator) finishWithText(state *State, sink stream.Sink, text string, reason stream.FinishReason) {
	if text != "" {
		sink.TextDelta(state.TextID, text)
		o.rememberAssistant(state, text)
	}
	sink.TextEnd(state.TextID)
	sink.Finish(reason, state.MessageID)
	sink.Done()
}

func (o *Orchestrator) abort(state *State, sink stream.Sink, reason stream.FinishReason) {
	sink.TextEnd(state.TextID)
	sink.Finish(reason, state.MessageID)
	sink.Done()
}

// checkDeadline maps context termination to the finish reason: a deadline
// hit is an error, a caller disconnect is a cancellation.
func (o *Orchestrator) checkDeadline(ctx context.Context) (bool, stream.FinishReason) {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return true, stream.FinishError
	case context.Canceled:
		return true, stream.FinishCancelled
	default:
		return false, ""
	}
}

func (o *Orchestrator) rememberAssistant(state *State, content string) {
	if o.memory == nil {
		return
	}
	meta := map[string]interface{}{"trace_id": state.TraceID}
	if state.Decision != nil {
		// The next request uses this to avoid asking for clarification twice.
		meta["kind"] = string(state.Decision.Kind)
	}
	o.memory.Append(state.ThreadID, memory.RoleAssistant, content, meta)
}
