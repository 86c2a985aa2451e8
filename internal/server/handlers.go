// internal/server/handlers.go
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"insight-engine/internal/common/metrics"
	"insight-engine/internal/dates"
	"insight-engine/internal/memory"
	"insight-engine/internal/models"
	"insight-engine/internal/pipeline"
	"insight-engine/internal/stream"
)

// ChatRequest is the body of /v1/chat/stream and /api/insights/run.
type ChatRequest struct {
	Question       string `json:"question"`
	ConversationID string `json:"conversation_id,omitempty"`
	UserID         string `json:"user_id,omitempty"`
}

func newTraceID() string {
	return uuid.NewString()[:8]
}

// prepareState decodes request intent into the initial pipeline state:
// trace ids, extracted dates, rendered chat context and the
// clarification-loop flag.
func (s *Server) prepareState(ctx context.Context, req ChatRequest) *pipeline.State {
	traceID := newTraceID()
	threadID := req.ConversationID
	if threadID == "" {
		threadID = "thread-" + traceID
	}

	state := pipeline.NewState(req.Question, threadID, req.UserID, traceID, s.cfg.Engine.MaxRetries)

	now := s.clock()
	state.DateRange = dates.ExtractRange(req.Question, now)
	if cur, prev := dates.ExtractComparisonRanges(req.Question, now); !cur.IsZero() && !prev.IsZero() {
		state.DateRange = cur
		state.PrevRange = prev
	}

	state.ChatContext = s.memory.RenderContext(ctx, threadID, s.cfg.Engine.MemoryContextMessages)
	if msgs, err := s.memory.Read(ctx, threadID, 1); err == nil && len(msgs) > 0 {
		last := msgs[len(msgs)-1]
		if last.Role == memory.RoleAssistant {
			if kind, ok := last.Metadata["kind"].(string); ok && kind == string(models.KindClarification) {
				state.PrevWasClarification = true
			}
		}
	}
	return state
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Question) == "" {
		metrics.RequestsTotal.WithLabelValues("/v1/chat/stream", "invalid_request").Inc()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	state := s.prepareState(r.Context(), req)
	log := s.logger.With(map[string]interface{}{"traceId": state.TraceID})
	log.Info("chat stream started", map[string]interface{}{"threadId": state.ThreadID})

	// The user turn is persisted before the stream opens so the history
	// survives even if the stream dies early.
	s.memory.Append(state.ThreadID, memory.RoleUser, req.Question, map[string]interface{}{
		"trace_id": state.TraceID,
	})

	stream.SetHeaders(w.Header())
	w.WriteHeader(http.StatusOK)

	emitter := stream.NewEmitter(w)
	metrics.StreamsActive.Inc()
	defer metrics.StreamsActive.Dec()

	ctx, cancel := context.WithTimeout(r.Context(), s.deadline())
	defer cancel()

	// A caller disconnect discards any writes still in flight; a deadline
	// hit must NOT discard them, the pipeline still owes a finish event.
	go func() {
		<-ctx.Done()
		if ctx.Err() == context.Canceled {
			emitter.Cancel()
		}
	}()

	s.orch.Run(ctx, state, emitter)
	metrics.RequestsTotal.WithLabelValues("/v1/chat/stream", "complete").Inc()
}

func (s *Server) handleInsightsRun(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Question) == "" {
		metrics.RequestsTotal.WithLabelValues("/api/insights/run", "invalid_request").Inc()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	state := s.prepareState(r.Context(), req)
	s.memory.Append(state.ThreadID, memory.RoleUser, req.Question, map[string]interface{}{
		"trace_id": state.TraceID,
	})

	ctx, cancel := context.WithTimeout(r.Context(), s.deadline())
	defer cancel()

	start := time.Now()
	collector := stream.NewCollector()
	s.orch.Run(ctx, state, collector)

	response := map[string]interface{}{
		"success":           collector.FinishReason() == string(stream.FinishComplete),
		"trace_id":          state.TraceID,
		"dashboard_spec":    state.Spec,
		"data_payload":      state.Payload,
		"execution_time_ms": time.Since(start).Milliseconds(),
	}
	metrics.RequestsTotal.WithLabelValues("/api/insights/run", collector.FinishReason()).Inc()
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbStatus := "connected"
	if s.pg != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.pg.Ping(ctx); err != nil {
			dbStatus = "error: " + err.Error()
		}
	} else {
		dbStatus = "not configured"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"version":         s.cfg.App.Version,
		"database_status": dbStatus,
	})
}

func (s *Server) handleQueries(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cat.Descriptions())
}

func (s *Server) handleCacheInvalidate(w http.ResponseWriter, _ *http.Request) {
	s.cache.Invalidate()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"stats":  s.cache.Stats(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
