// Package memory is the short-term conversational store, one redis list per
// thread. Writes are fire-and-forget: the pipeline's critical path never
// blocks on the store, and an unavailable store only costs context, not the
// answer.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"insight-engine/internal/common/logger"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one conversational turn.
type Message struct {
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// keptMessages bounds each thread's list; older turns fall off.
const keptMessages = 200

// writeTimeout bounds the background write so a wedged store cannot pile up
// goroutines forever.
const writeTimeout = 3 * time.Second

// Store reads and writes thread history.
type Store struct {
	client *redis.Client // nil disables persistence entirely
	logger logger.Logger
}

func New(client *redis.Client, log logger.Logger) *Store {
	return &Store{
		client: client,
		logger: log.With(map[string]interface{}{"component": "memory"}),
	}
}

func threadKey(threadID string) string {
	return "chat:thread:" + threadID
}

// Append persists a turn in the background. Failures are logged and
// swallowed.
func (s *Store) Append(threadID, role, content string, metadata map[string]interface{}) {
	if s.client == nil || threadID == "" {
		return
	}
	msg := Message{
		Role:      role,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		data, err := json.Marshal(msg)
		if err != nil {
			s.logger.Warn("memory marshal failed", map[string]interface{}{"error": err.Error()})
			return
		}
		key := threadKey(threadID)
		pipe := s.client.TxPipeline()
		pipe.RPush(ctx, key, data)
		pipe.LTrim(ctx, key, -keptMessages, -1)
		if _, err := pipe.Exec(ctx); err != nil {
			s.logger.Warn("memory write failed", map[string]interface{}{
				"threadId": threadID,
				"error":    err.Error(),
			})
		}
	}()
}

// Read returns up to max recent turns in chronological order.
func (s *Store) Read(ctx context.Context, threadID string, max int) ([]Message, error) {
	if s.client == nil || threadID == "" {
		return nil, nil
	}
	raw, err := s.client.LRange(ctx, threadKey(threadID), int64(-max), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("memory read: %w", err)
	}
	messages := make([]Message, 0, len(raw))
	for _, item := range raw {
		var msg Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	// Background writes can land out of call order; CreatedAt is stamped
	// when Append is called, so sorting on it restores that order.
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages, nil
}

// RenderContext renders recent turns as a short plain-text transcript for
// prompt inclusion. Returns "" when the store is empty or unavailable.
func (s *Store) RenderContext(ctx context.Context, threadID string, max int) string {
	messages, err := s.Read(ctx, threadID, max)
	if err != nil {
		s.logger.Warn("memory context unavailable", map[string]interface{}{
			"threadId": threadID,
			"error":    err.Error(),
		})
		return ""
	}
	if len(messages) == 0 {
		return ""
	}
	var b strings.Builder
	for _, msg := range messages {
		content := msg.Content
		if len(content) > 300 {
			content = content[:300] + "..."
		}
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, content)
	}
	return strings.TrimSpace(b.String())
}
