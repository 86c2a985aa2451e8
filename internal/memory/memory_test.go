package memory

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insight-engine/internal/common/logger"
)

func newTestStore(t *testing.T) *Store {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return New(client, logger.NewTestLogger(t))
}

// Append is asynchronous; poll until the write lands.
func waitForMessages(t *testing.T, s *Store, threadID string, want int) []Message {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		msgs, err := s.Read(context.Background(), threadID, 50)
		require.NoError(t, err)
		if len(msgs) >= want {
			return msgs
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d messages in thread %s", want, threadID)
	return nil
}

func TestAppendAndRead(t *testing.T) {
	s := newTestStore(t)

	s.Append("thread-1", RoleUser, "como van las ventas", map[string]interface{}{"trace_id": "abc"})
	s.Append("thread-1", RoleAssistant, "Ventas totales de $90.000", nil)

	msgs := waitForMessages(t, s, "thread-1", 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, "como van las ventas", msgs[0].Content)
	assert.Equal(t, "abc", msgs[0].Metadata["trace_id"])
	assert.Equal(t, RoleAssistant, msgs[1].Role)
}

func TestReadRespectsMax(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		s.Append("thread-2", RoleUser, "mensaje", nil)
	}
	waitForMessages(t, s, "thread-2", 5)

	msgs, err := s.Read(context.Background(), "thread-2", 2)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestRenderContext(t *testing.T) {
	s := newTestStore(t)

	s.Append("thread-3", RoleUser, "hola", nil)
	s.Append("thread-3", RoleAssistant, "Hola! Soy tu asistente.", nil)
	waitForMessages(t, s, "thread-3", 2)

	rendered := s.RenderContext(context.Background(), "thread-3", 10)
	assert.Contains(t, rendered, "user: hola")
	assert.Contains(t, rendered, "assistant: Hola!")
}

func TestRenderContextEmptyThread(t *testing.T) {
	s := newTestStore(t)
	assert.Empty(t, s.RenderContext(context.Background(), "nope", 10))
}

// A nil client disables persistence without blocking anything.
func TestNilClientIsBestEffort(t *testing.T) {
	s := New(nil, logger.NewNoOpLogger())

	s.Append("thread-4", RoleUser, "hola", nil)
	msgs, err := s.Read(context.Background(), "thread-4", 10)
	assert.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Empty(t, s.RenderContext(context.Background(), "thread-4", 10))
}

// A store pointed at a dead backend logs and continues.
func TestUnavailableStoreDoesNotBlock(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), DialTimeout: 100 * time.Millisecond})
	t.Cleanup(func() { client.Close() })
	mr.Close()

	s := New(client, logger.NewNoOpLogger())

	done := make(chan struct{})
	go func() {
		s.Append("thread-5", RoleUser, "hola", nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Append blocked on an unavailable store")
	}
}
