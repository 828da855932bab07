package auditredis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skosovsky/guardrail"
)

func newTestSink(t *testing.T) (*Sink, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := New(context.Background(), Config{Address: mr.Addr(), Stream: "test:audit"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestSink_AppendWritesStreamEntry(t *testing.T) {
	s, mr := newTestSink(t)
	rec := guardrail.AuditRecord{
		RunID:     "run-1",
		CreatedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Prompt:    "tool_answer",
		Attempts:  1,
		RawOutput: `{"answer":"ok"}`,
		Final:     map[string]any{"answer": "ok"},
		Success:   true,
	}

	loc, err := s.Append(context.Background(), rec)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(loc, "test:audit/"), loc)

	entries, err := mr.Stream("test:audit")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, strings.TrimPrefix(loc, "test:audit/"), entries[0].ID)
	require.Len(t, entries[0].Values, 2)
	assert.Equal(t, RecordField, entries[0].Values[0])

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(entries[0].Values[1]), &got))
	assert.Equal(t, "run-1", got["run_id"])
	assert.Equal(t, true, got["success"])
	assert.Equal(t, []any{}, got["errors"])
}

func TestSink_AppendNeverOverwrites(t *testing.T) {
	s, mr := newTestSink(t)
	ctx := context.Background()
	first, err := s.Append(ctx, guardrail.AuditRecord{RunID: "a"})
	require.NoError(t, err)
	second, err := s.Append(ctx, guardrail.AuditRecord{RunID: "b"})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	entries, err := mr.Stream("test:audit")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestSink_KeepsEveryRecord(t *testing.T) {
	s, mr := newTestSink(t)
	ctx := context.Background()
	const n = 250
	for i := 0; i < n; i++ {
		_, err := s.Append(ctx, guardrail.AuditRecord{RunID: fmt.Sprintf("run-%03d", i)})
		require.NoError(t, err)
	}

	entries, err := mr.Stream("test:audit")
	require.NoError(t, err)
	require.Len(t, entries, n)
	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(entries[0].Values[1]), &first))
	assert.Equal(t, "run-000", first["run_id"], "oldest record is still present")
}

func TestSink_AppendFailureIsAuditWriteError(t *testing.T) {
	s, mr := newTestSink(t)
	mr.Close()

	_, err := s.Append(context.Background(), guardrail.AuditRecord{RunID: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, guardrail.ErrAuditWrite)
	var awe *guardrail.AuditWriteError
	require.ErrorAs(t, err, &awe)
	assert.Equal(t, "test:audit", awe.Path)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.Error(t, err)

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err = New(context.Background(), Config{Address: addr})
	require.Error(t, err)
}

func TestNewWithClient_DefaultStream(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewWithClient(client, "")
	assert.Equal(t, DefaultStream, s.Stream())
	require.NoError(t, s.Close())

	loc, err := s.Append(context.Background(), guardrail.AuditRecord{RunID: "r"})
	require.NoError(t, err, "Close must not close a borrowed client")
	assert.True(t, strings.HasPrefix(loc, DefaultStream+"/"))
}

func TestRunWritesToRedis(t *testing.T) {
	s, mr := newTestSink(t)
	invoke := func(context.Context, map[string]any) (string, error) {
		return `{"tool":"none","tool_input":""}`, nil
	}

	got, err := guardrail.Run(context.Background(), invoke, nil, guardrail.ValidateToolRoute, guardrail.WithSink(s))
	require.NoError(t, err)
	assert.Equal(t, guardrail.ToolNone, got.Tool)

	entries, err := mr.Stream("test:audit")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
