package memory

import (
	"context"
	"testing"

	"github.com/getpup/evalrun/es"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent struct {
	Value string `json:"value"`
}

func TestAppend_NewLog(t *testing.T) {
	s := New()
	ctx := context.Background()

	envs, err := s.Append(ctx, "judges", "j1", 0, []es.Event{
		{Type: "judge-created", Data: testEvent{Value: "a"}},
	})
	require.NoError(t, err)
	require.Len(t, envs, 1)

	assert.Equal(t, "judges", envs[0].EntityType)
	assert.Equal(t, "j1", envs[0].EntityID)
	assert.Equal(t, 1, envs[0].Seq)
	assert.Equal(t, "judge-created", envs[0].EventType)
	assert.Equal(t, int64(1), envs[0].GlobalSeq)
	assert.False(t, envs[0].RecordedAt.IsZero())

	var decoded testEvent
	require.NoError(t, envs[0].DecodeData(&decoded))
	assert.Equal(t, "a", decoded.Value)
}

func TestAppend_SequenceConflict(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.Append(ctx, "judges", "j1", 0, []es.Event{
		{Type: "judge-created", Data: testEvent{Value: "a"}},
	})
	require.NoError(t, err)

	// Repeating the same expectedSeq must be rejected without appending.
	_, err = s.Append(ctx, "judges", "j1", 0, []es.Event{
		{Type: "judge-created", Data: testEvent{Value: "b"}},
	})
	assert.ErrorIs(t, err, es.ErrSequenceConflict)

	log, err := s.Load(ctx, "judges", "j1")
	require.NoError(t, err)
	assert.Len(t, log, 1)
}

func TestLoad_OrderedReplay(t *testing.T) {
	s := New()
	ctx := context.Background()

	for i, value := range []string{"a", "b", "c"} {
		_, err := s.Append(ctx, "runs", "r1", i, []es.Event{
			{Type: "run-progress-updated", Data: testEvent{Value: value}},
		})
		require.NoError(t, err)
	}

	log, err := s.Load(ctx, "runs", "r1")
	require.NoError(t, err)
	require.Len(t, log, 3)
	for i, env := range log {
		assert.Equal(t, i+1, env.Seq)
	}
}

func TestLoad_EmptyLog(t *testing.T) {
	s := New()

	log, err := s.Load(context.Background(), "runs", "missing")
	require.NoError(t, err)
	assert.Empty(t, log)
}

func TestReadSince_GlobalOrderAcrossEntities(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.Append(ctx, "judges", "j1", 0, []es.Event{{Type: "judge-created", Data: testEvent{}}})
	require.NoError(t, err)
	_, err = s.Append(ctx, "runs", "r1", 0, []es.Event{{Type: "run-started", Data: testEvent{}}})
	require.NoError(t, err)
	_, err = s.Append(ctx, "judges", "j1", 1, []es.Event{{Type: "judge-updated", Data: testEvent{}}})
	require.NoError(t, err)

	envs, err := s.ReadSince(ctx, 0, 100)
	require.NoError(t, err)
	require.Len(t, envs, 3)
	assert.Equal(t, "judge-created", envs[0].EventType)
	assert.Equal(t, "run-started", envs[1].EventType)
	assert.Equal(t, "judge-updated", envs[2].EventType)

	// Resume from the middle.
	envs, err = s.ReadSince(ctx, envs[1].GlobalSeq, 100)
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, "judge-updated", envs[0].EventType)
}

func TestReadSince_Limit(t *testing.T) {
	s := New()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.Append(ctx, "runs", "r1", i, []es.Event{{Type: "run-progress-updated", Data: testEvent{}}})
		require.NoError(t, err)
	}

	envs, err := s.ReadSince(ctx, 0, 2)
	require.NoError(t, err)
	assert.Len(t, envs, 2)
}
