package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/getpup/evalrun"
	"github.com/getpup/evalrun/entity"
	"github.com/getpup/evalrun/es"
	esmemory "github.com/getpup/evalrun/es/memory"
	"github.com/getpup/evalrun/evaluator"
	"github.com/getpup/evalrun/runner"
	"github.com/getpup/evalrun/views"
	viewmemory "github.com/getpup/evalrun/views/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	server      *httptest.Server
	dispatcher  *es.Dispatcher
	checkpoints *runner.MemoryCheckpointStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	events := esmemory.New()
	viewStore := viewmemory.New()

	dispatcher, err := es.NewDispatcher(es.DispatcherConfig{Store: events})
	require.NoError(t, err)
	views.NewProjector(viewStore).Register(dispatcher)

	judges := entity.NewJudgeService(events)
	submissions := entity.NewSubmissionService(events)
	assignments := entity.NewAssignmentService(events)
	runs := entity.NewRunService(events)
	evals := entity.NewEvaluationService(events)
	checkpoints := runner.NewMemoryCheckpointStore()

	run, err := runner.New(runner.Config{
		Views:       viewStore,
		Checkpoints: checkpoints,
		Evaluator:   &evaluator.MockClient{},
		Runs:        runs,
		Judges:      judges,
		Submissions: submissions,
		Evaluations: evals,
	})
	require.NoError(t, err)

	// Keep views current in the background, like the deployed service does.
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = dispatcher.Drain(ctx)
			}
		}
	}()

	srv := httptest.NewServer((&Server{
		Judges:      judges,
		Submissions: submissions,
		Assignments: assignments,
		Views:       viewStore,
		Runner:      run,
	}).Routes())
	t.Cleanup(srv.Close)

	return &testEnv{server: srv, dispatcher: dispatcher, checkpoints: checkpoints}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthz(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodGet, "/healthz", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestJudgeEndpoints(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodPost, "/api/judges", evalrun.Judge{
		ID: "j1", Name: "Accuracy", SystemPrompt: "Check facts.", TargetModel: "gpt-4o", Active: true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[evalrun.Judge](t, resp)
	assert.Equal(t, "j1", created.ID)

	// Duplicate create conflicts.
	resp = e.do(t, http.MethodPost, "/api/judges", evalrun.Judge{ID: "j1", Name: "Copy"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/judges/j1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[evalrun.Judge](t, resp)
	assert.Equal(t, "Accuracy", got.Name)

	resp = e.do(t, http.MethodPut, "/api/judges/j1/active", map[string]bool{"active": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got = decode[evalrun.Judge](t, resp)
	assert.False(t, got.Active)

	resp = e.do(t, http.MethodDelete, "/api/judges/j1", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/judges/j1", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSubmissionAndAssignmentEndpoints(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodPost, "/api/submissions", evalrun.Submission{
		ID: "s1", QueueID: "queue-1",
		Questions: map[string]evalrun.QuestionAnswer{
			"q1": {QuestionID: "q1", QuestionText: "2+2?", AnswerChoice: "4"},
		},
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = e.do(t, http.MethodPut, "/api/queues/queue-1/questions/q1/judges",
		map[string][]string{"judgeIds": {"j2", "j1"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assignment := decode[evalrun.JudgeAssignment](t, resp)
	assert.Equal(t, []string{"j1", "j2"}, assignment.JudgeIDs)

	resp = e.do(t, http.MethodDelete, "/api/queues/queue-1/questions/q1/judges/j2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assignment = decode[evalrun.JudgeAssignment](t, resp)
	assert.Equal(t, []string{"j1"}, assignment.JudgeIDs)

	require.Eventually(t, func() bool {
		resp := e.do(t, http.MethodGet, "/api/queues/", nil)
		rows := decode[[]views.QueueRow](t, resp)
		return len(rows) == 1 && rows[0].SubmissionCount == 1
	}, time.Second, 10*time.Millisecond, "queue view catches up")

	resp = e.do(t, http.MethodGet, "/api/queues/queue-1/questions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	questions := decode[[]views.QuestionRow](t, resp)
	require.Len(t, questions, 1)
	assert.Equal(t, []string{"j1"}, questions[0].JudgeIDs)
}

func TestImportSubmissionBatch(t *testing.T) {
	e := newTestEnv(t)

	type itemResult struct {
		ID    string `json:"id"`
		Error string `json:"error,omitempty"`
	}

	resp := e.do(t, http.MethodPost, "/api/submissions/batch", []evalrun.Submission{
		{ID: "s1", QueueID: "queue-1", Questions: map[string]evalrun.QuestionAnswer{
			"q1": {QuestionID: "q1", QuestionText: "2+2?", AnswerChoice: "4"},
		}},
		{ID: "s2"},
		{ID: "s1", QueueID: "queue-1"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	results := decode[[]itemResult](t, resp)
	require.Len(t, results, 3)

	assert.Empty(t, results[0].Error)
	assert.Equal(t, "queueId is required", results[1].Error)
	// Re-import of an existing id fails without blocking the batch.
	assert.NotEmpty(t, results[2].Error)

	resp = e.do(t, http.MethodGet, "/api/queues", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRunEndpoints(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodPost, "/api/judges", evalrun.Judge{
		ID: "j1", Name: "Accuracy", SystemPrompt: "Check.", TargetModel: "gpt-4o", Active: true,
	})
	resp.Body.Close()
	resp = e.do(t, http.MethodPost, "/api/submissions", evalrun.Submission{
		ID: "s1", QueueID: "queue-1",
		Questions: map[string]evalrun.QuestionAnswer{
			"q1": {QuestionID: "q1", QuestionText: "2+2?", AnswerChoice: "4"},
		},
	})
	resp.Body.Close()
	resp = e.do(t, http.MethodPut, "/api/queues/queue-1/questions/q1/judges",
		map[string][]string{"judgeIds": {"j1"}})
	resp.Body.Close()

	// Wait for the views the planner reads from.
	require.Eventually(t, func() bool {
		resp := e.do(t, http.MethodGet, "/api/queues/queue-1/questions", nil)
		rows := decode[[]views.QuestionRow](t, resp)
		return len(rows) == 1 && len(rows[0].JudgeIDs) == 1
	}, time.Second, 10*time.Millisecond)

	resp = e.do(t, http.MethodPost, "/api/queues/queue-1/runs", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	started := decode[map[string]string](t, resp)
	runID := started["runId"]
	require.NotEmpty(t, runID)

	require.Eventually(t, func() bool {
		resp := e.do(t, http.MethodGet, "/api/runs/"+runID, nil)
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return false
		}
		row := decode[views.RunRow](t, resp)
		return row.Status == evalrun.RunStatusCompleted
	}, 2*time.Second, 10*time.Millisecond, "run completes in the background")

	resp = e.do(t, http.MethodGet, "/api/evaluations?runId="+runID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	evals := decode[[]views.EvaluationRow](t, resp)
	require.Len(t, evals, 1)
	assert.Equal(t, evalrun.VerdictPass, evals[0].Verdict)

	resp = e.do(t, http.MethodGet, "/api/evaluations/summary?queueId=queue-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summary := decode[map[string]int](t, resp)
	assert.Equal(t, 1, summary[string(evalrun.VerdictPass)])
}

func TestListEvaluations_RejectsBadVerdict(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodGet, "/api/evaluations?verdict=maybe", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
