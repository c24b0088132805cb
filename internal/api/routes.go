// Package api exposes the HTTP surface of the evaluation service: judge and
// assignment management, submission import, run control, and view queries.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	m "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/getpup/evalrun"
	"github.com/getpup/evalrun/entity"
	"github.com/getpup/evalrun/es"
	"github.com/getpup/evalrun/runner"
	"github.com/getpup/evalrun/views"
)

// Server wires the HTTP handlers to the entity services, the view store, and
// the run runner.
type Server struct {
	Judges      *entity.JudgeService
	Submissions *entity.SubmissionService
	Assignments *entity.AssignmentService
	Views       views.Store
	Runner      *runner.Runner
	Logger      es.Logger

	// DriveCtx is the context background run drives inherit, so shutting
	// the server down does not kill in-flight runs started over HTTP.
	// Defaults to context.Background().
	DriveCtx context.Context
}

// Routes builds the router. Exposed separately from NewServer so tests can
// mount it on httptest.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(m.RequestID, m.RealIP, m.Logger, m.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/judges", func(r chi.Router) {
			r.Post("/", s.createJudge)
			r.Get("/", s.listJudges)
			r.Get("/{judgeID}", s.getJudge)
			r.Put("/{judgeID}", s.updateJudge)
			r.Put("/{judgeID}/active", s.setJudgeActive)
			r.Delete("/{judgeID}", s.deleteJudge)
		})

		r.Post("/submissions", s.importSubmission)
		r.Post("/submissions/batch", s.importSubmissionBatch)

		r.Route("/queues", func(r chi.Router) {
			r.Get("/", s.listQueues)
			r.Get("/{queueID}/questions", s.listQuestions)
			r.Get("/{queueID}/submissions", s.listSubmissions)
			r.Get("/{queueID}/runs", s.listRuns)
			r.Post("/{queueID}/runs", s.startRun)

			r.Route("/{queueID}/questions/{questionID}/judges", func(r chi.Router) {
				r.Get("/", s.getAssignment)
				r.Put("/", s.setAssignment)
				r.Delete("/", s.deleteAssignment)
				r.Post("/{judgeID}", s.addAssignedJudge)
				r.Delete("/{judgeID}", s.removeAssignedJudge)
			})
		})

		r.Get("/runs/{runID}", s.getRun)
		r.Get("/evaluations", s.listEvaluations)
		r.Get("/evaluations/summary", s.summarizeEvaluations)
	})

	return r
}

// NewServer builds an http.Server on the given address.
func NewServer(addr string, s *Server) *http.Server {
	return &http.Server{Addr: addr, Handler: s.Routes()}
}

type errResp struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, evalrun.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errResp{err.Error()})
	case errors.Is(err, evalrun.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errResp{err.Error()})
	case errors.Is(err, evalrun.ErrInvalidVerdict):
		writeJSON(w, http.StatusBadRequest, errResp{err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errResp{err.Error()})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errResp{err.Error()})
		return false
	}
	return true
}

func (s *Server) createJudge(w http.ResponseWriter, r *http.Request) {
	var judge evalrun.Judge
	if !decodeBody(w, r, &judge) {
		return
	}
	if judge.ID == "" {
		judge.ID = uuid.NewString()
	}

	created, err := s.Judges.Create(r.Context(), judge)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) listJudges(w http.ResponseWriter, r *http.Request) {
	var rows []views.JudgeRow
	var err error
	if r.URL.Query().Get("active") == "true" {
		rows, err = s.Views.ActiveJudges(r.Context())
	} else {
		rows, err = s.Views.Judges(r.Context())
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) getJudge(w http.ResponseWriter, r *http.Request) {
	judge, err := s.Judges.Get(r.Context(), chi.URLParam(r, "judgeID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, judge)
}

func (s *Server) updateJudge(w http.ResponseWriter, r *http.Request) {
	var judge evalrun.Judge
	if !decodeBody(w, r, &judge) {
		return
	}
	judge.ID = chi.URLParam(r, "judgeID")

	updated, err := s.Judges.Update(r.Context(), judge)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) setJudgeActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Active bool `json:"active"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	judge, err := s.Judges.SetActive(r.Context(), chi.URLParam(r, "judgeID"), req.Active)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, judge)
}

func (s *Server) deleteJudge(w http.ResponseWriter, r *http.Request) {
	if err := s.Judges.Delete(r.Context(), chi.URLParam(r, "judgeID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) importSubmission(w http.ResponseWriter, r *http.Request) {
	var sub evalrun.Submission
	if !decodeBody(w, r, &sub) {
		return
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.QueueID == "" {
		writeJSON(w, http.StatusBadRequest, errResp{"queueId is required"})
		return
	}

	imported, err := s.Submissions.Import(r.Context(), sub)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, imported)
}

// importSubmissionBatch imports each submission independently and reports
// per-item outcomes, so one bad submission does not block the rest of the
// upload.
func (s *Server) importSubmissionBatch(w http.ResponseWriter, r *http.Request) {
	var subs []evalrun.Submission
	if !decodeBody(w, r, &subs) {
		return
	}

	type itemResult struct {
		ID    string `json:"id"`
		Error string `json:"error,omitempty"`
	}
	results := make([]itemResult, 0, len(subs))
	for _, sub := range subs {
		if sub.ID == "" {
			sub.ID = uuid.NewString()
		}
		if sub.QueueID == "" {
			results = append(results, itemResult{ID: sub.ID, Error: "queueId is required"})
			continue
		}
		if _, err := s.Submissions.Import(r.Context(), sub); err != nil {
			results = append(results, itemResult{ID: sub.ID, Error: err.Error()})
			continue
		}
		results = append(results, itemResult{ID: sub.ID})
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) listQueues(w http.ResponseWriter, r *http.Request) {
	rows, err := s.Views.Queues(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) listQuestions(w http.ResponseWriter, r *http.Request) {
	rows, err := s.Views.QuestionsByQueue(r.Context(), chi.URLParam(r, "queueID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) listSubmissions(w http.ResponseWriter, r *http.Request) {
	rows, err := s.Views.SubmissionsByQueue(r.Context(), chi.URLParam(r, "queueID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) getAssignment(w http.ResponseWriter, r *http.Request) {
	assignment, err := s.Assignments.Get(r.Context(),
		chi.URLParam(r, "queueID"), chi.URLParam(r, "questionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assignment)
}

func (s *Server) setAssignment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JudgeIDs []string `json:"judgeIds"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	assignment, err := s.Assignments.Set(r.Context(),
		chi.URLParam(r, "queueID"), chi.URLParam(r, "questionID"), req.JudgeIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assignment)
}

func (s *Server) deleteAssignment(w http.ResponseWriter, r *http.Request) {
	err := s.Assignments.Delete(r.Context(),
		chi.URLParam(r, "queueID"), chi.URLParam(r, "questionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) addAssignedJudge(w http.ResponseWriter, r *http.Request) {
	assignment, err := s.Assignments.AddJudge(r.Context(),
		chi.URLParam(r, "queueID"), chi.URLParam(r, "questionID"), chi.URLParam(r, "judgeID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assignment)
}

func (s *Server) removeAssignedJudge(w http.ResponseWriter, r *http.Request) {
	assignment, err := s.Assignments.RemoveJudge(r.Context(),
		chi.URLParam(r, "queueID"), chi.URLParam(r, "questionID"), chi.URLParam(r, "judgeID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assignment)
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	queueID := chi.URLParam(r, "queueID")

	runID, err := s.Runner.StartRun(r.Context(), queueID)
	if err != nil {
		writeError(w, err)
		return
	}

	driveCtx := s.DriveCtx
	if driveCtx == nil {
		driveCtx = context.Background()
	}
	go func() {
		if err := s.Runner.Drive(driveCtx, runID); err != nil && s.Logger != nil {
			s.Logger.Error(driveCtx, "run drive failed", "runId", runID, "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"runId": runID, "queueId": queueID})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	rows, err := s.Views.Runs(r.Context(), chi.URLParam(r, "queueID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	row, err := s.Views.Run(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func evaluationFilter(r *http.Request) (views.EvaluationFilter, error) {
	q := r.URL.Query()
	filter := views.EvaluationFilter{
		RunID:        q.Get("runId"),
		QueueID:      q.Get("queueId"),
		SubmissionID: q.Get("submissionId"),
		QuestionID:   q.Get("questionId"),
		JudgeID:      q.Get("judgeId"),
	}
	if v := q.Get("verdict"); v != "" {
		verdict, err := evalrun.ParseVerdict(v)
		if err != nil {
			return views.EvaluationFilter{}, err
		}
		filter.Verdict = verdict
	}
	return filter, nil
}

func (s *Server) listEvaluations(w http.ResponseWriter, r *http.Request) {
	filter, err := evaluationFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}

	rows, err := s.Views.Evaluations(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) summarizeEvaluations(w http.ResponseWriter, r *http.Request) {
	filter, err := evaluationFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}

	summary, err := s.Views.SummarizeVerdicts(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
