package server

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"

	"github.com/shouldiwash/shouldiwash/pkg/api"
	"github.com/shouldiwash/shouldiwash/pkg/chart"
	"github.com/shouldiwash/shouldiwash/pkg/log"
	"github.com/shouldiwash/shouldiwash/pkg/session"
	"github.com/shouldiwash/shouldiwash/pkg/submission"
	"github.com/shouldiwash/shouldiwash/pkg/types"
)

func (s *Server) handleDefaults(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.submitter.Defaults(), http.StatusOK)
}

// handleValidate checks a form that may still be in progress. It always
// succeeds; the result says whether the form can be submitted.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var form types.SubmissionForm
	if !decodeBody(w, r, &form) {
		return
	}
	writeJSON(w, types.CheckSubmissionForm(form, s.location), http.StatusOK)
}

type submitResponse struct {
	types.SubmissionResult
	Redirect string `json:"redirect"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var form types.SubmissionForm
	if !decodeBody(w, r, &form) {
		return
	}
	check := types.CheckSubmissionForm(form, s.location)
	if !check.CanSubmit {
		writeJSON(w, check, http.StatusBadRequest)
		return
	}

	res, err := s.submitter.Submit(ctx, check.Input)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "submission failed", slog.Any("error", err))
		writeJSONError(w, submission.ErrSubmissionFailed.Error(), http.StatusBadGateway)
		return
	}

	ref := types.SubmissionRef{
		ID:       res.ID,
		PostCode: check.Input.PostCode,
		Date:     check.Input.Date,
	}
	if err := session.RecordSubmission(ctx, s.sessions, ref); err != nil {
		// the submission exists remotely, only the local history is missing it
		log.Ctx(ctx).WarnContext(ctx, "failed to record submission", slog.String("submissionID", res.ID), slog.Any("error", err))
	}

	writeJSON(w, submitResponse{
		SubmissionResult: res,
		Redirect:         "#/results/" + res.ID,
	}, http.StatusOK)
}

type resultsResponse struct {
	Summary types.ChartSummary `json:"summary"`
	Chart   types.Chart        `json:"chart"`
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	if !api.ValidSubmissionID(id) {
		writeJSONError(w, "invalid submission id", http.StatusBadRequest)
		return
	}
	ctx = log.WithAttrs(ctx, slog.String("submissionID", id))

	payload, err := s.api.ChartData(ctx, id)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to fetch chart data", slog.Any("error", err))
		var apiErr *api.Error
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			writeJSONError(w, "submission not found", http.StatusNotFound)
			return
		}
		writeJSONError(w, "failed to load results", http.StatusBadGateway)
		return
	}

	writeJSON(w, resultsResponse{
		Summary: payload.Summary(id),
		Chart:   chart.Build(payload, s.now().In(s.location)),
	}, http.StatusOK)
}

// handleSubmissions lists the submissions made from this device, newest first.
func (s *Server) handleSubmissions(w http.ResponseWriter, r *http.Request) {
	refs := slices.Clone(s.getSession(r).Submissions)
	slices.Reverse(refs)
	if refs == nil {
		refs = []types.SubmissionRef{}
	}
	writeJSON(w, refs, http.StatusOK)
}
