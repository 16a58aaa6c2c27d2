package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/core/domain"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/orchestrator"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/store"
)

// maxSubmitBodyBytes limits POST /api/v1/downloads body size.
const maxSubmitBodyBytes = 64 * 1024

func (*Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body := http.MaxBytesReader(w, r.Body, maxSubmitBodyBytes)
	var req SubmitRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = RequestIDFromContext(ctx)
	}
	id, err := s.svc.Submit(ctx, orchestrator.Request{
		Title:     req.MovieTitle,
		RequestID: requestID,
		Requester: req.Requester,
		Metadata:  req.Metadata,
	})
	if errors.Is(err, orchestrator.ErrEmptyTitle) {
		writeError(w, http.StatusBadRequest, "movie_title is required")
		return
	}
	if err != nil {
		logutils.Log.WithError(err).WithField("request_id", requestID).Error("Submit failed")
		writeError(w, http.StatusInternalServerError, "failed to queue download")
		return
	}
	writeJSON(w, http.StatusAccepted, SubmitResponse{TaskID: id, Status: string(domain.StatusQueued)})
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.svc.List(r.Context())
	if err != nil {
		logutils.Log.WithError(err).WithField("request_id", RequestIDFromContext(r.Context())).Error("List failed")
		writeError(w, http.StatusInternalServerError, "failed to list downloads")
		return
	}
	if snaps == nil {
		snaps = []domain.Snapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.Status(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrTaskNotFound) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		logutils.Log.WithError(err).WithField("task_id", r.PathValue("id")).Error("Status failed")
		writeError(w, http.StatusInternalServerError, "failed to read task")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) cancel(w http.ResponseWriter, r *http.Request) {
	err := s.svc.Cancel(r.Context(), r.PathValue("id"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusAccepted)
	case errors.Is(err, store.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "task not found")
	case errors.Is(err, orchestrator.ErrTaskFinished):
		writeError(w, http.StatusConflict, "task already finished")
	default:
		logutils.Log.WithError(err).WithField("task_id", r.PathValue("id")).Error("Cancel failed")
		writeError(w, http.StatusInternalServerError, "failed to cancel task")
	}
}
