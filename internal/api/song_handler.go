package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/reelsong/reelsong-api/internal/api/shared"
	"github.com/reelsong/reelsong-api/internal/service"
)

// SongFinder is the slice of the service layer the song handler consumes.
type SongFinder interface {
	Submit(ctx context.Context, url string) (*service.SubmitResult, error)
	GetTaskStatus(ctx context.Context, id uuid.UUID) (*service.TaskStatusResult, error)
	TrendingStats(ctx context.Context) (*service.StatsResult, error)
}

// SongHandler handles song identification HTTP requests.
type SongHandler struct {
	finder    SongFinder
	validator *validator.Validate
}

// NewSongHandler creates a new SongHandler.
func NewSongHandler(finder SongFinder) *SongHandler {
	return &SongHandler{
		finder:    finder,
		validator: validator.New(),
	}
}

// FindSong handles POST /api/v1/find-song requests. A previously identified
// URL is answered synchronously with 200; an unknown URL queues a pipeline
// run and returns 202 with a task ID for polling.
func (h *SongHandler) FindSong(w http.ResponseWriter, r *http.Request) {
	var req FindSongRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format", "")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: url is required", "")
		return
	}

	result, err := h.finder.Submit(r.Context(), req.URL)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), GetErrorCode(err), err)
		return
	}

	if result.CacheHit {
		shared.RespondWithJSON(w, r, http.StatusOK, FindSongResponse{
			Success: true,
			Cached:  true,
			Data:    songToDTO(result.Song),
		})
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, FindSongResponse{
		Success: true,
		TaskID:  result.TaskID.String(),
		Status:  "pending",
		Message: processingMessage,
	})
}

// TaskStatus handles GET /api/v1/task-status/{taskID} requests.
func (h *SongHandler) TaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(chi.URLParam(r, "taskID"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID", "")
		return
	}

	status, err := h.finder.GetTaskStatus(r.Context(), taskID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), GetErrorCode(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskStatusToDTO(status))
}

// Stats handles GET /api/v1/stats requests.
func (h *SongHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.finder.TrendingStats(r.Context())
	if err != nil {
		slog.Error("failed to load trending stats", "error", err)
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), GetErrorCode(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, statsToDTO(stats))
}
