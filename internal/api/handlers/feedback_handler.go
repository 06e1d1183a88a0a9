package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/api/middleware"
	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/api/response"
	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/api/validation"
	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/huberrors"
	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/models"
	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/observability"
)

// FeedbackService defines the ingestion and aggregation operations used by FeedbackHandler.
type FeedbackService interface {
	Ingest(ctx context.Context, req *models.CreateFeedbackRequest, userID *string) (*models.FeedbackEvent, error)
}

// InsightsService aggregates stored feedback.
type InsightsService interface {
	GetInsights(ctx context.Context, q models.InsightsQuery) (*models.Insights, error)
}

// FeedbackHandler handles the feedback API.
type FeedbackHandler struct {
	feedback FeedbackService
	insights InsightsService
	logger   *slog.Logger
}

// NewFeedbackHandler creates a new feedback handler.
func NewFeedbackHandler(feedback FeedbackService, insights InsightsService, logger *slog.Logger) *FeedbackHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &FeedbackHandler{feedback: feedback, insights: insights, logger: logger}
}

// Create handles POST /api/feedback.
func (h *FeedbackHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateFeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.RespondBadRequest(w, "Invalid request body")

		return
	}

	if err := validation.ValidateStruct(&req); err != nil {
		response.RespondBadRequest(w, err.Error())

		return
	}

	event, err := h.feedback.Ingest(r.Context(), &req, middleware.UserID(r.Context()))
	if err != nil {
		h.respondServiceError(w, r, "create feedback", err)

		return
	}

	response.RespondJSON(w, http.StatusCreated, models.CreateFeedbackResponse{Success: true, ID: event.ID})
}

// Insights handles GET /api/feedback/insights.
func (h *FeedbackHandler) Insights(w http.ResponseWriter, r *http.Request) {
	var q models.InsightsQuery
	if err := validation.ValidateAndDecodeQueryParams(r, &q); err != nil {
		response.RespondBadRequest(w, err.Error())

		return
	}

	insights, err := h.insights.GetInsights(r.Context(), q)
	if err != nil {
		h.respondServiceError(w, r, "get insights", err)

		return
	}

	response.RespondJSON(w, http.StatusOK, insights)
}

// respondServiceError maps validation errors to 400; everything else is logged,
// reported and answered with the generic 500 body.
func (h *FeedbackHandler) respondServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, huberrors.ErrValidation) {
		response.RespondBadRequest(w, err.Error())

		return
	}

	h.logger.ErrorContext(r.Context(), op+" failed", "error", err)
	observability.CaptureError(r.Context(), err)
	response.RespondInternalServerError(w)
}
