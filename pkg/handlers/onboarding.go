package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helixdata/onboard-engine/pkg/apperrors"
	"github.com/helixdata/onboard-engine/pkg/config"
	"github.com/helixdata/onboard-engine/pkg/models"
	"github.com/helixdata/onboard-engine/pkg/services"
)

// OnboardingResponse is the payload for an accepted request.
type OnboardingResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	APIKey      string `json:"api_key"`
	AppID       string `json:"app_id"`
	ReferenceID string `json:"reference_id"`
}

// OnboardingHandler handles onboarding and update HTTP requests.
type OnboardingHandler struct {
	service services.OnboardingService
	cfg     *config.Config
	logger  *zap.Logger
}

// NewOnboardingHandler creates a new onboarding handler.
func NewOnboardingHandler(service services.OnboardingService, cfg *config.Config, logger *zap.Logger) *OnboardingHandler {
	return &OnboardingHandler{service: service, cfg: cfg, logger: logger}
}

// RegisterRoutes registers the onboarding routes on the given mux.
func (h *OnboardingHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/apps/onboard", h.Onboard)
}

// Onboard handles POST /api/v1/apps/onboard requests. The is_update
// query parameter switches between first-time onboarding and updating
// an existing application.
func (h *OnboardingHandler) Onboard(w http.ResponseWriter, r *http.Request) {
	referenceID := uuid.New().String()
	isUpdate, _ := strconv.ParseBool(r.URL.Query().Get("is_update"))

	var req models.OnboardingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	if req.AppName == "" {
		h.writeError(w, http.StatusBadRequest, "app_name is required", nil)
		return
	}

	result, err := h.service.Onboard(r.Context(), &req, isUpdate, referenceID)
	if err != nil {
		h.handleError(w, req.AppName, referenceID, isUpdate, err)
		return
	}

	response := OnboardingResponse{
		Status:      "success",
		Message:     result.Message,
		APIKey:      result.APIKey,
		AppID:       result.AppID,
		ReferenceID: result.ReferenceID,
	}
	if err := WriteJSON(w, http.StatusCreated, response); err != nil {
		h.logger.Error("Failed to encode onboarding response", zap.Error(err))
	}
}

func (h *OnboardingHandler) handleError(w http.ResponseWriter, appName, referenceID string, isUpdate bool, err error) {
	var unsupported *apperrors.UnsupportedSourceError
	var connectivity *apperrors.ConnectivityError

	switch {
	case errors.Is(err, apperrors.ErrAppExists):
		h.writeError(w, http.StatusBadRequest,
			fmt.Sprintf("App '%s' already exists. Cannot onboard.", appName), nil)
	case errors.Is(err, apperrors.ErrAppMissing):
		h.writeError(w, http.StatusBadRequest,
			fmt.Sprintf("App '%s' doesn't exist. Cannot update.", appName), nil)
	case errors.Is(err, apperrors.ErrOnboardInFlight):
		h.writeError(w, http.StatusConflict,
			fmt.Sprintf("Another request for app '%s' is still in progress. Retry later.", appName), nil)
	case errors.As(err, &unsupported):
		h.writeError(w, http.StatusBadRequest,
			"Request contains unsupported data sources", unsupported.Kinds)
	case errors.As(err, &connectivity):
		h.writeError(w, http.StatusBadRequest,
			"Data source connectivity verification failed", connectivity.Errors)
	default:
		h.logger.Error("Onboarding request failed",
			zap.String("app_name", appName),
			zap.String("reference_id", referenceID),
			zap.Bool("is_update", isUpdate),
			zap.Error(err))
		h.writeError(w, http.StatusInternalServerError,
			fmt.Sprintf("%s Reference ID: %s", h.cfg.GeneralMessage, referenceID), nil)
	}
}

func (h *OnboardingHandler) writeError(w http.ResponseWriter, statusCode int, message string, errs []string) {
	if err := ErrorResponse(w, statusCode, message, errs); err != nil {
		h.logger.Error("Failed to encode error response", zap.Error(err))
	}
}
