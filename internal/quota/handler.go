package quota

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/lingoloop/lingoloop/internal/api"
	"github.com/lingoloop/lingoloop/internal/auth"
)

const (
	defaultHistoryLimit = 30
	maxHistoryLimit     = 365
)

// AttemptRequest reports how a gated attempt ended.
type AttemptRequest struct {
	Outcome string `json:"outcome" validate:"required,oneof=success failure neutral"`
}

// UserResetResponse is returned by the admin single-user reset.
type UserResetResponse struct {
	UserID         string    `json:"user_id"`
	UnitsRemaining int       `json:"units_remaining"`
	RanAt          time.Time `json:"ran_at"`
}

type Handler struct {
	svc       *Service
	gate      *Gate
	scheduler *Scheduler
	validate  *validator.Validate
}

func NewHandler(svc *Service, gate *Gate, scheduler *Scheduler) *Handler {
	return &Handler{
		svc:       svc,
		gate:      gate,
		scheduler: scheduler,
		validate:  validator.New(),
	}
}

// GetStatus handles GET /api/v1/quota.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	status, err := h.svc.Status(r.Context(), claims.UserID)
	if err != nil {
		slog.Error("getting quota status", "error", err, "user_id", claims.UserID)
		api.HandleError(w, api.ErrUnavailable)
		return
	}

	api.JSON(w, http.StatusOK, status)
}

// Consume handles POST /api/v1/quota/consume.
func (h *Handler) Consume(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	rec, err := h.svc.Consume(r.Context(), claims.UserID)
	if err != nil {
		if exhausted, ok := AsExhausted(err); ok {
			api.HandleError(w, api.NewQuotaExhaustedError(exhausted.NextResetAt))
			return
		}
		slog.Error("consuming quota", "error", err, "user_id", claims.UserID)
		api.HandleError(w, api.ErrUnavailable)
		return
	}

	api.JSON(w, http.StatusOK, h.svc.StatusOf(rec))
}

// RecordAttempt handles POST /api/v1/quota/attempts. It sits behind
// Gate.Middleware, so the attempt was admitted before the body is read.
func (h *Handler) RecordAttempt(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req AttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	res := h.gate.ConsumeOnFailure(r.Context(), claims.UserID, Outcome(req.Outcome))
	api.JSON(w, http.StatusOK, res)
}

// History handles GET /api/v1/quota/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	limit := defaultHistoryLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			api.HandleError(w, api.NewBadRequestError("limit must be a positive integer"))
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	records, err := h.svc.History(r.Context(), claims.UserID, limit)
	if err != nil {
		slog.Error("listing quota history", "error", err, "user_id", claims.UserID)
		api.HandleError(w, api.ErrUnavailable)
		return
	}
	if records == nil {
		records = []Record{}
	}

	api.JSON(w, http.StatusOK, records)
}

// AdminResetUser handles POST /api/v1/admin/quota/users/{userID}/reset.
func (h *Handler) AdminResetUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	if userID == "" {
		api.HandleError(w, api.NewBadRequestError("user id is required"))
		return
	}

	rec, err := h.svc.ForceResetUser(r.Context(), userID)
	if err != nil {
		slog.Error("admin: resetting user quota", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrUnavailable)
		return
	}

	api.JSON(w, http.StatusOK, UserResetResponse{
		UserID:         rec.UserID,
		UnitsRemaining: rec.UnitsRemaining,
		RanAt:          rec.UpdatedAt,
	})
}

// AdminTriggerReset handles POST /api/v1/admin/quota/reset. The cycle
// outlives a disconnected client.
func (h *Handler) AdminTriggerReset(w http.ResponseWriter, r *http.Request) {
	res, err := h.scheduler.TriggerNow(context.WithoutCancel(r.Context()))
	if err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			api.HandleError(w, api.ErrResetRunning)
			return
		}
		slog.Error("admin: triggering quota reset", "error", err)
		api.HandleError(w, api.ErrUnavailable)
		return
	}

	api.JSON(w, http.StatusOK, res)
}

// SchedulerStatus handles GET /api/v1/admin/quota/scheduler.
func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	api.JSON(w, http.StatusOK, h.scheduler.Status())
}
