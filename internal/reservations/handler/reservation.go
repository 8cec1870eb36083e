package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"courtq/internal/reservations/service"
	"courtq/internal/reservations/sweeper"
	"courtq/pkg/auth"
	apperrors "courtq/pkg/errors"
	httputil "courtq/pkg/http"
	"courtq/pkg/logger"
	"courtq/pkg/model"

	"github.com/julienschmidt/httprouter"
)

// Sweeper runs one synchronous reclaim pass.
type Sweeper interface {
	RunOnce(ctx context.Context) sweeper.Result
}

type ReservationHandler struct {
	service service.ReservationService
	sweeper Sweeper
	log     *logger.Logger
}

func NewReservationHandler(service service.ReservationService, sweeper Sweeper, log *logger.Logger) *ReservationHandler {
	return &ReservationHandler{
		service: service,
		sweeper: sweeper,
		log:     log,
	}
}

func (h *ReservationHandler) RequestSlot(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	actor, ok := h.identity(w, r, "RequestSlot")
	if !ok {
		return
	}

	var req model.ReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "RequestSlot", apperrors.InvalidInput("Invalid request body"))
		return
	}

	outcome, err := h.service.RequestSlot(r.Context(), actor.RequesterID, &req)
	if err != nil {
		h.writeError(w, "RequestSlot", err)
		return
	}

	if err := httputil.WriteCreated(w, outcome); err != nil {
		h.log.Error("failed to write created response", "handler", "RequestSlot", "operation", "WriteCreated", "error", err)
	}
}

func (h *ReservationHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, ok := h.identity(w, r, "GetByID")
	if !ok {
		return
	}

	reservation, err := h.service.GetByID(r.Context(), ps.ByName("id"), actor)
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, reservation); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ReservationHandler) ListMine(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	actor, ok := h.identity(w, r, "ListMine")
	if !ok {
		return
	}

	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "ListMine", err)
		return
	}

	reservations, total, err := h.service.ListByRequester(r.Context(), actor.RequesterID, limit, offset)
	if err != nil {
		h.writeError(w, "ListMine", err)
		return
	}

	if err := httputil.WritePaginated(w, reservations, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "ListMine", "operation", "WritePaginated", "error", err)
	}
}

func (h *ReservationHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, ok := h.identity(w, r, "ConfirmPayment")
	if !ok {
		return
	}

	reservation, err := h.service.ConfirmPayment(r.Context(), ps.ByName("id"), actor)
	if err != nil {
		h.writeError(w, "ConfirmPayment", err)
		return
	}

	if err := httputil.WriteSuccess(w, reservation); err != nil {
		h.log.Error("failed to write success response", "handler", "ConfirmPayment", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ReservationHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, ok := h.identity(w, r, "Cancel")
	if !ok {
		return
	}

	var req model.CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, "Cancel", apperrors.InvalidInput("Invalid request body"))
		return
	}

	reservation, err := h.service.Cancel(r.Context(), ps.ByName("id"), actor, &req)
	if err != nil {
		h.writeError(w, "Cancel", err)
		return
	}

	if err := httputil.WriteSuccess(w, reservation); err != nil {
		h.log.Error("failed to write success response", "handler", "Cancel", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ReservationHandler) SlotStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	query := r.URL.Query()
	resourceID, date, startTime := query.Get("resource_id"), query.Get("date"), query.Get("start_time")
	if resourceID == "" || date == "" || startTime == "" {
		h.writeError(w, "SlotStatus", apperrors.InvalidInput("'resource_id', 'date' and 'start_time' query parameters are required"))
		return
	}

	status, err := h.service.GetSlotStatus(r.Context(), resourceID, date, startTime)
	if err != nil {
		h.writeError(w, "SlotStatus", err)
		return
	}

	if err := httputil.WriteSuccess(w, status); err != nil {
		h.log.Error("failed to write success response", "handler", "SlotStatus", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ReservationHandler) SlotQueue(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if _, ok := h.admin(w, r, "SlotQueue"); !ok {
		return
	}

	query := r.URL.Query()
	resourceID, date, startTime := query.Get("resource_id"), query.Get("date"), query.Get("start_time")
	if resourceID == "" || date == "" || startTime == "" {
		h.writeError(w, "SlotQueue", apperrors.InvalidInput("'resource_id', 'date' and 'start_time' query parameters are required"))
		return
	}

	rows, err := h.service.ListSlot(r.Context(), resourceID, date, startTime)
	if err != nil {
		h.writeError(w, "SlotQueue", err)
		return
	}

	if err := httputil.WriteSuccess(w, rows); err != nil {
		h.log.Error("failed to write success response", "handler", "SlotQueue", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ReservationHandler) Sweep(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	actor, ok := h.admin(w, r, "Sweep")
	if !ok {
		return
	}
	if h.sweeper == nil {
		h.writeError(w, "Sweep", apperrors.Unavailable("sweeper"))
		return
	}

	result := h.sweeper.RunOnce(r.Context())
	h.log.Info("Manual sweep triggered", "requester_id", actor.RequesterID, "reclaimed", result.Reclaimed, "promoted", result.Promoted)

	if err := httputil.WriteSuccess(w, result); err != nil {
		h.log.Error("failed to write success response", "handler", "Sweep", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ReservationHandler) identity(w http.ResponseWriter, r *http.Request, handler string) (auth.Identity, bool) {
	actor, ok := auth.FromContext(r.Context())
	if !ok || actor.RequesterID == "" {
		h.writeError(w, handler, apperrors.Unauthorized("Authentication required"))
		return auth.Identity{}, false
	}
	return actor, true
}

func (h *ReservationHandler) admin(w http.ResponseWriter, r *http.Request, handler string) (auth.Identity, bool) {
	actor, ok := h.identity(w, r, handler)
	if !ok {
		return actor, false
	}
	if !actor.IsAdmin() {
		h.writeError(w, handler, apperrors.Forbidden("Admin role required"))
		return actor, false
	}
	return actor, true
}

func (h *ReservationHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *ReservationHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/reservations", h.RequestSlot)
	router.GET("/api/v1/reservations/mine", h.ListMine)
	router.GET("/api/v1/reservations/id/:id", h.GetByID)
	router.POST("/api/v1/reservations/id/:id/confirm", h.ConfirmPayment)
	router.POST("/api/v1/reservations/id/:id/cancel", h.Cancel)
	router.GET("/api/v1/slots/status", h.SlotStatus)
	router.GET("/api/v1/slots/queue", h.SlotQueue)
	router.POST("/api/v1/admin/sweep", h.Sweep)
}
