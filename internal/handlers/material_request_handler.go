package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"vendfleet-backend/internal/middleware"
	"vendfleet-backend/internal/models"
	"vendfleet-backend/internal/services"
	"vendfleet-backend/pkg/utils"
)

type MaterialRequestHandler struct {
	Service *services.MaterialRequestService
	Query   *services.MaterialRequestQueryService
	Sheets  *services.OrderSheetService
}

func NewMaterialRequestHandler(service *services.MaterialRequestService, query *services.MaterialRequestQueryService, sheets *services.OrderSheetService) *MaterialRequestHandler {
	return &MaterialRequestHandler{Service: service, Query: query, Sheets: sheets}
}

// RegisterRoutes mounts the material request API on an authenticated router.
// Fixed paths come before /{id} so mux does not take them for ids.
func (h *MaterialRequestHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/material-requests", h.ListMaterialRequests).Methods(http.MethodGet)
	r.HandleFunc("/material-requests", h.CreateMaterialRequest).Methods(http.MethodPost)
	r.HandleFunc("/material-requests/stats", h.GetStats).Methods(http.MethodGet)
	r.HandleFunc("/material-requests/pending-approvals", h.GetPendingApprovals).Methods(http.MethodGet)

	r.HandleFunc("/material-requests/{id}", h.GetMaterialRequest).Methods(http.MethodGet)
	r.HandleFunc("/material-requests/{id}", h.UpdateMaterialRequest).Methods(http.MethodPut, http.MethodPatch)
	r.HandleFunc("/material-requests/{id}", h.DeleteMaterialRequest).Methods(http.MethodDelete)
	r.HandleFunc("/material-requests/{id}/history", h.GetHistory).Methods(http.MethodGet)
	r.HandleFunc("/material-requests/{id}/payments", h.GetPayments).Methods(http.MethodGet)
	r.HandleFunc("/material-requests/{id}/document.pdf", h.GetOrderSheet).Methods(http.MethodGet)

	r.HandleFunc("/material-requests/{id}/submit", h.Submit).Methods(http.MethodPost)
	r.HandleFunc("/material-requests/{id}/approve", h.Approve).Methods(http.MethodPost)
	r.HandleFunc("/material-requests/{id}/reject", h.Reject).Methods(http.MethodPost)
	r.HandleFunc("/material-requests/{id}/return-to-draft", h.ReturnToDraft).Methods(http.MethodPost)
	r.HandleFunc("/material-requests/{id}/send", h.SendToSupplier).Methods(http.MethodPost)
	r.HandleFunc("/material-requests/{id}/payments", h.RecordPayment).Methods(http.MethodPost)
	r.HandleFunc("/material-requests/{id}/deliver", h.ConfirmDelivery).Methods(http.MethodPost)
	r.HandleFunc("/material-requests/{id}/cancel", h.Cancel).Methods(http.MethodPost)
	r.HandleFunc("/material-requests/{id}/complete", h.Complete).Methods(http.MethodPost)
}

// ListMaterialRequests returns one page of the organization's requests
func (h *MaterialRequestHandler) ListMaterialRequests(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := models.MaterialRequestFilter{
		Status:      models.MaterialRequestStatus(q.Get("status")),
		Priority:    models.Priority(q.Get("priority")),
		RequesterID: q.Get("requesterId"),
		SupplierID:  q.Get("supplierId"),
		Search:      q.Get("search"),
		SortBy:      q.Get("sortBy"),
		SortOrder:   q.Get("sortOrder"),
	}
	var err error
	if filter.Page, err = intParam(q.Get("page")); err != nil {
		utils.Error(w, http.StatusBadRequest, "BAD_REQUEST", "page must be an integer")
		return
	}
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		utils.Error(w, http.StatusBadRequest, "BAD_REQUEST", "limit must be an integer")
		return
	}

	page, err := h.Query.GetRequests(r.Context(), actor.OrganizationID, filter)
	if err != nil {
		utils.AppError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, page)
}

func (h *MaterialRequestHandler) CreateMaterialRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	var req models.CreateMaterialRequestRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	mr, err := h.Service.CreateMaterialRequest(r.Context(), actor, &req)
	if err != nil {
		utils.AppError(w, err)
		return
	}
	utils.JSON(w, http.StatusCreated, mr)
}

func (h *MaterialRequestHandler) GetMaterialRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	mr, err := h.Query.GetRequest(r.Context(), actor.OrganizationID, mux.Vars(r)["id"])
	if err != nil {
		utils.AppError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, mr)
}

func (h *MaterialRequestHandler) UpdateMaterialRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	var req models.UpdateMaterialRequestRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	mr, err := h.Service.UpdateMaterialRequest(r.Context(), actor, mux.Vars(r)["id"], &req)
	if err != nil {
		utils.AppError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, mr)
}

func (h *MaterialRequestHandler) DeleteMaterialRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	if err := h.Service.DeleteMaterialRequest(r.Context(), actor, mux.Vars(r)["id"]); err != nil {
		utils.AppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MaterialRequestHandler) Submit(w http.ResponseWriter, r *http.Request) {
	h.commentCommand(w, r, h.Service.Submit)
}

func (h *MaterialRequestHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.commentCommand(w, r, h.Service.Approve)
}

func (h *MaterialRequestHandler) ReturnToDraft(w http.ResponseWriter, r *http.Request) {
	h.commentCommand(w, r, h.Service.ReturnToDraft)
}

func (h *MaterialRequestHandler) SendToSupplier(w http.ResponseWriter, r *http.Request) {
	h.commentCommand(w, r, h.Service.SendToSupplier)
}

func (h *MaterialRequestHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.commentCommand(w, r, h.Service.Complete)
}

func (h *MaterialRequestHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.reasonCommand(w, r, h.Service.Reject)
}

func (h *MaterialRequestHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.reasonCommand(w, r, h.Service.Cancel)
}

func (h *MaterialRequestHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	var req models.RecordPaymentRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	mr, err := h.Service.RecordPayment(r.Context(), actor, mux.Vars(r)["id"], &req)
	if err != nil {
		utils.AppError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, mr)
}

func (h *MaterialRequestHandler) ConfirmDelivery(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	var req models.ConfirmDeliveryRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	mr, err := h.Service.ConfirmDelivery(r.Context(), actor, mux.Vars(r)["id"], &req)
	if err != nil {
		utils.AppError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, mr)
}

func (h *MaterialRequestHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	stats, err := h.Query.GetStats(r.Context(), actor.OrganizationID)
	if err != nil {
		utils.AppError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, stats)
}

func (h *MaterialRequestHandler) GetPendingApprovals(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	pending, err := h.Query.GetPendingApprovals(r.Context(), actor.OrganizationID)
	if err != nil {
		utils.AppError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, pending)
}

func (h *MaterialRequestHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	history, err := h.Query.GetRequestHistory(r.Context(), actor.OrganizationID, mux.Vars(r)["id"])
	if err != nil {
		utils.AppError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, history)
}

func (h *MaterialRequestHandler) GetPayments(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	payments, err := h.Query.GetPayments(r.Context(), actor.OrganizationID, mux.Vars(r)["id"])
	if err != nil {
		utils.AppError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, payments)
}

// GetOrderSheet streams the supplier order sheet PDF. ?archive=true also
// stores a copy in the object store and returns its key in X-Archive-Key.
func (h *MaterialRequestHandler) GetOrderSheet(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	archive, _ := strconv.ParseBool(r.URL.Query().Get("archive"))
	sheet, err := h.Sheets.Render(r.Context(), actor, mux.Vars(r)["id"], archive)
	if err != nil {
		utils.AppError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "inline; filename="+sheet.RequestNumber+".pdf")
	if sheet.ArchiveKey != "" {
		w.Header().Set("X-Archive-Key", sheet.ArchiveKey)
	}
	w.WriteHeader(http.StatusOK)
	w.Write(sheet.PDF)
}

type commandFunc func(ctx context.Context, actor models.Actor, id, text string) (*models.MaterialRequest, error)

// commentCommand runs a command whose payload is an optional comment.
func (h *MaterialRequestHandler) commentCommand(w http.ResponseWriter, r *http.Request, run commandFunc) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	var req models.TransitionRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	mr, err := run(r.Context(), actor, mux.Vars(r)["id"], req.Comment)
	if err != nil {
		utils.AppError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, mr)
}

// reasonCommand runs a command that requires a reason. An empty reason is
// left for the service to reject.
func (h *MaterialRequestHandler) reasonCommand(w http.ResponseWriter, r *http.Request, run commandFunc) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	var req models.ReasonRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	mr, err := run(r.Context(), actor, mux.Vars(r)["id"], req.Reason)
	if err != nil {
		utils.AppError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, mr)
}

func actorOrUnauthorized(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	actor, ok := middleware.GetActorFromContext(r.Context())
	if !ok {
		utils.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return models.Actor{}, false
	}
	return actor, true
}

// decodeBody reads JSON into dst, answering 400 on malformed input. With
// allowEmpty an empty body leaves dst zeroed.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}, allowEmpty bool) bool {
	if r.Body == nil {
		if allowEmpty {
			return true
		}
		utils.Error(w, http.StatusBadRequest, "BAD_REQUEST", "Request body required")
		return false
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return true
		}
		utils.Error(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return false
	}
	return true
}

const maxBodyBytes = 1 << 20

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
