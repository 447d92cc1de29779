package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/aeromarket/transfercore/internal/apperr"
	"github.com/aeromarket/transfercore/internal/service"
)

// AdminHandler exposes the manual escape-hatch operations of AdminService.
type AdminHandler struct {
	admin *service.AdminService
}

// NewAdminHandler creates an admin handler wired to the given service.
func NewAdminHandler(admin *service.AdminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

// ForceCloseBidding handles POST /api/v1/admin/jobs/{job_id}/force-close.
func (h *AdminHandler) ForceCloseBidding(w http.ResponseWriter, r *http.Request) {
	h.jobAction(w, r, h.admin.ForceCloseBidding)
}

// ReopenBidding handles POST /api/v1/admin/jobs/{job_id}/reopen.
func (h *AdminHandler) ReopenBidding(w http.ResponseWriter, r *http.Request) {
	h.jobAction(w, r, h.admin.ReopenBidding)
}

// CancelJob handles POST /api/v1/admin/jobs/{job_id}/cancel.
func (h *AdminHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	h.jobAction(w, r, h.admin.CancelJob)
}

// CompleteJob handles POST /api/v1/admin/jobs/{job_id}/complete.
func (h *AdminHandler) CompleteJob(w http.ResponseWriter, r *http.Request) {
	h.jobAction(w, r, h.admin.CompleteJob)
}

func (h *AdminHandler) jobAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, jobID uuid.UUID) error) {
	jobID, err := uuid.Parse(mux.Vars(r)["job_id"])
	if err != nil {
		writeError(w, r, apperr.Validation("invalid job_id: %v", err))
		return
	}
	if err := action(r.Context(), jobID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type assignRequest struct {
	OperatorID uuid.UUID `json:"operator_id" validate:"required"`
	Amount     string    `json:"amount" validate:"required"`
}

// ManualAssign handles POST /api/v1/admin/jobs/{job_id}/assign.
func (h *AdminHandler) ManualAssign(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(mux.Vars(r)["job_id"])
	if err != nil {
		writeError(w, r, apperr.Validation("invalid job_id: %v", err))
		return
	}

	var req assignRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, r, apperr.Validation("%v", err))
		return
	}

	amount, err := parseMoney(req.Amount)
	if err != nil {
		writeError(w, r, apperr.Validation("invalid amount: %v", err))
		return
	}

	if err := h.admin.ManualAssign(r.Context(), jobID, req.OperatorID, amount); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
