package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/aeromarket/transfercore/internal/apperr"
	"github.com/aeromarket/transfercore/internal/service"
)

// BidHandler exposes the C6 Bid Gateway operations to operators.
type BidHandler struct {
	gateway *service.BidGateway
}

// NewBidHandler creates a bid handler wired to the given gateway.
func NewBidHandler(gateway *service.BidGateway) *BidHandler {
	return &BidHandler{gateway: gateway}
}

type bidRequest struct {
	BidID      *uuid.UUID `json:"bid_id"`
	OperatorID uuid.UUID  `json:"operator_id" validate:"required"`
	Amount     string     `json:"amount" validate:"required"`
	Notes      *string    `json:"notes"`
}

// PlaceOrUpdateBid handles POST /api/v1/jobs/{job_id}/bids. A body with no
// bid_id places a new bid; a body carrying bid_id revises that operator's
// existing one, the combined placeBid/updateBid route.
func (h *BidHandler) PlaceOrUpdateBid(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(mux.Vars(r)["job_id"])
	if err != nil {
		writeError(w, r, apperr.Validation("invalid job_id: %v", err))
		return
	}

	var req bidRequest
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

	if req.BidID != nil {
		if err := h.gateway.UpdateBid(r.Context(), jobID, *req.BidID, req.OperatorID, amount, req.Notes); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
		return
	}

	bid, err := h.gateway.PlaceBid(r.Context(), jobID, req.OperatorID, amount, req.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, bid)
}

type withdrawRequest struct {
	OperatorID uuid.UUID `json:"operator_id" validate:"required"`
}

// WithdrawBid handles DELETE /api/v1/bids/{bid_id}.
func (h *BidHandler) WithdrawBid(w http.ResponseWriter, r *http.Request) {
	bidID, err := uuid.Parse(mux.Vars(r)["bid_id"])
	if err != nil {
		writeError(w, r, apperr.Validation("invalid bid_id: %v", err))
		return
	}

	var req withdrawRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, r, apperr.Validation("%v", err))
		return
	}

	if err := h.gateway.WithdrawBid(r.Context(), bidID, req.OperatorID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "withdrawn"})
}

type offerResponseRequest struct {
	OperatorID uuid.UUID `json:"operator_id" validate:"required"`
}

// AcceptOffer handles POST /api/v1/jobs/{job_id}/offer/accept.
func (h *BidHandler) AcceptOffer(w http.ResponseWriter, r *http.Request) {
	h.respondToOffer(w, r, h.gateway.AcceptOffer)
}

// DeclineOffer handles POST /api/v1/jobs/{job_id}/offer/decline.
func (h *BidHandler) DeclineOffer(w http.ResponseWriter, r *http.Request) {
	h.respondToOffer(w, r, h.gateway.DeclineOffer)
}

func (h *BidHandler) respondToOffer(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, jobID, operatorID uuid.UUID) error) {
	jobID, err := uuid.Parse(mux.Vars(r)["job_id"])
	if err != nil {
		writeError(w, r, apperr.Validation("invalid job_id: %v", err))
		return
	}

	var req offerResponseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, r, apperr.Validation("%v", err))
		return
	}

	if err := action(r.Context(), jobID, req.OperatorID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListMyOffers handles GET /api/v1/operators/{operator_id}/offers.
func (h *BidHandler) ListMyOffers(w http.ResponseWriter, r *http.Request) {
	operatorID, err := uuid.Parse(mux.Vars(r)["operator_id"])
	if err != nil {
		writeError(w, r, apperr.Validation("invalid operator_id: %v", err))
		return
	}

	bids, err := h.gateway.ListMyOffers(r.Context(), operatorID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bids)
}
