package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/aeromarket/transfercore/internal/apperr"
	"github.com/aeromarket/transfercore/internal/model"
	"github.com/aeromarket/transfercore/internal/service"
)

// WebhookHandler consumes the two booking lifecycle events the auction
// core reacts to: BookingPaid opens a Job, BookingCancelled tears one down.
type WebhookHandler struct {
	engine *service.AuctionEngine
}

// NewWebhookHandler creates a webhook handler wired to the auction engine.
func NewWebhookHandler(engine *service.AuctionEngine) *WebhookHandler {
	return &WebhookHandler{engine: engine}
}

// bookingPaidPayload mirrors the BookingPaid event body.
type bookingPaidPayload struct {
	ID              uuid.UUID        `json:"id" validate:"required"`
	CustomerID      uuid.UUID        `json:"customer_id" validate:"required"`
	CustomerPrice   string           `json:"customer_price" validate:"required"`
	PickupPostcode  *string          `json:"pickup_postcode"`
	PickupAddress   string           `json:"pickup_address" validate:"required"`
	DropoffAddress  string           `json:"dropoff_address" validate:"required"`
	DropoffPostcode *string          `json:"dropoff_postcode"`
	VehicleType     string           `json:"vehicle_type" validate:"required"`
	PickupDatetime  time.Time        `json:"pickup_datetime" validate:"required"`
	JourneyType     model.JourneyType `json:"journey_type" validate:"required"`
	BookingGroupID  *uuid.UUID       `json:"booking_group_id"`
}

// BookingPaid handles POST /api/v1/webhooks/booking-paid.
func (h *WebhookHandler) BookingPaid(w http.ResponseWriter, r *http.Request) {
	var payload bookingPaidPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validate.Struct(payload); err != nil {
		writeError(w, r, apperr.Validation("%v", err))
		return
	}

	price, err := parseMoney(payload.CustomerPrice)
	if err != nil {
		writeError(w, r, apperr.Validation("invalid customer_price: %v", err))
		return
	}

	booking := model.Booking{
		ID:              payload.ID,
		CustomerID:      payload.CustomerID,
		CustomerPrice:   price,
		PickupPostcode:  payload.PickupPostcode,
		PickupAddress:   payload.PickupAddress,
		DropoffAddress:  payload.DropoffAddress,
		DropoffPostcode: payload.DropoffPostcode,
		VehicleType:     payload.VehicleType,
		PickupDatetime:  payload.PickupDatetime,
		JourneyType:     payload.JourneyType,
		BookingGroupID:  payload.BookingGroupID,
	}

	job, err := h.engine.CreateJobFromBookingPaid(r.Context(), booking)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

type bookingCancelledPayload struct {
	BookingID uuid.UUID `json:"booking_id" validate:"required"`
}

// BookingCancelled handles POST /api/v1/webhooks/booking-cancelled.
func (h *WebhookHandler) BookingCancelled(w http.ResponseWriter, r *http.Request) {
	var payload bookingCancelledPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validate.Struct(payload); err != nil {
		writeError(w, r, apperr.Validation("%v", err))
		return
	}

	if err := h.engine.HandleBookingCancelled(r.Context(), payload.BookingID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}
