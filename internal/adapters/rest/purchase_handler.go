// Package rest is the request entry point: it validates the inbound request
// shape, forwards it to the orchestrator, and maps the outcome to transport
// status codes (200 success, 400 precondition, 409 saga failure, 500
// unexpected).
package rest

import (
	"context"
	"encoding/json"
	"net/http"

	"tradewind/internal/purchase"
	"tradewind/internal/realtime"

	"go.uber.org/zap"
)

// PurchaseService defines the behavior needed by the REST adapter.
type PurchaseService interface {
	Execute(ctx context.Context, user string, productID, quantity int) (purchase.Outcome, error)
}

// Handler serves the purchase endpoint, health check and websocket feed.
type Handler struct {
	service PurchaseService
	hub     *realtime.Hub
	log     *zap.Logger
}

// NewHandler constructs a Handler. hub may be nil to disable the websocket
// feed; log may be nil.
func NewHandler(service PurchaseService, hub *realtime.Hub, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		service: service,
		hub:     hub,
		log:     log,
	}
}

// Register mounts all routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /purchase", h.purchase)
	mux.HandleFunc("GET /healthz", h.health)
	if h.hub != nil {
		mux.Handle("GET /ws", h.hub.Handler(h.log))
	}
}

type purchaseRequest struct {
	User      string `json:"user"`
	ProductID int    `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type purchaseDetails struct {
	Product          string  `json:"product,omitempty"`
	Quantity         int     `json:"quantity,omitempty"`
	TotalAmount      float64 `json:"totalAmount,omitempty"`
	PaymentID        string  `json:"paymentId,omitempty"`
	PurchaseID       string  `json:"purchaseId,omitempty"`
	StepsCompensated int     `json:"stepsCompensated,omitempty"`
}

type purchaseResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Error   string           `json:"error,omitempty"`
	Details *purchaseDetails `json:"details,omitempty"`
}

func (h *Handler) purchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, purchaseResponse{
			Success: false,
			Message: "malformed request body",
		})
		return
	}

	out, err := h.service.Execute(r.Context(), req.User, req.ProductID, req.Quantity)
	if err != nil {
		if purchase.IsPreconditionError(err) {
			writeJSON(w, http.StatusBadRequest, purchaseResponse{
				Success: false,
				Message: "invalid request",
				Error:   err.Error(),
			})
			return
		}
		h.log.Error("purchase saga error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, purchaseResponse{
			Success: false,
			Message: "internal server error",
		})
		return
	}

	status := http.StatusOK
	if !out.Success {
		status = http.StatusConflict
	}
	writeJSON(w, status, purchaseResponse{
		Success: out.Success,
		Message: out.Message,
		Error:   out.Reason,
		Details: &purchaseDetails{
			Product:          out.Product,
			Quantity:         out.Quantity,
			TotalAmount:      out.TotalAmount,
			PaymentID:        out.PaymentRef,
			PurchaseID:       out.PurchaseRef,
			StepsCompensated: out.StepsCompensated,
		},
	})
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "OK",
		"service": "purchase-orchestrator",
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
