// Package stubs provides local stand-ins for the four downstream services:
// catalog, payments, inventory and purchases. Each perform operation accepts
// or declines via an injectable decision func (random by default), and every
// service exposes a compensate endpoint that always acknowledges. The stubs
// back local runs and the gateway's integration tests.
package stubs

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Decider decides whether a stubbed operation is accepted.
type Decider func() bool

// RateDecider accepts with the given probability.
func RateDecider(successRate float64) Decider {
	return func() bool {
		return rand.Float64() < successRate
	}
}

// Always accepts or declines unconditionally.
func Always(accept bool) Decider {
	return func() bool { return accept }
}

// Options configures one stub service.
type Options struct {
	Decide  Decider              // nil means always accept
	Latency func() time.Duration // optional simulated latency
	Log     *zap.Logger
	NewRef  func(prefix string) string // nil means uuid-based refs
}

func (o Options) normalized() Options {
	if o.Decide == nil {
		o.Decide = Always(true)
	}
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	if o.NewRef == nil {
		o.NewRef = func(prefix string) string {
			return prefix + "-" + uuid.NewString()
		}
	}
	return o
}

func (o Options) simulateLatency() {
	if o.Latency != nil {
		time.Sleep(o.Latency())
	}
}

// JitterLatency returns a latency func uniform in [min, min+spread).
func JitterLatency(min, spread time.Duration) func() time.Duration {
	return func() time.Duration {
		if spread <= 0 {
			return min
		}
		return min + time.Duration(rand.Int63n(int64(spread)))
	}
}

type product struct {
	ID    int     `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

var catalogProducts = []product{
	{ID: 1, Name: "Laptop", Price: 1200},
	{ID: 2, Name: "Mouse", Price: 25},
	{ID: 3, Name: "Keyboard", Price: 75},
	{ID: 4, Name: "Monitor", Price: 300},
	{ID: 5, Name: "Webcam", Price: 80},
}

// NewCatalogHandler serves GET /products/{id} with the success envelope the
// gateway consumes. Unknown product ids return 404.
func NewCatalogHandler(opts Options) http.Handler {
	opts = opts.normalized()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /products/{id}", func(w http.ResponseWriter, r *http.Request) {
		opts.simulateLatency()

		id, err := strconv.Atoi(r.PathValue("id"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "invalid product id"})
			return
		}
		for _, p := range catalogProducts {
			if p.ID == id {
				opts.Log.Info("product requested", zap.String("name", p.Name))
				writeJSON(w, http.StatusOK, envelope{
					Success:   true,
					Message:   "product found",
					Data:      p,
					Timestamp: now(),
				})
				return
			}
		}
		writeJSON(w, http.StatusNotFound, envelope{Success: false, Message: "product not found"})
	})
	return mux
}

// NewPaymentsHandler serves POST /transactions (charge, 409 on decline) and
// POST /compensate (refund, always acknowledged).
func NewPaymentsHandler(opts Options) http.Handler {
	opts = opts.normalized()
	mux := http.NewServeMux()

	mux.HandleFunc("POST /transactions", func(w http.ResponseWriter, r *http.Request) {
		opts.simulateLatency()

		var req struct {
			Amount float64 `json:"amount"`
			Method string  `json:"method"`
			User   string  `json:"user"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "malformed request"})
			return
		}

		if !opts.Decide() {
			opts.Log.Info("payment declined", zap.Float64("amount", req.Amount), zap.String("user", req.User))
			writeJSON(w, http.StatusConflict, envelope{
				Success:   false,
				Message:   "payment declined",
				Timestamp: now(),
			})
			return
		}

		ref := opts.NewRef("PAY")
		opts.Log.Info("payment processed", zap.Float64("amount", req.Amount), zap.String("ref", ref))
		writeJSON(w, http.StatusOK, map[string]any{
			"success":       true,
			"message":       "payment processed",
			"transactionId": ref,
			"amount":        req.Amount,
			"timestamp":     now(),
		})
	})

	mux.HandleFunc("POST /compensate", func(w http.ResponseWriter, r *http.Request) {
		opts.simulateLatency()

		var req struct {
			TransactionID string  `json:"transactionId"`
			Amount        float64 `json:"amount"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "malformed request"})
			return
		}
		opts.Log.Info("refund issued", zap.String("ref", req.TransactionID), zap.Float64("amount", req.Amount))
		writeJSON(w, http.StatusOK, map[string]any{
			"success":       true,
			"message":       "refund processed",
			"transactionId": req.TransactionID,
			"amount":        req.Amount,
			"timestamp":     now(),
		})
	})

	return mux
}

// NewInventoryHandler serves POST /transactions (stock decrement, 409 when
// stock is insufficient) and POST /compensate (stock restore).
func NewInventoryHandler(opts Options) http.Handler {
	opts = opts.normalized()
	mux := http.NewServeMux()

	mux.HandleFunc("POST /transactions", func(w http.ResponseWriter, r *http.Request) {
		opts.simulateLatency()

		var req struct {
			ProductID int `json:"productId"`
			Quantity  int `json:"quantity"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "malformed request"})
			return
		}

		if !opts.Decide() {
			opts.Log.Info("insufficient stock", zap.Int("product_id", req.ProductID), zap.Int("quantity", req.Quantity))
			writeJSON(w, http.StatusConflict, envelope{
				Success:   false,
				Message:   "insufficient stock",
				Timestamp: now(),
			})
			return
		}

		opts.Log.Info("stock updated", zap.Int("product_id", req.ProductID), zap.Int("quantity", req.Quantity))
		writeJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"message":   "stock updated",
			"productId": req.ProductID,
			"quantity":  req.Quantity,
		})
	})

	mux.HandleFunc("POST /compensate", func(w http.ResponseWriter, r *http.Request) {
		opts.simulateLatency()

		var req struct {
			ProductID int `json:"productId"`
			Quantity  int `json:"quantity"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "malformed request"})
			return
		}
		opts.Log.Info("stock restored", zap.Int("product_id", req.ProductID), zap.Int("quantity", req.Quantity))
		writeJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"message":   "stock restored",
			"productId": req.ProductID,
			"quantity":  req.Quantity,
		})
	})

	return mux
}

// NewPurchasesHandler serves POST /transactions (purchase registration, 409
// on rejection) and POST /compensate (registration removal).
func NewPurchasesHandler(opts Options) http.Handler {
	opts = opts.normalized()
	mux := http.NewServeMux()

	mux.HandleFunc("POST /transactions", func(w http.ResponseWriter, r *http.Request) {
		opts.simulateLatency()

		var req struct {
			User      string  `json:"user"`
			ProductID int     `json:"productId"`
			Quantity  int     `json:"quantity"`
			Amount    float64 `json:"amount"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "malformed request"})
			return
		}

		if !opts.Decide() {
			opts.Log.Info("purchase rejected", zap.String("user", req.User), zap.Int("product_id", req.ProductID))
			writeJSON(w, http.StatusConflict, envelope{
				Success:   false,
				Message:   "purchase registration rejected",
				Timestamp: now(),
			})
			return
		}

		ref := opts.NewRef("PUR")
		opts.Log.Info("purchase registered", zap.String("user", req.User), zap.String("ref", ref))
		writeJSON(w, http.StatusOK, map[string]any{
			"success":    true,
			"message":    "purchase registered",
			"purchaseId": ref,
			"timestamp":  now(),
		})
	})

	mux.HandleFunc("POST /compensate", func(w http.ResponseWriter, r *http.Request) {
		opts.simulateLatency()

		var req struct {
			PurchaseID string `json:"purchaseId"`
			User       string `json:"user"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "malformed request"})
			return
		}
		opts.Log.Info("purchase removed", zap.String("ref", req.PurchaseID), zap.String("user", req.User))
		writeJSON(w, http.StatusOK, map[string]any{
			"success":    true,
			"message":    "purchase removed",
			"purchaseId": req.PurchaseID,
			"timestamp":  now(),
		})
	})

	return mux
}

type envelope struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
