// Package gateway translates the saga's logical operations into HTTP calls
// against the four downstream services and normalizes every outcome into the
// purchase package's result vocabulary.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"tradewind/internal/purchase"

	"go.uber.org/zap"
)

const (
	serviceCatalog   = "catalog"
	servicePayments  = "payments"
	serviceInventory = "inventory"
	servicePurchases = "purchases"
)

const defaultCallTimeout = 5 * time.Second

// Config holds the base address per downstream service and the per-call
// timeout applied to every round trip.
type Config struct {
	CatalogURL   string
	PaymentsURL  string
	InventoryURL string
	PurchasesURL string
	CallTimeout  time.Duration
}

// HTTPGateway implements purchase.Gateway over plain HTTP. Each logical
// operation is exactly one round trip; retries, if any, belong to the caller.
type HTTPGateway struct {
	cfg    Config
	client *http.Client
	log    *zap.Logger
}

// New constructs an HTTPGateway. log may be nil.
func New(cfg Config, log *zap.Logger) *HTTPGateway {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPGateway{
		cfg:    cfg,
		client: &http.Client{},
		log:    log,
	}
}

// FetchProduct reads the product from the catalog. The catalog wraps its
// payload in a success envelope; a missing or incomplete payload is a schema
// violation and classified as unavailable, not as a rejection.
func (g *HTTPGateway) FetchProduct(ctx context.Context, productID int) (purchase.Product, error) {
	var envelope struct {
		Success bool `json:"success"`
		Data    *struct {
			ID    *int     `json:"id"`
			Name  *string  `json:"name"`
			Price *float64 `json:"price"`
		} `json:"data"`
	}

	url := fmt.Sprintf("%s/products/%d", g.cfg.CatalogURL, productID)
	if err := g.getJSON(ctx, serviceCatalog, url, &envelope); err != nil {
		return purchase.Product{}, err
	}

	d := envelope.Data
	if !envelope.Success || d == nil || d.ID == nil || d.Name == nil || d.Price == nil {
		return purchase.Product{}, &purchase.UnavailableError{
			Service: serviceCatalog,
			Err:     errors.New("response missing product payload"),
		}
	}
	return purchase.Product{ID: *d.ID, Name: *d.Name, Price: *d.Price}, nil
}

// ChargePayment posts a charge. A 409 from the service is an explicit
// decline.
func (g *HTTPGateway) ChargePayment(ctx context.Context, amount float64, user string) (string, error) {
	body := map[string]any{
		"amount": amount,
		"method": "card",
		"user":   user,
	}
	var resp struct {
		TransactionID string `json:"transactionId"`
	}
	if err := g.postJSON(ctx, servicePayments, g.cfg.PaymentsURL+"/transactions", "payment declined", body, &resp); err != nil {
		return "", err
	}
	if resp.TransactionID == "" {
		return "", &purchase.UnavailableError{Service: servicePayments, Err: errors.New("response missing transaction id")}
	}
	return resp.TransactionID, nil
}

// AdjustInventory decrements stock. A 409 means insufficient stock.
func (g *HTTPGateway) AdjustInventory(ctx context.Context, productID, quantity int) error {
	body := map[string]any{
		"productId": productID,
		"quantity":  quantity,
	}
	return g.postJSON(ctx, serviceInventory, g.cfg.InventoryURL+"/transactions", "insufficient stock", body, nil)
}

// RegisterPurchase records the purchase and returns its reference.
func (g *HTTPGateway) RegisterPurchase(ctx context.Context, user string, productID, quantity int, amount float64) (string, error) {
	body := map[string]any{
		"user":      user,
		"productId": productID,
		"quantity":  quantity,
		"amount":    amount,
	}
	var resp struct {
		PurchaseID string `json:"purchaseId"`
	}
	if err := g.postJSON(ctx, servicePurchases, g.cfg.PurchasesURL+"/transactions", "purchase registration rejected", body, &resp); err != nil {
		return "", err
	}
	if resp.PurchaseID == "" {
		return "", &purchase.UnavailableError{Service: servicePurchases, Err: errors.New("response missing purchase id")}
	}
	return resp.PurchaseID, nil
}

// Compensate posts the reverse operation for one completed step. The caller
// treats the result as best-effort; this layer only reports it.
func (g *HTTPGateway) Compensate(ctx context.Context, kind purchase.StepKind, data purchase.StepData) error {
	var baseURL string
	var body map[string]any

	switch kind {
	case purchase.StepPayment:
		baseURL = g.cfg.PaymentsURL
		body = map[string]any{"transactionId": data.PaymentRef, "amount": data.Amount}
	case purchase.StepInventory:
		baseURL = g.cfg.InventoryURL
		body = map[string]any{"productId": data.ProductID, "quantity": data.Quantity}
	case purchase.StepRegistration:
		baseURL = g.cfg.PurchasesURL
		body = map[string]any{"purchaseId": data.PurchaseRef, "user": data.User}
	default:
		return fmt.Errorf("unknown step kind %q", kind)
	}

	service := serviceFor(kind)
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s compensation: %w", service, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, baseURL+"/compensate", bytes.NewReader(payload))
	if err != nil {
		return &purchase.UnavailableError{Service: service, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return &purchase.UnavailableError{Service: service, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &purchase.UnavailableError{
			Service: service,
			Err:     fmt.Errorf("compensate returned status %d", resp.StatusCode),
		}
	}
	return nil
}

func (g *HTTPGateway) getJSON(ctx context.Context, service, url string, out any) error {
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, url, nil)
	if err != nil {
		return &purchase.UnavailableError{Service: service, Err: err}
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return &purchase.UnavailableError{Service: service, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &purchase.UnavailableError{Service: service, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &purchase.UnavailableError{Service: service, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// postJSON performs one POST round trip. A 409 becomes a RejectionError with
// the remote's message when present, falling back to defaultReason; every
// other failure becomes an UnavailableError.
func (g *HTTPGateway) postJSON(ctx context.Context, service, url, defaultReason string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", service, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return &purchase.UnavailableError{Service: service, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return &purchase.UnavailableError{Service: service, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return &purchase.RejectionError{Service: service, Reason: rejectionReason(resp, defaultReason)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &purchase.UnavailableError{Service: service, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &purchase.UnavailableError{Service: service, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func rejectionReason(resp *http.Response, fallback string) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Message != "" {
		return body.Message
	}
	return fallback
}

func serviceFor(kind purchase.StepKind) string {
	switch kind {
	case purchase.StepPayment:
		return servicePayments
	case purchase.StepInventory:
		return serviceInventory
	case purchase.StepRegistration:
		return servicePurchases
	default:
		return string(kind)
	}
}
