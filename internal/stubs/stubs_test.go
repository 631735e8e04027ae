package stubs

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func getJSON(t *testing.T, handler http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("response is not valid JSON: %v\n%s", err, rec.Body.String())
		}
	}
	return rec, decoded
}

func TestCatalog_KnownProduct(t *testing.T) {
	handler := NewCatalogHandler(Options{})

	rec, body := getJSON(t, handler, http.MethodGet, "/products/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body["success"] != true {
		t.Fatalf("success = %v", body["success"])
	}
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("data missing: %v", body)
	}
	if data["name"] != "Laptop" || data["price"] != float64(1200) {
		t.Fatalf("unexpected product: %v", data)
	}
}

func TestCatalog_UnknownProduct(t *testing.T) {
	handler := NewCatalogHandler(Options{})

	rec, body := getJSON(t, handler, http.MethodGet, "/products/99", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if body["success"] != false {
		t.Fatalf("success = %v", body["success"])
	}
}

func TestCatalog_BadProductID(t *testing.T) {
	handler := NewCatalogHandler(Options{})

	rec, _ := getJSON(t, handler, http.MethodGet, "/products/abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestPayments_ChargeAccepted(t *testing.T) {
	handler := NewPaymentsHandler(Options{
		Decide: Always(true),
		NewRef: func(prefix string) string { return prefix + "-test" },
	})

	rec, body := getJSON(t, handler, http.MethodPost, "/transactions", `{"amount":100,"method":"card","user":"u1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body["transactionId"] != "PAY-test" {
		t.Fatalf("transactionId = %v", body["transactionId"])
	}
}

func TestPayments_ChargeDeclined(t *testing.T) {
	handler := NewPaymentsHandler(Options{Decide: Always(false)})

	rec, body := getJSON(t, handler, http.MethodPost, "/transactions", `{"amount":100,"user":"u1"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if body["message"] != "payment declined" {
		t.Fatalf("message = %v", body["message"])
	}
}

func TestPayments_CompensateAlwaysAcks(t *testing.T) {
	// Decline rate does not apply to compensations; refunds always succeed.
	handler := NewPaymentsHandler(Options{Decide: Always(false)})

	rec, body := getJSON(t, handler, http.MethodPost, "/compensate", `{"transactionId":"PAY-1","amount":100}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body["success"] != true {
		t.Fatalf("success = %v", body["success"])
	}
	if body["transactionId"] != "PAY-1" {
		t.Fatalf("transactionId = %v", body["transactionId"])
	}
}

func TestInventory_InsufficientStock(t *testing.T) {
	handler := NewInventoryHandler(Options{Decide: Always(false)})

	rec, body := getJSON(t, handler, http.MethodPost, "/transactions", `{"productId":1,"quantity":3}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if body["message"] != "insufficient stock" {
		t.Fatalf("message = %v", body["message"])
	}
}

func TestInventory_CompensateRestoresStock(t *testing.T) {
	handler := NewInventoryHandler(Options{Decide: Always(false)})

	rec, body := getJSON(t, handler, http.MethodPost, "/compensate", `{"productId":1,"quantity":3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body["quantity"] != float64(3) {
		t.Fatalf("quantity = %v", body["quantity"])
	}
}

func TestPurchases_Registered(t *testing.T) {
	handler := NewPurchasesHandler(Options{
		Decide: Always(true),
		NewRef: func(prefix string) string { return prefix + "-test" },
	})

	rec, body := getJSON(t, handler, http.MethodPost, "/transactions", `{"user":"u1","productId":1,"quantity":2,"amount":2400}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body["purchaseId"] != "PUR-test" {
		t.Fatalf("purchaseId = %v", body["purchaseId"])
	}
}

func TestPurchases_Rejected(t *testing.T) {
	handler := NewPurchasesHandler(Options{Decide: Always(false)})

	rec, body := getJSON(t, handler, http.MethodPost, "/transactions", `{"user":"u1","productId":1,"quantity":2,"amount":2400}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if body["message"] != "purchase registration rejected" {
		t.Fatalf("message = %v", body["message"])
	}
}

func TestMalformedBodiesAreBadRequests(t *testing.T) {
	handlers := map[string]http.Handler{
		"payments":  NewPaymentsHandler(Options{}),
		"inventory": NewInventoryHandler(Options{}),
		"purchases": NewPurchasesHandler(Options{}),
	}

	for name, handler := range handlers {
		t.Run(name, func(t *testing.T) {
			rec, _ := getJSON(t, handler, http.MethodPost, "/transactions", `{"user":`)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}
}
