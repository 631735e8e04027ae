package purchase

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

type spyGateway struct {
	calls []string

	product  Product
	fetchErr error

	paymentRef string
	chargeErr  error

	inventoryErr error

	purchaseRef string
	registerErr error

	compensated    []CompletedStep
	compensateErrs map[StepKind]error
}

func (g *spyGateway) FetchProduct(_ context.Context, productID int) (Product, error) {
	g.calls = append(g.calls, "fetch")
	if g.fetchErr != nil {
		return Product{}, g.fetchErr
	}
	return g.product, nil
}

func (g *spyGateway) ChargePayment(_ context.Context, amount float64, user string) (string, error) {
	g.calls = append(g.calls, "charge")
	if g.chargeErr != nil {
		return "", g.chargeErr
	}
	return g.paymentRef, nil
}

func (g *spyGateway) AdjustInventory(_ context.Context, productID, quantity int) error {
	g.calls = append(g.calls, "inventory")
	return g.inventoryErr
}

func (g *spyGateway) RegisterPurchase(_ context.Context, user string, productID, quantity int, amount float64) (string, error) {
	g.calls = append(g.calls, "register")
	if g.registerErr != nil {
		return "", g.registerErr
	}
	return g.purchaseRef, nil
}

func (g *spyGateway) Compensate(_ context.Context, kind StepKind, data StepData) error {
	g.calls = append(g.calls, "compensate:"+string(kind))
	g.compensated = append(g.compensated, CompletedStep{Kind: kind, Data: data})
	if err, ok := g.compensateErrs[kind]; ok {
		return err
	}
	return nil
}

func newTestOrchestrator(gw Gateway) *Orchestrator {
	return &Orchestrator{
		gateway: gw,
		log:     zap.NewNop(),
		audit:   nopRecorder{},
		newID:   func() string { return "saga-test" },
	}
}

func laptopGateway() *spyGateway {
	return &spyGateway{
		product:     Product{ID: 1, Name: "Laptop", Price: 1200},
		paymentRef:  "PAY-1",
		purchaseRef: "PUR-1",
	}
}

func compensatedKinds(g *spyGateway) []StepKind {
	kinds := make([]StepKind, 0, len(g.compensated))
	for _, step := range g.compensated {
		kinds = append(kinds, step.Kind)
	}
	return kinds
}

func TestExecute_Success(t *testing.T) {
	gw := laptopGateway()
	orch := newTestOrchestrator(gw)

	out, err := orch.Execute(context.Background(), "u1", 1, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Success {
		t.Fatalf("expected success, got failure: %+v", out)
	}
	if out.TotalAmount != 2400 {
		t.Fatalf("total amount = %v, want price*quantity = 2400", out.TotalAmount)
	}
	if out.Product != "Laptop" || out.Quantity != 2 {
		t.Fatalf("unexpected product details: %+v", out)
	}
	if out.PaymentRef != "PAY-1" || out.PurchaseRef != "PUR-1" {
		t.Fatalf("unexpected refs: %+v", out)
	}
	if len(gw.compensated) != 0 {
		t.Fatalf("expected zero compensations, got %v", compensatedKinds(gw))
	}

	want := []string{"fetch", "charge", "inventory", "register"}
	if len(gw.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", gw.calls, want)
	}
	for i := range want {
		if gw.calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", gw.calls, want)
		}
	}
}

func TestExecute_ProductFetchFailure_NothingToUndo(t *testing.T) {
	gw := laptopGateway()
	gw.fetchErr = &UnavailableError{Service: "catalog", Err: errors.New("connection refused")}
	orch := newTestOrchestrator(gw)

	out, err := orch.Execute(context.Background(), "u1", 1, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Success {
		t.Fatalf("expected failure")
	}
	if out.StepsCompensated != 0 {
		t.Fatalf("steps compensated = %d, want 0", out.StepsCompensated)
	}
	if len(gw.compensated) != 0 {
		t.Fatalf("expected zero compensation calls, got %v", compensatedKinds(gw))
	}
	if out.Product != "unknown" {
		t.Fatalf("product = %q, want unknown", out.Product)
	}
	if len(gw.calls) != 1 {
		t.Fatalf("expected no calls after failed fetch, got %v", gw.calls)
	}
}

func TestExecute_PaymentRejected_ZeroCompensations(t *testing.T) {
	gw := laptopGateway()
	gw.chargeErr = &RejectionError{Service: "payments", Reason: "payment declined"}
	orch := newTestOrchestrator(gw)

	out, err := orch.Execute(context.Background(), "u1", 1, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Success {
		t.Fatalf("expected failure")
	}
	if out.StepsCompensated != 0 {
		t.Fatalf("steps compensated = %d, want 0", out.StepsCompensated)
	}
	if len(gw.compensated) != 0 {
		t.Fatalf("expected zero compensation calls, got %v", compensatedKinds(gw))
	}
	if out.Reason != "payments rejected: payment declined" {
		t.Fatalf("reason = %q", out.Reason)
	}
}

func TestExecute_InventoryFailure_RefundsPayment(t *testing.T) {
	gw := laptopGateway()
	gw.inventoryErr = &RejectionError{Service: "inventory", Reason: "insufficient stock"}
	orch := newTestOrchestrator(gw)

	out, err := orch.Execute(context.Background(), "u1", 1, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Success {
		t.Fatalf("expected failure")
	}
	if out.StepsCompensated != 1 {
		t.Fatalf("steps compensated = %d, want 1", out.StepsCompensated)
	}
	if len(gw.compensated) != 1 || gw.compensated[0].Kind != StepPayment {
		t.Fatalf("compensations = %v, want [payment]", compensatedKinds(gw))
	}
	data := gw.compensated[0].Data
	if data.PaymentRef != "PAY-1" || data.Amount != 3600 {
		t.Fatalf("payment compensation data = %+v", data)
	}
}

func TestExecute_RegistrationFailure_ReverseOrderCompensation(t *testing.T) {
	gw := laptopGateway()
	gw.registerErr = &RejectionError{Service: "purchases", Reason: "purchase registration rejected"}
	orch := newTestOrchestrator(gw)

	out, err := orch.Execute(context.Background(), "u1", 1, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Success {
		t.Fatalf("expected failure")
	}
	if out.StepsCompensated != 2 {
		t.Fatalf("steps compensated = %d, want 2", out.StepsCompensated)
	}

	kinds := compensatedKinds(gw)
	if len(kinds) != 2 || kinds[0] != StepInventory || kinds[1] != StepPayment {
		t.Fatalf("compensation order = %v, want [inventory payment]", kinds)
	}
	if gw.compensated[0].Data.ProductID != 1 || gw.compensated[0].Data.Quantity != 2 {
		t.Fatalf("inventory compensation data = %+v", gw.compensated[0].Data)
	}
	if gw.compensated[1].Data.PaymentRef != "PAY-1" || gw.compensated[1].Data.Amount != 2400 {
		t.Fatalf("payment compensation data = %+v", gw.compensated[1].Data)
	}
	if out.Reason != "purchases rejected: purchase registration rejected" {
		t.Fatalf("reason = %q", out.Reason)
	}
}

func TestExecute_UnavailableTriggersCompensationToo(t *testing.T) {
	gw := laptopGateway()
	gw.inventoryErr = &UnavailableError{Service: "inventory", Err: errors.New("timeout")}
	orch := newTestOrchestrator(gw)

	out, err := orch.Execute(context.Background(), "u1", 1, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Success {
		t.Fatalf("expected failure")
	}
	if kinds := compensatedKinds(gw); len(kinds) != 1 || kinds[0] != StepPayment {
		t.Fatalf("compensations = %v, want [payment]", kinds)
	}
}

func TestExecute_CompensationFailureDoesNotStopSweep(t *testing.T) {
	gw := laptopGateway()
	gw.registerErr = &RejectionError{Service: "purchases", Reason: "purchase registration rejected"}
	gw.compensateErrs = map[StepKind]error{
		StepInventory: &UnavailableError{Service: "inventory", Err: errors.New("connection reset")},
	}
	orch := newTestOrchestrator(gw)

	out, err := orch.Execute(context.Background(), "u1", 1, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	kinds := compensatedKinds(gw)
	if len(kinds) != 2 || kinds[0] != StepInventory || kinds[1] != StepPayment {
		t.Fatalf("compensation order = %v, want [inventory payment]", kinds)
	}
	if out.Success {
		t.Fatalf("expected failure")
	}
	if out.StepsCompensated != 2 {
		t.Fatalf("steps compensated = %d, want 2", out.StepsCompensated)
	}
	// The outcome keeps the triggering reason, not the compensation error.
	if out.Reason != "purchases rejected: purchase registration rejected" {
		t.Fatalf("reason = %q", out.Reason)
	}
}

func TestExecute_PreconditionViolations_NoRemoteCalls(t *testing.T) {
	tests := []struct {
		name      string
		user      string
		productID int
		quantity  int
		wantErr   error
	}{
		{"empty user", "", 1, 1, ErrUserRequired},
		{"zero product id", "u1", 0, 1, ErrInvalidProduct},
		{"negative product id", "u1", -3, 1, ErrInvalidProduct},
		{"zero quantity", "u1", 1, 0, ErrInvalidQuantity},
		{"negative quantity", "u1", 1, -2, ErrInvalidQuantity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := laptopGateway()
			orch := newTestOrchestrator(gw)

			_, err := orch.Execute(context.Background(), tt.user, tt.productID, tt.quantity)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if !IsPreconditionError(err) {
				t.Fatalf("expected precondition error, got %v", err)
			}
			if len(gw.calls) != 0 {
				t.Fatalf("expected zero remote calls, got %v", gw.calls)
			}
		})
	}
}

type recordingAudit struct {
	started  bool
	finished string
	steps    []string
}

func (r *recordingAudit) StartRun(_ context.Context, sagaID, user string, productID, quantity int) error {
	r.started = true
	return nil
}

func (r *recordingAudit) RecordStep(_ context.Context, sagaID, step, status, detail string) error {
	r.steps = append(r.steps, step+":"+status)
	return nil
}

func (r *recordingAudit) FinishRun(_ context.Context, sagaID, status string) error {
	r.finished = status
	return nil
}

func TestExecute_AuditTrailOnFailure(t *testing.T) {
	gw := laptopGateway()
	gw.inventoryErr = &RejectionError{Service: "inventory", Reason: "insufficient stock"}
	audit := &recordingAudit{}
	orch := newTestOrchestrator(gw)
	orch.audit = audit

	if _, err := orch.Execute(context.Background(), "u1", 1, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !audit.started {
		t.Fatalf("expected run start to be recorded")
	}
	if audit.finished != "failed" {
		t.Fatalf("final status = %q, want failed", audit.finished)
	}

	want := []string{
		"fetch_product:started", "fetch_product:succeeded",
		"charge_payment:started", "charge_payment:succeeded",
		"adjust_inventory:started", "adjust_inventory:failed",
		"compensate_payment:succeeded",
	}
	if len(audit.steps) != len(want) {
		t.Fatalf("steps = %v, want %v", audit.steps, want)
	}
	for i := range want {
		if audit.steps[i] != want[i] {
			t.Fatalf("steps = %v, want %v", audit.steps, want)
		}
	}
}

type recordingNotifier struct {
	sagaID string
	out    Outcome
	count  int
}

func (n *recordingNotifier) SagaFinished(_ context.Context, sagaID, user string, productID, quantity int, out Outcome) {
	n.sagaID = sagaID
	n.out = out
	n.count++
}

func TestExecute_NotifiesOutcome(t *testing.T) {
	gw := laptopGateway()
	notifier := &recordingNotifier{}
	orch := newTestOrchestrator(gw)
	orch.notify = notifier

	out, err := orch.Execute(context.Background(), "u1", 1, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if notifier.count != 1 {
		t.Fatalf("notify count = %d, want 1", notifier.count)
	}
	if notifier.sagaID != "saga-test" {
		t.Fatalf("saga id = %q", notifier.sagaID)
	}
	if notifier.out.TotalAmount != out.TotalAmount {
		t.Fatalf("notified outcome mismatch: %+v vs %+v", notifier.out, out)
	}
}

func TestExecute_CancelledCallerStillCompensates(t *testing.T) {
	gw := laptopGateway()
	gw.registerErr = &UnavailableError{Service: "purchases", Err: errors.New("connection refused")}
	orch := newTestOrchestrator(gw)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := orch.Execute(ctx, "u1", 1, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Success {
		t.Fatalf("expected failure")
	}
	if kinds := compensatedKinds(gw); len(kinds) != 2 {
		t.Fatalf("compensations = %v, want both ledger entries attempted", kinds)
	}
}
