package purchase

import (
	"context"
	"errors"
	"time"

	"tradewind/internal/observability"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Gateway issues the outbound calls the saga depends on. Each call is a
// single round trip; failures come back as *RejectionError or
// *UnavailableError.
type Gateway interface {
	FetchProduct(ctx context.Context, productID int) (Product, error)
	ChargePayment(ctx context.Context, amount float64, user string) (string, error)
	AdjustInventory(ctx context.Context, productID, quantity int) error
	RegisterPurchase(ctx context.Context, user string, productID, quantity int, amount float64) (string, error)
	Compensate(ctx context.Context, kind StepKind, data StepData) error
}

// Recorder persists an audit trail of saga runs and their step transitions,
// including failed compensations for out-of-band reconciliation. Recorder
// errors never affect the saga itself.
type Recorder interface {
	StartRun(ctx context.Context, sagaID, user string, productID, quantity int) error
	RecordStep(ctx context.Context, sagaID, step, status, detail string) error
	FinishRun(ctx context.Context, sagaID, status string) error
}

// Notifier receives the outcome of each finished saga run.
type Notifier interface {
	SagaFinished(ctx context.Context, sagaID, user string, productID, quantity int, out Outcome)
}

// sagaState names the orchestrator's position in the forward sequence.
type sagaState string

const (
	stateProductFetched     sagaState = "product_fetched"
	statePaid               sagaState = "paid"
	stateInventoryAdjusted  sagaState = "inventory_adjusted"
	statePurchaseRegistered sagaState = "purchase_registered"
	stateSucceeded          sagaState = "succeeded"
	stateCompensating       sagaState = "compensating"
	stateFailed             sagaState = "failed"
)

const (
	statusStarted   = "started"
	statusSucceeded = "succeeded"
	statusFailed    = "failed"
)

// Orchestrator runs the four-step purchase sequence and drives reverse-order
// compensation when a step fails. Each run owns its own ledger; concurrent
// runs share nothing mutable.
type Orchestrator struct {
	gateway Gateway
	log     *zap.Logger
	audit   Recorder
	metrics *observability.Metrics
	notify  Notifier
	newID   func() string
}

// NewOrchestrator constructs an Orchestrator. log may be nil; audit, metrics
// and notify are optional.
func NewOrchestrator(gw Gateway, log *zap.Logger, audit Recorder, metrics *observability.Metrics, notify Notifier) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	if audit == nil {
		audit = nopRecorder{}
	}
	return &Orchestrator{
		gateway: gw,
		log:     log,
		audit:   audit,
		metrics: metrics,
		notify:  notify,
		newID:   uuid.NewString,
	}
}

// Execute runs one purchase saga. A non-nil error is returned only for
// precondition violations (no remote call has been made); every saga-level
// failure is reported through the Outcome after compensating completed steps.
func (o *Orchestrator) Execute(ctx context.Context, user string, productID, quantity int) (Outcome, error) {
	if err := validateInput(user, productID, quantity); err != nil {
		return Outcome{}, err
	}

	sagaID := o.newID()
	log := o.log.With(
		zap.String("saga_id", sagaID),
		zap.String("user", user),
		zap.Int("product_id", productID),
		zap.Int("quantity", quantity),
	)

	// Detach from the caller's cancellation: an in-flight call is allowed to
	// finish and compensation must run even if the client disconnects.
	// Per-call timeouts are applied inside the gateway.
	runCtx := context.WithoutCancel(ctx)

	if err := o.audit.StartRun(runCtx, sagaID, user, productID, quantity); err != nil {
		log.Warn("audit start failed", zap.Error(err))
	}
	log.Info("saga started")

	out := o.run(runCtx, log, sagaID, user, productID, quantity)

	status := statusSucceeded
	if !out.Success {
		status = statusFailed
	}
	if err := o.audit.FinishRun(runCtx, sagaID, status); err != nil {
		log.Warn("audit finish failed", zap.Error(err))
	}
	o.metrics.SagaFinished(out.Success)
	if o.notify != nil {
		o.notify.SagaFinished(runCtx, sagaID, user, productID, quantity, out)
	}
	return out, nil
}

func (o *Orchestrator) run(ctx context.Context, log *zap.Logger, sagaID, user string, productID, quantity int) Outcome {
	ledger := make([]CompletedStep, 0, 3)

	product, err := o.fetchProduct(ctx, log, sagaID, productID)
	if err != nil {
		// Read-only step: the ledger is empty, nothing to undo.
		return o.fail(ctx, log, sagaID, Product{}, quantity, ledger, err)
	}
	o.logState(log, stateProductFetched)

	amount := product.Price * float64(quantity)

	paymentRef, err := o.chargePayment(ctx, log, sagaID, amount, user)
	if err != nil {
		return o.fail(ctx, log, sagaID, product, quantity, ledger, err)
	}
	ledger = append(ledger, CompletedStep{
		Kind: StepPayment,
		Data: StepData{PaymentRef: paymentRef, Amount: amount},
	})
	o.logState(log, statePaid)

	if err := o.adjustInventory(ctx, log, sagaID, product.ID, quantity); err != nil {
		return o.fail(ctx, log, sagaID, product, quantity, ledger, err)
	}
	ledger = append(ledger, CompletedStep{
		Kind: StepInventory,
		Data: StepData{ProductID: product.ID, Quantity: quantity},
	})
	o.logState(log, stateInventoryAdjusted)

	purchaseRef, err := o.registerPurchase(ctx, log, sagaID, user, product.ID, quantity, amount)
	if err != nil {
		return o.fail(ctx, log, sagaID, product, quantity, ledger, err)
	}
	ledger = append(ledger, CompletedStep{
		Kind: StepRegistration,
		Data: StepData{PurchaseRef: purchaseRef, User: user},
	})
	o.logState(log, statePurchaseRegistered)

	o.logState(log, stateSucceeded)
	log.Info("saga succeeded",
		zap.String("payment_ref", paymentRef),
		zap.String("purchase_ref", purchaseRef),
		zap.Float64("amount", amount),
	)
	return Outcome{
		Success:     true,
		Message:     "purchase completed",
		Product:     product.Name,
		Quantity:    quantity,
		TotalAmount: amount,
		PaymentRef:  paymentRef,
		PurchaseRef: purchaseRef,
	}
}

// fail compensates every ledger entry in reverse order and builds the failure
// outcome. StepsCompensated counts ledger entries processed by the sweep; a
// failing compensation still counts, it is logged and reconciled out-of-band.
func (o *Orchestrator) fail(ctx context.Context, log *zap.Logger, sagaID string, product Product, quantity int, ledger []CompletedStep, cause error) Outcome {
	o.logState(log, stateCompensating)
	o.logFailure(log, cause)

	for i := len(ledger) - 1; i >= 0; i-- {
		entry := ledger[i]
		stepName := "compensate_" + string(entry.Kind)
		if err := o.gateway.Compensate(ctx, entry.Kind, entry.Data); err != nil {
			log.Error("compensation failed", zap.String("step", string(entry.Kind)), zap.Error(err))
			o.recordStep(ctx, log, sagaID, stepName, statusFailed, err.Error())
			o.metrics.CompensationFinished(string(entry.Kind), err)
			continue
		}
		log.Info("step compensated", zap.String("step", string(entry.Kind)))
		o.recordStep(ctx, log, sagaID, stepName, statusSucceeded, "")
		o.metrics.CompensationFinished(string(entry.Kind), nil)
	}

	o.logState(log, stateFailed)

	name := product.Name
	if name == "" {
		name = "unknown"
	}
	return Outcome{
		Success:          false,
		Message:          "purchase failed, completed steps were rolled back",
		Reason:           cause.Error(),
		Product:          name,
		Quantity:         quantity,
		StepsCompensated: len(ledger),
	}
}

func (o *Orchestrator) fetchProduct(ctx context.Context, log *zap.Logger, sagaID string, productID int) (Product, error) {
	var product Product
	err := o.step(ctx, log, sagaID, "fetch_product", func(ctx context.Context) error {
		var err error
		product, err = o.gateway.FetchProduct(ctx, productID)
		return err
	})
	return product, err
}

func (o *Orchestrator) chargePayment(ctx context.Context, log *zap.Logger, sagaID string, amount float64, user string) (string, error) {
	var ref string
	err := o.step(ctx, log, sagaID, "charge_payment", func(ctx context.Context) error {
		var err error
		ref, err = o.gateway.ChargePayment(ctx, amount, user)
		return err
	})
	return ref, err
}

func (o *Orchestrator) adjustInventory(ctx context.Context, log *zap.Logger, sagaID string, productID, quantity int) error {
	return o.step(ctx, log, sagaID, "adjust_inventory", func(ctx context.Context) error {
		return o.gateway.AdjustInventory(ctx, productID, quantity)
	})
}

func (o *Orchestrator) registerPurchase(ctx context.Context, log *zap.Logger, sagaID, user string, productID, quantity int, amount float64) (string, error) {
	var ref string
	err := o.step(ctx, log, sagaID, "register_purchase", func(ctx context.Context) error {
		var err error
		ref, err = o.gateway.RegisterPurchase(ctx, user, productID, quantity, amount)
		return err
	})
	return ref, err
}

func (o *Orchestrator) step(ctx context.Context, log *zap.Logger, sagaID, name string, fn func(ctx context.Context) error) error {
	o.recordStep(ctx, log, sagaID, name, statusStarted, "")
	start := time.Now()
	err := fn(ctx)
	o.metrics.StepFinished(name, err, time.Since(start))
	if err != nil {
		o.recordStep(ctx, log, sagaID, name, statusFailed, err.Error())
		return err
	}
	o.recordStep(ctx, log, sagaID, name, statusSucceeded, "")
	return nil
}

func (o *Orchestrator) recordStep(ctx context.Context, log *zap.Logger, sagaID, step, status, detail string) {
	if err := o.audit.RecordStep(ctx, sagaID, step, status, detail); err != nil {
		log.Warn("audit step failed", zap.String("step", step), zap.Error(err))
	}
}

// logFailure distinguishes an explicit business decline from an unreachable
// service; both drive the same compensation path.
func (o *Orchestrator) logFailure(log *zap.Logger, cause error) {
	var rejection *RejectionError
	var unavailable *UnavailableError
	switch {
	case errors.As(cause, &rejection):
		log.Warn("step rejected", zap.String("service", rejection.Service), zap.String("reason", rejection.Reason))
	case errors.As(cause, &unavailable):
		log.Error("step unavailable", zap.String("service", unavailable.Service), zap.Error(unavailable.Err))
	default:
		log.Error("step failed", zap.Error(cause))
	}
}

func (o *Orchestrator) logState(log *zap.Logger, s sagaState) {
	log.Debug("state transition", zap.String("state", string(s)))
}

func validateInput(user string, productID, quantity int) error {
	if user == "" {
		return ErrUserRequired
	}
	if productID <= 0 {
		return ErrInvalidProduct
	}
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}

type nopRecorder struct{}

func (nopRecorder) StartRun(context.Context, string, string, int, int) error { return nil }
func (nopRecorder) RecordStep(context.Context, string, string, string, string) error {
	return nil
}
func (nopRecorder) FinishRun(context.Context, string, string) error { return nil }
