package events

import (
	"context"
	"time"

	"tradewind/internal/purchase"

	"go.uber.org/zap"
)

// Notifier adapts a Publisher to the orchestrator's notification hook.
// Publishing is best-effort: a failed publish is logged, never surfaced.
type Notifier struct {
	pub Publisher
	log *zap.Logger
	now func() time.Time
}

// NewNotifier constructs a Notifier. log may be nil.
func NewNotifier(pub Publisher, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{
		pub: pub,
		log: log,
		now: time.Now,
	}
}

// SagaFinished builds the outcome event and publishes it.
func (n *Notifier) SagaFinished(ctx context.Context, sagaID, user string, productID, quantity int, out purchase.Outcome) {
	ev := Event{
		SagaID:           sagaID,
		User:             user,
		ProductID:        productID,
		Product:          out.Product,
		Quantity:         quantity,
		TotalAmount:      out.TotalAmount,
		Success:          out.Success,
		Reason:           out.Reason,
		StepsCompensated: out.StepsCompensated,
		FinishedAt:       n.now().UTC(),
	}
	if err := n.pub.Publish(ctx, ev); err != nil {
		n.log.Warn("outcome publish failed", zap.String("saga_id", sagaID), zap.Error(err))
	}
}
