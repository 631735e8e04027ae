// Package events publishes the outcome of finished saga runs to interested
// sinks: the realtime websocket hub, a Redis stream, and optionally Kafka.
package events

import (
	"context"
	"errors"
	"time"
)

// Event is the public record of one finished saga run.
type Event struct {
	SagaID           string    `json:"saga_id"`
	User             string    `json:"user"`
	ProductID        int       `json:"product_id"`
	Product          string    `json:"product,omitempty"`
	Quantity         int       `json:"quantity"`
	TotalAmount      float64   `json:"total_amount,omitempty"`
	Success          bool      `json:"success"`
	Reason           string    `json:"reason,omitempty"`
	StepsCompensated int       `json:"steps_compensated"`
	FinishedAt       time.Time `json:"finished_at"`
}

// Publisher delivers an outcome event to one sink.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// FanoutPublisher publishes to every sink in order, collecting errors so
// each sink gets a chance to receive the event.
type FanoutPublisher struct {
	sinks []Publisher
}

// NewFanoutPublisher constructs a Publisher that forwards to each sink.
func NewFanoutPublisher(sinks ...Publisher) *FanoutPublisher {
	return &FanoutPublisher{sinks: sinks}
}

// Publish forwards the event to every sink.
func (p *FanoutPublisher) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, sink := range p.sinks {
		if err := sink.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
