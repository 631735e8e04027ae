package events

import (
	"context"
	"encoding/json"
)

// Broadcaster pushes messages to connected clients.
type Broadcaster interface {
	Broadcast(ctx context.Context, msg []byte) error
}

// HubPublisher forwards outcome events to the realtime hub as JSON.
type HubPublisher struct {
	hub Broadcaster
}

// NewHubPublisher constructs a hub-backed publisher.
func NewHubPublisher(hub Broadcaster) *HubPublisher {
	return &HubPublisher{hub: hub}
}

// Publish marshals the event and hands it to the hub.
func (p *HubPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.hub.Broadcast(ctx, data)
}
