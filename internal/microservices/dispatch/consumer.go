package dispatch

import (
	"context"
	"encoding/json"

	"coffee-shop-system/internal/connections/rabbitmq"
	"coffee-shop-system/internal/domain"
	"coffee-shop-system/internal/logger"
)

const dispatchQueue = "dispatch.q"

// Consumer drains the orders exchange and fans every event out to its branch
// audience. Dispatch is fan-out only: malformed deliveries are acked and
// dropped, the store stays the source of truth.
type Consumer struct {
	rmq *rabbitmq.Client
	hub *Hub
	lg  *logger.Logger
}

func NewConsumer(rmq *rabbitmq.Client, hub *Hub, lg *logger.Logger) *Consumer {
	return &Consumer{rmq: rmq, hub: hub, lg: lg}
}

func (c *Consumer) Run(ctx context.Context) error {
	if err := c.rmq.DeclareTopology(dispatchQueue); err != nil {
		return err
	}
	deliveries, err := c.rmq.Consume(dispatchQueue, "dispatch", 10)
	if err != nil {
		return err
	}
	c.lg.Info("dispatch_consuming", map[string]any{"queue": dispatchQueue})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			var ev domain.BranchEvent
			if err := json.Unmarshal(d.Body, &ev); err != nil || ev.BranchID == "" {
				c.lg.Warn("event_dropped", map[string]any{"routing_key": d.RoutingKey})
				_ = d.Ack(false)
				continue
			}
			c.hub.Broadcast(ev.BranchID, domain.Envelope{Event: ev.Event, Data: ev.Data})
			c.lg.Debug("event_dispatched", map[string]any{
				"event": ev.Event, "branch_id": ev.BranchID, "audience": c.hub.AudienceSize(ev.BranchID),
			})
			_ = d.Ack(false)
		}
	}
}
