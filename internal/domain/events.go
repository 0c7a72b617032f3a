package domain

import "encoding/json"

// Duplex channel event names. The same envelope travels in both directions
// over the websocket; AMQP deliveries between the store and the dispatch hub
// reuse the inbound subset.
const (
	EventJoinBranch      = "join-branch-audience"
	EventLeaveBranch     = "leave-branch-audience"
	EventJoinAck         = "join-acknowledgment"
	EventNewOrder        = "new-order"
	EventStatusChanged   = "order-status-changed"
	EventConnectionError = "connection-error"
)

// Envelope is the wire frame: an event name plus its raw payload. Data stays
// raw so the hub can route frames without decoding order bodies.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func NewEnvelope(event string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: raw}, nil
}

type JoinRequest struct {
	BranchID string `json:"branch_id"`
}

type JoinAck struct {
	BranchID string `json:"branch_id"`
	Success  bool   `json:"success"`
}

type StatusChange struct {
	OrderID string      `json:"order_id"`
	Status  OrderStatus `json:"status"`
}

type ConnectionError struct {
	Message string `json:"message"`
}

// BranchEvent is the message body published to the orders topic exchange,
// routing key orders.branch.<branch_id>.
type BranchEvent struct {
	Event    string          `json:"event"`
	BranchID string          `json:"branch_id"`
	Data     json.RawMessage `json:"data"`
}
