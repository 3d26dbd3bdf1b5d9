package paddle

import "encoding/json"

// Webhook event types the processor acts on. Anything else is acknowledged
// without side effects.
const (
	EventTransactionCompleted = "transaction.completed"
	EventAdjustmentUpdated    = "adjustment.updated"
)

const TransactionStatusCompleted = "completed"

const (
	AdjustmentActionRefund   = "refund"
	AdjustmentStatusApproved = "approved"
)

// Event is the webhook envelope. Data stays raw until the event type is
// known; the full payload is persisted verbatim either way.
type Event struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
}

// Transaction is the subset of Paddle's transaction object the processor
// reads from a transaction.completed event.
type Transaction struct {
	ID         string            `json:"id"`
	Status     string            `json:"status"`
	CustomerID string            `json:"customer_id"`
	Items      []TransactionItem `json:"items"`
}

type TransactionItem struct {
	Price *Price `json:"price"`
}

type Price struct {
	ProductID    string        `json:"product_id"`
	BillingCycle *BillingCycle `json:"billing_cycle"`
}

// BillingCycle describes a recurring price. A nil BillingCycle on a price
// denotes a one-time (lifetime) product.
type BillingCycle struct {
	Interval  string `json:"interval"` // "month" or "year"
	Frequency int    `json:"frequency"`
}

// Adjustment is the subset of Paddle's adjustment object read from an
// adjustment.updated event.
type Adjustment struct {
	ID            string `json:"id"`
	Action        string `json:"action"`
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
}
