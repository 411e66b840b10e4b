package messaging

import "context"

// Settlement kinds
const (
	KindPlace  = "place"
	KindCancel = "cancel"
	KindFill   = "fill"
)

// MessageSender defines an interface for sending settlement messages.
// This keeps the core package independent of the queue implementations.
type MessageSender interface {
	SendSettlement(ctx context.Context, msg *SettlementMessage) error
	Close() error
}

// SettlementMessage describes one book event after its state change and
// custody transfers have completed. Amounts are decimal strings in raw
// asset units.
type SettlementMessage struct {
	Kind         string `json:"kind"`
	PairID       uint64 `json:"pairId"`
	Side         string `json:"side"`
	OrderID      uint64 `json:"orderId"`
	Price        uint64 `json:"price"`
	Owner        string `json:"owner"`
	Counterparty string `json:"counterparty,omitempty"`
	// Asset and Amount describe the deposit for place, the refund for
	// cancel and the owner's proceeds for fill.
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
	// FillerAsset and FillerAmount are set for fills only.
	FillerAsset  string `json:"fillerAsset,omitempty"`
	FillerAmount string `json:"fillerAmount,omitempty"`
	Closed       bool   `json:"closed"`
}

// Key returns the partition key used by the queue senders
func (m *SettlementMessage) Key() []byte {
	return []byte(m.Side + ":" + m.Owner)
}
