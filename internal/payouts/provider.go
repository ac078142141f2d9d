package payouts

import (
	"context"

	"github.com/google/uuid"
)

// PayoutRequest is what the external payout rail needs to move money.
type PayoutRequest struct {
	BatchID     uuid.UUID
	PayeeID     uuid.UUID
	Destination string
	AmountCents int64
	Currency    string
}

// PayoutReceipt is the rail's acknowledgement of an accepted payout.
type PayoutReceipt struct {
	Reference string
}

// Provider sends payouts over an external rail. Implementations must treat
// the batch ID as their idempotency key: re-sending a batch the rail has
// already accepted must not move money twice.
type Provider interface {
	Send(ctx context.Context, req PayoutRequest) (PayoutReceipt, error)
}
