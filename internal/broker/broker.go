package broker

import (
	"context"

	"github.com/equitron/equity-agent/pkg/types"
)

// Broker is the brokerage boundary the decision engine submits orders to.
// The engine never blocks on a broker call while holding portfolio state;
// results are applied asynchronously by the settlement path.
type Broker interface {
	// Name identifies the broker implementation
	Name() string

	// SubmitOrder sends an order and returns its execution result. A nil
	// error with a non-FILLED status means the broker processed the order
	// but did not (fully) execute it; an error means the order's fate is
	// whatever the result reports, or unknown if the result is nil.
	SubmitOrder(ctx context.Context, order types.OrderRequest) (*types.OrderResult, error)
}
