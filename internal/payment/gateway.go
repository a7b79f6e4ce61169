package payment

import (
	"context"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ChargeRequest struct {
	IdempotencyKey string
	Amount         decimal.Decimal
	Token          string
	CustomerRef    string
}

type ChargeResult struct {
	Succeeded     bool
	Reference     string
	FailureReason string
}

// Gateway charges a customer. A declined charge is a result, not an error;
// a returned error means the outcome is unknown and the call may be retried
// with the same idempotency key.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}

// MockGateway is a deterministic gateway for tests and memory mode. Tokens
// starting with "fail" are declined. Repeated keys return the first result.
type MockGateway struct {
	mu      sync.Mutex
	results map[string]ChargeResult
	charges int
}

func NewMockGateway() *MockGateway {
	return &MockGateway{results: make(map[string]ChargeResult)}
}

func (g *MockGateway) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return ChargeResult{}, err
	}
	if req.IdempotencyKey == "" {
		return ChargeResult{}, errors.New("idempotency key is required")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if res, ok := g.results[req.IdempotencyKey]; ok {
		return res, nil
	}
	g.charges++
	var res ChargeResult
	switch {
	case strings.HasPrefix(strings.ToLower(req.Token), "fail"):
		res = ChargeResult{FailureReason: "card_declined"}
	case !req.Amount.IsPositive():
		res = ChargeResult{FailureReason: "invalid_amount"}
	default:
		res = ChargeResult{Succeeded: true, Reference: "mock_txn_" + uuid.NewString()[:8]}
	}
	g.results[req.IdempotencyKey] = res
	return res, nil
}

// Charges counts distinct charge attempts, ignoring idempotent replays.
func (g *MockGateway) Charges() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.charges
}
