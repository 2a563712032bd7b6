package payments

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"rental-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Status of a payment at the provider.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusDeclined  Status = "DECLINED"
)

// Initiator is the external payment collaborator: it pushes a payment
// prompt to the customer's phone and exposes the asynchronous outcome.
// The engine stores the returned reference and never interprets it.
type Initiator interface {
	STKPush(ctx context.Context, phone string, amount int64, accountRef string) (string, error)
	QueryStatus(ctx context.Context, providerRef string) (Status, error)
}

// SimulatedGateway stands in for the Daraja STK flow: the push always
// lands, and the customer "enters a PIN" with a configurable success
// rate after a short delay.
type SimulatedGateway struct {
	mu          sync.Mutex
	logger      *zap.Logger
	successRate float64
	settleAfter time.Duration
	outcomes    map[string]Status
	started     map[string]time.Time
}

// NewSimulatedGateway creates a gateway resolving payments after
// settleAfter with the given success rate.
func NewSimulatedGateway(successRate float64, settleAfter time.Duration) *SimulatedGateway {
	return &SimulatedGateway{
		logger:      util.GetLogger(),
		successRate: successRate,
		settleAfter: settleAfter,
		outcomes:    make(map[string]Status),
		started:     make(map[string]time.Time),
	}
}

// STKPush registers the payment and returns an opaque provider reference.
func (g *SimulatedGateway) STKPush(ctx context.Context, phone string, amount int64, accountRef string) (string, error) {
	ref := fmt.Sprintf("MPESA-%s", uuid.New().String()[:8])

	g.mu.Lock()
	if rand.Float64() < g.successRate {
		g.outcomes[ref] = StatusConfirmed
	} else {
		g.outcomes[ref] = StatusDeclined
	}
	g.started[ref] = time.Now()
	g.mu.Unlock()

	g.logger.Info("STK push sent",
		zap.String("phone", phone),
		zap.Int64("amount", amount),
		zap.String("account_ref", accountRef),
		zap.String("provider_ref", ref))
	return ref, nil
}

// QueryStatus reports PENDING until the settle delay elapses, then the
// pre-drawn outcome.
func (g *SimulatedGateway) QueryStatus(ctx context.Context, providerRef string) (Status, error) {
	g.mu.Lock()
	started, ok := g.started[providerRef]
	outcome := g.outcomes[providerRef]
	g.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("unknown provider ref: %s", providerRef)
	}
	if time.Since(started) < g.settleAfter {
		return StatusPending, nil
	}
	return outcome, nil
}
