package payment

import (
	"context"
	"fmt"
	"sync"

	"elearn-settlement/internal/domain/model"
	"elearn-settlement/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*NoopGateway)(nil)

// NoopGateway is a simple in-memory gateway for dev mode and tests. Every
// valid charge succeeds; repeated charges with the same idempotency key
// return the same provider ref, mirroring provider-side deduplication.
type NoopGateway struct {
	mu            sync.Mutex
	seq           int64
	seen          map[string]string // idempotency key -> provider ref
	phonePrefixes []string
}

func NewNoopGateway(phonePrefixes []string) *NoopGateway {
	if len(phonePrefixes) == 0 {
		phonePrefixes = []string{"+254", "+255"}
	}
	return &NoopGateway{seen: make(map[string]string), phonePrefixes: phonePrefixes}
}

func (g *NoopGateway) Name() string { return "noop" }

func (g *NoopGateway) Charge(ctx context.Context, req adapter.ChargeRequest) (*adapter.ChargeResult, error) {
	if _, err := model.ParsePaymentMethod(string(req.Method)); err != nil {
		return nil, err
	}
	if err := model.ValidateInstrument(req.Method, req.PhoneNumber, req.CardNumber, g.phonePrefixes); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if ref, ok := g.seen[req.IdempotencyKey]; ok {
		return &adapter.ChargeResult{ProviderRef: ref, Raw: map[string]interface{}{"replayed": true}}, nil
	}
	g.seq++
	ref := fmt.Sprintf("noop-%d", g.seq)
	g.seen[req.IdempotencyKey] = ref
	return &adapter.ChargeResult{ProviderRef: ref, Raw: map[string]interface{}{"simulated": true}}, nil
}
