package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"elearn-settlement/internal/config"
	"elearn-settlement/internal/domain"
	"elearn-settlement/internal/domain/model"
	"elearn-settlement/internal/domain/ports/adapter"
	"elearn-settlement/internal/infra/metrics"
)

var _ adapter.PaymentGateway = (*AggregatorGateway)(nil)

// AggregatorGateway talks to the mobile-money/card aggregator over HTTP.
// One Charge call makes up to MaxAttempts network attempts with a fixed delay
// between them, reusing the same idempotency key so the provider deduplicates
// attempts whose response was lost. Definitive 4xx rejections are never
// retried; transport failures, timeouts, and 5xx responses are.
type AggregatorGateway struct {
	baseURL        string
	apiKey         string
	attemptTimeout time.Duration
	phonePrefixes  []string
	retry          RetryPolicy
	client         *http.Client
}

func NewAggregatorGateway(cfg config.GatewayConfig) *AggregatorGateway {
	return &AggregatorGateway{
		baseURL:        cfg.BaseURL,
		apiKey:         cfg.APIKey,
		attemptTimeout: cfg.AttemptTimeout,
		phonePrefixes:  cfg.AllowedPhonePrefixes,
		retry:          NewRetryPolicy(cfg.MaxAttempts, cfg.RetryDelay),
		client:         &http.Client{},
	}
}

func (g *AggregatorGateway) Name() string { return "aggregator" }

type chargeRequestBody struct {
	Reference  string `json:"reference"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	Channel    string `json:"channel"`
	Msisdn     string `json:"msisdn,omitempty"`
	CardNumber string `json:"card_number,omitempty"`
	Narrative  string `json:"narrative,omitempty"`
}

type chargeResponseBody struct {
	Status         string `json:"status"`
	TransactionRef string `json:"transaction_ref"`
	Message        string `json:"message"`
}

func (g *AggregatorGateway) Charge(ctx context.Context, req adapter.ChargeRequest) (*adapter.ChargeResult, error) {
	// Local validation first; an invalid instrument must never reach the wire.
	if _, err := model.ParsePaymentMethod(string(req.Method)); err != nil {
		return nil, err
	}
	if err := model.ValidateInstrument(req.Method, req.PhoneNumber, req.CardNumber, g.phonePrefixes); err != nil {
		return nil, err
	}

	body, err := json.Marshal(chargeRequestBody{
		Reference:  req.IdempotencyKey,
		Amount:     req.Amount,
		Currency:   req.Currency,
		Channel:    string(req.Method),
		Msisdn:     req.PhoneNumber,
		CardNumber: req.CardNumber,
		Narrative:  req.Description,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal charge request: %w", err)
	}

	var result *adapter.ChargeResult
	err = g.retry.Do(ctx, func(ctx context.Context) error {
		res, attemptErr := g.attempt(ctx, body, req.IdempotencyKey)
		if attemptErr != nil {
			return attemptErr
		}
		result = res
		return nil
	}, func(err error) bool {
		return errors.Is(err, domain.ErrGatewayUnavailable)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (g *AggregatorGateway) attempt(ctx context.Context, body []byte, idempotencyKey string) (*adapter.ChargeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, g.attemptTimeout)
	defer cancel()

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/charges", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build charge request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	httpReq.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		metrics.IncGatewayAttempt(g.Name(), "transient")
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()
	metrics.ObserveGatewayLatency(g.Name(), time.Since(start).Seconds())

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.IncGatewayAttempt(g.Name(), "transient")
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrGatewayUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 500:
		metrics.IncGatewayAttempt(g.Name(), "transient")
		return nil, fmt.Errorf("%w: provider returned %d", domain.ErrGatewayUnavailable, resp.StatusCode)

	case resp.StatusCode >= 400:
		// Definitive business rejection; surfaced immediately, never retried.
		metrics.IncGatewayAttempt(g.Name(), "declined")
		var parsed chargeResponseBody
		_ = json.Unmarshal(raw, &parsed)
		if parsed.Message != "" {
			return nil, fmt.Errorf("%w: %s", domain.ErrPaymentDeclined, parsed.Message)
		}
		return nil, fmt.Errorf("%w: provider returned %d", domain.ErrPaymentDeclined, resp.StatusCode)
	}

	var parsed chargeResponseBody
	if err := json.Unmarshal(raw, &parsed); err != nil {
		metrics.IncGatewayAttempt(g.Name(), "transient")
		return nil, fmt.Errorf("%w: unmarshal response: %v, body: %s", domain.ErrGatewayUnavailable, err, string(raw))
	}
	if parsed.Status != "succeeded" {
		metrics.IncGatewayAttempt(g.Name(), "declined")
		return nil, fmt.Errorf("%w: %s", domain.ErrPaymentDeclined, parsed.Message)
	}

	metrics.IncGatewayAttempt(g.Name(), "ok")
	var rawMap map[string]interface{}
	_ = json.Unmarshal(raw, &rawMap)
	return &adapter.ChargeResult{ProviderRef: parsed.TransactionRef, Raw: rawMap}, nil
}
