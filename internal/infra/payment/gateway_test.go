//go:build !integration

package payment_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"elearn-settlement/internal/config"
	"elearn-settlement/internal/domain"
	"elearn-settlement/internal/domain/model"
	"elearn-settlement/internal/domain/ports/adapter"
	"elearn-settlement/internal/infra/payment"
)

func gatewayCfg(baseURL string) config.GatewayConfig {
	return config.GatewayConfig{
		BaseURL:              baseURL,
		APIKey:               "test-key",
		AttemptTimeout:       2 * time.Second,
		MaxAttempts:          3,
		RetryDelay:           time.Millisecond,
		AllowedPhonePrefixes: []string{"+254", "+255"},
	}
}

func chargeReq() adapter.ChargeRequest {
	return adapter.ChargeRequest{
		IdempotencyKey: "key-1",
		Amount:         150000,
		Currency:       "KES",
		Method:         model.MethodMpesa,
		PhoneNumber:    "+254712345678",
		Description:    "Go Basics",
	}
}

func TestAggregatorGateway_Charge(t *testing.T) {
	ctx := context.Background()

	t.Run("should return the provider ref on success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/charges" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
				t.Errorf("unexpected auth header %q", got)
			}
			var body map[string]interface{}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode body: %v", err)
			}
			if body["channel"] != "mpesa" || body["msisdn"] != "+254712345678" {
				t.Errorf("unexpected body: %v", body)
			}
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status": "succeeded", "transaction_ref": "MPESA-123",
			})
		}))
		defer srv.Close()

		g := payment.NewAggregatorGateway(gatewayCfg(srv.URL))
		res, err := g.Charge(ctx, chargeReq())
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if res.ProviderRef != "MPESA-123" {
			t.Errorf("expected MPESA-123, got %s", res.ProviderRef)
		}
		if res.Raw["status"] != "succeeded" {
			t.Errorf("expected the raw response to be kept, got %v", res.Raw)
		}
	})

	t.Run("should retry transient failures with the same idempotency key", func(t *testing.T) {
		var attempts int32
		keys := make(chan string, 4)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			keys <- r.Header.Get("Idempotency-Key")
			if atomic.AddInt32(&attempts, 1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status": "succeeded", "transaction_ref": "MPESA-456",
			})
		}))
		defer srv.Close()

		g := payment.NewAggregatorGateway(gatewayCfg(srv.URL))
		res, err := g.Charge(ctx, chargeReq())
		if err != nil {
			t.Fatalf("expected the third attempt to succeed, got: %v", err)
		}
		if res.ProviderRef != "MPESA-456" {
			t.Errorf("unexpected ref %s", res.ProviderRef)
		}
		if got := atomic.LoadInt32(&attempts); got != 3 {
			t.Errorf("expected 3 attempts, got %d", got)
		}
		close(keys)
		for k := range keys {
			if k != "key-1" {
				t.Errorf("expected every attempt to reuse key-1, got %q", k)
			}
		}
	})

	t.Run("should give up after the attempt budget", func(t *testing.T) {
		var attempts int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		g := payment.NewAggregatorGateway(gatewayCfg(srv.URL))
		_, err := g.Charge(ctx, chargeReq())
		if !errors.Is(err, domain.ErrGatewayUnavailable) {
			t.Fatalf("expected ErrGatewayUnavailable, got: %v", err)
		}
		if got := atomic.LoadInt32(&attempts); got != 3 {
			t.Errorf("expected exactly 3 attempts, got %d", got)
		}
	})

	t.Run("should never retry a definitive rejection", func(t *testing.T) {
		var attempts int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusPaymentRequired)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "insufficient funds"})
		}))
		defer srv.Close()

		g := payment.NewAggregatorGateway(gatewayCfg(srv.URL))
		_, err := g.Charge(ctx, chargeReq())
		if !errors.Is(err, domain.ErrPaymentDeclined) {
			t.Fatalf("expected ErrPaymentDeclined, got: %v", err)
		}
		if got := atomic.LoadInt32(&attempts); got != 1 {
			t.Errorf("expected exactly 1 attempt, got %d", got)
		}
	})

	t.Run("should treat a 2xx non-succeeded status as declined", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status": "rejected", "message": "limit exceeded",
			})
		}))
		defer srv.Close()

		g := payment.NewAggregatorGateway(gatewayCfg(srv.URL))
		if _, err := g.Charge(ctx, chargeReq()); !errors.Is(err, domain.ErrPaymentDeclined) {
			t.Errorf("expected ErrPaymentDeclined, got: %v", err)
		}
	})

	t.Run("should classify an unreachable provider as unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close() // connection refused from here on

		g := payment.NewAggregatorGateway(gatewayCfg(srv.URL))
		if _, err := g.Charge(ctx, chargeReq()); !errors.Is(err, domain.ErrGatewayUnavailable) {
			t.Errorf("expected ErrGatewayUnavailable, got: %v", err)
		}
	})

	t.Run("should reject invalid input before any network call", func(t *testing.T) {
		var hits int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&hits, 1)
		}))
		defer srv.Close()

		g := payment.NewAggregatorGateway(gatewayCfg(srv.URL))

		bad := chargeReq()
		bad.Method = "paypal"
		if _, err := g.Charge(ctx, bad); !errors.Is(err, domain.ErrInvalidMethod) {
			t.Errorf("expected ErrInvalidMethod, got: %v", err)
		}

		bad = chargeReq()
		bad.PhoneNumber = "0712345678"
		if _, err := g.Charge(ctx, bad); !errors.Is(err, domain.ErrInvalidInstrument) {
			t.Errorf("expected ErrInvalidInstrument, got: %v", err)
		}

		if atomic.LoadInt32(&hits) != 0 {
			t.Error("expected the provider to never be reached for invalid input")
		}
	})
}

func TestNoopGateway(t *testing.T) {
	ctx := context.Background()
	g := payment.NewNoopGateway([]string{"+254"})

	res1, err := g.Charge(ctx, chargeReq())
	if err != nil {
		t.Fatalf("expected no error, but got: %v", err)
	}
	res2, err := g.Charge(ctx, chargeReq())
	if err != nil {
		t.Fatalf("expected no error on replay, but got: %v", err)
	}
	if res1.ProviderRef != res2.ProviderRef {
		t.Errorf("expected the same ref on an idempotent replay, got %s and %s",
			res1.ProviderRef, res2.ProviderRef)
	}

	other := chargeReq()
	other.IdempotencyKey = "key-2"
	res3, err := g.Charge(ctx, other)
	if err != nil {
		t.Fatalf("expected no error, but got: %v", err)
	}
	if res3.ProviderRef == res1.ProviderRef {
		t.Error("expected a fresh ref for a new key")
	}

	bad := chargeReq()
	bad.PhoneNumber = "bogus"
	if _, err := g.Charge(ctx, bad); !errors.Is(err, domain.ErrInvalidInstrument) {
		t.Errorf("expected ErrInvalidInstrument, got: %v", err)
	}
}
