package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"elearn-settlement/internal/config"
	"elearn-settlement/internal/domain"
	"elearn-settlement/internal/domain/model"
	"elearn-settlement/internal/infra/logging"
	"elearn-settlement/internal/infra/metrics"
	"elearn-settlement/internal/infra/redis"
	"elearn-settlement/internal/usecase"
)

type Server struct {
	settlementUC  usecase.SettlementUseCase
	entitlementUC usecase.EntitlementUseCase
	earningsUC    usecase.EarningsUseCase
	auth          *AuthManager
	limiter       *redis.RateLimiter // nil disables throttling
	limitCfg      config.SettlementConfig
	log           *zerolog.Logger
	server        *http.Server
}

func NewServer(
	settlementUC usecase.SettlementUseCase,
	entitlementUC usecase.EntitlementUseCase,
	earningsUC usecase.EarningsUseCase,
	auth *AuthManager,
	limiter *redis.RateLimiter,
	limitCfg config.SettlementConfig,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		settlementUC:  settlementUC,
		entitlementUC: entitlementUC,
		earningsUC:    earningsUC,
		auth:          auth,
		limiter:       limiter,
		limitCfg:      limitCfg,
		log:           logger,
	}
}

func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(TraceID)
	r.Use(RequestLog(s.log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth.Middleware)

		r.Group(func(r chi.Router) {
			r.Use(s.throttle)
			r.Post("/checkout", s.handleCheckout)
			r.Post("/courses/{id}/enroll", s.handleSettleSubject(model.SubjectCourse))
			r.Post("/events/{id}/attend", s.handleSettleSubject(model.SubjectEvent))
		})

		r.Get("/checkout/{trackingID}", s.handleCheckoutStatus)
		r.Get("/enrollments", s.handleListEntitlements)
		r.Get("/earnings", s.handleEarnings)
	})

	return r
}

func (s *Server) Start(port int) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Int("port", port).Msg("http server listening")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// throttle bounds checkout attempts per payer within a fixed window.
func (s *Server) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		payer, ok := PayerFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		allowed, err := s.limiter.Allow(r.Context(), redis.CheckoutKey(payer.ID), s.limitCfg.RateLimit, s.limitCfg.RateLimitWindow)
		if err != nil {
			// Throttling is protective, not load-bearing; fail open.
			logging.With(r.Context(), s.log).Warn().Err(err).Msg("rate limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			metrics.IncRateLimited()
			writeError(w, http.StatusTooManyRequests, domain.ErrRateLimited.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}
