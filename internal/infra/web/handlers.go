package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"elearn-settlement/internal/domain"
	"elearn-settlement/internal/domain/model"
	"elearn-settlement/internal/infra/metrics"
	"elearn-settlement/internal/usecase"
)

type checkoutRequest struct {
	SubjectKind    string `json:"subject_kind"`
	SubjectID      string `json:"subject_id"`
	Method         string `json:"method"`
	PhoneNumber    string `json:"phone_number,omitempty"`
	CardNumber     string `json:"card_number,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type settleRequest struct {
	Method         string `json:"method"`
	PhoneNumber    string `json:"phone_number,omitempty"`
	CardNumber     string `json:"card_number,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type checkoutResponse struct {
	OrderTrackingID string `json:"order_tracking_id"`
	Status          string `json:"status"`
	Message         string `json:"message"`
	Replayed        bool   `json:"replayed,omitempty"`
	GrantPending    bool   `json:"grant_pending,omitempty"`
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	payer, ok := PayerFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	kind, err := model.ParseSubjectKind(req.SubjectKind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.settlementUC.Settle(r.Context(), payer, usecase.SettleInput{
		Subject:        model.SubjectRef{Kind: kind, ID: req.SubjectID},
		Method:         model.PaymentMethod(req.Method),
		PhoneNumber:    req.PhoneNumber,
		CardNumber:     req.CardNumber,
		IdempotencyKey: req.IdempotencyKey,
	})
	s.writeSettlement(w, res, err)
}

// handleSettleSubject serves the enroll/attend convenience wrappers: the
// subject comes from the URL, the price from the catalog.
func (s *Server) handleSettleSubject(kind model.SubjectKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payer, ok := PayerFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		// Body is optional: free subjects need no payment details.
		var req settleRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}
		if req.Method == "" {
			req.Method = string(model.MethodMpesa)
		}

		res, err := s.settlementUC.Settle(r.Context(), payer, usecase.SettleInput{
			Subject:        model.SubjectRef{Kind: kind, ID: chi.URLParam(r, "id")},
			Method:         model.PaymentMethod(req.Method),
			PhoneNumber:    req.PhoneNumber,
			CardNumber:     req.CardNumber,
			IdempotencyKey: req.IdempotencyKey,
		})
		s.writeSettlement(w, res, err)
	}
}

func (s *Server) writeSettlement(w http.ResponseWriter, res *usecase.SettlementResult, err error) {
	if err == nil {
		if res.Status == model.PaymentStatusSucceeded && !res.Replayed {
			metrics.IncPayment(string(res.Status))
			if res.Amount > 0 {
				metrics.AddPaymentRevenue(res.Currency, res.Amount)
			}
		}
		if res.Entitlement != nil {
			tier := "paid"
			if res.Amount <= 0 {
				tier = "free"
			}
			metrics.IncEntitlementGranted(string(res.Entitlement.Subject.Kind), tier)
		}
		writeJSON(w, http.StatusOK, toCheckoutResponse(res))
		return
	}

	switch {
	case errors.Is(err, domain.ErrEntitlementGrantFailed):
		// Payment went through; the grant is owed and reconciled out of
		// band. Never report this as a payment failure.
		metrics.IncPayment(string(model.PaymentStatusSucceeded))
		writeJSON(w, http.StatusOK, toCheckoutResponse(res))

	case errors.Is(err, domain.ErrPaymentDeclined):
		metrics.IncPayment(string(model.PaymentStatusFailed))
		writeJSON(w, http.StatusPaymentRequired, toCheckoutResponse(res))

	case errors.Is(err, domain.ErrGatewayUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, toCheckoutResponse(res))

	case errors.Is(err, domain.ErrAlreadyEntitled):
		writeError(w, http.StatusConflict, "already enrolled")

	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "subject not found")

	case errors.Is(err, domain.ErrInvalidMethod),
		errors.Is(err, domain.ErrInvalidInstrument),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrUnsupportedCurrency),
		errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())

	default:
		writeError(w, http.StatusInternalServerError, "error processing payment")
	}
}

type logEntryResponse struct {
	Action    string                 `json:"action"`
	Details   map[string]interface{} `json:"details"`
	CreatedAt time.Time              `json:"created_at"`
}

func (s *Server) handleCheckoutStatus(w http.ResponseWriter, r *http.Request) {
	payer, ok := PayerFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	trackingID := chi.URLParam(r, "trackingID")
	intent, logs, err := s.settlementUC.Status(r.Context(), payer.ID, trackingID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown order tracking id")
			return
		}
		writeError(w, http.StatusInternalServerError, "error fetching payment status")
		return
	}

	entries := make([]logEntryResponse, 0, len(logs))
	for _, e := range logs {
		entries = append(entries, logEntryResponse{Action: string(e.Action), Details: e.Details, CreatedAt: e.CreatedAt})
	}
	writeJSON(w, http.StatusOK, struct {
		OrderTrackingID string             `json:"order_tracking_id"`
		Status          string             `json:"status"`
		Amount          int64              `json:"amount"`
		Currency        string             `json:"currency"`
		Method          string             `json:"method"`
		CreatedAt       time.Time          `json:"created_at"`
		SettledAt       *time.Time         `json:"settled_at,omitempty"`
		Logs            []logEntryResponse `json:"logs"`
	}{
		OrderTrackingID: intent.OrderTrackingID,
		Status:          string(intent.Status),
		Amount:          intent.Amount,
		Currency:        intent.Currency,
		Method:          string(intent.Method),
		CreatedAt:       intent.CreatedAt,
		SettledAt:       intent.SettledAt,
		Logs:            entries,
	})
}

func (s *Server) handleListEntitlements(w http.ResponseWriter, r *http.Request) {
	payer, ok := PayerFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	recs, err := s.entitlementUC.ListByUser(r.Context(), payer.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "error listing enrollments")
		return
	}
	type item struct {
		SubjectKind string    `json:"subject_kind"`
		SubjectID   string    `json:"subject_id"`
		GrantedAt   time.Time `json:"granted_at"`
	}
	out := make([]item, 0, len(recs))
	for _, rec := range recs {
		out = append(out, item{SubjectKind: string(rec.Subject.Kind), SubjectID: rec.Subject.ID, GrantedAt: rec.GrantedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEarnings(w http.ResponseWriter, r *http.Request) {
	payer, ok := PayerFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 8
	}

	summary, err := s.earningsUC.Summary(r.Context(), payer.ID, page, pageSize)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			writeError(w, http.StatusBadRequest, "invalid page or page size")
			return
		}
		writeError(w, http.StatusInternalServerError, "error fetching earnings")
		return
	}

	type paymentItem struct {
		OrderTrackingID string    `json:"order_tracking_id"`
		SubjectKind     string    `json:"subject_kind"`
		SubjectID       string    `json:"subject_id"`
		Amount          int64     `json:"amount"`
		Currency        string    `json:"currency"`
		CreatedAt       time.Time `json:"created_at"`
	}
	items := make([]paymentItem, 0, len(summary.Payments))
	for _, p := range summary.Payments {
		items = append(items, paymentItem{
			OrderTrackingID: p.OrderTrackingID,
			SubjectKind:     string(p.Subject.Kind),
			SubjectID:       p.Subject.ID,
			Amount:          p.Amount,
			Currency:        p.Currency,
			CreatedAt:       p.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, struct {
		SalesThisMonth   int64         `json:"sales_this_month"`
		ToBePaid         int64         `json:"to_be_paid"`
		LifetimeEarnings int64         `json:"lifetime_earnings"`
		Payments         []paymentItem `json:"payments"`
		TotalPages       int           `json:"total_pages"`
		CurrentPage      int           `json:"current_page"`
	}{
		SalesThisMonth:   summary.SalesThisMonth,
		ToBePaid:         summary.ToBePaid,
		LifetimeEarnings: summary.LifetimeEarnings,
		Payments:         items,
		TotalPages:       summary.TotalPages,
		CurrentPage:      summary.CurrentPage,
	})
}

func toCheckoutResponse(res *usecase.SettlementResult) checkoutResponse {
	return checkoutResponse{
		OrderTrackingID: res.OrderTrackingID,
		Status:          string(res.Status),
		Message:         res.Message,
		Replayed:        res.Replayed,
		GrantPending:    res.GrantPending,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}
