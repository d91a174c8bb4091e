// File: internal/infra/api/server.go
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"elearn-entitlements/internal/domain"
	"elearn-entitlements/internal/domain/model"
	"elearn-entitlements/internal/usecase"
)

// Server exposes the purchase and verification surface over HTTP.
type Server struct {
	orders   usecase.OrderUseCase
	verify   usecase.VerifyUseCase
	fulfill  usecase.FulfillmentUseCase
	adminKey string
	allow    AllowFunc
	log      *zerolog.Logger
}

func NewServer(
	orders usecase.OrderUseCase,
	verify usecase.VerifyUseCase,
	fulfill usecase.FulfillmentUseCase,
	adminKey string,
	allow AllowFunc,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		orders:   orders,
		verify:   verify,
		fulfill:  fulfill,
		adminKey: adminKey,
		allow:    allow,
		log:      logger,
	}
}

// Router builds the chi mux with the full middleware chain.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/orders", s.handleCreateOrder)
		r.Group(func(r chi.Router) {
			r.Use(RateLimit(s.allow))
			r.Post("/verify/local", s.handleVerifyLocal)
			r.Post("/verify/remote", s.handleVerifyRemote)
		})
		r.Group(func(r chi.Router) {
			r.Use(AdminKey(s.adminKey))
			r.Post("/fulfill", s.handleFulfill)
		})
	})

	return Chain(r,
		Recover(s.log),
		TraceID(),
		RequestLog(s.log),
		Timeout(30*time.Second),
	)
}

type createOrderRequest struct {
	UserID      string `json:"user_id"`
	ProductID   string `json:"product_id"`
	ProductKind string `json:"product_kind"`
}

type orderResponse struct {
	EntryID         string `json:"entry_id"`
	ProviderOrderID string `json:"provider_order_id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidArgument)
		return
	}
	order, err := s.orders.CreateOrder(r.Context(), req.UserID, model.ProductRef{
		ProductID: req.ProductID,
		Kind:      model.ProductKind(req.ProductKind),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, true, "order issued", orderResponse{
		EntryID:         order.EntryID,
		ProviderOrderID: order.ProviderOrderID,
		Amount:          order.Amount,
		Currency:        order.Currency,
	})
}

type verifyLocalRequest struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
}

type verifyRemoteRequest struct {
	UserID      string `json:"user_id"`
	ProductID   string `json:"product_id"`
	ProductKind string `json:"product_kind"`
	Receipt     string `json:"receipt"`
}

type grantResponse struct {
	EntryID        string `json:"entry_id"`
	State          string `json:"state"`
	AlreadyGranted bool   `json:"already_granted"`
}

func toGrantResponse(res *model.GrantResult) grantResponse {
	return grantResponse{
		EntryID:        res.EntryID,
		State:          string(res.State),
		AlreadyGranted: res.AlreadyGranted,
	}
}

func (s *Server) handleVerifyLocal(w http.ResponseWriter, r *http.Request) {
	var req verifyLocalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidArgument)
		return
	}
	res, err := s.verify.VerifyLocal(r.Context(), req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		writeError(w, err)
		return
	}
	msg := "payment verified"
	if res.AlreadyGranted {
		msg = "already granted"
	}
	writeJSON(w, http.StatusOK, true, msg, toGrantResponse(res))
}

func (s *Server) handleVerifyRemote(w http.ResponseWriter, r *http.Request) {
	var req verifyRemoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidArgument)
		return
	}
	res, err := s.verify.VerifyRemote(r.Context(), req.UserID, model.ProductRef{
		ProductID: req.ProductID,
		Kind:      model.ProductKind(req.ProductKind),
	}, req.Receipt)
	if err != nil {
		writeError(w, err)
		return
	}
	msg := "receipt verified"
	if res.AlreadyGranted {
		msg = "already granted"
	}
	writeJSON(w, http.StatusOK, true, msg, toGrantResponse(res))
}

type fulfillRequest struct {
	EntryID string `json:"entry_id"`
}

func (s *Server) handleFulfill(w http.ResponseWriter, r *http.Request) {
	var req fulfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidArgument)
		return
	}
	res, err := s.fulfill.Fulfill(r.Context(), req.EntryID)
	if err != nil {
		writeError(w, err)
		return
	}
	msg := "fulfilled"
	if res.AlreadyGranted {
		msg = "already fulfilled"
	}
	writeJSON(w, http.StatusOK, true, msg, toGrantResponse(res))
}
