//go:build !integration

package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"elearn-entitlements/internal/domain"
)

func TestLocalOrderGateway_CreateOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("creates an order and returns the provider id", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req map[string]interface{}
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req["merchant_id"] != "m-1" || req["receipt"] != "REF1" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "order_abc", "status": "created"})
		}))
		defer srv.Close()

		g, err := NewLocalOrderGateway("m-1", srv.URL, "", false)
		if err != nil {
			t.Fatalf("new gateway: %v", err)
		}
		id, err := g.CreateOrder(ctx, 500, "INR", "REF1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if id != "order_abc" {
			t.Errorf("expected order_abc, got %q", id)
		}
	})

	t.Run("maps transport failure to RemoteUnavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close()

		g, _ := NewLocalOrderGateway("m-1", srv.URL, "", false)
		if _, err := g.CreateOrder(ctx, 500, "INR", "REF1"); !errors.Is(err, domain.ErrRemoteUnavailable) {
			t.Errorf("expected ErrRemoteUnavailable, got %v", err)
		}
	})

	t.Run("rejects non-positive amounts before calling the provider", func(t *testing.T) {
		g, _ := NewLocalOrderGateway("m-1", "http://invalid.example", "", false)
		if _, err := g.CreateOrder(ctx, 0, "INR", "REF1"); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("prefers the sandbox endpoint in sandbox mode", func(t *testing.T) {
		var sandboxHit bool
		sandbox := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sandboxHit = true
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "order_sbx"})
		}))
		defer sandbox.Close()

		g, _ := NewLocalOrderGateway("m-1", "http://invalid.example", sandbox.URL, true)
		id, err := g.CreateOrder(ctx, 500, "INR", "REF1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !sandboxHit || id != "order_sbx" {
			t.Errorf("expected sandbox endpoint to serve the order, got id=%q hit=%v", id, sandboxHit)
		}
	})
}
