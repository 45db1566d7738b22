package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestServiceProxy_ForwardRequest(t *testing.T) {
	t.Run("forwards GET request with query string", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				t.Errorf("expected GET, got %s", r.Method)
			}
			if r.URL.Path != "/products" {
				t.Errorf("expected path /products, got %s", r.URL.Path)
			}
			if r.URL.RawQuery != "page=2" {
				t.Errorf("expected query page=2, got %s", r.URL.RawQuery)
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`[]`))
		}))
		defer server.Close()

		proxy := NewServiceProxy(server.URL, server.Client())
		req := httptest.NewRequest(http.MethodGet, "/products?page=2", nil)
		resp, err := proxy.ForwardRequest(context.Background(), req, "/products", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected status 200, got %d", resp.StatusCode)
		}
	})

	t.Run("forwards POST body and allowed headers only", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Content-Type") != "application/json" {
				t.Errorf("expected Content-Type application/json, got %s", r.Header.Get("Content-Type"))
			}
			if r.Header.Get("Stripe-Signature") != "t=1,v1=abc" {
				t.Errorf("expected Stripe-Signature to be forwarded, got %q", r.Header.Get("Stripe-Signature"))
			}
			if r.Header.Get("Authorization") != "" {
				t.Errorf("expected Authorization to be dropped, got %q", r.Header.Get("Authorization"))
			}
			body, _ := io.ReadAll(r.Body)
			if string(body) != `{"items":[]}` {
				t.Errorf("unexpected body: %s", body)
			}
			w.WriteHeader(http.StatusCreated)
		}))
		defer server.Close()

		proxy := NewServiceProxy(server.URL, server.Client())
		req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(`{"items":[]}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Stripe-Signature", "t=1,v1=abc")
		req.Header.Set("Authorization", "Bearer secret")
		resp, err := proxy.ForwardRequest(context.Background(), req, "/checkout", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusCreated {
			t.Errorf("expected status 201, got %d", resp.StatusCode)
		}
	})

	t.Run("uses replacement body when given", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			if string(body) != "buffered" {
				t.Errorf("expected buffered body, got %s", body)
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		proxy := NewServiceProxy(server.URL, server.Client())
		req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader("original"))
		resp, err := proxy.ForwardRequest(context.Background(), req, "/webhooks/stripe", strings.NewReader("buffered"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		_ = resp.Body.Close()
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		proxy := NewServiceProxy(server.URL, server.Client())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		req := httptest.NewRequest(http.MethodGet, "/products", nil)
		_, err := proxy.ForwardRequest(ctx, req, "/products", nil)
		if err == nil {
			t.Error("expected error for cancelled context")
		}
	})
}
