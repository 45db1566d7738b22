package gateway

import (
	"context"
	"io"
	"net/http"
)

// forwardedHeaders are the only client headers passed to the shop backend.
// Trace context is injected separately by the otelhttp transport.
var forwardedHeaders = []string{"Content-Type", "Accept", "Stripe-Signature"}

type ServiceProxy struct {
	baseURL string
	client  *http.Client
}

func NewServiceProxy(baseURL string, client *http.Client) *ServiceProxy {
	return &ServiceProxy{
		baseURL: baseURL,
		client:  client,
	}
}

// ForwardRequest replays r against path on the backend, keeping the query
// string. body replaces r.Body when non-nil.
func (p *ServiceProxy) ForwardRequest(ctx context.Context, r *http.Request, path string, body io.Reader) (*http.Response, error) {
	target := p.baseURL + path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	if body == nil {
		body = r.Body
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, target, body)
	if err != nil {
		return nil, err
	}

	for _, name := range forwardedHeaders {
		if v := r.Header.Get(name); v != "" {
			req.Header.Set(name, v)
		}
	}
	if r.RemoteAddr != "" {
		req.Header.Set("X-Forwarded-For", r.RemoteAddr)
	}

	return p.client.Do(req)
}
