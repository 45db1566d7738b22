package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// HTTPMailer delivers messages through the email service's /send endpoint.
type HTTPMailer struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPMailer(baseURL string, client *http.Client) *HTTPMailer {
	return &HTTPMailer{baseURL: baseURL, httpClient: client}
}

func (m *HTTPMailer) Send(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}
