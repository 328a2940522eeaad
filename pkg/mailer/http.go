package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPMailer implements the Mailer interface against a JSON email API
// (endpoint receives {to, subject, html} and replies {id}).
type HTTPMailer struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPMailer creates a mailer that posts sends to a JSON email API
func NewHTTPMailer(endpoint, apiKey string) *HTTPMailer {
	return &HTTPMailer{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type httpSendRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

type httpSendResponse struct {
	ID      string `json:"id"`
	Message string `json:"message,omitempty"`
}

// Send delivers one email through the HTTP API and returns the provider's message ID
func (m *HTTPMailer) Send(ctx context.Context, to, subject, html string) (string, error) {
	body, err := json.Marshal(httpSendRequest{To: to, Subject: subject, HTML: html})
	if err != nil {
		return "", fmt.Errorf("failed to marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("email API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read email API response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("email API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var sendResp httpSendResponse
	if err := json.Unmarshal(respBody, &sendResp); err != nil {
		return "", fmt.Errorf("failed to decode email API response: %w", err)
	}

	return sendResp.ID, nil
}
