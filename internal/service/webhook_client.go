package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Webhook delivery headers. The sink binary and receiving integrations read
// the same names.
const (
	HeaderEvent     = "X-Paycrypt-Event"
	HeaderTimestamp = "X-Paycrypt-Timestamp"
	HeaderEventID   = "X-Paycrypt-Event-Id"
	HeaderSignature = "X-Paycrypt-Signature"
)

// maxResponseBody bounds how much of a client's response we read; only a
// truncated prefix ends up in last_error anyway.
const maxResponseBody = 4 << 10

// WebhookResponse is the classified result of a completed HTTP round trip.
type WebhookResponse struct {
	StatusCode int
	Body       string
}

// DeliveryRequest carries everything needed for one signed POST.
type DeliveryRequest struct {
	URL       string
	EventType string
	EventID   string
	Timestamp string
	Signature string
	Body      []byte
}

// WebhookClient performs the outbound POST to a client's webhook URL. Every
// call is bounded by the configured timeout; there is no retry at this layer.
type WebhookClient struct {
	httpClient *http.Client
	timeout    time.Duration
}

func NewWebhookClient(timeout time.Duration) *WebhookClient {
	return &WebhookClient{
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
	}
}

// Deliver posts the payload and returns the response, or a descriptive error
// for transport-level failures (timeout, refused connection, DNS).
func (c *WebhookClient) Deliver(ctx context.Context, req DeliveryRequest) (*WebhookResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(HeaderEvent, req.EventType)
	httpReq.Header.Set(HeaderTimestamp, req.Timestamp)
	httpReq.Header.Set(HeaderEventID, req.EventID)
	if req.Signature != "" {
		httpReq.Header.Set(HeaderSignature, req.Signature)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.classify(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	return &WebhookResponse{
		StatusCode: resp.StatusCode,
		Body:       string(body),
	}, nil
}

func (c *WebhookClient) classify(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return fmt.Errorf("request timeout after %s", c.timeout)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timeout after %s", c.timeout)
	}
	return fmt.Errorf("connection error: %w", err)
}
