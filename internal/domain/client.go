package domain

import (
	"time"

	"github.com/google/uuid"
)

// Client holds the webhook delivery configuration for an API client.
type Client struct {
	ID             uuid.UUID
	Name           string
	WebhookEnabled bool
	WebhookURL     *string
	WebhookSecret  *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// WebhookConfigured reports whether the client can receive webhooks at all:
// enabled and with a non-empty delivery URL.
func (c *Client) WebhookConfigured() bool {
	return c.WebhookEnabled && c.WebhookURL != nil && *c.WebhookURL != ""
}
