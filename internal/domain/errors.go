package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrEventStale         = errors.New("event modified by concurrent dispatch")
	ErrInvalidEventType   = errors.New("invalid webhook event type")
	ErrInvalidEventStatus = errors.New("invalid webhook event status")
	ErrMissingSecret      = errors.New("webhook secret is required for signing")
)
