package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrConfigMissing     = errors.New("configuration missing")
	ErrFatalDelivery     = errors.New("delivery rejected")
	ErrRetriesExhausted  = errors.New("delivery retries exhausted")
)
