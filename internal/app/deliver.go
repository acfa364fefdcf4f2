package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"review_sync/internal/adapters/observability"
	"review_sync/internal/domain"
)

type DeliveryClass string

const (
	DeliverySuccess   DeliveryClass = "success"
	DeliveryRetryable DeliveryClass = "retryable"
	DeliveryFatal     DeliveryClass = "fatal"
)

// Classify maps one attempt's outcome. Connection-level errors, 408, 429 and
// 5xx are transient; any other non-2xx status is a rejection.
func Classify(status int, err error) DeliveryClass {
	if err != nil {
		return DeliveryRetryable
	}
	switch {
	case status >= 200 && status < 300:
		return DeliverySuccess
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return DeliveryRetryable
	case status >= 500 && status < 600:
		return DeliveryRetryable
	default:
		return DeliveryFatal
	}
}

type DeliveryReport struct {
	Sent     int
	Attempts int
	Status   int
	Accepted *int
}

// DeliveryError carries the last observed failure of a batch. It matches
// either domain.ErrFatalDelivery or domain.ErrRetriesExhausted, and the cause.
type DeliveryError struct {
	Kind     error
	Status   int
	Attempts int
	Detail   string
	Err      error
}

func (e *DeliveryError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%v after %d attempt(s)", e.Kind, e.Attempts)
	if e.Status != 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, ": %s", e.Detail)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *DeliveryError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Deliverer posts a merged batch as one unit, retrying transient failures.
type Deliverer struct {
	endpoint domain.IngestEndpoint
	policy   RetryPolicy
	sleep    Sleeper
}

func NewDeliverer(e domain.IngestEndpoint, p RetryPolicy, sleep Sleeper) *Deliverer {
	if sleep == nil {
		sleep = SleepCtx
	}
	return &Deliverer{endpoint: e, policy: p, sleep: sleep}
}

// statusError is the per-attempt failure fed to Retry.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string { return fmt.Sprintf("endpoint returned %d", e.status) }

// Deliver sends reviews whole. An empty batch is a no-op.
func (d *Deliverer) Deliver(ctx context.Context, reviews []domain.CanonicalReview) (DeliveryReport, error) {
	rep := DeliveryReport{Sent: len(reviews)}
	if len(reviews) == 0 {
		return rep, nil
	}
	body, err := json.Marshal(reviews)
	if err != nil {
		return rep, &DeliveryError{Kind: domain.ErrFatalDelivery, Err: fmt.Errorf("encode batch: %w", err)}
	}

	attempts, exhausted, err := Retry(ctx, d.policy, d.sleep, func(attempt int) error {
		resp, perr := d.endpoint.Post(ctx, body)
		class := Classify(resp.Status, perr)
		observability.ObserveDelivery(string(class))
		rep.Status = resp.Status
		rep.Accepted = resp.Accepted

		switch class {
		case DeliverySuccess:
			return nil
		case DeliveryFatal:
			log.Error().Int("attempt", attempt).Int("status", resp.Status).
				Str("body", resp.Body).Msg("ingest endpoint rejected batch")
			return Permanent(&statusError{status: resp.Status, body: resp.Body})
		}
		if perr != nil {
			if ctx.Err() != nil {
				return Permanent(ctx.Err())
			}
			log.Warn().Int("attempt", attempt).Err(perr).Msg("ingest post failed")
			return perr
		}
		log.Warn().Int("attempt", attempt).Int("status", resp.Status).Msg("ingest post failed, will retry")
		return &statusError{status: resp.Status, body: resp.Body}
	})
	rep.Attempts = attempts
	if err == nil {
		return rep, nil
	}

	de := &DeliveryError{Kind: domain.ErrRetriesExhausted, Attempts: attempts, Err: err}
	var se *statusError
	if errors.As(err, &se) {
		de.Status, de.Detail, de.Err = se.status, se.body, nil
	}
	if !exhausted && se != nil {
		de.Kind = domain.ErrFatalDelivery
	}
	return rep, de
}
