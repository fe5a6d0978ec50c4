// internal/pipeline/caller/caller.go

// Package caller issues the model calls of the validation pipeline:
// one call validates exactly one requirement. It owns the process-wide
// rate limiter, the per-call timeout, and the retry/backoff policy for
// transient provider failures.
package caller

import (
	"context"
	"errors"
	"time"

	stderrors "assessment-workers/internal/common/errors"
	"assessment-workers/internal/common/genai"
	"assessment-workers/internal/common/logger"
	"assessment-workers/internal/common/metrics"
	"assessment-workers/internal/models"
	"assessment-workers/internal/pipeline/prompt"
)

// Generator is the provider call surface; the Gemini-backed client
// implements it, tests use fakes.
type Generator interface {
	Generate(ctx context.Context, payload string, docs []models.DocumentReference) (*genai.Response, error)
}

type Caller struct {
	generator   Generator
	limiter     *Limiter
	backoff     BackoffPolicy
	callTimeout time.Duration
	logger      logger.Logger
}

func New(generator Generator, limiter *Limiter, backoff BackoffPolicy, callTimeout time.Duration, log logger.Logger) *Caller {
	return &Caller{
		generator:   generator,
		limiter:     limiter,
		backoff:     backoff,
		callTimeout: callTimeout,
		logger:      log.With(map[string]interface{}{"component": "caller"}),
	}
}

// Call issues one generation request for an assembled payload,
// mounting the session's document manifest by reference. Transient
// failures (429, 5xx, timeouts, connection errors) are retried with
// backoff up to the policy's attempt bound; other provider rejections
// fail immediately. Either way the error is requirement-scoped: the
// caller of Call records it against that requirement and moves on.
func (c *Caller) Call(ctx context.Context, payload prompt.RequestPayload, session models.SessionContext) (*genai.Response, error) {
	var lastErr error

	for attempt := 1; attempt <= c.backoff.MaxAttempts; attempt++ {
		if attempt > 1 {
			metrics.ProviderRetries.Inc()
			if err := c.backoff.Wait(ctx, attempt-1); err != nil {
				return nil, err
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		resp, err := c.generator.Generate(callCtx, payload.Text, session.Documents)
		cancel()

		if err == nil {
			metrics.ProviderCalls.WithLabelValues("ok").Inc()
			return resp, nil
		}

		// The parent context going away means cancellation, not a
		// provider problem.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		classified := c.classify(err)
		var stdErr *stderrors.StandardError
		if errors.As(classified, &stdErr) && !stdErr.Retryable {
			metrics.ProviderCalls.WithLabelValues("rejected").Inc()
			return nil, classified
		}

		metrics.ProviderCalls.WithLabelValues("transient").Inc()
		c.logger.Warn("model call failed, will retry", map[string]interface{}{
			"requirementId": payload.Requirement.ID,
			"attempt":       attempt,
			"maxAttempts":   c.backoff.MaxAttempts,
			"error":         err.Error(),
		})
		lastErr = classified
	}

	metrics.ProviderCalls.WithLabelValues("exhausted").Inc()
	return nil, stderrors.NewRetriesExhaustedError(c.backoff.MaxAttempts, lastErr)
}

// classify maps a provider error onto the transient/rejected split.
// 429 and 5xx are transient; a timed-out call is treated identically
// to a transient failure; any other HTTP status is a rejection.
// Errors without an HTTP status (connection resets and the like) are
// assumed transient.
func (c *Caller) classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return stderrors.NewProviderTimeoutError(c.callTimeout)
	}

	if code, ok := genai.StatusCode(err); ok {
		switch {
		case code == 429 || code >= 500:
			return stderrors.NewProviderTransientError(err)
		case code >= 400:
			return stderrors.NewProviderRejectedError(err)
		}
	}

	return stderrors.NewProviderTransientError(err)
}
