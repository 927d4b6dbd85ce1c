// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package retry runs operations with exponential backoff.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
var ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

// Option configures WithBackoff.
type Option func(*settings)

type settings struct {
	retryable func(error) bool
	maxDelay  time.Duration
	onRetry   func(attempt int, err error, delay time.Duration)
	logger    *slog.Logger
}

// If limits retries to errors for which retryable returns true. Any other
// error is returned immediately.
func If(retryable func(error) bool) Option {
	return func(s *settings) {
		s.retryable = retryable
	}
}

// WithMaxDelay caps the delay between attempts.
func WithMaxDelay(d time.Duration) Option {
	return func(s *settings) {
		s.maxDelay = d
	}
}

// OnRetry is called before sleeping ahead of the next attempt.
func OnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(s *settings) {
		s.onRetry = fn
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithBackoff retries an operation with exponential backoff.
// maxAttempts: maximum number of attempts (must be > 0)
// baseDelay: base delay between retries (doubles on each retry)
// The operation receives the 1-based attempt number.
// Returns the error from the last attempt if all attempts fail.
func WithBackoff(ctx context.Context, operation func(attempt int) error, maxAttempts int, baseDelay time.Duration, opts ...Option) error {
	if maxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}
	s := settings{logger: slog.Default()}
	for _, opt := range opts {
		opt(&s)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		// Check context before attempting
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = operation(attempt)
		if lastErr == nil {
			if attempt > 1 {
				s.logger.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return nil
		}

		if s.retryable != nil && !s.retryable(lastErr) {
			return lastErr
		}

		// Don't sleep after the last attempt
		if attempt == maxAttempts {
			break
		}

		delay := Delay(baseDelay, attempt, s.maxDelay)
		s.logger.Debug("operation failed, will retry", "attempt", attempt, "maxAttempts", maxAttempts, "delay", delay, "error", lastErr)
		if s.onRetry != nil {
			s.onRetry(attempt, lastErr, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}

// Delay returns baseDelay * 2^(attempt-1), capped at maxDelay when positive.
func Delay(baseDelay time.Duration, attempt int, maxDelay time.Duration) time.Duration {
	delay := baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if maxDelay > 0 && delay >= maxDelay {
			return maxDelay
		}
	}
	if maxDelay > 0 && delay > maxDelay {
		return maxDelay
	}
	return delay
}
