package client

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// QueryEvent represents a statement execution event
type QueryEvent struct {
	// ID is unique per statement and correlates log lines.
	ID        string
	Operation string
	Table     string
	Query     string
	Args      []any
	Rows      int64
	Duration  time.Duration
	Error     error
	Start     time.Time
	End       time.Time
}

// Middleware is a function that intercepts statements
type Middleware func(ctx context.Context, event *QueryEvent, next func() error) error

// executeWithMiddleware executes a statement with the middleware chain
func (s *Store) executeWithMiddleware(ctx context.Context, event *QueryEvent, exec func() error) error {
	s.mu.RLock()
	chain := s.middlewares
	s.mu.RUnlock()

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	event.Start = time.Now()
	finish := func() error {
		err := exec()
		event.End = time.Now()
		event.Duration = event.End.Sub(event.Start)
		event.Error = err
		return err
	}
	if len(chain) == 0 {
		return finish()
	}

	var next func() error
	index := 0

	next = func() error {
		if index >= len(chain) {
			// Last middleware, execute the actual statement
			return finish()
		}

		middleware := chain[index]
		index++
		return middleware(ctx, event, next)
	}

	return next()
}

// LoggingMiddleware creates a middleware that logs every statement
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(ctx context.Context, event *QueryEvent, next func() error) error {
		err := next()
		if err != nil {
			logger.ErrorContext(ctx, "Statement failed",
				"id", event.ID,
				"op", event.Operation,
				"query", event.Query,
				"duration", event.Duration,
				"error", err)
		} else {
			logger.InfoContext(ctx, "Statement executed",
				"id", event.ID,
				"op", event.Operation,
				"query", event.Query,
				"args", len(event.Args),
				"rows", event.Rows,
				"duration", event.Duration)
		}
		return err
	}
}

// TimingMiddleware creates a middleware that measures statement execution time
func TimingMiddleware(onTiming func(query string, duration time.Duration)) Middleware {
	return func(ctx context.Context, event *QueryEvent, next func() error) error {
		err := next()
		if onTiming != nil {
			onTiming(event.Query, event.Duration)
		}
		return err
	}
}

// ErrorMiddleware creates a middleware that handles errors
func ErrorMiddleware(onError func(query string, err error)) Middleware {
	return func(ctx context.Context, event *QueryEvent, next func() error) error {
		err := next()
		if err != nil && onError != nil {
			onError(event.Query, err)
		}
		return err
	}
}
