package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrTimeout indicates a timeout while issuing a request.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection indicates a network connectivity failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrForbidden indicates a forbidden response (HTTP 403).
type ErrForbidden struct {
	Err error
}

func (e ErrForbidden) Error() string {
	return fmt.Errorf("forbidden: %w", e.Err).Error()
}

func (e ErrForbidden) Unwrap() error {
	return e.Err
}

// ErrNotFound indicates a missing resource (HTTP 404).
type ErrNotFound struct {
	Err error
}

func (e ErrNotFound) Error() string {
	return fmt.Errorf("not_found: %w", e.Err).Error()
}

func (e ErrNotFound) Unwrap() error {
	return e.Err
}

// ErrRateLimited indicates the portal rate-limited the request (HTTP 429).
type ErrRateLimited struct {
	Err error
}

func (e ErrRateLimited) Error() string {
	return fmt.Errorf("rate_limited: %w", e.Err).Error()
}

func (e ErrRateLimited) Unwrap() error {
	return e.Err
}

// ErrServer indicates a 5xx response.
type ErrServer struct {
	Status int
}

func (e ErrServer) Error() string {
	return fmt.Sprintf("server: http status %d", e.Status)
}

// ErrStatus is any other non-2xx response.
type ErrStatus struct {
	Status int
}

func (e ErrStatus) Error() string {
	return fmt.Sprintf("http status %d", e.Status)
}

// Retryable reports whether another attempt may succeed.
func Retryable(err error) bool {
	var (
		timeout     ErrTimeout
		conn        ErrConnection
		rateLimited ErrRateLimited
		server      ErrServer
	)
	return errors.As(err, &timeout) ||
		errors.As(err, &conn) ||
		errors.As(err, &rateLimited) ||
		errors.As(err, &server)
}

// ErrorType returns a stable label for metrics and logs.
func ErrorType(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var forbidden ErrForbidden
	if errors.As(err, &forbidden) {
		return "forbidden"
	}
	var notFound ErrNotFound
	if errors.As(err, &notFound) {
		return "not_found"
	}
	var rateLimited ErrRateLimited
	if errors.As(err, &rateLimited) {
		return "rate_limited"
	}
	var server ErrServer
	if errors.As(err, &server) {
		return "server"
	}
	var status ErrStatus
	if errors.As(err, &status) {
		return "status"
	}
	return "other"
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout{Err: err}
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return ErrTimeout{Err: err}
		}
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			return ErrConnection{Err: err}
		}
		return ErrConnection{Err: err}
	}

	wrapped := fmt.Errorf("http status %d", statusCode)
	switch {
	case statusCode == http.StatusForbidden:
		return ErrForbidden{Err: wrapped}
	case statusCode == http.StatusNotFound:
		return ErrNotFound{Err: wrapped}
	case statusCode == http.StatusTooManyRequests:
		return ErrRateLimited{Err: wrapped}
	case statusCode >= http.StatusInternalServerError:
		return ErrServer{Status: statusCode}
	}
	// 1xx, unfollowed 3xx and remaining 4xx.
	return ErrStatus{Status: statusCode}
}
