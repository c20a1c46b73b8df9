// Package llm generates care plan documents from rendered prompts.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Generator produces a care plan document for a prompt. Implementations must
// honor ctx cancellation; the worker bounds every call with a deadline.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Error is a classified generation failure. Transient failures are retried
// by the worker; permanent ones fail the order immediately.
type Error struct {
	StatusCode int
	Message    string
	Transient  bool
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm: http %d: %s", e.StatusCode, e.Message)
	}
	return "llm: " + e.Message
}

// IsTransient reports whether err is worth retrying. Network failures,
// timeouts, 408, 429, and 5xx responses are transient; everything else
// (auth failures, bad requests, content rejections) is permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Transient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

func transientStatus(code int) bool {
	if code == 408 || code == 429 {
		return true
	}
	return code >= 500 && code <= 599
}
