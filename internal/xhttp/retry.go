// Package xhttp carries small HTTP transaction decorators shared by the
// polling CommunicationManagers, adapted from the teacher's vendored
// xhttp/retry.go.
package xhttp

import (
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/xmidt-org/teleop/internal/xlog"
)

// Transactor is the shape of http.Client.Do, shared so decorators compose
// with either a Client or a RoundTripper.
type Transactor func(*http.Request) (*http.Response, error)

// temporaryError is implicitly implemented by several net package error
// types, e.g. net.DNSError.
type temporaryError interface {
	Temporary() bool
}

// ShouldRetryFunc decides whether a failed transaction should be retried.
type ShouldRetryFunc func(error) bool

// DefaultShouldRetry retries only errors that self-report as temporary.
func DefaultShouldRetry(err error) bool {
	if temp, ok := err.(temporaryError); ok {
		return temp.Temporary()
	}
	return false
}

// RetryOptions configures RetryTransactor.
type RetryOptions struct {
	Logger      log.Logger
	Retries     int
	ShouldRetry ShouldRetryFunc
}

// RetryTransactor decorates next with up to o.Retries extra attempts. If
// o.Retries is nonpositive, next is returned undecorated.
func RetryTransactor(o RetryOptions, next Transactor) Transactor {
	if o.Retries < 1 {
		return next
	}
	if o.Logger == nil {
		o.Logger = xlog.New()
	}
	if o.ShouldRetry == nil {
		o.ShouldRetry = DefaultShouldRetry
	}

	attempts := o.Retries + 1
	return func(request *http.Request) (*http.Response, error) {
		var (
			response *http.Response
			err      error
		)
		for i := 0; i < attempts; i++ {
			response, err = next(request)
			if err != nil && o.ShouldRetry(err) {
				xlog.Error(o.Logger).Log(
					xlog.MessageKey(), "retrying HTTP transaction",
					"url", request.URL.String(), "error", err, "attempt", i+1)
				continue
			}
			break
		}
		if err != nil {
			xlog.Error(o.Logger).Log(
				xlog.MessageKey(), "all HTTP transaction retries failed",
				"url", request.URL.String(), "error", err, "attempts", attempts)
		}
		return response, err
	}
}
