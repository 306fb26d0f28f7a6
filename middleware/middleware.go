// Package middleware wraps bulb calls with cross-cutting behaviour.
//
// An Invoker performs one call; a Middleware decorates an Invoker. Chain(A, B)
// builds A(B(invoker)), so A sees the call first and the result last.
//
// There is no retry middleware; a failed call is reported to the
// caller, which decides whether to reconnect or try again.
package middleware

import (
	"context"
	"errors"

	"yeectl/message"
)

// ErrRateLimited is returned when the local command budget cannot be met
// before the call's deadline.
var ErrRateLimited = errors.New("middleware: rate limit exceeded")

// Invoker sends req and returns the bulb's response.
type Invoker func(ctx context.Context, req *message.Request) (*message.Response, error)

// Middleware decorates an Invoker.
type Middleware func(next Invoker) Invoker

// Chain composes middlewares into one; the first is outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next Invoker) Invoker {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
