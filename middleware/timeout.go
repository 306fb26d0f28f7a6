package middleware

import (
	"context"
	"time"

	"yeectl/message"
)

// Timeout bounds each call. When the deadline passes the transport abandons
// the pending request, so a late response is dropped.
func Timeout(timeout time.Duration) Middleware {
	return func(next Invoker) Invoker {
		return func(ctx context.Context, req *message.Request) (*message.Response, error) {
			if timeout <= 0 {
				return next(ctx, req)
			}
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, req)
		}
	}
}
