package middleware

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"yeectl/message"
)

// RateLimit keeps the client under the bulb's command quota using a token
// bucket. Yeelight bulbs accept 60 commands per minute per connection and
// answer "client quota exceeded" beyond that, so calls wait for a token
// instead of being rejected by the device. A non-positive perMinute disables
// the limit.
func RateLimit(perMinute float64, burst int) Middleware {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(perMinute / 60)
	}
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(limit, burst)
	return func(next Invoker) Invoker {
		return func(ctx context.Context, req *message.Request) (*message.Response, error) {
			if err := limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrRateLimited, req.Method, err)
			}
			return next(ctx, req)
		}
	}
}
