package middleware

import (
	"context"
	"time"

	"yeectl/message"
	"yeectl/metrics"
)

// Metrics records the outcome and duration of every call in c.
func Metrics(c *metrics.Collector) Middleware {
	return func(next Invoker) Invoker {
		return func(ctx context.Context, req *message.Request) (*message.Response, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			outcome := metrics.OutcomeOK
			switch {
			case err != nil:
				outcome = metrics.OutcomeFailed
			case resp.Error != nil:
				outcome = metrics.OutcomeProtocolError
			}
			c.ObserveRequest(req.Method, outcome, time.Since(start).Seconds())
			return resp, err
		}
	}
}
