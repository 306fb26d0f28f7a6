package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"yeectl/message"
)

// Logging logs every call with its method, params and duration.
func Logging(logger *zap.Logger) Middleware {
	logger = logger.Named("call")
	return func(next Invoker) Invoker {
		return func(ctx context.Context, req *message.Request) (*message.Response, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.Any("params", req.Params),
				zap.Duration("duration", time.Since(start)),
			}
			switch {
			case err != nil:
				logger.Warn("call failed", append(fields, zap.Error(err))...)
			case resp.Error != nil:
				logger.Info("bulb returned error", append(fields,
					zap.Int("code", resp.Error.Code),
					zap.String("message", resp.Error.Message))...)
			default:
				logger.Debug("call succeeded", append(fields, zap.Strings("result", resp.Result))...)
			}
			return resp, err
		}
	}
}
