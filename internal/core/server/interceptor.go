package server

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/solatis/intervalq/internal/types"
)

// contextKey is a typed key for context values to avoid collisions.
type contextKey string

// requestIDKey is the context key for the request correlation id.
const requestIDKey = contextKey("request_id")

// RequestIDHeader carries a caller-supplied UUID request id.
const RequestIDHeader = "x-request-id"

// RequestIDFromContext extracts the request id from context.
// Returns empty string if not found.
func RequestIDFromContext(ctx context.Context) types.RequestID {
	if id, ok := ctx.Value(requestIDKey).(types.RequestID); ok {
		return id
	}
	return ""
}

// requestInterceptor assigns a request id, bounds the request by timeout,
// recovers panics and logs the outcome of every call.
func requestInterceptor(logger *zap.Logger, timeout time.Duration) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		id := incomingRequestID(ctx)
		ctx = context.WithValue(ctx, requestIDKey, id)
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, string(id)))

		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic in handler",
					zap.String("method", info.FullMethod),
					zap.String("request_id", string(id)),
					zap.Any("panic", r),
					zap.Stack("stack"),
				)
				resp, err = nil, status.Error(codes.Internal, fmt.Sprintf("internal error (request %s)", id))
			}

			code := status.Code(err)
			fields := []zap.Field{
				zap.String("method", info.FullMethod),
				zap.String("request_id", string(id)),
				zap.String("code", code.String()),
				zap.Duration("elapsed", time.Since(start)),
			}
			switch code {
			case codes.OK:
				logger.Info("request completed", fields...)
			case codes.Internal, codes.Unavailable, codes.DataLoss, codes.Unknown:
				logger.Error("request failed", append(fields, zap.Error(err))...)
			default:
				logger.Warn("request rejected", append(fields, zap.Error(err))...)
			}
		}()

		return handler(ctx, req)
	}
}

// incomingRequestID returns the caller's request id when it is a valid
// UUID, or a fresh one.
func incomingRequestID(ctx context.Context) types.RequestID {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get(RequestIDHeader); len(ids) > 0 {
			if id, err := types.ParseRequestID(ids[0]); err == nil {
				return id
			}
		}
	}
	return types.NewRequestID()
}
