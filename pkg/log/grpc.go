package log

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const metadataKeyRequestID = "x-request-id"

// UnaryServerInterceptor injects a per-call logger and logs completion.
func UnaryServerInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		child := callLogger(ctx, logger, info.FullMethod)

		resp, err := handler(WithLogger(ctx, child), req)
		logCall(child, "unary call completed", start, err)
		return resp, err
	}
}

// StreamServerInterceptor is the streaming counterpart; health Watch calls
// go through it.
func StreamServerInterceptor(logger zerolog.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		child := callLogger(ss.Context(), logger, info.FullMethod)

		err := handler(srv, &wrappedStream{ServerStream: ss, ctx: WithLogger(ss.Context(), child)})
		logCall(child, "stream call completed", start, err)
		return err
	}
}

func callLogger(ctx context.Context, logger zerolog.Logger, method string) zerolog.Logger {
	var incoming string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(metadataKeyRequestID); len(vals) > 0 {
			incoming = vals[0]
		}
	}
	return logger.With().
		Str(FieldRequestID, requestID(incoming)).
		Str(FieldGRPCMethod, method).
		Logger()
}

func logCall(l zerolog.Logger, msg string, start time.Time, err error) {
	l.Info().
		Str(FieldGRPCCode, status.Code(err).String()).
		Float64(FieldLatency, float64(time.Since(start).Milliseconds())).
		Err(err).
		Msg(msg)
}

type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context {
	return w.ctx
}
