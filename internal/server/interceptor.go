package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/tickets-tracker/internal/common"
)

// Metadata keys set by the calling front end.
const (
	HeaderUserID    = "x-user-id"
	HeaderUserRole  = "x-user-role"
	HeaderRequestID = "x-request-id"
)

func first(md metadata.MD, key string) string {
	if v := md.Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

// UnaryInterceptor normalizes the caller identity and request id from
// metadata into the context and logs every call.
func UnaryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		md, _ := metadata.FromIncomingContext(ctx)
		who := common.NewIdentity(first(md, HeaderUserID), first(md, HeaderUserRole))
		rid := first(md, HeaderRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		ctx = common.WithIdentity(common.WithRequestID(ctx, rid), who)

		resp, err := handler(ctx, req)
		attrs := []any{
			"method", info.FullMethod,
			"user_id", who.UserID,
			"request_id", rid,
			"code", status.Code(err).String(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		}
		if err != nil {
			logger.Warn("grpc.call.failed", append(attrs, "error", err)...)
		} else {
			logger.Info("grpc.call", attrs...)
		}
		return resp, err
	}
}
