package middleware

import (
	"context"
	"strings"

	"github.com/arithgrey/service-whatsapp/pkg/breaker"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// sendPathPrefixes are the dispatch routes the guard applies to. Webhook
// callbacks and read-only status endpoints must stay reachable while the
// circuit is open.
var sendPathPrefixes = []string{
	"/api/whatsapp/send",
	"/api/whatsapp/schedule",
}

// BreakerGuard fast-rejects dispatch requests with a 503 while the circuit
// is open, before the request body is even decoded. It never reserves the
// half-open trial slot, so the request that should probe recovery still
// reaches the dispatch path.
func BreakerGuard(b *breaker.Breaker, logger log.Logger) middleware.Middleware {
	helper := log.NewHelper(logger)
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			if tr, ok := transport.FromServerContext(ctx); ok {
				if ht, ok := tr.(http.Transporter); ok {
					path := ht.Request().URL.Path
					if isSendPath(path) && b.Rejecting() {
						helper.Warnw("request rejected, circuit open", "path", path)
						return nil, errors.New(503, "CIRCUIT_OPEN",
							"WhatsApp service temporarily unavailable (circuit open)")
					}
				}
			}
			return handler(ctx, req)
		}
	}
}

func isSendPath(path string) bool {
	for _, prefix := range sendPathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
