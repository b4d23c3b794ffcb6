package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/google/uuid"
)

// slowRequestThreshold flags requests that take far longer than a normal
// provider round trip.
const slowRequestThreshold = 10 * time.Second

// Logging returns a middleware that logs every HTTP request with its
// method, path, status code, duration and a request id. The request id is
// taken from X-Request-ID when the caller supplies one.
func Logging(logger log.Logger) middleware.Middleware {
	helper := log.NewHelper(logger)
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			start := time.Now()

			var (
				method    string
				path      string
				ip        string
				requestID string
			)
			if tr, ok := transport.FromServerContext(ctx); ok {
				method = tr.Operation()
				path = tr.Operation()
				if ht, ok := tr.(http.Transporter); ok {
					httpReq := ht.Request()
					method = httpReq.Method
					path = httpReq.URL.Path
					ip = clientIP(httpReq.RemoteAddr, httpReq.Header.Get("X-Forwarded-For"))
					requestID = httpReq.Header.Get("X-Request-ID")
				}
			}
			if requestID == "" {
				requestID = uuid.NewString()
			}

			reply, err := handler(ctx, req)

			duration := time.Since(start)
			code := 200
			if err != nil {
				code = int(errors.FromError(err).Code)
			}

			fields := []interface{}{
				"method", method,
				"path", path,
				"status", code,
				"duration_ms", duration.Milliseconds(),
				"client_ip", ip,
				"request_id", requestID,
			}
			switch {
			case err != nil:
				helper.Warnw(append(fields, "error", err)...)
			case duration > slowRequestThreshold:
				helper.Warnw(append(fields, "slow_request", true)...)
			default:
				helper.Infow(fields...)
			}

			return reply, err
		}
	}
}

func clientIP(remoteAddr, forwardedFor string) string {
	if forwardedFor != "" {
		if i := strings.IndexByte(forwardedFor, ','); i > 0 {
			return strings.TrimSpace(forwardedFor[:i])
		}
		return strings.TrimSpace(forwardedFor)
	}
	if i := strings.LastIndexByte(remoteAddr, ':'); i > 0 {
		return remoteAddr[:i]
	}
	return remoteAddr
}
