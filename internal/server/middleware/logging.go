// Package middleware provides HTTP middleware for the admin server.
package middleware

import (
	"context"
	"time"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// slowRequestThreshold flags admin requests that should have been instant.
const slowRequestThreshold = 2 * time.Second

// Logging returns a middleware that records one line per admin request with
// method, path, status and duration.
func Logging(logger log.Logger) middleware.Middleware {
	helper := log.NewHelper(logger)

	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			start := time.Now()

			method := ""
			path := ""
			if tr, ok := transport.FromServerContext(ctx); ok {
				path = tr.Operation()
				if ht, ok := tr.(http.Transporter); ok {
					httpReq := ht.Request()
					method = httpReq.Method
					path = httpReq.URL.Path
				}
			}

			reply, err := handler(ctx, req)

			elapsed := time.Since(start)
			status := 200
			if err != nil {
				status = int(errors.FromError(err).Code)
			}

			helper.Infow("http request",
				"method", method,
				"path", path,
				"status", status,
				"duration_ms", elapsed.Milliseconds())

			if elapsed > slowRequestThreshold {
				helper.Warnw("slow admin request",
					"method", method,
					"path", path,
					"duration_ms", elapsed.Milliseconds())
			}

			return reply, err
		}
	}
}
