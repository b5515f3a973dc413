// Package server wires the admin HTTP transport.
package server

import (
	"DocketWatch/internal/biz"
	"DocketWatch/internal/conf"
	"DocketWatch/internal/server/middleware"
	"DocketWatch/internal/service"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/google/wire"
)

// ProviderSet is server providers.
var ProviderSet = wire.NewSet(NewHTTPServer)

// NewHTTPServer new an HTTP server.
func NewHTTPServer(c *conf.Server, monitor *service.MonitorService, logger log.Logger) *http.Server {
	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
			middleware.Logging(logger),
		),
	}
	if c.Http.Network != "" {
		opts = append(opts, http.Network(c.Http.Network))
	}
	if c.Http.Addr != "" {
		opts = append(opts, http.Address(c.Http.Addr))
	}
	if c.Http.Timeout != nil {
		opts = append(opts, http.Timeout(c.Http.Timeout.AsDuration()))
	}
	srv := http.NewServer(opts...)

	registerRoutes(srv, monitor)

	return srv
}

// registerRoutes mounts the admin endpoints.
func registerRoutes(srv *http.Server, monitor *service.MonitorService) {
	r := srv.Route("/")

	r.GET("/healthz", func(ctx http.Context) error {
		return ctx.JSON(200, map[string]string{"status": "ok"})
	})

	r.GET("/api/v1/stats", func(ctx http.Context) error {
		return ctx.JSON(200, monitor.Stats())
	})

	r.POST("/api/v1/cases", func(ctx http.Context) error {
		var req service.EnrollRequest
		if err := ctx.Bind(&req); err != nil {
			return errors.BadRequest("INVALID_BODY", err.Error())
		}
		if req.ExternalKey == "" {
			return errors.BadRequest("MISSING_EXTERNAL_KEY", "external_key is required")
		}
		reply, err := monitor.Enroll(ctx, &req)
		if err != nil {
			return errors.InternalServer("ENROLL_FAILED", err.Error())
		}
		return ctx.JSON(201, reply)
	})

	r.POST("/api/v1/checks/run", func(ctx http.Context) error {
		if err := monitor.TriggerRun(); err != nil {
			if err == biz.ErrRunInProgress {
				return errors.New(409, "RUN_IN_PROGRESS", "a daily check is already running")
			}
			return errors.InternalServer("RUN_TRIGGER_FAILED", err.Error())
		}
		return ctx.JSON(202, map[string]string{"status": "started"})
	})
}
