package http

import (
	"context"
	"errors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"krosty/internal/app/adapters/http/handlers"
	"krosty/internal/app/adapters/http/middlewares"
	"krosty/internal/app/infrastructure/config"
	"krosty/pkg/logger"
	"log/slog"
	"net/http"
	"time"
)

type Router struct {
	router      *gin.Engine
	handlers    *handlers.Handlers
	middlewares *middlewares.Middlewares

	log     logger.Logger
	manager *config.Manager
}

func NewRouter(log logger.Logger, manager *config.Manager, h *handlers.Handlers) *Router {
	cfg := manager.Get()

	r := &Router{
		router:      gin.New(),
		handlers:    h,
		middlewares: middlewares.New(log),
		log:         log,
		manager:     manager,
	}
	r.router.Use(gin.Recovery())

	debug := r.router.Group("/", r.middlewares.LocalOnly(), gin.BasicAuth(gin.Accounts{
		"admin": cfg.App.AuthToken,
	}))
	pprof.Register(debug)
	debug.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.router.GET("/healthz", r.handlers.HealthzHandler)

	api := r.router.Group("/api", r.middlewares.Auth(cfg.App.AuthToken))
	api.GET("/events", r.handlers.EventsHandler)
	api.GET("/channels", r.handlers.ListChannelsHandler)
	api.POST("/channels", r.handlers.OpenChannelHandler)
	api.DELETE("/channels/:channel", r.handlers.CloseChannelHandler)
	api.POST("/channels/:channel/actions", r.handlers.ActionHandler)
	api.POST("/channels/:channel/reconnect", r.handlers.ReconnectHandler)
	api.GET("/token", r.handlers.TokenStatusHandler)
	api.PUT("/token", r.handlers.SetTokenHandler)
	api.DELETE("/token", r.handlers.ClearTokenHandler)
	api.PUT("/log-level", r.handlers.LogLevelHandler)

	return r
}

func (r *Router) Handler() http.Handler {
	return r.router
}

// Run serves until ctx is cancelled, then drains for up to five seconds.
func (r *Router) Run(ctx context.Context) error {
	srv := r.newServer(r.manager.Get().App.Listen, r.router)

	errCh := make(chan error, 1)
	go func() {
		r.log.Info("HTTP bridge listening", slog.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// newServer leaves WriteTimeout unset, /api/events is a long-lived stream.
func (r *Router) newServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}
}
