package app

import (
	"context"
	"fmt"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/net/proxy"
	"golang.org/x/time/rate"
	router "krosty/internal/app/adapters/http"
	"krosty/internal/app/adapters/http/handlers"
	"krosty/internal/app/adapters/metrics"
	"krosty/internal/app/adapters/platform/kick/api"
	"krosty/internal/app/adapters/platform/kick/pusher"
	"krosty/internal/app/adapters/seventv"
	"krosty/internal/app/domain/bus"
	"krosty/internal/app/domain/catalog"
	"krosty/internal/app/domain/chat"
	"krosty/internal/app/domain/session"
	"krosty/internal/app/domain/token"
	"krosty/internal/app/infrastructure/backoff"
	"krosty/internal/app/infrastructure/config"
	"krosty/internal/app/infrastructure/vault"
	"krosty/internal/app/ports"
	"krosty/pkg/logger"
	"log/slog"
	"net"
	"net/http"
	"time"
)

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// New wires the engine and serves the bridge until ctx is cancelled.
func New(ctx context.Context, configPath string) error {
	manager, err := config.New(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := manager.Get()

	log := logger.New(logger.Options{File: cfg.App.LogFile})
	log.SetLogLevel(cfg.App.LogLevel)
	gin.SetMode(cfg.App.GinMode)
	manager.OnChange(func(cfg config.Config) {
		log.SetLogLevel(cfg.App.LogLevel)
	})

	netDial, err := newNetDial(cfg.Proxy)
	if err != nil {
		log.Error("Failed to set up proxy", err)
		return err
	}
	client := &http.Client{
		Timeout: 15 * time.Second,
		Transport: &http.Transport{
			DialContext:         netDial,
			ForceAttemptHTTP2:   true,
			MaxIdleConns:        16,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}

	prometheus.MustRegister(metrics.DecodeTime, metrics.CatalogRefreshTime)

	kick := api.NewKick(log, client, cfg.Kick.SiteBase, cfg.Kick.APIBase, cfg.Kick.ChannelTTL.Std())
	catalogs := catalog.NewCache(log, kick, []ports.EmoteProvider{kick, seventv.New(log, client, cfg.SevenTV.APIBase)}, catalog.Config{
		StaleAfter:      cfg.Catalog.StaleAfter.Std(),
		IdleTTL:         cfg.Catalog.IdleTTL.Std(),
		FailureCooldown: cfg.Catalog.FailureCooldown.Std(),
		FetchTimeout:    cfg.Catalog.FetchTimeout.Std(),
	}, catalog.WithRefreshHook(metrics.CatalogRefreshed))

	tokens := newTokenStore(log, cfg.Vault)

	events := bus.New(cfg.Bus.Depth, bus.WithDropHook(metrics.BusOverflow))
	defer events.Close()

	engine := session.NewEngine(session.Config{
		HeartbeatInterval: cfg.Session.HeartbeatInterval.Std(),
		HeartbeatTimeout:  cfg.Session.HeartbeatTimeout.Std(),
		ConnectTimeout:    cfg.Session.ConnectTimeout.Std(),
		SendTimeout:       cfg.Session.SendTimeout.Std(),
		Backoff: backoff.Policy{
			Base:   cfg.Session.BackoffBase.Std(),
			Max:    cfg.Session.BackoffMax.Std(),
			Jitter: cfg.Session.BackoffJitter,
		},
	}, session.Deps{
		Log:       log,
		Dialer:    pusher.NewDialer(log, cfg.Kick.PusherURL, netDial),
		Resolver:  kick,
		API:       kick,
		Tokens:    tokens,
		Catalog:   catalogs,
		Publisher: events,
		Limiter:   newLimiter(cfg.Limiter),
		Clock:     clockwork.NewRealClock(),
		Observer:  metrics.SessionObserver{},
	})
	defer engine.Shutdown()

	for _, channel := range cfg.Channels {
		if _, err := engine.Open(channel); err != nil {
			log.Error("Failed to open channel", err, slog.String("channel", channel))
			continue
		}
		log.Info("Session started", slog.String("channel", channel))
	}

	go tail(ctx, log, events.Subscribe())

	h := handlers.New(log, manager, engine, events, tokens)
	return router.NewRouter(log, manager, h).Run(ctx)
}

func newNetDial(p *config.Proxy) (dialFunc, error) {
	direct := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	if p == nil || p.Address == "" || p.Port == 0 {
		return direct.DialContext, nil
	}

	dialer, err := proxy.SOCKS5("tcp", fmt.Sprintf("%s:%d", p.Address, p.Port), nil, direct)
	if err != nil {
		return nil, err
	}
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		return cd.DialContext, nil
	}
	return func(_ context.Context, network, addr string) (net.Conn, error) {
		return dialer.Dial(network, addr)
	}, nil
}

// newLimiter spreads Requests evenly over Per. A zero limiter config disables
// client-side throttling.
func newLimiter(cfg config.Limiter) *rate.Limiter {
	if cfg.Requests <= 0 || cfg.Per <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(cfg.Per.Std()/time.Duration(cfg.Requests)), cfg.Requests)
}

// newTokenStore restores the credential from the vault when one is configured.
// A vault that cannot be opened only disables persistence.
func newTokenStore(log logger.Logger, cfg config.Vault) *token.Store {
	if cfg.Path == "" {
		return token.NewStore()
	}

	v, err := vault.FromEnv(cfg.Path)
	if err != nil {
		log.Warn("Token vault disabled", slog.String("path", cfg.Path), slog.String("error", err.Error()))
		return token.NewStore()
	}

	tokens := token.NewStore(token.WithPersister(v))
	restored, err := tokens.Restore()
	switch {
	case err != nil:
		log.Error("Failed to restore token", err, slog.String("path", cfg.Path))
	case restored:
		log.Info("Token restored from vault")
	}
	return tokens
}

// tail logs the event stream; consumers with real work subscribe on their own.
func tail(ctx context.Context, log logger.Logger, cursor *bus.Cursor) {
	defer cursor.Close()

	for {
		evs, err := cursor.Next(ctx, 256)
		if err != nil {
			return
		}

		for _, ev := range evs {
			switch e := ev.(type) {
			case chat.Overflow:
				log.Warn("Event log fell behind", slog.Int("dropped", e.Dropped))
			case chat.ConnectionStatusChanged:
				log.Info("Session state", slog.String("channel", string(e.Channel)), slog.String("state", e.State.String()))
			case chat.MessageReceived:
				log.Trace("Chat message",
					slog.String("channel", string(e.Channel)),
					slog.String("author", e.Message.AuthorDisplayName),
					slog.String("text", e.Message.Text()),
				)
			default:
				log.Debug("Event", slog.String("type", chat.EventType(ev)), slog.String("channel", string(ev.EventChannel())))
			}
		}
	}
}
