package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

func (m *Manager) validate(cfg *Config) error {
	// app
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if cfg.App.LogLevel != "" && !validLevels[cfg.App.LogLevel] {
		return fmt.Errorf("app.log_level must be one of trace, debug, info, warn, error; got %s", cfg.App.LogLevel)
	}
	if cfg.App.GinMode != "" && cfg.App.GinMode != "debug" && cfg.App.GinMode != "release" && cfg.App.GinMode != "test" {
		return fmt.Errorf("app.gin_mode must be debug, release or test; got %s", cfg.App.GinMode)
	}
	if cfg.App.Listen != "" {
		if _, _, err := net.SplitHostPort(cfg.App.Listen); err != nil {
			return fmt.Errorf("app.listen: %w", err)
		}
	}

	// proxy
	if cfg.Proxy != nil && cfg.Proxy.Address != "" && (cfg.Proxy.Port <= 0 || cfg.Proxy.Port > 65535) {
		return errors.New("proxy.port must be [1,65535]")
	}

	// endpoints
	for name, raw := range map[string]string{
		"kick.site_base":   cfg.Kick.SiteBase,
		"kick.api_base":    cfg.Kick.APIBase,
		"kick.pusher_url":  cfg.Kick.PusherURL,
		"seventv.api_base": cfg.SevenTV.APIBase,
	} {
		if raw == "" {
			return fmt.Errorf("%s is required", name)
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute url; got %q", name, raw)
		}
	}

	// session
	s := cfg.Session
	if s.HeartbeatInterval.Std() < time.Second || s.HeartbeatTimeout.Std() < time.Second {
		return errors.New("session.heartbeat_interval and session.heartbeat_timeout must be at least 1s")
	}
	if s.ConnectTimeout.Std() <= 0 || s.SendTimeout.Std() <= 0 {
		return errors.New("session.connect_timeout and session.send_timeout must be positive")
	}
	if s.BackoffBase.Std() <= 0 || s.BackoffMax < s.BackoffBase {
		return errors.New("session.backoff_base must be positive and not above session.backoff_max")
	}
	if s.BackoffJitter < 0 || s.BackoffJitter > 1 {
		return errors.New("session.backoff_jitter must be [0,1]")
	}

	// bus
	if cfg.Bus.Depth < 1 || cfg.Bus.Depth > 1<<20 {
		return errors.New("bus.depth must be [1,1048576]")
	}

	// catalog
	if cfg.Catalog.StaleAfter.Std() < time.Second {
		return errors.New("catalog.stale_after must be at least 1s")
	}
	if cfg.Catalog.IdleTTL < 0 || cfg.Catalog.FailureCooldown < 0 || cfg.Catalog.FetchTimeout < 0 {
		return errors.New("catalog durations must not be negative")
	}

	// limiter
	if (cfg.Limiter.Requests != 0 && cfg.Limiter.Per == 0) || (cfg.Limiter.Requests == 0 && cfg.Limiter.Per != 0) {
		return errors.New("limiter.requests and limiter.per must both be set or both be zero")
	}
	if cfg.Limiter.Requests < 0 || cfg.Limiter.Per < 0 {
		return errors.New("limiter values must not be negative")
	}

	// channels
	seen := make(map[string]struct{}, len(cfg.Channels))
	for i, ch := range cfg.Channels {
		ch = strings.ToLower(strings.TrimSpace(ch))
		if ch == "" {
			return fmt.Errorf("channels[%d] is empty", i)
		}
		if _, ok := seen[ch]; ok {
			return fmt.Errorf("channels[%d] %q is duplicated", i, ch)
		}
		seen[ch] = struct{}{}
		cfg.Channels[i] = ch
	}

	return nil
}
