package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"krosty/internal/app/domain/chat"
	"krosty/internal/app/infrastructure/backoff"
	"krosty/internal/app/infrastructure/storage"
	"krosty/internal/app/ports"
	"krosty/pkg/logger"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	maxRetries = 3
	userAgent  = "krosty/1.0"
)

var ErrNotFound = errors.New("not found")

type Kick struct {
	log      logger.Logger
	client   *http.Client
	siteBase string
	apiBase  string
	now      func() time.Time
	retry    backoff.Policy

	channels *storage.Cache[ports.ChannelInfo]
}

func NewKick(log logger.Logger, client *http.Client, siteBase, apiBase string, channelTTL time.Duration) *Kick {
	return &Kick{
		log:      log,
		client:   client,
		siteBase: strings.TrimRight(siteBase, "/"),
		apiBase:  strings.TrimRight(apiBase, "/"),
		now:      time.Now,
		retry:    backoff.Policy{Base: 500 * time.Millisecond, Max: 5 * time.Second},
		channels: storage.NewCache[ports.ChannelInfo](64, channelTTL, nil),
	}
}

type kickRequest struct {
	Method string
	URL    string
	Token  string
	Body   any
}

type apiError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (k *Kick) doKickRequest(ctx context.Context, reqData kickRequest, target any) (int, error) {
	var body []byte
	if reqData.Body != nil {
		b, err := json.Marshal(reqData.Body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		body = b
	}

	// only reads are safe to repeat
	attempts := 1
	if reqData.Method == http.MethodGet {
		attempts = maxRetries
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		k.log.Trace("Sending Kick request",
			slog.String("method", reqData.Method),
			slog.String("url", reqData.URL),
			slog.Int("attempt", attempt),
			slog.Bool("hasToken", reqData.Token != ""),
		)

		status, raw, header, err := k.roundTrip(ctx, reqData, body)
		if err != nil {
			if ctx.Err() != nil || attempt == attempts {
				return 0, err
			}
			k.log.Warn("Kick request failed, retrying", slog.String("url", reqData.URL), slog.String("error", err.Error()))
			if err := sleepCtx(ctx, k.retry.Raw(attempt)); err != nil {
				return 0, err
			}
			continue
		}

		switch {
		case status >= 200 && status < 300:
			if target == nil || len(bytes.TrimSpace(raw)) == 0 {
				return status, nil
			}
			if err := json.Unmarshal(raw, target); err != nil {
				k.log.Error("Failed to decode Kick response", err, slog.Int("status", status), slog.String("url", reqData.URL))
				return status, fmt.Errorf("decode response: %w", err)
			}
			return status, nil

		case status == http.StatusUnauthorized:
			return status, &chat.AuthError{Reason: "token refused by " + reqData.URL}

		case status == http.StatusTooManyRequests:
			wait := calcWaitDuration(header, k.now())
			k.log.Warn("Kick rate limit hit", slog.String("url", reqData.URL), slog.String("retryAfter", wait.String()))
			return status, &chat.RateLimitedError{RetryAfter: wait}

		case status == http.StatusNotFound:
			return status, fmt.Errorf("%s %s: %w", reqData.Method, reqData.URL, ErrNotFound)

		case status >= 500 && attempt < attempts:
			k.log.Warn("Kick server error, retrying", slog.Int("status", status), slog.String("url", reqData.URL))
			if err := sleepCtx(ctx, k.retry.Raw(attempt)); err != nil {
				return 0, err
			}
			continue

		default:
			return status, &chat.RejectedError{Status: status, Reason: errorReason(raw)}
		}
	}

	return 0, fmt.Errorf("kick request failed after %d attempts", attempts)
}

func (k *Kick) roundTrip(ctx context.Context, reqData kickRequest, body []byte) (int, []byte, http.Header, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, reqData.Method, reqData.URL, rd)
	if err != nil {
		return 0, nil, nil, err
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if reqData.Token != "" {
		req.Header.Set("Authorization", "Bearer "+reqData.Token)
	}

	resp, err := k.client.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if cerr := resp.Body.Close(); cerr != nil {
		k.log.Error("Failed to close response body", cerr)
	}
	if err != nil {
		return resp.StatusCode, nil, nil, fmt.Errorf("read response: %w", err)
	}

	return resp.StatusCode, raw, resp.Header, nil
}

func errorReason(raw []byte) string {
	var apiErr apiError
	if err := json.Unmarshal(raw, &apiErr); err == nil {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		if apiErr.Error != "" {
			return apiErr.Error
		}
	}
	reason := strings.TrimSpace(string(raw))
	if len(reason) > 200 {
		reason = reason[:200]
	}
	if reason == "" {
		reason = "empty response"
	}
	return reason
}

// calcWaitDuration reads Retry-After (seconds) or Ratelimit-Reset (unix time).
func calcWaitDuration(h http.Header, now time.Time) time.Duration {
	if v := strings.TrimSpace(h.Get("Retry-After")); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}

	if v := strings.TrimSpace(h.Get("Ratelimit-Reset")); v != "" {
		ts, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0
		}
		reset := time.Unix(ts, 0)
		if reset.After(now) {
			return reset.Sub(now)
		}
	}

	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
