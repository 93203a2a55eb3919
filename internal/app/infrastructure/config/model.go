package config

import (
	"encoding/json"
	"fmt"
	"time"
)

type Config struct {
	App      App      `json:"app"`
	Proxy    *Proxy   `json:"proxy"`
	Kick     Kick     `json:"kick"`
	SevenTV  SevenTV  `json:"seventv"`
	Session  Session  `json:"session"`
	Bus      Bus      `json:"bus"`
	Catalog  Catalog  `json:"catalog"`
	Limiter  Limiter  `json:"limiter"`
	Vault    Vault    `json:"vault"`
	Channels []string `json:"channels"` // каналы, к которым подключаемся при старте
}

type App struct {
	LogLevel  string `json:"log_level"`
	LogFile   string `json:"log_file"`
	GinMode   string `json:"gin_mode"`
	Listen    string `json:"listen"`
	AuthToken string `json:"auth_token"` // bearer для /api и basic auth для /metrics
}

type Proxy struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
}

type Kick struct {
	SiteBase   string   `json:"site_base"`
	APIBase    string   `json:"api_base"`
	PusherURL  string   `json:"pusher_url"`
	ChannelTTL Duration `json:"channel_ttl"` // сколько помним id канала
}

type SevenTV struct {
	APIBase string `json:"api_base"`
}

type Session struct {
	HeartbeatInterval Duration `json:"heartbeat_interval"`
	HeartbeatTimeout  Duration `json:"heartbeat_timeout"`
	ConnectTimeout    Duration `json:"connect_timeout"`
	SendTimeout       Duration `json:"send_timeout"`
	BackoffBase       Duration `json:"backoff_base"`
	BackoffMax        Duration `json:"backoff_max"`
	BackoffJitter     float64  `json:"backoff_jitter"` // доля [0,1]
}

type Bus struct {
	Depth int `json:"depth"` // размер буфера на подписчика
}

type Catalog struct {
	StaleAfter      Duration `json:"stale_after"`
	IdleTTL         Duration `json:"idle_ttl"`
	FailureCooldown Duration `json:"failure_cooldown"`
	FetchTimeout    Duration `json:"fetch_timeout"`
}

type Limiter struct {
	Requests int      `json:"requests"` // сколько запросов
	Per      Duration `json:"per"`      // за какое время
}

type Vault struct {
	Path string `json:"path"` // пусто - токен не сохраняется между запусками
}

// Duration is written as "30s" and also accepts plain nanoseconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}

	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("duration must be a string or integer: %s", string(b))
	}
	*d = Duration(n)
	return nil
}
