package config

import "time"

func (m *Manager) GetDefault() *Config {
	return &Config{
		App: App{
			LogLevel: "info",
			GinMode:  "release",
			Listen:   "127.0.0.1:8089",
		},
		Kick: Kick{
			SiteBase:   "https://kick.com",
			APIBase:    "https://api.kick.com",
			PusherURL:  "wss://ws-us2.pusher.com/app/32cbd69e4b950bf97679?protocol=7&client=js&version=8.4.0&flash=false",
			ChannelTTL: Duration(6 * time.Hour),
		},
		SevenTV: SevenTV{
			APIBase: "https://7tv.io",
		},
		Session: Session{
			HeartbeatInterval: Duration(60 * time.Second),
			HeartbeatTimeout:  Duration(30 * time.Second),
			ConnectTimeout:    Duration(15 * time.Second),
			SendTimeout:       Duration(10 * time.Second),
			BackoffBase:       Duration(time.Second),
			BackoffMax:        Duration(60 * time.Second),
			BackoffJitter:     0.3,
		},
		Bus: Bus{
			Depth: 1024,
		},
		Catalog: Catalog{
			StaleAfter:      Duration(30 * time.Minute),
			IdleTTL:         Duration(2 * time.Hour),
			FailureCooldown: Duration(time.Minute),
			FetchTimeout:    Duration(15 * time.Second),
		},
		Limiter: Limiter{
			Requests: 20,
			Per:      Duration(30 * time.Second),
		},
		Channels: []string{},
	}
}
