package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionPhase - текущая фаза сессии по каналам (0 disconnected ... 5 closed).
	SessionPhase = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "krosty_session_phase",
			Help: "Current session phase per channel",
		},
		[]string{"channel"},
	)

	// SessionReconnects - количество переподключений по каналам и причинам.
	SessionReconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "krosty_session_reconnects_total",
			Help: "Total number of reconnect attempts per channel and cause",
		},
		[]string{"channel", "cause"},
	)

	// FramesReceived - количество входящих фреймов по каналам и видам.
	FramesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "krosty_frames_received_total",
			Help: "Total number of inbound frames per channel and kind",
		},
		[]string{"channel", "kind"},
	)

	// FramesDropped - фреймы, которые не удалось декодировать.
	FramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "krosty_frames_dropped_total",
			Help: "Total number of inbound frames dropped per reason",
		},
		[]string{"reason"},
	)

	// BusDropped - события, вытесненные из переполненных курсоров.
	BusDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "krosty_bus_dropped_total",
			Help: "Total number of events evicted from full subscriber cursors",
		},
	)

	// CatalogRefreshes - обновления каталога эмоутов по результату.
	CatalogRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "krosty_catalog_refresh_total",
			Help: "Total number of emote catalog refreshes per result",
		},
		[]string{"result"},
	)

	// ActionResults - исходящие действия по типу и результату.
	ActionResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "krosty_actions_total",
			Help: "Total number of outbound actions per kind and result",
		},
		[]string{"kind", "result"},
	)

	// SSEClients - подключенные клиенты потока событий.
	SSEClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "krosty_sse_clients",
			Help: "Number of connected event stream clients",
		},
	)

	// DecodeTime - время декодирования фрейма.
	DecodeTime = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "krosty_frame_decode_seconds",
			Help:    "Time to decode one inbound frame",
			Buckets: prometheus.ExponentialBuckets(0.000005, 2, 16),
		},
	)

	// CatalogRefreshTime - длительность обновления каталога.
	CatalogRefreshTime = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "krosty_catalog_refresh_seconds",
			Help:    "Duration of emote catalog refreshes",
			Buckets: prometheus.DefBuckets,
		},
	)
)
