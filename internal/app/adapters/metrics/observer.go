package metrics

import (
	"krosty/internal/app/domain/chat"
	"krosty/internal/app/domain/decoder"
	"time"
)

// SessionObserver feeds session callbacks into the collectors above.
type SessionObserver struct{}

func (SessionObserver) StateChanged(channel chat.ChannelID, st chat.SessionState) {
	SessionPhase.WithLabelValues(string(channel)).Set(float64(st.Phase))
	if st.Phase == chat.PhaseReconnecting && st.Cause != chat.CauseNone {
		SessionReconnects.WithLabelValues(string(channel), string(st.Cause)).Inc()
	}
}

func (SessionObserver) FrameDecoded(channel chat.ChannelID, kind decoder.Kind, took time.Duration) {
	FramesReceived.WithLabelValues(string(channel), kind.String()).Inc()
	DecodeTime.Observe(took.Seconds())
}

func (SessionObserver) FrameDropped(_ chat.ChannelID, reason string) {
	FramesDropped.WithLabelValues(reason).Inc()
}

func (SessionObserver) ActionDone(kind chat.ActionKind, result string) {
	ActionResults.WithLabelValues(kind.String(), result).Inc()
}

// CatalogRefreshed is the catalog cache's refresh hook.
func CatalogRefreshed(result string, took time.Duration) {
	CatalogRefreshes.WithLabelValues(result).Inc()
	CatalogRefreshTime.Observe(took.Seconds())
}

// BusOverflow is the bus drop hook.
func BusOverflow(n int) {
	BusDropped.Add(float64(n))
}
