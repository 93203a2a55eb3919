package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/cpu"
	"net/http"
	"runtime"
	"time"
)

type healthResponse struct {
	Status      string        `json:"status"`
	Uptime      string        `json:"uptime"`
	CPUPercent  float64       `json:"cpu_percent"`
	MemoryMB    uint64        `json:"memory_mb"`
	Goroutines  int           `json:"goroutines"`
	Subscribers int           `json:"subscribers"`
	Sessions    []sessionView `json:"sessions"`
}

func (h *Handlers) HealthzHandler(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	percent, _ := cpu.Percent(0, false)
	if len(percent) == 0 {
		percent = append(percent, 0)
	}

	sessions := h.engine.Sessions()
	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, newSessionView(s))
	}

	c.JSON(http.StatusOK, healthResponse{
		Status:      "ok",
		Uptime:      time.Since(h.started).Truncate(time.Second).String(),
		CPUPercent:  percent[0],
		MemoryMB:    m.Sys / 1024 / 1024,
		Goroutines:  runtime.NumGoroutine(),
		Subscribers: h.bus.Subscribers(),
		Sessions:    views,
	})
}
