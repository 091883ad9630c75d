package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"goldex.com/internal/quotes/model"
	"goldex.com/internal/quotes/query"
	"goldex.com/pkg/common"
)

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

type Info struct {
	Version     string
	Environment string
	StartedAt   time.Time
}

type Handler struct {
	q    *query.Service
	info Info
	now  func() time.Time
}

func NewHandler(q *query.Service, info Info, now func() time.Time) *Handler {
	if now == nil {
		now = time.Now
	}
	if info.StartedAt.IsZero() {
		info.StartedAt = now()
	}
	return &Handler{q: q, info: info, now: now}
}

func (h *Handler) stamp() string {
	return h.now().UTC().Format(timeLayout)
}

func (h *Handler) Index(c *gin.Context) {
	common.Success(c, http.StatusOK, nil, gin.H{
		"message": "Gold Futures Real-time API",
		"version": h.info.Version,
		"endpoints": gin.H{
			"health":     "/api/v1/health",
			"current":    "/api/v1/gold/current",
			"bySymbol":   "/api/v1/gold/:symbol",
			"symbols":    "/api/v1/gold/symbols",
			"historical": "/api/v1/gold/historical/:symbol",
			"stream":     "/ws",
		},
		"timestamp": h.stamp(),
	})
}

// Health 进程存活即 200
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "OK",
		"uptime":      h.now().Sub(h.info.StartedAt).Seconds(),
		"version":     h.info.Version,
		"timestamp":   h.stamp(),
		"environment": h.info.Environment,
	})
}

func (h *Handler) Current(c *gin.Context) {
	h.current(c, c.DefaultQuery("symbol", model.DefaultSymbol))
}

func (h *Handler) BySymbol(c *gin.Context) {
	h.current(c, c.Param("symbol"))
}

func (h *Handler) current(c *gin.Context, symbol string) {
	rec, cached, err := h.q.CurrentPrice(c.Request.Context(), symbol)
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	common.Success(c, http.StatusOK, rec, gin.H{"cached": cached})
}

func (h *Handler) Symbols(c *gin.Context) {
	common.Success(c, http.StatusOK, nil, gin.H{"symbols": model.Symbols()})
}

func (h *Handler) Historical(c *gin.Context) {
	days, err := h.q.ParseDays(c.Query("days"))
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	bars, err := h.q.Historical(c.Request.Context(), c.Param("symbol"), days)
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	sym, _ := model.NormalizeSymbol(c.Param("symbol"))
	common.Success(c, http.StatusOK, bars, gin.H{"symbol": sym, "days": days})
}
