package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"botkit/internal/bot"
	"botkit/internal/logger"
	"botkit/internal/state"

	"github.com/gin-gonic/gin"
)

// Router exposes the bot's status, automation controls and audit queries.
// All endpoints operate on the one orchestrator this process runs.
type Router struct {
	Bot *bot.Orchestrator
}

// NewRouter builds the API router for the given orchestrator.
func NewRouter(orchestrator *bot.Orchestrator) *Router {
	return &Router{Bot: orchestrator}
}

// Register mounts the endpoints under the given group.
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/status", r.handleStatus)
	group.GET("/automations", r.handleAutomations)
	group.POST("/automations/:id/enable", r.handleSetEnabled(true))
	group.POST("/automations/:id/disable", r.handleSetEnabled(false))
	group.POST("/automations/:id/fire", r.handleFire)
	group.POST("/bot/pause", r.handlePause)
	group.POST("/bot/resume", r.handleResume)
	group.GET("/bus", r.handleBus)
	group.GET("/audit", r.handleAudit)
	group.GET("/state/:tier", r.handleState)
}

func (r *Router) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, r.Bot.Status())
}

func (r *Router) handleAutomations(c *gin.Context) {
	st := r.Bot.Status()
	c.JSON(http.StatusOK, gin.H{"automations": st.Automations})
}

func (r *Router) handleSetEnabled(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.Param("id"))
		if err := r.Bot.SetAutomationEnabled(id, enabled); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		logger.Infof("[api] automation %s enabled=%v ip=%s", id, enabled, c.ClientIP())
		c.JSON(http.StatusOK, gin.H{"id": id, "enabled": enabled})
	}
}

func (r *Router) handleFire(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	fired, err := r.Bot.FireAutomation(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] automation %s manual fire ip=%s fired=%v", id, c.ClientIP(), fired)
	c.JSON(http.StatusOK, gin.H{"id": id, "fired": fired})
}

func (r *Router) handlePause(c *gin.Context) {
	if err := r.Bot.Pause(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"phase": string(bot.PhasePaused)})
}

func (r *Router) handleResume(c *gin.Context) {
	if err := r.Bot.Resume(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"phase": string(bot.PhaseRunning)})
}

func (r *Router) handleBus(c *gin.Context) {
	b := r.Bot.Bus()
	if b == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "bus not initialized"})
		return
	}
	c.JSON(http.StatusOK, b.Status())
}

// handleAudit pages through the cold tier's audit records, newest-first
// ordering is not guaranteed; callers filter by key prefix.
func (r *Router) handleAudit(c *gin.Context) {
	r.queryTier(c, state.TierCold, "audit-")
}

func (r *Router) handleState(c *gin.Context) {
	tier := state.Tier(strings.ToLower(strings.TrimSpace(c.Param("tier"))))
	switch tier {
	case state.TierHot, state.TierWarm, state.TierCold:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "tier must be hot, warm or cold"})
		return
	}
	r.queryTier(c, tier, "")
}

func (r *Router) queryTier(c *gin.Context, tier state.Tier, defaultPrefix string) {
	st := r.Bot.State()
	if st == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "state not initialized"})
		return
	}
	prefix := c.DefaultQuery("prefix", defaultPrefix)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	type entry struct {
		Key   string `json:"key"`
		Value any    `json:"value"`
	}
	entries := make([]entry, 0, limit)
	for key, value := range st.Query(tier, func(key string, _ any) bool {
		return prefix == "" || strings.HasPrefix(key, prefix)
	}) {
		entries = append(entries, entry{Key: key, Value: value})
		if len(entries) >= limit {
			break
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"tier":    string(tier),
		"prefix":  prefix,
		"count":   len(entries),
		"entries": entries,
	})
}
