package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nk521/Complaint-Bot/pkg/bot"
	"github.com/nk521/Complaint-Bot/pkg/config"
	"github.com/nk521/Complaint-Bot/pkg/database"
	"github.com/nk521/Complaint-Bot/pkg/transport"
)

// BotInfo is what the API reports about the running bot
type BotInfo interface {
	Self() *transport.User
	StartTime() time.Time
	Modules() []bot.Module
	Commands() []*bot.CommandInfo
}

// StatusChecker reports the state of the complaint store
type StatusChecker interface {
	Status(ctx context.Context) (string, bool)
	Stats() database.Stats
}

// SetupAPIRoutes registers the /api routes. db may be nil.
func SetupAPIRoutes(s *Server, b BotInfo, db StatusChecker) {
	api := s.Group("/api")
	api.GET("/status", statusHandler(b, db))
	api.GET("/health", healthHandler)
	api.GET("/bot", botInfoHandler(b))
	api.GET("/modules", modulesHandler(b))
}

func statusHandler(b BotInfo, db StatusChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		store := gin.H{"status": "not configured", "isOnline": false}
		if db != nil {
			status, online := db.Status(c.Request.Context())
			store = gin.H{"status": status, "isOnline": online, "stats": db.Stats()}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"version":  config.Version,
			"database": store,
			"bot": gin.H{
				"isOnline": b.Self() != nil,
			},
		})
	}
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"message": "Complaint-Bot is running",
	})
}

func botInfoHandler(b BotInfo) gin.HandlerFunc {
	return func(c *gin.Context) {
		self := b.Self()
		if self == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "Bot Offline",
				"message": "The bot is not connected right now.",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"id":        self.ID,
			"username":  self.Username,
			"startedAt": b.StartTime().UTC().Format(time.RFC3339),
			"uptime":    time.Since(b.StartTime()).Round(time.Second).String(),
		})
	}
}

func modulesHandler(b BotInfo) gin.HandlerFunc {
	return func(c *gin.Context) {
		commands := make(map[string][]gin.H)
		for _, info := range b.Commands() {
			name := info.Module.Name()
			commands[name] = append(commands[name], gin.H{
				"name":        info.Name,
				"aliases":     info.Aliases,
				"description": info.Description,
			})
		}

		modules := make([]gin.H, 0)
		for _, mod := range b.Modules() {
			modules = append(modules, gin.H{
				"name":     mod.Name(),
				"commands": commands[mod.Name()],
			})
		}
		c.JSON(http.StatusOK, gin.H{"modules": modules})
	}
}
