// Package web serves the bot's status API.
// It uses the Gin framework.
package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/nk521/Complaint-Bot/pkg/logger"
)

// RateLimitConfig holds the per-client request limit
type RateLimitConfig struct {
	Window      time.Duration
	MaxRequests int
}

// Server is the HTTP status server
type Server struct {
	engine     *gin.Engine
	webhookURL string
	httpClient *http.Client

	mu   sync.Mutex
	http *http.Server
}

// NewServer creates a server. Requests are logged and, when webhookURL is set,
// reported to the webhook.
func NewServer(webhookURL string, limit RateLimitConfig) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		engine:     gin.New(),
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}

	s.engine.Use(gin.Recovery())
	s.engine.Use(s.logsMiddleware())
	s.engine.Use(rateLimitMiddleware(limit))
	s.setupErrorHandlers()
	return s
}

// Engine returns the underlying Gin engine
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Group creates a router group
func (s *Server) Group(path string, handlers ...gin.HandlerFunc) *gin.RouterGroup {
	return s.engine.Group(path, handlers...)
}

func (s *Server) logsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger.Debug(fmt.Sprintf("%s %s from %s", c.Request.Method, c.Request.URL.Path, c.ClientIP()), "WebServer")
		if s.webhookURL != "" {
			go s.sendLogToWebhook(c.Request.Method, c.Request.URL.Path, c.ClientIP())
		}
		c.Next()
	}
}

func (s *Server) sendLogToWebhook(method, path, ip string) {
	payload := map[string]interface{}{
		"embeds": []interface{}{map[string]interface{}{
			"title":       fmt.Sprintf("💫 | New %s request to the status server", method),
			"description": fmt.Sprintf("> **Route:** `%s`\n> **IP:** `%s`", path, ip),
			"color":       0x00AE86,
			"timestamp":   time.Now().Format(time.RFC3339),
		}},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return
	}

	resp, err := s.httpClient.Post(s.webhookURL, "application/json", bytes.NewReader(data))
	if err != nil {
		return
	}
	_ = resp.Body.Close()
}

// rateLimitMiddleware keeps one token bucket per client IP
func rateLimitMiddleware(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 100
	}
	every := rate.Every(cfg.Window / time.Duration(cfg.MaxRequests))

	var mu sync.Mutex
	clients := make(map[string]*rate.Limiter)

	return func(c *gin.Context) {
		ip := c.ClientIP()

		mu.Lock()
		l, ok := clients[ip]
		if !ok {
			l = rate.NewLimiter(every, cfg.MaxRequests)
			clients[ip] = l
		}
		mu.Unlock()

		if !l.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests, please try again later.",
			})
			return
		}
		c.Next()
	}
}

func (s *Server) setupErrorHandlers() {
	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Not Found",
			"message": "The requested route does not exist.",
			"status":  404,
		})
	})

	s.engine.HandleMethodNotAllowed = true
	s.engine.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{
			"error":   "Method Not Allowed",
			"message": "The HTTP method is not allowed for this route.",
			"status":  405,
		})
	})
}

// Start listens on port until Shutdown
func (s *Server) Start(port string) error {
	s.mu.Lock()
	s.http = &http.Server{
		Addr:              ":" + port,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.http
	s.mu.Unlock()

	logger.Info(fmt.Sprintf("🚀 Status server listening on http://localhost:%s", port), "WebServer")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartAsync runs Start in a goroutine
func (s *Server) StartAsync(port string) {
	go func() {
		if err := s.Start(port); err != nil {
			logger.Error(fmt.Sprintf("Error starting web server: %v", err), "WebServer")
		}
	}()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
