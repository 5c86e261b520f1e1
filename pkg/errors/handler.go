// Package errors provides panic capture and error-rate accounting for the bot.
// A burst of errors inside the reset window is reported to a webhook and shuts the bot down.
package errors

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/nk521/Complaint-Bot/pkg/logger"
)

// PanicError is a recovered panic turned into an error.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Capture runs fn and converts a panic inside it into a *PanicError.
func Capture(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

// Options configures a Handler
type Options struct {
	WebhookURL    string
	ShutdownFunc  func()
	MaxErrors     int32
	ResetInterval time.Duration
	CheckInterval time.Duration
}

// Handler manages error counting and reporting
type Handler struct {
	errorCount    int32
	webhookURL    string
	stopChan      chan struct{}
	stopOnce      sync.Once
	shutdownFunc  func()
	exit          func(code int)
	maxErrors     int32
	resetInterval time.Duration
	checkInterval time.Duration
	httpClient    *http.Client
}

// ReportOptions contains options for reporting an error
type ReportOptions struct {
	Error   string
	Message string
}

var (
	handler *Handler
	once    sync.Once
)

// Init initializes and starts the global error handler
func Init(opts Options) *Handler {
	once.Do(func() {
		handler = NewHandler(opts)
		handler.Start()
	})
	return handler
}

// Get returns the global error handler, or nil if Init was never called.
// Handler methods are safe to call on nil.
func Get() *Handler {
	return handler
}

// NewHandler creates a Handler. Zero options fall back to 15 errors per 5 seconds.
func NewHandler(opts Options) *Handler {
	h := &Handler{
		webhookURL:    opts.WebhookURL,
		stopChan:      make(chan struct{}),
		shutdownFunc:  opts.ShutdownFunc,
		exit:          os.Exit,
		maxErrors:     opts.MaxErrors,
		resetInterval: opts.ResetInterval,
		checkInterval: opts.CheckInterval,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
	}
	if h.maxErrors <= 0 {
		h.maxErrors = 15
	}
	if h.resetInterval <= 0 {
		h.resetInterval = 5 * time.Second
	}
	if h.checkInterval <= 0 {
		h.checkInterval = time.Second
	}
	return h
}

// Start begins the error monitoring goroutines
func (h *Handler) Start() {
	go func() {
		ticker := time.NewTicker(h.resetInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				atomic.StoreInt32(&h.errorCount, 0)
			case <-h.stopChan:
				return
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(h.checkInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if h.overLimit() {
					h.shutdown()
					return
				}
			case <-h.stopChan:
				return
			}
		}
	}()
}

func (h *Handler) overLimit() bool {
	return atomic.LoadInt32(&h.errorCount) > h.maxErrors
}

func (h *Handler) shutdown() {
	start := time.Now()
	logger.Warn("Too many errors in a short time", "AntiCrash")
	logger.Warn("Shutting down...", "AntiCrash")

	h.Report(ReportOptions{
		Error:   "Critical Error",
		Message: "Unusual number of errors. Shutting down...",
	})

	if h.shutdownFunc != nil {
		h.shutdownFunc()
	}

	logger.Warn(fmt.Sprintf("Exiting process after %v", time.Since(start)), "AntiCrash")
	h.exit(1)
}

// Stop stops the error monitoring goroutines
func (h *Handler) Stop() {
	h.stopOnce.Do(func() { close(h.stopChan) })
}

// Count returns the number of errors seen in the current window
func (h *Handler) Count() int32 {
	return atomic.LoadInt32(&h.errorCount)
}

// IncrementError increments the error count
func (h *Handler) IncrementError() {
	if h == nil {
		return
	}
	count := atomic.AddInt32(&h.errorCount, 1)
	logger.Debug(fmt.Sprintf("Error count: %d", count), "AntiCrash")
}

// HandlePanic counts and logs a panic recovered outside a command or listener
func (h *Handler) HandlePanic(pe *PanicError) {
	h.IncrementError()
	logger.Error(fmt.Sprintf("Unhandled %v\n%s", pe, firstLines(pe.Stack, stackLines)), "AntiCrash")
}

const stackLines = 12

func firstLines(b []byte, n int) []byte {
	for i, c := range b {
		if c == '\n' {
			if n--; n == 0 {
				return b[:i]
			}
		}
	}
	return b
}

// Report sends an error report to the webhook
func (h *Handler) Report(data ReportOptions) {
	if h.webhookURL == "" {
		return
	}

	payload := map[string]interface{}{
		"embeds": []interface{}{
			map[string]interface{}{
				"author":      map[string]string{"name": fmt.Sprintf("Error %s", data.Error)},
				"description": data.Message,
				"color":       0xFF0000,
				"footer":      map[string]string{"text": "Complaint-Bot"},
				"timestamp":   time.Now().Format(time.RFC3339),
			},
		},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		logger.Error(fmt.Sprintf("Failed to marshal error report: %v", err), "AntiCrash")
		return
	}

	req, err := http.NewRequest(http.MethodPost, h.webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		logger.Error(fmt.Sprintf("Failed to create webhook request: %v", err), "AntiCrash")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		logger.Error(fmt.Sprintf("Failed to send error report: %v", err), "AntiCrash")
		return
	}
	defer resp.Body.Close()

	logger.Warn(fmt.Sprintf("Sent error report to webhook, status: %d", resp.StatusCode), "AntiCrash")
}
