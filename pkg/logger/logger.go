// Package logger provides the bot's levelled logging.
// Every entry goes to the console with colors, to plain log files and optionally to webhooks.
package logger

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
)

// LogLevel is the severity of an entry. Lower is more severe.
type LogLevel int

const (
	LevelCritical LogLevel = iota
	LevelError
	LevelWarn
	LevelSuccess
	LevelInfo
	LevelDebug
	LevelSystem
)

const (
	fieldLevel  = "tag"
	fieldPrefix = "prefix"
	colorReset  = "\033[0m"
	timeLayout  = "2006-01-02 15:04:05"
)

type levelStyle struct {
	name  string
	ansi  string
	embed int
	// Critical maps below logrus' fatal/panic levels so it never exits or panics
	logrus logrus.Level
}

var levelStyles = [...]levelStyle{
	LevelCritical: {"CRITICAL", "\033[1;31m", 0xFF0000, logrus.ErrorLevel},
	LevelError:    {"ERROR", "\033[31m", 0xFF0000, logrus.ErrorLevel},
	LevelWarn:     {"WARN", "\033[33m", 0xFFFF00, logrus.WarnLevel},
	LevelSuccess:  {"SUCCESS", "\033[32m", 0x00FF00, logrus.InfoLevel},
	LevelInfo:     {"INFO", "\033[36m", 0x0000FF, logrus.InfoLevel},
	LevelDebug:    {"DEBUG", "\033[35m", 0x800080, logrus.DebugLevel},
	LevelSystem:   {"SYSTEM", "\033[34m", 0x808080, logrus.InfoLevel},
}

func (l LogLevel) style() levelStyle {
	if l < 0 || int(l) >= len(levelStyles) {
		return levelStyle{"UNKNOWN", colorReset, 0xFFFFFF, logrus.InfoLevel}
	}
	return levelStyles[l]
}

func (l LogLevel) String() string { return l.style().name }

// Color returns the ANSI escape used on the console
func (l LogLevel) Color() string { return l.style().ansi }

// EmbedColor returns the webhook embed color
func (l LogLevel) EmbedColor() int { return l.style().embed }

// Logger writes entries through logrus with file and webhook hooks attached
type Logger struct {
	logrus     *logrus.Logger
	files      *fileHook
	webhooks   *webhookHook
	httpClient *http.Client
}

var (
	logger *Logger
	once   sync.Once
)

// Init creates the process-wide logger. Later calls return the first instance.
func Init(dir, errorWebhook, logsWebhook string) *Logger {
	once.Do(func() {
		logger = NewLogger(dir, errorWebhook, logsWebhook)
	})
	return logger
}

// Get returns the process-wide logger, falling back to a console-only one
func Get() *Logger {
	once.Do(func() {
		logger = NewLogger("", "", "")
	})
	return logger
}

// NewLogger creates a Logger. An empty dir disables file output and empty
// webhook URLs disable the matching fan-out.
func NewLogger(dir, errorWebhook, logsWebhook string) *Logger {
	l := &Logger{
		logrus:     logrus.New(),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
	l.logrus.SetLevel(logrus.DebugLevel)
	l.logrus.SetOutput(os.Stdout)
	l.logrus.SetFormatter(&lineFormatter{color: true})

	if dir != "" {
		l.files = openFileHook(dir)
		l.logrus.AddHook(l.files)
	}
	if errorWebhook != "" || logsWebhook != "" {
		l.webhooks = &webhookHook{client: l.httpClient, errorURL: errorWebhook, logsURL: logsWebhook}
		l.logrus.AddHook(l.webhooks)
	}
	return l
}

// SetOutput redirects console output
func (l *Logger) SetOutput(w io.Writer) {
	l.logrus.SetOutput(w)
}

// Close flushes pending webhook posts and closes the log files
func (l *Logger) Close() {
	if l.webhooks != nil {
		l.webhooks.wait()
	}
	if l.files != nil {
		l.files.close()
	}
}

func (l *Logger) log(level LogLevel, message, prefix string) {
	l.logrus.WithFields(logrus.Fields{
		fieldLevel:  level,
		fieldPrefix: prefix,
	}).Log(level.style().logrus, message)
}

func entryTags(entry *logrus.Entry) (LogLevel, string) {
	level, _ := entry.Data[fieldLevel].(LogLevel)
	prefix, _ := entry.Data[fieldPrefix].(string)
	return level, prefix
}

// lineFormatter renders "[time] [LEVEL] [prefix]: message"
type lineFormatter struct {
	color bool
}

func (f *lineFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	level, prefix := entryTags(entry)
	name := level.String()
	if f.color {
		name = level.Color() + name + colorReset
	}
	return fmt.Appendf(nil, "[%s] [%s] [%s]: %s\n", entry.Time.Format(timeLayout), name, prefix, entry.Message), nil
}

// fileHook appends plain lines to combined.log, and errors to error.log as well
type fileHook struct {
	mu       sync.Mutex
	combined *os.File
	errors   *os.File
	plain    lineFormatter
}

func openFileHook(dir string) *fileHook {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "logger: create %s: %v\n", dir, err)
	}
	return &fileHook{
		combined: openAppend(filepath.Join(dir, "combined.log")),
		errors:   openAppend(filepath.Join(dir, "error.log")),
	}
}

func openAppend(path string) *os.File {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: open %s: %v\n", path, err)
		return nil
	}
	return f
}

func (h *fileHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *fileHook) Fire(entry *logrus.Entry) error {
	line, err := h.plain.Format(entry)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.combined != nil {
		_, _ = h.combined.Write(line)
	}
	if h.errors != nil && entry.Level <= logrus.ErrorLevel {
		_, _ = h.errors.Write(line)
	}
	return nil
}

func (h *fileHook) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, f := range []*os.File{h.combined, h.errors} {
		if f != nil {
			_ = f.Close()
		}
	}
	h.combined, h.errors = nil, nil
}

type webhookEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp"`
}

type webhookPayload struct {
	Embeds []webhookEmbed `json:"embeds"`
}

// webhookHook posts error-level entries to errorURL and the rest to logsURL
type webhookHook struct {
	client   *http.Client
	errorURL string
	logsURL  string
	pending  sync.WaitGroup
}

func (h *webhookHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *webhookHook) Fire(entry *logrus.Entry) error {
	level, prefix := entryTags(entry)
	url := h.logsURL
	if level <= LevelError {
		url = h.errorURL
	}
	if url == "" {
		return nil
	}

	body, err := json.Marshal(webhookPayload{Embeds: []webhookEmbed{{
		Title:       fmt.Sprintf("[%s] %s", level, prefix),
		Description: "```" + entry.Message + "```",
		Color:       level.EmbedColor(),
		Timestamp:   entry.Time.Format(time.RFC3339),
	}}})
	if err != nil {
		return err
	}

	h.pending.Add(1)
	go func() {
		defer h.pending.Done()
		resp, err := h.client.Post(url, "application/json", bytes.NewReader(body))
		if err == nil {
			_ = resp.Body.Close()
		}
	}()
	return nil
}

func (h *webhookHook) wait() { h.pending.Wait() }

func (l *Logger) Critical(message, prefix string) { l.log(LevelCritical, message, prefix) }
func (l *Logger) Error(message, prefix string)    { l.log(LevelError, message, prefix) }
func (l *Logger) Warn(message, prefix string)     { l.log(LevelWarn, message, prefix) }
func (l *Logger) Success(message, prefix string)  { l.log(LevelSuccess, message, prefix) }
func (l *Logger) Info(message, prefix string)     { l.log(LevelInfo, message, prefix) }
func (l *Logger) Debug(message, prefix string)    { l.log(LevelDebug, message, prefix) }
func (l *Logger) System(message, prefix string)   { l.log(LevelSystem, message, prefix) }

// Package-level shorthands for the process-wide logger.

func Critical(message, prefix string) { Get().Critical(message, prefix) }
func Error(message, prefix string)    { Get().Error(message, prefix) }
func Warn(message, prefix string)     { Get().Warn(message, prefix) }
func Success(message, prefix string)  { Get().Success(message, prefix) }
func Info(message, prefix string)     { Get().Info(message, prefix) }
func Debug(message, prefix string)    { Get().Debug(message, prefix) }
func System(message, prefix string)   { Get().System(message, prefix) }
