// Package bot is the module, command and event engine of the complaint bot.
//
// A Bot owns the command and listener registries and the live modules. Modules
// are built from factories on load and contribute commands and listeners; the
// bot routes transport updates to listeners and prefixed messages to commands.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/time/rate"

	"github.com/nk521/Complaint-Bot/pkg/config"
	errs "github.com/nk521/Complaint-Bot/pkg/errors"
	"github.com/nk521/Complaint-Bot/pkg/logger"
	"github.com/nk521/Complaint-Bot/pkg/transport"
)

// DefaultSendRate paces outgoing replies
const DefaultSendRate = 50 * time.Millisecond

// Bot routes platform updates to modules
type Bot struct {
	transport    transport.Transport
	config       *config.Store
	errors       *errs.Handler
	factories    []ModuleFactory
	guard        Guard
	limiter      *rate.Limiter
	saveInterval time.Duration
	prefix       string

	// mu guards the registries and the module map
	mu        sync.RWMutex
	commands  *CommandRegistry
	listeners *ListenerRegistry
	modules   map[string]Module

	// stateMu guards the fields below
	stateMu    sync.RWMutex
	self       *transport.User
	startTime  time.Time
	stopWriter context.CancelFunc

	wg sync.WaitGroup
}

// Option configures a Bot
type Option func(*Bot)

// WithModules sets the factories used by LoadAll, in load order
func WithModules(factories ...ModuleFactory) Option {
	return func(b *Bot) { b.factories = append(b.factories, factories...) }
}

// WithGuard installs a guard consulted before every command
func WithGuard(g Guard) Option {
	return func(b *Bot) { b.guard = g }
}

// WithErrorHandler counts handler failures in h
func WithErrorHandler(h *errs.Handler) Option {
	return func(b *Bot) { b.errors = h }
}

// WithRateLimit replaces the reply limiter; nil disables pacing
func WithRateLimit(l *rate.Limiter) Option {
	return func(b *Bot) { b.limiter = l }
}

// WithSaveInterval sets how often the config writer runs
func WithSaveInterval(d time.Duration) Option {
	return func(b *Bot) { b.saveInterval = d }
}

// New creates a bot on top of t. A nil store is replaced by an in-memory default configuration.
func New(t transport.Transport, store *config.Store, opts ...Option) *Bot {
	if store == nil {
		store, _ = config.NewStore(afero.NewMemMapFs(), "config.toml", config.Default())
	}

	b := &Bot{
		transport:    t,
		config:       store,
		limiter:      rate.NewLimiter(rate.Every(DefaultSendRate), 10),
		saveInterval: config.SaveInterval,
		prefix:       store.Get().Bot.Prefix,
		commands:     NewCommandRegistry(),
		listeners:    NewListenerRegistry(),
		modules:      make(map[string]Module),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Transport returns the platform connection
func (b *Bot) Transport() transport.Transport { return b.transport }

// Config returns the configuration store
func (b *Bot) Config() *config.Store { return b.config }

// Prefix returns the command prefix
func (b *Bot) Prefix() string { return b.prefix }

// IsOwner reports whether id is the configured bot owner
func (b *Bot) IsOwner(id string) bool {
	owner := b.config.Get().Bot.OwnerID
	return owner != "" && id == owner
}

// Self returns the bot account, nil before Start
func (b *Bot) Self() *transport.User {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.self
}

// StartTime returns when the transport connected, zero before Start
func (b *Bot) StartTime() time.Time {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.startTime
}

// Start loads the modules, connects the transport, registers the update handlers
// and starts the config writer.
func (b *Bot) Start(ctx context.Context) error {
	if err := b.LoadAll(); err != nil {
		return fmt.Errorf("load modules: %w", err)
	}
	b.DispatchEvent(ctx, &Event{Kind: EventLoad})

	if err := b.config.Save(); err != nil {
		return err
	}

	self, err := b.transport.Connect(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	now := time.Now()
	b.stateMu.Lock()
	b.self = self
	b.startTime = now
	b.stateMu.Unlock()

	b.DispatchEvent(ctx, &Event{Kind: EventStart, StartTime: now})

	b.transport.AddHandler(transport.UpdateMessage, b.onMessage)
	b.transport.AddHandler(transport.UpdateMessageEdit, b.onMessageEdit)
	b.transport.AddHandler(transport.UpdateChatAction, b.onChatAction)
	b.transport.AddHandler(transport.UpdateMessage, b.onCommand, transport.Incoming, b.isCommand)

	writerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b.stateMu.Lock()
	b.stopWriter = cancel
	b.stateMu.Unlock()
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := b.config.Run(writerCtx, b.saveInterval); err != nil {
			logger.Error(fmt.Sprintf("Config writer stopped: %v", err), "Config")
		}
	}()

	logger.Success(fmt.Sprintf("Bot is ready as @%s", self.Username), "Bot")
	return b.config.Save()
}

// Run blocks on the transport until ctx is done
func (b *Bot) Run(ctx context.Context) error {
	return b.transport.Run(ctx)
}

// Stop dispatches "stop", saves the configuration, empties the registries and
// closes the transport.
func (b *Bot) Stop(ctx context.Context) error {
	b.DispatchEvent(ctx, &Event{Kind: EventStop})

	b.stateMu.Lock()
	stopWriter := b.stopWriter
	b.stopWriter = nil
	b.stateMu.Unlock()
	if stopWriter != nil {
		stopWriter()
		b.wg.Wait()
	}

	saveErr := b.config.Save()
	if saveErr != nil {
		logger.Error(fmt.Sprintf("Could not save config: %v", saveErr), "Config")
	}
	unloadErr := b.UnloadAll()
	if unloadErr != nil {
		logger.Error(fmt.Sprintf("Could not unload modules: %v", unloadErr), "Bot")
	}
	return errors.Join(saveErr, unloadErr, b.transport.Close())
}

func (b *Bot) onMessage(ctx context.Context, u *transport.Update) error {
	b.DispatchEvent(ctx, &Event{Kind: EventMessage, Message: u.Message})
	return nil
}

func (b *Bot) onMessageEdit(ctx context.Context, u *transport.Update) error {
	b.DispatchEvent(ctx, &Event{Kind: EventMessageEdit, Message: u.Message})
	return nil
}

func (b *Bot) onChatAction(ctx context.Context, u *transport.Update) error {
	b.DispatchEvent(ctx, &Event{Kind: EventChatAction, ChatAction: u.ChatAction})
	return nil
}

func (b *Bot) onCommand(ctx context.Context, u *transport.Update) error {
	return b.HandleCommand(ctx, u.Message)
}

func (b *Bot) isCommand(u *transport.Update) bool {
	return u.Message != nil && strings.HasPrefix(u.Message.RawText, b.prefix)
}
