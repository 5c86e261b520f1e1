// Package telegram connects the bot to the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/nk521/Complaint-Bot/pkg/logger"
	"github.com/nk521/Complaint-Bot/pkg/transport"
)

var _ transport.Transport = (*Adapter)(nil)

func init() {
	_ = tgbotapi.SetLogger(botLogger{})
}

// botLogger routes the library's log lines into the bot logger
type botLogger struct{}

func (botLogger) Println(v ...interface{}) {
	logger.Debug(fmt.Sprint(v...), "Telegram")
}

func (botLogger) Printf(format string, v ...interface{}) {
	logger.Debug(fmt.Sprintf(format, v...), "Telegram")
}

// Adapter is a long-polling Telegram transport
type Adapter struct {
	transport.Router

	token       string
	endpoint    string
	client      *http.Client
	pollTimeout int

	mu       sync.RWMutex
	api      *tgbotapi.BotAPI
	stopOnce sync.Once
}

// Option configures an Adapter
type Option func(*Adapter)

// WithEndpoint overrides the Bot API endpoint format, e.g. for a local Bot API server
func WithEndpoint(endpoint string) Option {
	return func(a *Adapter) { a.endpoint = endpoint }
}

// WithHTTPClient sets the HTTP client used for API calls
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) { a.client = c }
}

// WithPollTimeout sets the long-polling timeout in seconds
func WithPollTimeout(seconds int) Option {
	return func(a *Adapter) { a.pollTimeout = seconds }
}

// New creates an adapter for the bot identified by token
func New(token string, opts ...Option) *Adapter {
	a := &Adapter{
		token:       token,
		endpoint:    tgbotapi.APIEndpoint,
		client:      &http.Client{Timeout: 90 * time.Second},
		pollTimeout: 60,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Connect authenticates with the Bot API and returns the bot account
func (a *Adapter) Connect(ctx context.Context) (*transport.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	api, err := tgbotapi.NewBotAPIWithClient(a.token, a.endpoint, a.client)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}

	self := &transport.User{
		ID:       strconv.FormatInt(api.Self.ID, 10),
		Username: api.Self.UserName,
		IsBot:    true,
	}

	a.mu.Lock()
	a.api = api
	a.mu.Unlock()

	logger.Info(fmt.Sprintf("Authorized on account @%s", self.Username), "Telegram")
	return self, nil
}

// AddHandler implements transport.Transport
func (a *Adapter) AddHandler(kind transport.UpdateKind, h transport.Handler, filters ...transport.Filter) {
	a.Add(kind, h, filters...)
}

// Send posts text to chatID
func (a *Adapter) Send(ctx context.Context, chatID string, text string, opts transport.SendOptions) error {
	api := a.conn()
	if api == nil {
		return transport.ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q: %w", chatID, err)
	}

	msg := tgbotapi.NewMessage(id, text)
	msg.DisableWebPagePreview = !opts.LinkPreview
	msg.ParseMode = opts.ParseMode

	if _, err := api.Send(msg); err != nil {
		return fmt.Errorf("telegram: send to %s: %w", chatID, err)
	}
	return nil
}

// Run polls for updates and delivers them until ctx is done
func (a *Adapter) Run(ctx context.Context) error {
	api := a.conn()
	if api == nil {
		return transport.ErrNotConnected
	}
	selfID := api.Self.ID

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = a.pollTimeout
	updates := api.GetUpdatesChan(cfg)

	for {
		select {
		case <-ctx.Done():
			a.stop()
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			u := convertUpdate(upd, selfID)
			if u == nil {
				continue
			}
			if err := a.Deliver(ctx, u); err != nil {
				logger.Error(fmt.Sprintf("Error handling update %d: %v", upd.UpdateID, err), "Telegram")
			}
		}
	}
}

// Close stops polling
func (a *Adapter) Close() error {
	a.stop()
	return nil
}

func (a *Adapter) stop() {
	api := a.conn()
	if api == nil {
		return
	}
	a.stopOnce.Do(api.StopReceivingUpdates)
}

func (a *Adapter) conn() *tgbotapi.BotAPI {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.api
}

// convertUpdate maps a Bot API update to a transport update, nil when it is of no interest.
func convertUpdate(upd tgbotapi.Update, selfID int64) *transport.Update {
	switch {
	case upd.Message != nil:
		msg := upd.Message
		if len(msg.NewChatMembers) > 0 {
			return &transport.Update{
				Kind:       transport.UpdateChatAction,
				ChatAction: chatAction(msg, transport.ChatActionJoined, msg.NewChatMembers...),
			}
		}
		if msg.LeftChatMember != nil {
			return &transport.Update{
				Kind:       transport.UpdateChatAction,
				ChatAction: chatAction(msg, transport.ChatActionLeft, *msg.LeftChatMember),
			}
		}
		if msg.Text == "" {
			return nil
		}
		return &transport.Update{Kind: transport.UpdateMessage, Message: convertMessage(msg, selfID)}

	case upd.EditedMessage != nil && upd.EditedMessage.Text != "":
		return &transport.Update{Kind: transport.UpdateMessageEdit, Message: convertMessage(upd.EditedMessage, selfID)}
	}
	return nil
}

func convertMessage(msg *tgbotapi.Message, selfID int64) *transport.Message {
	out := &transport.Message{
		ID:      strconv.Itoa(msg.MessageID),
		Text:    markdown(msg.Text, msg.Entities),
		RawText: msg.Text,
	}
	if msg.Chat != nil {
		out.ChatID = strconv.FormatInt(msg.Chat.ID, 10)
	}
	if msg.From != nil {
		out.Sender = convertUser(*msg.From)
		out.Outgoing = msg.From.ID == selfID
	}
	return out
}

func chatAction(msg *tgbotapi.Message, kind transport.ChatActionKind, users ...tgbotapi.User) *transport.ChatAction {
	action := &transport.ChatAction{Kind: kind}
	if msg.Chat != nil {
		action.ChatID = strconv.FormatInt(msg.Chat.ID, 10)
	}
	for _, u := range users {
		action.Users = append(action.Users, convertUser(u))
	}
	return action
}

func convertUser(u tgbotapi.User) transport.User {
	return transport.User{
		ID:       strconv.FormatInt(u.ID, 10),
		Username: u.UserName,
		IsBot:    u.IsBot,
	}
}
