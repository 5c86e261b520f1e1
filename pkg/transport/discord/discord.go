// Package discord connects the bot to Discord through the gateway.
// Channels play the role of chats; member joins and leaves become chat actions.
package discord

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/nk521/Complaint-Bot/pkg/logger"
	"github.com/nk521/Complaint-Bot/pkg/transport"
)

var _ transport.Transport = (*Adapter)(nil)

func init() {
	discordgo.Logger = func(msgL int, caller int, format string, a ...interface{}) {
		msg := fmt.Sprintf(format, a...)
		switch msgL {
		case discordgo.LogError:
			logger.Error(msg, "DiscordGo")
		case discordgo.LogWarning:
			logger.Warn(msg, "DiscordGo")
		default:
			logger.Debug(msg, "DiscordGo")
		}
	}
}

// Adapter is a gateway-backed Discord transport
type Adapter struct {
	transport.Router

	session *discordgo.Session

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	selfID string
	open   bool
}

// New creates an adapter for the bot identified by token
func New(token string) (*Adapter, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildMembers

	session.SyncEvents = false
	session.StateEnabled = true
	session.LogLevel = discordgo.LogWarning

	a := &Adapter{session: session}
	session.AddHandler(a.onMessageCreate)
	session.AddHandler(a.onMessageUpdate)
	session.AddHandler(a.onMemberAdd)
	session.AddHandler(a.onMemberRemove)
	return a, nil
}

// Connect opens the gateway and returns the bot account
func (a *Adapter) Connect(ctx context.Context) (*transport.User, error) {
	if err := a.session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open gateway: %w", err)
	}

	me, err := a.session.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		_ = a.session.Close()
		return nil, fmt.Errorf("discord: fetch bot user: %w", err)
	}

	a.mu.Lock()
	a.ctx, a.cancel = context.WithCancel(context.WithoutCancel(ctx))
	a.selfID = me.ID
	a.open = true
	a.mu.Unlock()

	logger.Success("Bot connected as: "+me.Username, "Discord")
	return &transport.User{ID: me.ID, Username: me.Username, IsBot: true}, nil
}

// AddHandler implements transport.Transport
func (a *Adapter) AddHandler(kind transport.UpdateKind, h transport.Handler, filters ...transport.Filter) {
	a.Add(kind, h, filters...)
}

// Send posts text to the channel chatID with embeds suppressed unless previews are requested
func (a *Adapter) Send(ctx context.Context, chatID string, text string, opts transport.SendOptions) error {
	if !a.isOpen() {
		return transport.ErrNotConnected
	}

	data := &discordgo.MessageSend{Content: text}
	if !opts.LinkPreview {
		data.Flags = discordgo.MessageFlagsSuppressEmbeds
	}

	if _, err := a.session.ChannelMessageSendComplex(chatID, data, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: send to %s: %w", chatID, err)
	}
	return nil
}

// Run blocks until ctx is done; gateway events arrive on discordgo's goroutines
func (a *Adapter) Run(ctx context.Context) error {
	if !a.isOpen() {
		return transport.ErrNotConnected
	}
	<-ctx.Done()
	return nil
}

// Close closes the gateway connection
func (a *Adapter) Close() error {
	a.mu.Lock()
	wasOpen := a.open
	a.open = false
	if a.cancel != nil {
		a.cancel()
	}
	a.mu.Unlock()

	if !wasOpen {
		return nil
	}
	return a.session.Close()
}

func (a *Adapter) isOpen() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.open
}

func (a *Adapter) state() (context.Context, string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ctx, a.selfID, a.open
}

func (a *Adapter) deliver(u *transport.Update) {
	ctx, _, open := a.state()
	if !open || u == nil {
		return
	}
	if err := a.Deliver(ctx, u); err != nil {
		logger.Error(fmt.Sprintf("Error handling %s update: %v", u.Kind, err), "Discord")
	}
}

func (a *Adapter) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	_, selfID, _ := a.state()
	if msg := convertMessage(m.Message, selfID); msg != nil {
		a.deliver(&transport.Update{Kind: transport.UpdateMessage, Message: msg})
	}
}

func (a *Adapter) onMessageUpdate(s *discordgo.Session, m *discordgo.MessageUpdate) {
	_, selfID, _ := a.state()
	if msg := convertMessage(m.Message, selfID); msg != nil {
		a.deliver(&transport.Update{Kind: transport.UpdateMessageEdit, Message: msg})
	}
}

func (a *Adapter) onMemberAdd(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	a.deliver(memberAction(m.Member, transport.ChatActionJoined))
}

func (a *Adapter) onMemberRemove(s *discordgo.Session, m *discordgo.GuildMemberRemove) {
	a.deliver(memberAction(m.Member, transport.ChatActionLeft))
}

// convertMessage maps a gateway message; messages without an author or text are dropped.
// Text keeps Discord's mention markup, RawText has mentions resolved to names.
func convertMessage(m *discordgo.Message, selfID string) *transport.Message {
	if m == nil || m.Author == nil || m.Content == "" {
		return nil
	}
	return &transport.Message{
		ID:       m.ID,
		ChatID:   m.ChannelID,
		Sender:   convertUser(m.Author),
		Text:     m.Content,
		RawText:  m.ContentWithMentionsReplaced(),
		Outgoing: m.Author.ID == selfID,
	}
}

func memberAction(m *discordgo.Member, kind transport.ChatActionKind) *transport.Update {
	if m == nil || m.User == nil {
		return nil
	}
	return &transport.Update{
		Kind: transport.UpdateChatAction,
		ChatAction: &transport.ChatAction{
			ChatID: m.GuildID,
			Kind:   kind,
			Users:  []transport.User{convertUser(m.User)},
		},
	}
}

func convertUser(u *discordgo.User) transport.User {
	return transport.User{ID: u.ID, Username: u.Username, IsBot: u.Bot}
}
