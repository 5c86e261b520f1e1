// Package transport defines the platform-neutral view of a chat service used by the bot.
// Adapters for concrete platforms live in subpackages.
package transport

import (
	"context"
	"errors"
)

// ErrNotConnected is returned by adapters used before Connect
var ErrNotConnected = errors.New("transport: not connected")

// UpdateKind classifies an incoming update
type UpdateKind int

const (
	UpdateMessage UpdateKind = iota
	UpdateMessageEdit
	UpdateChatAction
)

// String returns the event kind name used for dispatch
func (k UpdateKind) String() string {
	switch k {
	case UpdateMessage:
		return "message"
	case UpdateMessageEdit:
		return "message_edit"
	case UpdateChatAction:
		return "chat_action"
	default:
		return "unknown"
	}
}

// User is an account on the platform
type User struct {
	ID       string
	Username string
	IsBot    bool
}

// Message is a new or edited chat message.
// Text carries platform formatting markup, RawText is the plain text.
type Message struct {
	ID       string
	ChatID   string
	Sender   User
	Text     string
	RawText  string
	Outgoing bool
}

// ChatActionKind describes a membership change
type ChatActionKind int

const (
	ChatActionJoined ChatActionKind = iota
	ChatActionLeft
)

// ChatAction is a membership change in a chat
type ChatAction struct {
	ChatID string
	Kind   ChatActionKind
	Users  []User
}

// Update is one delivery from the platform
type Update struct {
	Kind       UpdateKind
	Message    *Message
	ChatAction *ChatAction
}

// Handler processes an update
type Handler func(ctx context.Context, u *Update) error

// Filter gates a handler; all filters must pass
type Filter func(u *Update) bool

// SendOptions controls an outgoing message
type SendOptions struct {
	LinkPreview bool
	ParseMode   string
}

// Transport is a connection to a chat platform.
// Connect must succeed before handlers are added and Run is called.
type Transport interface {
	Connect(ctx context.Context) (*User, error)
	AddHandler(kind UpdateKind, h Handler, filters ...Filter)
	Send(ctx context.Context, chatID string, text string, opts SendOptions) error
	Run(ctx context.Context) error
	Close() error
}

// Binding is a handler registered with an adapter
type Binding struct {
	Kind    UpdateKind
	Handler Handler
	Filters []Filter
}

// Matches reports whether u should be delivered to the binding
func (b *Binding) Matches(u *Update) bool {
	if u.Kind != b.Kind {
		return false
	}
	for _, f := range b.Filters {
		if !f(u) {
			return false
		}
	}
	return true
}

// Incoming filters out messages sent by the bot itself
func Incoming(u *Update) bool {
	return u.Message == nil || !u.Message.Outgoing
}
