// Package transporttest provides an in-memory transport for tests.
package transporttest

import (
	"context"
	"sync"

	"github.com/nk521/Complaint-Bot/pkg/transport"
)

var _ transport.Transport = (*Fake)(nil)

// Sent is one message passed to Send
type Sent struct {
	ChatID string
	Text   string
	Opts   transport.SendOptions
}

// Fake records sends and lets tests push updates.
type Fake struct {
	transport.Router

	Self transport.User

	// SendErr, when set, decides the error of the n-th send (0-based).
	SendErr func(n int, text string) error

	mu        sync.Mutex
	sent      []Sent
	attempts  int
	connected bool
	closed    bool
}

// New returns a fake whose bot account is "testbot"
func New() *Fake {
	return &Fake{Self: transport.User{ID: "1", Username: "testbot", IsBot: true}}
}

// Connect implements transport.Transport
func (f *Fake) Connect(ctx context.Context) (*transport.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	self := f.Self
	return &self, nil
}

// AddHandler implements transport.Transport
func (f *Fake) AddHandler(kind transport.UpdateKind, h transport.Handler, filters ...transport.Filter) {
	f.Add(kind, h, filters...)
}

// Send implements transport.Transport
func (f *Fake) Send(ctx context.Context, chatID string, text string, opts transport.SendOptions) error {
	f.mu.Lock()
	n := f.attempts
	f.attempts++
	f.mu.Unlock()

	if f.SendErr != nil {
		if err := f.SendErr(n, text); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, Sent{ChatID: chatID, Text: text, Opts: opts})
	return nil
}

// Run implements transport.Transport; it blocks until ctx is done
func (f *Fake) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// Close implements transport.Transport
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Push delivers an update synchronously to the matching handlers
func (f *Fake) Push(ctx context.Context, u *transport.Update) error {
	return f.Deliver(ctx, u)
}

// PushText delivers a new incoming text message in chat "chat"
func (f *Fake) PushText(ctx context.Context, senderID, text string) error {
	return f.Push(ctx, &transport.Update{
		Kind:    transport.UpdateMessage,
		Message: Message(senderID, text),
	})
}

// Message builds an incoming message from senderID
func Message(senderID, text string) *transport.Message {
	return &transport.Message{
		ID:      "m1",
		ChatID:  "chat",
		Sender:  transport.User{ID: senderID, Username: "user" + senderID},
		Text:    text,
		RawText: text,
	}
}

// Sent returns the successfully sent messages
func (f *Fake) Sent() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Sent(nil), f.sent...)
}

// Attempts returns how many times Send was called
func (f *Fake) Attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

// Connected reports whether Connect was called
func (f *Fake) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// Closed reports whether Close was called
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
