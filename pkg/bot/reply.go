package bot

import (
	"context"
	"strings"

	"github.com/nk521/Complaint-Bot/pkg/transport"
)

// Redacted replaces credentials found in outgoing text
const Redacted = "[REDACTED]"

// ReplyOption adjusts an outgoing reply
type ReplyOption func(*transport.SendOptions)

// WithLinkPreview enables link previews, which replies disable by default
func WithLinkPreview() ReplyOption {
	return func(o *transport.SendOptions) { o.LinkPreview = true }
}

// WithParseMode sets the platform parse mode of the reply
func WithParseMode(mode string) ReplyOption {
	return func(o *transport.SendOptions) { o.ParseMode = mode }
}

// Reply sends text to the chat msg came from. Credentials are redacted and sends
// are paced by the bot's rate limiter.
func (b *Bot) Reply(ctx context.Context, msg *transport.Message, text string, opts ...ReplyOption) error {
	return b.Send(ctx, msg.ChatID, text, opts...)
}

// Send sends text to chatID the same way Reply does
func (b *Bot) Send(ctx context.Context, chatID string, text string, opts ...ReplyOption) error {
	var o transport.SendOptions
	for _, opt := range opts {
		opt(&o)
	}

	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	return b.transport.Send(ctx, chatID, b.Redact(text), o)
}

// Redact replaces every configured credential in text
func (b *Bot) Redact(text string) string {
	if b.config == nil {
		return text
	}
	for _, secret := range b.config.Get().Secrets() {
		text = strings.ReplaceAll(text, secret, Redacted)
	}
	return text
}
