package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	errs "github.com/nk521/Complaint-Bot/pkg/errors"
)

func TestUpdateKindString(t *testing.T) {
	assert.Equal(t, "message", UpdateMessage.String())
	assert.Equal(t, "message_edit", UpdateMessageEdit.String())
	assert.Equal(t, "chat_action", UpdateChatAction.String())
	assert.Equal(t, "unknown", UpdateKind(99).String())
}

func TestRouterDeliversMatchingBindings(t *testing.T) {
	var r Router
	var calls []string

	r.Add(UpdateMessage, func(ctx context.Context, u *Update) error {
		calls = append(calls, "all")
		return nil
	})
	r.Add(UpdateMessage, func(ctx context.Context, u *Update) error {
		calls = append(calls, "incoming")
		return errors.New("incoming failed")
	}, Incoming)
	r.Add(UpdateMessageEdit, func(ctx context.Context, u *Update) error {
		calls = append(calls, "edit")
		return nil
	})

	err := r.Deliver(context.Background(), &Update{Kind: UpdateMessage, Message: &Message{Text: "hi"}})
	assert.ErrorContains(t, err, "incoming failed")
	assert.Equal(t, []string{"all", "incoming"}, calls)

	calls = nil
	err = r.Deliver(context.Background(), &Update{Kind: UpdateMessage, Message: &Message{Outgoing: true}})
	assert.NoError(t, err)
	assert.Equal(t, []string{"all"}, calls)

	assert.Len(t, r.Bindings(), 3)
}

func TestRouterRecoversHandlerPanic(t *testing.T) {
	var r Router
	var after bool

	r.Add(UpdateMessage, func(ctx context.Context, u *Update) error {
		var m map[string]int
		m["boom"]++
		return nil
	})
	r.Add(UpdateMessage, func(ctx context.Context, u *Update) error {
		after = true
		return nil
	})

	var err error
	assert.NotPanics(t, func() {
		err = r.Deliver(context.Background(), &Update{Kind: UpdateMessage, Message: &Message{Text: "hi"}})
	})
	var pe *errs.PanicError
	assert.ErrorAs(t, err, &pe)
	assert.True(t, after, "later handlers still run")
}
