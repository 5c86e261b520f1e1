package bot

import (
	"context"
	"fmt"

	errs "github.com/nk521/Complaint-Bot/pkg/errors"
	"github.com/nk521/Complaint-Bot/pkg/logger"
	"github.com/nk521/Complaint-Bot/pkg/transport"
)

// Guard decides whether msg may run a command. A vetoed message is ignored.
type Guard func(ctx context.Context, msg *transport.Message) bool

// HandleCommand runs the command named by msg, replies with its result and
// dispatches the "command" event. Messages that do not name a registered
// command are ignored. Errors that escape are reported to the chat and returned.
func (b *Bot) HandleCommand(ctx context.Context, msg *transport.Message) error {
	err := errs.Capture(func() error { return b.invoke(ctx, msg) })
	if err == nil {
		return nil
	}

	if rerr := b.Reply(ctx, msg, "⚠️ Error in command handler:\n```"+FormatError(err)+"```"); rerr != nil {
		logger.Warn(fmt.Sprintf("Could not report command failure: %v", rerr), "Commands")
	}
	return err
}

func (b *Bot) invoke(ctx context.Context, msg *transport.Message) error {
	if msg.Outgoing {
		return nil
	}

	name, ok := ParseCommand(b.prefix, msg.RawText)
	if !ok {
		return nil
	}

	if b.guard != nil && !b.guard(ctx, msg) {
		return nil
	}

	info, ok := b.Command(name)
	if !ok {
		return nil
	}

	args := info.Command.Args(msg)
	ret, err := b.execute(ctx, info, msg, args)
	if err != nil {
		ret = "⚠️ Error executing command:\n```" + FormatError(err) + "```"
	}

	deliveryErr := b.deliver(ctx, info, msg, ret)

	b.DispatchEvent(ctx, &Event{Kind: EventCommand, Message: msg, Command: info, Args: args})
	return deliveryErr
}

func (b *Bot) execute(ctx context.Context, info *CommandInfo, msg *transport.Message, args []string) (string, error) {
	var ret string
	err := errs.Capture(func() error {
		var err error
		ret, err = info.Command.call(ctx, msg, args)
		return err
	})
	if err == nil {
		return ret, nil
	}

	herr := &HandlerExecutionError{Module: info.moduleName(), Command: info.Name, Err: err}
	logger.Error(herr.Error(), "Commands")
	b.errors.IncrementError()
	return "", herr
}

// deliver sends the command's reply, falling back to one corrective reply.
func (b *Bot) deliver(ctx context.Context, info *CommandInfo, msg *transport.Message, text string) error {
	if text == "" {
		return nil
	}

	err := b.Reply(ctx, msg, text)
	if err == nil {
		return nil
	}

	logger.Error(fmt.Sprintf("Error updating message with data returned by command '%s': %v", info.Name, err), "Commands")
	if rerr := b.Reply(ctx, msg, "⚠️ Error updating message:\n```"+FormatError(err)+"```"); rerr != nil {
		return &ReplyDeliveryError{Command: info.Name, Err: rerr, Cause: err}
	}
	return nil
}
