package bot

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	errs "github.com/nk521/Complaint-Bot/pkg/errors"
	"github.com/nk521/Complaint-Bot/pkg/logger"
	"github.com/nk521/Complaint-Bot/pkg/transport"
)

// Event kinds
const (
	EventMessage     = "message"
	EventMessageEdit = "message_edit"
	EventChatAction  = "chat_action"
	EventLoad        = "load"
	EventStart       = "start"
	EventStop        = "stop"
	EventCommand     = "command"
)

// Event is passed to every listener of its kind. Listeners run concurrently
// and must treat it as read-only.
type Event struct {
	Kind       string
	Message    *transport.Message
	ChatAction *transport.ChatAction

	// Set for "command" events
	Command *CommandInfo
	Args    []string

	// Set for "start" events
	StartTime time.Time
}

// EventFunc handles an event
type EventFunc func(ctx context.Context, ev *Event) error

// DispatchEvent runs every listener of ev.Kind in its own goroutine and waits for all of them.
// Listener failures are logged and counted, never returned.
func (b *Bot) DispatchEvent(ctx context.Context, ev *Event) {
	if err := b.dispatch(ctx, ev); err != nil {
		logger.Error(err.Error(), "Dispatcher")
	}
}

// dispatch returns the failures of every listener of ev.Kind as one *multierror.Error
func (b *Bot) dispatch(ctx context.Context, ev *Event) error {
	b.mu.RLock()
	listeners := b.listeners.Bindings(ev.Kind)
	b.mu.RUnlock()

	if len(listeners) == 0 {
		return nil
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		result *multierror.Error
	)

	for _, l := range listeners {
		wg.Add(1)
		go func(l *Listener) {
			defer wg.Done()

			err := errs.Capture(func() error { return l.Handler(ctx, ev) })
			if err == nil {
				return
			}
			b.errors.IncrementError()

			mu.Lock()
			result = multierror.Append(result, &HandlerExecutionError{Module: l.Module.Name(), Event: ev.Kind, Err: err})
			mu.Unlock()
		}(l)
	}
	wg.Wait()

	if result == nil {
		return nil
	}
	slices.SortFunc(result.Errors, func(a, b error) int { return strings.Compare(a.Error(), b.Error()) })
	result.ErrorFormat = listenerFailures(ev.Kind, len(listeners))
	return result
}

func listenerFailures(kind string, total int) multierror.ErrorFormatFunc {
	return func(failures []error) string {
		lines := make([]string, 0, len(failures)+1)
		lines = append(lines, fmt.Sprintf("%d of %d '%s' listeners failed:", len(failures), total, kind))
		for _, err := range failures {
			lines = append(lines, "  * "+err.Error())
		}
		return strings.Join(lines, "\n")
	}
}

// DispatchEventNoWait dispatches ev in the background. The returned channel is closed
// once every listener has finished.
func (b *Bot) DispatchEventNoWait(ctx context.Context, ev *Event) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.DispatchEvent(ctx, ev)
	}()
	return done
}
