package bot

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	errs "github.com/nk521/Complaint-Bot/pkg/errors"
)

func TestDispatchEventWithoutListeners(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	b, _ := newTestBot(t, "/")
	b.DispatchEvent(context.Background(), &Event{Kind: EventMessage})
}

func TestDispatchEventContainsFailures(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	handler := errs.NewHandler(errs.Options{})
	b, _ := newTestBot(t, "/", WithErrorHandler(handler))
	var ran atomic.Int32

	_, err := b.Load(moduleFactory("a", nil,
		On(EventMessage, func(ctx context.Context, ev *Event) error {
			ran.Add(1)
			return errors.New("listener failed")
		}),
		On(EventMessage, func(ctx context.Context, ev *Event) error {
			ran.Add(1)
			panic("listener panicked")
		}),
		On(EventMessage, func(ctx context.Context, ev *Event) error {
			ran.Add(1)
			return nil
		}),
	))
	require.NoError(t, err)

	b.DispatchEvent(context.Background(), &Event{Kind: EventMessage})

	assert.Equal(t, int32(3), ran.Load(), "every listener runs")
	assert.Equal(t, int32(2), handler.Count(), "each failure is counted")

	err = b.dispatch(context.Background(), &Event{Kind: EventMessage})
	var failures *multierror.Error
	require.ErrorAs(t, err, &failures)
	assert.Equal(t, 2, failures.Len())
	assert.Equal(t, "2 of 3 'message' listeners failed:\n"+
		"  * message listener (module \"a\"): listener failed\n"+
		"  * message listener (module \"a\"): panic: listener panicked", err.Error())

	var pe *errs.PanicError
	assert.ErrorAs(t, err, &pe)
}

func TestDispatchEventRunsListenersConcurrently(t *testing.T) {
	b, _ := newTestBot(t, "/")
	release := make(chan struct{})
	var started atomic.Int32

	wait := func(ctx context.Context, ev *Event) error {
		started.Add(1)
		<-release
		return nil
	}
	_, err := b.Load(moduleFactory("a", nil, On(EventStart, wait), On(EventStart, wait)))
	require.NoError(t, err)

	done := b.DispatchEventNoWait(context.Background(), &Event{Kind: EventStart})
	require.Eventually(t, func() bool { return started.Load() == 2 }, time.Second, 5*time.Millisecond)

	select {
	case <-done:
		t.Fatal("dispatch finished before its listeners")
	default:
	}

	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch did not finish")
	}
}

func TestDispatchEventPassesEvent(t *testing.T) {
	b, _ := newTestBot(t, "/")
	var rec recorder
	_, err := b.Load(moduleFactory("a", nil, On(EventStop, rec.handle)))
	require.NoError(t, err)

	ev := &Event{Kind: EventStop}
	b.DispatchEvent(context.Background(), ev)
	b.DispatchEvent(context.Background(), &Event{Kind: EventStart})

	require.Len(t, rec.all(), 1)
	assert.Same(t, ev, rec.all()[0])
}
