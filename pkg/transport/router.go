package transport

import (
	"context"
	"errors"
	"sync"

	errs "github.com/nk521/Complaint-Bot/pkg/errors"
)

// Router keeps the handler bindings of an adapter and delivers updates to them.
type Router struct {
	mu       sync.RWMutex
	bindings []*Binding
}

// Add registers a handler
func (r *Router) Add(kind UpdateKind, h Handler, filters ...Filter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings = append(r.bindings, &Binding{Kind: kind, Handler: h, Filters: filters})
}

// Bindings returns a snapshot of the registered handlers
func (r *Router) Bindings() []*Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Binding(nil), r.bindings...)
}

// Deliver runs every matching handler in registration order and joins their errors.
// A panicking handler is reported to the process error handler and does not stop
// the handlers after it.
func (r *Router) Deliver(ctx context.Context, u *Update) error {
	var failed []error
	for _, b := range r.Bindings() {
		if !b.Matches(u) {
			continue
		}
		err := errs.Capture(func() error { return b.Handler(ctx, u) })
		var pe *errs.PanicError
		if errors.As(err, &pe) {
			errs.Get().HandlePanic(pe)
		}
		if err != nil {
			failed = append(failed, err)
		}
	}
	return errors.Join(failed...)
}
