package bot

import (
	"context"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/nk521/Complaint-Bot/pkg/config"
	"github.com/nk521/Complaint-Bot/pkg/transport"
	"github.com/nk521/Complaint-Bot/pkg/transport/transporttest"
)

type testModule struct {
	name      string
	commands  []*Command
	listeners []EventHandler
}

func (m *testModule) Name() string              { return m.name }
func (m *testModule) Commands() []*Command      { return m.commands }
func (m *testModule) Listeners() []EventHandler { return m.listeners }

// moduleFactory builds a fresh testModule on every load
func moduleFactory(name string, commands []*Command, listeners ...EventHandler) ModuleFactory {
	return ModuleFactory{
		Name: name,
		New: func(b *Bot) Module {
			return &testModule{name: name, commands: commands, listeners: listeners}
		},
	}
}

func reply(text string) PlainFunc {
	return func(ctx context.Context, msg *transport.Message) (string, error) {
		return text, nil
	}
}

// recorder collects events delivered to a listener
type recorder struct {
	mu     sync.Mutex
	events []*Event
}

func (r *recorder) handle(ctx context.Context, ev *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) all() []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Event(nil), r.events...)
}

func newStore(t *testing.T, edit func(c *config.Config)) *config.Store {
	t.Helper()
	cfg := config.Default()
	if edit != nil {
		edit(cfg)
	}
	store, err := config.NewStore(afero.NewMemMapFs(), "config.toml", cfg)
	require.NoError(t, err)
	return store
}

func newTestBot(t *testing.T, prefix string, opts ...Option) (*Bot, *transporttest.Fake) {
	t.Helper()
	fake := transporttest.New()
	store := newStore(t, func(c *config.Config) { c.Bot.Prefix = prefix })
	opts = append([]Option{WithRateLimit(nil)}, opts...)
	return New(fake, store, opts...), fake
}
