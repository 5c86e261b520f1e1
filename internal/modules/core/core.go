// Package core provides the built-in commands every deployment loads: help,
// uptime, module management and command statistics.
package core

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nk521/Complaint-Bot/pkg/bot"
	"github.com/nk521/Complaint-Bot/pkg/config"
	"github.com/nk521/Complaint-Bot/pkg/transport"
)

// Name is the module name
const Name = "Core"

const noDescription = "__No description provided__"

// Module is the core module
type Module struct {
	bot *bot.Bot

	mu      sync.RWMutex
	started time.Time
}

// Factory builds the core module
func Factory() bot.ModuleFactory {
	return bot.ModuleFactory{
		Name: Name,
		New:  func(b *bot.Bot) bot.Module { return &Module{bot: b} },
	}
}

// Name implements bot.Module
func (m *Module) Name() string { return Name }

// Commands implements bot.Module
func (m *Module) Commands() []*bot.Command {
	return []*bot.Command{
		bot.NewCommand("help", "List the commands", m.help).WithAliases("h"),
		bot.NewCommand("uptime", "Get how long the bot has been up for", m.uptime),
		bot.NewCommand("modules", "List the loaded modules", m.modules),
		bot.NewCommand("reload", "Reload every module", m.reload),
		bot.NewCommand("stats", "Show command statistics", m.stats),
	}
}

// Listeners implements bot.Module
func (m *Module) Listeners() []bot.EventHandler {
	return []bot.EventHandler{
		bot.On(bot.EventStart, m.onStart),
		bot.On(bot.EventCommand, m.onCommand),
	}
}

func (m *Module) onStart(ctx context.Context, ev *bot.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = ev.StartTime
	return nil
}

func (m *Module) onCommand(ctx context.Context, ev *bot.Event) error {
	if ev.Command == nil {
		return nil
	}
	m.bot.Config().Update(func(c *config.Config) {
		if c.Stats.Commands == nil {
			c.Stats.Commands = map[string]int64{}
		}
		c.Stats.Processed++
		c.Stats.Commands[ev.Command.Name]++
	})
	return nil
}

func (m *Module) help(ctx context.Context, msg *transport.Message) (string, error) {
	var (
		order    []string
		sections = map[string][]string{}
	)

	for _, info := range m.bot.Commands() {
		mod := info.Module.Name()
		if _, ok := sections[mod]; !ok {
			order = append(order, mod)
		}

		desc := info.Description
		if desc == "" {
			desc = noDescription
		}
		line := fmt.Sprintf("**%s**: %s", info.Name, desc)
		if len(info.Aliases) > 0 {
			line += fmt.Sprintf(" (aliases: %s)", strings.Join(info.Aliases, ", "))
		}
		sections[mod] = append(sections[mod], line)
	}

	out := make([]string, 0, len(order))
	for _, mod := range order {
		out = append(out, fmt.Sprintf("**%s**:\n    • %s\n", mod, strings.Join(sections[mod], "\n    • ")))
	}
	return strings.Join(out, "\n"), nil
}

func (m *Module) uptime(ctx context.Context, msg *transport.Message) (string, error) {
	m.mu.RLock()
	started := m.started
	m.mu.RUnlock()

	// a reloaded instance never sees "start"
	if started.IsZero() {
		started = m.bot.StartTime()
	}
	if started.IsZero() {
		return "The bot has not started yet.", nil
	}
	return "Uptime: " + FormatDuration(time.Since(started)), nil
}

func (m *Module) modules(ctx context.Context, msg *transport.Message) (string, error) {
	mods := m.bot.Modules()
	counts := map[string]int{}
	for _, info := range m.bot.Commands() {
		counts[info.Module.Name()]++
	}

	lines := make([]string, 0, len(mods))
	for _, mod := range mods {
		lines = append(lines, fmt.Sprintf("    • **%s** (%d commands)", mod.Name(), counts[mod.Name()]))
	}
	return fmt.Sprintf("**Modules** (%d):\n%s", len(mods), strings.Join(lines, "\n")), nil
}

func (m *Module) reload(ctx context.Context, msg *transport.Message) (string, error) {
	if !m.bot.IsOwner(msg.Sender.ID) {
		return "❌ Only the bot owner can reload modules.", nil
	}

	start := time.Now()
	if err := m.bot.ReloadModules(ctx); err != nil {
		return "", fmt.Errorf("reload modules: %w", err)
	}
	return fmt.Sprintf("Reloaded %d modules in %s.", len(m.bot.Modules()), time.Since(start).Round(time.Millisecond)), nil
}

func (m *Module) stats(ctx context.Context, msg *transport.Message) (string, error) {
	cfg := m.bot.Config().Get()

	names := make([]string, 0, len(cfg.Stats.Commands))
	for name := range cfg.Stats.Commands {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		if c := cmp.Compare(cfg.Stats.Commands[b], cfg.Stats.Commands[a]); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})

	var sb strings.Builder
	fmt.Fprintf(&sb, "**Commands processed:** %d", cfg.Stats.Processed)
	for _, name := range names {
		fmt.Fprintf(&sb, "\n    • **%s**: %d", name, cfg.Stats.Commands[name])
	}
	return sb.String(), nil
}

// FormatDuration renders d as "1d 2h 3m 4s", omitting leading zero units
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Second {
		return "0s"
	}

	units := []struct {
		size time.Duration
		unit string
	}{
		{24 * time.Hour, "d"},
		{time.Hour, "h"},
		{time.Minute, "m"},
		{time.Second, "s"},
	}

	var parts []string
	for _, u := range units {
		n := d / u.size
		d -= n * u.size
		if n > 0 || len(parts) > 0 {
			parts = append(parts, fmt.Sprintf("%d%s", n, u.unit))
		}
	}
	return strings.Join(parts, " ")
}
