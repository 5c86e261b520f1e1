// Package debug provides diagnostic commands for the bot owner.
package debug

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/nk521/Complaint-Bot/pkg/bot"
	"github.com/nk521/Complaint-Bot/pkg/logger"
	"github.com/nk521/Complaint-Bot/pkg/transport"
)

// Name is the module name
const Name = "Debug"

const (
	evalTimeout  = 10 * time.Second
	maxResultLen = 1900
)

// Pinger measures the round trip to a backing service
type Pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// Module is the debug module
type Module struct {
	bot    *bot.Bot
	pinger Pinger
}

// Factory builds the debug module. pinger may be nil.
func Factory(pinger Pinger) bot.ModuleFactory {
	return bot.ModuleFactory{
		Name: Name,
		New:  func(b *bot.Bot) bot.Module { return &Module{bot: b, pinger: pinger} },
	}
}

// Name implements bot.Module
func (m *Module) Name() string { return Name }

// Commands implements bot.Module
func (m *Module) Commands() []*bot.Command {
	return []*bot.Command{
		bot.NewCommand("ping", "Check that the bot and its database respond", m.ping),
		bot.NewParsedTextCommand("eval", "Evaluate Go code", m.eval),
	}
}

// Listeners implements bot.Module
func (m *Module) Listeners() []bot.EventHandler { return nil }

func (m *Module) ping(ctx context.Context, msg *transport.Message) (string, error) {
	if m.pinger == nil {
		return "🏓 Pong!", nil
	}

	latency, err := m.pinger.Ping(ctx)
	if err != nil {
		return fmt.Sprintf("🏓 Pong! Database: unreachable (%v)", err), nil
	}
	return fmt.Sprintf("🏓 Pong! Database: %dms", latency.Milliseconds()), nil
}

func (m *Module) eval(ctx context.Context, msg *transport.Message, code string) (string, error) {
	if !m.bot.IsOwner(msg.Sender.ID) {
		return "❌ **Access denied:** this command is for the bot owner only.", nil
	}

	code = stripCodeFence(code)
	if code == "" {
		return fmt.Sprintf("Usage: `%seval <code>`", m.bot.Prefix()), nil
	}

	start := time.Now()
	res, err := m.run(ctx, msg, code)
	logger.Debug(fmt.Sprintf("Eval finished in %s", time.Since(start)), "Eval")
	if err != nil {
		return fmt.Sprintf("❌ **Error:**\n```go\n%v\n```", err), nil
	}
	return fmt.Sprintf("✅ **Result:**\n```go\n%s\n```", res), nil
}

// run evaluates code with Bot, Msg and Config in scope
func (m *Module) run(ctx context.Context, msg *transport.Message, code string) (string, error) {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return "", fmt.Errorf("load stdlib: %w", err)
	}

	exports := interp.Exports{
		"complaintbot/eval/eval": {
			"Bot":    reflect.ValueOf(m.bot),
			"Msg":    reflect.ValueOf(msg),
			"Config": reflect.ValueOf(m.bot.Config().Get()),
		},
	}
	if err := i.Use(exports); err != nil {
		return "", fmt.Errorf("register symbols: %w", err)
	}
	if _, err := i.Eval(`import . "complaintbot/eval"`); err != nil {
		return "", fmt.Errorf("import symbols: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()

	res, err := i.EvalWithContext(ctx, code)
	if err != nil {
		return "", err
	}
	return formatResult(res), nil
}

func formatResult(v reflect.Value) string {
	out := "nil"
	if v.IsValid() && v.CanInterface() {
		out = fmt.Sprintf("%#v", v.Interface())
	}
	if r := []rune(out); len(r) > maxResultLen {
		out = string(r[:maxResultLen]) + "... (truncated)"
	}
	return out
}

func stripCodeFence(code string) string {
	code = strings.TrimSpace(code)
	code = strings.TrimPrefix(code, "```go")
	code = strings.TrimPrefix(code, "```")
	code = strings.TrimSuffix(code, "```")
	return strings.TrimSpace(code)
}
