// Package audit publishes every executed command to the MQTT broker.
package audit

import (
	"context"
	"fmt"

	"github.com/nk521/Complaint-Bot/pkg/bot"
	"github.com/nk521/Complaint-Bot/pkg/mqtt"
)

// Name is the module name
const Name = "Audit"

// Publisher delivers command events
type Publisher interface {
	PublishCommand(ctx context.Context, ev mqtt.CommandEvent) error
}

// Module is the audit module
type Module struct {
	pub Publisher
}

// Factory builds the audit module on top of pub
func Factory(pub Publisher) bot.ModuleFactory {
	return bot.ModuleFactory{
		Name: Name,
		New:  func(b *bot.Bot) bot.Module { return &Module{pub: pub} },
	}
}

// Name implements bot.Module
func (m *Module) Name() string { return Name }

// Commands implements bot.Module
func (m *Module) Commands() []*bot.Command { return nil }

// Listeners implements bot.Module
func (m *Module) Listeners() []bot.EventHandler {
	return []bot.EventHandler{bot.On(bot.EventCommand, m.onCommand)}
}

func (m *Module) onCommand(ctx context.Context, ev *bot.Event) error {
	if ev.Command == nil || ev.Message == nil {
		return nil
	}

	out := mqtt.NewCommandEvent(ev.Command.Name, ev.Command.Module.Name(), ev.Message.ChatID, ev.Message.Sender.ID, ev.Args)
	if err := m.pub.PublishCommand(ctx, out); err != nil {
		return fmt.Errorf("publish command %q: %w", ev.Command.Name, err)
	}
	return nil
}
