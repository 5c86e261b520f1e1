package bot

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/nk521/Complaint-Bot/pkg/logger"
)

// Module groups commands and event listeners that are loaded and unloaded together.
type Module interface {
	Name() string
	Commands() []*Command
	Listeners() []EventHandler
}

// EventHandler is a listener declared by a module
type EventHandler struct {
	Event   string
	Handler EventFunc
}

// On declares a listener for event
func On(event string, fn EventFunc) EventHandler {
	return EventHandler{Event: event, Handler: fn}
}

// ModuleFactory builds a fresh module instance on every load.
// New runs while the bot's registries are locked and must not call back into
// the bot's lifecycle or lookup methods; it may keep b for later use.
type ModuleFactory struct {
	Name string
	New  func(b *Bot) Module
}

// Load builds and registers the module produced by f.
func (b *Bot) Load(f ModuleFactory) (Module, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.load(f)
}

func (b *Bot) load(f ModuleFactory) (Module, error) {
	logger.Debug(fmt.Sprintf("Loading module '%s'", f.Name), "Modules")

	if _, ok := b.modules[f.Name]; ok {
		return nil, &DuplicateModuleError{Name: f.Name}
	}

	mod := f.New(b)
	if mod == nil || mod.Name() != f.Name {
		return nil, fmt.Errorf("module factory %q built a module with a different name", f.Name)
	}

	for _, h := range mod.Listeners() {
		b.listeners.Register(mod, h.Event, h.Handler)
	}

	for _, cmd := range mod.Commands() {
		if _, err := b.commands.Register(mod, cmd); err != nil {
			b.unregister(mod)
			return nil, fmt.Errorf("load module %q: %w", f.Name, err)
		}
	}

	b.modules[f.Name] = mod
	logger.Info(fmt.Sprintf("Module '%s' loaded", f.Name), "Modules")
	return mod, nil
}

// Unload removes mod and everything it registered.
func (b *Bot) Unload(mod Module) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unload(mod)
}

func (b *Bot) unload(mod Module) error {
	name := mod.Name()
	if _, ok := b.modules[name]; !ok {
		return fmt.Errorf("unload %q: %w", name, ErrModuleNotLoaded)
	}

	logger.Debug(fmt.Sprintf("Unloading module '%s'", name), "Modules")
	b.unregister(mod)
	delete(b.modules, name)
	return nil
}

func (b *Bot) unregister(mod Module) {
	for _, l := range b.listeners.ByModule(mod) {
		b.listeners.Unregister(l)
	}
	for _, info := range b.commands.ByModule(mod) {
		b.commands.Unregister(info)
	}
}

// LoadAll loads every configured module factory in order and stops at the first failure.
func (b *Bot) LoadAll() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, f := range b.factories {
		if _, err := b.load(f); err != nil {
			return err
		}
	}
	return nil
}

// UnloadAll unloads every live module.
func (b *Bot) UnloadAll() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, mod := range b.moduleSnapshot() {
		if err := b.unload(mod); err != nil {
			return err
		}
	}
	return nil
}

// ReloadModules replaces every module with a fresh instance and dispatches "load"
// without waiting for its listeners.
func (b *Bot) ReloadModules(ctx context.Context) error {
	if err := b.UnloadAll(); err != nil {
		return err
	}
	if err := b.LoadAll(); err != nil {
		return err
	}
	b.DispatchEventNoWait(ctx, &Event{Kind: EventLoad})
	return nil
}

// Modules returns the live modules sorted by name
func (b *Bot) Modules() []Module {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.moduleSnapshot()
}

// Module returns the live module called name
func (b *Bot) Module(name string) (Module, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	mod, ok := b.modules[name]
	return mod, ok
}

func (b *Bot) moduleSnapshot() []Module {
	mods := make([]Module, 0, len(b.modules))
	for _, mod := range b.modules {
		mods = append(mods, mod)
	}
	slices.SortFunc(mods, func(x, y Module) int {
		return strings.Compare(x.Name(), y.Name())
	})
	return mods
}

// Commands returns every registered command once, sorted by module then name
func (b *Bot) Commands() []*CommandInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.commands.All()
}

// Command resolves a command name or alias
func (b *Bot) Command(name string) (*CommandInfo, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.commands.Lookup(name)
}
