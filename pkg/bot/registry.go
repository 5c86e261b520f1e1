package bot

import (
	"cmp"
	"fmt"
	"slices"
)

// CommandRegistry maps command names and aliases to their CommandInfo.
// It is not safe for concurrent use; the Bot guards it.
type CommandRegistry struct {
	commands map[string]*CommandInfo
}

// NewCommandRegistry returns an empty registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{commands: make(map[string]*CommandInfo)}
}

// Register adds cmd for mod under its name and every alias.
// Nothing is inserted when any key collides.
func (r *CommandRegistry) Register(mod Module, cmd *Command) (*CommandInfo, error) {
	if !cmd.valid() {
		return nil, fmt.Errorf("%w: %+v", ErrInvalidCommand, cmd)
	}

	info := newCommandInfo(mod, cmd)
	if existing, ok := r.commands[info.Name]; ok {
		return nil, &DuplicateCommandError{Key: info.Name, Existing: existing, Conflicting: info}
	}

	seen := map[string]bool{info.Name: true}
	for _, alias := range info.Aliases {
		if existing, ok := r.commands[alias]; ok {
			return nil, &DuplicateCommandError{Key: alias, Alias: true, Existing: existing, Conflicting: info}
		}
		if alias == "" || seen[alias] {
			return nil, &DuplicateCommandError{Key: alias, Alias: true, Existing: info, Conflicting: info}
		}
		seen[alias] = true
	}

	r.commands[info.Name] = info
	for _, alias := range info.Aliases {
		r.commands[alias] = info
	}
	return info, nil
}

// Unregister removes the name and aliases of info. Keys already gone or owned by
// another command are left alone.
func (r *CommandRegistry) Unregister(info *CommandInfo) {
	for _, key := range append([]string{info.Name}, info.Aliases...) {
		if r.commands[key] == info {
			delete(r.commands, key)
		}
	}
}

// Lookup resolves a name or alias
func (r *CommandRegistry) Lookup(name string) (*CommandInfo, bool) {
	info, ok := r.commands[name]
	return info, ok
}

// All returns every command once, sorted by module then name.
func (r *CommandRegistry) All() []*CommandInfo {
	var out []*CommandInfo
	for key, info := range r.commands {
		if key == info.Name {
			out = append(out, info)
		}
	}
	slices.SortFunc(out, func(a, b *CommandInfo) int {
		return cmp.Or(cmp.Compare(a.moduleName(), b.moduleName()), cmp.Compare(a.Name, b.Name))
	})
	return out
}

// ByModule returns the commands owned by mod
func (r *CommandRegistry) ByModule(mod Module) []*CommandInfo {
	var out []*CommandInfo
	for _, info := range r.All() {
		if sameModule(info.Module, mod) {
			out = append(out, info)
		}
	}
	return out
}

// Len returns the number of keys, aliases included
func (r *CommandRegistry) Len() int {
	return len(r.commands)
}

// Listener binds an event handler of a module to an event kind
type Listener struct {
	Event   string
	Handler EventFunc
	Module  Module
}

// ListenerRegistry keeps the ordered listeners of every event kind.
// It is not safe for concurrent use; the Bot guards it.
type ListenerRegistry struct {
	listeners map[string][]*Listener
}

// NewListenerRegistry returns an empty registry
func NewListenerRegistry() *ListenerRegistry {
	return &ListenerRegistry{listeners: make(map[string][]*Listener)}
}

// Register appends a listener for event
func (r *ListenerRegistry) Register(mod Module, event string, fn EventFunc) *Listener {
	l := &Listener{Event: event, Handler: fn, Module: mod}
	r.listeners[event] = append(r.listeners[event], l)
	return l
}

// Unregister removes l and reports whether it was present
func (r *ListenerRegistry) Unregister(l *Listener) bool {
	list := r.listeners[l.Event]
	i := slices.Index(list, l)
	if i < 0 {
		return false
	}

	list = slices.Delete(list, i, i+1)
	if len(list) == 0 {
		delete(r.listeners, l.Event)
	} else {
		r.listeners[l.Event] = list
	}
	return true
}

// Bindings returns a copy of the listeners of event in dispatch order
func (r *ListenerRegistry) Bindings(event string) []*Listener {
	return slices.Clone(r.listeners[event])
}

// ByModule returns every listener owned by mod
func (r *ListenerRegistry) ByModule(mod Module) []*Listener {
	var out []*Listener
	for _, list := range r.listeners {
		for _, l := range list {
			if sameModule(l.Module, mod) {
				out = append(out, l)
			}
		}
	}
	return out
}

// Len returns the number of listeners across all events
func (r *ListenerRegistry) Len() int {
	n := 0
	for _, list := range r.listeners {
		n += len(list)
	}
	return n
}

// Module names are unique among live modules, so they identify the owner.
func sameModule(a, b Module) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Name() == b.Name()
}
