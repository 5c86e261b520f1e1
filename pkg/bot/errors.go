package bot

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateCommand matches every *DuplicateCommandError
	ErrDuplicateCommand = errors.New("duplicate command")
	// ErrDuplicateModule matches every *DuplicateModuleError
	ErrDuplicateModule = errors.New("duplicate module")
	// ErrModuleNotLoaded is returned when unloading a module that is not live
	ErrModuleNotLoaded = errors.New("module not loaded")
	// ErrInvalidCommand is returned for commands without a name or handler
	ErrInvalidCommand = errors.New("invalid command")
)

// DuplicateCommandError reports a name or alias collision in the command registry.
type DuplicateCommandError struct {
	Key         string
	Alias       bool
	Existing    *CommandInfo
	Conflicting *CommandInfo
}

func (e *DuplicateCommandError) Error() string {
	kind := "name"
	if e.Alias {
		kind = "alias"
	}
	return fmt.Sprintf("command %q (module %q) %s %q is already taken by command %q (module %q)",
		e.Conflicting.Name, e.Conflicting.moduleName(), kind, e.Key,
		e.Existing.Name, e.Existing.moduleName())
}

func (e *DuplicateCommandError) Is(target error) bool {
	return target == ErrDuplicateCommand
}

// DuplicateModuleError reports an attempt to load a module whose name is live.
type DuplicateModuleError struct {
	Name string
}

func (e *DuplicateModuleError) Error() string {
	return fmt.Sprintf("module %q is already loaded", e.Name)
}

func (e *DuplicateModuleError) Is(target error) bool {
	return target == ErrDuplicateModule
}

// HandlerExecutionError wraps an error or panic raised by a command or event handler.
type HandlerExecutionError struct {
	Module  string
	Command string
	Event   string
	Err     error
}

func (e *HandlerExecutionError) Error() string {
	if e.Command != "" {
		return fmt.Sprintf("command %q (module %q): %v", e.Command, e.Module, e.Err)
	}
	return fmt.Sprintf("%s listener (module %q): %v", e.Event, e.Module, e.Err)
}

func (e *HandlerExecutionError) Unwrap() error {
	return e.Err
}

// ReplyDeliveryError is returned when neither a command's reply nor the
// corrective reply describing the failure could be sent.
type ReplyDeliveryError struct {
	Command string
	Err     error
	Cause   error
}

func (e *ReplyDeliveryError) Error() string {
	return fmt.Sprintf("delivering reply of command %q: %v (first attempt: %v)", e.Command, e.Err, e.Cause)
}

func (e *ReplyDeliveryError) Unwrap() []error {
	return []error{e.Err, e.Cause}
}
