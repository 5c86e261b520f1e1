package bot

import (
	"context"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nk521/Complaint-Bot/pkg/transport"
)

// ArgKind declares how the text after the command token reaches the handler
type ArgKind int

const (
	// ArgsNone passes nothing beyond the message
	ArgsNone ArgKind = iota
	// ArgsText passes the remainder of the formatted text as one string
	ArgsText
	// ArgsParsedText passes the remainder of the plain text as one string
	ArgsParsedText
	// ArgsVariadic passes the whitespace-separated remainder as separate strings
	ArgsVariadic
)

// PlainFunc handles a command that takes no arguments
type PlainFunc func(ctx context.Context, msg *transport.Message) (string, error)

// TextFunc handles a command that takes the rest of the message as one string
type TextFunc func(ctx context.Context, msg *transport.Message, text string) (string, error)

// VariadicFunc handles a command that takes whitespace-separated arguments
type VariadicFunc func(ctx context.Context, msg *transport.Message, args ...string) (string, error)

// Command is a command declared by a module. A non-empty result is sent back to the chat.
type Command struct {
	Name        string
	Description string
	Aliases     []string
	Kind        ArgKind

	plain    PlainFunc
	text     TextFunc
	variadic VariadicFunc
}

// NewCommand creates a command without arguments
func NewCommand(name, description string, fn PlainFunc) *Command {
	return &Command{Name: name, Description: description, Kind: ArgsNone, plain: fn}
}

// NewTextCommand creates a command receiving the formatted remainder of the message
func NewTextCommand(name, description string, fn TextFunc) *Command {
	return &Command{Name: name, Description: description, Kind: ArgsText, text: fn}
}

// NewParsedTextCommand creates a command receiving the plain remainder of the message
func NewParsedTextCommand(name, description string, fn TextFunc) *Command {
	return &Command{Name: name, Description: description, Kind: ArgsParsedText, text: fn}
}

// NewVariadicCommand creates a command receiving whitespace-separated arguments
func NewVariadicCommand(name, description string, fn VariadicFunc) *Command {
	return &Command{Name: name, Description: description, Kind: ArgsVariadic, variadic: fn}
}

// WithAliases sets alternative names for the command
func (c *Command) WithAliases(aliases ...string) *Command {
	c.Aliases = aliases
	return c
}

func (c *Command) valid() bool {
	if c == nil || c.Name == "" {
		return false
	}
	switch c.Kind {
	case ArgsNone:
		return c.plain != nil
	case ArgsText, ArgsParsedText:
		return c.text != nil
	case ArgsVariadic:
		return c.variadic != nil
	}
	return false
}

// Args extracts the handler arguments from msg according to the command's kind.
func (c *Command) Args(msg *transport.Message) []string {
	switch c.Kind {
	case ArgsText:
		return []string{afterFirstToken(msg.Text)}
	case ArgsParsedText:
		return []string{afterFirstToken(msg.RawText)}
	case ArgsVariadic:
		fields := strings.Fields(msg.RawText)
		if len(fields) < 2 {
			return []string{}
		}
		return fields[1:]
	}
	return nil
}

func (c *Command) call(ctx context.Context, msg *transport.Message, args []string) (string, error) {
	switch c.Kind {
	case ArgsText, ArgsParsedText:
		var text string
		if len(args) > 0 {
			text = args[0]
		}
		return c.text(ctx, msg, text)
	case ArgsVariadic:
		return c.variadic(ctx, msg, args...)
	default:
		return c.plain(ctx, msg)
	}
}

// CommandInfo is a registered command. It is not modified after registration.
type CommandInfo struct {
	Name        string
	Description string
	Aliases     []string
	Module      Module
	Command     *Command
}

func newCommandInfo(mod Module, cmd *Command) *CommandInfo {
	return &CommandInfo{
		Name:        cmd.Name,
		Description: cmd.Description,
		Aliases:     slices.Clone(cmd.Aliases),
		Module:      mod,
		Command:     cmd,
	}
}

func (ci *CommandInfo) moduleName() string {
	if ci.Module == nil {
		return ""
	}
	return ci.Module.Name()
}

// ParseCommand returns the command name of text if it starts with prefix.
// The name is the first whitespace-separated token without the prefix and
// without an "@botname" suffix.
func ParseCommand(prefix, text string) (string, bool) {
	if !strings.HasPrefix(text, prefix) {
		return "", false
	}

	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", false
	}

	name := strings.TrimPrefix(fields[0], prefix)
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return name, true
}

// afterFirstToken drops the first whitespace-separated token and one separator after it.
func afterFirstToken(s string) string {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return ""
	}
	_, size := utf8.DecodeRuneInString(s[i:])
	return s[i+size:]
}
