package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandRegistryAliases(t *testing.T) {
	r := NewCommandRegistry()
	mod := &testModule{name: "core"}

	info, err := r.Register(mod, NewCommand("help", "Shows help", reply("ok")).WithAliases("h", "?"))
	require.NoError(t, err)

	for _, key := range []string{"help", "h", "?"} {
		got, ok := r.Lookup(key)
		require.True(t, ok, key)
		assert.Same(t, info, got)
	}
	assert.Len(t, r.All(), 1)
	assert.Equal(t, 3, r.Len())

	r.Unregister(info)
	assert.Equal(t, 0, r.Len())

	// a second unregister tolerates missing keys
	r.Unregister(info)
}

func TestCommandRegistryDuplicateName(t *testing.T) {
	r := NewCommandRegistry()
	a := &testModule{name: "a"}
	b := &testModule{name: "b"}

	existing, err := r.Register(a, NewCommand("x", "", reply("a")))
	require.NoError(t, err)

	_, err = r.Register(b, NewCommand("x", "", reply("b")).WithAliases("y"))
	require.ErrorIs(t, err, ErrDuplicateCommand)

	var dup *DuplicateCommandError
	require.ErrorAs(t, err, &dup)
	assert.False(t, dup.Alias)
	assert.Equal(t, "x", dup.Key)
	assert.Same(t, existing, dup.Existing)
	assert.Equal(t, "b", dup.Conflicting.Module.Name())

	_, ok := r.Lookup("y")
	assert.False(t, ok, "nothing of the rejected command is inserted")
}

func TestCommandRegistryDuplicateAlias(t *testing.T) {
	r := NewCommandRegistry()
	a := &testModule{name: "a"}

	_, err := r.Register(a, NewCommand("help", "", reply("")).WithAliases("h"))
	require.NoError(t, err)

	_, err = r.Register(a, NewCommand("he", "", reply("")).WithAliases("x", "h"))
	var dup *DuplicateCommandError
	require.ErrorAs(t, err, &dup)
	assert.True(t, dup.Alias)
	assert.Equal(t, "h", dup.Key)

	for _, key := range []string{"he", "x"} {
		_, ok := r.Lookup(key)
		assert.False(t, ok, key)
	}
	assert.Equal(t, 2, r.Len())
}

func TestCommandRegistryRejectsInvalid(t *testing.T) {
	r := NewCommandRegistry()
	mod := &testModule{name: "a"}

	_, err := r.Register(mod, NewCommand("", "", reply("")))
	assert.ErrorIs(t, err, ErrInvalidCommand)

	_, err = r.Register(mod, NewTextCommand("echo", "", nil))
	assert.ErrorIs(t, err, ErrInvalidCommand)

	_, err = r.Register(mod, NewCommand("self", "", reply("")).WithAliases("self"))
	assert.ErrorIs(t, err, ErrDuplicateCommand)
}

func TestCommandRegistryAllSorted(t *testing.T) {
	r := NewCommandRegistry()
	_, _ = r.Register(&testModule{name: "b"}, NewCommand("alpha", "", reply("")))
	_, _ = r.Register(&testModule{name: "a"}, NewCommand("zeta", "", reply("")))
	_, _ = r.Register(&testModule{name: "a"}, NewCommand("beta", "", reply("")).WithAliases("bb"))

	var names []string
	for _, info := range r.All() {
		names = append(names, info.Name)
	}
	assert.Equal(t, []string{"beta", "zeta", "alpha"}, names)
	assert.Len(t, r.ByModule(&testModule{name: "a"}), 2)
}

func TestListenerRegistry(t *testing.T) {
	r := NewListenerRegistry()
	a := &testModule{name: "a"}
	b := &testModule{name: "b"}
	var rec recorder

	first := r.Register(a, EventMessage, rec.handle)
	second := r.Register(b, EventMessage, rec.handle)
	r.Register(a, EventStart, rec.handle)

	assert.Equal(t, []*Listener{first, second}, r.Bindings(EventMessage))
	assert.Empty(t, r.Bindings(EventStop))
	assert.Len(t, r.ByModule(a), 2)

	assert.True(t, r.Unregister(first))
	assert.False(t, r.Unregister(first))
	assert.Equal(t, []*Listener{second}, r.Bindings(EventMessage))

	for _, l := range r.ByModule(a) {
		r.Unregister(l)
	}
	r.Unregister(second)
	assert.Equal(t, 0, r.Len())
}
