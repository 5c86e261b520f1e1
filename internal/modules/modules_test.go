package modules

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nk521/Complaint-Bot/internal/modules/audit"
	"github.com/nk521/Complaint-Bot/internal/modules/core"
	"github.com/nk521/Complaint-Bot/internal/modules/debug"
	"github.com/nk521/Complaint-Bot/pkg/bot"
	"github.com/nk521/Complaint-Bot/pkg/mqtt"
	"github.com/nk521/Complaint-Bot/pkg/transport/transporttest"
)

type nopPublisher struct{}

func (nopPublisher) PublishCommand(context.Context, mqtt.CommandEvent) error { return nil }

func names(factories []bot.ModuleFactory) []string {
	out := make([]string, 0, len(factories))
	for _, f := range factories {
		out = append(out, f.Name)
	}
	return out
}

func TestAll(t *testing.T) {
	assert.Equal(t, []string{core.Name, debug.Name}, names(All(Deps{})))
	assert.Equal(t, []string{core.Name, debug.Name, audit.Name}, names(All(Deps{Publisher: nopPublisher{}})))
}

func TestAllModulesLoadTogether(t *testing.T) {
	b := bot.New(transporttest.New(), nil, bot.WithModules(All(Deps{Publisher: nopPublisher{}})...))
	require.NoError(t, b.LoadAll())
	assert.Len(t, b.Modules(), 3)
}

func TestLoadManifest(t *testing.T) {
	fsys := afero.NewMemMapFs()

	m, err := LoadManifest(fsys, "")
	require.NoError(t, err)
	assert.Empty(t, m.Disabled)

	m, err = LoadManifest(fsys, "missing.yaml")
	require.NoError(t, err)
	assert.Empty(t, m.Disabled)

	require.NoError(t, afero.WriteFile(fsys, "modules.yaml", []byte("disabled:\n  - debug\n  - core\n"), 0o644))
	m, err = LoadManifest(fsys, "modules.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{"debug", "core"}, m.Disabled)

	assert.Equal(t, []string{core.Name, audit.Name}, names(m.Apply(All(Deps{Publisher: nopPublisher{}}))))

	require.NoError(t, afero.WriteFile(fsys, "bad.yaml", []byte("disabled: [\n"), 0o644))
	_, err = LoadManifest(fsys, "bad.yaml")
	assert.Error(t, err)
}
