// Package modules lists the modules compiled into the bot.
package modules

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/afero"

	"github.com/nk521/Complaint-Bot/internal/modules/audit"
	"github.com/nk521/Complaint-Bot/internal/modules/complaint"
	"github.com/nk521/Complaint-Bot/internal/modules/core"
	"github.com/nk521/Complaint-Bot/internal/modules/debug"
	"github.com/nk521/Complaint-Bot/pkg/bot"
	"github.com/nk521/Complaint-Bot/pkg/logger"
)

// Deps are the collaborators modules are built with. Nil members leave the
// modules that need them out.
type Deps struct {
	Store     complaint.Store
	Pinger    debug.Pinger
	Publisher audit.Publisher
}

// All returns the factories of every available module in load order
func All(d Deps) []bot.ModuleFactory {
	factories := []bot.ModuleFactory{core.Factory(), debug.Factory(d.Pinger)}
	if d.Store != nil {
		factories = append(factories, complaint.Factory(d.Store))
	}
	if d.Publisher != nil {
		factories = append(factories, audit.Factory(d.Publisher))
	}
	return factories
}

// Manifest selects which modules are loaded
type Manifest struct {
	Disabled []string `yaml:"disabled"`
}

// LoadManifest reads a YAML manifest. An empty path or a missing file yields an
// empty manifest.
func LoadManifest(fsys afero.Fs, path string) (*Manifest, error) {
	m := &Manifest{}
	if path == "" {
		return m, nil
	}

	data, err := afero.ReadFile(fsys, path)
	if errors.Is(err, fs.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read module manifest: %w", err)
	}

	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse module manifest %s: %w", path, err)
	}
	return m, nil
}

// Apply drops the disabled factories. Names match case-insensitively and the
// core module is always kept.
func (m *Manifest) Apply(factories []bot.ModuleFactory) []bot.ModuleFactory {
	disabled := func(name string) bool {
		return slices.ContainsFunc(m.Disabled, func(d string) bool { return strings.EqualFold(d, name) })
	}

	out := make([]bot.ModuleFactory, 0, len(factories))
	for _, f := range factories {
		if !disabled(f.Name) {
			out = append(out, f)
			continue
		}
		if f.Name == core.Name {
			logger.Warn("The core module cannot be disabled", "Modules")
			out = append(out, f)
			continue
		}
		logger.Info(fmt.Sprintf("Module '%s' disabled by manifest", f.Name), "Modules")
	}
	return out
}
