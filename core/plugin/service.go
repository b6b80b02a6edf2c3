package plugin

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/volatiletech/strmangle"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/alert"
)

var ErrNotFound = errors.Wrap(core.ErrNotFound, "plugin")

type (
	Repository interface {
		// NameTaken reports whether name is used by an installed or a custom plugin.
		NameTaken(ctx context.Context, name string, exec ...core.DBExecutor) (bool, error)
		CreateRegistration(ctx context.Context, reg Registration, exec ...core.DBExecutor) (Registration, error)
		GetRegistration(ctx context.Context, name string, exec ...core.DBExecutor) (Registration, error)
		// ListRegistrations sorts by ordernum then name.
		ListRegistrations(ctx context.Context, enabledOnly bool, exec ...core.DBExecutor) ([]Registration, error)
		SetEnabled(ctx context.Context, name string, enabled bool, exec ...core.DBExecutor) error
		SetOrder(ctx context.Context, name string, ordernum int, exec ...core.DBExecutor) error
		SetVersion(ctx context.Context, name string, version int, exec ...core.DBExecutor) error
		DeleteRegistration(ctx context.Context, name string, exec ...core.DBExecutor) error

		RecordMigration(ctx context.Context, name string, version int, appliedAt time.Time, exec ...core.DBExecutor) error
		DeleteMigration(ctx context.Context, name string, version int, exec ...core.DBExecutor) error
		DeleteMigrations(ctx context.Context, name string, exec ...core.DBExecutor) error
		AppliedMigrations(ctx context.Context, name string, exec ...core.DBExecutor) ([]int, error)
	}

	// CustomSource supplies the enabled user-defined plugins.
	CustomSource interface {
		EnabledPlugins(ctx context.Context) ([]Plugin, error)
	}

	// EvaluatorRegistry receives the alert evaluators plugins provide.
	EvaluatorRegistry interface {
		RegisterEvaluator(event string, ev alert.Evaluator)
	}

	Manager struct {
		repo     Repository
		registry *Registry
		deps     Deps
		custom   CustomSource
	}
)

func NewManager(repo Repository, registry *Registry, deps Deps) *Manager {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(registry, "registry"),
		vala.IsNotNil(deps.DB, "deps.DB"),
		vala.IsNotNil(deps.Logger, "deps.Logger"),
	).CheckAndPanic()
	return &Manager{repo: repo, registry: registry, deps: deps}
}

// SetCustomSource plugs user-defined plugins into Loaded.
func (m *Manager) SetCustomSource(cs CustomSource) {
	m.custom = cs
}

// Registry returns the factories the manager instantiates from.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Bootstrap declares the settings and alert evaluators of every registered plugin.
func (m *Manager) Bootstrap(alerts EvaluatorRegistry) {
	for _, name := range m.registry.Names() {
		p, err := m.Instantiate(name)
		if err != nil {
			m.deps.Logger.Error(fmt.Sprintf("bootstrapping plugin %s: %v", name, err), err)
			continue
		}
		if sd, ok := p.(SettingsDeclarer); ok && m.deps.Settings != nil {
			m.deps.Settings.Schema().Declare(sd.Settings()...)
		}
		if as, ok := p.(AlertSource); ok && alerts != nil {
			for event, ev := range as.AlertEvaluators() {
				alerts.RegisterEvaluator(event, ev)
			}
		}
	}
}

// Instantiate builds the registered plugin called name.
func (m *Manager) Instantiate(name string) (Plugin, error) {
	f, ok := m.registry.factory(name)
	if !ok {
		return nil, core.NewPluginError(name, "plugin not found")
	}
	return f(m.deps), nil
}

func (m *Manager) registration(ctx context.Context, name string, exec ...core.DBExecutor) (Registration, error) {
	reg, err := m.repo.GetRegistration(ctx, name, exec...)
	if core.IsNotFound(err) {
		return Registration{}, core.NewPluginError(name, "plugin is not installed")
	}
	return reg, err
}

// Install registers the plugin (disabled) and runs its migration ladder.
func (m *Manager) Install(ctx context.Context, name string) (Registration, error) {
	p, err := m.Instantiate(name)
	if err != nil {
		return Registration{}, err
	}

	err = core.WithTx(ctx, m.deps.DB, func(tx core.DBExecutor) error {
		taken, err := m.repo.NameTaken(ctx, name, tx)
		if err != nil {
			return err
		}
		if taken {
			return core.NewPluginError(name, "a plugin with this name already exists")
		}
		regs, err := m.repo.ListRegistrations(ctx, false, tx)
		if err != nil {
			return err
		}
		title := p.Title()
		if title == "" {
			title = strmangle.TitleCase(name)
		}
		_, err = m.repo.CreateRegistration(ctx, Registration{
			Name:        name,
			Title:       title,
			Ordernum:    len(regs) + 1,
			InstalledAt: core.NowFunc(),
		}, tx)
		return err
	})
	if err != nil {
		return Registration{}, err
	}

	if _, err = m.Upgrade(ctx, name); err != nil {
		if aerr := m.abortInstall(ctx, name); aerr != nil {
			m.deps.Logger.Error(fmt.Sprintf("plugin %s: undoing failed install: %v", name, aerr), aerr)
		}
		return Registration{}, err
	}
	return m.repo.GetRegistration(ctx, name)
}

// abortInstall removes the registry row and ledger of a failed install so the name can be installed again.
// Tables the applied steps created are left in place; version 1 migrations create them IF NOT EXISTS.
func (m *Manager) abortInstall(ctx context.Context, name string) error {
	return core.WithTx(ctx, m.deps.DB, func(tx core.DBExecutor) error {
		if err := m.repo.DeleteMigrations(ctx, name, tx); err != nil {
			return err
		}
		return m.repo.DeleteRegistration(ctx, name, tx)
	})
}

// InstallFromManifest installs (or upgrades) and enables the plugins listed in the manifest at path.
func (m *Manager) InstallFromManifest(ctx context.Context, path string) ([]Registration, error) {
	manifest, err := ReadManifest(path)
	if err != nil {
		return nil, err
	}
	return m.ApplyManifest(ctx, manifest)
}

// ApplyManifest installs or upgrades each listed plugin, then sets its enabled flag and order.
func (m *Manager) ApplyManifest(ctx context.Context, manifest Manifest) ([]Registration, error) {
	manifest.Plugins = append([]ManifestEntry(nil), manifest.Plugins...)
	if err := manifest.Normalize(); err != nil {
		return nil, err
	}
	regs := make([]Registration, 0, len(manifest.Plugins))
	for _, entry := range manifest.Plugins {
		_, err := m.repo.GetRegistration(ctx, entry.Name)
		switch {
		case core.IsNotFound(err):
			if _, err = m.Install(ctx, entry.Name); err != nil {
				return regs, err
			}
		case err != nil:
			return regs, err
		default:
			if _, err = m.Upgrade(ctx, entry.Name); err != nil {
				return regs, err
			}
		}

		if err = m.repo.SetEnabled(ctx, entry.Name, entry.Enabled); err != nil {
			return regs, err
		}
		if err = m.repo.SetOrder(ctx, entry.Name, entry.Order); err != nil {
			return regs, err
		}
		reg, err := m.repo.GetRegistration(ctx, entry.Name)
		if err != nil {
			return regs, err
		}
		regs = append(regs, reg)
	}
	return regs, nil
}

func (m *Manager) setEnabled(ctx context.Context, name string, enabled bool) error {
	if _, err := m.registration(ctx, name); err != nil {
		return err
	}
	return m.repo.SetEnabled(ctx, name, enabled)
}

func (m *Manager) Enable(ctx context.Context, name string) error {
	return m.setEnabled(ctx, name, true)
}

func (m *Manager) Disable(ctx context.Context, name string) error {
	return m.setEnabled(ctx, name, false)
}

func (m *Manager) SetOrder(ctx context.Context, name string, ordernum int) error {
	if _, err := m.registration(ctx, name); err != nil {
		return err
	}
	return m.repo.SetOrder(ctx, name, ordernum)
}

func (m *Manager) Get(ctx context.Context, name string) (Registration, error) {
	return m.registration(ctx, name)
}

func (m *Manager) List(ctx context.Context, enabledOnly bool) ([]Registration, error) {
	return m.repo.ListRegistrations(ctx, enabledOnly)
}

func sortedMigrations(p Plugin) []Migration {
	migrations := append([]Migration(nil), p.Migrations()...)
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations
}

// Upgrade applies, in order and each in its own transaction, every migration newer than the installed version.
// It returns the number of migrations applied.
func (m *Manager) Upgrade(ctx context.Context, name string) (int, error) {
	p, err := m.Instantiate(name)
	if err != nil {
		return 0, err
	}
	reg, err := m.registration(ctx, name)
	if err != nil {
		return 0, err
	}

	var applied int
	for _, mig := range sortedMigrations(p) {
		if mig.Version <= reg.Version || mig.Version > p.Version() {
			continue
		}
		err = core.WithTx(ctx, m.deps.DB, func(tx core.DBExecutor) error {
			if mig.Up != nil {
				if err := mig.Up(ctx, tx); err != nil {
					return err
				}
			}
			if err := m.repo.RecordMigration(ctx, name, mig.Version, core.NowFunc(), tx); err != nil {
				return err
			}
			return m.repo.SetVersion(ctx, name, mig.Version, tx)
		})
		if err != nil {
			return applied, errors.Wrapf(err, "%s: migrating to version %d", name, mig.Version)
		}
		reg.Version = mig.Version
		applied++
		m.deps.Logger.Info(fmt.Sprintf("plugin %s migrated to version %d", name, mig.Version))
	}
	return applied, nil
}

// Rollback runs Down, newest first, for every applied migration above toVersion.
func (m *Manager) Rollback(ctx context.Context, name string, toVersion int) (int, error) {
	p, err := m.Instantiate(name)
	if err != nil {
		return 0, err
	}
	reg, err := m.registration(ctx, name)
	if err != nil {
		return 0, err
	}

	migrations := sortedMigrations(p)
	var rolled int
	for i := len(migrations) - 1; i >= 0; i-- {
		mig := migrations[i]
		if mig.Version <= toVersion || mig.Version > reg.Version {
			continue
		}
		prev := 0
		if i > 0 {
			prev = migrations[i-1].Version
		}
		err = core.WithTx(ctx, m.deps.DB, func(tx core.DBExecutor) error {
			if mig.Down != nil {
				if err := mig.Down(ctx, tx); err != nil {
					return err
				}
			}
			if err := m.repo.DeleteMigration(ctx, name, mig.Version, tx); err != nil {
				return err
			}
			return m.repo.SetVersion(ctx, name, prev, tx)
		})
		if err != nil {
			return rolled, errors.Wrapf(err, "%s: rolling back version %d", name, mig.Version)
		}
		rolled++
	}
	return rolled, nil
}

// Uninstall removes the plugin. Without force the plugin drops its own tables first;
// with force only the registry row and the migration ledger are deleted, leaving the tables orphaned.
func (m *Manager) Uninstall(ctx context.Context, name string, force bool) error {
	if _, err := m.registration(ctx, name); err != nil {
		return err
	}

	var p Plugin
	if !force {
		var err error
		if p, err = m.Instantiate(name); err != nil {
			return err
		}
	}

	return core.WithTx(ctx, m.deps.DB, func(tx core.DBExecutor) error {
		if p != nil {
			if err := p.Uninstall(ctx, tx); err != nil {
				return errors.Wrapf(err, "%s: cleaning up", name)
			}
		}
		if err := m.repo.DeleteMigrations(ctx, name, tx); err != nil {
			return err
		}
		return m.repo.DeleteRegistration(ctx, name, tx)
	})
}

// Loaded instantiates every enabled plugin, built-in ones in registry order then custom ones by name.
// A plugin that fails to construct is logged and skipped.
func (m *Manager) Loaded(ctx context.Context) ([]Plugin, error) {
	regs, err := m.repo.ListRegistrations(ctx, true)
	if err != nil {
		return nil, err
	}

	plugins := make([]Plugin, 0, len(regs))
	for _, reg := range regs {
		p, err := m.instantiateSafely(reg.Name)
		if err != nil {
			m.deps.Logger.Warn(fmt.Sprintf("loading plugin %s: %v", reg.Name, err), err)
			continue
		}
		if reg.Version < p.Version() {
			m.deps.Logger.Warn(fmt.Sprintf("plugin %s is at version %d, %d available: upgrade needed", reg.Name, reg.Version, p.Version()))
		}
		plugins = append(plugins, p)
	}

	if m.custom != nil {
		custom, err := m.custom.EnabledPlugins(ctx)
		if err != nil {
			m.deps.Logger.Error(fmt.Sprintf("loading custom plugins: %v", err), err)
			return plugins, nil
		}
		sort.Slice(custom, func(i, j int) bool { return custom[i].Name() < custom[j].Name() })
		plugins = append(plugins, custom...)
	}
	return plugins, nil
}

// LoadedByName returns the enabled plugin called name.
func (m *Manager) LoadedByName(ctx context.Context, name string) (Plugin, error) {
	plugins, err := m.Loaded(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range plugins {
		if p.Name() == name {
			return p, nil
		}
	}
	return nil, core.NewPluginError(name, "plugin not found")
}

func (m *Manager) instantiateSafely(name string) (p Plugin, err error) {
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, errors.Errorf("constructing plugin: %v", r)
		}
	}()
	p, err = m.Instantiate(name)
	if err == nil && p == nil {
		err = errors.New("factory returned nil")
	}
	return p, err
}
