package customplugin

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/volatiletech/strmangle"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/plugin"
)

var (
	ErrNotFound     = errors.Wrap(core.ErrNotFound, "custom plugin")
	ErrItemNotFound = errors.Wrap(core.ErrNotFound, "custom plugin item")
)

type (
	Repository interface {
		CreatePlugin(ctx context.Context, cp CustomPlugin, exec ...core.DBExecutor) (CustomPlugin, error)
		GetPlugin(ctx context.Context, name string, exec ...core.DBExecutor) (CustomPlugin, error)
		// ListPlugins sorts by name.
		ListPlugins(ctx context.Context, enabledOnly bool, exec ...core.DBExecutor) ([]CustomPlugin, error)
		UpdatePlugin(ctx context.Context, cp CustomPlugin, exec ...core.DBExecutor) error
		// DeletePlugin deletes the plugin and its items.
		DeletePlugin(ctx context.Context, id int64, exec ...core.DBExecutor) error

		CreateItem(ctx context.Context, item Item, exec ...core.DBExecutor) (Item, error)
		GetItem(ctx context.Context, pluginID, itemID int64, exec ...core.DBExecutor) (Item, error)
		UpdateItem(ctx context.Context, item Item, exec ...core.DBExecutor) error
		DeleteItem(ctx context.Context, pluginID, itemID int64, exec ...core.DBExecutor) error
		// ListItems returns the newest items first, and the total count.
		ListItems(ctx context.Context, pluginID, studentID int64, page core.Page, exec ...core.DBExecutor) ([]Item, int, error)
	}

	// NameChecker knows the names already used by installed plugins.
	NameChecker interface {
		NameTaken(ctx context.Context, name string, exec ...core.DBExecutor) (bool, error)
	}

	Service struct {
		repo     Repository
		db       core.DB
		names    NameChecker
		registry *plugin.Registry
	}
)

func NewService(repo Repository, db core.DB, names NameChecker, registry *plugin.Registry) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(db, "db"),
		vala.IsNotNil(names, "names"),
		vala.IsNotNil(registry, "registry"),
	).CheckAndPanic()
	return &Service{repo: repo, db: db, names: names, registry: registry}
}

// Create stores a new custom plugin, disabled.
// The name must not be used by a built-in plugin, an installed plugin or another custom plugin.
func (svc *Service) Create(ctx context.Context, validate *validator.Validate, ncp NewCustomPlugin, createdBy int64) (CustomPlugin, error) {
	ncp.Name = core.CleanString(ncp.Name)
	ncp.Title = core.CleanString(ncp.Title)
	if err := validate.Struct(ncp); err != nil {
		return CustomPlugin{}, err
	}
	attrs, err := normalizeAttributes(ncp.Attributes)
	if err != nil {
		return CustomPlugin{}, err
	}
	title := ncp.Title
	if title == "" {
		title = strmangle.TitleCase(ncp.Name)
	}

	var cp CustomPlugin
	err = core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		if svc.registry.Registered(ncp.Name) {
			return core.NewPluginError(ncp.Name, "a plugin with this name already exists")
		}
		taken, err := svc.names.NameTaken(ctx, ncp.Name, tx)
		if err != nil {
			return err
		}
		if taken {
			return core.NewPluginError(ncp.Name, "a plugin with this name already exists")
		}
		cp, err = svc.repo.CreatePlugin(ctx, CustomPlugin{
			Name:       ncp.Name,
			Title:      title,
			Attributes: attrs,
			CreatedBy:  createdBy,
			CreatedAt:  core.NowFunc(),
		}, tx)
		return err
	})
	return cp, err
}

func (svc *Service) Get(ctx context.Context, name string) (CustomPlugin, error) {
	return svc.repo.GetPlugin(ctx, name)
}

func (svc *Service) List(ctx context.Context, enabledOnly bool) ([]CustomPlugin, error) {
	return svc.repo.ListPlugins(ctx, enabledOnly)
}

// UpdateSchema replaces the title and attributes. Values stored under removed attributes are kept but ignored.
func (svc *Service) UpdateSchema(ctx context.Context, validate *validator.Validate, name string, us UpdateSchema) (CustomPlugin, error) {
	us.Title = core.CleanString(us.Title)
	if err := validate.Struct(us); err != nil {
		return CustomPlugin{}, err
	}
	attrs, err := normalizeAttributes(us.Attributes)
	if err != nil {
		return CustomPlugin{}, err
	}

	cp, err := svc.repo.GetPlugin(ctx, name)
	if err != nil {
		return CustomPlugin{}, err
	}
	if us.Title != "" {
		cp.Title = us.Title
	}
	cp.Attributes = attrs
	if err = svc.repo.UpdatePlugin(ctx, cp); err != nil {
		return CustomPlugin{}, err
	}
	return cp, nil
}

func (svc *Service) setEnabled(ctx context.Context, name string, enabled bool) error {
	cp, err := svc.repo.GetPlugin(ctx, name)
	if err != nil {
		return err
	}
	cp.Enabled = enabled
	return svc.repo.UpdatePlugin(ctx, cp)
}

func (svc *Service) Enable(ctx context.Context, name string) error {
	return svc.setEnabled(ctx, name, true)
}

func (svc *Service) Disable(ctx context.Context, name string) error {
	return svc.setEnabled(ctx, name, false)
}

// Delete removes the plugin with all of its items.
func (svc *Service) Delete(ctx context.Context, name string) error {
	return core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		cp, err := svc.repo.GetPlugin(ctx, name, tx)
		if err != nil {
			return err
		}
		return svc.repo.DeletePlugin(ctx, cp.ID, tx)
	})
}

func (svc *Service) AddItem(ctx context.Context, name string, studentID, courseID int64, values map[string]string, authorID int64) (Item, error) {
	cp, err := svc.repo.GetPlugin(ctx, name)
	if err != nil {
		return Item{}, err
	}
	cleaned, err := ValidateValues(cp.Attributes, values)
	if err != nil {
		return Item{}, err
	}
	now := core.NowFunc()
	return svc.repo.CreateItem(ctx, Item{
		PluginID:  cp.ID,
		StudentID: studentID,
		CourseID:  courseID,
		Values:    cleaned,
		AuthorID:  authorID,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// UpdateItem replaces the values of the student's item.
func (svc *Service) UpdateItem(ctx context.Context, name string, studentID, itemID int64, values map[string]string) (Item, error) {
	cp, item, err := svc.item(ctx, name, studentID, itemID)
	if err != nil {
		return Item{}, err
	}
	if item.Values, err = ValidateValues(cp.Attributes, values); err != nil {
		return Item{}, err
	}
	item.UpdatedAt = core.NowFunc()
	if err = svc.repo.UpdateItem(ctx, item); err != nil {
		return Item{}, err
	}
	return item, nil
}

func (svc *Service) DeleteItem(ctx context.Context, name string, studentID, itemID int64) error {
	cp, item, err := svc.item(ctx, name, studentID, itemID)
	if err != nil {
		return err
	}
	return svc.repo.DeleteItem(ctx, cp.ID, item.ID)
}

func (svc *Service) item(ctx context.Context, name string, studentID, itemID int64) (CustomPlugin, Item, error) {
	cp, err := svc.repo.GetPlugin(ctx, name)
	if err != nil {
		return CustomPlugin{}, Item{}, err
	}
	item, err := svc.repo.GetItem(ctx, cp.ID, itemID)
	if err != nil {
		return CustomPlugin{}, Item{}, err
	}
	if item.StudentID != studentID {
		return CustomPlugin{}, Item{}, ErrItemNotFound
	}
	return cp, item, nil
}

func (svc *Service) ListItems(ctx context.Context, name string, studentID int64, page core.Page) (core.Paginated, error) {
	cp, err := svc.repo.GetPlugin(ctx, name)
	if err != nil {
		return core.Paginated{}, err
	}
	page = page.Clean()
	items, total, err := svc.repo.ListItems(ctx, cp.ID, studentID, page)
	if err != nil {
		return core.Paginated{}, err
	}
	return core.NewPaginated(items, page, total), nil
}

// EnabledPlugins adapts the enabled custom plugins to the dashboard plugin interface.
func (svc *Service) EnabledPlugins(ctx context.Context) ([]plugin.Plugin, error) {
	cps, err := svc.repo.ListPlugins(ctx, true)
	if err != nil {
		return nil, errors.Wrap(err, "listing custom plugins")
	}
	plugins := make([]plugin.Plugin, 0, len(cps))
	for _, cp := range cps {
		plugins = append(plugins, &Adapter{svc: svc, cp: cp})
	}
	return plugins, nil
}

var _ plugin.CustomSource = (*Service)(nil)

func itemNotFound(name string, itemID int64) error {
	return core.NewPluginError(name, fmt.Sprintf("record %d not found", itemID))
}
