package dashboard

import (
	"context"
	"fmt"

	"github.com/Jeffail/gabs/v2"
	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/layout"
	"github.com/cwarwicker/elbp/core/permission"
	"github.com/cwarwicker/elbp/core/plugin"
	"github.com/cwarwicker/elbp/core/setting"
	"github.com/cwarwicker/elbp/core/user"
)

// ungrouped is the group name used when no layout exists.
const ungrouped = "Overview"

type (
	Users interface {
		GetByID(ctx context.Context, id int64) (user.User, error)
	}

	Resolver interface {
		Resolve(ctx context.Context, viewer user.User, studentID, courseID int64) (permission.Set, error)
	}

	Plugins interface {
		Loaded(ctx context.Context) ([]plugin.Plugin, error)
		LoadedByName(ctx context.Context, name string) (plugin.Plugin, error)
	}

	Layouts interface {
		ForUser(ctx context.Context, id int64) (layout.Layout, error)
	}

	Settings interface {
		GetBool(ctx context.Context, key string, scope setting.Scope) (bool, error)
		GetInt(ctx context.Context, key string, scope setting.Scope) (int64, error)
		GetString(ctx context.Context, key string, scope setting.Scope) (string, error)
	}

	Service struct {
		users    Users
		resolver Resolver
		plugins  Plugins
		layouts  Layouts
		settings Settings
		logger   core.Logger
	}
)

func NewService(users Users, resolver Resolver, plugins Plugins, layouts Layouts, settings Settings, logger core.Logger) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(users, "users"),
		vala.IsNotNil(resolver, "resolver"),
		vala.IsNotNil(plugins, "plugins"),
		vala.IsNotNil(layouts, "layouts"),
		vala.IsNotNil(settings, "settings"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()
	return &Service{users: users, resolver: resolver, plugins: plugins, layouts: layouts, settings: settings, logger: logger}
}

// authorize loads the student and resolves what viewer may do on their dashboard.
func (svc *Service) authorize(ctx context.Context, viewer user.User, studentID, courseID int64) (user.User, permission.Set, error) {
	student, err := svc.users.GetByID(ctx, studentID)
	if err != nil {
		return user.User{}, 0, err
	}
	caps, err := svc.resolver.Resolve(ctx, viewer, studentID, courseID)
	if err != nil {
		return user.User{}, 0, err
	}
	if !caps.CanView() {
		return user.User{}, 0, core.ErrForbidden
	}
	if viewer.ID == studentID && !caps.Has(permission.CapViewAllStudents) {
		allowed, err := svc.settings.GetBool(ctx, setting.KeyStudentAccess, setting.Scope{})
		if err != nil {
			return user.User{}, 0, err
		}
		if !allowed {
			return user.User{}, 0, core.ErrForbidden
		}
	}
	return student, caps, nil
}

// View builds the student's dashboard as seen by viewer.
// A plugin failing to summarise is reported on its block without hiding the others.
func (svc *Service) View(ctx context.Context, viewer user.User, studentID, courseID int64) (View, error) {
	student, caps, err := svc.authorize(ctx, viewer, studentID, courseID)
	if err != nil {
		return View{}, err
	}

	title, err := svc.settings.GetString(ctx, setting.KeyDashboardTitle, setting.Scope{UserID: viewer.ID})
	if err != nil {
		return View{}, err
	}
	loaded, err := svc.plugins.Loaded(ctx)
	if err != nil {
		return View{}, err
	}
	byName := make(map[string]plugin.Plugin, len(loaded))
	for _, p := range loaded {
		byName[p.Name()] = p
	}

	layoutID, err := svc.settings.GetInt(ctx, setting.KeyLayout, setting.Scope{UserID: viewer.ID})
	if err != nil {
		return View{}, err
	}
	lay, err := svc.layouts.ForUser(ctx, layoutID)
	switch {
	case core.IsNotFound(err):
		names := make([]string, 0, len(loaded))
		for _, p := range loaded {
			names = append(names, p.Name())
		}
		lay = layout.Layout{Groups: []layout.Group{{Name: ungrouped, Plugins: names}}}
	case err != nil:
		return View{}, err
	}

	pv := plugin.View{Viewer: viewer, StudentID: studentID, CourseID: courseID, Caps: caps}
	view := View{
		Title:        title,
		Student:      student,
		CourseID:     courseID,
		Capabilities: caps.Names(),
		Layout:       lay.Name,
		Groups:       make([]Group, 0, len(lay.Groups)),
	}
	for _, grp := range lay.Groups {
		g := Group{Name: grp.Name, Blocks: make([]Block, 0, len(grp.Plugins))}
		for _, name := range grp.Plugins {
			p, ok := byName[name]
			if !ok {
				continue
			}
			g.Blocks = append(g.Blocks, svc.block(ctx, p, pv))
		}
		if len(g.Blocks) > 0 {
			view.Groups = append(view.Groups, g)
		}
	}
	return view, nil
}

func (svc *Service) block(ctx context.Context, p plugin.Plugin, pv plugin.View) (b Block) {
	b = Block{Plugin: p.Name(), Title: p.Title()}
	defer func() {
		if r := recover(); r != nil {
			svc.logger.Error(fmt.Sprintf("plugin %s panicked while summarising: %v", p.Name(), r))
			b.Summary, b.Error = nil, "this section could not be loaded"
		}
	}()
	summary, err := p.Summary(ctx, pv)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("plugin %s summary: %v", p.Name(), err), err)
		b.Error = "this section could not be loaded"
		if core.IsPluginError(err) {
			b.Error = errors.Cause(err).Error()
		}
		return b
	}
	b.Summary = summary
	return b
}

// Ajax dispatches req to the enabled plugin it names, after checking viewer may see the student.
func (svc *Service) Ajax(ctx context.Context, validate *validator.Validate, viewer user.User, req Request) (interface{}, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	_, caps, err := svc.authorize(ctx, viewer, req.StudentID, req.CourseID)
	if err != nil {
		return nil, err
	}
	p, err := svc.plugins.LoadedByName(ctx, req.Plugin)
	if err != nil {
		return nil, err
	}

	params := gabs.New()
	if len(req.Params) > 0 && string(req.Params) != "null" {
		if params, err = gabs.ParseJSON(req.Params); err != nil {
			return nil, core.NewPluginError(req.Plugin, "params must be a JSON object")
		}
	}
	return p.Ajax(ctx, plugin.View{Viewer: viewer, StudentID: req.StudentID, CourseID: req.CourseID, Caps: caps}, req.Action, params)
}
