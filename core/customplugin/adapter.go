package customplugin

import (
	"context"

	"github.com/Jeffail/gabs/v2"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/permission"
	"github.com/cwarwicker/elbp/core/plugin"
)

// Adapter serves a custom plugin through the dashboard plugin interface.
type Adapter struct {
	svc *Service
	cp  CustomPlugin
}

var _ plugin.Plugin = (*Adapter)(nil)

func (a *Adapter) Name() string  { return a.cp.Name }
func (a *Adapter) Title() string { return a.cp.Title }

// Version is constant: custom plugins store their items in shared tables.
func (a *Adapter) Version() int { return 1 }

func (a *Adapter) Migrations() []plugin.Migration { return nil }

func (a *Adapter) Cron(context.Context) error { return nil }

func (a *Adapter) Uninstall(context.Context, core.DBExecutor) error { return nil }

// Schema returns the attributes items are validated against.
func (a *Adapter) Schema() []Attribute { return a.cp.Attributes }

// Summary returns the item count and the summary-zone values of the newest item.
func (a *Adapter) Summary(ctx context.Context, view plugin.View) (map[string]interface{}, error) {
	items, total, err := a.svc.repo.ListItems(ctx, a.cp.ID, view.StudentID, core.Page{Number: 1, PerPage: 1})
	if err != nil {
		return nil, err
	}
	summary := map[string]interface{}{"count": total}
	if len(items) > 0 {
		latest := make(map[string]string)
		for _, attr := range a.cp.Attributes {
			if attr.Zone != ZoneSummary {
				continue
			}
			if v, ok := items[0].Values[attr.Name]; ok {
				latest[attr.Label] = v
			}
		}
		summary["latest"] = latest
		summary["updated_at"] = items[0].UpdatedAt.Unix()
	}
	return summary, nil
}

func (a *Adapter) Ajax(ctx context.Context, view plugin.View, action string, params *gabs.Container) (interface{}, error) {
	p := plugin.NewParams(a.cp.Name, params)
	switch action {
	case "schema":
		return a.cp.Attributes, nil

	case "list":
		num, err := p.OptionalInt64("page", 1)
		if err != nil {
			return nil, err
		}
		per, err := p.OptionalInt64("per_page", core.DefaultPerPage)
		if err != nil {
			return nil, err
		}
		return a.svc.ListItems(ctx, a.cp.Name, view.StudentID, core.Page{Number: int(num), PerPage: int(per)})

	case "add":
		if err := view.Require(a.cp.Name, permission.CapAddRecords); err != nil {
			return nil, err
		}
		return a.svc.AddItem(ctx, a.cp.Name, view.StudentID, view.CourseID, p.StringMap("values"), view.Viewer.ID)

	case "update":
		if err := view.Require(a.cp.Name, permission.CapEditRecords); err != nil {
			return nil, err
		}
		id, err := p.Int64("id")
		if err != nil {
			return nil, err
		}
		item, err := a.svc.UpdateItem(ctx, a.cp.Name, view.StudentID, id, p.StringMap("values"))
		if core.IsNotFound(err) {
			return nil, itemNotFound(a.cp.Name, id)
		}
		return item, err

	case "delete":
		if err := view.Require(a.cp.Name, permission.CapDeleteRecords); err != nil {
			return nil, err
		}
		id, err := p.Int64("id")
		if err != nil {
			return nil, err
		}
		if err = a.svc.DeleteItem(ctx, a.cp.Name, view.StudentID, id); err != nil {
			if core.IsNotFound(err) {
				return nil, itemNotFound(a.cp.Name, id)
			}
			return nil, err
		}
		return map[string]interface{}{"deleted": id}, nil
	}
	return nil, plugin.UnknownAction(a.cp.Name, action)
}
