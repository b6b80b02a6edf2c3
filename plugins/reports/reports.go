// Package reports holds the periodic progress reports written about a student.
package reports

import (
	"context"
	"fmt"

	"github.com/Jeffail/gabs/v2"
	"github.com/pkg/errors"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/permission"
	"github.com/cwarwicker/elbp/core/plugin"
	"github.com/cwarwicker/elbp/core/setting"
)

const Name = "reports"

type Report struct {
	ID        int64  `db:"id" json:"id"`
	StudentID int64  `db:"student_id" json:"student_id"`
	CourseID  int64  `db:"course_id" json:"course_id"`
	Title     string `db:"title" json:"title"`
	Period    string `db:"period" json:"period"`
	Comments  string `db:"comments" json:"comments"`
	Rank      int    `db:"progress_rank" json:"rank"`
	AuthorID  int64  `db:"author_id" json:"author_id"`
	CreatedAt int64  `db:"created_at" json:"created_at"`
}

const reportColumns = "id, student_id, course_id, title, period, comments, progress_rank, author_id, created_at"

type Plugin struct {
	deps plugin.Deps
}

var _ plugin.Plugin = (*Plugin)(nil)

func New(deps plugin.Deps) plugin.Plugin {
	return &Plugin{deps: deps}
}

func (p *Plugin) Name() string  { return Name }
func (p *Plugin) Title() string { return "Progress Reports" }
func (p *Plugin) Version() int  { return 1 }

func (p *Plugin) Migrations() []plugin.Migration {
	return []plugin.Migration{{
		Version: 1,
		Up: func(ctx context.Context, exec core.DBExecutor) error {
			_, err := exec.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS plugin_reports (
				id         %s,
				student_id BIGINT NOT NULL,
				course_id  BIGINT NOT NULL DEFAULT 0,
				title      TEXT NOT NULL,
				period     TEXT NOT NULL DEFAULT '',
				comments   TEXT NOT NULL DEFAULT '',
				progress_rank INTEGER NOT NULL DEFAULT 0,
				author_id  BIGINT NOT NULL DEFAULT 0,
				created_at BIGINT NOT NULL
			)`, plugin.DialectOf(exec).PK()))
			return err
		},
		Down: func(ctx context.Context, exec core.DBExecutor) error {
			_, err := exec.ExecContext(ctx, "DROP TABLE plugin_reports")
			return err
		},
	}}
}

// rankColour looks rank up in the configured progress-rank colours.
func (p *Plugin) rankColour(ctx context.Context, rank int) (setting.RankColour, bool) {
	if p.deps.Settings == nil || rank == 0 {
		return setting.RankColour{}, false
	}
	colours, err := p.deps.Settings.RankColours(ctx)
	if err != nil {
		p.deps.Logger.Warn(fmt.Sprintf("reading rank colours: %v", err), err)
		return setting.RankColour{}, false
	}
	for _, rc := range colours {
		if rc.Rank == rank {
			return rc, true
		}
	}
	return setting.RankColour{}, false
}

func (p *Plugin) Summary(ctx context.Context, view plugin.View) (map[string]interface{}, error) {
	reports, err := p.list(ctx, view)
	if err != nil {
		return nil, err
	}
	summary := map[string]interface{}{"count": len(reports)}
	if len(reports) > 0 {
		latest := reports[0]
		summary["latest"] = latest.Title
		summary["period"] = latest.Period
		if rc, ok := p.rankColour(ctx, latest.Rank); ok {
			summary["rank"] = rc.Name
			summary["colour"] = rc.Colour
		}
	}
	return summary, nil
}

func (p *Plugin) Ajax(ctx context.Context, view plugin.View, action string, raw *gabs.Container) (interface{}, error) {
	params := plugin.NewParams(Name, raw)
	switch action {
	case "list":
		return p.list(ctx, view)
	case "add":
		if err := view.Require(Name, permission.CapAddRecords); err != nil {
			return nil, err
		}
		return p.add(ctx, view, params)
	case "delete":
		if err := view.Require(Name, permission.CapDeleteRecords); err != nil {
			return nil, err
		}
		id, err := params.Int64("id")
		if err != nil {
			return nil, err
		}
		res, err := p.deps.DB.ExecContext(ctx, p.deps.DB.Rebind("DELETE FROM plugin_reports WHERE id = ? AND student_id = ?"), id, view.StudentID)
		if err != nil {
			return nil, errors.Wrap(err, "deleting report")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, core.NewPluginError(Name, "report not found")
		}
		return map[string]interface{}{"deleted": id}, nil
	}
	return nil, plugin.UnknownAction(Name, action)
}

func (p *Plugin) list(ctx context.Context, view plugin.View) ([]Report, error) {
	q := "SELECT " + reportColumns + " FROM plugin_reports WHERE student_id = ?"
	args := []interface{}{view.StudentID}
	if view.CourseID != 0 {
		q += " AND course_id = ?"
		args = append(args, view.CourseID)
	}
	reports := make([]Report, 0)
	if err := p.deps.DB.SelectContext(ctx, &reports, p.deps.DB.Rebind(q+" ORDER BY created_at DESC, id DESC"), args...); err != nil {
		return nil, errors.Wrap(err, "selecting reports")
	}
	return reports, nil
}

func (p *Plugin) add(ctx context.Context, view plugin.View, params plugin.Params) (Report, error) {
	title, err := params.RequiredString("title")
	if err != nil {
		return Report{}, err
	}
	rank, err := params.OptionalInt64("rank", 0)
	if err != nil {
		return Report{}, err
	}
	if rank != 0 {
		if _, ok := p.rankColour(ctx, int(rank)); !ok {
			return Report{}, core.NewPluginError(Name, fmt.Sprintf("unknown rank %d", rank))
		}
	}
	r := Report{
		StudentID: view.StudentID,
		CourseID:  view.CourseID,
		Title:     title,
		Period:    params.String("period"),
		Comments:  params.String("comments"),
		Rank:      int(rank),
		AuthorID:  view.Viewer.ID,
		CreatedAt: core.ToUnix(core.NowFunc()),
	}
	q := p.deps.DB.Rebind(`INSERT INTO plugin_reports (student_id, course_id, title, period, comments, progress_rank, author_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	err = p.deps.DB.QueryRowxContext(ctx, q, r.StudentID, r.CourseID, r.Title, r.Period, r.Comments, r.Rank, r.AuthorID, r.CreatedAt).Scan(&r.ID)
	if err != nil {
		return Report{}, errors.Wrap(err, "inserting report")
	}
	return r, nil
}

func (p *Plugin) Cron(context.Context) error { return nil }

func (p *Plugin) Uninstall(ctx context.Context, exec core.DBExecutor) error {
	_, err := exec.ExecContext(ctx, "DROP TABLE IF EXISTS plugin_reports")
	return err
}
