// Package tutorials records the tutorials held with a student.
package tutorials

import (
	"context"
	"fmt"

	"github.com/Jeffail/gabs/v2"
	"github.com/pkg/errors"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/alert"
	"github.com/cwarwicker/elbp/core/permission"
	"github.com/cwarwicker/elbp/core/plugin"
)

const Name = "tutorials"

type Tutorial struct {
	ID           int64  `db:"id" json:"id"`
	StudentID    int64  `db:"student_id" json:"student_id"`
	CourseID     int64  `db:"course_id" json:"course_id"`
	TutorialDate int64  `db:"tutorial_date" json:"tutorial_date"`
	Notes        string `db:"notes" json:"notes"`
	Location     string `db:"location" json:"location"`
	SetBy        int64  `db:"set_by" json:"set_by"`
	CreatedAt    int64  `db:"created_at" json:"created_at"`
}

const tutorialColumns = "id, student_id, course_id, tutorial_date, notes, location, set_by, created_at"

type Plugin struct {
	deps plugin.Deps
}

var (
	_ plugin.Plugin      = (*Plugin)(nil)
	_ plugin.AlertSource = (*Plugin)(nil)
)

func New(deps plugin.Deps) plugin.Plugin {
	return &Plugin{deps: deps}
}

func (p *Plugin) Name() string  { return Name }
func (p *Plugin) Title() string { return "Tutorials" }
func (p *Plugin) Version() int  { return 2 }

func (p *Plugin) Migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version: 1,
			Up: func(ctx context.Context, exec core.DBExecutor) error {
				_, err := exec.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS plugin_tutorials (
					id            %s,
					student_id    BIGINT NOT NULL,
					course_id     BIGINT NOT NULL DEFAULT 0,
					tutorial_date BIGINT NOT NULL,
					notes         TEXT NOT NULL DEFAULT '',
					set_by        BIGINT NOT NULL DEFAULT 0,
					created_at    BIGINT NOT NULL
				)`, plugin.DialectOf(exec).PK()))
				return err
			},
			Down: func(ctx context.Context, exec core.DBExecutor) error {
				_, err := exec.ExecContext(ctx, "DROP TABLE plugin_tutorials")
				return err
			},
		},
		{
			Version: 2,
			Up: func(ctx context.Context, exec core.DBExecutor) error {
				return plugin.DialectOf(exec).AddColumn(ctx, exec, "plugin_tutorials", "location", "TEXT NOT NULL DEFAULT ''")
			},
			Down: func(ctx context.Context, exec core.DBExecutor) error {
				_, err := exec.ExecContext(ctx, plugin.DialectOf(exec).DropColumn("plugin_tutorials", "location"))
				return err
			},
		},
	}
}

func (p *Plugin) Summary(ctx context.Context, view plugin.View) (map[string]interface{}, error) {
	var stats struct {
		Count int   `db:"count"`
		Last  int64 `db:"last"`
	}
	q := "SELECT COUNT(*) AS count, COALESCE(MAX(tutorial_date), 0) AS last FROM plugin_tutorials WHERE student_id = ?"
	args := []interface{}{view.StudentID}
	if view.CourseID != 0 {
		q += " AND course_id = ?"
		args = append(args, view.CourseID)
	}
	if err := p.deps.DB.GetContext(ctx, &stats, p.deps.DB.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "counting tutorials")
	}
	summary := map[string]interface{}{"count": stats.Count, "last": ""}
	if stats.Last != 0 {
		summary["last"] = core.FromUnix(stats.Last).Format(plugin.DateLayout)
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
		res, err := p.deps.DB.ExecContext(ctx, p.deps.DB.Rebind("DELETE FROM plugin_tutorials WHERE id = ? AND student_id = ?"), id, view.StudentID)
		if err != nil {
			return nil, errors.Wrap(err, "deleting tutorial")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, core.NewPluginError(Name, "tutorial not found")
		}
		return map[string]interface{}{"deleted": id}, nil
	}
	return nil, plugin.UnknownAction(Name, action)
}

func (p *Plugin) list(ctx context.Context, view plugin.View) ([]Tutorial, error) {
	q := "SELECT " + tutorialColumns + " FROM plugin_tutorials WHERE student_id = ?"
	args := []interface{}{view.StudentID}
	if view.CourseID != 0 {
		q += " AND course_id = ?"
		args = append(args, view.CourseID)
	}
	tutorials := make([]Tutorial, 0)
	if err := p.deps.DB.SelectContext(ctx, &tutorials, p.deps.DB.Rebind(q+" ORDER BY tutorial_date DESC, id DESC"), args...); err != nil {
		return nil, errors.Wrap(err, "selecting tutorials")
	}
	return tutorials, nil
}

func (p *Plugin) add(ctx context.Context, view plugin.View, params plugin.Params) (Tutorial, error) {
	date, err := params.Date("date")
	if err != nil {
		return Tutorial{}, err
	}
	notes, err := params.RequiredString("notes")
	if err != nil {
		return Tutorial{}, err
	}
	t := Tutorial{
		StudentID:    view.StudentID,
		CourseID:     view.CourseID,
		TutorialDate: core.ToUnix(date),
		Notes:        notes,
		Location:     params.String("location"),
		SetBy:        view.Viewer.ID,
		CreatedAt:    core.ToUnix(core.NowFunc()),
	}
	q := p.deps.DB.Rebind(`INSERT INTO plugin_tutorials (student_id, course_id, tutorial_date, notes, location, set_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	err = p.deps.DB.QueryRowxContext(ctx, q, t.StudentID, t.CourseID, t.TutorialDate, t.Notes, t.Location, t.SetBy, t.CreatedAt).Scan(&t.ID)
	if err != nil {
		return Tutorial{}, errors.Wrap(err, "inserting tutorial")
	}
	return t, nil
}

func (p *Plugin) Cron(context.Context) error { return nil }

func (p *Plugin) Uninstall(ctx context.Context, exec core.DBExecutor) error {
	_, err := exec.ExecContext(ctx, "DROP TABLE IF EXISTS plugin_tutorials")
	return err
}

func (p *Plugin) AlertEvaluators() map[string]alert.Evaluator {
	return map[string]alert.Evaluator{alert.EventTutorialAdded: p.evaluateAdded}
}

// evaluateAdded matches every tutorial recorded since the subscription last triggered.
func (p *Plugin) evaluateAdded(ctx context.Context, sub alert.Subscription) ([]alert.Match, error) {
	q := "SELECT " + tutorialColumns + " FROM plugin_tutorials WHERE created_at > ?"
	args := []interface{}{core.ToUnix(sub.Since())}
	if sub.StudentID != 0 {
		q += " AND student_id = ?"
		args = append(args, sub.StudentID)
	}
	if sub.CourseID != 0 {
		q += " AND course_id = ?"
		args = append(args, sub.CourseID)
	}
	var tutorials []Tutorial
	if err := p.deps.DB.SelectContext(ctx, &tutorials, p.deps.DB.Rebind(q+" ORDER BY id"), args...); err != nil {
		return nil, errors.Wrap(err, "selecting new tutorials")
	}
	matches := make([]alert.Match, 0, len(tutorials))
	for _, t := range tutorials {
		matches = append(matches, alert.Match{
			StudentID: t.StudentID,
			Subject:   "New tutorial recorded",
			Content: fmt.Sprintf("A tutorial dated %s was recorded for student %d: %s",
				core.FromUnix(t.TutorialDate).Format(plugin.DateLayout), t.StudentID, t.Notes),
		})
	}
	return matches, nil
}
