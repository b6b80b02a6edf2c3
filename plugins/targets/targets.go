// Package targets tracks the targets set for a student and their progress.
package targets

import (
	"context"
	"fmt"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/pkg/errors"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/alert"
	"github.com/cwarwicker/elbp/core/permission"
	"github.com/cwarwicker/elbp/core/plugin"
	"github.com/cwarwicker/elbp/core/setting"
)

const (
	Name = "targets"

	KeyGraceDays = "targets_overdue_grace_days"
)

// Target statuses
const (
	StatusOpen      = "open"
	StatusAchieved  = "achieved"
	StatusWithdrawn = "withdrawn"
)

var statuses = map[string]bool{StatusOpen: true, StatusAchieved: true, StatusWithdrawn: true}

type Target struct {
	ID          int64  `db:"id" json:"id"`
	StudentID   int64  `db:"student_id" json:"student_id"`
	CourseID    int64  `db:"course_id" json:"course_id"`
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description"`
	Status      string `db:"status" json:"status"`
	Deadline    int64  `db:"deadline" json:"deadline"`
	SetBy       int64  `db:"set_by" json:"set_by"`
	CreatedAt   int64  `db:"created_at" json:"created_at"`
	UpdatedAt   int64  `db:"updated_at" json:"updated_at"`
}

const targetColumns = "id, student_id, course_id, name, description, status, deadline, set_by, created_at, updated_at"

type Plugin struct {
	deps plugin.Deps
}

var (
	_ plugin.Plugin           = (*Plugin)(nil)
	_ plugin.SettingsDeclarer = (*Plugin)(nil)
	_ plugin.AlertSource      = (*Plugin)(nil)
)

func New(deps plugin.Deps) plugin.Plugin {
	return &Plugin{deps: deps}
}

func (p *Plugin) Name() string  { return Name }
func (p *Plugin) Title() string { return "Targets" }
func (p *Plugin) Version() int  { return 1 }

func (p *Plugin) Migrations() []plugin.Migration {
	return []plugin.Migration{{
		Version: 1,
		Up: func(ctx context.Context, exec core.DBExecutor) error {
			_, err := exec.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS plugin_targets (
				id          %s,
				student_id  BIGINT NOT NULL,
				course_id   BIGINT NOT NULL DEFAULT 0,
				name        TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				status      TEXT NOT NULL DEFAULT 'open',
				deadline    BIGINT NOT NULL DEFAULT 0,
				set_by      BIGINT NOT NULL DEFAULT 0,
				created_at  BIGINT NOT NULL,
				updated_at  BIGINT NOT NULL
			)`, plugin.DialectOf(exec).PK()))
			if err != nil {
				return err
			}
			_, err = exec.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS plugin_targets_student_idx ON plugin_targets (student_id, status)")
			return err
		},
		Down: func(ctx context.Context, exec core.DBExecutor) error {
			_, err := exec.ExecContext(ctx, "DROP TABLE plugin_targets")
			return err
		},
	}}
}

func (p *Plugin) Settings() []setting.Definition {
	return []setting.Definition{{Key: KeyGraceDays, Kind: setting.KindInt, Default: int64(0)}}
}

// overdueCutoff is the deadline open targets must be before to count as overdue.
func (p *Plugin) overdueCutoff(ctx context.Context) time.Time {
	now := core.NowFunc()
	if p.deps.Settings == nil {
		return now
	}
	days, err := p.deps.Settings.GetInt(ctx, KeyGraceDays, setting.Scope{Plugin: Name})
	if err != nil {
		p.deps.Logger.Warn(fmt.Sprintf("reading %s: %v", KeyGraceDays, err), err)
		return now
	}
	return now.AddDate(0, 0, -int(days))
}

func (p *Plugin) Summary(ctx context.Context, view plugin.View) (map[string]interface{}, error) {
	var counts []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	q := "SELECT status, COUNT(*) AS count FROM plugin_targets WHERE student_id = ?"
	args := []interface{}{view.StudentID}
	if view.CourseID != 0 {
		q += " AND course_id = ?"
		args = append(args, view.CourseID)
	}
	if err := p.deps.DB.SelectContext(ctx, &counts, p.deps.DB.Rebind(q+" GROUP BY status"), args...); err != nil {
		return nil, errors.Wrap(err, "counting targets")
	}

	summary := map[string]interface{}{StatusOpen: 0, StatusAchieved: 0, StatusWithdrawn: 0}
	total := 0
	for _, c := range counts {
		summary[c.Status] = c.Count
		total += c.Count
	}
	summary["total"] = total

	overdue, err := p.overdue(ctx, view.StudentID, view.CourseID)
	if err != nil {
		return nil, err
	}
	summary["overdue"] = len(overdue)
	return summary, nil
}

func (p *Plugin) Ajax(ctx context.Context, view plugin.View, action string, raw *gabs.Container) (interface{}, error) {
	params := plugin.NewParams(Name, raw)
	switch action {
	case "list":
		return p.list(ctx, view, params.String("status"))
	case "add":
		if err := view.Require(Name, permission.CapAddRecords); err != nil {
			return nil, err
		}
		return p.add(ctx, view, params)
	case "set_status":
		if err := view.Require(Name, permission.CapEditRecords); err != nil {
			return nil, err
		}
		return p.setStatus(ctx, view, params)
	case "delete":
		if err := view.Require(Name, permission.CapDeleteRecords); err != nil {
			return nil, err
		}
		id, err := params.Int64("id")
		if err != nil {
			return nil, err
		}
		if err = p.exec(ctx, "DELETE FROM plugin_targets WHERE id = ? AND student_id = ?", id, view.StudentID); err != nil {
			return nil, err
		}
		return map[string]interface{}{"deleted": id}, nil
	}
	return nil, plugin.UnknownAction(Name, action)
}

func (p *Plugin) list(ctx context.Context, view plugin.View, status string) ([]Target, error) {
	q := "SELECT " + targetColumns + " FROM plugin_targets WHERE student_id = ?"
	args := []interface{}{view.StudentID}
	if view.CourseID != 0 {
		q += " AND course_id = ?"
		args = append(args, view.CourseID)
	}
	if status != "" {
		q += " AND status = ?"
		args = append(args, status)
	}
	targets := make([]Target, 0)
	if err := p.deps.DB.SelectContext(ctx, &targets, p.deps.DB.Rebind(q+" ORDER BY deadline ASC, id ASC"), args...); err != nil {
		return nil, errors.Wrap(err, "selecting targets")
	}
	return targets, nil
}

func (p *Plugin) add(ctx context.Context, view plugin.View, params plugin.Params) (Target, error) {
	name, err := params.RequiredString("name")
	if err != nil {
		return Target{}, err
	}
	deadline, err := params.Date("deadline")
	if err != nil {
		return Target{}, err
	}
	now := core.ToUnix(core.NowFunc())
	t := Target{
		StudentID:   view.StudentID,
		CourseID:    view.CourseID,
		Name:        name,
		Description: params.String("description"),
		Status:      StatusOpen,
		Deadline:    core.ToUnix(deadline),
		SetBy:       view.Viewer.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	q := p.deps.DB.Rebind(`INSERT INTO plugin_targets (student_id, course_id, name, description, status, deadline, set_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	err = p.deps.DB.QueryRowxContext(ctx, q, t.StudentID, t.CourseID, t.Name, t.Description, t.Status, t.Deadline,
		t.SetBy, t.CreatedAt, t.UpdatedAt).Scan(&t.ID)
	if err != nil {
		return Target{}, errors.Wrap(err, "inserting target")
	}
	return t, nil
}

func (p *Plugin) setStatus(ctx context.Context, view plugin.View, params plugin.Params) (map[string]interface{}, error) {
	id, err := params.Int64("id")
	if err != nil {
		return nil, err
	}
	status, err := params.RequiredString("status")
	if err != nil {
		return nil, err
	}
	if !statuses[status] {
		return nil, core.NewPluginError(Name, fmt.Sprintf("unknown status %q", status))
	}
	err = p.exec(ctx, "UPDATE plugin_targets SET status = ?, updated_at = ? WHERE id = ? AND student_id = ?",
		status, core.ToUnix(core.NowFunc()), id, view.StudentID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"id": id, "status": status}, nil
}

// exec runs a statement that must touch exactly one of the student's targets.
func (p *Plugin) exec(ctx context.Context, q string, args ...interface{}) error {
	res, err := p.deps.DB.ExecContext(ctx, p.deps.DB.Rebind(q), args...)
	if err != nil {
		return errors.Wrap(err, "updating targets")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NewPluginError(Name, "target not found")
	}
	return nil
}

// overdue returns the open targets past their deadline, for studentID (all students when 0).
func (p *Plugin) overdue(ctx context.Context, studentID, courseID int64) ([]Target, error) {
	q := "SELECT " + targetColumns + " FROM plugin_targets WHERE status = ? AND deadline > 0 AND deadline < ?"
	args := []interface{}{StatusOpen, core.ToUnix(p.overdueCutoff(ctx))}
	if studentID != 0 {
		q += " AND student_id = ?"
		args = append(args, studentID)
	}
	if courseID != 0 {
		q += " AND course_id = ?"
		args = append(args, courseID)
	}
	var targets []Target
	if err := p.deps.DB.SelectContext(ctx, &targets, p.deps.DB.Rebind(q+" ORDER BY student_id, deadline"), args...); err != nil {
		return nil, errors.Wrap(err, "selecting overdue targets")
	}
	return targets, nil
}

func (p *Plugin) Cron(context.Context) error { return nil }

func (p *Plugin) Uninstall(ctx context.Context, exec core.DBExecutor) error {
	_, err := exec.ExecContext(ctx, "DROP TABLE IF EXISTS plugin_targets")
	return err
}

func (p *Plugin) AlertEvaluators() map[string]alert.Evaluator {
	return map[string]alert.Evaluator{alert.EventTargetsOverdue: p.evaluateOverdue}
}

// evaluateOverdue sends one match per student with at least max(threshold, 1) overdue targets.
func (p *Plugin) evaluateOverdue(ctx context.Context, sub alert.Subscription) ([]alert.Match, error) {
	targets, err := p.overdue(ctx, sub.StudentID, sub.CourseID)
	if err != nil {
		return nil, err
	}
	perStudent := make(map[int64]int)
	var order []int64
	for _, t := range targets {
		if perStudent[t.StudentID] == 0 {
			order = append(order, t.StudentID)
		}
		perStudent[t.StudentID]++
	}

	min := int(sub.Threshold)
	if min < 1 {
		min = 1
	}
	var matches []alert.Match
	for _, studentID := range order {
		if n := perStudent[studentID]; n >= min {
			matches = append(matches, alert.Match{
				StudentID: studentID,
				Subject:   "Overdue targets",
				Content:   fmt.Sprintf("Student %d has %d overdue target(s).", studentID, n),
			})
		}
	}
	return matches, nil
}
