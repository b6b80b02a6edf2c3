// Package attendance records per-period attendance and punctuality for a student.
package attendance

import (
	"context"
	"fmt"
	"math"

	"github.com/Jeffail/gabs/v2"
	"github.com/pkg/errors"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/alert"
	"github.com/cwarwicker/elbp/core/permission"
	"github.com/cwarwicker/elbp/core/plugin"
	"github.com/cwarwicker/elbp/core/setting"
)

const (
	Name = "attendance"

	KeyThreshold = "attendance_threshold"
)

type Record struct {
	ID         int64  `db:"id" json:"id"`
	StudentID  int64  `db:"student_id" json:"student_id"`
	CourseID   int64  `db:"course_id" json:"course_id"`
	Period     string `db:"period" json:"period"`
	Attended   int    `db:"attended" json:"attended"`
	Possible   int    `db:"possible" json:"possible"`
	Punctual   int    `db:"punctual" json:"punctual"`
	RecordedBy int64  `db:"recorded_by" json:"recorded_by"`
	CreatedAt  int64  `db:"created_at" json:"created_at"`
}

// Totals aggregates a student's records.
type Totals struct {
	StudentID int64 `db:"student_id"`
	Attended  int   `db:"attended"`
	Possible  int   `db:"possible"`
	Punctual  int   `db:"punctual"`
}

func percent(n, of int) float64 {
	if of == 0 {
		return 0
	}
	return math.Round(float64(n)*1000/float64(of)) / 10
}

func (t Totals) Attendance() float64  { return percent(t.Attended, t.Possible) }
func (t Totals) Punctuality() float64 { return percent(t.Punctual, t.Attended) }

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
func (p *Plugin) Title() string { return "Attendance & Punctuality" }
func (p *Plugin) Version() int  { return 2 }

func (p *Plugin) Migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version: 1,
			Up: func(ctx context.Context, exec core.DBExecutor) error {
				_, err := exec.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS plugin_attendance (
					id          %s,
					student_id  BIGINT NOT NULL,
					course_id   BIGINT NOT NULL DEFAULT 0,
					period      TEXT NOT NULL,
					attended    INTEGER NOT NULL DEFAULT 0,
					possible    INTEGER NOT NULL DEFAULT 0,
					recorded_by BIGINT NOT NULL DEFAULT 0,
					created_at  BIGINT NOT NULL,
					UNIQUE (student_id, course_id, period)
				)`, plugin.DialectOf(exec).PK()))
				return err
			},
			Down: func(ctx context.Context, exec core.DBExecutor) error {
				_, err := exec.ExecContext(ctx, "DROP TABLE plugin_attendance")
				return err
			},
		},
		{
			Version: 2,
			Up: func(ctx context.Context, exec core.DBExecutor) error {
				return plugin.DialectOf(exec).AddColumn(ctx, exec, "plugin_attendance", "punctual", "INTEGER NOT NULL DEFAULT 0")
			},
			Down: func(ctx context.Context, exec core.DBExecutor) error {
				_, err := exec.ExecContext(ctx, plugin.DialectOf(exec).DropColumn("plugin_attendance", "punctual"))
				return err
			},
		},
	}
}

func (p *Plugin) Settings() []setting.Definition {
	return []setting.Definition{{
		Key:     KeyThreshold,
		Kind:    setting.KindInt,
		Default: int64(85),
		Validate: func(v interface{}) error {
			if n := v.(int64); n < 0 || n > 100 {
				return errors.New("must be a percentage")
			}
			return nil
		},
	}}
}

func (p *Plugin) threshold(ctx context.Context) float64 {
	if p.deps.Settings == nil {
		return 85
	}
	n, err := p.deps.Settings.GetInt(ctx, KeyThreshold, setting.Scope{Plugin: Name})
	if err != nil {
		p.deps.Logger.Warn(fmt.Sprintf("reading %s: %v", KeyThreshold, err), err)
		return 85
	}
	return float64(n)
}

// totals sums the records of studentID (every student when 0), optionally restricted to a course.
func (p *Plugin) totals(ctx context.Context, studentID, courseID int64) ([]Totals, error) {
	q := `SELECT student_id, COALESCE(SUM(attended), 0) AS attended, COALESCE(SUM(possible), 0) AS possible,
		COALESCE(SUM(punctual), 0) AS punctual FROM plugin_attendance WHERE 1 = 1`
	var args []interface{}
	if studentID != 0 {
		q += " AND student_id = ?"
		args = append(args, studentID)
	}
	if courseID != 0 {
		q += " AND course_id = ?"
		args = append(args, courseID)
	}
	var totals []Totals
	if err := p.deps.DB.SelectContext(ctx, &totals, p.deps.DB.Rebind(q+" GROUP BY student_id ORDER BY student_id"), args...); err != nil {
		return nil, errors.Wrap(err, "summing attendance")
	}
	return totals, nil
}

func (p *Plugin) Summary(ctx context.Context, view plugin.View) (map[string]interface{}, error) {
	totals, err := p.totals(ctx, view.StudentID, view.CourseID)
	if err != nil {
		return nil, err
	}
	t := Totals{StudentID: view.StudentID}
	if len(totals) > 0 {
		t = totals[0]
	}
	threshold := p.threshold(ctx)
	return map[string]interface{}{
		"attendance":   t.Attendance(),
		"punctuality":  t.Punctuality(),
		"possible":     t.Possible,
		"threshold":    threshold,
		"below_target": t.Possible > 0 && t.Attendance() < threshold,
	}, nil
}

func (p *Plugin) Ajax(ctx context.Context, view plugin.View, action string, raw *gabs.Container) (interface{}, error) {
	params := plugin.NewParams(Name, raw)
	switch action {
	case "list":
		return p.list(ctx, view)
	case "record":
		if err := view.Require(Name, permission.CapAddRecords); err != nil {
			return nil, err
		}
		return p.record(ctx, view, params)
	case "delete":
		if err := view.Require(Name, permission.CapDeleteRecords); err != nil {
			return nil, err
		}
		id, err := params.Int64("id")
		if err != nil {
			return nil, err
		}
		if err = p.delete(ctx, view.StudentID, id); err != nil {
			return nil, err
		}
		return map[string]interface{}{"deleted": id}, nil
	}
	return nil, plugin.UnknownAction(Name, action)
}

func (p *Plugin) list(ctx context.Context, view plugin.View) ([]Record, error) {
	q := "SELECT id, student_id, course_id, period, attended, possible, punctual, recorded_by, created_at FROM plugin_attendance WHERE student_id = ?"
	args := []interface{}{view.StudentID}
	if view.CourseID != 0 {
		q += " AND course_id = ?"
		args = append(args, view.CourseID)
	}
	records := make([]Record, 0)
	if err := p.deps.DB.SelectContext(ctx, &records, p.deps.DB.Rebind(q+" ORDER BY period DESC, id DESC"), args...); err != nil {
		return nil, errors.Wrap(err, "selecting attendance")
	}
	return records, nil
}

func (p *Plugin) record(ctx context.Context, view plugin.View, params plugin.Params) (Record, error) {
	period, err := params.RequiredString("period")
	if err != nil {
		return Record{}, err
	}
	attended, err := params.Int64("attended")
	if err != nil {
		return Record{}, err
	}
	possible, err := params.Int64("possible")
	if err != nil {
		return Record{}, err
	}
	punctual, err := params.OptionalInt64("punctual", attended)
	if err != nil {
		return Record{}, err
	}
	if possible < 0 || attended < 0 || attended > possible || punctual < 0 || punctual > attended {
		return Record{}, core.NewPluginError(Name, "attended must be between 0 and possible, punctual between 0 and attended")
	}

	rec := Record{
		StudentID:  view.StudentID,
		CourseID:   view.CourseID,
		Period:     period,
		Attended:   int(attended),
		Possible:   int(possible),
		Punctual:   int(punctual),
		RecordedBy: view.Viewer.ID,
		CreatedAt:  core.ToUnix(core.NowFunc()),
	}
	q := p.deps.DB.Rebind(`INSERT INTO plugin_attendance (student_id, course_id, period, attended, possible, punctual, recorded_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (student_id, course_id, period) DO UPDATE SET attended = excluded.attended, possible = excluded.possible,
		punctual = excluded.punctual, recorded_by = excluded.recorded_by
		RETURNING id`)
	err = p.deps.DB.QueryRowxContext(ctx, q, rec.StudentID, rec.CourseID, rec.Period, rec.Attended, rec.Possible,
		rec.Punctual, rec.RecordedBy, rec.CreatedAt).Scan(&rec.ID)
	if err != nil {
		return Record{}, errors.Wrap(err, "recording attendance")
	}
	return rec, nil
}

func (p *Plugin) delete(ctx context.Context, studentID, id int64) error {
	res, err := p.deps.DB.ExecContext(ctx, p.deps.DB.Rebind("DELETE FROM plugin_attendance WHERE id = ? AND student_id = ?"), id, studentID)
	if err != nil {
		return errors.Wrap(err, "deleting attendance")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NewPluginError(Name, "record not found")
	}
	return nil
}

func (p *Plugin) Cron(context.Context) error { return nil }

func (p *Plugin) Uninstall(ctx context.Context, exec core.DBExecutor) error {
	_, err := exec.ExecContext(ctx, "DROP TABLE IF EXISTS plugin_attendance")
	return err
}

func (p *Plugin) AlertEvaluators() map[string]alert.Evaluator {
	return map[string]alert.Evaluator{alert.EventAttendanceBelow: p.evaluateBelow}
}

// evaluateBelow matches students whose attendance is below the subscription threshold (or the plugin setting).
func (p *Plugin) evaluateBelow(ctx context.Context, sub alert.Subscription) ([]alert.Match, error) {
	threshold := sub.Threshold
	if threshold <= 0 {
		threshold = p.threshold(ctx)
	}
	totals, err := p.totals(ctx, sub.StudentID, sub.CourseID)
	if err != nil {
		return nil, err
	}
	var matches []alert.Match
	for _, t := range totals {
		if t.Possible == 0 || t.Attendance() >= threshold {
			continue
		}
		matches = append(matches, alert.Match{
			StudentID: t.StudentID,
			Subject:   "Attendance below target",
			Content:   fmt.Sprintf("Student %d attendance is %.1f%%, below the %.0f%% target.", t.StudentID, t.Attendance(), threshold),
		})
	}
	return matches, nil
}
