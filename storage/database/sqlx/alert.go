package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/alert"
)

const (
	subscriptionColumns = "id, recipient_id, event, student_id, course_id, threshold, enabled, last_triggered, created_at"
	queueColumns        = "id, subscription_id, recipient_id, event, subject, content, status, attempts, last_error, created_at, sent_at"
)

type subscriptionRow struct {
	ID            int64         `db:"id"`
	RecipientID   int64         `db:"recipient_id"`
	Event         string        `db:"event"`
	StudentID     int64         `db:"student_id"`
	CourseID      int64         `db:"course_id"`
	Threshold     float64       `db:"threshold"`
	Enabled       bool          `db:"enabled"`
	LastTriggered sql.NullInt64 `db:"last_triggered"`
	CreatedAt     int64         `db:"created_at"`
}

func (row subscriptionRow) subscription() alert.Subscription {
	return alert.Subscription{
		ID:            row.ID,
		RecipientID:   row.RecipientID,
		Event:         row.Event,
		StudentID:     row.StudentID,
		CourseID:      row.CourseID,
		Threshold:     row.Threshold,
		Enabled:       row.Enabled,
		LastTriggered: core.FromUnix(nullUnix(row.LastTriggered)),
		CreatedAt:     core.FromUnix(row.CreatedAt),
	}
}

type queueRow struct {
	ID             int64         `db:"id"`
	SubscriptionID int64         `db:"subscription_id"`
	RecipientID    int64         `db:"recipient_id"`
	Event          string        `db:"event"`
	Subject        string        `db:"subject"`
	Content        string        `db:"content"`
	Status         string        `db:"status"`
	Attempts       int           `db:"attempts"`
	LastError      string        `db:"last_error"`
	CreatedAt      int64         `db:"created_at"`
	SentAt         sql.NullInt64 `db:"sent_at"`
}

func (row queueRow) item() alert.QueueItem {
	return alert.QueueItem{
		ID:             row.ID,
		SubscriptionID: row.SubscriptionID,
		RecipientID:    row.RecipientID,
		Event:          row.Event,
		Subject:        row.Subject,
		Content:        row.Content,
		Status:         row.Status,
		Attempts:       row.Attempts,
		LastError:      row.LastError,
		CreatedAt:      core.FromUnix(row.CreatedAt),
		SentAt:         core.FromUnix(nullUnix(row.SentAt)),
	}
}

func queueItems(rows []queueRow) []alert.QueueItem {
	items := make([]alert.QueueItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.item())
	}
	return items
}

func nullableUnix(t time.Time) sql.NullInt64 {
	return sql.NullInt64{Int64: core.ToUnix(t), Valid: !t.IsZero()}
}

type alertRepository struct {
	baseRepo
}

var _ alert.Repository = (*alertRepository)(nil) // interface compliance check

func NewAlertRepository(db core.DB) *alertRepository {
	return &alertRepository{baseRepo{db: db}}
}

func (repo alertRepository) CreateSubscription(ctx context.Context, sub alert.Subscription, exec ...core.DBExecutor) (alert.Subscription, error) {
	id, err := insert(ctx, repo.getExec(exec),
		`INSERT INTO alert_subscriptions (recipient_id, event, student_id, course_id, threshold, enabled, last_triggered, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.RecipientID, sub.Event, sub.StudentID, sub.CourseID, sub.Threshold, sub.Enabled,
		nullableUnix(sub.LastTriggered), core.ToUnix(sub.CreatedAt))
	if err != nil {
		return alert.Subscription{}, errors.Wrap(err, "inserting alert subscription")
	}
	sub.ID = id
	return sub, nil
}

func (repo alertRepository) GetSubscription(ctx context.Context, id int64, exec ...core.DBExecutor) (alert.Subscription, error) {
	db := repo.getExec(exec)
	var row subscriptionRow
	q := db.Rebind("SELECT " + subscriptionColumns + " FROM alert_subscriptions WHERE id = ?")
	if err := db.GetContext(ctx, &row, q, id); err != nil {
		return alert.Subscription{}, trapNoRowsErr(err, alert.ErrNotFound, "selecting alert subscription")
	}
	return row.subscription(), nil
}

func (repo alertRepository) ListSubscriptions(ctx context.Context, recipientID int64, enabledOnly bool, exec ...core.DBExecutor) ([]alert.Subscription, error) {
	db := repo.getExec(exec)
	q := "SELECT " + subscriptionColumns + " FROM alert_subscriptions WHERE 1 = 1"
	var args []interface{}
	if recipientID != 0 {
		q += " AND recipient_id = ?"
		args = append(args, recipientID)
	}
	if enabledOnly {
		q += " AND enabled = ?"
		args = append(args, true)
	}
	var rows []subscriptionRow
	if err := db.SelectContext(ctx, &rows, db.Rebind(q+" ORDER BY id"), args...); err != nil {
		return nil, errors.Wrap(err, "selecting alert subscriptions")
	}
	subs := make([]alert.Subscription, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, row.subscription())
	}
	return subs, nil
}

func (repo alertRepository) UpdateSubscription(ctx context.Context, sub alert.Subscription, exec ...core.DBExecutor) (alert.Subscription, error) {
	n, err := execAffected(ctx, repo.getExec(exec),
		`UPDATE alert_subscriptions SET event = ?, student_id = ?, course_id = ?, threshold = ?, enabled = ?, last_triggered = ?
		WHERE id = ?`,
		sub.Event, sub.StudentID, sub.CourseID, sub.Threshold, sub.Enabled, nullableUnix(sub.LastTriggered), sub.ID)
	if err != nil {
		return alert.Subscription{}, errors.Wrap(err, "updating alert subscription")
	}
	if n == 0 {
		return alert.Subscription{}, alert.ErrNotFound
	}
	return sub, nil
}

func (repo alertRepository) DeleteSubscription(ctx context.Context, id int64, exec ...core.DBExecutor) error {
	n, err := execAffected(ctx, repo.getExec(exec), "DELETE FROM alert_subscriptions WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "deleting alert subscription")
	}
	if n == 0 {
		return alert.ErrNotFound
	}
	return nil
}

func (repo alertRepository) SetLastTriggered(ctx context.Context, id int64, at time.Time, exec ...core.DBExecutor) error {
	_, err := execAffected(ctx, repo.getExec(exec),
		"UPDATE alert_subscriptions SET last_triggered = ? WHERE id = ?", core.ToUnix(at), id)
	return errors.Wrap(err, "updating alert subscription")
}

func (repo alertRepository) EnqueueItem(ctx context.Context, item alert.QueueItem, exec ...core.DBExecutor) (alert.QueueItem, error) {
	id, err := insert(ctx, repo.getExec(exec),
		`INSERT INTO alert_queue (subscription_id, recipient_id, event, subject, content, status, attempts, last_error, created_at, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.SubscriptionID, item.RecipientID, item.Event, item.Subject, item.Content, item.Status, item.Attempts,
		item.LastError, core.ToUnix(item.CreatedAt), nullableUnix(item.SentAt))
	if err != nil {
		return alert.QueueItem{}, errors.Wrap(err, "inserting alert")
	}
	item.ID = id
	return item, nil
}

func (repo alertRepository) PendingItems(ctx context.Context, n int, exec ...core.DBExecutor) ([]alert.QueueItem, error) {
	db := repo.getExec(exec)
	var rows []queueRow
	q := db.Rebind("SELECT " + queueColumns + " FROM alert_queue WHERE status = ? ORDER BY id ASC LIMIT ?")
	if err := db.SelectContext(ctx, &rows, q, alert.StatusPending, n); err != nil {
		return nil, errors.Wrap(err, "selecting pending alerts")
	}
	return queueItems(rows), nil
}

func (repo alertRepository) ListItems(ctx context.Context, status string, page core.Page, exec ...core.DBExecutor) ([]alert.QueueItem, int, error) {
	db := repo.getExec(exec)
	where := ""
	var args []interface{}
	if status != "" {
		where = " WHERE status = ?"
		args = append(args, status)
	}
	var total int
	if err := db.GetContext(ctx, &total, db.Rebind("SELECT COUNT(*) FROM alert_queue"+where), args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting alerts")
	}
	var rows []queueRow
	q := db.Rebind("SELECT " + queueColumns + " FROM alert_queue" + where + " ORDER BY id DESC LIMIT ? OFFSET ?")
	if err := db.SelectContext(ctx, &rows, q, append(args, page.Limit(), page.Offset())...); err != nil {
		return nil, 0, errors.Wrap(err, "selecting alerts")
	}
	return queueItems(rows), total, nil
}

func (repo alertRepository) MarkSent(ctx context.Context, id int64, at time.Time, exec ...core.DBExecutor) error {
	_, err := execAffected(ctx, repo.getExec(exec),
		"UPDATE alert_queue SET status = ?, sent_at = ?, last_error = '' WHERE id = ?", alert.StatusSent, core.ToUnix(at), id)
	return errors.Wrap(err, "marking alert sent")
}

func (repo alertRepository) MarkAttemptFailed(ctx context.Context, id int64, attempts int, status, lastErr string, exec ...core.DBExecutor) error {
	_, err := execAffected(ctx, repo.getExec(exec),
		"UPDATE alert_queue SET attempts = ?, status = ?, last_error = ? WHERE id = ?", attempts, status, lastErr, id)
	return errors.Wrap(err, "recording alert attempt")
}

func (repo alertRepository) DeleteItemsCreatedBefore(ctx context.Context, cutoff int64, exec ...core.DBExecutor) (int, error) {
	n, err := execAffected(ctx, repo.getExec(exec), "DELETE FROM alert_queue WHERE created_at < ?", cutoff)
	return n, errors.Wrap(err, "deleting old alerts")
}
