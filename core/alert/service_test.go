package alert_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/alert"
	"github.com/cwarwicker/elbp/core/user"
	sqlxrepos "github.com/cwarwicker/elbp/storage/database/sqlx"
	testutil "github.com/cwarwicker/elbp/tests"
)

type fixture struct {
	svc     *alert.Service
	repo    alert.Repository
	mailer  *testutil.Mailer
	good    user.User
	bad     user.User
	conf    core.AlertsConfig
	usrRepo user.Repository
}

func setup(t *testing.T) fixture {
	db := testutil.PrepareDB(t)
	usrRepo := sqlxrepos.NewUserRepository(db)
	repo := sqlxrepos.NewAlertRepository(db)
	mailer := &testutil.Mailer{Fail: map[string]error{"bad@example.com": errors.New("mailbox unavailable")}}
	conf := core.NewTestConfig(t.TempDir()).Alerts

	return fixture{
		svc:     alert.NewService(repo, db, user.NewService(usrRepo), mailer, conf, &testutil.Logger{}),
		repo:    repo,
		mailer:  mailer,
		good:    testutil.CreateUser(t, usrRepo, "Good", "good", "good@example.com", "", []string{user.RoleTutor}, true),
		bad:     testutil.CreateUser(t, usrRepo, "Bad", "bad", "bad@example.com", "", []string{user.RoleTutor}, true),
		conf:    conf,
		usrRepo: usrRepo,
	}
}

func TestService_ProcessQueue(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	good1, err := f.svc.Queue(ctx, alert.QueueItem{RecipientID: f.good.ID, Event: alert.EventTutorialAdded, Subject: "s1"})
	require.NoError(t, err)
	bad, err := f.svc.Queue(ctx, alert.QueueItem{RecipientID: f.bad.ID, Event: alert.EventTutorialAdded, Subject: "s2"})
	require.NoError(t, err)
	good2, err := f.svc.Queue(ctx, alert.QueueItem{RecipientID: f.good.ID, Event: alert.EventTutorialAdded, Subject: "s3"})
	require.NoError(t, err)

	// batch of 2: the failing row does not stop the batch
	n, err := f.svc.ProcessQueue(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, f.mailer.Sent, 1)
	assert.Equal(t, "s1", f.mailer.Sent[0].Subject)

	// the failed row stays pending until it reaches max attempts
	for i := 1; i < f.conf.MaxAttempts; i++ {
		_, err = f.svc.ProcessQueue(ctx, 10)
		require.NoError(t, err)
	}

	items, _, err := f.repo.ListItems(ctx, "", core.Page{})
	require.NoError(t, err)
	byID := make(map[int64]alert.QueueItem)
	for _, it := range items {
		byID[it.ID] = it
	}
	assert.Equal(t, alert.StatusSent, byID[good1.ID].Status)
	assert.Equal(t, alert.StatusSent, byID[good2.ID].Status)
	assert.False(t, byID[good1.ID].SentAt.IsZero())
	assert.Equal(t, alert.StatusFailed, byID[bad.ID].Status)
	assert.Equal(t, f.conf.MaxAttempts, byID[bad.ID].Attempts)
	assert.Equal(t, "mailbox unavailable", byID[bad.ID].LastError)

	n, err = f.svc.ProcessQueue(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestService_GC(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	core.NowFunc = func() time.Time { return now }
	defer func() { core.NowFunc = func() time.Time { return time.Now().UTC() } }()

	retention := 30 * 24 * time.Hour
	ages := []time.Duration{40 * 24 * time.Hour, 31 * 24 * time.Hour, 29 * 24 * time.Hour, time.Hour}
	for _, age := range ages {
		_, err := f.svc.Queue(ctx, alert.QueueItem{RecipientID: f.good.ID, Event: alert.EventTutorialAdded, CreatedAt: now.Add(-age)})
		require.NoError(t, err)
	}

	removed, err := f.svc.GC(ctx, retention)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	items, total, err := f.repo.ListItems(ctx, "", core.Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	for _, it := range items {
		assert.True(t, it.CreatedAt.After(now.Add(-retention)))
	}
}

func TestService_ProcessAuto(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	validate := validator.New()

	var calls int
	f.svc.RegisterEvaluator(alert.EventTargetsOverdue, func(_ context.Context, sub alert.Subscription) ([]alert.Match, error) {
		calls++
		return []alert.Match{{StudentID: 9, Subject: "overdue", Content: "2 targets overdue"}}, nil
	})
	f.svc.RegisterEvaluator(alert.EventAttendanceBelow, func(context.Context, alert.Subscription) ([]alert.Match, error) {
		return nil, errors.New("boom")
	})

	_, err := f.svc.Subscribe(ctx, validate, f.good.ID, alert.NewSubscription{Event: alert.EventTargetsOverdue})
	require.NoError(t, err)
	_, err = f.svc.Subscribe(ctx, validate, f.good.ID, alert.NewSubscription{Event: alert.EventAttendanceBelow, Threshold: 80})
	require.NoError(t, err)
	_, err = f.svc.Subscribe(ctx, validate, f.good.ID, alert.NewSubscription{Event: "unknown"})
	assert.Error(t, err)

	queued, err := f.svc.ProcessAuto(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, queued)

	// within the cooldown nothing is evaluated again
	queued, err = f.svc.ProcessAuto(ctx)
	require.NoError(t, err)
	assert.Zero(t, queued)
	assert.Equal(t, 1, calls)

	items, _, err := f.repo.ListItems(ctx, alert.StatusPending, core.Page{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "overdue", items[0].Subject)
	assert.Equal(t, f.good.ID, items[0].RecipientID)
}
