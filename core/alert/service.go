package alert

import (
	"context"
	"fmt"
	"net/mail"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/user"
)

var (
	ErrNotFound     = errors.Wrap(core.ErrNotFound, "alert subscription")
	ErrUnknownEvent = errors.New("unknown alert event")
	errNoEmail      = errors.New("recipient has no email address")
)

type (
	Repository interface {
		CreateSubscription(ctx context.Context, sub Subscription, exec ...core.DBExecutor) (Subscription, error)
		GetSubscription(ctx context.Context, id int64, exec ...core.DBExecutor) (Subscription, error)
		// ListSubscriptions lists recipientID's subscriptions, or every subscription when recipientID is 0.
		ListSubscriptions(ctx context.Context, recipientID int64, enabledOnly bool, exec ...core.DBExecutor) ([]Subscription, error)
		UpdateSubscription(ctx context.Context, sub Subscription, exec ...core.DBExecutor) (Subscription, error)
		DeleteSubscription(ctx context.Context, id int64, exec ...core.DBExecutor) error
		SetLastTriggered(ctx context.Context, id int64, at time.Time, exec ...core.DBExecutor) error

		EnqueueItem(ctx context.Context, item QueueItem, exec ...core.DBExecutor) (QueueItem, error)
		// PendingItems returns up to n pending rows in insertion order.
		PendingItems(ctx context.Context, n int, exec ...core.DBExecutor) ([]QueueItem, error)
		ListItems(ctx context.Context, status string, page core.Page, exec ...core.DBExecutor) ([]QueueItem, int, error)
		MarkSent(ctx context.Context, id int64, at time.Time, exec ...core.DBExecutor) error
		MarkAttemptFailed(ctx context.Context, id int64, attempts int, status, lastErr string, exec ...core.DBExecutor) error
		// DeleteItemsCreatedBefore removes rows created strictly before cutoff (unix seconds).
		DeleteItemsCreatedBefore(ctx context.Context, cutoff int64, exec ...core.DBExecutor) (int, error)
	}

	// Recipients resolves the users alerts are delivered to.
	Recipients interface {
		GetByID(ctx context.Context, id int64) (user.User, error)
	}

	Service struct {
		repo       Repository
		db         core.DB
		recipients Recipients
		mailer     core.EmailService
		conf       core.AlertsConfig
		logger     core.Logger

		mu         sync.RWMutex
		evaluators map[string]Evaluator
	}
)

func NewService(repo Repository, db core.DB, recipients Recipients, mailer core.EmailService, conf core.AlertsConfig, logger core.Logger) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(db, "db"),
		vala.IsNotNil(recipients, "recipients"),
		vala.IsNotNil(mailer, "mailer"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()
	return &Service{
		repo:       repo,
		db:         db,
		recipients: recipients,
		mailer:     mailer,
		conf:       conf,
		logger:     logger,
		evaluators: make(map[string]Evaluator),
	}
}

// RegisterEvaluator sets the evaluator of event, replacing any previous one.
func (svc *Service) RegisterEvaluator(event string, ev Evaluator) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.evaluators[event] = ev
}

func (svc *Service) evaluator(event string) (Evaluator, bool) {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	ev, ok := svc.evaluators[event]
	return ev, ok
}

// Events lists the events an evaluator is registered for.
func (svc *Service) Events() []string {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	events := make([]string, 0, len(svc.evaluators))
	for e := range svc.evaluators {
		events = append(events, e)
	}
	sort.Strings(events)
	return events
}

func (svc *Service) validate(validate *validator.Validate, ns NewSubscription) error {
	if err := validate.Struct(ns); err != nil {
		return err
	}
	if _, ok := svc.evaluator(ns.Event); !ok {
		return core.NewValidationError(ErrUnknownEvent, core.FieldError{Field: "event", Error: ErrUnknownEvent.Error()})
	}
	return nil
}

func (svc *Service) Subscribe(ctx context.Context, validate *validator.Validate, recipientID int64, ns NewSubscription) (Subscription, error) {
	if err := svc.validate(validate, ns); err != nil {
		return Subscription{}, err
	}
	sub := Subscription{
		RecipientID: recipientID,
		Event:       ns.Event,
		StudentID:   ns.StudentID,
		CourseID:    ns.CourseID,
		Threshold:   ns.Threshold,
		Enabled:     ns.Enabled == nil || *ns.Enabled,
		CreatedAt:   core.NowFunc(),
	}
	return svc.repo.CreateSubscription(ctx, sub)
}

func (svc *Service) UpdateSubscription(ctx context.Context, validate *validator.Validate, sub Subscription, ns NewSubscription) (Subscription, error) {
	if err := svc.validate(validate, ns); err != nil {
		return Subscription{}, err
	}
	sub.Event = ns.Event
	sub.StudentID = ns.StudentID
	sub.CourseID = ns.CourseID
	sub.Threshold = ns.Threshold
	if ns.Enabled != nil {
		sub.Enabled = *ns.Enabled
	}
	return svc.repo.UpdateSubscription(ctx, sub)
}

func (svc *Service) GetSubscription(ctx context.Context, id int64) (Subscription, error) {
	return svc.repo.GetSubscription(ctx, id)
}

func (svc *Service) Subscriptions(ctx context.Context, recipientID int64) ([]Subscription, error) {
	return svc.repo.ListSubscriptions(ctx, recipientID, false)
}

func (svc *Service) DeleteSubscription(ctx context.Context, id int64) error {
	return svc.repo.DeleteSubscription(ctx, id)
}

// Queue adds a pending alert.
func (svc *Service) Queue(ctx context.Context, item QueueItem, exec ...core.DBExecutor) (QueueItem, error) {
	if item.RecipientID == 0 || item.Event == "" {
		return QueueItem{}, errors.New("queue item needs a recipient and an event")
	}
	item.Status = StatusPending
	item.Attempts = 0
	item.LastError = ""
	item.SentAt = time.Time{}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = core.NowFunc()
	}
	return svc.repo.EnqueueItem(ctx, item, exec...)
}

func (svc *Service) Items(ctx context.Context, status string, page core.Page) (core.Paginated, error) {
	items, total, err := svc.repo.ListItems(ctx, status, page.Clean())
	if err != nil {
		return core.Paginated{}, err
	}
	return core.NewPaginated(items, page, total), nil
}

// ProcessAuto evaluates the enabled subscriptions and queues an alert for every match.
// A subscription triggered less than the configured cooldown ago is skipped.
func (svc *Service) ProcessAuto(ctx context.Context) (int, error) {
	subs, err := svc.repo.ListSubscriptions(ctx, 0, true)
	if err != nil {
		return 0, err
	}

	now := core.NowFunc()
	var queued int
	for _, sub := range subs {
		ev, ok := svc.evaluator(sub.Event)
		if !ok {
			continue
		}
		if !sub.LastTriggered.IsZero() && now.Sub(sub.LastTriggered) < svc.conf.Cooldown {
			continue
		}

		matches, err := ev(ctx, sub)
		if err != nil {
			svc.logger.Error(fmt.Sprintf("evaluating alert subscription %d (%s): %v", sub.ID, sub.Event, err), err)
			continue
		}
		if len(matches) == 0 {
			continue
		}

		err = core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
			for _, m := range matches {
				item := QueueItem{
					SubscriptionID: sub.ID,
					RecipientID:    sub.RecipientID,
					Event:          sub.Event,
					Subject:        m.Subject,
					Content:        m.Content,
					CreatedAt:      now,
				}
				if _, err := svc.Queue(ctx, item, tx); err != nil {
					return err
				}
			}
			return svc.repo.SetLastTriggered(ctx, sub.ID, now, tx)
		})
		if err != nil {
			svc.logger.Error(fmt.Sprintf("queueing alerts of subscription %d: %v", sub.ID, err), err)
			continue
		}
		queued += len(matches)
	}
	return queued, nil
}

// ProcessQueue sends up to n pending alerts, oldest first, and returns how many rows were processed.
// A failed delivery stays pending until it reaches the configured max attempts, then becomes failed.
func (svc *Service) ProcessQueue(ctx context.Context, n int) (int, error) {
	if n <= 0 {
		n = svc.conf.BatchSize
	}
	items, err := svc.repo.PendingItems(ctx, n)
	if err != nil {
		return 0, err
	}

	var processed int
	for _, item := range items {
		if err = ctx.Err(); err != nil {
			return processed, err
		}

		if sendErr := svc.send(ctx, item); sendErr != nil {
			attempts := item.Attempts + 1
			status := StatusPending
			if attempts >= svc.conf.MaxAttempts {
				status = StatusFailed
			}
			svc.logger.Warn(fmt.Sprintf("sending alert %d (attempt %d): %v", item.ID, attempts, sendErr), sendErr)
			if err = svc.repo.MarkAttemptFailed(ctx, item.ID, attempts, status, sendErr.Error()); err != nil {
				svc.logger.Error(fmt.Sprintf("recording alert %d failure: %v", item.ID, err), err)
				continue
			}
		} else if err = svc.repo.MarkSent(ctx, item.ID, core.NowFunc()); err != nil {
			svc.logger.Error(fmt.Sprintf("marking alert %d sent: %v", item.ID, err), err)
			continue
		}
		processed++
	}
	return processed, nil
}

func (svc *Service) send(ctx context.Context, item QueueItem) error {
	recipient, err := svc.recipients.GetByID(ctx, item.RecipientID)
	if err != nil {
		return errors.Wrap(err, "resolving recipient")
	}
	if recipient.Email == "" {
		return errNoEmail
	}
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: recipient.Name, Address: recipient.Email}},
		Subject:      item.Subject,
		TemplateName: "alert",
		TemplateData: map[string]interface{}{
			"Name":    recipient.Name,
			"Event":   item.Event,
			"Content": item.Content,
		},
	}
	return svc.mailer.SendMessage(msg)
}

// GC deletes queue rows created before now - retention and returns how many were removed.
func (svc *Service) GC(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		retention = svc.conf.Retention
	}
	cutoff := core.NowFunc().Add(-retention)
	return svc.repo.DeleteItemsCreatedBefore(ctx, core.ToUnix(cutoff))
}
