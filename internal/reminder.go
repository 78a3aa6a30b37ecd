package internal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultReminderTitle is used when no notification title is configured.
const DefaultReminderTitle = "Subscription renewal"

// ReminderScheduler keeps at most one pending notification per subscription id.
// All operations are serialized so that a global cancel can never interleave
// with a half-finished reschedule.
type ReminderScheduler struct {
	notifier Notifier
	title    string
	now      func() time.Time
	log      zerolog.Logger

	mu sync.Mutex
}

// NewReminderScheduler creates a scheduler. A nil now uses time.Now.
func NewReminderScheduler(notifier Notifier, title string, now func() time.Time, log zerolog.Logger) *ReminderScheduler {
	if title == "" {
		title = DefaultReminderTitle
	}
	if now == nil {
		now = time.Now
	}
	return &ReminderScheduler{
		notifier: notifier,
		title:    title,
		now:      now,
		log:      log.With().Str("component", "reminders").Logger(),
	}
}

// FireTime is the renewal date moved back NotifyDaysBefore calendar days, at
// NotifyHour:NotifyMinute in the renewal date's own location.
func FireTime(sub Subscription) time.Time {
	y, m, d := sub.RenewalDate.AddDate(0, 0, -sub.NotifyDaysBefore).Date()
	return time.Date(y, m, d, sub.NotifyHour, sub.NotifyMinute, 0, 0, sub.RenewalDate.Location())
}

// ReminderBody is the notification text for sub.
func ReminderBody(sub Subscription) string {
	switch sub.NotifyDaysBefore {
	case 0:
		return fmt.Sprintf("%s renews today", sub.DisplayName())
	case 1:
		return fmt.Sprintf("%s renews tomorrow", sub.DisplayName())
	default:
		return fmt.Sprintf("%s renews in %d days", sub.DisplayName(), sub.NotifyDaysBefore)
	}
}

// ScheduleReminder replaces any pending reminder for sub. A denied
// authorization or a fire time that has already passed leaves no reminder.
func (r *ReminderScheduler) ScheduleReminder(ctx context.Context, sub Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scheduleLocked(ctx, sub)
}

func (r *ReminderScheduler) scheduleLocked(ctx context.Context, sub Subscription) error {
	if err := r.cancelLocked(ctx, sub.ID); err != nil {
		return err
	}

	authorized, err := r.notifier.RequestAuthorization(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("notification authorization failed")
		return nil
	}
	if !authorized {
		r.log.Debug().Str("id", sub.ID.String()).Msg("notifications not authorized, skipping reminder")
		return nil
	}

	fireAt := FireTime(sub)
	if !fireAt.After(r.now()) {
		r.log.Debug().Str("id", sub.ID.String()).Time("fire_at", fireAt).Msg("reminder time has passed, skipping")
		return nil
	}

	n := Notification{ID: sub.ID, Title: r.title, Body: ReminderBody(sub), FireAt: fireAt}
	if err := r.notifier.Schedule(ctx, n); err != nil {
		return fmt.Errorf("scheduling reminder for %s: %w", sub.ID, err)
	}
	r.log.Debug().Str("id", sub.ID.String()).Time("fire_at", fireAt).Msg("reminder scheduled")
	return nil
}

// CancelReminder removes the pending reminder for id, if any.
func (r *ReminderScheduler) CancelReminder(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelLocked(ctx, id)
}

func (r *ReminderScheduler) cancelLocked(ctx context.Context, id uuid.UUID) error {
	if err := r.notifier.Cancel(ctx, id); err != nil {
		return fmt.Errorf("cancelling reminder for %s: %w", id, err)
	}
	return nil
}

// CancelAll removes every pending reminder.
func (r *ReminderScheduler) CancelAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelAllLocked(ctx)
}

func (r *ReminderScheduler) cancelAllLocked(ctx context.Context) error {
	if err := r.notifier.CancelAll(ctx); err != nil {
		return fmt.Errorf("cancelling all reminders: %w", err)
	}
	return nil
}

// RescheduleAll cancels everything when disabled. Otherwise it replaces the
// reminder of every item with NotifyEnabled and leaves the others alone.
func (r *ReminderScheduler) RescheduleAll(ctx context.Context, items []Subscription, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !enabled {
		return r.cancelAllLocked(ctx)
	}
	var errs error
	for _, sub := range items {
		if sub.NotifyEnabled {
			errs = errors.Join(errs, r.scheduleLocked(ctx, sub))
		}
	}
	return errs
}

// ReconcileAll is RescheduleAll over the live state returned by snapshot,
// read under the scheduler lock.
func (r *ReminderScheduler) ReconcileAll(ctx context.Context, snapshot func() ([]Subscription, bool)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	items, enabled := snapshot()
	if !enabled {
		return r.cancelAllLocked(ctx)
	}
	var errs error
	for _, sub := range items {
		if sub.NotifyEnabled {
			errs = errors.Join(errs, r.scheduleLocked(ctx, sub))
		} else {
			errs = errors.Join(errs, r.cancelLocked(ctx, sub.ID))
		}
	}
	return errs
}

// Pending returns the notifications currently scheduled with the notifier.
func (r *ReminderScheduler) Pending(ctx context.Context) ([]Notification, error) {
	return r.notifier.Pending(ctx)
}

// ReminderLookup reports the live state of a record: the record, whether it
// still exists, and whether notifications are globally enabled.
type ReminderLookup func(id uuid.UUID) (sub Subscription, found bool, enabled bool)

// Reconcile makes the pending reminder for id match the live state returned
// by lookup. The lookup runs under the scheduler lock so a reconcile can't
// resurrect a reminder that a concurrent global disable just removed.
func (r *ReminderScheduler) Reconcile(ctx context.Context, id uuid.UUID, lookup ReminderLookup) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, found, enabled := lookup(id)
	if found && enabled && sub.NotifyEnabled {
		return r.scheduleLocked(ctx, sub)
	}
	return r.cancelLocked(ctx, id)
}

// PlannedReminder is a record with reminders enabled and its computed fire time.
type PlannedReminder struct {
	Subscription Subscription
	FireAt       time.Time
	Passed       bool
}

// PlannedReminders lists the reminders implied by items, soonest first.
func PlannedReminders(items []Subscription, now time.Time) []PlannedReminder {
	var result []PlannedReminder
	for _, sub := range items {
		if !sub.NotifyEnabled {
			continue
		}
		fireAt := FireTime(sub)
		result = append(result, PlannedReminder{
			Subscription: sub,
			FireAt:       fireAt,
			Passed:       !fireAt.After(now),
		})
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].FireAt.Before(result[j].FireAt) })
	return result
}
