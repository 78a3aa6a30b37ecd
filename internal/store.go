package internal

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Effect queue keys. Every reminder effect for one record shares a key, and
// all rate refreshes share one, so each runs in submission order.
const (
	ratesKey        = "fx-rates"
	allRemindersKey = "reminders"
)

func reminderKey(id uuid.UUID) string { return "reminder:" + id.String() }

// StoreOptions wires a Store to its collaborators. Rates may be nil, which
// disables exchange rate refreshes.
type StoreOptions struct {
	Storage         *Storage
	Rates           RateSource
	Reminders       *ReminderScheduler
	Effects         *EffectQueue
	DefaultCurrency string
	Now             func() time.Time
	Log             zerolog.Logger
}

// Settings are the store-wide preferences.
type Settings struct {
	DefaultCurrency      string
	NotificationsEnabled bool
	ReminderDaysBefore   int
	FXRates              Rates
}

// Store owns the subscription collection. Every mutation is validated,
// applied, and persisted before it returns; reminder and rate side effects
// run afterwards on the effect queue.
type Store struct {
	storage      *Storage
	rates        RateSource
	reminders    *ReminderScheduler
	effects      *EffectQueue
	seedCurrency string
	now          func() time.Time
	log          zerolog.Logger

	// effects outlive the request that caused them
	effectCtx context.Context

	mu    sync.RWMutex
	state State
}

// NewStore creates a store holding the default state. Call Load to read
// persisted data.
func NewStore(opts StoreOptions) *Store {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		storage:      opts.Storage,
		rates:        opts.Rates,
		reminders:    opts.Reminders,
		effects:      opts.Effects,
		seedCurrency: opts.DefaultCurrency,
		now:          now,
		log:          opts.Log.With().Str("component", "store").Logger(),
		effectCtx:    context.Background(),
		state:        DefaultState(opts.DefaultCurrency),
	}
}

// Load replaces the in-memory state with the persisted one. Absent, corrupt
// or unreadable data yields the default state. Exchange rates are refreshed
// in the background after every load.
func (s *Store) Load(ctx context.Context) error {
	data, err := s.storage.Load(ctx, func(b []byte) error {
		_, err := DecodeState(b)
		return err
	})

	var st State
	switch {
	case errors.Is(err, ErrBlobNotFound):
		s.log.Info().Msg("no saved data, starting fresh")
		st = DefaultState(s.seedCurrency)
	case err != nil:
		s.log.Error().Err(err).Msg("loading state failed, starting fresh")
		st = DefaultState(s.seedCurrency)
	default:
		if st, err = DecodeState(data); err != nil {
			return fmt.Errorf("loading state: %w", err)
		}
	}

	s.mu.Lock()
	s.state = st
	s.mu.Unlock()

	s.log.Debug().Int("items", len(st.Items)).Str("currency", st.DefaultCurrency).Msg("state loaded")
	s.RequestRateRefresh()
	return nil
}

// persistLocked writes the current state. Failures are logged and absorbed:
// the in-memory state stays authoritative and the next mutation retries.
func (s *Store) persistLocked(ctx context.Context) {
	data, err := EncodeState(s.state)
	if err != nil {
		s.log.Error().Err(err).Msg("encoding state failed")
		return
	}
	if err := s.storage.Save(ctx, data); err != nil {
		s.log.Error().Err(err).Msg("saving state failed")
	}
}

func (s *Store) submit(key string, job JobFunc) {
	if s.effects == nil {
		return
	}
	if err := s.effects.Submit(s.effectCtx, key, job); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("dropping side effect")
	}
}

func (s *Store) lookup(id uuid.UUID) (Subscription, bool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.indexLocked(id)
	if idx < 0 {
		return Subscription{}, false, s.state.NotificationsEnabled
	}
	return s.state.Items[idx], true, s.state.NotificationsEnabled
}

func (s *Store) snapshotReminders() ([]Subscription, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.state.Items), s.state.NotificationsEnabled
}

func (s *Store) reconcileReminder(id uuid.UUID) {
	if s.reminders == nil {
		return
	}
	s.submit(reminderKey(id), func(ctx context.Context) error {
		return s.reminders.Reconcile(ctx, id, s.lookup)
	})
}

func (s *Store) reconcileAllReminders() {
	if s.reminders == nil {
		return
	}
	s.submit(allRemindersKey, func(ctx context.Context) error {
		return s.reminders.ReconcileAll(ctx, s.snapshotReminders)
	})
}

func (s *Store) indexLocked(id uuid.UUID) int {
	return slices.IndexFunc(s.state.Items, func(sub Subscription) bool { return sub.ID == id })
}

// NewSubscription creates a record seeded with the store's default currency
// and reminder lead time.
func (s *Store) NewSubscription(name string, price float64, cycle Cycle, renewal time.Time) Subscription {
	sub := NewSubscription(name, price, cycle, renewal)
	s.mu.RLock()
	sub.CurrencyCode = s.state.DefaultCurrency
	sub.NotifyDaysBefore = s.state.ReminderDaysBefore
	s.mu.RUnlock()
	return sub
}

func (s *Store) normalizeLocked(sub Subscription) Subscription {
	if strings.TrimSpace(sub.CurrencyCode) == "" {
		sub.CurrencyCode = s.state.DefaultCurrency
	}
	sub.CurrencyCode = strings.ToUpper(strings.TrimSpace(sub.CurrencyCode))
	sub.Name = strings.TrimSpace(sub.Name)
	return sub
}

// Add validates sub and inserts it at the front of the collection. A nil id
// is replaced with a fresh one and a blank currency with the default currency.
func (s *Store) Add(ctx context.Context, sub Subscription) (Subscription, error) {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}

	s.mu.Lock()
	sub = s.normalizeLocked(sub)
	if err := ValidateSubscription(sub); err != nil {
		s.mu.Unlock()
		return Subscription{}, err
	}
	if s.indexLocked(sub.ID) >= 0 {
		s.mu.Unlock()
		return Subscription{}, fmt.Errorf("%w: id %s already exists", ErrInvalidSubscription, sub.ID)
	}
	items := make([]Subscription, 0, len(s.state.Items)+1)
	items = append(items, sub)
	s.state.Items = append(items, s.state.Items...)
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.log.Info().Str("id", sub.ID.String()).Str("name", sub.Name).Msg("subscription added")
	s.reconcileReminder(sub.ID)
	return sub, nil
}

// Update replaces the record with the same id. An unknown id returns
// ErrNotFound and changes nothing.
func (s *Store) Update(ctx context.Context, sub Subscription) (Subscription, error) {
	s.mu.Lock()
	idx := s.indexLocked(sub.ID)
	if idx < 0 {
		s.mu.Unlock()
		return Subscription{}, &NotFoundError{IDs: []uuid.UUID{sub.ID}}
	}
	sub = s.normalizeLocked(sub)
	if err := ValidateSubscription(sub); err != nil {
		s.mu.Unlock()
		return Subscription{}, err
	}
	items := slices.Clone(s.state.Items)
	items[idx] = sub
	s.state.Items = items
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.log.Info().Str("id", sub.ID.String()).Str("name", sub.Name).Msg("subscription updated")
	s.reconcileReminder(sub.ID)
	return sub, nil
}

// Delete removes the records with the given ids and cancels their reminders.
// Ids that don't exist are reported in a *NotFoundError after the others
// have been removed.
func (s *Store) Delete(ctx context.Context, ids ...uuid.UUID) error {
	remove := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		remove[id] = true
	}

	s.mu.Lock()
	var removed []uuid.UUID
	kept := make([]Subscription, 0, len(s.state.Items))
	for _, sub := range s.state.Items {
		if remove[sub.ID] {
			removed = append(removed, sub.ID)
			delete(remove, sub.ID)
			continue
		}
		kept = append(kept, sub)
	}
	if len(removed) > 0 {
		s.state.Items = kept
		s.persistLocked(ctx)
	}
	s.mu.Unlock()

	for _, id := range removed {
		s.reconcileReminder(id)
	}
	if len(removed) > 0 {
		s.log.Info().Int("count", len(removed)).Msg("subscriptions deleted")
	}

	if len(remove) > 0 {
		var missing []uuid.UUID
		for _, id := range ids {
			if remove[id] {
				missing = append(missing, id)
				delete(remove, id)
			}
		}
		return &NotFoundError{IDs: missing}
	}
	return nil
}

// SetDefaultCurrency changes the display currency and refreshes exchange rates.
func (s *Store) SetDefaultCurrency(ctx context.Context, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if err := ValidateCurrencyCode(code); err != nil {
		return err
	}

	s.mu.Lock()
	s.state.DefaultCurrency = code
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.RequestRateRefresh()
	return nil
}

// SetNotificationsEnabled toggles reminders globally. Disabling cancels every
// pending reminder; enabling schedules one for every record with reminders on.
func (s *Store) SetNotificationsEnabled(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	s.state.NotificationsEnabled = enabled
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.reconcileAllReminders()
	return nil
}

// SetReminderDaysBefore sets the lead time given to new records and
// reschedules all reminders.
func (s *Store) SetReminderDaysBefore(ctx context.Context, days int) error {
	if err := ValidateDaysBefore(days); err != nil {
		return err
	}

	s.mu.Lock()
	s.state.ReminderDaysBefore = days
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.reconcileAllReminders()
	return nil
}

// RequestRateRefresh queues an exchange rate refresh. Refreshes run one at a
// time in the order requested, so the last request is the last one applied.
func (s *Store) RequestRateRefresh() {
	if s.rates == nil {
		return
	}
	s.submit(ratesKey, func(ctx context.Context) error {
		if err := s.RefreshRates(ctx); err != nil {
			s.log.Warn().Err(err).Msg("exchange rate refresh failed, keeping previous rates")
		}
		return nil
	})
}

// RefreshRates fetches the supported currencies against the base currency.
// On success the table is replaced wholesale. On failure the old table is
// kept, seeded with the base currency if it was empty.
func (s *Store) RefreshRates(ctx context.Context) error {
	if s.rates == nil {
		return fmt.Errorf("%w: no rate source configured", ErrRateFetch)
	}
	fetched, err := s.rates.FetchRates(ctx, BaseCurrency, SupportedCurrencies)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		if len(s.state.FXRates) == 0 {
			s.state.FXRates = BaseRates()
			s.persistLocked(ctx)
		}
		return err
	}

	rates := fetched.Clone()
	rates[BaseCurrency] = 1.0
	s.state.FXRates = rates
	s.persistLocked(ctx)
	s.log.Debug().Int("currencies", len(rates)).Msg("exchange rates updated")
	return nil
}

// ReloadFromReplica replaces the in-memory state with the replica's copy,
// writes it locally and reconciles every reminder.
func (s *Store) ReloadFromReplica(ctx context.Context) error {
	data, err := s.storage.LoadReplica(ctx, func(b []byte) error {
		_, err := DecodeState(b)
		return err
	})
	if err != nil {
		return fmt.Errorf("reloading from replica: %w", err)
	}
	st, err := DecodeState(data)
	if err != nil {
		return fmt.Errorf("reloading from replica: %w", err)
	}

	s.mu.Lock()
	previous := s.state.Items
	s.state = st
	if err := s.storage.SaveLocal(ctx, data); err != nil {
		s.log.Warn().Err(err).Msg("writing replica copy locally failed")
	}
	s.mu.Unlock()

	s.log.Info().Int("items", len(st.Items)).Msg("reloaded state from replica")
	for _, sub := range previous {
		s.reconcileReminder(sub.ID)
	}
	s.reconcileAllReminders()
	return nil
}

// Watch reloads from the replica whenever another instance changes it, until
// ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	return s.storage.Watch(ctx, func() {
		if err := s.ReloadFromReplica(ctx); err != nil {
			s.log.Warn().Err(err).Msg("replica reload failed")
		}
	})
}

// RescheduleAllReminders reconciles every reminder against the current state.
func (s *Store) RescheduleAllReminders() {
	s.reconcileAllReminders()
}

// Flush waits for every side effect submitted so far.
func (s *Store) Flush(ctx context.Context) error {
	if s.effects == nil {
		return nil
	}
	return s.effects.Flush(ctx)
}

// Close runs the remaining side effects and stops the effect queue.
func (s *Store) Close() error {
	if s.effects == nil {
		return nil
	}
	return s.effects.Close()
}

// Items returns a copy of the collection, newest first.
func (s *Store) Items() []Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.state.Items)
}

// Item returns the record with id.
func (s *Store) Item(id uuid.UUID) (Subscription, error) {
	sub, found, _ := s.lookup(id)
	if !found {
		return Subscription{}, &NotFoundError{IDs: []uuid.UUID{id}}
	}
	return sub, nil
}

// FindByPrefix resolves an id given as a full UUID or a unique prefix of one.
func (s *Store) FindByPrefix(prefix string) (Subscription, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if id, err := uuid.Parse(prefix); err == nil {
		return s.Item(id)
	}
	if prefix == "" {
		return Subscription{}, fmt.Errorf("%w: empty id", ErrNotFound)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var matches []Subscription
	for _, sub := range s.state.Items {
		if strings.HasPrefix(sub.ID.String(), prefix) {
			matches = append(matches, sub)
		}
	}
	switch len(matches) {
	case 0:
		return Subscription{}, fmt.Errorf("%w: no id starts with %q", ErrNotFound, prefix)
	case 1:
		return matches[0], nil
	default:
		return Subscription{}, fmt.Errorf("id prefix %q is ambiguous (%d matches)", prefix, len(matches))
	}
}

// Settings returns the current preferences.
func (s *Store) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Settings{
		DefaultCurrency:      s.state.DefaultCurrency,
		NotificationsEnabled: s.state.NotificationsEnabled,
		ReminderDaysBefore:   s.state.ReminderDaysBefore,
		FXRates:              s.state.FXRates.Clone(),
	}
}

// Snapshot returns a copy of the whole state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

func (s *Store) view(target string) ([]Subscription, string, Rates) {
	st := s.Snapshot()
	if target == "" {
		target = st.DefaultCurrency
	}
	return st.Items, strings.ToUpper(target), st.FXRates
}

// MonthlyTotal is the monthly-equivalent spend in target, or in the default
// currency when target is empty.
func (s *Store) MonthlyTotal(target string) float64 {
	items, target, rates := s.view(target)
	return MonthlyTotal(items, target, rates)
}

// YearlyTotal is MonthlyTotal times twelve.
func (s *Store) YearlyTotal(target string) float64 {
	items, target, rates := s.view(target)
	return YearlyTotal(items, target, rates)
}

// PotentialMonthlySavings is the monthly spend on records marked for cancellation.
func (s *Store) PotentialMonthlySavings(target string) float64 {
	items, target, rates := s.view(target)
	return PotentialMonthlySavings(items, target, rates)
}

// PotentialYearlySavings is PotentialMonthlySavings times twelve.
func (s *Store) PotentialYearlySavings(target string) float64 {
	items, target, rates := s.view(target)
	return PotentialYearlySavings(items, target, rates)
}

// Convert converts amount with the current rate table.
func (s *Store) Convert(amount float64, from, to string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Convert(amount, from, to, s.state.FXRates)
}

// ByDecision returns records whose effective decision is d.
func (s *Store) ByDecision(d Decision) []Subscription { return ByDecision(s.Items(), d) }

// Active returns records the user keeps.
func (s *Store) Active() []Subscription { return Active(s.Items()) }

// CancelCandidates returns records marked for cancellation.
func (s *Store) CancelCandidates() []Subscription { return CancelCandidates(s.Items()) }

// RenewingToday returns records renewing today.
func (s *Store) RenewingToday() []Subscription { return RenewingToday(s.Items(), s.now()) }

// OverdueRenewals returns records whose renewal date has passed, oldest first.
func (s *Store) OverdueRenewals() []Subscription { return OverdueRenewals(s.Items(), s.now()) }

// UpcomingRenewals returns records renewing within days, soonest first.
func (s *Store) UpcomingRenewals(days int) []Subscription {
	return UpcomingRenewals(s.Items(), s.now(), days)
}

// Summary aggregates the collection in target, or the default currency.
func (s *Store) Summary(target string) Summary {
	items, target, rates := s.view(target)
	return Summarize(items, target, rates, s.now())
}

// PlannedReminders lists the reminders implied by the records.
func (s *Store) PlannedReminders() []PlannedReminder {
	return PlannedReminders(s.Items(), s.now())
}

// PendingReminders lists what is actually scheduled with the notifier.
func (s *Store) PendingReminders(ctx context.Context) ([]Notification, error) {
	if s.reminders == nil {
		return nil, nil
	}
	return s.reminders.Pending(ctx)
}

// Now returns the store's clock reading.
func (s *Store) Now() time.Time { return s.now() }
