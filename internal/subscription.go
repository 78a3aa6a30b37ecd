package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Cycle is the billing period of a subscription.
type Cycle string

const (
	CycleWeekly  Cycle = "weekly"
	CycleMonthly Cycle = "monthly"
	CycleYearly  Cycle = "yearly"
)

// Cycles lists every billing cycle in display order.
var Cycles = []Cycle{CycleWeekly, CycleMonthly, CycleYearly}

// ParseCycle parses a cycle name case-insensitively.
func ParseCycle(s string) (Cycle, error) {
	c := Cycle(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown billing cycle %q (want weekly, monthly or yearly)", s)
	}
	return c, nil
}

func (c Cycle) Valid() bool {
	switch c {
	case CycleWeekly, CycleMonthly, CycleYearly:
		return true
	}
	return false
}

func (c *Cycle) UnmarshalText(text []byte) error {
	parsed, err := ParseCycle(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Decision is the keep/review/cancel classification of a subscription.
type Decision string

const (
	DecisionKeep   Decision = "keep"
	DecisionReview Decision = "review"
	DecisionCancel Decision = "cancel"
)

// Decisions lists every decision in display order.
var Decisions = []Decision{DecisionKeep, DecisionReview, DecisionCancel}

// ParseDecision parses a decision name case-insensitively.
func ParseDecision(s string) (Decision, error) {
	d := Decision(strings.ToLower(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("unknown decision %q (want keep, review or cancel)", s)
	}
	return d, nil
}

func (d Decision) Valid() bool {
	switch d {
	case DecisionKeep, DecisionReview, DecisionCancel:
		return true
	}
	return false
}

func (d *Decision) UnmarshalText(text []byte) error {
	parsed, err := ParseDecision(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Defaults applied to records created without explicit reminder settings,
// and to stored records missing those fields.
const (
	DefaultNotifyDaysBefore = 3
	DefaultNotifyHour       = 9
	DefaultNotifyMinute     = 0
	MaxNotifyDaysBefore     = 30
)

// Subscription is a recurring subscription tracked by the store.
type Subscription struct {
	ID           uuid.UUID
	Name         string  `validate:"required"`
	Price        float64 `validate:"gte=0"`
	CurrencyCode string  `validate:"len=3,alpha"`
	Cycle        Cycle   `validate:"oneof=weekly monthly yearly"`
	RenewalDate  time.Time
	LastUsedDate *time.Time

	AIDecision       Decision  `validate:"oneof=keep review cancel"`
	OverrideDecision *Decision `validate:"omitempty,oneof=keep review cancel"`

	NotifyEnabled    bool
	NotifyDaysBefore int `validate:"gte=0,lte=30"`
	NotifyHour       int `validate:"gte=0,lte=23"`
	NotifyMinute     int `validate:"gte=0,lte=59"`

	Service *ServiceID
}

// NewSubscription creates a record with a fresh id and the default reminder settings.
// The currency is left blank so the store fills in its default currency on Add.
func NewSubscription(name string, price float64, cycle Cycle, renewal time.Time) Subscription {
	return Subscription{
		ID:               uuid.New(),
		Name:             name,
		Price:            price,
		Cycle:            cycle,
		RenewalDate:      renewal,
		AIDecision:       DecisionKeep,
		NotifyEnabled:    true,
		NotifyDaysBefore: DefaultNotifyDaysBefore,
		NotifyHour:       DefaultNotifyHour,
		NotifyMinute:     DefaultNotifyMinute,
	}
}

// EffectiveDecision returns the override decision when set, otherwise the AI decision.
func (s Subscription) EffectiveDecision() Decision {
	if s.OverrideDecision != nil {
		return *s.OverrideDecision
	}
	return s.AIDecision
}

// MonthlyEquivalent returns the record's cost per month in its own currency.
func (s Subscription) MonthlyEquivalent() float64 {
	return MonthlyEquivalent(s.Price, s.Cycle)
}

// MonthlyEquivalent normalizes a price to a monthly amount.
// Weekly prices use 52 weeks spread over 12 months.
func MonthlyEquivalent(price float64, cycle Cycle) float64 {
	switch cycle {
	case CycleWeekly:
		return price * (52.0 / 12.0)
	case CycleYearly:
		return price / 12.0
	default:
		return price
	}
}

// DisplayName returns the catalog name of the linked service, or the record name.
func (s Subscription) DisplayName() string {
	if s.Service != nil {
		if name := s.Service.DisplayName(); name != "" {
			return name
		}
	}
	return s.Name
}

const dateLayout = "2006-01-02"

// ParseDate parses YYYY-MM-DD in the local time zone, falling back to RFC 3339.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.ParseInLocation(dateLayout, s, time.Local); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: want YYYY-MM-DD or RFC 3339", s)
	}
	return t, nil
}

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// subscriptionJSON is the persisted shape of a record. Optional fields are pointers
// so that missing values can be told apart from zero values on load.
type subscriptionJSON struct {
	ID               *uuid.UUID `json:"id,omitempty"`
	Name             *string    `json:"name"`
	Price            *float64   `json:"price"`
	CurrencyCode     *string    `json:"currencyCode,omitempty"`
	Cycle            Cycle      `json:"cycle"`
	RenewalDate      string     `json:"renewalDate"`
	LastUsedDate     *string    `json:"lastUsedDate,omitempty"`
	AIDecision       *Decision  `json:"aiDecision,omitempty"`
	OverrideDecision *Decision  `json:"overrideDecision,omitempty"`
	NotifyEnabled    *bool      `json:"notifyEnabled,omitempty"`
	NotifyDaysBefore *int       `json:"notifyDaysBefore,omitempty"`
	NotifyHour       *int       `json:"notifyHour,omitempty"`
	NotifyMinute     *int       `json:"notifyMinute,omitempty"`
	Service          *ServiceID `json:"service,omitempty"`
}

func (s Subscription) MarshalJSON() ([]byte, error) {
	out := subscriptionJSON{
		ID:               &s.ID,
		Name:             &s.Name,
		Price:            &s.Price,
		CurrencyCode:     &s.CurrencyCode,
		Cycle:            s.Cycle,
		RenewalDate:      formatDate(s.RenewalDate),
		AIDecision:       &s.AIDecision,
		OverrideDecision: s.OverrideDecision,
		NotifyEnabled:    &s.NotifyEnabled,
		NotifyDaysBefore: &s.NotifyDaysBefore,
		NotifyHour:       &s.NotifyHour,
		NotifyMinute:     &s.NotifyMinute,
		Service:          s.Service,
	}
	if s.LastUsedDate != nil {
		d := formatDate(*s.LastUsedDate)
		out.LastUsedDate = &d
	}
	return json.Marshal(out)
}

func (s *Subscription) UnmarshalJSON(data []byte) error {
	var in subscriptionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in.Name == nil {
		return errors.New("subscription: missing name")
	}
	if in.Price == nil {
		return errors.New("subscription: missing price")
	}
	if in.Cycle == "" {
		return errors.New("subscription: missing cycle")
	}
	if in.RenewalDate == "" {
		return errors.New("subscription: missing renewalDate")
	}
	renewal, err := ParseDate(in.RenewalDate)
	if err != nil {
		return fmt.Errorf("subscription %q: %w", *in.Name, err)
	}

	out := Subscription{
		ID:               uuid.New(),
		Name:             *in.Name,
		Price:            *in.Price,
		Cycle:            in.Cycle,
		RenewalDate:      renewal,
		AIDecision:       DecisionReview,
		OverrideDecision: in.OverrideDecision,
		NotifyEnabled:    true,
		NotifyDaysBefore: DefaultNotifyDaysBefore,
		NotifyHour:       DefaultNotifyHour,
		NotifyMinute:     DefaultNotifyMinute,
		Service:          in.Service,
	}
	if in.ID != nil {
		out.ID = *in.ID
	}
	if in.CurrencyCode != nil {
		out.CurrencyCode = *in.CurrencyCode
	}
	if in.LastUsedDate != nil {
		lastUsed, err := ParseDate(*in.LastUsedDate)
		if err != nil {
			return fmt.Errorf("subscription %q: %w", out.Name, err)
		}
		out.LastUsedDate = &lastUsed
	}
	if in.AIDecision != nil {
		out.AIDecision = *in.AIDecision
	}
	if in.NotifyEnabled != nil {
		out.NotifyEnabled = *in.NotifyEnabled
	}
	if in.NotifyDaysBefore != nil {
		out.NotifyDaysBefore = *in.NotifyDaysBefore
	}
	if in.NotifyHour != nil {
		out.NotifyHour = *in.NotifyHour
	}
	if in.NotifyMinute != nil {
		out.NotifyMinute = *in.NotifyMinute
	}

	*s = out
	return nil
}
