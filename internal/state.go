package internal

import (
	"encoding/json"
	"fmt"
	"strings"
)

// State is everything the store persists.
type State struct {
	Items                []Subscription
	DefaultCurrency      string
	FXRates              Rates
	NotificationsEnabled bool
	ReminderDaysBefore   int
}

// DefaultState is the state of a fresh install. An empty currency falls back
// to the system locale currency.
func DefaultState(currency string) State {
	if currency == "" {
		currency = DefaultCurrencyCode()
	}
	return State{
		Items:                []Subscription{},
		DefaultCurrency:      strings.ToUpper(currency),
		FXRates:              BaseRates(),
		NotificationsEnabled: true,
		ReminderDaysBefore:   DefaultNotifyDaysBefore,
	}
}

type stateJSON struct {
	Items                []Subscription `json:"items"`
	DefaultCurrency      string         `json:"defaultCurrency,omitempty"`
	FXRates              Rates          `json:"fxRates,omitempty"`
	NotificationsEnabled *bool          `json:"notificationsEnabled,omitempty"`
	ReminderDaysBefore   *int           `json:"reminderDaysBefore,omitempty"`
}

// EncodeState serializes state as the persisted JSON document.
func EncodeState(st State) ([]byte, error) {
	items := st.Items
	if items == nil {
		items = []Subscription{}
	}
	data, err := json.MarshalIndent(stateJSON{
		Items:                items,
		DefaultCurrency:      st.DefaultCurrency,
		FXRates:              st.FXRates,
		NotificationsEnabled: &st.NotificationsEnabled,
		ReminderDaysBefore:   &st.ReminderDaysBefore,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding state: %w", err)
	}
	return data, nil
}

// DecodeState parses a persisted document, filling in defaults for missing
// fields. A record without a currency gets the system locale currency. Any structural problem makes the whole document invalid.
func DecodeState(data []byte) (State, error) {
	var in stateJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return State{}, fmt.Errorf("decoding state: %w", err)
	}

	st := DefaultState(in.DefaultCurrency)
	if in.Items != nil {
		st.Items = in.Items
	}
	seen := make(map[string]bool, len(st.Items))
	for i := range st.Items {
		id := st.Items[i].ID.String()
		if seen[id] {
			return State{}, fmt.Errorf("decoding state: duplicate id %s", id)
		}
		seen[id] = true
		if st.Items[i].CurrencyCode == "" {
			st.Items[i].CurrencyCode = DefaultCurrencyCode()
		}
		st.Items[i].CurrencyCode = strings.ToUpper(st.Items[i].CurrencyCode)
	}
	if len(in.FXRates) > 0 {
		st.FXRates = make(Rates, len(in.FXRates)+1)
		for code, rate := range in.FXRates {
			st.FXRates[strings.ToUpper(code)] = rate
		}
		st.FXRates[BaseCurrency] = 1.0
	}
	if in.NotificationsEnabled != nil {
		st.NotificationsEnabled = *in.NotificationsEnabled
	}
	if in.ReminderDaysBefore != nil {
		if err := ValidateDaysBefore(*in.ReminderDaysBefore); err != nil {
			return State{}, fmt.Errorf("decoding state: %w", err)
		}
		st.ReminderDaysBefore = *in.ReminderDaysBefore
	}
	return st, nil
}

func (st State) clone() State {
	out := st
	out.Items = append([]Subscription(nil), st.Items...)
	out.FXRates = st.FXRates.Clone()
	return out
}
