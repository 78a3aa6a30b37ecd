package internal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// SimpleJSONFormat is a minimal JSON format for importing subscriptions.
// Records use the same fields as the saved state, and either a bare array
// or an object with a "subscriptions" array is accepted:
//
//	{
//	  "subscriptions": [
//	    {"name": "Netflix", "price": 15.49, "currencyCode": "USD", "cycle": "monthly", "renewalDate": "2025-01-15"},
//	    {"name": "iCloud+", "price": 0.99, "cycle": "monthly", "renewalDate": "2025-01-20"}
//	  ]
//	}
type SimpleJSONFormat struct {
	Subscriptions []json.RawMessage `json:"subscriptions"`
}

// ImportSimpleJSON parses a JSON file in the simple JSON format
func ImportSimpleJSON(path string, defaults ImportDefaults) ([]Subscription, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return decodeSimpleJSON(data, defaults)
}

func decodeSimpleJSON(data []byte, defaults ImportDefaults) ([]Subscription, error) {
	trimmed := bytes.TrimSpace(data)
	var records []json.RawMessage
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("parsing JSON: %w", err)
		}
	} else {
		var jsonData SimpleJSONFormat
		if err := json.Unmarshal(trimmed, &jsonData); err != nil {
			return nil, fmt.Errorf("parsing JSON: %w", err)
		}
		records = jsonData.Subscriptions
	}

	subs := make([]Subscription, 0, len(records))
	for i, raw := range records {
		var sub Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return nil, fmt.Errorf("parsing JSON record %d: %w", i+1, err)
		}
		var given struct {
			NotifyDaysBefore *int `json:"notifyDaysBefore"`
		}
		if err := json.Unmarshal(raw, &given); err == nil && given.NotifyDaysBefore == nil {
			sub.NotifyDaysBefore = defaults.ReminderDaysBefore
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func init() {
	RegisterImporter("simple-json", ImporterFunc(ImportSimpleJSON))
}
