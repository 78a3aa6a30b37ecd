package internal

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateSubscription checks a record at the store's write boundary.
// Out-of-range values are rejected, never clamped.
func ValidateSubscription(sub Subscription) error {
	if strings.TrimSpace(sub.Name) == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidSubscription)
	}
	if err := validate.Struct(sub); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("%w: %s", ErrInvalidSubscription, describeValidation(verrs))
		}
		return fmt.Errorf("%w: %v", ErrInvalidSubscription, err)
	}
	if sub.RenewalDate.IsZero() {
		return fmt.Errorf("%w: renewal date is required", ErrInvalidSubscription)
	}
	if sub.Service != nil && !sub.Service.Known() {
		return fmt.Errorf("%w: unknown service %q", ErrInvalidSubscription, *sub.Service)
	}
	return nil
}

// ValidateDaysBefore checks a reminder lead time.
func ValidateDaysBefore(days int) error {
	if days < 0 || days > MaxNotifyDaysBefore {
		return fmt.Errorf("%w: reminder days before must be between 0 and %d, got %d",
			ErrInvalidSetting, MaxNotifyDaysBefore, days)
	}
	return nil
}

// ValidateCurrencyCode checks that code looks like an ISO 4217 code.
func ValidateCurrencyCode(code string) error {
	if err := validate.Var(code, "len=3,alpha"); err != nil {
		return fmt.Errorf("%w: currency code %q must be three letters", ErrInvalidSetting, code)
	}
	return nil
}

func describeValidation(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("%s is required", fe.Field()))
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of [%s], got %v", fe.Field(), fe.Param(), fe.Value()))
		case "len", "alpha":
			parts = append(parts, fmt.Sprintf("%s must be a three-letter code, got %q", fe.Field(), fe.Value()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s=%s, got %v", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
		}
	}
	return strings.Join(parts, "; ")
}
