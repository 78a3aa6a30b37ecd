package internal

import (
	"maps"
	"strings"
	"sync"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// BaseCurrency is the currency all stored exchange rates are relative to.
const BaseCurrency = "USD"

// SupportedCurrencies is the fixed set of currencies fetched from the rate source.
var SupportedCurrencies = []string{"USD", "EUR", "TRY", "GBP", "CHF", "JPY"}

// Rates maps a currency code to its value per one unit of BaseCurrency.
// A well-formed table always contains BaseCurrency at exactly 1.0.
type Rates map[string]float64

// BaseRates returns the minimal table containing only the base currency.
func BaseRates() Rates {
	return Rates{BaseCurrency: 1.0}
}

// Rate returns the rate for code. Codes missing from the table count as 1.0,
// i.e. an unknown currency is treated as equal to the base currency.
func (r Rates) Rate(code string) float64 {
	if rate, ok := r[strings.ToUpper(code)]; ok {
		return rate
	}
	return 1.0
}

// Clone returns a copy that can be handed out without sharing the map.
func (r Rates) Clone() Rates {
	if r == nil {
		return nil
	}
	return maps.Clone(r)
}

// Convert converts amount between two currency codes via the base currency.
// Codes are case-insensitive and identical codes return amount unchanged.
func Convert(amount float64, from, to string, rates Rates) float64 {
	from = strings.ToUpper(from)
	to = strings.ToUpper(to)
	if from == to {
		return amount
	}
	return amount / rates.Rate(from) * rates.Rate(to)
}

// Currency represents a currency with its formatting rules
type Currency struct {
	Code    string // "SEK", "USD", "EUR"
	unit    currency.Unit
	symbol  string
	printer *message.Printer
}

// symbolOverrides provides custom symbols where x/text defaults aren't ideal
var symbolOverrides = map[string]string{
	"SEK": "kr",
	"NOK": "kr",
	"DKK": "kr",
	"ISK": "kr",
	"TRY": "₺",
}

// defaultLocaleForCurrency provides fallback locales when a currency is formatted
// without a detected system locale. Uses a "home" locale for each currency.
var defaultLocaleForCurrency = map[string]language.Tag{
	"SEK": language.Swedish,
	"USD": language.AmericanEnglish,
	"EUR": language.German,
	"GBP": language.BritishEnglish,
	"NOK": language.Norwegian,
	"DKK": language.Danish,
	"CHF": language.German,
	"JPY": language.Japanese,
	"TRY": language.Turkish,
	"CAD": language.CanadianFrench,
	"AUD": language.MustParse("en-AU"),
	"BRL": language.BrazilianPortuguese,
	"MXN": language.LatinAmericanSpanish,
	"INR": language.MustParse("en-IN"),
	"CNY": language.Chinese,
	"KRW": language.Korean,
	"PLN": language.Polish,
	"CZK": language.Czech,
}

var (
	localeOnce     sync.Once
	detectedLocale language.Tag
	detectedCode   string
)

func detectLocale() {
	localeOnce.Do(func() {
		detectedCode, detectedLocale = parseCurrencyFromLocale(detectSystemLocale())
	})
}

// DetectSystemCurrency returns the currency of the OS locale, or empty string
// when it cannot be determined.
func DetectSystemCurrency() string {
	detectLocale()
	return detectedCode
}

// DefaultCurrencyCode returns the system currency, falling back to BaseCurrency.
func DefaultCurrencyCode() string {
	if code := DetectSystemCurrency(); code != "" {
		return code
	}
	return BaseCurrency
}

// GetCurrency returns the Currency for a given code, formatted for the system locale
// when one was detected, otherwise for the currency's home locale.
func GetCurrency(code string) Currency {
	detectLocale()
	code = strings.ToUpper(code)

	tag := language.English
	if detectedLocale != language.Und {
		tag = detectedLocale
	} else if t, ok := defaultLocaleForCurrency[code]; ok {
		tag = t
	}
	return GetCurrencyWithLocale(code, tag)
}

// GetCurrencyWithLocale returns a Currency with a specific locale for formatting.
func GetCurrencyWithLocale(code string, tag language.Tag) Currency {
	code = strings.ToUpper(code)

	c := Currency{
		Code:    code,
		printer: message.NewPrinter(tag),
	}

	unit, err := currency.ParseISO(code)
	switch {
	case err != nil:
		// unknown currencies are shown by code
		c.unit = currency.USD
		c.symbol = code
	default:
		c.unit = unit
		if sym, ok := symbolOverrides[code]; ok {
			c.symbol = sym
		} else {
			c.symbol = c.printer.Sprint(currency.NarrowSymbol(unit))
		}
	}
	return c
}

// parseCurrencyFromLocale extracts currency code and language tag from a locale string.
// Examples: "sv_SE.UTF-8" -> ("SEK", sv-SE), "tr_TR" -> ("TRY", tr-TR)
func parseCurrencyFromLocale(locale string) (string, language.Tag) {
	if locale == "" {
		return "", language.Und
	}
	base := locale
	if idx := strings.Index(base, "."); idx != -1 {
		base = base[:idx]
	}
	if idx := strings.Index(base, "@"); idx != -1 {
		base = base[:idx]
	}

	tag, err := language.Parse(strings.Replace(base, "_", "-", 1))
	if err != nil {
		return "", language.Und
	}

	_, _, region := tag.Raw()
	if region.String() == "" || region.String() == "ZZ" {
		return "", language.Und
	}

	unit, ok := currency.FromRegion(region)
	if !ok {
		return "", language.Und
	}
	return unit.String(), tag
}

// isPrefix returns true if this currency symbol should be placed before the amount.
// x/text/currency doesn't expose CLDR symbol positioning, so the list is kept by hand.
func (c Currency) isPrefix() bool {
	switch c.Code {
	case "USD", "GBP", "JPY", "CAD", "AUD", "MXN", "HKD", "SGD", "NZD", "ZAR", "TRY":
		return true
	default:
		return false
	}
}

func (c Currency) number(amount float64) string {
	return c.printer.Sprint(number.Decimal(amount,
		number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

// Format formats a single amount with two decimals and the currency symbol
func (c Currency) Format(amount float64) string {
	if c.isPrefix() {
		return c.symbol + c.number(amount)
	}
	return c.number(amount) + " " + c.symbol
}
