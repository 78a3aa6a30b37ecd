package internal

import (
	"sort"
	"time"
)

// MonthlyAmount returns a record's monthly-equivalent cost converted to target.
func MonthlyAmount(sub Subscription, target string, rates Rates) float64 {
	return Convert(sub.MonthlyEquivalent(), sub.CurrencyCode, target, rates)
}

// MonthlyTotal sums the monthly-equivalent cost of every record in the target currency,
// regardless of decision.
func MonthlyTotal(items []Subscription, target string, rates Rates) float64 {
	total := 0.0
	for _, sub := range items {
		total += MonthlyAmount(sub, target, rates)
	}
	return total
}

// YearlyTotal is MonthlyTotal times twelve.
func YearlyTotal(items []Subscription, target string, rates Rates) float64 {
	return MonthlyTotal(items, target, rates) * 12
}

// PotentialMonthlySavings sums the monthly cost of records whose effective decision is cancel.
func PotentialMonthlySavings(items []Subscription, target string, rates Rates) float64 {
	return MonthlyTotal(CancelCandidates(items), target, rates)
}

// PotentialYearlySavings is PotentialMonthlySavings times twelve.
func PotentialYearlySavings(items []Subscription, target string, rates Rates) float64 {
	return PotentialMonthlySavings(items, target, rates) * 12
}

// ByDecision returns the records whose effective decision equals d.
func ByDecision(items []Subscription, d Decision) []Subscription {
	var result []Subscription
	for _, sub := range items {
		if sub.EffectiveDecision() == d {
			result = append(result, sub)
		}
	}
	return result
}

// Active returns the records the user keeps.
func Active(items []Subscription) []Subscription {
	return ByDecision(items, DecisionKeep)
}

// CancelCandidates returns the records marked for cancellation.
func CancelCandidates(items []Subscription) []Subscription {
	return ByDecision(items, DecisionCancel)
}

// SavingsShare returns the fraction of the potential monthly savings that sub accounts for.
// Zero when there are no savings.
func SavingsShare(sub Subscription, items []Subscription, target string, rates Rates) float64 {
	savings := PotentialMonthlySavings(items, target, rates)
	if savings <= 0 {
		return 0
	}
	return MonthlyAmount(sub, target, rates) / savings
}

// CycleBreakdown counts records per billing cycle.
func CycleBreakdown(items []Subscription) map[Cycle]int {
	counts := make(map[Cycle]int, len(Cycles))
	for _, c := range Cycles {
		counts[c] = 0
	}
	for _, sub := range items {
		counts[sub.Cycle]++
	}
	return counts
}

// YearElapsedFraction returns how much of now's calendar year has passed, in [0, 1].
func YearElapsedFraction(now time.Time) float64 {
	start := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
	end := start.AddDate(1, 0, -1)
	ratio := now.Sub(start).Seconds() / end.Sub(start).Seconds()
	return min(1, max(0, ratio))
}

// PaidSoFarThisYear estimates spend so far this year from the yearly total.
func PaidSoFarThisYear(items []Subscription, target string, rates Rates, now time.Time) float64 {
	return YearlyTotal(items, target, rates) * YearElapsedFraction(now)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	return ay == by && am == bm && ad == bd
}

func sortByRenewal(items []Subscription) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].RenewalDate.Before(items[j].RenewalDate)
	})
}

// RenewingToday returns records whose renewal date falls on now's calendar day.
func RenewingToday(items []Subscription, now time.Time) []Subscription {
	var result []Subscription
	for _, sub := range items {
		if sameDay(now, sub.RenewalDate) {
			result = append(result, sub)
		}
	}
	return result
}

// OverdueRenewals returns records whose renewal date is before today, oldest first.
func OverdueRenewals(items []Subscription, now time.Time) []Subscription {
	today := startOfDay(now)
	var result []Subscription
	for _, sub := range items {
		if sub.RenewalDate.Before(today) {
			result = append(result, sub)
		}
	}
	sortByRenewal(result)
	return result
}

// UpcomingRenewals returns records renewing between now and now+days inclusive, soonest first.
func UpcomingRenewals(items []Subscription, now time.Time, days int) []Subscription {
	limit := now.AddDate(0, 0, days)
	var result []Subscription
	for _, sub := range items {
		if !sub.RenewalDate.Before(now) && !sub.RenewalDate.After(limit) {
			result = append(result, sub)
		}
	}
	sortByRenewal(result)
	return result
}

// Summary is a point-in-time aggregate over a collection in one currency.
type Summary struct {
	Currency                string
	Count                   int
	ActiveCount             int
	ReviewCount             int
	CancelCount             int
	MonthlyTotal            float64
	YearlyTotal             float64
	PotentialMonthlySavings float64
	PotentialYearlySavings  float64
	PaidSoFarThisYear       float64
	Cycles                  map[Cycle]int
}

// Summarize computes every aggregate for items in the target currency.
func Summarize(items []Subscription, target string, rates Rates, now time.Time) Summary {
	monthly := MonthlyTotal(items, target, rates)
	savings := PotentialMonthlySavings(items, target, rates)
	return Summary{
		Currency:                target,
		Count:                   len(items),
		ActiveCount:             len(Active(items)),
		ReviewCount:             len(ByDecision(items, DecisionReview)),
		CancelCount:             len(CancelCandidates(items)),
		MonthlyTotal:            monthly,
		YearlyTotal:             monthly * 12,
		PotentialMonthlySavings: savings,
		PotentialYearlySavings:  savings * 12,
		PaidSoFarThisYear:       monthly * 12 * YearElapsedFraction(now),
		Cycles:                  CycleBreakdown(items),
	}
}
