package internal

import (
	"math"
	"testing"
	"time"
)

func date(s string) time.Time {
	t, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func sub(name string, price float64, cycle Cycle, currency string) Subscription {
	s := NewSubscription(name, price, cycle, date("2025-01-15"))
	s.CurrencyCode = currency
	return s
}

func decided(s Subscription, ai Decision, override *Decision) Subscription {
	s.AIDecision = ai
	s.OverrideDecision = override
	return s
}

func ptr[T any](v T) *T { return &v }

func TestMonthlyEquivalent(t *testing.T) {
	tests := []struct {
		cycle Cycle
		price float64
		want  float64
	}{
		{CycleWeekly, 12, 52},
		{CycleWeekly, 3, 13},
		{CycleMonthly, 9.99, 9.99},
		{CycleYearly, 120, 10},
		{CycleYearly, 100, 100.0 / 12.0},
	}

	for _, tt := range tests {
		t.Run(string(tt.cycle), func(t *testing.T) {
			if got := MonthlyEquivalent(tt.price, tt.cycle); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("MonthlyEquivalent(%v, %s) = %v, want %v", tt.price, tt.cycle, got, tt.want)
			}
		})
	}
}

func TestTotals_SingleMonthlyDollar(t *testing.T) {
	items := []Subscription{sub("Netflix", 9.99, CycleMonthly, "USD")}
	rates := Rates{"USD": 1.0}

	monthly := MonthlyTotal(items, "USD", rates)
	yearly := YearlyTotal(items, "USD", rates)

	if monthly != 9.99 {
		t.Errorf("MonthlyTotal = %v, want 9.99", monthly)
	}
	if math.Abs(yearly-119.88) > 1e-9 {
		t.Errorf("YearlyTotal = %v, want 119.88", yearly)
	}
}

func TestTotals_YearlyIsTwelveTimesMonthly(t *testing.T) {
	rates := Rates{"USD": 1.0, "EUR": 0.92, "TRY": 34.1, "GBP": 0.79}
	sets := [][]Subscription{
		nil,
		{sub("a", 9.99, CycleMonthly, "USD")},
		{sub("a", 4.49, CycleWeekly, "EUR"), sub("b", 299, CycleYearly, "TRY"), sub("c", 7.77, CycleMonthly, "XYZ")},
		{sub("a", 0.01, CycleWeekly, "GBP"), sub("b", 1e6, CycleYearly, "usd")},
	}

	for i, items := range sets {
		for _, target := range []string{"USD", "EUR", "TRY", "GBP", "XYZ"} {
			monthly := MonthlyTotal(items, target, rates)
			if yearly := YearlyTotal(items, target, rates); yearly != monthly*12 {
				t.Errorf("set %d in %s: yearly %v != 12 * monthly %v", i, target, yearly, monthly)
			}
			savings := PotentialMonthlySavings(items, target, rates)
			if yearly := PotentialYearlySavings(items, target, rates); yearly != savings*12 {
				t.Errorf("set %d in %s: yearly savings %v != 12 * monthly savings %v", i, target, yearly, savings)
			}
		}
	}
}

func TestTotals_YearlyEuroInDollars(t *testing.T) {
	items := []Subscription{sub("Cloud", 100, CycleYearly, "EUR")}
	rates := Rates{"USD": 1.0, "EUR": 0.92}

	got := MonthlyTotal(items, "USD", rates)
	if math.Abs(got-9.057971) > 1e-6 {
		t.Errorf("MonthlyTotal = %v, want ~9.058", got)
	}
}

func TestPotentialSavings_OnlyCancelled(t *testing.T) {
	items := []Subscription{
		decided(sub("Gym", 15, CycleMonthly, "USD"), DecisionKeep, ptr(DecisionCancel)),
		decided(sub("Music", 10, CycleMonthly, "USD"), DecisionKeep, nil),
	}
	rates := Rates{"USD": 1.0}

	if got := PotentialMonthlySavings(items, "USD", rates); got != 15 {
		t.Errorf("PotentialMonthlySavings = %v, want 15", got)
	}
	if got := MonthlyTotal(items, "USD", rates); got != 25 {
		t.Errorf("MonthlyTotal = %v, want 25", got)
	}
	if got := SavingsShare(items[0], items, "USD", rates); got != 1 {
		t.Errorf("SavingsShare = %v, want 1", got)
	}
	if got := SavingsShare(items[1], nil, "USD", rates); got != 0 {
		t.Errorf("SavingsShare with no savings = %v, want 0", got)
	}
}

func TestEffectiveDecision(t *testing.T) {
	for _, ai := range Decisions {
		s := decided(sub("x", 1, CycleMonthly, "USD"), ai, nil)
		if got := s.EffectiveDecision(); got != ai {
			t.Errorf("no override: got %s, want %s", got, ai)
		}
		for _, override := range Decisions {
			s := decided(sub("x", 1, CycleMonthly, "USD"), ai, ptr(override))
			if got := s.EffectiveDecision(); got != override {
				t.Errorf("ai %s override %s: got %s", ai, override, got)
			}
			if !s.EffectiveDecision().Valid() {
				t.Errorf("effective decision %q is not valid", s.EffectiveDecision())
			}
		}
	}
}

func TestDecisionFilters(t *testing.T) {
	items := []Subscription{
		decided(sub("keep", 1, CycleMonthly, "USD"), DecisionKeep, nil),
		decided(sub("review->keep", 1, CycleMonthly, "USD"), DecisionReview, ptr(DecisionKeep)),
		decided(sub("review", 1, CycleMonthly, "USD"), DecisionReview, nil),
		decided(sub("keep->cancel", 1, CycleMonthly, "USD"), DecisionKeep, ptr(DecisionCancel)),
	}

	if got := len(Active(items)); got != 2 {
		t.Errorf("Active = %d, want 2", got)
	}
	if got := len(ByDecision(items, DecisionReview)); got != 1 {
		t.Errorf("review = %d, want 1", got)
	}
	cancel := CancelCandidates(items)
	if len(cancel) != 1 || cancel[0].Name != "keep->cancel" {
		t.Errorf("CancelCandidates = %v", cancel)
	}
}

func TestCycleBreakdown(t *testing.T) {
	items := []Subscription{
		sub("a", 1, CycleWeekly, "USD"),
		sub("b", 1, CycleMonthly, "USD"),
		sub("c", 1, CycleMonthly, "USD"),
	}
	got := CycleBreakdown(items)
	if got[CycleWeekly] != 1 || got[CycleMonthly] != 2 || got[CycleYearly] != 0 {
		t.Errorf("CycleBreakdown = %v", got)
	}
}

func TestYearElapsedFraction(t *testing.T) {
	loc := time.UTC
	if got := YearElapsedFraction(time.Date(2025, 1, 1, 0, 0, 0, 0, loc)); got != 0 {
		t.Errorf("start of year = %v, want 0", got)
	}
	if got := YearElapsedFraction(time.Date(2025, 12, 31, 23, 0, 0, 0, loc)); got != 1 {
		t.Errorf("end of year = %v, want 1", got)
	}
	mid := YearElapsedFraction(time.Date(2025, 7, 2, 0, 0, 0, 0, loc))
	if mid < 0.49 || mid > 0.51 {
		t.Errorf("mid year = %v, want ~0.5", mid)
	}
}

func TestRenewalWindows(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.Local)
	mk := func(name, renewal string) Subscription {
		s := sub(name, 1, CycleMonthly, "USD")
		s.RenewalDate = date(renewal)
		return s
	}
	items := []Subscription{
		mk("today", "2025-03-10"),
		mk("old", "2025-01-01"),
		mk("older", "2024-12-01"),
		mk("soon", "2025-03-12"),
		mk("sooner", "2025-03-11"),
		mk("far", "2025-05-01"),
	}

	today := RenewingToday(items, now)
	if len(today) != 1 || today[0].Name != "today" {
		t.Errorf("RenewingToday = %v", names(today))
	}

	overdue := OverdueRenewals(items, now)
	if got := names(overdue); len(got) != 2 || got[0] != "older" || got[1] != "old" {
		t.Errorf("OverdueRenewals = %v, want [older old]", got)
	}

	upcoming := UpcomingRenewals(items, now, 7)
	if got := names(upcoming); len(got) != 2 || got[0] != "sooner" || got[1] != "soon" {
		t.Errorf("UpcomingRenewals = %v, want [sooner soon]", got)
	}
}

func TestSummarize(t *testing.T) {
	items := []Subscription{
		decided(sub("a", 15, CycleMonthly, "USD"), DecisionCancel, nil),
		decided(sub("b", 10, CycleMonthly, "USD"), DecisionKeep, nil),
		decided(sub("c", 120, CycleYearly, "USD"), DecisionReview, nil),
	}
	s := Summarize(items, "USD", Rates{"USD": 1}, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	if s.Count != 3 || s.ActiveCount != 1 || s.ReviewCount != 1 || s.CancelCount != 1 {
		t.Errorf("counts = %+v", s)
	}
	if s.MonthlyTotal != 35 || s.YearlyTotal != 420 {
		t.Errorf("totals = %v / %v, want 35 / 420", s.MonthlyTotal, s.YearlyTotal)
	}
	if s.PotentialMonthlySavings != 15 || s.PotentialYearlySavings != 180 {
		t.Errorf("savings = %v / %v, want 15 / 180", s.PotentialMonthlySavings, s.PotentialYearlySavings)
	}
	if s.PaidSoFarThisYear != 0 {
		t.Errorf("PaidSoFarThisYear = %v, want 0", s.PaidSoFarThisYear)
	}
}

func names(items []Subscription) []string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = s.Name
	}
	return out
}
