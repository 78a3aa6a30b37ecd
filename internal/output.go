package internal

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/shopspring/decimal"
)

// OutputOptions controls how subscriptions are displayed
type OutputOptions struct {
	ShowFilter string // all, keep, review or cancel
	SortField  string // name, price, monthly or renewal
	SortDir    string
	Currency   Currency
	Rates      Rates
}

// JSONOutput is the root JSON output object
type JSONOutput struct {
	Subscriptions []JSONSubscription `json:"subscriptions"`
	Summary       JSONSummary        `json:"summary"`
}

// JSONSummary contains aggregate statistics
type JSONSummary struct {
	Count                   int            `json:"count"`
	ActiveCount             int            `json:"active_count"`
	ReviewCount             int            `json:"review_count"`
	CancelCount             int            `json:"cancel_count"`
	MonthlyTotal            float64        `json:"monthly_total"`
	YearlyTotal             float64        `json:"yearly_total"`
	PotentialMonthlySavings float64        `json:"potential_monthly_savings"`
	PotentialYearlySavings  float64        `json:"potential_yearly_savings"`
	PaidSoFarThisYear       float64        `json:"paid_so_far_this_year"`
	Cycles                  map[string]int `json:"cycles"`
	Currency                string         `json:"currency"`
}

// JSONSubscription is the JSON output format for a subscription
type JSONSubscription struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Service       string  `json:"service,omitempty"`
	Decision      string  `json:"decision"`
	Cycle         string  `json:"cycle"`
	Price         float64 `json:"price"`
	Currency      string  `json:"currency"`
	MonthlyCost   float64 `json:"monthly_cost"`
	YearlyCost    float64 `json:"yearly_cost"`
	RenewalDate   string  `json:"renewal_date"`
	LastUsedDate  string  `json:"last_used_date,omitempty"`
	NotifyEnabled bool    `json:"notify_enabled"`
}

// JSONReminder is the JSON output format for a planned reminder
type JSONReminder struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	FireAt  string `json:"fire_at"`
	Body    string `json:"body"`
	Passed  bool   `json:"passed"`
	Pending bool   `json:"pending"`
}

// money rounds to cents the way the totals are shown on screen.
func money(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// ToJSONSubscription converts a record, with its cost in target currency
func ToJSONSubscription(sub Subscription, target string, rates Rates) JSONSubscription {
	monthly := MonthlyAmount(sub, target, rates)
	out := JSONSubscription{
		ID:            sub.ID.String(),
		Name:          sub.Name,
		Decision:      string(sub.EffectiveDecision()),
		Cycle:         string(sub.Cycle),
		Price:         money(sub.Price),
		Currency:      sub.CurrencyCode,
		MonthlyCost:   money(monthly),
		YearlyCost:    money(monthly * 12),
		RenewalDate:   formatDate(sub.RenewalDate),
		NotifyEnabled: sub.NotifyEnabled,
	}
	if sub.Service != nil {
		out.Service = sub.Service.DisplayName()
	}
	if sub.LastUsedDate != nil {
		out.LastUsedDate = formatDate(*sub.LastUsedDate)
	}
	return out
}

func toJSONSummary(s Summary) JSONSummary {
	cycles := make(map[string]int, len(s.Cycles))
	for c, n := range s.Cycles {
		cycles[string(c)] = n
	}
	return JSONSummary{
		Count:                   s.Count,
		ActiveCount:             s.ActiveCount,
		ReviewCount:             s.ReviewCount,
		CancelCount:             s.CancelCount,
		MonthlyTotal:            money(s.MonthlyTotal),
		YearlyTotal:             money(s.YearlyTotal),
		PotentialMonthlySavings: money(s.PotentialMonthlySavings),
		PotentialYearlySavings:  money(s.PotentialYearlySavings),
		PaidSoFarThisYear:       money(s.PaidSoFarThisYear),
		Cycles:                  cycles,
		Currency:                s.Currency,
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintSubscriptionsJSON outputs subscriptions and the summary in JSON format
func PrintSubscriptionsJSON(w io.Writer, subs []Subscription, summary Summary, rates Rates) error {
	subscriptions := make([]JSONSubscription, 0, len(subs))
	for _, sub := range subs {
		subscriptions = append(subscriptions, ToJSONSubscription(sub, summary.Currency, rates))
	}
	return writeJSON(w, JSONOutput{
		Subscriptions: subscriptions,
		Summary:       toJSONSummary(summary),
	})
}

// PrintSummaryJSON outputs only the summary in JSON format
func PrintSummaryJSON(w io.Writer, summary Summary) error {
	return writeJSON(w, toJSONSummary(summary))
}

// PrintRemindersJSON outputs planned reminders, marking those the notifier holds
func PrintRemindersJSON(w io.Writer, planned []PlannedReminder, pending []Notification) error {
	out := make([]JSONReminder, 0, len(planned))
	held := pendingIDs(pending)
	for _, p := range planned {
		out = append(out, JSONReminder{
			ID:      p.Subscription.ID.String(),
			Name:    p.Subscription.DisplayName(),
			FireAt:  p.FireAt.Format(time.RFC3339),
			Body:    ReminderBody(p.Subscription),
			Passed:  p.Passed,
			Pending: held[p.Subscription.ID.String()],
		})
	}
	return writeJSON(w, out)
}

// PrintValueJSON outputs any value as indented JSON
func PrintValueJSON(w io.Writer, v any) error {
	return writeJSON(w, v)
}

func pendingIDs(pending []Notification) map[string]bool {
	held := make(map[string]bool, len(pending))
	for _, n := range pending {
		held[n.ID.String()] = true
	}
	return held
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Header = text.FormatDefault
	t.Style().Format.Footer = text.FormatDefault
	return t
}

func decisionCell(d Decision) string {
	switch d {
	case DecisionKeep:
		return text.FgGreen.Sprint("KEEP")
	case DecisionCancel:
		return text.FgRed.Sprint("CANCEL")
	default:
		return text.FgYellow.Sprint("REVIEW")
	}
}

func shortID(sub Subscription) string {
	return sub.ID.String()[:8]
}

// PrintSubscriptionsTable outputs subscriptions as a formatted table
func PrintSubscriptionsTable(w io.Writer, allSubs []Subscription, displaySubs []Subscription, opts OutputOptions) {
	keep := len(Active(allSubs))
	review := len(ByDecision(allSubs, DecisionReview))
	cancel := len(CancelCandidates(allSubs))

	target := opts.Currency.Code
	totalMonthlyCost := MonthlyTotal(displaySubs, target, opts.Rates)

	fmt.Fprintf(w, "Found %d subscriptions (%d keep, %d review, %d cancel)\n",
		len(allSubs), keep, review, cancel)
	fmt.Fprintf(w, "Showing: %s\n\n", opts.ShowFilter)

	SortSubscriptions(displaySubs, opts.SortField, opts.SortDir, target, opts.Rates)

	t := newTable(w)
	header := table.Row{"ID", "Name", "Decision", "Cycle", "Price", "Renews", "Monthly", "Yearly"}
	t.AppendHeader(header)

	for _, sub := range displaySubs {
		price := GetCurrency(sub.CurrencyCode).Format(sub.Price)
		monthly := MonthlyAmount(sub, target, opts.Rates)
		renews := formatDate(sub.RenewalDate)
		if !sub.NotifyEnabled {
			renews += text.FgHiBlack.Sprint(" (muted)")
		}
		t.AppendRow(table.Row{
			shortID(sub),
			sub.DisplayName(),
			decisionCell(sub.EffectiveDecision()),
			string(sub.Cycle),
			price,
			renews,
			opts.Currency.Format(monthly),
			opts.Currency.Format(monthly * 12),
		})
	}

	t.AppendSeparator()
	t.AppendFooter(table.Row{"", "", "", "", "", text.Bold.Sprint("Total"),
		text.Bold.Sprint(opts.Currency.Format(totalMonthlyCost)),
		text.Bold.Sprint(opts.Currency.Format(totalMonthlyCost * 12))})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
		{Number: 8, Align: text.AlignRight},
	})
	t.Render()
}

// PrintSummary outputs the aggregate figures as a two-column table
func PrintSummary(w io.Writer, s Summary, savings []Subscription, rates Rates, items []Subscription) {
	c := GetCurrency(s.Currency)
	t := newTable(w)
	t.AppendHeader(table.Row{"Summary", s.Currency})
	t.AppendRows([]table.Row{
		{"Subscriptions", fmt.Sprintf("%d (%d keep, %d review, %d cancel)", s.Count, s.ActiveCount, s.ReviewCount, s.CancelCount)},
		{"Monthly total", c.Format(s.MonthlyTotal)},
		{"Yearly total", c.Format(s.YearlyTotal)},
		{"Paid so far this year", c.Format(s.PaidSoFarThisYear)},
		{"Potential monthly savings", text.FgGreen.Sprint(c.Format(s.PotentialMonthlySavings))},
		{"Potential yearly savings", text.FgGreen.Sprint(c.Format(s.PotentialYearlySavings))},
	})
	t.AppendSeparator()
	for _, cycle := range Cycles {
		t.AppendRow(table.Row{"Billed " + string(cycle), s.Cycles[cycle]})
	}
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	t.Render()

	if len(savings) == 0 {
		return
	}
	fmt.Fprintln(w)
	st := newTable(w)
	st.AppendHeader(table.Row{"Cancel candidate", "Monthly", "Share of savings"})
	for _, sub := range savings {
		share := SavingsShare(sub, items, s.Currency, rates)
		st.AppendRow(table.Row{
			sub.DisplayName(),
			c.Format(MonthlyAmount(sub, s.Currency, rates)),
			fmt.Sprintf("%.0f%%", share*100),
		})
	}
	st.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	st.Render()
}

// PrintRenewals outputs records renewing today, overdue and upcoming
func PrintRenewals(w io.Writer, today, overdue, upcoming []Subscription, now time.Time) {
	t := newTable(w)
	t.AppendHeader(table.Row{"When", "Name", "Renews", "Price"})
	appendGroup := func(label string, items []Subscription, color text.Color) {
		for _, sub := range items {
			t.AppendRow(table.Row{
				color.Sprint(label),
				sub.DisplayName(),
				formatDate(sub.RenewalDate),
				GetCurrency(sub.CurrencyCode).Format(sub.Price),
			})
		}
	}
	appendGroup("overdue", overdue, text.FgRed)
	appendGroup("today", today, text.FgYellow)
	for _, sub := range upcoming {
		if sameDay(now, sub.RenewalDate) {
			continue
		}
		days := int(startOfDay(sub.RenewalDate).Sub(startOfDay(now)).Hours() / 24)
		appendGroup(fmt.Sprintf("in %d days", days), []Subscription{sub}, text.FgWhite)
	}
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 4, Align: text.AlignRight}})
	t.Render()
}

// PrintReminders outputs planned reminders and whether the notifier holds them
func PrintReminders(w io.Writer, planned []PlannedReminder, pending []Notification, enabled bool) {
	if !enabled {
		fmt.Fprintln(w, "Notifications are disabled.")
	}
	held := pendingIDs(pending)
	t := newTable(w)
	t.AppendHeader(table.Row{"Name", "Fires at", "Message", "State"})
	for _, p := range planned {
		state := text.FgGreen.Sprint("scheduled")
		switch {
		case p.Passed:
			state = text.FgHiBlack.Sprint("passed")
		case !held[p.Subscription.ID.String()]:
			state = text.FgYellow.Sprint("not scheduled")
		}
		t.AppendRow(table.Row{
			p.Subscription.DisplayName(),
			p.FireAt.Format("2006-01-02 15:04"),
			ReminderBody(p.Subscription),
			state,
		})
	}
	t.Render()
}

// PrintSettings outputs the store preferences
func PrintSettings(w io.Writer, s Settings) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Setting", "Value"})
	t.AppendRows([]table.Row{
		{"Default currency", s.DefaultCurrency},
		{"Notifications", onOff(s.NotificationsEnabled)},
		{"Reminder days before", s.ReminderDaysBefore},
	})
	t.Render()
}

// PrintRates outputs the exchange rate table against the base currency
func PrintRates(w io.Writer, rates Rates) {
	codes := make([]string, 0, len(rates))
	for code := range rates {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	t := newTable(w)
	t.AppendHeader(table.Row{"Currency", "Per 1 " + BaseCurrency})
	for _, code := range codes {
		t.AppendRow(table.Row{code, decimal.NewFromFloat(rates[code]).Round(4).String()})
	}
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	t.Render()
}

func onOff(b bool) string {
	if b {
		return text.FgGreen.Sprint("on")
	}
	return text.FgRed.Sprint("off")
}

// FilterByDecision filters subscriptions by effective decision (all/keep/review/cancel)
func FilterByDecision(subs []Subscription, show string) ([]Subscription, error) {
	if show == "" || show == "all" {
		return subs, nil
	}
	d, err := ParseDecision(show)
	if err != nil {
		return nil, err
	}
	return ByDecision(subs, d), nil
}

// SortSubscriptions sorts in place by name, price, monthly cost or renewal date
func SortSubscriptions(subs []Subscription, field, dir, target string, rates Rates) {
	sort.SliceStable(subs, func(i, j int) bool {
		var less bool
		switch field {
		case "price":
			less = subs[i].Price < subs[j].Price
		case "monthly":
			less = MonthlyAmount(subs[i], target, rates) < MonthlyAmount(subs[j], target, rates)
		case "renewal":
			less = subs[i].RenewalDate.Before(subs[j].RenewalDate)
		default: // "name"
			less = strings.ToLower(subs[i].DisplayName()) < strings.ToLower(subs[j].DisplayName())
		}
		if dir == "desc" {
			return !less
		}
		return less
	})
}
