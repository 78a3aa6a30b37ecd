package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/GiGurra/boa/pkg/boa"
	"github.com/gigurra/subsaver/internal"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type AddParams struct {
	Name       string  `descr:"Subscription name" positional:"true"`
	Price      float64 `descr:"Price per billing cycle"`
	Renewal    string  `descr:"Next renewal date (YYYY-MM-DD)"`
	Cycle      string  `descr:"Billing cycle" alts:"weekly,monthly,yearly" strict:"true" default:"monthly"`
	Currency   string  `descr:"Currency code (default: the default currency)" optional:"true"`
	Decision   string  `descr:"Initial decision" alts:"keep,review,cancel" strict:"true" default:"keep"`
	Service    string  `descr:"Catalog service id (default: suggested from the name)" optional:"true"`
	NotifyDays int     `descr:"Days before renewal to remind (-1: the default)" default:"-1"`
	NotifyAt   string  `descr:"Time of day to remind (HH:MM)" default:"09:00"`
	NoNotify   bool    `descr:"Don't remind about this subscription" optional:"true"`
	Output     string  `descr:"Output format" alts:"table,json" strict:"true" default:"table"`
}

type UpdateParams struct {
	ID         string `descr:"Subscription id or unique id prefix" positional:"true"`
	Name       string `descr:"New name" optional:"true"`
	Price      string `descr:"New price" optional:"true"`
	Renewal    string `descr:"New renewal date (YYYY-MM-DD)" optional:"true"`
	Cycle      string `descr:"New billing cycle" alts:"weekly,monthly,yearly" strict:"true" optional:"true"`
	Currency   string `descr:"New currency code" optional:"true"`
	Decision   string `descr:"Suggested decision" alts:"keep,review,cancel" strict:"true" optional:"true"`
	Override   string `descr:"Your own decision, 'none' clears it" alts:"keep,review,cancel,none" strict:"true" optional:"true"`
	LastUsed   string `descr:"Date the subscription was last used (YYYY-MM-DD)" optional:"true"`
	Service    string `descr:"Catalog service id, 'none' clears it" optional:"true"`
	Notify     string `descr:"Reminders for this subscription" alts:"on,off" strict:"true" optional:"true"`
	NotifyDays string `descr:"Days before renewal to remind" optional:"true"`
	NotifyAt   string `descr:"Time of day to remind (HH:MM)" optional:"true"`
	Output     string `descr:"Output format" alts:"table,json" strict:"true" default:"table"`
}

type DeleteParams struct {
	IDs string `descr:"Comma-separated subscription ids or unique id prefixes" positional:"true"`
}

type ListParams struct {
	Show     string `descr:"Which subscriptions to show" alts:"all,keep,review,cancel" strict:"true" default:"all"`
	Sort     string `descr:"Sort by field" alts:"name,price,monthly,renewal" strict:"true" default:"name"`
	Desc     bool   `descr:"Sort descending" optional:"true"`
	Currency string `descr:"Currency to show costs in (default: the default currency)" optional:"true"`
	Output   string `descr:"Output format" alts:"table,json" strict:"true" default:"table"`
}

type SummaryParams struct {
	Currency string `descr:"Currency to show costs in (default: the default currency)" optional:"true"`
	Output   string `descr:"Output format" alts:"table,json" strict:"true" default:"table"`
}

type UpcomingParams struct {
	Days      int    `descr:"How many days ahead to look" default:"30"`
	Reminders bool   `descr:"Show planned reminders instead of renewals" optional:"true"`
	Output    string `descr:"Output format" alts:"table,json" strict:"true" default:"table"`
}

type SettingsParams struct {
	Currency      string `descr:"Set the default currency" optional:"true"`
	Notifications string `descr:"Turn all reminders on or off" alts:"on,off" strict:"true" optional:"true"`
	DaysBefore    int    `descr:"Set the reminder lead time for new subscriptions (-1: unchanged)" default:"-1"`
	Output        string `descr:"Output format" alts:"table,json" strict:"true" default:"table"`
}

type RatesParams struct {
	Refresh bool   `descr:"Fetch the latest rates first" optional:"true"`
	Output  string `descr:"Output format" alts:"table,json" strict:"true" default:"table"`
}

type ImportParams struct {
	File   string `descr:"File to import, optionally prefixed with its format (simple-json:subs.json)" positional:"true"`
	DryRun bool   `descr:"Show what would be imported without saving" optional:"true"`
	Output string `descr:"Output format" alts:"table,json" strict:"true" default:"table"`
}

type ExportParams struct {
	File     string `descr:"Path of the xlsx file to write" positional:"true"`
	Currency string `descr:"Currency for the cost columns (default: the default currency)" optional:"true"`
}

type WatchParams struct {
	RefreshInterval string `descr:"How often to refresh exchange rates (default: from config)" optional:"true"`
}

type InitParams struct {
	Force bool `descr:"Overwrite an existing config file" optional:"true"`
}

func initCmd() *cobra.Command {
	return boa.NewCmdT[InitParams]("init").
		WithShort("Write a config file with the default settings").
		WithRunFunc(func(params *InitParams) {
			if _, err := os.Stat(configPath); err == nil && !params.Force {
				fail("writing config", fmt.Errorf("%s already exists, use --force to overwrite it", configPath))
			}
			if err := internal.DefaultConfig().Save(configPath); err != nil {
				fail("writing config", err)
			}
			fmt.Printf("Wrote default config to %s\n", configPath)
		}).
		ToCobra()
}

func addCmd() *cobra.Command {
	return boa.NewCmdT[AddParams]("add").
		WithShort("Add a subscription").
		WithRunFunc(func(params *AddParams) {
			ctx := context.Background()
			a := openApp(ctx)
			defer a.Close()

			renewal, err := internal.ParseDate(params.Renewal)
			if err != nil {
				fail("invalid renewal date", err)
			}
			cycle, err := internal.ParseCycle(params.Cycle)
			if err != nil {
				fail("invalid cycle", err)
			}

			sub := a.store.NewSubscription(params.Name, params.Price, cycle, renewal)
			if params.Currency != "" {
				sub.CurrencyCode = params.Currency
			}
			if sub.AIDecision, err = internal.ParseDecision(params.Decision); err != nil {
				fail("invalid decision", err)
			}
			if err := applyService(&sub, params.Service, true); err != nil {
				fail("invalid service", err)
			}
			if params.NotifyDays >= 0 {
				sub.NotifyDaysBefore = params.NotifyDays
			}
			if sub.NotifyHour, sub.NotifyMinute, err = parseClock(params.NotifyAt); err != nil {
				fail("invalid reminder time", err)
			}
			sub.NotifyEnabled = !params.NoNotify

			added, err := a.store.Add(ctx, sub)
			if err != nil {
				fail("adding subscription", err)
			}
			printRecords(a, []internal.Subscription{added}, params.Output, "")
		}).
		ToCobra()
}

func updateCmd() *cobra.Command {
	return boa.NewCmdT[UpdateParams]("update").
		WithShort("Change fields of a subscription").
		WithRunFunc(func(params *UpdateParams) {
			ctx := context.Background()
			a := openApp(ctx)
			defer a.Close()

			sub, err := a.store.FindByPrefix(params.ID)
			if err != nil {
				fail("finding subscription", err)
			}
			if err := applyUpdate(&sub, params); err != nil {
				fail("invalid update", err)
			}
			updated, err := a.store.Update(ctx, sub)
			if err != nil {
				fail("updating subscription", err)
			}
			printRecords(a, []internal.Subscription{updated}, params.Output, "")
		}).
		ToCobra()
}

func applyUpdate(sub *internal.Subscription, p *UpdateParams) error {
	var err error
	if p.Name != "" {
		sub.Name = p.Name
	}
	if p.Price != "" {
		if sub.Price, err = strconv.ParseFloat(p.Price, 64); err != nil {
			return fmt.Errorf("price %q: %w", p.Price, err)
		}
	}
	if p.Renewal != "" {
		if sub.RenewalDate, err = internal.ParseDate(p.Renewal); err != nil {
			return err
		}
	}
	if p.Cycle != "" {
		if sub.Cycle, err = internal.ParseCycle(p.Cycle); err != nil {
			return err
		}
	}
	if p.Currency != "" {
		sub.CurrencyCode = p.Currency
	}
	if p.Decision != "" {
		if sub.AIDecision, err = internal.ParseDecision(p.Decision); err != nil {
			return err
		}
	}
	switch p.Override {
	case "":
	case "none":
		sub.OverrideDecision = nil
	default:
		d, err := internal.ParseDecision(p.Override)
		if err != nil {
			return err
		}
		sub.OverrideDecision = &d
	}
	if p.LastUsed != "" {
		lastUsed, err := internal.ParseDate(p.LastUsed)
		if err != nil {
			return err
		}
		sub.LastUsedDate = &lastUsed
	}
	if err := applyService(sub, p.Service, false); err != nil {
		return err
	}
	switch p.Notify {
	case "on":
		sub.NotifyEnabled = true
	case "off":
		sub.NotifyEnabled = false
	}
	if p.NotifyDays != "" {
		if sub.NotifyDaysBefore, err = strconv.Atoi(p.NotifyDays); err != nil {
			return fmt.Errorf("notify days %q: %w", p.NotifyDays, err)
		}
	}
	if p.NotifyAt != "" {
		if sub.NotifyHour, sub.NotifyMinute, err = parseClock(p.NotifyAt); err != nil {
			return err
		}
	}
	return nil
}

// applyService links sub to a catalog service. An empty value suggests one
// from the name when suggest is set; "none" removes the link.
func applyService(sub *internal.Subscription, value string, suggest bool) error {
	switch value {
	case "":
		if suggest {
			if id, ok := internal.MatchService(sub.Name); ok {
				sub.Service = &id
			}
		}
		return nil
	case "none":
		sub.Service = nil
		return nil
	}
	id := internal.ServiceID(value)
	if !id.Known() {
		return fmt.Errorf("unknown service %q (known: %v)", value, internal.KnownServices())
	}
	sub.Service = &id
	return nil
}

func parseClock(s string) (int, int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("time %q: want HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}

func deleteCmd() *cobra.Command {
	return boa.NewCmdT[DeleteParams]("delete").
		WithShort("Delete subscriptions and their reminders").
		WithRunFunc(func(params *DeleteParams) {
			ctx := context.Background()
			a := openApp(ctx)
			defer a.Close()

			var ids []uuid.UUID
			for _, part := range strings.Split(params.IDs, ",") {
				if strings.TrimSpace(part) == "" {
					continue
				}
				sub, err := a.store.FindByPrefix(part)
				if err != nil {
					fail("finding subscription", err)
				}
				ids = append(ids, sub.ID)
			}
			if err := a.store.Delete(ctx, ids...); err != nil {
				fail("deleting", err)
			}
			fmt.Printf("Deleted %d subscription(s)\n", len(ids))
		}).
		ToCobra()
}

func listCmd() *cobra.Command {
	return boa.NewCmdT[ListParams]("list").
		WithShort("List subscriptions").
		WithRunFunc(func(params *ListParams) {
			ctx := context.Background()
			a := openApp(ctx)
			defer a.Close()

			all := a.store.Items()
			shown, err := internal.FilterByDecision(all, params.Show)
			if err != nil {
				fail("invalid filter", err)
			}
			dir := "asc"
			if params.Desc {
				dir = "desc"
			}
			target := targetCurrency(a, params.Currency)
			rates := a.store.Settings().FXRates

			if params.Output == "json" {
				internal.SortSubscriptions(shown, params.Sort, dir, target, rates)
				printRecords(a, shown, "json", target)
				return
			}
			internal.PrintSubscriptionsTable(os.Stdout, all, shown, internal.OutputOptions{
				ShowFilter: params.Show,
				SortField:  params.Sort,
				SortDir:    dir,
				Currency:   internal.GetCurrency(target),
				Rates:      rates,
			})
		}).
		ToCobra()
}

func summaryCmd() *cobra.Command {
	return boa.NewCmdT[SummaryParams]("summary").
		WithShort("Show totals and potential savings").
		WithRunFunc(func(params *SummaryParams) {
			ctx := context.Background()
			a := openApp(ctx)
			defer a.Close()

			summary := a.store.Summary(params.Currency)
			if params.Output == "json" {
				if err := internal.PrintSummaryJSON(os.Stdout, summary); err != nil {
					fail("writing output", err)
				}
				return
			}
			internal.PrintSummary(os.Stdout, summary, a.store.CancelCandidates(), a.store.Settings().FXRates, a.store.Items())
		}).
		ToCobra()
}

func upcomingCmd() *cobra.Command {
	return boa.NewCmdT[UpcomingParams]("upcoming").
		WithShort("Show upcoming renewals or planned reminders").
		WithRunFunc(func(params *UpcomingParams) {
			ctx := context.Background()
			a := openApp(ctx)
			defer a.Close()

			if params.Reminders {
				// reminders are scheduled asynchronously after load
				a.store.RescheduleAllReminders()
				if err := a.store.Flush(ctx); err != nil {
					fail("scheduling reminders", err)
				}
				pending, err := a.store.PendingReminders(ctx)
				if err != nil {
					fail("reading reminders", err)
				}
				planned := a.store.PlannedReminders()
				if params.Output == "json" {
					if err := internal.PrintRemindersJSON(os.Stdout, planned, pending); err != nil {
						fail("writing output", err)
					}
					return
				}
				internal.PrintReminders(os.Stdout, planned, pending, a.store.Settings().NotificationsEnabled)
				return
			}

			today := a.store.RenewingToday()
			overdue := a.store.OverdueRenewals()
			upcoming := a.store.UpcomingRenewals(params.Days)
			if params.Output == "json" {
				if err := internal.PrintValueJSON(os.Stdout, map[string][]internal.JSONSubscription{
					"today":    toJSON(a, today),
					"overdue":  toJSON(a, overdue),
					"upcoming": toJSON(a, upcoming),
				}); err != nil {
					fail("writing output", err)
				}
				return
			}
			internal.PrintRenewals(os.Stdout, today, overdue, upcoming, a.store.Now())
		}).
		ToCobra()
}

func settingsCmd() *cobra.Command {
	return boa.NewCmdT[SettingsParams]("settings").
		WithShort("Show or change settings").
		WithRunFunc(func(params *SettingsParams) {
			ctx := context.Background()
			a := openApp(ctx)
			defer a.Close()

			if params.Currency != "" {
				if err := a.store.SetDefaultCurrency(ctx, params.Currency); err != nil {
					fail("setting currency", err)
				}
			}
			if params.Notifications != "" {
				if err := a.store.SetNotificationsEnabled(ctx, params.Notifications == "on"); err != nil {
					fail("setting notifications", err)
				}
			}
			if params.DaysBefore >= 0 {
				if err := a.store.SetReminderDaysBefore(ctx, params.DaysBefore); err != nil {
					fail("setting reminder days", err)
				}
			}
			if err := a.store.Flush(ctx); err != nil {
				fail("applying settings", err)
			}

			settings := a.store.Settings()
			if params.Output == "json" {
				if err := internal.PrintValueJSON(os.Stdout, map[string]any{
					"default_currency":      settings.DefaultCurrency,
					"notifications_enabled": settings.NotificationsEnabled,
					"reminder_days_before":  settings.ReminderDaysBefore,
				}); err != nil {
					fail("writing output", err)
				}
				return
			}
			internal.PrintSettings(os.Stdout, settings)
		}).
		ToCobra()
}

func ratesCmd() *cobra.Command {
	return boa.NewCmdT[RatesParams]("rates").
		WithShort("Show exchange rates").
		WithRunFunc(func(params *RatesParams) {
			ctx := context.Background()
			a := openApp(ctx)
			defer a.Close()

			if params.Refresh {
				if err := a.store.RefreshRates(ctx); err != nil {
					fail("refreshing rates", err)
				}
			}
			rates := a.store.Settings().FXRates
			if params.Output == "json" {
				if err := internal.PrintValueJSON(os.Stdout, rates); err != nil {
					fail("writing output", err)
				}
				return
			}
			internal.PrintRates(os.Stdout, rates)
		}).
		ToCobra()
}

func importCmd() *cobra.Command {
	return boa.NewCmdT[ImportParams]("import").
		WithShort("Import subscriptions from a file").
		WithLong(fmt.Sprintf("Imports subscriptions. Formats: %v, chosen by prefix or file extension.", internal.AvailableFormats())).
		WithRunFunc(func(params *ImportParams) {
			ctx := context.Background()
			a := openApp(ctx)
			defer a.Close()

			settings := a.store.Settings()
			subs, err := internal.ImportFile(params.File, internal.ImportDefaults{
				ReminderDaysBefore: settings.ReminderDaysBefore,
			})
			if err != nil {
				fail("importing", err)
			}
			if params.DryRun {
				for i := range subs {
					if subs[i].CurrencyCode == "" {
						subs[i].CurrencyCode = settings.DefaultCurrency
					}
				}
				printRecords(a, subs, params.Output, "")
				return
			}

			var added []internal.Subscription
			for _, sub := range subs {
				result, err := a.store.Add(ctx, sub)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Skipping %q: %v\n", sub.Name, err)
					continue
				}
				added = append(added, result)
			}
			if params.Output != "json" {
				fmt.Printf("Imported %d of %d subscriptions\n\n", len(added), len(subs))
			}
			printRecords(a, added, params.Output, "")
		}).
		ToCobra()
}

func exportCmd() *cobra.Command {
	return boa.NewCmdT[ExportParams]("export").
		WithShort("Export subscriptions to an xlsx workbook").
		WithRunFunc(func(params *ExportParams) {
			ctx := context.Background()
			a := openApp(ctx)
			defer a.Close()

			target := targetCurrency(a, params.Currency)
			if err := internal.ExportXLSX(params.File, a.store.Items(), target, a.store.Settings().FXRates); err != nil {
				fail("exporting", err)
			}
			fmt.Printf("Exported %d subscriptions to %s\n", len(a.store.Items()), params.File)
		}).
		ToCobra()
}

func watchCmd() *cobra.Command {
	return boa.NewCmdT[WatchParams]("watch").
		WithShort("Run in the foreground, delivering reminders and following replica changes").
		WithRunFunc(func(params *WatchParams) {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a := openApp(ctx)
			defer a.Close()

			interval := a.cfg.Rates.RefreshInterval
			if params.RefreshInterval != "" {
				d, err := time.ParseDuration(params.RefreshInterval)
				if err != nil {
					fail("invalid refresh interval", err)
				}
				interval = d
			}

			a.store.RescheduleAllReminders()

			if a.replica != nil {
				go func() {
					if err := a.store.Watch(ctx); err != nil {
						a.log.Error().Err(err).Msg("replica watch stopped")
					}
				}()
			}

			var tick <-chan time.Time
			if a.cfg.Rates.Enabled && interval > 0 {
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				tick = ticker.C
			}

			a.log.Info().
				Int("subscriptions", len(a.store.Items())).
				Bool("replica", a.replica != nil).
				Dur("rate_refresh", interval).
				Msg("watching, press Ctrl+C to stop")

			for {
				select {
				case <-ctx.Done():
					a.log.Info().Msg("stopping")
					return
				case <-tick:
					a.store.RequestRateRefresh()
				}
			}
		}).
		ToCobra()
}

func targetCurrency(a *app, code string) string {
	if code == "" {
		return a.store.Settings().DefaultCurrency
	}
	return strings.ToUpper(code)
}

func toJSON(a *app, subs []internal.Subscription) []internal.JSONSubscription {
	settings := a.store.Settings()
	out := make([]internal.JSONSubscription, 0, len(subs))
	for _, sub := range subs {
		out = append(out, internal.ToJSONSubscription(sub, settings.DefaultCurrency, settings.FXRates))
	}
	return out
}

// printRecords prints records with the summary of the whole store, as a
// table or as JSON.
func printRecords(a *app, subs []internal.Subscription, output, target string) {
	target = targetCurrency(a, target)
	summary := a.store.Summary(target)
	rates := a.store.Settings().FXRates
	if output == "json" {
		if err := internal.PrintSubscriptionsJSON(os.Stdout, subs, summary, rates); err != nil {
			fail("writing output", err)
		}
		return
	}
	internal.PrintSubscriptionsTable(os.Stdout, a.store.Items(), subs, internal.OutputOptions{
		ShowFilter: "selected",
		SortField:  "name",
		Currency:   internal.GetCurrency(target),
		Rates:      rates,
	})
}
