package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gigurra/subsaver/internal"
	"github.com/xuri/excelize/v2"
)

// cliEnv is an isolated config and data file for one test
type cliEnv struct {
	t          *testing.T
	dir        string
	configPath string
}

// newCLIEnv writes a config that keeps the CLI offline and away from the
// user's own data. extraConfig is appended to it.
func newCLIEnv(t *testing.T, extraConfig string) *cliEnv {
	t.Helper()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	config := fmt.Sprintf(`
data_file: %s
default_currency: USD
rates:
  enabled: false
log:
  level: error
%s`, filepath.Join(tmpDir, "state.json"), extraConfig)
	if err := os.WriteFile(configPath, []byte(config), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return &cliEnv{t: t, dir: tmpDir, configPath: configPath}
}

func (e *cliEnv) command(args ...string) *exec.Cmd {
	fullArgs := append([]string{"run", ".", "--config", e.configPath}, args...)
	return exec.Command("go", fullArgs...)
}

// run runs the subsaver CLI with the given args and returns stdout
func (e *cliEnv) run(args ...string) string {
	e.t.Helper()

	// Capture stdout only (stderr has go download messages)
	output, err := e.command(args...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			e.t.Fatalf("CLI failed: %v\nStderr: %s", err, exitErr.Stderr)
		}
		e.t.Fatalf("CLI failed: %v", err)
	}
	return string(output)
}

// runFailing runs the CLI expecting a non-zero exit and returns stderr
func (e *cliEnv) runFailing(args ...string) string {
	e.t.Helper()

	cmd := e.command(args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err == nil {
		e.t.Fatalf("expected %v to fail", args)
	}
	return stderr.String()
}

// runJSON runs the CLI with JSON output and parses the result
func (e *cliEnv) runJSON(args ...string) internal.JSONOutput {
	e.t.Helper()
	output := e.run(append(args, "--output", "json")...)

	var result internal.JSONOutput
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		e.t.Fatalf("failed to parse JSON output: %v\nOutput: %s", err, output)
	}
	return result
}

func (e *cliEnv) add(name, price, cycle, renewal string, extra ...string) internal.JSONSubscription {
	e.t.Helper()
	args := append([]string{"add", name, "--price", price, "--cycle", cycle, "--renewal", renewal}, extra...)
	result := e.runJSON(args...)
	if len(result.Subscriptions) != 1 {
		e.t.Fatalf("add returned %d subscriptions", len(result.Subscriptions))
	}
	return result.Subscriptions[0]
}

func TestCLI_AddAndList(t *testing.T) {
	env := newCLIEnv(t, "")

	netflix := env.add("Netflix", "9.99", "monthly", "2099-06-10")
	if netflix.Service != "Netflix" {
		t.Errorf("expected the Netflix service to be suggested, got %q", netflix.Service)
	}
	env.add("Cloud", "120", "yearly", "2099-03-01", "--decision", "cancel")

	result := env.runJSON("list")
	if result.Summary.Count != 2 {
		t.Fatalf("expected 2 subscriptions, got %d", result.Summary.Count)
	}
	if result.Summary.MonthlyTotal != 19.99 {
		t.Errorf("expected monthly total 19.99, got %v", result.Summary.MonthlyTotal)
	}
	if result.Summary.YearlyTotal != 239.88 {
		t.Errorf("expected yearly total 239.88, got %v", result.Summary.YearlyTotal)
	}
	if result.Summary.PotentialMonthlySavings != 10 {
		t.Errorf("expected savings 10, got %v", result.Summary.PotentialMonthlySavings)
	}

	cancel := env.runJSON("list", "--show", "cancel")
	if len(cancel.Subscriptions) != 1 || cancel.Subscriptions[0].Name != "Cloud" {
		t.Errorf("expected only Cloud marked for cancel, got %+v", cancel.Subscriptions)
	}
}

func TestCLI_TableOutput(t *testing.T) {
	env := newCLIEnv(t, "")
	env.add("Spotify", "10.99", "monthly", "2099-01-05")

	output := env.run("list")
	if !strings.Contains(output, "Showing: all") {
		t.Errorf("expected 'Showing: all', got: %s", output)
	}
	if !strings.Contains(output, "Spotify") || !strings.Contains(output, "$10.99") {
		t.Errorf("expected Spotify at $10.99, got: %s", output)
	}
}

func TestCLI_UpdateAndDelete(t *testing.T) {
	env := newCLIEnv(t, "")
	gym := env.add("Gym", "30", "monthly", "2099-02-01")
	music := env.add("Music", "10", "monthly", "2099-02-02")

	updated := env.runJSON("update", gym.ID[:8], "--price", "35", "--override", "cancel")
	if updated.Subscriptions[0].Price != 35 || updated.Subscriptions[0].Decision != "cancel" {
		t.Errorf("update not applied: %+v", updated.Subscriptions[0])
	}

	stderr := env.runFailing("update", "00000000-0000-0000-0000-000000000000", "--price", "1")
	if !strings.Contains(stderr, "not found") {
		t.Errorf("expected a not found error, got: %s", stderr)
	}

	stderr = env.runFailing("update", music.ID, "--price", "-5")
	if !strings.Contains(stderr, "invalid subscription") {
		t.Errorf("expected a validation error, got: %s", stderr)
	}

	env.run("delete", gym.ID)
	result := env.runJSON("list")
	if result.Summary.Count != 1 || result.Subscriptions[0].Name != "Music" || result.Subscriptions[0].Price != 10 {
		t.Errorf("expected only the unchanged Music record, got %+v", result.Subscriptions)
	}
}

func TestCLI_Settings(t *testing.T) {
	env := newCLIEnv(t, "")

	output := env.run("settings", "--days-before", "5", "--notifications", "off", "--output", "json")
	var settings map[string]any
	if err := json.Unmarshal([]byte(output), &settings); err != nil {
		t.Fatalf("failed to parse settings: %v\nOutput: %s", err, output)
	}
	if settings["reminder_days_before"] != 5.0 || settings["notifications_enabled"] != false {
		t.Errorf("settings not applied: %v", settings)
	}

	sub := env.add("Gym", "30", "monthly", "2099-02-01")
	if !sub.NotifyEnabled {
		t.Error("a new record keeps its own reminder flag")
	}

	stderr := env.runFailing("settings", "--days-before", "31")
	if !strings.Contains(stderr, "invalid setting") {
		t.Errorf("expected a setting error, got: %s", stderr)
	}
}

func TestCLI_ImportExport(t *testing.T) {
	env := newCLIEnv(t, "")

	result := env.runJSON("import", "testdata/subscriptions.json")
	if len(result.Subscriptions) != 3 {
		t.Fatalf("expected 3 imported subscriptions, got %d", len(result.Subscriptions))
	}

	exported := filepath.Join(env.dir, "subs.xlsx")
	env.run("export", exported)

	f, err := excelize.OpenFile(exported)
	if err != nil {
		t.Fatalf("failed to open export: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("Subscriptions")
	if err != nil {
		t.Fatalf("failed to read export: %v", err)
	}
	// header, three records, a blank row and the totals
	if len(rows) != 6 || rows[0][0] != "Name" || rows[5][5] != "Total" {
		t.Errorf("unexpected export layout: %v", rows)
	}

	other := newCLIEnv(t, "")
	reimported := other.runJSON("import", "xlsx:"+exported)
	if len(reimported.Subscriptions) != 3 || reimported.Summary.MonthlyTotal != result.Summary.MonthlyTotal {
		t.Errorf("round trip changed the data: %+v vs %+v", reimported.Summary, result.Summary)
	}
}

func TestCLI_UpcomingReminders(t *testing.T) {
	env := newCLIEnv(t, "")
	env.add("Netflix", "9.99", "monthly", "2099-06-10", "--notify-days", "3", "--notify-at", "09:00")
	env.add("Quiet", "1", "monthly", "2099-06-10", "--no-notify")

	output := env.run("upcoming", "--reminders", "--output", "json")
	var reminders []internal.JSONReminder
	if err := json.Unmarshal([]byte(output), &reminders); err != nil {
		t.Fatalf("failed to parse reminders: %v\nOutput: %s", err, output)
	}
	if len(reminders) != 1 {
		t.Fatalf("expected 1 planned reminder, got %d", len(reminders))
	}
	if !strings.HasPrefix(reminders[0].FireAt, "2099-06-07T09:00:00") || !reminders[0].Pending {
		t.Errorf("unexpected reminder: %+v", reminders[0])
	}
	if reminders[0].Body != "Netflix renews in 3 days" {
		t.Errorf("unexpected body %q", reminders[0].Body)
	}
}

func TestCLI_ImportUsesStoreDefaults(t *testing.T) {
	env := newCLIEnv(t, "")
	env.run("settings", "--currency", "CHF", "--days-before", "5")

	path := filepath.Join(env.dir, "bare.json")
	doc := `[{"name": "Gym", "price": 30, "cycle": "monthly", "renewalDate": "2099-06-10"}]`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("failed to write import file: %v", err)
	}

	result := env.runJSON("import", path)
	if len(result.Subscriptions) != 1 || result.Subscriptions[0].Currency != "CHF" {
		t.Fatalf("expected the store currency CHF, got %+v", result.Subscriptions)
	}

	output := env.run("upcoming", "--reminders", "--output", "json")
	var reminders []internal.JSONReminder
	if err := json.Unmarshal([]byte(output), &reminders); err != nil {
		t.Fatalf("failed to parse reminders: %v\nOutput: %s", err, output)
	}
	if len(reminders) != 1 || !strings.HasPrefix(reminders[0].FireAt, "2099-06-05T09:00:00") {
		t.Errorf("expected a reminder 5 days ahead, got %+v", reminders)
	}
}

func TestCLI_Init(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")
	run := func(args ...string) error {
		return exec.Command("go", append([]string{"run", ".", "--config", configPath, "init"}, args...)...).Run()
	}

	if err := run(); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	cfg, err := internal.LoadConfig(configPath)
	if err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
	if cfg.Notifications.Title != internal.DefaultConfig().Notifications.Title {
		t.Errorf("unexpected config: %+v", cfg)
	}

	if err := run(); err == nil {
		t.Error("init should refuse to overwrite an existing config")
	}
	if err := run("--force"); err != nil {
		t.Errorf("init --force failed: %v", err)
	}
}
