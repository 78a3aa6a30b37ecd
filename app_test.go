package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gigurra/subsaver/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	dataFile := filepath.Join(dir, "state.json")
	configPath := filepath.Join(dir, "config.yaml")
	config := "data_file: " + dataFile + "\ndefault_currency: EUR\nrates:\n  enabled: false\nlog:\n  level: disabled\n"
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0o644))
	return configPath, dataFile
}

func TestNewApp_PersistsAcrossRuns(t *testing.T) {
	ctx := context.Background()
	configPath, dataFile := writeTestConfig(t)

	a, err := newApp(ctx, configPath)
	require.NoError(t, err)
	assert.Nil(t, a.replica)
	assert.Equal(t, "EUR", a.store.Settings().DefaultCurrency)

	sub := a.store.NewSubscription("Netflix", 9.99, internal.CycleMonthly, mustDate(t, "2099-06-10"))
	added, err := a.store.Add(ctx, sub)
	require.NoError(t, err)
	a.Close()

	_, err = os.Stat(dataFile)
	require.NoError(t, err)

	b, err := newApp(ctx, configPath)
	require.NoError(t, err)
	defer b.Close()
	items := b.store.Items()
	require.Len(t, items, 1)
	assert.Equal(t, added.ID, items[0].ID)
	assert.Equal(t, "EUR", items[0].CurrencyCode)
}

func TestNewApp_CorruptDataStartsFresh(t *testing.T) {
	configPath, dataFile := writeTestConfig(t)
	require.NoError(t, os.WriteFile(dataFile, []byte("{not json"), 0o644))

	a, err := newApp(context.Background(), configPath)
	require.NoError(t, err)
	defer a.Close()
	assert.Empty(t, a.store.Items())
}

func TestNewApp_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("rates: [oops"), 0o644))

	_, err := newApp(context.Background(), configPath)
	assert.Error(t, err)
}

func TestApplyUpdate(t *testing.T) {
	sub := internal.NewSubscription("Gym", 30, internal.CycleMonthly, mustDate(t, "2099-01-01"))

	err := applyUpdate(&sub, &UpdateParams{
		Price:      "35.5",
		Override:   "cancel",
		Notify:     "off",
		NotifyDays: "7",
		NotifyAt:   "18:30",
		LastUsed:   "2098-12-01",
	})
	require.NoError(t, err)
	assert.Equal(t, 35.5, sub.Price)
	assert.Equal(t, internal.DecisionCancel, sub.EffectiveDecision())
	assert.False(t, sub.NotifyEnabled)
	assert.Equal(t, 7, sub.NotifyDaysBefore)
	assert.Equal(t, 18, sub.NotifyHour)
	assert.Equal(t, 30, sub.NotifyMinute)
	require.NotNil(t, sub.LastUsedDate)

	require.NoError(t, applyUpdate(&sub, &UpdateParams{Override: "none", Service: "spotify"}))
	assert.Nil(t, sub.OverrideDecision)
	assert.Equal(t, "Spotify", sub.DisplayName())

	assert.Error(t, applyUpdate(&sub, &UpdateParams{Price: "free"}))
	assert.Error(t, applyUpdate(&sub, &UpdateParams{NotifyAt: "25:00"}))
	assert.Error(t, applyUpdate(&sub, &UpdateParams{Service: "nope"}))
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := internal.ParseDate(s)
	require.NoError(t, err)
	return d
}
