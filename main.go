package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/gigurra/subsaver/internal"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: could not read .env: %v\n", err)
	}

	root := &cobra.Command{
		Use:   "subsaver",
		Short: "Track subscriptions, their cost and when they renew",
		Long: "Keeps a list of recurring subscriptions, totals their cost in one currency, " +
			"marks the ones worth cancelling and reminds you before they renew.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", internal.DefaultConfigPath(), "Path to config file")

	root.AddCommand(
		initCmd(),
		addCmd(),
		updateCmd(),
		deleteCmd(),
		listCmd(),
		summaryCmd(),
		upcomingCmd(),
		settingsCmd(),
		ratesCmd(),
		importCmd(),
		exportCmd(),
		watchCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// fail prints err to stderr and exits. Commands run through boa, which has no
// error return, so this is how they report failure.
func fail(what string, err error) {
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", what, err)
	os.Exit(1)
}
