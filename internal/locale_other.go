//go:build !darwin

package internal

import "os"

// detectSystemLocale returns the locale from the environment.
// LC_MONETARY is the most specific for currency, then LC_ALL, then LANG.
func detectSystemLocale() string {
	return localeFromEnv("LC_MONETARY", "LC_ALL", "LANG")
}

func localeFromEnv(vars ...string) string {
	for _, envVar := range vars {
		locale := os.Getenv(envVar)
		if locale != "" && locale != "C" && locale != "POSIX" {
			return locale
		}
	}
	return ""
}
