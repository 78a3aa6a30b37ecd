//go:build darwin

package internal

import (
	"os"
	"os/exec"
	"strings"
)

// detectSystemLocale checks the environment first (terminal overrides),
// then the AppleLocale system preference.
func detectSystemLocale() string {
	if locale := localeFromEnv("LC_ALL", "LC_MONETARY", "LANG"); locale != "" {
		return locale
	}

	out, err := exec.Command("defaults", "read", "-g", "AppleLocale").Output()
	if err != nil {
		return ""
	}
	// AppleLocale is already in "sv_SE" form
	return strings.TrimSpace(string(out))
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
