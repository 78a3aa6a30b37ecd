package internal

import (
	"regexp"
	"sort"
)

// ServiceID identifies a known subscription service in the catalog.
// It only affects how a record is displayed.
type ServiceID string

type catalogEntry struct {
	name    string
	pattern string
	regex   *regexp.Regexp
}

// serviceCatalog maps known services to display names and the name patterns used to
// suggest them. Patterns are matched case-insensitively against a subscription name.
var serviceCatalog = map[ServiceID]*catalogEntry{
	// Video streaming
	"netflix":          {name: "Netflix", pattern: `NETFLIX`},
	"youtubePremium":   {name: "YouTube Premium", pattern: `YOUTUBE\s*PREMIUM`},
	"disneyPlus":       {name: "Disney+", pattern: `DISNEY\s*(\+|PLUS)`},
	"amazonPrimeVideo": {name: "Amazon Prime Video", pattern: `(AMAZON\s*PRIME|PRIME\s*VIDEO)`},
	"appleTVPlus":      {name: "Apple TV+", pattern: `APPLE\s*TV`},
	"max":              {name: "Max", pattern: `^(HBO\s*)?MAX$|HBO\s*MAX`},
	"hulu":             {name: "Hulu", pattern: `HULU`},
	"paramountPlus":    {name: "Paramount+", pattern: `PARAMOUNT\s*(\+|PLUS)`},
	"peacock":          {name: "Peacock", pattern: `PEACOCK`},
	"crunchyroll":      {name: "Crunchyroll", pattern: `CRUNCHYROLL`},

	// Music
	"spotify":       {name: "Spotify", pattern: `^SPOTIFY$|SPOTIFY\s*PREMIUM`},
	"spotifyFamily": {name: "Spotify Family", pattern: `SPOTIFY\s*FAMILY`},
	"appleMusic":    {name: "Apple Music", pattern: `APPLE\s*MUSIC`},
	"youtubeMusic":  {name: "YouTube Music", pattern: `YOUTUBE\s*MUSIC`},
	"tidal":         {name: "TIDAL", pattern: `TIDAL`},
	"deezer":        {name: "Deezer", pattern: `DEEZER`},
	"amazonMusic":   {name: "Amazon Music", pattern: `AMAZON\s*MUSIC`},

	// Gaming
	"xboxGamePass":    {name: "Xbox Game Pass", pattern: `XBOX\s*(GAME\s*PASS|LIVE)`},
	"playStationPlus": {name: "PlayStation Plus", pattern: `(PLAYSTATION|PS)\s*(PLUS|\+)`},
	"nintendoOnline":  {name: "Nintendo Switch Online", pattern: `NINTENDO\s*(SWITCH\s*)?ONLINE`},
	"eaPlay":          {name: "EA Play", pattern: `EA\s*PLAY`},

	// Cloud & productivity
	"icloudPlus":   {name: "iCloud+", pattern: `ICLOUD`},
	"googleOne":    {name: "Google One", pattern: `GOOGLE\s*ONE`},
	"dropbox":      {name: "Dropbox", pattern: `DROPBOX`},
	"onedrive":     {name: "OneDrive", pattern: `ONEDRIVE`},
	"microsoft365": {name: "Microsoft 365", pattern: `(MICROSOFT|OFFICE)\s*365`},
	"adobeCC":      {name: "Adobe Creative Cloud", pattern: `ADOBE`},
	"notion":       {name: "Notion", pattern: `NOTION`},
	"evernote":     {name: "Evernote", pattern: `EVERNOTE`},
	"zoomPro":      {name: "Zoom Pro", pattern: `ZOOM`},
	"canvaPro":     {name: "Canva Pro", pattern: `CANVA`},

	// AI tools
	"chatgptPlus": {name: "ChatGPT Plus", pattern: `CHATGPT|OPENAI`},
	"claudePro":   {name: "Claude Pro", pattern: `CLAUDE|ANTHROPIC`},
	"copilotPro":  {name: "Copilot Pro", pattern: `COPILOT`},
	"midjourney":  {name: "Midjourney", pattern: `MIDJOURNEY`},

	// Reading
	"kindleUnlimited": {name: "Kindle Unlimited", pattern: `KINDLE\s*UNLIMITED`},
}

func init() {
	for id, entry := range serviceCatalog {
		re, err := regexp.Compile("(?i)" + entry.pattern)
		if err != nil {
			panic("invalid service pattern for " + string(id) + ": " + err.Error())
		}
		entry.regex = re
	}
}

// DisplayName returns the catalog name, or empty string for unknown services.
func (id ServiceID) DisplayName() string {
	if entry, ok := serviceCatalog[id]; ok {
		return entry.name
	}
	return ""
}

// Known returns true if the id is in the catalog.
func (id ServiceID) Known() bool {
	_, ok := serviceCatalog[id]
	return ok
}

// KnownServices returns all catalog ids sorted alphabetically.
func KnownServices() []ServiceID {
	ids := make([]ServiceID, 0, len(serviceCatalog))
	for id := range serviceCatalog {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// MatchService suggests a catalog service for a subscription name.
// When several patterns match, the longest pattern wins so that e.g.
// "Spotify Family" is not reported as plain "Spotify".
func MatchService(name string) (ServiceID, bool) {
	var best ServiceID
	bestLen := 0
	for _, id := range KnownServices() {
		entry := serviceCatalog[id]
		if entry.regex.MatchString(name) && len(entry.pattern) > bestLen {
			best = id
			bestLen = len(entry.pattern)
		}
	}
	return best, bestLen > 0
}
