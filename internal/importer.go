package internal

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// ImportDefaults holds the store settings applied to fields an import file
// leaves out. A blank currency is left blank for the store to fill in.
type ImportDefaults struct {
	ReminderDaysBefore int
}

// Importer reads subscription records from a file
type Importer interface {
	Import(path string, defaults ImportDefaults) ([]Subscription, error)
}

// ImporterFunc is a function that implements Importer
type ImporterFunc func(path string, defaults ImportDefaults) ([]Subscription, error)

func (f ImporterFunc) Import(path string, defaults ImportDefaults) ([]Subscription, error) {
	return f(path, defaults)
}

// importers is the registry of available import formats
var importers = map[string]Importer{}

// RegisterImporter registers an importer with the given format name
func RegisterImporter(name string, imp Importer) {
	importers[name] = imp
}

// GetImporter returns the importer for the given format
func GetImporter(format string) (Importer, error) {
	imp, ok := importers[format]
	if !ok {
		return nil, fmt.Errorf("unknown import format: %s (available: %v)", format, AvailableFormats())
	}
	return imp, nil
}

// AvailableFormats returns the registered format names, sorted
func AvailableFormats() []string {
	formats := make([]string, 0, len(importers))
	for name := range importers {
		formats = append(formats, name)
	}
	sort.Strings(formats)
	return formats
}

// IsKnownFormat returns true if the name is a registered importer
func IsKnownFormat(name string) bool {
	_, ok := importers[name]
	return ok
}

// ParseFileArg parses a file argument that may have a format prefix.
// Returns (format, path). If no valid prefix, format is empty.
// Example: "simple-json:data.json" → ("simple-json", "data.json")
// Example: "data.json" → ("", "data.json")
// Example: "C:\path\file.xlsx" → ("", "C:\path\file.xlsx") // Windows path
func ParseFileArg(arg string) (format, path string) {
	idx := strings.Index(arg, ":")
	if idx == -1 {
		return "", arg
	}
	prefix := arg[:idx]
	if IsKnownFormat(prefix) {
		return prefix, arg[idx+1:]
	}
	return "", arg // Not a known format, treat whole thing as path
}

// DetectFormat guesses the import format from the file extension.
func DetectFormat(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "simple-json", nil
	case ".xlsx":
		return "xlsx", nil
	}
	return "", fmt.Errorf("cannot tell the format of %s, prefix it with one of %v", path, AvailableFormats())
}

// ImportFile resolves the format of a possibly prefixed file argument and imports it.
func ImportFile(arg string, defaults ImportDefaults) ([]Subscription, error) {
	format, path := ParseFileArg(arg)
	if format == "" {
		var err error
		if format, err = DetectFormat(path); err != nil {
			return nil, err
		}
	}
	imp, err := GetImporter(format)
	if err != nil {
		return nil, err
	}
	subs, err := imp.Import(path, defaults)
	if err != nil {
		return nil, fmt.Errorf("importing %s as %s: %w", path, format, err)
	}
	return subs, nil
}
