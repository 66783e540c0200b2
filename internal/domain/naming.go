package domain

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// uncountables are not pluralised.
var uncountables = map[string]bool{
	"solar": true,
	"wind":  true,
}

// NormalizeName turns "Charging Station" into "charging_station".
func NormalizeName(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, " ", "_"))
}

// Humanize turns "charging_station" into "Charging station".
func Humanize(name string) string {
	s := strings.TrimSuffix(name, "_id")
	s = strings.ReplaceAll(s, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Titleize turns "charging_station" into "Charging Station".
func Titleize(name string) string {
	s := strings.ReplaceAll(name, "_", " ")
	return cases.Title(language.English).String(s)
}

// Pluralize returns the plural of a snake_case name.
func Pluralize(name string) string {
	if name == "" || uncountables[name] {
		return name
	}
	parts := strings.Split(name, "_")
	last := parts[len(parts)-1]
	if uncountables[last] {
		return name
	}
	switch {
	case strings.HasSuffix(last, "y") && len(last) > 1 && !strings.ContainsAny(last[len(last)-2:len(last)-1], "aeiou"):
		last = last[:len(last)-1] + "ies"
	case strings.HasSuffix(last, "s"), strings.HasSuffix(last, "x"), strings.HasSuffix(last, "ch"), strings.HasSuffix(last, "sh"):
		last += "es"
	default:
		last += "s"
	}
	parts[len(parts)-1] = last
	return strings.Join(parts, "_")
}
