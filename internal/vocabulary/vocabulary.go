// Package vocabulary holds the closed value sets that imported and directly
// entered outlet data is validated against.
package vocabulary

import (
	"strings"
	"unicode"

	"outletops/pkg/domain"
)

var brands = []string{
	"Dil Daily",
	"Bihari Bowl",
	"Aahar",
	"Bhole Ke Chole",
	"Khichdi Bar",
	"The Chaat Cult",
	"Vegerama Pure Veg and Fasting Specials",
	"House of Andhra",
	"The Junglee Kitchen",
}

var cities = []string{
	"Bangalore",
	"Hyderabad",
	"Chennai",
	"Pune",
	"Mumbai",
	"Ahmedabad",
}

// Stages returns the ordered pipeline stages.
func Stages() []domain.Stage { return domain.Stages() }

// Brands returns the recognised brand names.
func Brands() []string { return append([]string(nil), brands...) }

// Cities returns the recognised cities.
func Cities() []string { return append([]string(nil), cities...) }

// Statuses returns the operational statuses.
func Statuses() []domain.OperationalStatus { return domain.Statuses() }

// MatchStage resolves spreadsheet stage text against the stage codes.
// Case and all whitespace are ignored on both sides, so "onboardingrequest"
// and " ONBOARDING  REQUEST" both resolve to StageOnboardingRequest.
func MatchStage(raw string) (domain.Stage, bool) {
	needle := compact(strings.ToUpper(raw))
	if needle == "" {
		return "", false
	}
	for _, info := range domain.StageInfos() {
		if needle == compact(strings.ToUpper(info.Code)) {
			return info.ID, true
		}
	}
	return "", false
}

// ResolveStage accepts a stage identifier, label, or spreadsheet code. It is
// the lenient lookup used by direct-entry callers.
func ResolveStage(raw string) (domain.Stage, bool) {
	if s, ok := domain.ParseStage(raw); ok {
		return s, true
	}
	return MatchStage(raw)
}

// MatchBrand returns the canonical brand for raw.
func MatchBrand(raw string) (string, bool) { return matchFold(brands, raw) }

// MatchCity returns the canonical city for raw.
func MatchCity(raw string) (string, bool) { return matchFold(cities, raw) }

// MatchStatus returns the canonical operational status for raw.
func MatchStatus(raw string) (domain.OperationalStatus, bool) {
	needle := strings.TrimSpace(raw)
	if needle == "" {
		return "", false
	}
	for _, s := range domain.Statuses() {
		if strings.EqualFold(needle, string(s)) {
			return s, true
		}
	}
	return "", false
}

func matchFold(set []string, raw string) (string, bool) {
	needle := strings.TrimSpace(raw)
	if needle == "" {
		return "", false
	}
	for _, candidate := range set {
		if strings.EqualFold(needle, candidate) {
			return candidate, true
		}
	}
	return "", false
}

func compact(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
