// Copyright 2026 The OrderMap Authors
// SPDX-License-Identifier: Apache-2.0

package sales

import (
	"maps"
	"slices"
	"strings"
)

// Sales territories, as they appear in the TERRITORY column.
const (
	TerritoryAPAC  = "APAC"
	TerritoryNA    = "NA"
	TerritoryEMEA  = "EMEA"
	TerritoryJapan = "Japan"
)

var territoryNames = map[string]string{
	TerritoryAPAC:  "Asia Pacific",
	TerritoryNA:    "North America",
	TerritoryEMEA:  "Europe, Middle East and Africa",
	TerritoryJapan: "Japan",
}

// Territories returns the known territory acronyms, sorted.
func Territories() []string {
	return slices.Sorted(maps.Keys(territoryNames))
}

// TerritoryName returns the display name of a territory acronym, or the
// acronym itself when it is unknown.
func TerritoryName(acronym string) string {
	if name, ok := territoryNames[acronym]; ok {
		return name
	}

	return acronym
}

// TerritoryAcronym accepts an acronym or a display name, in any case, and
// returns the acronym.
func TerritoryAcronym(s string) (string, bool) {
	s = strings.TrimSpace(s)

	for acronym, name := range territoryNames {
		if strings.EqualFold(s, acronym) || strings.EqualFold(s, name) {
			return acronym, true
		}
	}

	return "", false
}
