package associate

import "strings"

// Street-word abbreviations applied during canonicalization. The HUD
// spreadsheet spells types out while the municipal layers abbreviate,
// so both sides are folded to the short form before comparison.
var streetWordAbbreviations = map[string]string{
	"STREET":    "ST",
	"AVENUE":    "AVE",
	"ROAD":      "RD",
	"BOULEVARD": "BLVD",
	"DRIVE":     "DR",
	"LANE":      "LN",
	"PLACE":     "PL",
	"COURT":     "CT",
	"TERRACE":   "TER",
	"PARKWAY":   "PKWY",
	"HIGHWAY":   "HWY",
	"SQUARE":    "SQ",
	"NORTH":     "N",
	"SOUTH":     "S",
	"EAST":      "E",
	"WEST":      "W",
}

// NormalizeAddress folds an address string to a canonical comparison
// form: uppercase, punctuation stripped, whitespace collapsed, street
// words abbreviated. Unit designators after a "#" are dropped since
// parcel records address the building, not the unit.
func NormalizeAddress(address string) string {
	upper := strings.ToUpper(strings.TrimSpace(address))
	if upper == "" {
		return ""
	}

	// Everything after "#" is a unit number
	if idx := strings.Index(upper, "#"); idx >= 0 {
		upper = upper[:idx]
	}

	var b strings.Builder
	b.Grow(len(upper))
	for _, r := range upper {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	words := strings.Fields(b.String())
	for i, word := range words {
		if abbr, ok := streetWordAbbreviations[word]; ok {
			words[i] = abbr
		}
	}

	return strings.Join(words, " ")
}
