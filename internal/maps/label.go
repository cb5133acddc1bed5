// README: Short display labels for Nominatim matches (name plus a few address parts, abbreviated).
package maps

import "strings"

const unknownPlaceLabel = "Unknown"

// LabelSeparator splits a label into its short name and its address detail.
const LabelSeparator = " — "

type Replacement struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// DefaultLabelReplacements abbreviates common Vietnamese administrative prefixes.
var DefaultLabelReplacements = []Replacement{
	{From: "Phường ", To: "P. "},
	{From: "Khu phố ", To: "KP "},
	{From: "Đường ", To: ""},
}

// ShortName returns the label part before LabelSeparator.
func ShortName(label string) string {
	if i := strings.Index(label, "—"); i >= 0 {
		return strings.TrimSpace(label[:i])
	}
	return strings.TrimSpace(label)
}

func nominatimLabel(p nominatimPlace, replacements []Replacement) string {
	base := strings.TrimSpace(p.Name)
	if base == "" {
		display := strings.TrimSpace(p.DisplayName)
		base = strings.TrimSpace(strings.Split(display, ",")[0])
	}
	if base == "" {
		base = unknownPlaceLabel
	}

	addr := func(key string) string { return strings.TrimSpace(p.Address[key]) }

	var parts []string
	road := addr("road")
	if road == base {
		road = ""
	}
	if first := strings.TrimSpace(strings.Join(nonEmpty(addr("house_number"), road), " ")); first != "" {
		parts = append(parts, first)
	}
	parts = append(parts, nonEmpty(addr("neighbourhood"), addr("suburb"))...)

	label := base
	if len(parts) > 0 {
		if len(parts) > 3 {
			parts = parts[:3]
		}
		label = base + LabelSeparator + strings.Join(parts, ", ")
	}
	for _, r := range replacements {
		label = strings.ReplaceAll(label, r.From, r.To)
	}
	return label
}

func nonEmpty(vals ...string) []string {
	out := vals[:0:0]
	for _, v := range vals {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
