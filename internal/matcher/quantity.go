package matcher

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	unitConfidence     = 0.9
	quantityConfidence = 0.9
)

// unitSpellings maps each canonical unit to the spellings accepted for it.
var unitSpellings = map[string][]string{
	"lb":   {"lb", "lbs", "pound", "pounds"},
	"oz":   {"oz", "ounce", "ounces"},
	"g":    {"g", "gram", "grams"},
	"kg":   {"kg"},
	"ml":   {"ml"},
	"l":    {"l", "liter", "litre"},
	"ct":   {"ct", "count"},
	"each": {"each", "ea"},
	"gal":  {"gal", "gallon"},
	"qt":   {"qt", "quart"},
	"pt":   {"pt", "pint"},
	"cup":  {"cup", "cups"},
	"tbsp": {"tbsp"},
	"tsp":  {"tsp"},
}

const numPattern = `(\d+ \d+/\d+|\d+/\d+|\d+(?:\.\d+)?)`

var (
	unitAliases = buildUnitAliases()
	unitPattern = buildUnitPattern()

	leadingQty  = regexp.MustCompile(`^` + numPattern + `\s*(` + unitPattern + `)?\.?(?:\s+of)?\s+(.+)$`)
	trailingQty = regexp.MustCompile(`^(.+?)[\s,]+` + numPattern + `\s*(` + unitPattern + `)\.?$`)
)

func buildUnitAliases() map[string]string {
	aliases := make(map[string]string)
	for unit, spellings := range unitSpellings {
		for _, s := range spellings {
			aliases[s] = unit
		}
	}
	return aliases
}

// buildUnitPattern returns an alternation with longer spellings first so
// "gallon" is preferred over "gal" and "g".
func buildUnitPattern() string {
	spellings := make([]string, 0, len(unitAliases))
	for s := range unitAliases {
		spellings = append(spellings, s)
	}
	sort.Slice(spellings, func(i, j int) bool {
		if len(spellings[i]) != len(spellings[j]) {
			return len(spellings[i]) > len(spellings[j])
		}
		return spellings[i] < spellings[j]
	})
	return `(?:` + strings.Join(spellings, "|") + `)`
}

// measure is a parsed quantity and unit split from an ingredient line.
type measure struct {
	name     string
	quantity *float64
	unit     *string
}

// splitMeasure separates a leading ("2 lb flour") or trailing ("flour, 16 oz")
// quantity from the name. Input must already be case folded.
func splitMeasure(folded string) measure {
	if m := leadingQty.FindStringSubmatch(folded); m != nil {
		return measure{name: m[3], quantity: parseQuantity(m[1]), unit: canonicalUnit(m[2])}
	}
	if m := trailingQty.FindStringSubmatch(folded); m != nil {
		return measure{name: m[1], quantity: parseQuantity(m[2]), unit: canonicalUnit(m[3])}
	}
	return measure{name: folded}
}

func canonicalUnit(raw string) *string {
	if raw == "" {
		return nil
	}
	unit, ok := unitAliases[raw]
	if !ok {
		return nil
	}
	return &unit
}

func parseQuantity(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	var total float64
	for _, part := range strings.Fields(raw) {
		if num, den, ok := strings.Cut(part, "/"); ok {
			n, err1 := strconv.ParseFloat(num, 64)
			d, err2 := strconv.ParseFloat(den, 64)
			if err1 != nil || err2 != nil || d == 0 {
				return nil
			}
			total += n / d
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil
		}
		total += v
	}
	return &total
}
