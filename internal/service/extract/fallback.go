package extract

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"ai-invoice-agent-service/internal/models"
)

var (
	digitPriceRe = regexp.MustCompile(`\$?\s*(\d+(?:\.\d{1,2})?)\s*(?:dollars|bucks)?`)
	hoursRe      = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*hours?`)
)

var spokenTens = map[string]float64{
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
	"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
}

var spokenUnits = map[string]float64{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14,
	"fifteen": 15, "sixteen": 16, "seventeen": 17, "eighteen": 18,
	"nineteen": 19, "hundred": 100,
}

var laborCues = []string{"labor", "labour", "hour of work", "hours of work"}

// Fallback extracts items from a single transcript entry without the LLM,
// using digit and spoken-number price detection. It is intentionally
// conservative: one item at most, and only when a price or labor cue is
// clearly present.
func Fallback(text string, laborRate float64) []models.InvoiceItem {
	lower := strings.ToLower(text)
	if strings.TrimSpace(lower) == "" {
		return nil
	}

	for _, cue := range laborCues {
		if strings.Contains(lower, cue) {
			hours := 1.0
			if m := hoursRe.FindStringSubmatch(lower); m != nil {
				fmt.Sscanf(m[1], "%g", &hours)
			} else if h, ok := spokenHours(lower); ok {
				hours = h
			}
			return []models.InvoiceItem{{
				ID:               time.Now().UnixMilli(),
				Name:             fmt.Sprintf("Labor (%g Hour(s))", hours),
				Price:            hours * laborRate,
				Type:             models.ItemLabor,
				Hours:            hours,
				Quantity:         1,
				Description:      strings.TrimSpace(text),
				LaborDescription: strings.TrimSpace(text),
			}}
		}
	}

	price, ok := findPrice(lower)
	if !ok {
		return nil
	}
	return []models.InvoiceItem{{
		ID:          time.Now().UnixMilli(),
		Name:        guessName(text),
		Price:       price,
		Type:        models.ItemPart,
		Quantity:    1,
		Description: strings.TrimSpace(text),
	}}
}

// findPrice looks for a digit price first, then a spoken-number phrase like
// "forty five dollars".
func findPrice(lower string) (float64, bool) {
	if strings.Contains(lower, "dollar") || strings.Contains(lower, "$") || strings.Contains(lower, "buck") {
		if m := digitPriceRe.FindStringSubmatch(lower); m != nil {
			var v float64
			fmt.Sscanf(m[1], "%g", &v)
			if v > 0 {
				return v, true
			}
		}
		if v, ok := spokenPrice(lower); ok {
			return v, true
		}
	}
	return 0, false
}

// spokenPrice sums adjacent spoken-number words preceding a currency cue,
// e.g. "forty five dollars" -> 45, "one hundred twenty dollars" -> 120.
func spokenPrice(lower string) (float64, bool) {
	words := strings.Fields(strings.Map(dropPunct, lower))
	current := 0.0
	seen := false
	for _, w := range words {
		if w == "dollars" || w == "dollar" || w == "bucks" {
			if seen && current > 0 {
				return current, true
			}
			current, seen = 0, false
			continue
		}
		if v, ok := spokenTens[w]; ok {
			current += v
			seen = true
		} else if v, ok := spokenUnits[w]; ok {
			if v == 100 && current > 0 {
				current *= 100
			} else {
				current += v
			}
			seen = true
		} else if seen {
			// a non-number word breaks the running phrase
			current, seen = 0, false
		}
	}
	return 0, false
}

func spokenHours(lower string) (float64, bool) {
	words := strings.Fields(strings.Map(dropPunct, lower))
	for i, w := range words {
		if strings.HasPrefix(w, "hour") && i > 0 {
			if v, ok := spokenUnits[words[i-1]]; ok {
				return v, true
			}
		}
	}
	return 0, false
}

func dropPunct(r rune) rune {
	switch r {
	case '.', ',', '!', '?', ';', ':':
		return ' '
	}
	return r
}

// guessName pulls a plausible part name from the entry: the words between an
// action verb and the price phrase, title-cased. Falls back to "Part".
var actionVerbs = []string{"installing", "installed", "replacing", "replaced", "adding", "added", "mounting", "mounted", "putting in", "put in"}

func guessName(text string) string {
	lower := strings.ToLower(text)
	start := 0
	for _, verb := range actionVerbs {
		if idx := strings.Index(lower, verb); idx >= 0 {
			start = idx + len(verb)
			break
		}
	}
	rest := lower[start:]
	if idx := strings.IndexAny(rest, ",.$"); idx >= 0 {
		rest = rest[:idx]
	}
	words := strings.Fields(rest)
	kept := make([]string, 0, len(words))
	for _, w := range words {
		switch w {
		case "a", "an", "the", "new", "some", "for":
			continue
		}
		if _, ok := spokenTens[w]; ok {
			break
		}
		if _, ok := spokenUnits[w]; ok {
			break
		}
		if w == "dollars" || w == "dollar" || w == "bucks" {
			break
		}
		kept = append(kept, titleWord(w))
	}
	if len(kept) == 0 {
		return "Part"
	}
	return strings.Join(kept, " ")
}

func titleWord(w string) string {
	if w == "" {
		return w
	}
	return strings.ToUpper(w[:1]) + w[1:]
}
