// Package enrich fills in missing prices and product images for extracted
// invoice items.
package enrich

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// priceTable maps lowercase part-name substrings to typical retail prices in
// USD. Checked before any remote estimation.
var priceTable = map[string]float64{
	// engine
	"engine mount":       45,
	"motor mount":        45,
	"transmission mount": 55,
	"engine gasket":      25,
	"head gasket":        85,
	"valve cover gasket": 35,
	"oil pan gasket":     40,
	"water pump":         120,
	"thermostat":         25,
	"radiator":           200,
	"radiator hose":      35,
	"heater hose":        25,
	"coolant":            18,
	"antifreeze":         18,

	// ignition
	"spark plug":      5,
	"ignition coil":   65,
	"distributor cap": 45,
	"spark plug wire": 25,

	// electrical
	"alternator":        180,
	"starter":           200,
	"battery":           140,
	"starter solenoid":  45,
	"voltage regulator": 55,

	// brakes
	"brake pad":             45,
	"brake rotor":           75,
	"brake disc":            75,
	"brake caliper":         120,
	"brake line":            35,
	"brake fluid":           12,
	"brake master cylinder": 95,
	"brake booster":         180,

	// suspension
	"shock absorber": 85,
	"strut":          120,
	"control arm":    95,
	"ball joint":     45,
	"tie rod":        55,
	"sway bar link":  35,
	"sway bar":       120,
	"bushing":        25,

	// exhaust
	"muffler":             150,
	"catalytic converter": 450,
	"exhaust pipe":        85,
	"oxygen sensor":       65,
	"o2 sensor":           65,

	// fuel
	"fuel pump":               180,
	"fuel filter":             25,
	"fuel injector":           85,
	"fuel pressure regulator": 55,
	"gas cap":                 15,

	// transmission
	"transmission fluid":  18,
	"transmission filter": 35,
	"clutch":              250,
	"clutch disc":         180,
	"pressure plate":      120,

	// filters
	"oil filter":       8,
	"air filter":       18,
	"cabin air filter": 25,

	// belts and hoses
	"timing belt":     55,
	"serpentine belt": 35,
	"drive belt":      35,
	"v-belt":          25,

	// tires and wheels
	"tire":                 95,
	"wheel":                120,
	"wheel bearing":        65,
	"hub bearing":          65,
	"tire pressure sensor": 45,

	// steering
	"power steering pump":  180,
	"power steering fluid": 12,
	"steering rack":        350,
	"steering column":      250,
	"steering wheel":       150,

	// lights
	"headlight":   120,
	"taillight":   85,
	"turn signal": 35,
	"fog light":   65,
	"bulb":        8,

	// body
	"bumper":           250,
	"fender":           180,
	"hood":             350,
	"door":             450,
	"mirror":           85,
	"windshield":       300,
	"windshield wiper": 25,
	"wiper blade":      18,

	// fluids
	"motor oil": 25,

	// sensors
	"mass air flow sensor":       95,
	"map sensor":                 65,
	"throttle position sensor":   55,
	"crankshaft position sensor": 75,
	"camshaft position sensor":   65,
	"knock sensor":               45,
	"coolant temperature sensor": 35,

	// other
	"pcv valve":              15,
	"egr valve":              85,
	"idle air control valve": 75,
	"throttle body":          180,
	"intake manifold":        250,
	"exhaust manifold":       200,
	"turbocharger":           850,
	"supercharger":           1200,
}

// LookupPrice returns the table price for a part whose lowercase name
// contains a known key. Longer keys win so "brake master cylinder" does not
// resolve as "brake line" territory.
func LookupPrice(name string) (float64, bool) {
	normalized := strings.ToLower(name)
	bestLen := 0
	var best float64
	for key, price := range priceTable {
		if strings.Contains(normalized, key) && len(key) > bestLen {
			bestLen = len(key)
			best = price
		}
	}
	return best, bestLen > 0
}

var nonNumericRe = regexp.MustCompile(`[^0-9.]`)

// estimatePrice asks the LLM for a single numeric retail price. The model is
// told to return only a number, but the reply is parsed leniently anyway.
func (s *Service) estimatePrice(ctx context.Context, name, category string) (float64, error) {
	if s.client == nil {
		return 0, fmt.Errorf("no pricing client configured")
	}

	question := fmt.Sprintf("What is the typical retail price for a %s", name)
	if category != "" {
		question += fmt.Sprintf(" (%s)", category)
	}
	question += " for a car? Return only the numeric price, no currency symbols or text."

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Temperature: 0.3,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are a pricing assistant. Return only a numeric price estimate in USD for automotive parts."},
			{Role: openai.ChatMessageRoleUser, Content: question},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("price estimation request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return 0, fmt.Errorf("price estimation returned no choices")
	}

	raw := nonNumericRe.ReplaceAllString(resp.Choices[0].Message.Content, "")
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("unusable price estimate %q", resp.Choices[0].Message.Content)
	}
	return price, nil
}
