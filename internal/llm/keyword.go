package llm

import (
	"regexp"
	"strings"
)

// The keyword extractor is the deterministic fallback when the model call
// times out or returns garbage: conversational availability takes precedence
// over extraction quality, so it produces a low-confidence Extraction rather
// than failing the turn.

const fallbackConfidence = 0.35

// Match order matters: a leaking pipe behind a wall should classify as
// plumbing, not structural.
var categoryOrder = []string{"Plumbing", "Electrical", "HVAC", "Appliance", "Structural", "Pest"}

var categoryKeywords = map[string][]string{
	"Plumbing":   {"leak", "drip", "sink", "toilet", "faucet", "pipe", "drain", "clog", "water heater"},
	"Electrical": {"outlet", "light", "power", "spark", "breaker", "gfci", "wiring", "switch"},
	"HVAC":       {"heat", "heating", "air condition", "a/c", "thermostat", "furnace", "cooling", "radiator"},
	"Appliance":  {"fridge", "refrigerator", "stove", "oven", "washer", "dryer", "dishwasher", "microwave"},
	"Structural": {"ceiling", "roof", "door", "window", "floor", "crack", "wall"},
	"Pest":       {"mice", "mouse", "rat", "roach", "cockroach", "ant", "bed bug", "pest", "wasp"},
}

var urgentKeywords = []string{
	"no heat", "no water", "no power", "overflow", "won't stop", "wont stop",
	"pouring", "everywhere", "urgent", "asap",
}

var hazardKeywords = map[string][]string{
	FlagGasLeak:            {"smell gas", "gas leak", "gas smell", "smells like gas"},
	FlagElectricalArcing:   {"spark", "arcing", "burning smell", "outlet smoking", "smoke from"},
	FlagStructuralCollapse: {"ceiling collaps", "wall collaps", "ceiling fell", "caving in", "sagging ceiling"},
	FlagFloodingElectrical: {"water near outlet", "water in the outlet", "flooding near electrical", "water on the breaker", "water reaching the outlet"},
}

var (
	roomRe  = regexp.MustCompile(`(?i)(?:room|unit|apt\.?|apartment|#)\s*([0-9]{1,4}[a-z]?)`)
	bareRe  = regexp.MustCompile(`\b([0-9]{3,4})\b`)
	bldgRe  = regexp.MustCompile(`([A-Z][a-z]+(?: [A-Z][a-z]+)* (?:House|Hall|Building|Tower|Block|Annex))`)
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?[0-9][0-9()\-\s.]{6,}[0-9]`)
	nameRe  = regexp.MustCompile(`(?i)(?:my name is|this is|i am|i'm)\s+([A-Z][a-z]+(?: [A-Z][a-z]+)?)`)
)

// DetectHazards scans text for the immediate-hazard set. It runs on every
// turn regardless of model availability so an extraction outage can never
// suppress a safety signal.
func DetectHazards(text string) []string {
	lower := strings.ToLower(text)
	var flags []string
	for _, flag := range []string{FlagGasLeak, FlagElectricalArcing, FlagStructuralCollapse, FlagFloodingElectrical} {
		for _, w := range hazardKeywords[flag] {
			if strings.Contains(lower, w) {
				flags = append(flags, flag)
				break
			}
		}
	}
	return flags
}

// KeywordExtract derives a low-confidence Extraction from substring matches:
// known building names, digit-sequence room numbers, category and urgency
// keyword sets, plus contact patterns.
func KeywordExtract(text string, buildings []string) Extraction {
	lower := strings.ToLower(text)

	ext := Extraction{
		Description: strings.TrimSpace(text),
		Confidence:  fallbackConfidence,
		SafetyFlags: DetectHazards(text),
		Urgency:     "normal",
	}

	for _, b := range buildings {
		if b != "" && strings.Contains(lower, strings.ToLower(b)) {
			ext.Building = b
			break
		}
	}
	if ext.Building == "" {
		if m := bldgRe.FindStringSubmatch(text); m != nil {
			ext.Building = m[1]
		}
	}

	if m := roomRe.FindStringSubmatch(text); m != nil {
		ext.Room = m[1]
	} else if ext.Building != "" {
		// A bare 3-4 digit sequence next to a building mention is almost
		// always the room number.
		if m := bareRe.FindStringSubmatch(text); m != nil {
			ext.Room = m[1]
		}
	}

	for _, category := range categoryOrder {
		for _, w := range categoryKeywords[category] {
			if strings.Contains(lower, w) {
				ext.Category = category
				break
			}
		}
		if ext.Category != "" {
			break
		}
	}

	if len(ext.SafetyFlags) > 0 {
		ext.Urgency = "emergency"
	} else {
		for _, w := range urgentKeywords {
			if strings.Contains(lower, w) {
				ext.Urgency = "urgent"
				break
			}
		}
	}

	if m := emailRe.FindString(text); m != "" {
		ext.ContactEmail = m
	}
	if m := phoneRe.FindString(text); m != "" && len(strings.Map(keepDigits, m)) >= 7 {
		ext.ContactPhone = strings.TrimSpace(m)
	}
	if m := nameRe.FindStringSubmatch(text); m != nil {
		ext.ContactName = m[1]
	}

	return ext
}

func keepDigits(r rune) rune {
	if r >= '0' && r <= '9' {
		return r
	}
	return -1
}
