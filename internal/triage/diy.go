package triage

import "strings"

// DIYAdvice is a bounded instruction set for a known low-risk fix. Warnings
// are non-negotiable and always delivered with the steps.
type DIYAdvice struct {
	Title    string   `json:"title"`
	Steps    []string `json:"steps"`
	Warnings []string `json:"warnings"`
}

type diyRule struct {
	category string
	triggers []string
	advice   DIYAdvice
}

var diyRules = []diyRule{
	{
		category: "Electrical",
		triggers: []string{"gfci", "outlet not working", "outlet stopped", "dead outlet", "one outlet"},
		advice: DIYAdvice{
			Title: "Reset the GFCI outlet",
			Steps: []string{
				"Find the outlet with TEST and RESET buttons, often in the kitchen or bathroom.",
				"Press RESET firmly until it clicks.",
				"If nothing clicks, check the breaker panel for a tripped switch and flip it fully off, then on.",
			},
			Warnings: []string{
				"Never touch outlets or the panel with wet hands or while standing on a wet floor.",
				"Stop immediately and report an emergency if you see sparks, smoke, or smell burning.",
			},
		},
	},
	{
		category: "Plumbing",
		triggers: []string{"clog", "clogged", "slow drain", "draining slowly", "won't drain", "wont drain"},
		advice: DIYAdvice{
			Title: "Clear a slow drain",
			Steps: []string{
				"Remove visible debris from the drain opening.",
				"Run hot (not boiling) water for one to two minutes.",
				"Use a plunger with a few firm strokes if the water still stands.",
			},
			Warnings: []string{
				"Do not use chemical drain cleaners, and never mix cleaning products.",
				"Stop and report it if water backs up into other fixtures or starts to overflow.",
			},
		},
	},
	{
		category: "HVAC",
		triggers: []string{"thermostat", "no display", "blank screen"},
		advice: DIYAdvice{
			Title: "Check the thermostat",
			Steps: []string{
				"Confirm the thermostat is set to heat or cool, not off.",
				"Replace the batteries if the display is blank.",
			},
			Warnings: []string{
				"Do not open the furnace or air handler cabinet.",
			},
		},
	},
}

// MatchDIY returns advice when the category and description match a known
// low-risk fix, nil otherwise.
func MatchDIY(category, description string) *DIYAdvice {
	lower := strings.ToLower(description)
	for _, r := range diyRules {
		if !strings.EqualFold(r.category, category) {
			continue
		}
		for _, t := range r.triggers {
			if strings.Contains(lower, t) {
				advice := r.advice
				return &advice
			}
		}
	}
	return nil
}
