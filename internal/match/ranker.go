package match

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fixflow/backend/internal/models"
	"github.com/fixflow/backend/internal/utils"
)

// Response windows a contractor must fit for the case to stay inside its
// urgency envelope, in hours.
var responseWindows = map[models.UrgencyLevel]float64{
	models.UrgencyLow:       72,
	models.UrgencyNormal:    24,
	models.UrgencyUrgent:    8,
	models.UrgencyEmergency: 2,
}

// Rank scores available contractors for a case, best first. Category is a
// hard filter, emergency availability is required for Critical cases; an
// empty result is a valid outcome (manual assignment), not an error.
func Rank(c models.Case, vendors []models.Vendor) []models.RankedCandidate {
	ranked := make([]models.RankedCandidate, 0, len(vendors))
	for _, v := range vendors {
		if !hasCategory(v.Categories, c.Category) {
			continue
		}
		if c.Priority == models.UrgencyEmergency && !v.EmergencyAvailable {
			continue
		}
		ranked = append(ranked, score(c, v))
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score == ranked[j].Score {
			if ranked[i].Vendor.Rating == ranked[j].Vendor.Rating {
				return ranked[i].Vendor.ID < ranked[j].Vendor.ID
			}
			return ranked[i].Vendor.Rating > ranked[j].Vendor.Rating
		}
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

func score(c models.Case, v models.Vendor) models.RankedCandidate {
	total := 50.0
	var reasons []string
	var risks []string

	reasons = append(reasons, fmt.Sprintf("covers %s work", c.Category))

	// Workload vs. daily capacity.
	if v.MaxJobsPerDay > 0 {
		ratio := float64(v.CurrentLoad) / float64(v.MaxJobsPerDay)
		switch {
		case ratio >= 1:
			total -= 30
			risks = append(risks, "at max daily capacity")
		case ratio >= 0.8:
			total -= 15
			risks = append(risks, "near max daily capacity")
		case ratio <= 0.4:
			total += 10
			reasons = append(reasons, "light current workload")
		}
	}

	// Response time against the case's urgency window. Urgent and Critical
	// cases penalize slow responders heavily.
	window := responseWindows[c.Priority]
	if v.ResponseTimeHours > window {
		penalty := 10.0
		if c.Priority >= models.UrgencyUrgent {
			penalty = 35
		}
		total -= penalty
		risks = append(risks, "response time exceeds case urgency window")
	} else {
		total += 10
		reasons = append(reasons, fmt.Sprintf("responds within %.0fh window", window))
	}

	if c.Priority == models.UrgencyEmergency && v.EmergencyAvailable {
		total += 10
		reasons = append(reasons, "available for emergency callout")
	}

	// Rating is a minor tie-breaker weight, centered on 3 stars.
	total += (v.Rating - 3.0) * 3

	// Travel distance, when both sides are geocoded.
	if c.Lat != nil && c.Lon != nil && v.Lat != nil && v.Lon != nil {
		dist := utils.HaversineKm(*c.Lat, *c.Lon, *v.Lat, *v.Lon)
		switch {
		case dist <= 10:
			total += 5
			reasons = append(reasons, "based nearby")
		case dist > 50:
			total -= 10
			risks = append(risks, fmt.Sprintf("%.0f km from the property", dist))
		}
	}

	if total < 0 {
		total = 0
	}
	if total > 100 {
		total = 100
	}

	return models.RankedCandidate{
		Vendor:      v,
		Score:       int(total + 0.5),
		Reasons:     reasons,
		RiskFactors: risks,
	}
}

func hasCategory(categories []string, target string) bool {
	for _, c := range categories {
		if strings.EqualFold(strings.TrimSpace(c), target) {
			return true
		}
	}
	return false
}
