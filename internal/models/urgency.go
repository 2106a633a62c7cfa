package models

import (
	"encoding/json"
	"strings"
)

// UrgencyLevel is the single ordinal scale behind both the triage urgency
// vocabulary (low/normal/urgent/emergency) and the case priority vocabulary
// (Low/Medium/High/Critical). The two map positionally.
type UrgencyLevel int

const (
	UrgencyLow UrgencyLevel = iota
	UrgencyNormal
	UrgencyUrgent
	UrgencyEmergency
)

func (u UrgencyLevel) String() string {
	switch u {
	case UrgencyNormal:
		return "normal"
	case UrgencyUrgent:
		return "urgent"
	case UrgencyEmergency:
		return "emergency"
	default:
		return "low"
	}
}

// Label renders the case-priority vocabulary for the same ordinal.
func (u UrgencyLevel) Label() string {
	switch u {
	case UrgencyNormal:
		return "Medium"
	case UrgencyUrgent:
		return "High"
	case UrgencyEmergency:
		return "Critical"
	default:
		return "Low"
	}
}

// ParseUrgency accepts either vocabulary, case-insensitively.
func ParseUrgency(value string) (UrgencyLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "low", "minor":
		return UrgencyLow, true
	case "normal", "medium", "standard":
		return UrgencyNormal, true
	case "urgent", "high":
		return UrgencyUrgent, true
	case "emergency", "critical":
		return UrgencyEmergency, true
	}
	return UrgencyLow, false
}

func (u UrgencyLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.Label())
}

func (u *UrgencyLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, _ := ParseUrgency(s)
	*u = parsed
	return nil
}
