package models

// Slot is a value-with-confidence wrapper for one extracted fact. A filled
// slot is only replaced by a strictly more confident extraction.
type Slot struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

func (s Slot) Filled() bool {
	return s.Value != ""
}

// Accept applies the overwrite rule: empty slots take any value, filled slots
// only yield to higher confidence. Returns the winning slot.
func (s Slot) Accept(value string, confidence float64) Slot {
	if value == "" {
		return s
	}
	if !s.Filled() || confidence > s.Confidence {
		return Slot{Value: value, Confidence: confidence}
	}
	return s
}

type SlotSet struct {
	Building     Slot         `json:"building"`
	Room         Slot         `json:"room"`
	Category     Slot         `json:"category"`
	Description  Slot         `json:"description"`
	Timeline     Slot         `json:"timeline"`
	ContactName  Slot         `json:"contact_name"`
	ContactEmail Slot         `json:"contact_email"`
	ContactPhone Slot         `json:"contact_phone"`
	Urgency      UrgencyLevel `json:"urgency"`
	SafetyFlags  []string     `json:"safety_flags,omitempty"`
}

// HasRequired reports whether the slots a case cannot be routed without
// (location and category) are present.
func (s SlotSet) HasRequired() bool {
	return s.Building.Filled() && s.Category.Filled()
}

// MissingContact lists absent identity-verification slots in a stable order.
func (s SlotSet) MissingContact() []string {
	var missing []string
	if !s.ContactName.Filled() {
		missing = append(missing, "contact_name")
	}
	if !s.ContactEmail.Filled() {
		missing = append(missing, "contact_email")
	}
	if !s.ContactPhone.Filled() {
		missing = append(missing, "contact_phone")
	}
	return missing
}

func (s SlotSet) HasSafetyFlag(flag string) bool {
	for _, f := range s.SafetyFlags {
		if f == flag {
			return true
		}
	}
	return false
}
