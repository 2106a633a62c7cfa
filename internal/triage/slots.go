package triage

import (
	"fmt"

	"github.com/fixflow/backend/internal/llm"
	"github.com/fixflow/backend/internal/models"
)

// MergeExtraction folds a new extraction into the accumulated slots. Rules:
// a filled slot only yields to a strictly higher-confidence value, urgency
// only escalates, and safety flags are append-only. Returns the merged set
// plus notes for every rejected regression so downgrades are logged, never
// silently applied.
func MergeExtraction(slots models.SlotSet, ext llm.Extraction) (models.SlotSet, []string) {
	var notes []string
	conf := ext.Confidence

	slots.Building = slots.Building.Accept(ext.Building, conf)
	slots.Room = slots.Room.Accept(ext.Room, conf)
	slots.Category = slots.Category.Accept(ext.Category, conf)
	slots.Timeline = slots.Timeline.Accept(ext.Timeline, conf)
	slots.ContactName = slots.ContactName.Accept(ext.ContactName, conf)
	slots.ContactEmail = slots.ContactEmail.Accept(ext.ContactEmail, conf)
	slots.ContactPhone = slots.ContactPhone.Accept(ext.ContactPhone, conf)

	// Description accumulates rather than competes: later turns add detail.
	if ext.Description != "" {
		if !slots.Description.Filled() {
			slots.Description = models.Slot{Value: ext.Description, Confidence: conf}
		} else if ext.Description != slots.Description.Value {
			slots.Description.Value = slots.Description.Value + " " + ext.Description
		}
	}

	if ext.Urgency != "" {
		if level, ok := models.ParseUrgency(ext.Urgency); ok {
			if level > slots.Urgency {
				slots.Urgency = level
			} else if level < slots.Urgency {
				notes = append(notes, fmt.Sprintf("urgency downgrade %s -> %s ignored", slots.Urgency, level))
			}
		}
	}

	for _, flag := range ext.SafetyFlags {
		if !slots.HasSafetyFlag(flag) {
			slots.SafetyFlags = append(slots.SafetyFlags, flag)
		}
	}

	return slots, notes
}

// HasImmediateHazard reports whether any recorded safety flag is in the
// immediate-hazard set.
func HasImmediateHazard(slots models.SlotSet) bool {
	for _, f := range slots.SafetyFlags {
		if llm.IsImmediateHazard(f) {
			return true
		}
	}
	return false
}
