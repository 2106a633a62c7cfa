package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fixflow/backend/internal/models"
)

type EventType string

const (
	EventCaseCreated       EventType = "case_created"
	EventCaseAccepted      EventType = "case_accepted"
	EventCaseScheduled     EventType = "case_scheduled"
	EventCaseDeclined      EventType = "case_declined"
	EventCaseEscalated     EventType = "case_escalated"
	EventEmergencyDetected EventType = "emergency_detected"
)

type Notification struct {
	Event      EventType `json:"event"`
	OrgID      string    `json:"org_id"`
	CaseID     string    `json:"case_id,omitempty"`
	Recipients []string  `json:"recipients"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	At         time.Time `json:"at"`
}

// Sender is the outbound delivery boundary (push/email/socket live outside
// this core).
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// LogSender ships notifications to the log; the default when no delivery
// backend is configured.
type LogSender struct {
	Logger zerolog.Logger
}

func (s LogSender) Send(ctx context.Context, n Notification) error {
	s.Logger.Info().
		Str("event", string(n.Event)).
		Str("org_id", n.OrgID).
		Str("case_id", n.CaseID).
		Strs("recipients", n.Recipients).
		Str("subject", n.Subject).
		Msg("notification")
	return nil
}

// Dispatcher decides what to send and to whom. Delivery failures are logged
// and absorbed: notification trouble never fails the pipeline.
type Dispatcher struct {
	Sender Sender
	Logger zerolog.Logger
}

func (d *Dispatcher) send(ctx context.Context, n Notification) {
	n.At = time.Now().UTC()
	if err := d.Sender.Send(ctx, n); err != nil {
		d.Logger.Warn().Err(err).Str("event", string(n.Event)).Msg("notification send failed")
	}
}

func (d *Dispatcher) CaseCreated(ctx context.Context, c models.Case, ranked []models.RankedCandidate) {
	recipients := []string{"org:" + c.OrgID + ":managers"}
	for i, r := range ranked {
		if i >= 3 {
			break
		}
		recipients = append(recipients, "vendor:"+r.Vendor.ID)
	}
	d.send(ctx, Notification{
		Event:      EventCaseCreated,
		OrgID:      c.OrgID,
		CaseID:     c.ID,
		Recipients: recipients,
		Subject:    fmt.Sprintf("New %s case: %s", c.Priority.Label(), c.Title),
		Body:       c.Description,
	})
}

func (d *Dispatcher) CaseAccepted(ctx context.Context, c models.Case, contractorID string) {
	d.send(ctx, Notification{
		Event:      EventCaseAccepted,
		OrgID:      c.OrgID,
		CaseID:     c.ID,
		Recipients: []string{"org:" + c.OrgID + ":managers", "requester:" + c.ID},
		Subject:    "Contractor accepted your maintenance request",
		Body:       fmt.Sprintf("Case %q was accepted by contractor %s.", c.Title, contractorID),
	})
}

func (d *Dispatcher) CaseScheduled(ctx context.Context, c models.Case, appt models.Appointment) {
	d.send(ctx, Notification{
		Event:      EventCaseScheduled,
		OrgID:      c.OrgID,
		CaseID:     c.ID,
		Recipients: []string{"requester:" + c.ID, "vendor:" + appt.ContractorID},
		Subject:    "Maintenance visit scheduled",
		Body:       fmt.Sprintf("A visit for %q is scheduled for %s.", c.Title, appt.Start.Format(time.RFC1123)),
	})
}

// CaseDeclined emits the ordinary informational notice; Critical declines go
// through CaseEscalated instead, with the decline reason attached.
func (d *Dispatcher) CaseDeclined(ctx context.Context, c models.Case, contractorID, reason string) {
	d.send(ctx, Notification{
		Event:      EventCaseDeclined,
		OrgID:      c.OrgID,
		CaseID:     c.ID,
		Recipients: []string{"org:" + c.OrgID + ":managers"},
		Subject:    "Contractor declined a case",
		Body:       fmt.Sprintf("Contractor %s declined %q: %s", contractorID, c.Title, reason),
	})
}

func (d *Dispatcher) CaseEscalated(ctx context.Context, c models.Case, reason string) {
	d.send(ctx, Notification{
		Event:      EventCaseEscalated,
		OrgID:      c.OrgID,
		CaseID:     c.ID,
		Recipients: []string{"org:" + c.OrgID + ":managers", "org:" + c.OrgID + ":oncall"},
		Subject:    fmt.Sprintf("ESCALATION: Critical case %q needs a contractor", c.Title),
		Body:       reason,
	})
}

func (d *Dispatcher) EmergencyDetected(ctx context.Context, orgID, conversationID string, flags []string) {
	d.send(ctx, Notification{
		Event:      EventEmergencyDetected,
		OrgID:      orgID,
		Recipients: []string{"org:" + orgID + ":oncall"},
		Subject:    "Immediate hazard reported during intake",
		Body:       fmt.Sprintf("Conversation %s raised safety flags: %v", conversationID, flags),
	})
}
