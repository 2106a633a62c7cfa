package coord

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fixflow/backend/internal/db"
	"github.com/fixflow/backend/internal/models"
	"github.com/fixflow/backend/internal/notify"
)

var (
	// ErrConflict: another actor won the race between our check and our
	// commit. Callers retry against the next-ranked candidate.
	ErrConflict = errors.New("case assignment conflict")
	// ErrAlreadyAssigned: a different contractor already holds the case.
	ErrAlreadyAssigned = errors.New("case already assigned to another contractor")
	// ErrScheduleConflict: the contractor already has an overlapping
	// appointment. Callers pick another time slot.
	ErrScheduleConflict = errors.New("schedule conflict")
	// ErrInvalidState: the case is past the point where acceptance applies.
	ErrInvalidState = errors.New("case not in an acceptable state")
	ErrStartInPast  = errors.New("appointment start must be in the future")
	ErrNotAssignee  = errors.New("contractor does not hold this case")
)

type Store interface {
	GetCase(ctx context.Context, orgID, id string) (models.Case, error)
	UpdateCaseCAS(ctx context.Context, c models.Case) (models.Case, error)
	CreateAppointmentIfFree(ctx context.Context, a models.Appointment) error
	DeleteAppointment(ctx context.Context, id string) error
}

// Coordinator is the only place that enforces "at most one contractor per
// case" and "no double-booking". The first invariant rests on the store's
// compare-and-swap update, the second on its atomic insert-if-free; there is
// no long-held lock.
type Coordinator struct {
	Store      Store
	Dispatcher *notify.Dispatcher
	Logger     zerolog.Logger
	Now        func() time.Time
}

func (co *Coordinator) now() time.Time {
	if co.Now != nil {
		return co.Now()
	}
	return time.Now().UTC()
}

// Accept claims a case for a contractor. Idempotent for the same
// contractor; returns ErrAlreadyAssigned when another contractor holds the
// case and ErrConflict when a concurrent accept wins the race.
func (co *Coordinator) Accept(ctx context.Context, orgID, caseID, contractorID string) (models.Case, error) {
	c, err := co.Store.GetCase(ctx, orgID, caseID)
	if err != nil {
		return models.Case{}, err
	}

	if c.ContractorID != nil {
		if *c.ContractorID == contractorID {
			return c, nil
		}
		return models.Case{}, ErrAlreadyAssigned
	}
	if c.Status != models.StatusNew && c.Status != models.StatusInReview {
		return models.Case{}, ErrInvalidState
	}

	now := co.now()
	c.ContractorID = &contractorID
	c.Status = models.StatusInReview
	c.DecidedAt = &now

	committed, err := co.Store.UpdateCaseCAS(ctx, c)
	if err != nil {
		if errors.Is(err, db.ErrVersionConflict) {
			// Someone committed between our read and our write. Re-check:
			// if we were the winner through another path, stay idempotent.
			current, getErr := co.Store.GetCase(ctx, orgID, caseID)
			if getErr == nil && current.ContractorID != nil && *current.ContractorID == contractorID {
				return current, nil
			}
			return models.Case{}, ErrConflict
		}
		return models.Case{}, err
	}

	if co.Dispatcher != nil {
		co.Dispatcher.CaseAccepted(ctx, committed, contractorID)
	}
	return committed, nil
}

// Schedule books an appointment for an accepted case. The appointment and
// the case transition commit as one logical unit: if the case write fails
// the appointment is rolled back, never leaving a Scheduled case without an
// appointment or vice versa.
func (co *Coordinator) Schedule(ctx context.Context, orgID, caseID, contractorID string, start time.Time, durationMinutes int) (models.Appointment, error) {
	now := co.now()
	if !start.After(now) {
		return models.Appointment{}, ErrStartInPast
	}
	end := start.Add(time.Duration(durationMinutes) * time.Minute)

	c, err := co.Store.GetCase(ctx, orgID, caseID)
	if err != nil {
		return models.Appointment{}, err
	}
	if c.ContractorID == nil || *c.ContractorID != contractorID {
		return models.Appointment{}, ErrNotAssignee
	}

	appt := models.Appointment{
		ID:           uuid.NewString(),
		CaseID:       caseID,
		ContractorID: contractorID,
		Start:        start,
		End:          end,
		Status:       "CONFIRMED",
		CreatedAt:    now,
	}
	if err := co.Store.CreateAppointmentIfFree(ctx, appt); err != nil {
		if errors.Is(err, db.ErrOverlappingAppointment) {
			return models.Appointment{}, ErrScheduleConflict
		}
		return models.Appointment{}, err
	}

	c.Status = models.StatusScheduled
	c.DecidedAt = &now
	committed, err := co.Store.UpdateCaseCAS(ctx, c)
	if err != nil {
		// Roll the appointment back rather than leave a half-commit.
		if delErr := co.Store.DeleteAppointment(ctx, appt.ID); delErr != nil {
			co.Logger.Error().Err(delErr).Str("appointment_id", appt.ID).Msg("rollback failed")
		}
		if errors.Is(err, db.ErrVersionConflict) {
			return models.Appointment{}, ErrConflict
		}
		return models.Appointment{}, err
	}

	if co.Dispatcher != nil {
		co.Dispatcher.CaseScheduled(ctx, committed, appt)
	}
	return appt, nil
}

// Decline releases a case back to the pool. Only an accepted, not yet
// scheduled case can be declined; once an appointment exists the contractor
// cancels through rescheduling, not decline. Critical cases escalate with
// the decline reason attached; everything else gets the ordinary notice.
func (co *Coordinator) Decline(ctx context.Context, orgID, caseID, contractorID, reason string) error {
	c, err := co.Store.GetCase(ctx, orgID, caseID)
	if err != nil {
		return err
	}
	if c.ContractorID == nil || *c.ContractorID != contractorID {
		return ErrNotAssignee
	}
	if c.Status != models.StatusInReview {
		return ErrInvalidState
	}

	now := co.now()
	c.ContractorID = nil
	c.Status = models.StatusNew
	c.DecidedAt = &now

	committed, err := co.Store.UpdateCaseCAS(ctx, c)
	if err != nil {
		if errors.Is(err, db.ErrVersionConflict) {
			return ErrConflict
		}
		return err
	}

	if co.Dispatcher != nil {
		if committed.Priority == models.UrgencyEmergency {
			co.Dispatcher.CaseEscalated(ctx, committed,
				"Contractor "+contractorID+" declined a Critical case: "+reason)
		} else {
			co.Dispatcher.CaseDeclined(ctx, committed, contractorID, reason)
		}
	}
	return nil
}
