package coord

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fixflow/backend/internal/db"
	"github.com/fixflow/backend/internal/models"
	"github.com/fixflow/backend/internal/notify"
)

var baseTime = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type captureSender struct {
	mu     sync.Mutex
	events []notify.EventType
}

func (s *captureSender) Send(ctx context.Context, n notify.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, n.Event)
	return nil
}

func (s *captureSender) last() notify.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return ""
	}
	return s.events[len(s.events)-1]
}

func newCoordinator(t *testing.T, priority models.UrgencyLevel) (*Coordinator, *db.Memory, *captureSender) {
	t.Helper()
	store := db.NewMemory()
	sender := &captureSender{}
	co := &Coordinator{
		Store:      store,
		Dispatcher: &notify.Dispatcher{Sender: sender, Logger: zerolog.Nop()},
		Logger:     zerolog.Nop(),
		Now:        func() time.Time { return baseTime },
	}

	err := store.CreateCase(context.Background(), models.Case{
		ID:       "case-1",
		OrgID:    "org-1",
		Title:    "Leaking sink",
		Status:   models.StatusNew,
		Priority: priority,
	})
	if err != nil {
		t.Fatal(err)
	}
	return co, store, sender
}

func TestAccept_FirstWins(t *testing.T) {
	co, _, sender := newCoordinator(t, models.UrgencyNormal)
	ctx := context.Background()

	c, err := co.Accept(ctx, "org-1", "case-1", "vendor-a")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if c.Status != models.StatusInReview || c.ContractorID == nil || *c.ContractorID != "vendor-a" {
		t.Fatalf("unexpected case state: %+v", c)
	}
	if sender.last() != notify.EventCaseAccepted {
		t.Fatalf("expected acceptance notification, got %s", sender.last())
	}

	if _, err := co.Accept(ctx, "org-1", "case-1", "vendor-b"); !errors.Is(err, ErrAlreadyAssigned) {
		t.Fatalf("expected ErrAlreadyAssigned, got %v", err)
	}
}

func TestAccept_IdempotentForSameContractor(t *testing.T) {
	co, _, _ := newCoordinator(t, models.UrgencyNormal)
	ctx := context.Background()

	if _, err := co.Accept(ctx, "org-1", "case-1", "vendor-a"); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	c, err := co.Accept(ctx, "org-1", "case-1", "vendor-a")
	if err != nil {
		t.Fatalf("repeated accept should succeed: %v", err)
	}
	if *c.ContractorID != "vendor-a" {
		t.Fatalf("contractor = %v", c.ContractorID)
	}
}

func TestAccept_ConcurrentRaceHasOneWinner(t *testing.T) {
	co, store, _ := newCoordinator(t, models.UrgencyNormal)
	ctx := context.Background()

	contractors := []string{"vendor-a", "vendor-b", "vendor-c", "vendor-d"}
	errs := make([]error, len(contractors))

	var wg sync.WaitGroup
	for i, id := range contractors {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = co.Accept(ctx, "org-1", "case-1", id)
		}(i, id)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrAlreadyAssigned), errors.Is(err, ErrConflict):
		default:
			t.Fatalf("unexpected race outcome: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}

	c, err := store.GetCase(ctx, "org-1", "case-1")
	if err != nil {
		t.Fatal(err)
	}
	if c.ContractorID == nil {
		t.Fatal("no contractor committed")
	}
}

func TestAccept_RejectsClosedCase(t *testing.T) {
	co, store, _ := newCoordinator(t, models.UrgencyNormal)
	ctx := context.Background()

	c, _ := store.GetCase(ctx, "org-1", "case-1")
	c.Status = models.StatusResolved
	if _, err := store.UpdateCaseCAS(ctx, c); err != nil {
		t.Fatal(err)
	}

	if _, err := co.Accept(ctx, "org-1", "case-1", "vendor-a"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestSchedule_HappyPath(t *testing.T) {
	co, store, sender := newCoordinator(t, models.UrgencyNormal)
	ctx := context.Background()

	if _, err := co.Accept(ctx, "org-1", "case-1", "vendor-a"); err != nil {
		t.Fatal(err)
	}

	start := baseTime.Add(24 * time.Hour)
	appt, err := co.Schedule(ctx, "org-1", "case-1", "vendor-a", start, 120)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if !appt.End.Equal(start.Add(2 * time.Hour)) {
		t.Fatalf("end = %s", appt.End)
	}

	c, _ := store.GetCase(ctx, "org-1", "case-1")
	if c.Status != models.StatusScheduled {
		t.Fatalf("status = %s", c.Status)
	}
	if sender.last() != notify.EventCaseScheduled {
		t.Fatalf("expected scheduled notification, got %s", sender.last())
	}
}

func TestSchedule_OverlapIsHalfOpen(t *testing.T) {
	co, store, _ := newCoordinator(t, models.UrgencyNormal)
	ctx := context.Background()

	if _, err := co.Accept(ctx, "org-1", "case-1", "vendor-a"); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateCase(ctx, models.Case{
		ID: "case-2", OrgID: "org-1", Status: models.StatusNew,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := co.Accept(ctx, "org-1", "case-2", "vendor-a"); err != nil {
		t.Fatal(err)
	}

	ten := baseTime.Add(25 * time.Hour)
	if _, err := co.Schedule(ctx, "org-1", "case-1", "vendor-a", ten, 120); err != nil {
		t.Fatalf("first booking: %v", err)
	}

	// [11:00,13:00) overlaps [10:00,12:00).
	if _, err := co.Schedule(ctx, "org-1", "case-2", "vendor-a", ten.Add(time.Hour), 120); !errors.Is(err, ErrScheduleConflict) {
		t.Fatalf("expected ErrScheduleConflict, got %v", err)
	}

	// [12:00,13:00) touches the boundary and is fine.
	if _, err := co.Schedule(ctx, "org-1", "case-2", "vendor-a", ten.Add(2*time.Hour), 60); err != nil {
		t.Fatalf("back-to-back booking should succeed: %v", err)
	}
}

func TestSchedule_ConcurrentOverlapHasOneWinner(t *testing.T) {
	co, store, _ := newCoordinator(t, models.UrgencyNormal)
	ctx := context.Background()

	if err := store.CreateCase(ctx, models.Case{
		ID: "case-2", OrgID: "org-1", Status: models.StatusNew,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := co.Accept(ctx, "org-1", "case-1", "vendor-a"); err != nil {
		t.Fatal(err)
	}
	if _, err := co.Accept(ctx, "org-1", "case-2", "vendor-a"); err != nil {
		t.Fatal(err)
	}

	// Two cases race for the same contractor and the same window; the
	// calendar check must not let both through.
	start := baseTime.Add(24 * time.Hour)
	caseIDs := []string{"case-1", "case-2"}
	errs := make([]error, len(caseIDs))

	var wg sync.WaitGroup
	for i, id := range caseIDs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = co.Schedule(ctx, "org-1", id, "vendor-a", start, 120)
		}(i, id)
	}
	wg.Wait()

	wins, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrScheduleConflict):
			conflicts++
		default:
			t.Fatalf("unexpected race outcome: %v", err)
		}
	}
	if wins != 1 || conflicts != 1 {
		t.Fatalf("expected one booking and one conflict, got wins=%d conflicts=%d", wins, conflicts)
	}

	booked := 0
	for _, id := range caseIDs {
		if _, err := store.GetCaseAppointment(ctx, id); err == nil {
			booked++
		}
	}
	if booked != 1 {
		t.Fatalf("contractor double-booked: %d appointments", booked)
	}
}

func TestSchedule_StartMustBeFuture(t *testing.T) {
	co, _, _ := newCoordinator(t, models.UrgencyNormal)
	ctx := context.Background()

	if _, err := co.Accept(ctx, "org-1", "case-1", "vendor-a"); err != nil {
		t.Fatal(err)
	}
	if _, err := co.Schedule(ctx, "org-1", "case-1", "vendor-a", baseTime.Add(-time.Hour), 60); !errors.Is(err, ErrStartInPast) {
		t.Fatalf("expected ErrStartInPast, got %v", err)
	}
	if _, err := co.Schedule(ctx, "org-1", "case-1", "vendor-a", baseTime, 60); !errors.Is(err, ErrStartInPast) {
		t.Fatalf("now is not in the future, got %v", err)
	}
}

func TestSchedule_OnlyAssigneeMaySchedule(t *testing.T) {
	co, _, _ := newCoordinator(t, models.UrgencyNormal)
	ctx := context.Background()

	if _, err := co.Accept(ctx, "org-1", "case-1", "vendor-a"); err != nil {
		t.Fatal(err)
	}
	if _, err := co.Schedule(ctx, "org-1", "case-1", "vendor-b", baseTime.Add(time.Hour), 60); !errors.Is(err, ErrNotAssignee) {
		t.Fatalf("expected ErrNotAssignee, got %v", err)
	}
}

// failingCASStore forces the case write after appointment creation to lose,
// exercising the rollback path.
type failingCASStore struct {
	*db.Memory
	failures int
}

func (s *failingCASStore) UpdateCaseCAS(ctx context.Context, c models.Case) (models.Case, error) {
	if s.failures > 0 {
		s.failures--
		return models.Case{}, db.ErrVersionConflict
	}
	return s.Memory.UpdateCaseCAS(ctx, c)
}

func TestSchedule_RollsBackAppointmentOnCaseWriteFailure(t *testing.T) {
	co, store, _ := newCoordinator(t, models.UrgencyNormal)
	ctx := context.Background()

	if _, err := co.Accept(ctx, "org-1", "case-1", "vendor-a"); err != nil {
		t.Fatal(err)
	}

	co.Store = &failingCASStore{Memory: store, failures: 1}
	start := baseTime.Add(time.Hour)
	if _, err := co.Schedule(ctx, "org-1", "case-1", "vendor-a", start, 60); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	if _, err := store.GetCaseAppointment(ctx, "case-1"); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("orphaned appointment survived the rollback: %v", err)
	}
}

func TestDecline_ReleasesCase(t *testing.T) {
	co, store, sender := newCoordinator(t, models.UrgencyNormal)
	ctx := context.Background()

	if _, err := co.Accept(ctx, "org-1", "case-1", "vendor-a"); err != nil {
		t.Fatal(err)
	}
	if err := co.Decline(ctx, "org-1", "case-1", "vendor-a", "too far away"); err != nil {
		t.Fatalf("decline: %v", err)
	}

	c, _ := store.GetCase(ctx, "org-1", "case-1")
	if c.ContractorID != nil || c.Status != models.StatusNew {
		t.Fatalf("case not released: %+v", c)
	}
	if sender.last() != notify.EventCaseDeclined {
		t.Fatalf("expected decline notification, got %s", sender.last())
	}

	// Back in the pool: another contractor can now claim it.
	if _, err := co.Accept(ctx, "org-1", "case-1", "vendor-b"); err != nil {
		t.Fatalf("re-accept after decline: %v", err)
	}
}

func TestDecline_CriticalEscalates(t *testing.T) {
	co, _, sender := newCoordinator(t, models.UrgencyEmergency)
	ctx := context.Background()

	if _, err := co.Accept(ctx, "org-1", "case-1", "vendor-a"); err != nil {
		t.Fatal(err)
	}
	if err := co.Decline(ctx, "org-1", "case-1", "vendor-a", "no emergency crew tonight"); err != nil {
		t.Fatalf("decline: %v", err)
	}
	if sender.last() != notify.EventCaseEscalated {
		t.Fatalf("Critical decline must escalate, got %s", sender.last())
	}
}

func TestDecline_RejectedOnceScheduled(t *testing.T) {
	co, store, _ := newCoordinator(t, models.UrgencyNormal)
	ctx := context.Background()

	if _, err := co.Accept(ctx, "org-1", "case-1", "vendor-a"); err != nil {
		t.Fatal(err)
	}
	if _, err := co.Schedule(ctx, "org-1", "case-1", "vendor-a", baseTime.Add(24*time.Hour), 60); err != nil {
		t.Fatal(err)
	}

	if err := co.Decline(ctx, "org-1", "case-1", "vendor-a", "changed my mind"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}

	// The booking stands untouched.
	c, _ := store.GetCase(ctx, "org-1", "case-1")
	if c.Status != models.StatusScheduled || c.ContractorID == nil {
		t.Fatalf("scheduled case mutated by decline: %+v", c)
	}
	if _, err := store.GetCaseAppointment(ctx, "case-1"); err != nil {
		t.Fatalf("appointment lost: %v", err)
	}
}

func TestDecline_RequiresAssignee(t *testing.T) {
	co, _, _ := newCoordinator(t, models.UrgencyNormal)
	ctx := context.Background()

	if err := co.Decline(ctx, "org-1", "case-1", "vendor-a", "nope"); !errors.Is(err, ErrNotAssignee) {
		t.Fatalf("expected ErrNotAssignee, got %v", err)
	}
}
