package db

import (
	"context"
	"errors"
	"time"

	"github.com/fixflow/backend/internal/models"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict means the compare-and-swap write lost a race:
	// someone else committed between our read and our write.
	ErrVersionConflict = errors.New("version conflict")
	// ErrOverlappingAppointment means the contractor already holds an
	// appointment overlapping the requested window.
	ErrOverlappingAppointment = errors.New("overlapping appointment")
)

type CaseFilter struct {
	Status   string
	Priority string
	Building string
	Query    string
	Limit    int
	Offset   int
}

// Store is everything the pipeline needs from the record store. The postgres
// implementation backs production; the memory implementation backs tests.
type Store interface {
	Ping(ctx context.Context) error
	Close()

	CreateConversation(ctx context.Context, c models.TriageConversation) error
	GetConversation(ctx context.Context, id string) (models.TriageConversation, error)
	UpdateConversation(ctx context.Context, c models.TriageConversation) error

	CreateCase(ctx context.Context, c models.Case) error
	GetCase(ctx context.Context, orgID, id string) (models.Case, error)
	// UpdateCaseCAS writes c only if the stored version still equals
	// c.Version, bumping the version on success. Returns the committed row
	// or ErrVersionConflict.
	UpdateCaseCAS(ctx context.Context, c models.Case) (models.Case, error)
	ListCases(ctx context.Context, orgID string, f CaseFilter) ([]models.Case, error)
	ListRecentOpenCases(ctx context.Context, orgID string, since time.Time) ([]models.Case, error)

	ListVendors(ctx context.Context, orgID, category string) ([]models.Vendor, error)
	GetVendor(ctx context.Context, orgID, id string) (models.Vendor, error)
	InsertVendors(ctx context.Context, vendors []models.Vendor) (int64, error)
	UpdateVendorCoords(ctx context.Context, orgID, id string, lat, lon float64) error

	// CreateAppointmentIfFree inserts a only when the contractor has no
	// overlapping non-cancelled appointment; the scan and the insert are one
	// atomic operation, so concurrent bookings cannot both pass the check.
	// Returns ErrOverlappingAppointment when the window is taken.
	CreateAppointmentIfFree(ctx context.Context, a models.Appointment) error
	DeleteAppointment(ctx context.Context, id string) error
	GetCaseAppointment(ctx context.Context, caseID string) (models.Appointment, error)
}
