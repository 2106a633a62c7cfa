package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fixflow/backend/internal/models"
)

type Postgres struct {
	Pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Postgres{Pool: pool}, nil
}

func (s *Postgres) Close() {
	s.Pool.Close()
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Postgres) CreateConversation(ctx context.Context, c models.TriageConversation) error {
	slots, _ := json.Marshal(c.Slots)
	messages, _ := json.Marshal(c.Messages)
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO conversations (id, requester_id, org_id, phase, slots, messages, completed, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, c.ID, c.RequesterID, c.OrgID, string(c.Phase), slots, messages, c.Completed, c.CreatedAt, c.UpdatedAt)
	return err
}

func (s *Postgres) GetConversation(ctx context.Context, id string) (models.TriageConversation, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, requester_id, org_id, phase, slots, messages, completed, created_at, updated_at
		FROM conversations WHERE id = $1
	`, id)

	var (
		c        models.TriageConversation
		phase    string
		slots    []byte
		messages []byte
	)
	if err := row.Scan(&c.ID, &c.RequesterID, &c.OrgID, &phase, &slots, &messages, &c.Completed, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.TriageConversation{}, ErrNotFound
		}
		return models.TriageConversation{}, err
	}
	c.Phase = models.ConversationPhase(phase)
	if err := json.Unmarshal(slots, &c.Slots); err != nil {
		return models.TriageConversation{}, err
	}
	if len(messages) > 0 {
		if err := json.Unmarshal(messages, &c.Messages); err != nil {
			return models.TriageConversation{}, err
		}
	}
	return c, nil
}

func (s *Postgres) UpdateConversation(ctx context.Context, c models.TriageConversation) error {
	slots, _ := json.Marshal(c.Slots)
	messages, _ := json.Marshal(c.Messages)
	tag, err := s.Pool.Exec(ctx, `
		UPDATE conversations
		SET phase = $1, slots = $2, messages = $3, completed = $4, updated_at = $5
		WHERE id = $6
	`, string(c.Phase), slots, messages, c.Completed, c.UpdatedAt, c.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const caseColumns = `id, org_id, title, description, category, priority, status, building, room,
	address, lat, lon, contractor_id, safety_risk, conversation_id, duplicate_of_id,
	analysis, routing_notes, version, created_at, decided_at`

func (s *Postgres) CreateCase(ctx context.Context, c models.Case) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO cases (`+caseColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
	`, c.ID, c.OrgID, c.Title, c.Description, c.Category, c.Priority.Label(), string(c.Status),
		c.Building, c.Room, c.Address, c.Lat, c.Lon, c.ContractorID, c.SafetyRisk,
		c.ConversationID, c.DuplicateOfID, []byte(c.Analysis), []byte(c.RoutingNotes),
		c.Version, c.CreatedAt, c.DecidedAt)
	return err
}

func scanCase(row pgx.Row) (models.Case, error) {
	var (
		c        models.Case
		priority string
		status   string
		analysis []byte
		notes    []byte
	)
	err := row.Scan(&c.ID, &c.OrgID, &c.Title, &c.Description, &c.Category, &priority, &status,
		&c.Building, &c.Room, &c.Address, &c.Lat, &c.Lon, &c.ContractorID, &c.SafetyRisk,
		&c.ConversationID, &c.DuplicateOfID, &analysis, &notes, &c.Version, &c.CreatedAt, &c.DecidedAt)
	if err != nil {
		return models.Case{}, err
	}
	c.Priority, _ = models.ParseUrgency(priority)
	c.Status = models.CaseStatus(status)
	c.Analysis = analysis
	c.RoutingNotes = notes
	return c, nil
}

func (s *Postgres) GetCase(ctx context.Context, orgID, id string) (models.Case, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+caseColumns+` FROM cases WHERE org_id = $1 AND id = $2`, orgID, id)
	c, err := scanCase(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Case{}, ErrNotFound
	}
	return c, err
}

func (s *Postgres) UpdateCaseCAS(ctx context.Context, c models.Case) (models.Case, error) {
	row := s.Pool.QueryRow(ctx, `
		UPDATE cases
		SET status = $1, priority = $2, contractor_id = $3, duplicate_of_id = $4,
			analysis = $5, routing_notes = $6, decided_at = $7, version = version + 1
		WHERE org_id = $8 AND id = $9 AND version = $10
		RETURNING version
	`, string(c.Status), c.Priority.Label(), c.ContractorID, c.DuplicateOfID,
		[]byte(c.Analysis), []byte(c.RoutingNotes), c.DecidedAt, c.OrgID, c.ID, c.Version)

	var version int64
	if err := row.Scan(&version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Row exists with a newer version, or not at all. Distinguish.
			if _, getErr := s.GetCase(ctx, c.OrgID, c.ID); errors.Is(getErr, ErrNotFound) {
				return models.Case{}, ErrNotFound
			}
			return models.Case{}, ErrVersionConflict
		}
		return models.Case{}, err
	}
	c.Version = version
	return c, nil
}

func (s *Postgres) ListCases(ctx context.Context, orgID string, f CaseFilter) ([]models.Case, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	query := `SELECT ` + caseColumns + ` FROM cases`
	args := []any{orgID}
	wheres := []string{"org_id = $1"}
	if f.Status != "" {
		args = append(args, f.Status)
		wheres = append(wheres, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Priority != "" {
		args = append(args, f.Priority)
		wheres = append(wheres, fmt.Sprintf("priority = $%d", len(args)))
	}
	if f.Building != "" {
		args = append(args, f.Building)
		wheres = append(wheres, fmt.Sprintf("building = $%d", len(args)))
	}
	if f.Query != "" {
		args = append(args, "%"+f.Query+"%")
		wheres = append(wheres, fmt.Sprintf("(description ILIKE $%d OR title ILIKE $%d)", len(args), len(args)))
	}
	query += " WHERE " + strings.Join(wheres, " AND ")
	query += " ORDER BY created_at DESC LIMIT $" + fmt.Sprint(len(args)+1) + " OFFSET $" + fmt.Sprint(len(args)+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Postgres) ListRecentOpenCases(ctx context.Context, orgID string, since time.Time) ([]models.Case, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+caseColumns+` FROM cases
		WHERE org_id = $1 AND created_at >= $2
			AND status NOT IN ('RESOLVED','CLOSED','MERGED')
		ORDER BY created_at DESC
	`, orgID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Postgres) ListVendors(ctx context.Context, orgID, category string) ([]models.Vendor, error) {
	query := `SELECT id, org_id, name, categories, rating, current_load, max_jobs_per_day,
		response_time_hours, emergency_available, availability, address, lat, lon, updated_at
		FROM vendors WHERE org_id = $1`
	args := []any{orgID}
	if category != "" {
		args = append(args, category)
		query += fmt.Sprintf(" AND $%d = ANY(categories)", len(args))
	}
	query += " ORDER BY current_load ASC, id ASC"

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Vendor
	for rows.Next() {
		var v models.Vendor
		if err := rows.Scan(&v.ID, &v.OrgID, &v.Name, &v.Categories, &v.Rating, &v.CurrentLoad,
			&v.MaxJobsPerDay, &v.ResponseTimeHours, &v.EmergencyAvailable, &v.Availability,
			&v.Address, &v.Lat, &v.Lon, &v.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Postgres) GetVendor(ctx context.Context, orgID, id string) (models.Vendor, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, org_id, name, categories, rating, current_load, max_jobs_per_day,
			response_time_hours, emergency_available, availability, address, lat, lon, updated_at
		FROM vendors WHERE org_id = $1 AND id = $2
	`, orgID, id)

	var v models.Vendor
	err := row.Scan(&v.ID, &v.OrgID, &v.Name, &v.Categories, &v.Rating, &v.CurrentLoad,
		&v.MaxJobsPerDay, &v.ResponseTimeHours, &v.EmergencyAvailable, &v.Availability,
		&v.Address, &v.Lat, &v.Lon, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Vendor{}, ErrNotFound
	}
	return v, err
}

func (s *Postgres) InsertVendors(ctx context.Context, vendors []models.Vendor) (int64, error) {
	rows := make([][]any, 0, len(vendors))
	for _, v := range vendors {
		rows = append(rows, []any{v.ID, v.OrgID, v.Name, v.Categories, v.Rating, v.CurrentLoad,
			v.MaxJobsPerDay, v.ResponseTimeHours, v.EmergencyAvailable, v.Availability,
			v.Address, v.Lat, v.Lon, v.UpdatedAt})
	}
	return s.Pool.CopyFrom(ctx, pgx.Identifier{"vendors"},
		[]string{"id", "org_id", "name", "categories", "rating", "current_load", "max_jobs_per_day",
			"response_time_hours", "emergency_available", "availability", "address", "lat", "lon", "updated_at"},
		pgx.CopyFromRows(rows))
}

func (s *Postgres) UpdateVendorCoords(ctx context.Context, orgID, id string, lat, lon float64) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE vendors SET lat = $1, lon = $2, updated_at = NOW() WHERE org_id = $3 AND id = $4
	`, lat, lon, orgID, id)
	return err
}

// CreateAppointmentIfFree runs the overlap check and the insert as one
// statement, so two concurrent bookings for the same contractor cannot both
// pass the check. The appointments table carries an exclusion constraint on
// (contractor_id, tstzrange(start_at, end_at)) as the schema-level backstop.
func (s *Postgres) CreateAppointmentIfFree(ctx context.Context, a models.Appointment) error {
	tag, err := s.Pool.Exec(ctx, `
		INSERT INTO appointments (id, case_id, contractor_id, start_at, end_at, status, created_at)
		SELECT $1,$2,$3,$4,$5,$6,$7
		WHERE NOT EXISTS (
			SELECT 1 FROM appointments
			WHERE contractor_id = $3 AND start_at < $5 AND end_at > $4 AND status != 'CANCELLED'
		)
	`, a.ID, a.CaseID, a.ContractorID, a.Start, a.End, a.Status, a.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23P01" {
			return ErrOverlappingAppointment
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOverlappingAppointment
	}
	return nil
}

func (s *Postgres) DeleteAppointment(ctx context.Context, id string) error {
	_, err := s.Pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	return err
}

func (s *Postgres) GetCaseAppointment(ctx context.Context, caseID string) (models.Appointment, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, case_id, contractor_id, start_at, end_at, status, created_at
		FROM appointments WHERE case_id = $1 AND status != 'CANCELLED'
		ORDER BY created_at DESC LIMIT 1
	`, caseID)

	var a models.Appointment
	err := row.Scan(&a.ID, &a.CaseID, &a.ContractorID, &a.Start, &a.End, &a.Status, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Appointment{}, ErrNotFound
	}
	return a, err
}
