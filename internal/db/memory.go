package db

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fixflow/backend/internal/models"
)

// Memory is the in-memory Store used by tests and local development without
// Postgres. The mutex makes its compare-and-swap semantics match the SQL
// implementation, which is what the acceptance-race tests exercise.
type Memory struct {
	mu            sync.Mutex
	conversations map[string]models.TriageConversation
	cases         map[string]models.Case
	vendors       map[string]models.Vendor
	appointments  map[string]models.Appointment
}

func NewMemory() *Memory {
	return &Memory{
		conversations: map[string]models.TriageConversation{},
		cases:         map[string]models.Case{},
		vendors:       map[string]models.Vendor{},
		appointments:  map[string]models.Appointment{},
	}
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
func (m *Memory) Close()                         {}

func (m *Memory) CreateConversation(ctx context.Context, c models.TriageConversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations[c.ID] = c
	return nil
}

func (m *Memory) GetConversation(ctx context.Context, id string) (models.TriageConversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok {
		return models.TriageConversation{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) UpdateConversation(ctx context.Context, c models.TriageConversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conversations[c.ID]; !ok {
		return ErrNotFound
	}
	m.conversations[c.ID] = c
	return nil
}

func (m *Memory) CreateCase(ctx context.Context, c models.Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cases[c.ID] = c
	return nil
}

func (m *Memory) GetCase(ctx context.Context, orgID, id string) (models.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[id]
	if !ok || c.OrgID != orgID {
		return models.Case{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) UpdateCaseCAS(ctx context.Context, c models.Case) (models.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.cases[c.ID]
	if !ok || stored.OrgID != c.OrgID {
		return models.Case{}, ErrNotFound
	}
	if stored.Version != c.Version {
		return models.Case{}, ErrVersionConflict
	}
	c.Version++
	m.cases[c.ID] = c
	return c, nil
}

func (m *Memory) ListCases(ctx context.Context, orgID string, f CaseFilter) ([]models.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Case
	for _, c := range m.cases {
		if c.OrgID != orgID {
			continue
		}
		if f.Status != "" && string(c.Status) != f.Status {
			continue
		}
		if f.Priority != "" && c.Priority.Label() != f.Priority {
			continue
		}
		if f.Building != "" && c.Building != f.Building {
			continue
		}
		if f.Query != "" {
			q := strings.ToLower(f.Query)
			if !strings.Contains(strings.ToLower(c.Title), q) &&
				!strings.Contains(strings.ToLower(c.Description), q) {
				continue
			}
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Memory) ListRecentOpenCases(ctx context.Context, orgID string, since time.Time) ([]models.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Case
	for _, c := range m.cases {
		if c.OrgID != orgID || !c.Status.Open() || c.CreatedAt.Before(since) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ListVendors(ctx context.Context, orgID, category string) ([]models.Vendor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Vendor
	for _, v := range m.vendors {
		if v.OrgID != orgID {
			continue
		}
		if category != "" && !hasCategory(v.Categories, category) {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CurrentLoad == out[j].CurrentLoad {
			return out[i].ID < out[j].ID
		}
		return out[i].CurrentLoad < out[j].CurrentLoad
	})
	return out, nil
}

func (m *Memory) GetVendor(ctx context.Context, orgID, id string) (models.Vendor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vendors[id]
	if !ok || v.OrgID != orgID {
		return models.Vendor{}, ErrNotFound
	}
	return v, nil
}

func (m *Memory) InsertVendors(ctx context.Context, vendors []models.Vendor) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range vendors {
		m.vendors[v.ID] = v
	}
	return int64(len(vendors)), nil
}

func (m *Memory) UpdateVendorCoords(ctx context.Context, orgID, id string, lat, lon float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vendors[id]
	if !ok || v.OrgID != orgID {
		return ErrNotFound
	}
	v.Lat = &lat
	v.Lon = &lon
	v.UpdatedAt = time.Now().UTC()
	m.vendors[id] = v
	return nil
}

// CreateAppointmentIfFree scans and inserts under the same lock, matching
// the single-statement insert the SQL implementation uses.
func (m *Memory) CreateAppointmentIfFree(ctx context.Context, a models.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.appointments {
		if existing.ContractorID != a.ContractorID || existing.Status == "CANCELLED" {
			continue
		}
		if existing.Overlaps(a.Start, a.End) {
			return ErrOverlappingAppointment
		}
	}
	m.appointments[a.ID] = a
	return nil
}

func (m *Memory) DeleteAppointment(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.appointments, id)
	return nil
}

func (m *Memory) GetCaseAppointment(ctx context.Context, caseID string) (models.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *models.Appointment
	for _, a := range m.appointments {
		a := a
		if a.CaseID == caseID && a.Status != "CANCELLED" {
			if found == nil || a.CreatedAt.After(found.CreatedAt) {
				found = &a
			}
		}
	}
	if found == nil {
		return models.Appointment{}, ErrNotFound
	}
	return *found, nil
}

func hasCategory(categories []string, target string) bool {
	for _, c := range categories {
		if c == target {
			return true
		}
	}
	return false
}
