package geocode

import (
	"context"
	"errors"
	"strings"

	"github.com/fixflow/backend/internal/models"
)

var ErrNotFound = errors.New("geocode not found")

// Geocoder resolves a street address so the matcher can score contractor
// travel distance.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (lat float64, lon float64, displayName string, confidence float64, err error)
}

func BuildQuery(country string, parts ...string) string {
	out := []string{}
	if c := strings.TrimSpace(country); c != "" {
		out = append(out, c)
	}
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}

// ShouldGeocode reports whether a vendor needs coordinates resolved.
func ShouldGeocode(v models.Vendor, force bool) bool {
	if v.Address == "" {
		return false
	}
	if force {
		return true
	}
	return v.Lat == nil || v.Lon == nil
}
