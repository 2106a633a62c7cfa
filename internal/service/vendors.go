package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/fixflow/backend/internal/geocode"
	"github.com/fixflow/backend/internal/models"
)

// ImportVendors bulk-loads contractor profiles for an organization,
// optionally resolving coordinates for vendors that only carry an address.
func (p *Pipeline) ImportVendors(ctx context.Context, orgID string, vendors []models.Vendor, geocodeMissing bool) (int64, error) {
	now := p.now()
	for i := range vendors {
		vendors[i].OrgID = orgID
		if vendors[i].ID == "" {
			vendors[i].ID = uuid.NewString()
		}
		vendors[i].UpdatedAt = now

		if geocodeMissing && p.Geocoder != nil && geocode.ShouldGeocode(vendors[i], false) {
			query := geocode.BuildQuery(p.CountryDefault, vendors[i].Address)
			lat, lon, _, _, err := p.Geocoder.Geocode(ctx, query)
			if err != nil {
				p.Logger.Debug().Err(err).Str("vendor", vendors[i].Name).Msg("vendor geocode failed")
				continue
			}
			vendors[i].Lat = &lat
			vendors[i].Lon = &lon
		}
	}
	return p.Store.InsertVendors(ctx, vendors)
}
