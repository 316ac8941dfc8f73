package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/JunaidSumsaal/advanceparkingsystem/internal/database"
	"github.com/JunaidSumsaal/advanceparkingsystem/internal/geo"
	"github.com/JunaidSumsaal/advanceparkingsystem/internal/models"
	"gorm.io/gorm/clause"
)

// kmPerDegreeLat is used for the bounding-box pre-filter. The box is an
// approximation only; exact haversine filtering below is the contract.
const kmPerDegreeLat = 111.0

// SpotService is the read/upsert surface over the authoritative spot store.
type SpotService struct {
	db *database.DB
}

func NewSpotService(db *database.DB) *SpotService {
	return &SpotService{db: db}
}

// ExternalSpotAttrs are the fields an external record may set on upsert.
type ExternalSpotAttrs struct {
	Name      string
	Latitude  float64
	Longitude float64
}

// SpotWithDistance pairs a spot with its distance to a query point.
type SpotWithDistance struct {
	models.ParkingSpot
	DistanceKm float64 `json:"distance_km"`
}

// FindLocalAvailableWithin returns active, available locally registered
// spots within radiusKm of the point, closest first, up to limit. Only
// source=local rows qualify: externally ingested rows are served through
// the candidate-set cache until its TTL lapses, never from this tier. A
// bounding box narrows the SQL scan; the exact great-circle distance
// decides membership.
func (s *SpotService) FindLocalAvailableWithin(ctx context.Context, lat, lng, radiusKm float64, limit int) ([]SpotWithDistance, error) {
	latDelta := radiusKm / kmPerDegreeLat
	lngDelta := 180.0
	if cosLat := math.Cos(lat * math.Pi / 180); cosLat > 1e-6 {
		lngDelta = radiusKm / (kmPerDegreeLat * cosLat)
	}

	var candidates []models.ParkingSpot
	query := s.db.WithContext(ctx).
		Where("source = ? AND is_active = ? AND is_available = ?", models.SourceLocal, true, true).
		Where("latitude BETWEEN ? AND ?", lat-latDelta, lat+latDelta)
	if lngDelta < 180.0 {
		query = query.Where("longitude BETWEEN ? AND ?", lng-lngDelta, lng+lngDelta)
	}
	if err := query.Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("failed to query spots: %w", err)
	}

	return filterByDistance(candidates, lat, lng, radiusKm, limit), nil
}

// FindActiveAvailableByIDs re-validates cached candidate IDs against the
// current records. Missing, archived, or occupied spots simply drop out.
func (s *SpotService) FindActiveAvailableByIDs(ctx context.Context, ids []uint) ([]models.ParkingSpot, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var spots []models.ParkingSpot
	err := s.db.WithContext(ctx).
		Where("id IN ? AND is_active = ? AND is_available = ?", ids, true, true).
		Find(&spots).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query spots by id: %w", err)
	}
	return spots, nil
}

// UpsertExternal creates or updates the spot keyed by externalID. Repeat
// calls with the same key never duplicate the row; local-sourced rows are
// untouchable from here because they never carry an external_id.
func (s *SpotService) UpsertExternal(ctx context.Context, externalID string, attrs ExternalSpotAttrs) (*models.ParkingSpot, error) {
	spot := models.ParkingSpot{
		Name:        attrs.Name,
		Latitude:    attrs.Latitude,
		Longitude:   attrs.Longitude,
		Source:      models.SourceExternal,
		ExternalID:  &externalID,
		IsAvailable: true,
		IsActive:    true,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"name":         attrs.Name,
			"latitude":     attrs.Latitude,
			"longitude":    attrs.Longitude,
			"source":       models.SourceExternal,
			"is_available": true,
			"is_active":    true,
			"updated_at":   time.Now(),
		}),
	}).Create(&spot).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert external spot %s: %w", externalID, err)
	}

	// Re-read so the caller always gets the canonical row, including the
	// identifier of a pre-existing record hit by the conflict clause.
	var saved models.ParkingSpot
	if err := s.db.WithContext(ctx).Where("external_id = ?", externalID).First(&saved).Error; err != nil {
		return nil, fmt.Errorf("failed to load upserted spot %s: %w", externalID, err)
	}
	return &saved, nil
}

// SpotFilter narrows the spot listing
type SpotFilter struct {
	Page          int
	Limit         int
	Source        string
	FacilityID    uint
	AvailableOnly bool
}

type SpotListResponse struct {
	Items      []models.ParkingSpot `json:"items"`
	Total      int64                `json:"total"`
	Page       int                  `json:"page"`
	Limit      int                  `json:"limit"`
	TotalPages int                  `json:"total_pages"`
}

// List retrieves active spots with filtering and pagination
func (s *SpotService) List(ctx context.Context, filter *SpotFilter) (*SpotListResponse, error) {
	var spots []models.ParkingSpot
	var total int64

	query := s.db.WithContext(ctx).Model(&models.ParkingSpot{}).
		Where("is_active = ?", true)

	if filter.Source != "" {
		query = query.Where("source = ?", filter.Source)
	}
	if filter.FacilityID > 0 {
		query = query.Where("facility_id = ?", filter.FacilityID)
	}
	if filter.AvailableOnly {
		query = query.Where("is_available = ?", true)
	}

	query.Count(&total)

	offset := (filter.Page - 1) * filter.Limit
	query = query.Order("created_at DESC").Offset(offset).Limit(filter.Limit)

	if err := query.Find(&spots).Error; err != nil {
		return nil, err
	}

	totalPages := int(total) / filter.Limit
	if int(total)%filter.Limit > 0 {
		totalPages++
	}

	return &SpotListResponse{
		Items:      spots,
		Total:      total,
		Page:       filter.Page,
		Limit:      filter.Limit,
		TotalPages: totalPages,
	}, nil
}

// GetByID retrieves a spot by ID
func (s *SpotService) GetByID(ctx context.Context, id uint) (*models.ParkingSpot, error) {
	var spot models.ParkingSpot
	err := s.db.WithContext(ctx).First(&spot, id).Error
	if err != nil {
		return nil, err
	}
	return &spot, nil
}

// CreateLocal registers a provider-owned spot. The full facility workflow
// lives in the provider service; this is the thin path used by the API.
func (s *SpotService) CreateLocal(ctx context.Context, spot *models.ParkingSpot) error {
	spot.Source = models.SourceLocal
	spot.ExternalID = nil
	spot.IsActive = true
	if err := s.db.WithContext(ctx).Create(spot).Error; err != nil {
		return fmt.Errorf("failed to create spot: %w", err)
	}
	return nil
}

// filterByDistance applies the exact-distance contract and sorts closest
// first for deterministic results.
func filterByDistance(spots []models.ParkingSpot, lat, lng, radiusKm float64, limit int) []SpotWithDistance {
	within := make([]SpotWithDistance, 0, len(spots))
	for _, spot := range spots {
		d := geo.DistanceKm(lat, lng, spot.Latitude, spot.Longitude)
		if d <= radiusKm {
			within = append(within, SpotWithDistance{ParkingSpot: spot, DistanceKm: d})
		}
	}

	sort.Slice(within, func(i, j int) bool {
		return within[i].DistanceKm < within[j].DistanceKm
	})

	if limit > 0 && len(within) > limit {
		within = within[:limit]
	}
	return within
}
