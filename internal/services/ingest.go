package services

import (
	"context"
	"fmt"

	"github.com/JunaidSumsaal/advanceparkingsystem/internal/geo"
	"github.com/JunaidSumsaal/advanceparkingsystem/internal/logger"
	"github.com/JunaidSumsaal/advanceparkingsystem/internal/models"
	"github.com/JunaidSumsaal/advanceparkingsystem/internal/overpass"
)

// ExternalUpserter is the slice of the spot store the reconciler needs.
type ExternalUpserter interface {
	UpsertExternal(ctx context.Context, externalID string, attrs ExternalSpotAttrs) (*models.ParkingSpot, error)
}

// IngestService reconciles raw Overpass records into canonical spot rows.
type IngestService struct {
	store ExternalUpserter
}

func NewIngestService(store ExternalUpserter) *IngestService {
	return &IngestService{store: store}
}

// ReconcileBatch deduplicates the batch by external ID and upserts each
// record, returning the canonical rows. Overpass can return a node, a way
// and a relation for the same physical lot, hence the in-batch dedupe;
// records with invalid coordinates are skipped. An upsert failure aborts
// the batch: the local store is the source of truth and a silent partial
// write would be data loss.
func (s *IngestService) ReconcileBatch(ctx context.Context, raw []overpass.RawSpot) ([]models.ParkingSpot, error) {
	log := logger.GetLogger("ingest")

	seen := make(map[string]bool, len(raw))
	spots := make([]models.ParkingSpot, 0, len(raw))

	for _, record := range raw {
		if record.ExternalID == "" || seen[record.ExternalID] {
			continue
		}
		seen[record.ExternalID] = true

		if !geo.ValidCoordinate(record.Lat, record.Lng) {
			log.Warnf("Skipping record %s: invalid coordinates (%.6f, %.6f)",
				record.ExternalID, record.Lat, record.Lng)
			continue
		}

		saved, err := s.store.UpsertExternal(ctx, record.ExternalID, ExternalSpotAttrs{
			Name:      record.Name,
			Latitude:  record.Lat,
			Longitude: record.Lng,
		})
		if err != nil {
			return nil, fmt.Errorf("reconcile batch: %w", err)
		}
		spots = append(spots, *saved)
	}

	if len(spots) > 0 {
		log.Infof("Reconciled %d external spots (%d raw records)", len(spots), len(raw))
	}
	return spots, nil
}
