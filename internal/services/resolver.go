package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JunaidSumsaal/advanceparkingsystem/internal/geo"
	"github.com/JunaidSumsaal/advanceparkingsystem/internal/logger"
	"github.com/JunaidSumsaal/advanceparkingsystem/internal/models"
	"github.com/JunaidSumsaal/advanceparkingsystem/internal/overpass"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	resolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parking_resolutions_total",
			Help: "Total number of nearby-spot resolutions by terminal source",
		},
		[]string{"source"},
	)

	resolutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "parking_resolution_duration_seconds",
			Help:    "Nearby-spot resolution latency in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"source"},
	)
)

// ErrInvalidCoordinates rejects requests outside [-90,90]/[-180,180]
// before any tier runs.
var ErrInvalidCoordinates = errors.New("invalid coordinates")

// Terminal source labels. The external label carries the radii queried,
// e.g. "osm:5,10".
const (
	SourceTagDatabase = "database"
	SourceTagCache    = "cache"
	SourceTagNone     = "none"
	sourceTagOSM      = "osm"
)

// SpotStore is the authoritative inventory read surface. The within query
// sees only locally registered rows; externally ingested rows surface
// through the cache tier ID lookup.
type SpotStore interface {
	FindLocalAvailableWithin(ctx context.Context, lat, lng, radiusKm float64, limit int) ([]SpotWithDistance, error)
	FindActiveAvailableByIDs(ctx context.Context, ids []uint) ([]models.ParkingSpot, error)
}

// Reconciler persists raw external records and returns canonical rows.
type Reconciler interface {
	ReconcileBatch(ctx context.Context, raw []overpass.RawSpot) ([]models.ParkingSpot, error)
}

// BucketCache is the candidate-set cache keyed by quantized buckets.
type BucketCache interface {
	Key(lat, lng, radiusKm float64) string
	Get(ctx context.Context, key string) ([]uint, bool)
	Set(ctx context.Context, key string, ids []uint)
}

// ExternalSource fetches parking points of interest around a coordinate.
// Implementations never fail; total failure is an empty result.
type ExternalSource interface {
	FetchParking(ctx context.Context, lat, lng, radiusKm float64) []overpass.RawSpot
}

// ResultNotifier receives one event per completed resolution.
type ResultNotifier interface {
	Notify(ev ResolutionEvent)
}

// Broadcaster pushes newly ingested spots to live subscribers.
type Broadcaster interface {
	BroadcastSpot(spot models.ParkingSpot)
}

// maxBroadcastSpots caps the best-effort live-update fanout per resolution.
const maxBroadcastSpots = 10

// ResolveRequest is one nearby-spot query. RadiusKm <= 0 selects the
// configured default; UserID is nil for anonymous clients.
type ResolveRequest struct {
	Lat      float64
	Lng      float64
	RadiusKm float64
	Limit    int
	UserID   *uint
}

// SpotView is the outward shape of one resolved spot.
type SpotView struct {
	ID          uint    `json:"id"`
	Name        string  `json:"name"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	SpotType    string  `json:"spot_type"`
	IsAvailable bool    `json:"is_available"`
	DistanceKm  float64 `json:"distance_km"`
	Source      string  `json:"source"`
}

// ResolveResponse is the terminal result of the tier sequence.
type ResolveResponse struct {
	Source       string     `json:"source"`
	Results      []SpotView `json:"results"`
	WithinRadius int        `json:"within_radius"`
	Radius       float64    `json:"radius"`
}

// ResolverConfig are the orchestration tunables (see config.ParkingConfig).
type ResolverConfig struct {
	MaxRadiusKm       float64
	DefaultRadiusKm   float64
	ExpansionRadiiKm  []float64
	TargetResultCount int
	DefaultLimit      int
}

// Resolver sequences the three tiers: authoritative store, candidate-set
// cache, then external expansion across ascending radii. The first tier
// producing results is terminal; every terminal branch notifies.
type Resolver struct {
	cfg         ResolverConfig
	store       SpotStore
	cache       BucketCache
	external    ExternalSource
	reconciler  Reconciler
	notifier    ResultNotifier
	broadcaster Broadcaster
}

func NewResolver(cfg ResolverConfig, store SpotStore, cache BucketCache, external ExternalSource,
	reconciler Reconciler, notifier ResultNotifier, broadcaster Broadcaster) *Resolver {
	return &Resolver{
		cfg:         cfg,
		store:       store,
		cache:       cache,
		external:    external,
		reconciler:  reconciler,
		notifier:    notifier,
		broadcaster: broadcaster,
	}
}

// Resolve runs the tier sequence for one request.
func (r *Resolver) Resolve(ctx context.Context, req ResolveRequest) (*ResolveResponse, error) {
	log := logger.GetLogger("resolver")
	start := time.Now()

	if !geo.ValidCoordinate(req.Lat, req.Lng) {
		return nil, ErrInvalidCoordinates
	}

	radius := req.RadiusKm
	if radius <= 0 {
		radius = r.cfg.DefaultRadiusKm
	}
	if radius > r.cfg.MaxRadiusKm {
		radius = r.cfg.MaxRadiusKm
	}

	limit := req.Limit
	if limit <= 0 {
		limit = r.cfg.DefaultLimit
	}

	finish := func(resp *ResolveResponse) *ResolveResponse {
		tier := resp.Source
		if strings.HasPrefix(tier, sourceTagOSM+":") {
			tier = sourceTagOSM
		}
		resolutionsTotal.WithLabelValues(tier).Inc()
		resolutionDuration.WithLabelValues(tier).Observe(time.Since(start).Seconds())
		r.notifier.Notify(NewResolutionEvent(req.UserID, resp.WithinRadius, resp.Radius, resp.Source))
		return resp
	}

	// Tier 1: locally registered inventory. Unlimited fetch so the
	// within-radius count reflects everything that qualifies, not the page.
	local, err := r.store.FindLocalAvailableWithin(ctx, req.Lat, req.Lng, radius, 0)
	if err != nil {
		return nil, err
	}
	if len(local) > 0 {
		log.Infof("DB tier hit: %d local spots within %.1fkm", len(local), radius)
		return finish(viewsResponse(SourceTagDatabase, local, radius, limit)), nil
	}

	// Tier 2: candidate-set cache. A miss (including backend failure) is
	// indistinguishable from a cold start.
	bucketKey := r.cache.Key(req.Lat, req.Lng, radius)
	if ids, ok := r.cache.Get(ctx, bucketKey); ok {
		spots, err := r.store.FindActiveAvailableByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		// The bucket may be coarser than the exact request; re-validate
		// distance and availability against the current records.
		cached := filterByDistance(spots, req.Lat, req.Lng, radius, 0)
		if len(cached) > 0 {
			log.Infof("Cache tier hit: %d of %d cached spots still qualify", len(cached), len(ids))
			return finish(viewsResponse(SourceTagCache, cached, radius, limit)), nil
		}
	}

	// Tier 3: external expansion across ascending radii
	resp, err := r.resolveExternal(ctx, req, radius, limit, bucketKey)
	if err != nil {
		return nil, err
	}
	if resp != nil {
		return finish(resp), nil
	}

	// Tier 4: nothing anywhere
	return finish(&ResolveResponse{
		Source:  SourceTagNone,
		Results: []SpotView{},
		Radius:  radius,
	}), nil
}

// resolveExternal walks the expansion radii, ingesting and accumulating
// results until the target count is reached or the list is exhausted.
// Returns nil when the external tier produced nothing.
func (r *Resolver) resolveExternal(ctx context.Context, req ResolveRequest, radius float64, limit int, bucketKey string) (*ResolveResponse, error) {
	log := logger.GetLogger("resolver")

	var (
		accumulated []models.ParkingSpot
		seen        = make(map[string]bool)
		radiiUsed   []string
	)

	for _, expansionRadius := range r.cfg.ExpansionRadiiKm {
		// Never search wider than the caller asked for; a larger entry is
		// skipped, not truncated.
		if expansionRadius > radius {
			continue
		}

		raw := r.external.FetchParking(ctx, req.Lat, req.Lng, expansionRadius)
		radiiUsed = append(radiiUsed, formatRadius(expansionRadius))
		if len(raw) == 0 {
			continue
		}

		canonical, err := r.reconciler.ReconcileBatch(ctx, raw)
		if err != nil {
			return nil, err
		}

		// A lot found at 10km must not be counted again when the 20km
		// expansion re-returns it.
		for _, spot := range canonical {
			if spot.ExternalID == nil || seen[*spot.ExternalID] {
				continue
			}
			seen[*spot.ExternalID] = true
			accumulated = append(accumulated, spot)
		}

		if len(accumulated) >= r.cfg.TargetResultCount {
			break
		}
	}

	if len(accumulated) == 0 {
		return nil, nil
	}

	ids := make([]uint, len(accumulated))
	for i, spot := range accumulated {
		ids[i] = spot.ID
	}
	r.cache.Set(ctx, bucketKey, ids)

	r.broadcastIngested(accumulated)

	results := filterByDistance(accumulated, req.Lat, req.Lng, radius, 0)

	source := sourceTagOSM + ":" + strings.Join(radiiUsed, ",")
	log.Infof("External tier: %d spots in range over radii [%s]", len(results), strings.Join(radiiUsed, ","))

	return viewsResponse(source, results, radius, limit), nil
}

// broadcastIngested pushes up to maxBroadcastSpots live updates without
// blocking the response path; failures are swallowed.
func (r *Resolver) broadcastIngested(spots []models.ParkingSpot) {
	if r.broadcaster == nil {
		return
	}

	batch := spots
	if len(batch) > maxBroadcastSpots {
		batch = batch[:maxBroadcastSpots]
	}
	toSend := make([]models.ParkingSpot, len(batch))
	copy(toSend, batch)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				logger.GetLogger("resolver").Warnf("Broadcast panic swallowed: %v", rec)
			}
		}()
		for _, spot := range toSend {
			r.broadcaster.BroadcastSpot(spot)
		}
	}()
}

// viewsResponse builds the terminal response. WithinRadius counts every
// qualifying spot; the limit only pages the result list, so the count
// means the same thing in every tier.
func viewsResponse(source string, spots []SpotWithDistance, radius float64, limit int) *ResolveResponse {
	withinRadius := len(spots)
	if limit > 0 && len(spots) > limit {
		spots = spots[:limit]
	}

	views := make([]SpotView, len(spots))
	for i, spot := range spots {
		views[i] = SpotView{
			ID:          spot.ID,
			Name:        spot.Name,
			Latitude:    spot.Latitude,
			Longitude:   spot.Longitude,
			SpotType:    spot.SpotType,
			IsAvailable: spot.IsAvailable,
			DistanceKm:  spot.DistanceKm,
			Source:      spot.ParkingSpot.Source,
		}
	}
	return &ResolveResponse{
		Source:       source,
		Results:      views,
		WithinRadius: withinRadius,
		Radius:       radius,
	}
}

func formatRadius(r float64) string {
	if r == float64(int(r)) {
		return fmt.Sprintf("%d", int(r))
	}
	return fmt.Sprintf("%g", r)
}
