package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JunaidSumsaal/advanceparkingsystem/internal/geo"
	"github.com/JunaidSumsaal/advanceparkingsystem/internal/models"
	"github.com/JunaidSumsaal/advanceparkingsystem/internal/overpass"
)

// ---- collaborator fakes ----

// fakeStore mirrors the real store's predicates: the within query serves
// only locally registered rows, the ID lookup serves any active and
// available row regardless of source.
type fakeStore struct {
	rows        map[uint]models.ParkingSpot
	withinCalls int
	byIDsCalls  int
	lastRadius  float64
	withinErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[uint]models.ParkingSpot)}
}

func (f *fakeStore) addLocal(id uint, lat, lng float64) {
	f.rows[id] = models.ParkingSpot{
		ID:          id,
		Name:        fmt.Sprintf("Garage %d", id),
		Latitude:    lat,
		Longitude:   lng,
		Source:      models.SourceLocal,
		IsAvailable: true,
		IsActive:    true,
	}
}

func (f *fakeStore) FindLocalAvailableWithin(_ context.Context, lat, lng, radiusKm float64, limit int) ([]SpotWithDistance, error) {
	f.withinCalls++
	f.lastRadius = radiusKm
	if f.withinErr != nil {
		return nil, f.withinErr
	}

	var within []SpotWithDistance
	for _, spot := range f.rows {
		if spot.Source != models.SourceLocal || !spot.IsActive || !spot.IsAvailable {
			continue
		}
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
	return within, nil
}

func (f *fakeStore) FindActiveAvailableByIDs(_ context.Context, ids []uint) ([]models.ParkingSpot, error) {
	f.byIDsCalls++
	spots := make([]models.ParkingSpot, 0, len(ids))
	for _, id := range ids {
		if spot, ok := f.rows[id]; ok && spot.IsActive && spot.IsAvailable {
			spots = append(spots, spot)
		}
	}
	return spots, nil
}

type fakeCache struct {
	entries  map[string][]uint
	getCalls int
	setCalls int
	lastSet  string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]uint)}
}

func (f *fakeCache) Key(lat, lng, radiusKm float64) string {
	return fmt.Sprintf("%.2f:%.2f:r%d", lat, lng, int(radiusKm+0.999))
}

func (f *fakeCache) Get(_ context.Context, key string) ([]uint, bool) {
	f.getCalls++
	ids, ok := f.entries[key]
	return ids, ok
}

func (f *fakeCache) Set(_ context.Context, key string, ids []uint) {
	f.setCalls++
	f.lastSet = key
	f.entries[key] = ids
}

type fakeExternal struct {
	byRadius map[float64][]overpass.RawSpot
	calls    []float64
}

func (f *fakeExternal) FetchParking(_ context.Context, lat, lng, radiusKm float64) []overpass.RawSpot {
	f.calls = append(f.calls, radiusKm)
	return f.byRadius[radiusKm]
}

// fakeReconciler hands out stable IDs per external key and mirrors the
// reconciled rows into the store, like the real ingest path does. Ingested
// rows carry source=external, so the within query never sees them.
type fakeReconciler struct {
	store  *fakeStore
	nextID uint
	ids    map[string]uint
	err    error
}

func newFakeReconciler(store *fakeStore) *fakeReconciler {
	return &fakeReconciler{store: store, nextID: 1, ids: make(map[string]uint)}
}

func (f *fakeReconciler) ReconcileBatch(_ context.Context, raw []overpass.RawSpot) ([]models.ParkingSpot, error) {
	if f.err != nil {
		return nil, f.err
	}
	spots := make([]models.ParkingSpot, 0, len(raw))
	for _, record := range raw {
		id, ok := f.ids[record.ExternalID]
		if !ok {
			id = f.nextID
			f.nextID++
			f.ids[record.ExternalID] = id
		}
		externalID := record.ExternalID
		spot := models.ParkingSpot{
			ID:          id,
			Name:        record.Name,
			Latitude:    record.Lat,
			Longitude:   record.Lng,
			Source:      models.SourceExternal,
			ExternalID:  &externalID,
			IsAvailable: true,
			IsActive:    true,
		}
		if f.store != nil {
			f.store.rows[id] = spot
		}
		spots = append(spots, spot)
	}
	return spots, nil
}

type fakeNotifier struct {
	events []ResolutionEvent
}

func (f *fakeNotifier) Notify(ev ResolutionEvent) {
	f.events = append(f.events, ev)
}

type fakeBroadcaster struct {
	spots chan models.ParkingSpot
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{spots: make(chan models.ParkingSpot, 32)}
}

func (f *fakeBroadcaster) BroadcastSpot(spot models.ParkingSpot) {
	f.spots <- spot
}

// ---- fixture ----

type resolverFixture struct {
	store       *fakeStore
	cache       *fakeCache
	external    *fakeExternal
	reconciler  *fakeReconciler
	notifier    *fakeNotifier
	broadcaster *fakeBroadcaster
	resolver    *Resolver
}

func newFixture() *resolverFixture {
	store := newFakeStore()
	cache := newFakeCache()
	external := &fakeExternal{byRadius: make(map[float64][]overpass.RawSpot)}
	reconciler := newFakeReconciler(store)
	notifier := &fakeNotifier{}
	broadcaster := newFakeBroadcaster()

	cfg := ResolverConfig{
		MaxRadiusKm:       500,
		DefaultRadiusKm:   5,
		ExpansionRadiiKm:  []float64{5, 10, 20, 50, 100, 200},
		TargetResultCount: 40,
		DefaultLimit:      20,
	}

	return &resolverFixture{
		store:       store,
		cache:       cache,
		external:    external,
		reconciler:  reconciler,
		notifier:    notifier,
		broadcaster: broadcaster,
		resolver:    NewResolver(cfg, store, cache, external, reconciler, notifier, broadcaster),
	}
}

func rawSpot(id string, lat, lng float64) overpass.RawSpot {
	return overpass.RawSpot{ExternalID: id, Name: "Lot " + id, Lat: lat, Lng: lng}
}

// ---- tests ----

func TestResolveRejectsInvalidCoordinates(t *testing.T) {
	fx := newFixture()

	for _, req := range []ResolveRequest{
		{Lat: 91, Lng: 0, RadiusKm: 5},
		{Lat: 0, Lng: -181, RadiusKm: 5},
	} {
		_, err := fx.resolver.Resolve(context.Background(), req)
		require.ErrorIs(t, err, ErrInvalidCoordinates)
	}

	require.Zero(t, fx.store.withinCalls, "no tier may run for invalid input")
	require.Empty(t, fx.notifier.events, "invalid input must not notify")
}

func TestResolveDatabaseTierWins(t *testing.T) {
	fx := newFixture()
	fx.store.addLocal(1, 51.503, -0.14)
	fx.store.addLocal(2, 51.51, -0.14)

	resp, err := fx.resolver.Resolve(context.Background(), ResolveRequest{Lat: 51.5, Lng: -0.14, RadiusKm: 5})
	require.NoError(t, err)

	require.Equal(t, SourceTagDatabase, resp.Source)
	require.Len(t, resp.Results, 2)
	require.Equal(t, 2, resp.WithinRadius)
	require.Equal(t, float64(5), resp.Radius)

	require.Zero(t, fx.cache.getCalls, "cache must not be consulted when the store answers")
	require.Empty(t, fx.external.calls, "external source must not be queried when the store answers")

	require.Len(t, fx.notifier.events, 1)
	require.Equal(t, 2, fx.notifier.events[0].Count)
	require.Equal(t, SourceTagDatabase, fx.notifier.events[0].Source)
}

func TestResolveCacheTierWins(t *testing.T) {
	fx := newFixture()

	lat, lng := 51.5, -0.14
	fx.store.rows[7] = models.ParkingSpot{ID: 7, Name: "Cached Lot", Latitude: lat, Longitude: lng, Source: models.SourceExternal, IsAvailable: true, IsActive: true}
	key := fx.cache.Key(lat, lng, 5)
	fx.cache.entries[key] = []uint{7}

	resp, err := fx.resolver.Resolve(context.Background(), ResolveRequest{Lat: lat, Lng: lng, RadiusKm: 5})
	require.NoError(t, err)

	require.Equal(t, SourceTagCache, resp.Source)
	require.Len(t, resp.Results, 1)
	require.Equal(t, uint(7), resp.Results[0].ID)
	require.Equal(t, 1, fx.store.byIDsCalls)
	require.Empty(t, fx.external.calls)
}

func TestResolveCachedSpotsRevalidated(t *testing.T) {
	fx := newFixture()

	lat, lng := 51.5, -0.14
	// The cached candidate has drifted out of range (or the bucket was
	// coarser than this request); it must not be served.
	fx.store.rows[7] = models.ParkingSpot{ID: 7, Latitude: lat + 1.0, Longitude: lng, Source: models.SourceExternal, IsAvailable: true, IsActive: true}
	key := fx.cache.Key(lat, lng, 5)
	fx.cache.entries[key] = []uint{7}

	resp, err := fx.resolver.Resolve(context.Background(), ResolveRequest{Lat: lat, Lng: lng, RadiusKm: 5})
	require.NoError(t, err)

	// With nothing external either, the resolution falls through to none
	require.Equal(t, SourceTagNone, resp.Source)
	require.Empty(t, resp.Results)
}

func TestResolveExternalExpansionStaysWithinRequestedRadius(t *testing.T) {
	fx := newFixture()

	_, err := fx.resolver.Resolve(context.Background(), ResolveRequest{Lat: 51.5, Lng: -0.14, RadiusKm: 30})
	require.NoError(t, err)

	require.Equal(t, []float64{5, 10, 20}, fx.external.calls,
		"expansion must never query a radius wider than requested")
}

func TestResolveExternalTierThenCache(t *testing.T) {
	fx := newFixture()

	lat, lng := 0.0, 0.0
	fx.external.byRadius[5] = []overpass.RawSpot{rawSpot("osm-node-42", 0.01, 0.01)}

	resp, err := fx.resolver.Resolve(context.Background(), ResolveRequest{Lat: lat, Lng: lng, RadiusKm: 5})
	require.NoError(t, err)

	require.Equal(t, "osm:5", resp.Source)
	require.Equal(t, 1, resp.WithinRadius)
	require.Len(t, resp.Results, 1)
	require.Equal(t, "Lot osm-node-42", resp.Results[0].Name)

	require.Equal(t, 1, fx.cache.setCalls, "ingested ids must be written back to the bucket")
	require.Equal(t, fx.cache.Key(lat, lng, 5), fx.cache.lastSet)

	// The ingested row is persisted, but as source=external it must not
	// surface through the DB tier: a repeat query resolves from the cache
	// tier, not from the store and not from the external source again.
	require.Len(t, fx.store.rows, 1)
	fx.external.calls = nil
	resp2, err := fx.resolver.Resolve(context.Background(), ResolveRequest{Lat: lat, Lng: lng, RadiusKm: 5})
	require.NoError(t, err)
	require.Equal(t, SourceTagCache, resp2.Source)
	require.Equal(t, 2, fx.store.withinCalls, "the DB tier ran and came up empty")
	require.Empty(t, fx.external.calls)
}

func TestResolveExternalRowsInvisibleToDatabaseTier(t *testing.T) {
	fx := newFixture()

	lat, lng := 0.0, 0.0
	fx.external.byRadius[5] = []overpass.RawSpot{rawSpot("osm-node-42", 0.01, 0.01)}

	_, err := fx.resolver.Resolve(context.Background(), ResolveRequest{Lat: lat, Lng: lng, RadiusKm: 5})
	require.NoError(t, err)

	// With the cache gone (TTL lapsed), an ingested row still must not
	// promote into the database tier; the resolution goes external again.
	fx.cache.entries = make(map[string][]uint)
	fx.external.calls = nil

	resp, err := fx.resolver.Resolve(context.Background(), ResolveRequest{Lat: lat, Lng: lng, RadiusKm: 5})
	require.NoError(t, err)
	require.Equal(t, "osm:5", resp.Source)
	require.Equal(t, []float64{5}, fx.external.calls)
}

func TestResolveExternalDedupesAcrossRadii(t *testing.T) {
	fx := newFixture()

	lat, lng := 0.0, 0.0
	shared := rawSpot("osm-node-1", 0.01, 0.01)
	fx.external.byRadius[5] = []overpass.RawSpot{shared}
	fx.external.byRadius[10] = []overpass.RawSpot{shared}
	fx.external.byRadius[20] = []overpass.RawSpot{shared, rawSpot("osm-way-2", 0.05, 0.05)}

	resp, err := fx.resolver.Resolve(context.Background(), ResolveRequest{Lat: lat, Lng: lng, RadiusKm: 20})
	require.NoError(t, err)

	require.Equal(t, "osm:5,10,20", resp.Source)
	require.Equal(t, 2, resp.WithinRadius, "a spot returned at several radii counts once")
	require.Len(t, resp.Results, 2)
}

func TestResolveExternalStopsAtTargetCount(t *testing.T) {
	fx := newFixture()
	cfg := ResolverConfig{
		MaxRadiusKm:       500,
		DefaultRadiusKm:   5,
		ExpansionRadiiKm:  []float64{5, 10, 20},
		TargetResultCount: 1,
		DefaultLimit:      20,
	}
	fx.resolver = NewResolver(cfg, fx.store, fx.cache, fx.external, fx.reconciler, fx.notifier, fx.broadcaster)

	fx.external.byRadius[5] = []overpass.RawSpot{rawSpot("osm-node-1", 0.01, 0.01)}

	resp, err := fx.resolver.Resolve(context.Background(), ResolveRequest{Lat: 0, Lng: 0, RadiusKm: 20})
	require.NoError(t, err)

	require.Equal(t, []float64{5}, fx.external.calls, "expansion must stop once the target count is reached")
	require.Equal(t, "osm:5", resp.Source)
}

func TestResolveTotalFailureIsNone(t *testing.T) {
	fx := newFixture()

	resp, err := fx.resolver.Resolve(context.Background(), ResolveRequest{Lat: 51.5, Lng: -0.14, RadiusKm: 5, UserID: ptrUint(9)})
	require.NoError(t, err)

	require.Equal(t, SourceTagNone, resp.Source)
	require.NotNil(t, resp.Results)
	require.Empty(t, resp.Results)

	require.Len(t, fx.notifier.events, 1)
	ev := fx.notifier.events[0]
	require.Equal(t, 0, ev.Count)
	require.Equal(t, SourceTagNone, ev.Source)
	require.NotNil(t, ev.UserID)
	require.Equal(t, uint(9), *ev.UserID)
}

func TestResolveWithinRadiusCountsBeyondLimit(t *testing.T) {
	fx := newFixture()
	fx.store.addLocal(1, 51.501, -0.14)
	fx.store.addLocal(2, 51.503, -0.14)
	fx.store.addLocal(3, 51.505, -0.14)

	resp, err := fx.resolver.Resolve(context.Background(), ResolveRequest{Lat: 51.5, Lng: -0.14, RadiusKm: 5, Limit: 2})
	require.NoError(t, err)

	require.Equal(t, SourceTagDatabase, resp.Source)
	require.Len(t, resp.Results, 2, "limit pages the list")
	require.Equal(t, 3, resp.WithinRadius, "the count covers every qualifying spot")

	// Same meaning on the external tier
	fx2 := newFixture()
	fx2.external.byRadius[5] = []overpass.RawSpot{
		rawSpot("osm-node-1", 0.01, 0.01),
		rawSpot("osm-node-2", 0.02, 0.02),
		rawSpot("osm-node-3", 0.03, 0.03),
	}

	resp2, err := fx2.resolver.Resolve(context.Background(), ResolveRequest{Lat: 0, Lng: 0, RadiusKm: 5, Limit: 2})
	require.NoError(t, err)
	require.Len(t, resp2.Results, 2)
	require.Equal(t, 3, resp2.WithinRadius)
}

func TestResolveDefaultAndClampedRadius(t *testing.T) {
	fx := newFixture()
	fx.store.addLocal(1, 51.5, -0.14)

	_, err := fx.resolver.Resolve(context.Background(), ResolveRequest{Lat: 51.5, Lng: -0.14})
	require.NoError(t, err)
	require.Equal(t, float64(5), fx.store.lastRadius, "zero radius selects the default")

	_, err = fx.resolver.Resolve(context.Background(), ResolveRequest{Lat: 51.5, Lng: -0.14, RadiusKm: 10000})
	require.NoError(t, err)
	require.Equal(t, float64(500), fx.store.lastRadius, "oversized radius is clamped")
}

func TestResolveStoreErrorPropagates(t *testing.T) {
	fx := newFixture()
	fx.store.withinErr = errors.New("connection refused")

	_, err := fx.resolver.Resolve(context.Background(), ResolveRequest{Lat: 51.5, Lng: -0.14, RadiusKm: 5})
	require.Error(t, err)
	require.Empty(t, fx.notifier.events, "failed resolutions must not notify")
}

func TestResolveReconcileErrorPropagates(t *testing.T) {
	fx := newFixture()
	fx.external.byRadius[5] = []overpass.RawSpot{rawSpot("osm-node-1", 0.01, 0.01)}
	fx.reconciler.err = errors.New("unique constraint violated")

	_, err := fx.resolver.Resolve(context.Background(), ResolveRequest{Lat: 0, Lng: 0, RadiusKm: 5})
	require.Error(t, err)
	require.Empty(t, fx.notifier.events)
}

func TestResolveBroadcastsAtMostTenSpots(t *testing.T) {
	fx := newFixture()

	raw := make([]overpass.RawSpot, 0, 15)
	for i := 0; i < 15; i++ {
		raw = append(raw, rawSpot(fmt.Sprintf("osm-node-%d", i), 0.01, 0.01))
	}
	fx.external.byRadius[5] = raw

	_, err := fx.resolver.Resolve(context.Background(), ResolveRequest{Lat: 0, Lng: 0, RadiusKm: 5})
	require.NoError(t, err)

	for i := 0; i < maxBroadcastSpots; i++ {
		select {
		case <-fx.broadcaster.spots:
		case <-time.After(2 * time.Second):
			t.Fatalf("Timed out waiting for broadcast %d", i+1)
		}
	}

	// The fanout stops at the cap
	select {
	case spot := <-fx.broadcaster.spots:
		t.Fatalf("Unexpected extra broadcast for spot %d", spot.ID)
	case <-time.After(100 * time.Millisecond):
	}
}

func ptrUint(v uint) *uint { return &v }
