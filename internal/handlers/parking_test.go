package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/JunaidSumsaal/advanceparkingsystem/internal/config"
	"github.com/JunaidSumsaal/advanceparkingsystem/internal/handlers"
	"github.com/JunaidSumsaal/advanceparkingsystem/internal/models"
	"github.com/JunaidSumsaal/advanceparkingsystem/internal/overpass"
	"github.com/JunaidSumsaal/advanceparkingsystem/internal/services"
)

type stubStore struct {
	within []services.SpotWithDistance
}

func (s *stubStore) FindLocalAvailableWithin(context.Context, float64, float64, float64, int) ([]services.SpotWithDistance, error) {
	return s.within, nil
}

func (s *stubStore) FindActiveAvailableByIDs(context.Context, []uint) ([]models.ParkingSpot, error) {
	return nil, nil
}

type stubCache struct{}

func (stubCache) Key(lat, lng, radiusKm float64) string      { return "k" }
func (stubCache) Get(context.Context, string) ([]uint, bool) { return nil, false }
func (stubCache) Set(context.Context, string, []uint)        {}

type stubExternal struct{}

func (stubExternal) FetchParking(context.Context, float64, float64, float64) []overpass.RawSpot {
	return nil
}

type stubReconciler struct{}

func (stubReconciler) ReconcileBatch(context.Context, []overpass.RawSpot) ([]models.ParkingSpot, error) {
	return nil, nil
}

type stubNotifier struct{}

func (stubNotifier) Notify(services.ResolutionEvent) {}

func newTestApp(store services.SpotStore) *fiber.App {
	resolver := services.NewResolver(services.ResolverConfig{
		MaxRadiusKm:       500,
		DefaultRadiusKm:   5,
		ExpansionRadiiKm:  []float64{5, 10, 20},
		TargetResultCount: 40,
		DefaultLimit:      20,
	}, store, stubCache{}, stubExternal{}, stubReconciler{}, stubNotifier{}, nil)

	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler})
	cfg := &config.Config{JWTSecretKey: "test-secret"}
	handlers.SetupParkingRoutes(app.Group("/v1/parking"), nil, cfg, resolver)
	return app
}

func doRequest(t *testing.T, app *fiber.App, path string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload map[string]interface{}
	if len(body) > 0 {
		require.NoError(t, json.Unmarshal(body, &payload))
	}
	return resp, payload
}

func TestNearbyRequiresCoordinates(t *testing.T) {
	app := newTestApp(&stubStore{})

	for _, path := range []string{
		"/v1/parking/nearby",
		"/v1/parking/nearby?lat=51.5",
		"/v1/parking/nearby?lng=-0.14",
	} {
		resp, _ := doRequest(t, app, path)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
	}
}

func TestNearbyRejectsMalformedParams(t *testing.T) {
	app := newTestApp(&stubStore{})

	for _, path := range []string{
		"/v1/parking/nearby?lat=abc&lng=-0.14",
		"/v1/parking/nearby?lat=51.5&lng=abc",
		"/v1/parking/nearby?lat=51.5&lng=-0.14&radius=wide",
	} {
		resp, _ := doRequest(t, app, path)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
	}
}

func TestNearbyRejectsOutOfRangeCoordinates(t *testing.T) {
	app := newTestApp(&stubStore{})

	resp, payload := doRequest(t, app, "/v1/parking/nearby?lat=91&lng=0")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, payload["error"], "out of range")
}

func TestNearbyReturnsResolvedSpots(t *testing.T) {
	store := &stubStore{
		within: []services.SpotWithDistance{
			{
				ParkingSpot: models.ParkingSpot{ID: 1, Name: "Garage A", Source: models.SourceLocal, IsAvailable: true},
				DistanceKm:  0.4,
			},
		},
	}
	app := newTestApp(store)

	resp, payload := doRequest(t, app, "/v1/parking/nearby?lat=51.5&lng=-0.14&radius=5")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "database", payload["source"])
	require.Equal(t, float64(1), payload["within_radius"])
	require.Equal(t, float64(5), payload["radius"])

	results, ok := payload["results"].([]interface{})
	require.True(t, ok)
	require.Len(t, results, 1)
}

func TestErrorHandlerKeepsFiberErrorShape(t *testing.T) {
	app := newTestApp(&stubStore{})

	resp, payload := doRequest(t, app, "/v1/parking/no-such-route")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Contains(t, payload, "error")
}

func TestErrorHandlerMasksUnexpectedErrors(t *testing.T) {
	app := newTestApp(&stubStore{})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("pq: connection reset")
	})

	resp, payload := doRequest(t, app, "/boom")
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, "Internal Server Error", payload["error"])
}

func TestNearbyEmptyEverywhere(t *testing.T) {
	app := newTestApp(&stubStore{})

	resp, payload := doRequest(t, app, "/v1/parking/nearby?lat=51.5&lng=-0.14&radius=5")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "none", payload["source"])
	require.Equal(t, float64(0), payload["within_radius"])

	results, ok := payload["results"].([]interface{})
	require.True(t, ok)
	require.Empty(t, results)
}
