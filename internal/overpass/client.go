// Package overpass queries the OpenStreetMap Overpass API for parking
// amenities. The public interpreters are free, rate limited, and flaky, so
// the client rotates mirrors and degrades to an empty result instead of
// failing the caller.
package overpass

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JunaidSumsaal/advanceparkingsystem/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var mirrorRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "parking_overpass_requests_total",
		Help: "Total number of Overpass mirror requests",
	},
	[]string{"mirror", "status"},
)

// RawSpot is one parking element as returned by Overpass, before it is
// reconciled into the authoritative store.
type RawSpot struct {
	ExternalID string
	Name       string
	Lat        float64
	Lng        float64
	Tags       map[string]string
}

// Client fetches parking points of interest through a rotating set of
// Overpass mirrors with per-mirror retry and exponential backoff.
type Client struct {
	endpoints   []string
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
}

func New(endpoints []string, timeout time.Duration, maxRetries int, baseBackoff time.Duration) *Client {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Client{
		endpoints: endpoints,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxRetries:  maxRetries,
		baseBackoff: baseBackoff,
	}
}

// overpass response payload
type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

type overpassElement struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Lat    float64           `json:"lat"`
	Lon    float64           `json:"lon"`
	Center *overpassCenter   `json:"center,omitempty"`
	Tags   map[string]string `json:"tags,omitempty"`
}

type overpassCenter struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// buildQuery renders the Overpass QL payload for parking amenities within
// radiusKm of the point. Ways and relations are reduced to their center.
func buildQuery(lat, lng, radiusKm float64) string {
	radiusM := int(radiusKm * 1000)
	around := fmt.Sprintf("(around:%d,%.6f,%.6f)", radiusM, lat, lng)
	return fmt.Sprintf(`[out:json][timeout:25];
(
  node["amenity"="parking"]%s;
  way["amenity"="parking"]%s;
  relation["amenity"="parking"]%s;
);
out center tags;`, around, around, around)
}

// FetchParking queries the mirrors for parking spots around the point.
// Mirrors are shuffled per call to spread load; each mirror gets up to
// maxRetries attempts with exponential backoff. On total failure the
// result is empty - this method never returns an error.
func (c *Client) FetchParking(ctx context.Context, lat, lng, radiusKm float64) []RawSpot {
	log := logger.GetLogger("overpass")

	if len(c.endpoints) == 0 {
		log.Warn("No Overpass endpoints configured")
		return nil
	}

	query := buildQuery(lat, lng, radiusKm)

	// Shuffled copy so concurrent requests do not hammer the same mirror
	mirrors := make([]string, len(c.endpoints))
	copy(mirrors, c.endpoints)
	rand.Shuffle(len(mirrors), func(i, j int) {
		mirrors[i], mirrors[j] = mirrors[j], mirrors[i]
	})

	for _, mirror := range mirrors {
		backoff := c.baseBackoff

		for attempt := 0; attempt < c.maxRetries; attempt++ {
			if attempt > 0 {
				log.Warnf("Mirror %s attempt %d/%d, backing off %v", mirror, attempt+1, c.maxRetries, backoff)
				select {
				case <-ctx.Done():
					log.Warnf("Overpass fetch cancelled: %v", ctx.Err())
					return nil
				case <-time.After(backoff):
				}
				backoff *= 2
			}

			spots, err := c.fetchFromMirror(ctx, mirror, query)
			if err != nil {
				mirrorRequestsTotal.WithLabelValues(mirror, "error").Inc()
				log.Warnf("Mirror %s failed (r=%.0fkm): %v", mirror, radiusKm, err)
				if ctx.Err() != nil {
					return nil
				}
				continue
			}

			mirrorRequestsTotal.WithLabelValues(mirror, "success").Inc()
			log.Infof("Mirror %s returned %d parking elements (r=%.0fkm)", mirror, len(spots), radiusKm)
			return spots
		}
	}

	log.Errorf("All Overpass mirrors exhausted (lat=%.4f lng=%.4f r=%.0fkm)", lat, lng, radiusKm)
	return nil
}

func (c *Client) fetchFromMirror(ctx context.Context, mirror, query string) ([]RawSpot, error) {
	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, mirror, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var payload overpassResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return parseElements(payload.Elements), nil
}

// parseElements converts raw elements, skipping any without coordinates.
func parseElements(elements []overpassElement) []RawSpot {
	spots := make([]RawSpot, 0, len(elements))
	for _, el := range elements {
		lat, lng := el.Lat, el.Lon
		if el.Center != nil {
			lat, lng = el.Center.Lat, el.Center.Lon
		}
		if lat == 0 && lng == 0 {
			// Overpass omits coordinates on some abbreviated elements
			continue
		}

		name := el.Tags["name"]
		if name == "" {
			name = el.Tags["operator"]
		}
		if name == "" {
			name = "Parking"
		}

		spots = append(spots, RawSpot{
			ExternalID: fmt.Sprintf("osm-%s-%d", el.Type, el.ID),
			Name:       name,
			Lat:        lat,
			Lng:        lng,
			Tags:       el.Tags,
		})
	}
	return spots
}
