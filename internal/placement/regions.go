package placement

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/playmesh/playmesh/internal/geo"
	"github.com/playmesh/playmesh/models"
)

// Region is a named provider region with its published location.
type Region struct {
	Code  string            `json:"code"`
	Name  string            `json:"name"`
	Coord models.Coordinate `json:"coord"`
}

// RegionChoice is a ranked region together with how it was chosen: "remote"
// when the external location finder answered, "local" when the static table
// was used.
type RegionChoice struct {
	Region     Region  `json:"region"`
	DistanceKm float64 `json:"distance_km"`
	Source     string  `json:"source"`
}

// cloudPadRegions is the static fallback table of CloudPad regions and their
// published datacenter locations.
var cloudPadRegions = []Region{
	{Code: "us-central", Name: "US Central", Coord: models.Coordinate{Lat: 41.2524, Lon: -95.9980}},
	{Code: "us-east", Name: "US East", Coord: models.Coordinate{Lat: 39.0458, Lon: -76.6413}},
	{Code: "us-west", Name: "US West", Coord: models.Coordinate{Lat: 45.5152, Lon: -122.6784}},
	{Code: "eu-central", Name: "Europe Central", Coord: models.Coordinate{Lat: 50.1109, Lon: 8.6821}},
}

const finderTimeout = 10 * time.Second

// RegionFinder queries the external location-finder service and falls back to
// the static region table when the service is unavailable.
type RegionFinder struct {
	endpoint string
	client   *http.Client
	debug    bool
}

// NewRegionFinder creates a RegionFinder. An empty endpoint disables the
// remote path; every query answers from the static table.
func NewRegionFinder(endpoint string, debug bool) *RegionFinder {
	return &RegionFinder{
		endpoint: endpoint,
		client:   &http.Client{Timeout: finderTimeout},
		debug:    debug,
	}
}

func (f *RegionFinder) debugLog(format string, args ...interface{}) {
	if f.debug {
		log.Printf(format, args...)
	}
}

// ClosestRegion returns the region nearest to the user. The remote location
// finder is consulted first; any failure falls back to the static table.
func (f *RegionFinder) ClosestRegion(ctx context.Context, user models.Coordinate) (RegionChoice, error) {
	if !user.Valid() {
		return RegionChoice{}, geo.ErrBadCoord
	}

	if f.endpoint != "" {
		if choice, ok := f.queryRemote(ctx, user); ok {
			return choice, nil
		}
	}

	local := f.TopRegions(user, 1)
	if len(local) == 0 {
		return RegionChoice{}, ErrNoCandidate
	}
	return local[0], nil
}

// DefaultRegion returns the region used for requests that carry no user
// coordinate.
func (f *RegionFinder) DefaultRegion() Region {
	return cloudPadRegions[0]
}

// TopRegions ranks the static region table by distance to the user and
// returns up to limit entries, all tagged source=local.
func (f *RegionFinder) TopRegions(user models.Coordinate, limit int) []RegionChoice {
	choices := make([]RegionChoice, 0, len(cloudPadRegions))
	for _, region := range cloudPadRegions {
		d, err := geo.DistanceKm(user, region.Coord)
		if err != nil {
			continue
		}
		choices = append(choices, RegionChoice{Region: region, DistanceKm: d, Source: "local"})
	}
	sort.SliceStable(choices, func(i, j int) bool {
		return choices[i].DistanceKm < choices[j].DistanceKm
	})
	if limit > 0 && len(choices) > limit {
		choices = choices[:limit]
	}
	return choices
}

func (f *RegionFinder) queryRemote(ctx context.Context, user models.Coordinate) (RegionChoice, bool) {
	u, err := url.Parse(f.endpoint)
	if err != nil {
		return RegionChoice{}, false
	}
	params := url.Values{}
	params.Set("proximity", fmt.Sprintf("%f,%f", user.Lat, user.Lon))
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return RegionChoice{}, false
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.debugLog("placement: location finder unreachable: %v", err)
		return RegionChoice{}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.debugLog("placement: location finder returned status %d", resp.StatusCode)
		return RegionChoice{}, false
	}

	var regions []struct {
		Code string  `json:"code"`
		Name string  `json:"name"`
		Lat  float64 `json:"lat"`
		Lon  float64 `json:"lon"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&regions); err != nil || len(regions) == 0 {
		f.debugLog("placement: location finder returned no regions")
		return RegionChoice{}, false
	}

	head := regions[0]
	region := Region{
		Code:  head.Code,
		Name:  head.Name,
		Coord: models.Coordinate{Lat: head.Lat, Lon: head.Lon},
	}
	choice := RegionChoice{Region: region, Source: "remote"}
	if d, err := geo.DistanceKm(user, region.Coord); err == nil {
		choice.DistanceKm = d
	}
	return choice, true
}
