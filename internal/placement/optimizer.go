// Package placement ranks provider capacity by proximity to the requesting
// user. TensorDock placements rank concrete inventory nodes; CloudPad
// placements select a named region.
package placement

import (
	"context"
	"errors"
	"log"
	"math"
	"sort"

	"github.com/playmesh/playmesh/internal/geo"
	"github.com/playmesh/playmesh/models"
)

// ErrNoCandidate is returned when no inventory node or region satisfies the
// request.
var ErrNoCandidate = errors.New("no placement candidate")

// InventoryNode is one entry of a provider's capacity inventory.
type InventoryNode struct {
	ID      string `json:"id"`
	City    string `json:"city"`
	Region  string `json:"region"`
	Country string `json:"country"`

	VCPU             int     `json:"vcpu"`
	MemoryGiB        int     `json:"memory_gib"`
	GPUCount         int     `json:"gpu_count"`
	DedicatedAddress bool    `json:"dedicated_address"`
	PricePerHour     float64 `json:"price_per_hour"`
}

// MinSpecs is the capability floor a node must meet.
type MinSpecs struct {
	MinVCPU      int `json:"min_vcpu"`
	MinMemoryGiB int `json:"min_memory_gib"`
	MinGPUCount  int `json:"min_gpu_count"`
}

// RankedNode pairs an inventory node with its distance to the user. Nodes
// whose location cannot be resolved carry +Inf and sort to the tail.
type RankedNode struct {
	Node       InventoryNode `json:"node"`
	DistanceKm float64       `json:"distance_km"`
}

// Optimizer ranks placements. It holds no mutable state beyond the geocoder
// cache; every call is a pure query.
type Optimizer struct {
	geocoder *Resolver
	finder   *RegionFinder
	debug    bool
}

// Resolver is the slice of the geocoder the optimizer needs.
type Resolver struct {
	resolve func(ctx context.Context, city, region, country string) (models.Coordinate, bool)
}

// NewResolver adapts a Geocoder to the optimizer.
func NewResolver(g *geo.Geocoder) *Resolver {
	return &Resolver{resolve: g.Resolve}
}

// NewResolverFunc wraps a resolve function, used by tests.
func NewResolverFunc(fn func(ctx context.Context, city, region, country string) (models.Coordinate, bool)) *Resolver {
	return &Resolver{resolve: fn}
}

// NewOptimizer creates an Optimizer using the given geocoder and region
// finder. finder may be nil when CloudPad placements are not needed.
func NewOptimizer(resolver *Resolver, finder *RegionFinder, debug bool) *Optimizer {
	return &Optimizer{geocoder: resolver, finder: finder, debug: debug}
}

func (o *Optimizer) debugLog(format string, args ...interface{}) {
	if o.debug {
		log.Printf(format, args...)
	}
}

// RankNodes filters nodes to those meeting req and offering a dedicated
// address, then ranks ascending by (distance to user, price). With no user
// coordinate, ranking is by price alone. Returns ErrNoCandidate when the
// filter leaves nothing; an empty inventory never reaches the geocoder.
func (o *Optimizer) RankNodes(ctx context.Context, user *models.Coordinate, nodes []InventoryNode, req MinSpecs) ([]RankedNode, error) {
	candidates := make([]InventoryNode, 0, len(nodes))
	for _, n := range nodes {
		if n.VCPU < req.MinVCPU || n.MemoryGiB < req.MinMemoryGiB || n.GPUCount < req.MinGPUCount {
			continue
		}
		if !n.DedicatedAddress {
			continue
		}
		candidates = append(candidates, n)
	}
	if len(candidates) == 0 {
		return nil, ErrNoCandidate
	}

	ranked := make([]RankedNode, 0, len(candidates))
	for _, n := range candidates {
		distance := math.Inf(1)
		if user != nil {
			if coord, ok := o.geocoder.resolve(ctx, n.City, n.Region, n.Country); ok {
				if d, err := geo.DistanceKm(*user, coord); err == nil {
					distance = d
				}
			} else {
				o.debugLog("placement: node %s location unresolved, ranked last", n.ID)
			}
		}
		ranked = append(ranked, RankedNode{Node: n, DistanceKm: distance})
	}

	if user == nil {
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].Node.PricePerHour < ranked[j].Node.PricePerHour
		})
	} else {
		sort.SliceStable(ranked, func(i, j int) bool {
			if ranked[i].DistanceKm != ranked[j].DistanceKm {
				return ranked[i].DistanceKm < ranked[j].DistanceKm
			}
			return ranked[i].Node.PricePerHour < ranked[j].Node.PricePerHour
		})
	}

	return ranked, nil
}
