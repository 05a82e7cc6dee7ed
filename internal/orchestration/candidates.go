package orchestration

import (
	"context"
	"errors"

	"github.com/playmesh/playmesh/internal/placement"
	"github.com/playmesh/playmesh/internal/storage"
	"github.com/playmesh/playmesh/models"
)

// CandidateSet is the answer to a placement candidates query. Node-placed
// providers fill Nodes; region-placed providers fill Regions.
type CandidateSet struct {
	Provider models.Provider          `json:"provider"`
	Nodes    []placement.RankedNode   `json:"nodes,omitempty"`
	Regions  []placement.RegionChoice `json:"regions,omitempty"`
}

// candidateRegionLimit caps how many ranked regions a query returns.
const candidateRegionLimit = 5

// PlacementCandidates ranks placements for a provider without side effects.
// A platform narrows node candidates to that platform's minimum specs.
func (o *Orchestrator) PlacementCandidates(ctx context.Context, provider models.Provider, user *models.Coordinate, platform string) (*CandidateSet, error) {
	driver, ok := o.drivers[provider]
	if !ok {
		return nil, ErrInsufficientProviders
	}

	var specs placement.MinSpecs
	if platform != "" {
		profile, err := o.storage.GetPlatform(platform)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUnknownPlatform
		}
		if err != nil {
			return nil, err
		}
		specs = placement.MinSpecs{
			MinVCPU:      profile.MinVCPU,
			MinMemoryGiB: profile.MinMemoryGiB,
			MinGPUCount:  profile.MinGPUCount,
		}
	}

	set := &CandidateSet{Provider: provider}

	if lister, ok := driver.(InventoryLister); ok {
		nodes, err := lister.Inventory(ctx)
		if err != nil {
			return nil, err
		}
		ranked, err := o.optimizer.RankNodes(ctx, user, nodes, specs)
		if err != nil {
			return nil, err
		}
		set.Nodes = ranked
		return set, nil
	}

	if o.regions == nil {
		return nil, ErrInsufficientProviders
	}
	if user == nil {
		region := o.regions.DefaultRegion()
		set.Regions = []placement.RegionChoice{{Region: region, Source: "local"}}
		return set, nil
	}
	if choice, err := o.regions.ClosestRegion(ctx, *user); err == nil && choice.Source == "remote" {
		set.Regions = append(set.Regions, choice)
	}
	for _, choice := range o.regions.TopRegions(*user, candidateRegionLimit) {
		if len(set.Regions) > 0 && choice.Region.Code == set.Regions[0].Region.Code {
			continue
		}
		set.Regions = append(set.Regions, choice)
	}
	return set, nil
}
