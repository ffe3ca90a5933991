package assets

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/alexjbarnes/hangar-sync/internal/models"
	"github.com/alexjbarnes/hangar-sync/internal/sde"
)

// structureIDFloor is the lowest id the provider hands out for player
// structures. This is a provider contract, not an inherent property of the
// data; confirm it against the API docs when it misbehaves.
const structureIDFloor = 1_000_000_000_000

// universe is the static-data slice the resolver consumes. Read-only.
type universe interface {
	StationByID(stationID int64) (sde.Station, bool)
	SystemByID(systemID int64) (sde.System, bool)
	RegionName(regionID int64) (string, bool)
}

// Resolver turns raw location ids into named, security-classified places.
// One resolver serves one resolution pass: its structure memo must not
// outlive the pass or leak across characters.
type Resolver struct {
	sde    universe
	api    API
	logger *slog.Logger

	group singleflight.Group
	memo  map[int64]models.ResolvedLocation
}

// NewResolver creates a resolver for a single pass.
func NewResolver(universeData universe, api API, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{
		sde:    universeData,
		api:    api,
		logger: logger,
		memo:   make(map[int64]models.ResolvedLocation),
	}
}

// Resolve maps one location id. Lookup order: NPC station, solar system,
// player structure (network, memoized per pass), unknown. Resolve never
// fails: a structure lookup that goes wrong degrades to a placeholder so
// one bad location cannot abort the batch.
func (r *Resolver) Resolve(ctx context.Context, locationID int64) models.ResolvedLocation {
	if station, ok := r.sde.StationByID(locationID); ok {
		loc := models.ResolvedLocation{
			LocationID: locationID,
			Name:       station.Name,
			Kind:       models.LocationStation,
		}
		r.attachSystem(&loc, station.SystemID)

		return loc
	}

	if system, ok := r.sde.SystemByID(locationID); ok {
		loc := models.ResolvedLocation{
			LocationID: locationID,
			Name:       system.Name,
			Kind:       models.LocationSystem,
		}
		r.attachSystem(&loc, locationID)

		return loc
	}

	if locationID >= structureIDFloor {
		return r.resolveStructure(ctx, locationID)
	}

	return models.ResolvedLocation{
		LocationID: locationID,
		Name:       fmt.Sprintf("Location %d", locationID),
		Kind:       models.LocationUnknown,
	}
}

// resolveStructure fetches a player structure's name and owning system.
// The call may ride on any authenticated character, not necessarily the
// one whose assets are being resolved. Concurrent lookups for the same
// structure collapse into one request; results are memoized for the pass.
func (r *Resolver) resolveStructure(ctx context.Context, structureID int64) models.ResolvedLocation {
	if loc, ok := r.memo[structureID]; ok {
		return loc
	}

	v, _, _ := r.group.Do(fmt.Sprintf("structure:%d", structureID), func() (interface{}, error) {
		return r.fetchStructure(ctx, structureID), nil
	})

	loc := v.(models.ResolvedLocation)
	r.memo[structureID] = loc

	return loc
}

func (r *Resolver) fetchStructure(ctx context.Context, structureID int64) models.ResolvedLocation {
	placeholder := models.ResolvedLocation{
		LocationID: structureID,
		Name:       fmt.Sprintf("Structure %d", structureID),
		Kind:       models.LocationStructure,
	}

	characterID, err := r.api.AnyCharacter()
	if err != nil {
		r.logger.Debug("no character available for structure lookup",
			slog.Int64("structure_id", structureID),
		)

		return placeholder
	}

	info, err := r.api.Structure(ctx, characterID, structureID)
	if err != nil {
		r.logger.Warn("structure lookup degraded to placeholder",
			slog.Int64("structure_id", structureID),
			slog.Any("error", err),
		)

		return placeholder
	}

	loc := models.ResolvedLocation{
		LocationID: structureID,
		Name:       info.Name,
		Kind:       models.LocationStructure,
	}
	r.attachSystem(&loc, info.SolarSystemID)

	return loc
}

// attachSystem fills in the owning system, its security band, and the
// region. Missing static data leaves the fields empty rather than failing
// the resolution.
func (r *Resolver) attachSystem(loc *models.ResolvedLocation, systemID int64) {
	system, ok := r.sde.SystemByID(systemID)
	if !ok {
		return
	}

	loc.SystemID = systemID
	loc.SystemName = system.Name
	loc.Security = models.ClassifySecurity(system.Security)

	if name, ok := r.sde.RegionName(system.RegionID); ok {
		loc.RegionID = system.RegionID
		loc.RegionName = name
	}
}
