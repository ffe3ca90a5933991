package assets

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alexjbarnes/hangar-sync/internal/esi"
	"github.com/alexjbarnes/hangar-sync/internal/models"
)

//go:generate mockgen -source=sync.go -destination=mock_sync_test.go -package=assets

// API is the slice of the ESI client the engine uses.
type API interface {
	CharacterAssets(ctx context.Context, characterID int64) ([]models.Asset, error)
	Structure(ctx context.Context, characterID, structureID int64) (*esi.StructureInfo, error)
	AnyCharacter() (int64, error)
}

// Store is the persistence contract the engine requires: replace-all write
// of a character's record set, read of the current set, and the time of
// the last replacement.
type Store interface {
	PutAssets(characterID int64, rows []models.Asset) error
	GetAssets(characterID int64) ([]models.Asset, error)
	AssetsSyncedAt(characterID int64) (time.Time, error)
}

// Service orchestrates synchronization and hierarchy resolution.
type Service struct {
	api    API
	store  Store
	sde    universe
	maxAge time.Duration
	logger *slog.Logger

	// now is swappable for freshness tests.
	now func() time.Time
}

// NewService creates the engine. maxAge is the cache freshness window.
func NewService(api API, store Store, universeData universe, maxAge time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		api:    api,
		store:  store,
		sde:    universeData,
		maxAge: maxAge,
		logger: logger,
		now:    time.Now,
	}
}

// Assets returns the character's asset set. A fresh cache is served as-is
// unless force is set; otherwise the set is fetched and the cache replaced
// wholesale. When the fetch fails and a cache exists, the stale cache is
// served instead: a transient API failure degrades, it does not error.
func (s *Service) Assets(ctx context.Context, characterID int64, force bool) ([]models.Asset, error) {
	syncedAt, err := s.store.AssetsSyncedAt(characterID)
	if err != nil {
		return nil, fmt.Errorf("reading cache age: %w", err)
	}

	cached := !syncedAt.IsZero()

	if cached && !force && s.now().Sub(syncedAt) < s.maxAge {
		rows, err := s.store.GetAssets(characterID)
		if err != nil {
			return nil, fmt.Errorf("reading cached assets: %w", err)
		}

		s.logger.Debug("serving cached assets",
			slog.Int64("character_id", characterID),
			slog.Time("synced_at", syncedAt),
		)

		return rows, nil
	}

	rows, err := s.api.CharacterAssets(ctx, characterID)
	if err != nil {
		if cached {
			s.logger.Warn("asset fetch failed, serving stale cache",
				slog.Int64("character_id", characterID),
				slog.Any("error", err),
			)

			stale, readErr := s.store.GetAssets(characterID)
			if readErr != nil {
				return nil, fmt.Errorf("reading cached assets: %w", readErr)
			}

			return stale, nil
		}

		return nil, fmt.Errorf("fetching assets: %w", err)
	}

	if err := s.store.PutAssets(characterID, rows); err != nil {
		return nil, fmt.Errorf("caching assets: %w", err)
	}

	s.logger.Info("assets synchronized",
		slog.Int64("character_id", characterID),
		slog.Int("count", len(rows)),
	)

	return rows, nil
}

// Hangar returns the character's assets as a resolved hierarchy: grouped
// by location, nested by containment, each location annotated with system,
// region, and security band. The structure memo lives only for this pass.
func (s *Service) Hangar(ctx context.Context, characterID int64, force bool) ([]models.LocationGroup, error) {
	rows, err := s.Assets(ctx, characterID, force)
	if err != nil {
		return nil, err
	}

	grouped := BuildHierarchy(rows)
	resolver := NewResolver(s.sde, s.api, s.logger)

	groups := make([]models.LocationGroup, 0, len(grouped))
	for locationID, nodes := range grouped {
		groups = append(groups, models.LocationGroup{
			Location: resolver.Resolve(ctx, locationID),
			Assets:   nodes,
		})
	}

	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i].Location, groups[j].Location
		if a.Name != b.Name {
			return a.Name < b.Name
		}

		return a.LocationID < b.LocationID
	})

	return groups, nil
}
