// Package sde serves read-only lookups over the static data extracts:
// item types, NPC stations, solar systems, and regions. The type sheet is
// a large JSON file queried lazily with gjson so it never has to be
// unmarshalled wholesale; the universe files are small YAML extracts held
// as maps.
package sde

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Data file names inside the SDE directory.
const (
	typesFile    = "types.json"
	stationsFile = "stations.yaml"
	systemsFile  = "systems.yaml"
	regionsFile  = "regions.yaml"
)

// TypeInfo describes one item type.
type TypeInfo struct {
	TypeID      int64   `json:"type_id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Volume      float64 `json:"volume,omitempty"`
	Mass        float64 `json:"mass,omitempty"`
}

// Station is one NPC station row.
type Station struct {
	Name     string `yaml:"name"`
	SystemID int64  `yaml:"system_id"`
}

// System is one solar system row.
type System struct {
	Name     string  `yaml:"name"`
	Security float64 `yaml:"security"`
	RegionID int64   `yaml:"region_id"`
}

// Data holds the loaded extracts. All lookups are safe for concurrent use;
// a reload swaps whole tables under the write lock.
type Data struct {
	dir    string
	logger *slog.Logger

	mu       sync.RWMutex
	typesRaw []byte
	stations map[int64]Station
	systems  map[int64]System
	regions  map[int64]string
}

// Load reads the extracts from dir. Missing files are tolerated with a
// warning: lookups against an absent table simply miss, and the resolver
// degrades to placeholders.
func Load(dir string, logger *slog.Logger) (*Data, error) {
	if logger == nil {
		logger = slog.Default()
	}

	d := &Data{
		dir:      dir,
		logger:   logger,
		stations: make(map[int64]Station),
		systems:  make(map[int64]System),
		regions:  make(map[int64]string),
	}

	for _, name := range []string{typesFile, stationsFile, systemsFile, regionsFile} {
		if err := d.loadFile(name); err != nil {
			return nil, err
		}
	}

	return d, nil
}

// loadFile reads and installs one data file. Unknown file names are
// ignored so the watcher can feed events straight through.
func (d *Data) loadFile(name string) error {
	path := filepath.Join(d.dir, name)

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			d.logger.Warn("static data file missing", slog.String("file", name))
			return nil
		}

		return fmt.Errorf("reading %s: %w", name, err)
	}

	switch name {
	case typesFile:
		if !gjson.ValidBytes(raw) {
			return fmt.Errorf("parsing %s: not valid JSON", name)
		}

		d.mu.Lock()
		d.typesRaw = raw
		d.mu.Unlock()

	case stationsFile:
		table := make(map[int64]Station)
		if err := yaml.Unmarshal(raw, &table); err != nil {
			return fmt.Errorf("parsing %s: %w", name, err)
		}

		d.mu.Lock()
		d.stations = table
		d.mu.Unlock()

	case systemsFile:
		table := make(map[int64]System)
		if err := yaml.Unmarshal(raw, &table); err != nil {
			return fmt.Errorf("parsing %s: %w", name, err)
		}

		d.mu.Lock()
		d.systems = table
		d.mu.Unlock()

	case regionsFile:
		table := make(map[int64]string)
		if err := yaml.Unmarshal(raw, &table); err != nil {
			return fmt.Errorf("parsing %s: %w", name, err)
		}

		d.mu.Lock()
		d.regions = table
		d.mu.Unlock()

	default:
		return nil
	}

	d.logger.Debug("static data file loaded", slog.String("file", name))

	return nil
}

// TypeByID looks up one item type.
func (d *Data) TypeByID(typeID int64) (TypeInfo, bool) {
	d.mu.RLock()
	raw := d.typesRaw
	d.mu.RUnlock()

	if raw == nil {
		return TypeInfo{}, false
	}

	row := gjson.GetBytes(raw, strconv.FormatInt(typeID, 10))
	if !row.Exists() {
		return TypeInfo{}, false
	}

	return TypeInfo{
		TypeID:      typeID,
		Name:        row.Get("name").String(),
		Description: row.Get("description").String(),
		Volume:      row.Get("volume").Float(),
		Mass:        row.Get("mass").Float(),
	}, true
}

// StationByID looks up one NPC station.
func (d *Data) StationByID(stationID int64) (Station, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.stations[stationID]

	return s, ok
}

// SystemByID looks up one solar system.
func (d *Data) SystemByID(systemID int64) (System, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.systems[systemID]

	return s, ok
}

// RegionName looks up one region's name.
func (d *Data) RegionName(regionID int64) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	name, ok := d.regions[regionID]

	return name, ok
}

// foldName normalizes a name for case- and form-insensitive matching.
// Type names in the extracts can carry non-ASCII characters, so plain
// lowercasing is not enough.
func foldName(s string) string {
	return strings.ToLower(norm.NFKC.String(s))
}

// SearchTypes returns up to limit types whose name contains the query,
// case-insensitively. The type sheet is walked lazily; no index is kept.
func (d *Data) SearchTypes(query string, limit int) []TypeInfo {
	d.mu.RLock()
	raw := d.typesRaw
	d.mu.RUnlock()

	if raw == nil || query == "" {
		return nil
	}

	if limit <= 0 {
		limit = 20
	}

	needle := foldName(query)

	var matches []TypeInfo

	gjson.ParseBytes(raw).ForEach(func(key, row gjson.Result) bool {
		name := row.Get("name").String()
		if !strings.Contains(foldName(name), needle) {
			return true
		}

		matches = append(matches, TypeInfo{
			TypeID:      key.Int(),
			Name:        name,
			Description: row.Get("description").String(),
			Volume:      row.Get("volume").Float(),
			Mass:        row.Get("mass").Float(),
		})

		return len(matches) < limit
	})

	return matches
}
