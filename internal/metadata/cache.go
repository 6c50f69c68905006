package metadata

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"

	apperrors "sdmxcli/internal/errors"
	"sdmxcli/pkg/contracts/domain"
)

// SnapshotVersion is the cache file format version. Bump when the
// on-disk shape changes incompatibly.
const SnapshotVersion = 3

// PhaseCount is the number of enrichment phases a complete snapshot has
// gone through.
const PhaseCount = 3

// snapshotFile is the cache file name inside the cache directory.
const snapshotFile = "metadata.yaml"

// Code is one entry of a remote codelist.
type Code struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
}

// Country is a cached country entry from the reference-area codelist.
type Country struct {
	ISO3   string `yaml:"iso3"`
	Name   string `yaml:"name"`
	Region string `yaml:"region,omitempty"`
}

// Region is a cached region entry.
type Region struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

// Watermark identifies one sync run: when it ran, what produced it, and
// summary counts so two runs can be compared without diffing the body.
type Watermark struct {
	Platform   string              `yaml:"platform"`
	Version    int                 `yaml:"version"`
	SyncedAt   time.Time           `yaml:"synced_at"`
	Source     string              `yaml:"source"`
	Parser     string              `yaml:"parser"`
	Phase      int                 `yaml:"phase"`
	Dataflows  int                 `yaml:"dataflows"`
	Indicators int                 `yaml:"indicators"`
	TierCounts map[domain.Tier]int `yaml:"tier_counts,omitempty"`
}

// Snapshot is the full metadata cache content. It is immutable once
// loaded; sync builds a new one and replaces the file atomically.
type Snapshot struct {
	Watermark          Watermark                            `yaml:"watermark"`
	Dataflows          map[string]domain.Dataflow           `yaml:"dataflows"`
	Indicators         map[string]domain.Indicator          `yaml:"indicators"`
	Codelists          map[string][]Code                    `yaml:"codelists,omitempty"`
	Countries          map[string]Country                   `yaml:"countries,omitempty"`
	Regions            map[string]Region                    `yaml:"regions,omitempty"`
	IndicatorDataflows map[string][]string                  `yaml:"indicator_dataflows"`
	Tiers              map[string]domain.TierClassification `yaml:"tiers,omitempty"`
	SyncHistory        []Watermark                          `yaml:"sync_history,omitempty"`
}

// Complete reports whether all enrichment phases ran. A snapshot that
// fails this check must not be used for resolution.
func (s *Snapshot) Complete() bool {
	return s.Watermark.Phase >= PhaseCount
}

// Stale reports whether the snapshot is older than the given TTL.
func (s *Snapshot) Stale(ttl time.Duration) bool {
	return time.Since(s.Watermark.SyncedAt) > ttl
}

// ReducedFidelity reports whether the snapshot was produced by the
// fallback schema parser.
func (s *Snapshot) ReducedFidelity() bool {
	return s.Watermark.Parser == FallbackParserName
}

// Dataflow returns the cached dataflow by id.
func (s *Snapshot) Dataflow(id string) (domain.Dataflow, bool) {
	df, ok := s.Dataflows[id]
	return df, ok
}

// CountryName resolves an ISO3 code to a display name, or "" when the
// code is not in the cached reference-area codelist.
func (s *Snapshot) CountryName(iso3 string) string {
	if c, ok := s.Countries[iso3]; ok {
		return c.Name
	}
	return ""
}

// Store reads and writes snapshots under a cache directory.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the snapshot file path.
func (st *Store) Path() string {
	return filepath.Join(st.dir, snapshotFile)
}

// Load reads the current snapshot. Returns os.ErrNotExist (wrapped)
// when no snapshot has been written yet.
func (st *Store) Load() (*Snapshot, error) {
	data, err := os.ReadFile(st.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("metadata cache not found at %s: %w", st.Path(), err)
		}
		return nil, apperrors.NewStorageError("failed to read metadata cache", err)
	}

	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, apperrors.NewStorageError("failed to parse metadata cache", err)
	}

	if snap.Watermark.Version != SnapshotVersion {
		return nil, apperrors.NewStorageError(
			fmt.Sprintf("metadata cache version %d does not match expected %d, re-sync required",
				snap.Watermark.Version, SnapshotVersion), nil)
	}

	return &snap, nil
}

// Save writes the snapshot atomically: marshal to a temp file in the
// same directory, fsync, then rename over the live file. Concurrent
// readers never observe a partial write.
func (st *Store) Save(snap *Snapshot) error {
	if err := os.MkdirAll(st.dir, 0755); err != nil {
		return apperrors.NewStorageError("failed to create cache directory", err)
	}

	data, err := yaml.Marshal(snap)
	if err != nil {
		return apperrors.NewStorageError("failed to marshal metadata cache", err)
	}

	tmp, err := os.CreateTemp(st.dir, snapshotFile+".tmp-*")
	if err != nil {
		return apperrors.NewStorageError("failed to create temp cache file", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperrors.NewStorageError("failed to write temp cache file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperrors.NewStorageError("failed to sync temp cache file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperrors.NewStorageError("failed to close temp cache file", err)
	}

	if err := os.Rename(tmpName, st.Path()); err != nil {
		os.Remove(tmpName)
		return apperrors.NewStorageError("failed to replace metadata cache", err)
	}

	return nil
}
