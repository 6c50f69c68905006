package metadata

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "sdmxcli/internal/errors"
	"sdmxcli/pkg/contracts/domain"
)

func completeSnapshot(syncedAt time.Time) *Snapshot {
	return &Snapshot{
		Watermark: Watermark{
			Platform:   "go",
			Version:    SnapshotVersion,
			SyncedAt:   syncedAt,
			Parser:     StructureParserName,
			Phase:      PhaseCount,
			Dataflows:  1,
			Indicators: 1,
		},
		Dataflows: map[string]domain.Dataflow{
			"CME": {ID: "CME", Agency: "UNICEF", Status: domain.DataflowLive},
		},
		Indicators: map[string]domain.Indicator{
			"CME_MRY0T4": {Code: "CME_MRY0T4", ParentDataflow: "CME"},
		},
		IndicatorDataflows: map[string][]string{
			"CME_MRY0T4": {"CME"},
		},
		Countries: map[string]Country{
			"BRA": {ISO3: "BRA", Name: "Brazil"},
		},
	}
}

func TestStore_SaveLoad(t *testing.T) {
	store := NewStore(t.TempDir())
	want := completeSnapshot(time.Now().UTC().Truncate(time.Second))

	require.NoError(t, store.Save(want))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, want.Watermark.Version, got.Watermark.Version)
	assert.Equal(t, want.Watermark.Phase, got.Watermark.Phase)
	assert.Equal(t, "CME", got.Dataflows["CME"].ID)
	assert.Equal(t, []string{"CME"}, got.IndicatorDataflows["CME_MRY0T4"])
	assert.Equal(t, "Brazil", got.CountryName("BRA"))
	assert.Empty(t, got.CountryName("XXX"))
}

func TestStore_Load_NotFound(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestStore_Load_VersionMismatch(t *testing.T) {
	store := NewStore(t.TempDir())
	snap := completeSnapshot(time.Now())
	snap.Watermark.Version = SnapshotVersion - 1
	require.NoError(t, store.Save(snap))

	_, err := store.Load()
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeStorage))
}

func TestStore_Load_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	require.NoError(t, os.WriteFile(store.Path(), []byte("{not yaml: ["), 0644))

	_, err := store.Load()
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeStorage))
}

func TestStore_Save_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	require.NoError(t, store.Save(completeSnapshot(time.Now())))
	require.NoError(t, store.Save(completeSnapshot(time.Now())))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(store.Path()), entries[0].Name())
}

func TestSnapshot_Flags(t *testing.T) {
	snap := completeSnapshot(time.Now().Add(-2 * time.Hour))

	assert.True(t, snap.Complete())
	assert.False(t, snap.Stale(24*time.Hour))
	assert.True(t, snap.Stale(time.Hour))
	assert.False(t, snap.ReducedFidelity())

	snap.Watermark.Phase = 1
	assert.False(t, snap.Complete())

	snap.Watermark.Parser = FallbackParserName
	assert.True(t, snap.ReducedFidelity())
}
