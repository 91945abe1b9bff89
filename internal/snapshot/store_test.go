package snapshot

import (
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/fogtrail/internal/fogmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshot.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesSchemaIdempotently(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.db")
	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s := openTemp(t)

	m := fogmap.New()
	require.NoError(t, m.AddLine(13.0, 52.0, 13.1, 52.1))
	wantTiles := m.TileCount()
	require.Greater(t, wantTiles, 0)

	require.NoError(t, s.Save(m))

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, wantTiles, loaded.TileCount())

	m.Tiles(func(x, y int64, tile *fogmap.Tile) bool {
		loadedTile, ok := loaded.GetTile(x, y)
		require.True(t, ok, "tile (%d,%d) missing after round trip", x, y)
		assert.Equal(t, tile.BlockCount(), loadedTile.BlockCount())
		return true
	})
}

func TestSave_BatchFlushAcrossDefaultBatchSize(t *testing.T) {
	s := openTemp(t)

	m := fogmap.New()
	block := fogmap.NewBlock()
	block.SetPoint(0, 0)
	// Write more blocks than DefaultBatchSize so Save exercises at least one
	// mid-stream flush in addition to the final one.
	count := DefaultBatchSize + 37
	for i := int64(0); i < int64(count); i++ {
		m.SetImportedBlock(0, 0, i%fogmap.TileWidth, i/fogmap.TileWidth, block)
	}

	require.NoError(t, s.Save(m))

	loaded, err := s.Load()
	require.NoError(t, err)
	tile, ok := loaded.GetTile(0, 0)
	require.True(t, ok)
	assert.Equal(t, count, tile.BlockCount())
}

func TestLoad_EmptyDatabase(t *testing.T) {
	s := openTemp(t)
	m, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, 0, m.TileCount())
}
