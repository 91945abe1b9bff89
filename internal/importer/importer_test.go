package importer

import (
	"archive/zip"
	"bytes"
	"compress/zlib"
	"testing"

	"github.com/MeKo-Tech/fogtrail/internal/fogmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reverseCipher is the inverse of cipherAlphabet, used to build synthetic
// filenames for a known tile id.
var reverseCipher = map[byte]rune{
	0: 'o', 1: 'l', 2: 'h', 3: 'w', 4: 'j',
	5: 's', 6: 'k', 7: 't', 8: 'r', 9: 'i',
}

func encodeTileID(id int64) string {
	s := []byte{}
	for _, r := range []byte(itoa(id)) {
		s = append(s, byte(reverseCipher[r-'0']))
	}
	return string(s)
}

func itoa(id int64) string {
	if id == 0 {
		return "0"
	}
	var digits []byte
	for id > 0 {
		digits = append([]byte{byte('0' + id%10)}, digits...)
		id /= 10
	}
	return string(digits)
}

func TestDecodeTileID_RoundTrip(t *testing.T) {
	for _, id := range []int64{0, 7, 921, 123456} {
		name := "abcd" + encodeTileID(id) + ".xy"
		got, err := decodeTileID(name)
		require.NoError(t, err, "filename %q", name)
		assert.Equal(t, id, got)
	}
}

func TestDecodeTileID_TooShort(t *testing.T) {
	_, err := decodeTileID("ab.c")
	assert.ErrorIs(t, err, ErrBadFilename)
}

func TestDecodeTileID_NoDot(t *testing.T) {
	_, err := decodeTileID("abcdefghijk")
	assert.ErrorIs(t, err, ErrBadFilename)
}

func TestDecodeTileID_BadCharacter(t *testing.T) {
	_, err := decodeTileID("abcdZZZ.xy")
	assert.ErrorIs(t, err, ErrBadFilename)
}

func TestDecodeTileID_IDTooLarge(t *testing.T) {
	// Encode an id at/above 2^18.
	name := "abcd" + encodeTileID(1<<18) + ".xy"
	_, err := decodeTileID(name)
	assert.ErrorIs(t, err, ErrBadFilename)
}

func TestTileIDToXY(t *testing.T) {
	x, y := tileIDToXY(921)
	assert.Equal(t, int64(409), x)
	assert.Equal(t, int64(1), y)
}

// buildPayload produces an inflated snapshot body for a single block at
// (blockX, blockY) within the tile, following the 128x128 slot table plus
// 515-byte block record layout.
func buildPayload(t *testing.T, blockX, blockY int64, block *fogmap.Block) []byte {
	t.Helper()
	header := make([]byte, tileHeaderSize)
	slot := blockY*fogmap.TileWidth + blockX
	off := int(slot) * 2
	header[off] = 1
	header[off+1] = 0
	return append(header, block.Bytes()...)
}

func deflate(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestAddFowFile_EndToEnd(t *testing.T) {
	block := fogmap.NewBlock()
	block.SetPoint(1, 1)
	block.SetPoint(63, 63)

	payload := buildPayload(t, 2, 3, block)
	data := deflate(t, payload)

	m := fogmap.New()
	id := int64(921)
	name := "abcd" + encodeTileID(id) + ".xy"
	require.NoError(t, AddFowFile(m, name, data))

	tileX, tileY := tileIDToXY(id)
	tile, ok := m.GetTile(tileX, tileY)
	require.True(t, ok)
	assert.Equal(t, 1, tile.BlockCount())

	got, ok := tile.GetBlock(2, 3)
	require.True(t, ok)
	assert.True(t, got.IsVisited(1, 1))
	assert.True(t, got.IsVisited(63, 63))
}

func TestAddFowFile_BadFilename(t *testing.T) {
	m := fogmap.New()
	err := AddFowFile(m, "not-a-valid-name", []byte("irrelevant"))
	assert.ErrorIs(t, err, ErrBadFilename)
}

func TestAddFowFile_BadZlibPayload(t *testing.T) {
	m := fogmap.New()
	name := "abcd" + encodeTileID(5) + ".xy"
	err := AddFowFile(m, name, []byte{0x00, 0x01, 0x02})
	assert.ErrorIs(t, err, ErrBadPayload)
}

func TestAddFowFile_OverwritesExistingBlock(t *testing.T) {
	m := fogmap.New()
	id := int64(5)
	name := "abcd" + encodeTileID(id) + ".xy"

	first := fogmap.NewBlock()
	first.SetPoint(0, 0)
	require.NoError(t, AddFowFile(m, name, deflate(t, buildPayload(t, 0, 0, first))))

	second := fogmap.NewBlock()
	second.SetPoint(10, 10)
	require.NoError(t, AddFowFile(m, name, deflate(t, buildPayload(t, 0, 0, second))))

	tileX, tileY := tileIDToXY(id)
	tile, _ := m.GetTile(tileX, tileY)
	b, ok := tile.GetBlock(0, 0)
	require.True(t, ok)
	assert.False(t, b.IsVisited(0, 0), "overwrite must replace, not merge, the block")
	assert.True(t, b.IsVisited(10, 10))
}

func TestAddZipReader_SkipsHiddenEntries(t *testing.T) {
	block := fogmap.NewBlock()
	block.SetPoint(4, 4)
	payload := deflate(t, buildPayload(t, 0, 0, block))

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	id := int64(55)
	validName := "abcd" + encodeTileID(id) + ".xy"
	w, err := zw.Create(validName)
	require.NoError(t, err)
	_, err = w.Write(payload)
	require.NoError(t, err)

	hidden, err := zw.Create(".DS_Store")
	require.NoError(t, err)
	_, err = hidden.Write([]byte("junk"))
	require.NoError(t, err)

	require.NoError(t, zw.Close())

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	m := fogmap.New()
	require.NoError(t, AddZipReader(m, zr))

	tileX, tileY := tileIDToXY(id)
	tile, ok := m.GetTile(tileX, tileY)
	require.True(t, ok)
	assert.Equal(t, 1, tile.BlockCount())
}

func TestParsePayload_TooShort(t *testing.T) {
	_, err := parsePayload(make([]byte, tileHeaderSize-1))
	assert.ErrorIs(t, err, ErrBadPayload)
}

func TestParsePayload_SlotOutOfRange(t *testing.T) {
	header := make([]byte, tileHeaderSize)
	header[0] = 0xFF
	header[1] = 0xFF // huge blockIdx with no matching block data
	_, err := parsePayload(header)
	assert.ErrorIs(t, err, ErrBadPayload)
}
