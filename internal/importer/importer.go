// Package importer decodes the legacy compressed tile-snapshot format used
// by the "Fog of World" app and populates a fogmap.FogMap from it.
//
// A snapshot file name encodes a tile id via a substitution cipher; its
// zlib-compressed body is a 128x128 slot table followed by variable-count
// 515-byte block records. Import overwrites whole blocks in the target tile
// rather than merging bits into existing ones -- callers that also use
// FogMap.AddLine on the same tiles should import first.
package importer

import (
	"archive/zip"
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/fogtrail/internal/fogmap"
)

// ErrBadFilename is returned when a snapshot filename's tile-id portion
// cannot be decoded.
var ErrBadFilename = errors.New("importer: bad filename")

// ErrBadPayload is returned when a snapshot body fails to decompress or
// does not match the expected layout.
var ErrBadPayload = errors.New("importer: bad payload")

// cipherAlphabet maps an obfuscated character to the digit it stands for;
// the filename's tile id is base-10 but every digit is substituted through
// this table.
var cipherAlphabet = map[rune]byte{
	'o': 0, 'l': 1, 'h': 2, 'w': 3, 'j': 4,
	's': 5, 'k': 6, 't': 7, 'r': 8, 'i': 9,
}

// maxTileID bounds a decoded id to tileX*tileY's addressable range
// (MapWidth * MapWidth tiles); anything larger is malformed input.
const maxTileID = 1 << 18

const (
	tileHeaderSlots = fogmap.TileWidth * fogmap.TileWidth
	tileHeaderSize  = int(tileHeaderSlots) * 2
)

// decodeTileID extracts and decodes the obfuscated tile id from a snapshot
// filename of the form "<4 chars><n chars>.<2 chars>".
func decodeTileID(fileName string) (int64, error) {
	if len(fileName) < 7 {
		return 0, fmt.Errorf("%w: %q is too short", ErrBadFilename, fileName)
	}
	dot := strings.LastIndexByte(fileName, '.')
	if dot < 0 || dot+3 != len(fileName) || dot < 4 {
		return 0, fmt.Errorf("%w: %q does not match <4 chars><id>.<2 chars>", ErrBadFilename, fileName)
	}

	encoded := fileName[4:dot]
	if encoded == "" {
		return 0, fmt.Errorf("%w: %q has an empty tile id", ErrBadFilename, fileName)
	}

	digits := make([]byte, 0, len(encoded))
	for _, r := range encoded {
		d, ok := cipherAlphabet[r]
		if !ok {
			return 0, fmt.Errorf("%w: %q contains %q, outside the cipher alphabet", ErrBadFilename, fileName, r)
		}
		digits = append(digits, '0'+d)
	}

	id, err := strconv.ParseInt(string(digits), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q decodes to a non-numeric id: %v", ErrBadFilename, fileName, err)
	}
	if id < 0 || id >= maxTileID {
		return 0, fmt.Errorf("%w: tile id %d exceeds 2^18", ErrBadFilename, id)
	}
	return id, nil
}

// tileIDToXY splits a decoded tile id into (tile_x, tile_y).
func tileIDToXY(id int64) (x, y int64) {
	return id % fogmap.MapWidth, id / fogmap.MapWidth
}

// AddFowFile decodes fileName into a tile id, inflates data, and populates
// the corresponding tile of m. Blocks present in the payload overwrite any
// block already at that position; the tile itself is created if absent. On
// any failure m is left unchanged.
func AddFowFile(m *fogmap.FogMap, fileName string, data []byte) error {
	id, err := decodeTileID(fileName)
	if err != nil {
		return err
	}
	tileX, tileY := tileIDToXY(id)

	payload, err := inflate(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	blocks, err := parsePayload(payload)
	if err != nil {
		return err
	}

	for _, b := range blocks {
		m.SetImportedBlock(tileX, tileY, b.x, b.y, b.block)
	}
	return nil
}

func inflate(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

type parsedBlock struct {
	x, y  int64
	block *fogmap.Block
}

// parsePayload reads the 128x128 little-endian uint16 slot table followed
// by the 515-byte block records it points to.
func parsePayload(payload []byte) ([]parsedBlock, error) {
	if len(payload) < tileHeaderSize {
		return nil, fmt.Errorf("%w: inflated payload is %d bytes, need at least %d", ErrBadPayload, len(payload), tileHeaderSize)
	}

	header := payload[:tileHeaderSize]
	var blocks []parsedBlock

	for slot := int64(0); slot < tileHeaderSlots; slot++ {
		off := int(slot) * 2
		blockIdx := uint16(header[off]) | uint16(header[off+1])<<8
		if blockIdx == 0 {
			continue
		}

		blockX := slot % fogmap.TileWidth
		blockY := slot / fogmap.TileWidth

		start := tileHeaderSize + int(blockIdx-1)*fogmap.BlockSize
		end := start + fogmap.BlockSize
		if start < 0 || end > len(payload) {
			return nil, fmt.Errorf("%w: slot %d references offset %d beyond payload of length %d", ErrBadPayload, slot, start, len(payload))
		}

		block, err := fogmap.NewBlockFromData(payload[start:end])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		blocks = append(blocks, parsedBlock{x: blockX, y: blockY, block: block})
	}
	return blocks, nil
}

// AddZipFile opens a zip archive at path and imports every non-hidden entry
// as a snapshot file, in archive order. The first error aborts the import;
// tiles already populated by preceding entries remain in m.
func AddZipFile(m *fogmap.FogMap, path string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("importer: open zip %q: %w", path, err)
	}
	defer zr.Close()
	return addZipEntries(m, zr.File)
}

// AddZipReader is like AddZipFile but reads from an already-open
// *zip.Reader, e.g. one backed by an in-memory buffer.
func AddZipReader(m *fogmap.FogMap, zr *zip.Reader) error {
	return addZipEntries(m, zr.File)
}

func addZipEntries(m *fogmap.FogMap, files []*zip.File) error {
	for _, f := range files {
		name := f.Name
		base := name
		if i := strings.LastIndexByte(name, '/'); i >= 0 {
			base = name[i+1:]
		}
		if f.FileInfo().IsDir() || strings.HasPrefix(base, ".") {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("importer: open zip entry %q: %w", name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("importer: read zip entry %q: %w", name, err)
		}

		if err := AddFowFile(m, base, data); err != nil {
			return fmt.Errorf("importer: entry %q: %w", name, err)
		}
	}
	return nil
}
