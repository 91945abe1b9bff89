// Package snapshot persists a fogmap.FogMap to a SQLite file so it can
// survive across process runs. The core bitmap pyramid (package fogmap)
// deliberately does not persist state; this is the calling-layer
// collaborator that does, one row per written block, using the same WAL
// pragmas and batch-then-transaction write path as a tile-cache writer but
// storing raw 515-byte block records instead of compressed image blobs.
package snapshot

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/MeKo-Tech/fogtrail/internal/fogmap"
)

// DefaultBatchSize is the number of blocks buffered before a flush.
const DefaultBatchSize = 500

// Store reads and writes FogMap blocks to a SQLite database.
type Store struct {
	db    *sql.DB
	batch []blockRow
	mu    sync.Mutex
}

type blockRow struct {
	tileX, tileY   int64
	blockX, blockY int64
	data           []byte
}

// Open opens (creating if necessary) a snapshot database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("snapshot: set pragma %q: %w", pragma, err)
		}
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, batch: make([]blockRow, 0, DefaultBatchSize)}, nil
}

func createSchema(db *sql.DB) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS blocks (
			tile_x INTEGER NOT NULL,
			tile_y INTEGER NOT NULL,
			block_x INTEGER NOT NULL,
			block_y INTEGER NOT NULL,
			data BLOB NOT NULL,
			PRIMARY KEY (tile_x, tile_y, block_x, block_y)
		);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("snapshot: create schema: %w", err)
	}
	return nil
}

// Save writes every block currently present in m, batching inserts into
// transactions of DefaultBatchSize rows.
func (s *Store) Save(m *fogmap.FogMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batch = s.batch[:0]
	var saveErr error
	m.Tiles(func(tileX, tileY int64, t *fogmap.Tile) bool {
		t.Blocks(func(blockX, blockY int64, b *fogmap.Block) bool {
			s.batch = append(s.batch, blockRow{tileX, tileY, blockX, blockY, b.Bytes()})
			if len(s.batch) >= DefaultBatchSize {
				if err := s.flushLocked(); err != nil {
					saveErr = err
					return false
				}
			}
			return true
		})
		return saveErr == nil
	})
	if saveErr != nil {
		return saveErr
	}
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	if len(s.batch) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("snapshot: begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.Prepare("INSERT OR REPLACE INTO blocks (tile_x, tile_y, block_x, block_y, data) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("snapshot: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range s.batch {
		if _, err := stmt.Exec(row.tileX, row.tileY, row.blockX, row.blockY, row.data); err != nil {
			return fmt.Errorf("snapshot: insert block (%d,%d)/(%d,%d): %w", row.tileX, row.tileY, row.blockX, row.blockY, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("snapshot: commit transaction: %w", err)
	}

	s.batch = s.batch[:0]
	return nil
}

// Load reads every row back into a fresh FogMap.
func (s *Store) Load() (*fogmap.FogMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query("SELECT tile_x, tile_y, block_x, block_y, data FROM blocks")
	if err != nil {
		return nil, fmt.Errorf("snapshot: query blocks: %w", err)
	}
	defer rows.Close()

	m := fogmap.New()
	for rows.Next() {
		var tileX, tileY, blockX, blockY int64
		var data []byte
		if err := rows.Scan(&tileX, &tileY, &blockX, &blockY, &data); err != nil {
			return nil, fmt.Errorf("snapshot: scan block row: %w", err)
		}
		block, err := fogmap.NewBlockFromData(data)
		if err != nil {
			return nil, fmt.Errorf("snapshot: decode block (%d,%d)/(%d,%d): %w", tileX, tileY, blockX, blockY, err)
		}
		m.SetImportedBlock(tileX, tileY, blockX, blockY, block)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("snapshot: iterate blocks: %w", err)
	}
	return m, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("snapshot: close database: %w", err)
	}
	return nil
}
