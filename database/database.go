package database

import (
	"database/sql"
	"fmt"
	"os"

	"perceptive/index"
	"perceptive/logging"
	"perceptive/types"

	_ "github.com/mattn/go-sqlite3"
)

// InitDatabase opens a sqlite index store, creating the schema if needed
func InitDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// position keeps the enumeration order used to break ties in searches
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS hash_index (
		position INTEGER PRIMARY KEY,
		hash TEXT NOT NULL UNIQUE,
		content_address TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_content_address ON hash_index(content_address);`

	if _, err = db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot create hash_index table: %w", err)
	}

	return db, nil
}

// OpenDatabase opens an existing index store
func OpenDatabase(dbPath string) (*sql.DB, error) {
	return sql.Open("sqlite3", dbPath)
}

// StoreIndex replaces the contents of the store with idx, preserving its order
func StoreIndex(db *sql.DB, idx *index.Index) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("cannot begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM hash_index"); err != nil {
		return fmt.Errorf("cannot clear hash_index: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO hash_index (position, hash, content_address) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("cannot prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, entry := range idx.Entries() {
		if _, err := stmt.Exec(i, entry.Key, string(entry.Address)); err != nil {
			return fmt.Errorf("cannot insert entry %s: %w", entry.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cannot commit index: %w", err)
	}

	logging.DebugLog("Stored %d index entries", idx.Len())
	return nil
}

// LoadIndex reads the whole store into an in-memory index in position order
func LoadIndex(db *sql.DB) (*index.Index, error) {
	rows, err := db.Query("SELECT hash, content_address FROM hash_index ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("database query error: %w", err)
	}
	defer rows.Close()

	idx := index.New()
	for rows.Next() {
		var hash, address string
		if err := rows.Scan(&hash, &address); err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		idx.Add(hash, types.ContentAddress(address))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading rows: %w", err)
	}

	return idx, nil
}

// LoadIndexFile opens the store at dbPath and loads it
func LoadIndexFile(dbPath string) (*index.Index, error) {
	// sql.Open would create a missing file
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("database does not exist: %w", err)
	}

	db, err := OpenDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("error opening database %s: %w", dbPath, err)
	}
	defer db.Close()

	return LoadIndex(db)
}

// ExportIndexFile writes idx to the store at dbPath, creating it if needed,
// and returns the stats of the written store
func ExportIndexFile(dbPath string, idx *index.Index) (*IndexStats, error) {
	db, err := InitDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("error initializing database %s: %w", dbPath, err)
	}
	defer db.Close()

	if err := StoreIndex(db, idx); err != nil {
		return nil, err
	}
	return GetIndexStats(db)
}

// IndexStats summarizes an index store
type IndexStats struct {
	TotalEntries    int
	UniqueAddresses int
}

// GetIndexStats counts entries and distinct content addresses
func GetIndexStats(db *sql.DB) (*IndexStats, error) {
	var stats IndexStats

	err := db.QueryRow("SELECT COUNT(*) FROM hash_index").Scan(&stats.TotalEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to get total entries: %w", err)
	}

	err = db.QueryRow("SELECT COUNT(DISTINCT content_address) FROM hash_index").Scan(&stats.UniqueAddresses)
	if err != nil {
		return nil, fmt.Errorf("failed to get unique addresses: %w", err)
	}

	return &stats, nil
}
