package catalog

import (
	"database/sql"
	_ "embed"
	"log"
	"os"
	"path/filepath"
	"sort"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schema string

// Cache persists a built Index across runs so the catalog walk can be
// skipped. It is the only persistent state in the system; there is no TTL,
// staleness is managed solely through Clear.
type Cache struct {
	db *sql.DB
}

// OpenCache opens (creating if needed) the sqlite cache file at path. A
// corrupt cache file is not fatal: it gets removed and recreated empty, which
// downstream sees as a plain miss.
func OpenCache(path string) (*Cache, error) {
	_ = os.MkdirAll(filepath.Dir(path), 0755)

	db, err := openCacheDB(path)
	if err != nil {
		log.Printf("index cache unusable, recreating: %v", err)
		for _, p := range []string{path, path + "-wal", path + "-shm"} {
			_ = os.Remove(p)
		}
		db, err = openCacheDB(path)
		if err != nil {
			return nil, err
		}
	}
	return &Cache{db: db}, nil
}

func openCacheDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// Load restores the cached index. Any failure — missing table, unreadable
// file, scan error — is logged and treated as a miss (nil), never an error:
// a corrupt cache just forces a rebuild. An empty cache is also a miss.
func (c *Cache) Load() Index {
	rows, err := c.db.Query(
		`SELECT artist, album, title, track_id FROM catalog_index
		 ORDER BY artist, album, title, seq`)
	if err != nil {
		log.Printf("index cache unreadable, will rebuild: %v", err)
		return nil
	}
	defer rows.Close()

	ix := make(Index)
	n := 0
	for rows.Next() {
		var artist, album, title, trackID string
		if err := rows.Scan(&artist, &album, &title, &trackID); err != nil {
			log.Printf("index cache corrupt, will rebuild: %v", err)
			return nil
		}
		ix.Add(artist, album, title, trackID)
		n++
	}
	if err := rows.Err(); err != nil {
		log.Printf("index cache corrupt, will rebuild: %v", err)
		return nil
	}
	if n == 0 {
		return nil
	}
	return ix
}

// Save replaces the cached index with ix in a single transaction. Called
// once per successful full build.
func (c *Cache) Save(ix Index) error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM catalog_index`); err != nil {
		return err
	}

	stmt, err := tx.Prepare(
		`INSERT INTO catalog_index (artist, album, title, seq, track_id)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, artist := range sortedKeys(ix) {
		for _, album := range ix.Albums(artist) {
			titles := ix[artist][album]
			titleKeys := make([]string, 0, len(titles))
			for t := range titles {
				titleKeys = append(titleKeys, t)
			}
			sort.Strings(titleKeys)
			for _, title := range titleKeys {
				for seq, trackID := range titles[title] {
					if _, err := stmt.Exec(artist, album, title, seq, trackID); err != nil {
						return err
					}
				}
			}
		}
	}
	return tx.Commit()
}

// Clear drops the cached index so the next run forces a fresh build.
func (c *Cache) Clear() error {
	_, err := c.db.Exec(`DELETE FROM catalog_index`)
	return err
}

func sortedKeys(ix Index) []string {
	keys := make([]string, 0, len(ix))
	for k := range ix {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
