package entity

import (
	"database/sql"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/bitcoingraph/bitcoingraph/internal/bgerr"
)

// mirrorToSQLite writes the resolved address->entity assignment into a
// SQLite database alongside the dump directory, grounded on
// original_source/bitcoingraph/entitygraphgen.py's SQLiteDAO — an optional
// inspection aid for ad-hoc queries over a completed run, not part of the
// core CSV pipeline.
func (r *Resolver) mirrorToSQLite(addresses []string, eligible []int32, d *dsu) error {
	dbPath := filepath.Join(r.cfg.Dir, "entities_audit.sqlite")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return bgerr.New(bgerr.KindDumpIO, "failed to open sqlite audit database", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS address_entity (
		address TEXT PRIMARY KEY,
		entity_id INTEGER NOT NULL
	)`); err != nil {
		return bgerr.New(bgerr.KindDumpIO, "failed to create sqlite audit table", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return bgerr.New(bgerr.KindDumpIO, "failed to begin sqlite audit transaction", err)
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO address_entity (address, entity_id) VALUES (?, ?)`)
	if err != nil {
		tx.Rollback()
		return bgerr.New(bgerr.KindDumpIO, "failed to prepare sqlite audit insert", err)
	}
	defer stmt.Close()

	rootToID := make(map[int32]int32)
	nextID := int32(1)
	for _, i := range eligible {
		addr := addresses[i]
		root := d.find(i)
		id, ok := rootToID[root]
		if !ok {
			id = nextID
			nextID++
			rootToID[root] = id
		}
		if _, err := stmt.Exec(addr, id); err != nil {
			tx.Rollback()
			return bgerr.New(bgerr.KindDumpIO, "failed to write sqlite audit row", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return bgerr.New(bgerr.KindDumpIO, "failed to commit sqlite audit transaction", err)
	}
	return nil
}
