package catalog

import (
	"database/sql"
	"fmt"
)

// Row is a single upload record as stored in the up table.
type Row struct {
	Wark    string
	MTime   int64
	Size    int64
	RelDir  string
	Name    string
	IP      string
	AddedAt int64
	Tags    map[string]string
}

// Seed inserts rows into a freshly migrated catalog, for use by tests
// that exercise query/u2idx against a known fixture set.
func Seed(db *sql.DB, rows []Row) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("seed: begin: %w", err)
	}
	defer tx.Rollback()

	insUp, err := tx.Prepare(`insert into up (w, mt, sz, rd, fn, ip, at) values (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("seed: prepare up: %w", err)
	}
	defer insUp.Close()

	insTag, err := tx.Prepare(`insert into mt (w, k, v) values (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("seed: prepare mt: %w", err)
	}
	defer insTag.Close()

	for _, r := range rows {
		if _, err := insUp.Exec(r.Wark, r.MTime, r.Size, r.RelDir, r.Name, r.IP, r.AddedAt); err != nil {
			return fmt.Errorf("seed: insert up: %w", err)
		}
		for k, v := range r.Tags {
			if _, err := insTag.Exec(r.Wark, k, v); err != nil {
				return fmt.Errorf("seed: insert mt: %w", err)
			}
		}
	}

	return tx.Commit()
}
