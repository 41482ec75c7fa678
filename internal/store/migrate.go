package store

import "database/sql"

// ensureColumns gates every additive column behind a real PRAGMA table_info
// introspection rather than the blind ALTER-and-ignore-the-duplicate-column-
// error idiom: that works the first time a process adds a column, but a
// second process opening the same file concurrently (or a restart right
// after a partial migration) can still hit the duplicate-column error in a
// way callers have to special-case. Checking table_info first makes re-opens
// idempotent without depending on SQLite's error text.
func ensureColumns(db *sql.DB, defs []columnDef) error {
	existing := map[string]map[string]bool{}
	for _, d := range defs {
		if _, ok := existing[d.table]; ok {
			continue
		}
		cols, err := tableColumns(db, d.table)
		if err != nil {
			return err
		}
		existing[d.table] = cols
	}

	for _, d := range defs {
		if existing[d.table][d.column] {
			continue
		}
		if _, err := db.Exec("ALTER TABLE " + d.table + " ADD COLUMN " + d.column + " " + d.definition); err != nil {
			return err
		}
		existing[d.table][d.column] = true
	}
	return nil
}

func tableColumns(db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := map[string]bool{}
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}
