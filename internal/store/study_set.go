package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// StudySet groups several studies under one user-chosen name for combined
// display (e.g. the analytics aggregator in C9 stitching their OOS equity
// curves together). This table has no directly retrieved reference
// implementation — its shape (name, ordered member ids, a manual sort
// order, independent created/updated timestamps) is inferred from how
// server_routes_analytics.py's imports use it, not ported from a read
// schema.
type StudySet struct {
	SetID     string
	Name      string
	StudyIDs  []string
	SortOrder int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateStudySet inserts a new study set.
func CreateStudySet(db *DB, name string, studyIDs []string, sortOrder int) (string, error) {
	setID := uuid.NewString()
	idsJSON, err := json.Marshal(studyIDs)
	if err != nil {
		return "", err
	}
	_, err = db.sql.Exec(`
		INSERT INTO study_sets (set_id, name, study_ids_json, sort_order)
		VALUES (?, ?, ?, ?)
	`, setID, name, string(idsJSON), sortOrder)
	return setID, err
}

// ListStudySets returns every study set ordered by sort_order.
func ListStudySets(db *DB) ([]StudySet, error) {
	rows, err := db.sql.Query(`
		SELECT set_id, name, study_ids_json, sort_order, created_at, updated_at
		FROM study_sets ORDER BY sort_order ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StudySet
	for rows.Next() {
		var s StudySet
		var idsJSON, createdAt, updatedAt string
		if err := rows.Scan(&s.SetID, &s.Name, &idsJSON, &s.SortOrder, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(idsJSON), &s.StudyIDs); err != nil {
			return nil, err
		}
		s.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", createdAt)
		s.UpdatedAt, _ = time.Parse("2006-01-02 15:04:05", updatedAt)
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpdateStudySet replaces a set's name and member list.
func UpdateStudySet(db *DB, setID, name string, studyIDs []string) error {
	idsJSON, err := json.Marshal(studyIDs)
	if err != nil {
		return err
	}
	_, err = db.sql.Exec(`
		UPDATE study_sets SET name = ?, study_ids_json = ?, updated_at = datetime('now')
		WHERE set_id = ?
	`, name, string(idsJSON), setID)
	return err
}

// ReorderStudySets persists a new sort_order for each listed set id, in the
// order given.
func ReorderStudySets(db *DB, orderedSetIDs []string) error {
	tx, err := db.sql.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i, id := range orderedSetIDs {
		if _, err := tx.Exec(`UPDATE study_sets SET sort_order = ?, updated_at = datetime('now') WHERE set_id = ?`, i, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DeleteStudySet removes one study set. It does not touch the studies it
// references.
func DeleteStudySet(db *DB, setID string) error {
	_, err := db.sql.Exec(`DELETE FROM study_sets WHERE set_id = ?`, setID)
	return err
}
