package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ManualTest is one ad-hoc single-parameter-set run recorded against a
// study, outside the optimizer loop (a user re-running a chosen parameter
// set against a different slice of data).
type ManualTest struct {
	ID          string
	StudyID     string
	CreatedAt   time.Time
	TestName    string
	CSVPath     string
	StartDate   time.Time
	EndDate     time.Time
	TrialsCount int
	ResultsJSON string
}

// SaveManualTest inserts one manual test row under studyID.
func SaveManualTest(db *DB, t ManualTest) (string, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := db.sql.Exec(`
		INSERT INTO manual_tests (id, study_id, test_name, csv_path, start_date, end_date, trials_count, results_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.StudyID, t.TestName, t.CSVPath, isoDate(t.StartDate), isoDate(t.EndDate), t.TrialsCount, t.ResultsJSON)
	return t.ID, err
}

// ListManualTests returns every manual test recorded under studyID, newest
// first.
func ListManualTests(db *DB, studyID string) ([]ManualTest, error) {
	rows, err := db.sql.Query(`
		SELECT id, study_id, created_at, test_name, csv_path, start_date, end_date, trials_count, results_json
		FROM manual_tests WHERE study_id = ? ORDER BY created_at DESC
	`, studyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ManualTest
	for rows.Next() {
		var t ManualTest
		var createdAt, start, end string
		if err := rows.Scan(&t.ID, &t.StudyID, &createdAt, &t.TestName, &t.CSVPath, &start, &end, &t.TrialsCount, &t.ResultsJSON); err != nil {
			return nil, err
		}
		t.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", createdAt)
		t.StartDate, _ = time.Parse("2006-01-02", start)
		t.EndDate, _ = time.Parse("2006-01-02", end)
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetManualTest loads a single manual test by id and decodes its
// results_json payload into v.
func GetManualTest(db *DB, id string, v any) (ManualTest, error) {
	var t ManualTest
	var createdAt, start, end string
	err := db.sql.QueryRow(`
		SELECT id, study_id, created_at, test_name, csv_path, start_date, end_date, trials_count, results_json
		FROM manual_tests WHERE id = ?
	`, id).Scan(&t.ID, &t.StudyID, &createdAt, &t.TestName, &t.CSVPath, &start, &end, &t.TrialsCount, &t.ResultsJSON)
	if err != nil {
		return ManualTest{}, err
	}
	t.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", createdAt)
	t.StartDate, _ = time.Parse("2006-01-02", start)
	t.EndDate, _ = time.Parse("2006-01-02", end)
	if v != nil {
		if err := json.Unmarshal([]byte(t.ResultsJSON), v); err != nil {
			return t, err
		}
	}
	return t, nil
}

// DeleteManualTest removes one manual test row.
func DeleteManualTest(db *DB, id string) error {
	_, err := db.sql.Exec(`DELETE FROM manual_tests WHERE id = ?`, id)
	return err
}
