package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashgrove-quant/barforge/internal/optimize"
	"github.com/ashgrove-quant/barforge/internal/strategy"
	"github.com/ashgrove-quant/barforge/pkg/types"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func syntheticTable(n int) types.OHLCVTable {
	bars := make([]types.Bar, n)
	price := 100.0
	for i := 0; i < n; i++ {
		price += 0.15
		bars[i] = types.Bar{
			Time: int64(i * 3600), Open: price - 0.2, High: price + 0.3, Low: price - 0.4,
			Close: price, Volume: 1000,
		}
	}
	return types.NewOHLCVTable(bars)
}

func runOptimization(t *testing.T) optimize.Output {
	t.Helper()
	strat := strategy.NewS04StochRSI()
	table := syntheticTable(800)
	opt := optimize.NewOptimizer(nil)
	out, err := opt.Run(context.Background(), optimize.RunRequest{
		Strategy:      strat,
		Schema:        strat.ParamSchema(),
		Table:         table,
		TradeStartIdx: 50,
		Config: types.OptimizationConfig{
			Objectives:       []string{"net_profit_pct"},
			PrimaryObjective: "net_profit_pct",
			Sampler:          types.SamplerRandom,
			BudgetMode:       types.BudgetTrials,
			BudgetTrialsCount: 8,
			NumWorkers:       2,
			ScoreConfig: types.ScoreConfig{
				Normalization: types.NormalizationMinMax,
				Metrics: []types.ScoreMetricConfig{
					{Metric: "net_profit_pct", Weight: 1, Enabled: true, Min: -50, Max: 50},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("optimizer run: %v", err)
	}
	return out
}

func TestOpenCreatesSchemaAndIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "studies.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	db.Close()

	db2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()
}

func TestSaveAndListOptunaStudy(t *testing.T) {
	db := openTestDB(t)
	out := runOptimization(t)

	studyID, err := SaveOptunaStudy(db, SaveOptunaRequest{
		StrategyID:   "s04_stochrsi",
		CSVFileName:  "OKX_LINKUSDT.P, 1H 2024.01.01-2024.06.01.csv",
		DatasetStart: time.Unix(0, 0).UTC(),
		DatasetEnd:   time.Unix(800*3600, 0).UTC(),
	}, out)
	if err != nil {
		t.Fatalf("SaveOptunaStudy: %v", err)
	}
	if studyID == "" {
		t.Fatal("expected non-empty study id")
	}

	studies, err := ListStudies(db)
	if err != nil {
		t.Fatalf("ListStudies: %v", err)
	}
	if len(studies) != 1 {
		t.Fatalf("expected 1 study, got %d", len(studies))
	}
	if studies[0].StudyID != studyID {
		t.Fatalf("study id mismatch: %s vs %s", studies[0].StudyID, studyID)
	}
	if !containsSubstr(studies[0].StudyName, "OPT") {
		t.Fatalf("expected OPT suffix in study name %q", studies[0].StudyName)
	}
}

func TestSaveOptunaStudyPersistsConstraintValues(t *testing.T) {
	db := openTestDB(t)
	score := 1.0
	out := optimize.Output{
		Results: []types.OptimizationResult{
			{
				TrialNumber:          0,
				Params:               types.Params{"maLength": 20},
				ObjectiveValues:      []float64{5},
				ConstraintValues:     []float64{3, -2, 0},
				ConstraintsSatisfied: false,
				Score:                &score,
			},
		},
		Summary: optimize.Summary{TotalTrials: 1, CompletedTrials: 1},
	}

	studyID, err := SaveOptunaStudy(db, SaveOptunaRequest{
		StrategyID:   "s04_stochrsi",
		CSVFileName:  "OKX_LINKUSDT.P, 1H 2024.01.01-2024.06.01.csv",
		DatasetStart: time.Unix(0, 0).UTC(),
		DatasetEnd:   time.Unix(800*3600, 0).UTC(),
	}, out)
	if err != nil {
		t.Fatalf("SaveOptunaStudy: %v", err)
	}

	var constraintValuesJSON string
	var satisfied int
	row := db.sql.QueryRow(`SELECT constraint_values_json, constraints_satisfied FROM trials WHERE study_id = ? AND trial_number = ?`, studyID, 0)
	if err := row.Scan(&constraintValuesJSON, &satisfied); err != nil {
		t.Fatalf("query trial row: %v", err)
	}

	var roundTripped []float64
	if err := json.Unmarshal([]byte(constraintValuesJSON), &roundTripped); err != nil {
		t.Fatalf("unmarshal constraint_values_json: %v", err)
	}
	want := []float64{3, -2, 0}
	if len(roundTripped) != len(want) {
		t.Fatalf("expected %d constraint values, got %d", len(want), len(roundTripped))
	}
	for i := range want {
		if roundTripped[i] != want[i] {
			t.Fatalf("constraint value %d: expected %v, got %v", i, want[i], roundTripped[i])
		}
	}
	if satisfied != 0 {
		t.Fatalf("expected constraints_satisfied = 0, got %d", satisfied)
	}
}

func TestSaveOptunaStudyDedupesNames(t *testing.T) {
	db := openTestDB(t)
	out := runOptimization(t)
	req := SaveOptunaRequest{
		StrategyID:   "s04_stochrsi",
		CSVFileName:  "OKX_LINKUSDT.P, 1H 2024.01.01-2024.06.01.csv",
		DatasetStart: time.Unix(0, 0).UTC(),
		DatasetEnd:   time.Unix(800*3600, 0).UTC(),
	}
	id1, err := SaveOptunaStudy(db, req, out)
	if err != nil {
		t.Fatalf("first save: %v", err)
	}
	id2, err := SaveOptunaStudy(db, req, out)
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if id1 == id2 {
		t.Fatal("expected distinct study ids")
	}

	studies, err := ListStudies(db)
	if err != nil {
		t.Fatalf("ListStudies: %v", err)
	}
	names := map[string]bool{}
	for _, s := range studies {
		names[s.StudyName] = true
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 distinct names, got %v", names)
	}
}

func TestDeleteStudyCascadesTrials(t *testing.T) {
	db := openTestDB(t)
	out := runOptimization(t)
	studyID, err := SaveOptunaStudy(db, SaveOptunaRequest{
		StrategyID:   "s04_stochrsi",
		CSVFileName:  "dataset.csv",
		DatasetStart: time.Unix(0, 0).UTC(),
		DatasetEnd:   time.Unix(800*3600, 0).UTC(),
	}, out)
	if err != nil {
		t.Fatalf("SaveOptunaStudy: %v", err)
	}

	var trialCount int
	if err := db.sql.QueryRow(`SELECT COUNT(*) FROM trials WHERE study_id = ?`, studyID).Scan(&trialCount); err != nil {
		t.Fatalf("count trials: %v", err)
	}
	if trialCount == 0 {
		t.Fatal("expected at least one trial row before delete")
	}

	if err := DeleteStudy(db, studyID); err != nil {
		t.Fatalf("DeleteStudy: %v", err)
	}
	if err := db.sql.QueryRow(`SELECT COUNT(*) FROM trials WHERE study_id = ?`, studyID).Scan(&trialCount); err != nil {
		t.Fatalf("count trials after delete: %v", err)
	}
	if trialCount != 0 {
		t.Fatalf("expected cascade delete to remove trials, found %d", trialCount)
	}
}

func TestRunLockRejectsConcurrentHold(t *testing.T) {
	db := openTestDB(t)
	if !db.TryLock() {
		t.Fatal("expected first TryLock to succeed")
	}
	if db.TryLock() {
		t.Fatal("expected second TryLock to fail while held")
	}
	db.Unlock()
	if !db.TryLock() {
		t.Fatal("expected TryLock to succeed after Unlock")
	}
	db.Unlock()
}

func TestManagerCreatesAndListsDatabases(t *testing.T) {
	mgr, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer mgr.Close()

	if mgr.Active() == nil {
		t.Fatal("expected a default active database")
	}

	if _, err := mgr.CreateDatabase("second study set"); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}
	dbs, err := mgr.ListDatabases()
	if err != nil {
		t.Fatalf("ListDatabases: %v", err)
	}
	if len(dbs) != 2 {
		t.Fatalf("expected 2 databases, got %d", len(dbs))
	}
}

func TestStudySetCRUD(t *testing.T) {
	db := openTestDB(t)
	id, err := CreateStudySet(db, "momentum basket", []string{"a", "b"}, 0)
	if err != nil {
		t.Fatalf("CreateStudySet: %v", err)
	}
	sets, err := ListStudySets(db)
	if err != nil {
		t.Fatalf("ListStudySets: %v", err)
	}
	if len(sets) != 1 || sets[0].SetID != id {
		t.Fatalf("unexpected sets: %+v", sets)
	}
	if err := UpdateStudySet(db, id, "momentum basket v2", []string{"a", "b", "c"}); err != nil {
		t.Fatalf("UpdateStudySet: %v", err)
	}
	sets, _ = ListStudySets(db)
	if len(sets[0].StudyIDs) != 3 {
		t.Fatalf("expected 3 member studies after update, got %d", len(sets[0].StudyIDs))
	}
	if err := DeleteStudySet(db, id); err != nil {
		t.Fatalf("DeleteStudySet: %v", err)
	}
	sets, _ = ListStudySets(db)
	if len(sets) != 0 {
		t.Fatalf("expected 0 sets after delete, got %d", len(sets))
	}
}

func containsSubstr(s, sub string) bool {
	return len(s) >= len(sub) && (func() bool {
		for i := 0; i+len(sub) <= len(s); i++ {
			if s[i:i+len(sub)] == sub {
				return true
			}
		}
		return false
	})()
}
