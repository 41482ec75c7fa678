package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ashgrove-quant/barforge/internal/optimize"
	"github.com/ashgrove-quant/barforge/pkg/types"
)

// SaveOptunaRequest bundles everything save_optuna_study_to_db needs beyond
// the trial results themselves.
type SaveOptunaRequest struct {
	StrategyID      string
	StrategyVersion string
	Config          types.OptimizationConfig
	ScoreConfig     types.ScoreConfig
	ConfigJSON      string
	CSVFilePath     string
	CSVFileName     string
	DatasetStart    time.Time
	DatasetEnd      time.Time
	WarmupBars      int
	StartedAt       time.Time
}

// SaveOptunaStudy writes one studies row and N trials rows in a single
// transaction (spec §4.6), assigning a fresh study_id/study_name.
func SaveOptunaStudy(db *DB, req SaveOptunaRequest, out optimize.Output) (string, error) {
	studyID := uuid.NewString()
	studyName, err := GenerateStudyName(db, req.StrategyID, req.CSVFileName, req.DatasetStart, req.DatasetEnd, types.ModeOptuna)
	if err != nil {
		return "", fmt.Errorf("store: generate study name: %w", err)
	}

	objectivesJSON, _ := json.Marshal(req.Config.Objectives)
	directions := make([]types.ObjectiveDirection, len(req.Config.Objectives))
	for i, obj := range req.Config.Objectives {
		directions[i] = types.ObjectiveDirections[obj]
	}
	directionsJSON, _ := json.Marshal(directions)
	constraintsJSON, _ := json.Marshal(req.Config.Constraints)
	bestObjJSON, _ := json.Marshal(out.Summary.BestObjectives)
	scoreConfigJSON, _ := json.Marshal(req.ScoreConfig)

	tx, err := db.sql.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO studies (
			study_id, study_name, strategy_id, strategy_version, optimization_mode,
			objectives_json, directions_json, primary_objective, constraints_json,
			sampler_type, budget_mode,
			total_trials, completed_trials, pruned_trials, pareto_front_size, best_objectives_json,
			score_config_json, config_json,
			csv_file_path, csv_file_name, dataset_start_date, dataset_end_date, warmup_bars,
			status, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		studyID, studyName, req.StrategyID, req.StrategyVersion, string(types.ModeOptuna),
		string(objectivesJSON), string(directionsJSON), req.Config.PrimaryObjective, string(constraintsJSON),
		string(req.Config.Sampler), string(req.Config.BudgetMode),
		out.Summary.TotalTrials, out.Summary.CompletedTrials, out.Summary.PrunedTrials, out.Summary.ParetoFrontSize, string(bestObjJSON),
		string(scoreConfigJSON), req.ConfigJSON,
		req.CSVFilePath, req.CSVFileName, isoDate(req.DatasetStart), isoDate(req.DatasetEnd), req.WarmupBars,
		"completed", isoNow(),
	)
	if err != nil {
		return "", fmt.Errorf("store: insert study: %w", err)
	}

	for i, r := range out.Results {
		trialNumber := r.TrialNumber
		if trialNumber == 0 {
			trialNumber = i
		}
		if err := insertTrial(tx, studyID, trialNumber, r); err != nil {
			return "", fmt.Errorf("store: insert trial %d: %w", trialNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return studyID, nil
}

func insertTrial(tx *sql.Tx, studyID string, trialNumber int, r types.OptimizationResult) error {
	paramsJSON, _ := json.Marshal(r.Params)
	objValuesJSON, _ := json.Marshal(r.ObjectiveValues)
	constraintValuesJSON, _ := json.Marshal(r.ConstraintValues)

	winRate := 0.0
	if r.Basic.TotalTrades > 0 {
		winRate = float64(r.Basic.WinningTrades) / float64(r.Basic.TotalTrades) * 100
	}

	_, err := tx.Exec(`
		INSERT INTO trials (
			study_id, trial_number, params_json, objective_values_json, constraint_values_json,
			constraints_satisfied, is_pareto_optimal, dominance_rank, failed, failure_reason, score,
			net_profit_pct, max_drawdown_pct, total_trades, win_rate,
			sharpe_ratio, sortino_ratio, profit_factor, profit_factor_inf, romad, ulcer_index, sqn,
			consistency_score, recovery_factor
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(study_id, trial_number) DO NOTHING
	`,
		studyID, trialNumber, string(paramsJSON), string(objValuesJSON), string(constraintValuesJSON),
		boolToInt(r.ConstraintsSatisfied), boolToInt(r.Pareto), nullableInt(r.DominanceRank), boolToInt(r.Failed), r.FailureReason, derefFloat(r.Score),
		r.Basic.NetProfitPct, r.Basic.MaxDrawdownPct, r.Basic.TotalTrades, winRate,
		derefFloat(r.Advanced.SharpeRatio), derefFloat(r.Advanced.SortinoRatio), derefFloat(r.Advanced.ProfitFactor), boolToInt(r.Advanced.ProfitFactorInf),
		derefFloat(r.Advanced.RoMaD), derefFloat(r.Advanced.UlcerIndex), derefFloat(r.Advanced.SQN),
		derefFloat(r.Advanced.ConsistencyScore), derefFloat(r.Advanced.RecoveryFactor),
	)
	return err
}

// SaveWFARequest bundles everything save_wfa_study_to_db needs beyond the
// stitched result itself.
type SaveWFARequest struct {
	StrategyID      string
	StrategyVersion string
	Config          types.WFAConfig
	ScoreConfig     types.ScoreConfig
	ConfigJSON      string
	CSVFilePath     string
	CSVFileName     string
	DatasetStart    time.Time
	DatasetEnd      time.Time
	WarmupBars      int
}

// SaveWFAStudy writes one studies row, N wfa_windows rows, and all
// per-module top-K snapshots in one transaction.
func SaveWFAStudy(db *DB, req SaveWFARequest, result types.WFAResult) (string, error) {
	studyID := uuid.NewString()
	studyName, err := GenerateStudyName(db, req.StrategyID, req.CSVFileName, req.DatasetStart, req.DatasetEnd, types.ModeWFA)
	if err != nil {
		return "", fmt.Errorf("store: generate study name: %w", err)
	}

	scoreConfigJSON, _ := json.Marshal(req.ScoreConfig)

	tx, err := db.sql.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO studies (
			study_id, study_name, strategy_id, strategy_version, optimization_mode,
			score_config_json, config_json,
			csv_file_path, csv_file_name, dataset_start_date, dataset_end_date, warmup_bars,
			stitched_net_profit_pct, stitched_max_drawdown_pct, stitched_total_trades, oos_win_rate, wfe,
			status, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		studyID, studyName, req.StrategyID, req.StrategyVersion, string(types.ModeWFA),
		string(scoreConfigJSON), req.ConfigJSON,
		req.CSVFilePath, req.CSVFileName, isoDate(req.DatasetStart), isoDate(req.DatasetEnd), req.WarmupBars,
		result.StitchedNetProfitPct, result.StitchedMaxDrawdownPct, result.StitchedTotalTrades, result.OOSWinRate, result.WFE,
		"completed", isoNow(),
	)
	if err != nil {
		return "", fmt.Errorf("store: insert study: %w", err)
	}

	for _, w := range result.Windows {
		if err := insertWindow(tx, studyID, w); err != nil {
			return "", fmt.Errorf("store: insert window %d: %w", w.WindowNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return studyID, nil
}

func insertWindow(tx *sql.Tx, studyID string, w types.WFAWindow) error {
	bestParamsJSON, _ := json.Marshal(w.BestParams)
	selectionChainJSON, _ := json.Marshal(w.SelectionChain)
	equityJSON, _ := json.Marshal(w.OOSEquityCurveCompact)
	timestampsJSON, _ := json.Marshal(w.OOSTimestampsCompact)
	moduleStatusJSON, _ := json.Marshal(w.ModuleStatus)

	windowWFE := 0.0
	if w.ISMetrics.NetProfitPct != 0 {
		windowWFE = w.OOSMetrics.NetProfitPct / w.ISMetrics.NetProfitPct
	}

	var cusumFinal any
	if w.Adaptive.CUSUMFinal != nil {
		cusumFinal = *w.Adaptive.CUSUMFinal
	}

	_, err := tx.Exec(`
		INSERT INTO wfa_windows (
			window_id, study_id, window_number, best_params_json, best_param_id, best_params_source,
			selection_chain_json, is_start, is_end, oos_start, oos_end,
			is_net_profit_pct, is_max_drawdown_pct, is_total_trades,
			oos_net_profit_pct, oos_max_drawdown_pct, oos_total_trades,
			oos_equity_curve_json, oos_timestamps_json, window_wfe,
			adaptive_trigger, adaptive_cusum_final, adaptive_actual_oos_days,
			module_status_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(study_id, window_number) DO NOTHING
	`,
		uuid.NewString(), studyID, w.WindowNumber, string(bestParamsJSON), w.BestParamID.String(), w.BestParamsSource,
		string(selectionChainJSON), w.ISStart, w.ISEnd, w.OOSStart, w.OOSEnd,
		w.ISMetrics.NetProfitPct, w.ISMetrics.MaxDrawdownPct, w.ISMetrics.TotalTrades,
		w.OOSMetrics.NetProfitPct, w.OOSMetrics.MaxDrawdownPct, w.OOSMetrics.TotalTrades,
		string(equityJSON), string(timestampsJSON), windowWFE,
		string(w.Adaptive.Trigger), cusumFinal, w.Adaptive.ActualOOSDays,
		string(moduleStatusJSON),
	)
	if err != nil {
		return err
	}

	for module, snapshot := range w.TopKTrials {
		for _, r := range snapshot {
			paramsJSON, _ := json.Marshal(r.Params)
			objValuesJSON, _ := json.Marshal(r.ObjectiveValues)
			_, err := tx.Exec(`
				INSERT INTO wfa_window_trials (study_id, window_number, module, trial_number, params_json, objective_values_json, score)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, studyID, w.WindowNumber, module, r.TrialNumber, string(paramsJSON), string(objValuesJSON), derefOrZero(r.Score))
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// DeleteStudy removes a study and, via ON DELETE CASCADE, every trial,
// window, window-trial snapshot, and manual test that references it.
func DeleteStudy(db *DB, studyID string) error {
	_, err := db.sql.Exec(`DELETE FROM studies WHERE study_id = ?`, studyID)
	return err
}

// ListStudies returns every study's summary row, newest first.
func ListStudies(db *DB) ([]types.Study, error) {
	rows, err := db.sql.Query(`
		SELECT study_id, study_name, strategy_id, COALESCE(strategy_version, ''), optimization_mode,
			total_trials, completed_trials, pruned_trials, status, created_at
		FROM studies ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Study
	for rows.Next() {
		var s types.Study
		var mode, createdAt string
		if err := rows.Scan(&s.StudyID, &s.StudyName, &s.StrategyID, &s.StrategyVersion, &mode,
			&s.TotalTrials, &s.CompletedTrials, &s.PrunedTrials, &s.Status, &createdAt); err != nil {
			return nil, err
		}
		s.OptimizationMode = types.OptimizationMode(mode)
		s.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", createdAt)
		out = append(out, s)
	}
	return out, rows.Err()
}

func isoDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}

func isoNow() string { return time.Now().UTC().Format("2006-01-02 15:04:05") }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

func derefFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func derefOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
