package store

import (
	"github.com/ashgrove-quant/barforge/internal/postprocess"
)

// SaveForwardTestResults writes each candidate's forward-test profit
// degradation back onto its trials row, then ranks and stamps ft_rank.
func SaveForwardTestResults(db *DB, studyID string, results []postprocess.ForwardTestResult) error {
	tx, err := db.sql.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ranked := postprocess.RankByForwardMetric(results, "ForwardProfitPct")
	rankOf := map[int]int{}
	for i, r := range ranked {
		rankOf[r.TrialNumber] = i + 1
	}

	for _, r := range results {
		_, err := tx.Exec(`
			UPDATE trials SET
				ft_net_profit_pct = ?,
				ft_max_drawdown_pct = ?,
				ft_total_trades = ?,
				profit_degradation = ?,
				ft_rank = ?
			WHERE study_id = ? AND trial_number = ?
		`, r.ForwardMetrics.NetProfitPct, r.ForwardMetrics.MaxDrawdownPct, r.ForwardMetrics.TotalTrades,
			r.ProfitDegradation, rankOf[r.TrialNumber], studyID, r.TrialNumber)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SaveDSRResults writes each candidate's deflated Sharpe probability back
// onto its trials row, ranked highest-probability first.
func SaveDSRResults(db *DB, studyID string, results []postprocess.DSRResult) error {
	tx, err := db.sql.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ranked := postprocess.RankByDSR(results)
	rankOf := map[int]int{}
	for i, r := range ranked {
		rankOf[r.TrialNumber] = i + 1
	}

	for _, r := range results {
		_, err := tx.Exec(`
			UPDATE trials SET dsr_probability = ?, dsr_rank = ?
			WHERE study_id = ? AND trial_number = ?
		`, r.DeflatedSharpe, rankOf[r.TrialNumber], studyID, r.TrialNumber)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SaveStressTestResults writes each candidate's perturbation failure rate
// and pass/fail status back onto its trials row.
func SaveStressTestResults(db *DB, studyID string, results []postprocess.StressTestResult) error {
	tx, err := db.sql.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, r := range results {
		_, err := tx.Exec(`
			UPDATE trials SET st_status = ?, st_failure_rate = ?
			WHERE study_id = ? AND trial_number = ?
		`, string(r.Status), r.CombinedFailureRate, studyID, r.TrialNumber)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SaveOOSResults writes each survivor's out-of-sample confirmation status
// back onto its trials row. A survivor that produced at least one trade is
// recorded "confirmed"; otherwise "no_trades".
func SaveOOSResults(db *DB, studyID string, results []postprocess.OOSResult) error {
	tx, err := db.sql.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, r := range results {
		status := "confirmed"
		if r.Metrics.TotalTrades == 0 {
			status = "no_trades"
		}
		_, err := tx.Exec(`
			UPDATE trials SET oos_status = ?
			WHERE study_id = ? AND trial_number = ?
		`, status, studyID, r.TrialNumber)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}
