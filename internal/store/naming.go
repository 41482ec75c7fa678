package store

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ashgrove-quant/barforge/pkg/types"
)

var strategyNumberRe = regexp.MustCompile(`^s(\d+)_`)
var datePrefixRe = regexp.MustCompile(`\b\d{4}[.\-/]\d{2}[.\-/]\d{2}\b`)

// GenerateStudyName builds the human-readable study name — strategy prefix
// + symbol/timeframe + date range + mode, deduplicated against existing
// names in db with a trailing " (n)" counter.
func GenerateStudyName(db *DB, strategyID, csvFileName string, start, end time.Time, mode types.OptimizationMode) (string, error) {
	prefix := strategyID
	if m := strategyNumberRe.FindStringSubmatch(strategyID); m != nil {
		prefix = fmt.Sprintf("S%02s", m[1])
	} else if len(prefix) >= 3 {
		prefix = strings.ToUpper(prefix[:3])
	} else {
		prefix = strings.ToUpper(prefix)
	}

	tickerTF := extractFilePrefix(csvFileName)
	modeSuffix := "OPT"
	if mode == types.ModeWFA {
		modeSuffix = "WFA"
	}
	baseName := fmt.Sprintf("%s_%s %s-%s_%s", prefix, tickerTF, start.Format("2006.01.02"), end.Format("2006.01.02"), modeSuffix)

	rows, err := db.sql.Query(`SELECT study_name FROM studies WHERE study_name LIKE ?`, baseName+"%")
	if err != nil {
		return "", err
	}
	defer rows.Close()
	existing := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return "", err
		}
		existing[name] = true
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	if !existing[baseName] {
		return baseName, nil
	}
	for counter := 1; ; counter++ {
		candidate := fmt.Sprintf("%s (%d)", baseName, counter)
		if !existing[candidate] {
			return candidate, nil
		}
	}
}

// extractFilePrefix pulls the exchange/ticker prefix from a CSV filename
// like "OKX_LINKUSDT.P, 1H 2024.01.01-2024.06.01.csv", stopping at the
// first embedded date.
func extractFilePrefix(csvFileName string) string {
	name := strings.TrimSuffix(filepath.Base(csvFileName), filepath.Ext(csvFileName))
	if loc := datePrefixRe.FindStringIndex(name); loc != nil {
		trimmed := strings.TrimSpace(name[:loc[0]])
		if trimmed != "" {
			return trimmed
		}
	}
	if name == "" {
		return "dataset"
	}
	return name
}
