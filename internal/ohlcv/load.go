// Package ohlcv loads and trims OHLCV bar tables from CSV sources.
package ohlcv

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ashgrove-quant/barforge/pkg/types"
)

// requiredPriceColumns are matched case-insensitively.
var requiredPriceColumns = []string{"time", "open", "high", "low", "close"}

// volumeAliases are tried in order; the first present column wins.
var volumeAliases = []string{"volume", "Volume", "vol", "VOL"}

// Loader resolves CSV paths under a configured allow-list of root
// directories (spec §6) and parses them into OHLCVTable.
type Loader struct {
	allowedRoots []string
}

// NewLoader builds a Loader restricted to the given allowed root
// directories. An empty list means no restriction.
func NewLoader(allowedRoots []string) *Loader {
	resolved := make([]string, 0, len(allowedRoots))
	for _, r := range allowedRoots {
		if abs, err := filepath.Abs(r); err == nil {
			resolved = append(resolved, abs)
		}
	}
	return &Loader{allowedRoots: resolved}
}

// Resolve validates that path lies under one of the loader's allowed roots
// and returns its absolute form.
func (l *Loader) Resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve csv path: %w", err)
	}
	if len(l.allowedRoots) == 0 {
		return abs, nil
	}
	for _, root := range l.allowedRoots {
		if abs == root || strings.HasPrefix(abs, root+string(filepath.Separator)) {
			return abs, nil
		}
	}
	return "", fmt.Errorf("csv path %q is outside allowed roots", path)
}

// Load reads, validates, normalizes, sorts, and deduplicates a CSV OHLCV
// file into an OHLCVTable.
func (l *Loader) Load(path string) (types.OHLCVTable, error) {
	resolved, err := l.Resolve(path)
	if err != nil {
		return types.OHLCVTable{}, err
	}
	f, err := os.Open(resolved)
	if err != nil {
		return types.OHLCVTable{}, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads and validates an OHLCV CSV from an arbitrary reader,
// normalizing column casing, sorting ascending by time, and keeping the
// later value on duplicate timestamps (spec §3).
func Parse(r io.Reader) (types.OHLCVTable, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return types.OHLCVTable{}, fmt.Errorf("read csv header: %w", err)
	}

	colIdx := make(map[string]int, len(header))
	for i, h := range header {
		colIdx[strings.ToLower(strings.TrimSpace(h))] = i
	}

	for _, col := range requiredPriceColumns {
		if _, ok := colIdx[col]; !ok {
			return types.OHLCVTable{}, fmt.Errorf("csv missing required column %q", col)
		}
	}

	volIdx := -1
	for _, alias := range volumeAliases {
		if idx, ok := colIdx[strings.ToLower(alias)]; ok {
			volIdx = idx
			break
		}
	}
	if volIdx == -1 {
		return types.OHLCVTable{}, fmt.Errorf("csv missing a volume column")
	}

	byTime := make(map[int64]types.Bar)
	order := make([]int64, 0, 1024)

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return types.OHLCVTable{}, fmt.Errorf("read csv row: %w", err)
		}

		ts, err := strconv.ParseInt(strings.TrimSpace(row[colIdx["time"]]), 10, 64)
		if err != nil {
			return types.OHLCVTable{}, fmt.Errorf("parse time column: %w", err)
		}
		open, err := strconv.ParseFloat(strings.TrimSpace(row[colIdx["open"]]), 64)
		if err != nil {
			return types.OHLCVTable{}, fmt.Errorf("parse open column: %w", err)
		}
		high, err := strconv.ParseFloat(strings.TrimSpace(row[colIdx["high"]]), 64)
		if err != nil {
			return types.OHLCVTable{}, fmt.Errorf("parse high column: %w", err)
		}
		low, err := strconv.ParseFloat(strings.TrimSpace(row[colIdx["low"]]), 64)
		if err != nil {
			return types.OHLCVTable{}, fmt.Errorf("parse low column: %w", err)
		}
		closeV, err := strconv.ParseFloat(strings.TrimSpace(row[colIdx["close"]]), 64)
		if err != nil {
			return types.OHLCVTable{}, fmt.Errorf("parse close column: %w", err)
		}
		vol, err := strconv.ParseFloat(strings.TrimSpace(row[volIdx]), 64)
		if err != nil {
			return types.OHLCVTable{}, fmt.Errorf("parse volume column: %w", err)
		}

		if _, seen := byTime[ts]; !seen {
			order = append(order, ts)
		}
		byTime[ts] = types.Bar{Time: ts, Open: open, High: high, Low: low, Close: closeV, Volume: vol}
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	bars := make([]types.Bar, len(order))
	for i, ts := range order {
		bars[i] = byTime[ts]
	}

	return types.NewOHLCVTable(bars), nil
}

// SymbolFromFilename derives the "EXCHANGE:TICKER" symbol from a CSV
// filename of the pattern "EXCHANGE_TICKER, TF ...csv" (spec §4.7 export
// requirement).
func SymbolFromFilename(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	head := base
	if idx := strings.Index(base, ","); idx >= 0 {
		head = base[:idx]
	}
	head = strings.TrimSpace(head)
	if idx := strings.Index(head, "_"); idx >= 0 {
		return head[:idx] + ":" + head[idx+1:]
	}
	return head
}
