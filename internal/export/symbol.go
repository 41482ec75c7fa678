// Package export renders backtest, optimization, and walk-forward results
// into the CSV and ZIP artifacts callers download (spec §4.7). CSV uses
// the standard library's encoding/csv and ZIP uses archive/zip — no pack
// dependency offers either, so both stay on the standard library (see
// DESIGN.md).
package export

import (
	"regexp"
	"strings"
)

// filenamePrefixRe matches the exchange/ticker prefix of a TradingView-style
// export filename, e.g. "OKX_LINKUSDT.P, 1H 2024.01.01-2024.06.01.csv"
// captures "OKX" and "LINKUSDT.P".
var filenamePrefixRe = regexp.MustCompile(`^([A-Za-z0-9]+)_([^,]+),`)

// SymbolFromFilename derives the "EXCHANGE:TICKER" display symbol the
// trade CSV header uses from a source CSV's filename. Filenames that
// don't match the expected "EXCHANGE_TICKER, TF ..." pattern fall back to
// the filename's stem unchanged.
func SymbolFromFilename(name string) string {
	base := name
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	m := filenamePrefixRe.FindStringSubmatch(base)
	if m == nil {
		return strings.TrimSuffix(base, ".csv")
	}
	return m[1] + ":" + m[2]
}
