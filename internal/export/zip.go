package export

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"time"

	"github.com/ashgrove-quant/barforge/pkg/types"
)

// Summary is the metrics payload serialized into summary.json alongside
// trades.csv in the ZIP bundle.
type Summary struct {
	Basic        types.BasicMetrics
	Advanced     types.AdvancedMetrics
	GeneratedAt  time.Time
	CSVFileName  string
}

// WriteBundle writes the spec's ZIP bundle — trades.csv plus
// summary.json (metrics + generation timestamp) — to w.
func WriteBundle(w io.Writer, csvFileName string, result types.StrategyResult) error {
	zw := zip.NewWriter(w)

	tradesFile, err := zw.Create("trades.csv")
	if err != nil {
		return err
	}
	if err := WriteTrades(tradesFile, csvFileName, result); err != nil {
		zw.Close()
		return err
	}

	summaryFile, err := zw.Create("summary.json")
	if err != nil {
		return err
	}
	summary := Summary{
		Basic:       result.Basic,
		Advanced:    result.Advanced,
		GeneratedAt: time.Now().UTC(),
		CSVFileName: csvFileName,
	}
	enc := json.NewEncoder(summaryFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		zw.Close()
		return err
	}

	return zw.Close()
}

// BuildBundle is a convenience wrapper returning the ZIP bytes directly,
// for callers that need an in-memory payload rather than a stream.
func BuildBundle(csvFileName string, result types.StrategyResult) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteBundle(&buf, csvFileName, result); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
