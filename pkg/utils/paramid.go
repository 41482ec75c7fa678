package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/ashgrove-quant/barforge/pkg/types"
)

// GenerateParamID builds a WFA window's param identity: a human-readable
// label plus an 8-hex-char hash of the sorted param map, stable across
// windows and re-runs given identical params (sha256 rather than
// crypto/rand, since the hash must be a pure function of the params, not
// fresh randomness).
func GenerateParamID(label string, params types.Params) types.ParamID {
	return types.ParamID{Label: label, Hash: ParamHash(params)}
}

// ParamHash returns the 8-hex-char prefix of the sha256 digest of params,
// serialized as "name=value" pairs sorted by name so the hash is
// independent of map iteration order.
func ParamHash(params types.Params) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "%s=%v;", name, params[name])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:8]
}
