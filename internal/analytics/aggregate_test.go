package analytics

import (
	"math"
	"testing"
)

func TestAggregateNoValidDataWhenAllCurvesEmpty(t *testing.T) {
	result := Aggregate([]Curve{{StudyID: "a"}, {StudyID: "b"}})
	if len(result.Warnings) == 0 {
		t.Fatal("expected a warning for no valid data")
	}
	if result.Equity != nil {
		t.Fatal("expected nil equity when no curves survive")
	}
}

func TestAggregateNoOverlap(t *testing.T) {
	curves := []Curve{
		{StudyID: "a", Timestamps: []int64{0, 100, 200}, Equity: []float64{100, 110, 120}},
		{StudyID: "b", Timestamps: []int64{300, 400, 500}, Equity: []float64{100, 90, 80}},
	}
	result := Aggregate(curves)
	found := false
	for _, w := range result.Warnings {
		if w == "no overlap" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected 'no overlap' warning, got %v", result.Warnings)
	}
}

func TestAggregateEqualWeightBlend(t *testing.T) {
	curves := []Curve{
		{StudyID: "a", Timestamps: []int64{0, 100, 200}, Equity: []float64{100, 120, 140}},
		{StudyID: "b", Timestamps: []int64{0, 100, 200}, Equity: []float64{200, 180, 160}},
	}
	result := Aggregate(curves)
	if len(result.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", result.Warnings)
	}
	if len(result.StudiesUsed) != 2 {
		t.Fatalf("expected both studies used, got %v", result.StudiesUsed)
	}
	if len(result.Equity) != 3 {
		t.Fatalf("expected 3 grid points, got %d", len(result.Equity))
	}
	if math.Abs(result.Equity[0]-100) > 1e-9 {
		t.Fatalf("expected normalized start of 100, got %f", result.Equity[0])
	}
	// a: 100->120->140 normalized 100,120,140. b: 200->180->160 normalized 100,90,80.
	// equal-weight average: 100, 105, 110.
	if math.Abs(result.Equity[1]-105) > 1e-9 {
		t.Fatalf("expected midpoint average 105, got %f", result.Equity[1])
	}
	if math.Abs(result.Equity[2]-110) > 1e-9 {
		t.Fatalf("expected final average 110, got %f", result.Equity[2])
	}
	if math.Abs(result.ProfitPct-10) > 1e-9 {
		t.Fatalf("expected 10%% aggregate profit, got %f", result.ProfitPct)
	}
}

func TestAggregateRejectsNonPositiveAlignedStart(t *testing.T) {
	curves := []Curve{
		{StudyID: "a", Timestamps: []int64{0, 100}, Equity: []float64{0, 50}},
		{StudyID: "b", Timestamps: []int64{0, 100}, Equity: []float64{100, 110}},
	}
	result := Aggregate(curves)
	if len(result.StudiesUsed) != 1 || result.StudiesUsed[0] != "b" {
		t.Fatalf("expected only study b to survive, got %v", result.StudiesUsed)
	}
	foundWarning := false
	for _, w := range result.Warnings {
		if w == "no valid data for study a" {
			foundWarning = true
		}
	}
	if !foundWarning {
		t.Fatalf("expected warning about study a, got %v", result.Warnings)
	}
}

func TestAggregateSuppressesAnnualizationUnderShortOverlap(t *testing.T) {
	curves := []Curve{
		{StudyID: "a", Timestamps: []int64{0, 10 * secondsPerDay}, Equity: []float64{100, 110}},
		{StudyID: "b", Timestamps: []int64{0, 10 * secondsPerDay}, Equity: []float64{100, 105}},
	}
	result := Aggregate(curves)
	if result.AnnualizedProfitPct != nil {
		t.Fatalf("expected annualized profit suppressed under 30-day overlap, got %v", *result.AnnualizedProfitPct)
	}
}

func TestAggregateAnnualizesOverLongOverlap(t *testing.T) {
	curves := []Curve{
		{StudyID: "a", Timestamps: []int64{0, 60 * secondsPerDay}, Equity: []float64{100, 110}},
		{StudyID: "b", Timestamps: []int64{0, 60 * secondsPerDay}, Equity: []float64{100, 110}},
	}
	result := Aggregate(curves)
	if result.AnnualizedProfitPct == nil {
		t.Fatal("expected annualized profit over 60-day overlap")
	}
}

func TestForwardFillCarriesLastKnownValue(t *testing.T) {
	timestamps := []int64{0, 100, 300}
	values := []float64{1, 2, 3}
	grid := []int64{0, 50, 100, 200, 300}
	out := forwardFill(timestamps, values, grid)
	want := []float64{1, 1, 2, 2, 3}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("forwardFill[%d] = %f, want %f", i, out[i], want[i])
		}
	}
}
