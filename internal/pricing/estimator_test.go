package pricing

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

const epsilon = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

func TestEstimateEndToEnd(t *testing.T) {
	est := NewEstimator(DefaultBrandTable())

	got, err := est.Estimate(Attributes{BasePrice: 500000, Mileage: 20000, Age: 3, Brand: "Tata"}, 0.2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !almostEqual(got.AgePenalty, 0.3) {
		t.Errorf("age penalty: got %v want 0.3", got.AgePenalty)
	}
	if !almostEqual(got.MileagePenalty, 0.2) {
		t.Errorf("mileage penalty: got %v want 0.2", got.MileagePenalty)
	}
	if !almostEqual(got.DamagePenalty, 0.16) {
		t.Errorf("damage penalty: got %v want 0.16", got.DamagePenalty)
	}
	if !almostEqual(got.TotalPenalty, 0.3) {
		t.Errorf("total penalty: got %v want 0.3", got.TotalPenalty)
	}
	if got.BrandFactor != 0.95 {
		t.Errorf("brand factor: got %v want 0.95", got.BrandFactor)
	}
	if got.Price != 3.33 {
		t.Fatalf("price: got %v want 3.33", got.Price)
	}
}

func TestAgePenaltyCapped(t *testing.T) {
	for _, age := range []int{7, 8, 10, 25, 50, 1000} {
		if got := AgePenalty(age); got != MaxAgePenalty {
			t.Errorf("age %d: got %v want %v", age, got, MaxAgePenalty)
		}
	}
	if got := AgePenalty(2); !almostEqual(got, 0.2) {
		t.Errorf("age 2: got %v want 0.2", got)
	}
}

func TestMileagePenaltyCapped(t *testing.T) {
	for _, mileage := range []int{60000, 100000, 150000, 500000, 10000000} {
		if got := MileagePenalty(mileage); got != MaxMileagePenalty {
			t.Errorf("mileage %d: got %v want %v", mileage, got, MaxMileagePenalty)
		}
	}
	if got := MileagePenalty(25000); !almostEqual(got, 0.25) {
		t.Errorf("mileage 25000: got %v want 0.25", got)
	}
}

func TestDamagePenaltyMonotonic(t *testing.T) {
	prev := -1.0
	for i := 0; i <= 100; i++ {
		damage := float64(i) / 100
		got := DamagePenalty(damage)
		if !almostEqual(got, damage*0.8) {
			t.Fatalf("damage %v: got %v want %v", damage, got, damage*0.8)
		}
		if got < prev {
			t.Fatalf("damage penalty decreased at %v: %v < %v", damage, got, prev)
		}
		prev = got
	}
	if got := DamagePenalty(1); got >= 1 {
		t.Fatalf("full damage must not reach a 100%% penalty, got %v", got)
	}
}

func TestTotalPenaltyIsMaxNotSum(t *testing.T) {
	est := NewEstimator(DefaultBrandTable())

	tests := []struct {
		name    string
		attrs   Attributes
		damage  float64
		penalty float64
	}{
		{"age dominates", Attributes{BasePrice: 1000000, Age: 10}, 0, 0.7},
		{"age dominates over smaller factors", Attributes{BasePrice: 1000000, Age: 10, Mileage: 50000}, 0.5, 0.7},
		{"mileage dominates", Attributes{BasePrice: 1000000, Age: 1, Mileage: 45000}, 0.1, 0.45},
		{"damage dominates", Attributes{BasePrice: 1000000, Age: 2, Mileage: 10000}, 0.9, 0.72},
		{"nothing applies", Attributes{BasePrice: 1000000}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := est.Estimate(tt.attrs, tt.damage)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !almostEqual(got.TotalPenalty, tt.penalty) {
				t.Fatalf("total penalty: got %v want %v", got.TotalPenalty, tt.penalty)
			}
		})
	}

	got, err := est.Estimate(Attributes{BasePrice: 1000000, Age: 10}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Price != 3 {
		t.Fatalf("price: got %v want 3", got.Price)
	}
}

func TestEstimateFloorsAtMinimum(t *testing.T) {
	est := NewEstimator(DefaultBrandTable())

	got, err := est.Estimate(Attributes{BasePrice: 100000, Mileage: 500000, Age: 50, Brand: "kia"}, 1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !almostEqual(got.TotalPenalty, 0.8) {
		t.Errorf("total penalty: got %v want 0.8", got.TotalPenalty)
	}
	if got.Price != MinPrice {
		t.Fatalf("price: got %v want %v", got.Price, MinPrice)
	}

	zero, err := est.Estimate(Attributes{BasePrice: 0, Brand: "toyota"}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if zero.Price != MinPrice {
		t.Fatalf("zero base price: got %v want %v", zero.Price, MinPrice)
	}
}

func TestBrandLookupCaseInsensitive(t *testing.T) {
	table := DefaultBrandTable()

	for _, brand := range []string{"MARUTI", "Maruti", "maruti", "mArUtI"} {
		if got := table.Factor(brand); got != 1.1 {
			t.Errorf("brand %q: got %v want 1.1", brand, got)
		}
	}
	for _, brand := range []string{"foo", "", "maruti suzuki", " maruti"} {
		if got := table.Factor(brand); got != 1.0 {
			t.Errorf("brand %q: got %v want default 1.0", brand, got)
		}
	}
	if table.Known("foo") || !table.Known("Kia") || table.Known("DEFAULT") {
		t.Fatal("unexpected Known result")
	}
}

func TestEstimateRejectsInvalidAttributes(t *testing.T) {
	est := NewEstimator(DefaultBrandTable())

	tests := []struct {
		name   string
		attrs  Attributes
		damage float64
		field  string
	}{
		{"negative base price", Attributes{BasePrice: -1}, 0, "base_price"},
		{"nan base price", Attributes{BasePrice: math.NaN()}, 0, "base_price"},
		{"infinite base price", Attributes{BasePrice: math.Inf(1)}, 0, "base_price"},
		{"negative mileage", Attributes{BasePrice: 1, Mileage: -5}, 0, "mileage"},
		{"negative age", Attributes{BasePrice: 1, Age: -1}, 0, "age"},
		{"damage above one", Attributes{BasePrice: 1}, 1.5, "damage"},
		{"negative damage", Attributes{BasePrice: 1}, -0.1, "damage"},
		{"nan damage", Attributes{BasePrice: 1}, math.NaN(), "damage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := est.Estimate(tt.attrs, tt.damage)
			var attrErr *InvalidAttributeError
			if !errors.As(err, &attrErr) {
				t.Fatalf("expected InvalidAttributeError, got %v", err)
			}
			if attrErr.Field != tt.field {
				t.Fatalf("field: got %s want %s", attrErr.Field, tt.field)
			}
		})
	}
}

func TestInjectedBrandTable(t *testing.T) {
	table, err := NewBrandTable(map[string]float64{"Tesla": 1.2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	est := NewEstimator(table)

	got, err := est.Estimate(Attributes{BasePrice: 1000000, Brand: "TESLA"}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Price != 12 {
		t.Fatalf("price: got %v want 12", got.Price)
	}
	if f := table.Factor("maruti"); f != 1.0 {
		t.Fatalf("unlisted brand should use default, got %v", f)
	}
	if brands := table.Brands(); len(brands) != 1 || brands[0] != "tesla" {
		t.Fatalf("unexpected brands: %v", brands)
	}
}

func TestNewBrandTableRejectsBadFactors(t *testing.T) {
	for _, factors := range []map[string]float64{
		{"kia": 0},
		{"kia": -1},
		{"kia": math.Inf(1)},
		{"  ": 1.1},
	} {
		if _, err := NewBrandTable(factors); err == nil {
			t.Errorf("expected error for %v", factors)
		}
	}
}

func TestLoadBrandTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "brands.json")
	if err := os.WriteFile(path, []byte(`{"Skoda": 0.9, "default": 0.95}`), 0o600); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	table, err := LoadBrandTable(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := table.Factor("skoda"); got != 0.9 {
		t.Fatalf("skoda: got %v want 0.9", got)
	}
	if got := table.Factor("unknown"); got != 0.95 {
		t.Fatalf("default: got %v want 0.95", got)
	}

	if err := os.WriteFile(path, []byte(`not json`), 0o600); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	if _, err := LoadBrandTable(path); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := LoadBrandTable(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("expected read error")
	}
}

func TestInvalidAttributeErrorMessages(t *testing.T) {
	if got, want := NotANumber("mileage", "lots").Error(), `invalid mileage "lots": must be a number`; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	err := &InvalidAttributeError{Field: "age", Value: -2, Reason: "must not be negative"}
	if got, want := err.Error(), "invalid age -2: must not be negative"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
