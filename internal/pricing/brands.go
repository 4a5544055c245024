package pricing

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
)

// DefaultBrand is the table key used when a brand is not listed.
const DefaultBrand = "default"

// BrandTable maps lowercase brand names to resale multipliers.
// A BrandTable is immutable once built; use NewBrandTable or LoadBrandTable.
type BrandTable struct {
	factors map[string]float64
}

var defaultFactors = map[string]float64{
	"maruti":   1.1,
	"hyundai":  1.05,
	"tata":     0.95,
	"mahindra": 0.97,
	"kia":      0.93,
	"honda":    0.98,
	"toyota":   1.08,
	"default":  1.0,
}

// DefaultBrandTable returns the built-in Indian market brand factors.
func DefaultBrandTable() BrandTable {
	table, _ := NewBrandTable(defaultFactors)
	return table
}

// NewBrandTable copies factors into a new table. Keys are lowercased, factors must
// be positive and finite, and a missing default entry is set to 1.0.
func NewBrandTable(factors map[string]float64) (BrandTable, error) {
	copied := make(map[string]float64, len(factors)+1)
	for brand, factor := range factors {
		key := normalizeBrand(brand)
		if strings.TrimSpace(key) == "" {
			return BrandTable{}, fmt.Errorf("brand factor table: empty brand name")
		}
		if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
			return BrandTable{}, fmt.Errorf("brand factor table: factor for %q must be positive, got %v", key, factor)
		}
		copied[key] = factor
	}
	if _, ok := copied[DefaultBrand]; !ok {
		copied[DefaultBrand] = 1.0
	}
	return BrandTable{factors: copied}, nil
}

// LoadBrandTable reads a JSON object of brand → factor from path.
func LoadBrandTable(path string) (BrandTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return BrandTable{}, fmt.Errorf("failed to read brand factors: %w", err)
	}

	var factors map[string]float64
	if err := json.Unmarshal(raw, &factors); err != nil {
		return BrandTable{}, fmt.Errorf("failed to parse brand factors: %w", err)
	}
	return NewBrandTable(factors)
}

// Factor returns the multiplier for brand, matching case-insensitively and
// falling back to the default entry.
func (t BrandTable) Factor(brand string) float64 {
	if factor, ok := t.factors[normalizeBrand(brand)]; ok {
		return factor
	}
	if factor, ok := t.factors[DefaultBrand]; ok {
		return factor
	}
	return 1.0
}

// Known reports whether brand has its own entry.
func (t BrandTable) Known(brand string) bool {
	key := normalizeBrand(brand)
	if key == DefaultBrand {
		return false
	}
	_, ok := t.factors[key]
	return ok
}

// Brands lists the explicitly priced brands, excluding the default entry.
func (t BrandTable) Brands() []string {
	brands := make([]string, 0, len(t.factors))
	for brand := range t.factors {
		if brand != DefaultBrand {
			brands = append(brands, brand)
		}
	}
	sort.Strings(brands)
	return brands
}

func normalizeBrand(brand string) string {
	return strings.ToLower(brand)
}
