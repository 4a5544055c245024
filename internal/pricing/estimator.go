package pricing

import (
	"math"
	"strconv"
)

const (
	AgePenaltyPerYear  = 0.10
	MaxAgePenalty      = 0.7
	MileagePenaltyUnit = 100000.0
	MaxMileagePenalty  = 0.6
	DamagePenaltyScale = 0.8

	// CurrencyDivisor expresses prices in lakh.
	CurrencyDivisor = 100000.0
	MinPrice        = 0.5
)

// Attributes are the caller-supplied vehicle facts.
type Attributes struct {
	BasePrice float64
	Mileage   int
	Age       int
	Brand     string
}

// Estimate is a priced valuation together with the factors that produced it.
type Estimate struct {
	Price          float64 `json:"price"`
	BrandFactor    float64 `json:"brand_factor"`
	AgePenalty     float64 `json:"age_penalty"`
	MileagePenalty float64 `json:"mileage_penalty"`
	DamagePenalty  float64 `json:"damage_penalty"`
	TotalPenalty   float64 `json:"total_penalty"`
}

// Estimator prices vehicles against an injected brand table. It holds no mutable
// state and is safe for concurrent use.
type Estimator struct {
	brands BrandTable
}

func NewEstimator(brands BrandTable) *Estimator {
	return &Estimator{brands: brands}
}

// Brands exposes the table the estimator prices against.
func (e *Estimator) Brands() BrandTable {
	return e.brands
}

// Estimate applies the brand factor and the single worst of the age, mileage and
// damage penalties to the base price. Penalties never add up.
func (e *Estimator) Estimate(attrs Attributes, damage float64) (Estimate, error) {
	if err := validate(attrs, damage); err != nil {
		return Estimate{}, err
	}

	brandFactor := e.brands.Factor(attrs.Brand)
	agePenalty := AgePenalty(attrs.Age)
	mileagePenalty := MileagePenalty(attrs.Mileage)
	damagePenalty := DamagePenalty(damage)
	total := math.Max(agePenalty, math.Max(mileagePenalty, damagePenalty))

	raw := attrs.BasePrice * brandFactor * (1 - total)
	price := math.Max(MinPrice, round2(raw/CurrencyDivisor))

	return Estimate{
		Price:          price,
		BrandFactor:    brandFactor,
		AgePenalty:     agePenalty,
		MileagePenalty: mileagePenalty,
		DamagePenalty:  damagePenalty,
		TotalPenalty:   total,
	}, nil
}

// AgePenalty is linear in years and capped at MaxAgePenalty.
func AgePenalty(age int) float64 {
	return math.Min(float64(age)*AgePenaltyPerYear, MaxAgePenalty)
}

// MileagePenalty is linear in distance and capped at MaxMileagePenalty.
func MileagePenalty(mileage int) float64 {
	return math.Min(float64(mileage)/MileagePenaltyUnit, MaxMileagePenalty)
}

// DamagePenalty scales the damage fraction so full damage never zeroes the price.
func DamagePenalty(damage float64) float64 {
	return damage * DamagePenaltyScale
}

// ValidateAttributes rejects attributes outside the domain of the formula.
func ValidateAttributes(attrs Attributes) error {
	switch {
	case math.IsNaN(attrs.BasePrice) || math.IsInf(attrs.BasePrice, 0):
		return &InvalidAttributeError{Field: "base_price", Value: attrs.BasePrice, Reason: "must be a finite number"}
	case attrs.BasePrice < 0:
		return &InvalidAttributeError{Field: "base_price", Value: attrs.BasePrice, Reason: "must not be negative"}
	case attrs.Mileage < 0:
		return &InvalidAttributeError{Field: "mileage", Value: float64(attrs.Mileage), Reason: "must not be negative"}
	case attrs.Age < 0:
		return &InvalidAttributeError{Field: "age", Value: float64(attrs.Age), Reason: "must not be negative"}
	}
	return nil
}

func validate(attrs Attributes, damage float64) error {
	if err := ValidateAttributes(attrs); err != nil {
		return err
	}
	if math.IsNaN(damage) || damage < 0 || damage > 1 {
		return &InvalidAttributeError{Field: "damage", Value: damage, Reason: "must be within [0, 1]"}
	}
	return nil
}

// round2 rounds to two decimals, half to even on the exact binary value.
func round2(v float64) float64 {
	rounded, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	return rounded
}
