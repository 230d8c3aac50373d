// Package perdiem holds the per-diem rate table and the line item generator
// that turns a traveler's options into a priced budget.
package perdiem

import (
	"strings"

	"github.com/garyjia/viaticos/internal/domain/entity"
	"github.com/garyjia/viaticos/internal/domain/shared"
	"github.com/garyjia/viaticos/internal/domain/valueobject"
)

// MealType identifies one of the three daily meals
type MealType string

const (
	MealBreakfast MealType = "breakfast"
	MealLunch     MealType = "lunch"
	MealDinner    MealType = "dinner"
)

// MealTypes lists meals in generation order
var MealTypes = []MealType{MealBreakfast, MealLunch, MealDinner}

// ItemType maps the meal to its line item category
func (m MealType) ItemType() entity.ItemType {
	switch m {
	case MealBreakfast:
		return entity.ItemTypeBreakfast
	case MealLunch:
		return entity.ItemTypeLunch
	case MealDinner:
		return entity.ItemTypeDinner
	}
	return ""
}

// TollStation is one toll booth (caseta) with its one-way rate
type TollStation struct {
	ID   string            `json:"id"`
	Name string            `json:"name"`
	Rate valueobject.Money `json:"rate"`
}

// RuleSet is the read-only rate table used to price generated items.
// Lodging tiers are keyed lower-case.
type RuleSet struct {
	Currency valueobject.Currency           `json:"currency"`
	Meals    map[MealType]valueobject.Money `json:"meals"`
	Lodging  map[string]valueobject.Money   `json:"lodging"`
	Tolls    []TollStation                  `json:"tolls"`
}

// NormalizeTier folds a lodging tier name to its table key
func NormalizeTier(tier string) string {
	return strings.ToLower(strings.TrimSpace(tier))
}

// Validate checks the table once at startup
func (r *RuleSet) Validate() error {
	if !r.Currency.IsValid() {
		return shared.NewConfigurationError("currency", "invalid currency code %q", r.Currency)
	}

	check := func(key string, rate valueobject.Money) error {
		if rate.Currency() != r.Currency {
			return shared.NewConfigurationError(key, "rate is in %s, table uses %s", rate.Currency(), r.Currency)
		}
		if rate.IsNegative() {
			return shared.NewConfigurationError(key, "rate must not be negative")
		}
		if !rate.HasCurrencyPrecision() {
			return shared.NewConfigurationError(key, "rate has more decimals than %s allows", r.Currency)
		}
		return nil
	}

	for meal, rate := range r.Meals {
		if meal.ItemType() == "" {
			return shared.NewConfigurationError("meals."+string(meal), "unknown meal type")
		}
		if err := check("meals."+string(meal), rate); err != nil {
			return err
		}
	}
	for tier, rate := range r.Lodging {
		if tier != NormalizeTier(tier) || tier == "" {
			return shared.NewConfigurationError("lodging."+tier, "tier keys must be lower-case and non-empty")
		}
		if err := check("lodging."+tier, rate); err != nil {
			return err
		}
	}

	seen := make(map[string]bool, len(r.Tolls))
	for _, station := range r.Tolls {
		key := "tolls." + station.ID
		if strings.TrimSpace(station.ID) == "" {
			return shared.NewConfigurationError("tolls", "station id is required")
		}
		if seen[station.ID] {
			return shared.NewConfigurationError(key, "duplicate station id")
		}
		seen[station.ID] = true
		if err := check(key, station.Rate); err != nil {
			return err
		}
	}
	return nil
}

// MealRate returns the per-day rate of a meal
func (r *RuleSet) MealRate(meal MealType) (valueobject.Money, error) {
	rate, ok := r.Meals[meal]
	if !ok {
		return valueobject.Money{}, shared.NewConfigurationError("meals."+string(meal), "no rate configured")
	}
	return rate, nil
}

// LodgingRate returns the nightly rate of a tier, matched case-insensitively
func (r *RuleSet) LodgingRate(tier string) (valueobject.Money, error) {
	key := NormalizeTier(tier)
	rate, ok := r.Lodging[key]
	if !ok {
		return valueobject.Money{}, shared.NewConfigurationError("lodging."+key, "no rate configured for tier %q", tier)
	}
	return rate, nil
}

// Station looks up a toll station by id
func (r *RuleSet) Station(id string) (TollStation, bool) {
	for _, station := range r.Tolls {
		if station.ID == id {
			return station, true
		}
	}
	return TollStation{}, false
}

// Provider hands out the process-wide rule set
type Provider struct {
	rules *RuleSet
}

// NewProvider validates rules and wraps them for sharing
func NewProvider(rules *RuleSet) (*Provider, error) {
	if rules == nil {
		return nil, shared.NewConfigurationError("perdiem", "rule set is required")
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return &Provider{rules: rules}, nil
}

// Rules returns the shared rule set; callers must not modify it
func (p *Provider) Rules() *RuleSet {
	return p.rules
}
