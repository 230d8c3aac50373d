package perdiem

import "github.com/shopspring/decimal"

// SectionKind orders sections in generated output
type SectionKind int

const (
	KindMeals SectionKind = iota + 1
	KindLodging
	KindTolls
	KindAllowances
)

func (k SectionKind) String() string {
	switch k {
	case KindMeals:
		return "meals"
	case KindLodging:
		return "lodging"
	case KindTolls:
		return "tolls"
	case KindAllowances:
		return "allowances"
	}
	return "unknown"
}

// Section is one independently togglable part of the options form.
// The set is closed: only types in this package implement it.
type Section interface {
	Kind() SectionKind
	sealed()
}

// MealOption toggles one meal for a number of days
type MealOption struct {
	Applies bool
	Days    int
}

// MealsSection covers breakfast, lunch and dinner
type MealsSection struct {
	Breakfast MealOption
	Lunch     MealOption
	Dinner    MealOption
}

func (MealsSection) Kind() SectionKind { return KindMeals }
func (MealsSection) sealed()           {}

// Option returns the toggle for a meal type
func (s MealsSection) Option(meal MealType) MealOption {
	switch meal {
	case MealBreakfast:
		return s.Breakfast
	case MealLunch:
		return s.Lunch
	case MealDinner:
		return s.Dinner
	}
	return MealOption{}
}

// LodgingSection prices a number of nights at one tier
type LodgingSection struct {
	Applies bool
	Tier    string
	Nights  int
}

func (LodgingSection) Kind() SectionKind { return KindLodging }
func (LodgingSection) sealed()           {}

// TollSelection marks the directions used at one station
type TollSelection struct {
	StationID string
	Outbound  bool
	Return    bool
}

// TollsSection lists the stations crossed
type TollsSection struct {
	Stations []TollSelection
}

func (TollsSection) Kind() SectionKind { return KindTolls }
func (TollsSection) sealed()           {}

// AllowancesSection holds free-form amounts in the rule set currency
type AllowancesSection struct {
	Fuel            decimal.Decimal
	GroundTransport decimal.Decimal
	Contingency     decimal.Decimal
}

func (AllowancesSection) Kind() SectionKind { return KindAllowances }
func (AllowancesSection) sealed()           {}

// Options is the traveler's per-diem selection (opciones)
type Options struct {
	Sections []Section
}
