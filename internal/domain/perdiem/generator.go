package perdiem

import (
	"fmt"
	"sort"
	"strings"

	"github.com/garyjia/viaticos/internal/domain/entity"
	"github.com/garyjia/viaticos/internal/domain/shared"
	"github.com/garyjia/viaticos/internal/domain/valueobject"
	"github.com/shopspring/decimal"
)

// Generate prices the options against the rule set. Output order is meals
// (breakfast, lunch, dinner), lodging, tolls in table order, then allowances,
// independent of the order sections were given in.
func Generate(rules *RuleSet, opts Options, tripLengthDays int) ([]entity.LineItem, error) {
	if rules == nil {
		return nil, shared.NewConfigurationError("perdiem", "rule set is required")
	}
	if tripLengthDays < 1 {
		return nil, shared.NewValidationError("trip_length_days", "must be at least 1, got %d", tripLengthDays)
	}

	sections, err := orderSections(opts.Sections)
	if err != nil {
		return nil, err
	}

	g := &generator{rules: rules, tripLength: tripLengthDays}
	for _, section := range sections {
		switch s := section.(type) {
		case MealsSection:
			err = g.meals(s)
		case LodgingSection:
			err = g.lodging(s)
		case TollsSection:
			err = g.tolls(s)
		case AllowancesSection:
			err = g.allowances(s)
		default:
			err = shared.NewValidationError("options", "unsupported section %T", section)
		}
		if err != nil {
			return nil, err
		}
	}
	return g.items, nil
}

// Total sums computed amounts of generated items
func Total(currency valueobject.Currency, items []entity.LineItem) (valueobject.Money, error) {
	amounts := make([]valueobject.Money, len(items))
	for i, item := range items {
		amounts[i] = item.ComputedAmount
	}
	return valueobject.Sum(currency, amounts...)
}

func orderSections(in []Section) ([]Section, error) {
	seen := make(map[SectionKind]bool, len(in))
	out := make([]Section, 0, len(in))
	for _, s := range in {
		if s == nil {
			return nil, shared.NewValidationError("options", "empty section")
		}
		if seen[s.Kind()] {
			return nil, shared.NewValidationError("options."+s.Kind().String(), "section given more than once")
		}
		seen[s.Kind()] = true
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Kind() < out[j].Kind() })
	return out, nil
}

type generator struct {
	rules      *RuleSet
	tripLength int
	items      []entity.LineItem
}

func (g *generator) emit(itemType entity.ItemType, subtype, note string, quantity decimal.Decimal, unit valueobject.Money) error {
	item, err := entity.NewLineItem(itemType, subtype, nil, quantity, unit)
	if err != nil {
		return err
	}
	item.Note = note
	g.items = append(g.items, item)
	return nil
}

func (g *generator) meals(s MealsSection) error {
	for _, meal := range MealTypes {
		opt := s.Option(meal)
		if !opt.Applies {
			continue
		}
		field := "meals." + string(meal) + ".days"
		if opt.Days < 1 {
			return shared.NewValidationError(field, "must be at least 1")
		}
		if opt.Days > g.tripLength {
			return shared.NewValidationError(field, "%d exceeds trip length of %d days", opt.Days, g.tripLength)
		}

		rate, err := g.rules.MealRate(meal)
		if err != nil {
			return err
		}
		if err := g.emit(meal.ItemType(), "", "", decimal.NewFromInt(int64(opt.Days)), rate); err != nil {
			return err
		}
	}
	return nil
}

func (g *generator) lodging(s LodgingSection) error {
	if !s.Applies {
		return nil
	}
	tier := strings.TrimSpace(s.Tier)
	if tier == "" {
		return shared.NewValidationError("lodging.tier", "is required")
	}
	if s.Nights < 1 {
		return shared.NewValidationError("lodging.nights", "must be at least 1")
	}
	if s.Nights > g.tripLength {
		return shared.NewValidationError("lodging.nights", "%d exceeds trip length of %d days", s.Nights, g.tripLength)
	}

	rate, err := g.rules.LodgingRate(tier)
	if err != nil {
		return err
	}
	return g.emit(entity.ItemTypeLodging, tier, "", decimal.NewFromInt(int64(s.Nights)), rate)
}

func (g *generator) tolls(s TollsSection) error {
	selected := make(map[string]TollSelection, len(s.Stations))
	for i, sel := range s.Stations {
		if _, dup := selected[sel.StationID]; dup {
			return shared.NewValidationError(fmt.Sprintf("tolls[%d].station_id", i), "station %q selected twice", sel.StationID)
		}
		if _, ok := g.rules.Station(sel.StationID); !ok {
			return shared.NewValidationError(fmt.Sprintf("tolls[%d].station_id", i), "unknown toll station %q", sel.StationID)
		}
		selected[sel.StationID] = sel
	}

	one := decimal.NewFromInt(1)
	for _, station := range g.rules.Tolls {
		sel, ok := selected[station.ID]
		if !ok {
			continue
		}
		if sel.Outbound {
			if err := g.emit(entity.ItemTypeTollStation, entity.TollDirectionOutbound, station.Name, one, station.Rate); err != nil {
				return err
			}
		}
		if sel.Return {
			if err := g.emit(entity.ItemTypeTollStation, entity.TollDirectionReturn, station.Name, one, station.Rate); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *generator) allowances(s AllowancesSection) error {
	entries := []struct {
		field    string
		itemType entity.ItemType
		amount   decimal.Decimal
	}{
		{"allowances.fuel", entity.ItemTypeFuel, s.Fuel},
		{"allowances.ground_transport", entity.ItemTypeGroundTransport, s.GroundTransport},
		{"allowances.contingency", entity.ItemTypeContingency, s.Contingency},
	}

	for _, e := range entries {
		if e.amount.IsNegative() {
			return shared.NewValidationError(e.field, "must not be negative")
		}
		if e.amount.IsZero() {
			continue
		}
		unit, err := valueobject.NewMoney(e.amount, g.rules.Currency)
		if err != nil {
			return shared.NewValidationError(e.field, "%v", err)
		}
		if !unit.HasCurrencyPrecision() {
			return shared.NewValidationError(e.field, "has more decimals than %s allows", g.rules.Currency)
		}
		if err := g.emit(e.itemType, "", "", decimal.NewFromInt(1), unit); err != nil {
			return err
		}
	}
	return nil
}
