package entity

// ItemType is the category tag shared by line items and comprobantes
type ItemType string

// Item type constants for LineItem and Comprobante
const (
	ItemTypeBreakfast       ItemType = "MEAL_BREAKFAST" // desayuno
	ItemTypeLunch           ItemType = "MEAL_LUNCH"     // comida
	ItemTypeDinner          ItemType = "MEAL_DINNER"    // cena
	ItemTypeLodging         ItemType = "LODGING"        // hospedaje
	ItemTypeTollStation     ItemType = "TOLL_STATION"   // caseta
	ItemTypeFuel            ItemType = "FUEL"           // gasolina
	ItemTypeGroundTransport ItemType = "GROUND_TRANSPORT"
	ItemTypeContingency     ItemType = "CONTINGENCY" // imprevistos
	ItemTypeOther           ItemType = "OTHER"
)

// IsValid checks the type against the closed category set
func (t ItemType) IsValid() bool {
	switch t {
	case ItemTypeBreakfast, ItemTypeLunch, ItemTypeDinner,
		ItemTypeLodging, ItemTypeTollStation, ItemTypeFuel,
		ItemTypeGroundTransport, ItemTypeContingency, ItemTypeOther:
		return true
	}
	return false
}

// IsDayBased reports whether the quantity counts trip days or nights
func (t ItemType) IsDayBased() bool {
	switch t {
	case ItemTypeBreakfast, ItemTypeLunch, ItemTypeDinner, ItemTypeLodging:
		return true
	}
	return false
}

// String returns the string representation of the item type
func (t ItemType) String() string {
	return string(t)
}

// Toll direction subtypes
const (
	TollDirectionOutbound = "ida"
	TollDirectionReturn   = "regreso"
)

// Aggregate names used in errors and events
const (
	AggregateRequest     = "request"
	AggregateLiquidation = "liquidation"
)
