package http

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/viaticos/internal/domain/entity"
	"github.com/garyjia/viaticos/internal/domain/perdiem"
	"github.com/garyjia/viaticos/internal/domain/valueobject"
	"github.com/garyjia/viaticos/internal/domain/workflow"
)

// MealOptionBody toggles one meal for a number of days
type MealOptionBody struct {
	Applies bool `json:"applies"`
	Days    int  `json:"dias" binding:"gte=0"`
}

// MealsBody is the meals part of the options form
type MealsBody struct {
	Breakfast *MealOptionBody `json:"breakfast"`
	Lunch     *MealOptionBody `json:"lunch"`
	Dinner    *MealOptionBody `json:"dinner"`
}

// LodgingBody is the hospedaje part of the options form
type LodgingBody struct {
	Applies bool   `json:"aplica"`
	Tier    string `json:"categoria"`
	Nights  int    `json:"noches" binding:"gte=0"`
}

// TollBody selects one caseta and its directions
type TollBody struct {
	StationID string `json:"caseta_id" binding:"required"`
	Outbound  bool   `json:"ida"`
	Return    bool   `json:"regreso"`
}

// AllowancesBody holds the free-form amounts (libres)
type AllowancesBody struct {
	Fuel            decimal.Decimal `json:"gasolina"`
	GroundTransport decimal.Decimal `json:"transporte"`
	Contingency     decimal.Decimal `json:"imprevistos"`
}

// OptionsBody is the traveler's per-diem selection; absent sections are skipped
type OptionsBody struct {
	Meals      *MealsBody      `json:"meals"`
	Lodging    *LodgingBody    `json:"hospedaje"`
	Tolls      []TollBody      `json:"casetas" binding:"dive"`
	Allowances *AllowancesBody `json:"libres"`
}

func (b *MealOptionBody) option() perdiem.MealOption {
	if b == nil {
		return perdiem.MealOption{}
	}
	return perdiem.MealOption{Applies: b.Applies, Days: b.Days}
}

// toOptions converts the form into domain sections in generation order
func (o OptionsBody) toOptions() perdiem.Options {
	var opts perdiem.Options
	if o.Meals != nil {
		opts.Sections = append(opts.Sections, perdiem.MealsSection{
			Breakfast: o.Meals.Breakfast.option(),
			Lunch:     o.Meals.Lunch.option(),
			Dinner:    o.Meals.Dinner.option(),
		})
	}
	if o.Lodging != nil {
		opts.Sections = append(opts.Sections, perdiem.LodgingSection{
			Applies: o.Lodging.Applies,
			Tier:    o.Lodging.Tier,
			Nights:  o.Lodging.Nights,
		})
	}
	if len(o.Tolls) > 0 {
		stations := make([]perdiem.TollSelection, len(o.Tolls))
		for i, t := range o.Tolls {
			stations[i] = perdiem.TollSelection{StationID: t.StationID, Outbound: t.Outbound, Return: t.Return}
		}
		opts.Sections = append(opts.Sections, perdiem.TollsSection{Stations: stations})
	}
	if o.Allowances != nil {
		opts.Sections = append(opts.Sections, perdiem.AllowancesSection{
			Fuel:            o.Allowances.Fuel,
			GroundTransport: o.Allowances.GroundTransport,
			Contingency:     o.Allowances.Contingency,
		})
	}
	return opts
}

// CreateRequestBody is the payload of POST /api/v1/requests
type CreateRequestBody struct {
	RequesterID       string      `json:"requester_id" binding:"required"`
	ApproverID        string      `json:"approver_id" binding:"required"`
	OriginCityID      string      `json:"origin_city_id"`
	DestinationCityID string      `json:"destination_city_id"`
	DepartureAt       time.Time   `json:"departure_at" binding:"required"`
	ReturnAt          time.Time   `json:"return_at" binding:"required"`
	Currency          string      `json:"currency" binding:"omitempty,len=3"`
	PurposeNote       string      `json:"purpose_note" binding:"max=500"`
	Options           OptionsBody `json:"options"`
}

func (b CreateRequestBody) header() entity.Header {
	return entity.Header{
		RequesterID:       b.RequesterID,
		ApproverID:        b.ApproverID,
		OriginCityID:      b.OriginCityID,
		DestinationCityID: b.DestinationCityID,
		DepartureAt:       b.DepartureAt,
		ReturnAt:          b.ReturnAt,
		Currency:          valueobject.Currency(b.Currency),
		PurposeNote:       b.PurposeNote,
	}
}

// UpdateHeaderBody is the payload of PATCH /api/v1/requests/:id
type UpdateHeaderBody struct {
	ApproverID        *string    `json:"approver_id"`
	OriginCityID      *string    `json:"origin_city_id"`
	DestinationCityID *string    `json:"destination_city_id"`
	DepartureAt       *time.Time `json:"departure_at"`
	ReturnAt          *time.Time `json:"return_at"`
	PurposeNote       *string    `json:"purpose_note" binding:"omitempty,max=500"`
	ExpectedVersion   int        `json:"expected_version" binding:"required,min=1"`
}

func (b UpdateHeaderBody) patch() entity.HeaderPatch {
	return entity.HeaderPatch{
		ApproverID:        b.ApproverID,
		OriginCityID:      b.OriginCityID,
		DestinationCityID: b.DestinationCityID,
		DepartureAt:       b.DepartureAt,
		ReturnAt:          b.ReturnAt,
		PurposeNote:       b.PurposeNote,
	}
}

// UpdateItemBody is the payload of PATCH /api/v1/requests/:id/items/:itemId
type UpdateItemBody struct {
	Subtype         *string          `json:"subtype"`
	Date            *time.Time       `json:"date"`
	Quantity        *decimal.Decimal `json:"quantity"`
	UnitAmount      *decimal.Decimal `json:"unit_amount"`
	Note            *string          `json:"note"`
	ExpectedVersion int              `json:"expected_version" binding:"required,min=1"`
}

func (b UpdateItemBody) patch() entity.ItemPatch {
	return entity.ItemPatch{
		Subtype:    b.Subtype,
		Date:       b.Date,
		Quantity:   b.Quantity,
		UnitAmount: b.UnitAmount,
		Note:       b.Note,
	}
}

// VersionBody carries only the expected version (submit, close)
type VersionBody struct {
	ExpectedVersion int `json:"expected_version" binding:"required,min=1"`
}

// DecisionBody is the payload of POST /api/v1/requests/:id/decision
type DecisionBody struct {
	Decision         string           `json:"decision" binding:"required,oneof=approve reject"`
	AuthorizedAmount *decimal.Decimal `json:"authorized_amount"`
	Reason           string           `json:"reason"`
	DecidedBy        string           `json:"decided_by" binding:"required"`
	ExpectedVersion  int              `json:"expected_version" binding:"required,min=1"`
}

// ComprobanteBody is the payload of POST /api/v1/liquidations/:id/comprobantes
type ComprobanteBody struct {
	Type            string          `json:"type" binding:"required"`
	Subtype         string          `json:"subtype"`
	Date            time.Time       `json:"date" binding:"required"`
	Amount          decimal.Decimal `json:"amount"`
	Vendor          string          `json:"vendor"`
	InvoiceNumber   string          `json:"invoice_number"`
	Note            string          `json:"note"`
	ExpectedVersion int             `json:"expected_version" binding:"required,min=1"`
}

func (b ComprobanteBody) input() entity.ComprobanteInput {
	return entity.ComprobanteInput{
		Type:          entity.ItemType(b.Type),
		Subtype:       b.Subtype,
		Date:          b.Date,
		Amount:        b.Amount,
		Vendor:        b.Vendor,
		InvoiceNumber: b.InvoiceNumber,
		Note:          b.Note,
	}
}

// UpdateComprobanteBody is the payload of PATCH .../comprobantes/:cid
type UpdateComprobanteBody struct {
	Type            *string          `json:"type"`
	Subtype         *string          `json:"subtype"`
	Date            *time.Time       `json:"date"`
	Amount          *decimal.Decimal `json:"amount"`
	Vendor          *string          `json:"vendor"`
	InvoiceNumber   *string          `json:"invoice_number"`
	Note            *string          `json:"note"`
	ExpectedVersion int              `json:"expected_version" binding:"required,min=1"`
}

func (b UpdateComprobanteBody) patch() entity.ComprobantePatch {
	p := entity.ComprobantePatch{
		Subtype:       b.Subtype,
		Date:          b.Date,
		Amount:        b.Amount,
		Vendor:        b.Vendor,
		InvoiceNumber: b.InvoiceNumber,
		Note:          b.Note,
	}
	if b.Type != nil {
		t := entity.ItemType(*b.Type)
		p.Type = &t
	}
	return p
}

// ListRequestsQuery holds the query parameters of GET /api/v1/requests
type ListRequestsQuery struct {
	State       string `form:"state"`
	RequesterID string `form:"requester_id"`
	ApproverID  string `form:"approver_id"`
	Limit       int    `form:"limit"`
	Offset      int    `form:"offset"`
}

// RequestResponse is a request snapshot with the actions its state allows
type RequestResponse struct {
	*entity.Request
	AllowedActions []workflow.Trigger   `json:"allowed_actions"`
	History        []*entity.Transition `json:"history,omitempty"`
}

// LiquidationResponse is a liquidation snapshot with the actions its state allows
type LiquidationResponse struct {
	*entity.Liquidation
	Overspent      bool               `json:"overspent"`
	AllowedActions []workflow.Trigger `json:"allowed_actions"`
}

// DecisionResponse carries the decided request and, on approval, its liquidation
type DecisionResponse struct {
	Request     RequestResponse      `json:"request"`
	Liquidation *LiquidationResponse `json:"liquidation,omitempty"`
}

// CloseResponse carries the closed liquidation and its request
type CloseResponse struct {
	Liquidation LiquidationResponse `json:"liquidation"`
	Request     RequestResponse     `json:"request"`
}

// ListResponse is one page of requests
type ListResponse struct {
	Items  []RequestResponse `json:"items"`
	Total  int               `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

func toRequestResponse(req *entity.Request) RequestResponse {
	return RequestResponse{Request: req, AllowedActions: req.AllowedActions()}
}

func toLiquidationResponse(liq *entity.Liquidation) LiquidationResponse {
	return LiquidationResponse{
		Liquidation:    liq,
		Overspent:      liq.IsOverspent(),
		AllowedActions: liq.AllowedActions(),
	}
}
