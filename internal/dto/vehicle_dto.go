package dto

import (
	"github.com/shopspring/decimal"
)

// ─── Request DTOs ────────────────────────────────────────────────────────────

type CreateVehicleRequest struct {
	Make           string          `json:"make"            validate:"required,max=60"`
	Model          string          `json:"model"           validate:"required,max=60"`
	ModelYear      int             `json:"model_year"`
	VIN            string          `json:"vin"             validate:"required,vin"`
	Mileage        int             `json:"mileage"         validate:"min=0"`
	VehicleCost    decimal.Decimal `json:"vehicle_cost"    validate:"min=0"`
	PartsCost      decimal.Decimal `json:"parts_cost"      validate:"min=0"`
	LabourCost     decimal.Decimal `json:"labour_cost"     validate:"min=0"`
	// nil falls back to the configured default markup.
	MarkupPct      *decimal.Decimal `json:"markup_pct"     validate:"omitempty,min=0"`
	TitleState     string           `json:"title_state"`
	CallingContact string           `json:"calling_contact"`
	Remark         string           `json:"remark"`
	// Initial status; empty means Available. Sold is not admissible here.
	Status string `json:"status" validate:"omitempty,oneof=Available 'In Process' Hold"`
	// MarketValue is a manual override. It arrives as text; an
	// unparsable value degrades to the computed estimate with a warning.
	MarketValue *string `json:"market_value"`
	// LookupMarketValue asks the valuation oracle for an estimate when
	// no manual override is given. nil means yes.
	LookupMarketValue *bool `json:"lookup_market_value"`
}

// UpdateVehicleRequest is a patch: nil fields keep their current value.
// The VIN is immutable and deliberately absent.
type UpdateVehicleRequest struct {
	Make              *string          `json:"make"            validate:"omitempty,min=1,max=60"`
	Model             *string          `json:"model"           validate:"omitempty,min=1,max=60"`
	ModelYear         *int             `json:"model_year"`
	Mileage           *int             `json:"mileage"         validate:"omitempty,min=0"`
	VehicleCost       *decimal.Decimal `json:"vehicle_cost"    validate:"omitempty,min=0"`
	PartsCost         *decimal.Decimal `json:"parts_cost"      validate:"omitempty,min=0"`
	LabourCost        *decimal.Decimal `json:"labour_cost"     validate:"omitempty,min=0"`
	MarkupPct         *decimal.Decimal `json:"markup_pct"      validate:"omitempty,min=0"`
	TitleState        *string          `json:"title_state"`
	CallingContact    *string          `json:"calling_contact"`
	Remark            *string          `json:"remark"`
	Status            *string          `json:"status" validate:"omitempty,oneof=Available 'In Process' Hold"`
	MarketValue       *string          `json:"market_value"`
	LookupMarketValue *bool            `json:"lookup_market_value"`
}

type MarkSoldRequest struct {
	SoldPrice decimal.Decimal `json:"sold_price" validate:"required"`
	// SoldDate is YYYY-MM-DD; empty means today.
	SoldDate  string `json:"sold_date"`
	SaleNotes string `json:"sale_notes"`
}

// ─── Filter ──────────────────────────────────────────────────────────────────

type VehicleFilter struct {
	Make   string `form:"make"`
	Status string `form:"status"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type VehicleResponse struct {
	ID             string          `json:"id"`
	VIN            string          `json:"vin"`
	Make           string          `json:"make"`
	Model          string          `json:"model"`
	ModelYear      int             `json:"model_year"`
	Mileage        int             `json:"mileage"`
	TitleState     string          `json:"title_state"`
	CallingContact string          `json:"calling_contact"`
	Remark         string          `json:"remark"`
	VehicleCost    decimal.Decimal `json:"vehicle_cost"`
	PartsCost      decimal.Decimal `json:"parts_cost"`
	LabourCost     decimal.Decimal `json:"labour_cost"`
	MarkupPct      decimal.Decimal `json:"markup_pct"`
	Cost           decimal.Decimal `json:"cost"`
	Price          decimal.Decimal `json:"price"`
	MarketValue    decimal.Decimal `json:"market_value"`
	Status         string          `json:"status"`

	SoldPrice *decimal.Decimal `json:"sold_price,omitempty"`
	SoldDate  *string          `json:"sold_date,omitempty"`
	Profit    *decimal.Decimal `json:"profit,omitempty"`
	ProfitPct *decimal.Decimal `json:"profit_pct,omitempty"`
	SaleNotes string           `json:"sale_notes,omitempty"`

	AddedAt   string `json:"added_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`

	// Non-fatal signals (e.g. an unparsable market value override that
	// fell back to the computed estimate).
	Warnings []string `json:"warnings,omitempty"`
}

type VehicleListResponse struct {
	Data  []VehicleResponse `json:"data"`
	Total int               `json:"total"`
}

// SoldStatsResponse summarizes the sold inventory.
type SoldStatsResponse struct {
	TotalSold        int             `json:"total_sold"`
	TotalProfit      decimal.Decimal `json:"total_profit"`
	AverageMarkupPct decimal.Decimal `json:"average_markup_pct"`
}
