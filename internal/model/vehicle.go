package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a vehicle on the lot.
// Sold is terminal — no operation transitions out of it.
type Status string

const (
	StatusAvailable Status = "Available"
	StatusInProcess Status = "In Process"
	StatusHold      Status = "Hold"
	StatusSold      Status = "Sold"
)

// ValidInitial reports whether s is an admissible status for a new or
// still-unsold record (anything but Sold).
func (s Status) ValidInitial() bool {
	switch s {
	case StatusAvailable, StatusInProcess, StatusHold:
		return true
	}
	return false
}

// Vehicle is the central inventory record. The VIN is the business key:
// unique across all records, immutable after creation. Cost, Price and
// MarketValue are derived by the pricing engine on every write and are
// never accepted directly from callers.
type Vehicle struct {
	ID  uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	VIN string    `gorm:"uniqueIndex;not null;size:17" json:"vin"`

	Make           string `gorm:"index;not null" json:"make"`
	Model          string `gorm:"not null" json:"model"`
	ModelYear      int    `json:"model_year"`
	Mileage        int    `json:"mileage"`
	TitleState     string `json:"title_state"`
	CallingContact string `json:"calling_contact"`
	Remark         string `json:"remark"`

	VehicleCost decimal.Decimal `gorm:"type:decimal(12,2)" json:"vehicle_cost"`
	PartsCost   decimal.Decimal `gorm:"type:decimal(12,2)" json:"parts_cost"`
	LabourCost  decimal.Decimal `gorm:"type:decimal(12,2)" json:"labour_cost"`
	MarkupPct   decimal.Decimal `gorm:"type:decimal(6,2)" json:"markup_pct"`

	// Derived on every write.
	Cost        decimal.Decimal `gorm:"type:decimal(12,2)" json:"cost"`
	Price       decimal.Decimal `gorm:"type:decimal(12,2)" json:"price"`
	MarketValue decimal.Decimal `gorm:"type:decimal(12,2)" json:"market_value"`

	Status Status `gorm:"index;not null;default:'Available'" json:"status"`

	// Populated once, by MarkSold.
	SoldPrice *decimal.Decimal `gorm:"type:decimal(12,2)" json:"sold_price,omitempty"`
	SoldDate  *time.Time       `json:"sold_date,omitempty"`
	Profit    *decimal.Decimal `gorm:"type:decimal(12,2)" json:"profit,omitempty"`
	ProfitPct *decimal.Decimal `gorm:"type:decimal(8,2)" json:"profit_pct,omitempty"`
	SaleNotes string           `json:"sale_notes,omitempty"`

	AddedAt   time.Time `json:"added_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Sold reports whether the record has reached its terminal state.
func (v *Vehicle) Sold() bool { return v.Status == StatusSold }

// VehicleSnapshot is one immutable pre-write backup of the full record
// set, used by the relational backend. Never updated or deleted.
type VehicleSnapshot struct {
	ID        uint      `gorm:"primaryKey"`
	Timestamp string    `gorm:"uniqueIndex;not null"`
	Payload   string    `gorm:"type:text;not null"` // JSON-encoded []Vehicle
	CreatedAt time.Time
}
