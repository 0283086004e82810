package model

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Power ratings are stored as decimal(10,2).
const PowerOutputScale = 2

// MaxPowerOutput is the largest rating the power column holds.
var MaxPowerOutput = decimal.RequireFromString("99999999.99")

func init() {
	// Power ratings are numbers on the wire, including cached rows.
	decimal.MarshalJSONWithoutQuotes = true
}

// ChargerStatus is the operational state of a charging station.
type ChargerStatus string

const (
	ChargerActive   ChargerStatus = "active"
	ChargerInactive ChargerStatus = "inactive"
)

// Valid reports whether s is a recognised status.
func (s ChargerStatus) Valid() bool {
	return s == ChargerActive || s == ChargerInactive
}

// Value implements driver.Valuer.
func (s ChargerStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("unknown charger status %q", string(s))
	}
	return string(s), nil
}

// Scan implements sql.Scanner.
func (s *ChargerStatus) Scan(src interface{}) error {
	var v string
	switch t := src.(type) {
	case string:
		v = t
	case []byte:
		v = string(t)
	default:
		return fmt.Errorf("scan charger status: unsupported type %T", src)
	}
	if !ChargerStatus(v).Valid() {
		return fmt.Errorf("unknown charger status %q", v)
	}
	*s = ChargerStatus(v)
	return nil
}

// Charger is an EV charging station owned by a user.
//
// OwnerID becomes NULL when the owning user is deleted; such chargers are
// only reachable by admins.
type Charger struct {
	ID            uuid.UUID       `json:"id" gorm:"type:char(36);primaryKey"`
	Name          string          `json:"name" gorm:"size:255;not null"`
	Latitude      float64         `json:"latitude" gorm:"not null;index:idx_chargers_location,priority:1"`
	Longitude     float64         `json:"longitude" gorm:"not null;index:idx_chargers_location,priority:2"`
	Status        ChargerStatus   `json:"status" gorm:"size:16;not null;default:'active'"`
	PowerOutput   decimal.Decimal `json:"powerOutput" gorm:"type:decimal(10,2);not null"`
	ConnectorType string          `json:"connectorType" gorm:"size:255;not null"`
	OwnerID       *uuid.UUID      `json:"ownerId" gorm:"type:char(36);index"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`

	Owner *User `json:"-" gorm:"foreignKey:OwnerID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;"`
}

// BeforeCreate sets UUID and default status before creating the record.
func (c *Charger) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = ChargerActive
	}
	return nil
}

// ResourceOwner returns the owning user id, if the charger still has one.
func (c *Charger) ResourceOwner() (uuid.UUID, bool) {
	if c.OwnerID == nil {
		return uuid.Nil, false
	}
	return *c.OwnerID, true
}
