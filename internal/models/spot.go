package models

import (
	"time"
)

// Spot sources. External rows always carry a non-null ExternalID; the
// unique index on external_id is what makes re-ingestion idempotent.
const (
	SourceLocal    = "local"
	SourceExternal = "external"
)

// ParkingFacility groups provider-owned spots
// DB: parking_facilities
type ParkingFacility struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"column:name;size:255;not null" json:"name"`
	Address    *string   `gorm:"column:address;type:text" json:"address,omitempty"`
	ProviderID *uint     `gorm:"column:provider_id;index:idx_facility_provider" json:"provider_id,omitempty"`
	IsActive   bool      `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"column:created_at;not null;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at;not null;autoUpdateTime" json:"updated_at"`

	// Relations
	Spots []ParkingSpot `gorm:"foreignKey:FacilityID" json:"spots,omitempty"`
}

func (ParkingFacility) TableName() string {
	return "parking_facilities"
}

// ParkingSpot is the authoritative spot record. Rows come either from the
// provider workflow (source=local) or from OSM ingestion (source=external).
// IsActive is the soft-delete flag; this service never deletes rows.
// DB: parking_spots
type ParkingSpot struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"column:name;size:255;not null" json:"name"`
	Latitude     float64   `gorm:"column:latitude;type:decimal(9,6);not null;index:idx_spot_lat" json:"latitude"`
	Longitude    float64   `gorm:"column:longitude;type:decimal(9,6);not null;index:idx_spot_lng" json:"longitude"`
	SpotType     string    `gorm:"column:spot_type;size:20;not null;default:'public'" json:"spot_type"`
	PricePerHour *float64  `gorm:"column:price_per_hour;type:decimal(6,2)" json:"price_per_hour,omitempty"`
	Source       string    `gorm:"column:source;size:20;not null;default:'local';index:idx_spot_source" json:"source"`
	ExternalID   *string   `gorm:"column:external_id;size:100;uniqueIndex:parking_spots_external_id_key" json:"external_id,omitempty"`
	IsAvailable  bool      `gorm:"column:is_available;not null;default:true;index:idx_spot_available" json:"is_available"`
	IsActive     bool      `gorm:"column:is_active;not null;default:true;index:idx_spot_active" json:"is_active"`
	FacilityID   *uint     `gorm:"column:facility_id;index:idx_spot_facility" json:"facility_id,omitempty"`
	ProviderID   *uint     `gorm:"column:provider_id;index:idx_spot_provider" json:"provider_id,omitempty"`
	CreatedAt    time.Time `gorm:"column:created_at;not null;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at;not null;autoUpdateTime" json:"updated_at"`

	// Relations
	Facility *ParkingFacility `gorm:"foreignKey:FacilityID" json:"facility,omitempty"`
}

func (ParkingSpot) TableName() string {
	return "parking_spots"
}
