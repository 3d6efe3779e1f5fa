package types

import (
	"time"
)

type Role string

const (
	RoleOwner        Role = "OWNER"
	RoleOrgAdmin     Role = "ORG_ADMIN"
	RoleUnitOperator Role = "UNIT_OPERATOR"
)

// Actor is the authenticated principal extracted from a verified credential.
type Actor struct {
	ID     string `json:"id"`
	Role   Role   `json:"role"`
	OrgID  string `json:"orgID,omitempty"`
	UnitID string `json:"unitID,omitempty"`
}

type Equipment struct {
	ID          string `json:"id"`
	EquipmentID string `json:"equipmentID"`
	Name        string `json:"name,omitempty"`
	UnitID      string `json:"unitID"`
	OrgID       string `json:"orgID"`
	Active      bool   `json:"active"`
}

// TelemetrySample is one timestamped sensor reading. Optional readings are
// pointers so that absent fields can be told apart from zero values.
type TelemetrySample struct {
	EquipmentID string    `json:"equipmentID"`
	Timestamp   time.Time `json:"timestamp"`

	Temperature       *float64 `json:"temperature,omitempty"`
	Vibration         *float64 `json:"vibration,omitempty"`
	EnergyConsumption *float64 `json:"energyConsumption,omitempty"`

	Pressure *float64 `json:"pressure,omitempty"`
	Humidity *float64 `json:"humidity,omitempty"`
	RPM      *float64 `json:"rpm,omitempty"`
	Voltage  *float64 `json:"voltage,omitempty"`
	Current  *float64 `json:"current,omitempty"`
}

const (
	StatusOperational = "OPERATIONAL"
	StatusInUse       = "IN_USE"
	StatusIdle        = "IDLE"
	StatusMaintenance = "MAINTENANCE"
	StatusFaulty      = "FAULTY"
	StatusOffline     = "OFFLINE"
)

// EquipmentStatus is the single mutable row per equipment, upserted with
// merge semantics on every ingested sample.
type EquipmentStatus struct {
	EquipmentID string `json:"equipmentID"`
	Status      string `json:"status"`

	Temperature       *float64 `json:"temperature,omitempty"`
	Vibration         *float64 `json:"vibration,omitempty"`
	EnergyConsumption *float64 `json:"energyConsumption,omitempty"`

	LastUsedAt          time.Time  `json:"lastUsedAt"`
	LastMaintenanceDate *time.Time `json:"lastMaintenanceDate,omitempty"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

const (
	AlertTypeHighTemperature       = "HIGH_TEMPERATURE"
	AlertTypeAbnormalVibration     = "ABNORMAL_VIBRATION"
	AlertTypeHighEnergyConsumption = "HIGH_ENERGY_CONSUMPTION"
)

type Alert struct {
	ID          string     `json:"id"`
	EquipmentID string     `json:"equipmentID"`
	Type        string     `json:"type"`
	Severity    Severity   `json:"severity"`
	Message     string     `json:"message"`
	Resolved    bool       `json:"resolved"`
	ResolvedBy  *string    `json:"resolvedBy,omitempty"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type MaintenanceRecord struct {
	ID          string    `json:"id"`
	EquipmentID string    `json:"equipmentID"`
	Type        string    `json:"type,omitempty"`
	CompletedAt time.Time `json:"completedAt"`
}

// AnalyticsParams holds per-equipment analytics parameter overrides that take
// precedence over live status values when building prediction features.
type AnalyticsParams struct {
	EquipmentID       string   `json:"equipmentID"`
	Temperature       *float64 `json:"temperature,omitempty"`
	Vibration         *float64 `json:"vibration,omitempty"`
	EnergyConsumption *float64 `json:"energyConsumption,omitempty"`
}

// FeatureVector is the fixed-shape numeric input to the maintenance scorer.
type FeatureVector struct {
	Temperature          float64 `json:"temperature"`
	Vibration            float64 `json:"vibration"`
	EnergyConsumption    float64 `json:"energyConsumption"`
	DaysSinceMaintenance int     `json:"daysSinceMaintenance"`
}

type Prediction struct {
	Label              int     `json:"prediction"`
	ProbabilityPercent float64 `json:"probabilityPercent"`
	Status             string  `json:"status"`
}

// EquipmentPrediction is one slot in a batch prediction result.
type EquipmentPrediction struct {
	Equipment            Equipment  `json:"equipment"`
	Prediction           Prediction `json:"prediction"`
	DaysUntilMaintenance int        `json:"daysUntilMaintenance"`
}

// EquipmentStatusItem is the joined equipment+status row returned by the
// realtime overview listing.
type EquipmentStatusItem struct {
	ID          string `json:"id"`
	EquipmentID string `json:"equipmentID"`
	Name        string `json:"name,omitempty"`
	UnitID      string `json:"unitID"`
	OrgID       string `json:"orgID"`

	Status            string   `json:"status"`
	Temperature       *float64 `json:"temperature,omitempty"`
	Vibration         *float64 `json:"vibration,omitempty"`
	EnergyConsumption *float64 `json:"energyConsumption,omitempty"`

	LastUsedAt time.Time `json:"lastUsedAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// StatusUpdateResult is what one ingested sample produced.
type StatusUpdateResult struct {
	Status EquipmentStatus `json:"status"`
	Alerts []Alert         `json:"alerts,omitempty"`
}

type Collection[T any] struct {
	Data       []T
	Count      uint64
	Offset     uint64
	Limit      uint64
	TotalCount uint64
}
