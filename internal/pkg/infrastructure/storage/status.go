package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/labforge/equipment-mgmt/pkg/types"
)

// StatusPatch carries the fields of one status update. Nil fields leave the
// stored value untouched; lastUsedAt is always refreshed by the upsert.
type StatusPatch struct {
	Status              string
	Temperature         *float64
	Vibration           *float64
	EnergyConsumption   *float64
	LastMaintenanceDate *time.Time
}

// UpsertStatus merges a patch into the single status row for the equipment,
// creating it if absent, and returns the row as stored.
func (s *Storage) UpsertStatus(ctx context.Context, equipmentID string, patch StatusPatch) (types.EquipmentStatus, error) {
	if equipmentID == "" {
		return types.EquipmentStatus{}, ErrNoID
	}

	args := pgx.NamedArgs{
		"equipment_id":          equipmentID,
		"status":                patch.Status,
		"temperature":           patch.Temperature,
		"vibration":             patch.Vibration,
		"energy_consumption":    patch.EnergyConsumption,
		"last_maintenance_date": patch.LastMaintenanceDate,
	}

	var st types.EquipmentStatus

	err := s.pool.QueryRow(ctx, `
		INSERT INTO equipment_status (equipment_id, status, temperature, vibration, energy_consumption, last_maintenance_date, last_used_at)
		VALUES (@equipment_id, COALESCE(NULLIF(@status, ''), 'OPERATIONAL'), @temperature, @vibration, @energy_consumption, @last_maintenance_date, CURRENT_TIMESTAMP)
		ON CONFLICT (equipment_id) DO UPDATE SET
			status = COALESCE(NULLIF(@status, ''), equipment_status.status),
			temperature = COALESCE(EXCLUDED.temperature, equipment_status.temperature),
			vibration = COALESCE(EXCLUDED.vibration, equipment_status.vibration),
			energy_consumption = COALESCE(EXCLUDED.energy_consumption, equipment_status.energy_consumption),
			last_maintenance_date = COALESCE(EXCLUDED.last_maintenance_date, equipment_status.last_maintenance_date),
			last_used_at = CURRENT_TIMESTAMP,
			updated_on = CURRENT_TIMESTAMP
		RETURNING equipment_id, status, temperature, vibration, energy_consumption, last_used_at, last_maintenance_date, updated_on
	`, args).Scan(
		&st.EquipmentID, &st.Status, &st.Temperature, &st.Vibration, &st.EnergyConsumption,
		&st.LastUsedAt, &st.LastMaintenanceDate, &st.UpdatedAt,
	)
	if err != nil {
		return types.EquipmentStatus{}, err
	}

	return st, nil
}

func (s *Storage) GetStatus(ctx context.Context, equipmentID string) (types.EquipmentStatus, error) {
	var st types.EquipmentStatus

	err := s.pool.QueryRow(ctx, `
		SELECT equipment_id, status, temperature, vibration, energy_consumption, last_used_at, last_maintenance_date, updated_on
		FROM equipment_status
		WHERE equipment_id = @equipment_id
	`, pgx.NamedArgs{"equipment_id": equipmentID}).Scan(
		&st.EquipmentID, &st.Status, &st.Temperature, &st.Vibration, &st.EnergyConsumption,
		&st.LastUsedAt, &st.LastMaintenanceDate, &st.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.EquipmentStatus{}, ErrNoRows
		}
		return types.EquipmentStatus{}, err
	}

	return st, nil
}
