package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/labforge/equipment-mgmt/pkg/types"
)

// GetAnalyticsParams returns the stored parameter overrides for the equipment,
// or ErrNoRows when none have been set.
func (s *Storage) GetAnalyticsParams(ctx context.Context, equipmentID string) (types.AnalyticsParams, error) {
	var p types.AnalyticsParams

	err := s.pool.QueryRow(ctx, `
		SELECT equipment_id, temperature, vibration, energy_consumption
		FROM analytics_params
		WHERE equipment_id = @equipment_id
	`, pgx.NamedArgs{"equipment_id": equipmentID}).Scan(
		&p.EquipmentID, &p.Temperature, &p.Vibration, &p.EnergyConsumption,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.AnalyticsParams{}, ErrNoRows
		}
		return types.AnalyticsParams{}, err
	}

	return p, nil
}

// SetAnalyticsParams upserts parameter overrides. Nil fields clear the stored
// override rather than preserving it, so a full replacement is one call.
func (s *Storage) SetAnalyticsParams(ctx context.Context, p types.AnalyticsParams) error {
	if p.EquipmentID == "" {
		return ErrNoID
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO analytics_params (equipment_id, temperature, vibration, energy_consumption)
		VALUES (@equipment_id, @temperature, @vibration, @energy_consumption)
		ON CONFLICT (equipment_id) DO UPDATE SET
			temperature = EXCLUDED.temperature,
			vibration = EXCLUDED.vibration,
			energy_consumption = EXCLUDED.energy_consumption,
			updated_on = CURRENT_TIMESTAMP
	`, pgx.NamedArgs{
		"equipment_id":       p.EquipmentID,
		"temperature":        p.Temperature,
		"vibration":          p.Vibration,
		"energy_consumption": p.EnergyConsumption,
	})

	return err
}
