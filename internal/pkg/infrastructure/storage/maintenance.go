package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/labforge/equipment-mgmt/pkg/types"
)

func (s *Storage) AddMaintenanceRecord(ctx context.Context, rec types.MaintenanceRecord) error {
	if rec.ID == "" || rec.EquipmentID == "" {
		return ErrNoID
	}

	completedOn := rec.CompletedAt
	if completedOn.IsZero() {
		completedOn = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO maintenance_records (id, equipment_id, maintenance_type, completed_on)
		VALUES (@id, @equipment_id, @maintenance_type, @completed_on)
	`, pgx.NamedArgs{
		"id":               rec.ID,
		"equipment_id":     rec.EquipmentID,
		"maintenance_type": rec.Type,
		"completed_on":     completedOn,
	})

	return err
}

// LatestMaintenance returns the completion time of the most recent maintenance
// for the equipment, or ErrNoRows when it has no maintenance history at all.
func (s *Storage) LatestMaintenance(ctx context.Context, equipmentID string) (time.Time, error) {
	var completedOn time.Time

	err := s.pool.QueryRow(ctx, `
		SELECT completed_on
		FROM maintenance_records
		WHERE equipment_id = @equipment_id
		ORDER BY completed_on DESC
		LIMIT 1
	`, pgx.NamedArgs{"equipment_id": equipmentID}).Scan(&completedOn)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, ErrNoRows
		}
		return time.Time{}, err
	}

	return completedOn, nil
}

func (s *Storage) QueryMaintenanceRecords(ctx context.Context, equipmentID string) ([]types.MaintenanceRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, equipment_id, COALESCE(maintenance_type, ''), completed_on
		FROM maintenance_records
		WHERE equipment_id = @equipment_id
		ORDER BY completed_on DESC
	`, pgx.NamedArgs{"equipment_id": equipmentID})
	if err != nil {
		return nil, err
	}

	var rec types.MaintenanceRecord

	records := make([]types.MaintenanceRecord, 0)

	_, err = pgx.ForEachRow(rows, []any{
		&rec.ID, &rec.EquipmentID, &rec.Type, &rec.CompletedAt,
	}, func() error {
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}
