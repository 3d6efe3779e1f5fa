package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/labforge/equipment-mgmt/pkg/types"
)

func (s *Storage) AddEquipment(ctx context.Context, eq types.Equipment) error {
	if eq.ID == "" || eq.EquipmentID == "" {
		return ErrNoID
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO equipment (id, equipment_id, name, unit_id, org_id, active)
		VALUES (@id, @equipment_id, @name, @unit_id, @org_id, @active)
		ON CONFLICT (equipment_id) DO UPDATE
		SET name = EXCLUDED.name, unit_id = EXCLUDED.unit_id, org_id = EXCLUDED.org_id,
		    active = EXCLUDED.active, modified_on = CURRENT_TIMESTAMP
	`, pgx.NamedArgs{
		"id":           eq.ID,
		"equipment_id": eq.EquipmentID,
		"name":         eq.Name,
		"unit_id":      eq.UnitID,
		"org_id":       eq.OrgID,
		"active":       eq.Active,
	})

	return err
}

func (s *Storage) GetEquipment(ctx context.Context, conditions ...ConditionFunc) (types.Equipment, error) {
	condition := newCondition(conditions...)

	query := fmt.Sprintf(`
		SELECT e.id, e.equipment_id, e.name, e.unit_id, e.org_id, e.active
		FROM equipment e
		%s
	`, condition.Where())

	var eq types.Equipment

	err := s.pool.QueryRow(ctx, query, condition.NamedArgs()).
		Scan(&eq.ID, &eq.EquipmentID, &eq.Name, &eq.UnitID, &eq.OrgID, &eq.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Equipment{}, ErrNoRows
		}
		return types.Equipment{}, err
	}

	return eq, nil
}

func (s *Storage) QueryEquipment(ctx context.Context, conditions ...ConditionFunc) (types.Collection[types.Equipment], error) {
	condition := newCondition(conditions...)

	query := fmt.Sprintf(`
		SELECT e.id, e.equipment_id, e.name, e.unit_id, e.org_id, e.active, count(*) OVER () AS count
		FROM equipment e
		%s
		ORDER BY %s %s
		%s
	`, condition.Where(), condition.SortBy("e.name"), condition.SortOrder("ASC"), offsetLimit(condition))

	rows, err := s.pool.Query(ctx, query, condition.NamedArgs())
	if err != nil {
		return types.Collection[types.Equipment]{}, err
	}

	var eq types.Equipment
	var count int64

	equipment := make([]types.Equipment, 0)

	_, err = pgx.ForEachRow(rows, []any{&eq.ID, &eq.EquipmentID, &eq.Name, &eq.UnitID, &eq.OrgID, &eq.Active, &count}, func() error {
		equipment = append(equipment, eq)
		return nil
	})
	if err != nil {
		return types.Collection[types.Equipment]{}, err
	}

	return types.Collection[types.Equipment]{
		Data:       equipment,
		Count:      uint64(len(equipment)),
		Offset:     uint64(condition.Offset()),
		Limit:      uint64(condition.Limit()),
		TotalCount: uint64(count),
	}, nil
}

// QueryEquipmentStatus returns the joined equipment+status overview used by
// the realtime listing. Equipment without a status row yet reports OFFLINE.
func (s *Storage) QueryEquipmentStatus(ctx context.Context, conditions ...ConditionFunc) (types.Collection[types.EquipmentStatusItem], error) {
	condition := newCondition(conditions...)

	query := fmt.Sprintf(`
		SELECT e.id, e.equipment_id, e.name, e.unit_id, e.org_id,
		       COALESCE(st.status, 'OFFLINE'), st.temperature, st.vibration, st.energy_consumption,
		       COALESCE(st.last_used_at, e.created_on), COALESCE(st.updated_on, e.created_on),
		       count(*) OVER () AS count
		FROM equipment e
		LEFT JOIN equipment_status st ON st.equipment_id = e.id
		%s
		ORDER BY %s %s
		%s
	`, condition.Where(), condition.SortBy("e.name"), condition.SortOrder("ASC"), offsetLimit(condition))

	rows, err := s.pool.Query(ctx, query, condition.NamedArgs())
	if err != nil {
		return types.Collection[types.EquipmentStatusItem]{}, err
	}

	var item types.EquipmentStatusItem
	var temperature, vibration, energy *float64
	var lastUsedAt, updatedOn time.Time
	var count int64

	items := make([]types.EquipmentStatusItem, 0)

	_, err = pgx.ForEachRow(rows, []any{
		&item.ID, &item.EquipmentID, &item.Name, &item.UnitID, &item.OrgID,
		&item.Status, &temperature, &vibration, &energy,
		&lastUsedAt, &updatedOn, &count,
	}, func() error {
		item.Temperature = temperature
		item.Vibration = vibration
		item.EnergyConsumption = energy
		item.LastUsedAt = lastUsedAt
		item.UpdatedAt = updatedOn
		items = append(items, item)
		return nil
	})
	if err != nil {
		return types.Collection[types.EquipmentStatusItem]{}, err
	}

	return types.Collection[types.EquipmentStatusItem]{
		Data:       items,
		Count:      uint64(len(items)),
		Offset:     uint64(condition.Offset()),
		Limit:      uint64(condition.Limit()),
		TotalCount: uint64(count),
	}, nil
}

func offsetLimit(c *Condition) string {
	var s string

	if c.offset != nil {
		s += fmt.Sprintf("OFFSET %d ", c.Offset())
	}
	if c.limit != nil {
		s += fmt.Sprintf("LIMIT %d ", c.Limit())
	}

	return s
}
