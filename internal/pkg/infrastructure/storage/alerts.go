package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/labforge/equipment-mgmt/pkg/types"
)

// AddAlert inserts a new alert row. Alerts are never deduplicated here:
// repeated threshold breaches insert repeated rows.
func (s *Storage) AddAlert(ctx context.Context, alert types.Alert) error {
	if alert.ID == "" || alert.EquipmentID == "" {
		return ErrNoID
	}

	createdOn := alert.CreatedAt
	if createdOn.IsZero() {
		createdOn = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO alerts (alert_id, equipment_id, alert_type, severity, message, resolved, created_on)
		VALUES (@alert_id, @equipment_id, @alert_type, @severity, @message, FALSE, @created_on)
	`, pgx.NamedArgs{
		"alert_id":     alert.ID,
		"equipment_id": alert.EquipmentID,
		"alert_type":   alert.Type,
		"severity":     string(alert.Severity),
		"message":      alert.Message,
		"created_on":   createdOn,
	})

	return err
}

func (s *Storage) QueryAlerts(ctx context.Context, conditions ...ConditionFunc) (types.Collection[types.Alert], error) {
	condition := newCondition(conditions...)

	query := fmt.Sprintf(`
		SELECT a.alert_id, a.equipment_id, a.alert_type, a.severity, a.message, a.resolved, a.resolved_by, a.resolved_on, a.created_on, count(*) OVER () AS count
		FROM alerts a
		JOIN equipment e ON e.id = a.equipment_id
		%s
		ORDER BY %s %s
		%s
	`, condition.Where(), condition.SortBy("a.created_on"), condition.SortOrder("DESC"), offsetLimit(condition))

	rows, err := s.pool.Query(ctx, query, condition.NamedArgs())
	if err != nil {
		return types.Collection[types.Alert]{}, err
	}

	var alert types.Alert
	var severity string
	var count int64

	alerts := make([]types.Alert, 0)

	_, err = pgx.ForEachRow(rows, []any{
		&alert.ID, &alert.EquipmentID, &alert.Type, &severity, &alert.Message,
		&alert.Resolved, &alert.ResolvedBy, &alert.ResolvedAt, &alert.CreatedAt, &count,
	}, func() error {
		alert.Severity = types.Severity(severity)
		alerts = append(alerts, alert)
		return nil
	})
	if err != nil {
		return types.Collection[types.Alert]{}, err
	}

	return types.Collection[types.Alert]{
		Data:       alerts,
		Count:      uint64(len(alerts)),
		Offset:     uint64(condition.Offset()),
		Limit:      uint64(condition.Limit()),
		TotalCount: uint64(count),
	}, nil
}

func (s *Storage) GetAlert(ctx context.Context, conditions ...ConditionFunc) (types.Alert, error) {
	condition := newCondition(conditions...)

	query := fmt.Sprintf(`
		SELECT a.alert_id, a.equipment_id, a.alert_type, a.severity, a.message, a.resolved, a.resolved_by, a.resolved_on, a.created_on
		FROM alerts a
		JOIN equipment e ON e.id = a.equipment_id
		%s
	`, condition.Where())

	var alert types.Alert
	var severity string

	err := s.pool.QueryRow(ctx, query, condition.NamedArgs()).Scan(
		&alert.ID, &alert.EquipmentID, &alert.Type, &severity, &alert.Message,
		&alert.Resolved, &alert.ResolvedBy, &alert.ResolvedAt, &alert.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Alert{}, ErrNoRows
		}
		return types.Alert{}, err
	}

	alert.Severity = types.Severity(severity)

	return alert, nil
}

func (s *Storage) ResolveAlert(ctx context.Context, alertID, resolvedBy string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE alerts
		SET resolved = TRUE, resolved_by = @resolved_by, resolved_on = CURRENT_TIMESTAMP
		WHERE alert_id = @alert_id AND resolved = FALSE
	`, pgx.NamedArgs{
		"alert_id":    alertID,
		"resolved_by": resolvedBy,
	})
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return ErrNoRows
	}

	return nil
}
