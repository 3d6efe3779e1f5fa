package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/labforge/equipment-mgmt/pkg/types"
)

// AddTelemetry appends one immutable sample. There is deliberately no update
// or delete path for telemetry.
func (s *Storage) AddTelemetry(ctx context.Context, sample types.TelemetrySample) error {
	if sample.EquipmentID == "" {
		return ErrNoID
	}

	ts := sample.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO telemetry (time, equipment_id, temperature, vibration, energy_consumption, pressure, humidity, rpm, voltage, current)
		VALUES (@time, @equipment_id, @temperature, @vibration, @energy_consumption, @pressure, @humidity, @rpm, @voltage, @current)
	`, pgx.NamedArgs{
		"time":               ts,
		"equipment_id":       sample.EquipmentID,
		"temperature":        sample.Temperature,
		"vibration":          sample.Vibration,
		"energy_consumption": sample.EnergyConsumption,
		"pressure":           sample.Pressure,
		"humidity":           sample.Humidity,
		"rpm":                sample.RPM,
		"voltage":            sample.Voltage,
		"current":            sample.Current,
	})

	return err
}

// QueryTelemetry returns samples for one equipment since the given time,
// oldest first. Access checks belong to the caller; telemetry rows carry no
// scope information of their own.
func (s *Storage) QueryTelemetry(ctx context.Context, equipmentID string, since time.Time) ([]types.TelemetrySample, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT time, equipment_id, temperature, vibration, energy_consumption, pressure, humidity, rpm, voltage, current
		FROM telemetry
		WHERE equipment_id = @equipment_id AND time >= @since
		ORDER BY time ASC
	`, pgx.NamedArgs{
		"equipment_id": equipmentID,
		"since":        since.UTC(),
	})
	if err != nil {
		return nil, err
	}

	var sample types.TelemetrySample

	samples := make([]types.TelemetrySample, 0)

	_, err = pgx.ForEachRow(rows, []any{
		&sample.Timestamp, &sample.EquipmentID,
		&sample.Temperature, &sample.Vibration, &sample.EnergyConsumption,
		&sample.Pressure, &sample.Humidity, &sample.RPM, &sample.Voltage, &sample.Current,
	}, func() error {
		samples = append(samples, sample)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return samples, nil
}
