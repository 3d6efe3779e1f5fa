package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/google/uuid"
	"github.com/labforge/equipment-mgmt/internal/pkg/application/accessscope"
	"github.com/labforge/equipment-mgmt/internal/pkg/application/anomaly"
	"github.com/labforge/equipment-mgmt/internal/pkg/infrastructure/storage"
	"github.com/labforge/equipment-mgmt/pkg/types"
)

var ErrNotFound = errors.New("equipment not found")

// StatusUpdate is one inbound report from the field. Nil readings are absent,
// not zero, and merge over the stored status instead of clearing it.
type StatusUpdate struct {
	Status string

	Temperature       *float64
	Vibration         *float64
	EnergyConsumption *float64

	Pressure *float64
	Humidity *float64
	RPM      *float64
	Voltage  *float64
	Current  *float64

	LastMaintenanceDate *time.Time
	Timestamp           time.Time

	// NotifyUsers lists user topics that should receive a notification for any
	// alerts raised by this update, on top of the global broadcast.
	NotifyUsers []string
}

type Store interface {
	GetEquipment(ctx context.Context, conditions ...storage.ConditionFunc) (types.Equipment, error)
	UpsertStatus(ctx context.Context, equipmentID string, patch storage.StatusPatch) (types.EquipmentStatus, error)
	AddTelemetry(ctx context.Context, sample types.TelemetrySample) error
	AddAlert(ctx context.Context, alert types.Alert) error
}

// Publisher delivers realtime events to connected clients. Delivery is best
// effort and must never block ingestion.
type Publisher interface {
	PublishToEquipment(ctx context.Context, equipmentID string, event string, data any)
	PublishToUser(ctx context.Context, userID string, event string, data any)
	Broadcast(ctx context.Context, event string, data any)
}

type Service interface {
	IngestStatus(ctx context.Context, equipmentID string, update StatusUpdate, scope accessscope.Scope) (types.StatusUpdateResult, error)
}

type svc struct {
	store     Store
	publisher Publisher
}

func New(store Store, publisher Publisher) Service {
	return &svc{
		store:     store,
		publisher: publisher,
	}
}

// IngestStatus runs one status report through the full pipeline: resolve the
// equipment within the caller's scope, merge the status row, append the
// telemetry sample, persist any threshold alerts and fan the results out to
// realtime subscribers. Fanout happens only after the durable writes, so a
// delivered event always reflects stored state.
//
// Equipment outside the caller's scope reports ErrNotFound, the same as
// equipment that does not exist.
func (s *svc) IngestStatus(ctx context.Context, equipmentID string, update StatusUpdate, scope accessscope.Scope) (types.StatusUpdateResult, error) {
	log := logging.GetFromContext(ctx)

	eq, err := s.store.GetEquipment(ctx, storage.WithEquipmentID(equipmentID), storage.WithScope(scope))
	if err != nil {
		if errors.Is(err, storage.ErrNoRows) {
			return types.StatusUpdateResult{}, ErrNotFound
		}
		return types.StatusUpdateResult{}, err
	}

	status, err := s.store.UpsertStatus(ctx, eq.ID, storage.StatusPatch{
		Status:              update.Status,
		Temperature:         update.Temperature,
		Vibration:           update.Vibration,
		EnergyConsumption:   update.EnergyConsumption,
		LastMaintenanceDate: update.LastMaintenanceDate,
	})
	if err != nil {
		return types.StatusUpdateResult{}, fmt.Errorf("unable to store status: %w", err)
	}

	sample := types.TelemetrySample{
		EquipmentID:       eq.ID,
		Timestamp:         update.Timestamp,
		Temperature:       update.Temperature,
		Vibration:         update.Vibration,
		EnergyConsumption: update.EnergyConsumption,
		Pressure:          update.Pressure,
		Humidity:          update.Humidity,
		RPM:               update.RPM,
		Voltage:           update.Voltage,
		Current:           update.Current,
	}

	// Telemetry durability is the hard guarantee of this pipeline. Alerts
	// below are best effort, the history append is not.
	err = s.store.AddTelemetry(ctx, sample)
	if err != nil {
		log.Error("unable to store telemetry sample", "equipment", eq.ID, "err", err.Error())
		return types.StatusUpdateResult{}, fmt.Errorf("unable to store telemetry: %w", err)
	}

	alerts := s.persistAlerts(ctx, eq, anomaly.Evaluate(sample))

	s.fanout(ctx, eq, status, alerts, update.NotifyUsers)

	return types.StatusUpdateResult{Status: status, Alerts: alerts}, nil
}

// persistAlerts stores each draft independently. One failing insert drops
// that alert alone, the rest still persist and fan out.
func (s *svc) persistAlerts(ctx context.Context, eq types.Equipment, drafts []anomaly.AlertDraft) []types.Alert {
	log := logging.GetFromContext(ctx)

	alerts := make([]types.Alert, 0, len(drafts))

	for _, d := range drafts {
		alert := types.Alert{
			ID:          uuid.NewString(),
			EquipmentID: eq.ID,
			Type:        d.Type,
			Severity:    d.Severity,
			Message:     d.Message,
			CreatedAt:   time.Now().UTC(),
		}

		err := s.store.AddAlert(ctx, alert)
		if err != nil {
			log.Error("unable to store alert", "equipment", eq.ID, "type", d.Type, "err", err.Error())
			continue
		}

		alerts = append(alerts, alert)
	}

	return alerts
}

func (s *svc) fanout(ctx context.Context, eq types.Equipment, status types.EquipmentStatus, alerts []types.Alert, notifyUsers []string) {
	updated := types.EquipmentStatusUpdated{
		EquipmentID: eq.ID,
		Status:      status,
		Timestamp:   time.Now().UTC(),
	}

	s.publisher.PublishToEquipment(ctx, eq.ID, types.EventEquipmentStatus, updated)
	s.publisher.Broadcast(ctx, types.EventEquipmentStatusUpdate, updated)

	for _, alert := range alerts {
		created := types.AlertCreated{Alert: alert, Timestamp: time.Now().UTC()}

		s.publisher.Broadcast(ctx, types.EventAlertNew, created)

		for _, userID := range notifyUsers {
			s.publisher.PublishToUser(ctx, userID, types.EventNotificationNew, created)
		}
	}
}
