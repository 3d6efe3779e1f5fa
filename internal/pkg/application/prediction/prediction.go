package prediction

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/labforge/equipment-mgmt/internal/pkg/application/accessscope"
	"github.com/labforge/equipment-mgmt/internal/pkg/infrastructure/scorer"
	"github.com/labforge/equipment-mgmt/internal/pkg/infrastructure/storage"
	"github.com/labforge/equipment-mgmt/pkg/types"
	"golang.org/x/sync/errgroup"
)

const DefaultMaxConcurrent = 4

// Feature defaults used when neither analytics overrides nor live status carry
// a reading. They match the centre of the model's training distribution.
const (
	defaultTemperature       = 50
	defaultVibration         = 0
	defaultEnergyConsumption = 200
)

var ErrNotFound = errors.New("equipment not found")

type Store interface {
	QueryEquipment(ctx context.Context, conditions ...storage.ConditionFunc) (types.Collection[types.Equipment], error)
	GetEquipment(ctx context.Context, conditions ...storage.ConditionFunc) (types.Equipment, error)
	GetStatus(ctx context.Context, equipmentID string) (types.EquipmentStatus, error)
	GetAnalyticsParams(ctx context.Context, equipmentID string) (types.AnalyticsParams, error)
	LatestMaintenance(ctx context.Context, equipmentID string) (time.Time, error)
}

type MaintenancePredictor interface {
	EvaluateEquipment(ctx context.Context, equipmentID string, scope accessscope.Scope) (types.EquipmentPrediction, error)
	EvaluateUnit(ctx context.Context, unitID string, scope accessscope.Scope) ([]types.EquipmentPrediction, error)
}

type svc struct {
	store         Store
	scorer        scorer.Client
	maxConcurrent int
}

func New(store Store, sc scorer.Client, maxConcurrent int) MaintenancePredictor {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}

	return &svc{
		store:         store,
		scorer:        sc,
		maxConcurrent: maxConcurrent,
	}
}

// BuildFeatures assembles the scorer input for one equipment. Analytics
// overrides win over live status readings, which win over the defaults.
// The maintenance horizon prefers the most recent maintenance record, falls
// back on the date reported with status updates, and reports zero days for
// equipment with no history at all.
func BuildFeatures(status types.EquipmentStatus, params types.AnalyticsParams, lastMaintenance time.Time, now time.Time) types.FeatureVector {
	pick := func(override, live *float64, def float64) float64 {
		if override != nil {
			return *override
		}
		if live != nil {
			return *live
		}
		return def
	}

	if lastMaintenance.IsZero() && status.LastMaintenanceDate != nil {
		lastMaintenance = *status.LastMaintenanceDate
	}

	daysSince := 0
	if !lastMaintenance.IsZero() && now.After(lastMaintenance) {
		daysSince = int(math.Floor(now.Sub(lastMaintenance).Hours() / 24))
	}

	return types.FeatureVector{
		Temperature:          pick(params.Temperature, status.Temperature, defaultTemperature),
		Vibration:            pick(params.Vibration, status.Vibration, defaultVibration),
		EnergyConsumption:    pick(params.EnergyConsumption, status.EnergyConsumption, defaultEnergyConsumption),
		DaysSinceMaintenance: daysSince,
	}
}

// DaysUntilMaintenance turns a prediction into a maintenance horizon. A
// positive label or probability above 70% compresses the horizon towards the
// weekly cycle, never below one day. Otherwise the horizon counts down from
// the 90 day service interval.
func DaysUntilMaintenance(p types.Prediction, daysSinceMaintenance int) int {
	if p.Label == 1 || p.ProbabilityPercent > 70 {
		days := int(math.Floor(7 * (1 - p.ProbabilityPercent/100)))
		if days < 1 {
			days = 1
		}
		return days
	}

	days := 90 - daysSinceMaintenance
	if days < 0 {
		days = 0
	}

	return days
}

func (s *svc) EvaluateEquipment(ctx context.Context, equipmentID string, scope accessscope.Scope) (types.EquipmentPrediction, error) {
	eq, err := s.store.GetEquipment(ctx, storage.WithEquipmentID(equipmentID), storage.WithScope(scope))
	if err != nil {
		if errors.Is(err, storage.ErrNoRows) {
			return types.EquipmentPrediction{}, ErrNotFound
		}
		return types.EquipmentPrediction{}, err
	}

	return s.evaluate(ctx, eq), nil
}

// EvaluateUnit scores every active equipment in the unit. Results come back
// in listing order with exactly one slot per equipment: a slot whose snapshot
// or scoring fails carries an error prediction instead of failing the batch.
func (s *svc) EvaluateUnit(ctx context.Context, unitID string, scope accessscope.Scope) ([]types.EquipmentPrediction, error) {
	collection, err := s.store.QueryEquipment(ctx,
		storage.WithUnitID(unitID),
		storage.WithActive(true),
		storage.WithScope(scope),
	)
	if err != nil {
		return nil, err
	}

	results := make([]types.EquipmentPrediction, len(collection.Data))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrent)

	for i, eq := range collection.Data {
		i, eq := i, eq
		g.Go(func() error {
			results[i] = s.evaluate(gctx, eq)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func (s *svc) evaluate(ctx context.Context, eq types.Equipment) types.EquipmentPrediction {
	status, err := s.store.GetStatus(ctx, eq.ID)
	if err != nil && !errors.Is(err, storage.ErrNoRows) {
		return types.EquipmentPrediction{
			Equipment:  eq,
			Prediction: types.Prediction{Status: "error"},
		}
	}

	params, err := s.store.GetAnalyticsParams(ctx, eq.ID)
	if err != nil && !errors.Is(err, storage.ErrNoRows) {
		return types.EquipmentPrediction{
			Equipment:  eq,
			Prediction: types.Prediction{Status: "error"},
		}
	}

	lastMaintenance, err := s.store.LatestMaintenance(ctx, eq.ID)
	if err != nil && !errors.Is(err, storage.ErrNoRows) {
		return types.EquipmentPrediction{
			Equipment:  eq,
			Prediction: types.Prediction{Status: "error"},
		}
	}

	features := BuildFeatures(status, params, lastMaintenance, time.Now().UTC())
	p := s.scorer.Score(ctx, features)

	return types.EquipmentPrediction{
		Equipment:            eq,
		Prediction:           p,
		DaysUntilMaintenance: DaysUntilMaintenance(p, features.DaysSinceMaintenance),
	}
}
