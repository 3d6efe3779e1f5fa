package prediction

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/labforge/equipment-mgmt/internal/pkg/application/accessscope"
	"github.com/labforge/equipment-mgmt/internal/pkg/infrastructure/storage"
	"github.com/labforge/equipment-mgmt/pkg/types"
	"github.com/matryer/is"
)

type storeMock struct {
	QueryEquipmentFunc    func(ctx context.Context, conditions ...storage.ConditionFunc) (types.Collection[types.Equipment], error)
	GetEquipmentFunc      func(ctx context.Context, conditions ...storage.ConditionFunc) (types.Equipment, error)
	GetStatusFunc         func(ctx context.Context, equipmentID string) (types.EquipmentStatus, error)
	GetAnalyticsFunc      func(ctx context.Context, equipmentID string) (types.AnalyticsParams, error)
	LatestMaintenanceFunc func(ctx context.Context, equipmentID string) (time.Time, error)
}

func (m *storeMock) QueryEquipment(ctx context.Context, conditions ...storage.ConditionFunc) (types.Collection[types.Equipment], error) {
	return m.QueryEquipmentFunc(ctx, conditions...)
}
func (m *storeMock) GetEquipment(ctx context.Context, conditions ...storage.ConditionFunc) (types.Equipment, error) {
	return m.GetEquipmentFunc(ctx, conditions...)
}
func (m *storeMock) GetStatus(ctx context.Context, equipmentID string) (types.EquipmentStatus, error) {
	return m.GetStatusFunc(ctx, equipmentID)
}
func (m *storeMock) GetAnalyticsParams(ctx context.Context, equipmentID string) (types.AnalyticsParams, error) {
	return m.GetAnalyticsFunc(ctx, equipmentID)
}
func (m *storeMock) LatestMaintenance(ctx context.Context, equipmentID string) (time.Time, error) {
	return m.LatestMaintenanceFunc(ctx, equipmentID)
}

type scorerMock struct {
	ScoreFunc func(ctx context.Context, features types.FeatureVector) types.Prediction
}

func (m *scorerMock) Score(ctx context.Context, features types.FeatureVector) types.Prediction {
	return m.ScoreFunc(ctx, features)
}

func emptyStore() *storeMock {
	return &storeMock{
		GetStatusFunc: func(ctx context.Context, equipmentID string) (types.EquipmentStatus, error) {
			return types.EquipmentStatus{}, storage.ErrNoRows
		},
		GetAnalyticsFunc: func(ctx context.Context, equipmentID string) (types.AnalyticsParams, error) {
			return types.AnalyticsParams{}, storage.ErrNoRows
		},
		LatestMaintenanceFunc: func(ctx context.Context, equipmentID string) (time.Time, error) {
			return time.Time{}, storage.ErrNoRows
		},
	}
}

func f64(v float64) *float64 { return &v }

func TestBuildFeaturesDefaults(t *testing.T) {
	is := is.New(t)

	features := BuildFeatures(types.EquipmentStatus{}, types.AnalyticsParams{}, time.Time{}, time.Now())

	is.Equal(50.0, features.Temperature)
	is.Equal(0.0, features.Vibration)
	is.Equal(200.0, features.EnergyConsumption)
	is.Equal(0, features.DaysSinceMaintenance)
}

func TestBuildFeaturesOverridesWinOverStatus(t *testing.T) {
	is := is.New(t)

	status := types.EquipmentStatus{Temperature: f64(61), Vibration: f64(2)}
	params := types.AnalyticsParams{Temperature: f64(80)}

	features := BuildFeatures(status, params, time.Time{}, time.Now())

	is.Equal(80.0, features.Temperature)
	is.Equal(2.0, features.Vibration)
	is.Equal(200.0, features.EnergyConsumption)
}

func TestBuildFeaturesDaysSinceMaintenance(t *testing.T) {
	is := is.New(t)

	now := time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)
	last := now.Add(-(9*24 + 10) * time.Hour)

	features := BuildFeatures(types.EquipmentStatus{}, types.AnalyticsParams{}, last, now)

	is.Equal(9, features.DaysSinceMaintenance)
}

func TestBuildFeaturesFallsBackOnStatusMaintenanceDate(t *testing.T) {
	is := is.New(t)

	now := time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)
	reported := now.Add(-5 * 24 * time.Hour)

	status := types.EquipmentStatus{LastMaintenanceDate: &reported}

	features := BuildFeatures(status, types.AnalyticsParams{}, time.Time{}, now)
	is.Equal(5, features.DaysSinceMaintenance)

	// a maintenance record wins over the reported date
	recorded := now.Add(-2 * 24 * time.Hour)
	features = BuildFeatures(status, types.AnalyticsParams{}, recorded, now)
	is.Equal(2, features.DaysSinceMaintenance)
}

func TestBuildFeaturesIsDeterministic(t *testing.T) {
	is := is.New(t)

	now := time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)
	status := types.EquipmentStatus{Temperature: f64(61.5), Vibration: f64(2.25)}

	a := BuildFeatures(status, types.AnalyticsParams{}, now.Add(-72*time.Hour), now)
	b := BuildFeatures(status, types.AnalyticsParams{}, now.Add(-72*time.Hour), now)
	is.Equal(a, b)
}

func TestDaysUntilMaintenanceHighRisk(t *testing.T) {
	is := is.New(t)

	is.Equal(1, DaysUntilMaintenance(types.Prediction{Label: 1, ProbabilityPercent: 95}, 3))
	is.Equal(2, DaysUntilMaintenance(types.Prediction{Label: 1, ProbabilityPercent: 60}, 3))
	is.Equal(1, DaysUntilMaintenance(types.Prediction{Label: 0, ProbabilityPercent: 85}, 3))
}

func TestDaysUntilMaintenanceLowRisk(t *testing.T) {
	is := is.New(t)

	is.Equal(87, DaysUntilMaintenance(types.Prediction{Label: 0, ProbabilityPercent: 10}, 3))
	is.Equal(0, DaysUntilMaintenance(types.Prediction{Label: 0, ProbabilityPercent: 10}, 120))
}

func TestDaysUntilMaintenanceMonotonic(t *testing.T) {
	is := is.New(t)

	prev := 8
	for p := 71.0; p <= 100; p += 0.5 {
		days := DaysUntilMaintenance(types.Prediction{ProbabilityPercent: p}, 0)
		is.True(days <= prev)
		is.True(days >= 1)
		prev = days
	}
}

func TestEvaluateEquipmentNotFound(t *testing.T) {
	is := is.New(t)

	store := emptyStore()
	store.GetEquipmentFunc = func(ctx context.Context, conditions ...storage.ConditionFunc) (types.Equipment, error) {
		return types.Equipment{}, storage.ErrNoRows
	}

	svc := New(store, &scorerMock{}, 0)

	_, err := svc.EvaluateEquipment(context.Background(), "ghost", accessscope.Unrestricted())
	is.Equal(ErrNotFound, err)
}

func TestEvaluateUnitPreservesOrderAndSlots(t *testing.T) {
	is := is.New(t)

	equipment := []types.Equipment{
		{ID: "eq-1", EquipmentID: "A", UnitID: "unit-01"},
		{ID: "eq-2", EquipmentID: "B", UnitID: "unit-01"},
		{ID: "eq-3", EquipmentID: "C", UnitID: "unit-01"},
		{ID: "eq-4", EquipmentID: "D", UnitID: "unit-01"},
	}

	store := emptyStore()
	store.QueryEquipmentFunc = func(ctx context.Context, conditions ...storage.ConditionFunc) (types.Collection[types.Equipment], error) {
		return types.Collection[types.Equipment]{Data: equipment}, nil
	}

	var mu sync.Mutex
	scored := 0

	sc := &scorerMock{
		ScoreFunc: func(ctx context.Context, features types.FeatureVector) types.Prediction {
			mu.Lock()
			scored++
			mu.Unlock()
			return types.Prediction{Label: 0, ProbabilityPercent: 10, Status: "success"}
		},
	}

	svc := New(store, sc, 2)

	results, err := svc.EvaluateUnit(context.Background(), "unit-01", accessscope.Unrestricted())
	is.NoErr(err)
	is.Equal(len(equipment), len(results))
	is.Equal(len(equipment), scored)

	for i, r := range results {
		is.Equal(equipment[i].EquipmentID, r.Equipment.EquipmentID)
	}
}

func TestEvaluateUnitOneFailingSlotDegrades(t *testing.T) {
	is := is.New(t)

	equipment := []types.Equipment{
		{ID: "eq-1", EquipmentID: "A"},
		{ID: "eq-2", EquipmentID: "B"},
		{ID: "eq-3", EquipmentID: "C"},
	}

	store := emptyStore()
	store.QueryEquipmentFunc = func(ctx context.Context, conditions ...storage.ConditionFunc) (types.Collection[types.Equipment], error) {
		return types.Collection[types.Equipment]{Data: equipment}, nil
	}

	sc := &scorerMock{
		ScoreFunc: func(ctx context.Context, features types.FeatureVector) types.Prediction {
			return types.Prediction{Label: 1, ProbabilityPercent: 90, Status: "success"}
		},
	}

	failing := "eq-2"
	store.GetStatusFunc = func(ctx context.Context, equipmentID string) (types.EquipmentStatus, error) {
		if equipmentID == failing {
			return types.EquipmentStatus{}, context.DeadlineExceeded
		}
		return types.EquipmentStatus{}, storage.ErrNoRows
	}

	svc := New(store, sc, 0)

	results, err := svc.EvaluateUnit(context.Background(), "unit-01", accessscope.Unrestricted())
	is.NoErr(err)
	is.Equal(3, len(results))

	is.Equal("success", results[0].Prediction.Status)
	is.Equal("error", results[1].Prediction.Status)
	is.Equal("success", results[2].Prediction.Status)
}
