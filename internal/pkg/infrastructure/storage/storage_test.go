package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labforge/equipment-mgmt/internal/pkg/application/accessscope"
	"github.com/labforge/equipment-mgmt/pkg/types"
	"github.com/matryer/is"
)

func testSetup(t *testing.T) (context.Context, *Storage) {
	ctx := context.Background()

	config := Config{
		host:     "localhost",
		user:     "postgres",
		password: "password",
		port:     "5432",
		dbname:   "postgres",
		sslmode:  "disable",
	}

	s, err := New(ctx, config)
	if err != nil {
		t.SkipNow()
	}

	err = s.Initialize(ctx)
	if err != nil {
		t.SkipNow()
	}

	for _, eq := range []types.Equipment{
		{ID: "eq-internal-01", EquipmentID: "CNC-001", Name: "CNC Mill", UnitID: "unit-01", OrgID: "org-01", Active: true},
		{ID: "eq-internal-02", EquipmentID: "LATHE-001", Name: "Lathe", UnitID: "unit-02", OrgID: "org-01", Active: true},
		{ID: "eq-internal-03", EquipmentID: "PRESS-001", Name: "Press", UnitID: "unit-03", OrgID: "org-02", Active: false},
	} {
		err = s.AddEquipment(ctx, eq)
		if err != nil {
			t.SkipNow()
		}
	}

	return ctx, s
}

func TestQueryEquipment(t *testing.T) {
	is := is.New(t)
	ctx, s := testSetup(t)

	c, err := s.QueryEquipment(ctx)
	is.NoErr(err)
	is.True(len(c.Data) >= 3)
}

func TestQueryEquipmentWithOrgScope(t *testing.T) {
	is := is.New(t)
	ctx, s := testSetup(t)

	c, err := s.QueryEquipment(ctx, WithScope(accessscope.OrgScoped("org-01")))
	is.NoErr(err)

	for _, eq := range c.Data {
		is.Equal("org-01", eq.OrgID)
	}
}

func TestQueryEquipmentWithDeniedScope(t *testing.T) {
	is := is.New(t)
	ctx, s := testSetup(t)

	c, err := s.QueryEquipment(ctx, WithScope(accessscope.Denied()))
	is.NoErr(err)
	is.Equal(0, len(c.Data))
}

func TestGetEquipmentNotFound(t *testing.T) {
	is := is.New(t)
	ctx, s := testSetup(t)

	_, err := s.GetEquipment(ctx, WithEquipmentID("no-such-equipment"))
	is.Equal(ErrNoRows, err)
}

func TestUpsertStatusMergesPatches(t *testing.T) {
	is := is.New(t)
	ctx, s := testSetup(t)

	temp := 72.5
	st, err := s.UpsertStatus(ctx, "eq-internal-01", StatusPatch{Status: types.StatusInUse, Temperature: &temp})
	is.NoErr(err)
	is.Equal(types.StatusInUse, st.Status)
	is.Equal(temp, *st.Temperature)

	vib := 3.1
	st, err = s.UpsertStatus(ctx, "eq-internal-01", StatusPatch{Vibration: &vib})
	is.NoErr(err)
	is.Equal(types.StatusInUse, st.Status)
	is.Equal(temp, *st.Temperature)
	is.Equal(vib, *st.Vibration)
}

func TestAddAndResolveAlert(t *testing.T) {
	is := is.New(t)
	ctx, s := testSetup(t)

	alertID := uuid.NewString()
	err := s.AddAlert(ctx, types.Alert{
		ID:          alertID,
		EquipmentID: "eq-internal-01",
		Type:        types.AlertTypeHighTemperature,
		Severity:    types.SeverityHigh,
		Message:     "Temperature reading: 85°C",
	})
	is.NoErr(err)

	err = s.ResolveAlert(ctx, alertID, "user-01")
	is.NoErr(err)

	a, err := s.GetAlert(ctx, WithAlertID(alertID))
	is.NoErr(err)
	is.True(a.Resolved)
	is.Equal("user-01", *a.ResolvedBy)

	err = s.ResolveAlert(ctx, alertID, "user-02")
	is.Equal(ErrNoRows, err)
}

func TestQueryAlertsUnresolvedOnly(t *testing.T) {
	is := is.New(t)
	ctx, s := testSetup(t)

	err := s.AddAlert(ctx, types.Alert{
		ID:          uuid.NewString(),
		EquipmentID: "eq-internal-02",
		Type:        types.AlertTypeAbnormalVibration,
		Severity:    types.SeverityMedium,
		Message:     "Vibration detected at 8 mm/s",
	})
	is.NoErr(err)

	c, err := s.QueryAlerts(ctx, WithResolved(false))
	is.NoErr(err)
	is.True(len(c.Data) > 0)

	for _, a := range c.Data {
		is.True(!a.Resolved)
	}
}

func TestTelemetryRoundTrip(t *testing.T) {
	is := is.New(t)
	ctx, s := testSetup(t)

	temp := 61.0
	ts := time.Now().UTC()

	err := s.AddTelemetry(ctx, types.TelemetrySample{
		EquipmentID: "eq-internal-01",
		Timestamp:   ts,
		Temperature: &temp,
	})
	is.NoErr(err)

	samples, err := s.QueryTelemetry(ctx, "eq-internal-01", ts.Add(-time.Minute))
	is.NoErr(err)
	is.True(len(samples) > 0)
	is.Equal(temp, *samples[len(samples)-1].Temperature)
}

func TestLatestMaintenance(t *testing.T) {
	is := is.New(t)
	ctx, s := testSetup(t)

	_, err := s.LatestMaintenance(ctx, "eq-internal-03")
	is.Equal(ErrNoRows, err)

	completed := time.Now().UTC().Add(-48 * time.Hour)
	err = s.AddMaintenanceRecord(ctx, types.MaintenanceRecord{
		ID:          uuid.NewString(),
		EquipmentID: "eq-internal-02",
		Type:        "weekly",
		CompletedAt: completed,
	})
	is.NoErr(err)

	latest, err := s.LatestMaintenance(ctx, "eq-internal-02")
	is.NoErr(err)
	is.True(!latest.Before(completed.Truncate(time.Second)))
}

func TestAnalyticsParamsUpsert(t *testing.T) {
	is := is.New(t)
	ctx, s := testSetup(t)

	temp := 55.0
	err := s.SetAnalyticsParams(ctx, types.AnalyticsParams{EquipmentID: "eq-internal-01", Temperature: &temp})
	is.NoErr(err)

	p, err := s.GetAnalyticsParams(ctx, "eq-internal-01")
	is.NoErr(err)
	is.Equal(temp, *p.Temperature)
	is.True(p.Vibration == nil)
}
