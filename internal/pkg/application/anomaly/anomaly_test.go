package anomaly

import (
	"testing"

	"github.com/labforge/equipment-mgmt/pkg/types"
	"github.com/matryer/is"
)

func f(v float64) *float64 {
	return &v
}

func TestNoReadingsNoDrafts(t *testing.T) {
	is := is.New(t)
	is.Equal(len(Evaluate(types.TelemetrySample{})), 0)
}

func TestTemperatureThreshold(t *testing.T) {
	is := is.New(t)

	is.Equal(len(Evaluate(types.TelemetrySample{Temperature: f(80)})), 0)

	drafts := Evaluate(types.TelemetrySample{Temperature: f(80.5)})
	is.Equal(len(drafts), 1)
	is.Equal(drafts[0].Type, types.AlertTypeHighTemperature)
	is.Equal(drafts[0].Severity, types.SeverityHigh)

	drafts = Evaluate(types.TelemetrySample{Temperature: f(105)})
	is.Equal(len(drafts), 1)
	is.Equal(drafts[0].Severity, types.SeverityCritical)
	is.Equal(drafts[0].Message, "Temperature reading: 105°C")
}

func TestTemperatureBoundaryIsHighNotCritical(t *testing.T) {
	is := is.New(t)

	drafts := Evaluate(types.TelemetrySample{Temperature: f(100)})
	is.Equal(len(drafts), 1)
	is.Equal(drafts[0].Severity, types.SeverityHigh)
}

func TestVibrationThreshold(t *testing.T) {
	is := is.New(t)

	is.Equal(len(Evaluate(types.TelemetrySample{Vibration: f(10)})), 0)

	drafts := Evaluate(types.TelemetrySample{Vibration: f(12.5)})
	is.Equal(len(drafts), 1)
	is.Equal(drafts[0].Type, types.AlertTypeAbnormalVibration)
	is.Equal(drafts[0].Severity, types.SeverityHigh)
	is.Equal(drafts[0].Message, "Vibration detected at 12.5 mm/s")

	drafts = Evaluate(types.TelemetrySample{Vibration: f(16)})
	is.Equal(drafts[0].Severity, types.SeverityCritical)
}

func TestEnergyConsumptionThreshold(t *testing.T) {
	is := is.New(t)

	is.Equal(len(Evaluate(types.TelemetrySample{EnergyConsumption: f(50)})), 0)

	drafts := Evaluate(types.TelemetrySample{EnergyConsumption: f(75)})
	is.Equal(len(drafts), 1)
	is.Equal(drafts[0].Type, types.AlertTypeHighEnergyConsumption)
	is.Equal(drafts[0].Severity, types.SeverityMedium)
	is.Equal(drafts[0].Message, "Energy consumption at 75W")
}

func TestMultipleRulesFireInDeclarationOrder(t *testing.T) {
	is := is.New(t)

	drafts := Evaluate(types.TelemetrySample{
		Temperature:       f(101),
		Vibration:         f(11),
		EnergyConsumption: f(60),
	})

	is.Equal(len(drafts), 3)
	is.Equal(drafts[0].Type, types.AlertTypeHighTemperature)
	is.Equal(drafts[1].Type, types.AlertTypeAbnormalVibration)
	is.Equal(drafts[2].Type, types.AlertTypeHighEnergyConsumption)
}

func TestEvaluateIsDeterministic(t *testing.T) {
	is := is.New(t)

	sample := types.TelemetrySample{Temperature: f(90), Vibration: f(11)}

	a := Evaluate(sample)
	b := Evaluate(sample)
	is.Equal(a, b)
}
