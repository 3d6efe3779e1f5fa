package anomaly

import (
	"fmt"
	"strconv"

	"github.com/labforge/equipment-mgmt/pkg/types"
	"github.com/samber/lo"
)

// AlertDraft is an unpersisted candidate alert produced by threshold
// evaluation. Persistence and fanout are the caller's responsibility.
type AlertDraft struct {
	Type     string
	Severity types.Severity
	Message  string
}

type rule struct {
	observe func(types.TelemetrySample) *float64
	draft   func(value float64) AlertDraft
}

// Rules are evaluated in declaration order and independently of each other:
// one sample can produce several drafts.
var rules = []rule{
	{
		observe: func(s types.TelemetrySample) *float64 { return s.Temperature },
		draft: func(v float64) AlertDraft {
			if v <= 80 {
				return AlertDraft{}
			}
			severity := types.SeverityHigh
			if v > 100 {
				severity = types.SeverityCritical
			}
			return AlertDraft{
				Type:     types.AlertTypeHighTemperature,
				Severity: severity,
				Message:  fmt.Sprintf("Temperature reading: %s°C", formatValue(v)),
			}
		},
	},
	{
		observe: func(s types.TelemetrySample) *float64 { return s.Vibration },
		draft: func(v float64) AlertDraft {
			if v <= 10 {
				return AlertDraft{}
			}
			severity := types.SeverityHigh
			if v > 15 {
				severity = types.SeverityCritical
			}
			return AlertDraft{
				Type:     types.AlertTypeAbnormalVibration,
				Severity: severity,
				Message:  fmt.Sprintf("Vibration detected at %s mm/s", formatValue(v)),
			}
		},
	},
	{
		observe: func(s types.TelemetrySample) *float64 { return s.EnergyConsumption },
		draft: func(v float64) AlertDraft {
			if v <= 50 {
				return AlertDraft{}
			}
			return AlertDraft{
				Type:     types.AlertTypeHighEnergyConsumption,
				Severity: types.SeverityMedium,
				Message:  fmt.Sprintf("Energy consumption at %sW", formatValue(v)),
			}
		},
	},
}

// Evaluate runs all threshold rules against a single sample. It is pure and
// deterministic, performs no I/O, and never looks at previously persisted
// alert state, so repeated breaches produce repeated drafts.
func Evaluate(sample types.TelemetrySample) []AlertDraft {
	return lo.FilterMap(rules, func(r rule, _ int) (AlertDraft, bool) {
		v := r.observe(sample)
		if v == nil {
			return AlertDraft{}, false
		}

		d := r.draft(*v)
		return d, d.Type != ""
	})
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
