package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/labforge/equipment-mgmt/pkg/types"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

const DefaultTimeout = 5 * time.Second

// Client scores a feature vector against the external maintenance model.
// Score never returns an error: scoring is advisory, so any failure degrades
// to a zero prediction with status "error" and the caller carries on.
type Client interface {
	Score(ctx context.Context, features types.FeatureVector) types.Prediction
}

type client struct {
	url        string
	httpClient http.Client
}

var tracer = otel.Tracer("equipment-mgmt/scorer")

func New(url string, timeout time.Duration) Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &client{
		url: url,
		httpClient: http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type scoreRequest struct {
	Temperature       float64 `json:"Temperature_C"`
	Vibration         float64 `json:"Vibration_mms"`
	EnergyConsumption float64 `json:"Energy_Consumption_W"`
	DaysSince         int     `json:"Days_Since_Weekly_Maintenance"`
}

type scoreResponse struct {
	Prediction  int     `json:"prediction"`
	Probability float64 `json:"probability_percentage"`
}

func errorPrediction() types.Prediction {
	return types.Prediction{Label: 0, ProbabilityPercent: 0, Status: "error"}
}

func (c *client) Score(ctx context.Context, features types.FeatureVector) types.Prediction {
	var err error
	ctx, span := tracer.Start(ctx, "score-equipment")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	log := logging.GetFromContext(ctx)

	body, err := json.Marshal(scoreRequest{
		Temperature:       features.Temperature,
		Vibration:         features.Vibration,
		EnergyConsumption: features.EnergyConsumption,
		DaysSince:         features.DaysSinceMaintenance,
	})
	if err != nil {
		log.Error("unable to marshal score request", "err", err.Error())
		return errorPrediction()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/predict", bytes.NewReader(body))
	if err != nil {
		log.Error("unable to create score request", "err", err.Error())
		return errorPrediction()
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error("score request failed", "err", err.Error())
		return errorPrediction()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("scorer responded with status code %d", resp.StatusCode)
		log.Error("score request failed", "err", err.Error())
		return errorPrediction()
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error("unable to read score response", "err", err.Error())
		return errorPrediction()
	}

	var result scoreResponse

	err = json.Unmarshal(respBody, &result)
	if err != nil {
		log.Error("unable to unmarshal score response", "err", err.Error())
		return errorPrediction()
	}

	return types.Prediction{
		Label:              result.Prediction,
		ProbabilityPercent: result.Probability,
		Status:             "success",
	}
}
