package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"log/slog"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/labforge/equipment-mgmt/internal/pkg/application/accessscope"
	"github.com/labforge/equipment-mgmt/internal/pkg/application/ingest"
	"github.com/labforge/equipment-mgmt/internal/pkg/application/prediction"
	"github.com/labforge/equipment-mgmt/internal/pkg/infrastructure/storage"
	"github.com/labforge/equipment-mgmt/internal/pkg/presentation/api/auth"
	"github.com/labforge/equipment-mgmt/internal/pkg/presentation/realtime"
	"github.com/labforge/equipment-mgmt/pkg/types"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("equipment-mgmt/api")

type Store interface {
	GetEquipment(ctx context.Context, conditions ...storage.ConditionFunc) (types.Equipment, error)
	QueryEquipmentStatus(ctx context.Context, conditions ...storage.ConditionFunc) (types.Collection[types.EquipmentStatusItem], error)
	QueryTelemetry(ctx context.Context, equipmentID string, since time.Time) ([]types.TelemetrySample, error)
	QueryMaintenanceRecords(ctx context.Context, equipmentID string) ([]types.MaintenanceRecord, error)
	QueryAlerts(ctx context.Context, conditions ...storage.ConditionFunc) (types.Collection[types.Alert], error)
	GetAlert(ctx context.Context, conditions ...storage.ConditionFunc) (types.Alert, error)
	ResolveAlert(ctx context.Context, alertID, resolvedBy string) error
}

func RegisterHandlers(ctx context.Context, router *chi.Mux, tokenAuth *jwtauth.JWTAuth, store Store, ingestSvc ingest.Service, predictor prediction.MaintenancePredictor, hub *realtime.Hub) (*chi.Mux, error) {

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	log := logging.GetFromContext(ctx)

	authenticator := auth.NewAuthenticator(tokenAuth)

	router.Route("/api/v0", func(r chi.Router) {
		// The hub authenticates its own handshake so that browser clients
		// can pass the token as a query parameter.
		r.Method(http.MethodGet, "/realtime", hub)

		r.Group(func(r chi.Router) {
			r.Use(authenticator)

			r.Route("/equipment", func(r chi.Router) {
				r.Get("/status", queryEquipmentStatusHandler(log, store))
				r.Post("/{equipmentID}/status", updateEquipmentStatusHandler(log, ingestSvc))
				r.Get("/{equipmentID}/telemetry", getTelemetryHandler(log, store))
				r.Get("/{equipmentID}/maintenance", getMaintenanceHandler(log, store))
			})

			r.Get("/alerts", queryAlertsHandler(log, store))
			r.Patch("/alerts/{alertID}", resolveAlertHandler(log, store))

			r.Get("/analytics/predictive/{unitID}", predictiveMaintenanceHandler(log, predictor))
		})
	})

	return router, nil
}

// NewEquipmentAccessChecker adapts storage lookups into the yes/no check the
// realtime hub performs on subscribe requests.
func NewEquipmentAccessChecker(store Store) realtime.AccessChecker {
	return &equipmentAccessChecker{store: store}
}

type equipmentAccessChecker struct {
	store Store
}

func (c *equipmentAccessChecker) CanAccessEquipment(ctx context.Context, actor types.Actor, equipmentID string) bool {
	scope := accessscope.Resolve(actor)
	if scope.IsDenied() {
		return false
	}

	_, err := c.store.GetEquipment(ctx, storage.WithID(equipmentID), storage.WithScope(scope))
	return err == nil
}

type statusUpdateRequest struct {
	Status string `json:"status"`

	Temperature       *float64 `json:"temperature,omitempty"`
	Vibration         *float64 `json:"vibration,omitempty"`
	EnergyConsumption *float64 `json:"energyConsumption,omitempty"`

	Pressure *float64 `json:"pressure,omitempty"`
	Humidity *float64 `json:"humidity,omitempty"`
	RPM      *float64 `json:"rpm,omitempty"`
	Voltage  *float64 `json:"voltage,omitempty"`
	Current  *float64 `json:"current,omitempty"`

	LastMaintenanceDate *time.Time `json:"lastMaintenanceDate,omitempty"`
	Timestamp           time.Time  `json:"timestamp"`

	NotifyUsers []string `json:"notifyUsers,omitempty"`
}

func updateEquipmentStatusHandler(log *slog.Logger, svc ingest.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "update-equipment-status")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		equipmentID := chi.URLParam(r, "equipmentID")
		if equipmentID != "" {
			requestLogger = requestLogger.With(slog.String("equipment_id", equipmentID))
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			requestLogger.Error("unable to read body", "err", err.Error())
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		var req statusUpdateRequest
		err = json.Unmarshal(body, &req)
		if err != nil {
			requestLogger.Error("unable to unmarshal body", "err", err.Error())
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if !validStatus(req.Status) {
			requestLogger.Info("rejected unknown status value", "status", req.Status)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		result, err := svc.IngestStatus(ctx, equipmentID, ingest.StatusUpdate{
			Status:              req.Status,
			Temperature:         req.Temperature,
			Vibration:           req.Vibration,
			EnergyConsumption:   req.EnergyConsumption,
			Pressure:            req.Pressure,
			Humidity:            req.Humidity,
			RPM:                 req.RPM,
			Voltage:             req.Voltage,
			Current:             req.Current,
			LastMaintenanceDate: req.LastMaintenanceDate,
			Timestamp:           req.Timestamp,
			NotifyUsers:         req.NotifyUsers,
		}, scopeFromContext(ctx))
		if err != nil {
			if errors.Is(err, ingest.ErrNotFound) {
				requestLogger.Debug("equipment not found")
				w.WriteHeader(http.StatusNotFound)
				return
			}
			requestLogger.Error("unable to ingest status update", "err", err.Error())
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Add("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(ApiResponse{Data: result}.Byte())
	}
}

func queryEquipmentStatusHandler(log *slog.Logger, store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "query-equipment-status")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		conditions := []storage.ConditionFunc{storage.WithScope(scopeFromContext(ctx))}
		conditions = append(conditions, paginationConditions(r)...)

		if unitID := r.URL.Query().Get("unitID"); unitID != "" {
			conditions = append(conditions, storage.WithUnitID(unitID))
		}

		if sortBy := r.URL.Query().Get("sortBy"); sortBy != "" {
			conditions = append(conditions, storage.WithSortBy(sortBy))
			if desc, err := strconv.ParseBool(r.URL.Query().Get("sortDesc")); err == nil {
				conditions = append(conditions, storage.WithSortDesc(desc))
			}
		}

		collection, err := store.QueryEquipmentStatus(ctx, conditions...)
		if err != nil {
			requestLogger.Error("unable to fetch equipment status", "err", err.Error())
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Add("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(newApiResponse(collection).Byte())
	}
}

func getTelemetryHandler(log *slog.Logger, store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "get-telemetry")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		equipmentID := chi.URLParam(r, "equipmentID")
		if equipmentID != "" {
			requestLogger = requestLogger.With(slog.String("equipment_id", equipmentID))
		}

		since := time.Now().UTC().Add(-24 * time.Hour)
		if s := r.URL.Query().Get("since"); s != "" {
			since, err = time.Parse(time.RFC3339, s)
			if err != nil {
				requestLogger.Info("invalid since parameter", "err", err.Error())
				w.WriteHeader(http.StatusBadRequest)
				return
			}
		}

		eq, err := store.GetEquipment(ctx, storage.WithEquipmentID(equipmentID), storage.WithScope(scopeFromContext(ctx)))
		if err != nil {
			if errors.Is(err, storage.ErrNoRows) {
				requestLogger.Debug("equipment not found")
				w.WriteHeader(http.StatusNotFound)
				return
			}
			requestLogger.Error("unable to fetch equipment", "err", err.Error())
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		samples, err := store.QueryTelemetry(ctx, eq.ID, since)
		if err != nil {
			requestLogger.Error("unable to fetch telemetry", "err", err.Error())
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Add("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(ApiResponse{Data: samples}.Byte())
	}
}

func getMaintenanceHandler(log *slog.Logger, store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "get-maintenance-records")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		equipmentID := chi.URLParam(r, "equipmentID")
		if equipmentID != "" {
			requestLogger = requestLogger.With(slog.String("equipment_id", equipmentID))
		}

		eq, err := store.GetEquipment(ctx, storage.WithEquipmentID(equipmentID), storage.WithScope(scopeFromContext(ctx)))
		if err != nil {
			if errors.Is(err, storage.ErrNoRows) {
				requestLogger.Debug("equipment not found")
				w.WriteHeader(http.StatusNotFound)
				return
			}
			requestLogger.Error("unable to fetch equipment", "err", err.Error())
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		records, err := store.QueryMaintenanceRecords(ctx, eq.ID)
		if err != nil {
			requestLogger.Error("unable to fetch maintenance records", "err", err.Error())
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Add("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(ApiResponse{Data: records}.Byte())
	}
}

func queryAlertsHandler(log *slog.Logger, store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "query-alerts")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		conditions := []storage.ConditionFunc{storage.WithScope(scopeFromContext(ctx))}
		conditions = append(conditions, paginationConditions(r)...)

		if s := r.URL.Query().Get("resolved"); s != "" {
			resolved, err := strconv.ParseBool(s)
			if err != nil {
				requestLogger.Info("invalid resolved parameter", "err", err.Error())
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			conditions = append(conditions, storage.WithResolved(resolved))
		}

		if equipmentID := r.URL.Query().Get("equipmentID"); equipmentID != "" {
			conditions = append(conditions, storage.WithEquipmentID(equipmentID))
		}

		if s := r.URL.Query().Get("since"); s != "" {
			since, err := time.Parse(time.RFC3339, s)
			if err != nil {
				requestLogger.Info("invalid since parameter", "err", err.Error())
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			conditions = append(conditions, storage.WithSince(since))
		}

		collection, err := store.QueryAlerts(ctx, conditions...)
		if err != nil {
			requestLogger.Error("unable to fetch alerts", "err", err.Error())
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Add("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(newApiResponse(collection).Byte())
	}
}

func resolveAlertHandler(log *slog.Logger, store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "resolve-alert")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		alertID := chi.URLParam(r, "alertID")
		if alertID != "" {
			requestLogger = requestLogger.With(slog.String("alert_id", alertID))
		}

		scope := scopeFromContext(ctx)

		alert, err := store.GetAlert(ctx, storage.WithAlertID(alertID), storage.WithScope(scope))
		if err != nil {
			if errors.Is(err, storage.ErrNoRows) {
				requestLogger.Debug("alert not found")
				w.WriteHeader(http.StatusNotFound)
				return
			}
			requestLogger.Error("unable to fetch alert", "err", err.Error())
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		if !alert.Resolved {
			actor, _ := auth.ActorFromContext(ctx)

			err = store.ResolveAlert(ctx, alertID, actor.ID)
			if err != nil && !errors.Is(err, storage.ErrNoRows) {
				requestLogger.Error("unable to resolve alert", "err", err.Error())
				w.WriteHeader(http.StatusInternalServerError)
				return
			}

			alert, err = store.GetAlert(ctx, storage.WithAlertID(alertID), storage.WithScope(scope))
			if err != nil {
				requestLogger.Error("unable to fetch resolved alert", "err", err.Error())
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
		}

		w.Header().Add("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(ApiResponse{Data: alert}.Byte())
	}
}

func predictiveMaintenanceHandler(log *slog.Logger, predictor prediction.MaintenancePredictor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "predictive-maintenance")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		unitID := chi.URLParam(r, "unitID")
		if unitID != "" {
			requestLogger = requestLogger.With(slog.String("unit_id", unitID))
		}

		scope := scopeFromContext(ctx)

		if equipmentID := r.URL.Query().Get("equipmentID"); equipmentID != "" {
			result, err := predictor.EvaluateEquipment(ctx, equipmentID, scope)
			if err != nil {
				if errors.Is(err, prediction.ErrNotFound) {
					requestLogger.Debug("equipment not found")
					w.WriteHeader(http.StatusNotFound)
					return
				}
				requestLogger.Error("unable to evaluate equipment", "err", err.Error())
				w.WriteHeader(http.StatusInternalServerError)
				return
			}

			w.Header().Add("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write(ApiResponse{Data: result}.Byte())
			return
		}

		results, err := predictor.EvaluateUnit(ctx, unitID, scope)
		if err != nil {
			requestLogger.Error("unable to evaluate unit", "err", err.Error())
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Add("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(ApiResponse{Data: results}.Byte())
	}
}

func scopeFromContext(ctx context.Context) accessscope.Scope {
	actor, ok := auth.ActorFromContext(ctx)
	if !ok {
		return accessscope.Denied()
	}
	return accessscope.Resolve(actor)
}

func validStatus(status string) bool {
	switch status {
	case "", types.StatusOperational, types.StatusInUse, types.StatusIdle,
		types.StatusMaintenance, types.StatusFaulty, types.StatusOffline:
		return true
	}
	return false
}

func paginationConditions(r *http.Request) []storage.ConditionFunc {
	conditions := []storage.ConditionFunc{}

	if s := r.URL.Query().Get("offset"); s != "" {
		if offset, err := strconv.Atoi(s); err == nil && offset >= 0 {
			conditions = append(conditions, storage.WithOffset(offset))
		}
	}
	if s := r.URL.Query().Get("limit"); s != "" {
		if limit, err := strconv.Atoi(s); err == nil && limit > 0 {
			conditions = append(conditions, storage.WithLimit(limit))
		}
	}

	return conditions
}
