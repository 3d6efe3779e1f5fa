package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/labforge/equipment-mgmt/internal/pkg/application/ingest"
	"github.com/labforge/equipment-mgmt/internal/pkg/application/prediction"
	"github.com/labforge/equipment-mgmt/internal/pkg/infrastructure/router"
	"github.com/labforge/equipment-mgmt/internal/pkg/infrastructure/scorer"
	"github.com/labforge/equipment-mgmt/internal/pkg/infrastructure/storage"
	"github.com/labforge/equipment-mgmt/internal/pkg/presentation/api"
	"github.com/labforge/equipment-mgmt/internal/pkg/presentation/api/auth"
	"github.com/labforge/equipment-mgmt/internal/pkg/presentation/realtime"
	"gopkg.in/yaml.v2"
)

const serviceName string = "equipment-mgmt"

type flagType int
type flagMap map[flagType]string

const (
	listenAddress flagType = iota
	servicePort

	configurationFile

	tokenSecret

	dbHost
	dbUser
	dbPassword
	dbPort
	dbName
	dbSSLMode
)

func defaultFlags() flagMap {
	return flagMap{
		listenAddress: "0.0.0.0",
		servicePort:   "8080",

		configurationFile: "/opt/labforge/config/config.yaml",

		tokenSecret: "",

		dbHost:     "",
		dbUser:     "",
		dbPassword: "",
		dbPort:     "5432",
		dbName:     "labforge",
		dbSSLMode:  "disable",
	}
}

type scorerConfig struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
	MaxConcurrent  int    `yaml:"maxConcurrent"`
}

type appConfig struct {
	Scorer scorerConfig `yaml:"scorer"`
}

func main() {
	ctx, flags := parseExternalConfig(context.Background(), defaultFlags())

	serviceVersion := buildinfo.SourceVersion()
	ctx, logger, cleanup := o11y.Init(ctx, serviceName, serviceVersion, "json")
	defer cleanup()

	cfgFile, err := os.Open(flags[configurationFile])
	exitIf(err, logger, "could not open configuration file")

	cfg, err := parseExternalConfigFile(cfgFile)
	exitIf(err, logger, "could not parse configuration file")

	if flags[tokenSecret] == "" {
		exitIf(errors.New("no secret configured"), logger, "refusing to start without a token secret")
	}

	s, err := storage.New(ctx, storage.NewConfig(
		flags[dbHost], flags[dbUser], flags[dbPassword], flags[dbPort], flags[dbName], flags[dbSSLMode],
	))
	exitIf(err, logger, "could not connect to database")

	err = s.Initialize(ctx)
	exitIf(err, logger, "could not initialize database")

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tokenAuth := auth.NewTokenAuth([]byte(flags[tokenSecret]))

	hub := realtime.New(tokenAuth, api.NewEquipmentAccessChecker(s))
	go hub.Run(ctx)

	ingestSvc := ingest.New(s, hub)

	sc := scorer.New(cfg.Scorer.URL, time.Duration(cfg.Scorer.TimeoutSeconds)*time.Second)
	predictor := prediction.New(s, sc, cfg.Scorer.MaxConcurrent)

	r, err := api.RegisterHandlers(ctx, router.New(serviceName), tokenAuth, s, ingestSvc, predictor, hub)
	exitIf(err, logger, "failed to register handlers")

	server := &http.Server{
		Addr:    flags[listenAddress] + ":" + flags[servicePort],
		Handler: r,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()

		server.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	logger.Info("starting to listen for incoming connections", "address", server.Addr)

	err = server.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		exitIf(err, logger, "failed to listen for incoming connections")
	}

	s.Close()
}

func parseExternalConfigFile(cfgFile io.ReadCloser) (*appConfig, error) {
	defer cfgFile.Close()

	b, err := io.ReadAll(cfgFile)
	if err != nil {
		return nil, err
	}

	cfg := &appConfig{}
	err = yaml.Unmarshal(b, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Scorer.TimeoutSeconds <= 0 {
		cfg.Scorer.TimeoutSeconds = int(scorer.DefaultTimeout / time.Second)
	}
	if cfg.Scorer.MaxConcurrent <= 0 {
		cfg.Scorer.MaxConcurrent = prediction.DefaultMaxConcurrent
	}

	return cfg, nil
}

func parseExternalConfig(ctx context.Context, flags flagMap) (context.Context, flagMap) {
	// Allow environment variables to override certain defaults
	envOrDef := env.GetVariableOrDefault

	flags[listenAddress] = envOrDef(ctx, "LISTEN_ADDRESS", flags[listenAddress])
	flags[servicePort] = envOrDef(ctx, "SERVICE_PORT", flags[servicePort])

	flags[tokenSecret] = envOrDef(ctx, "TOKEN_SECRET", flags[tokenSecret])

	flags[dbHost] = envOrDef(ctx, "POSTGRES_HOST", flags[dbHost])
	flags[dbPort] = envOrDef(ctx, "POSTGRES_PORT", flags[dbPort])
	flags[dbName] = envOrDef(ctx, "POSTGRES_DBNAME", flags[dbName])
	flags[dbUser] = envOrDef(ctx, "POSTGRES_USER", flags[dbUser])
	flags[dbPassword] = envOrDef(ctx, "POSTGRES_PASSWORD", flags[dbPassword])
	flags[dbSSLMode] = envOrDef(ctx, "POSTGRES_SSLMODE", flags[dbSSLMode])

	apply := func(f flagType) func(string) error {
		return func(value string) error {
			flags[f] = value
			return nil
		}
	}

	// Allow command line arguments to override defaults and environment variables
	flag.Func("config", "service configuration file", apply(configurationFile))
	flag.Parse()

	return ctx, flags
}

func exitIf(err error, logger *slog.Logger, msg string, args ...any) {
	if err != nil {
		logger.With(args...).Error(msg, "err", err.Error())
		time.Sleep(2 * time.Second)
		os.Exit(1)
	}
}
