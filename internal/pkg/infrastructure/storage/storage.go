package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Config struct {
	host     string
	user     string
	password string
	port     string
	dbname   string
	sslmode  string
}

func NewConfig(host, user, password, port, dbname, sslmode string) Config {
	return Config{
		host:     host,
		user:     user,
		password: password,
		port:     port,
		dbname:   dbname,
		sslmode:  sslmode,
	}
}

func (c Config) ConnStr() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", c.user, c.password, c.host, c.port, c.dbname, c.sslmode)
}

var (
	ErrNoRows      = errors.New("no rows in result set")
	ErrQueryRow    = errors.New("could not execute query")
	ErrStoreFailed = errors.New("could not store data")
	ErrNoID        = errors.New("data contains no id")
)

type Storage struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, config Config) (*Storage, error) {
	pool, err := pgxpool.New(ctx, config.ConnStr())
	if err != nil {
		return nil, err
	}

	err = pool.Ping(ctx)
	if err != nil {
		return nil, err
	}

	return &Storage{pool: pool}, nil
}

func (s *Storage) Initialize(ctx context.Context) error {
	return s.createTables(ctx)
}

func (s *Storage) createTables(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS equipment (
			id				TEXT	NOT NULL,
			equipment_id	TEXT	NOT NULL,
			name			TEXT	NULL,
			unit_id			TEXT	NOT NULL,
			org_id			TEXT	NOT NULL,
			active			BOOLEAN	NOT NULL DEFAULT TRUE,
			created_on		timestamp with time zone NOT NULL DEFAULT CURRENT_TIMESTAMP,
			modified_on		timestamp with time zone NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT pkey_equipment PRIMARY KEY (id),
			CONSTRAINT uniq_equipment_equipment_id UNIQUE (equipment_id)
		);

		CREATE TABLE IF NOT EXISTS equipment_status (
			equipment_id			TEXT	NOT NULL,
			status					TEXT	NOT NULL DEFAULT 'OPERATIONAL',
			temperature				NUMERIC	NULL,
			vibration				NUMERIC	NULL,
			energy_consumption		NUMERIC	NULL,
			last_used_at			timestamp with time zone NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_maintenance_date	timestamp with time zone NULL,
			updated_on				timestamp with time zone NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT pkey_equipment_status PRIMARY KEY (equipment_id)
		);

		CREATE TABLE IF NOT EXISTS telemetry (
			time				timestamp with time zone NOT NULL DEFAULT CURRENT_TIMESTAMP,
			equipment_id		TEXT	NOT NULL,
			temperature			NUMERIC	NULL,
			vibration			NUMERIC	NULL,
			energy_consumption	NUMERIC	NULL,
			pressure			NUMERIC	NULL,
			humidity			NUMERIC	NULL,
			rpm					NUMERIC	NULL,
			voltage				NUMERIC	NULL,
			current				NUMERIC	NULL,
			CONSTRAINT pkey_telemetry PRIMARY KEY (time, equipment_id)
		);

		CREATE TABLE IF NOT EXISTS alerts (
			alert_id		TEXT	NOT NULL,
			equipment_id	TEXT	NOT NULL,
			alert_type		TEXT	NOT NULL,
			severity		TEXT	NOT NULL,
			message			TEXT	NULL,
			resolved		BOOLEAN	NOT NULL DEFAULT FALSE,
			resolved_by		TEXT	NULL,
			resolved_on		timestamp with time zone NULL,
			created_on		timestamp with time zone NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT pkey_alerts PRIMARY KEY (alert_id)
		);

		CREATE TABLE IF NOT EXISTS maintenance_records (
			id				TEXT	NOT NULL,
			equipment_id	TEXT	NOT NULL,
			maintenance_type TEXT	NULL,
			completed_on	timestamp with time zone NOT NULL,
			created_on		timestamp with time zone NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT pkey_maintenance_records PRIMARY KEY (id)
		);

		CREATE TABLE IF NOT EXISTS analytics_params (
			equipment_id		TEXT	NOT NULL,
			temperature			NUMERIC	NULL,
			vibration			NUMERIC	NULL,
			energy_consumption	NUMERIC	NULL,
			updated_on			timestamp with time zone NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT pkey_analytics_params PRIMARY KEY (equipment_id)
		);

		CREATE INDEX IF NOT EXISTS telemetry_equipment_idx ON telemetry (equipment_id, time);
		CREATE INDEX IF NOT EXISTS alerts_equipment_idx ON alerts (equipment_id) WHERE NOT resolved;
		CREATE INDEX IF NOT EXISTS equipment_unit_idx ON equipment (unit_id);
		CREATE INDEX IF NOT EXISTS equipment_org_idx ON equipment (org_id);
	`)

	return err
}

func (s *Storage) Close() {
	s.pool.Close()
}
