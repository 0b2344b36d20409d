package storage

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS raw_samples (
        id          BIGSERIAL PRIMARY KEY,
        ts          TIMESTAMPTZ      NOT NULL,
        voltage_1   DOUBLE PRECISION NOT NULL,
        voltage_2   DOUBLE PRECISION NOT NULL,
        voltage_3   DOUBLE PRECISION NOT NULL,
        current_1   DOUBLE PRECISION NOT NULL,
        current_2   DOUBLE PRECISION NOT NULL,
        current_3   DOUBLE PRECISION NOT NULL,
        received_at TIMESTAMPTZ      NOT NULL DEFAULT now()
    );`,
	`CREATE INDEX IF NOT EXISTS raw_samples_ts_idx ON raw_samples (ts);`,
	`CREATE TABLE IF NOT EXISTS power_metrics (
        ts             TIMESTAMPTZ      PRIMARY KEY,
        voltage_1      DOUBLE PRECISION NOT NULL,
        voltage_2      DOUBLE PRECISION NOT NULL,
        voltage_3      DOUBLE PRECISION NOT NULL,
        current_1      DOUBLE PRECISION NOT NULL,
        current_2      DOUBLE PRECISION NOT NULL,
        current_3      DOUBLE PRECISION NOT NULL,
        active_power   DOUBLE PRECISION NOT NULL,
        reactive_power DOUBLE PRECISION NOT NULL,
        apparent_power DOUBLE PRECISION NOT NULL,
        power_factor   DOUBLE PRECISION NOT NULL,
        created_at     TIMESTAMPTZ      NOT NULL DEFAULT now()
    );`,
	`CREATE TABLE IF NOT EXISTS alerts (
        id           BIGSERIAL PRIMARY KEY,
        sample_ts    TIMESTAMPTZ NOT NULL UNIQUE,
        power_factor NUMERIC     NOT NULL,
        threshold    NUMERIC     NOT NULL,
        channels     TEXT[]      NOT NULL DEFAULT '{}',
        created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
    );`,
}

// EnsureSchema creates the tables the service reads and writes when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
