package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"smart-meter-monitor/internal/measurement"
	"smart-meter-monitor/internal/power"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertSampleSQL = `INSERT INTO raw_samples (
        ts,
        voltage_1,
        voltage_2,
        voltage_3,
        current_1,
        current_2,
        current_3
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    );`

	fetchLatestGroupSQL = `SELECT
        ts,
        voltage_1,
        voltage_2,
        voltage_3,
        current_1,
        current_2,
        current_3
    FROM raw_samples
    WHERE ts = (SELECT MAX(ts) FROM raw_samples)
    ORDER BY id;`

	fetchGroupSQL = `SELECT
        ts,
        voltage_1,
        voltage_2,
        voltage_3,
        current_1,
        current_2,
        current_3
    FROM raw_samples
    WHERE ts = $1
    ORDER BY id;`

	listSampleTimestampsSQL = `SELECT DISTINCT ts
    FROM raw_samples
    WHERE ts >= $1
      AND ts < $2
    ORDER BY ts;`

	upsertMetricsSQL = `INSERT INTO power_metrics (
        ts,
        voltage_1,
        voltage_2,
        voltage_3,
        current_1,
        current_2,
        current_3,
        active_power,
        reactive_power,
        apparent_power,
        power_factor
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
    )
    ON CONFLICT (ts) DO UPDATE
    SET
        voltage_1      = EXCLUDED.voltage_1,
        voltage_2      = EXCLUDED.voltage_2,
        voltage_3      = EXCLUDED.voltage_3,
        current_1      = EXCLUDED.current_1,
        current_2      = EXCLUDED.current_2,
        current_3      = EXCLUDED.current_3,
        active_power   = EXCLUDED.active_power,
        reactive_power = EXCLUDED.reactive_power,
        apparent_power = EXCLUDED.apparent_power,
        power_factor   = EXCLUDED.power_factor;`

	listMetricsBetweenSQL = `SELECT
        ts,
        voltage_1,
        voltage_2,
        voltage_3,
        current_1,
        current_2,
        current_3,
        active_power,
        reactive_power,
        apparent_power,
        power_factor
    FROM power_metrics
    WHERE ts >= $1
      AND ts < $2
    ORDER BY ts;`

	listRecentMetricsSQL = `SELECT
        ts,
        voltage_1,
        voltage_2,
        voltage_3,
        current_1,
        current_2,
        current_3,
        active_power,
        reactive_power,
        apparent_power,
        power_factor
    FROM power_metrics
    ORDER BY ts DESC
    LIMIT $1;`

	countMetricsSQL = `SELECT COUNT(*) FROM power_metrics;`

	insertAlertSQL = `INSERT INTO alerts (
        sample_ts,
        power_factor,
        threshold,
        channels
    ) VALUES (
        $1,$2,$3,$4
    )
    ON CONFLICT (sample_ts) DO UPDATE
    SET power_factor = EXCLUDED.power_factor,
        threshold    = EXCLUDED.threshold,
        channels     = EXCLUDED.channels
    RETURNING id, sample_ts, power_factor::text, threshold::text, channels, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        sample_ts,
        power_factor::text,
        threshold::text,
        channels,
        created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE sample_ts < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// SampleStore defines operations over the raw sample feed.
type SampleStore interface {
	InsertSample(ctx context.Context, sample measurement.RawSample) error
	FetchLatestGroup(ctx context.Context) ([]measurement.RawSample, error)
	FetchGroup(ctx context.Context, ts time.Time) ([]measurement.RawSample, error)
	ListSampleTimestamps(ctx context.Context, from, to time.Time) ([]time.Time, error)
}

// MetricsStore defines operations for derived metrics persistence.
type MetricsStore interface {
	UpsertMetrics(ctx context.Context, m power.Metrics) error
	ListMetricsBetween(ctx context.Context, from, to time.Time) ([]power.Metrics, error)
	ListRecentMetrics(ctx context.Context, limit int) ([]power.Metrics, error)
	CountMetrics(ctx context.Context) (int64, error)
}

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to samples, metrics and alerts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// best effort; the session lock is dropped with the connection anyway
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertSample appends one raw reading.
func (s *Store) InsertSample(ctx context.Context, sample measurement.RawSample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, insertSampleSQL,
		sample.Timestamp,
		sample.Voltage[0],
		sample.Voltage[1],
		sample.Voltage[2],
		sample.Current[0],
		sample.Current[1],
		sample.Current[2],
	)
	if execErr != nil {
		return fmt.Errorf("insert sample: %w", execErr)
	}
	return nil
}

// FetchLatestGroup returns every sample sharing the newest timestamp, in insertion order.
// An empty table yields an empty slice.
func (s *Store) FetchLatestGroup(ctx context.Context) ([]measurement.RawSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, fetchLatestGroupSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("fetch latest group: %w", queryErr)
	}
	return collectSamples(rows)
}

// FetchGroup returns the samples stored for one timestamp.
func (s *Store) FetchGroup(ctx context.Context, ts time.Time) ([]measurement.RawSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, fetchGroupSQL, ts)
	if queryErr != nil {
		return nil, fmt.Errorf("fetch group: %w", queryErr)
	}
	return collectSamples(rows)
}

// ListSampleTimestamps lists the distinct sample timestamps within [from, to).
func (s *Store) ListSampleTimestamps(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSampleTimestampsSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list sample timestamps: %w", queryErr)
	}
	defer rows.Close()

	stamps := make([]time.Time, 0)
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		stamps = append(stamps, ts.UTC())
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return stamps, nil
}

// UpsertMetrics persists or replaces the metrics for a group timestamp.
func (s *Store) UpsertMetrics(ctx context.Context, m power.Metrics) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, upsertMetricsSQL,
		m.Timestamp,
		m.Voltage1,
		m.Voltage2,
		m.Voltage3,
		m.Current1,
		m.Current2,
		m.Current3,
		m.ActivePower,
		m.ReactivePower,
		m.ApparentPower,
		m.PowerFactor,
	)
	if execErr != nil {
		return fmt.Errorf("upsert metrics: %w", execErr)
	}
	return nil
}

// ListMetricsBetween lists metrics within a time window, oldest first.
func (s *Store) ListMetricsBetween(ctx context.Context, from, to time.Time) ([]power.Metrics, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listMetricsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list metrics between: %w", queryErr)
	}
	return collectMetrics(rows, 0)
}

// ListRecentMetrics lists the most recent metrics ordered by descending timestamp.
func (s *Store) ListRecentMetrics(ctx context.Context, limit int) ([]power.Metrics, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentMetricsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent metrics: %w", queryErr)
	}
	return collectMetrics(rows, limit)
}

// CountMetrics counts stored metric rows.
func (s *Store) CountMetrics(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countMetricsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count metrics: %w", scanErr)
	}
	return count, nil
}

// InsertAlert persists an alert emission.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	channels := alert.Channels
	if channels == nil {
		channels = []string{}
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.SampleTS,
		alert.PowerFactor.String(),
		alert.Threshold.String(),
		channels,
	)

	rec, scanErr := scanAlert(row)
	if scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		rec, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteAlertsBefore deletes alerts whose sample timestamp precedes olderThan.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

func collectSamples(rows pgx.Rows) ([]measurement.RawSample, error) {
	defer rows.Close()

	samples := make([]measurement.RawSample, 0)
	for rows.Next() {
		var (
			ts      time.Time
			voltage [measurement.Phases]float64
			current [measurement.Phases]float64
		)
		if err := rows.Scan(
			&ts,
			&voltage[0],
			&voltage[1],
			&voltage[2],
			&current[0],
			&current[1],
			&current[2],
		); err != nil {
			return nil, err
		}
		samples = append(samples, measurement.NewRawSample(ts, voltage, current))
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

func collectMetrics(rows pgx.Rows, capacity int) ([]power.Metrics, error) {
	defer rows.Close()

	out := make([]power.Metrics, 0, capacity)
	for rows.Next() {
		var m power.Metrics
		if err := rows.Scan(
			&m.Timestamp,
			&m.Voltage1,
			&m.Voltage2,
			&m.Voltage3,
			&m.Current1,
			&m.Current2,
			&m.Current3,
			&m.ActivePower,
			&m.ReactivePower,
			&m.ApparentPower,
			&m.PowerFactor,
		); err != nil {
			return nil, err
		}
		m.Timestamp = m.Timestamp.UTC()
		out = append(out, m)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func scanAlert(row pgx.Row) (AlertRecord, error) {
	var rec AlertRecord
	var pfStr, thresholdStr string
	if err := row.Scan(
		&rec.ID,
		&rec.SampleTS,
		&pfStr,
		&thresholdStr,
		&rec.Channels,
		&rec.CreatedAt,
	); err != nil {
		return AlertRecord{}, err
	}

	var convErr error
	rec.PowerFactor, convErr = decimal.NewFromString(pfStr)
	if convErr != nil {
		return AlertRecord{}, fmt.Errorf("parse power factor: %w", convErr)
	}
	rec.Threshold, convErr = decimal.NewFromString(thresholdStr)
	if convErr != nil {
		return AlertRecord{}, fmt.Errorf("parse threshold: %w", convErr)
	}
	return rec, nil
}
