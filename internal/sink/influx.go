package sink

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"smart-meter-monitor/internal/config"
	"smart-meter-monitor/internal/power"
)

// PointWriter is the blocking write surface of the InfluxDB client.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Influx writes each record as one point.
type Influx struct {
	client      influxdb2.Client
	writer      PointWriter
	measurement string
	tags        map[string]string
}

// NewInflux connects a blocking writer to the configured bucket.
func NewInflux(cfg config.InfluxConfig, appName string) *Influx {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Influx{
		client:      client,
		writer:      client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		measurement: cfg.Measurement,
		tags:        map[string]string{"source": appName},
	}
}

// NewInfluxWithWriter builds the sink around an existing writer.
func NewInfluxWithWriter(writer PointWriter, measurement string, tags map[string]string) *Influx {
	return &Influx{writer: writer, measurement: measurement, tags: tags}
}

// Name implements Sink.
func (s *Influx) Name() string { return "influx" }

// Write implements Sink.
func (s *Influx) Write(ctx context.Context, m power.Metrics) error {
	if err := s.writer.WritePoint(ctx, Point(s.measurement, s.tags, m)); err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	return nil
}

// Close implements Sink.
func (s *Influx) Close() error {
	if s.client != nil {
		s.client.Close()
	}
	return nil
}

// Point renders m as an InfluxDB point.
func Point(measurement string, tags map[string]string, m power.Metrics) *write.Point {
	fields := map[string]interface{}{
		"voltage_1":      m.Voltage1,
		"voltage_2":      m.Voltage2,
		"voltage_3":      m.Voltage3,
		"current_1":      m.Current1,
		"current_2":      m.Current2,
		"current_3":      m.Current3,
		"active_power":   m.ActivePower,
		"reactive_power": m.ReactivePower,
		"apparent_power": m.ApparentPower,
		"power_factor":   m.PowerFactor,
	}
	return influxdb2.NewPoint(measurement, tags, fields, m.Timestamp)
}
