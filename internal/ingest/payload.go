package ingest

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"

	"smart-meter-monitor/internal/measurement"
)

// MaxReading bounds the magnitude of a single voltage or current reading.
// Anything larger is a corrupt frame, not a meter value.
const MaxReading = 1e6

var payloadValidate = newPayloadValidator()

func newPayloadValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("reading", validReading); err != nil {
		panic(fmt.Sprintf("register reading validation: %v", err))
	}
	return v
}

func validReading(fl validator.FieldLevel) bool {
	x := fl.Field().Float()
	return !math.IsNaN(x) && math.Abs(x) <= MaxReading
}

// Payload is the telemetry wire format: epoch seconds plus per-phase readings.
// Pointers distinguish a missing field from a legitimate zero.
type Payload struct {
	TS *float64 `json:"ts" validate:"required,gt=0,lt=1e11"`
	V1 *float64 `json:"v1" validate:"required,reading"`
	V2 *float64 `json:"v2" validate:"required,reading"`
	V3 *float64 `json:"v3" validate:"required,reading"`
	I1 *float64 `json:"i1" validate:"required,reading"`
	I2 *float64 `json:"i2" validate:"required,reading"`
	I3 *float64 `json:"i3" validate:"required,reading"`
}

// DecodeSample parses and validates one telemetry message.
func DecodeSample(data []byte) (measurement.RawSample, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return measurement.RawSample{}, fmt.Errorf("decode payload: %w", err)
	}
	if err := payloadValidate.Struct(p); err != nil {
		return measurement.RawSample{}, fmt.Errorf("validate payload: %w", err)
	}
	return measurement.NewRawSample(
		measurement.TimeFromSeconds(*p.TS),
		[measurement.Phases]float64{*p.V1, *p.V2, *p.V3},
		[measurement.Phases]float64{*p.I1, *p.I2, *p.I3},
	), nil
}

// EncodeSample renders a sample in the telemetry wire format.
func EncodeSample(s measurement.RawSample) ([]byte, error) {
	ts := s.Seconds()
	p := Payload{
		TS: &ts,
		V1: &s.Voltage[0], V2: &s.Voltage[1], V3: &s.Voltage[2],
		I1: &s.Current[0], I2: &s.Current[1], I3: &s.Current[2],
	}
	return json.Marshal(p)
}
