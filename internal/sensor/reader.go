// Package sensor samples the temperature/humidity sensor.
package sensor

import (
	"context"
	"errors"
	"fmt"

	"github.com/afroash/climate-agent/internal/clock"
	"github.com/afroash/climate-agent/internal/models"
	"github.com/rs/zerolog"
)

// Reader turns raw sensor values into timestamped readings
type Reader struct {
	sensor DHTSensor
	clock  clock.Clock
	logger zerolog.Logger
}

// NewReader creates a new sensor reader
func NewReader(sensor DHTSensor, clk clock.Clock, logger zerolog.Logger) *Reader {
	if clk == nil {
		clk = clock.System{}
	}
	return &Reader{
		sensor: sensor,
		clock:  clk,
		logger: logger,
	}
}

// Sample performs one read. The reading is stamped when the read completes.
func (r *Reader) Sample(ctx context.Context) (models.Reading, error) {
	if err := ctx.Err(); err != nil {
		return models.Reading{}, err
	}

	temperature, humidity, err := r.sensor.Read()
	if err != nil {
		if errors.Is(err, ErrSensorRead) {
			return models.Reading{}, err
		}
		return models.Reading{}, fmt.Errorf("%w: %w", ErrSensorRead, err)
	}

	reading := models.NewReading(temperature, humidity, r.clock.Now())
	r.logger.Info().
		Float64("temperature", temperature).
		Float64("humidity", humidity).
		Int64("time", reading.Time).
		Msg(reading.String())
	return reading, nil
}

// Close releases the sensor
func (r *Reader) Close() error {
	return r.sensor.Close()
}
