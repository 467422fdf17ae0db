package sensor

import (
	"errors"
	"fmt"

	"github.com/afroash/dht"
)

// ErrSensorRead wraps every failed sample
var ErrSensorRead = errors.New("sensor read failed")

// DHTSensor defines the interface for reading from a DHT sensor
type DHTSensor interface {
	// Read performs a single reading from the sensor
	// Returns temperature (°C), humidity (%), and any error
	Read() (temperature float64, humidity float64, err error)

	// Close cleans up GPIO resources
	Close() error
}

// DHT11Reader implements DHTSensor for DHT11 hardware
type DHT11Reader struct {
	pin        int
	maxRetries int
	sensor     *dht.Sensor
}

// NewDHT11Reader opens a DHT11 on the given BCM pin
func NewDHT11Reader(pin, maxRetries int) (*DHT11Reader, error) {
	sensor, err := dht.NewDHT11(pin)
	if err != nil {
		return nil, fmt.Errorf("open dht11 on pin %d: %w", pin, err)
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &DHT11Reader{
		pin:        pin,
		maxRetries: maxRetries,
		sensor:     sensor,
	}, nil
}

// Read performs a reading from the DHT11 sensor with retry logic
func (d *DHT11Reader) Read() (float64, float64, error) {
	reading, err := d.sensor.ReadRetry(d.maxRetries)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: after %d retries on pin %d: %w", ErrSensorRead, d.maxRetries, d.pin, err)
	}
	if err := validateReading(reading.Temperature, reading.Humidity); err != nil {
		return 0, 0, fmt.Errorf("%w: invalid reading: %w", ErrSensorRead, err)
	}

	return reading.Temperature, reading.Humidity, nil
}

// Close cleans up GPIO resources
func (d *DHT11Reader) Close() error {
	return d.sensor.Close()
}

// validateReading checks if temperature and humidity values are reasonable
func validateReading(temp, humidity float64) error {
	const (
		minTemp     = -20.0
		maxTemp     = 60.0
		minHumidity = 0.0
		maxHumidity = 100.0
	)
	if temp < minTemp || temp > maxTemp {
		return fmt.Errorf("temperature %.1f°C outside %.0f..%.0f°C", temp, minTemp, maxTemp)
	}
	if humidity < minHumidity || humidity > maxHumidity {
		return fmt.Errorf("humidity %.1f%% outside %.0f..%.0f%%", humidity, minHumidity, maxHumidity)
	}
	return nil
}
