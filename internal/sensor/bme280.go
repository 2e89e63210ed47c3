// Package sensor publishes the readings of a locally attached BME280.
package sensor

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/host/v3"
)

// Reading is one environmental measurement.
type Reading struct {
	Temperature float64 // °C
	Humidity    float64 // %rH
	Pressure    float64 // hPa
}

// Sensor takes measurements until closed.
type Sensor interface {
	Sense() (Reading, error)
	Close() error
}

// Opener connects to a sensor. Open is the production implementation.
type Opener func(addr uint16) (Sensor, error)

// BME280 is a Bosch BME280 on the default I²C bus.
type BME280 struct {
	bus i2c.BusCloser
	dev *bmxx80.Dev
}

// Open initializes the host drivers and the sensor at addr, usually 0x76.
func Open(addr uint16) (Sensor, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	bus, err := i2creg.Open("") // default bus, usually /dev/i2c-1
	if err != nil {
		return nil, fmt.Errorf("open i2c bus: %w", err)
	}
	dev, err := bmxx80.NewI2C(bus, addr, &bmxx80.DefaultOpts)
	if err != nil {
		_ = bus.Close()
		return nil, fmt.Errorf("bme280 at 0x%02x: %w", addr, err)
	}
	return &BME280{bus: bus, dev: dev}, nil
}

func (s *BME280) Sense() (Reading, error) {
	var env physic.Env
	if err := s.dev.Sense(&env); err != nil {
		return Reading{}, fmt.Errorf("sense: %w", err)
	}
	return Reading{
		Temperature: env.Temperature.Celsius(),
		Humidity:    float64(env.Humidity) / float64(physic.PercentRH),
		Pressure:    float64(env.Pressure) / float64(100*physic.Pascal),
	}, nil
}

func (s *BME280) Close() error {
	herr := s.dev.Halt()
	if err := s.bus.Close(); err != nil {
		return err
	}
	return herr
}
