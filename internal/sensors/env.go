// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"

	"github.com/relabs-tech/mocap_streamer/internal/env"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/host/v3"
)

// EnvReader is anything that can provide barometer readings.
type EnvReader interface {
	ReadEnv() (env.Sample, error)
}

type bmpSource struct {
	name string
	dev  *bmxx80.Dev
}

// NewBMPSource opens a BMP280 class barometer on the given SPI device.
func NewBMPSource(name, spiDev string) (EnvReader, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%s BMP: periph host init: %w", name, err)
	}

	port, err := spireg.Open(spiDev)
	if err != nil {
		return nil, fmt.Errorf("%s BMP SPI open: %w", name, err)
	}

	dev, err := bmxx80.NewSPI(port, &bmxx80.DefaultOpts)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("%s BMP init: %w", name, err)
	}

	return &bmpSource{name: name, dev: dev}, nil
}

// ReadEnv reads temperature and pressure.
func (s *bmpSource) ReadEnv() (env.Sample, error) {
	var e physic.Env
	if err := s.dev.Sense(&e); err != nil {
		return env.Sample{}, fmt.Errorf("%s BMP sense: %w", s.name, err)
	}

	pressurePa := float64(e.Pressure) / float64(physic.Pascal)
	return env.Sample{
		Source:      s.name,
		Temperature: e.Temperature.Celsius(),
		PressureHPa: pressurePa / 100.0, // 1 hPa = 100 Pa
	}, nil
}
