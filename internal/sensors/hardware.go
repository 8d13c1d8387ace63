// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/relabs-tech/mocap_streamer/internal/config"
	"github.com/relabs-tech/mocap_streamer/internal/imu"
	"github.com/relabs-tech/mocap_streamer/internal/orientation"
	"github.com/relabs-tech/mocap_streamer/internal/timeutil"
)

const (
	standardGravity = 9.80665 // m/s²
	gravityAlpha    = 0.8     // low-pass weight of the previous gravity estimate
)

// Sink receives readings from a producer. *Hub implements it.
type Sink interface {
	Publish(r Reading) error
}

// HardwareDevice is one wired sensor pair. Env may be nil when the device has
// no barometer.
type HardwareDevice struct {
	Name string
	IMU  imu.RawReader
	Env  EnvReader
}

// HardwareProducer polls MPU9250 and BMP280 devices and publishes their
// converted readings.
type HardwareProducer struct {
	sink     Sink
	clock    timeutil.Clock
	interval time.Duration
	devices  []*hardwareDevice
}

type hardwareDevice struct {
	HardwareDevice
	conv *imuConverter
}

// NewHardwareProducer wires already opened devices. accelRange and gyroRange
// are the register selectors the devices were configured with.
func NewHardwareProducer(sink Sink, clock timeutil.Clock, interval time.Duration, accelRange, gyroRange byte, devices ...HardwareDevice) *HardwareProducer {
	p := &HardwareProducer{sink: sink, clock: clock, interval: interval}
	for _, d := range devices {
		p.devices = append(p.devices, &hardwareDevice{
			HardwareDevice: d,
			conv:           newIMUConverter(d.Name, accelRange, gyroRange),
		})
	}
	return p
}

// OpenHardware opens the devices named in cfg. The left IMU is required; the
// right IMU and the barometers are used when configured.
func OpenHardware(cfg *config.Config, sink Sink) (*HardwareProducer, error) {
	var devices []HardwareDevice

	left, err := openDevice("left", cfg.IMULeftSPIDevice, cfg.IMULeftCSPin, cfg.BMPLeftSPIDevice, cfg)
	if err != nil {
		return nil, err
	}
	devices = append(devices, left)

	if cfg.IMURightSPIDevice != "" {
		right, err := openDevice("right", cfg.IMURightSPIDevice, cfg.IMURightCSPin, cfg.BMPRightSPIDevice, cfg)
		if err != nil {
			log.Printf("hardware: right device unavailable, continuing with left only: %v", err)
		} else {
			devices = append(devices, right)
		}
	}

	for _, d := range devices {
		log.Printf("hardware: opened %v", d)
	}

	interval := time.Duration(cfg.IMUSampleInterval) * time.Millisecond
	return NewHardwareProducer(sink, timeutil.RealClock{}, interval, cfg.IMUAccelRange, cfg.IMUGyroRange, devices...), nil
}

func openDevice(name, spiDev, csPin, bmpDev string, cfg *config.Config) (HardwareDevice, error) {
	reader, err := NewIMUSource(name, spiDev, csPin, cfg.IMUAccelRange, cfg.IMUGyroRange)
	if err != nil {
		return HardwareDevice{}, err
	}
	d := HardwareDevice{Name: name, IMU: reader}

	if bmpDev != "" {
		envReader, err := NewBMPSource(name, bmpDev)
		if err != nil {
			log.Printf("hardware: %s barometer unavailable: %v", name, err)
		} else {
			d.Env = envReader
		}
	}
	return d, nil
}

// Kinds returns the channels the named device publishes.
func (p *HardwareProducer) Kinds(device string) []Kind {
	for _, d := range p.devices {
		if d.Name != device {
			continue
		}
		if d.Env == nil {
			return IMUKinds[:len(IMUKinds)-1]
		}
		return IMUKinds
	}
	return nil
}

// Run polls every device once per interval until ctx is cancelled. Read
// errors are logged and the tick is skipped.
func (p *HardwareProducer) Run(ctx context.Context) error {
	log.Printf("hardware: polling %d device(s) every %v", len(p.devices), p.interval)
	cadence := timeutil.NewCadence(p.clock, p.interval)
	for {
		if err := cadence.Wait(ctx); err != nil {
			return err
		}
		p.poll(p.clock.Now())
	}
}

func (p *HardwareProducer) poll(now time.Time) {
	for _, d := range p.devices {
		raw, err := d.IMU.ReadRaw()
		if err != nil {
			log.Printf("hardware: %v", err)
			continue
		}

		pressure, hasPressure := 0.0, false
		if d.Env != nil {
			e, err := d.Env.ReadEnv()
			if err != nil {
				log.Printf("hardware: %v", err)
			} else {
				pressure, hasPressure = e.PressureHPa, true
			}
		}

		for _, r := range d.conv.convert(raw, now) {
			p.publish(r)
		}
		if hasPressure {
			p.publish(Reading{
				Channel:   ChannelID{Device: d.Name, Kind: KindPressure},
				Timestamp: now,
				Values:    []float32{float32(pressure)},
			})
		}
	}
}

func (p *HardwareProducer) publish(r Reading) {
	if err := p.sink.Publish(r); err != nil {
		log.Printf("hardware: publish %s: %v", r.Channel, err)
	}
}

// imuConverter turns raw counts into physical units and a tilt-compensated
// orientation. Roll and pitch come from the accelerometer; yaw is the
// integrated gyro Z rate.
type imuConverter struct {
	device   string
	accelLSB float64 // counts per g
	gyroLSB  float64 // counts per °/s

	gravity [3]float64
	yaw     float64
	last    time.Time
}

func newIMUConverter(device string, accelRange, gyroRange byte) *imuConverter {
	return &imuConverter{
		device:   device,
		accelLSB: 16384.0 / float64(int(1)<<accelRange),
		gyroLSB:  131.0 / float64(int(1)<<gyroRange),
	}
}

func (c *imuConverter) convert(raw imu.Raw, now time.Time) []Reading {
	accel := [3]float64{
		float64(raw.Ax) / c.accelLSB * standardGravity,
		float64(raw.Ay) / c.accelLSB * standardGravity,
		float64(raw.Az) / c.accelLSB * standardGravity,
	}
	gyroDeg := [3]float64{
		float64(raw.Gx) / c.gyroLSB,
		float64(raw.Gy) / c.gyroLSB,
		float64(raw.Gz) / c.gyroLSB,
	}

	if c.last.IsZero() {
		c.gravity = accel
	} else {
		dt := now.Sub(c.last).Seconds()
		c.yaw = orientation.WrapDegrees(c.yaw + gyroDeg[2]*dt)
		for i := range c.gravity {
			c.gravity[i] = gravityAlpha*c.gravity[i] + (1-gravityAlpha)*accel[i]
		}
	}
	c.last = now

	pose := orientation.ComputePoseFromAccel(accel[0], accel[1], accel[2])
	pose.Yaw = c.yaw
	q := pose.Quaternion().Float32()

	linear := [3]float64{
		accel[0] - c.gravity[0],
		accel[1] - c.gravity[1],
		accel[2] - c.gravity[2],
	}
	rad := math.Pi / 180.0

	reading := func(kind Kind, values ...float32) Reading {
		return Reading{
			Channel:   ChannelID{Device: c.device, Kind: kind},
			Timestamp: now,
			Values:    values,
		}
	}

	return []Reading{
		reading(KindOrientation, q[:]...),
		reading(KindAccel, vec32(accel)...),
		reading(KindGyro, float32(gyroDeg[0]*rad), float32(gyroDeg[1]*rad), float32(gyroDeg[2]*rad)),
		reading(KindGravity, vec32(c.gravity)...),
		reading(KindLinearAccel, vec32(linear)...),
		// No magnetometer on the upstream MPU9250 driver.
		reading(KindMag, 0, 0, 0),
		reading(KindEuler, float32(pose.Roll), float32(pose.Pitch), float32(pose.Yaw)),
	}
}

func vec32(v [3]float64) []float32 {
	return []float32{float32(v[0]), float32(v[1]), float32(v[2])}
}

// String is used in log lines.
func (d HardwareDevice) String() string {
	return fmt.Sprintf("%s (barometer: %t)", d.Name, d.Env != nil)
}
