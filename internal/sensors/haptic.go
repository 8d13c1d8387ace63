// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"log"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/mocap_streamer/internal/timeutil"
)

// Pattern is a vibration pattern played by a Haptic.
type Pattern int

const (
	// PatternAck is a single short buzz.
	PatternAck Pattern = iota + 1
	// PatternAttention repeats until cancelled or replaced.
	PatternAttention
	// PatternDone is a double buzz.
	PatternDone
)

func (p Pattern) String() string {
	switch p {
	case PatternAck:
		return "ack"
	case PatternAttention:
		return "attention"
	case PatternDone:
		return "done"
	default:
		return fmt.Sprintf("pattern(%d)", int(p))
	}
}

// patternSteps returns alternating on/off durations starting with on, and
// whether the sequence repeats.
func patternSteps(p Pattern) ([]time.Duration, bool) {
	switch p {
	case PatternAck:
		return []time.Duration{120 * time.Millisecond}, false
	case PatternAttention:
		return []time.Duration{200 * time.Millisecond, 300 * time.Millisecond}, true
	case PatternDone:
		return []time.Duration{150 * time.Millisecond, 100 * time.Millisecond, 150 * time.Millisecond}, false
	default:
		return nil, false
	}
}

// Haptic is a vibration actuator. Pulse starts a pattern without blocking
// and replaces whatever is playing; Cancel stops it.
type Haptic interface {
	Pulse(p Pattern) error
	Cancel() error
}

// NopHaptic discards every pattern.
type NopHaptic struct{}

func (NopHaptic) Pulse(Pattern) error { return nil }
func (NopHaptic) Cancel() error       { return nil }

type levelWriter interface {
	Out(l gpio.Level) error
}

// GPIOHaptic drives a vibration motor switched by one GPIO pin.
type GPIOHaptic struct {
	pin   levelWriter
	clock timeutil.Clock

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewGPIOHaptic opens the named pin, e.g. "GPIO17".
func NewGPIOHaptic(pinName string) (*GPIOHaptic, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("haptic: periph host init: %w", err)
	}
	pin := gpioreg.ByName(pinName)
	if pin == nil {
		return nil, fmt.Errorf("haptic: pin %q not found", pinName)
	}
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("haptic: pin %s: %w", pinName, err)
	}
	log.Printf("haptic: motor on %s", pin.Name())
	return newGPIOHaptic(pin, timeutil.RealClock{}), nil
}

func newGPIOHaptic(pin levelWriter, clock timeutil.Clock) *GPIOHaptic {
	return &GPIOHaptic{pin: pin, clock: clock}
}

// Pulse implements Haptic.
func (h *GPIOHaptic) Pulse(p Pattern) error {
	steps, repeat := patternSteps(p)
	if steps == nil {
		return fmt.Errorf("haptic: unknown %v", p)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopLocked()

	stop := make(chan struct{})
	done := make(chan struct{})
	h.stop, h.done = stop, done
	go h.play(steps, repeat, stop, done)
	return nil
}

// Cancel implements Haptic.
func (h *GPIOHaptic) Cancel() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopLocked()
	return h.pin.Out(gpio.Low)
}

func (h *GPIOHaptic) stopLocked() {
	if h.stop == nil {
		return
	}
	close(h.stop)
	<-h.done
	h.stop, h.done = nil, nil
}

func (h *GPIOHaptic) play(steps []time.Duration, repeat bool, stop, done chan struct{}) {
	defer close(done)
	defer func() {
		if err := h.pin.Out(gpio.Low); err != nil {
			log.Printf("haptic: %v", err)
		}
	}()

	for {
		for i, d := range steps {
			level := gpio.Low
			if i%2 == 0 {
				level = gpio.High
			}
			if err := h.pin.Out(level); err != nil {
				log.Printf("haptic: %v", err)
				return
			}

			timer := h.clock.NewTimer(d)
			select {
			case <-stop:
				timer.Stop()
				return
			case <-timer.C():
			}
		}
		if !repeat {
			return
		}
	}
}
