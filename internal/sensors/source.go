// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sensors is the sample source side of the streamer: the channel
// hub consumers subscribe to, the producers that feed it (hardware, serial
// wearable, PCM audio, mock) and the haptic actuator.
package sensors

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrIncompleteSample is returned when a merged sample cannot be composed
// yet, e.g. because not every registered channel has reported.
var ErrIncompleteSample = errors.New("sensors: incomplete sample")

// Kind identifies the type of a sensor channel.
type Kind uint8

const (
	KindOrientation Kind = iota + 1
	KindAccel
	KindGyro
	KindGravity
	KindLinearAccel
	KindMag
	KindEuler
	KindPressure
	KindPPG
	KindAudio
)

var kindNames = map[Kind]string{
	KindOrientation: "orientation",
	KindAccel:       "accel",
	KindGyro:        "gyro",
	KindGravity:     "gravity",
	KindLinearAccel: "linear_accel",
	KindMag:         "mag",
	KindEuler:       "euler",
	KindPressure:    "pressure",
	KindPPG:         "ppg",
	KindAudio:       "audio",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Width returns the number of float values a reading of this kind carries.
// Audio readings carry PCM bytes instead and report 0.
func (k Kind) Width() int {
	switch k {
	case KindOrientation:
		return 4
	case KindAccel, KindGyro, KindGravity, KindLinearAccel, KindMag, KindEuler:
		return 3
	case KindPressure:
		return 1
	case KindPPG:
		return 16
	default:
		return 0
	}
}

// ParseKind resolves a channel kind by name.
func ParseKind(name string) (Kind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("sensors: unknown channel kind %q", name)
}

// ChannelID names one channel of one device, e.g. {"left", KindGyro}.
type ChannelID struct {
	Device string
	Kind   Kind
}

func (c ChannelID) String() string {
	return c.Device + "/" + c.Kind.String()
}

// Reading is one timestamped value pushed on a channel. Values holds Width()
// floats for numeric kinds; PCM holds little-endian PCM16 bytes for audio.
type Reading struct {
	Channel   ChannelID
	Timestamp time.Time
	Values    []float32
	PCM       []byte
}

// Source supplies readings. Subscribe registers a callback invoked for every
// new reading on the channel and returns a function that removes it. Latest
// returns the most recent reading of a channel, if any.
type Source interface {
	Subscribe(ch ChannelID, fn func(Reading)) (unsubscribe func())
	Latest(ch ChannelID) (Reading, bool)
}

// Hub is the in-process Source every producer publishes into.
type Hub struct {
	mu     sync.RWMutex
	latest map[ChannelID]Reading
	subs   map[ChannelID]map[uint64]func(Reading)
	nextID uint64
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		latest: make(map[ChannelID]Reading),
		subs:   make(map[ChannelID]map[uint64]func(Reading)),
	}
}

// Publish records r as the latest reading of its channel and notifies the
// subscribers. Callbacks run on the publisher's goroutine, outside the hub
// lock, and must not block.
func (h *Hub) Publish(r Reading) error {
	if w := r.Channel.Kind.Width(); w > 0 && len(r.Values) != w {
		return fmt.Errorf("sensors: %s reading has %d values, want %d", r.Channel, len(r.Values), w)
	}

	h.mu.Lock()
	h.latest[r.Channel] = r
	fns := make([]func(Reading), 0, len(h.subs[r.Channel]))
	for _, fn := range h.subs[r.Channel] {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(r)
	}
	return nil
}

// Subscribe implements Source.
func (h *Hub) Subscribe(ch ChannelID, fn func(Reading)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	if h.subs[ch] == nil {
		h.subs[ch] = make(map[uint64]func(Reading))
	}
	h.subs[ch][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[ch], id)
			if len(h.subs[ch]) == 0 {
				delete(h.subs, ch)
			}
		})
	}
}

// Latest implements Source.
func (h *Hub) Latest(ch ChannelID) (Reading, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.latest[ch]
	return r, ok
}

// Subscribers returns the number of callbacks registered on ch.
func (h *Hub) Subscribers(ch ChannelID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[ch])
}
