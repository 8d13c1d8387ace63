// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"sync"

	"github.com/relabs-tech/mocap_streamer/internal/calibration"
	"github.com/relabs-tech/mocap_streamer/internal/stream"
)

// Event types pushed to websocket clients and the status publisher.
const (
	EventStage  = "stage"
	EventResult = "result"
	EventStream = "stream"
	EventError  = "error"
	EventStatus = "status"
)

// Event is one status change.
type Event struct {
	Type    string              `json:"type"`
	Stage   string              `json:"stage,omitempty"`
	Result  *calibration.Result `json:"result,omitempty"`
	Stream  *StreamStatus       `json:"stream,omitempty"`
	Status  *Status             `json:"status,omitempty"`
	Message string              `json:"message,omitempty"`
}

// StreamStatus describes one stream session.
type StreamStatus struct {
	Kind        string       `json:"kind"`
	State       string       `json:"state"`
	Destination string       `json:"destination,omitempty"`
	Stats       stream.Stats `json:"stats"`
	Error       string       `json:"error,omitempty"`
}

// Status is a snapshot of the whole streamer.
type Status struct {
	Stage            string              `json:"stage"`
	Result           *calibration.Result `json:"result,omitempty"`
	CalibrationError string              `json:"calibration_error,omitempty"`
	Streams          []StreamStatus      `json:"streams"`
}

// eventBufferSize bounds each subscriber's queue. Events beyond it are
// dropped for that subscriber only.
const eventBufferSize = 64

// eventBus fans events out to subscribers without blocking the publisher.
type eventBus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
}

func newEventBus() *eventBus {
	return &eventBus{subs: make(map[int]chan Event)}
}

func (b *eventBus) subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	ch := make(chan Event, eventBufferSize)
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

func (b *eventBus) publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
