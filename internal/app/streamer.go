// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"time"

	"github.com/relabs-tech/mocap_streamer/internal/calibration"
	"github.com/relabs-tech/mocap_streamer/internal/config"
	"github.com/relabs-tech/mocap_streamer/internal/sensors"
	"github.com/relabs-tech/mocap_streamer/internal/stream"
	"github.com/relabs-tech/mocap_streamer/internal/timeutil"
)

// Stream kinds, as used in the control API and MQTT topics.
const (
	StreamIMULeft  = "imu_left"
	StreamIMURight = "imu_right"
	StreamIMUDual  = "imu_dual"
	StreamPPG      = "ppg"
	StreamAudio    = "audio"
)

// Device names of the wearable pair. PPG and audio come from the left one.
const (
	DeviceLeft  = "left"
	DeviceRight = "right"
)

// ErrUnknownStream is returned for a stream kind the streamer does not run.
var ErrUnknownStream = errors.New("app: unknown stream")

// StreamerDeps are the collaborators of a Streamer. Zero values select the
// real implementations.
type StreamerDeps struct {
	Haptic  sensors.Haptic
	Clock   timeutil.Clock
	Sockets stream.SocketFactory
	// Kinds lists the channels each device reports. Nil means every IMU kind.
	Kinds func(device string) []sensors.Kind
}

type streamEntry struct {
	kind    string
	port    int
	session *stream.Session
}

// Streamer owns the calibration engine and the stream sessions of one
// wearable pair. Calibration and streaming run independently.
type Streamer struct {
	cfg    *config.Config
	hub    *sensors.Hub
	engine *calibration.Engine
	bus    *eventBus

	streams []*streamEntry
	audio   *stream.AudioFrames
}

// NewStreamer wires the engine and one session per stream kind onto hub.
func NewStreamer(cfg *config.Config, hub *sensors.Hub, deps StreamerDeps) *Streamer {
	if deps.Clock == nil {
		deps.Clock = timeutil.RealClock{}
	}
	if deps.Kinds == nil {
		deps.Kinds = func(string) []sensors.Kind { return sensors.IMUKinds }
	}

	s := &Streamer{
		cfg:    cfg,
		hub:    hub,
		engine: calibration.NewEngine(calibration.ConfigFrom(cfg), hub, deps.Haptic, deps.Clock),
		bus:    newEventBus(),
	}
	s.engine.AddListener(calibration.Listener{
		OnStage: func(st calibration.Stage) {
			s.bus.publish(Event{Type: EventStage, Stage: st.String()})
		},
		OnResult: func(r calibration.Result) {
			s.bus.publish(Event{Type: EventResult, Result: &r})
		},
		OnError: func(err error) {
			s.bus.publish(Event{Type: EventError, Stage: s.engine.Stage().String(), Message: err.Error()})
		},
	})

	composer := func(device string) *sensors.Composer {
		return sensors.NewIMUComposer(hub, device, deps.Kinds(device)...)
	}
	if cfg.IMUDualMerge {
		s.add(deps, StreamIMUDual, cfg.PortIMULeft, cfg.IMUSendInterval,
			stream.NewDualIMUFrames(composer(DeviceLeft), composer(DeviceRight)))
	} else {
		s.add(deps, StreamIMULeft, cfg.PortIMULeft, cfg.IMUSendInterval, stream.NewIMUFrames(composer(DeviceLeft)))
		s.add(deps, StreamIMURight, cfg.PortIMURight, cfg.IMUSendInterval, stream.NewIMUFrames(composer(DeviceRight)))
	}
	s.add(deps, StreamPPG, cfg.PortPPG, cfg.PPGSendInterval, stream.NewPPGFrames(hub, DeviceLeft))

	s.audio = stream.NewAudioFrames(hub, DeviceLeft, cfg.AudioBufferBytes, cfg.AudioSendInterval, deps.Clock)
	s.add(deps, StreamAudio, cfg.PortAudio, cfg.AudioSendInterval, s.audio)

	return s
}

func (s *Streamer) add(deps StreamerDeps, kind string, port int, interval time.Duration, frames stream.FrameSource) {
	e := &streamEntry{kind: kind, port: port}
	e.session = stream.NewSession(stream.Config{
		Name:         kind,
		Frames:       frames,
		Interval:     interval,
		WriteTimeout: s.cfg.StreamWriteTimeout,
		Sockets:      deps.Sockets,
		Clock:        deps.Clock,
		OnState: func(st stream.State, err error) {
			status := StreamStatus{Kind: kind, State: st.String(), Stats: e.session.Stats()}
			if err != nil {
				status.Error = err.Error()
			}
			s.bus.publish(Event{Type: EventStream, Stream: &status})
		},
	})
	s.streams = append(s.streams, e)
}

// Hub returns the sample hub the streamer reads.
func (s *Streamer) Hub() *sensors.Hub { return s.hub }

// Engine returns the calibration engine.
func (s *Streamer) Engine() *calibration.Engine { return s.engine }

// Kinds returns the stream kinds in a stable order.
func (s *Streamer) Kinds() []string {
	kinds := make([]string, len(s.streams))
	for i, e := range s.streams {
		kinds[i] = e.kind
	}
	return kinds
}

// Subscribe returns a channel of status events and a function that ends the
// subscription.
func (s *Streamer) Subscribe() (<-chan Event, func()) {
	return s.bus.subscribe()
}

// BeginCalibration starts a calibration run bound to ctx.
func (s *Streamer) BeginCalibration(ctx context.Context) error {
	return s.engine.Begin(ctx)
}

// CancelCalibration aborts the active calibration run, if any.
func (s *Streamer) CancelCalibration() {
	s.engine.Cancel()
}

// StartStream starts the named stream. An empty destination or a zero port
// selects the configured default.
func (s *Streamer) StartStream(ctx context.Context, kind, destination string, port int) error {
	e, err := s.lookup(kind)
	if err != nil {
		return err
	}
	if destination == "" {
		destination = s.cfg.DestinationIP
	}
	if port == 0 {
		port = e.port
	}
	return e.session.Start(ctx, destination, port)
}

// StopStream stops the named stream.
func (s *Streamer) StopStream(kind string) error {
	e, err := s.lookup(kind)
	if err != nil {
		return err
	}
	e.session.Stop()
	return nil
}

// StreamStatus returns the status of the named stream.
func (s *Streamer) StreamStatus(kind string) (StreamStatus, error) {
	e, err := s.lookup(kind)
	if err != nil {
		return StreamStatus{}, err
	}
	return s.streamStatus(e), nil
}

func (s *Streamer) streamStatus(e *streamEntry) StreamStatus {
	st := StreamStatus{
		Kind:  e.kind,
		State: e.session.State().String(),
		Stats: e.session.Stats(),
	}
	if dest := e.session.Destination(); dest != nil {
		st.Destination = dest.String()
	} else {
		st.Destination = net.JoinHostPort(s.cfg.DestinationIP, strconv.Itoa(e.port))
	}
	if err := e.session.Err(); err != nil {
		st.Error = err.Error()
	}
	return st
}

// Status returns a snapshot of calibration and every stream.
func (s *Streamer) Status() Status {
	st := Status{Stage: s.engine.Stage().String()}
	if r, ok := s.engine.Result(); ok {
		st.Result = &r
	}
	if err := s.engine.Err(); err != nil {
		st.CalibrationError = err.Error()
	}
	for _, e := range s.streams {
		st.Streams = append(st.Streams, s.streamStatus(e))
	}
	return st
}

// Close stops every stream and any calibration run.
func (s *Streamer) Close() {
	s.engine.Cancel()
	for _, e := range s.streams {
		e.session.Stop()
	}
	s.audio.Close()
	log.Println("streamer: stopped")
}

func (s *Streamer) lookup(kind string) (*streamEntry, error) {
	for _, e := range s.streams {
		if e.kind == kind {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStream, kind)
}
