// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package calibration establishes the reference frame a stream is read in:
// the barometric pressure at rest and the heading offset of the wearer's
// forward direction.
//
// A run moves Idle → Hold → Forward → Idle. Hold averages pressure over a
// fixed window while the wearer stands still. Forward waits until the wearer
// has turned at least MinHeadingDeltaDeg away from the held heading and
// stayed upright for a full window, then averages the orientation over that
// window.
package calibration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/relabs-tech/mocap_streamer/internal/config"
	"github.com/relabs-tech/mocap_streamer/internal/monitoring"
	"github.com/relabs-tech/mocap_streamer/internal/sensors"
	"github.com/relabs-tech/mocap_streamer/internal/timeutil"
)

var (
	// ErrAlreadyActive is returned by Begin while a run is in progress.
	ErrAlreadyActive = errors.New("calibration: already active")
	// ErrInsufficientSamples ends a run whose Hold stage saw no pressure or
	// no orientation reading.
	ErrInsufficientSamples = errors.New("calibration: insufficient samples")
)

// eventQueue bounds the readings buffered between the source callbacks and
// the run goroutine. Readings beyond it are dropped.
const eventQueue = 512

// Stage is the calibration state.
type Stage int32

const (
	StageIdle Stage = iota
	StageHold
	StageForward
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageHold:
		return "hold"
	case StageForward:
		return "forward"
	default:
		return fmt.Sprintf("stage(%d)", int32(s))
	}
}

// Config holds the thresholds of a run.
type Config struct {
	Device               string
	Window               time.Duration
	MinHeadingDeltaDeg   float64
	MinGravityZ          float64
	HeadingCorrectionDeg float64
}

// ConfigFrom extracts the calibration settings from the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Device:               cfg.CalibrationDevice,
		Window:               cfg.CalibrationWindow,
		MinHeadingDeltaDeg:   cfg.CalibrationMinHeadingDeltaDeg,
		MinGravityZ:          cfg.CalibrationMinGravityZ,
		HeadingCorrectionDeg: cfg.CalibrationHeadingCorrection,
	}
}

// Result is the outcome of a completed run. ReferenceHeadingOffsetDeg is the
// averaged forward heading plus HeadingCorrectionDeg, wrapped into
// (-180, 180]: a forward heading of 100° with the default 90° correction is
// reported as -170°, the same direction as 190°.
type Result struct {
	ReferencePressure         float32   `json:"reference_pressure"`
	ReferenceHeadingOffsetDeg float32   `json:"reference_heading_offset_deg"`
	CompletedAt               time.Time `json:"completed_at"`
	RunID                     string    `json:"run_id"`
}

// Listener receives engine events. Any field may be nil. Callbacks run on the
// engine's goroutines and must not block or call back into the engine.
type Listener struct {
	OnStage  func(Stage)
	OnResult func(Result)
	OnError  func(error)
}

// Engine runs calibrations against a sample source. One run at a time.
type Engine struct {
	cfg    Config
	src    sensors.Source
	haptic sensors.Haptic
	clock  timeutil.Clock

	stage  atomic.Int32
	result atomic.Pointer[Result]

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	lastErr   error
	listeners []Listener
}

// NewEngine returns an idle engine. A nil haptic disables vibration.
func NewEngine(cfg Config, src sensors.Source, haptic sensors.Haptic, clock timeutil.Clock) *Engine {
	if haptic == nil {
		haptic = sensors.NopHaptic{}
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	done := make(chan struct{})
	close(done)
	return &Engine{cfg: cfg, src: src, haptic: haptic, clock: clock, done: done}
}

// AddListener registers l for all later events.
func (e *Engine) AddListener(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

// Stage returns the current stage.
func (e *Engine) Stage() Stage {
	return Stage(e.stage.Load())
}

// Result returns the last completed result, if any.
func (e *Engine) Result() (Result, bool) {
	r := e.result.Load()
	if r == nil {
		return Result{}, false
	}
	return *r, true
}

// Err returns the error that ended the last run, or nil if it completed or
// is still running.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Done returns a channel closed when the current or last run has ended.
func (e *Engine) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

// Begin starts a run. The engine is in StageHold when Begin returns. While a
// run is active Begin logs and returns ErrAlreadyActive without side effects.
// Cancelling ctx aborts the run.
func (e *Engine) Begin(ctx context.Context) error {
	e.mu.Lock()
	if e.Stage() != StageIdle {
		e.mu.Unlock()
		monitoring.Logf("calibration: begin ignored: %v", ErrAlreadyActive)
		return ErrAlreadyActive
	}

	runCtx, cancel := context.WithCancel(ctx)
	events := make(chan sensors.Reading, eventQueue)
	push := func(r sensors.Reading) {
		select {
		case events <- r:
		default:
		}
	}

	var unsubscribe []func()
	for _, kind := range []sensors.Kind{sensors.KindOrientation, sensors.KindGravity, sensors.KindPressure} {
		ch := sensors.ChannelID{Device: e.cfg.Device, Kind: kind}
		unsubscribe = append(unsubscribe, e.src.Subscribe(ch, push))
	}

	runID := uuid.NewString()
	holdTimer := e.clock.NewTimer(e.cfg.Window)
	done := make(chan struct{})

	e.cancel = cancel
	e.done = done
	e.lastErr = nil
	e.stage.Store(int32(StageHold))
	e.mu.Unlock()

	monitoring.Logf("calibration: run %s started on %q, hold still for %v", runID, e.cfg.Device, e.cfg.Window)
	e.emitStage(StageHold)

	go func() {
		defer close(done)
		defer func() {
			for _, u := range unsubscribe {
				u()
			}
		}()
		defer cancel()
		e.run(runCtx, runID, events, holdTimer)
	}()
	return nil
}

// Cancel aborts the active run and waits for it to end. The run records
// context.Canceled. Cancel on an idle engine is a no-op.
func (e *Engine) Cancel() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-done
}

func (e *Engine) run(ctx context.Context, runID string, events <-chan sensors.Reading, holdTimer timeutil.Timer) {
	hold := &holdStage{}
	var forwardStart time.Time

holdLoop:
	for {
		select {
		case <-ctx.Done():
			holdTimer.Stop()
			e.abort(runID, ctx.Err())
			return
		case r := <-events:
			hold.observe(r)
		case forwardStart = <-holdTimer.C():
			for {
				select {
				case r := <-events:
					hold.observe(r)
				default:
					break holdLoop
				}
			}
		}
	}

	pressure, held, err := hold.finish()
	if err != nil {
		e.abort(runID, err)
		return
	}
	monitoring.Logf("calibration: run %s reference pressure %.2f hPa over %d readings, held heading %.1f°",
		runID, pressure, len(hold.pressures), held)

	e.pulse(sensors.PatternAck)
	e.stage.Store(int32(StageForward))
	e.emitStage(StageForward)

	forward := newForwardStage(e.cfg, held, forwardStart)
	for {
		select {
		case <-ctx.Done():
			e.abort(runID, ctx.Err())
			return
		case r := <-events:
			sig, complete := forward.observe(r, r.Timestamp)
			switch sig {
			case signalStart:
				e.pulse(sensors.PatternAttention)
			case signalStop:
				if err := e.haptic.Cancel(); err != nil {
					monitoring.Logf("calibration: haptic: %v", err)
				}
			}
			if !complete {
				continue
			}

			heading, err := forward.finish()
			if err != nil {
				e.abort(runID, err)
				return
			}
			e.complete(Result{
				ReferencePressure:         float32(pressure),
				ReferenceHeadingOffsetDeg: float32(heading),
				CompletedAt:               e.clock.Now(),
				RunID:                     runID,
			})
			return
		}
	}
}

func (e *Engine) complete(res Result) {
	e.result.Store(&res)
	e.pulse(sensors.PatternDone)
	e.stage.Store(int32(StageIdle))

	monitoring.Logf("calibration: run %s complete, reference heading offset %.1f°", res.RunID, res.ReferenceHeadingOffsetDeg)
	for _, l := range e.snapshotListeners() {
		if l.OnResult != nil {
			l.OnResult(res)
		}
	}
	e.emitStage(StageIdle)
}

func (e *Engine) abort(runID string, err error) {
	if cerr := e.haptic.Cancel(); cerr != nil {
		monitoring.Logf("calibration: haptic: %v", cerr)
	}

	e.mu.Lock()
	e.lastErr = err
	e.mu.Unlock()
	e.stage.Store(int32(StageIdle))

	monitoring.Logf("calibration: run %s aborted: %v", runID, err)
	for _, l := range e.snapshotListeners() {
		if l.OnError != nil {
			l.OnError(err)
		}
	}
	e.emitStage(StageIdle)
}

func (e *Engine) pulse(p sensors.Pattern) {
	if err := e.haptic.Pulse(p); err != nil {
		monitoring.Logf("calibration: haptic %v: %v", p, err)
	}
}

func (e *Engine) emitStage(s Stage) {
	for _, l := range e.snapshotListeners() {
		if l.OnStage != nil {
			l.OnStage(s)
		}
	}
}

func (e *Engine) snapshotListeners() []Listener {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Listener(nil), e.listeners...)
}
