// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package stream sends encoded frames to the receiving host over UDP. Each
// Session owns one socket and one send loop.
package stream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/relabs-tech/mocap_streamer/internal/monitoring"
	"github.com/relabs-tech/mocap_streamer/internal/sensors"
	"github.com/relabs-tech/mocap_streamer/internal/timeutil"
)

// DefaultWriteTimeout bounds a single datagram write.
const DefaultWriteTimeout = 250 * time.Millisecond

// ErrAlreadyStreaming is logged when Start is called on a streaming session.
// The session restarts instead of failing.
var ErrAlreadyStreaming = errors.New("stream: already streaming")

// TransportError is a socket failure. It ends the session it occurred in.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("stream: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// State is the session state.
type State int32

const (
	StateIdle State = iota
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// FrameSource yields encoded frames. A source with nothing new to send
// returns sensors.ErrIncompleteSample and the frame is skipped.
type FrameSource interface {
	NextFrame(ctx context.Context) ([]byte, error)
}

// Resetter is implemented by frame sources that buffer between runs. Start
// resets them so a run begins with data captured after it started.
type Resetter interface {
	Reset()
}

// Config describes a session.
type Config struct {
	Name         string
	Frames       FrameSource
	Interval     time.Duration
	LocalPort    int
	WriteTimeout time.Duration
	Sockets      SocketFactory
	Clock        timeutil.Clock

	// OnState, if set, is called on every state change with the error that
	// ended the session, if any. It runs on the session's goroutines and
	// must not call back into the session.
	OnState func(State, error)
}

// Stats counts the frames a session handled since it was created.
type Stats struct {
	Sent    uint64 `json:"sent"`
	Skipped uint64 `json:"skipped"`
}

// Session streams one kind of frame to one destination.
type Session struct {
	cfg Config

	state   atomic.Int32
	sent    atomic.Uint64
	skipped atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	runID  string
	dest   *net.UDPAddr

	errMu   sync.Mutex
	lastErr error
}

// NewSession returns an idle session.
func NewSession(cfg Config) *Session {
	if cfg.Sockets == nil {
		cfg.Sockets = RealSocketFactory{}
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	done := make(chan struct{})
	close(done)
	return &Session{cfg: cfg, done: done}
}

// Name returns the configured session name.
func (s *Session) Name() string { return s.cfg.Name }

// State returns the current state.
func (s *Session) State() State { return State(s.state.Load()) }

// Err returns the error that ended the last run, if any.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.lastErr
}

// Stats returns the frame counters.
func (s *Session) Stats() Stats {
	return Stats{Sent: s.sent.Load(), Skipped: s.skipped.Load()}
}

// Destination returns the address of the current or last run.
func (s *Session) Destination() *net.UDPAddr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dest
}

// Done returns a channel closed when the current or last run has ended.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Start begins streaming to destination:port. A streaming session is stopped
// first, its socket released before the new one is bound. Resolve and bind
// failures return a *TransportError and leave the session idle.
func (s *Session) Start(ctx context.Context, destination string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() == StateStreaming {
		monitoring.Logf("stream %s: %v, restarting", s.cfg.Name, ErrAlreadyStreaming)
	}
	s.stopLocked()

	raddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(destination, strconv.Itoa(port)))
	if err != nil {
		return s.fail(&TransportError{Op: "resolve", Err: err})
	}
	sock, err := s.cfg.Sockets.ListenUDP("udp", &net.UDPAddr{Port: s.cfg.LocalPort})
	if err != nil {
		return s.fail(&TransportError{Op: "listen", Err: err})
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.runID = uuid.NewString()
	s.dest = raddr
	s.setErr(nil)
	if r, ok := s.cfg.Frames.(Resetter); ok {
		r.Reset()
	}

	s.state.Store(int32(StateStreaming))
	monitoring.Logf("stream %s: run %s streaming to %s from %v every %v",
		s.cfg.Name, s.runID, raddr, sock.LocalAddr(), s.cfg.Interval)
	s.notify(StateStreaming, nil)

	go s.loop(runCtx, sock, raddr, done)
	return nil
}

// Stop ends the current run and waits until its socket is closed. Stop on an
// idle session is a no-op.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Session) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	<-s.done
}

func (s *Session) fail(err error) error {
	monitoring.Logf("stream %s: %v", s.cfg.Name, err)
	s.setErr(err)
	return err
}

func (s *Session) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	s.lastErr = err
}

func (s *Session) notify(st State, err error) {
	if s.cfg.OnState != nil {
		s.cfg.OnState(st, err)
	}
}

func (s *Session) loop(ctx context.Context, sock UDPSocket, raddr *net.UDPAddr, done chan struct{}) {
	var fault error
	defer close(done)
	defer func() {
		if err := sock.Close(); err != nil {
			monitoring.Logf("stream %s: close: %v", s.cfg.Name, err)
		}
		if fault != nil {
			s.setErr(fault)
		}
		s.state.Store(int32(StateIdle))
		s.notify(StateIdle, fault)
	}()

	cadence := timeutil.NewCadence(s.cfg.Clock, s.cfg.Interval)
	for {
		frame, err := s.cfg.Frames.NextFrame(ctx)
		if ctx.Err() != nil {
			return
		}
		switch {
		case errors.Is(err, sensors.ErrIncompleteSample):
			s.skipped.Add(1)
		case err != nil:
			monitoring.Logf("stream %s: frame: %v", s.cfg.Name, err)
			s.skipped.Add(1)
		default:
			if err := sock.SetWriteDeadline(s.cfg.Clock.Now().Add(s.cfg.WriteTimeout)); err != nil {
				fault = &TransportError{Op: "deadline", Err: err}
			} else if _, err := sock.WriteToUDP(frame, raddr); err != nil {
				fault = &TransportError{Op: "write", Err: err}
			}
			if fault != nil {
				monitoring.Logf("stream %s: %v, stopping", s.cfg.Name, fault)
				return
			}
			s.sent.Add(1)
		}

		if cadence.Wait(ctx) != nil {
			return
		}
	}
}
