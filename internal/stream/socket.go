// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package stream

import (
	"errors"
	"net"
	"sync"
	"time"
)

// UDPSocket is the part of *net.UDPConn a session sends through.
type UDPSocket interface {
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)
	SetWriteDeadline(t time.Time) error
	Close() error
	LocalAddr() net.Addr
}

// SocketFactory binds UDP sockets.
type SocketFactory interface {
	ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error)
}

// RealSocketFactory binds operating system sockets with net.ListenUDP.
type RealSocketFactory struct{}

// ListenUDP implements SocketFactory.
func (RealSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	conn, err := net.ListenUDP(network, laddr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// MockUDPSocket records the datagrams written to it.
type MockUDPSocket struct {
	mu            sync.Mutex
	writes        [][]byte
	addrs         []*net.UDPAddr
	writeDeadline time.Time
	closed        bool
	local         *net.UDPAddr

	// WriteError, when set, is returned by every later WriteToUDP.
	WriteError error
}

// NewMockUDPSocket returns an open mock socket bound to local.
func NewMockUDPSocket(local *net.UDPAddr) *MockUDPSocket {
	return &MockUDPSocket{local: local}
}

// WriteToUDP implements UDPSocket.
func (m *MockUDPSocket) WriteToUDP(b []byte, addr *net.UDPAddr) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, net.ErrClosed
	}
	if m.WriteError != nil {
		return 0, m.WriteError
	}
	m.writes = append(m.writes, append([]byte(nil), b...))
	m.addrs = append(m.addrs, addr)
	return len(b), nil
}

// SetWriteDeadline implements UDPSocket.
func (m *MockUDPSocket) SetWriteDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeDeadline = t
	return nil
}

// Close implements UDPSocket.
func (m *MockUDPSocket) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return net.ErrClosed
	}
	m.closed = true
	return nil
}

// LocalAddr implements UDPSocket.
func (m *MockUDPSocket) LocalAddr() net.Addr { return m.local }

// SetWriteError makes later writes fail with err.
func (m *MockUDPSocket) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WriteError = err
}

// Writes returns copies of the datagrams written so far.
func (m *MockUDPSocket) Writes() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.writes...)
}

// Destinations returns the address of every write.
func (m *MockUDPSocket) Destinations() []*net.UDPAddr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*net.UDPAddr(nil), m.addrs...)
}

// WriteDeadline returns the last deadline set.
func (m *MockUDPSocket) WriteDeadline() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeDeadline
}

// Closed reports whether Close was called.
func (m *MockUDPSocket) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// ErrPortInUse is returned by MockSocketFactory when a port is bound twice.
var ErrPortInUse = errors.New("stream: address already in use")

// MockSocketFactory hands out a new MockUDPSocket per bind and enforces that
// a fixed local port is only bound by one open socket at a time.
type MockSocketFactory struct {
	mu      sync.Mutex
	sockets []*MockUDPSocket
	next    int

	// Error, when set, is returned by every later ListenUDP.
	Error error
}

// ListenUDP implements SocketFactory.
func (f *MockSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Error != nil {
		return nil, f.Error
	}

	port := 0
	if laddr != nil {
		port = laddr.Port
	}
	if port != 0 {
		for _, s := range f.sockets {
			if s.local.Port == port && !s.Closed() {
				return nil, ErrPortInUse
			}
		}
	} else {
		f.next++
		port = 40000 + f.next
	}

	s := NewMockUDPSocket(&net.UDPAddr{IP: net.IPv4zero, Port: port})
	f.sockets = append(f.sockets, s)
	return s, nil
}

// Sockets returns every socket bound so far, oldest first.
func (f *MockSocketFactory) Sockets() []*MockUDPSocket {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*MockUDPSocket(nil), f.sockets...)
}
