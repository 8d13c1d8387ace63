// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package monitoring holds the diagnostic logger shared by the streaming and
// calibration packages.
package monitoring

import (
	"log"
	"sync"
)

var (
	logMu sync.RWMutex
	logf  = log.Printf
)

// Logf writes a diagnostic line through the current logger. It defaults to
// log.Printf.
func Logf(format string, v ...interface{}) {
	logMu.RLock()
	f := logf
	logMu.RUnlock()
	f(format, v...)
}

// SetLogger replaces the package logger. Passing nil mutes it.
func SetLogger(f func(format string, v ...interface{})) {
	logMu.Lock()
	defer logMu.Unlock()
	if f == nil {
		logf = func(string, ...interface{}) {}
		return
	}
	logf = f
}
