// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/relabs-tech/mocap_streamer/internal/calibration"
	"github.com/relabs-tech/mocap_streamer/internal/stream"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins on the local network
	},
}

// WSMessage is an action sent by a websocket client.
type WSMessage struct {
	Action      string `json:"action"` // calibrate, cancel, start, stop, status
	Stream      string `json:"stream,omitempty"`
	Destination string `json:"destination,omitempty"`
	Port        int    `json:"port,omitempty"`
}

// StartRequest is the optional body of POST /api/streams/{kind}.
type StartRequest struct {
	Destination string `json:"destination"`
	Port        int    `json:"port"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Control serves the HTTP and websocket control surface of a Streamer.
type Control struct {
	ctx context.Context
	s   *Streamer
}

// NewControl returns a control surface. Calibration runs and streams started
// through it live until ctx is cancelled or they are stopped.
func NewControl(ctx context.Context, s *Streamer) *Control {
	return &Control{ctx: ctx, s: s}
}

// Router returns the control routes.
func (c *Control) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/status", c.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/calibration", c.handleBeginCalibration).Methods(http.MethodPost)
	r.HandleFunc("/api/calibration", c.handleCancelCalibration).Methods(http.MethodDelete)
	r.HandleFunc("/api/streams/{kind}", c.handleStartStream).Methods(http.MethodPost)
	r.HandleFunc("/api/streams/{kind}", c.handleStopStream).Methods(http.MethodDelete)
	r.HandleFunc("/ws", c.handleWS)
	return r
}

func (c *Control) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.s.Status())
}

func (c *Control) handleBeginCalibration(w http.ResponseWriter, r *http.Request) {
	if err := c.s.BeginCalibration(c.ctx); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, c.s.Status())
}

func (c *Control) handleCancelCalibration(w http.ResponseWriter, r *http.Request) {
	c.s.CancelCalibration()
	writeJSON(w, http.StatusOK, c.s.Status())
}

func (c *Control) handleStartStream(w http.ResponseWriter, r *http.Request) {
	kind := mux.Vars(r)["kind"]

	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	if err := c.s.StartStream(c.ctx, kind, req.Destination, req.Port); err != nil {
		writeError(w, err)
		return
	}
	st, _ := c.s.StreamStatus(kind)
	writeJSON(w, http.StatusOK, st)
}

func (c *Control) handleStopStream(w http.ResponseWriter, r *http.Request) {
	kind := mux.Vars(r)["kind"]
	if err := c.s.StopStream(kind); err != nil {
		writeError(w, err)
		return
	}
	st, _ := c.s.StreamStatus(kind)
	writeJSON(w, http.StatusOK, st)
}

func writeError(w http.ResponseWriter, err error) {
	var terr *stream.TransportError
	switch {
	case errors.Is(err, ErrUnknownStream):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, calibration.ErrAlreadyActive):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.As(err, &terr):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("control: json encode error: %v", err)
	}
}

// handleWS pushes status events to the client and runs the actions it sends.
func (c *Control) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("control: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := c.s.Subscribe()
	defer unsubscribe()

	replies := make(chan Event, eventBufferSize)
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			var msg WSMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Printf("control: websocket read error: %v", err)
				}
				return
			}
			select {
			case replies <- c.runAction(msg):
			default:
			}
		}
	}()

	status := c.s.Status()
	if err := conn.WriteJSON(Event{Type: EventStatus, Status: &status}); err != nil {
		return
	}

	for {
		var e Event
		select {
		case <-closed:
			return
		case <-c.ctx.Done():
			return
		case e = <-events:
		case e = <-replies:
		}
		if err := conn.WriteJSON(e); err != nil {
			log.Printf("control: websocket write error: %v", err)
			return
		}
	}
}

// runAction executes msg and returns the reply for the sender.
func (c *Control) runAction(msg WSMessage) Event {
	var err error
	switch msg.Action {
	case "calibrate":
		err = c.s.BeginCalibration(c.ctx)
	case "cancel":
		c.s.CancelCalibration()
	case "start":
		err = c.s.StartStream(c.ctx, msg.Stream, msg.Destination, msg.Port)
	case "stop":
		err = c.s.StopStream(msg.Stream)
	case "status":
	default:
		return Event{Type: EventError, Message: "unknown action: " + msg.Action}
	}
	if err != nil {
		return Event{Type: EventError, Message: err.Error()}
	}
	status := c.s.Status()
	return Event{Type: EventStatus, Status: &status}
}
