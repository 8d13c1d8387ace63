// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/mocap_streamer/internal/config"
)

func newTestControl(t *testing.T, mutate func(*config.Config)) (*testStreamer, *httptest.Server) {
	t.Helper()
	s := newTestStreamer(t, mutate)
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(NewControl(ctx, s.Streamer).Router())
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return s, srv
}

func doJSON(t *testing.T, method, url, body string, out interface{}) int {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestControl_Status(t *testing.T) {
	_, srv := newTestControl(t, nil)

	var st Status
	code := doJSON(t, http.MethodGet, srv.URL+"/api/status", "", &st)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "idle", st.Stage)
	assert.Nil(t, st.Result)
	require.Len(t, st.Streams, 4)
	assert.Equal(t, StreamIMULeft, st.Streams[0].Kind)
}

func TestControl_Calibration(t *testing.T) {
	_, srv := newTestControl(t, nil)

	var st Status
	assert.Equal(t, http.StatusAccepted, doJSON(t, http.MethodPost, srv.URL+"/api/calibration", "", &st))
	assert.Equal(t, "hold", st.Stage)

	var e errorResponse
	assert.Equal(t, http.StatusConflict, doJSON(t, http.MethodPost, srv.URL+"/api/calibration", "", &e))
	assert.Contains(t, e.Error, "already active")

	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodDelete, srv.URL+"/api/calibration", "", &st))
	assert.Equal(t, "idle", st.Stage)
	assert.Equal(t, context.Canceled.Error(), st.CalibrationError)
}

func TestControl_Streams(t *testing.T) {
	_, srv := newTestControl(t, nil)

	var st StreamStatus
	code := doJSON(t, http.MethodPost, srv.URL+"/api/streams/ppg", `{"destination":"10.0.0.9","port":7001}`, &st)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "streaming", st.State)
	assert.Equal(t, "10.0.0.9:7001", st.Destination)

	code = doJSON(t, http.MethodPost, srv.URL+"/api/streams/audio", "", &st)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "127.0.0.1:65001", st.Destination)

	code = doJSON(t, http.MethodDelete, srv.URL+"/api/streams/ppg", "", &st)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "idle", st.State)
}

func TestControl_StreamErrors(t *testing.T) {
	s, srv := newTestControl(t, nil)

	var e errorResponse
	assert.Equal(t, http.StatusNotFound, doJSON(t, http.MethodPost, srv.URL+"/api/streams/video", "", &e))
	assert.Equal(t, http.StatusNotFound, doJSON(t, http.MethodDelete, srv.URL+"/api/streams/video", "", &e))
	assert.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodPost, srv.URL+"/api/streams/ppg", "{", &e))

	s.sockets.Error = errors.New("no sockets")
	assert.Equal(t, http.StatusBadGateway, doJSON(t, http.MethodPost, srv.URL+"/api/streams/ppg", "", &e))
	assert.Contains(t, e.Error, "no sockets")
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

// readUntil reads events until match accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, match func(Event) bool) Event {
	t.Helper()
	for i := 0; i < 32; i++ {
		var e Event
		require.NoError(t, conn.ReadJSON(&e))
		if match(e) {
			return e
		}
	}
	t.Fatal("no matching websocket event")
	return Event{}
}

func TestControl_WebSocket(t *testing.T) {
	_, srv := newTestControl(t, nil)
	conn := dialWS(t, srv)

	var first Event
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, EventStatus, first.Type)
	require.NotNil(t, first.Status)
	assert.Equal(t, "idle", first.Status.Stage)

	require.NoError(t, conn.WriteJSON(WSMessage{Action: "start", Stream: StreamAudio, Port: 7100}))
	e := readUntil(t, conn, func(e Event) bool { return e.Type == EventStream })
	assert.Equal(t, StreamAudio, e.Stream.Kind)
	assert.Equal(t, "streaming", e.Stream.State)

	require.NoError(t, conn.WriteJSON(WSMessage{Action: "calibrate"}))
	e = readUntil(t, conn, func(e Event) bool { return e.Type == EventStage })
	assert.Equal(t, "hold", e.Stage)

	require.NoError(t, conn.WriteJSON(WSMessage{Action: "status"}))
	e = readUntil(t, conn, func(e Event) bool { return e.Type == EventStatus && e.Status.Stage == "hold" })
	for _, st := range e.Status.Streams {
		if st.Kind == StreamAudio {
			assert.Equal(t, "127.0.0.1:7100", st.Destination)
		}
	}

	require.NoError(t, conn.WriteJSON(WSMessage{Action: "jump"}))
	e = readUntil(t, conn, func(e Event) bool { return e.Type == EventError })
	assert.Equal(t, "unknown action: jump", e.Message)

	require.NoError(t, conn.WriteJSON(WSMessage{Action: "stop", Stream: "video"}))
	e = readUntil(t, conn, func(e Event) bool { return e.Type == EventError })
	assert.Contains(t, e.Message, "unknown stream")
}
