// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/mocap_streamer/internal/config"
)

// Publisher sends a payload to a topic.
type Publisher interface {
	Publish(topic string, retained bool, payload []byte) error
}

// MQTTPublisher publishes over a paho client.
type MQTTPublisher struct {
	client mqtt.Client
}

// NewMQTTPublisher connects to broker.
func NewMQTTPublisher(broker, clientID string) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, token.Error())
	}
	log.Printf("status: connected to MQTT broker at %s", broker)
	return &MQTTPublisher{client: client}, nil
}

// Publish implements Publisher with QoS 0.
func (p *MQTTPublisher) Publish(topic string, retained bool, payload []byte) error {
	token := p.client.Publish(topic, 0, retained, payload)
	token.Wait()
	return token.Error()
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}

// StagePayload is published on the calibration stage topic.
type StagePayload struct {
	Stage string `json:"stage"`
	Error string `json:"error,omitempty"`
}

// StatusReporter mirrors streamer events onto MQTT topics.
type StatusReporter struct {
	cfg *config.Config
	pub Publisher
}

// NewStatusReporter returns a reporter publishing through pub.
func NewStatusReporter(cfg *config.Config, pub Publisher) *StatusReporter {
	return &StatusReporter{cfg: cfg, pub: pub}
}

// Run publishes the current status, then every event until ctx is
// cancelled.
func (r *StatusReporter) Run(ctx context.Context, s *Streamer) {
	events, unsubscribe := s.Subscribe()
	defer unsubscribe()

	st := s.Status()
	r.report(Event{Type: EventStage, Stage: st.Stage})
	if st.Result != nil {
		r.report(Event{Type: EventResult, Result: st.Result})
	}
	for i := range st.Streams {
		r.report(Event{Type: EventStream, Stream: &st.Streams[i]})
	}

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-events:
			r.report(e)
		}
	}
}

func (r *StatusReporter) report(e Event) {
	if err := r.Handle(e); err != nil {
		log.Printf("status: %s: %v", e.Type, err)
	}
}

// Handle publishes one event. Results and stream states are retained so
// late subscribers see the current value.
func (r *StatusReporter) Handle(e Event) error {
	var (
		topic    string
		retained bool
		payload  interface{}
	)
	switch e.Type {
	case EventStage:
		topic, payload = r.cfg.TopicCalibrationStage, StagePayload{Stage: e.Stage}
	case EventError:
		topic, payload = r.cfg.TopicCalibrationStage, StagePayload{Stage: e.Stage, Error: e.Message}
	case EventResult:
		if e.Result == nil {
			return fmt.Errorf("result event without result")
		}
		topic, retained, payload = r.cfg.TopicCalibration, true, e.Result
	case EventStream:
		if e.Stream == nil {
			return fmt.Errorf("stream event without stream")
		}
		topic, retained, payload = r.cfg.StreamStateTopic(e.Stream.Kind), true, e.Stream
	default:
		return nil
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return r.pub.Publish(topic, retained, b)
}
