// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/mocap_streamer/internal/calibration"
	"github.com/relabs-tech/mocap_streamer/internal/config"
)

// RunConsoleMQTT prints streamer status messages until interrupted.
func RunConsoleMQTT(cfg *config.Config) error {
	client, err := subscribeStatus(cfg, cfg.MQTTClientIDConsole, "console", func(_ mqtt.Client, msg mqtt.Message) {
		printStatusMessage(os.Stdout, cfg, msg.Topic(), msg.Payload())
	})
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	<-ctx.Done()

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}

// subscribeStatus connects to the broker and subscribes handler to every
// status topic.
func subscribeStatus(cfg *config.Config, clientID, component string, handler mqtt.MessageHandler) (mqtt.Client, error) {
	if cfg.MQTTBroker == "" {
		return nil, errors.New("MQTT_BROKER is not set")
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(clientID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	log.Printf("%s: connected to MQTT broker at %s", component, cfg.MQTTBroker)

	for _, topic := range statusTopics(cfg) {
		token := client.Subscribe(topic, 0, handler)
		token.Wait()
		if token.Error() != nil {
			client.Disconnect(250)
			return nil, token.Error()
		}
		log.Printf("%s: subscribed to %s", component, topic)
	}
	return client, nil
}

func printStatusMessage(w io.Writer, cfg *config.Config, topic string, payload []byte) {
	line, err := formatStatusMessage(cfg, topic, payload)
	if err != nil {
		log.Printf("console: %s unmarshal error: %v", topic, err)
		return
	}
	fmt.Fprintln(w, line)
}

// formatStatusMessage renders one status message as a console line.
func formatStatusMessage(cfg *config.Config, topic string, payload []byte) (string, error) {
	switch {
	case topic == cfg.TopicCalibrationStage:
		var p StagePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return "", err
		}
		if p.Error != "" {
			return fmt.Sprintf("[CAL ]  stage=%-7s error=%s", p.Stage, p.Error), nil
		}
		return fmt.Sprintf("[CAL ]  stage=%s", p.Stage), nil

	case topic == cfg.TopicCalibration:
		var r calibration.Result
		if err := json.Unmarshal(payload, &r); err != nil {
			return "", err
		}
		return fmt.Sprintf(
			"[REF ]  pressure=%.2fhPa heading_offset=%+.1f° at=%s run=%s",
			r.ReferencePressure, r.ReferenceHeadingOffsetDeg, r.CompletedAt.Format("15:04:05"), r.RunID,
		), nil

	case strings.HasPrefix(topic, cfg.TopicStreamState+"/"):
		var st StreamStatus
		if err := json.Unmarshal(payload, &st); err != nil {
			return "", err
		}
		line := fmt.Sprintf(
			"[STRM]  %-9s %-9s dest=%s sent=%d skipped=%d",
			st.Kind, st.State, st.Destination, st.Stats.Sent, st.Stats.Skipped,
		)
		if st.Error != "" {
			line += " error=" + st.Error
		}
		return line, nil
	}
	return fmt.Sprintf("[????]  %s %s", topic, payload), nil
}
