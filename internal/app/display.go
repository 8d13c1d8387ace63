// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"image"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/mocap_streamer/internal/calibration"
	"github.com/relabs-tech/mocap_streamer/internal/config"
)

const (
	displayWidth  = 128
	displayHeight = 64
	lineHeight    = 13
)

// DisplayData holds the latest status received over MQTT.
type DisplayData struct {
	mu sync.RWMutex

	stage     string
	lastError string

	result     calibration.Result
	haveResult bool

	streams map[string]StreamStatus
}

func newDisplayData() *DisplayData {
	return &DisplayData{streams: make(map[string]StreamStatus)}
}

// displaySnapshot is an unlocked copy of DisplayData.
type displaySnapshot struct {
	stage      string
	lastError  string
	result     calibration.Result
	haveResult bool
	streams    []StreamStatus
}

func (d *DisplayData) snapshot() displaySnapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s := displaySnapshot{
		stage:      d.stage,
		lastError:  d.lastError,
		result:     d.result,
		haveResult: d.haveResult,
	}
	for _, st := range d.streams {
		s.streams = append(s.streams, st)
	}
	sort.Slice(s.streams, func(i, j int) bool { return s.streams[i].Kind < s.streams[j].Kind })
	return s
}

// handle applies one MQTT message.
func (d *DisplayData) handle(cfg *config.Config, topic string, payload []byte) error {
	switch {
	case topic == cfg.TopicCalibrationStage:
		var p StagePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		d.mu.Lock()
		d.stage = p.Stage
		if p.Error != "" {
			d.lastError = p.Error
		} else if p.Stage == calibration.StageHold.String() {
			d.lastError = ""
		}
		d.mu.Unlock()

	case topic == cfg.TopicCalibration:
		var r calibration.Result
		if err := json.Unmarshal(payload, &r); err != nil {
			return err
		}
		d.mu.Lock()
		d.result = r
		d.haveResult = true
		d.lastError = ""
		d.mu.Unlock()

	case strings.HasPrefix(topic, cfg.TopicStreamState+"/"):
		var st StreamStatus
		if err := json.Unmarshal(payload, &st); err != nil {
			return err
		}
		d.mu.Lock()
		d.streams[st.Kind] = st
		d.mu.Unlock()

	default:
		return fmt.Errorf("unexpected topic %s", topic)
	}
	return nil
}

// RunDisplay renders streamer status on an SSD1306 OLED.
func RunDisplay(cfg *config.Config) error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(cfg.DisplayI2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(&addressedBus{Bus: bus, addr: cfg.DisplayI2CAddr}, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Printf("display: initialized at 0x%02X", cfg.DisplayI2CAddr)

	if err := dev.Draw(dev.Bounds(), renderSplash(), image.Point{}); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	data := newDisplayData()

	client, err := subscribeStatus(cfg, cfg.MQTTClientIDDisplay, "display", func(_ mqtt.Client, msg mqtt.Message) {
		if err := data.handle(cfg, msg.Topic(), msg.Payload()); err != nil {
			log.Printf("display: %s: %v", msg.Topic(), err)
		}
	})
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	ctx, stop := signalContext()
	defer stop()

	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()

	log.Println("display: starting update loop")
	for {
		select {
		case <-ctx.Done():
			log.Println("display: shutting down")
			return dev.Halt()
		case <-ticker.C:
			if err := dev.Draw(dev.Bounds(), renderStatus(data.snapshot()), image.Point{}); err != nil {
				log.Printf("display: error updating display: %v", err)
			}
		}
	}
}

// statusTopics are the topics the display and console follow.
func statusTopics(cfg *config.Config) []string {
	return []string{
		cfg.TopicCalibrationStage,
		cfg.TopicCalibration,
		cfg.TopicStreamState + "/+",
	}
}

// addressedBus sends every transaction to addr, for panels strapped away
// from the driver's default address.
type addressedBus struct {
	i2c.Bus
	addr uint16
}

func (b *addressedBus) Tx(_ uint16, w, r []byte) error {
	return b.Bus.Tx(b.addr, w, r)
}

func newCanvas() (*image1bit.VerticalLSB, *font.Drawer) {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, displayWidth, displayHeight))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	return img, drawer
}

func renderSplash() *image1bit.VerticalLSB {
	img, drawer := newCanvas()

	drawer.Dot = fixed.P(15, 26)
	drawer.DrawBytes([]byte("Mocap Stream"))

	drawer.Dot = fixed.P(10, 43)
	drawer.DrawBytes([]byte("Waiting for"))

	drawer.Dot = fixed.P(25, 56)
	drawer.DrawBytes([]byte("streamer"))

	return img
}

// renderStatus draws the calibration line, the result and one line per
// stream.
func renderStatus(s displaySnapshot) *image1bit.VerticalLSB {
	img, drawer := newCanvas()

	lines := []string{}
	stage := s.stage
	if stage == "" {
		stage = "?"
	}
	lines = append(lines, "CAL: "+strings.ToUpper(stage))

	switch {
	case s.lastError != "":
		lines = append(lines, "ERR: "+truncate(s.lastError, 13))
	case s.haveResult:
		lines = append(lines, fmt.Sprintf("%.1fhPa %+.0f", s.result.ReferencePressure, s.result.ReferenceHeadingOffsetDeg))
	default:
		lines = append(lines, "No result")
	}

	for _, st := range s.streams {
		mark := "-"
		if st.State == "streaming" {
			mark = "*"
		}
		lines = append(lines, fmt.Sprintf("%s %s %d", mark, truncate(st.Kind, 9), st.Stats.Sent))
	}

	for i, line := range lines {
		y := (i + 1) * lineHeight
		if y > displayHeight {
			break
		}
		drawer.Dot = fixed.P(0, y)
		drawer.DrawBytes([]byte(line))
	}
	return img
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
