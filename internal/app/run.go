// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relabs-tech/mocap_streamer/internal/config"
	"github.com/relabs-tech/mocap_streamer/internal/sensors"
	"github.com/relabs-tech/mocap_streamer/internal/timeutil"
)

// producer is a goroutine feeding the hub.
type producer struct {
	name string
	run  func(ctx context.Context) error
}

// sampleSource is the configured set of producers and the channels they
// report per device.
type sampleSource struct {
	producers []producer
	kinds     func(device string) []sensors.Kind
}

// openSampleSource builds the producers selected by SAMPLE_SOURCE, plus the
// PCM reader when AUDIO_PCM_PATH is set.
func openSampleSource(cfg *config.Config, hub *sensors.Hub) (*sampleSource, error) {
	src := &sampleSource{}
	interval := time.Duration(cfg.IMUSampleInterval) * time.Millisecond

	switch cfg.SampleSource {
	case config.SourceHardware:
		hw, err := sensors.OpenHardware(cfg, hub)
		if err != nil {
			return nil, err
		}
		src.producers = append(src.producers, producer{"hardware", hw.Run})
		src.kinds = hw.Kinds

	case config.SourceSerial:
		bridge := sensors.NewSerialBridge(cfg, hub)
		src.producers = append(src.producers, producer{"serial", bridge.Run})

	default:
		audioChunk := 0
		if cfg.AudioPCMPath == "" {
			audioChunk = mockAudioChunk(cfg, interval)
		}
		mock := sensors.NewMockProducer(hub, timeutil.RealClock{}, interval, audioChunk, DeviceLeft, DeviceRight)
		src.producers = append(src.producers, producer{"mock", mock.Run})
	}

	if cfg.AudioPCMPath != "" {
		pcm := sensors.NewPCMReader(hub, cfg.AudioPCMPath, DeviceLeft, cfg.AudioBufferBytes, cfg.AudioSendInterval)
		src.producers = append(src.producers, producer{"pcm", pcm.Run})
	}
	return src, nil
}

// mockAudioChunk sizes the synthetic audio of one producer tick so that it
// matches the rate the audio stream drains.
func mockAudioChunk(cfg *config.Config, tick time.Duration) int {
	if cfg.AudioSendInterval <= 0 {
		return cfg.AudioBufferBytes
	}
	n := int(int64(cfg.AudioBufferBytes) * int64(tick) / int64(cfg.AudioSendInterval))
	return n &^ 1
}

func (s *sampleSource) start(ctx context.Context) <-chan error {
	errc := make(chan error, len(s.producers))
	for _, p := range s.producers {
		p := p
		go func() {
			err := p.run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				errc <- fmt.Errorf("%s producer: %w", p.name, err)
				return
			}
			log.Printf("streamer: %s producer stopped", p.name)
		}()
	}
	return errc
}

func openHaptic(cfg *config.Config) sensors.Haptic {
	if cfg.HapticGPIOPin == "" {
		return sensors.NopHaptic{}
	}
	h, err := sensors.NewGPIOHaptic(cfg.HapticGPIOPin)
	if err != nil {
		log.Printf("streamer: haptic disabled: %v", err)
		return sensors.NopHaptic{}
	}
	return h
}

// RunStreamer runs the sample producers, the calibration engine, the stream
// sessions and the control server until interrupted or a producer fails.
func RunStreamer(cfg *config.Config) error {
	ctx, stop := signalContext()
	defer stop()

	hub := sensors.NewHub()
	src, err := openSampleSource(cfg, hub)
	if err != nil {
		return err
	}

	s := NewStreamer(cfg, hub, StreamerDeps{Haptic: openHaptic(cfg), Kinds: src.kinds})
	defer s.Close()

	if cfg.MQTTBroker != "" {
		pub, err := NewMQTTPublisher(cfg.MQTTBroker, cfg.MQTTClientIDStreamer)
		if err != nil {
			return err
		}
		defer pub.Close()
		go NewStatusReporter(cfg, pub).Run(ctx, s)
	} else {
		log.Println("streamer: MQTT_BROKER not set, status telemetry disabled")
	}

	producerErr := src.start(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler:           NewControl(ctx, s).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		log.Printf("streamer: control server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	log.Printf("streamer: streams %v to %s, calibration on %q", s.Kinds(), cfg.DestinationIP, cfg.CalibrationDevice)

	var runErr error
	select {
	case <-ctx.Done():
		log.Println("streamer: shutting down")
	case runErr = <-producerErr:
	case runErr = <-serverErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("streamer: server shutdown: %v", err)
	}
	return runErr
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
