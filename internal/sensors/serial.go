// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/mocap_streamer/internal/config"
	"github.com/relabs-tech/mocap_streamer/internal/timeutil"
)

// TypeMCAP is the proprietary sentence type the wearable emits:
//
//	$PMCAP,<kind>,<device>,<v1>,...,<vn>*CS
//
// Audio sentences carry one hex encoded PCM16 field instead of values.
const TypeMCAP = "MCAP"

func init() {
	nmea.MustRegisterParser(TypeMCAP, parseMCAP)
}

// MCAP is one decoded wearable reading.
type MCAP struct {
	nmea.BaseSentence
	Kind   Kind
	Device string
	Values []float32
	PCM    []byte
}

func parseMCAP(s nmea.BaseSentence) (nmea.Sentence, error) {
	p := nmea.NewParser(s)
	m := MCAP{BaseSentence: s}

	kindName := p.String(0, "kind")
	m.Device = p.String(1, "device")
	if err := p.Err(); err != nil {
		return nil, err
	}
	kind, err := ParseKind(kindName)
	if err != nil {
		return nil, err
	}
	m.Kind = kind
	if m.Device == "" {
		return nil, fmt.Errorf("nmea: PMCAP missing device")
	}

	if kind == KindAudio {
		pcm, err := hex.DecodeString(p.String(2, "pcm"))
		if err != nil {
			return nil, fmt.Errorf("nmea: PMCAP invalid pcm: %w", err)
		}
		m.PCM = pcm
		return m, p.Err()
	}

	n := len(s.Fields) - 2
	if n != kind.Width() {
		return nil, fmt.Errorf("nmea: PMCAP %s has %d values, want %d", kind, n, kind.Width())
	}
	m.Values = make([]float32, n)
	for i := range m.Values {
		m.Values[i] = float32(p.Float64(i+2, "value"))
	}
	return m, p.Err()
}

// FormatMCAP renders r as a checksummed $PMCAP sentence.
func FormatMCAP(r Reading) string {
	fields := []string{"PMCAP", r.Channel.Kind.String(), r.Channel.Device}
	if r.Channel.Kind == KindAudio {
		fields = append(fields, hex.EncodeToString(r.PCM))
	} else {
		for _, v := range r.Values {
			fields = append(fields, strconv.FormatFloat(float64(v), 'g', -1, 32))
		}
	}
	body := strings.Join(fields, ",")
	return "$" + body + "*" + nmea.Checksum(body)
}

// SerialBridge reads $PMCAP sentences from the wearable's serial link and
// publishes them.
type SerialBridge struct {
	sink  Sink
	clock timeutil.Clock
	opts  serial.OpenOptions
}

// NewSerialBridge configures a bridge for cfg.SerialPort.
func NewSerialBridge(cfg *config.Config, sink Sink) *SerialBridge {
	return &SerialBridge{
		sink:  sink,
		clock: timeutil.RealClock{},
		opts: serial.OpenOptions{
			PortName:              cfg.SerialPort,
			BaudRate:              cfg.SerialBaudRate,
			DataBits:              8,
			StopBits:              1,
			MinimumReadSize:       1,
			ParityMode:            serial.PARITY_NONE,
			InterCharacterTimeout: 0,
		},
	}
}

// Run opens the port and consumes it until ctx is cancelled or the port
// fails.
func (b *SerialBridge) Run(ctx context.Context) error {
	port, err := serial.Open(b.opts)
	if err != nil {
		return fmt.Errorf("serial: open %s: %w", b.opts.PortName, err)
	}
	log.Printf("serial: wearable port opened on %s at %d baud", b.opts.PortName, b.opts.BaudRate)

	stop := context.AfterFunc(ctx, func() { port.Close() })
	defer func() {
		if stop() {
			port.Close()
		}
	}()

	if err := b.Consume(port); err != nil && ctx.Err() == nil {
		return err
	}
	return ctx.Err()
}

// Consume parses sentences from rd until EOF or a read error. Malformed and
// foreign sentences are skipped.
func (b *SerialBridge) Consume(rd io.Reader) error {
	reader := bufio.NewReader(rd)
	for {
		line, err := reader.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			b.handleLine(line)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("serial: read: %w", err)
		}
	}
}

func (b *SerialBridge) handleLine(line string) {
	if !strings.HasPrefix(line, "$") {
		return
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		// partial sentences are common right after the port opens
		return
	}
	m, ok := sentence.(MCAP)
	if !ok {
		return
	}

	reading := Reading{
		Channel:   ChannelID{Device: m.Device, Kind: m.Kind},
		Timestamp: b.clock.Now(),
		Values:    m.Values,
		PCM:       m.PCM,
	}
	if err := b.sink.Publish(reading); err != nil {
		log.Printf("serial: publish %s: %v", reading.Channel, err)
	}
}
