// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/relabs-tech/mocap_streamer/internal/timeutil"
)

// PCMReader publishes raw little-endian PCM16 audio read from a file or FIFO
// as audio readings of a fixed chunk size, paced at one chunk per interval.
type PCMReader struct {
	Path     string
	Device   string
	Chunk    int
	Interval time.Duration

	sink  Sink
	clock timeutil.Clock
}

// NewPCMReader returns a reader for path publishing on device's audio channel.
func NewPCMReader(sink Sink, path, device string, chunk int, interval time.Duration) *PCMReader {
	return &PCMReader{
		Path:     path,
		Device:   device,
		Chunk:    chunk,
		Interval: interval,
		sink:     sink,
		clock:    timeutil.RealClock{},
	}
}

// Run opens Path and streams it until EOF or ctx is cancelled.
func (p *PCMReader) Run(ctx context.Context) error {
	f, err := os.Open(p.Path)
	if err != nil {
		return fmt.Errorf("pcm: open %s: %w", p.Path, err)
	}
	defer f.Close()

	log.Printf("pcm: reading %s in %d byte chunks every %v", p.Path, p.Chunk, p.Interval)
	return p.Stream(ctx, f)
}

// Stream publishes chunks read from r. A trailing partial chunk is published
// as is.
func (p *PCMReader) Stream(ctx context.Context, r io.Reader) error {
	ch := ChannelID{Device: p.Device, Kind: KindAudio}
	cadence := timeutil.NewCadence(p.clock, p.Interval)
	for {
		buf := make([]byte, p.Chunk)
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			if perr := p.sink.Publish(Reading{Channel: ch, Timestamp: p.clock.Now(), PCM: buf[:n]}); perr != nil {
				log.Printf("pcm: publish: %v", perr)
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("pcm: read: %w", err)
		}

		if err := cadence.Wait(ctx); err != nil {
			return err
		}
	}
}
