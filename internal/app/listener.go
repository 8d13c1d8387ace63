// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relabs-tech/mocap_streamer/internal/config"
	"github.com/relabs-tech/mocap_streamer/internal/wire"
)

// listenPort is one receiving port and the stream kind decoded on it.
type listenPort struct {
	kind string
	port int

	packets atomic.Int64
	bytes   atomic.Int64
	errors  atomic.Int64
	latest  atomic.Pointer[string]
}

func listenPorts(cfg *config.Config) []*listenPort {
	ports := []*listenPort{
		{kind: StreamIMULeft, port: cfg.PortIMULeft},
		{kind: StreamIMURight, port: cfg.PortIMURight},
		{kind: StreamPPG, port: cfg.PortPPG},
		{kind: StreamAudio, port: cfg.PortAudio},
	}
	if cfg.IMUDualMerge {
		ports[0].kind = StreamIMUDual
		ports = append(ports[:1], ports[2:]...)
	}
	return ports
}

// RunUDPListener receives the streamer's datagrams on every configured port,
// decodes them and prints per-port rates and the latest frame once a second.
// With verbose set every decoded frame is printed instead.
func RunUDPListener(cfg *config.Config, out io.Writer, verbose bool) error {
	ctx, stop := signalContext()
	defer stop()

	ports := listenPorts(cfg)
	var wg sync.WaitGroup
	for _, p := range ports {
		conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: p.port})
		if err != nil {
			return fmt.Errorf("listen %s on %d: %w", p.kind, p.port, err)
		}
		fmt.Fprintf(out, "UDP listener started for %s on port %d\n", p.kind, p.port)

		wg.Add(1)
		go func(p *listenPort, conn *net.UDPConn) {
			defer wg.Done()
			receive(ctx, conn, p, cfg.AudioBufferBytes, out, verbose)
		}(p, conn)
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case <-ticker.C:
			for _, p := range ports {
				packets := p.packets.Swap(0)
				bytes := p.bytes.Swap(0)
				bad := p.errors.Swap(0)
				if packets > 0 || bad > 0 {
					fmt.Fprintf(out, "%-9s %d packets/sec, %.1f KB/sec, %d undecodable\n",
						p.kind, packets, float64(bytes)/1024, bad)
					if last := p.latest.Load(); last != nil && !verbose {
						fmt.Fprintf(out, "          last: %s\n", *last)
					}
				}
			}
		}
	}
}

func receive(ctx context.Context, conn *net.UDPConn, p *listenPort, audioSize int, out io.Writer, verbose bool) {
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buffer := make([]byte, 65536)
	for {
		n, _, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("listener: %s read error: %v", p.kind, err)
			continue
		}
		p.packets.Add(1)
		p.bytes.Add(int64(n))

		line, err := describeFrame(p.kind, buffer[:n], audioSize)
		if err != nil {
			p.errors.Add(1)
			if verbose {
				log.Printf("listener: %s: %v", p.kind, err)
			}
			continue
		}
		p.latest.Store(&line)
		if verbose {
			fmt.Fprintln(out, line)
		}
	}
}

// describeFrame decodes one datagram of the given stream kind into a
// single-line summary.
func describeFrame(kind string, b []byte, audioSize int) (string, error) {
	switch kind {
	case StreamIMULeft, StreamIMURight:
		f, err := wire.DecodeIMU(b)
		if err != nil {
			return "", err
		}
		q := f.Sample.Orientation
		return fmt.Sprintf("%-9s dt=%.4fs at=%s q=[%.3f %.3f %.3f %.3f] p=%.2fhPa",
			kind, f.DeltaT, f.Sample.Timestamp.Format("15:04:05.000"), q[0], q[1], q[2], q[3], f.Sample.Pressure), nil

	case StreamIMUDual:
		f, err := wire.DecodeDualIMU(b)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%-9s dt=%.4fs left=%s right=%s",
			kind, f.DeltaT, f.Left.Timestamp.Format("15:04:05.000"), f.Right.Timestamp.Format("15:04:05.000")), nil

	case StreamPPG:
		s, err := wire.DecodePPG(b)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%-9s at=%s data=%v", kind, s.Timestamp.Format("15:04:05.000"), s.Data), nil

	case StreamAudio:
		pcm, err := wire.DecodeAudio(b, audioSize)
		if err != nil {
			return "", err
		}
		var peak int
		for _, v := range pcm {
			a := int(v)
			if a < 0 {
				a = -a
			}
			if a > peak {
				peak = a
			}
		}
		return fmt.Sprintf("%-9s samples=%d peak=%d", kind, len(pcm), peak), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStream, kind)
}
