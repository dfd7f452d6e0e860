// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gateway

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/com2gate/pkg/capture"
	"github.com/Thermoquad/com2gate/pkg/com2bus"
)

func (g *Gateway) busReaderTask(ctx context.Context) {
	log.Debugf("Bus reader task started.")

	for {
		b, marker, err := g.cfg.Bus.Receive()
		if err != nil {
			if ctx.Err() != nil || g.stopping() {
				log.Debugf("Bus reader task stopped.")
				return
			}
			g.fail(fmt.Errorf("bus receive: %w", err))
			return
		}

		select {
		case <-ctx.Done():
			log.Debugf("Bus reader task stopped.")
			return
		case g.events <- busEvent{b: b, marker: marker}:
		}
	}
}

func (g *Gateway) busTask(ctx context.Context) {
	log.Debugf("Bus task started.")

	for {
		select {
		case <-ctx.Done():
			log.Debugf("Bus task stopped.")
			return
		case ev := <-g.events:
			g.handleBusByte(ev)
		case m := <-g.bridge.ToBus.C():
			g.handleHostFrame(m)
		}
	}
}

// handleBusByte feeds one bus byte through the gate and relays any frame
// it completes.
func (g *Gateway) handleBusByte(ev busEvent) {
	msg, err := g.gate.Accept(ev.b, ev.marker)
	if err != nil {
		g.stats.RecordReceive(nil, err)
		log.WithFields(log.Fields{
			"byte":   fmt.Sprintf("0x%02x", ev.b),
			"reason": err,
		}).Debug("Bus byte rejected.")
		return
	}
	if msg == nil {
		return
	}

	if g.cfg.Capture != nil {
		if err := g.cfg.Capture.WriteMessage(capture.FromBus, msg); err != nil {
			log.Warnf("Capture failed: %v", err)
		}
	}

	resp, err := g.relay.HandleFrame(msg)
	if err != nil {
		entry := log.WithFields(log.Fields{
			"address": fmt.Sprintf("0x%02x", msg.Address),
			"type":    fmt.Sprintf("0x%02x", msg.Type),
			"reason":  err,
		})
		if errors.Is(err, com2bus.ErrCRCMismatch) {
			entry.Debug("Bus frame dropped.")
		} else {
			entry.Warn("Bus frame not fully relayed.")
		}
	}
	if resp != nil {
		log.Debugf("Answered poll: %s", com2bus.FormatMessagePlain(resp))
	}
}

// handleHostFrame moves a frame from the host into the relay.
func (g *Gateway) handleHostFrame(m *com2bus.Message) {
	if err := g.relay.AcceptFromHost(m); err != nil {
		level := log.WarnLevel
		if !errors.Is(err, com2bus.ErrQueueFull) {
			level = log.DebugLevel
		}
		log.WithFields(log.Fields{
			"address": fmt.Sprintf("0x%02x", m.Address),
			"type":    fmt.Sprintf("0x%02x", m.Type),
			"reason":  err,
		}).Log(level, "Host frame dropped.")
	}
}

// submitHostFrame hands a frame read from the host to the bus task.
func (g *Gateway) submitHostFrame(m *com2bus.Message) {
	log.Debugf("Host incoming: %s", com2bus.FormatMessagePlain(m))

	if g.cfg.Capture != nil {
		if err := g.cfg.Capture.WriteMessage(capture.FromHost, m); err != nil {
			log.Warnf("Capture failed: %v", err)
		}
	}
	if err := g.bridge.ToBus.TryPut(m); err != nil {
		g.stats.RecordHostToBusDrop()
		log.WithFields(log.Fields{
			"address": fmt.Sprintf("0x%02x", m.Address),
			"reason":  err,
		}).Warn("Host frame dropped.")
	}
}

func (g *Gateway) hostReaderTask(ctx context.Context) {
	log.Debugf("Host reader task started.")

	var err error
	switch g.cfg.HostFormat {
	case HostHex:
		err = g.readHostHex(ctx)
	default:
		err = g.readHostRaw(ctx)
	}

	switch {
	case ctx.Err() != nil || g.stopping():
		log.Debugf("Host reader task stopped.")
	case err == nil || errors.Is(err, io.EOF):
		log.Info("Host link closed for reading.")
	default:
		g.fail(fmt.Errorf("host read: %w", err))
	}
}

// readHostRaw parses wire frames from the host link. The host link has no
// marker bit, so a byte arriving while the parser is idle starts a frame.
func (g *Gateway) readHostRaw(ctx context.Context) error {
	parser := com2bus.NewParser()
	buf := make([]byte, 256)

	for {
		n, err := g.cfg.Host.Read(buf)
		for _, b := range buf[:n] {
			if ctx.Err() != nil {
				return nil
			}
			if parser.State() == com2bus.StateIdle {
				parser.Start(b)
				continue
			}
			msg, ferr := parser.Feed(b)
			if ferr != nil {
				log.Debugf("Host byte rejected: %v", ferr)
				continue
			}
			if msg != nil {
				g.submitHostFrame(msg)
			}
		}
		if err != nil {
			return err
		}
	}
}

// readHostHex reads one hex frame per line from the host link.
func (g *Gateway) readHostHex(ctx context.Context) error {
	scanner := bufio.NewScanner(g.cfg.Host)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}

		line := scanner.Text()
		if line == "" {
			continue
		}

		msg, err := com2bus.DecodeHexLine(line)
		if err != nil {
			g.stats.RecordHostFrame(false)
			log.WithFields(log.Fields{
				"line":   line,
				"reason": err,
			}).Warn("Host line rejected.")
			continue
		}
		g.submitHostFrame(msg)
	}

	return scanner.Err()
}

func (g *Gateway) hostWriterTask(ctx context.Context) {
	log.Debugf("Host writer task started.")

	for {
		select {
		case <-ctx.Done():
			log.Debugf("Host writer task stopped.")
			return
		case m := <-g.bridge.ToHost.C():
			var out []byte
			switch g.cfg.HostFormat {
			case HostHex:
				line, err := com2bus.EncodeHexLine(m)
				if err != nil {
					log.Errorf("Unable to encode frame: %v", err)
					continue
				}
				out = []byte(line)
			default:
				out = com2bus.MustEncodeMessage(m)
			}

			log.Debugf("Host outgoing: %s", com2bus.FormatMessagePlain(m))

			if _, err := g.cfg.Host.Write(out); err != nil {
				if ctx.Err() == nil && !g.stopping() {
					g.fail(fmt.Errorf("host write: %w", err))
				}
				return
			}
		}
	}
}

func (g *Gateway) statsTask(ctx context.Context) {
	ticker := time.NewTicker(g.cfg.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Info("\n" + g.stats.String())
		}
	}
}
