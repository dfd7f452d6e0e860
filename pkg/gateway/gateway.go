// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package gateway runs a com2bus relay between a marker-bit bus transport
// and a host link.
//
// Four tasks make up a running gateway:
//
//	Gateway.BusReader   reads (byte, marker) pairs from the bus transport
//	Gateway.Bus         owns the parser and relay: parses bus bytes, answers
//	                    polls, and moves host frames into the pending queue
//	Gateway.HostReader  parses frames from the host link into the to-bus queue
//	Gateway.HostWriter  writes frames from the to-host queue to the host link
//
// Parser and relay state is touched only by Gateway.Bus. The bridge queues
// are the only state shared between tasks.
package gateway

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/basilfx/go-utilities/taskrunner"
	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/com2gate/pkg/capture"
	"github.com/Thermoquad/com2gate/pkg/com2bus"
)

// EventChannelSize is the number of bus bytes buffered between the bus
// reader and the bus task.
const EventChannelSize = 4 * com2bus.MaxFrameSize

// DefaultShutdownTimeout is how long Run waits for tasks after cancellation.
const DefaultShutdownTimeout = 2 * time.Second

// busEvent is one byte received on the bus.
type busEvent struct {
	b      byte
	marker bool
}

// Gateway relays frames between a bus and a host link.
type Gateway struct {
	cfg Config

	gate   *com2bus.Gate
	relay  *com2bus.Relay
	bridge *com2bus.Bridge
	stats  *com2bus.Statistics

	taskRunner *taskrunner.TaskRunner
	events     chan busEvent

	stopOnce sync.Once
	stopped  chan struct{}

	errLock sync.Mutex
	err     error
}

// New creates a gateway. Call Run to start it.
func New(cfg Config) (*Gateway, error) {
	if cfg.Bus == nil {
		return nil, errors.New("gateway: no bus transport")
	}
	if cfg.Host == nil {
		return nil, errors.New("gateway: no host link")
	}
	if cfg.Stats == nil {
		cfg.Stats = com2bus.NewStatistics()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	g := &Gateway{
		cfg:        cfg,
		gate:       com2bus.NewGate(cfg.Bus),
		bridge:     com2bus.NewBridge(),
		stats:      cfg.Stats,
		taskRunner: taskrunner.New(),
		events:     make(chan busEvent, EventChannelSize),
		stopped:    make(chan struct{}),
	}
	g.relay = com2bus.NewRelay(&capturingTransmitter{gate: g.gate, capture: cfg.Capture}, g.bridge.ToHost, g.stats)

	return g, nil
}

// Stats returns the gateway counters.
func (g *Gateway) Stats() *com2bus.Statistics {
	return g.stats
}

// Bridge returns the queues between the bus and host tasks.
func (g *Gateway) Bridge() *com2bus.Bridge {
	return g.bridge
}

// Run starts the gateway tasks and blocks until ctx is cancelled or a task
// fails. It returns the first task error, or nil after cancellation.
func (g *Gateway) Run(ctx context.Context) error {
	log.WithFields(log.Fields{
		"host_format": g.cfg.HostFormat,
	}).Info("Gateway starting.")

	g.taskRunner.RunWithCancel("Gateway.BusReader", g.busReaderTask)
	g.taskRunner.RunWithCancel("Gateway.Bus", g.busTask)
	g.taskRunner.RunWithCancel("Gateway.HostReader", g.hostReaderTask)
	g.taskRunner.RunWithCancel("Gateway.HostWriter", g.hostWriterTask)
	if g.cfg.StatsInterval > 0 {
		g.taskRunner.RunWithCancel("Gateway.Stats", g.statsTask)
	}

	done := make(chan struct{})
	go func() {
		g.taskRunner.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
	case <-g.stopped:
	case <-done:
	}
	g.Shutdown()

	select {
	case <-done:
	case <-time.After(g.cfg.ShutdownTimeout):
		log.Warnf("Gateway tasks still blocked after %v.", g.cfg.ShutdownTimeout)
	}

	log.Info("Gateway stopped.")
	return g.Err()
}

// Shutdown stops all tasks and closes the bus transport and, when it is an
// io.Closer, the host link. It is safe to call more than once.
func (g *Gateway) Shutdown() {
	g.stopOnce.Do(func() {
		close(g.stopped)
		g.taskRunner.Cancel()

		if err := g.cfg.Bus.Close(); err != nil {
			log.Debugf("Closing bus transport: %v", err)
		}
		if c, ok := g.cfg.Host.(io.Closer); ok {
			if err := c.Close(); err != nil {
				log.Debugf("Closing host link: %v", err)
			}
		}
	})
}

// Err returns the error that stopped the gateway, if any.
func (g *Gateway) Err() error {
	g.errLock.Lock()
	defer g.errLock.Unlock()

	return g.err
}

// fail records the first task error and stops the gateway.
func (g *Gateway) fail(err error) {
	g.errLock.Lock()
	if g.err == nil {
		g.err = err
	}
	g.errLock.Unlock()

	log.Errorf("Gateway failed: %v", err)
	go g.Shutdown()
}

// stopping reports whether shutdown has begun.
func (g *Gateway) stopping() bool {
	select {
	case <-g.stopped:
		return true
	default:
		return false
	}
}

// capturingTransmitter records every transmitted response.
type capturingTransmitter struct {
	gate    *com2bus.Gate
	capture *capture.Writer
}

func (t *capturingTransmitter) Transmit(m *com2bus.Message) error {
	if err := t.gate.Transmit(m); err != nil {
		return err
	}
	if t.capture != nil {
		if err := t.capture.WriteMessage(capture.ToBus, m); err != nil {
			log.Warnf("Capture failed: %v", err)
		}
	}
	return nil
}

// compile-time check
var _ com2bus.Transmitter = (*capturingTransmitter)(nil)
