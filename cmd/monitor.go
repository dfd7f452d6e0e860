// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/com2gate/pkg/capture"
	"github.com/Thermoquad/com2gate/pkg/com2bus"
	"github.com/Thermoquad/com2gate/pkg/transport"
)

var (
	monitorShowPolls     bool
	monitorStatsInterval int
	monitorUseTUI        bool
	monitorCapturePath   string
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Passively display frames on the bus",
	Long: `Listen on the bus without transmitting and display every frame.

Each frame is shown with its type, address, length, data and CRC. Frames whose
CRC does not match are flagged with the expected value. Polls (type 0x4c) are
hidden unless --show-polls is given, since a busy master polls continuously.

Bytes received outside a frame are counted as overruns but not displayed.

Use --tui for a live view with statistics and a per-address table.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&monitorShowPolls, "show-polls", false, "Show poll frames")
	monitorCmd.Flags().IntVar(&monitorStatsInterval, "stats-interval", 10, "Statistics interval in seconds (text mode, 0 disables)")
	monitorCmd.Flags().BoolVar(&monitorUseTUI, "tui", false, "Use terminal UI")
	monitorCmd.Flags().StringVar(&monitorCapturePath, "capture", "", "Write every frame to a CBOR capture file")
}

// busObserver receives each completed frame, or the error that ended a
// receive step. msg is nil for byte-level errors.
type busObserver func(msg *com2bus.Message, err error)

// watchBus reads the bus until the transport fails, recording statistics
// and capturing every completed frame. Overruns are counted but not
// passed to observe.
func watchBus(bus transport.Transport, stats *com2bus.Statistics, cw *capture.Writer, observe busObserver) error {
	gate := com2bus.NewGate(bus)

	for {
		b, marker, err := bus.Receive()
		if err != nil {
			return err
		}

		msg, err := gate.Accept(b, marker)
		if msg == nil && err == nil {
			continue
		}
		if msg != nil {
			err = com2bus.CheckCRC(msg)
			if cw != nil {
				if cerr := cw.WriteMessage(capture.FromBus, msg); cerr != nil {
					log.Warnf("Capture failed: %v", cerr)
				}
			}
		}

		stats.RecordReceive(msg, err)

		if errors.Is(err, com2bus.ErrFrameOverrun) {
			continue
		}
		observe(msg, err)
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
	bus, connInfo, err := OpenBus()
	if err != nil {
		return err
	}
	defer bus.Close()

	var cw *capture.Writer
	if monitorCapturePath != "" {
		f, err := os.Create(monitorCapturePath)
		if err != nil {
			return fmt.Errorf("failed to create capture file: %v", err)
		}
		defer f.Close()
		cw = capture.NewWriter(f)
	}

	if monitorUseTUI {
		return runMonitorTUI(bus, connInfo, cw)
	}
	return runMonitorText(bus, connInfo, cw)
}

// runMonitorText prints frames as they arrive
func runMonitorText(bus transport.Transport, connInfo string, cw *capture.Writer) error {
	fmt.Printf("com2gate - Bus Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	if monitorShowPolls {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Polls hidden\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	stats := com2bus.NewStatistics()

	if monitorStatsInterval > 0 {
		go func() {
			ticker := time.NewTicker(time.Duration(monitorStatsInterval) * time.Second)
			defer ticker.Stop()
			for range ticker.C {
				fmt.Print("\n" + stats.String() + "\n")
			}
		}()
	}

	err := watchBus(bus, stats, cw, func(msg *com2bus.Message, err error) {
		timestamp := time.Now().Format("15:04:05.000")
		switch {
		case msg == nil:
			fmt.Printf("[%s] \033[1;31mERROR:\033[0m %v\n", timestamp, err)
		case err == nil && msg.IsPoll() && !monitorShowPolls:
			// hidden
		default:
			fmt.Printf("[%s] %s\n", timestamp, com2bus.FormatMessage(msg))
		}
	})

	if errors.Is(err, transport.ErrClosed) {
		log.Info("Connection closed")
		fmt.Print("\n" + stats.String())
		return nil
	}
	return err
}

// runMonitorTUI runs the monitor in TUI mode
func runMonitorTUI(bus transport.Transport, connInfo string, cw *capture.Writer) error {
	m := newMonitorModel(connInfo, monitorShowPolls)
	p := tea.NewProgram(m, tea.WithAltScreen())

	// Bus reader goroutine
	go func() {
		err := watchBus(bus, m.stats, cw, func(msg *com2bus.Message, err error) {
			p.Send(busFrameMsg{msg: msg, err: err, at: time.Now()})
		})
		p.Send(busClosedMsg{err: err})
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}

	return nil
}
