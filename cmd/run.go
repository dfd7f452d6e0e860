// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.bug.st/serial"

	"github.com/Thermoquad/com2gate/pkg/capture"
	"github.com/Thermoquad/com2gate/pkg/gateway"
)

var (
	runHostFormat    string
	runHostDevice    string
	runHostBaud      int
	runCapturePath   string
	runStatsInterval int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bus gateway",
	Long: `Relay frames between the com2bus bus and a host link.

Every valid frame received on the bus is written to the host. Data frames
(type 0x6c) read from the host are queued as responses: the next poll for the
frame's address is answered with it. Once an address has been seen, polls with
nothing queued are answered with the default response [00 ff].

Host link formats:
  raw  frames as wire bytes
  hex  one lower-case hex frame per line

The host link is stdin/stdout by default, or a serial device given with --host.
Logs always go to stderr.

Examples:
  # Serial bus, host on stdio as hex lines
  com2gate run --port /dev/ttyS1 --host-format hex

  # Serial bus, host on a second UART, capturing all frames
  com2gate run --port /dev/ttyS1 --host /dev/ttyUSB0 --capture bus.cbor`,
	RunE: runGateway,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runHostFormat, "host-format", "raw", "Host link format (raw, hex)")
	runCmd.Flags().StringVar(&runHostDevice, "host", "-", "Host link: '-' for stdin/stdout or a serial device")
	runCmd.Flags().IntVar(&runHostBaud, "host-baud", 115200, "Baud rate of a serial host link")
	runCmd.Flags().StringVar(&runCapturePath, "capture", "", "Write every frame to a CBOR capture file")
	runCmd.Flags().IntVar(&runStatsInterval, "stats-interval", 0, "Log statistics every N seconds (0 disables)")
}

// stdioHost is the host link on stdin/stdout.
type stdioHost struct{}

func (stdioHost) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdioHost) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdioHost) Close() error                { return os.Stdin.Close() }

// openHost opens the host link named by --host.
func openHost() (io.ReadWriteCloser, string, error) {
	if runHostDevice == "" || runHostDevice == "-" {
		return stdioHost{}, "stdio", nil
	}

	mode := &serial.Mode{
		BaudRate: runHostBaud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(runHostDevice, mode)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open host port %s: %v", runHostDevice, err)
	}

	return port, fmt.Sprintf("Serial: %s @ %d baud", runHostDevice, runHostBaud), nil
}

func runGateway(cmd *cobra.Command, args []string) error {
	format, err := gateway.ParseHostFormat(runHostFormat)
	if err != nil {
		return err
	}

	bus, busInfo, err := OpenBus()
	if err != nil {
		return err
	}

	host, hostInfo, err := openHost()
	if err != nil {
		bus.Close()
		return err
	}

	cfg := gateway.Config{
		Bus:           bus,
		Host:          host,
		HostFormat:    format,
		StatsInterval: time.Duration(runStatsInterval) * time.Second,
	}

	if runCapturePath != "" {
		f, err := os.Create(runCapturePath)
		if err != nil {
			bus.Close()
			host.Close()
			return fmt.Errorf("failed to create capture file: %v", err)
		}
		defer f.Close()
		cfg.Capture = capture.NewWriter(f)
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		bus.Close()
		host.Close()
		return err
	}

	log.WithFields(log.Fields{
		"bus":    busInfo,
		"host":   hostInfo,
		"format": format,
	}).Info("com2gate running. Press Ctrl+C to exit.")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = gw.Run(ctx)

	fmt.Fprint(os.Stderr, "\n"+gw.Stats().String())

	return err
}
