// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/com2gate/pkg/com2bus"
)

var (
	listenTimeout int
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Test connection by waiting for a valid com2bus frame",
	Long: `Wait for a valid com2bus frame on the bus until timeout.

This command connects to a serial port or WebSocket and waits for any frame
that starts with a marked byte and passes the CRC check. Bytes outside a frame
and frames with a bad CRC are counted and skipped.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error

Useful for checking the parity setup of a serial port before running the
gateway.`,
	RunE: runListen,
}

func init() {
	rootCmd.AddCommand(listenCmd)
	listenCmd.Flags().IntVar(&listenTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
}

func runListen(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	bus, connInfo, err := OpenBus()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer bus.Close()

	fmt.Printf("com2gate - Listen Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", listenTimeout)
	fmt.Printf("Waiting for valid frame...\n\n")

	gate := com2bus.NewGate(bus)

	// Channel for frame reception
	frameChan := make(chan *com2bus.Message, 1)
	errChan := make(chan error, 1)

	// Reader goroutine
	go func() {
		skipped := 0
		for {
			msg, err := gate.Receive()
			if err != nil {
				if isProtocolError(err) {
					skipped++
					continue
				}
				errChan <- err
				return
			}
			if !com2bus.Verify(msg) {
				skipped++
				continue
			}
			if skipped > 0 {
				fmt.Printf("(skipped %d invalid bytes or frames)\n", skipped)
			}
			frameChan <- msg
			return
		}
	}()

	// Wait for frame or timeout
	select {
	case msg := <-frameChan:
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Type: %s (0x%02X)\n", com2bus.FormatMessageType(msg.Type), msg.Type)
		fmt.Printf("  Address: 0x%02X\n", msg.Address)
		fmt.Printf("  Length: %d bytes\n", msg.Length())
		fmt.Printf("  CRC: 0x%04X\n", msg.CRC)
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(listenTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", listenTimeout)
		os.Exit(1)
	}

	return nil
}
