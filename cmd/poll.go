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
	pollAddress string
	pollData    string
	pollTimeout int
	pollCount   int
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Poll an address as bus master and wait for the response",
	Long: `Send poll frames (type 0x4c) to one address and wait for its response.

This command acts as a bus master for testing. It is useful for verifying:
  - The serial port switches parity for the marker bit
  - A gateway answers for an address the host has queued data for
  - The default response [00 ff] is sent once nothing is queued

Exit codes:
  0 - All polls answered
  1 - One or more polls failed/timed out
  2 - Connection error`,
	RunE: runPoll,
}

func init() {
	rootCmd.AddCommand(pollCmd)
	pollCmd.Flags().StringVarP(&pollAddress, "address", "a", "", "Address to poll (decimal or 0x hex)")
	pollCmd.Flags().StringVar(&pollData, "data", "", "Poll data as hex")
	pollCmd.Flags().IntVar(&pollTimeout, "timeout", 5, "Timeout in seconds for each poll")
	pollCmd.Flags().IntVar(&pollCount, "count", 3, "Number of polls to send")
	pollCmd.MarkFlagRequired("address")
}

func runPoll(cmd *cobra.Command, args []string) error {
	if pollCount < 1 {
		return fmt.Errorf("--count must be at least 1")
	}
	address, err := parseByte(pollAddress)
	if err != nil {
		return fmt.Errorf("invalid --address: %v", err)
	}
	data, err := parseHexData(pollData)
	if err != nil {
		return fmt.Errorf("invalid --data: %v", err)
	}
	poll, err := com2bus.NewPoll(address, data)
	if err != nil {
		return err
	}

	// Open connection (serial or WebSocket)
	bus, connInfo, err := OpenBus()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer bus.Close()

	fmt.Printf("com2gate - Poll Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Address: 0x%02X\n", address)
	fmt.Printf("Timeout: %d seconds per poll\n", pollTimeout)
	fmt.Printf("Count: %d polls\n\n", pollCount)

	gate := com2bus.NewGate(bus)

	// One reader for the whole run; responses for other addresses are ignored.
	responseChan := make(chan *com2bus.Message, 16)
	errChan := make(chan error, 1)
	go func() {
		for {
			msg, err := gate.Receive()
			if err != nil {
				if isProtocolError(err) {
					continue
				}
				errChan <- err
				return
			}
			if msg.Address == address && !msg.IsPoll() {
				responseChan <- msg
			}
		}
	}()

	successCount := 0
	failCount := 0

	for i := 1; i <= pollCount; i++ {
		fmt.Printf("Poll %d/%d: ", i, pollCount)

		startTime := time.Now()
		if err := gate.Transmit(poll); err != nil {
			fmt.Printf("SEND FAILED: %v\n", err)
			failCount++
			continue
		}

		select {
		case msg := <-responseChan:
			rtt := time.Since(startTime)
			fmt.Printf("%s, rtt=%v\n", com2bus.FormatMessage(msg), rtt.Round(time.Millisecond))
			successCount++

		case err := <-errChan:
			fmt.Printf("READ FAILED: %v\n", err)
			failCount++
			i = pollCount

		case <-time.After(time.Duration(pollTimeout) * time.Second):
			fmt.Printf("TIMEOUT (no response in %ds)\n", pollTimeout)
			failCount++
		}

		// Small delay between polls
		if i < pollCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	// Summary
	fmt.Printf("\n--- Poll statistics ---\n")
	fmt.Printf("%d polls sent, %d responses received, %.0f%% loss\n",
		pollCount, successCount, float64(pollCount-successCount)/float64(pollCount)*100)

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}
