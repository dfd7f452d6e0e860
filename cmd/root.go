// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "com2gate",
	Short: "com2bus multidrop serial gateway",
	Long: `com2gate - A gateway between a com2bus multidrop serial bus and a host link.

The bus marks the first byte of every frame with a 9th bit. com2gate listens on
the bus, answers polls on behalf of addresses the host has queued responses
for, and relays every valid frame to the host.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 9600]
  WebSocket: --url ws://host/path [--username user]

Environment:
  COM2GATE_PORT       default for --port
  COM2GATE_BAUD       default for --baud
  COM2GATE_URL        default for --url
  COM2GATE_LOG_LEVEL  default for --log-level
  COM2GATE_PASSWORD   WebSocket password (prompted if not set)

The --password flag is intentionally not provided to avoid leaking credentials
in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", os.Getenv("COM2GATE_PORT"), "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", envInt("COM2GATE_BAUD", 9600), "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", os.Getenv("COM2GATE_URL"), "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", envString("COM2GATE_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
}

// setupLogging sends logs to stderr at the requested level. stdout is left
// for command output and the host link.
func setupLogging(cmd *cobra.Command, args []string) error {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid --log-level: %v", err)
	}

	log.SetOutput(os.Stderr)
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})

	return nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
