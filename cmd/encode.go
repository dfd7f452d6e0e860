// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/com2gate/pkg/com2bus"
)

var (
	encodeType    string
	encodeAddress string
	encodeData    string
	encodeRaw     bool
	encodeBadCRC  bool
	encodeVerbose bool
)

var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Build a frame and print it for the host link",
	Long: `Build a sealed com2bus frame from its fields.

By default the frame is printed as a hex line, ready to be piped into
'com2gate run --host-format hex'. Use --raw to write wire bytes instead.

Examples:
  # Queue a response for address 0x10
  com2gate encode --address 0x10 --data 010203

  # A frame with a corrupted CRC, for testing rejection
  com2gate encode --address 0x10 --data 00ff --bad-crc`,
	RunE: runEncode,
}

func init() {
	rootCmd.AddCommand(encodeCmd)
	encodeCmd.Flags().StringVarP(&encodeType, "type", "t", "0x6c", "Frame type (decimal or 0x hex)")
	encodeCmd.Flags().StringVarP(&encodeAddress, "address", "a", "", "Address (decimal or 0x hex)")
	encodeCmd.Flags().StringVarP(&encodeData, "data", "d", "", "Data as hex")
	encodeCmd.Flags().BoolVar(&encodeRaw, "raw", false, "Write wire bytes instead of a hex line")
	encodeCmd.Flags().BoolVar(&encodeBadCRC, "bad-crc", false, "Corrupt the CRC")
	encodeCmd.Flags().BoolVarP(&encodeVerbose, "verbose", "v", false, "Describe the frame on stderr")
	encodeCmd.MarkFlagRequired("address")
}

// parseByte parses a byte value in decimal or 0x-prefixed hex.
func parseByte(s string) (uint8, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8)
	if err != nil {
		return 0, err
	}
	return uint8(v), nil
}

// parseHexData parses frame data written as hex. Spaces, colons and an
// optional 0x prefix are ignored.
func parseHexData(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	s = strings.NewReplacer(" ", "", ":", "").Replace(s)
	if s == "" {
		return nil, nil
	}
	return hex.DecodeString(s)
}

// buildFrame builds the frame described by the encode flags.
func buildFrame(typeStr, addressStr, dataStr string, badCRC bool) (*com2bus.Message, error) {
	msgType, err := parseByte(typeStr)
	if err != nil {
		return nil, fmt.Errorf("invalid --type: %v", err)
	}
	address, err := parseByte(addressStr)
	if err != nil {
		return nil, fmt.Errorf("invalid --address: %v", err)
	}
	data, err := parseHexData(dataStr)
	if err != nil {
		return nil, fmt.Errorf("invalid --data: %v", err)
	}

	msg, err := com2bus.NewMessage(msgType, address, data)
	if err != nil {
		return nil, err
	}
	if badCRC {
		msg.CRC ^= 0xFFFF
	}
	return msg, nil
}

func runEncode(cmd *cobra.Command, args []string) error {
	msg, err := buildFrame(encodeType, encodeAddress, encodeData, encodeBadCRC)
	if err != nil {
		return err
	}

	if encodeVerbose {
		fmt.Fprintln(os.Stderr, com2bus.FormatMessage(msg))
	}

	if encodeRaw {
		_, err := os.Stdout.Write(com2bus.MustEncodeMessage(msg))
		return err
	}

	line, err := com2bus.EncodeHexLine(msg)
	if err != nil {
		return err
	}
	fmt.Print(line)
	return nil
}
