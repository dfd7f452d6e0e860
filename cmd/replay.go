// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/com2gate/pkg/capture"
	"github.com/Thermoquad/com2gate/pkg/com2bus"
)

var (
	replayShowPolls bool
	replayHex       bool
)

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Print the frames in a capture file",
	Long: `Print the frames recorded with --capture by 'run' or 'monitor'.

Each record shows its time, its direction and the decoded frame:
  bus>   received on the bus
  bus<   transmitted on the bus by the gateway
  host>  read from the host link

With --hex only the frames are printed, one hex line each, so a capture can be
fed back into 'com2gate run --host-format hex'.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayShowPolls, "show-polls", true, "Show poll frames")
	replayCmd.Flags().BoolVar(&replayHex, "hex", false, "Print hex lines only")
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open capture file: %v", err)
	}
	defer f.Close()

	stats := com2bus.NewStatistics()
	n, err := replayCapture(f, os.Stdout, stats)
	if err != nil {
		return err
	}

	if !replayHex {
		c := stats.Snapshot()
		fmt.Printf("\n%d records, %d bus frames received (%d CRC errors)\n", n, c.TotalFrames, c.CRCErrors)
	}
	return nil
}

// replayCapture prints every record in r to w and counts received bus
// frames into stats. It returns the number of records read.
func replayCapture(r io.Reader, w io.Writer, stats *com2bus.Statistics) (int, error) {
	reader := capture.NewReader(r)
	count := 0

	for {
		rec, err := reader.Read()
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			return count, err
		}
		count++

		msg, err := rec.Message()
		if err != nil {
			fmt.Fprintf(w, "[%s] %-5s \033[1;31mBAD RECORD:\033[0m %v\n",
				rec.Time.Format("15:04:05.000"), rec.Direction, err)
			continue
		}

		if rec.Direction == capture.FromBus {
			stats.RecordReceive(msg, com2bus.CheckCRC(msg))
		}

		if msg.IsPoll() && !replayShowPolls {
			continue
		}

		if replayHex {
			line, err := com2bus.EncodeHexLine(msg)
			if err != nil {
				return count, err
			}
			fmt.Fprint(w, line)
			continue
		}

		fmt.Fprintf(w, "[%s] %-5s %s\n",
			rec.Time.Format("15:04:05.000"), rec.Direction, com2bus.FormatMessage(msg))
	}
}
