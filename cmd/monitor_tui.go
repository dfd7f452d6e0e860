// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/com2gate/pkg/com2bus"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// Per-address activity
type addressActivity struct {
	polls    uint64
	frames   uint64
	lastSeen time.Time
}

// TUI model
type monitorModel struct {
	connInfo      string
	showPolls     bool
	stats         *com2bus.Statistics
	eventLog      []eventLogEntry
	maxLogEntries int
	addresses     map[uint8]*addressActivity
	log           viewport.Model
	closedErr     error
	closed        bool
	width         int
	height        int
	quitting      bool
}

// Messages
type tickMsg time.Time
type busFrameMsg struct {
	msg *com2bus.Message
	err error
	at  time.Time
}
type busClosedMsg struct {
	err error
}

// formatElapsed formats a duration as a human-friendly string
func formatElapsed(d time.Duration) string {
	seconds := int64(d.Seconds())
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	plural := func(n int64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func newMonitorModel(connInfo string, showPolls bool) monitorModel {
	return monitorModel{
		connInfo:      connInfo,
		showPolls:     showPolls,
		stats:         com2bus.NewStatistics(),
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 500,
		addresses:     make(map[uint8]*addressActivity),
		log:           viewport.New(76, 10),
		width:         80,
		height:        24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.log.Width = max(msg.Width-4, 20)
		m.log.Height = max(msg.Height-18, 5)
		m.refreshLog()

	case tickMsg:
		return m, tickCmd()

	case busClosedMsg:
		m.closed = true
		m.closedErr = msg.err
		m.addLogEntry(time.Now(), fmt.Sprintf("Connection closed: %v", msg.err), true)

	case busFrameMsg:
		m.handleFrame(msg)
	}

	var cmd tea.Cmd
	m.log, cmd = m.log.Update(msg)
	return m, cmd
}

func (m *monitorModel) handleFrame(msg busFrameMsg) {
	if msg.msg == nil {
		m.addLogEntry(msg.at, fmt.Sprintf("ERROR: %v", msg.err), true)
		return
	}

	if msg.err == nil {
		a, ok := m.addresses[msg.msg.Address]
		if !ok {
			a = &addressActivity{}
			m.addresses[msg.msg.Address] = a
		}
		if msg.msg.IsPoll() {
			a.polls++
		} else {
			a.frames++
		}
		a.lastSeen = msg.at
	}

	if msg.err != nil {
		m.addLogEntry(msg.at, com2bus.FormatMessagePlain(msg.msg), true)
	} else if !msg.msg.IsPoll() || m.showPolls {
		m.addLogEntry(msg.at, com2bus.FormatMessagePlain(msg.msg), false)
	}
}

func (m *monitorModel) addLogEntry(at time.Time, message string, isError bool) {
	m.eventLog = append(m.eventLog, eventLogEntry{
		timestamp: at,
		message:   message,
		isError:   isError,
	})

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}

	m.refreshLog()
}

func (m *monitorModel) refreshLog() {
	follow := m.log.AtBottom()

	var content strings.Builder
	if len(m.eventLog) == 0 {
		content.WriteString(headerStyle.Render("  (no frames yet)"))
	}
	for _, entry := range m.eventLog {
		timestamp := headerStyle.Render(entry.timestamp.Format("15:04:05.000"))
		if entry.isError {
			content.WriteString(timestamp + " " + errorStyle.Render("✗ "+entry.message) + "\n")
		} else {
			content.WriteString(timestamp + " " + statsValueStyle.Render(entry.message) + "\n")
		}
	}

	m.log.SetContent(content.String())
	if follow {
		m.log.GotoBottom()
	}
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	statsLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	statsValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	c := m.stats.Snapshot()

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("COM2GATE - BUS MONITOR"))
	s.WriteString("\n")
	mode := "Polls hidden"
	if m.showPolls {
		mode = "All frames"
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Mode: %s | Up %s | Press 'q' to quit",
		m.connInfo, mode, formatElapsed(time.Since(c.StartTime)))))
	s.WriteString("\n\n")

	if m.closed {
		s.WriteString(warningStyle.Render(fmt.Sprintf("Connection closed: %v", m.closedErr)))
		s.WriteString("\n\n")
	}

	// Statistics
	var validPercent float64
	if c.TotalFrames > 0 {
		validPercent = float64(c.ValidFrames) * 100.0 / float64(c.TotalFrames)
	}

	var stats strings.Builder
	stats.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Frames:"), statsValueStyle.Render(fmt.Sprintf("%d", c.TotalFrames)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", c.ValidFrames, validPercent)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d", c.Errors())),
	))
	stats.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("CRC:"), errorStyle.Render(fmt.Sprintf("%d", c.CRCErrors)),
		statsLabelStyle.Render("Overruns:"), warningStyle.Render(fmt.Sprintf("%d", c.Overruns)),
		statsLabelStyle.Render("Oversize:"), warningStyle.Render(fmt.Sprintf("%d", c.OversizeFrames)),
	))
	stats.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Frame Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f frames/s", c.FrameRate)),
		statsLabelStyle.Render("Error Rate:"), func() string {
			if c.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f err/s", c.ErrorRate))
			}
			return statsValueStyle.Render(fmt.Sprintf("%.1f err/s", c.ErrorRate))
		}(),
	))
	s.WriteString(boxStyle.Render(stats.String()))
	s.WriteString("\n\n")

	// Addresses
	s.WriteString(statsLabelStyle.Render("Addresses:"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Render(m.addressTable()))
	s.WriteString("\n\n")

	// Frame log
	s.WriteString(statsLabelStyle.Render("Recent Frames:"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Width(m.width - 2).Render(m.log.View()))

	return s.String()
}

func (m monitorModel) addressTable() string {
	if len(m.addresses) == 0 {
		return headerStyle.Render("(no valid frames yet)")
	}

	addrs := make([]int, 0, len(m.addresses))
	for a := range m.addresses {
		addrs = append(addrs, int(a))
	}
	sort.Ints(addrs)

	var t strings.Builder
	t.WriteString(headerStyle.Render(fmt.Sprintf("%-6s %8s %8s  %s", "ADDR", "POLLS", "DATA", "LAST SEEN")))
	for _, a := range addrs {
		act := m.addresses[uint8(a)]
		t.WriteString(fmt.Sprintf("\n%s %8d %8d  %s",
			statsLabelStyle.Render(fmt.Sprintf("0x%02x  ", a)),
			act.polls, act.frames,
			headerStyle.Render(act.lastSeen.Format("15:04:05")),
		))
	}
	return t.String()
}
