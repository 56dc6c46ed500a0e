// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/xbeestat/pkg/xbee"
)

// Error log entry
type errorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for warnings
}

// Radio activity derived from the frame stream
type radioActivity struct {
	lastModemStatus   xbee.ModemStatus
	hasModemStatus    bool
	lastModemStatusAt time.Time
	frameCounts       map[xbee.FrameType]uint64
	senders           map[string]struct{}
}

// TUI model
type model struct {
	connInfo      string
	statsInterval int
	showAll       bool
	statsFn       func() xbee.Statistics
	stats         xbee.Statistics
	errorLog      []errorLogEntry
	maxLogEntries int
	synchronized  bool
	invalidBytes  uint64
	width         int
	height        int
	quitting      bool
	lost          bool
	activity      radioActivity
}

// Messages
type tickMsg time.Time
type frameDataMsg struct {
	event        frameEvent
	synchronized bool
}
type syncMsg struct {
	invalidBytes uint64
}
type connectionLostMsg struct{}

// formatUptime formats uptime in milliseconds to human-friendly string
func formatUptime(ms uint64) string {
	if ms == 0 {
		return "0 seconds"
	}

	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24
	months := days / 30
	years := months / 12

	seconds %= 60
	minutes %= 60
	hours %= 24
	days %= 30
	months %= 12

	parts := []string{}
	if years > 0 {
		if years == 1 {
			parts = append(parts, "1 year")
		} else {
			parts = append(parts, fmt.Sprintf("%d years", years))
		}
	}
	if months > 0 {
		if months == 1 {
			parts = append(parts, "1 month")
		} else {
			parts = append(parts, fmt.Sprintf("%d months", months))
		}
	}
	if days > 0 {
		if days == 1 {
			parts = append(parts, "1 day")
		} else {
			parts = append(parts, fmt.Sprintf("%d days", days))
		}
	}
	if hours > 0 {
		if hours == 1 {
			parts = append(parts, "1 hour")
		} else {
			parts = append(parts, fmt.Sprintf("%d hours", hours))
		}
	}
	if minutes > 0 {
		if minutes == 1 {
			parts = append(parts, "1 minute")
		} else {
			parts = append(parts, fmt.Sprintf("%d minutes", minutes))
		}
	}
	if seconds > 0 || len(parts) == 0 {
		if seconds == 1 {
			parts = append(parts, "1 second")
		} else {
			parts = append(parts, fmt.Sprintf("%d seconds", seconds))
		}
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

func initialModel(connInfo string, statsInterval int, showAll bool, statsFn func() xbee.Statistics) model {
	return model{
		connInfo:      connInfo,
		statsInterval: statsInterval,
		showAll:       showAll,
		statsFn:       statsFn,
		stats:         statsFn(),
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
		activity: radioActivity{
			frameCounts: make(map[xbee.FrameType]uint64),
			senders:     make(map[string]struct{}),
		},
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
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

	case tickMsg:
		// The connection owns the counters; refresh the snapshot
		m.stats = m.statsFn()
		m.stats.CalculateRates()
		return m, tickCmd()

	case syncMsg:
		m.synchronized = true
		m.invalidBytes = msg.invalidBytes
		if msg.invalidBytes > 0 {
			m.addLogEntry(fmt.Sprintf("Synchronized after skipping %d invalid bytes", msg.invalidBytes), false)
		} else {
			m.addLogEntry("Synchronized", false)
		}

	case connectionLostMsg:
		m.lost = true
		m.addLogEntry("Connection closed", true)

	case frameDataMsg:
		ev := msg.event
		if ev.decodeErr != nil {
			if msg.synchronized {
				m.addLogEntry(fmt.Sprintf("DECODE ERROR: %v", ev.decodeErr), true)
			}
		} else if ev.frame != nil {
			m.trackActivity(ev.frame)

			if len(ev.validationErrors) > 0 {
				for _, err := range ev.validationErrors {
					m.addLogEntry(fmt.Sprintf("%s: %s", ev.frame.Type(), err.Message), true)
				}
			} else if ev.frame.Type() == xbee.FrameModemStatus {
				m.addLogEntry(fmt.Sprintf("MODEM_STATUS: %s", m.activity.lastModemStatus), false)
			} else if m.showAll {
				m.addLogEntry(fmt.Sprintf("%s (valid)", ev.frame.Type()), false)
			}
		}
	}

	return m, nil
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.errorLog = append(m.errorLog, entry)

	// Keep only last N entries
	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

// trackActivity records frame type counts, modem events and senders
func (m *model) trackActivity(f *xbee.Frame) {
	m.activity.frameCounts[f.Type()]++

	switch f.Type() {
	case xbee.FrameModemStatus:
		if s, err := xbee.ParseModemStatus(f); err == nil {
			m.activity.lastModemStatus = s
			m.activity.hasModemStatus = true
			m.activity.lastModemStatusAt = f.Timestamp()
		}

	case xbee.FrameReceivePacket, xbee.FrameExplicitRx, xbee.FrameRx64, xbee.FrameRx16:
		if rx, err := xbee.ParseReceivePacket(f); err == nil {
			sender := rx.Source64.String()
			if rx.Source64 == xbee.Unknown64 {
				sender = rx.Source16.String()
			}
			m.activity.senders[sender] = struct{}{}
		}
	}
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("XBEESTAT - ERROR DETECTION"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("Connection: %s | Mode: %s | Press 'q' to quit",
		m.connInfo, func() string {
			if m.showAll {
				return "All frames"
			}
			return "Errors only"
		}())))
	s.WriteString("\n\n")

	// Sync status
	switch {
	case m.lost:
		s.WriteString(errorStyle.Render("✗ Connection closed"))
		s.WriteString("\n\n")
	case !m.synchronized:
		s.WriteString(warningStyle.Render("⏳ Waiting for synchronization..."))
		s.WriteString("\n\n")
	default:
		s.WriteString(statsValueStyle.Render("✓ Synchronized"))
		if m.invalidBytes > 0 {
			s.WriteString(headerStyle.Render(fmt.Sprintf(" (skipped %d invalid bytes)", m.invalidBytes)))
		}
		s.WriteString("\n\n")
	}

	// Statistics
	stats := m.stats
	var validPercent, errorPercent float64
	totalErrors := stats.Errors()
	if stats.TotalFrames > 0 {
		validPercent = float64(stats.ValidFrames) * 100.0 / float64(stats.TotalFrames)
		errorPercent = float64(totalErrors) * 100.0 / float64(stats.TotalFrames)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Total:"), statsValueStyle.Render(fmt.Sprintf("%d", stats.TotalFrames)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", stats.ValidFrames, validPercent)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", totalErrors, errorPercent)),
	))

	if stats.ChecksumErrors > 0 || stats.FormatErrors > 0 || stats.DecodeErrors > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			statsLabelStyle.Render("Checksum:"), errorStyle.Render(fmt.Sprintf("%d", stats.ChecksumErrors)),
			statsLabelStyle.Render("Format:"), errorStyle.Render(fmt.Sprintf("%d", stats.FormatErrors)),
			statsLabelStyle.Render("Decode:"), errorStyle.Render(fmt.Sprintf("%d", stats.DecodeErrors)),
		))
	}

	if stats.MalformedFrames > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s",
			statsLabelStyle.Render("Malformed:"), errorStyle.Render(fmt.Sprintf("%d", stats.MalformedFrames)),
		))
		if stats.UnknownTypes > 0 || stats.LengthMismatches > 0 {
			statsContent.WriteString(fmt.Sprintf(" (%s: %d, %s: %d)",
				headerStyle.Render("unknown types"), stats.UnknownTypes,
				headerStyle.Render("length mismatches"), stats.LengthMismatches,
			))
		}
		statsContent.WriteString("\n")
	}

	if stats.AnomalousValues > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s",
			statsLabelStyle.Render("Anomalous:"), warningStyle.Render(fmt.Sprintf("%d", stats.AnomalousValues)),
		))
		if stats.InvalidCommands > 0 {
			statsContent.WriteString(fmt.Sprintf(" (%s: %d)",
				headerStyle.Render("invalid commands"), stats.InvalidCommands,
			))
		}
		statsContent.WriteString("\n")
	}

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Frame Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f frames/s", stats.FrameRate)),
		statsLabelStyle.Render("Error Rate:"), func() string {
			if stats.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f err/s", stats.ErrorRate))
			}
			return statsValueStyle.Render(fmt.Sprintf("%.1f err/s", stats.ErrorRate))
		}(),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Radio section
	s.WriteString(statsLabelStyle.Render("Radio Activity:"))
	s.WriteString("\n")

	radioContent := strings.Builder{}
	session := time.Since(stats.StartTime).Milliseconds()
	radioContent.WriteString(fmt.Sprintf("%s %s\n",
		statsLabelStyle.Render("Session:"), statsValueStyle.Render(formatUptime(uint64(session))),
	))
	if m.activity.hasModemStatus {
		radioContent.WriteString(fmt.Sprintf("%s %s %s\n",
			statsLabelStyle.Render("Modem:"), statsValueStyle.Render(m.activity.lastModemStatus.String()),
			headerStyle.Render(fmt.Sprintf("(%s ago)", formatUptime(uint64(time.Since(m.activity.lastModemStatusAt).Milliseconds())))),
		))
	}
	if len(m.activity.senders) > 0 {
		radioContent.WriteString(fmt.Sprintf("%s %s\n",
			statsLabelStyle.Render("Senders:"), statsValueStyle.Render(fmt.Sprintf("%d", len(m.activity.senders))),
		))
	}
	types := make([]xbee.FrameType, 0, len(m.activity.frameCounts))
	for t := range m.activity.frameCounts {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	for _, t := range types {
		radioContent.WriteString(fmt.Sprintf("%s %s\n",
			statsLabelStyle.Render(fmt.Sprintf("%s:", t)),
			statsValueStyle.Render(fmt.Sprintf("%d", m.activity.frameCounts[t])),
		))
	}

	s.WriteString(boxStyle.Render(strings.TrimSuffix(radioContent.String(), "\n")))
	s.WriteString("\n\n")

	// Error log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 15 // Reserve space for header and stats
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.errorLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.errorLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.errorLog); i++ {
			entry := m.errorLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
