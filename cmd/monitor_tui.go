// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/xbeestat/pkg/link"
	"github.com/Thermoquad/xbeestat/pkg/xbee"
)

//////////////////////////////////////////////////////////////
// Connection Management
//////////////////////////////////////////////////////////////

// connectionManager handles connection lifecycle and reconnection
type connectionManager struct {
	ctx      context.Context
	session  *monitorSession
	conn     *link.Conn
	connInfo string
	mu       sync.RWMutex
	p        *tea.Program
	done     chan struct{}
	events   chan monitorEventMsg
}

func (cm *connectionManager) getConn() *link.Conn {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.conn
}

func (cm *connectionManager) setConn(conn *link.Conn, connInfo string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.conn = conn
	cm.connInfo = connInfo
}

// open connects and registers the listeners that feed the TUI.
func (cm *connectionManager) open() (*link.Conn, string, error) {
	opts := append(cm.session.options(), link.WithDecodeErrorHandler(func(err error) {
		cm.push(monitorEventMsg{decodeErr: err})
	}))
	conn, connInfo, err := openFramedLink(cm.ctx, opts...)
	if err != nil {
		return nil, "", err
	}

	conn.AddDataListener(func(m *link.XBeeMessage) error {
		cm.push(monitorEventMsg{message: m})
		return nil
	})
	conn.AddStatusListener(func(f *xbee.Frame) error {
		cm.push(monitorEventMsg{status: f})
		return nil
	})
	return conn, connInfo, nil
}

// push queues an event for the batch sender, dropping it when the TUI
// falls behind.
func (cm *connectionManager) push(ev monitorEventMsg) {
	select {
	case cm.events <- ev:
	default:
	}
}

func runMonitorTUI(ctx context.Context, session *monitorSession) error {
	cm := &connectionManager{
		ctx:     ctx,
		session: session,
		done:    make(chan struct{}),
		events:  make(chan monitorEventMsg, 256),
	}

	conn, connInfo, err := cm.open()
	if err != nil {
		return err
	}
	cm.setConn(conn, connInfo)

	m := initialMonitorModel(cm, connInfo)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	cm.p = p

	go cm.batchSender()
	go cm.connectionLoop()

	_, err = p.Run()
	close(cm.done)
	if c := cm.getConn(); c != nil {
		c.Close()
	}
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// connectionLoop watches the current connection and reconnects after a loss
func (cm *connectionManager) connectionLoop() {
	for {
		conn := cm.getConn()
		detach := cm.session.attach(cm.ctx, conn)

		select {
		case <-cm.done:
			detach()
			return
		case <-conn.Done():
		}

		detach()
		cm.p.Send(connectionLostMsg{})

		if !cm.reconnect() {
			return
		}
	}
}

// batchSender sends batched updates to the TUI at a fixed rate
func (cm *connectionManager) batchSender() {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-cm.done:
			return
		case <-ticker.C:
			var batch monitorBatchMsg

		drainLoop:
			for {
				select {
				case ev := <-cm.events:
					batch.events = append(batch.events, ev)
				default:
					break drainLoop
				}
			}

			if len(batch.events) > 0 {
				cm.p.Send(batch)
			}
		}
	}
}

// reconnect attempts to reconnect with exponential backoff
// Returns false if shutdown was requested during reconnection
func (cm *connectionManager) reconnect() bool {
	if conn := cm.getConn(); conn != nil {
		conn.Close()
	}

	backoff := monitorReconnectBackoff.initial

	for {
		select {
		case <-cm.done:
			return false
		case <-time.After(backoff):
		}

		conn, connInfo, err := cm.open()
		if err == nil {
			cm.setConn(conn, connInfo)
			cm.p.Send(reconnectedMsg{connInfo: connInfo})
			return true
		}
		logger.Debug("reconnect failed", "error", err, "backoff", backoff)

		backoff *= 2
		if backoff > monitorReconnectBackoff.max {
			backoff = monitorReconnectBackoff.max
		}
	}
}

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// Focus states
const (
	focusDeviceList = iota
	focusSendInput
)

// deviceItem adapts a registry device to the list
type deviceItem struct {
	dev *link.RemoteDevice
}

func (d deviceItem) Title() string {
	if id := d.dev.NodeID(); id != "" {
		return id
	}
	return d.dev.Addr64().String()
}

func (d deviceItem) Description() string {
	return fmt.Sprintf("%s/%s %s", d.dev.Addr64(), d.dev.Addr16(), d.dev.DeviceType())
}

func (d deviceItem) FilterValue() string { return d.dev.NodeID() + " " + d.dev.Addr64().String() }

// monitorModel is the Bubble Tea model for the monitor TUI
type monitorModel struct {
	connMgr  *connectionManager
	connInfo string

	deviceList list.Model
	sendInput  textinput.Model
	focused    int

	stats         xbee.Statistics
	errorLog      []errorLogEntry
	maxLogEntries int
	lastData      map[xbee.Address64]*link.XBeeMessage

	width          int
	height         int
	quitting       bool
	connectionLost bool
	discovering    bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type monitorTickMsg time.Time

type monitorEventMsg struct {
	message   *link.XBeeMessage
	status    *xbee.Frame
	decodeErr error
}

type monitorBatchMsg struct {
	events []monitorEventMsg
}

type reconnectedMsg struct {
	connInfo string
}

type sendResultMsg struct {
	target string
	size   int
	err    error
}

type discoveryResultMsg struct {
	count int
	err   error
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialMonitorModel(connMgr *connectionManager, connInfo string) monitorModel {
	ti := textinput.New()
	ti.Placeholder = "text or 0x hex"
	ti.CharLimit = 255
	ti.Width = 40

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	deviceList := list.New([]list.Item{}, delegate, 30, 10)
	deviceList.Title = "Devices"
	deviceList.SetShowStatusBar(false)
	deviceList.SetShowHelp(false)
	deviceList.SetFilteringEnabled(false)

	m := monitorModel{
		connMgr:       connMgr,
		connInfo:      connInfo,
		deviceList:    deviceList,
		sendInput:     ti,
		focused:       focusDeviceList,
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		lastData:      make(map[xbee.Address64]*link.XBeeMessage),
		width:         80,
		height:        24,
	}
	m.refresh()
	return m
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m monitorModel) Init() tea.Cmd {
	return monitorTickCmd()
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case monitorTickMsg:
		m.refresh()
		return m, monitorTickCmd()

	case monitorBatchMsg:
		for _, ev := range msg.events {
			m.processEvent(ev)
		}
		m.refresh()

	case connectionLostMsg:
		m.connectionLost = true
		m.addLogEntry("Connection lost - reconnecting...", true)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.addLogEntry("Reconnected", false)
		m.refresh()

	case sendResultMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Send to %s failed: %v", msg.target, msg.err), true)
		} else {
			m.addLogEntry(fmt.Sprintf("Sent %d bytes to %s", msg.size, msg.target), false)
		}

	case discoveryResultMsg:
		m.discovering = false
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Discovery failed: %v", msg.err), true)
		} else {
			m.addLogEntry(fmt.Sprintf("Discovery complete: %d device(s)", msg.count), false)
		}
		m.refresh()
	}

	var cmd tea.Cmd
	if m.focused == focusSendInput {
		m.sendInput, cmd = m.sendInput.Update(msg)
		cmds = append(cmds, cmd)
	} else {
		m.deviceList, cmd = m.deviceList.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m monitorModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "q":
		if m.focused == focusDeviceList {
			m.quitting = true
			return m, tea.Quit
		}

	case "tab", "shift+tab":
		if m.focused == focusDeviceList {
			m.focused = focusSendInput
			m.sendInput.Focus()
		} else {
			m.focused = focusDeviceList
			m.sendInput.Blur()
		}
		return m, nil

	case "d":
		if m.focused == focusDeviceList {
			return m, m.startDiscovery()
		}

	case "enter":
		if m.focused == focusSendInput {
			return m, m.sendSelected()
		}
	}

	var cmd tea.Cmd
	if m.focused == focusSendInput {
		m.sendInput, cmd = m.sendInput.Update(msg)
	} else {
		m.deviceList, cmd = m.deviceList.Update(msg)
	}
	return m, cmd
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

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

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	// Header
	s.WriteString(titleStyle.Render("XBEESTAT MONITOR"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=quit Tab=switch d=discover", connStatus)))
	s.WriteString("\n")
	if m.discovering {
		s.WriteString(warningStyle.Render(" Discovering devices..."))
	}
	s.WriteString("\n\n")

	// Layout: left panel (devices) | right panel (selected device)
	leftWidth := 30
	rightWidth := m.width - leftWidth - 6

	listStyle := boxStyle.Width(leftWidth)
	if m.focused == focusDeviceList {
		listStyle = focusedBoxStyle.Width(leftWidth)
	}
	devicePanel := listStyle.Render(m.deviceList.View())

	detailStyle := boxStyle.Width(rightWidth)
	if m.focused == focusSendInput {
		detailStyle = focusedBoxStyle.Width(rightWidth)
	}
	detailPanel := detailStyle.Render(m.renderDevicePanel(statsLabelStyle, statsValueStyle, headerStyle))

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, devicePanel, " ", detailPanel))
	s.WriteString("\n\n")

	s.WriteString(m.renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle))
	s.WriteString("\n\n")

	s.WriteString(m.renderEventLog(statsLabelStyle, warningStyle, boxStyle))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m monitorModel) renderDevicePanel(statsLabelStyle, statsValueStyle, headerStyle lipgloss.Style) string {
	var s strings.Builder

	dev := m.getSelectedDevice()
	if dev == nil {
		s.WriteString(headerStyle.Render("No device selected (press d to discover)"))
		return s.String()
	}

	snap := dev.Snapshot()
	s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Address:"), statsValueStyle.Render(snap.Addr64.String())))
	s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Network:"), statsValueStyle.Render(snap.Addr16.String())))
	if snap.NodeID != "" {
		s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Node ID:"), statsValueStyle.Render(snap.NodeID)))
	}
	s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Type:"), statsValueStyle.Render(snap.DeviceType.String())))
	s.WriteString(fmt.Sprintf("%s %s ago\n", statsLabelStyle.Render("Last seen:"),
		formatUptime(uint64(time.Since(snap.LastSeen).Milliseconds()))))

	if last := m.lastData[snap.Addr64]; last != nil {
		s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Last data:"), xbee.FormatValue(last.Data())))
	}

	s.WriteString("\n")
	s.WriteString(statsLabelStyle.Render("Send: "))
	s.WriteString(m.sendInput.View())
	return s.String()
}

func (m monitorModel) renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle lipgloss.Style) string {
	stats := m.stats
	var validPercent, errorPercent float64
	if stats.TotalFrames > 0 {
		validPercent = float64(stats.ValidFrames) * 100.0 / float64(stats.TotalFrames)
		errorPercent = float64(stats.Errors()) * 100.0 / float64(stats.TotalFrames)
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s",
		statsLabelStyle.Render("Total:"), statsValueStyle.Render(fmt.Sprintf("%d", stats.TotalFrames)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%.1f%%", validPercent)),
		statsLabelStyle.Render("Errors:"), func() string {
			if errorPercent > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f%%", errorPercent))
			}
			return statsValueStyle.Render("0.0%")
		}(),
		statsLabelStyle.Render("Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f frames/s", stats.FrameRate)),
	)

	return boxStyle.Width(m.width - 4).Render(content)
}

func (m monitorModel) renderEventLog(statsLabelStyle, warningStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("EVENTS"))
	s.WriteString("\n")

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyleLocal := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	logHeight := m.height - m.deviceList.Height() - 16
	if logHeight < 4 {
		logHeight = 4
	}

	startIdx := len(m.errorLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.errorLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.errorLog); i++ {
			entry := m.errorLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			icon := "i"
			style := warningStyle
			if entry.isError {
				icon = "x"
				style = errorStyleLocal
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(timestamp),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Data Processing
//////////////////////////////////////////////////////////////

func (m *monitorModel) processEvent(ev monitorEventMsg) {
	switch {
	case ev.decodeErr != nil:
		m.addLogEntry(fmt.Sprintf("DECODE ERROR: %v", ev.decodeErr), true)

	case ev.message != nil:
		m.lastData[ev.message.Device().Addr64()] = ev.message
		m.addLogEntry(formatMessage(ev.message, false), false)

	case ev.status != nil:
		if ev.status.Type() == xbee.FrameModemStatus {
			if s, err := xbee.ParseModemStatus(ev.status); err == nil {
				m.addLogEntry(fmt.Sprintf("Modem status: %s", s), s != xbee.ModemJoinedNetwork && s != xbee.ModemCoordinatorStarted)
				return
			}
		}
		m.addLogEntry(fmt.Sprintf("%s: %s", ev.status.Type(), xbee.FormatPayload(ev.status)), false)
	}
}

func (m *monitorModel) sendSelected() tea.Cmd {
	if m.connectionLost {
		m.addLogEntry("Cannot send: connection lost", true)
		return nil
	}
	dev := m.getSelectedDevice()
	if dev == nil {
		m.addLogEntry("Cannot send: no device selected", true)
		return nil
	}
	data, err := parseATValue(m.sendInput.Value())
	if err != nil || len(data) == 0 {
		m.addLogEntry("Nothing to send", true)
		return nil
	}
	m.sendInput.SetValue("")

	conn := m.connMgr.getConn()
	ctx := m.connMgr.ctx
	target := dev.String()
	return func() tea.Msg {
		err := conn.SendData(ctx, dev, data)
		return sendResultMsg{target: target, size: len(data), err: err}
	}
}

func (m *monitorModel) startDiscovery() tea.Cmd {
	if m.discovering || m.connectionLost {
		return nil
	}
	m.discovering = true
	m.addLogEntry("Starting node discovery", false)

	conn := m.connMgr.getConn()
	ctx := m.connMgr.ctx
	return func() tea.Msg {
		devices, err := conn.Discover(ctx, 0)
		return discoveryResultMsg{count: len(devices), err: err}
	}
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *monitorModel) addLogEntry(message string, isError bool) {
	entry := errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.errorLog = append(m.errorLog, entry)

	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

func (m *monitorModel) getSelectedDevice() *link.RemoteDevice {
	item, ok := m.deviceList.SelectedItem().(deviceItem)
	if !ok {
		return nil
	}
	return item.dev
}

// refresh reloads statistics and the device list from the connection
func (m *monitorModel) refresh() {
	conn := m.connMgr.getConn()
	if conn == nil {
		return
	}
	m.stats = conn.Statistics()
	m.stats.CalculateRates()

	devices := conn.Registry().Devices()
	items := make([]list.Item, len(devices))
	for i, d := range devices {
		items[i] = deviceItem{dev: d}
	}
	m.deviceList.SetItems(items)
}

func (m *monitorModel) updateListSize() {
	listHeight := m.height / 3
	if listHeight < 5 {
		listHeight = 5
	}
	m.deviceList.SetSize(28, listHeight)
}
