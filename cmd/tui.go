// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Spoorlab

package cmd

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/spoorlab/lnmon/pkg/layout"
	"github.com/spoorlab/lnmon/pkg/link"
	"github.com/spoorlab/lnmon/pkg/loconet"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	tuiTickInterval = 500 * time.Millisecond
	maxEventEntries = 100
	maxTableRows    = 12
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// busEvent is one line of the recent-messages log
type busEvent struct {
	timestamp time.Time
	line      string
}

// tuiModel is the Bubble Tea model for the live layout view
type tuiModel struct {
	link     *link.Link
	keeper   *layout.Scrollkeeper
	connInfo string

	slotTable   table.Model
	switchTable table.Model
	sensorTable table.Model

	stats link.Stats
	power layout.PowerState

	events    []busEvent
	maxEvents int

	width    int
	height   int
	quitting bool
	linkDown bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type tuiTickMsg time.Time

// busEventMsg carries one formatted bus message into the event log
type busEventMsg string

// linkDownMsg reports that the link stopped (replay ended or transport lost)
type linkDownMsg struct{}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func newEntityTable(cols []table.Column) table.Model {
	st := table.DefaultStyles()
	st.Selected = lipgloss.NewStyle() // display only, no cursor row
	return table.New(
		table.WithColumns(cols),
		table.WithHeight(2),
		table.WithStyles(st),
	)
}

func initialTuiModel(l *link.Link, sk *layout.Scrollkeeper, connInfo string) tuiModel {
	slotCols := []table.Column{
		{Title: "Slot", Width: 4},
		{Title: "Loc", Width: 5},
		{Title: "Status", Width: 6},
		{Title: "Dir", Width: 7},
		{Title: "Speed", Width: 7},
		{Title: "Fns", Width: 10},
	}
	switchCols := []table.Column{
		{Title: "Switch", Width: 6},
		{Title: "Position", Width: 8},
		{Title: "Coil", Width: 4},
	}
	sensorCols := []table.Column{
		{Title: "Sensor", Width: 6},
		{Title: "State", Width: 8},
	}

	return tuiModel{
		link:        l,
		keeper:      sk,
		connInfo:    connInfo,
		slotTable:   newEntityTable(slotCols),
		switchTable: newEntityTable(switchCols),
		sensorTable: newEntityTable(sensorCols),
		power:       layout.PowerUnknown,
		events:      make([]busEvent, 0),
		maxEvents:   maxEventEntries,
		width:       80,
		height:      24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m tuiModel) Init() tea.Cmd {
	return tea.Batch(
		tuiTickCmd(),
		tea.EnterAltScreen,
	)
}

func tuiTickCmd() tea.Cmd {
	return tea.Tick(tuiTickInterval, func(t time.Time) tea.Msg {
		return tuiTickMsg(t)
	})
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
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

	case tuiTickMsg:
		m.refresh()
		return m, tuiTickCmd()

	case busEventMsg:
		m.addEvent(string(msg))

	case linkDownMsg:
		m.linkDown = true
	}

	return m, nil
}

// refresh pulls the current mirror and counters into the tables
func (m *tuiModel) refresh() {
	m.stats = m.link.Stats()
	m.power = m.keeper.TrackPower()

	slotRows := []table.Row{}
	for _, sl := range m.keeper.Slots() {
		slotRows = append(slotRows, table.Row{
			strconv.Itoa(int(sl.Number)),
			strconv.Itoa(int(sl.Address)),
			sl.SlotStatus().String(),
			sl.Direction.String(),
			fmt.Sprintf("%d/%d", sl.Speed, sl.Steps()),
			onFunctions(sl.Functions),
		})
	}
	m.slotTable.SetRows(slotRows)
	m.slotTable.SetHeight(tableHeight(len(slotRows)))

	switchRows := []table.Row{}
	for _, sw := range m.keeper.Switches() {
		switchRows = append(switchRows, table.Row{
			strconv.Itoa(int(sw.Address) + 1),
			sw.Position.String(),
			onOffCell(sw.Engaged),
		})
	}
	m.switchTable.SetRows(switchRows)
	m.switchTable.SetHeight(tableHeight(len(switchRows)))

	sensorRows := []table.Row{}
	for _, sn := range m.keeper.Sensors() {
		sensorRows = append(sensorRows, table.Row{
			strconv.Itoa(int(sn.Address) + 1),
			sn.State.String(),
		})
	}
	m.sensorTable.SetRows(sensorRows)
	m.sensorTable.SetHeight(tableHeight(len(sensorRows)))
}

func (m *tuiModel) addEvent(line string) {
	m.events = append(m.events, busEvent{timestamp: time.Now(), line: line})

	// Keep only last N entries
	if len(m.events) > m.maxEvents {
		m.events = m.events[len(m.events)-m.maxEvents:]
	}
}

// tableHeight sizes a table to its rows (header included), clamped so the
// tables cannot crowd out the event log.
func tableHeight(rows int) int {
	if rows < 1 {
		rows = 1
	}
	if rows > maxTableRows {
		rows = maxTableRows
	}
	return rows + 1
}

// onFunctions lists the numbers of the functions that are on
func onFunctions(fns map[uint8]bool) string {
	nums := []int{}
	for fn, on := range fns {
		if on {
			nums = append(nums, int(fn))
		}
	}
	if len(nums) == 0 {
		return "-"
	}
	sort.Ints(nums)
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, " ")
}

func onOffCell(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m tuiModel) View() string {
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

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
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
	s.WriteString(titleStyle.Render("LNMON - LOCONET MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("Connection: %s | Press 'q' to quit", m.connInfo)))
	s.WriteString("\n")

	powerLine := fmt.Sprintf("%s %s", labelStyle.Render("Track power:"), renderPower(m.power, valueStyle, errorStyle, warningStyle))
	if m.linkDown {
		powerLine += "   " + errorStyle.Render("connection closed")
	}
	s.WriteString(powerLine)
	s.WriteString("\n\n")

	// Entity tables
	slots, switches, sensors := m.keeper.Counts()
	slotPanel := lipgloss.JoinVertical(lipgloss.Left,
		labelStyle.Render(fmt.Sprintf("Slots (%d)", slots)),
		boxStyle.Render(m.slotTable.View()),
	)
	switchPanel := lipgloss.JoinVertical(lipgloss.Left,
		labelStyle.Render(fmt.Sprintf("Switches (%d)", switches)),
		boxStyle.Render(m.switchTable.View()),
	)
	sensorPanel := lipgloss.JoinVertical(lipgloss.Left,
		labelStyle.Render(fmt.Sprintf("Sensors (%d)", sensors)),
		boxStyle.Render(m.sensorTable.View()),
	)
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, slotPanel, " ", switchPanel, " ", sensorPanel))
	s.WriteString("\n\n")

	// Link statistics
	statsContent := fmt.Sprintf("%s %s   %s %s   %s %s   %s %s",
		labelStyle.Render("In:"), valueStyle.Render(fmt.Sprintf("%d msgs", m.stats.MessagesIn)),
		labelStyle.Render("Out:"), valueStyle.Render(fmt.Sprintf("%d msgs", m.stats.MessagesOut)),
		labelStyle.Render("Errors:"), func() string {
			if m.stats.ErrorCount() > 0 {
				return errorStyle.Render(fmt.Sprintf("%d", m.stats.ErrorCount()))
			}
			return valueStyle.Render("0")
		}(),
		labelStyle.Render("Rate:"), valueStyle.Render(fmt.Sprintf("%.1f msgs/s", m.stats.MessageRate())),
	)
	s.WriteString(boxStyle.Render(statsContent))
	s.WriteString("\n\n")

	// Recent messages
	s.WriteString(labelStyle.Render("Recent Messages:"))
	s.WriteString("\n")

	logHeight := m.height - 2 - lipgloss.Height(slotPanel) - 12
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.events) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.events) == 0 {
		logContent.WriteString(headerStyle.Render("  (no messages yet)"))
	} else {
		for i := startIdx; i < len(m.events); i++ {
			entry := m.events[i]
			logContent.WriteString(fmt.Sprintf("%s %s\n",
				headerStyle.Render(entry.timestamp.Format("15:04:05.000")),
				entry.line,
			))
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}

func renderPower(p layout.PowerState, on, off, unknown lipgloss.Style) string {
	switch p {
	case layout.PowerOn:
		return on.Render("ON")
	case layout.PowerOff:
		return off.Render("OFF")
	default:
		return unknown.Render("UNKNOWN")
	}
}

//////////////////////////////////////////////////////////////
// Command
//////////////////////////////////////////////////////////////

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Live terminal view of slots, switches and sensors",
	Long: `Watch the layout mirror update in a full-screen terminal UI.

Shows one table per entity kind, the link statistics, and a scrolling log
of the most recent bus messages. The view refreshes twice a second; 'q'
or Ctrl+C leaves it.`,
	RunE: runTui,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTui(cmd *cobra.Command, args []string) error {
	l, connInfo, err := openLink()
	if err != nil {
		return err
	}
	sk := attachKeeper(l)

	p := tea.NewProgram(initialTuiModel(l, sk, connInfo), tea.WithAltScreen())

	l.Subscribe(func(msg loconet.Message) {
		p.Send(busEventMsg(loconet.FormatMessage(msg)))
	})
	go func() {
		<-l.Done()
		p.Send(linkDownMsg{})
	}()

	_, uiErr := p.Run()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.Shutdown(ctx); err != nil && uiErr == nil {
		return err
	}
	if uiErr != nil {
		return fmt.Errorf("TUI error: %v", uiErr)
	}
	return nil
}
