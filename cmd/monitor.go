// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Thermoquad/signalbox/pkg/cmri"
	"github.com/Thermoquad/signalbox/pkg/controller"
	"github.com/Thermoquad/signalbox/pkg/layout"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the signal box with a live terminal view",
	Long: `Run the control loop like 'run' and show the state of every node, the
CMRI link counters and recent events.

Keys:
  :      enter an Output (node:pin) to toggle
  r      rescan the bus now
  c      clear the event log
  q      quit`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

// boxState is a copy of the live state taken on the loop
type boxState struct {
	outputs  [layout.OutputNodes]byte
	outPres  [layout.OutputNodes]bool
	inputs   [layout.InputNodes]uint16
	inPres   [layout.InputNodes]bool
	warnings int
	link     *cmri.Statistics
}

func captureState(c *controller.Controller, link *cmri.Link) boxState {
	var st boxState
	reg := c.Registry()
	for n := uint8(0); n < layout.OutputNodes; n++ {
		st.outPres[n] = reg.IsPresent(n)
		st.outputs[n] = reg.StateByte(n)
	}
	for n := uint8(0); n < layout.InputNodes; n++ {
		st.inPres[n] = reg.IsInputPresent(n)
		st.inputs[n] = reg.InputLevels(n)
	}
	st.warnings = c.PendingWarnings()
	if link != nil {
		stats := *link.Statistics()
		st.link = &stats
	}
	return st
}

type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

type monitorTickMsg time.Time
type eventMsg controller.Event

type monitorModel struct {
	busInfo  string
	loop     *controller.Loop
	link     *cmri.Link
	states   chan boxState
	state    boxState
	haveData bool

	prompt    textinput.Model
	prompting bool

	log           []logEntry
	maxLogEntries int
	width         int
	height        int
	quitting      bool
}

func newMonitorModel(busInfo string, r *running) monitorModel {
	ti := textinput.New()
	ti.Prompt = "toggle> "
	ti.Placeholder = "node:pin"
	ti.CharLimit = 5

	return monitorModel{
		busInfo:       busInfo,
		loop:          r.loop,
		link:          r.link,
		states:        make(chan boxState, 1),
		prompt:        ti,
		maxLogEntries: 200,
		width:         80,
		height:        24,
	}
}

func monitorTick() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Init() tea.Cmd {
	return monitorTick()
}

// requestState asks the loop for a fresh copy of the state. It is picked up
// on a later tick.
func (m monitorModel) requestState() {
	link, states := m.link, m.states
	m.loop.Submit(func(c *controller.Controller) {
		select {
		case states <- captureState(c, link):
		default:
		}
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.prompting {
			return m.updatePrompt(msg)
		}
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case ":":
			m.prompting = true
			m.prompt.SetValue("")
			return m, m.prompt.Focus()
		case "r":
			m.loop.Submit(func(c *controller.Controller) { c.Rescan() })
			m.addLogEntry("Rescan requested", false)
		case "c":
			m.log = nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case monitorTickMsg:
		select {
		case st := <-m.states:
			m.state = st
			m.haveData = true
		default:
		}
		m.requestState()
		return m, monitorTick()

	case eventMsg:
		e := controller.Event(msg)
		switch e.Kind {
		case controller.EventStateChanged, controller.EventInput:
			// Visible in the node view
		default:
			m.addLogEntry(e.String(), e.Kind == controller.EventNodeLost || e.Err != nil)
		}
	}

	return m, nil
}

func (m monitorModel) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.prompting = false
		m.prompt.Blur()
		return m, nil

	case tea.KeyEnter:
		m.prompting = false
		m.prompt.Blur()
		ref, err := parseRef(strings.TrimSpace(m.prompt.Value()))
		if err != nil {
			m.addLogEntry(err.Error(), true)
			return m, nil
		}
		if !m.loop.Submit(func(c *controller.Controller) { _ = c.ToggleOutput(ref) }) {
			m.addLogEntry("Loop busy, toggle dropped", true)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.prompt, cmd = m.prompt.Update(msg)
	return m, cmd
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.log = append(m.log, logEntry{timestamp: time.Now(), message: message, isError: isError})
	if len(m.log) > m.maxLogEntries {
		m.log = m.log[len(m.log)-m.maxLogEntries:]
	}
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	noteStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	hiStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	loStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	boxStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

// bits renders the low n bits of v, bit 0 first, as lamps
func bits(v uint16, n int, closed bool) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		on := v&(1<<i) != 0
		if closed {
			// A closed switch reads Lo
			on = !on
		}
		if on {
			b.WriteString(hiStyle.Render("●"))
		} else {
			b.WriteString(loStyle.Render("○"))
		}
	}
	return b.String()
}

func (m monitorModel) viewNodes() string {
	var out, in strings.Builder
	outCount, inCount := 0, 0

	for n := 0; n < layout.OutputNodes; n++ {
		if !m.state.outPres[n] {
			continue
		}
		outCount++
		fmt.Fprintf(&out, "%s %s\n", labelStyle.Render(fmt.Sprintf("%02d", n)),
			bits(uint16(m.state.outputs[n]), layout.OutputPins, false))
	}
	for n := 0; n < layout.InputNodes; n++ {
		if !m.state.inPres[n] {
			continue
		}
		inCount++
		fmt.Fprintf(&in, "%s %s\n", labelStyle.Render(fmt.Sprintf("%02d", n)),
			bits(m.state.inputs[n], layout.InputPins, true))
	}
	if outCount == 0 {
		out.WriteString(headerStyle.Render("(none)"))
	}
	if inCount == 0 {
		in.WriteString(headerStyle.Render("(none)"))
	}

	left := boxStyle.Render(labelStyle.Render(fmt.Sprintf("Outputs (%d)", outCount)) + "\n" +
		strings.TrimRight(out.String(), "\n"))
	right := boxStyle.Render(labelStyle.Render(fmt.Sprintf("Inputs (%d) ● closed", inCount)) + "\n" +
		strings.TrimRight(in.String(), "\n"))
	return lipgloss.JoinHorizontal(lipgloss.Top, left, " ", right)
}

func (m monitorModel) viewLink() string {
	st := m.state.link
	if st == nil {
		return headerStyle.Render("CMRI: not attached")
	}
	st.CalculateRates()

	errs := valueStyle.Render(fmt.Sprintf("%d", st.FramingErrors+st.ActionErrors))
	if st.FramingErrors+st.ActionErrors > 0 {
		errs = errorStyle.Render(fmt.Sprintf("%d", st.FramingErrors+st.ActionErrors))
	}
	return boxStyle.Render(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s   %s %s\n%s %s   %s %s",
		labelStyle.Render("Frames:"), valueStyle.Render(fmt.Sprintf("%d", st.TotalFrames)),
		labelStyle.Render("Polls:"), valueStyle.Render(fmt.Sprintf("%d", st.Polls)),
		labelStyle.Render("Transmits:"), valueStyle.Render(fmt.Sprintf("%d", st.Transmits)),
		labelStyle.Render("Responses:"), valueStyle.Render(fmt.Sprintf("%d", st.Responses)),
		labelStyle.Render("Errors:"), errs,
		labelStyle.Render("Frame Rate:"), valueStyle.Render(fmt.Sprintf("%.1f frames/s", st.FrameRate)),
		labelStyle.Render("Error Rate:"), valueStyle.Render(fmt.Sprintf("%.1f err/s", st.ErrorRate)),
	))
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("SIGNALBOX - MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("Bus: %s | ':' toggle  'r' rescan  'q' quit", m.busInfo)))
	s.WriteString("\n\n")

	if !m.haveData {
		s.WriteString(noteStyle.Render("Waiting for the first scan..."))
		s.WriteString("\n\n")
	} else {
		s.WriteString(m.viewNodes())
		s.WriteString("\n")
		s.WriteString(m.viewLink())
		s.WriteString("\n")
		if m.state.warnings > 0 {
			s.WriteString(noteStyle.Render(fmt.Sprintf("Warnings pending: %d", m.state.warnings)))
			s.WriteString("\n")
		}
		s.WriteString("\n")
	}

	if m.prompting {
		s.WriteString(m.prompt.View())
		s.WriteString("\n\n")
	}

	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := max(m.height-lipgloss.Height(s.String())-3, 5)
	var logContent strings.Builder
	if len(m.log) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	}
	for _, entry := range m.log[max(len(m.log)-logHeight, 0):] {
		ts := headerStyle.Render(entry.timestamp.Format("15:04:05.000"))
		if entry.isError {
			fmt.Fprintf(&logContent, "%s %s\n", ts, errorStyle.Render("✗ "+entry.message))
		} else {
			fmt.Fprintf(&logContent, "%s %s\n", ts, noteStyle.Render("ℹ "+entry.message))
		}
	}
	s.WriteString(boxStyle.Width(max(m.width-4, 20)).Render(strings.TrimRight(logContent.String(), "\n")))

	return s.String()
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Log lines would tear the alternate screen
	if !cmd.Flags().Changed("log-level") {
		v.Set("log.level", "error")
	}

	events := make(controller.ChanSink, 256)
	s, err := openSession(events)
	if err != nil {
		return err
	}
	defer s.Close()

	r, err := startLoop(ctx, s)
	if err != nil {
		return err
	}

	p := tea.NewProgram(newMonitorModel(s.info, r), tea.WithAltScreen(), tea.WithContext(ctx))

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case e := <-events:
				p.Send(eventMsg(e))
			}
		}
	}()

	_, runErr := p.Run()
	interrupted := ctx.Err() != nil
	cancel()
	loopErr := r.group.Wait()
	if runErr != nil && !interrupted {
		return fmt.Errorf("TUI error: %w", runErr)
	}
	return loopErr
}
