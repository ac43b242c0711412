package viz

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/driveline/internal/geom"
	"github.com/san-kum/driveline/internal/telemetry"
)

const (
	width         = 72
	height        = 22
	trailCapacity = 2000
	chartCapacity = 120
	recentFaults  = 5
	robotSize     = 1.5 // ft
	frameInterval = time.Second / 15
)

type (
	TickMsg  time.Time
	poseMsg  telemetry.Sample
	faultMsg telemetry.Fault
	// DoneMsg reports that the robot's routine has finished.
	DoneMsg struct{ Err error }
)

// Source is what the live view reads from; telemetry.ChannelSink satisfies it.
type Source interface {
	Poses() <-chan telemetry.Sample
	Faults() <-chan telemetry.Fault
	Dropped() int64
}

// Model is the Bubble Tea model of the live view.
type Model struct {
	title  string
	source Source
	done   <-chan error

	canvas  *Canvas
	theme   Theme
	styles  styles
	trail   []geom.Vector2
	heading []float64
	last    telemetry.Sample
	started time.Time
	poses   int

	faults     []telemetry.Fault
	faultCount int

	frozen   bool
	finished bool
	err      error
}

// NewModel returns a view titled title. done, if not nil, is read once; the value
// sent is shown as the routine's outcome.
func NewModel(title string, source Source, done <-chan error) Model {
	return Model{
		title:   title,
		source:  source,
		done:    done,
		canvas:  NewCanvas(width, height),
		theme:   ThemeField,
		styles:  newStyles(ThemeField),
		trail:   make([]geom.Vector2, 0, 256),
		heading: make([]float64, 0, chartCapacity),
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tick(), waitPose(m.source), waitFault(m.source)}
	if m.done != nil {
		cmds = append(cmds, waitDone(m.done))
	}
	return tea.Batch(cmds...)
}

func tick() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func waitPose(src Source) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-src.Poses()
		if !ok {
			return nil
		}
		return poseMsg(s)
	}
}

func waitFault(src Source) tea.Cmd {
	return func() tea.Msg {
		f, ok := <-src.Faults()
		if !ok {
			return nil
		}
		return faultMsg(f)
	}
}

func waitDone(done <-chan error) tea.Cmd {
	return func() tea.Msg { return DoneMsg{Err: <-done} }
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.frozen = !m.frozen
		case "c":
			m.trail = m.trail[:0]
			m.heading = m.heading[:0]
		case "t":
			m.theme = NextTheme(m.theme)
			m.styles = newStyles(m.theme)
		}
	case poseMsg:
		m.addPose(telemetry.Sample(msg))
		return m, waitPose(m.source)
	case faultMsg:
		m.faultCount++
		m.faults = append(m.faults, telemetry.Fault(msg))
		if len(m.faults) > recentFaults {
			m.faults = m.faults[len(m.faults)-recentFaults:]
		}
		return m, waitFault(m.source)
	case DoneMsg:
		m.finished = true
		m.err = msg.Err
	case TickMsg:
		if !m.frozen {
			m.draw()
		}
		return m, tick()
	}
	return m, nil
}

func (m *Model) addPose(s telemetry.Sample) {
	if m.poses == 0 {
		m.started = s.Time
	}
	m.poses++
	m.last = s
	if m.frozen {
		return
	}

	m.trail = append(m.trail, geom.Vec(s.X, s.Y))
	if len(m.trail) > trailCapacity {
		m.trail = m.trail[len(m.trail)-trailCapacity:]
	}
	m.heading = append(m.heading, s.HeadingDeg)
	if len(m.heading) > chartCapacity {
		m.heading = m.heading[len(m.heading)-chartCapacity:]
	}
}

func (m *Model) draw() {
	m.canvas.Clear()
	if len(m.trail) == 0 {
		return
	}
	m.canvas.Fit(m.trail, robotSize)
	for i := 1; i < len(m.trail); i++ {
		m.canvas.Line(m.trail[i-1], m.trail[i])
	}
	pos := m.trail[len(m.trail)-1]
	m.canvas.Robot(pos, geom.DegToRad(m.last.HeadingDeg), robotSize)
}

func (m Model) View() string {
	st := m.styles
	canvasView := st.canvas.Render(m.canvas.String())

	var s strings.Builder
	s.WriteString(st.header.Render(strings.ToUpper(m.title)) + "\n")
	s.WriteString(m.status() + "\n\n")

	if len(m.heading) > 1 {
		chart := asciigraph.Plot(m.heading,
			asciigraph.Height(5),
			asciigraph.Width(30),
			asciigraph.Precision(0),
			asciigraph.Caption("heading (deg)"),
		)
		s.WriteString(st.graph.Render(chart) + "\n\n")
	}

	row := func(label, value string) {
		s.WriteString(st.label.Render(label) + st.value.Render(value) + "\n")
	}
	row("X", fmt.Sprintf("%.3f ft", m.last.X))
	row("Y", fmt.Sprintf("%.3f ft", m.last.Y))
	row("Heading", fmt.Sprintf("%.2f°", m.last.HeadingDeg))
	if m.poses > 0 {
		row("Elapsed", m.last.Time.Sub(m.started).Truncate(10*time.Millisecond).String())
	}
	row("Samples", fmt.Sprintf("%d (%d dropped)", m.poses, m.source.Dropped()))
	row("Faults", fmt.Sprintf("%d", m.faultCount))

	for _, f := range m.faults {
		s.WriteString(st.warn.Render(fmt.Sprintf("  %s: %v (x%d)", f.Source, f.Err, f.Consecutive)) + "\n")
	}

	s.WriteString(st.help.Render("space freeze · c clear · t theme · q quit"))

	return lipgloss.JoinHorizontal(lipgloss.Top, canvasView, st.panel.Render(s.String()))
}

func (m Model) status() string {
	switch {
	case m.finished && m.err != nil:
		return m.styles.err.Render("FAILED: " + m.err.Error())
	case m.finished:
		return m.styles.value.Render("DONE")
	case m.frozen:
		return m.styles.warn.Render("FROZEN")
	}
	return m.styles.value.Render("RUNNING")
}
