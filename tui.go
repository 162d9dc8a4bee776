package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUI message types
type ListeningMsg struct{ On bool }
type RecordingStartMsg struct{ Codec string }
type RecordingStopMsg struct{}
type AudioLevelMsg struct{ DB float64 }
type SegmentMsg struct {
	Codec   string
	Seconds float64
	SizeKB  float64
	Count   int
}
type DeviceLineMsg struct{ Text string }
type ThresholdMsg struct{ DB float64 }
type tickMsg time.Time

type tuiState int

const (
	tuiStateStandby tuiState = iota
	tuiStateListening
	tuiStateRecording
)

const meterWidth = 50
const meterFloor = -90.0

type tuiModel struct {
	state          tuiState
	frame          int
	levelDB        float64
	peakDB         float64
	thresholdDB    float64
	codec          string
	deviceLine     string
	recordingStart time.Time
	segCount       int
	lastSegment    string
	width, height  int
}

var (
	tuiProgram *tea.Program
	tuiMu      sync.Mutex
)

var (
	styleRec       = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	styleListening = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleStandby   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	styleDim       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	styleHelp      = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	styleHelpBold  = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	styleMeterLow  = lipgloss.NewStyle().Foreground(lipgloss.Color("28"))
	styleMeterHot  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	styleMeterMark = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styleSegment   = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
)

func NewTUIProgram(thresholdDB float64) *tea.Program {
	m := tuiModel{
		thresholdDB: thresholdDB,
		levelDB:     meterFloor,
		peakDB:      meterFloor,
	}
	return tea.NewProgram(m, tea.WithAltScreen())
}

func tuiTick() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}

	case tickMsg:
		m.frame++
		return m, tuiTick()

	case ListeningMsg:
		if msg.On {
			m.state = tuiStateListening
		} else {
			m.state = tuiStateStandby
			m.levelDB = meterFloor
		}

	case RecordingStartMsg:
		m.state = tuiStateRecording
		m.codec = msg.Codec
		m.recordingStart = time.Now()
		m.peakDB = meterFloor

	case RecordingStopMsg:
		if m.state == tuiStateRecording {
			m.state = tuiStateListening
		}

	case AudioLevelMsg:
		m.levelDB = msg.DB
		if msg.DB > m.peakDB {
			m.peakDB = msg.DB
		}

	case SegmentMsg:
		m.segCount = msg.Count
		m.lastSegment = fmt.Sprintf("#%d  %s  %.1fs  %.0fKB", msg.Count, msg.Codec, msg.Seconds, msg.SizeKB)

	case DeviceLineMsg:
		m.deviceLine = msg.Text

	case ThresholdMsg:
		m.thresholdDB = msg.DB
	}
	return m, nil
}

// meterCell maps a dB value onto the meter width.
func meterCell(db float64) int {
	if db < meterFloor {
		db = meterFloor
	}
	if db > 0 {
		db = 0
	}
	cell := int((db - meterFloor) / -meterFloor * meterWidth)
	if cell >= meterWidth {
		cell = meterWidth - 1
	}
	return cell
}

func renderMeter(levelDB, thresholdDB float64) string {
	level := meterCell(levelDB)
	mark := meterCell(thresholdDB)

	var b strings.Builder
	b.WriteString("[")
	for i := 0; i < meterWidth; i++ {
		switch {
		case i == mark:
			b.WriteString(styleMeterMark.Render("|"))
		case i <= level && i < mark:
			b.WriteString(styleMeterLow.Render("■"))
		case i <= level:
			b.WriteString(styleMeterHot.Render("■"))
		default:
			b.WriteString(" ")
		}
	}
	b.WriteString("]")
	return b.String()
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var lines []string

	switch m.state {
	case tuiStateRecording:
		elapsed := time.Since(m.recordingStart).Seconds()
		label := fmt.Sprintf("● REC %.1fs", elapsed)
		if m.codec != "" {
			label += " (" + m.codec + ")"
		}
		lines = append(lines, styleRec.Render(label))
	case tuiStateListening:
		// Blinking dot so a silent room still looks alive.
		dot := "●"
		if m.frame%16 < 8 {
			dot = "○"
		}
		lines = append(lines, styleListening.Render(dot+" LISTENING"))
	default:
		lines = append(lines, styleStandby.Render("○ STANDBY"))
	}
	lines = append(lines, "")

	lines = append(lines, renderMeter(m.levelDB, m.thresholdDB))
	lines = append(lines, styleDim.Render(fmt.Sprintf("%6.1f dB   threshold %.1f dB   peak %.1f dB",
		m.levelDB, m.thresholdDB, m.peakDB)))
	lines = append(lines, "")

	if m.deviceLine != "" {
		lines = append(lines, styleDim.Render(m.deviceLine))
	}
	if m.lastSegment != "" {
		lines = append(lines, styleSegment.Render("last segment  "+m.lastSegment))
	} else {
		lines = append(lines, styleDim.Render("no segments yet"))
	}
	lines = append(lines, "")
	lines = append(lines, styleHelpBold.Render("q")+styleHelp.Render(" quit"))
	lines = append(lines, styleHelp.Render("parla "+version))

	return lipgloss.NewStyle().Padding(1, 2).Render(strings.Join(lines, "\n"))
}

func tuiSend(msg tea.Msg) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}
