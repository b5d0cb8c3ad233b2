// Package ui is the terminal reader: a viewport over the document with
// transport keys, per-segment highlighting while narrating, and word-level
// highlighting when the on-device engine is speaking.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/wordwrap"

	"github.com/readwell/narrate/document"
	"github.com/readwell/narrate/narrate"
)

// Transport is the slice of the playback controller the reader drives.
type Transport interface {
	Play(doc *document.Document) error
	Pause() error
	Stop() error
	Next() error
	Previous() error
	SetVoice(voice string)
	SetRate(rate float64)
	Events() <-chan tea.Msg
	Snapshot() narrate.SnapshotMsg
	QuotaRemaining() int
}

// rateStep is how much one keypress changes the playback rate.
const rateStep = 0.25

// Model is the bubbletea model for the reader.
type Model struct {
	doc      *document.Document
	segments []document.Segment
	ctrl     Transport
	keys     KeyMap

	viewport viewport.Model
	ready    bool
	width    int

	snap      narrate.SnapshotMsg
	remaining narrate.TimeRemainingMsg
	// wordIndex is the rune offset of the word being spoken in the current
	// segment, or -1 outside on-device playback.
	wordIndex int

	// remoteVoice remembers the network voice while toggled to the device
	// engine.
	remoteVoice string

	err error
}

// NewModel creates a reader over doc driving ctrl.
func NewModel(doc *document.Document, ctrl Transport) Model {
	snap := ctrl.Snapshot()
	remote := snap.Voice
	if remote == narrate.VoiceLocal {
		remote = narrate.DefaultVoice
	}
	return Model{
		doc:         doc,
		segments:    document.Flatten(doc),
		ctrl:        ctrl,
		keys:        DefaultKeyMap(),
		snap:        snap,
		wordIndex:   -1,
		remoteVoice: remote,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return waitEvent(m.ctrl.Events())
}

// waitEvent relays the next controller event into the program.
func waitEvent(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		contentHeight := msg.Height - 2 // status bar + help line
		if !m.ready {
			m.viewport = viewport.New(msg.Width, contentHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = contentHeight
		}
		m.viewport.SetContent(m.renderDocument())
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case narrate.SnapshotMsg:
		prev := m.snap.CurrentIndex
		m.snap = msg
		if msg.CurrentIndex != prev {
			m.wordIndex = -1
		}
		if m.ready {
			m.viewport.SetContent(m.renderDocument())
			m.scrollToSegment(msg.CurrentIndex)
		}
		return m, waitEvent(m.ctrl.Events())

	case narrate.SegmentStartedMsg:
		m.wordIndex = -1
		if m.ready {
			m.viewport.SetContent(m.renderDocument())
			m.scrollToSegment(msg.Index)
		}
		return m, waitEvent(m.ctrl.Events())

	case narrate.WordBoundaryMsg:
		if msg.SegmentIndex == m.snap.CurrentIndex {
			m.wordIndex = msg.CharIndex
			if m.ready {
				m.viewport.SetContent(m.renderDocument())
			}
		}
		return m, waitEvent(m.ctrl.Events())

	case narrate.TimeRemainingMsg:
		m.remaining = msg
		return m, waitEvent(m.ctrl.Events())

	case narrate.PlaybackErrorMsg:
		if !msg.Skipped {
			m.err = msg.Err
		}
		return m, waitEvent(m.ctrl.Events())
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.ctrl.Stop()
		return m, tea.Quit

	case key.Matches(msg, m.keys.PlayPause):
		if m.snap.IsPlaying {
			m.ctrl.Pause()
		} else {
			m.err = nil
			m.ctrl.Play(m.doc)
		}

	case key.Matches(msg, m.keys.Stop):
		m.ctrl.Stop()
		m.wordIndex = -1

	case key.Matches(msg, m.keys.Next):
		m.ctrl.Next()

	case key.Matches(msg, m.keys.Previous):
		m.ctrl.Previous()

	case key.Matches(msg, m.keys.Faster):
		m.ctrl.SetRate(m.snap.Rate + rateStep)

	case key.Matches(msg, m.keys.Slower):
		m.ctrl.SetRate(m.snap.Rate - rateStep)

	case key.Matches(msg, m.keys.Voice):
		if m.snap.Voice == narrate.VoiceLocal {
			m.ctrl.SetVoice(m.remoteVoice)
		} else {
			m.remoteVoice = m.snap.Voice
			m.ctrl.SetVoice(narrate.VoiceLocal)
		}

	case key.Matches(msg, m.keys.Up):
		m.viewport.LineUp(1)

	case key.Matches(msg, m.keys.Down):
		m.viewport.LineDown(1)
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "loading..."
	}
	return m.viewport.View() + "\n" + m.statusBar() + "\n" + m.helpLine()
}

// renderDocument lays out every segment, highlighting the one being
// narrated and, within it, the word being spoken.
func (m Model) renderDocument() string {
	width := m.width
	if width <= 0 {
		width = 80
	}

	var b strings.Builder
	narrating := m.snap.IsPlaying || m.snap.IsPaused

	for _, seg := range m.segments {
		line := seg.Text
		style := styleFor(seg.Kind)

		switch {
		case narrating && seg.Index == m.snap.CurrentIndex && m.wordIndex >= 0:
			line = m.highlightWord(seg.Text)
		case narrating && seg.Index == m.snap.CurrentIndex:
			line = activeSegmentStyle.Render(wordwrap.String(seg.Text, width-2))
		default:
			line = style.Render(wordwrap.String(line, width-2))
		}

		b.WriteString(line)
		b.WriteString("\n\n")
	}
	return b.String()
}

// highlightWord renders the current segment with the active word inverted.
func (m Model) highlightWord(text string) string {
	runes := []rune(text)
	start := m.wordIndex
	if start < 0 || start >= len(runes) {
		return activeSegmentStyle.Render(text)
	}
	end := start
	for end < len(runes) && runes[end] != ' ' {
		end++
	}

	var b strings.Builder
	b.WriteString(activeSegmentStyle.Render(string(runes[:start])))
	b.WriteString(activeWordStyle.Render(string(runes[start:end])))
	b.WriteString(activeSegmentStyle.Render(string(runes[end:])))
	return b.String()
}

func styleFor(kind document.Kind) lipgloss.Style {
	switch kind {
	case document.KindTitle:
		return titleStyle
	case document.KindHeading:
		return headingStyle
	default:
		return segmentStyle
	}
}

// scrollToSegment brings the narrated segment into view. Layout puts each
// segment on its own paragraph, so the line estimate is segment-ordinal
// based.
func (m *Model) scrollToSegment(index int) {
	if index < 0 || len(m.segments) == 0 {
		return
	}
	// Rough but monotonic: scroll proportionally through the content.
	total := m.viewport.TotalLineCount()
	target := total * index / len(m.segments)
	m.viewport.SetYOffset(target - m.viewport.Height/3)
}

// statusBar summarizes playback state, position, pace, and budget.
func (m Model) statusBar() string {
	state := "stopped"
	switch {
	case m.snap.IsPlaying:
		state = "playing"
	case m.snap.IsPaused:
		state = "paused"
	}

	var parts []string
	parts = append(parts, statusKeyStyle.Render(state))

	if m.snap.CurrentIndex >= 0 {
		parts = append(parts, fmt.Sprintf("segment %d/%d", m.snap.CurrentIndex+1, m.snap.TotalCount))
		if m.snap.EngineName != "" {
			parts = append(parts, m.snap.EngineName)
		}
		parts = append(parts, formatRemaining(m.remaining))
	}

	parts = append(parts, fmt.Sprintf("%.2fx", m.snap.Rate))
	parts = append(parts, fmt.Sprintf("voice %s", m.snap.Voice))
	parts = append(parts, fmt.Sprintf("%s chars left", humanize.Comma(int64(m.ctrl.QuotaRemaining()))))

	if m.err != nil {
		parts = append(parts, "error: "+m.err.Error())
	}

	return statusBarStyle.Width(m.width).Render(strings.Join(parts, " · "))
}

func (m Model) helpLine() string {
	return helpStyle.Render("space play/pause · n/p seek · s stop · +/- rate · v voice · q quit")
}

// formatRemaining renders the time estimate, flagging heuristic totals.
func formatRemaining(r narrate.TimeRemainingMsg) string {
	d := r.Remaining.Round(time.Second)
	if r.Approximate {
		return fmt.Sprintf("~%s left", d)
	}
	return fmt.Sprintf("%s left", d)
}
