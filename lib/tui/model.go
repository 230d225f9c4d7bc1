// Package tui renders the progress of a traced onion in the terminal.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-i2p/logger"
	"github.com/go-i2p/nostr-onion/lib/route"
	"github.com/go-i2p/nostr-onion/lib/tracer"
	"github.com/samber/oops"
)

var log = logger.GetGoI2PLogger()

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	reachedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	linkStyle    = lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color("39"))
)

// Source is what the model watches. *tracer.Trace satisfies it.
type Source interface {
	Progress() <-chan tracer.Progress
	Wait(ctx context.Context) (*tracer.Confirmation, error)
	Stop()
}

type progressMsg tracer.Progress

type doneMsg struct {
	confirmation *tracer.Confirmation
	err          error
}

type tickMsg time.Time

type hopRow struct {
	name    string
	relay   string
	paid    uint64
	reached bool
}

// Model is the bubbletea model for one trace.
type Model struct {
	source  Source
	hops    []hopRow
	log     []string
	started time.Time
	now     time.Time

	confirmation *tracer.Confirmation
	err          error
	done         bool
	abandoned    bool
}

// NewModel builds a model for r. names maps pubkeys to display names.
func NewModel(source Source, r *route.Route, names func(string) string) Model {
	rows := make([]hopRow, len(r.Hops))
	for i, h := range r.Hops {
		rows[i] = hopRow{name: names(h.Pubkey), relay: h.Relay, paid: h.Paid}
	}
	now := time.Now()
	return Model{source: source, hops: rows, started: now, now: now}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitForProgress(), tick())
}

func (m Model) waitForProgress() tea.Cmd {
	return func() tea.Msg {
		p, ok := <-m.source.Progress()
		if !ok {
			c, err := m.source.Wait(context.Background())
			return doneMsg{confirmation: c, err: err}
		}
		return progressMsg(p)
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.abandoned = true
			m.source.Stop()
			return m, tea.Quit
		}
	case progressMsg:
		p := tracer.Progress(msg)
		if !p.Delivered && p.Hop >= 0 && p.Hop < len(m.hops) {
			m.hops[p.Hop].reached = true
		}
		m.log = append(m.log, p.Message())
		return m, m.waitForProgress()
	case doneMsg:
		m.done = true
		m.confirmation = msg.confirmation
		m.err = msg.err
		return m, tea.Quit
	case tickMsg:
		m.now = time.Time(msg)
		if m.done {
			return m, nil
		}
		return m, tick()
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Tracing onion"))
	fmt.Fprintf(&b, "  %s\n\n", pendingStyle.Render(m.now.Sub(m.started).Truncate(time.Second).String()))
	for i, h := range m.hops {
		mark, style := "○", pendingStyle
		if h.reached {
			mark, style = "●", reachedStyle
		}
		line := fmt.Sprintf("%s %d. %s (%d sat)", mark, i+1, h.name, h.paid)
		if h.relay != "" {
			line += " via " + h.relay
		}
		b.WriteString(style.Render(line) + "\n")
	}
	b.WriteString("\n")
	for _, l := range m.log {
		b.WriteString(l + "\n")
	}
	switch {
	case m.confirmation != nil:
		b.WriteString(reachedStyle.Render("Delivered") + "\n")
		if m.confirmation.URL != "" {
			b.WriteString(linkStyle.Render(m.confirmation.URL) + "\n")
		}
	case m.err != nil:
		b.WriteString(errorStyle.Render(m.err.Error()) + "\n")
	case m.abandoned:
		b.WriteString(pendingStyle.Render("Stopped watching. The onion may still arrive.") + "\n")
	default:
		b.WriteString(pendingStyle.Render("Waiting for hops... (q to stop)") + "\n")
	}
	return b.String()
}

// Result returns the outcome once the program has exited.
func (m Model) Result() (*tracer.Confirmation, error) {
	if m.abandoned {
		return nil, tracer.ErrTracingAbandoned
	}
	return m.confirmation, m.err
}

// Run shows the progress view until delivery, interruption or ctx ends.
func Run(ctx context.Context, source Source, r *route.Route, names func(string) string, opts ...tea.ProgramOption) (*tracer.Confirmation, error) {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	final, err := tea.NewProgram(NewModel(source, r, names), opts...).Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) || ctx.Err() != nil {
			source.Stop()
			return nil, tracer.ErrTracingAbandoned
		}
		log.WithError(err).Error("progress view failed")
		return nil, oops.Wrapf(err, "running progress view")
	}
	return final.(Model).Result()
}
