package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"phishcheck/verify"
	"phishcheck/workflow"
)

// TUI message types
type stateMsg struct{ State workflow.State }
type noticeMsg struct{ Text string }
type errMsg struct{ Err error }
type tickMsg time.Time

type tuiInfo struct {
	Provider string
	Language string
	Device   string
	Endpoint string
}

type tuiModel struct {
	ctx           context.Context
	ctl           *workflow.Controller
	info          tuiInfo
	state         workflow.State
	frame         int
	notice        string
	errText       string
	width, height int
}

const unsupportedNotice = "Speech recognition is not available on this system.\n" +
	"Set DEEPGRAM_API_KEY and check that a microphone is connected, then restart."

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	helpKeyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	recStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	textStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	scoreStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Bold(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("160"))
	noticeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("238")).Padding(0, 1)
	spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
)

// stateBridge hands controller states to the TUI without ever blocking the
// controller. Only the newest pending state is kept.
type stateBridge struct {
	ch chan workflow.State
}

func newStateBridge() *stateBridge {
	return &stateBridge{ch: make(chan workflow.State, 1)}
}

func (b *stateBridge) publish(s workflow.State) {
	for {
		select {
		case b.ch <- s:
			return
		default:
		}
		select {
		case <-b.ch:
		default:
		}
	}
}

func NewTUIProgram(ctx context.Context, ctl *workflow.Controller, info tuiInfo) *tea.Program {
	m := tuiModel{ctx: ctx, ctl: ctl, info: info, state: ctl.State()}
	p := tea.NewProgram(m, tea.WithAltScreen())

	bridge := newStateBridge()
	ctl.OnChange(bridge.publish)
	go func() {
		for {
			select {
			case s := <-bridge.ch:
				p.Send(stateMsg{State: s})
			case <-ctx.Done():
				return
			}
		}
	}()
	return p
}

func tuiTick() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

// controllerCmd runs a controller call off the event loop.
func controllerCmd(fn func() error) tea.Cmd {
	return func() tea.Msg {
		if err := fn(); err != nil {
			return errMsg{Err: err}
		}
		return nil
	}
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.frame++
		return m, tuiTick()

	case stateMsg:
		m.state = msg.State

	case noticeMsg:
		m.notice = msg.Text
		m.errText = ""

	case errMsg:
		m.errText = msg.Err.Error()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit
	}
	if m.state.Unsupported {
		return m, nil
	}

	ctl, ctx := m.ctl, m.ctx
	switch msg.Type {
	case tea.KeyCtrlR:
		m.notice, m.errText = "", ""
		return m, controllerCmd(func() error { return ctl.Toggle(ctx) })

	case tea.KeyEnter:
		if m.state.SubmitDisabled() {
			return m, nil
		}
		m.notice, m.errText = "", ""
		return m, controllerCmd(func() error {
			_, err := ctl.Verify(ctx)
			return err
		})

	case tea.KeyCtrlL:
		m.notice, m.errText = "", ""
		return m, controllerCmd(ctl.Clear)

	case tea.KeyCtrlY:
		if !m.state.EscalationVisible() {
			return m, nil
		}
		return m, func() tea.Msg {
			if err := ctl.Escalate(); err != nil {
				return errMsg{Err: err}
			}
			return noticeMsg{Text: "Message copied to the clipboard. Paste it into your report."}
		}

	case tea.KeyBackspace:
		ctl.Backspace()
		m.state = ctl.State()

	case tea.KeySpace:
		ctl.Append(" ")
		m.state = ctl.State()

	case tea.KeyRunes:
		text := string(msg.Runes)
		if msg.Paste {
			text = strings.ReplaceAll(text, "\n", " ")
		}
		ctl.Append(text)
		m.state = ctl.State()
	}
	return m, nil
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	if m.state.Unsupported {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
			warnStyle.Render(unsupportedNotice))
	}

	var lines []string
	lines = append(lines, titleStyle.Render("Phishing check by voice or text"), "")
	lines = append(lines, m.statusLine())
	lines = append(lines, dimStyle.Render(m.modeLine()), "")

	boxWidth := m.width - 4
	if boxWidth < 20 {
		boxWidth = 20
	}
	lines = append(lines, boxStyle.Width(boxWidth).Render(m.transcriptView(boxWidth-4)), "")
	lines = append(lines, m.resultView(boxWidth)...)

	if m.notice != "" {
		lines = append(lines, "", noticeStyle.Render(m.notice))
	}
	if m.errText != "" {
		lines = append(lines, "", errorStyle.Render(m.errText))
	}

	lines = append(lines, "", m.helpLine(), helpStyle.Render("phishcheck "+version))
	return strings.Join(lines, "\n")
}

func (m tuiModel) statusLine() string {
	switch m.state.Phase() {
	case workflow.PhaseSubmitting:
		spin := spinnerFrames[m.frame%len(spinnerFrames)]
		status := scoreStyle.Render(spin + " VERIFYING")
		if m.state.Listening {
			status += "  " + recStyle.Render("● LISTENING")
		}
		return status
	case workflow.PhaseListening:
		return recStyle.Render("● LISTENING")
	default:
		return dimStyle.Render("○ STANDBY")
	}
}

func (m tuiModel) modeLine() string {
	parts := []string{m.info.Provider}
	if m.info.Language != "" {
		parts = append(parts, m.info.Language)
	}
	if m.info.Device != "" {
		parts = append(parts, "mic: "+m.info.Device)
	}
	return "[" + strings.Join(parts, " | ") + "]  " + m.info.Endpoint
}

func (m tuiModel) transcriptView(width int) string {
	if m.state.Editable == "" {
		return dimStyle.Render("Speak (ctrl+r) or type the message you received…")
	}
	var b strings.Builder
	wrapped := wrapText(m.state.Editable, width)
	for i, line := range wrapped {
		b.WriteString(textStyle.Render(line))
		if i < len(wrapped)-1 {
			b.WriteString("\n")
		}
	}
	b.WriteString(dimStyle.Render("▏"))
	return b.String()
}

func (m tuiModel) resultView(width int) []string {
	out := m.state.Outcome
	switch out.Kind {
	case workflow.OutcomeScored:
		lines := []string{
			scoreStyle.Render(fmt.Sprintf("Score: %.2f", out.Result.Score)),
		}
		lines = append(lines, wrapText("Reason: "+out.Result.Reason, width)...)
		if m.state.EscalationVisible() {
			lines = append(lines, "", warnStyle.Render("⚠ This message looks like phishing. Press ctrl+y to copy it for reporting."))
		}
		return lines
	case workflow.OutcomeFailed:
		return []string{errorStyle.Render("✗ Verification failed: " + describeFailure(out.Err))}
	}
	return nil
}

func describeFailure(err error) string {
	var ve *verify.Error
	if !errors.As(err, &ve) {
		return err.Error()
	}
	switch ve.Kind {
	case verify.KindStatus:
		return fmt.Sprintf("the service answered with status %d", ve.StatusCode)
	case verify.KindDecode:
		return "the service sent an unreadable answer"
	default:
		if errors.Is(err, context.DeadlineExceeded) {
			return "the service did not answer in time"
		}
		return "could not reach the service"
	}
}

func (m tuiModel) helpLine() string {
	key := func(k, label string) string {
		return helpKeyStyle.Render(k) + helpStyle.Render(" "+label)
	}
	listenLabel := "listen"
	if m.state.Listening {
		listenLabel = "stop"
	}
	items := []string{key("ctrl+r", listenLabel)}
	if !m.state.SubmitDisabled() {
		items = append(items, key("enter", "verify"))
	}
	items = append(items, key("ctrl+l", "clear"))
	if m.state.EscalationVisible() {
		items = append(items, key("ctrl+y", "report"))
	}
	items = append(items, key("ctrl+c", "quit"))
	return strings.Join(items, helpStyle.Render("  ·  "))
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	runes := []rune(text)
	for len(runes) > width {
		// Find last space within width
		splitAt := width
		for i := width; i > 0; i-- {
			if runes[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, string(runes[:splitAt]))
		runes = []rune(strings.TrimLeft(string(runes[splitAt:]), " "))
	}
	if len(runes) > 0 {
		lines = append(lines, string(runes))
	}
	return lines
}
