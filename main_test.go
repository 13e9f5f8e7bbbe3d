package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"phishcheck/clipboard"
	"phishcheck/speech"
	"phishcheck/verify"
	"phishcheck/workflow"
)

func runScript(t *testing.T, v verify.Verifier, script string) (int, string) {
	t.Helper()
	var out bytes.Buffer
	code := runTestMode(context.Background(), v, workflow.DefaultOptions(), strings.NewReader(script), &out)
	return code, out.String()
}

func TestTestModeDictationAndEscalation(t *testing.T) {
	v := verify.NewFake()
	v.Push(verify.Result{Score: 0.3, Reason: "asks for credentials"}, nil)

	code, out := runScript(t, v, `
START
SAY hola
SAY envía tu clave
STOP
VERIFY
WAIT
STATE
ESCALATE
QUIT
`)
	if code != 0 {
		t.Fatalf("exit code = %d, output:\n%s", code, out)
	}
	for _, want := range []string{
		`phase=resulted listening=false text="hola envía tu clave"`,
		`score=0.30`,
		`escalate=true`,
		`ESCALATE: copied "hola envía tu clave"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if calls := v.Calls(); len(calls) != 1 || calls[0] != "hola envía tu clave" {
		t.Errorf("verifier calls = %q", calls)
	}
}

func TestTestModeReportsRejections(t *testing.T) {
	v := verify.NewFake()
	code, out := runScript(t, v, "VERIFY\nESCALATE\nSAY nobody listening\nBOGUS\n")
	if code != 2 {
		t.Errorf("exit code = %d, want 2", code)
	}
	for _, want := range []string{
		"VERIFY: error: nothing to verify",
		"ESCALATE: error: escalation is only offered",
		"SAY: error: not listening",
		"BOGUS: error: unknown command",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if len(v.Calls()) != 0 {
		t.Errorf("verifier called %d times", len(v.Calls()))
	}
}

func TestTestModeTypedTextAndClear(t *testing.T) {
	v := verify.NewFake()
	code, out := runScript(t, v, "TYPE revisa tu paquete\nVERIFY\nWAIT\nSTATE\nCLEAR\nSTATE\n")
	if code != 0 {
		t.Fatalf("exit code = %d, output:\n%s", code, out)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	last := lines[len(lines)-1]
	if !strings.HasPrefix(last, `phase=idle listening=false text=""`) || !strings.Contains(last, "submit=false") {
		t.Errorf("state after clear = %q", last)
	}
	if !strings.Contains(out, "score=1.00") || !strings.Contains(out, "escalate=false") {
		t.Errorf("missing safe result:\n%s", out)
	}
}

func TestWrapText(t *testing.T) {
	tests := []struct {
		text  string
		width int
		want  []string
	}{
		{"", 10, []string{""}},
		{"short", 10, []string{"short"}},
		{"hello world again", 11, []string{"hello world", "again"}},
		{"hello world again", 8, []string{"hello", "world", "again"}},
		{"abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
	}
	for _, tt := range tests {
		got := wrapText(tt.text, tt.width)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("wrapText(%q, %d) = %q, want %q", tt.text, tt.width, got, tt.want)
		}
	}
}

func TestStateBridgeKeepsNewest(t *testing.T) {
	b := newStateBridge()
	b.publish(workflow.State{Editable: "a"})
	b.publish(workflow.State{Editable: "b"})
	b.publish(workflow.State{Editable: "c"})

	if s := <-b.ch; s.Editable != "c" {
		t.Errorf("got %q, want newest", s.Editable)
	}
	select {
	case s := <-b.ch:
		t.Errorf("unexpected extra state %q", s.Editable)
	default:
	}
}

func TestTUIEditingKeys(t *testing.T) {
	ctl := workflow.New(speech.NewFake(), verify.NewFake(), &clipboard.Fake{}, workflow.DefaultOptions())
	defer ctl.Close()

	var m tea.Model = tuiModel{ctx: context.Background(), ctl: ctl}
	for _, k := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune("hi")},
		{Type: tea.KeySpace},
		{Type: tea.KeyRunes, Runes: []rune("yo")},
		{Type: tea.KeyBackspace},
	} {
		m, _ = m.Update(k)
	}
	if got := ctl.State().Editable; got != "hi y" {
		t.Errorf("editable = %q", got)
	}

	// enter is ignored while there is nothing to submit
	empty := tuiModel{ctx: context.Background(), ctl: ctl}
	if _, cmd := empty.Update(tea.KeyMsg{Type: tea.KeyEnter}); cmd != nil {
		t.Error("enter with empty text produced a command")
	}
}

func TestTUIKeystrokesSurviveLateState(t *testing.T) {
	ctl := workflow.New(speech.NewFake(), verify.NewFake(), &clipboard.Fake{}, workflow.DefaultOptions())
	defer ctl.Close()

	var seen []workflow.State
	ctl.OnChange(func(s workflow.State) { seen = append(seen, s) })

	var m tea.Model = tuiModel{ctx: context.Background(), ctl: ctl}
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("a")})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("b")})
	// the state published after "a" arrives only now
	m, _ = m.Update(stateMsg{State: seen[0]})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})

	if got := ctl.State().Editable; got != "abc" {
		t.Errorf("controller editable = %q, want %q", got, "abc")
	}
	if got := m.(tuiModel).state.Editable; got != "abc" {
		t.Errorf("shown editable = %q, want %q", got, "abc")
	}
}

func TestTUIUnsupportedView(t *testing.T) {
	m := tuiModel{state: workflow.State{Unsupported: true}, width: 100, height: 10}
	if !strings.Contains(m.View(), "not available") {
		t.Errorf("view = %q", m.View())
	}
	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlR}); cmd != nil {
		t.Error("toggle accepted while unsupported")
	}
}
