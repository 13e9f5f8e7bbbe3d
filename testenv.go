package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"phishcheck/clipboard"
	"phishcheck/log"
	"phishcheck/speech"
	"phishcheck/verify"
	"phishcheck/workflow"
)

// runTestMode drives the workflow from a line-oriented script. Speech comes
// from a fake recognizer, the clipboard is in memory and verification goes
// to the given verifier.
//
//	START | STOP | TOGGLE      listening control
//	SAY <text>                append a recognized segment
//	TYPE <text>               replace the editable text
//	VERIFY | WAIT             submit, wait for the outcome
//	CLEAR | ESCALATE | STATE
//	SLEEP <ms> | QUIT
func runTestMode(ctx context.Context, verifier verify.Verifier, opts workflow.Options, in io.Reader, out io.Writer) int {
	rec := speech.NewFake()
	clip := &clipboard.Fake{}
	ctl := workflow.New(rec, verifier, clip, opts)
	defer ctl.Close()

	failures := 0
	report := func(cmd string, err error) {
		if err != nil {
			failures++
			fmt.Fprintf(out, "%s: error: %v\n", cmd, err)
			log.Warnf("test mode %s: %v", cmd, err)
			return
		}
		fmt.Fprintf(out, "%s: ok\n", cmd)
	}

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")
		cmd = strings.ToUpper(cmd)

		switch cmd {
		case "START":
			report(cmd, ctl.Start(ctx))
		case "STOP":
			report(cmd, ctl.Stop())
		case "TOGGLE":
			report(cmd, ctl.Toggle(ctx))
		case "SAY":
			if !rec.Say(arg) {
				report(cmd, fmt.Errorf("not listening"))
				continue
			}
			settle(ctl, rec.Transcript())
			report(cmd, nil)
		case "TYPE":
			report(cmd, ctl.Edit(arg))
		case "VERIFY":
			id, err := ctl.Verify(ctx)
			if err == nil {
				log.Infof("test mode submitted %s", id)
			}
			report(cmd, err)
		case "WAIT":
			ctl.Wait()
			report(cmd, nil)
		case "CLEAR":
			report(cmd, ctl.Clear())
		case "ESCALATE":
			if err := ctl.Escalate(); err != nil {
				report(cmd, err)
				continue
			}
			copies := clip.Copies()
			if len(copies) == 0 {
				fmt.Fprintf(out, "%s: ok (nothing copied)\n", cmd)
				continue
			}
			fmt.Fprintf(out, "%s: copied %q\n", cmd, copies[len(copies)-1])
		case "STATE":
			fmt.Fprintln(out, describeState(ctl.State()))
		case "SLEEP":
			ms, err := strconv.Atoi(strings.TrimSpace(arg))
			if err != nil {
				report(cmd, fmt.Errorf("bad duration %q", arg))
				continue
			}
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
			case <-ctx.Done():
			}
		case "QUIT":
			return exitCode(failures)
		default:
			report(cmd, fmt.Errorf("unknown command"))
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(out, "read error: %v\n", err)
		return 1
	}
	return exitCode(failures)
}

// settle waits briefly for the controller to catch up with the recognizer.
func settle(ctl *workflow.Controller, transcript string) {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if ctl.State().Live == transcript {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func exitCode(failures int) int {
	if failures > 0 {
		return 2
	}
	return 0
}

func describeState(s workflow.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "phase=%s listening=%t text=%q", s.Phase(), s.Listening, s.Editable)
	switch s.Outcome.Kind {
	case workflow.OutcomeScored:
		fmt.Fprintf(&b, " score=%.2f reason=%q", s.Outcome.Result.Score, s.Outcome.Result.Reason)
	case workflow.OutcomeFailed:
		fmt.Fprintf(&b, " error=%q", s.Outcome.Err.Error())
	}
	fmt.Fprintf(&b, " submit=%t escalate=%t", !s.SubmitDisabled(), s.EscalationVisible())
	return b.String()
}
