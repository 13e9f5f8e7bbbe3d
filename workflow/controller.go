package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"phishcheck/clipboard"
	"phishcheck/log"
	"phishcheck/metrics"
	"phishcheck/speech"
	"phishcheck/verify"
)

var (
	ErrUnsupported           = errors.New("speech recognition is not supported on this system")
	ErrEmptyTranscript       = errors.New("nothing to verify: transcript is empty")
	ErrRequestInFlight       = errors.New("a verification is already in progress")
	ErrEscalationUnavailable = errors.New("escalation is only offered for a suspicious result")
	ErrClosed                = errors.New("controller closed")
)

const (
	DefaultVerifyTimeout      = 15 * time.Second
	DefaultMaxTranscriptRunes = 5000
)

type Options struct {
	Language           string
	VerifyTimeout      time.Duration
	MaxTranscriptRunes int
}

func DefaultOptions() Options {
	return Options{
		Language:           speech.DefaultLanguage,
		VerifyTimeout:      DefaultVerifyTimeout,
		MaxTranscriptRunes: DefaultMaxTranscriptRunes,
	}
}

// Controller owns the workflow state. Events are applied one at a time in
// arrival order; subscribers see every transition in that same order.
type Controller struct {
	rec      speech.Recognizer
	verifier verify.Verifier
	clip     clipboard.Writer
	opts     Options

	opMu     sync.Mutex // serialises Start/Stop/Clear/Close
	notifyMu sync.Mutex // held across apply+notify

	mu            sync.Mutex
	idle          *sync.Cond
	state         State
	listeners     []func(State)
	cancelReq     context.CancelFunc
	running       int
	verifications int
	closed        bool

	fwdDone chan struct{}
}

// New builds a controller. When rec is not supported the controller starts
// and stays in PhaseUnsupported.
func New(rec speech.Recognizer, verifier verify.Verifier, clip clipboard.Writer, opts Options) *Controller {
	def := DefaultOptions()
	if opts.Language == "" {
		opts.Language = def.Language
	}
	if opts.VerifyTimeout <= 0 {
		opts.VerifyTimeout = def.VerifyTimeout
	}
	if opts.MaxTranscriptRunes < 0 {
		opts.MaxTranscriptRunes = 0
	}

	c := &Controller{
		rec:      rec,
		verifier: verifier,
		clip:     clip,
		opts:     opts,
		state: State{
			Unsupported: !rec.Supported(),
			MaxRunes:    opts.MaxTranscriptRunes,
		},
		fwdDone: make(chan struct{}),
	}
	c.idle = sync.NewCond(&c.mu)

	if c.state.Unsupported {
		close(c.fwdDone)
		return c
	}
	go c.forward()
	return c
}

// forward turns recognizer output into SpeechUpdated events. An update
// that no longer matches the recognizer's transcript was queued before a
// reset or a newer segment and is skipped.
func (c *Controller) forward() {
	defer close(c.fwdDone)
	for text := range c.rec.Updates() {
		if text != c.rec.Transcript() {
			continue
		}
		c.apply(SpeechUpdated{Transcript: text})
	}
}

// OnChange registers fn to run after every transition. fn may call State
// but must not call methods that change it.
func (c *Controller) OnChange(fn func(State)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) apply(e Event) {
	c.update(func(s State) (State, error) { return s.Apply(e), nil })
}

// update runs fn against the current state under the lock and, when fn
// succeeds, stores the result and notifies listeners.
func (c *Controller) update(fn func(State) (State, error)) error {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	next, err := fn(c.state)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.state = next
	listeners := append([]func(State){}, c.listeners...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
	return nil
}

func (c *Controller) checkUsable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Unsupported {
		return ErrUnsupported
	}
	if c.closed {
		return ErrClosed
	}
	return nil
}

// Start asks for microphone access and begins continuous recognition. A
// refused permission is logged and capture is attempted anyway.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.checkUsable(); err != nil {
		return err
	}
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.State().Listening {
		return nil
	}

	if err := c.rec.RequestPermission(ctx); err != nil {
		log.PermissionDenied(err)
		metrics.RecordPermissionDenied()
	}

	if err := c.rec.Start(ctx, speech.Options{Continuous: true, Language: c.opts.Language}); err != nil {
		return fmt.Errorf("start listening: %w", err)
	}
	c.apply(ListeningStarted{Transcript: c.rec.Transcript()})
	metrics.RecordListening(true)
	return nil
}

// Stop ends recognition. The transcript flushed by the recognizer becomes
// the editable text.
func (c *Controller) Stop() error {
	if err := c.checkUsable(); err != nil {
		return err
	}
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.stopLocked()
}

func (c *Controller) stopLocked() error {
	if !c.State().Listening {
		return nil
	}
	err := c.rec.Stop()
	c.apply(ListeningStopped{Transcript: c.rec.Transcript()})
	metrics.RecordListening(false)
	if err != nil {
		log.Warnf("stop listening: %v", err)
		return fmt.Errorf("stop listening: %w", err)
	}
	return nil
}

// Toggle starts listening when idle and stops it otherwise.
func (c *Controller) Toggle(ctx context.Context) error {
	if c.State().Listening {
		return c.Stop()
	}
	return c.Start(ctx)
}

// Edit replaces the editable text. The next speech update overwrites it.
func (c *Controller) Edit(text string) error {
	if err := c.checkUsable(); err != nil {
		return err
	}
	c.apply(TextEdited{Text: text})
	return nil
}

// Append adds typed text to the end of the editable buffer.
func (c *Controller) Append(text string) error {
	if err := c.checkUsable(); err != nil {
		return err
	}
	c.apply(TextAppended{Text: text})
	return nil
}

// Backspace removes the last rune of the editable buffer.
func (c *Controller) Backspace() error {
	if err := c.checkUsable(); err != nil {
		return err
	}
	c.apply(RuneDeleted{})
	return nil
}

// Verify submits the editable text and returns the request id. The request
// runs in the background; its outcome arrives as a state change.
func (c *Controller) Verify(ctx context.Context) (string, error) {
	if err := c.checkUsable(); err != nil {
		return "", err
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.opts.VerifyTimeout)
	var id, text string
	err := c.update(func(s State) (State, error) {
		if len(s.Editable) == 0 {
			return s, ErrEmptyTranscript
		}
		if s.InFlight != "" {
			return s, ErrRequestInFlight
		}
		id = uuid.NewString()
		text = s.Editable
		c.cancelReq = cancel
		c.running++
		return s.Apply(VerifyRequested{ID: id}), nil
	})
	if err != nil {
		cancel()
		switch {
		case errors.Is(err, ErrEmptyTranscript):
			metrics.RecordRejected("empty")
		case errors.Is(err, ErrRequestInFlight):
			metrics.RecordRejected("in_flight")
		}
		return "", err
	}

	go c.runVerify(reqCtx, cancel, id, text)
	return id, nil
}

func (c *Controller) runVerify(ctx context.Context, cancel context.CancelFunc, id, text string) {
	defer func() {
		c.mu.Lock()
		c.running--
		if c.running == 0 {
			c.idle.Broadcast()
		}
		c.mu.Unlock()
	}()

	res, err := c.verifier.Verify(ctx, text)
	cancel()
	if err != nil && !errors.Is(err, verify.ErrVerificationFailed) {
		err = &verify.Error{Kind: verify.KindTransport, Err: err}
	}

	var event Event = VerifySucceeded{ID: id, Result: res}
	if err != nil {
		event = VerifyFailed{ID: id, Err: err}
	}
	stale := c.update(func(s State) (State, error) {
		if s.InFlight != id {
			return s, errStale
		}
		c.cancelReq = nil
		c.verifications++
		return s.Apply(event), nil
	})
	if stale != nil {
		log.Infof("discarded stale verification %s", id)
		return
	}

	if err != nil {
		log.VerificationFailed(id, err)
		return
	}
	metrics.RecordScore(res.Score)
	entry := log.Verification{
		RequestID: id,
		Score:     res.Score,
		Reason:    res.Reason,
		Text:      text,
		Escalate:  res.Score < EscalationThreshold,
	}
	if n := res.Network; n != nil {
		entry.TTFBMs = float64(n.TTFB.Microseconds()) / 1000
		entry.TotalMs = float64(n.Total.Microseconds()) / 1000
		entry.ConnReused = n.ConnReused
	}
	log.VerificationResult(entry)
}

var errStale = errors.New("stale verification")

// Wait blocks until no verification goroutine is running.
func (c *Controller) Wait() {
	c.mu.Lock()
	for c.running > 0 {
		c.idle.Wait()
	}
	c.mu.Unlock()
}

// Clear stops listening, empties both transcripts, forgets the last outcome
// and abandons any pending request. Calling it again is harmless.
func (c *Controller) Clear() error {
	if err := c.checkUsable(); err != nil {
		return err
	}
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.clearLocked()
	return nil
}

func (c *Controller) clearLocked() {
	if c.State().Listening {
		if err := c.rec.Stop(); err != nil {
			log.Warnf("stop listening: %v", err)
		}
		metrics.RecordListening(false)
	}
	c.rec.Reset()

	var cancel context.CancelFunc
	c.update(func(s State) (State, error) {
		cancel, c.cancelReq = c.cancelReq, nil
		return s.Apply(Cleared{}), nil
	})
	if cancel != nil {
		cancel()
	}
}

// Escalate copies the editable text to the clipboard for reporting. It is
// only available while the last result is suspicious; a clipboard failure
// is logged, not returned.
func (c *Controller) Escalate() error {
	if err := c.checkUsable(); err != nil {
		return err
	}
	s := c.State()
	if !s.EscalationVisible() {
		return ErrEscalationUnavailable
	}

	copied := true
	if err := c.clip.Copy(s.Editable); err != nil {
		copied = false
		log.Warnf("escalation clipboard copy: %v", err)
	}
	log.Escalation(s.Outcome.RequestID, copied)
	metrics.RecordEscalation(copied)
	return nil
}

// Close stops listening, abandons any pending request and releases the
// recognizer.
func (c *Controller) Close() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	unsupported := c.state.Unsupported
	cancel := c.cancelReq
	c.cancelReq = nil
	n := c.verifications
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if !unsupported {
		err = c.stopLocked()
	}
	if cerr := c.rec.Close(); cerr != nil && err == nil {
		err = cerr
	}
	<-c.fwdDone
	log.SessionEnd(n)
	return err
}
