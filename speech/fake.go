package speech

import (
	"context"
	"sync"
)

// Fake is a scripted recognizer. Say appends a segment while listening.
type Fake struct {
	supported bool

	sendMu sync.Mutex // orders Say publications; taken before mu

	mu         sync.Mutex
	permErr    error
	startErr   error
	listening  bool
	closed     bool
	transcript string
	starts     []Options
	stops      int
	resets     int
	updates    chan string
}

func NewFake() *Fake {
	return &Fake{supported: true, updates: make(chan string, 64)}
}

// NewUnsupportedFake reports Supported() == false.
func NewUnsupportedFake() *Fake {
	return &Fake{updates: make(chan string, 64)}
}

// DenyPermission makes RequestPermission fail with err. Start is unaffected.
func (f *Fake) DenyPermission(err error) {
	f.mu.Lock()
	f.permErr = err
	f.mu.Unlock()
}

// FailStart makes the next Start calls fail with err.
func (f *Fake) FailStart(err error) {
	f.mu.Lock()
	f.startErr = err
	f.mu.Unlock()
}

func (f *Fake) Supported() bool { return f.supported }

func (f *Fake) RequestPermission(context.Context) error {
	if !f.supported {
		return ErrUnsupported
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.permErr
}

func (f *Fake) Start(_ context.Context, opts Options) error {
	if !f.supported {
		return ErrUnsupported
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.starts = append(f.starts, opts)
	f.listening = true
	return nil
}

func (f *Fake) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listening {
		f.stops++
	}
	f.listening = false
	return nil
}

// Say appends segment and publishes the new transcript. It reports false
// and appends nothing when not listening.
func (f *Fake) Say(segment string) bool {
	f.sendMu.Lock()
	defer f.sendMu.Unlock()

	f.mu.Lock()
	if !f.listening || f.closed {
		f.mu.Unlock()
		return false
	}
	f.transcript = joinSegments(f.transcript, segment)
	text := f.transcript
	f.mu.Unlock()

	f.updates <- text
	return true
}

func (f *Fake) Reset() {
	f.mu.Lock()
	f.transcript = ""
	f.resets++
	f.mu.Unlock()
}

func (f *Fake) Transcript() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transcript
}

func (f *Fake) Listening() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listening
}

func (f *Fake) Updates() <-chan string { return f.updates }

func (f *Fake) Close() error {
	f.sendMu.Lock()
	defer f.sendMu.Unlock()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	f.listening = false
	close(f.updates)
	return nil
}

// Calls reports recorded Start options and Stop/Reset counts.
func (f *Fake) Calls() (starts []Options, stops, resets int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Options(nil), f.starts...), f.stops, f.resets
}
