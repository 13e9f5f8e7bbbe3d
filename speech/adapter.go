package speech

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"phishcheck/audio"
	"phishcheck/log"
	"phishcheck/transcriber"
)

// Adapter captures PCM from an audio.Context and streams it to a
// transcriber. Each Start opens a new transcription session; text committed
// by earlier sessions is kept as a prefix until Reset.
type Adapter struct {
	audioCtx audio.Context
	tr       transcriber.Transcriber
	device   *audio.DeviceInfo

	baseCtx context.Context
	cancel  context.CancelFunc
	updates chan string

	opMu sync.Mutex // serialises Start/Stop/Close

	mu          sync.Mutex
	listening   bool
	closed      bool
	continuous  bool
	prefix      string
	sessionText string
	sessionBase int // bytes of sessionText hidden by Reset
	capture     audio.CaptureDevice
	session     transcriber.Session
	pumpDone    chan struct{}
}

// NewAdapter returns an adapter; a nil audio context or transcriber makes it
// report Supported() == false.
func NewAdapter(audioCtx audio.Context, tr transcriber.Transcriber, device *audio.DeviceInfo) *Adapter {
	ctx, cancel := context.WithCancel(context.Background())
	return &Adapter{
		audioCtx: audioCtx,
		tr:       tr,
		device:   device,
		baseCtx:  ctx,
		cancel:   cancel,
		updates:  make(chan string, 16),
	}
}

func (a *Adapter) Supported() bool {
	return a.audioCtx != nil && a.tr != nil
}

func (a *Adapter) RequestPermission(ctx context.Context) error {
	if !a.Supported() {
		return ErrUnsupported
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := audio.Probe(a.audioCtx); err != nil {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return nil
}

func (a *Adapter) Start(ctx context.Context, opts Options) error {
	if !a.Supported() {
		return ErrUnsupported
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	a.opMu.Lock()
	defer a.opMu.Unlock()

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return fmt.Errorf("speech adapter closed")
	}
	if a.listening {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	capture, err := a.audioCtx.NewCapture(a.device, audio.DefaultCaptureConfig())
	if err != nil {
		return fmt.Errorf("capture init: %w", err)
	}

	lang := opts.Language
	if lang == "" {
		lang = DefaultLanguage
	}
	sess, err := a.tr.NewSession(a.baseCtx, transcriber.SessionConfig{
		Language:   lang,
		SampleRate: audio.SampleRate,
		Channels:   audio.Channels,
	})
	if err != nil {
		capture.Close()
		return fmt.Errorf("transcription session: %w", err)
	}

	capture.SetCallback(func(data []byte, _ uint32) {
		if len(data) == 0 {
			return
		}
		pcm := make([]byte, len(data))
		copy(pcm, data)
		sess.Feed(pcm)
	})
	if err := capture.Start(); err != nil {
		capture.ClearCallback()
		capture.Close()
		sess.Close()
		return fmt.Errorf("capture start: %w", err)
	}

	done := make(chan struct{})
	a.mu.Lock()
	a.listening = true
	a.continuous = opts.Continuous
	a.capture = capture
	a.session = sess
	a.sessionText = ""
	a.sessionBase = 0
	a.pumpDone = done
	a.mu.Unlock()

	go a.pump(sess, done)
	log.ListeningStart(capture.DeviceName())
	return nil
}

// pump forwards session text in order; it exits when the session closes.
func (a *Adapter) pump(sess transcriber.Session, done chan struct{}) {
	defer close(done)
	for text := range sess.Updates() {
		a.mu.Lock()
		if !a.continuous && a.sessionText != "" {
			a.mu.Unlock()
			continue
		}
		if len(text) < len(a.sessionText) {
			a.mu.Unlock()
			continue
		}
		a.sessionText = text
		live := a.liveLocked()
		a.mu.Unlock()

		select {
		case a.updates <- live:
		case <-a.baseCtx.Done():
			for range sess.Updates() {
			}
			return
		}
	}
}

func (a *Adapter) liveLocked() string {
	tail := ""
	if a.sessionBase < len(a.sessionText) {
		tail = a.sessionText[a.sessionBase:]
	}
	return joinSegments(a.prefix, tail)
}

func (a *Adapter) Stop() error {
	a.opMu.Lock()
	defer a.opMu.Unlock()
	return a.stopLocked()
}

func (a *Adapter) stopLocked() error {
	a.mu.Lock()
	if !a.listening {
		a.mu.Unlock()
		return nil
	}
	capture, sess, done := a.capture, a.session, a.pumpDone
	a.mu.Unlock()

	capture.Stop()
	capture.ClearCallback()
	capture.Close()

	result, err := sess.Close()
	<-done

	a.mu.Lock()
	if a.continuous && len(result.Text) > len(a.sessionText) && strings.HasPrefix(result.Text, a.sessionText) {
		a.sessionText = result.Text
	}
	a.prefix = a.liveLocked()
	a.sessionText = ""
	a.sessionBase = 0
	a.listening = false
	a.capture, a.session, a.pumpDone = nil, nil, nil
	chars := len([]rune(a.prefix))
	a.mu.Unlock()

	if s := result.Stream; s != nil {
		log.StreamMetrics(log.StreamMetricsData{
			ConnectMs:    s.ConnectMs,
			FinalizeMs:   s.FinalizeMs,
			TotalMs:      s.TotalMs,
			AudioS:       s.AudioS,
			SentChunks:   s.SentChunks,
			SentKB:       s.SentKB,
			RecvMessages: s.RecvMessages,
			RecvFinal:    s.RecvFinal,
			CommitEvents: s.CommitEvents,
		})
	}
	log.ListeningStop(chars)
	if err != nil {
		return fmt.Errorf("transcription: %w", err)
	}
	return nil
}

// Reset clears the live transcript. It does not publish an update.
func (a *Adapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.prefix = ""
	a.sessionBase = len(a.sessionText)
}

func (a *Adapter) Transcript() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.liveLocked()
}

func (a *Adapter) Listening() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.listening
}

func (a *Adapter) Updates() <-chan string { return a.updates }

func (a *Adapter) Close() error {
	a.opMu.Lock()
	defer a.opMu.Unlock()

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	err := a.stopLocked()

	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	a.cancel()
	close(a.updates)
	if a.audioCtx != nil {
		a.audioCtx.Close()
	}
	return err
}
