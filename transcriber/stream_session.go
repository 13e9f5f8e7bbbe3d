package transcriber

import (
	"strings"
	"sync"
	"time"

	"phishcheck/audio"
	"phishcheck/log"
)

const (
	streamChunkMs    = 200
	bytesPerSecond   = audio.SampleRate * audio.Channels * (audio.BitsPerSample / 8)
	streamChunkBytes = bytesPerSecond * streamChunkMs / 1000

	// After Finalize is acknowledged, late finals still trickle in briefly.
	finalizeGrace   = 200 * time.Millisecond
	finalizeTimeout = time.Second
	receiverTimeout = 2 * time.Second
)

// rawStreamSession is one live websocket to the speech backend.
type rawStreamSession interface {
	Send(pcm []byte) error
	CloseSend() error
	Recv() (streamUpdate, error)
	Close() error
}

type streamUpdate struct {
	Transcript   string
	IsFinal      bool
	SpeechFinal  bool
	FromFinalize bool
}

func (u streamUpdate) final() bool {
	return u.IsFinal || u.SpeechFinal || u.FromFinalize
}

// chunker slices fed PCM into fixed-size frames for the socket.
type chunker struct {
	mu  sync.Mutex
	buf []byte
}

func (c *chunker) push(pcm []byte) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf = append(c.buf, pcm...)
	var out [][]byte
	for len(c.buf) >= streamChunkBytes {
		out = append(out, append([]byte(nil), c.buf[:streamChunkBytes]...))
		c.buf = c.buf[streamChunkBytes:]
	}
	return out
}

// flush returns whatever is left, possibly a short frame.
func (c *chunker) flush() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	rest := c.buf
	c.buf = nil
	return rest
}

type streamCounters struct {
	connect      time.Duration
	sentChunks   int
	sentBytes    int
	recvMessages int
	recvFinal    int
	commits      int
}

// streamSession commits final results only; interim hypotheses are counted
// and dropped.
type streamSession struct {
	ws      rawStreamSession
	started time.Time
	frames  chunker
	audioCh chan []byte
	updates chan string

	ready     chan struct{} // closed once dialing finished
	sendDone  chan struct{}
	recvDone  chan struct{}
	finalized chan struct{}
	finalOnce sync.Once

	mu        sync.Mutex
	committed []string
	err       error
	closing   bool
	counters  streamCounters
}

func newStreamSession(dial func() (rawStreamSession, error)) *streamSession {
	s := &streamSession{
		started:   time.Now(),
		audioCh:   make(chan []byte, 128),
		updates:   make(chan string, 16),
		ready:     make(chan struct{}),
		sendDone:  make(chan struct{}),
		recvDone:  make(chan struct{}),
		finalized: make(chan struct{}),
	}
	go s.connect(dial)
	return s
}

func (s *streamSession) connect(dial func() (rawStreamSession, error)) {
	defer close(s.ready)
	t0 := time.Now()
	ws, err := dial()

	s.mu.Lock()
	s.counters.connect = time.Since(t0)
	s.ws = ws
	s.mu.Unlock()

	if err != nil {
		s.fail(err)
		close(s.sendDone)
		close(s.recvDone)
		return
	}
	go s.send()
	go s.receive()
}

func (s *streamSession) failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err != nil
}

func (s *streamSession) Feed(pcm []byte) {
	if s.failed() {
		return
	}
	for _, frame := range s.frames.push(pcm) {
		s.audioCh <- frame
	}
}

func (s *streamSession) Updates() <-chan string {
	return s.updates
}

func (s *streamSession) text() string {
	return strings.Join(s.committed, " ")
}

func (s *streamSession) Close() (SessionResult, error) {
	<-s.ready

	s.mu.Lock()
	ws, dialErr := s.ws, s.err
	s.mu.Unlock()
	if ws == nil {
		// nobody drains audioCh; release any Feed blocked on it
		go func() {
			for range s.audioCh {
			}
		}()
		s.frames.flush()
		close(s.audioCh)
		close(s.updates)
		return SessionResult{NoSpeech: true}, dialErr
	}

	if rest := s.frames.flush(); len(rest) > 0 {
		s.audioCh <- rest
	}
	close(s.audioCh)
	finalizeStart := time.Now()
	<-s.sendDone

	select {
	case <-s.finalized:
		time.Sleep(finalizeGrace)
	case <-time.After(finalizeTimeout):
	}

	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	ws.Close()

	select {
	case <-s.recvDone:
	case <-time.After(receiverTimeout):
		log.Warn("stream receiver drain timeout")
	}

	s.mu.Lock()
	text := s.text()
	c := s.counters
	err := s.err
	s.mu.Unlock()

	// receive publishes without blocking, so the last text may be missing
	if text != "" {
		select {
		case s.updates <- text:
		default:
		}
	}
	close(s.updates)

	return SessionResult{
		Text:     text,
		NoSpeech: text == "",
		Stream: &StreamStats{
			ConnectMs:    float64(c.connect.Milliseconds()),
			SentChunks:   c.sentChunks,
			SentKB:       float64(c.sentBytes) / 1024,
			RecvMessages: c.recvMessages,
			RecvFinal:    c.recvFinal,
			CommitEvents: c.commits,
			FinalizeMs:   float64(time.Since(finalizeStart).Milliseconds()),
			TotalMs:      float64(time.Since(s.started).Milliseconds()),
			AudioS:       float64(c.sentBytes) / bytesPerSecond,
		},
	}, err
}

func (s *streamSession) send() {
	defer close(s.sendDone)
	for frame := range s.audioCh {
		if err := s.ws.Send(frame); err != nil {
			s.fail(err)
			for range s.audioCh {
			}
			return
		}
		s.mu.Lock()
		s.counters.sentChunks++
		s.counters.sentBytes += len(frame)
		s.mu.Unlock()
	}
	if err := s.ws.CloseSend(); err != nil {
		s.fail(err)
	}
}

func (s *streamSession) receive() {
	defer close(s.recvDone)
	for {
		u, err := s.ws.Recv()
		if err != nil {
			s.mu.Lock()
			expected := s.closing
			s.mu.Unlock()
			if !expected {
				s.fail(err)
			}
			return
		}
		if u.FromFinalize {
			s.finalOnce.Do(func() { close(s.finalized) })
		}

		seg := strings.TrimSpace(u.Transcript)
		s.mu.Lock()
		s.counters.recvMessages++
		if !u.final() {
			s.mu.Unlock()
			continue
		}
		s.counters.recvFinal++
		if seg == "" {
			s.mu.Unlock()
			continue
		}
		s.committed = append(s.committed, seg)
		s.counters.commits++
		text := s.text()
		s.mu.Unlock()

		select {
		case s.updates <- text:
		default:
		}
	}
}

// fail records the first error and tears the socket down.
func (s *streamSession) fail(err error) {
	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return
	}
	s.err = err
	ws := s.ws
	s.mu.Unlock()
	if ws != nil {
		ws.Close()
	}
}
