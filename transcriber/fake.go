package transcriber

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// FakeTranscriber commits a fixed list of segments per session, then any
// segment passed to Commit.
type FakeTranscriber struct {
	segments []string
	err      error
	delay    time.Duration

	mu       sync.Mutex
	configs  []SessionConfig
	sessions []*fakeSession
}

func NewFake(segments []string, err error) *FakeTranscriber {
	return &FakeTranscriber{segments: segments, err: err, delay: 5 * time.Millisecond}
}

func (f *FakeTranscriber) Name() string { return "fake" }

func (f *FakeTranscriber) NewSession(_ context.Context, cfg SessionConfig) (Session, error) {
	s := &fakeSession{
		err:     f.err,
		updates: make(chan string, len(f.segments)+32),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	f.mu.Lock()
	f.configs = append(f.configs, cfg)
	f.sessions = append(f.sessions, s)
	f.mu.Unlock()

	go s.emit(f.segments, f.delay)
	return s, nil
}

// Commit appends segment to the newest session. It reports false when no
// session is open.
func (f *FakeTranscriber) Commit(segment string) bool {
	f.mu.Lock()
	var s *fakeSession
	if n := len(f.sessions); n > 0 {
		s = f.sessions[n-1]
	}
	f.mu.Unlock()
	return s != nil && s.commit(segment)
}

// Sessions returns the configs of every session opened so far.
func (f *FakeTranscriber) Sessions() []SessionConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SessionConfig(nil), f.configs...)
}

type fakeSession struct {
	err     error
	updates chan string
	stop    chan struct{}
	done    chan struct{}

	mu        sync.Mutex
	committed string
	closed    bool
	fed       int
}

func (s *fakeSession) emit(segments []string, delay time.Duration) {
	defer close(s.done)
	for _, seg := range segments {
		select {
		case <-s.stop:
			return
		case <-time.After(delay):
		}
		s.commit(seg)
	}
}

func (s *fakeSession) commit(seg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.committed = strings.TrimSpace(s.committed + " " + seg)
	s.updates <- s.committed
	return true
}

func (s *fakeSession) Feed(pcm []byte) {
	s.mu.Lock()
	s.fed += len(pcm)
	s.mu.Unlock()
}

func (s *fakeSession) Updates() <-chan string { return s.updates }

func (s *fakeSession) Close() (SessionResult, error) {
	close(s.stop)
	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	close(s.updates)
	if s.err != nil {
		return SessionResult{NoSpeech: true}, fmt.Errorf("fake transcriber error: %w", s.err)
	}
	return SessionResult{
		Text:     s.committed,
		NoSpeech: s.committed == "",
		Stream:   &StreamStats{SentKB: float64(s.fed) / 1024, CommitEvents: len(strings.Fields(s.committed))},
	}, nil
}
