package verify

import (
	"context"
	"sync"
)

type fakeReply struct {
	res Result
	err error
}

// Fake answers from a queue of replies. With no reply queued it returns a
// safe score of 1.
type Fake struct {
	mu      sync.Mutex
	replies []fakeReply
	calls   []string
	hold    chan struct{}
}

func NewFake() *Fake {
	return &Fake{}
}

// Push queues the reply for the next call.
func (f *Fake) Push(res Result, err error) {
	f.mu.Lock()
	f.replies = append(f.replies, fakeReply{res, err})
	f.mu.Unlock()
}

// Hold blocks calls made from now on until Release.
func (f *Fake) Hold() {
	f.mu.Lock()
	if f.hold == nil {
		f.hold = make(chan struct{})
	}
	f.mu.Unlock()
}

func (f *Fake) Release() {
	f.mu.Lock()
	if f.hold != nil {
		close(f.hold)
		f.hold = nil
	}
	f.mu.Unlock()
}

func (f *Fake) Verify(ctx context.Context, text string) (Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	reply := fakeReply{res: Result{Score: 1, Reason: "ok"}}
	if len(f.replies) > 0 {
		reply = f.replies[0]
		f.replies = f.replies[1:]
	}
	hold := f.hold
	f.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return Result{}, &Error{Kind: KindTransport, Err: ctx.Err()}
		}
	}
	return reply.res, reply.err
}

// Calls returns the text of every request, oldest first.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
