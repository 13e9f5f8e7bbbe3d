package clipboard

import (
	"sync"

	cb "github.com/atotto/clipboard"
)

// Writer puts text on a clipboard.
type Writer interface {
	Copy(text string) error
}

// System is the platform clipboard.
type System struct{}

func (System) Copy(text string) error {
	return Copy(text)
}

func Copy(text string) error {
	return cb.WriteAll(text)
}

// Supported reports whether a clipboard utility is available.
func Supported() bool {
	return !cb.Unsupported
}

// Fake records copied text; Fail makes subsequent copies return err.
type Fake struct {
	mu     sync.Mutex
	copies []string
	err    error
}

func (f *Fake) Copy(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.copies = append(f.copies, text)
	return nil
}

func (f *Fake) Fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *Fake) Copies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.copies...)
}
