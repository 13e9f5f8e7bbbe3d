package audio

import (
	"os"
	"sync"
	"time"
)

const (
	fakeFrameSize     = 1024
	fakeBytesPerFrame = 2 // 16-bit mono
)

// FakeContext replays a fixed PCM buffer instead of touching a microphone.
type FakeContext struct {
	pcm      []byte
	devices  []DeviceInfo
	devErr   error
	interval time.Duration

	mu       sync.Mutex
	captures []*FakeCapture
}

func NewFakeContext(pcm []byte) *FakeContext {
	return &FakeContext{
		pcm:      pcm,
		devices:  []DeviceInfo{{ID: "fake-0", Name: "fake"}},
		interval: time.Millisecond,
	}
}

// NewFakeContextFromWAV loads a 16 kHz mono PCM16 WAV file.
func NewFakeContextFromWAV(wavPath string) (*FakeContext, error) {
	data, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, err
	}
	if len(data) > WAVHeaderSize {
		data = data[WAVHeaderSize:]
	}
	return NewFakeContext(data), nil
}

// SetDevices overrides what Devices reports; err simulates a refused enumeration.
func (f *FakeContext) SetDevices(devices []DeviceInfo, err error) {
	f.mu.Lock()
	f.devices, f.devErr = devices, err
	f.mu.Unlock()
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.devErr != nil {
		return nil, f.devErr
	}
	return append([]DeviceInfo(nil), f.devices...), nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(device *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	name := "fake"
	if device != nil {
		name = device.Name
	}
	c := &FakeCapture{pcm: f.pcm, interval: f.interval, name: name}
	f.mu.Lock()
	f.captures = append(f.captures, c)
	f.mu.Unlock()
	return c, nil
}

// Captures returns every capture created so far, oldest first.
func (f *FakeContext) Captures() []*FakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeCapture(nil), f.captures...)
}

type FakeCapture struct {
	pcm      []byte
	interval time.Duration
	name     string

	mu      sync.Mutex
	cb      DataCallback
	stopCh  chan struct{}
	feedEnd chan struct{}
	starts  int
	stops   int
}

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string { return f.name }

func (f *FakeCapture) callback() DataCallback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

func (f *FakeCapture) Start() error {
	f.mu.Lock()
	if f.stopCh != nil {
		f.mu.Unlock()
		return nil
	}
	f.starts++
	stop := make(chan struct{})
	end := make(chan struct{})
	f.stopCh, f.feedEnd = stop, end
	f.mu.Unlock()

	go func() {
		defer close(end)
		chunkBytes := fakeFrameSize * fakeBytesPerFrame
		for pos := 0; pos < len(f.pcm); {
			select {
			case <-stop:
				return
			case <-time.After(f.interval):
			}
			next := min(pos+chunkBytes, len(f.pcm))
			if cb := f.callback(); cb != nil {
				chunk := make([]byte, next-pos)
				copy(chunk, f.pcm[pos:next])
				cb(chunk, uint32(len(chunk)/fakeBytesPerFrame))
			}
			pos = next
		}
		<-stop
	}()
	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	stop, end := f.stopCh, f.feedEnd
	f.stopCh, f.feedEnd = nil, nil
	if stop != nil {
		f.stops++
	}
	f.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-end
}

func (f *FakeCapture) Close() { f.Stop() }

// Counts reports how many times the capture was started and stopped.
func (f *FakeCapture) Counts() (starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}
