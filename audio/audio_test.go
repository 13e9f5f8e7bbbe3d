package audio

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestProbe(t *testing.T) {
	ctx := NewFakeContext(nil)
	if err := Probe(ctx); err != nil {
		t.Fatalf("Probe() = %v", err)
	}

	ctx.SetDevices(nil, nil)
	if err := Probe(ctx); !errors.Is(err, ErrNoDevices) {
		t.Errorf("no devices: err = %v", err)
	}

	denied := errors.New("access denied")
	ctx.SetDevices(nil, denied)
	if err := Probe(ctx); !errors.Is(err, denied) {
		t.Errorf("refused enumeration: err = %v", err)
	}
}

func TestFindDevice(t *testing.T) {
	ctx := NewFakeContext(nil)
	ctx.SetDevices([]DeviceInfo{{ID: "a", Name: "USB mic"}, {ID: "b", Name: "Built-in"}}, nil)

	d, err := FindDevice(ctx, "")
	if err != nil || d != nil {
		t.Errorf("empty name: %v, %v", d, err)
	}
	d, err = FindDevice(ctx, "Built-in")
	if err != nil || d == nil || d.ID != "b" {
		t.Errorf("Built-in: %v, %v", d, err)
	}
	if _, err := FindDevice(ctx, "missing"); err == nil {
		t.Error("missing device found")
	}
}

func TestFakeCaptureDeliversPCM(t *testing.T) {
	pcm := make([]byte, 3*fakeFrameSize*fakeBytesPerFrame+10)
	ctx := NewFakeContext(pcm)
	c, err := ctx.NewCapture(nil, DefaultCaptureConfig())
	if err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	total := 0
	c.SetCallback(func(data []byte, frames uint32) {
		mu.Lock()
		total += len(data)
		mu.Unlock()
	})
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := total
		mu.Unlock()
		if n == len(pcm) {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("delivered %d of %d bytes", n, len(pcm))
		case <-time.After(time.Millisecond):
		}
	}
	c.Stop()
	c.Stop()

	fc := ctx.Captures()[0]
	if starts, stops := fc.Counts(); starts != 1 || stops != 1 {
		t.Errorf("counts = %d/%d", starts, stops)
	}
	if fc.DeviceName() != "fake" {
		t.Errorf("name = %q", fc.DeviceName())
	}
}

func TestNewFakeContextFromWAVSkipsHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.wav")
	data := append(make([]byte, WAVHeaderSize), 1, 2, 3, 4)
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
	ctx, err := NewFakeContextFromWAV(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(ctx.pcm) != 4 || ctx.pcm[0] != 1 {
		t.Errorf("pcm = %v", ctx.pcm)
	}
}
