package speech

import (
	"context"
	"errors"
	"testing"
	"time"

	"phishcheck/audio"
	"phishcheck/transcriber"
)

func newTestAdapter(segments []string, trErr error) (*Adapter, *audio.FakeContext, *transcriber.FakeTranscriber) {
	actx := audio.NewFakeContext(make([]byte, 8192))
	tr := transcriber.NewFake(segments, trErr)
	return NewAdapter(actx, tr, nil), actx, tr
}

func waitUpdate(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got, ok := <-ch:
			if !ok {
				t.Fatalf("updates closed before %q", want)
			}
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for update %q", want)
		}
	}
}

func TestJoinSegments(t *testing.T) {
	for _, tt := range []struct{ a, b, want string }{
		{"", "", ""},
		{"hola", "", "hola"},
		{"", "mundo", "mundo"},
		{"hola ", " mundo", "hola mundo"},
	} {
		if got := joinSegments(tt.a, tt.b); got != tt.want {
			t.Errorf("joinSegments(%q, %q) = %q, want %q", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestAdapterUnsupported(t *testing.T) {
	a := NewAdapter(nil, nil, nil)
	if a.Supported() {
		t.Fatal("adapter without backends reports supported")
	}
	if err := a.Start(context.Background(), Options{Continuous: true}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Start error = %v, want ErrUnsupported", err)
	}
	if err := a.RequestPermission(context.Background()); !errors.Is(err, ErrUnsupported) {
		t.Errorf("RequestPermission error = %v, want ErrUnsupported", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestAdapterPermissionDenied(t *testing.T) {
	a, actx, _ := newTestAdapter(nil, nil)
	defer a.Close()

	actx.SetDevices(nil, errors.New("access refused"))
	if err := a.RequestPermission(context.Background()); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("error = %v, want ErrPermissionDenied", err)
	}

	actx.SetDevices([]audio.DeviceInfo{{ID: "1", Name: "mic"}}, nil)
	if err := a.RequestPermission(context.Background()); err != nil {
		t.Fatalf("RequestPermission: %v", err)
	}
}

func TestAdapterAppendsWhileListening(t *testing.T) {
	a, actx, tr := newTestAdapter([]string{"hola", "mundo"}, nil)
	defer a.Close()

	if err := a.Start(context.Background(), Options{Continuous: true, Language: "es-ES"}); err != nil {
		t.Fatal(err)
	}
	if !a.Listening() {
		t.Fatal("not listening after Start")
	}
	waitUpdate(t, a.Updates(), "hola")
	waitUpdate(t, a.Updates(), "hola mundo")

	if err := a.Stop(); err != nil {
		t.Fatal(err)
	}
	if a.Listening() {
		t.Error("still listening after Stop")
	}
	if got := a.Transcript(); got != "hola mundo" {
		t.Errorf("Transcript() = %q", got)
	}

	cfgs := tr.Sessions()
	if len(cfgs) != 1 || cfgs[0].Language != "es-ES" || cfgs[0].SampleRate != audio.SampleRate {
		t.Errorf("sessions = %+v", cfgs)
	}
	caps := actx.Captures()
	if len(caps) != 1 {
		t.Fatalf("captures = %d, want 1", len(caps))
	}
	if starts, stops := caps[0].Counts(); starts != 1 || stops != 1 {
		t.Errorf("capture counts = %d/%d, want 1/1", starts, stops)
	}
}

func TestAdapterSecondSessionAppends(t *testing.T) {
	a, _, _ := newTestAdapter([]string{"hola"}, nil)
	defer a.Close()

	ctx := context.Background()
	if err := a.Start(ctx, Options{Continuous: true}); err != nil {
		t.Fatal(err)
	}
	waitUpdate(t, a.Updates(), "hola")
	a.Stop()

	if err := a.Start(ctx, Options{Continuous: true}); err != nil {
		t.Fatal(err)
	}
	waitUpdate(t, a.Updates(), "hola hola")
	a.Stop()

	a.Reset()
	if got := a.Transcript(); got != "" {
		t.Errorf("Transcript() after Reset = %q", got)
	}
}

func TestAdapterStartTwiceIsNoop(t *testing.T) {
	a, actx, _ := newTestAdapter(nil, nil)
	defer a.Close()

	ctx := context.Background()
	if err := a.Start(ctx, Options{Continuous: true}); err != nil {
		t.Fatal(err)
	}
	if err := a.Start(ctx, Options{Continuous: true}); err != nil {
		t.Fatal(err)
	}
	if n := len(actx.Captures()); n != 1 {
		t.Errorf("captures = %d, want 1", n)
	}
	if err := a.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := a.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestAdapterSingleUtterance(t *testing.T) {
	a, _, _ := newTestAdapter([]string{"hola", "mundo"}, nil)
	defer a.Close()

	if err := a.Start(context.Background(), Options{Continuous: false}); err != nil {
		t.Fatal(err)
	}
	waitUpdate(t, a.Updates(), "hola")
	time.Sleep(30 * time.Millisecond)
	a.Stop()
	if got := a.Transcript(); got != "hola" {
		t.Errorf("Transcript() = %q, want %q", got, "hola")
	}
}

func TestAdapterTranscriptionError(t *testing.T) {
	a, _, _ := newTestAdapter(nil, errors.New("socket closed"))
	defer a.Close()

	if err := a.Start(context.Background(), Options{Continuous: true}); err != nil {
		t.Fatal(err)
	}
	if err := a.Stop(); err == nil {
		t.Error("Stop should surface the transcription error")
	}
	if a.Listening() {
		t.Error("listening after failed Stop")
	}
}

func TestAdapterCloseClosesUpdates(t *testing.T) {
	a, _, _ := newTestAdapter([]string{"hola"}, nil)
	if err := a.Start(context.Background(), Options{Continuous: true}); err != nil {
		t.Fatal(err)
	}
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	for range a.Updates() {
	}
	if err := a.Start(context.Background(), Options{Continuous: true}); err == nil {
		t.Error("Start after Close should fail")
	}
}

func TestFakeSayOnlyWhileListening(t *testing.T) {
	f := NewFake()
	if f.Say("ignored") {
		t.Error("Say appended while idle")
	}
	if err := f.Start(context.Background(), Options{Continuous: true}); err != nil {
		t.Fatal(err)
	}
	f.Say("hola")
	f.Say("mundo")
	if got := <-f.Updates(); got != "hola" {
		t.Errorf("first update = %q", got)
	}
	if got := <-f.Updates(); got != "hola mundo" {
		t.Errorf("second update = %q", got)
	}
	f.Stop()
	if f.Say("tarde") {
		t.Error("Say appended after Stop")
	}
	f.Reset()
	if f.Transcript() != "" {
		t.Error("Reset did not clear transcript")
	}
	starts, stops, resets := f.Calls()
	if len(starts) != 1 || stops != 1 || resets != 1 {
		t.Errorf("calls = %d/%d/%d", len(starts), stops, resets)
	}
}

func TestFakeDeniedPermission(t *testing.T) {
	f := NewFake()
	f.DenyPermission(ErrPermissionDenied)
	if err := f.RequestPermission(context.Background()); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("RequestPermission = %v", err)
	}
	if err := f.Start(context.Background(), Options{}); err != nil {
		t.Errorf("Start after denied permission = %v", err)
	}
	f.Stop()
	f.FailStart(errors.New("device busy"))
	if err := f.Start(context.Background(), Options{}); err == nil {
		t.Error("Start should fail")
	}
	if NewUnsupportedFake().Supported() {
		t.Error("unsupported fake reports supported")
	}
}

func TestAdapterResetWhileListening(t *testing.T) {
	a, _, tr := newTestAdapter(nil, nil)
	defer a.Close()

	if err := a.Start(context.Background(), Options{Continuous: true}); err != nil {
		t.Fatal(err)
	}
	if !tr.Commit("uno") {
		t.Fatal("no open session")
	}
	waitUpdate(t, a.Updates(), "uno")

	a.Reset()
	if got := a.Transcript(); got != "" {
		t.Fatalf("Transcript() after Reset = %q", got)
	}
	if !a.Listening() {
		t.Fatal("Reset stopped listening")
	}

	tr.Commit("dos")
	waitUpdate(t, a.Updates(), "dos")
	if err := a.Stop(); err != nil {
		t.Fatal(err)
	}
	if got := a.Transcript(); got != "dos" {
		t.Errorf("Transcript() after Stop = %q, want %q", got, "dos")
	}
}
