package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordVerification(t *testing.T) {
	before := testutil.ToFloat64(verifications.WithLabelValues("scored"))
	RecordVerification("scored", 120*time.Millisecond)
	if got := testutil.ToFloat64(verifications.WithLabelValues("scored")); got != before+1 {
		t.Errorf("scored = %v, want %v", got, before+1)
	}
}

func TestRecordListening(t *testing.T) {
	RecordListening(true)
	if got := testutil.ToFloat64(listening); got != 1 {
		t.Errorf("listening = %v, want 1", got)
	}
	RecordListening(false)
	if got := testutil.ToFloat64(listening); got != 0 {
		t.Errorf("listening = %v, want 0", got)
	}
}

func TestRecordEscalation(t *testing.T) {
	before := testutil.ToFloat64(escalations.WithLabelValues("false"))
	RecordEscalation(false)
	if got := testutil.ToFloat64(escalations.WithLabelValues("false")); got != before+1 {
		t.Errorf("escalations{copied=false} = %v", got)
	}
}

func TestServerExposesMetrics(t *testing.T) {
	s := NewServer("127.0.0.1:0")
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	defer s.Shutdown(context.Background())

	RecordScore(0.42)

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "phishcheck_last_score 0.42") {
		t.Errorf("metrics output missing last_score:\n%s", body)
	}

	resp, err = http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", resp.StatusCode)
	}
}
