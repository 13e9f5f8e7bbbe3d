package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	diagnosticsFile  = "diagnostics_log.txt"
	verificationFile = "verification_log.txt"
)

var (
	diagLog    zerolog.Logger
	diagFile   *os.File
	verifyFile *os.File
	logMu      sync.Mutex
	logReady   bool
	pid        int
	dir        string
)

// Verification is one completed classifier round-trip.
type Verification struct {
	RequestID  string
	Score      float64
	Reason     string
	Text       string
	Escalate   bool
	TTFBMs     float64
	TotalMs    float64
	ConnReused bool
}

type StreamMetricsData struct {
	ConnectMs    float64
	FinalizeMs   float64
	TotalMs      float64
	AudioS       float64
	SentChunks   int
	SentKB       float64
	RecvMessages int
	RecvFinal    int
	CommitEvents int
}

func ResolveDir(flagPath string) (string, error) {
	if flagPath != "" {
		return absolute(flagPath)
	}
	if envPath := os.Getenv("PHISHCHECK_LOG_PATH"); envPath != "" {
		return absolute(envPath)
	}
	return getDefaultDir()
}

func absolute(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error
	diagFile, err = os.OpenFile(filepath.Join(dir, diagnosticsFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	verifyFile, err = os.OpenFile(filepath.Join(dir, verificationFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		diagFile.Close()
		diagFile = nil
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if verifyFile != nil {
		verifyFile.Close()
		verifyFile = nil
	}
	logReady = false
}

func ready() bool {
	logMu.Lock()
	defer logMu.Unlock()
	return logReady
}

func Info(msg string) {
	if ready() {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if ready() {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if ready() {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if ready() {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if ready() {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if ready() {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func SessionStart(provider, language, apiURL string) {
	if !ready() {
		return
	}
	diagLog.Info().
		Str("provider", provider).
		Str("language", language).
		Str("api", apiURL).
		Msg("session_start")
}

func SessionEnd(verifications int) {
	if !ready() {
		return
	}
	diagLog.Info().Int("verifications", verifications).Msg("session_end")
}

func ListeningStart(device string) {
	if !ready() {
		return
	}
	diagLog.Info().Str("device", device).Msg("listening_start")
}

func ListeningStop(chars int) {
	if !ready() {
		return
	}
	diagLog.Info().Int("chars", chars).Msg("listening_stop")
}

func PermissionDenied(err error) {
	if !ready() {
		return
	}
	diagLog.Warn().Err(err).Msg("permission_denied")
}

// VerificationResult writes the diagnostics line and appends the journal entry.
func VerificationResult(v Verification) {
	if !ready() {
		return
	}
	connStatus := "new"
	if v.ConnReused {
		connStatus = "reused"
	}
	diagLog.Info().
		Str("request_id", v.RequestID).
		Float64("score", v.Score).
		Bool("escalate", v.Escalate).
		Int("chars", len([]rune(v.Text))).
		Str("conn", connStatus).
		Float64("ttfb_ms", v.TTFBMs).
		Float64("total_ms", v.TotalMs).
		Msg("verification")

	logMu.Lock()
	defer logMu.Unlock()
	if verifyFile == nil {
		return
	}
	line := fmt.Sprintf("%s\t[%d]\t%s\t%.2f\t%s\t%s\n",
		time.Now().Format("2006-01-02 15:04:05"), pid, v.RequestID, v.Score, v.Reason, v.Text)
	verifyFile.WriteString(line)
}

func VerificationFailed(requestID string, err error) {
	if !ready() {
		return
	}
	diagLog.Error().Str("request_id", requestID).Err(err).Msg("verification_failed")
}

func Escalation(requestID string, copied bool) {
	if !ready() {
		return
	}
	diagLog.Info().Str("request_id", requestID).Bool("copied", copied).Msg("escalation")
}

func StreamMetrics(m StreamMetricsData) {
	if !ready() {
		return
	}
	diagLog.Info().
		Float64("connect_ms", m.ConnectMs).
		Float64("finalize_ms", m.FinalizeMs).
		Float64("total_ms", m.TotalMs).
		Float64("audio_s", m.AudioS).
		Int("sent_chunks", m.SentChunks).
		Float64("sent_kb", m.SentKB).
		Int("recv_messages", m.RecvMessages).
		Int("recv_final", m.RecvFinal).
		Int("commit_events", m.CommitEvents).
		Msg("stream_transcription")
}
