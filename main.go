package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"phishcheck/audio"
	"phishcheck/clipboard"
	"phishcheck/config"
	"phishcheck/log"
	"phishcheck/metrics"
	"phishcheck/shutdown"
	"phishcheck/speech"
	"phishcheck/transcriber"
	"phishcheck/verify"
	"phishcheck/workflow"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	apiFlag := flag.String("api", "", "Classifier base URL (default: PHISHCHECK_API_URL or the hosted service)")
	langFlag := flag.String("lang", "", "Recognition locale, e.g. es-ES (default: PHISHCHECK_LANGUAGE)")
	timeoutFlag := flag.Duration("timeout", 0, "Verification timeout, e.g. 15s (default: PHISHCHECK_VERIFY_TIMEOUT)")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	metricsFlag := flag.String("metrics", "", "Serve Prometheus metrics on this address, e.g. :9464")
	deviceFlag := flag.String("device", "", "Use named microphone device")
	setupFlag := flag.Bool("setup", false, "Select microphone device (otherwise uses system default)")
	testFlag := flag.Bool("test", false, "Test mode (headless, stdin-driven)")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("phishcheck %s\n", version)
		return 0
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if *apiFlag != "" {
		cfg.APIURL = *apiFlag
	}
	if *langFlag != "" {
		cfg.Language = *langFlag
	}
	if *timeoutFlag > 0 {
		cfg.VerifyTimeout = *timeoutFlag
	}
	if *metricsFlag != "" {
		cfg.MetricsAddr = *metricsFlag
	}
	if *logPathFlag != "" {
		cfg.LogPath = *logPathFlag
	}

	logPath, err := log.ResolveDir(cfg.LogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		return 1
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	initCrashLog()
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	client, err := verify.NewClient(cfg.APIURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if cfg.MetricsAddr != "" {
		srv := metrics.NewServer(cfg.MetricsAddr)
		if err := srv.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: metrics listener: %v\n", err)
			return 1
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
	}

	ctx, stop := shutdown.Context(context.Background())
	defer stop()

	opts := workflow.Options{
		Language:           cfg.Language,
		VerifyTimeout:      cfg.VerifyTimeout,
		MaxTranscriptRunes: cfg.MaxTranscript,
	}

	if *testFlag {
		log.SessionStart("fake", cfg.Language, client.Endpoint())
		return runTestMode(ctx, client, opts, os.Stdin, os.Stdout)
	}

	rec, provider, device := buildRecognizer(cfg, *deviceFlag, *setupFlag)
	log.SessionStart(provider, cfg.Language, client.Endpoint())

	if !clipboard.Supported() {
		log.Warn("no clipboard utility found; escalation copies will fail")
	}
	go func() {
		if d := client.Warm(ctx); d > 0 {
			log.Infof("classifier connection warmed, tls %dms", d.Milliseconds())
		}
	}()

	ctl := workflow.New(rec, client, clipboard.System{}, opts)
	defer ctl.Close()

	p := NewTUIProgram(ctx, ctl, tuiInfo{
		Provider: provider,
		Language: cfg.Language,
		Device:   device,
		Endpoint: client.Endpoint(),
	})
	go func() {
		<-ctx.Done()
		p.Quit()
	}()
	if _, err := p.Run(); err != nil {
		log.Errorf("TUI error: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// buildRecognizer wires audio capture to the speech backend. Any missing
// piece yields an adapter that reports itself unsupported.
func buildRecognizer(cfg *config.Config, deviceName string, setup bool) (speech.Recognizer, string, string) {
	if !cfg.SpeechConfigured() {
		log.Warnf("speech disabled: %v", transcriber.ErrNotConfigured)
		return speech.NewAdapter(nil, nil, nil), "none", ""
	}
	tr, err := transcriber.New(cfg.DeepgramAPIKey, cfg.DeepgramModel)
	if err != nil {
		log.Warnf("speech disabled: %v", err)
		return speech.NewAdapter(nil, nil, nil), "none", ""
	}

	actx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		return speech.NewAdapter(nil, tr, nil), tr.Name(), ""
	}

	var device *audio.DeviceInfo
	switch {
	case deviceName != "":
		device, err = audio.FindDevice(actx, deviceName)
		if err != nil {
			log.Warnf("%v; falling back to default device", err)
			fmt.Fprintf(os.Stderr, "Warning: %v, using default device\n", err)
		}
	case setup:
		device, err = audio.SelectDevice(actx)
		if err != nil && !errors.Is(err, audio.ErrSelectionAborted) {
			log.Warnf("device selection failed: %v", err)
			fmt.Fprintf(os.Stderr, "Warning: device selection failed: %v\n", err)
		}
	}

	name := "system default"
	if device != nil {
		name = device.Name
	}
	return speech.NewAdapter(actx, tr, device), tr.Name(), name
}

func initCrashLog() {
	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(crashFile, debug.CrashOptions{})
}
