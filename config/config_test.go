package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var allVars = []string{
	"PHISHCHECK_API_URL",
	"PHISHCHECK_LANGUAGE",
	"PHISHCHECK_VERIFY_TIMEOUT",
	"PHISHCHECK_MAX_TRANSCRIPT",
	"DEEPGRAM_API_KEY",
	"DEEPGRAM_MODEL",
	"PHISHCHECK_LOG_PATH",
	"PHISHCHECK_METRICS_ADDR",
}

// clearEnv unsets every variable Load reads and restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allVars {
		if v, ok := os.LookupEnv(k); ok {
			t.Cleanup(func() { os.Setenv(k, v) })
		} else {
			t.Cleanup(func() { os.Unsetenv(k) })
		}
		os.Unsetenv(k)
	}
}

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(noEnvFile(t))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.APIURL != "https://pubsub-api-549920649116.us-central1.run.app/" {
		t.Errorf("APIURL = %q", cfg.APIURL)
	}
	if cfg.Language != "es-ES" {
		t.Errorf("Language = %q", cfg.Language)
	}
	if cfg.VerifyTimeout != 15*time.Second {
		t.Errorf("VerifyTimeout = %s", cfg.VerifyTimeout)
	}
	if cfg.MaxTranscript != 5000 {
		t.Errorf("MaxTranscript = %d", cfg.MaxTranscript)
	}
	if cfg.DeepgramModel != "nova-3" {
		t.Errorf("DeepgramModel = %q", cfg.DeepgramModel)
	}
	if cfg.SpeechConfigured() {
		t.Error("speech configured without a key")
	}
	if cfg.MetricsAddr != "" {
		t.Errorf("MetricsAddr = %q", cfg.MetricsAddr)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	clearEnv(t)
	os.Setenv("PHISHCHECK_API_URL", "http://localhost:9000")
	os.Setenv("PHISHCHECK_VERIFY_TIMEOUT", "3s")
	os.Setenv("DEEPGRAM_API_KEY", "dg-key")

	cfg, err := Load(noEnvFile(t))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIURL != "http://localhost:9000" || cfg.VerifyTimeout != 3*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
	if !cfg.SpeechConfigured() {
		t.Error("key not picked up")
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	os.Setenv("PHISHCHECK_LANGUAGE", "en-US")

	envFile := filepath.Join(t.TempDir(), ".env")
	content := "PHISHCHECK_METRICS_ADDR=127.0.0.1:9464\nPHISHCHECK_LANGUAGE=fr-FR\n"
	if err := os.WriteFile(envFile, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(envFile)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MetricsAddr != "127.0.0.1:9464" {
		t.Errorf("MetricsAddr = %q", cfg.MetricsAddr)
	}
	if cfg.Language != "en-US" {
		t.Errorf("Language = %q, environment should win over .env", cfg.Language)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	for name, env := range map[string][2]string{
		"bad duration":    {"PHISHCHECK_VERIFY_TIMEOUT", "soon"},
		"zero timeout":    {"PHISHCHECK_VERIFY_TIMEOUT", "0s"},
		"negative max":    {"PHISHCHECK_MAX_TRANSCRIPT", "-1"},
		"non-numeric max": {"PHISHCHECK_MAX_TRANSCRIPT", "lots"},
	} {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			os.Setenv(env[0], env[1])
			if _, err := Load(noEnvFile(t)); err == nil {
				t.Errorf("%s=%s accepted", env[0], env[1])
			}
		})
	}
}
