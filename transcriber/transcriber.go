package transcriber

import (
	"context"
	"errors"
	"strings"
)

var ErrNotConfigured = errors.New("speech backend not configured: set DEEPGRAM_API_KEY")

const defaultModel = "nova-3"

type Transcriber interface {
	Name() string
	NewSession(ctx context.Context, cfg SessionConfig) (Session, error)
}

// Deepgram streams PCM to the Deepgram live listen API.
type Deepgram struct {
	apiKey   string
	model    string
	endpoint string
}

func NewDeepgram(apiKey, model string) *Deepgram {
	if model == "" {
		model = defaultModel
	}
	return &Deepgram{apiKey: apiKey, model: model, endpoint: deepgramListenURL}
}

// New returns the configured streaming backend, or ErrNotConfigured.
func New(apiKey, model string) (Transcriber, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	return NewDeepgram(apiKey, model), nil
}

func (d *Deepgram) Name() string { return "deepgram" }

func (d *Deepgram) NewSession(ctx context.Context, cfg SessionConfig) (Session, error) {
	sc := streamSessionConfig{
		SampleRate: cfg.SampleRate,
		Channels:   cfg.Channels,
		Language:   deepgramLanguage(cfg.Language),
		Model:      d.model,
	}
	return newStreamSession(func() (rawStreamSession, error) {
		return d.startStream(ctx, sc)
	}), nil
}

// Regional variants Deepgram accepts as-is; anything else is reduced to
// its primary subtag ("es-ES" -> "es").
var deepgramRegional = map[string]bool{
	"en-us": true, "en-gb": true, "en-au": true, "en-in": true, "en-nz": true,
	"es-419": true, "pt-br": true, "pt-pt": true, "fr-ca": true, "zh-cn": true, "zh-tw": true,
}

func deepgramLanguage(tag string) string {
	tag = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(tag), "_", "-"))
	if tag == "" || deepgramRegional[tag] {
		return tag
	}
	primary, _, _ := strings.Cut(tag, "-")
	return primary
}
