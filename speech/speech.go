// Package speech is the boundary around microphone permission and live
// speech recognition. It produces a continuously appended transcript and a
// listening flag; everything above it sees only the Recognizer interface.
package speech

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrUnsupported      = errors.New("speech recognition not supported")
	ErrPermissionDenied = errors.New("microphone permission denied")
)

// DefaultLanguage is the recognition locale used when none is configured.
const DefaultLanguage = "es-ES"

type Options struct {
	// Continuous keeps appending segments until Stop. When false only the
	// first committed segment is kept.
	Continuous bool
	Language   string
}

// Recognizer is a speech capture capability.
//
// Segments recognised while listening append to Transcript. Updates delivers
// the full transcript after each append, in the order the segments were
// recognised. Nothing is appended while Listening is false.
type Recognizer interface {
	Supported() bool
	RequestPermission(ctx context.Context) error
	Start(ctx context.Context, opts Options) error
	Stop() error
	Reset()
	Transcript() string
	Listening() bool
	Updates() <-chan string
	Close() error
}

func joinSegments(a, b string) string {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + " " + b
}
