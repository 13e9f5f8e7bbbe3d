package transcriber

type SessionConfig struct {
	Language   string // BCP-47 locale tag, e.g. "es-ES"
	SampleRate int
	Channels   int
}

type StreamStats struct {
	ConnectMs    float64
	SentChunks   int
	SentKB       float64
	RecvMessages int
	RecvFinal    int
	CommitEvents int
	FinalizeMs   float64
	TotalMs      float64
	AudioS       float64
}

type SessionResult struct {
	Text     string
	NoSpeech bool
	Stream   *StreamStats
}

// Session accepts PCM and publishes the cumulative committed transcript.
// Updates is closed by Close, after the final text has been sent.
type Session interface {
	Feed(pcm []byte)
	Updates() <-chan string
	Close() (SessionResult, error)
}
