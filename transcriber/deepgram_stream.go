package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"nhooyr.io/websocket"
)

const deepgramListenURL = "wss://api.deepgram.com/v1/listen"

// finalizeMsg asks the server to flush pending audio as final results.
var finalizeMsg = []byte(`{"type":"Finalize"}`)

type streamSessionConfig struct {
	SampleRate int
	Channels   int
	Language   string
	Model      string
}

// deepgramResult is the subset of a live "Results" message we read.
type deepgramResult struct {
	IsFinal      bool `json:"is_final"`
	SpeechFinal  bool `json:"speech_final"`
	FromFinalize bool `json:"from_finalize"`
	Channel      struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (d *Deepgram) listenURL(cfg streamSessionConfig) (string, error) {
	u, err := url.Parse(d.endpoint)
	if err != nil {
		return "", err
	}
	params := map[string]string{
		"model":     cfg.Model,
		"encoding":  "linear16",
		"punctuate": "true",
		"language":  cfg.Language,
	}
	if cfg.SampleRate > 0 {
		params["sample_rate"] = strconv.Itoa(cfg.SampleRate)
	}
	if cfg.Channels > 0 {
		params["channels"] = strconv.Itoa(cfg.Channels)
	}
	q := u.Query()
	for k, v := range params {
		if v != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deepgramConn adapts a websocket to rawStreamSession. Every call shares
// ctx, so Close also unblocks a pending Recv.
type deepgramConn struct {
	ws     *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

func (d *Deepgram) startStream(ctx context.Context, cfg streamSessionConfig) (rawStreamSession, error) {
	target, err := d.listenURL(cfg)
	if err != nil {
		return nil, err
	}

	connCtx, cancel := context.WithCancel(ctx)
	ws, _, err := websocket.Dial(connCtx, target, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Token " + d.apiKey}},
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("deepgram dial: %w", err)
	}
	return &deepgramConn{ws: ws, ctx: connCtx, cancel: cancel}, nil
}

func (c *deepgramConn) Send(pcm []byte) error {
	return c.ws.Write(c.ctx, websocket.MessageBinary, pcm)
}

func (c *deepgramConn) CloseSend() error {
	return c.ws.Write(c.ctx, websocket.MessageText, finalizeMsg)
}

func (c *deepgramConn) Recv() (streamUpdate, error) {
	_, data, err := c.ws.Read(c.ctx)
	if err != nil {
		return streamUpdate{}, err
	}
	return parseDeepgramMessage(data)
}

func (c *deepgramConn) Close() error {
	c.cancel()
	return c.ws.Close(websocket.StatusNormalClosure, "")
}

func parseDeepgramMessage(data []byte) (streamUpdate, error) {
	var r deepgramResult
	if err := json.Unmarshal(data, &r); err != nil {
		return streamUpdate{}, fmt.Errorf("deepgram message: %w", err)
	}
	u := streamUpdate{
		IsFinal:      r.IsFinal,
		SpeechFinal:  r.SpeechFinal,
		FromFinalize: r.FromFinalize,
	}
	if alts := r.Channel.Alternatives; len(alts) > 0 {
		u.Transcript = strings.TrimSpace(alts[0].Transcript)
	}
	return u, nil
}
