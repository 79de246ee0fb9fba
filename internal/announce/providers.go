package announce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

func NewSynthesizer(kind string) Synthesizer {
	switch kind {
	case "", "stub", "log":
		return logSynthesizer{}
	case "noop":
		return noopSynthesizer{}
	case "fail":
		return failSynthesizer{}
	default:
		if strings.HasPrefix(kind, "http://") || strings.HasPrefix(kind, "https://") {
			return &httpSynthesizer{url: kind}
		}
		return logSynthesizer{}
	}
}

type logSynthesizer struct{}

func (logSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	log.Printf("synthesize: %s", text)
	return []byte(text), nil
}

type noopSynthesizer struct{}

func (noopSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return nil, nil
}

type failSynthesizer struct{}

func (failSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return nil, errors.New("synthesizer failure")
}

// httpSynthesizer posts the phrase to a TTS endpoint and returns the raw
// audio bytes from the response body.
type httpSynthesizer struct {
	url string
}

func (s *httpSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, errors.New("synthesizer rejected request")
	}
	return io.ReadAll(resp.Body)
}
