package announce

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type recordingSynth struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (s *recordingSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	if s.err != nil {
		return nil, s.err
	}
	return []byte(text), nil
}

func (s *recordingSynth) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.texts))
	copy(out, s.texts)
	return out
}

func TestAnnouncerDeliversInOrder(t *testing.T) {
	synth := &recordingSynth{}
	a := New(synth, Config{QueueSize: 4})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	a.Enqueue("Token number 1, please enter the room.")
	a.Enqueue("Token number 2, please leave for the clinic now.")

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(synth.seen()) == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	seen := synth.seen()
	if len(seen) != 2 || seen[0] != "Token number 1, please enter the room." {
		t.Fatalf("unexpected delivery: %v", seen)
	}
}

func TestAnnouncerSwallowsSynthesisErrors(t *testing.T) {
	synth := &recordingSynth{err: errors.New("tts down")}
	a := New(synth, Config{QueueSize: 4})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	a.Enqueue("first")
	a.Enqueue("second")

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(synth.seen()) == 2 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("worker stopped after a synthesis error: %v", synth.seen())
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	a := New(&recordingSynth{}, Config{QueueSize: 1})

	// No worker running; the second enqueue must not block.
	done := make(chan struct{})
	go func() {
		a.Enqueue("first")
		a.Enqueue("second")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Enqueue blocked on a full queue")
	}
}

func TestHTTPSynthesizer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		_, _ = w.Write([]byte("audio-bytes"))
	}))
	defer srv.Close()

	synth := NewSynthesizer(srv.URL)
	audio, err := synth.Synthesize(context.Background(), "Token number 3, please enter the room.")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if string(audio) != "audio-bytes" {
		t.Fatalf("unexpected audio payload: %q", audio)
	}
}

func TestHTTPSynthesizerRejectsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	synth := NewSynthesizer(srv.URL)
	if _, err := synth.Synthesize(context.Background(), "anything"); err == nil {
		t.Fatalf("expected error on 5xx response")
	}
}
