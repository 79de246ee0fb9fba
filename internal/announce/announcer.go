package announce

import (
	"context"
	"log"
)

// Synthesizer turns a plain-language phrase into encoded audio. The
// engine never inspects the audio; playback belongs to the display layer.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

type Config struct {
	QueueSize int
}

// Announcer runs spoken announcements off the command path. Enqueue never
// blocks and synthesis failures are logged, not surfaced.
type Announcer struct {
	synth Synthesizer
	jobs  chan string
}

func New(synth Synthesizer, cfg Config) *Announcer {
	size := cfg.QueueSize
	if size <= 0 {
		size = 32
	}
	return &Announcer{
		synth: synth,
		jobs:  make(chan string, size),
	}
}

func (a *Announcer) Enqueue(text string) {
	select {
	case a.jobs <- text:
	default:
		log.Printf("announce queue full, dropping: %s", text)
	}
}

func (a *Announcer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-a.jobs:
			audio, err := a.synth.Synthesize(ctx, text)
			if err != nil {
				log.Printf("announce synth error: %v", err)
				continue
			}
			log.Printf("announce delivered bytes=%d text=%s", len(audio), text)
		}
	}
}
