package mock

import (
	"context"
	"fmt"
	"time"

	"github.com/jo-hoe/videogreeter/internal/config"
	"github.com/jo-hoe/videogreeter/internal/speech"
)

var _ speech.Synthesizer = (*Synthesizer)(nil)

// Synthesizer returns deterministic fake audio after an optional delay.
type Synthesizer struct {
	delay time.Duration
}

func New(cfg config.MockSpeechSettings) *Synthesizer {
	return &Synthesizer{delay: cfg.Delay}
}

func (s *Synthesizer) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("MOCKMP3 voice=%s text=%s", voiceID, text)), nil
}
