package speech

import "context"

// Synthesizer turns text into spoken audio.
type Synthesizer interface {
	// Synthesize renders text with the given voice and returns the encoded audio (mp3).
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}
