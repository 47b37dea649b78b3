package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jo-hoe/videogreeter/internal/common"
	"github.com/jo-hoe/videogreeter/internal/config"
	"github.com/jo-hoe/videogreeter/internal/speech"
)

var _ speech.Synthesizer = (*Client)(nil)

const (
	headerAPIKey      = "xi-api-key"
	headerAccept      = "Accept"
	headerContentType = "Content-Type"

	endpointTextToSpeech = "v1/text-to-speech"

	defaultTimeout    = 60 * time.Second
	errorSnippetLimit = 400
)

// Client implements speech.Synthesizer against the ElevenLabs text-to-speech API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	modelID    string
	format     string
	voice      voiceSettings
}

// New creates an ElevenLabs client.
func New(cfg config.ElevenLabsSettings) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		modelID:    cfg.ModelID,
		format:     cfg.OutputFormat,
		voice: voiceSettings{
			Stability:       cfg.Stability,
			SimilarityBoost: cfg.SimilarityBoost,
		},
	}
}

// WithHTTPClient allows tests to inject a custom HTTP client.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.httpClient = h
	return c
}

// Synthesize posts text to /v1/text-to-speech/{voice} and returns the audio body.
func (c *Client) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text is empty")
	}
	if strings.TrimSpace(voiceID) == "" {
		return nil, fmt.Errorf("voice id is empty")
	}

	u, err := url.JoinPath(c.baseURL, endpointTextToSpeech, voiceID)
	if err != nil {
		return nil, fmt.Errorf("join url: %w", err)
	}
	if c.format != "" {
		u += "?" + url.Values{"output_format": {c.format}}.Encode()
	}

	body, err := json.Marshal(ttsRequest{Text: text, ModelID: c.modelID, VoiceSettings: c.voice})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set(headerContentType, common.ContentTypeJSON)
	req.Header.Set(headerAccept, common.ContentTypeMP3)
	req.Header.Set(headerAPIKey, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("http do: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs status %d: %s", resp.StatusCode, truncate(string(audio), errorSnippetLimit))
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("elevenlabs returned empty audio")
	}
	return audio, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}
