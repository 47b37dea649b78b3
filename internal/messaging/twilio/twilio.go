package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jo-hoe/videogreeter/internal/common"
	"github.com/jo-hoe/videogreeter/internal/config"
	"github.com/jo-hoe/videogreeter/internal/messaging"
)

var _ messaging.Messenger = (*Messenger)(nil)

const (
	whatsappPrefix = "whatsapp:"
	defaultTimeout = 15 * time.Second
)

// Messenger sends WhatsApp messages through the Twilio Messages API.
type Messenger struct {
	cfg  config.TwilioSettings
	http *http.Client
}

// New creates a Twilio WhatsApp messenger.
func New(cfg config.TwilioSettings) (*Messenger, error) {
	if strings.TrimSpace(cfg.AccountSID) == "" || strings.TrimSpace(cfg.AuthToken) == "" {
		return nil, fmt.Errorf("twilio account sid and auth token must not be empty")
	}
	if strings.TrimSpace(cfg.FromNumber) == "" {
		return nil, fmt.Errorf("twilio from number must not be empty")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.twilio.com"
	}
	return &Messenger{
		cfg:  cfg,
		http: &http.Client{Timeout: defaultTimeout},
	}, nil
}

// WithHTTPClient allows tests to inject a custom HTTP client (e.g., pointing to httptest.Server).
func (m *Messenger) WithHTTPClient(c *http.Client) *Messenger {
	m.http = c
	return m
}

func (m *Messenger) Deliver(ctx context.Context, recipient, text, mediaURL string) error {
	if strings.TrimSpace(recipient) == "" {
		return fmt.Errorf("recipient must not be empty")
	}

	form := url.Values{}
	form.Set("From", whatsappAddress(m.cfg.FromNumber))
	form.Set("To", whatsappAddress(recipient))
	form.Set("Body", text)
	if m.cfg.AttachMedia && mediaURL != "" {
		form.Set("MediaUrl", mediaURL)
	}

	// {base}/2010-04-01/Accounts/{sid}/Messages.json
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		strings.TrimRight(m.cfg.BaseURL, "/"), url.PathEscape(m.cfg.AccountSID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.SetBasicAuth(m.cfg.AccountSID, m.cfg.AuthToken)
	req.Header.Set("Content-Type", common.ContentTypeForm)
	req.Header.Set("Accept", common.ContentTypeJSON)

	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("twilio request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		var apiErr apiError
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Message != "" {
			return fmt.Errorf("twilio api: status %d: %s (code %d)", resp.StatusCode, apiErr.Message, apiErr.Code)
		}
		return fmt.Errorf("twilio api: status %d", resp.StatusCode)
	}
	return nil
}

// whatsappAddress formats a phone number as whatsapp:+E164.
func whatsappAddress(phone string) string {
	p := strings.TrimPrefix(strings.TrimSpace(phone), whatsappPrefix)
	if !strings.HasPrefix(p, "+") {
		p = "+" + p
	}
	return whatsappPrefix + p
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
