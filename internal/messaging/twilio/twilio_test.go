package twilio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jo-hoe/videogreeter/internal/config"
)

func TestNew_Validation(t *testing.T) {
	if _, err := New(config.TwilioSettings{AuthToken: "t", FromNumber: "+1"}); err == nil {
		t.Fatalf("expected error for empty sid")
	}
	if _, err := New(config.TwilioSettings{AccountSID: "AC1", AuthToken: "t"}); err == nil {
		t.Fatalf("expected error for empty from number")
	}
}

func TestDeliver_Success(t *testing.T) {
	var (
		gotPath, gotUser, gotPass string
		gotFrom, gotTo, gotBody   string
		gotMedia                  string
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		if err := r.ParseForm(); err != nil {
			http.Error(w, "form", http.StatusBadRequest)
			return
		}
		gotFrom = r.PostForm.Get("From")
		gotTo = r.PostForm.Get("To")
		gotBody = r.PostForm.Get("Body")
		gotMedia = r.PostForm.Get("MediaUrl")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM123","status":"queued"}`))
	}))
	defer ts.Close()

	m, err := New(config.TwilioSettings{
		BaseURL:     ts.URL,
		AccountSID:  "AC123",
		AuthToken:   "secret",
		FromNumber:  "+14155238886",
		AttachMedia: true,
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	m.WithHTTPClient(ts.Client())

	err = m.Deliver(context.Background(), "+4915112345678", "Hi Ana! video", "https://cdn/out.mp4")
	if err != nil {
		t.Fatalf("Deliver error: %v", err)
	}
	if gotPath != "/2010-04-01/Accounts/AC123/Messages.json" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotUser != "AC123" || gotPass != "secret" {
		t.Fatalf("basic auth = %q/%q", gotUser, gotPass)
	}
	if gotFrom != "whatsapp:+14155238886" || gotTo != "whatsapp:+4915112345678" {
		t.Fatalf("addresses = %q -> %q", gotFrom, gotTo)
	}
	if gotBody != "Hi Ana! video" || gotMedia != "https://cdn/out.mp4" {
		t.Fatalf("body/media = %q / %q", gotBody, gotMedia)
	}
}

func TestDeliver_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"The 'To' number is not a valid phone number."}`))
	}))
	defer ts.Close()

	m, err := New(config.TwilioSettings{BaseURL: ts.URL, AccountSID: "AC1", AuthToken: "t", FromNumber: "+1"})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	err = m.Deliver(context.Background(), "+4915112345678", "hi", "")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "21211") || !strings.Contains(err.Error(), "not a valid phone number") {
		t.Fatalf("error should carry api details: %v", err)
	}
}

func TestWhatsappAddress(t *testing.T) {
	cases := map[string]string{
		"+4915112345678":          "whatsapp:+4915112345678",
		"4915112345678":           "whatsapp:+4915112345678",
		"whatsapp:+4915112345678": "whatsapp:+4915112345678",
	}
	for in, want := range cases {
		if got := whatsappAddress(in); got != want {
			t.Fatalf("whatsappAddress(%q) = %q, want %q", in, got, want)
		}
	}
}
