package syncso

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jo-hoe/videogreeter/internal/config"
	"github.com/jo-hoe/videogreeter/internal/poller"
)

func newTestClient(url string) *Client {
	return New(config.SyncSoSettings{
		BaseURL:  url,
		APIKey:   "sync-key",
		Model:    "lipsync-2",
		SyncMode: "cut_off",
	})
}

func TestSubmit_Success(t *testing.T) {
	var got generateRequest
	var seenKey, seenMethod, seenPath string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenKey = r.Header.Get("x-api-key")
		seenMethod = r.Method
		seenPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"gen-123","status":"PENDING"}`))
	}))
	defer ts.Close()

	id, err := newTestClient(ts.URL).Submit(context.Background(), "https://cdn/template.mp4", "https://greet/audio/a.mp3", "personalized-video-job-1-1700000000000")
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if id != "gen-123" {
		t.Fatalf("id = %q", id)
	}
	if seenKey != "sync-key" || seenMethod != http.MethodPost || seenPath != "/v2/generate" {
		t.Fatalf("request mismatch: key=%q method=%q path=%q", seenKey, seenMethod, seenPath)
	}
	if got.Model != "lipsync-2" || got.Options.SyncMode != "cut_off" {
		t.Fatalf("payload mismatch: %+v", got)
	}
	if len(got.Input) != 2 || got.Input[0].Type != "video" || got.Input[1].URL != "https://greet/audio/a.mp3" {
		t.Fatalf("inputs mismatch: %+v", got.Input)
	}
	if got.OutputFileName != "personalized-video-job-1-1700000000000" {
		t.Fatalf("outputFileName mismatch: %q", got.OutputFileName)
	}
}

func TestSubmit_ErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid audio"}`, http.StatusUnprocessableEntity)
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL).Submit(context.Background(), "https://v", "https://a", "out")
	if err == nil || !strings.Contains(err.Error(), "422") {
		t.Fatalf("expected 422 error, got %v", err)
	}
}

func TestSubmit_MissingID(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"PENDING"}`))
	}))
	defer ts.Close()

	if _, err := newTestClient(ts.URL).Submit(context.Background(), "https://v", "https://a", "out"); err == nil {
		t.Fatalf("expected error for missing id")
	}
}

func TestQueryStatus_MapsProviderStatuses(t *testing.T) {
	cases := []struct {
		body      string
		wantState poller.State
		wantURL   string
	}{
		{`{"id":"g","status":"PENDING"}`, poller.Pending, ""},
		{`{"id":"g","status":"PROCESSING"}`, poller.Pending, ""},
		{`{"id":"g","status":"COMPLETED","outputUrl":"https://cdn/out.mp4"}`, poller.Done, "https://cdn/out.mp4"},
		{`{"id":"g","status":"FAILED","error":"no face"}`, poller.Failed, ""},
		{`{"id":"g","status":"REJECTED"}`, poller.Failed, ""},
	}
	for _, c := range cases {
		body := c.body
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet || r.URL.Path != "/v2/generate/g" {
				http.Error(w, "unexpected", http.StatusNotFound)
				return
			}
			_, _ = w.Write([]byte(body))
		}))

		st, err := newTestClient(ts.URL).QueryStatus(context.Background(), "g")
		ts.Close()
		if err != nil {
			t.Fatalf("QueryStatus(%s) error: %v", body, err)
		}
		if st.State != c.wantState || st.OutputURL != c.wantURL {
			t.Fatalf("QueryStatus(%s) = %+v", body, st)
		}
	}
}

func TestQueryStatus_FailureDetail(t *testing.T) {
	st := mapStatus(generation{Status: "FAILED", Error: "no face detected"})
	if st.State != poller.Failed || st.Status != "FAILED: no face detected" {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestQueryStatus_ServerErrorIsReturned(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream", http.StatusBadGateway)
	}))
	defer ts.Close()

	if _, err := newTestClient(ts.URL).QueryStatus(context.Background(), "g"); err == nil {
		t.Fatalf("expected error")
	}
}
