package asr_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"vidmill/internal/services"
	"vidmill/internal/services/asr"
)

func newClient(t *testing.T, handler http.Handler) *asr.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return asr.NewClient(asr.Config{BaseURL: server.URL, APIKey: "key"})
}

func TestTranscribeParsesUtterances(t *testing.T) {
	var gotURL string
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotURL, _ = body["url"].(string)
		_, _ = w.Write([]byte(`{"code":0,"result":{"utterances":[
			{"text":"first line","start_time":0,"end_time":1500},
			{"text":"  ","start_time":1500,"end_time":1600},
			{"text":"second line","start_time":1600,"end_time":4200}
		]}}`))
	}))

	utterances, err := client.Transcribe(context.Background(), "https://cdn.example/audio.mp3")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if gotURL != "https://cdn.example/audio.mp3" {
		t.Fatalf("audio url not sent: %q", gotURL)
	}
	if len(utterances) != 2 {
		t.Fatalf("blank utterances must be dropped, got %d", len(utterances))
	}
	if utterances[1].Text != "second line" || utterances[1].StartMs != 1600 || utterances[1].EndMs != 4200 {
		t.Fatalf("utterance fields: %+v", utterances[1])
	}
}

func TestTranscribeRemoteError(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":1001,"message":"bad audio"}`))
	}))
	_, err := client.Transcribe(context.Background(), "https://cdn.example/a.mp3")
	if err == nil {
		t.Fatal("expected error")
	}
	if services.IsTransient(err) {
		t.Fatalf("api rejection must not be transient: %v", err)
	}
}

func TestTranscribeRequiresURL(t *testing.T) {
	client := newClient(t, http.NotFoundHandler())
	if _, err := client.Transcribe(context.Background(), ""); err == nil {
		t.Fatal("expected validation error")
	}
}
