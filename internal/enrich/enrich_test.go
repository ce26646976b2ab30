package enrich

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"carerelay/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestHTTPTranslator_Translate(t *testing.T) {
	var gotReq translateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/translations" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(translateResponse{TranslatedAudio: "ref-fr"})
	}))
	defer srv.Close()

	tr := NewHTTPTranslator(TranslatorConfig{APIBase: srv.URL, APIKey: "test-key", Logger: testLogger()})
	out, err := tr.Translate(context.Background(), "ref-en", "fr")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if out != "ref-fr" {
		t.Fatalf("unexpected translated ref %q", out)
	}
	if gotReq.Audio != "ref-en" || gotReq.TargetLanguage != "fr" {
		t.Fatalf("unexpected request: %+v", gotReq)
	}
}

func TestHTTPTranslator_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	tr := NewHTTPTranslator(TranslatorConfig{APIBase: srv.URL, Logger: testLogger()})
	_, err := tr.Translate(context.Background(), "ref", "fr")
	if err == nil {
		t.Fatal("expected error on 503")
	}
	if !strings.Contains(err.Error(), "model overloaded") {
		t.Fatalf("collaborator message not surfaced: %v", err)
	}
}

func TestHTTPTranslator_EmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(translateResponse{})
	}))
	defer srv.Close()

	tr := NewHTTPTranslator(TranslatorConfig{APIBase: srv.URL, Logger: testLogger()})
	if _, err := tr.Translate(context.Background(), "ref", "fr"); err == nil {
		t.Fatal("expected error when no translated audio is returned")
	}
}

func TestHTTPAnalyzer_TextIsLiteral(t *testing.T) {
	var gotReq analyzeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(analyzeResponse{Insights: "Overall Tone: Positive"})
	}))
	defer srv.Close()

	a := NewHTTPAnalyzer(AnalyzerConfig{APIBase: srv.URL, Logger: testLogger()})
	insights, err := a.AnalyzeEmotion(context.Background(), domain.TextContent("I feel better"))
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if insights != "Overall Tone: Positive" {
		t.Fatalf("unexpected insights %q", insights)
	}
	if gotReq.Input != "Text from patient: I feel better" {
		t.Fatalf("text not marked literal: %q", gotReq.Input)
	}
}

func TestHTTPAnalyzer_AudioPassedAsRef(t *testing.T) {
	var gotReq analyzeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(analyzeResponse{Insights: "calm"})
	}))
	defer srv.Close()

	a := NewHTTPAnalyzer(AnalyzerConfig{APIBase: srv.URL, Logger: testLogger()})
	if _, err := a.AnalyzeEmotion(context.Background(), domain.AudioContent("data:audio/wav;base64,AAAA")); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if gotReq.Input != "data:audio/wav;base64,AAAA" {
		t.Fatalf("audio ref not passed through: %q", gotReq.Input)
	}
}
