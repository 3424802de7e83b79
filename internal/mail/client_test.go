package mail

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(endpoint, apiKey string) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(http.DefaultClient, logger, Config{
		Endpoint:  endpoint,
		APIKey:    apiKey,
		FromEmail: "noreply@example.com",
		FromName:  "estatehub",
	})
}

func TestSendOTP_PostsExpectedPayload(t *testing.T) {
	var got sendRequest
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("api-key")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "key-123")
	if err := c.SendOTP(context.Background(), "alice@example.com", "AB12CD34EF", 10); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if gotKey != "key-123" {
		t.Errorf("api-key = %q, want %q", gotKey, "key-123")
	}
	if len(got.To) != 1 || got.To[0].Email != "alice@example.com" {
		t.Errorf("To = %+v", got.To)
	}
	if got.Sender.Email != "noreply@example.com" {
		t.Errorf("Sender = %+v", got.Sender)
	}
	if !strings.Contains(got.HTMLContent, "AB12CD34EF") {
		t.Errorf("HTMLContent should contain the code: %q", got.HTMLContent)
	}
	if !strings.Contains(got.HTMLContent, "10 minutes") {
		t.Errorf("HTMLContent should contain the expiry: %q", got.HTMLContent)
	}
}

func TestSendOTP_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL, "bad").SendOTP(context.Background(), "a@example.com", "X", 10)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error %q should mention status", err.Error())
	}
}

func TestSendOTP_MissingAPIKey(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	if err := newTestClient(srv.URL, "").SendOTP(context.Background(), "a@example.com", "X", 10); err == nil {
		t.Fatal("expected error, got nil")
	}
	if called {
		t.Error("request should not be sent without api key")
	}
}
