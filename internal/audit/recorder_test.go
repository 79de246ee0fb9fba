package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWebhookRecorderPostsRow(t *testing.T) {
	var got Record
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode record: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rec := NewWebhookRecorder(srv.URL, "secret")
	err := rec.Record(context.Background(), Record{
		Timestamp:     time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
		Number:        7,
		Name:          "Patient 7",
		Contact:       "03001234567",
		Status:        "waiting",
		PaymentMethod: "cash",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if auth != "Bearer secret" {
		t.Fatalf("expected bearer token, got %q", auth)
	}
	if got.Number != 7 || got.Contact != "03001234567" {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestWebhookRecorderRejectedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	rec := NewWebhookRecorder(srv.URL, "")
	if err := rec.Record(context.Background(), Record{Number: 1}); err == nil {
		t.Fatalf("expected error on rejected webhook")
	}
}

func TestNewRecorderKinds(t *testing.T) {
	if _, ok := NewRecorder("").(logRecorder); !ok {
		t.Fatalf("expected log recorder by default")
	}
	if _, ok := NewRecorder("noop").(noopRecorder); !ok {
		t.Fatalf("expected noop recorder")
	}
	if _, ok := NewRecorder("https://example.com/hook").(*WebhookRecorder); !ok {
		t.Fatalf("expected webhook recorder for a URL")
	}
}
