package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"
)

// Record mirrors the row the front desk's master sheet expects:
// [timestamp, token, name, contact, status, payment method].
type Record struct {
	Timestamp     time.Time `json:"timestamp"`
	Number        int       `json:"token"`
	Name          string    `json:"name"`
	Contact       string    `json:"phone"`
	Status        string    `json:"status"`
	PaymentMethod string    `json:"paymentMethod"`
}

// Recorder receives registration records. Delivery is best effort;
// callers must never let a failed Record roll back queue state.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
}

func NewRecorder(kind string) Recorder {
	switch kind {
	case "", "log":
		return logRecorder{}
	case "noop":
		return noopRecorder{}
	default:
		return NewWebhookRecorder(kind, "")
	}
}

type logRecorder struct{}

func (logRecorder) Record(ctx context.Context, rec Record) error {
	log.Printf("audit token=%d name=%s contact=%s status=%s payment=%s", rec.Number, rec.Name, rec.Contact, rec.Status, rec.PaymentMethod)
	return nil
}

type noopRecorder struct{}

func (noopRecorder) Record(ctx context.Context, rec Record) error {
	return nil
}

// WebhookRecorder posts records to a sheet webhook.
type WebhookRecorder struct {
	url    string
	token  string
	client *http.Client
}

func NewWebhookRecorder(url, token string) *WebhookRecorder {
	return &WebhookRecorder{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (r *WebhookRecorder) Record(ctx context.Context, rec Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errors.New("recorder rejected request")
	}
	return nil
}
