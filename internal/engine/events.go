package engine

import (
	"crypto/sha256"
	"fmt"
	"time"

	"nowait/queue-service/internal/models"
)

// TokenEvent is one entry in a token's append-only transition trail.
// Entries are hash-chained so a tampered trail is detectable.
type TokenEvent struct {
	TokenID   string    `json:"token_id"`
	Seq       int       `json:"seq"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	Number    int       `json:"number"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	PrevHash  string    `json:"prev_hash"`
	Hash      string    `json:"hash"`
}

func ComputeEventHash(prevHash, tokenID, eventType string, createdAt time.Time, seq int) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%d", prevHash, tokenID, eventType, createdAt.UTC().Format(time.RFC3339Nano), seq)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum)
}

func (e *Engine) appendEventLocked(tk *models.Token, eventType string) {
	trail := e.events[tk.TokenID]
	prev := ""
	if len(trail) > 0 {
		prev = trail[len(trail)-1].Hash
	}
	seq := len(trail) + 1
	event := TokenEvent{
		TokenID:   tk.TokenID,
		Seq:       seq,
		Type:      eventType,
		Status:    tk.Status,
		Number:    tk.Number,
		Notes:     tk.Notes,
		CreatedAt: e.now(),
		PrevHash:  prev,
	}
	event.Hash = ComputeEventHash(prev, tk.TokenID, eventType, event.CreatedAt, seq)
	e.events[tk.TokenID] = append(trail, event)
}

// VerifyTrail checks the hash chain of a token's event trail.
func VerifyTrail(events []TokenEvent) bool {
	prev := ""
	for _, event := range events {
		if event.PrevHash != prev {
			return false
		}
		if event.Hash != ComputeEventHash(prev, event.TokenID, event.Type, event.CreatedAt, event.Seq) {
			return false
		}
		prev = event.Hash
	}
	return true
}
